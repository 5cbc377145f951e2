// Package roster defines the board's domain model: players, their
// eligibility status, and the bounded action history.
package roster

import (
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"
)

// Errors surfaced by roster operations.
var (
	ErrDuplicateName  = errors.New("a player with that name already exists")
	ErrPlayerNotFound = errors.New("player not found")
	ErrEmptyName      = errors.New("player name is empty")
	ErrUnknownStatus  = errors.New("unknown status")
)

// Status is a player's eligibility state. Exactly three values exist.
type Status string

const (
	StatusEligible    Status = "eligible"
	StatusNotEligible Status = "not_eligible"
	StatusInactive    Status = "inactive"
)

// ParseStatus validates a status string from an external boundary.
func ParseStatus(s string) (Status, error) {
	switch Status(s) {
	case StatusEligible, StatusNotEligible, StatusInactive:
		return Status(s), nil
	}
	return "", fmt.Errorf("%w: %q", ErrUnknownStatus, s)
}

// Rank orders statuses for board listings: eligible players first,
// inactive last.
func (s Status) Rank() int {
	switch s {
	case StatusEligible:
		return 0
	case StatusNotEligible:
		return 1
	case StatusInactive:
		return 2
	}
	return 3
}

// Label returns the human-readable form of the status.
func (s Status) Label() string {
	switch s {
	case StatusEligible:
		return "Eligible"
	case StatusNotEligible:
		return "Not eligible"
	case StatusInactive:
		return "Inactive"
	}
	return string(s)
}

// Player is one entry on the board.
type Player struct {
	ID                   string     `json:"id"`
	Name                 string     `json:"name"`
	LastPlayed           *time.Time `json:"lastPlayed"`
	EligibilityExpiresAt *time.Time `json:"eligibilityExpiresAt"`
	Status               Status     `json:"status"`
}

// HistoryEntry records one board action. PlayerName is a snapshot, not a
// reference, so the entry stays readable after the player is deleted.
type HistoryEntry struct {
	ID         string    `json:"id"`
	PlayerName string    `json:"playerName"`
	Action     string    `json:"action"`
	Timestamp  time.Time `json:"timestamp"`
}

// AdminName attributes bulk actions in the history log.
const AdminName = "Admin"

// MaxHistory is the number of history entries retained; older entries
// are dropped on insert.
const MaxHistory = 100

// State is the unit of persistence: the full board plus its history.
// History is ordered newest first.
type State struct {
	Players []Player       `json:"players"`
	History []HistoryEntry `json:"historyLog"`
}

// NewState returns an empty board.
func NewState() *State {
	return &State{}
}

// Clone returns a deep copy. Mutating the copy never affects the
// original.
func (s *State) Clone() *State {
	out := &State{
		Players: make([]Player, len(s.Players)),
		History: make([]HistoryEntry, len(s.History)),
	}
	copy(out.History, s.History)
	for i, p := range s.Players {
		out.Players[i] = p.clone()
	}
	return out
}

func (p Player) clone() Player {
	if p.LastPlayed != nil {
		t := *p.LastPlayed
		p.LastPlayed = &t
	}
	if p.EligibilityExpiresAt != nil {
		t := *p.EligibilityExpiresAt
		p.EligibilityExpiresAt = &t
	}
	return p
}

// FindPlayer returns a pointer into Players for the given id, or nil.
func (s *State) FindPlayer(id string) *Player {
	for i := range s.Players {
		if s.Players[i].ID == id {
			return &s.Players[i]
		}
	}
	return nil
}

// FindPlayerByName returns the player matching name case-insensitively,
// or nil.
func (s *State) FindPlayerByName(name string) *Player {
	for i := range s.Players {
		if strings.EqualFold(s.Players[i].Name, name) {
			return &s.Players[i]
		}
	}
	return nil
}

// HasName reports whether any player already uses name, compared
// case-insensitively.
func (s *State) HasName(name string) bool {
	return s.FindPlayerByName(name) != nil
}

// AddHistory prepends an entry and drops anything beyond MaxHistory.
func (s *State) AddHistory(e HistoryEntry) {
	s.History = append([]HistoryEntry{e}, s.History...)
	if len(s.History) > MaxHistory {
		s.History = s.History[:MaxHistory]
	}
}

// SortPlayers orders players in place by status rank, then by name
// case-insensitively. This is the canonical board order.
func SortPlayers(players []Player) {
	sort.SliceStable(players, func(i, j int) bool {
		ri, rj := players[i].Status.Rank(), players[j].Status.Rank()
		if ri != rj {
			return ri < rj
		}
		return strings.ToLower(players[i].Name) < strings.ToLower(players[j].Name)
	})
}

// NewID returns an opaque id of the form "prefix_xxxxxxxx".
func NewID(prefix string) string {
	b := make([]byte, 4)
	_, _ = rand.Read(b)
	return prefix + "_" + hex.EncodeToString(b)
}
