package tracker

import (
	"fmt"
	"time"

	"github.com/72rs3/Gamble-5k-board-tracker/internal/roster"
)

// ActionKind identifies a staged operation.
type ActionKind string

const (
	ActionMarkPlayed      ActionKind = "mark_played"
	ActionOverride        ActionKind = "override"
	ActionCleanupInactive ActionKind = "cleanup_inactive"
	ActionResetAll        ActionKind = "reset_all"
)

// PendingAction is a staged mutation awaiting confirmation. The intent
// is held as plain data; nothing touches the board until Confirm, and
// Cancel discards it with no effect.
type PendingAction struct {
	ID         string
	Kind       ActionKind
	PlayerID   string
	PlayerName string
	NewStatus  roster.Status
	NewExpiry  *time.Time
	StagedAt   time.Time
}

// Describe renders the confirmation prompt for this action.
func (a *PendingAction) Describe() string {
	switch a.Kind {
	case ActionMarkPlayed:
		return fmt.Sprintf("Mark **%s** as played?", a.PlayerName)
	case ActionOverride:
		if a.NewStatus == roster.StatusEligible && a.NewExpiry != nil {
			return fmt.Sprintf("Set **%s** to %s until %s?",
				a.PlayerName, a.NewStatus.Label(), a.NewExpiry.UTC().Format("2006-01-02 15:04 MST"))
		}
		return fmt.Sprintf("Set **%s** to %s?", a.PlayerName, a.NewStatus.Label())
	case ActionCleanupInactive:
		return "Remove all inactive players from the board?"
	case ActionResetAll:
		return "Delete every player and the entire history? This cannot be undone."
	}
	return string(a.Kind)
}
