// Package tracker owns the authoritative in-memory board state and every
// operation that mutates it. Destructive operations are two-phase: they
// are staged as a PendingAction and applied only on explicit confirmation.
package tracker

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/72rs3/Gamble-5k-board-tracker/internal/clock"
	"github.com/72rs3/Gamble-5k-board-tracker/internal/config"
	"github.com/72rs3/Gamble-5k-board-tracker/internal/eval"
	"github.com/72rs3/Gamble-5k-board-tracker/internal/notify"
	"github.com/72rs3/Gamble-5k-board-tracker/internal/roster"
	"github.com/72rs3/Gamble-5k-board-tracker/internal/store"
	"github.com/72rs3/Gamble-5k-board-tracker/internal/store/snapshot"
)

// Errors returned by tracker operations.
var (
	ErrPendingNotFound = errors.New("no such pending action")
	ErrPendingExpired  = errors.New("pending action is no longer valid")
	ErrAlreadyEligible = errors.New("player is already eligible")
)

// Manager coordinates the board state, staged actions and persistence.
type Manager struct {
	mu      sync.Mutex
	state   *roster.State
	pending map[string]*PendingAction

	adapter   store.Adapter
	evaluator *eval.Evaluator
	alerts    *notify.Tracker
	clock     clock.Clock
	logger    *slog.Logger
	tracer    trace.Tracer

	eligibilityWindow time.Duration
	pendingTTL        time.Duration
}

// NewManager returns a Manager over the given persistence adapter.
func NewManager(adapter store.Adapter, evaluator *eval.Evaluator, alerts *notify.Tracker, clk clock.Clock, cfg config.RosterConfig, logger *slog.Logger, tp trace.TracerProvider) *Manager {
	return &Manager{
		state:             roster.NewState(),
		pending:           make(map[string]*PendingAction),
		adapter:           adapter,
		evaluator:         evaluator,
		alerts:            alerts,
		clock:             clk,
		logger:            logger,
		tracer:            tp.Tracer("github.com/72rs3/Gamble-5k-board-tracker/internal/tracker"),
		eligibilityWindow: cfg.EligibilityWindow,
		pendingTTL:        cfg.PendingTTL,
	}
}

// Load replaces the in-memory state with the persisted one.
func (m *Manager) Load(ctx context.Context) error {
	state, err := m.adapter.Load(ctx)
	if err != nil {
		return fmt.Errorf("loading board state: %w", err)
	}

	m.mu.Lock()
	m.state = state
	m.mu.Unlock()

	m.logger.InfoContext(ctx, "board state loaded",
		slog.Int("players", len(state.Players)),
		slog.Int("history", len(state.History)),
	)
	return nil
}

// Replace swaps in a state pushed by the synchronized backend.
func (m *Manager) Replace(ctx context.Context, state *roster.State) {
	m.mu.Lock()
	m.state = state
	m.mu.Unlock()

	m.logger.InfoContext(ctx, "board state replaced from remote change",
		slog.Int("players", len(state.Players)),
	)
}

// AddPlayer creates a new player. It applies immediately; no
// confirmation step. The name is trimmed and must be unique among
// current players under case-insensitive comparison.
func (m *Manager) AddPlayer(ctx context.Context, name string) (*roster.Player, error) {
	ctx, span := m.tracer.Start(ctx, "Manager.AddPlayer",
		trace.WithAttributes(attribute.String("player_name", name)),
	)
	defer span.End()

	name = strings.TrimSpace(name)
	if name == "" {
		return nil, roster.ErrEmptyName
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if m.state.HasName(name) {
		return nil, fmt.Errorf("%w: %q", roster.ErrDuplicateName, name)
	}

	p := roster.Player{
		ID:     roster.NewID("player"),
		Name:   name,
		Status: roster.StatusNotEligible,
	}
	entry := m.newEntry(name, "joined the board")

	next := m.state.Clone()
	next.Players = append(next.Players, p)
	next.AddHistory(entry)

	if err := m.commit(ctx, next, store.Change{
		UpsertPlayers: []roster.Player{p},
		NewHistory:    []roster.HistoryEntry{entry},
	}); err != nil {
		return nil, err
	}

	m.logger.InfoContext(ctx, "player added",
		slog.String("player_id", p.ID),
		slog.String("name", name),
	)
	return &p, nil
}

// StageMarkPlayed stages a mark-played mutation for confirmation.
// Staging is refused when the player is already eligible.
func (m *Manager) StageMarkPlayed(ctx context.Context, playerID string) (*PendingAction, error) {
	_, span := m.tracer.Start(ctx, "Manager.StageMarkPlayed",
		trace.WithAttributes(attribute.String("player_id", playerID)),
	)
	defer span.End()

	m.mu.Lock()
	defer m.mu.Unlock()

	p := m.state.FindPlayer(playerID)
	if p == nil {
		return nil, fmt.Errorf("%w: %s", roster.ErrPlayerNotFound, playerID)
	}
	if p.Status == roster.StatusEligible {
		return nil, fmt.Errorf("%w: %s", ErrAlreadyEligible, p.Name)
	}

	return m.stage(&PendingAction{
		Kind:       ActionMarkPlayed,
		PlayerID:   p.ID,
		PlayerName: p.Name,
	}), nil
}

// StageOverride stages a manual status override. Status and expiry are
// applied exactly as given on confirmation, with no recomputation.
func (m *Manager) StageOverride(ctx context.Context, playerID string, status roster.Status, expiry *time.Time) (*PendingAction, error) {
	_, span := m.tracer.Start(ctx, "Manager.StageOverride",
		trace.WithAttributes(
			attribute.String("player_id", playerID),
			attribute.String("status", string(status)),
		),
	)
	defer span.End()

	m.mu.Lock()
	defer m.mu.Unlock()

	p := m.state.FindPlayer(playerID)
	if p == nil {
		return nil, fmt.Errorf("%w: %s", roster.ErrPlayerNotFound, playerID)
	}

	return m.stage(&PendingAction{
		Kind:       ActionOverride,
		PlayerID:   p.ID,
		PlayerName: p.Name,
		NewStatus:  status,
		NewExpiry:  expiry,
	}), nil
}

// StageCleanupInactive stages the bulk removal of inactive players.
func (m *Manager) StageCleanupInactive(ctx context.Context) (*PendingAction, error) {
	_, span := m.tracer.Start(ctx, "Manager.StageCleanupInactive")
	defer span.End()

	m.mu.Lock()
	defer m.mu.Unlock()
	return m.stage(&PendingAction{Kind: ActionCleanupInactive}), nil
}

// StageResetAll stages the deletion of all players and the history.
func (m *Manager) StageResetAll(ctx context.Context) (*PendingAction, error) {
	_, span := m.tracer.Start(ctx, "Manager.StageResetAll")
	defer span.End()

	m.mu.Lock()
	defer m.mu.Unlock()
	return m.stage(&PendingAction{Kind: ActionResetAll}), nil
}

// stage records a pending action. Callers hold m.mu.
func (m *Manager) stage(a *PendingAction) *PendingAction {
	m.purgeExpired(m.clock.Now())
	a.ID = roster.NewID("action")
	a.StagedAt = m.clock.Now()
	m.pending[a.ID] = a
	return a
}

// Confirm applies a staged action and returns a result message.
func (m *Manager) Confirm(ctx context.Context, pendingID string) (string, error) {
	ctx, span := m.tracer.Start(ctx, "Manager.Confirm",
		trace.WithAttributes(attribute.String("pending_id", pendingID)),
	)
	defer span.End()

	m.mu.Lock()
	defer m.mu.Unlock()

	a, ok := m.pending[pendingID]
	if !ok {
		return "", ErrPendingNotFound
	}
	delete(m.pending, pendingID)

	if m.clock.Now().Sub(a.StagedAt) > m.pendingTTL {
		return "", ErrPendingExpired
	}

	switch a.Kind {
	case ActionMarkPlayed:
		return m.applyMarkPlayed(ctx, a)
	case ActionOverride:
		return m.applyOverride(ctx, a)
	case ActionCleanupInactive:
		return m.applyCleanupInactive(ctx)
	case ActionResetAll:
		return m.applyResetAll(ctx)
	}
	return "", fmt.Errorf("unknown action kind %q", a.Kind)
}

// Cancel discards a staged action with no effect on the board.
func (m *Manager) Cancel(ctx context.Context, pendingID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	a, ok := m.pending[pendingID]
	if !ok {
		return ErrPendingNotFound
	}
	delete(m.pending, pendingID)

	m.logger.InfoContext(ctx, "pending action cancelled",
		slog.String("pending_id", pendingID),
		slog.String("kind", string(a.Kind)),
	)
	return nil
}

// purgeExpired drops staged actions older than the TTL. Callers hold m.mu.
func (m *Manager) purgeExpired(now time.Time) {
	for id, a := range m.pending {
		if now.Sub(a.StagedAt) > m.pendingTTL {
			delete(m.pending, id)
		}
	}
}

func (m *Manager) applyMarkPlayed(ctx context.Context, a *PendingAction) (string, error) {
	next := m.state.Clone()
	p := next.FindPlayer(a.PlayerID)
	if p == nil {
		// Deleted between staging and confirmation.
		return "", fmt.Errorf("%w: %s", roster.ErrPlayerNotFound, a.PlayerName)
	}

	now := m.clock.Now().UTC()
	expiry := now.Add(m.eligibilityWindow)
	p.LastPlayed = &now
	p.EligibilityExpiresAt = &expiry
	p.Status = roster.StatusEligible

	entry := m.newEntry(p.Name, "marked as played")
	next.AddHistory(entry)

	if err := m.commit(ctx, next, store.Change{
		UpsertPlayers: []roster.Player{*p},
		NewHistory:    []roster.HistoryEntry{entry},
	}); err != nil {
		return "", err
	}

	m.logger.InfoContext(ctx, "player marked as played",
		slog.String("player_id", p.ID),
		slog.Time("expires_at", expiry),
	)
	return fmt.Sprintf("**%s** is eligible until %s.", p.Name, expiry.Format("2006-01-02 15:04 MST")), nil
}

func (m *Manager) applyOverride(ctx context.Context, a *PendingAction) (string, error) {
	next := m.state.Clone()
	p := next.FindPlayer(a.PlayerID)
	if p == nil {
		return "", fmt.Errorf("%w: %s", roster.ErrPlayerNotFound, a.PlayerName)
	}

	now := m.clock.Now().UTC()
	// A manual move to not-eligible preserves the prior lastPlayed; any
	// other override counts as activity.
	if a.NewStatus != roster.StatusNotEligible {
		p.LastPlayed = &now
	}
	p.Status = a.NewStatus
	if a.NewExpiry != nil {
		t := a.NewExpiry.UTC()
		p.EligibilityExpiresAt = &t
	} else {
		p.EligibilityExpiresAt = nil
	}

	entry := m.newEntry(p.Name, fmt.Sprintf("status manually set to %s", a.NewStatus.Label()))
	next.AddHistory(entry)

	if err := m.commit(ctx, next, store.Change{
		UpsertPlayers: []roster.Player{*p},
		NewHistory:    []roster.HistoryEntry{entry},
	}); err != nil {
		return "", err
	}

	m.logger.InfoContext(ctx, "player status overridden",
		slog.String("player_id", p.ID),
		slog.String("status", string(a.NewStatus)),
	)
	return fmt.Sprintf("**%s** is now %s.", p.Name, a.NewStatus.Label()), nil
}

func (m *Manager) applyCleanupInactive(ctx context.Context) (string, error) {
	next := m.state.Clone()

	var deleted []string
	kept := next.Players[:0]
	for _, p := range next.Players {
		if p.Status == roster.StatusInactive {
			deleted = append(deleted, p.ID)
			continue
		}
		kept = append(kept, p)
	}
	next.Players = kept

	entry := m.newEntry(roster.AdminName, fmt.Sprintf("removed %d inactive players", len(deleted)))
	next.AddHistory(entry)

	if err := m.commit(ctx, next, store.Change{
		DeletePlayerIDs: deleted,
		NewHistory:      []roster.HistoryEntry{entry},
	}); err != nil {
		return "", err
	}

	m.logger.InfoContext(ctx, "inactive players removed", slog.Int("count", len(deleted)))
	return fmt.Sprintf("Removed %d inactive players.", len(deleted)), nil
}

func (m *Manager) applyResetAll(ctx context.Context) (string, error) {
	// The reset entry outlives the clearing it performs.
	next := roster.NewState()
	next.AddHistory(m.newEntry(roster.AdminName, "cleared all data"))

	if err := m.commit(ctx, next, store.ReplaceAllChange); err != nil {
		return "", err
	}

	m.logger.InfoContext(ctx, "board reset, all data cleared")
	return "Board reset. All players and history cleared.", nil
}

// Tick advances every player's status for the current instant, persists
// any transitions, and scans for expiring-eligibility alerts. The
// scheduler calls this once per interval; all of it runs to completion
// before the next tick can fire.
func (m *Manager) Tick(ctx context.Context) {
	ctx, span := m.tracer.Start(ctx, "Manager.Tick")
	defer span.End()

	m.mu.Lock()
	defer m.mu.Unlock()

	now := m.clock.Now()
	players, changes := m.evaluator.Evaluate(m.state.Players, now)

	if len(changes) > 0 {
		changed := make([]roster.Player, 0, len(changes))
		for _, c := range changes {
			for _, p := range players {
				if p.ID == c.PlayerID {
					changed = append(changed, p)
					break
				}
			}
			m.logger.InfoContext(ctx, "status transition",
				slog.String("player", c.PlayerName),
				slog.String("from", string(c.From)),
				slog.String("to", string(c.To)),
			)
		}

		next := &roster.State{Players: players, History: m.state.History}
		if err := m.commit(ctx, next, store.Change{UpsertPlayers: changed}); err != nil {
			m.logger.ErrorContext(ctx, "persisting status transitions failed", slog.Any("error", err))
		}
	}

	m.alerts.Scan(ctx, m.state.Players, now)
}

// Players returns the board in canonical order: status rank first, then
// case-insensitive name.
func (m *Manager) Players(ctx context.Context) []roster.Player {
	m.mu.Lock()
	defer m.mu.Unlock()

	out := m.state.Clone().Players
	roster.SortPlayers(out)
	return out
}

// PlayerByName resolves a player by case-insensitive name.
func (m *Manager) PlayerByName(ctx context.Context, name string) (*roster.Player, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	p := m.state.FindPlayerByName(strings.TrimSpace(name))
	if p == nil {
		return nil, fmt.Errorf("%w: %q", roster.ErrPlayerNotFound, name)
	}
	copied := *p
	return &copied, nil
}

// History returns up to n of the most recent entries, newest first.
func (m *Manager) History(ctx context.Context, n int) []roster.HistoryEntry {
	m.mu.Lock()
	defer m.mu.Unlock()

	if n <= 0 || n > len(m.state.History) {
		n = len(m.state.History)
	}
	out := make([]roster.HistoryEntry, n)
	copy(out, m.state.History[:n])
	return out
}

// Alerts returns the current expiring-eligibility alerts without
// touching the notification dedup state.
func (m *Manager) Alerts(ctx context.Context) []notify.Alert {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.alerts.Alerts(m.state.Players, m.clock.Now())
}

// ExportToken encodes the current state as a shareable snapshot token.
// The token codec is driver-independent: it works under both backends.
func (m *Manager) ExportToken(ctx context.Context) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return snapshot.Encode(m.state)
}

// commit persists next and installs it as the current state according
// to the driver's write-failure policy. Callers hold m.mu.
func (m *Manager) commit(ctx context.Context, next *roster.State, change store.Change) error {
	if err := m.adapter.Save(ctx, next, change); err != nil {
		if m.adapter.AbortOnSaveError() {
			// Synchronized strategy: the operation aborts whole.
			return fmt.Errorf("persisting change: %w", err)
		}
		// Snapshot strategy: keep the in-memory mutation and surface the
		// error. Memory and cache diverge until the next successful write.
		m.state = next
		m.logger.ErrorContext(ctx, "persist failed, keeping in-memory change", slog.Any("error", err))
		return fmt.Errorf("persisting change: %w", err)
	}
	m.state = next
	return nil
}

func (m *Manager) newEntry(playerName, action string) roster.HistoryEntry {
	return roster.HistoryEntry{
		ID:         roster.NewID("hist"),
		PlayerName: playerName,
		Action:     action,
		Timestamp:  m.clock.Now().UTC(),
	}
}
