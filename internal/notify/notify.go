// Package notify derives expiring-eligibility alerts and dispatches
// external announcements, firing each one only once per crossing.
package notify

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/72rs3/Gamble-5k-board-tracker/internal/roster"
)

// ErrPermissionDenied marks an external channel that refused the
// announcement. It is never fatal; on-screen alerts keep working.
var ErrPermissionDenied = errors.New("notification channel permission denied")

// Alert describes one player whose eligibility runs out soon.
type Alert struct {
	PlayerID   string
	PlayerName string
	ExpiresAt  time.Time
	Message    string
}

// Notifier is the external announcement capability. The tracker does not
// own the channel; callers inject whatever transport they have.
type Notifier interface {
	Notify(ctx context.Context, a Alert) error
}

// Noop discards announcements. Used while no external channel is wired,
// e.g. on replicas that are not the leader.
type Noop struct{}

// Notify does nothing.
func (Noop) Notify(context.Context, Alert) error { return nil }

// Tracker computes the alert list and deduplicates external dispatch.
// The dedup memory is per-process and deliberately not persisted.
type Tracker struct {
	mu       sync.Mutex
	window   time.Duration
	notifier Notifier
	logger   *slog.Logger

	// notified holds player ids whose alert condition is currently true
	// and has already fired externally. An id leaves the set as soon as
	// the condition clears, re-arming the notification.
	notified map[string]struct{}
}

// NewTracker returns a Tracker alerting on expiries within window.
func NewTracker(window time.Duration, notifier Notifier, logger *slog.Logger) *Tracker {
	if notifier == nil {
		notifier = Noop{}
	}
	return &Tracker{
		window:   window,
		notifier: notifier,
		logger:   logger,
		notified: make(map[string]struct{}),
	}
}

// SetNotifier swaps the external channel. Safe to call while scans run.
func (t *Tracker) SetNotifier(n Notifier) {
	if n == nil {
		n = Noop{}
	}
	t.mu.Lock()
	t.notifier = n
	t.mu.Unlock()
}

// Alerts returns the current alert list without touching the dedup set
// or dispatching anything. Used by display surfaces.
func (t *Tracker) Alerts(players []roster.Player, now time.Time) []Alert {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.buildAlerts(players, now)
}

// Scan recomputes the alert list and fires the external notifier for
// every player newly entering the warning window. Players whose
// condition cleared are re-armed. A notifier failure is logged and
// skipped; the alert list is returned regardless.
func (t *Tracker) Scan(ctx context.Context, players []roster.Player, now time.Time) []Alert {
	t.mu.Lock()
	defer t.mu.Unlock()

	alerts := t.buildAlerts(players, now)

	current := make(map[string]struct{}, len(alerts))
	for _, a := range alerts {
		current[a.PlayerID] = struct{}{}
		if _, seen := t.notified[a.PlayerID]; seen {
			continue
		}
		// Mark before dispatching: the crossing happened whether or not
		// the channel accepts the message.
		t.notified[a.PlayerID] = struct{}{}

		if err := t.notifier.Notify(ctx, a); err != nil {
			if errors.Is(err, ErrPermissionDenied) {
				t.logger.WarnContext(ctx, "notification channel denied, on-screen alerts unaffected",
					slog.String("player", a.PlayerName),
				)
				continue
			}
			t.logger.ErrorContext(ctx, "failed to send notification",
				slog.String("player", a.PlayerName),
				slog.Any("error", err),
			)
			continue
		}
		t.logger.InfoContext(ctx, "expiry notification sent",
			slog.String("player", a.PlayerName),
			slog.Time("expires_at", a.ExpiresAt),
		)
	}

	// Drop ids whose condition no longer holds, including deleted players.
	for id := range t.notified {
		if _, ok := current[id]; !ok {
			delete(t.notified, id)
		}
	}

	return alerts
}

// buildAlerts lists eligible players whose expiry falls strictly within
// (now, now+window], soonest first. Callers hold t.mu.
func (t *Tracker) buildAlerts(players []roster.Player, now time.Time) []Alert {
	var alerts []Alert
	for _, p := range players {
		if p.Status != roster.StatusEligible || p.EligibilityExpiresAt == nil {
			continue
		}
		exp := *p.EligibilityExpiresAt
		if !exp.After(now) || exp.After(now.Add(t.window)) {
			continue
		}
		alerts = append(alerts, Alert{
			PlayerID:   p.ID,
			PlayerName: p.Name,
			ExpiresAt:  exp,
			Message: fmt.Sprintf("%s's eligibility expires in %s",
				p.Name, formatRemaining(exp.Sub(now))),
		})
	}
	sort.Slice(alerts, func(i, j int) bool {
		return alerts[i].ExpiresAt.Before(alerts[j].ExpiresAt)
	})
	return alerts
}

// formatRemaining renders a duration as "23h 59m" or "45m".
func formatRemaining(d time.Duration) string {
	d = d.Round(time.Minute)
	h := d / time.Hour
	m := (d % time.Hour) / time.Minute
	if h == 0 {
		return fmt.Sprintf("%dm", m)
	}
	return fmt.Sprintf("%dh %dm", h, m)
}
