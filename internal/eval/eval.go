// Package eval advances player statuses based on elapsed time.
package eval

import (
	"time"

	"github.com/72rs3/Gamble-5k-board-tracker/internal/roster"
)

// Change records one automatic status transition.
type Change struct {
	PlayerID   string
	PlayerName string
	From       roster.Status
	To         roster.Status
}

// Evaluator computes status transitions. It holds no mutable state and
// performs no I/O, so a single instance is safe to share.
type Evaluator struct {
	inactivityWindow time.Duration
}

// New returns an Evaluator. inactivityWindow is measured from a player's
// eligibility expiry, not from the moment they became not eligible.
func New(inactivityWindow time.Duration) *Evaluator {
	return &Evaluator{inactivityWindow: inactivityWindow}
}

// Evaluate returns a copy of players with each status advanced for the
// given instant, plus the transitions that occurred. Running it again on
// its own output with the same now yields no further change.
func (e *Evaluator) Evaluate(players []roster.Player, now time.Time) ([]roster.Player, []Change) {
	out := make([]roster.Player, len(players))
	copy(out, players)

	var changes []Change
	for i := range out {
		next := e.next(out[i], now)
		if next == out[i].Status {
			continue
		}
		changes = append(changes, Change{
			PlayerID:   out[i].ID,
			PlayerName: out[i].Name,
			From:       out[i].Status,
			To:         next,
		})
		out[i].Status = next
	}
	return out, changes
}

// next resolves the status a player should hold at now. Each rule chain
// runs to its fixpoint in one call: an eligible player whose expiry is
// already more than the inactivity window in the past lands directly on
// inactive.
func (e *Evaluator) next(p roster.Player, now time.Time) roster.Status {
	switch p.Status {
	case roster.StatusEligible:
		if p.EligibilityExpiresAt == nil {
			// Manual override without expiry: never auto-expires.
			return roster.StatusEligible
		}
		if now.After(p.EligibilityExpiresAt.Add(e.inactivityWindow)) {
			return roster.StatusInactive
		}
		if now.After(*p.EligibilityExpiresAt) {
			return roster.StatusNotEligible
		}
		return roster.StatusEligible

	case roster.StatusNotEligible:
		if p.EligibilityExpiresAt == nil {
			// Freshly added players have no expiry to decay from.
			return roster.StatusNotEligible
		}
		if now.After(p.EligibilityExpiresAt.Add(e.inactivityWindow)) {
			return roster.StatusInactive
		}
		return roster.StatusNotEligible

	case roster.StatusInactive:
		// Terminal; only a manual override leaves it.
		return roster.StatusInactive
	}
	return p.Status
}
