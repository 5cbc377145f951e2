package eval_test

import (
	"testing"
	"time"

	"github.com/72rs3/Gamble-5k-board-tracker/internal/eval"
	"github.com/72rs3/Gamble-5k-board-tracker/internal/roster"
)

const (
	eligibilityWindow = 72 * time.Hour
	inactivityWindow  = 72 * time.Hour // 3 days
)

var t0 = time.Date(2024, 3, 1, 18, 0, 0, 0, time.UTC)

func ts(t time.Time) *time.Time { return &t }

func TestEvaluate_Transitions(t *testing.T) {
	expiry := t0.Add(eligibilityWindow)

	tests := []struct {
		name   string
		player roster.Player
		now    time.Time
		want   roster.Status
	}{
		{
			name:   "eligible before expiry stays eligible",
			player: roster.Player{ID: "p1", Status: roster.StatusEligible, EligibilityExpiresAt: ts(expiry)},
			now:    t0.Add(time.Hour),
			want:   roster.StatusEligible,
		},
		{
			name:   "eligible exactly at expiry stays eligible",
			player: roster.Player{ID: "p1", Status: roster.StatusEligible, EligibilityExpiresAt: ts(expiry)},
			now:    expiry,
			want:   roster.StatusEligible,
		},
		{
			name:   "eligible past expiry becomes not eligible",
			player: roster.Player{ID: "p1", Status: roster.StatusEligible, EligibilityExpiresAt: ts(expiry)},
			now:    t0.Add(73 * time.Hour),
			want:   roster.StatusNotEligible,
		},
		{
			name:   "not eligible past inactivity window becomes inactive",
			player: roster.Player{ID: "p1", Status: roster.StatusNotEligible, EligibilityExpiresAt: ts(expiry)},
			now:    expiry.Add(inactivityWindow + time.Hour),
			want:   roster.StatusInactive,
		},
		{
			name:   "not eligible exactly at inactivity bound stays not eligible",
			player: roster.Player{ID: "p1", Status: roster.StatusNotEligible, EligibilityExpiresAt: ts(expiry)},
			now:    expiry.Add(inactivityWindow),
			want:   roster.StatusNotEligible,
		},
		{
			name:   "eligible far past expiry lands directly on inactive",
			player: roster.Player{ID: "p1", Status: roster.StatusEligible, EligibilityExpiresAt: ts(expiry)},
			now:    expiry.Add(inactivityWindow + time.Minute),
			want:   roster.StatusInactive,
		},
		{
			name:   "eligible without expiry never expires",
			player: roster.Player{ID: "p1", Status: roster.StatusEligible},
			now:    t0.Add(1000 * time.Hour),
			want:   roster.StatusEligible,
		},
		{
			name:   "not eligible without expiry never transitions",
			player: roster.Player{ID: "p1", Status: roster.StatusNotEligible},
			now:    t0.Add(1000 * time.Hour),
			want:   roster.StatusNotEligible,
		},
		{
			name:   "inactive is terminal",
			player: roster.Player{ID: "p1", Status: roster.StatusInactive, EligibilityExpiresAt: ts(expiry)},
			now:    t0.Add(time.Hour),
			want:   roster.StatusInactive,
		},
		{
			name: "not eligible with future expiry does not become eligible",
			// An override can set this combination; automatic
			// evaluation must never move it back to eligible.
			player: roster.Player{ID: "p1", Status: roster.StatusNotEligible, EligibilityExpiresAt: ts(expiry)},
			now:    t0.Add(time.Hour),
			want:   roster.StatusNotEligible,
		},
	}

	ev := eval.New(inactivityWindow)
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			out, _ := ev.Evaluate([]roster.Player{tt.player}, tt.now)
			if out[0].Status != tt.want {
				t.Errorf("status = %q, want %q", out[0].Status, tt.want)
			}
		})
	}
}

// A not-eligible override carrying an expiry already more than the
// inactivity window in the past decays on the very next evaluation.
func TestEvaluate_OverrideWithPastExpiryDecaysNextTick(t *testing.T) {
	pastExpiry := t0.Add(-inactivityWindow - time.Hour)
	p := roster.Player{
		ID:                   "p1",
		Name:                 "Ana",
		Status:               roster.StatusNotEligible,
		EligibilityExpiresAt: ts(pastExpiry),
	}

	ev := eval.New(inactivityWindow)
	out, changes := ev.Evaluate([]roster.Player{p}, t0)

	if out[0].Status != roster.StatusInactive {
		t.Fatalf("status = %q, want %q", out[0].Status, roster.StatusInactive)
	}
	if len(changes) != 1 || changes[0].From != roster.StatusNotEligible || changes[0].To != roster.StatusInactive {
		t.Errorf("changes = %+v, want one not_eligible->inactive", changes)
	}
}

func TestEvaluate_Idempotent(t *testing.T) {
	expiry := t0.Add(eligibilityWindow)
	players := []roster.Player{
		{ID: "p1", Status: roster.StatusEligible, EligibilityExpiresAt: ts(expiry)},
		{ID: "p2", Status: roster.StatusEligible, EligibilityExpiresAt: ts(t0.Add(-200 * time.Hour))},
		{ID: "p3", Status: roster.StatusNotEligible, EligibilityExpiresAt: ts(t0.Add(-time.Hour))},
		{ID: "p4", Status: roster.StatusNotEligible},
		{ID: "p5", Status: roster.StatusInactive},
	}

	ev := eval.New(inactivityWindow)
	for _, now := range []time.Time{t0, t0.Add(73 * time.Hour), t0.Add(300 * time.Hour)} {
		once, _ := ev.Evaluate(players, now)
		twice, changes := ev.Evaluate(once, now)

		if len(changes) != 0 {
			t.Fatalf("second evaluation at %v produced changes: %+v", now, changes)
		}
		for i := range once {
			if once[i].Status != twice[i].Status {
				t.Errorf("player %s status unstable at %v: %q then %q",
					once[i].ID, now, once[i].Status, twice[i].Status)
			}
		}
	}
}

// Statuses only ever advance under automatic evaluation; no sequence of
// ticks moves a player back toward eligible.
func TestEvaluate_Monotonic(t *testing.T) {
	expiry := t0.Add(eligibilityWindow)
	players := []roster.Player{
		{ID: "p1", Status: roster.StatusEligible, EligibilityExpiresAt: ts(expiry)},
	}

	ev := eval.New(inactivityWindow)
	prev := roster.StatusEligible.Rank()
	for hour := 0; hour <= 200; hour += 10 {
		out, _ := ev.Evaluate(players, t0.Add(time.Duration(hour)*time.Hour))
		r := out[0].Status.Rank()
		if r < prev {
			t.Fatalf("status regressed at t0+%dh: rank %d -> %d", hour, prev, r)
		}
		prev = r
		players = out
	}
	if players[0].Status != roster.StatusInactive {
		t.Errorf("final status = %q, want inactive", players[0].Status)
	}
}

func TestEvaluate_DoesNotMutateInput(t *testing.T) {
	p := roster.Player{ID: "p1", Status: roster.StatusEligible, EligibilityExpiresAt: ts(t0.Add(-time.Hour))}
	in := []roster.Player{p}

	ev := eval.New(inactivityWindow)
	out, _ := ev.Evaluate(in, t0)

	if in[0].Status != roster.StatusEligible {
		t.Error("input slice was mutated")
	}
	if out[0].Status != roster.StatusNotEligible {
		t.Errorf("output status = %q, want not_eligible", out[0].Status)
	}
}
