package notify_test

import (
	"context"
	"log/slog"
	"testing"
	"time"

	"github.com/72rs3/Gamble-5k-board-tracker/internal/notify"
	"github.com/72rs3/Gamble-5k-board-tracker/internal/roster"
)

var now = time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)

// recordingNotifier captures dispatched alerts and optionally fails.
type recordingNotifier struct {
	sent []notify.Alert
	err  error
}

func (n *recordingNotifier) Notify(_ context.Context, a notify.Alert) error {
	n.sent = append(n.sent, a)
	return n.err
}

func eligiblePlayer(id, name string, expiresIn time.Duration) roster.Player {
	exp := now.Add(expiresIn)
	return roster.Player{ID: id, Name: name, Status: roster.StatusEligible, EligibilityExpiresAt: &exp}
}

func TestAlerts_WindowBoundaries(t *testing.T) {
	tracker := notify.NewTracker(24*time.Hour, nil, slog.Default())

	tests := []struct {
		name      string
		player    roster.Player
		wantAlert bool
	}{
		{
			name:      "inside window",
			player:    eligiblePlayer("p1", "Ana", 12*time.Hour),
			wantAlert: true,
		},
		{
			name:      "exactly at window edge",
			player:    eligiblePlayer("p2", "Bo", 24*time.Hour),
			wantAlert: true,
		},
		{
			name:      "just beyond window",
			player:    eligiblePlayer("p3", "Cam", 24*time.Hour+time.Minute),
			wantAlert: false,
		},
		{
			name:      "expires exactly now",
			player:    eligiblePlayer("p4", "Dee", 0),
			wantAlert: false,
		},
		{
			name:      "already expired",
			player:    eligiblePlayer("p5", "Eli", -time.Hour),
			wantAlert: false,
		},
		{
			name:      "not eligible",
			player:    roster.Player{ID: "p6", Name: "Fay", Status: roster.StatusNotEligible},
			wantAlert: false,
		},
		{
			name:      "eligible without expiry",
			player:    roster.Player{ID: "p7", Name: "Gil", Status: roster.StatusEligible},
			wantAlert: false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			alerts := tracker.Alerts([]roster.Player{tt.player}, now)
			if got := len(alerts) == 1; got != tt.wantAlert {
				t.Errorf("alerts = %+v, wantAlert %v", alerts, tt.wantAlert)
			}
		})
	}
}

func TestAlerts_SortedBySoonest(t *testing.T) {
	tracker := notify.NewTracker(24*time.Hour, nil, slog.Default())

	alerts := tracker.Alerts([]roster.Player{
		eligiblePlayer("p1", "Late", 20*time.Hour),
		eligiblePlayer("p2", "Soon", 2*time.Hour),
		eligiblePlayer("p3", "Mid", 10*time.Hour),
	}, now)

	if len(alerts) != 3 {
		t.Fatalf("alerts = %d, want 3", len(alerts))
	}
	want := []string{"Soon", "Mid", "Late"}
	for i, name := range want {
		if alerts[i].PlayerName != name {
			t.Errorf("alerts[%d] = %q, want %q", i, alerts[i].PlayerName, name)
		}
	}
}

func TestScan_FiresOncePerCrossing(t *testing.T) {
	rec := &recordingNotifier{}
	tracker := notify.NewTracker(24*time.Hour, rec, slog.Default())
	ctx := context.Background()

	players := []roster.Player{eligiblePlayer("p1", "Ana", 12*time.Hour)}

	tracker.Scan(ctx, players, now)
	tracker.Scan(ctx, players, now.Add(time.Minute))
	tracker.Scan(ctx, players, now.Add(2*time.Minute))

	if len(rec.sent) != 1 {
		t.Fatalf("notifications = %d, want exactly 1", len(rec.sent))
	}
	if rec.sent[0].PlayerName != "Ana" {
		t.Errorf("notified %q, want Ana", rec.sent[0].PlayerName)
	}
}

func TestScan_RearmsAfterConditionClears(t *testing.T) {
	rec := &recordingNotifier{}
	tracker := notify.NewTracker(24*time.Hour, rec, slog.Default())
	ctx := context.Background()

	inWindow := []roster.Player{eligiblePlayer("p1", "Ana", 12*time.Hour)}
	tracker.Scan(ctx, inWindow, now)

	// Condition clears: the player gets marked as played again and the
	// new expiry is outside the window.
	cleared := []roster.Player{eligiblePlayer("p1", "Ana", 72*time.Hour)}
	tracker.Scan(ctx, cleared, now)

	// The expiry approaches once more: a second crossing, a second alert.
	tracker.Scan(ctx, inWindow, now)

	if len(rec.sent) != 2 {
		t.Errorf("notifications = %d, want 2 (one per crossing)", len(rec.sent))
	}
}

func TestScan_DeletedPlayerDropsDedupEntry(t *testing.T) {
	rec := &recordingNotifier{}
	tracker := notify.NewTracker(24*time.Hour, rec, slog.Default())
	ctx := context.Background()

	players := []roster.Player{eligiblePlayer("p1", "Ana", 12*time.Hour)}
	tracker.Scan(ctx, players, now)

	// Player removed from the board; the scan sees no trace of it.
	tracker.Scan(ctx, nil, now)

	// A new player reusing the same id is a fresh crossing.
	tracker.Scan(ctx, players, now)

	if len(rec.sent) != 2 {
		t.Errorf("notifications = %d, want 2", len(rec.sent))
	}
}

func TestScan_PermissionDeniedStillMarksAndReturnsAlerts(t *testing.T) {
	rec := &recordingNotifier{err: notify.ErrPermissionDenied}
	tracker := notify.NewTracker(24*time.Hour, rec, slog.Default())
	ctx := context.Background()

	players := []roster.Player{eligiblePlayer("p1", "Ana", 12*time.Hour)}

	alerts := tracker.Scan(ctx, players, now)
	if len(alerts) != 1 {
		t.Fatalf("alerts = %d, want 1 despite denied channel", len(alerts))
	}

	// No retry storm: the crossing counts even though dispatch failed.
	tracker.Scan(ctx, players, now)
	if len(rec.sent) != 1 {
		t.Errorf("dispatch attempts = %d, want 1", len(rec.sent))
	}
}

func TestScan_NilNotifierIsNoop(t *testing.T) {
	tracker := notify.NewTracker(24*time.Hour, nil, slog.Default())

	alerts := tracker.Scan(context.Background(), []roster.Player{
		eligiblePlayer("p1", "Ana", time.Hour),
	}, now)
	if len(alerts) != 1 {
		t.Errorf("alerts = %d, want 1", len(alerts))
	}
}

func TestSetNotifier_SwapsChannel(t *testing.T) {
	first := &recordingNotifier{}
	tracker := notify.NewTracker(24*time.Hour, first, slog.Default())
	ctx := context.Background()

	tracker.Scan(ctx, []roster.Player{eligiblePlayer("p1", "Ana", time.Hour)}, now)

	second := &recordingNotifier{}
	tracker.SetNotifier(second)
	tracker.Scan(ctx, []roster.Player{eligiblePlayer("p2", "Bo", time.Hour)}, now)

	if len(first.sent) != 1 || len(second.sent) != 1 {
		t.Errorf("first = %d, second = %d, want 1 and 1", len(first.sent), len(second.sent))
	}
}
