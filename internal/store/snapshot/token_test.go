package snapshot_test

import (
	"encoding/base64"
	"errors"
	"testing"
	"time"

	"github.com/72rs3/Gamble-5k-board-tracker/internal/roster"
	"github.com/72rs3/Gamble-5k-board-tracker/internal/store/snapshot"
)

var tokenT0 = time.Date(2024, 5, 10, 12, 0, 0, 0, time.UTC)

func sampleState() *roster.State {
	last := tokenT0
	exp := tokenT0.Add(72 * time.Hour)
	return &roster.State{
		Players: []roster.Player{
			{ID: "player_aa11bb22", Name: "Ana", LastPlayed: &last, EligibilityExpiresAt: &exp, Status: roster.StatusEligible},
			{ID: "player_cc33dd44", Name: "Bo", Status: roster.StatusNotEligible},
		},
		History: []roster.HistoryEntry{
			{ID: "hist_0001", PlayerName: "Ana", Action: "marked as played", Timestamp: tokenT0},
		},
	}
}

func TestTokenRoundTrip(t *testing.T) {
	state := sampleState()

	tok, err := snapshot.Encode(state)
	if err != nil {
		t.Fatalf("Encode() error = %v", err)
	}

	got, err := snapshot.Decode(tok)
	if err != nil {
		t.Fatalf("Decode() error = %v", err)
	}

	if len(got.Players) != len(state.Players) {
		t.Fatalf("players = %d, want %d", len(got.Players), len(state.Players))
	}
	for i, p := range state.Players {
		g := got.Players[i]
		if g.ID != p.ID || g.Name != p.Name || g.Status != p.Status {
			t.Errorf("player[%d] = %+v, want %+v", i, g, p)
		}
		if (g.LastPlayed == nil) != (p.LastPlayed == nil) {
			t.Errorf("player[%d] lastPlayed presence mismatch", i)
		}
		if p.EligibilityExpiresAt != nil && !g.EligibilityExpiresAt.Equal(*p.EligibilityExpiresAt) {
			t.Errorf("player[%d] expiry = %v, want %v", i, g.EligibilityExpiresAt, p.EligibilityExpiresAt)
		}
	}
	if len(got.History) != 1 || got.History[0].Action != "marked as played" {
		t.Errorf("history = %+v", got.History)
	}
}

func TestTokenRoundTrip_EmptyState(t *testing.T) {
	tok, err := snapshot.Encode(roster.NewState())
	if err != nil {
		t.Fatalf("Encode() error = %v", err)
	}
	got, err := snapshot.Decode(tok)
	if err != nil {
		t.Fatalf("Decode() error = %v", err)
	}
	if len(got.Players) != 0 || len(got.History) != 0 {
		t.Errorf("decoded empty state = %+v", got)
	}
}

func TestDecode_Invalid(t *testing.T) {
	b64 := func(s string) string { return base64.RawURLEncoding.EncodeToString([]byte(s)) }

	tests := []struct {
		name  string
		token string
	}{
		{name: "not base64", token: "%%%not-base64%%%"},
		{name: "not json", token: b64("hello world")},
		{name: "truncated json", token: b64(`{"players":[{"id":"x"`)},
		{name: "missing players", token: b64(`{"historyLog":[]}`)},
		{name: "missing history", token: b64(`{"players":[]}`)},
		{name: "players not a sequence", token: b64(`{"players":{},"historyLog":[]}`)},
		{name: "players null", token: b64(`{"players":null,"historyLog":[]}`)},
		{name: "history not a sequence", token: b64(`{"players":[],"historyLog":"nope"}`)},
		{name: "empty", token: ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := snapshot.Decode(tt.token)
			if !errors.Is(err, snapshot.ErrBadToken) {
				t.Errorf("Decode(%q) error = %v, want ErrBadToken", tt.token, err)
			}
		})
	}
}
