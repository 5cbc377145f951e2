package snapshot

import (
	"bytes"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/72rs3/Gamble-5k-board-tracker/internal/roster"
)

// ErrBadToken marks a snapshot token that could not be decoded. Callers
// fall back to the local cache, then to an empty state; it is never fatal.
var ErrBadToken = errors.New("malformed snapshot token")

// Encode serializes the full state into a URL-safe text token suitable
// for embedding in a shareable locator.
func Encode(state *roster.State) (string, error) {
	// Normalize nil slices so the decoded shape always carries sequences.
	s := *state
	if s.Players == nil {
		s.Players = []roster.Player{}
	}
	if s.History == nil {
		s.History = []roster.HistoryEntry{}
	}
	data, err := json.Marshal(&s)
	if err != nil {
		return "", fmt.Errorf("encoding state: %w", err)
	}
	return base64.RawURLEncoding.EncodeToString(data), nil
}

// Decode reverses Encode. The token must carry a JSON object whose
// players and historyLog fields are present and are sequences; anything
// else is rejected as ErrBadToken.
func Decode(token string) (*roster.State, error) {
	data, err := base64.RawURLEncoding.DecodeString(strings.TrimSpace(token))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrBadToken, err)
	}

	var shape struct {
		Players json.RawMessage `json:"players"`
		History json.RawMessage `json:"historyLog"`
	}
	if err := json.Unmarshal(data, &shape); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrBadToken, err)
	}
	if !isJSONArray(shape.Players) || !isJSONArray(shape.History) {
		return nil, fmt.Errorf("%w: players and historyLog must be sequences", ErrBadToken)
	}

	var state roster.State
	if err := json.Unmarshal(data, &state); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrBadToken, err)
	}
	return &state, nil
}

func isJSONArray(raw json.RawMessage) bool {
	trimmed := bytes.TrimSpace(raw)
	return len(trimmed) > 0 && trimmed[0] == '['
}
