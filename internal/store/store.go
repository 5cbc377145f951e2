// Package store abstracts durable persistence of the board state behind
// interchangeable drivers selected by configuration.
package store

import (
	"context"

	"github.com/72rs3/Gamble-5k-board-tracker/internal/roster"
)

// Change describes what a mutation touched, so per-record backends can
// write only the affected records instead of the whole state. A zero
// Change tells the backend nothing was narrowed down; ReplaceAll forces
// a full rewrite.
type Change struct {
	// UpsertPlayers are players created or modified by the operation.
	UpsertPlayers []roster.Player
	// DeletePlayerIDs are players removed by the operation.
	DeletePlayerIDs []string
	// NewHistory are history entries appended by the operation,
	// newest first.
	NewHistory []roster.HistoryEntry
	// ReplaceAll signals a full-state rewrite: every existing record is
	// replaced by the contents of the state being saved. Bulk operations
	// set this so backends can issue one atomic batch.
	ReplaceAll bool
}

// ReplaceAllChange is the Change used for bulk operations and imports.
var ReplaceAllChange = Change{ReplaceAll: true}

// Adapter is a persistence strategy for the board state.
type Adapter interface {
	// Load returns the persisted state, or an empty state when nothing
	// has been persisted yet.
	Load(ctx context.Context) (*roster.State, error)
	// Save persists state. Per-record backends use change to narrow the
	// write; snapshot backends persist the whole state regardless.
	Save(ctx context.Context, state *roster.State, change Change) error
	// AbortOnSaveError reports the driver's write-failure policy: true
	// means a failed Save must discard the in-memory mutation (the
	// operation aborts whole); false means the mutation is kept and the
	// error only surfaced, leaving memory and storage divergent until
	// the next successful write.
	AbortOnSaveError() bool
	// Ping checks the underlying connection health.
	Ping(ctx context.Context) error
	// Close releases underlying resources.
	Close() error
}

// Watcher is implemented by drivers that can push state changes made by
// other clients. Watch invokes fn with a fresh state after each remote
// change until ctx is cancelled.
type Watcher interface {
	Watch(ctx context.Context, fn func(*roster.State)) error
}
