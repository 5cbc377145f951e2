// Package snapshot provides the "snapshot" store driver: the whole board
// state is serialized as one JSON document, mirrored into a durable local
// cache (sqlite or Postgres) and exportable as a URL-safe token. An
// externally supplied token wins over the cache on load.
package snapshot

import (
	"context"
	"database/sql"
	_ "embed"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/XSAM/otelsql"
	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq" // postgres cache backend
	semconv "go.opentelemetry.io/otel/semconv/v1.26.0"
	_ "modernc.org/sqlite" // sqlite cache backend

	"github.com/72rs3/Gamble-5k-board-tracker/internal/clock"
	"github.com/72rs3/Gamble-5k-board-tracker/internal/config"
	"github.com/72rs3/Gamble-5k-board-tracker/internal/roster"
	"github.com/72rs3/Gamble-5k-board-tracker/internal/store"
)

//go:embed migrations/001_initial.sql
var migrationSQL string

func init() {
	store.Register("snapshot", open)
}

// Store implements store.Adapter over a single-row SQL cache.
type Store struct {
	db  *sqlx.DB
	clk clock.Clock
}

// open is the store.Driver for the "snapshot" backend.
func open(ctx context.Context, cfg config.StoreConfig, clk clock.Clock) (store.Adapter, error) {
	db, err := Connect(ctx, cfg.Snapshot)
	if err != nil {
		return nil, err
	}
	if err := Migrate(ctx, db); err != nil {
		db.Close()
		return nil, err
	}

	s := &Store{db: db, clk: clk}

	// An externally supplied token takes precedence over the cache; a
	// token that fails to decode is ignored and the cache stands.
	if tok := cfg.Snapshot.ImportToken; tok != "" {
		if imported, decodeErr := Decode(tok); decodeErr == nil {
			if saveErr := s.Save(ctx, imported, store.ReplaceAllChange); saveErr != nil {
				db.Close()
				return nil, fmt.Errorf("mirroring imported token: %w", saveErr)
			}
		}
	}

	return s, nil
}

// Connect opens the configured cache backend with OTEL instrumentation.
func Connect(ctx context.Context, cfg config.SnapshotConfig) (*sqlx.DB, error) {
	var name, dsn string
	var attr = semconv.DBSystemPostgreSQL

	switch cfg.CacheDriver {
	case "sqlite":
		name = "sqlite"
		dsn = cfg.Path + "?_journal_mode=WAL&_busy_timeout=5000&_synchronous=NORMAL"
		attr = semconv.DBSystemSqlite
	case "postgres":
		name = "postgres"
		dsn = cfg.DSN()
	default:
		return nil, fmt.Errorf("unsupported snapshot cache driver %q", cfg.CacheDriver)
	}

	driverName, err := otelsql.Register(name, otelsql.WithAttributes(attr))
	if err != nil {
		return nil, fmt.Errorf("registering otel driver: %w", err)
	}

	db, err := sqlx.ConnectContext(ctx, driverName, dsn)
	if err != nil {
		return nil, fmt.Errorf("connecting to snapshot cache: %w", err)
	}
	return db, nil
}

// NewWithDB returns a Store over an existing connection (for testing).
func NewWithDB(db *sqlx.DB, clk clock.Clock) *Store {
	return &Store{db: db, clk: clk}
}

// Migrate applies the cache schema.
func Migrate(ctx context.Context, db *sqlx.DB) error {
	if _, err := db.ExecContext(ctx, migrationSQL); err != nil {
		return fmt.Errorf("applying snapshot cache migration: %w", err)
	}
	return nil
}

var _ store.Adapter = (*Store)(nil)

// Load returns the cached state. A missing or corrupt cache row falls
// back to an empty state rather than failing.
func (s *Store) Load(ctx context.Context) (*roster.State, error) {
	var data string
	err := s.db.GetContext(ctx, &data,
		s.db.Rebind(`SELECT data FROM board_state WHERE id = ?`), 1)
	if errors.Is(err, sql.ErrNoRows) {
		return roster.NewState(), nil
	}
	if err != nil {
		return nil, fmt.Errorf("loading snapshot cache: %w", err)
	}

	var state roster.State
	if err := json.Unmarshal([]byte(data), &state); err != nil {
		// Corrupt cache: start over rather than refusing to start.
		return roster.NewState(), nil
	}
	return &state, nil
}

// Save persists the whole state regardless of change; the snapshot
// strategy has no per-record writes.
func (s *Store) Save(ctx context.Context, state *roster.State, _ store.Change) error {
	data, err := json.Marshal(state)
	if err != nil {
		return fmt.Errorf("encoding state: %w", err)
	}

	query := s.db.Rebind(`INSERT INTO board_state (id, data, updated_at) VALUES (?, ?, ?)
		ON CONFLICT (id) DO UPDATE SET data = excluded.data, updated_at = excluded.updated_at`)
	if _, err := s.db.ExecContext(ctx, query, 1, string(data), s.clk.Now().UTC()); err != nil {
		return fmt.Errorf("writing snapshot cache: %w", err)
	}
	return nil
}

// AbortOnSaveError is false: the snapshot strategy keeps the in-memory
// mutation when the cache write fails, leaving memory and cache
// divergent until the next successful write.
func (s *Store) AbortOnSaveError() bool { return false }

// Ping checks the cache connection.
func (s *Store) Ping(ctx context.Context) error { return s.db.PingContext(ctx) }

// Close releases the cache connection.
func (s *Store) Close() error { return s.db.Close() }
