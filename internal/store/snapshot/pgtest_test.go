package snapshot_test

import (
	"context"
	"os"
	"path/filepath"
	"runtime"
	"testing"
	"time"

	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"
	"github.com/testcontainers/testcontainers-go"
	tcpostgres "github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"

	"github.com/72rs3/Gamble-5k-board-tracker/internal/roster"
	"github.com/72rs3/Gamble-5k-board-tracker/internal/store"
	"github.com/72rs3/Gamble-5k-board-tracker/internal/store/snapshot"
)

// newTestDB starts a Postgres container, applies the migration, and returns
// a connected *sqlx.DB. The container is automatically terminated when the
// test ends.
func newTestDB(t *testing.T) *sqlx.DB {
	t.Helper()
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}

	ctx := context.Background()

	// Locate migration file relative to this source file.
	_, thisFile, _, _ := runtime.Caller(0)
	migrationDir := filepath.Join(filepath.Dir(thisFile), "migrations")

	migrationSQL, err := os.ReadFile(filepath.Join(migrationDir, "001_initial.sql"))
	if err != nil {
		t.Fatalf("reading migration: %v", err)
	}

	ctr, err := tcpostgres.Run(ctx, "postgres:16-alpine",
		tcpostgres.WithDatabase("boardbot_test"),
		tcpostgres.WithUsername("test"),
		tcpostgres.WithPassword("test"),
		testcontainers.WithWaitStrategy(
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(30*time.Second),
		),
	)
	testcontainers.CleanupContainer(t, ctr)
	if err != nil {
		t.Fatalf("starting postgres container: %v", err)
	}

	connStr, err := ctr.ConnectionString(ctx, "sslmode=disable")
	if err != nil {
		t.Fatalf("getting connection string: %v", err)
	}

	db, err := sqlx.Connect("postgres", connStr)
	if err != nil {
		t.Fatalf("connecting to test database: %v", err)
	}
	t.Cleanup(func() { db.Close() })

	// Apply migration.
	if _, err := db.ExecContext(ctx, string(migrationSQL)); err != nil {
		t.Fatalf("applying migration: %v", err)
	}

	return db
}

func TestPostgresCache_SaveAndLoad(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()

	s := snapshot.NewWithDB(db, testClock)

	state, err := s.Load(ctx)
	if err != nil {
		t.Fatalf("Load() on empty cache error = %v", err)
	}
	if len(state.Players) != 0 {
		t.Fatalf("expected empty state, got %d players", len(state.Players))
	}

	if err := s.Save(ctx, sampleState(), store.Change{}); err != nil {
		t.Fatalf("Save() error = %v", err)
	}

	loaded, err := s.Load(ctx)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if len(loaded.Players) != 2 {
		t.Fatalf("players = %d, want 2", len(loaded.Players))
	}
	if loaded.Players[0].Status != roster.StatusEligible {
		t.Errorf("player[0].Status = %q, want eligible", loaded.Players[0].Status)
	}

	// Second save overwrites the single document row.
	if err := s.Save(ctx, roster.NewState(), store.Change{}); err != nil {
		t.Fatalf("second Save() error = %v", err)
	}
	loaded, err = s.Load(ctx)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if len(loaded.Players) != 0 {
		t.Errorf("expected overwrite to empty, got %d players", len(loaded.Players))
	}
}

func TestPostgresCache_Ping(t *testing.T) {
	db := newTestDB(t)
	s := snapshot.NewWithDB(db, testClock)
	if err := s.Ping(context.Background()); err != nil {
		t.Errorf("Ping() error = %v", err)
	}
}
