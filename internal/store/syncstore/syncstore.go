// Package syncstore provides the "redis" store driver: every player and
// history entry is an individually addressable record, mutations write
// only the affected records in one atomic batch, and a pub/sub channel
// streams change messages to other clients.
//
// Multiple clients each evaluate independently; when two race on a
// status write the later write wins. That is an accepted property of
// this strategy, not a defect.
package syncstore

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/72rs3/Gamble-5k-board-tracker/internal/clock"
	"github.com/72rs3/Gamble-5k-board-tracker/internal/config"
	"github.com/72rs3/Gamble-5k-board-tracker/internal/roster"
	"github.com/72rs3/Gamble-5k-board-tracker/internal/store"
)

func init() {
	store.Register("redis", open)
}

// Store implements store.Adapter and store.Watcher over Redis.
type Store struct {
	client *redis.Client
}

// open is the store.Driver for the "redis" backend.
func open(ctx context.Context, cfg config.StoreConfig, _ clock.Clock) (store.Adapter, error) {
	return New(cfg.Redis)
}

// New connects to Redis and verifies the connection.
func New(cfg config.RedisConfig) (*Store, error) {
	opts, err := redis.ParseURL(cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("parsing redis url: %w", err)
	}
	opts.PoolSize = cfg.PoolSize
	opts.MinIdleConns = cfg.MinIdleConns

	client := redis.NewClient(opts)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("pinging redis: %w", err)
	}

	return &Store{client: client}, nil
}

// NewWithClient returns a Store over an existing client (for testing).
func NewWithClient(client *redis.Client) *Store {
	return &Store{client: client}
}

var (
	_ store.Adapter = (*Store)(nil)
	_ store.Watcher = (*Store)(nil)
)

// Load reads every player record plus the capped history list. Redis
// sets carry no order, so players come back in canonical board order.
func (s *Store) Load(ctx context.Context) (*roster.State, error) {
	ids, err := s.client.SMembers(ctx, playersIndexKey()).Result()
	if err != nil {
		return nil, fmt.Errorf("reading player index: %w", err)
	}

	state := roster.NewState()

	if len(ids) > 0 {
		keys := make([]string, len(ids))
		for i, id := range ids {
			keys[i] = playerKey(id)
		}
		values, err := s.client.MGet(ctx, keys...).Result()
		if err != nil {
			return nil, fmt.Errorf("reading player records: %w", err)
		}
		for _, val := range values {
			if val == nil {
				continue // record deleted between index read and MGET
			}
			var p roster.Player
			if err := json.Unmarshal([]byte(val.(string)), &p); err != nil {
				continue // skip corrupt record
			}
			state.Players = append(state.Players, p)
		}
		roster.SortPlayers(state.Players)
	}

	raw, err := s.client.LRange(ctx, historyKey(), 0, roster.MaxHistory-1).Result()
	if err != nil {
		return nil, fmt.Errorf("reading history: %w", err)
	}
	for _, item := range raw {
		var e roster.HistoryEntry
		if err := json.Unmarshal([]byte(item), &e); err != nil {
			continue
		}
		state.History = append(state.History, e)
	}

	return state, nil
}

// Save writes the records named by change in one atomic batch and
// publishes a change message per record. ReplaceAll rewrites everything,
// which is how bulk operations stay all-or-nothing for observers.
func (s *Store) Save(ctx context.Context, state *roster.State, change store.Change) error {
	if change.ReplaceAll {
		return s.replaceAll(ctx, state)
	}

	_, err := s.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		for _, p := range change.UpsertPlayers {
			data, err := json.Marshal(p)
			if err != nil {
				return fmt.Errorf("encoding player %s: %w", p.ID, err)
			}
			pipe.Set(ctx, playerKey(p.ID), data, 0)
			pipe.SAdd(ctx, playersIndexKey(), p.ID)
			pipe.Publish(ctx, changeChannel(), "player:"+p.ID)
		}
		for _, id := range change.DeletePlayerIDs {
			pipe.Del(ctx, playerKey(id))
			pipe.SRem(ctx, playersIndexKey(), id)
			pipe.Publish(ctx, changeChannel(), "player-del:"+id)
		}
		if len(change.NewHistory) > 0 {
			// Entries arrive newest first; LPUSH in reverse so the head
			// of the list stays the newest entry.
			for i := len(change.NewHistory) - 1; i >= 0; i-- {
				data, err := json.Marshal(change.NewHistory[i])
				if err != nil {
					return fmt.Errorf("encoding history entry: %w", err)
				}
				pipe.LPush(ctx, historyKey(), data)
			}
			pipe.LTrim(ctx, historyKey(), 0, roster.MaxHistory-1)
			pipe.Publish(ctx, changeChannel(), "history")
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("writing records: %w", err)
	}
	return nil
}

// replaceAll wipes every record and rewrites the given state atomically.
func (s *Store) replaceAll(ctx context.Context, state *roster.State) error {
	existing, err := s.client.SMembers(ctx, playersIndexKey()).Result()
	if err != nil {
		return fmt.Errorf("reading player index: %w", err)
	}

	_, err = s.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		for _, id := range existing {
			pipe.Del(ctx, playerKey(id))
		}
		pipe.Del(ctx, playersIndexKey())
		pipe.Del(ctx, historyKey())

		for _, p := range state.Players {
			data, err := json.Marshal(p)
			if err != nil {
				return fmt.Errorf("encoding player %s: %w", p.ID, err)
			}
			pipe.Set(ctx, playerKey(p.ID), data, 0)
			pipe.SAdd(ctx, playersIndexKey(), p.ID)
		}
		// RPUSH in order keeps the newest-first ordering of the slice.
		for _, e := range state.History {
			data, err := json.Marshal(e)
			if err != nil {
				return fmt.Errorf("encoding history entry: %w", err)
			}
			pipe.RPush(ctx, historyKey(), data)
		}
		pipe.LTrim(ctx, historyKey(), 0, roster.MaxHistory-1)
		pipe.Publish(ctx, changeChannel(), "state")
		return nil
	})
	if err != nil {
		return fmt.Errorf("rewriting records: %w", err)
	}
	return nil
}

// Watch subscribes to the change channel and delivers a freshly loaded
// state to fn after every remote change, until ctx is cancelled.
func (s *Store) Watch(ctx context.Context, fn func(*roster.State)) error {
	sub := s.client.Subscribe(ctx, changeChannel())
	if _, err := sub.Receive(ctx); err != nil {
		return fmt.Errorf("subscribing to change channel: %w", err)
	}

	ch := sub.Channel()
	go func() {
		defer sub.Close()
		for {
			select {
			case <-ctx.Done():
				return
			case _, ok := <-ch:
				if !ok {
					return
				}
				state, err := s.Load(ctx)
				if err != nil {
					continue
				}
				fn(state)
			}
		}
	}()
	return nil
}

// AbortOnSaveError is true: a failed batch aborts the whole operation,
// the in-memory mutation is discarded.
func (s *Store) AbortOnSaveError() bool { return true }

// Ping checks the Redis connection.
func (s *Store) Ping(ctx context.Context) error { return s.client.Ping(ctx).Err() }

// Close closes the Redis connection.
func (s *Store) Close() error { return s.client.Close() }
