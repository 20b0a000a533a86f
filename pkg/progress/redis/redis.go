// Package redis shares progress snapshots between server instances through
// Redis.
package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	goredis "github.com/redis/go-redis/v9"

	"github.com/papercomputeco/parley/pkg/broadcast"
	"github.com/papercomputeco/parley/pkg/progress"
)

const (
	keyPrefix  = "parley:progress:"
	maxRetries = 10
)

// Config configures a Store.
type Config struct {
	Addr     string
	Password string
	DB       int
	TTL      time.Duration
}

// Store keeps each snapshot as a JSON value with a TTL. Updates use an
// optimistic WATCH/MULTI transaction so concurrent writers never lose events.
type Store struct {
	client *goredis.Client
	ttl    time.Duration
}

var _ progress.Store = (*Store)(nil)

// NewStore connects to Redis and checks the connection.
func NewStore(ctx context.Context, cfg Config) (*Store, error) {
	if cfg.TTL <= 0 {
		cfg.TTL = progress.DefaultTTL
	}

	client := goredis.NewClient(&goredis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("connect to redis at %s: %w", cfg.Addr, err)
	}

	return &Store{client: client, ttl: cfg.TTL}, nil
}

func key(requestID string) string {
	return keyPrefix + requestID
}

func (s *Store) Apply(ctx context.Context, event broadcast.Event) error {
	k := key(event.RequestID)

	txf := func(tx *goredis.Tx) error {
		var snap progress.Snapshot
		raw, err := tx.Get(ctx, k).Bytes()
		switch {
		case errors.Is(err, goredis.Nil):
		case err != nil:
			return err
		default:
			if err := json.Unmarshal(raw, &snap); err != nil {
				return fmt.Errorf("decode snapshot: %w", err)
			}
		}

		snap.Apply(event)
		data, err := json.Marshal(snap)
		if err != nil {
			return fmt.Errorf("encode snapshot: %w", err)
		}

		_, err = tx.TxPipelined(ctx, func(pipe goredis.Pipeliner) error {
			pipe.Set(ctx, k, data, s.ttl)
			return nil
		})
		return err
	}

	for range maxRetries {
		err := s.client.Watch(ctx, txf, k)
		if errors.Is(err, goredis.TxFailedErr) {
			continue
		}
		if err != nil {
			return fmt.Errorf("apply progress event: %w", err)
		}
		return nil
	}
	return fmt.Errorf("apply progress event: %d conflicting updates", maxRetries)
}

func (s *Store) Get(ctx context.Context, requestID string) (*progress.Snapshot, error) {
	raw, err := s.client.Get(ctx, key(requestID)).Bytes()
	if errors.Is(err, goredis.Nil) {
		return nil, progress.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get progress: %w", err)
	}

	var snap progress.Snapshot
	if err := json.Unmarshal(raw, &snap); err != nil {
		return nil, fmt.Errorf("decode snapshot: %w", err)
	}
	return &snap, nil
}

func (s *Store) Close() error {
	return s.client.Close()
}
