// Package redis keeps the relay directory cache in Redis so that several
// hosts can share one copy.
package redis

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/MrSnakeDoc/mlvd/internal/store"
)

// Store handles Redis operations for the directory cache
type Store struct {
	client *redis.Client
	prefix string
}

var _ store.Store = (*Store)(nil)

// NewStore creates a new Redis store. An empty prefix uses DefaultKeyPrefix.
func NewStore(client *redis.Client, prefix string) *Store {
	if prefix == "" {
		prefix = DefaultKeyPrefix
	}
	return &Store{
		client: client,
		prefix: prefix,
	}
}

// Load reads body, validator and modification time in one round trip.
func (s *Store) Load(ctx context.Context) (store.Entry, error) {
	vals, err := s.client.MGet(ctx, BodyKey(s.prefix), ETagKey(s.prefix), ModTimeKey(s.prefix)).Result()
	if err != nil {
		return store.Entry{}, fmt.Errorf("failed to load cached directory: %w", err)
	}
	if len(vals) != 3 || vals[0] == nil {
		return store.Entry{}, store.ErrNotFound
	}

	e := store.Entry{Body: []byte(asString(vals[0])), ETag: asString(vals[1])}
	if raw := asString(vals[2]); raw != "" {
		nanos, err := strconv.ParseInt(raw, 10, 64)
		if err != nil {
			return store.Entry{}, fmt.Errorf("invalid modification time %q in %s: %w", raw, ModTimeKey(s.prefix), err)
		}
		e.ModTime = time.Unix(0, nanos)
	}
	return e, nil
}

// Save writes body, validator and modification time in a MULTI/EXEC block.
func (s *Store) Save(ctx context.Context, e store.Entry) error {
	_, err := s.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Set(ctx, BodyKey(s.prefix), e.Body, 0)
		pipe.Set(ctx, ETagKey(s.prefix), e.ETag, 0)
		pipe.Set(ctx, ModTimeKey(s.prefix), e.ModTime.UnixNano(), 0)
		return nil
	})
	if err != nil {
		return fmt.Errorf("failed to save cached directory: %w", err)
	}
	return nil
}

// Touch updates the modification time if an entry exists.
func (s *Store) Touch(ctx context.Context, t time.Time) error {
	ok, err := s.client.SetXX(ctx, ModTimeKey(s.prefix), t.UnixNano(), 0).Result()
	if err != nil {
		return fmt.Errorf("failed to touch cached directory: %w", err)
	}
	if !ok {
		return store.ErrNotFound
	}
	return nil
}

func asString(v interface{}) string {
	if s, ok := v.(string); ok {
		return s
	}
	return ""
}
