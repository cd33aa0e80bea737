package redis

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/MrSnakeDoc/mlvd/internal/store"
)

func newTestStore(t *testing.T, prefix string) (*Store, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return NewStore(client, prefix), mr
}

func TestLoadEmpty(t *testing.T) {
	s, _ := newTestStore(t, "")
	_, err := s.Load(context.Background())
	assert.True(t, errors.Is(err, store.ErrNotFound))
	assert.True(t, errors.Is(s.Touch(context.Background(), time.Now()), store.ErrNotFound))
}

func TestSaveLoad(t *testing.T) {
	ctx := context.Background()
	s, mr := newTestStore(t, "")
	mod := time.Unix(1_760_000_000, 123)

	require.NoError(t, s.Save(ctx, store.Entry{Body: []byte(`[{"hostname":"a"}]`), ETag: `W/"xyz"`, ModTime: mod}))

	e, err := s.Load(ctx)
	require.NoError(t, err)
	assert.Equal(t, `[{"hostname":"a"}]`, string(e.Body))
	assert.Equal(t, `W/"xyz"`, e.ETag)
	assert.True(t, e.ModTime.Equal(mod))

	got, err := mr.Get(BodyKey(DefaultKeyPrefix))
	require.NoError(t, err)
	assert.Equal(t, `[{"hostname":"a"}]`, got)
}

func TestTouchKeepsBody(t *testing.T) {
	ctx := context.Background()
	s, mr := newTestStore(t, "test:")
	require.NoError(t, s.Save(ctx, store.Entry{Body: []byte("body"), ETag: "abc", ModTime: time.Unix(10, 0)}))

	now := time.Unix(20, 0)
	require.NoError(t, s.Touch(ctx, now))

	e, err := s.Load(ctx)
	require.NoError(t, err)
	assert.True(t, e.ModTime.Equal(now))
	assert.Equal(t, "body", string(e.Body))
	assert.Equal(t, "abc", e.ETag)
	assert.True(t, mr.Exists("test:body"))
}

func TestLoadInvalidModTime(t *testing.T) {
	s, mr := newTestStore(t, "")
	require.NoError(t, mr.Set(BodyKey(DefaultKeyPrefix), "body"))
	require.NoError(t, mr.Set(ModTimeKey(DefaultKeyPrefix), "yesterday"))

	_, err := s.Load(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "yesterday")
}

func TestLoadServerDown(t *testing.T) {
	s, mr := newTestStore(t, "")
	mr.Close()

	_, err := s.Load(context.Background())
	require.Error(t, err)
	assert.False(t, errors.Is(err, store.ErrNotFound))
}
