package store

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rushteam/phoenix/core"
)

func newRedis(t *testing.T) (*RedisStore, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	s, err := NewRedisStore(context.Background(), RedisConfig{Addr: mr.Addr(), KeyPrefix: "phoenix:"})
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s, mr
}

func TestStores_Contract(t *testing.T) {
	redisStore, _ := newRedis(t)
	mem := NewMemoryStore()
	defer mem.Close()

	for _, s := range []core.Store{mem, redisStore} {
		t.Run(s.Name(), func(t *testing.T) {
			ctx := context.Background()
			_, err := s.Get(ctx, "missing")
			require.Error(t, err)
			assert.True(t, core.IsStoreNotFound(err))

			require.NoError(t, s.Set(ctx, "k", []byte("v1")))
			got, err := s.Get(ctx, "k")
			require.NoError(t, err)
			assert.Equal(t, []byte("v1"), got)

			require.NoError(t, s.Set(ctx, "k", []byte("v2"), 60))
			got, err = s.Get(ctx, "k")
			require.NoError(t, err)
			assert.Equal(t, []byte("v2"), got)

			require.NoError(t, s.Delete(ctx, "k"))
			_, err = s.Get(ctx, "k")
			assert.ErrorIs(t, err, core.ErrStoreNotFound)
		})
	}
}

func TestRedisStore_PrefixAndTTL(t *testing.T) {
	s, mr := newRedis(t)
	ctx := context.Background()

	require.NoError(t, s.Set(ctx, "resp:1", []byte("x"), 5))
	assert.True(t, mr.Exists("phoenix:resp:1"))
	assert.Equal(t, 5*time.Second, mr.TTL("phoenix:resp:1"))

	mr.FastForward(6 * time.Second)
	_, err := s.Get(ctx, "resp:1")
	assert.True(t, core.IsStoreNotFound(err))
}

func TestMemoryStore_TTL(t *testing.T) {
	m := NewMemoryStore()
	defer m.Close()
	ctx := context.Background()

	require.NoError(t, m.Set(ctx, "a", []byte("1"), 1))
	require.NoError(t, m.Set(ctx, "b", []byte("2")))

	// 模拟时间流逝
	m.mu.Lock()
	m.data["a"].expire = time.Now().Add(-time.Second)
	m.mu.Unlock()

	_, err := m.Get(ctx, "a")
	assert.True(t, core.IsStoreNotFound(err))

	m.purge(time.Now())
	assert.Equal(t, 1, m.Len())
}

func TestMemoryStore_CopiesValues(t *testing.T) {
	m := NewMemoryStore()
	defer m.Close()
	ctx := context.Background()

	buf := []byte("abc")
	require.NoError(t, m.Set(ctx, "k", buf))
	buf[0] = 'z'
	got, err := m.Get(ctx, "k")
	require.NoError(t, err)
	assert.Equal(t, []byte("abc"), got)

	// Close 可重复调用
	require.NoError(t, m.Close())
}

func TestNew(t *testing.T) {
	s, err := New(context.Background(), Config{})
	require.NoError(t, err)
	assert.Equal(t, "memory", s.Name())
	_ = s.Close()

	_, err = New(context.Background(), Config{Type: "cassandra"})
	assert.True(t, core.IsNotSupported(err))

	_, err = New(context.Background(), Config{Type: "redis", Redis: RedisConfig{Addr: "127.0.0.1:1"}})
	assert.True(t, core.IsUnavailable(err))
}
