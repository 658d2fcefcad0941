package session

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newRedisStore(t *testing.T) (*RedisStore, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })
	return NewRedisStore(client), mr
}

// storeContract runs the behaviour every Store must share.
func storeContract(t *testing.T, store Store) {
	ctx := context.Background()
	now := time.Now()

	rec := Record{ID: "abc", PrincipalID: 42, IssuedAt: now, ExpiresAt: now.Add(time.Hour)}
	require.NoError(t, store.Save(ctx, rec))

	got, err := store.Get(ctx, "abc")
	require.NoError(t, err)
	assert.Equal(t, int64(42), got.PrincipalID)
	assert.WithinDuration(t, rec.ExpiresAt, got.ExpiresAt, time.Millisecond)

	_, err = store.Get(ctx, "missing")
	assert.ErrorIs(t, err, ErrNoSession)

	require.NoError(t, store.Delete(ctx, "abc"))
	_, err = store.Get(ctx, "abc")
	assert.ErrorIs(t, err, ErrNoSession)

	assert.NoError(t, store.Delete(ctx, "abc"), "deleting twice is fine")
}

func TestMemoryStore(t *testing.T) {
	storeContract(t, NewMemoryStore())
}

func TestMemoryStore_LazyExpiry(t *testing.T) {
	store := NewMemoryStore()
	clock := &fakeClock{t: time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)}
	store.now = clock.Now
	ctx := context.Background()

	rec := Record{ID: "s1", PrincipalID: 1, IssuedAt: clock.t, ExpiresAt: clock.t.Add(time.Minute)}
	require.NoError(t, store.Save(ctx, rec))

	clock.Advance(time.Minute)
	_, err := store.Get(ctx, "s1")
	assert.ErrorIs(t, err, ErrNoSession)
	assert.Equal(t, 0, store.Len())
}

func TestMemoryStore_Sweep(t *testing.T) {
	store := NewMemoryStore()
	clock := &fakeClock{t: time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)}
	store.now = clock.Now
	ctx := context.Background()

	for i, ttl := range []time.Duration{time.Minute, time.Minute, time.Hour} {
		id := string(rune('a' + i))
		require.NoError(t, store.Save(ctx, Record{ID: id, PrincipalID: int64(i), IssuedAt: clock.t, ExpiresAt: clock.t.Add(ttl)}))
	}

	assert.Equal(t, 0, store.Sweep(), "nothing has expired yet")

	clock.Advance(2 * time.Minute)
	assert.Equal(t, 2, store.Sweep())
	assert.Equal(t, 1, store.Len())

	_, err := store.Get(ctx, "c")
	assert.NoError(t, err, "live records survive a sweep")
}

// Records that are never read again still leave the map.
func TestMemoryStore_SweeperPurgesAbandonedSessions(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()

	past := time.Now().Add(-time.Second)
	for i := 0; i < 10; i++ {
		id := string(rune('a' + i))
		require.NoError(t, store.Save(ctx, Record{ID: id, PrincipalID: int64(i), ExpiresAt: past}))
	}
	require.NoError(t, store.Save(ctx, Record{ID: "live", PrincipalID: 99, ExpiresAt: time.Now().Add(time.Hour)}))

	store.StartSweeper(5 * time.Millisecond)
	t.Cleanup(func() { store.Close() })

	require.Eventually(t, func() bool { return store.Len() == 1 }, time.Second, 5*time.Millisecond)
}

func TestMemoryStore_Close(t *testing.T) {
	t.Run("without a sweeper", func(t *testing.T) {
		store := NewMemoryStore()
		assert.NoError(t, store.Close())
		assert.NoError(t, store.Close())
	})

	t.Run("stops the sweeper and keeps data", func(t *testing.T) {
		store := NewMemoryStore()
		ctx := context.Background()
		require.NoError(t, store.Save(ctx, Record{ID: "s", PrincipalID: 1, ExpiresAt: time.Now().Add(time.Hour)}))

		store.StartSweeper(time.Millisecond)
		store.StartSweeper(time.Millisecond)
		assert.NoError(t, store.Close())
		assert.NoError(t, store.Close())

		_, err := store.Get(ctx, "s")
		assert.NoError(t, err)
	})
}

func TestMemoryStore_Concurrent(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()
	exp := time.Now().Add(time.Hour)

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			id := string(rune('a' + i%26))
			_ = store.Save(ctx, Record{ID: id, PrincipalID: int64(i), ExpiresAt: exp})
			_, _ = store.Get(ctx, id)
			if i%3 == 0 {
				_ = store.Delete(ctx, id)
			}
		}(i)
	}
	wg.Wait()

	assert.LessOrEqual(t, store.Len(), 26)
}

func TestRedisStore(t *testing.T) {
	store, _ := newRedisStore(t)
	storeContract(t, store)
}

func TestRedisStore_KeyTTL(t *testing.T) {
	store, mr := newRedisStore(t)
	ctx := context.Background()
	now := time.Now()

	require.NoError(t, store.Save(ctx, Record{ID: "ttl", PrincipalID: 1, IssuedAt: now, ExpiresAt: now.Add(30 * time.Minute)}))

	assert.True(t, mr.Exists("session:ttl"))
	ttl := mr.TTL("session:ttl")
	assert.InDelta(t, (30 * time.Minute).Seconds(), ttl.Seconds(), 2)

	mr.FastForward(31 * time.Minute)
	_, err := store.Get(ctx, "ttl")
	assert.ErrorIs(t, err, ErrNoSession)
}

func TestRedisStore_RejectsExpiredRecord(t *testing.T) {
	store, _ := newRedisStore(t)
	past := time.Now().Add(-time.Minute)

	err := store.Save(context.Background(), Record{ID: "old", ExpiresAt: past})
	assert.Error(t, err)
}

func TestRedisStore_ServerDown(t *testing.T) {
	store, mr := newRedisStore(t)
	mr.Close()

	_, err := store.Get(context.Background(), "any")
	require.Error(t, err)
	assert.NotErrorIs(t, err, ErrNoSession, "a broken store is not an anonymous request")
}

func TestManager_WithRedisStore(t *testing.T) {
	store, _ := newRedisStore(t)
	m, err := NewManager(store, Config{Secret: testSecret})
	require.NoError(t, err)
	ctx := context.Background()

	issued, err := m.Issue(ctx, 11)
	require.NoError(t, err)

	id, err := m.Resolve(ctx, issued.Value)
	require.NoError(t, err)
	assert.Equal(t, int64(11), id)

	require.NoError(t, m.Destroy(ctx, issued.Value))
	_, err = m.Resolve(ctx, issued.Value)
	assert.ErrorIs(t, err, ErrNoSession)
}
