package store

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestMemoryStore(t *testing.T) (*MemoryStore, *clockwork.FakeClock) {
	t.Helper()

	clock := clockwork.NewFakeClock()
	s := NewMemoryStore(WithClock(clock), WithCleanupInterval(time.Minute))
	t.Cleanup(func() { _ = s.Close() })
	return s, clock
}

func TestMemoryStore_HitStartsWindow(t *testing.T) {
	t.Parallel()

	s, clock := newTestMemoryStore(t)
	ctx := context.Background()

	c, err := s.Hit(ctx, "ip-1", time.Minute)
	require.NoError(t, err)
	assert.Equal(t, int64(1), c.Count)
	assert.Equal(t, time.Minute, c.ResetAfter)

	clock.Advance(20 * time.Second)

	c, err = s.Hit(ctx, "ip-1", time.Minute)
	require.NoError(t, err)
	assert.Equal(t, int64(2), c.Count)
	assert.Equal(t, 40*time.Second, c.ResetAfter)

	got, err := s.Get(ctx, "ip-1")
	require.NoError(t, err)
	assert.Equal(t, c, got)
}

func TestMemoryStore_WindowExpires(t *testing.T) {
	t.Parallel()

	s, clock := newTestMemoryStore(t)
	ctx := context.Background()

	for range 3 {
		_, err := s.Hit(ctx, "k", time.Minute)
		require.NoError(t, err)
	}

	clock.Advance(time.Minute)

	_, err := s.Get(ctx, "k")
	assert.ErrorIs(t, err, ErrKeyNotFound)

	c, err := s.Hit(ctx, "k", time.Minute)
	require.NoError(t, err)
	assert.Equal(t, int64(1), c.Count)
	assert.Equal(t, time.Minute, c.ResetAfter)
}

func TestMemoryStore_KeysAreIndependent(t *testing.T) {
	t.Parallel()

	s, _ := newTestMemoryStore(t)
	ctx := context.Background()

	_, _ = s.Hit(ctx, "a", time.Minute)
	_, _ = s.Hit(ctx, "a", time.Minute)
	c, err := s.Hit(ctx, "b", time.Minute)
	require.NoError(t, err)
	assert.Equal(t, int64(1), c.Count)
}

func TestMemoryStore_ConcurrentHits(t *testing.T) {
	t.Parallel()

	s, _ := newTestMemoryStore(t)
	ctx := context.Background()

	const workers, perWorker = 16, 50
	var wg sync.WaitGroup
	for range workers {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for range perWorker {
				_, err := s.Hit(ctx, "shared", time.Hour)
				assert.NoError(t, err)
			}
		}()
	}
	wg.Wait()

	c, err := s.Get(ctx, "shared")
	require.NoError(t, err)
	assert.Equal(t, int64(workers*perWorker), c.Count)
}

func TestMemoryStore_Delete(t *testing.T) {
	t.Parallel()

	s, _ := newTestMemoryStore(t)
	ctx := context.Background()

	_, _ = s.Hit(ctx, "k", time.Minute)
	require.NoError(t, s.Delete(ctx, "k"))

	_, err := s.Get(ctx, "k")
	assert.True(t, IsKeyNotFound(err))
}

func TestMemoryStore_CleanupRemovesExpired(t *testing.T) {
	t.Parallel()

	s, clock := newTestMemoryStore(t)
	ctx := context.Background()

	_, _ = s.Hit(ctx, "short", 10*time.Second)
	_, _ = s.Hit(ctx, "long", time.Hour)
	require.Equal(t, 2, s.Size())

	require.NoError(t, clock.BlockUntilContext(ctx, 1))
	clock.Advance(time.Minute)

	assert.Eventually(t, func() bool { return s.Size() == 1 }, time.Second, 5*time.Millisecond)
	_, err := s.Get(ctx, "long")
	assert.NoError(t, err)
}

func TestMemoryStore_CanceledContext(t *testing.T) {
	t.Parallel()

	s, _ := newTestMemoryStore(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := s.Hit(ctx, "k", time.Minute)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestMemoryStore_CloseIsIdempotent(t *testing.T) {
	t.Parallel()

	s := NewMemoryStore()
	require.NoError(t, s.Close())
	require.NoError(t, s.Close())
}
