package store

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"
)

const (
	// maxCASRetries bounds spinning under contention.
	maxCASRetries = 100

	// DefaultCleanupInterval is how often expired entries are swept.
	DefaultCleanupInterval = time.Minute
)

// entry is immutable; updates swap in a new entry.
type entry struct {
	count     int64
	expiresAt time.Time
}

func (e *entry) expired(now time.Time) bool {
	return !now.Before(e.expiresAt)
}

// MemoryStore implements Store in process memory.
type MemoryStore struct {
	data    sync.Map
	clock   clockwork.Clock
	cleanup clockwork.Ticker
	done    chan struct{}
	mu      sync.Mutex
	closed  bool
}

// MemoryOption configures a MemoryStore.
type MemoryOption func(*memoryOptions)

type memoryOptions struct {
	clock           clockwork.Clock
	cleanupInterval time.Duration
}

// WithClock sets the clock used for expiry.
func WithClock(clock clockwork.Clock) MemoryOption {
	return func(o *memoryOptions) {
		o.clock = clock
	}
}

// WithCleanupInterval sets how often expired entries are removed.
func WithCleanupInterval(interval time.Duration) MemoryOption {
	return func(o *memoryOptions) {
		o.cleanupInterval = interval
	}
}

// NewMemoryStore creates an in-memory store and starts its cleanup loop.
func NewMemoryStore(opts ...MemoryOption) *MemoryStore {
	o := memoryOptions{
		clock:           clockwork.NewRealClock(),
		cleanupInterval: DefaultCleanupInterval,
	}
	for _, opt := range opts {
		opt(&o)
	}
	if o.cleanupInterval <= 0 {
		o.cleanupInterval = DefaultCleanupInterval
	}

	s := &MemoryStore{
		clock:   o.clock,
		cleanup: o.clock.NewTicker(o.cleanupInterval),
		done:    make(chan struct{}),
	}

	go s.startCleanup()

	return s
}

// Hit implements Store.
func (s *MemoryStore) Hit(ctx context.Context, key string, window time.Duration) (Counter, error) {
	if err := ctx.Err(); err != nil {
		return Counter{}, err
	}

	for retries := 0; retries < maxCASRetries; retries++ {
		now := s.clock.Now()
		fresh := &entry{count: 1, expiresAt: now.Add(window)}

		value, loaded := s.data.LoadOrStore(key, fresh)
		if !loaded {
			return Counter{Count: 1, ResetAfter: window}, nil
		}

		e := value.(*entry)
		next := fresh
		if !e.expired(now) {
			next = &entry{count: e.count + 1, expiresAt: e.expiresAt}
		}

		if s.data.CompareAndSwap(key, e, next) {
			return Counter{Count: next.count, ResetAfter: next.expiresAt.Sub(now)}, nil
		}
	}

	return Counter{}, fmt.Errorf("hit %q: max retries (%d) exceeded", key, maxCASRetries)
}

// Get implements Store.
func (s *MemoryStore) Get(ctx context.Context, key string) (Counter, error) {
	if err := ctx.Err(); err != nil {
		return Counter{}, err
	}

	value, ok := s.data.Load(key)
	if !ok {
		return Counter{}, fmt.Errorf("%w: %s", ErrKeyNotFound, key)
	}

	now := s.clock.Now()
	e := value.(*entry)
	if e.expired(now) {
		s.data.CompareAndDelete(key, e)
		return Counter{}, fmt.Errorf("%w: %s", ErrKeyNotFound, key)
	}

	return Counter{Count: e.count, ResetAfter: e.expiresAt.Sub(now)}, nil
}

// Delete implements Store.
func (s *MemoryStore) Delete(ctx context.Context, key string) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	s.data.Delete(key)
	return nil
}

// Close stops the cleanup loop. It is safe to call more than once.
func (s *MemoryStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return nil
	}

	s.closed = true
	s.cleanup.Stop()
	close(s.done)

	return nil
}

// Size returns the number of stored entries, expired ones included.
func (s *MemoryStore) Size() int {
	count := 0
	s.data.Range(func(_, _ any) bool {
		count++
		return true
	})
	return count
}

func (s *MemoryStore) startCleanup() {
	for {
		select {
		case <-s.cleanup.Chan():
			s.cleanupExpired()
		case <-s.done:
			return
		}
	}
}

func (s *MemoryStore) cleanupExpired() {
	now := s.clock.Now()

	s.data.Range(func(key, value any) bool {
		if e := value.(*entry); e.expired(now) {
			s.data.CompareAndDelete(key, e)
		}
		return true
	})
}
