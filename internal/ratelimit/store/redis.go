package store

import (
	"context"
	"errors"
	"fmt"
	"math/rand/v2"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/MindFlowInteractive/quest-service-sub006/internal/observability"
)

// hitScript increments a counter and starts its window on the first hit.
// KEYS[1] = key
// ARGV[1] = window in milliseconds
// Returns {count, pttl}.
var hitScript = redis.NewScript(`
	local current = redis.call('INCR', KEYS[1])
	if current == 1 then
		redis.call('PEXPIRE', KEYS[1], ARGV[1])
	end
	local ttl = redis.call('PTTL', KEYS[1])
	if ttl < 0 then
		redis.call('PEXPIRE', KEYS[1], ARGV[1])
		ttl = tonumber(ARGV[1])
	end
	return {current, ttl}
`)

// RedisConfig configures a RedisStore.
type RedisConfig struct {
	Address  string
	Password string
	DB       int
	Prefix   string

	PoolSize     int
	MinIdleConns int
	MaxRetries   int

	DialTimeout  time.Duration
	ReadTimeout  time.Duration
	WriteTimeout time.Duration

	// InitialBackoff is the first wait between connection attempts.
	InitialBackoff time.Duration

	// MaxBackoff caps the wait between connection attempts.
	MaxBackoff time.Duration

	// ConnectionRetries is the number of attempts after the first one.
	ConnectionRetries int
}

// DefaultRedisConfig returns a RedisConfig with default values.
func DefaultRedisConfig() RedisConfig {
	return RedisConfig{
		Address:           "localhost:6379",
		Prefix:            "ratelimit:",
		PoolSize:          10,
		MinIdleConns:      2,
		MaxRetries:        3,
		DialTimeout:       5 * time.Second,
		ReadTimeout:       3 * time.Second,
		WriteTimeout:      3 * time.Second,
		InitialBackoff:    100 * time.Millisecond,
		MaxBackoff:        10 * time.Second,
		ConnectionRetries: 5,
	}
}

// RedisOption configures a RedisStore.
type RedisOption func(*RedisStore)

// WithRedisLogger sets the logger.
func WithRedisLogger(logger observability.Logger) RedisOption {
	return func(s *RedisStore) {
		s.logger = logger
	}
}

// WithRedisMetrics sets the operation metrics.
func WithRedisMetrics(metrics *Metrics) RedisOption {
	return func(s *RedisStore) {
		s.metrics = metrics
	}
}

// RedisStore implements Store on Redis so that limits are shared by every
// gateway replica using the same server.
type RedisStore struct {
	client  *redis.Client
	prefix  string
	logger  observability.Logger
	metrics *Metrics

	mu     sync.Mutex
	closed bool
}

// NewRedisStore connects to Redis, retrying with decorrelated jitter until
// the server answers PING or the attempts run out.
func NewRedisStore(ctx context.Context, cfg RedisConfig, opts ...RedisOption) (*RedisStore, error) {
	cfg = normalizeRedisConfig(cfg)

	s := &RedisStore{
		client: redis.NewClient(&redis.Options{
			Addr:         cfg.Address,
			Password:     cfg.Password,
			DB:           cfg.DB,
			PoolSize:     cfg.PoolSize,
			MinIdleConns: cfg.MinIdleConns,
			MaxRetries:   cfg.MaxRetries,
			DialTimeout:  cfg.DialTimeout,
			ReadTimeout:  cfg.ReadTimeout,
			WriteTimeout: cfg.WriteTimeout,
		}),
		prefix: cfg.Prefix,
		logger: observability.NopLogger(),
	}
	for _, opt := range opts {
		opt(s)
	}

	if err := s.connect(ctx, cfg); err != nil {
		_ = s.client.Close()
		return nil, err
	}

	return s, nil
}

func normalizeRedisConfig(cfg RedisConfig) RedisConfig {
	def := DefaultRedisConfig()
	if cfg.Address == "" {
		cfg.Address = def.Address
	}
	if cfg.DialTimeout <= 0 {
		cfg.DialTimeout = def.DialTimeout
	}
	if cfg.InitialBackoff <= 0 {
		cfg.InitialBackoff = def.InitialBackoff
	}
	if cfg.MaxBackoff <= 0 {
		cfg.MaxBackoff = def.MaxBackoff
	}
	if cfg.ConnectionRetries < 0 {
		cfg.ConnectionRetries = 0
	}
	return cfg
}

func (s *RedisStore) connect(ctx context.Context, cfg RedisConfig) error {
	totalTimeout := time.Duration(cfg.ConnectionRetries+1) * cfg.DialTimeout
	if totalTimeout > 2*time.Minute {
		totalTimeout = 2 * time.Minute
	}
	ctx, cancel := context.WithTimeout(ctx, totalTimeout)
	defer cancel()

	backoff := newDecorrelatedJitterBackoff(cfg.InitialBackoff, cfg.MaxBackoff)

	var lastErr error
	for attempt := 0; attempt <= cfg.ConnectionRetries; attempt++ {
		pingCtx, pingCancel := context.WithTimeout(ctx, cfg.DialTimeout)
		lastErr = s.client.Ping(pingCtx).Err()
		pingCancel()

		if lastErr == nil {
			if attempt > 0 {
				s.logger.Info("redis connection established after retry",
					observability.String("address", cfg.Address),
					observability.Int("attempt", attempt+1),
				)
			}
			return nil
		}
		s.metrics.connectionError()

		if attempt == cfg.ConnectionRetries {
			break
		}

		wait := backoff.next(attempt)
		s.logger.Debug("redis connection failed, retrying",
			observability.String("address", cfg.Address),
			observability.Int("attempt", attempt+1),
			observability.Duration("backoff", wait),
			observability.Error(lastErr),
		)
		s.metrics.retry()

		select {
		case <-ctx.Done():
			return fmt.Errorf("connecting to redis at %s: %w", cfg.Address, ctx.Err())
		case <-time.After(wait):
		}
	}

	return fmt.Errorf("failed to connect to redis at %s after %d attempts: %w",
		cfg.Address, cfg.ConnectionRetries+1, lastErr)
}

// decorrelatedJitterBackoff computes sleep = min(cap, rand(base, sleep*3)).
type decorrelatedJitterBackoff struct {
	initial time.Duration
	max     time.Duration
	current time.Duration
}

func newDecorrelatedJitterBackoff(initial, maxDuration time.Duration) *decorrelatedJitterBackoff {
	return &decorrelatedJitterBackoff{
		initial: initial,
		max:     maxDuration,
		current: initial,
	}
}

func (b *decorrelatedJitterBackoff) next(attempt int) time.Duration {
	if attempt == 0 {
		b.current = b.initial
		return b.current
	}

	lo := float64(b.initial)
	hi := float64(b.current) * 3
	//nolint:gosec // jitter does not need a secure source
	backoff := lo + rand.Float64()*(hi-lo)
	if backoff > float64(b.max) {
		backoff = float64(b.max)
	}

	b.current = time.Duration(backoff)
	return b.current
}

func (s *RedisStore) prefixKey(key string) string {
	return s.prefix + key
}

// Hit implements Store with a Lua script so that increment and expiry are
// atomic on the server.
func (s *RedisStore) Hit(ctx context.Context, key string, window time.Duration) (Counter, error) {
	if err := ctx.Err(); err != nil {
		return Counter{}, fmt.Errorf("context error before redis hit: %w", err)
	}

	start := time.Now()
	windowMs := window.Milliseconds()
	if windowMs < 1 {
		windowMs = 1
	}

	res, err := hitScript.Run(ctx, s.client, []string{s.prefixKey(key)}, windowMs).Int64Slice()
	if err != nil {
		s.metrics.observe("hit", "error", time.Since(start))
		return Counter{}, fmt.Errorf("redis hit script: %w", err)
	}
	if len(res) != 2 {
		s.metrics.observe("hit", "error", time.Since(start))
		return Counter{}, fmt.Errorf("redis hit script returned %d values", len(res))
	}

	s.metrics.observe("hit", "success", time.Since(start))
	return Counter{Count: res[0], ResetAfter: time.Duration(res[1]) * time.Millisecond}, nil
}

// Get implements Store.
func (s *RedisStore) Get(ctx context.Context, key string) (Counter, error) {
	if err := ctx.Err(); err != nil {
		return Counter{}, fmt.Errorf("context error before redis get: %w", err)
	}

	start := time.Now()
	prefixed := s.prefixKey(key)

	pipe := s.client.Pipeline()
	getCmd := pipe.Get(ctx, prefixed)
	ttlCmd := pipe.PTTL(ctx, prefixed)
	_, err := pipe.Exec(ctx)

	if errors.Is(err, redis.Nil) {
		s.metrics.observe("get", "not_found", time.Since(start))
		return Counter{}, fmt.Errorf("%w: %s", ErrKeyNotFound, key)
	}
	if err != nil {
		s.metrics.observe("get", "error", time.Since(start))
		return Counter{}, fmt.Errorf("redis get: %w", err)
	}

	count, err := getCmd.Int64()
	if err != nil {
		s.metrics.observe("get", "error", time.Since(start))
		return Counter{}, fmt.Errorf("parse counter %q: %w", key, err)
	}

	s.metrics.observe("get", "success", time.Since(start))
	return Counter{Count: count, ResetAfter: max(ttlCmd.Val(), 0)}, nil
}

// Delete implements Store.
func (s *RedisStore) Delete(ctx context.Context, key string) error {
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("context error before redis del: %w", err)
	}

	start := time.Now()
	if err := s.client.Del(ctx, s.prefixKey(key)).Err(); err != nil {
		s.metrics.observe("delete", "error", time.Since(start))
		return fmt.Errorf("redis del: %w", err)
	}

	s.metrics.observe("delete", "success", time.Since(start))
	return nil
}

// Close closes the client. It is safe to call more than once.
func (s *RedisStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return nil
	}
	s.closed = true
	return s.client.Close()
}
