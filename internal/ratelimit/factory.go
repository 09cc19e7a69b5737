package ratelimit

import (
	"context"
	"fmt"

	"github.com/MindFlowInteractive/quest-service-sub006/internal/config"
	"github.com/MindFlowInteractive/quest-service-sub006/internal/observability"
	"github.com/MindFlowInteractive/quest-service-sub006/internal/ratelimit/store"
)

// NewFromConfig builds the limiter selected by cfg. storeMetrics may be nil.
func NewFromConfig(
	ctx context.Context,
	cfg config.RateLimitConfig,
	storeMetrics *store.Metrics,
	opts ...Option,
) (Limiter, error) {
	o := newOptions(opts)
	window := cfg.TTL.Duration()

	if cfg.Algorithm == config.AlgorithmTokenBucket {
		if cfg.Store == config.StoreRedis {
			return nil, fmt.Errorf("algorithm %q does not support store %q", cfg.Algorithm, cfg.Store)
		}
		return NewTokenBucketLimiter(window, opts...), nil
	}

	var s store.Store
	switch cfg.Store {
	case config.StoreRedis:
		rc := store.DefaultRedisConfig()
		rc.Address = cfg.Redis.Address
		rc.Password = cfg.Redis.Password
		rc.DB = cfg.Redis.DB
		if cfg.Redis.Prefix != "" {
			rc.Prefix = cfg.Redis.Prefix
		}
		rs, err := store.NewRedisStore(ctx, rc,
			store.WithRedisLogger(o.logger),
			store.WithRedisMetrics(storeMetrics),
		)
		if err != nil {
			return nil, fmt.Errorf("creating redis rate limit store: %w", err)
		}
		s = rs
	case config.StoreMemory, "":
		s = store.NewMemoryStore(store.WithClock(o.clock))
	default:
		return nil, fmt.Errorf("unknown rate limit store %q", cfg.Store)
	}

	o.logger.Info("rate limiter created",
		observability.String("algorithm", config.AlgorithmFixedWindow),
		observability.String("store", cfg.Store),
		observability.Duration("window", window),
	)

	return NewFixedWindowLimiter(s, window, opts...), nil
}
