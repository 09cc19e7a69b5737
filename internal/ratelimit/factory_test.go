package ratelimit

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/MindFlowInteractive/quest-service-sub006/internal/config"
)

func TestNewFromConfig(t *testing.T) {
	t.Parallel()

	mr := miniredis.RunT(t)

	tests := []struct {
		name    string
		cfg     config.RateLimitConfig
		want    any
		wantErr bool
	}{
		{
			name: "memory fixed window",
			cfg:  config.RateLimitConfig{Algorithm: config.AlgorithmFixedWindow, Store: config.StoreMemory},
			want: &FixedWindowLimiter{},
		},
		{
			name: "redis fixed window",
			cfg: config.RateLimitConfig{
				Algorithm: config.AlgorithmFixedWindow,
				Store:     config.StoreRedis,
				Redis:     config.RedisConfig{Address: mr.Addr(), Prefix: "rl:"},
			},
			want: &FixedWindowLimiter{},
		},
		{
			name: "token bucket",
			cfg:  config.RateLimitConfig{Algorithm: config.AlgorithmTokenBucket, Store: config.StoreMemory},
			want: &TokenBucketLimiter{},
		},
		{
			name:    "token bucket on redis",
			cfg:     config.RateLimitConfig{Algorithm: config.AlgorithmTokenBucket, Store: config.StoreRedis},
			wantErr: true,
		},
		{
			name:    "unknown store",
			cfg:     config.RateLimitConfig{Store: "etcd"},
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			tt.cfg.TTL = config.Duration(time.Minute)
			l, err := NewFromConfig(context.Background(), tt.cfg, nil)
			if tt.wantErr {
				require.Error(t, err)
				return
			}
			require.NoError(t, err)
			t.Cleanup(func() { _ = l.Close() })
			assert.IsType(t, tt.want, l)

			res, err := l.Allow(context.Background(), "k", 1)
			require.NoError(t, err)
			assert.True(t, res.Allowed)
		})
	}
}
