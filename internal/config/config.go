package config

import (
	"strings"
	"time"
)

// Default values applied by ApplyDefaults.
const (
	DefaultServerAddress          = ":3000"
	DefaultReadTimeout            = 30 * time.Second
	DefaultWriteTimeout           = 60 * time.Second
	DefaultIdleTimeout            = 120 * time.Second
	DefaultShutdownTimeout        = 30 * time.Second
	DefaultMaxRequestBodySize     = 10 << 20
	DefaultHealthPath             = "/health"
	DefaultHealthCheckInterval    = 30 * time.Second
	DefaultHealthCheckTimeout     = 5 * time.Second
	DefaultProxyTimeout           = 30 * time.Second
	DefaultBreakerTimeout         = 10 * time.Second
	DefaultErrorThreshold         = 50.0
	DefaultResetTimeout           = 30 * time.Second
	DefaultVolumeThreshold        = 10
	DefaultRollingWindow          = 10 * time.Second
	DefaultHalfOpenMaxCalls       = 1
	DefaultRateLimitTTL           = 60 * time.Second
	DefaultRateLimit              = 100
	DefaultRateLimitAuthenticated = 1000
	DefaultMetricsAddress         = ":9090"
	DefaultMetricsPath            = "/metrics"
	DefaultTracingServiceName     = "api-gateway"
)

// Circuit breaker engines.
const (
	EngineNative    = "native"
	EngineGobreaker = "gobreaker"
)

// Rate limit algorithms and stores.
const (
	AlgorithmFixedWindow = "fixed_window"
	AlgorithmTokenBucket = "token_bucket"
	StoreMemory          = "memory"
	StoreRedis           = "redis"
)

// GatewayConfig is the root configuration of the gateway.
type GatewayConfig struct {
	Server         ServerConfig         `yaml:"server" json:"server"`
	Services       []ServiceConfig      `yaml:"services" json:"services" validate:"required,min=1,dive"`
	CircuitBreaker CircuitBreakerConfig `yaml:"circuitBreaker" json:"circuitBreaker"`
	RateLimit      RateLimitConfig      `yaml:"rateLimit" json:"rateLimit"`
	HealthCheck    HealthCheckConfig    `yaml:"healthCheck" json:"healthCheck"`
	Proxy          ProxyConfig          `yaml:"proxy" json:"proxy"`
	Auth           AuthConfig           `yaml:"auth" json:"auth"`
	Observability  ObservabilityConfig  `yaml:"observability" json:"observability"`
}

// ServerConfig configures the inbound HTTP listener.
type ServerConfig struct {
	Address         string   `yaml:"address" json:"address" validate:"required"`
	ReadTimeout     Duration `yaml:"readTimeout" json:"readTimeout" validate:"gte=0"`
	WriteTimeout    Duration `yaml:"writeTimeout" json:"writeTimeout" validate:"gte=0"`
	IdleTimeout     Duration `yaml:"idleTimeout" json:"idleTimeout" validate:"gte=0"`
	ShutdownTimeout Duration `yaml:"shutdownTimeout" json:"shutdownTimeout" validate:"gte=0"`

	// MaxRequestBodySize caps inbound bodies in bytes. Negative disables the cap.
	MaxRequestBodySize int64 `yaml:"maxRequestBodySize" json:"maxRequestBodySize"`

	// TrustedProxies lists the addresses or CIDRs whose X-Forwarded-For is
	// believed when deriving the client IP. Empty trusts no proxy.
	TrustedProxies []string `yaml:"trustedProxies,omitempty" json:"trustedProxies,omitempty" validate:"omitempty,dive,cidr|ip"`
}

// ServiceConfig describes one backend service. Services are fixed for the
// lifetime of the process.
type ServiceConfig struct {
	Name       string   `yaml:"name" json:"name" validate:"required,excludesall=/"`
	URL        string   `yaml:"url" json:"url" validate:"required,url"`
	Prefix     string   `yaml:"prefix" json:"prefix" validate:"required,startswith=/"`
	HealthPath string   `yaml:"healthPath" json:"healthPath" validate:"omitempty,startswith=/"`
	Instances  []string `yaml:"instances,omitempty" json:"instances,omitempty" validate:"omitempty,dive,url"`
}

// InstanceURLs returns the service base URL followed by any additional
// instances, without duplicates and without trailing slashes.
func (s ServiceConfig) InstanceURLs() []string {
	seen := make(map[string]struct{}, len(s.Instances)+1)
	urls := make([]string, 0, len(s.Instances)+1)
	for _, u := range append([]string{s.URL}, s.Instances...) {
		u = strings.TrimRight(u, "/")
		if u == "" {
			continue
		}
		if _, ok := seen[u]; ok {
			continue
		}
		seen[u] = struct{}{}
		urls = append(urls, u)
	}
	return urls
}

// CircuitBreakerConfig holds the thresholds shared by every per-service breaker.
type CircuitBreakerConfig struct {
	Engine                   string   `yaml:"engine" json:"engine" validate:"omitempty,oneof=native gobreaker"`
	Timeout                  Duration `yaml:"timeout" json:"timeout" validate:"gte=0"`
	ErrorThresholdPercentage float64  `yaml:"errorThresholdPercentage" json:"errorThresholdPercentage" validate:"gte=0,lte=100"`
	ResetTimeout             Duration `yaml:"resetTimeout" json:"resetTimeout" validate:"gte=0"`
	VolumeThreshold          int      `yaml:"volumeThreshold" json:"volumeThreshold" validate:"gte=0"`
	RollingWindow            Duration `yaml:"rollingWindow" json:"rollingWindow" validate:"gte=0"`
	HalfOpenMaxCalls         int      `yaml:"halfOpenMaxCalls" json:"halfOpenMaxCalls" validate:"gte=0"`
}

// RateLimitConfig configures per-identity rate limiting.
type RateLimitConfig struct {
	Enabled            bool        `yaml:"enabled" json:"enabled"`
	Algorithm          string      `yaml:"algorithm" json:"algorithm" validate:"omitempty,oneof=fixed_window token_bucket"`
	Store              string      `yaml:"store" json:"store" validate:"omitempty,oneof=memory redis"`
	TTL                Duration    `yaml:"ttl" json:"ttl" validate:"gte=0"`
	Limit              int         `yaml:"limit" json:"limit" validate:"gte=0"`
	LimitAuthenticated int         `yaml:"limitAuthenticated" json:"limitAuthenticated" validate:"gte=0"`
	Redis              RedisConfig `yaml:"redis" json:"redis"`
}

// RedisConfig configures the shared rate limit store.
type RedisConfig struct {
	Address  string `yaml:"address" json:"address" validate:"omitempty,hostname_port"`
	Password string `yaml:"password" json:"-"`
	DB       int    `yaml:"db" json:"db" validate:"gte=0"`
	Prefix   string `yaml:"prefix" json:"prefix"`
}

// HealthCheckConfig configures active probing.
type HealthCheckConfig struct {
	Interval Duration `yaml:"interval" json:"interval" validate:"gte=0"`
	Timeout  Duration `yaml:"timeout" json:"timeout" validate:"gte=0"`
}

// ProxyConfig configures request forwarding.
type ProxyConfig struct {
	Timeout Duration `yaml:"timeout" json:"timeout" validate:"gte=0"`
}

// AuthConfig configures bearer token validation. An empty secret disables
// validation and every caller is anonymous.
type AuthConfig struct {
	JWTSecret string `yaml:"jwtSecret" json:"-"`
	Issuer    string `yaml:"issuer" json:"issuer"`
	Audience  string `yaml:"audience" json:"audience"`
}

// ObservabilityConfig groups logging, metrics, and tracing.
type ObservabilityConfig struct {
	Logging LoggingConfig `yaml:"logging" json:"logging"`
	Metrics MetricsConfig `yaml:"metrics" json:"metrics"`
	Tracing TracingConfig `yaml:"tracing" json:"tracing"`
}

// LoggingConfig configures the process logger.
type LoggingConfig struct {
	Level  string `yaml:"level" json:"level" validate:"omitempty,oneof=debug info warn error"`
	Format string `yaml:"format" json:"format" validate:"omitempty,oneof=json console"`
}

// MetricsConfig configures the Prometheus listener.
type MetricsConfig struct {
	Enabled bool   `yaml:"enabled" json:"enabled"`
	Address string `yaml:"address" json:"address"`
	Path    string `yaml:"path" json:"path" validate:"omitempty,startswith=/"`
}

// TracingConfig configures OpenTelemetry export.
type TracingConfig struct {
	Enabled      bool    `yaml:"enabled" json:"enabled"`
	Endpoint     string  `yaml:"endpoint" json:"endpoint"`
	ServiceName  string  `yaml:"serviceName" json:"serviceName"`
	SamplingRate float64 `yaml:"samplingRate" json:"samplingRate" validate:"gte=0,lte=1"`
}

// ApplyDefaults fills zero values with defaults.
func ApplyDefaults(cfg *GatewayConfig) {
	s := &cfg.Server
	setString(&s.Address, DefaultServerAddress)
	setDuration(&s.ReadTimeout, DefaultReadTimeout)
	setDuration(&s.WriteTimeout, DefaultWriteTimeout)
	setDuration(&s.IdleTimeout, DefaultIdleTimeout)
	setDuration(&s.ShutdownTimeout, DefaultShutdownTimeout)
	if s.MaxRequestBodySize == 0 {
		s.MaxRequestBodySize = DefaultMaxRequestBodySize
	}

	for i := range cfg.Services {
		setString(&cfg.Services[i].HealthPath, DefaultHealthPath)
	}

	cb := &cfg.CircuitBreaker
	setString(&cb.Engine, EngineNative)
	setDuration(&cb.Timeout, DefaultBreakerTimeout)
	if cb.ErrorThresholdPercentage == 0 {
		cb.ErrorThresholdPercentage = DefaultErrorThreshold
	}
	setDuration(&cb.ResetTimeout, DefaultResetTimeout)
	setInt(&cb.VolumeThreshold, DefaultVolumeThreshold)
	setDuration(&cb.RollingWindow, DefaultRollingWindow)
	setInt(&cb.HalfOpenMaxCalls, DefaultHalfOpenMaxCalls)

	rl := &cfg.RateLimit
	setString(&rl.Algorithm, AlgorithmFixedWindow)
	setString(&rl.Store, StoreMemory)
	setDuration(&rl.TTL, DefaultRateLimitTTL)
	setInt(&rl.Limit, DefaultRateLimit)
	setInt(&rl.LimitAuthenticated, DefaultRateLimitAuthenticated)
	setString(&rl.Redis.Prefix, "ratelimit:")

	setDuration(&cfg.HealthCheck.Interval, DefaultHealthCheckInterval)
	setDuration(&cfg.HealthCheck.Timeout, DefaultHealthCheckTimeout)
	setDuration(&cfg.Proxy.Timeout, DefaultProxyTimeout)

	obs := &cfg.Observability
	setString(&obs.Logging.Level, "info")
	setString(&obs.Logging.Format, "json")
	setString(&obs.Metrics.Address, DefaultMetricsAddress)
	setString(&obs.Metrics.Path, DefaultMetricsPath)
	setString(&obs.Tracing.ServiceName, DefaultTracingServiceName)
	if obs.Tracing.Enabled && obs.Tracing.SamplingRate == 0 {
		obs.Tracing.SamplingRate = 1.0
	}
}

func setString(dst *string, def string) {
	if *dst == "" {
		*dst = def
	}
}

func setInt(dst *int, def int) {
	if *dst == 0 {
		*dst = def
	}
}

func setDuration(dst *Duration, def time.Duration) {
	if *dst == 0 {
		*dst = Duration(def)
	}
}
