package circuitbreaker

import (
	"errors"
	"time"
)

// Config holds the thresholds for a circuit breaker.
type Config struct {
	// Timeout bounds every protected call. Exceeding it counts as a failure.
	Timeout time.Duration

	// ErrorThresholdPercentage is the failure rate, 0-100, that opens the circuit.
	ErrorThresholdPercentage float64

	// VolumeThreshold is the minimum number of calls in the rolling window
	// before the failure rate is evaluated.
	VolumeThreshold int

	// ResetTimeout is how long the circuit stays open before a trial call.
	ResetTimeout time.Duration

	// RollingWindow is the length of the counting window while closed.
	RollingWindow time.Duration

	// HalfOpenMaxCalls is the number of concurrent trial calls while half-open.
	HalfOpenMaxCalls int
}

// DefaultConfig returns the default breaker thresholds.
func DefaultConfig() Config {
	return Config{
		Timeout:                  10 * time.Second,
		ErrorThresholdPercentage: 50,
		VolumeThreshold:          10,
		ResetTimeout:             30 * time.Second,
		RollingWindow:            10 * time.Second,
		HalfOpenMaxCalls:         1,
	}
}

// Validate checks the configuration.
func (c Config) Validate() error {
	if c.Timeout <= 0 {
		return errors.New("timeout must be positive")
	}
	if c.ErrorThresholdPercentage <= 0 || c.ErrorThresholdPercentage > 100 {
		return errors.New("errorThresholdPercentage must be in (0, 100]")
	}
	if c.VolumeThreshold < 1 {
		return errors.New("volumeThreshold must be at least 1")
	}
	if c.ResetTimeout <= 0 {
		return errors.New("resetTimeout must be positive")
	}
	if c.RollingWindow <= 0 {
		return errors.New("rollingWindow must be positive")
	}
	if c.HalfOpenMaxCalls < 1 {
		return errors.New("halfOpenMaxCalls must be at least 1")
	}
	return nil
}

// WithTimeout returns a copy with the call timeout set.
func (c Config) WithTimeout(d time.Duration) Config {
	c.Timeout = d
	return c
}

// WithResetTimeout returns a copy with the reset timeout set.
func (c Config) WithResetTimeout(d time.Duration) Config {
	c.ResetTimeout = d
	return c
}

// WithVolumeThreshold returns a copy with the volume threshold set.
func (c Config) WithVolumeThreshold(n int) Config {
	c.VolumeThreshold = n
	return c
}

// WithErrorThreshold returns a copy with the error percentage set.
func (c Config) WithErrorThreshold(pct float64) Config {
	c.ErrorThresholdPercentage = pct
	return c
}
