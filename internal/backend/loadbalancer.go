package backend

import (
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
)

// ErrNoHealthyInstance is returned when a service has no healthy instance.
var ErrNoHealthyInstance = errors.New("no healthy instances available")

// HealthSource provides the current healthy instances of a service.
type HealthSource interface {
	HealthyInstances(service string) []string
}

// RoundRobin rotates across the healthy instances of each service.
//
// The healthy list is read again on every call, so the rotation is only
// approximate while instances change health.
type RoundRobin struct {
	source   HealthSource
	metrics  *Metrics
	counters sync.Map
}

// NewRoundRobin creates a balancer reading health from source.
func NewRoundRobin(source HealthSource, metrics *Metrics) *RoundRobin {
	return &RoundRobin{source: source, metrics: metrics}
}

// Next returns the next healthy instance URL for service.
func (b *RoundRobin) Next(service string) (string, error) {
	healthy := b.source.HealthyInstances(service)
	if len(healthy) == 0 {
		b.metrics.selection(service, false)
		return "", fmt.Errorf("service %s: %w", service, ErrNoHealthyInstance)
	}

	idx := b.counter(service).Add(1) - 1
	b.metrics.selection(service, true)
	return healthy[idx%uint64(len(healthy))], nil
}

// InstanceCount returns the number of healthy instances of service.
func (b *RoundRobin) InstanceCount(service string) int {
	return len(b.source.HealthyInstances(service))
}

// IsServiceAvailable reports whether Next would succeed.
func (b *RoundRobin) IsServiceAvailable(service string) bool {
	return b.InstanceCount(service) > 0
}

func (b *RoundRobin) counter(service string) *atomic.Uint64 {
	if c, ok := b.counters.Load(service); ok {
		return c.(*atomic.Uint64)
	}
	c, _ := b.counters.LoadOrStore(service, new(atomic.Uint64))
	return c.(*atomic.Uint64)
}
