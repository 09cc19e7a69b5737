package ratelimit

import (
	"sync/atomic"

	"github.com/MindFlowInteractive/quest-service-sub006/internal/auth"
)

// Limits holds the per-window thresholds. They can be replaced at runtime
// while requests are being checked.
type Limits struct {
	anonymous     atomic.Int64
	authenticated atomic.Int64
}

// NewLimits creates thresholds for anonymous and authenticated callers.
func NewLimits(limit, limitAuthenticated int) *Limits {
	l := &Limits{}
	l.Update(limit, limitAuthenticated)
	return l
}

// Update replaces both thresholds.
func (l *Limits) Update(limit, limitAuthenticated int) {
	l.anonymous.Store(int64(limit))
	l.authenticated.Store(int64(limitAuthenticated))
}

// For returns the threshold that applies to id.
func (l *Limits) For(id auth.Identity) int {
	if _, ok := auth.SubjectID(id); ok {
		return int(l.authenticated.Load())
	}
	return int(l.anonymous.Load())
}
