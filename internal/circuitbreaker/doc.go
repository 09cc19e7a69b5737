// Package circuitbreaker implements per-service circuit breakers.
//
// A Manager owns one Breaker per service name, created on first use. The
// native engine keeps its state in a snapshot that only the transition
// function changes; state-change events are published after the breaker
// lock is released. The gobreaker engine wraps sony/gobreaker with the same
// thresholds.
//
// # States
//
//   - CLOSED: calls pass and are counted in a rolling window. The circuit
//     opens once the window holds at least VolumeThreshold calls and the
//     failure rate reaches ErrorThresholdPercentage.
//   - OPEN: calls are rejected with *OpenError until ResetTimeout elapses.
//   - HALF_OPEN: HalfOpenMaxCalls trial calls decide between CLOSED and OPEN.
//
// Every call is bounded by Timeout; a timed out call counts as a failure.
package circuitbreaker
