// Package health serves the gateway's own health endpoints: a liveness
// check and a detailed view of every backend service's instances and
// circuit breaker.
package health
