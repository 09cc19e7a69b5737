// Package backend holds the service table, active health checking, and
// round-robin instance selection.
//
// Instances start healthy and are then driven by HealthChecker probes: a
// GET to the instance URL plus the service health path, healthy only on
// HTTP 200. Health changes are logged once per edge. RoundRobin reads the
// healthy list on every call and never returns an unhealthy instance.
package backend
