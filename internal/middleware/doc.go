// Package middleware provides the gin middleware chain that runs in front of
// the proxy: correlation IDs, panic recovery, request logging, metrics,
// tracing, caller identity and rate limiting.
package middleware
