// Package proxy forwards gateway requests to backend services.
//
// For each request the proxy resolves the route by path prefix, picks a
// healthy instance round-robin and performs the downstream call through the
// service's circuit breaker. Responses are copied back without hop-by-hop
// headers; failures map to 404, 502 or 503 JSON bodies. There are no
// automatic retries.
package proxy
