package proxy

import (
	"errors"
	"fmt"
	"net/http"
)

var (
	// ErrRouteNotFound indicates that no service prefix matched the path.
	ErrRouteNotFound = errors.New("no matching route found")

	// ErrDownstreamUnreachable indicates that no response was received.
	ErrDownstreamUnreachable = errors.New("downstream unreachable")
)

// DownstreamError is a 5xx response from a backend. It counts as a breaker
// failure but the response is still passed through to the client.
type DownstreamError struct {
	Service    string
	StatusCode int
	Header     http.Header
	Body       []byte
}

// Error implements the error interface.
func (e *DownstreamError) Error() string {
	return fmt.Sprintf("service %s responded with status %d", e.Service, e.StatusCode)
}

// ErrorResponse is the JSON body of errors produced by the gateway itself.
type ErrorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message"`
	Service string `json:"service,omitempty"`
}
