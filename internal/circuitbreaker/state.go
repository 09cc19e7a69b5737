package circuitbreaker

import (
	"errors"
	"fmt"
	"net/http"
)

// State represents the state of a circuit breaker.
type State int

const (
	// StateUnknown is reported for services that have never been called.
	StateUnknown State = iota - 1

	// StateClosed indicates the circuit is closed and requests are allowed.
	StateClosed

	// StateOpen indicates the circuit is open and requests are rejected.
	StateOpen

	// StateHalfOpen indicates a single trial request is allowed through.
	StateHalfOpen
)

// String returns the string representation of the state.
func (s State) String() string {
	switch s {
	case StateClosed:
		return "CLOSED"
	case StateOpen:
		return "OPEN"
	case StateHalfOpen:
		return "HALF_OPEN"
	default:
		return "UNKNOWN"
	}
}

// MarshalText implements encoding.TextMarshaler.
func (s State) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

var (
	// ErrCircuitOpen matches every rejection caused by an open or saturated breaker.
	ErrCircuitOpen = errors.New("circuit breaker is open")

	// ErrCallTimeout is returned when a protected call exceeds the breaker timeout.
	ErrCallTimeout = errors.New("circuit breaker call timed out")
)

// Fallback is the payload returned to clients while a breaker rejects calls.
type Fallback struct {
	StatusCode int    `json:"statusCode"`
	Error      string `json:"error"`
	Message    string `json:"message"`
	Service    string `json:"service"`
}

// OpenError is returned by Execute when the call was not attempted.
type OpenError struct {
	Service  string
	State    State
	Fallback Fallback
}

func newOpenError(service string, state State) *OpenError {
	return &OpenError{
		Service: service,
		State:   state,
		Fallback: Fallback{
			StatusCode: http.StatusServiceUnavailable,
			Error:      "Service Unavailable",
			Message:    fmt.Sprintf("The %s service is temporarily unavailable. Please try again later.", service),
			Service:    service,
		},
	}
}

// Error implements the error interface.
func (e *OpenError) Error() string {
	return fmt.Sprintf("circuit breaker for %s is %s", e.Service, e.State)
}

// Is reports whether target is ErrCircuitOpen.
func (e *OpenError) Is(target error) bool {
	return target == ErrCircuitOpen
}
