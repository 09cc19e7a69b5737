package circuitbreaker

import "time"

// input is something that happened to a breaker.
type input int

const (
	// inputAcquire asks to admit a call.
	inputAcquire input = iota
	// inputObserve lets time-based transitions happen without admitting a call.
	inputObserve
	inputSuccess
	inputFailure
	inputTimeout
	// inputRelease returns an admitted slot without an outcome, e.g. when the
	// caller went away.
	inputRelease
)

// snapshot is the complete mutable state of one breaker.
type snapshot struct {
	state State

	// generation increases on every state change. Outcomes of calls admitted
	// in an earlier generation are ignored.
	generation uint64

	windowStart    time.Time
	requests       int
	failures       int
	timeouts       int
	lastTransition time.Time
	inFlight       int
}

// Event describes a state change.
type Event struct {
	Service  string
	From     State
	To       State
	At       time.Time
	Requests int
	Failures int
}

// result is what transition decided.
type result struct {
	next     snapshot
	events   []Event
	admitted bool
}

// transition applies in to s and returns the next snapshot. It has no side
// effects; the caller stores the snapshot and publishes the events.
func transition(service string, s snapshot, in input, gen uint64, now time.Time, cfg Config) result {
	r := result{next: s}

	if r.next.state == StateOpen && now.Sub(r.next.lastTransition) >= cfg.ResetTimeout {
		r.moveTo(service, StateHalfOpen, now)
	}
	if r.next.state == StateClosed && now.Sub(r.next.windowStart) >= cfg.RollingWindow {
		r.next.resetCounters(now)
	}

	switch in {
	case inputObserve:
	case inputAcquire:
		r.acquire(cfg)
	case inputRelease:
		if gen == r.next.generation && r.next.state == StateHalfOpen && r.next.inFlight > 0 {
			r.next.inFlight--
		}
	case inputSuccess, inputFailure, inputTimeout:
		if gen != r.next.generation {
			break
		}
		r.record(service, in, now, cfg)
	}

	return r
}

func (r *result) acquire(cfg Config) {
	switch r.next.state {
	case StateClosed:
		r.admitted = true
	case StateHalfOpen:
		if r.next.inFlight < cfg.HalfOpenMaxCalls {
			r.next.inFlight++
			r.admitted = true
		}
	case StateOpen:
	}
}

func (r *result) record(service string, in input, now time.Time, cfg Config) {
	failed := in != inputSuccess

	switch r.next.state {
	case StateClosed:
		r.next.requests++
		if failed {
			r.next.failures++
		}
		if in == inputTimeout {
			r.next.timeouts++
		}
		if shouldTrip(r.next, cfg) {
			r.moveTo(service, StateOpen, now)
		}
	case StateHalfOpen:
		if failed {
			r.moveTo(service, StateOpen, now)
		} else {
			r.moveTo(service, StateClosed, now)
		}
	case StateOpen:
	}
}

func shouldTrip(s snapshot, cfg Config) bool {
	if s.requests < cfg.VolumeThreshold || s.requests == 0 {
		return false
	}
	return float64(s.failures)*100/float64(s.requests) >= cfg.ErrorThresholdPercentage
}

func (r *result) moveTo(service string, to State, now time.Time) {
	from := r.next.state
	r.events = append(r.events, Event{
		Service:  service,
		From:     from,
		To:       to,
		At:       now,
		Requests: r.next.requests,
		Failures: r.next.failures,
	})

	r.next.state = to
	r.next.generation++
	r.next.lastTransition = now
	r.next.inFlight = 0
	r.next.resetCounters(now)
}

func (s *snapshot) resetCounters(now time.Time) {
	s.windowStart = now
	s.requests = 0
	s.failures = 0
	s.timeouts = 0
}
