package health

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/jonboulle/clockwork"

	"github.com/MindFlowInteractive/quest-service-sub006/internal/backend"
	"github.com/MindFlowInteractive/quest-service-sub006/internal/circuitbreaker"
)

// Overall statuses.
const (
	StatusOK       = "ok"
	StatusDegraded = "degraded"
)

// Routes served by RegisterRoutes.
const (
	PathHealth         = "/health"
	PathHealthDetailed = "/health/detailed"
)

// ServiceLister lists the configured services.
type ServiceLister interface {
	Names() []string
}

// InstanceReporter reports instance health.
type InstanceReporter interface {
	Instances(service string) []backend.InstanceStatus
}

// Availability reports the healthy instance count of a service.
type Availability interface {
	InstanceCount(service string) int
	IsServiceAvailable(service string) bool
}

// BreakerStates reports circuit states.
type BreakerStates interface {
	State(service string) circuitbreaker.State
}

// Status is the liveness response.
type Status struct {
	Status    string    `json:"status"`
	Timestamp time.Time `json:"timestamp"`
	Uptime    float64   `json:"uptime"`
}

// DetailedStatus is the detailed health response.
type DetailedStatus struct {
	Status
	Services map[string]ServiceStatus `json:"services"`
}

// ServiceStatus is the health of one backend service.
type ServiceStatus struct {
	Available     bool                     `json:"available"`
	InstanceCount int                      `json:"instanceCount"`
	CircuitState  circuitbreaker.State     `json:"circuitState"`
	Instances     []backend.InstanceStatus `json:"instances"`
}

// Handler serves the health endpoints.
type Handler struct {
	services  ServiceLister
	instances InstanceReporter
	balancer  Availability
	breakers  BreakerStates
	clock     clockwork.Clock
	startTime time.Time
}

// Option configures a Handler.
type Option func(*Handler)

// WithClock sets the clock used for timestamps and uptime.
func WithClock(clock clockwork.Clock) Option {
	return func(h *Handler) {
		h.clock = clock
	}
}

// NewHandler creates a health handler. Uptime counts from this call.
func NewHandler(
	services ServiceLister,
	instances InstanceReporter,
	balancer Availability,
	breakers BreakerStates,
	opts ...Option,
) *Handler {
	h := &Handler{
		services:  services,
		instances: instances,
		balancer:  balancer,
		breakers:  breakers,
		clock:     clockwork.NewRealClock(),
	}
	for _, opt := range opts {
		opt(h)
	}
	h.startTime = h.clock.Now()
	return h
}

// RegisterRoutes mounts the health endpoints on r.
func (h *Handler) RegisterRoutes(r gin.IRoutes) {
	r.GET(PathHealth, h.Liveness)
	r.GET(PathHealthDetailed, h.Detailed)
}

// Liveness always answers 200 while the process is serving.
func (h *Handler) Liveness(c *gin.Context) {
	c.JSON(http.StatusOK, h.status(StatusOK))
}

// Detailed reports every service. The status is degraded when any service
// has no healthy instance; the HTTP status stays 200.
func (h *Handler) Detailed(c *gin.Context) {
	names := h.services.Names()
	services := make(map[string]ServiceStatus, len(names))
	overall := StatusOK

	for _, name := range names {
		available := h.balancer.IsServiceAvailable(name)
		if !available {
			overall = StatusDegraded
		}
		services[name] = ServiceStatus{
			Available:     available,
			InstanceCount: h.balancer.InstanceCount(name),
			CircuitState:  h.breakers.State(name),
			Instances:     h.instances.Instances(name),
		}
	}

	c.JSON(http.StatusOK, DetailedStatus{
		Status:   h.status(overall),
		Services: services,
	})
}

func (h *Handler) status(s string) Status {
	now := h.clock.Now()
	return Status{
		Status:    s,
		Timestamp: now.UTC(),
		Uptime:    now.Sub(h.startTime).Seconds(),
	}
}
