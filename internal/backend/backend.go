package backend

import (
	"sync/atomic"
	"time"

	"github.com/MindFlowInteractive/quest-service-sub006/internal/config"
)

// Instance is one network endpoint of a service. Only the health checker
// changes its health.
type Instance struct {
	service   string
	url       string
	healthy   atomic.Bool
	lastCheck atomic.Int64
}

// NewInstance creates an instance that is considered healthy until the
// first probe says otherwise.
func NewInstance(service, url string) *Instance {
	inst := &Instance{service: service, url: url}
	inst.healthy.Store(true)
	return inst
}

// Service returns the owning service name.
func (i *Instance) Service() string {
	return i.service
}

// URL returns the instance base URL.
func (i *Instance) URL() string {
	return i.url
}

// Healthy reports the last known health.
func (i *Instance) Healthy() bool {
	return i.healthy.Load()
}

// LastCheck returns the time of the last probe, or the zero time.
func (i *Instance) LastCheck() time.Time {
	ns := i.lastCheck.Load()
	if ns == 0 {
		return time.Time{}
	}
	return time.Unix(0, ns)
}

// setHealthy stores a probe result and reports whether health changed.
func (i *Instance) setHealthy(healthy bool, at time.Time) bool {
	i.lastCheck.Store(at.UnixNano())
	return i.healthy.Swap(healthy) != healthy
}

// InstanceStatus is a read-only view of an instance.
type InstanceStatus struct {
	URL       string    `json:"url"`
	Healthy   bool      `json:"healthy"`
	LastCheck time.Time `json:"lastCheck,omitempty"`
}

// Status returns a read-only view of the instance.
func (i *Instance) Status() InstanceStatus {
	return InstanceStatus{URL: i.url, Healthy: i.Healthy(), LastCheck: i.LastCheck()}
}

// Service is a named backend with a fixed set of instances.
type Service struct {
	Name       string
	URL        string
	Prefix     string
	HealthPath string
	Instances  []*Instance
}

// Registry is the immutable service table.
type Registry struct {
	services []*Service
	byName   map[string]*Service
}

// NewRegistry builds the service table in configuration order.
func NewRegistry(cfgs []config.ServiceConfig) *Registry {
	r := &Registry{
		services: make([]*Service, 0, len(cfgs)),
		byName:   make(map[string]*Service, len(cfgs)),
	}
	for _, c := range cfgs {
		healthPath := c.HealthPath
		if healthPath == "" {
			healthPath = config.DefaultHealthPath
		}
		svc := &Service{
			Name:       c.Name,
			URL:        c.URL,
			Prefix:     c.Prefix,
			HealthPath: healthPath,
		}
		for _, u := range c.InstanceURLs() {
			svc.Instances = append(svc.Instances, NewInstance(c.Name, u))
		}
		r.services = append(r.services, svc)
		r.byName[c.Name] = svc
	}
	return r
}

// Services returns services in configuration order.
func (r *Registry) Services() []*Service {
	return r.services
}

// Service looks up a service by name.
func (r *Registry) Service(name string) (*Service, bool) {
	svc, ok := r.byName[name]
	return svc, ok
}

// Names returns service names in configuration order.
func (r *Registry) Names() []string {
	names := make([]string, len(r.services))
	for i, s := range r.services {
		names[i] = s.Name
	}
	return names
}
