package router

import (
	"strings"

	"github.com/MindFlowInteractive/quest-service-sub006/internal/config"
)

// Match is the result of resolving a request path.
type Match struct {
	// ServiceName is the owning service.
	ServiceName string
	// TargetURL is the service base URL from configuration.
	TargetURL string
	// TargetPath is the request path with the service prefix removed. It is
	// never empty.
	TargetPath string
}

// route is one prefix entry.
type route struct {
	service string
	url     string
	prefix  PrefixMatcher
}

// Resolver maps request paths to services. It is immutable and safe for
// concurrent use.
type Resolver struct {
	routes  []route
	metrics *Metrics
}

// NewResolver builds a resolver that tries services in the given order.
func NewResolver(services []config.ServiceConfig, metrics *Metrics) *Resolver {
	r := &Resolver{
		routes:  make([]route, 0, len(services)),
		metrics: metrics,
	}
	for _, svc := range services {
		r.routes = append(r.routes, route{
			service: svc.Name,
			url:     strings.TrimRight(svc.URL, "/"),
			prefix:  NewPrefixMatcher(svc.Prefix),
		})
	}
	return r
}

// Resolve returns the first service whose prefix matches path. The query
// string must not be part of path.
func (r *Resolver) Resolve(path string) (*Match, bool) {
	for i := range r.routes {
		rt := &r.routes[i]
		rest, ok := rt.prefix.Strip(path)
		if !ok {
			continue
		}
		r.metrics.resolved(rt.service)
		return &Match{
			ServiceName: rt.service,
			TargetURL:   rt.url,
			TargetPath:  rest,
		}, true
	}
	r.metrics.resolved("")
	return nil, false
}
