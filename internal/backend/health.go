package backend

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"
	"golang.org/x/sync/errgroup"

	"github.com/MindFlowInteractive/quest-service-sub006/internal/observability"
)

// Health check defaults.
const (
	DefaultHealthCheckInterval = 30 * time.Second
	DefaultHealthCheckTimeout  = 5 * time.Second
)

// Transition is an instance health edge.
type Transition struct {
	Service  string
	Instance string
	Healthy  bool
	At       time.Time
	Err      error
}

// TransitionFunc is called for every health edge.
type TransitionFunc func(Transition)

// HealthChecker probes every instance of every service on a fixed interval.
type HealthChecker struct {
	registry     *Registry
	client       *http.Client
	interval     time.Duration
	timeout      time.Duration
	clock        clockwork.Clock
	logger       observability.Logger
	metrics      *Metrics
	onTransition TransitionFunc

	mu      sync.Mutex
	running bool
	cancel  context.CancelFunc
	done    chan struct{}
}

// HealthCheckOption configures a HealthChecker.
type HealthCheckOption func(*HealthChecker)

// WithHealthCheckLogger sets the logger.
func WithHealthCheckLogger(logger observability.Logger) HealthCheckOption {
	return func(hc *HealthChecker) {
		hc.logger = logger
	}
}

// WithHealthCheckClient sets the HTTP client used for probes.
func WithHealthCheckClient(client *http.Client) HealthCheckOption {
	return func(hc *HealthChecker) {
		hc.client = client
	}
}

// WithHealthCheckClock sets the clock driving the probe interval.
func WithHealthCheckClock(clock clockwork.Clock) HealthCheckOption {
	return func(hc *HealthChecker) {
		hc.clock = clock
	}
}

// WithHealthCheckMetrics sets the Prometheus collectors.
func WithHealthCheckMetrics(metrics *Metrics) HealthCheckOption {
	return func(hc *HealthChecker) {
		hc.metrics = metrics
	}
}

// WithTransitionCallback registers fn for health edges.
func WithTransitionCallback(fn TransitionFunc) HealthCheckOption {
	return func(hc *HealthChecker) {
		hc.onTransition = fn
	}
}

// NewHealthChecker creates a health checker for every instance in registry.
func NewHealthChecker(
	registry *Registry,
	interval, timeout time.Duration,
	opts ...HealthCheckOption,
) *HealthChecker {
	if interval <= 0 {
		interval = DefaultHealthCheckInterval
	}
	if timeout <= 0 {
		timeout = DefaultHealthCheckTimeout
	}

	hc := &HealthChecker{
		registry: registry,
		interval: interval,
		timeout:  timeout,
		clock:    clockwork.NewRealClock(),
		logger:   observability.NopLogger(),
	}
	for _, opt := range opts {
		opt(hc)
	}
	if hc.client == nil {
		hc.client = &http.Client{
			CheckRedirect: func(*http.Request, []*http.Request) error {
				return http.ErrUseLastResponse
			},
		}
	}

	for _, svc := range registry.Services() {
		for _, inst := range svc.Instances {
			hc.metrics.setHealth(svc.Name, inst.URL(), inst.Healthy())
		}
	}
	return hc
}

// Start runs one pass before returning, so callers see probed health, and
// then one per interval until ctx is canceled or Stop is called. Each probe
// is bounded by the probe timeout.
func (hc *HealthChecker) Start(ctx context.Context) {
	hc.mu.Lock()
	if hc.running {
		hc.mu.Unlock()
		return
	}
	hc.running = true

	ctx, hc.cancel = context.WithCancel(ctx)
	done := make(chan struct{})
	hc.done = done
	hc.mu.Unlock()

	hc.CheckAll(ctx)
	go hc.run(ctx, done)
}

// Stop cancels the loop and waits for the current pass to finish.
func (hc *HealthChecker) Stop() {
	hc.mu.Lock()
	if !hc.running {
		hc.mu.Unlock()
		return
	}
	hc.running = false
	cancel, done := hc.cancel, hc.done
	hc.mu.Unlock()

	cancel()
	<-done
}

// IsRunning reports whether the loop is active.
func (hc *HealthChecker) IsRunning() bool {
	hc.mu.Lock()
	defer hc.mu.Unlock()
	return hc.running
}

func (hc *HealthChecker) run(ctx context.Context, done chan struct{}) {
	defer close(done)

	ticker := hc.clock.NewTicker(hc.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.Chan():
			hc.CheckAll(ctx)
		}
	}
}

// CheckAll probes every instance concurrently and waits for all probes.
// A failing probe only affects its own instance.
func (hc *HealthChecker) CheckAll(ctx context.Context) {
	var g errgroup.Group

	for _, svc := range hc.registry.Services() {
		for _, inst := range svc.Instances {
			g.Go(func() error {
				hc.check(ctx, svc, inst)
				return nil
			})
		}
	}

	_ = g.Wait()
}

func (hc *HealthChecker) check(ctx context.Context, svc *Service, inst *Instance) {
	if ctx.Err() != nil {
		return
	}

	start := hc.clock.Now()
	err := hc.probe(ctx, inst.URL()+svc.HealthPath)
	if ctx.Err() != nil {
		// Shutting down; a canceled probe says nothing about the instance.
		return
	}
	healthy := err == nil

	hc.metrics.probe(svc.Name, healthy, hc.clock.Since(start))
	hc.record(svc.Name, inst, healthy, err)
}

func (hc *HealthChecker) probe(ctx context.Context, url string) error {
	ctx, cancel := context.WithTimeout(ctx, hc.timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, http.NoBody)
	if err != nil {
		return err
	}

	resp, err := hc.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 4096))

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("health endpoint returned %d", resp.StatusCode)
	}
	return nil
}

// record stores a probe result and publishes only edges.
func (hc *HealthChecker) record(service string, inst *Instance, healthy bool, err error) {
	now := hc.clock.Now()
	if !inst.setHealthy(healthy, now) {
		return
	}

	hc.metrics.setHealth(service, inst.URL(), healthy)

	if healthy {
		hc.logger.Info("instance became healthy",
			observability.String("service", service),
			observability.String("instance", inst.URL()),
		)
	} else {
		hc.logger.Warn("instance became unhealthy",
			observability.String("service", service),
			observability.String("instance", inst.URL()),
			observability.Error(err),
		)
	}

	if hc.onTransition != nil {
		hc.onTransition(Transition{
			Service:  service,
			Instance: inst.URL(),
			Healthy:  healthy,
			At:       now,
			Err:      err,
		})
	}
}

// HealthyInstances returns the URLs of healthy instances of service in
// configuration order. Unknown services have none.
func (hc *HealthChecker) HealthyInstances(service string) []string {
	svc, ok := hc.registry.Service(service)
	if !ok {
		return nil
	}
	urls := make([]string, 0, len(svc.Instances))
	for _, inst := range svc.Instances {
		if inst.Healthy() {
			urls = append(urls, inst.URL())
		}
	}
	return urls
}

// IsServiceHealthy reports whether service has at least one healthy instance.
func (hc *HealthChecker) IsServiceHealthy(service string) bool {
	svc, ok := hc.registry.Service(service)
	if !ok {
		return false
	}
	for _, inst := range svc.Instances {
		if inst.Healthy() {
			return true
		}
	}
	return false
}

// Instances returns the status of every instance of service.
func (hc *HealthChecker) Instances(service string) []InstanceStatus {
	svc, ok := hc.registry.Service(service)
	if !ok {
		return nil
	}
	out := make([]InstanceStatus, len(svc.Instances))
	for i, inst := range svc.Instances {
		out[i] = inst.Status()
	}
	return out
}
