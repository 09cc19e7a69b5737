package proxy

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/trace"

	"github.com/MindFlowInteractive/quest-service-sub006/internal/auth"
	"github.com/MindFlowInteractive/quest-service-sub006/internal/circuitbreaker"
	"github.com/MindFlowInteractive/quest-service-sub006/internal/config"
	"github.com/MindFlowInteractive/quest-service-sub006/internal/middleware"
	"github.com/MindFlowInteractive/quest-service-sub006/internal/observability"
	"github.com/MindFlowInteractive/quest-service-sub006/internal/router"
)

// tracerName is the instrumentation name of downstream client spans.
const tracerName = "questgw/proxy"

// RouteResolver maps a request path to a service.
type RouteResolver interface {
	Resolve(path string) (*router.Match, bool)
}

// InstanceSelector picks a healthy instance of a service.
type InstanceSelector interface {
	Next(service string) (string, error)
}

// Executor runs a call under the service's circuit breaker.
type Executor interface {
	Execute(ctx context.Context, service string, fn circuitbreaker.Func) error
}

// Proxy forwards requests to backend services.
type Proxy struct {
	resolver RouteResolver
	selector InstanceSelector
	breakers Executor
	client   *http.Client
	timeout  time.Duration
	logger   observability.Logger
	metrics  *Metrics
	tracer   trace.Tracer
}

// Option configures a Proxy.
type Option func(*Proxy)

// WithLogger sets the logger.
func WithLogger(logger observability.Logger) Option {
	return func(p *Proxy) {
		p.logger = logger
	}
}

// WithTransport sets the transport for downstream calls.
func WithTransport(transport http.RoundTripper) Option {
	return func(p *Proxy) {
		p.client.Transport = transport
	}
}

// WithTimeout sets the per-request downstream timeout.
func WithTimeout(timeout time.Duration) Option {
	return func(p *Proxy) {
		if timeout > 0 {
			p.timeout = timeout
		}
	}
}

// WithMetrics sets the proxy metrics.
func WithMetrics(metrics *Metrics) Option {
	return func(p *Proxy) {
		p.metrics = metrics
	}
}

// New creates a proxy.
func New(resolver RouteResolver, selector InstanceSelector, breakers Executor, opts ...Option) *Proxy {
	p := &Proxy{
		resolver: resolver,
		selector: selector,
		breakers: breakers,
		client: &http.Client{
			// Redirects are the client's business.
			CheckRedirect: func(*http.Request, []*http.Request) error {
				return http.ErrUseLastResponse
			},
		},
		timeout: config.DefaultProxyTimeout,
		logger:  observability.NopLogger(),
		tracer:  otel.Tracer(tracerName),
	}

	for _, opt := range opts {
		opt(p)
	}

	return p
}

// ServeHTTP implements http.Handler. The client IP is taken from RemoteAddr.
func (p *Proxy) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	p.forward(w, r, remoteIP(r))
}

// Handle is the gin handler. It uses gin's trusted-proxy aware client IP and
// records the resolved service for the metrics and logging middleware.
func (p *Proxy) Handle(c *gin.Context) {
	if service := p.forward(c.Writer, c.Request, c.ClientIP()); service != "" {
		c.Set(middleware.ServiceKey, service)
	}
}

// upstreamResponse is a fully buffered downstream response.
type upstreamResponse struct {
	statusCode int
	header     http.Header
	body       []byte
}

// forward proxies r and returns the resolved service name, if any.
func (p *Proxy) forward(w http.ResponseWriter, r *http.Request, clientIP string) string {
	ctx := r.Context()
	logger := p.logger.WithContext(ctx)

	match, ok := p.resolver.Resolve(r.URL.Path)
	if !ok {
		p.metrics.error("", errorTypeRouteNotFound)
		logger.Debug("route not found",
			observability.String("method", r.Method),
			observability.String("path", r.URL.Path),
		)
		writeJSON(w, http.StatusNotFound, ErrorResponse{
			Error:   "Not Found",
			Message: fmt.Sprintf("Route %s %s not found", r.Method, r.URL.Path),
		})
		return ""
	}
	service := match.ServiceName

	instance, err := p.selector.Next(service)
	if err != nil {
		p.metrics.error(service, errorTypeNoInstance)
		logger.Warn("no healthy instance",
			observability.String("service", service),
			observability.Error(err),
		)
		writeJSON(w, http.StatusBadGateway, ErrorResponse{
			Error:   "Service Unavailable",
			Message: "No healthy instances available",
			Service: service,
		})
		return service
	}

	body, err := readBody(r)
	if err != nil {
		logger.Warn("reading request body failed",
			observability.String("service", service),
			observability.Error(err),
		)
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			writeJSON(w, http.StatusRequestEntityTooLarge, ErrorResponse{
				Error:   "Payload Too Large",
				Message: fmt.Sprintf("Request body exceeds %d bytes", tooLarge.Limit),
				Service: service,
			})
			return service
		}
		writeJSON(w, http.StatusBadRequest, ErrorResponse{
			Error:   "Bad Request",
			Message: "Failed to read request body",
			Service: service,
		})
		return service
	}

	target := instance + match.TargetPath
	if r.URL.RawQuery != "" {
		target += "?" + r.URL.RawQuery
	}

	var resp *upstreamResponse
	err = p.breakers.Execute(ctx, service, func(callCtx context.Context) error {
		var callErr error
		resp, callErr = p.call(callCtx, r, service, target, body, clientIP)
		return callErr
	})

	var openErr *circuitbreaker.OpenError
	var downErr *DownstreamError
	switch {
	case err == nil:
		writeUpstream(w, resp.statusCode, resp.header, resp.body)
	case errors.As(err, &downErr):
		p.metrics.error(service, errorTypeDownstream)
		logger.Warn("downstream error",
			observability.String("service", service),
			observability.String("target", target),
			observability.Int("status", downErr.StatusCode),
		)
		writeUpstream(w, downErr.StatusCode, downErr.Header, downErr.Body)
	case errors.As(err, &openErr):
		p.metrics.error(service, errorTypeCircuitOpen)
		logger.Warn("circuit breaker rejected request",
			observability.String("service", service),
			observability.String("state", openErr.State.String()),
		)
		writeJSON(w, openErr.Fallback.StatusCode, openErr.Fallback)
	default:
		p.metrics.error(service, errorTypeUnreachable)
		logger.Error("downstream unreachable",
			observability.String("service", service),
			observability.String("target", target),
			observability.Error(err),
		)
		writeJSON(w, http.StatusBadGateway, ErrorResponse{
			Error:   "Bad Gateway",
			Message: fmt.Sprintf("The %s service is unreachable", service),
			Service: service,
		})
	}

	return service
}

// call performs the downstream exchange. The whole exchange, body included,
// runs under the proxy timeout.
func (p *Proxy) call(
	ctx context.Context,
	in *http.Request,
	service, target string,
	body []byte,
	clientIP string,
) (*upstreamResponse, error) {
	ctx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()

	ctx, span := p.tracer.Start(ctx, "proxy "+service,
		trace.WithSpanKind(trace.SpanKindClient),
		trace.WithAttributes(
			attribute.String("gateway.service", service),
			attribute.String("http.request.method", in.Method),
			attribute.String("url.full", target),
		),
	)
	defer span.End()

	out, err := http.NewRequestWithContext(ctx, in.Method, target, bytes.NewReader(body))
	if err != nil {
		span.SetStatus(codes.Error, err.Error())
		return nil, fmt.Errorf("building request for %s: %w", service, err)
	}
	p.prepareHeaders(ctx, out, in, clientIP)

	start := time.Now()
	res, err := p.client.Do(out)
	if err != nil {
		p.metrics.upstream(service, time.Since(start))
		span.RecordError(err)
		span.SetStatus(codes.Error, "downstream unreachable")
		return nil, fmt.Errorf("%w: %s: %w", ErrDownstreamUnreachable, service, err)
	}
	defer res.Body.Close()

	data, err := io.ReadAll(res.Body)
	p.metrics.upstream(service, time.Since(start))
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "reading downstream response")
		return nil, fmt.Errorf("%w: reading %s response: %w", ErrDownstreamUnreachable, service, err)
	}

	span.SetAttributes(attribute.Int("http.response.status_code", res.StatusCode))
	if res.StatusCode >= http.StatusInternalServerError {
		span.SetStatus(codes.Error, res.Status)
		return nil, &DownstreamError{
			Service:    service,
			StatusCode: res.StatusCode,
			Header:     res.Header,
			Body:       data,
		}
	}

	return &upstreamResponse{statusCode: res.StatusCode, header: res.Header, body: data}, nil
}

func (p *Proxy) prepareHeaders(ctx context.Context, out, in *http.Request, clientIP string) {
	copyHeaders(out.Header, in.Header)

	correlationID := observability.CorrelationIDFromContext(ctx)
	if correlationID == "" {
		correlationID = in.Header.Get(HeaderCorrelationID)
	}
	if correlationID != "" {
		out.Header.Set(HeaderCorrelationID, correlationID)
	}

	out.Header.Set(HeaderForwardedFor, appendForwardedFor(in.Header.Get(HeaderForwardedFor), clientIP))
	if in.TLS != nil {
		out.Header.Set(HeaderForwardedProto, "https")
	} else {
		out.Header.Set(HeaderForwardedProto, "http")
	}
	out.Header.Set(HeaderForwardedHost, in.Host)

	out.Header.Del(HeaderUserID)
	if sub, ok := auth.SubjectID(auth.FromContext(ctx)); ok {
		out.Header.Set(HeaderUserID, sub)
	}

	otel.GetTextMapPropagator().Inject(ctx, propagation.HeaderCarrier(out.Header))
}

func readBody(r *http.Request) ([]byte, error) {
	if r.Body == nil || r.Body == http.NoBody {
		return nil, nil
	}
	defer r.Body.Close()
	return io.ReadAll(r.Body)
}

// writeUpstream relays a downstream response. Headers already set on w by
// the gateway, such as the correlation ID and rate limit headers, keep the
// gateway's value.
func writeUpstream(w http.ResponseWriter, status int, header http.Header, body []byte) {
	owned := make(map[string]bool, len(w.Header()))
	for k := range w.Header() {
		owned[http.CanonicalHeaderKey(k)] = true
	}
	copyHeaders(w.Header(), withoutKeys(header, owned))
	w.WriteHeader(status)
	_, _ = w.Write(body)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func remoteIP(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
