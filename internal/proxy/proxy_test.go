package proxy

import (
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/MindFlowInteractive/quest-service-sub006/internal/auth"
	"github.com/MindFlowInteractive/quest-service-sub006/internal/backend"
	"github.com/MindFlowInteractive/quest-service-sub006/internal/circuitbreaker"
	"github.com/MindFlowInteractive/quest-service-sub006/internal/config"
	"github.com/MindFlowInteractive/quest-service-sub006/internal/middleware"
	"github.com/MindFlowInteractive/quest-service-sub006/internal/observability"
	"github.com/MindFlowInteractive/quest-service-sub006/internal/ratelimit"
	"github.com/MindFlowInteractive/quest-service-sub006/internal/ratelimit/store"
	"github.com/MindFlowInteractive/quest-service-sub006/internal/router"
)

func init() {
	gin.SetMode(gin.TestMode)
}

func testBreakerConfig() circuitbreaker.Config {
	return circuitbreaker.Config{
		Timeout:                  time.Second,
		ErrorThresholdPercentage: 50,
		VolumeThreshold:          2,
		ResetTimeout:             30 * time.Second,
		RollingWindow:            10 * time.Second,
		HalfOpenMaxCalls:         1,
	}
}

type fixture struct {
	proxy    *Proxy
	breakers *circuitbreaker.Manager
	metrics  *Metrics
}

func newFixture(t *testing.T, backendURL string, opts ...Option) *fixture {
	t.Helper()

	services := []config.ServiceConfig{
		{Name: "social", URL: backendURL, Prefix: "/api/social"},
	}
	registry := backend.NewRegistry(services)
	checker := backend.NewHealthChecker(registry, time.Hour, time.Second)
	breakers := circuitbreaker.NewManager(testBreakerConfig())
	metrics := NewMetrics("test")

	opts = append([]Option{WithMetrics(metrics)}, opts...)
	p := New(router.NewResolver(services, nil), backend.NewRoundRobin(checker, nil), breakers, opts...)
	return &fixture{proxy: p, breakers: breakers, metrics: metrics}
}

func decode(t *testing.T, rec *httptest.ResponseRecorder) map[string]any {
	t.Helper()

	var body map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	return body
}

func TestProxy_ForwardsRequest(t *testing.T) {
	t.Parallel()

	var got *http.Request
	var gotBody string
	upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		got = r.Clone(r.Context())
		b, _ := io.ReadAll(r.Body)
		gotBody = string(b)
		w.Header().Set("X-Upstream", "yes")
		w.WriteHeader(http.StatusCreated)
		_, _ = io.WriteString(w, `{"id":1}`)
	}))
	t.Cleanup(upstream.Close)

	f := newFixture(t, upstream.URL)

	req := httptest.NewRequest(http.MethodPost, "http://gateway.local/api/social/friends?limit=5", strings.NewReader(`{"name":"bob"}`))
	req.RemoteAddr = "203.0.113.7:5555"
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Forwarded-For", "198.51.100.1")
	req.Header.Set("Connection", "keep-alive, X-Hop")
	req.Header.Set("X-Hop", "drop-me")
	req.Header.Set("Keep-Alive", "timeout=5")
	req.Header.Set(HeaderUserID, "spoofed")
	ctx := observability.ContextWithCorrelationID(req.Context(), "corr-1")
	ctx = auth.WithIdentity(ctx, auth.Authenticated{SubjectID: "42"})
	req = req.WithContext(ctx)

	rec := httptest.NewRecorder()
	f.proxy.ServeHTTP(rec, req)

	require.Equal(t, http.StatusCreated, rec.Code)
	assert.Equal(t, `{"id":1}`, rec.Body.String())
	assert.Equal(t, "yes", rec.Header().Get("X-Upstream"))

	require.NotNil(t, got)
	assert.Equal(t, http.MethodPost, got.Method)
	assert.Equal(t, "/friends", got.URL.Path)
	assert.Equal(t, "limit=5", got.URL.RawQuery)
	assert.Equal(t, `{"name":"bob"}`, gotBody)
	assert.Equal(t, "application/json", got.Header.Get("Content-Type"))
	assert.Equal(t, "corr-1", got.Header.Get(HeaderCorrelationID))
	assert.Equal(t, "198.51.100.1, 203.0.113.7", got.Header.Get(HeaderForwardedFor))
	assert.Equal(t, "http", got.Header.Get(HeaderForwardedProto))
	assert.Equal(t, "gateway.local", got.Header.Get(HeaderForwardedHost))
	assert.Equal(t, "42", got.Header.Get(HeaderUserID))
	assert.Empty(t, got.Header.Get("X-Hop"))
	assert.Empty(t, got.Header.Get("Keep-Alive"))
}

func TestProxy_AnonymousUserIDStripped(t *testing.T) {
	t.Parallel()

	var userID atomic.Value
	upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		userID.Store(r.Header.Get(HeaderUserID))
	}))
	t.Cleanup(upstream.Close)

	f := newFixture(t, upstream.URL)
	req := httptest.NewRequest(http.MethodGet, "/api/social", nil)
	req.Header.Set(HeaderUserID, "spoofed")

	rec := httptest.NewRecorder()
	f.proxy.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "", userID.Load())
}

func TestProxy_PassesThrough4xx(t *testing.T) {
	t.Parallel()

	upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusNotFound)
		_, _ = io.WriteString(w, `{"x":1}`)
		w.(http.Flusher).Flush()
	}))
	t.Cleanup(upstream.Close)

	f := newFixture(t, upstream.URL)
	rec := httptest.NewRecorder()
	f.proxy.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/social/missing", nil))

	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, `{"x":1}`, rec.Body.String())
	assert.Empty(t, rec.Header().Get("Transfer-Encoding"))
	assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))

	stats, ok := f.breakers.Stats("social")
	require.True(t, ok)
	assert.Equal(t, 0, stats.Failures)
}

func TestProxy_RouteNotFound(t *testing.T) {
	t.Parallel()

	f := newFixture(t, "http://127.0.0.1:1")
	rec := httptest.NewRecorder()
	f.proxy.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/unknown", nil))

	assert.Equal(t, http.StatusNotFound, rec.Code)
	body := decode(t, rec)
	assert.Equal(t, "Not Found", body["error"])
	assert.NotEmpty(t, body["message"])
	assert.Equal(t, 1.0, testutil.ToFloat64(f.metrics.errorsTotal.WithLabelValues("unmatched", errorTypeRouteNotFound)))
}

func TestProxy_BodyTooLarge(t *testing.T) {
	t.Parallel()

	var calls atomic.Int32
	upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
	}))
	t.Cleanup(upstream.Close)

	f := newFixture(t, upstream.URL)
	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/api/social/posts", strings.NewReader("0123456789"))
	req.Body = http.MaxBytesReader(rec, req.Body, 4)
	f.proxy.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusRequestEntityTooLarge, rec.Code)
	assert.Equal(t, "Payload Too Large", decode(t, rec)["error"])
	assert.Zero(t, calls.Load())
}

type noInstances struct{}

func (noInstances) Next(service string) (string, error) {
	return "", backend.ErrNoHealthyInstance
}

func TestProxy_NoHealthyInstance(t *testing.T) {
	t.Parallel()

	services := []config.ServiceConfig{{Name: "social", URL: "http://social", Prefix: "/api/social"}}
	p := New(router.NewResolver(services, nil), noInstances{}, circuitbreaker.NewManager(testBreakerConfig()))

	rec := httptest.NewRecorder()
	p.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/social/x", nil))

	assert.Equal(t, http.StatusBadGateway, rec.Code)
	assert.JSONEq(t,
		`{"error":"Service Unavailable","message":"No healthy instances available","service":"social"}`,
		rec.Body.String())
}

func TestProxy_Unreachable(t *testing.T) {
	t.Parallel()

	upstream := httptest.NewServer(http.NotFoundHandler())
	addr := upstream.URL
	upstream.Close()

	f := newFixture(t, addr)
	rec := httptest.NewRecorder()
	f.proxy.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/social/x", nil))

	assert.Equal(t, http.StatusBadGateway, rec.Code)
	body := decode(t, rec)
	assert.Equal(t, "Bad Gateway", body["error"])
	assert.Equal(t, "social", body["service"])
}

func TestProxy_ServerErrorPassthroughAndBreakerOpens(t *testing.T) {
	t.Parallel()

	var hits atomic.Int32
	upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		hits.Add(1)
		w.WriteHeader(http.StatusInternalServerError)
		_, _ = io.WriteString(w, `{"error":"boom"}`)
	}))
	t.Cleanup(upstream.Close)

	f := newFixture(t, upstream.URL)

	for range 2 {
		rec := httptest.NewRecorder()
		f.proxy.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/social/x", nil))
		assert.Equal(t, http.StatusInternalServerError, rec.Code)
		assert.Equal(t, `{"error":"boom"}`, rec.Body.String())
	}
	require.Equal(t, circuitbreaker.StateOpen, f.breakers.State("social"))

	rec := httptest.NewRecorder()
	f.proxy.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/social/x", nil))

	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	assert.Equal(t, int32(2), hits.Load())
	body := decode(t, rec)
	assert.EqualValues(t, http.StatusServiceUnavailable, body["statusCode"])
	assert.Equal(t, "Service Unavailable", body["error"])
	assert.Equal(t, "social", body["service"])
	assert.Contains(t, body["message"], "temporarily unavailable")
}

func TestProxy_TimeoutCountsAsFailure(t *testing.T) {
	t.Parallel()

	release := make(chan struct{})
	upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-release:
		case <-r.Context().Done():
		}
	}))
	t.Cleanup(func() {
		close(release)
		upstream.Close()
	})

	f := newFixture(t, upstream.URL, WithTimeout(50*time.Millisecond))
	rec := httptest.NewRecorder()
	f.proxy.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/social/slow", nil))

	assert.Equal(t, http.StatusBadGateway, rec.Code)
	stats, ok := f.breakers.Stats("social")
	require.True(t, ok)
	assert.Equal(t, 1, stats.Failures)
}

func TestProxy_GinHandleRecordsService(t *testing.T) {
	t.Parallel()

	upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = io.WriteString(w, r.Header.Get(HeaderForwardedFor))
	}))
	t.Cleanup(upstream.Close)

	f := newFixture(t, upstream.URL)

	var service string
	engine := gin.New()
	engine.Use(func(c *gin.Context) {
		c.Next()
		service = c.GetString(middleware.ServiceKey)
	})
	engine.NoRoute(f.proxy.Handle)

	req := httptest.NewRequest(http.MethodGet, "/api/social/x", nil)
	req.RemoteAddr = "192.0.2.10:1234"
	rec := httptest.NewRecorder()
	engine.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "192.0.2.10", rec.Body.String())
	assert.Equal(t, "social", service)
}

func TestProxy_GatewayHeadersWinOverDownstream(t *testing.T) {
	t.Parallel()

	upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set(HeaderCorrelationID, r.Header.Get(HeaderCorrelationID))
		w.Header().Set(middleware.HeaderRateLimitLimit, "5")
		w.Header().Set(middleware.HeaderRateLimitRemaining, "4")
		w.Header().Set("X-Upstream", "yes")
		_, _ = io.WriteString(w, "ok")
	}))
	t.Cleanup(upstream.Close)

	f := newFixture(t, upstream.URL)

	mem := store.NewMemoryStore()
	limiter := ratelimit.NewFixedWindowLimiter(mem, time.Minute)
	t.Cleanup(func() { _ = limiter.Close() })

	engine := gin.New()
	engine.Use(
		middleware.CorrelationID(),
		middleware.RateLimit(middleware.RateLimitConfig{
			Limiter: limiter,
			Limits:  ratelimit.NewLimits(100, 200),
		}),
	)
	engine.NoRoute(f.proxy.Handle)

	req := httptest.NewRequest(http.MethodGet, "/api/social/x", nil)
	req.Header.Set(HeaderCorrelationID, "abc")
	rec := httptest.NewRecorder()
	engine.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, []string{"abc"}, rec.Header().Values(HeaderCorrelationID))
	assert.Equal(t, []string{"100"}, rec.Header().Values(middleware.HeaderRateLimitLimit))
	assert.Equal(t, []string{"99"}, rec.Header().Values(middleware.HeaderRateLimitRemaining))
	assert.Equal(t, "yes", rec.Header().Get("X-Upstream"))
}

func TestAppendForwardedFor(t *testing.T) {
	t.Parallel()

	assert.Equal(t, "1.1.1.1", appendForwardedFor("", "1.1.1.1"))
	assert.Equal(t, "2.2.2.2, 1.1.1.1", appendForwardedFor("2.2.2.2", "1.1.1.1"))
	assert.Equal(t, "2.2.2.2", appendForwardedFor("2.2.2.2", ""))
}
