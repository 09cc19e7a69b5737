package middleware

// HTTP header names.
const (
	HeaderCorrelationID      = "X-Correlation-ID"
	HeaderRetryAfter         = "Retry-After"
	HeaderRateLimitLimit     = "X-RateLimit-Limit"
	HeaderRateLimitRemaining = "X-RateLimit-Remaining"
	HeaderRateLimitReset     = "X-RateLimit-Reset"
)

// Gin context keys.
const (
	// CorrelationIDKey holds the request's correlation ID.
	CorrelationIDKey = "correlationID"

	// ServiceKey holds the name of the service a request was routed to.
	// The proxy sets it; the metrics and logging middleware read it.
	ServiceKey = "service"

	// SpanKey holds the server span of the request.
	SpanKey = "otel-span"
)
