package auth

import (
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/lestrrat-go/jwx/v2/jwa"
	"github.com/lestrrat-go/jwx/v2/jwt"
)

// DefaultClockSkew is the tolerance applied to exp and nbf.
const DefaultClockSkew = 30 * time.Second

var (
	// ErrNoToken is returned when the request carries no bearer token.
	ErrNoToken = errors.New("no bearer token")

	// ErrNoSubject is returned for valid tokens without a sub claim.
	ErrNoSubject = errors.New("token has no subject")
)

// Config configures HS256 bearer token validation.
type Config struct {
	Secret   string
	Issuer   string
	Audience string
}

// Authenticator validates bearer tokens.
type Authenticator struct {
	secret   []byte
	issuer   string
	audience string
	clock    clockwork.Clock
	metrics  *Metrics
}

// Option configures an Authenticator.
type Option func(*Authenticator)

// WithClock sets the clock used for exp and nbf checks.
func WithClock(clock clockwork.Clock) Option {
	return func(a *Authenticator) {
		a.clock = clock
	}
}

// WithMetrics sets the outcome metrics.
func WithMetrics(metrics *Metrics) Option {
	return func(a *Authenticator) {
		a.metrics = metrics
	}
}

// NewAuthenticator returns nil when cfg has no secret, which disables
// token validation.
func NewAuthenticator(cfg Config, opts ...Option) *Authenticator {
	if cfg.Secret == "" {
		return nil
	}
	a := &Authenticator{
		secret:   []byte(cfg.Secret),
		issuer:   cfg.Issuer,
		audience: cfg.Audience,
		clock:    clockwork.NewRealClock(),
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// Identify returns the identity for r. The error explains why the caller is
// anonymous and is informational only.
func (a *Authenticator) Identify(r *http.Request) (Identity, error) {
	if a == nil {
		return Anonymous{}, nil
	}

	raw, ok := BearerToken(r)
	if !ok {
		a.metrics.observe(outcomeAnonymous)
		return Anonymous{}, ErrNoToken
	}

	opts := []jwt.ParseOption{
		jwt.WithKey(jwa.HS256, a.secret),
		jwt.WithValidate(true),
		jwt.WithClock(jwt.ClockFunc(a.clock.Now)),
		jwt.WithAcceptableSkew(DefaultClockSkew),
	}
	if a.issuer != "" {
		opts = append(opts, jwt.WithIssuer(a.issuer))
	}
	if a.audience != "" {
		opts = append(opts, jwt.WithAudience(a.audience))
	}

	tok, err := jwt.Parse([]byte(raw), opts...)
	if err != nil {
		a.metrics.observe(outcomeInvalid)
		return Anonymous{}, fmt.Errorf("invalid bearer token: %w", err)
	}
	if tok.Subject() == "" {
		a.metrics.observe(outcomeInvalid)
		return Anonymous{}, ErrNoSubject
	}
	a.metrics.observe(outcomeAuthenticated)
	return Authenticated{SubjectID: tok.Subject()}, nil
}

// BearerToken extracts the token from the Authorization header.
func BearerToken(r *http.Request) (string, bool) {
	header := r.Header.Get("Authorization")
	const prefix = "Bearer "
	if len(header) <= len(prefix) || !strings.EqualFold(header[:len(prefix)], prefix) {
		return "", false
	}
	token := strings.TrimSpace(header[len(prefix):])
	return token, token != ""
}
