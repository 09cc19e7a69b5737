// Package auth resolves the caller identity of a request.
//
// Identity is a closed set: a request is either Authenticated with a
// subject ID or Anonymous. Token problems never reject a request here; they
// only make the caller anonymous.
package auth

import "context"

// Identity is either Authenticated or Anonymous.
type Identity interface {
	isIdentity()
}

// Authenticated is a caller with a validated bearer token.
type Authenticated struct {
	SubjectID string
}

// Anonymous is a caller without a valid token.
type Anonymous struct{}

func (Authenticated) isIdentity() {}
func (Anonymous) isIdentity()     {}

// SubjectID returns the subject of an authenticated identity.
func SubjectID(id Identity) (string, bool) {
	if a, ok := id.(Authenticated); ok && a.SubjectID != "" {
		return a.SubjectID, true
	}
	return "", false
}

type identityKey struct{}

// WithIdentity stores id in ctx.
func WithIdentity(ctx context.Context, id Identity) context.Context {
	return context.WithValue(ctx, identityKey{}, id)
}

// FromContext returns the identity in ctx, or Anonymous if none was set.
func FromContext(ctx context.Context) Identity {
	if id, ok := ctx.Value(identityKey{}).(Identity); ok && id != nil {
		return id
	}
	return Anonymous{}
}
