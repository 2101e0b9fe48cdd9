// Package auth resolves the caller identity of a request.
//
// Token verification is the only concern here: the registry service decides
// what an identity may do with a record.
package auth

import (
	"context"
	"errors"
)

var (
	ErrUnauthenticated = errors.New("unauthenticated")
	ErrInvalidToken    = errors.New("invalid token")
)

// Session is a verified caller identity.
type Session struct {
	// UserID identifies an external user and is what claims are recorded against.
	UserID string
	// PublisherID is set when the user acts for a formal publisher.
	PublisherID string
	Admin       bool
}

type sessionKey struct{}

// AuthSessionTo returns a copy of ctx carrying s.
func AuthSessionTo(ctx context.Context, s *Session) context.Context {
	return context.WithValue(ctx, sessionKey{}, s)
}

// AuthSessionFrom returns the session stored in ctx, if any.
func AuthSessionFrom(ctx context.Context) (*Session, bool) {
	s, ok := ctx.Value(sessionKey{}).(*Session)
	return s, ok && s != nil
}

// WithSystemContext marks ctx as an internal admin caller, used by jobs and
// CLI commands that are not bound to a request.
func WithSystemContext(ctx context.Context) context.Context {
	return AuthSessionTo(ctx, &Session{UserID: "system", Admin: true})
}
