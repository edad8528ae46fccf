package session

import (
	"context"
	"time"
)

// Roles recognised on a session. An empty role means an anonymous visitor.
const (
	RoleCustomer = "customer"
	RoleStaff    = "staff"
	RoleAdmin    = "admin"
)

// Session is the explicit per-visitor context: identity, role and the
// commerce API token obtained at login. It is created on the first request,
// enriched on login and destroyed on logout.
type Session struct {
	ID            string    `json:"id"`
	CustomerID    string    `json:"customerId,omitempty"`
	Role          string    `json:"role,omitempty"`
	UpstreamToken string    `json:"upstreamToken,omitempty"`
	CreatedAt     time.Time `json:"createdAt"`
}

// Authenticated reports whether the visitor has logged in.
func (s *Session) Authenticated() bool {
	return s != nil && s.UpstreamToken != ""
}

// IsStaff reports whether the session may use back-office endpoints.
func (s *Session) IsStaff() bool {
	return s.Authenticated() && (s.Role == RoleStaff || s.Role == RoleAdmin)
}

// Token returns the upstream bearer token, empty for guests.
func (s *Session) Token() string {
	if s == nil {
		return ""
	}
	return s.UpstreamToken
}

type ctxKey struct{}

// WithSession stores s on ctx.
func WithSession(ctx context.Context, s *Session) context.Context {
	return context.WithValue(ctx, ctxKey{}, s)
}

// FromContext returns the session attached by the middleware.
func FromContext(ctx context.Context) (*Session, bool) {
	s, ok := ctx.Value(ctxKey{}).(*Session)
	return s, ok && s != nil
}

// IDFromContext returns the session id or "" when none is attached.
func IDFromContext(ctx context.Context) string {
	if s, ok := FromContext(ctx); ok {
		return s.ID
	}
	return ""
}
