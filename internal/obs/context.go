package obs

import (
	"context"
	"net/http"

	"github.com/go-chi/chi/v5"
)

// routeOf returns the chi pattern matched for r. The pattern is only complete
// once routing has finished, so callers read it after the handler returns.
func routeOf(r *http.Request) string {
	if rc := chi.RouteContext(r.Context()); rc != nil {
		if pattern := rc.RoutePattern(); pattern != "" {
			return pattern
		}
	}
	return "unmatched"
}

// requestAnnotations collects fields set by inner handlers that the outer
// request logger reports once the handler chain returns.
type requestAnnotations struct {
	sessionID string
}

type annotationsKey struct{}

func withAnnotations(ctx context.Context) (context.Context, *requestAnnotations) {
	if a, ok := ctx.Value(annotationsKey{}).(*requestAnnotations); ok {
		return ctx, a
	}
	a := &requestAnnotations{}
	return context.WithValue(ctx, annotationsKey{}, a), a
}

// AnnotateSession records the session id for the request log line and the
// server span.
func AnnotateSession(ctx context.Context, sessionID string) {
	if ctx == nil {
		return
	}
	if a, ok := ctx.Value(annotationsKey{}).(*requestAnnotations); ok {
		a.sessionID = sessionID
	}
}
