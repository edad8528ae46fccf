package session

import (
	"errors"
	"net/http"

	"github.com/rs/zerolog"

	"github.com/noah-isme/mamcung-storefront/internal/common"
	"github.com/noah-isme/mamcung-storefront/internal/obs"
)

// Ensure attaches the visitor's session to the request, starting a new one
// when the cookie is missing, invalid or expired.
func (m *Manager) Ensure(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		sess, err := m.Resolve(r)
		if err != nil {
			if !errors.Is(err, ErrNotFound) {
				zerolog.Ctx(ctx).Error().Err(err).Msg("session_resolve_failed")
				common.JSONError(w, http.StatusServiceUnavailable, "SESSION_UNAVAILABLE", "session store unavailable", nil)
				return
			}
			sess, err = m.Start(ctx, w)
			if err != nil {
				zerolog.Ctx(ctx).Error().Err(err).Msg("session_start_failed")
				common.JSONError(w, http.StatusServiceUnavailable, "SESSION_UNAVAILABLE", "session store unavailable", nil)
				return
			}
		}
		obs.AnnotateSession(ctx, sess.ID)
		logger := zerolog.Ctx(ctx).With().Str("session_id", sess.ID).Logger()
		ctx = logger.WithContext(WithSession(ctx, sess))
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// RequireCustomer rejects anonymous sessions.
func RequireCustomer(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		sess, ok := FromContext(r.Context())
		if !ok || !sess.Authenticated() {
			common.JSONError(w, http.StatusUnauthorized, "UNAUTHORIZED", "login required", nil)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// RequireStaff rejects sessions without a staff or admin role.
func RequireStaff(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		sess, ok := FromContext(r.Context())
		if !ok || !sess.Authenticated() {
			common.JSONError(w, http.StatusUnauthorized, "UNAUTHORIZED", "login required", nil)
			return
		}
		if !sess.IsStaff() {
			common.JSONError(w, http.StatusForbidden, "FORBIDDEN", "staff access required", nil)
			return
		}
		next.ServeHTTP(w, r)
	})
}
