package session

import (
	"context"
	"net/http"
	"strings"

	"github.com/rs/zerolog"

	"github.com/noah-isme/mamcung-storefront/internal/common"
)

// Credentials is what the commerce API hands back after a successful login.
type Credentials struct {
	Token      string
	CustomerID string
	Role       string
}

// Authenticator verifies customer credentials against the commerce API.
type Authenticator interface {
	Login(ctx context.Context, email, password string) (Credentials, error)
}

// CartEraser drops the cart owned by a session.
type CartEraser interface {
	Delete(ctx context.Context, sessionID string) error
}

// Handler exposes session lifecycle endpoints.
type Handler struct {
	Manager *Manager
	Auth    Authenticator
	Carts   CartEraser
}

type loginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type sessionView struct {
	ID            string `json:"id"`
	Authenticated bool   `json:"authenticated"`
	CustomerID    string `json:"customerId,omitempty"`
	Role          string `json:"role,omitempty"`
}

func viewOf(s *Session) sessionView {
	return sessionView{ID: s.ID, Authenticated: s.Authenticated(), CustomerID: s.CustomerID, Role: s.Role}
}

// Start handles POST /api/v1/session. The Ensure middleware has already
// created or resumed the session.
func (h *Handler) Start(w http.ResponseWriter, r *http.Request) {
	sess, ok := FromContext(r.Context())
	if !ok {
		common.JSONError(w, http.StatusInternalServerError, "INTERNAL", "session missing", nil)
		return
	}
	common.JSON(w, http.StatusOK, map[string]any{"data": viewOf(sess)})
}

// Login handles POST /api/v1/session/login.
func (h *Handler) Login(w http.ResponseWriter, r *http.Request) {
	if h.Auth == nil || h.Manager == nil {
		common.JSONError(w, http.StatusInternalServerError, "INTERNAL", "session service not configured", nil)
		return
	}
	sess, ok := FromContext(r.Context())
	if !ok {
		common.JSONError(w, http.StatusInternalServerError, "INTERNAL", "session missing", nil)
		return
	}
	var req loginRequest
	if err := common.DecodeJSON(r, &req); err != nil {
		common.WriteError(w, err)
		return
	}
	email := strings.TrimSpace(req.Email)
	if email == "" || req.Password == "" {
		common.JSONError(w, http.StatusBadRequest, "BAD_REQUEST", "email and password are required", nil)
		return
	}
	creds, err := h.Auth.Login(r.Context(), email, req.Password)
	if err != nil {
		common.WriteError(w, err)
		return
	}
	sess.UpstreamToken = creds.Token
	sess.CustomerID = creds.CustomerID
	sess.Role = strings.ToLower(strings.TrimSpace(creds.Role))
	if sess.Role == "" {
		sess.Role = RoleCustomer
	}
	if err := h.Manager.Save(r.Context(), sess); err != nil {
		common.WriteError(w, err)
		return
	}
	zerolog.Ctx(r.Context()).Info().Str("role", sess.Role).Msg("session_login")
	common.JSON(w, http.StatusOK, map[string]any{"data": viewOf(sess)})
}

// Logout handles POST /api/v1/session/logout: the cart goes with the session.
func (h *Handler) Logout(w http.ResponseWriter, r *http.Request) {
	if h.Manager == nil {
		common.JSONError(w, http.StatusInternalServerError, "INTERNAL", "session service not configured", nil)
		return
	}
	sess, _ := FromContext(r.Context())
	if sess != nil && h.Carts != nil {
		if err := h.Carts.Delete(r.Context(), sess.ID); err != nil {
			zerolog.Ctx(r.Context()).Warn().Err(err).Msg("cart_delete_on_logout_failed")
		}
	}
	if err := h.Manager.End(r.Context(), w, sess); err != nil {
		common.WriteError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
