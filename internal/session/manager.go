package session

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// Manager ties the cookie token to the Redis record.
type Manager struct {
	Store        *Store
	Signer       Signer
	CookieName   string
	CookieDomain string
	CookieSecure bool
	SameSite     http.SameSite
	Now          func() time.Time
}

func (m *Manager) now() time.Time {
	if m.Now != nil {
		return m.Now()
	}
	return time.Now()
}

func (m *Manager) cookieName() string {
	if m.CookieName == "" {
		return "sid"
	}
	return m.CookieName
}

// Resolve returns the session referenced by the request cookie. ErrNotFound is
// returned when there is no usable cookie or the record has expired.
func (m *Manager) Resolve(r *http.Request) (*Session, error) {
	cookie, err := r.Cookie(m.cookieName())
	if err != nil || cookie.Value == "" {
		return nil, ErrNotFound
	}
	id, err := m.Signer.Verify(cookie.Value)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrNotFound, err)
	}
	return m.Store.Get(r.Context(), id)
}

// Start creates a new anonymous session and writes its cookie.
func (m *Manager) Start(ctx context.Context, w http.ResponseWriter) (*Session, error) {
	sess := &Session{ID: uuid.NewString(), CreatedAt: m.now().UTC()}
	if err := m.Store.Save(ctx, sess); err != nil {
		return nil, err
	}
	if err := m.writeCookie(w, sess.ID); err != nil {
		return nil, err
	}
	zerolog.Ctx(ctx).Debug().Str("session_id", sess.ID).Msg("session_started")
	return sess, nil
}

// Save persists changes made to sess.
func (m *Manager) Save(ctx context.Context, sess *Session) error {
	return m.Store.Save(ctx, sess)
}

// End deletes the session and expires its cookie.
func (m *Manager) End(ctx context.Context, w http.ResponseWriter, sess *Session) error {
	m.clearCookie(w)
	if sess == nil {
		return nil
	}
	if err := m.Store.Delete(ctx, sess.ID); err != nil && !errors.Is(err, ErrNotFound) {
		return err
	}
	return nil
}

func (m *Manager) writeCookie(w http.ResponseWriter, id string) error {
	token, expiresAt, err := m.Signer.Sign(id, m.Store.TTL())
	if err != nil {
		return fmt.Errorf("sign session: %w", err)
	}
	http.SetCookie(w, &http.Cookie{
		Name:     m.cookieName(),
		Value:    token,
		Domain:   m.CookieDomain,
		Path:     "/",
		Expires:  expiresAt,
		HttpOnly: true,
		Secure:   m.CookieSecure,
		SameSite: m.SameSite,
	})
	return nil
}

func (m *Manager) clearCookie(w http.ResponseWriter) {
	http.SetCookie(w, &http.Cookie{
		Name:     m.cookieName(),
		Value:    "",
		Domain:   m.CookieDomain,
		Path:     "/",
		MaxAge:   -1,
		HttpOnly: true,
		Secure:   m.CookieSecure,
		SameSite: m.SameSite,
	})
}
