package session

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/lestrrat-go/jwx/v2/jwa"
	"github.com/lestrrat-go/jwx/v2/jws"
	"github.com/lestrrat-go/jwx/v2/jwt"
)

// Signer issues and verifies the HS256 cookie token carrying the session id.
type Signer struct {
	Secret    []byte
	Issuer    string
	ClockSkew time.Duration
	Now       func() time.Time
}

func (s Signer) now() time.Time {
	if s.Now != nil {
		return s.Now()
	}
	return time.Now()
}

// Sign returns a compact JWT whose subject is the session id.
func (s Signer) Sign(sessionID string, ttl time.Duration) (string, time.Time, error) {
	if len(s.Secret) == 0 {
		return "", time.Time{}, errors.New("session: signing secret not configured")
	}
	now := s.now()
	expiresAt := now.Add(ttl)
	tok, err := jwt.NewBuilder().
		Subject(sessionID).
		Issuer(s.Issuer).
		IssuedAt(now).
		NotBefore(now.Add(-s.ClockSkew)).
		Expiration(expiresAt).
		Build()
	if err != nil {
		return "", time.Time{}, err
	}
	signed, err := jwt.Sign(tok, jwt.WithKey(jwa.HS256, s.Secret))
	if err != nil {
		return "", time.Time{}, err
	}
	return string(signed), expiresAt, nil
}

// Verify validates the token and returns the session id it carries.
func (s Signer) Verify(token string) (string, error) {
	trimmed := strings.TrimSpace(token)
	if trimmed == "" {
		return "", errors.New("session: empty token")
	}
	alg, err := tokenAlgorithm(trimmed)
	if err != nil {
		return "", err
	}
	if alg != jwa.HS256 {
		return "", fmt.Errorf("session: unexpected token algorithm %s", alg)
	}
	parsed, err := jwt.ParseString(trimmed, jwt.WithKey(jwa.HS256, s.Secret), jwt.WithValidate(false))
	if err != nil {
		return "", err
	}
	opts := []jwt.ValidateOption{
		jwt.WithClock(jwt.ClockFunc(s.now)),
	}
	if s.ClockSkew > 0 {
		opts = append(opts, jwt.WithAcceptableSkew(s.ClockSkew))
	}
	if s.Issuer != "" {
		opts = append(opts, jwt.WithIssuer(s.Issuer))
	}
	if err := jwt.Validate(parsed, opts...); err != nil {
		return "", err
	}
	if parsed.Subject() == "" {
		return "", errors.New("session: token missing subject")
	}
	return parsed.Subject(), nil
}

func tokenAlgorithm(token string) (jwa.SignatureAlgorithm, error) {
	msg, err := jws.ParseString(token)
	if err != nil {
		return "", err
	}
	sigs := msg.Signatures()
	if len(sigs) != 1 {
		return "", errors.New("session: token must carry exactly one signature")
	}
	headers := sigs[0].ProtectedHeaders()
	if headers == nil || headers.Algorithm() == "" {
		return "", errors.New("session: token missing algorithm")
	}
	if headers.Algorithm() == jwa.NoSignature {
		return "", errors.New("session: token uses none algorithm")
	}
	return headers.Algorithm(), nil
}
