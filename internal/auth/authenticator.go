package auth

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/lestrrat-go/jwx/v2/jwa"
	"github.com/lestrrat-go/jwx/v2/jws"
	"github.com/lestrrat-go/jwx/v2/jwt"

	"github.com/noah-isme/payment-relay/internal/common"
)

// Authenticator verifies HS256 bearer tokens issued to merchant callers.
type Authenticator struct {
	secret    []byte
	validator TokenValidator
	now       func() time.Time
}

// Option customises an Authenticator.
type Option func(*Authenticator)

// WithClock overrides the clock used for expiry checks.
func WithClock(now func() time.Time) Option {
	return func(a *Authenticator) { a.now = now }
}

// NewAuthenticator returns an Authenticator for secret. Issuer and audience are only
// enforced when set.
func NewAuthenticator(secret, issuer, audience string, opts ...Option) (*Authenticator, error) {
	if strings.TrimSpace(secret) == "" {
		return nil, errors.New("auth: secret is required")
	}
	a := &Authenticator{
		secret: []byte(secret),
		validator: TokenValidator{
			Issuer:    issuer,
			Audience:  audience,
			ClockSkew: 30 * time.Second,
			Algorithm: jwa.HS256,
		},
		now: time.Now,
	}
	for _, opt := range opts {
		opt(a)
	}
	return a, nil
}

// ParseToken verifies token and returns its subject, the caller id.
func (a *Authenticator) ParseToken(token string) (string, error) {
	trimmed := strings.TrimSpace(token)
	if trimmed == "" {
		return "", common.Unauthorized("missing token", nil)
	}
	algorithm, err := tokenAlgorithm(trimmed)
	if err != nil {
		return "", common.Unauthorized("invalid token", err)
	}
	if algorithm != a.validator.Algorithm {
		return "", common.Unauthorized("invalid token", fmt.Errorf("unexpected token algorithm %s", algorithm))
	}
	parsed, err := jwt.ParseString(trimmed, jwt.WithKey(algorithm, a.secret), jwt.WithValidate(false))
	if err != nil {
		return "", common.Unauthorized("invalid token", err)
	}
	if err := a.validator.Validate(parsed, algorithm, a.now()); err != nil {
		return "", common.Unauthorized("invalid token", err)
	}
	if parsed.Subject() == "" {
		return "", common.Unauthorized("invalid token", errors.New("auth: token has no subject"))
	}
	return parsed.Subject(), nil
}

// Sign issues a token for subject valid for ttl. Used by operator tooling and tests.
func (a *Authenticator) Sign(subject string, ttl time.Duration) (string, error) {
	now := a.now()
	builder := jwt.NewBuilder().
		Subject(subject).
		IssuedAt(now).
		NotBefore(now).
		Expiration(now.Add(ttl))
	if a.validator.Issuer != "" {
		builder = builder.Issuer(a.validator.Issuer)
	}
	if a.validator.Audience != "" {
		builder = builder.Audience([]string{a.validator.Audience})
	}
	tok, err := builder.Build()
	if err != nil {
		return "", fmt.Errorf("build token: %w", err)
	}
	signed, err := jwt.Sign(tok, jwt.WithKey(jwa.HS256, a.secret))
	if err != nil {
		return "", fmt.Errorf("sign token: %w", err)
	}
	return string(signed), nil
}

func tokenAlgorithm(token string) (jwa.SignatureAlgorithm, error) {
	message, err := jws.ParseString(token)
	if err != nil {
		return "", err
	}
	signatures := message.Signatures()
	if len(signatures) != 1 {
		return "", errors.New("auth: token must carry exactly one signature")
	}
	headers := signatures[0].ProtectedHeaders()
	if headers == nil {
		return "", errors.New("auth: token missing protected headers")
	}
	alg := headers.Algorithm()
	switch alg {
	case "":
		return "", errors.New("auth: token missing algorithm")
	case jwa.NoSignature:
		return "", errors.New("auth: token uses none algorithm")
	}
	return alg, nil
}
