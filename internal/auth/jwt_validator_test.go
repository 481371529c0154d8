package auth

import (
	"testing"
	"time"

	"github.com/lestrrat-go/jwx/v2/jwa"
	"github.com/lestrrat-go/jwx/v2/jwt"
	"github.com/stretchr/testify/require"
)

func buildToken(t *testing.T, issuer string, iat, nbf, exp time.Time) jwt.Token {
	t.Helper()
	tok, err := jwt.NewBuilder().
		Issuer(issuer).
		Audience([]string{"relay"}).
		Subject("merchant-1").
		IssuedAt(iat).
		NotBefore(nbf).
		Expiration(exp).
		Build()
	require.NoError(t, err)
	return tok
}

func TestTokenValidator(t *testing.T) {
	now := time.Date(2026, time.October, 16, 9, 0, 0, 0, time.UTC)
	v := TokenValidator{Issuer: "issuer", Audience: "relay", ClockSkew: time.Second, Algorithm: jwa.HS256}

	tests := []struct {
		name    string
		token   jwt.Token
		alg     jwa.SignatureAlgorithm
		wantErr bool
	}{
		{"valid", buildToken(t, "issuer", now, now, now.Add(time.Minute)), jwa.HS256, false},
		{"issuer mismatch", buildToken(t, "other", now, now, now.Add(time.Minute)), jwa.HS256, true},
		{"expired", buildToken(t, "issuer", now.Add(-2*time.Hour), now.Add(-2*time.Hour), now.Add(-time.Minute)), jwa.HS256, true},
		{"not yet valid", buildToken(t, "issuer", now, now.Add(5*time.Minute), now.Add(10*time.Minute)), jwa.HS256, true},
		{"algorithm mismatch", buildToken(t, "issuer", now, now, now.Add(time.Minute)), jwa.RS256, true},
		{"missing algorithm", buildToken(t, "issuer", now, now, now.Add(time.Minute)), "", true},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			err := v.Validate(tc.token, tc.alg, now)
			if tc.wantErr {
				require.Error(t, err)
				return
			}
			require.NoError(t, err)
		})
	}
}
