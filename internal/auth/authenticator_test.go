package auth_test

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/lestrrat-go/jwx/v2/jwa"
	"github.com/lestrrat-go/jwx/v2/jwt"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/payment-relay/internal/auth"
	"github.com/noah-isme/payment-relay/internal/common"
)

var authNow = time.Date(2026, time.October, 16, 9, 0, 0, 0, time.UTC)

func newAuthenticator(t *testing.T, secret string) *auth.Authenticator {
	t.Helper()
	a, err := auth.NewAuthenticator(secret, "relay-issuer", "payment-relay", auth.WithClock(func() time.Time { return authNow }))
	require.NoError(t, err)
	return a
}

func TestAuthenticatorRoundTrip(t *testing.T) {
	a := newAuthenticator(t, "s3cret")
	token, err := a.Sign("merchant-1", time.Hour)
	require.NoError(t, err)

	subject, err := a.ParseToken(token)
	require.NoError(t, err)
	require.Equal(t, "merchant-1", subject)
}

func TestAuthenticatorRejects(t *testing.T) {
	a := newAuthenticator(t, "s3cret")
	other := newAuthenticator(t, "different")
	foreign, err := other.Sign("merchant-1", time.Hour)
	require.NoError(t, err)
	expired, err := a.Sign("merchant-1", -time.Minute)
	require.NoError(t, err)

	unsigned, err := jwt.NewBuilder().Subject("merchant-1").Expiration(authNow.Add(time.Hour)).Build()
	require.NoError(t, err)
	none, err := jwt.Sign(unsigned, jwt.WithInsecureNoSignature())
	require.NoError(t, err)

	hs512, err := jwt.Sign(unsigned, jwt.WithKey(jwa.HS512, []byte("s3cret")))
	require.NoError(t, err)

	for name, token := range map[string]string{
		"empty":          "",
		"garbage":        "not-a-token",
		"wrong secret":   foreign,
		"expired":        expired,
		"none algorithm": string(none),
		"other hmac":     string(hs512),
	} {
		t.Run(name, func(t *testing.T) {
			_, err := a.ParseToken(token)
			appErr, ok := common.AsAppError(err)
			require.True(t, ok, "got %v", err)
			require.Equal(t, http.StatusUnauthorized, appErr.HTTPStatus)
		})
	}
}

func TestNewAuthenticatorRequiresSecret(t *testing.T) {
	_, err := auth.NewAuthenticator(" ", "", "")
	require.Error(t, err)
}

func TestRequireAuth(t *testing.T) {
	a := newAuthenticator(t, "s3cret")
	token, err := a.Sign("merchant-7", time.Hour)
	require.NoError(t, err)

	var caller string
	h := auth.Middleware{Auth: a}.RequireAuth(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		caller, _ = common.CallerID(r.Context())
		w.WriteHeader(http.StatusOK)
	}))

	req := httptest.NewRequest(http.MethodPost, "/refund", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)
	require.Equal(t, "merchant-7", caller)

	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/refund", nil))
	require.Equal(t, http.StatusUnauthorized, rec.Code)
	require.Contains(t, rec.Body.String(), common.CodeUnauthorized)
}

func TestRequireAuthDisabled(t *testing.T) {
	h := auth.Middleware{}.RequireAuth(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	}))
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/payment/pi_1", nil))
	require.Equal(t, http.StatusNoContent, rec.Code)
}
