package ratelimit

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/noah-isme/payment-relay/internal/common"
)

type stubLimiter struct {
	res  Result
	err  error
	keys []string
}

func (s *stubLimiter) Allow(_ context.Context, key string) (Result, error) {
	s.keys = append(s.keys, key)
	return s.res, s.err
}

func okHandler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) { w.WriteHeader(http.StatusOK) })
}

func TestMiddlewareRejectsWithJSON(t *testing.T) {
	stub := &stubLimiter{res: Result{Allowed: false, Limit: 1, ResetAt: time.Now().Add(30 * time.Second)}}
	h := Handler{Limiter: stub}.Middleware(okHandler())

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/refund", nil))

	require.Equal(t, http.StatusTooManyRequests, rec.Code)
	require.Equal(t, "1", rec.Header().Get("X-RateLimit-Limit"))
	require.NotEmpty(t, rec.Header().Get("Retry-After"))
	var env common.ErrorEnvelope
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &env))
	require.Equal(t, common.CodeRateLimited, env.Error.Code)
}

func TestMiddlewareKeysByCallerThenIP(t *testing.T) {
	stub := &stubLimiter{res: Result{Allowed: true, Limit: 10, Remaining: 9}}
	h := Handler{Limiter: stub}.Middleware(okHandler())

	anon := httptest.NewRequest(http.MethodGet, "/payment/pi_1", nil)
	anon.RemoteAddr = "203.0.113.7:5555"
	h.ServeHTTP(httptest.NewRecorder(), anon)

	authed := httptest.NewRequest(http.MethodGet, "/payment/pi_1", nil)
	authed = authed.WithContext(common.WithCallerID(authed.Context(), "merchant-1"))
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, authed)

	require.Equal(t, http.StatusOK, rec.Code)
	require.Equal(t, "9", rec.Header().Get("X-RateLimit-Remaining"))
	require.Equal(t, []string{"ip:203.0.113.7", "caller:merchant-1"}, stub.keys)
}

func TestMiddlewareFailsOpen(t *testing.T) {
	stub := &stubLimiter{err: errors.New("redis down")}
	var reported error
	h := Handler{Limiter: stub, OnError: func(err error) { reported = err }}.Middleware(okHandler())

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	require.EqualError(t, reported, "redis down")
}
