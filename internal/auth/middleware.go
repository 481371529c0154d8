package auth

import (
	"net/http"
	"strings"

	"github.com/rs/zerolog"

	"github.com/noah-isme/payment-relay/internal/common"
	"github.com/noah-isme/payment-relay/internal/obs"
)

// Middleware requires a valid bearer token on every request it wraps.
type Middleware struct {
	Auth *Authenticator
}

// RequireAuth rejects unauthenticated requests with 401 and stores the caller id on the
// context and the request logger otherwise. A nil Authenticator lets everything through.
func (m Middleware) RequireAuth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if m.Auth == nil {
			next.ServeHTTP(w, r)
			return
		}
		callerID, err := m.Auth.ParseToken(bearerToken(r))
		if err != nil {
			appErr, ok := common.AsAppError(err)
			if !ok {
				appErr = common.Unauthorized("missing or invalid token", err)
			}
			zerolog.Ctx(r.Context()).Warn().Err(appErr.Err).Msg(appErr.Message)
			common.WriteAppError(w, appErr)
			return
		}
		obs.WithCaller(r, callerID)
		next.ServeHTTP(w, r.WithContext(common.WithCallerID(r.Context(), callerID)))
	})
}

func bearerToken(r *http.Request) string {
	header := strings.TrimSpace(r.Header.Get("Authorization"))
	if len(header) > 7 && strings.EqualFold(header[:7], "bearer ") {
		return strings.TrimSpace(header[7:])
	}
	return ""
}
