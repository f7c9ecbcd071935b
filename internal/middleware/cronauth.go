package middleware

import (
	"net/http"
	"strings"

	"github.com/rs/zerolog/log"

	"github.com/chatterdesk/presence-engine/internal/audit"
	"github.com/chatterdesk/presence-engine/internal/util"
)

// CronAuthMiddleware guards the trigger endpoints with the shared secret
// the external scheduler presents as a bearer token. An empty secret
// disables the check outside of production only; production refuses every
// request until one is configured.
type CronAuthMiddleware struct {
	secret       string
	isProduction bool
}

func NewCronAuthMiddleware(secret string, isProduction bool) *CronAuthMiddleware {
	return &CronAuthMiddleware{secret: secret, isProduction: isProduction}
}

func (m *CronAuthMiddleware) Handler(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if m.secret == "" {
			if m.isProduction {
				log.Error().Msg("cron auth: no secret configured in production, refusing")
				writeJSON(w, http.StatusUnauthorized, map[string]string{
					"error": "Scheduler authentication not configured",
				})
				return
			}
			next.ServeHTTP(w, r)
			return
		}

		token := extractBearer(r)
		if token == "" || !util.ConstantTimeEqual(token, m.secret) {
			audit.LogFromRequest(r, audit.Event{
				Type: audit.EventAuthFailure,
				Details: map[string]interface{}{
					"path":      r.URL.Path,
					"tokenHash": util.HashToken(token),
				},
			})
			writeJSON(w, http.StatusUnauthorized, map[string]string{
				"error": "Invalid scheduler token",
			})
			return
		}

		next.ServeHTTP(w, r)
	})
}

func extractBearer(r *http.Request) string {
	authHeader := r.Header.Get("Authorization")
	if strings.HasPrefix(authHeader, "Bearer ") {
		return strings.TrimPrefix(authHeader, "Bearer ")
	}
	return ""
}
