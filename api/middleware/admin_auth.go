package middleware

import (
	"crypto/subtle"
	"net/http"
	"strings"

	"github.com/verdantclimate/verdant-backend/api/responses"
	"github.com/verdantclimate/verdant-backend/pkg/config"
	pkgerrors "github.com/verdantclimate/verdant-backend/pkg/errors"
	"github.com/verdantclimate/verdant-backend/pkg/logger"
)

// AdminAuth guards admin routes with the shared-secret bearer token. A server
// with no configured token rejects every request. All failures return the same
// unauthorized response.
func AdminAuth(cfg config.AdminConfig, logg *logger.Logger) func(http.Handler) http.Handler {
	configured := strings.TrimSpace(cfg.BearerToken)

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			unauthorized := func() {
				responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeUnauthorized, "missing credentials"))
			}

			if configured == "" {
				unauthorized()
				return
			}

			raw := strings.TrimSpace(r.Header.Get("Authorization"))
			if raw == "" {
				unauthorized()
				return
			}

			token := raw
			if strings.HasPrefix(strings.ToLower(token), "bearer ") {
				token = strings.TrimSpace(token[7:])
			}
			if token == "" {
				unauthorized()
				return
			}

			if subtle.ConstantTimeCompare([]byte(token), []byte(configured)) != 1 {
				unauthorized()
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}
