package controllers

import (
	"net/http"
	"strings"

	"github.com/verdantclimate/verdant-backend/api/responses"
	"github.com/verdantclimate/verdant-backend/internal/leaderboard"
	pkgerrors "github.com/verdantclimate/verdant-backend/pkg/errors"
	"github.com/verdantclimate/verdant-backend/pkg/logger"
)

// Leaderboard returns the ranked consenting buyers for a purchase group.
func Leaderboard(svc leaderboard.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "leaderboard service unavailable"))
			return
		}

		group := strings.TrimSpace(r.URL.Query().Get("group"))
		entries, err := svc.Aggregate(r.Context(), group)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		responses.WriteSuccess(w, entries)
	}
}
