package controllers

import (
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/verdantclimate/verdant-backend/api/responses"
	"github.com/verdantclimate/verdant-backend/api/validators"
	"github.com/verdantclimate/verdant-backend/internal/orders"
	pkgerrors "github.com/verdantclimate/verdant-backend/pkg/errors"
	"github.com/verdantclimate/verdant-backend/pkg/logger"
)

const (
	defaultAdminListLimit = 50
	maxAdminListLimit     = 500
)

// AdminListOrders returns recent paid sessions from the gateway for support
// staff.
func AdminListOrders(svc orders.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "order service unavailable"))
			return
		}

		limit, err := validators.ParseQueryInt(r, "limit", defaultAdminListLimit, 1, maxAdminListLimit)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		listed, err := svc.ListRecent(r.Context(), limit)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		responses.WriteSuccess(w, listed)
	}
}

// AdminResendReceipt re-sends the receipt email for a paid session regardless
// of the emailed flag.
func AdminResendReceipt(svc orders.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "order service unavailable"))
			return
		}

		sessionID := strings.TrimSpace(chi.URLParam(r, "sessionId"))
		if sessionID == "" {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeValidation, "session id is required"))
			return
		}

		if err := svc.ResendReceipt(r.Context(), sessionID); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		responses.WriteSuccess(w, map[string]string{"status": "sent"})
	}
}
