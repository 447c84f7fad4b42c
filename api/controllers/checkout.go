package controllers

import (
	"net/http"

	"github.com/verdantclimate/verdant-backend/api/responses"
	"github.com/verdantclimate/verdant-backend/api/validators"
	checkoutsvc "github.com/verdantclimate/verdant-backend/internal/checkout"
	"github.com/verdantclimate/verdant-backend/internal/pricing"
	pkgerrors "github.com/verdantclimate/verdant-backend/pkg/errors"
	"github.com/verdantclimate/verdant-backend/pkg/logger"
)

const maxContactFieldLen = 200

type createSessionRequest struct {
	Lines              []pricing.CartLine `json:"lines" validate:"required,min=1,dive"`
	ContactName        string             `json:"contactName" validate:"omitempty,max=200"`
	ContactEmail       string             `json:"contactEmail" validate:"omitempty,email"`
	ReturnURL          string             `json:"returnUrl" validate:"omitempty,url"`
	TotalCentsOverride int64              `json:"totalCentsOverride" validate:"omitempty,min=0"`
	LeaderboardConsent bool               `json:"leaderboardConsent"`
	LeaderboardName    string             `json:"leaderboardName" validate:"omitempty,max=200"`
}

// CreateCheckoutSession prices the submitted cart and opens a hosted payment
// session for it.
func CreateCheckoutSession(svc checkoutsvc.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "checkout service unavailable"))
			return
		}

		var payload createSessionRequest
		if err := validators.DecodeJSONBody(r, &payload); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		out, err := svc.Build(r.Context(), checkoutsvc.BuildInput{
			Lines:              payload.Lines,
			ContactName:        validators.SanitizeString(payload.ContactName, maxContactFieldLen),
			ContactEmail:       validators.SanitizeString(payload.ContactEmail, maxContactFieldLen),
			ReturnURL:          validators.SanitizeString(payload.ReturnURL, 2048),
			TotalCentsOverride: payload.TotalCentsOverride,
			LeaderboardConsent: payload.LeaderboardConsent,
			LeaderboardName:    validators.SanitizeString(payload.LeaderboardName, maxContactFieldLen),
		})
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		responses.WriteSuccessStatus(w, http.StatusCreated, out)
	}
}
