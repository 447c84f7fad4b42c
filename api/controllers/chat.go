package controllers

import (
	"net/http"

	"github.com/verdantclimate/verdant-backend/api/responses"
	"github.com/verdantclimate/verdant-backend/api/validators"
	"github.com/verdantclimate/verdant-backend/internal/chat"
	pkgerrors "github.com/verdantclimate/verdant-backend/pkg/errors"
	"github.com/verdantclimate/verdant-backend/pkg/logger"
)

const maxChatMessages = 40

type chatRequest struct {
	Messages []chat.Message `json:"messages" validate:"required,min=1,dive"`
}

type chatResponse struct {
	Reply string `json:"reply"`
}

// Chat proxies a support conversation to the assistant.
func Chat(svc chat.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "chat service unavailable"))
			return
		}

		var payload chatRequest
		if err := validators.DecodeJSONBody(r, &payload); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		if len(payload.Messages) > maxChatMessages {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeValidation, "conversation too long"))
			return
		}

		reply, err := svc.Complete(r.Context(), payload.Messages)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		responses.WriteSuccess(w, chatResponse{Reply: reply})
	}
}
