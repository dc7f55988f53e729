package handler

import (
	"net/http"

	"github.com/rs/zerolog"

	"github.com/consultrelay/consult-relay-go/internal/service"
)

type WebhookHandler struct {
	webhooks *service.WebhookService
}

func NewWebhookHandler(webhooks *service.WebhookService) *WebhookHandler {
	return &WebhookHandler{webhooks: webhooks}
}

// POST /webhooks/video
func (h *WebhookHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	var ev service.WebhookEvent
	if err := decodeJSON(r, &ev); err != nil {
		writeError(w, err)
		return
	}

	if err := h.webhooks.Handle(r.Context(), ev); err != nil {
		zerolog.Ctx(r.Context()).Error().Err(err).
			Str("type", ev.Type).
			Str("id", ev.ID).
			Msg("failed to handle webhook event")
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]bool{"received": true})
}
