package middleware

import (
	"bytes"
	"io"
	"net/http"

	"github.com/rs/zerolog/log"

	"github.com/consultrelay/consult-relay-go/internal/audit"
	apperrors "github.com/consultrelay/consult-relay-go/internal/errors"
	"github.com/consultrelay/consult-relay-go/internal/util"
)

const WebhookSignatureHeader = "X-Webhook-Signature"

// WebhookSignatureMiddleware checks the hex HMAC-SHA256 of the raw body.
// Verification is skipped when no secret is configured.
type WebhookSignatureMiddleware struct {
	secret string
}

func NewWebhookSignatureMiddleware(secret string) *WebhookSignatureMiddleware {
	return &WebhookSignatureMiddleware{secret: secret}
}

func (m *WebhookSignatureMiddleware) Handler(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if m.secret == "" {
			log.Warn().Msg("webhook signature verification bypassed: WEBHOOK_SECRET is not configured")
			next.ServeHTTP(w, r)
			return
		}

		signature := r.Header.Get(WebhookSignatureHeader)
		if signature == "" {
			m.reject(w, r, "missing_signature", "Missing signature")
			return
		}

		body, err := io.ReadAll(r.Body)
		if err != nil {
			writeError(w, apperrors.InvalidInput("body", "unreadable request body"))
			return
		}
		r.Body = io.NopCloser(bytes.NewReader(body))

		if !util.ConstantTimeEqual(util.HmacSHA256(m.secret, string(body)), signature) {
			m.reject(w, r, "invalid_signature", "Invalid signature")
			return
		}

		next.ServeHTTP(w, r)
	})
}

func (m *WebhookSignatureMiddleware) reject(w http.ResponseWriter, r *http.Request, reason, message string) {
	audit.LogFromRequest(r, audit.Event{
		Type:    audit.EventWebhookRejected,
		Details: map[string]interface{}{"reason": reason},
	})
	writeError(w, apperrors.Unauthorized(message))
}
