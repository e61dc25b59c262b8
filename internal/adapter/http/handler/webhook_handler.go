package handler

import (
	"io"

	"storefront-payments/internal/core/ports"
	"storefront-payments/pkg/apperror"
	"storefront-payments/pkg/response"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"
)

// Signature headers, in lookup order.
const (
	HeaderChapaSignature  = "Chapa-Signature"
	HeaderXChapaSignature = "x-chapa-signature"
)

// WebhookHandler receives payment gateway callbacks.
type WebhookHandler struct {
	webhookSvc ports.WebhookService
	log        zerolog.Logger
}

// NewWebhookHandler creates a new WebhookHandler.
func NewWebhookHandler(webhookSvc ports.WebhookService, log zerolog.Logger) *WebhookHandler {
	return &WebhookHandler{webhookSvc: webhookSvc, log: log}
}

// Chapa handles POST /api/webhooks/chapa.
//
// Only authentication failures produce a non-200 status. Every
// authenticated delivery is acknowledged so the gateway stops retrying.
func (h *WebhookHandler) Chapa(c *gin.Context) {
	signature := c.GetHeader(HeaderChapaSignature)
	if signature == "" {
		signature = c.GetHeader(HeaderXChapaSignature)
	}
	if signature == "" {
		// Rejected by the service without reading the body.
		_, err := h.webhookSvc.HandleChapaWebhook(c.Request.Context(), nil, "")
		response.Error(c, err)
		return
	}

	// The raw bytes are what the gateway signed; never re-encode them.
	rawBody, err := io.ReadAll(c.Request.Body)
	if err != nil {
		h.log.Warn().Err(err).Msg("webhook body unreadable")
		response.Error(c, apperror.ErrInvalidWebhookSignature())
		return
	}

	outcome, err := h.webhookSvc.HandleChapaWebhook(c.Request.Context(), rawBody, signature)
	if err != nil {
		response.Error(c, err)
		return
	}

	response.Message(c, string(outcome))
}
