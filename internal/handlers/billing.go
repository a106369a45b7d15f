package handlers

import (
	"io"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/storyboomai/storyboom/internal/billing"
	"github.com/storyboomai/storyboom/internal/services"
	appErrors "github.com/storyboomai/storyboom/pkg/errors"
	"github.com/storyboomai/storyboom/pkg/logger"
	"github.com/storyboomai/storyboom/pkg/response"
)

// WebhookVerifier checks a raw webhook delivery against its signature header
// and decodes it into a billing event.
type WebhookVerifier interface {
	VerifyWebhook(payload []byte, signatureHeader string) (*billing.Event, error)
}

// BillingHandler exposes checkout and the payment webhook.
type BillingHandler struct {
	subscriptions *services.SubscriptionService
	verifier      WebhookVerifier
	log           *zap.Logger
}

func NewBillingHandler(subscriptions *services.SubscriptionService, verifier WebhookVerifier) *BillingHandler {
	return &BillingHandler{
		subscriptions: subscriptions,
		verifier:      verifier,
		log:           logger.WithModule("billing"),
	}
}

type checkoutRequest struct {
	PaymentType string `json:"payment_type" validate:"required,oneof=subscription extra_credits"`
	Quantity    int    `json:"quantity" validate:"omitempty,min=1,max=100"`
}

// Checkout validates the purchase and creates a provider checkout session.
func (h *BillingHandler) Checkout(c *gin.Context) {
	var req checkoutRequest
	if !bindAndValidate(c, &req) {
		return
	}

	session, err := h.subscriptions.StartCheckout(requestContext(c), currentUserID(c), req.PaymentType, req.Quantity)
	if err != nil {
		response.Error(c, mapServiceError(err))
		return
	}

	response.Success(c, http.StatusOK, session)
}

// Webhook ingests provider payment events. Signature failures are rejected;
// processing failures return a 5xx-class status so the provider redelivers.
func (h *BillingHandler) Webhook(c *gin.Context) {
	payload, err := io.ReadAll(io.LimitReader(c.Request.Body, 1<<20))
	if err != nil {
		response.Error(c, appErrors.NewBadRequest("unable to read webhook payload"))
		return
	}

	event, err := h.verifier.VerifyWebhook(payload, c.GetHeader("Stripe-Signature"))
	if err != nil {
		h.log.Warn("webhook signature rejected", zap.Error(err))
		response.Error(c, appErrors.ErrWebhookSignature.WithInternal(err))
		return
	}

	if err := h.subscriptions.HandlePaymentEvent(requestContext(c), event); err != nil {
		h.log.Error("webhook processing failed",
			zap.String("event_id", event.ID),
			zap.String("event_type", event.Type),
			zap.Error(err),
		)
		response.Error(c, mapServiceError(err))
		return
	}

	response.Success(c, http.StatusOK, gin.H{"received": true})
}
