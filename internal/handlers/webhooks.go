package handlers

import (
	"errors"
	"io"
	"net/http"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/lathermill/api/internal/payments"
	"github.com/lathermill/api/internal/platform/httpx"
	"github.com/lathermill/api/internal/services"
)

const maxWebhookBodySize = 1 << 20

// EventParser verifies a raw webhook payload and maps it to a gateway event.
type EventParser interface {
	Parse(payload []byte, signatureHeader string) (payments.Event, error)
}

// WebhookHandlers receives payment gateway callbacks.
type WebhookHandlers struct {
	parser EventParser
	orders services.OrderService
	logger *zap.Logger
}

// NewWebhookHandlers constructs a new WebhookHandlers instance.
func NewWebhookHandlers(parser EventParser, orders services.OrderService, logger *zap.Logger) *WebhookHandlers {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &WebhookHandlers{
		parser: parser,
		orders: orders,
		logger: logger,
	}
}

// Routes registers the /webhooks endpoints.
func (h *WebhookHandlers) Routes(r chi.Router) {
	if r == nil {
		return
	}
	r.Post("/stripe", h.handleStripe)
}

// handleStripe verifies the signature and applies the event. Events that do
// not match an order still return 2xx so the gateway stops retrying them; only
// signature failures and transient errors are reported back.
func (h *WebhookHandlers) handleStripe(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.parser == nil || h.orders == nil {
		httpx.WriteError(ctx, w, httpx.NewError("webhooks_unavailable", "webhook processing unavailable", http.StatusServiceUnavailable))
		return
	}

	payload, err := io.ReadAll(io.LimitReader(r.Body, maxWebhookBodySize))
	if err != nil {
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", "failed to read request body", http.StatusBadRequest))
		return
	}

	event, err := h.parser.Parse(payload, r.Header.Get("Stripe-Signature"))
	if err != nil {
		if errors.Is(err, payments.ErrInvalidSignature) {
			httpx.WriteError(ctx, w, httpx.NewError("invalid_signature", "webhook signature verification failed", http.StatusBadRequest))
			return
		}
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", "failed to parse webhook payload", http.StatusBadRequest))
		return
	}

	if err := h.orders.HandlePaymentEvent(ctx, event); err != nil {
		h.logger.Error("webhook processing failed",
			zap.String("gateway_type", event.GatewayType),
			zap.Error(err),
		)
		httpx.WriteError(ctx, w, httpx.NewError("webhook_failed", "failed to process webhook", http.StatusInternalServerError))
		return
	}

	writeJSONResponse(w, http.StatusOK, map[string]any{"received": true})
}
