package handlers

import (
	"errors"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/lathermill/api/internal/platform/httpx"
	"github.com/lathermill/api/internal/services"
)

// CheckoutHandlers exposes the public checkout endpoint.
type CheckoutHandlers struct {
	checkout          services.CheckoutService
	idempotencyHeader string
}

// NewCheckoutHandlers constructs a new CheckoutHandlers instance.
func NewCheckoutHandlers(checkout services.CheckoutService, idempotencyHeader string) *CheckoutHandlers {
	if strings.TrimSpace(idempotencyHeader) == "" {
		idempotencyHeader = "Idempotency-Key"
	}
	return &CheckoutHandlers{
		checkout:          checkout,
		idempotencyHeader: idempotencyHeader,
	}
}

// Routes registers the /checkout endpoints.
func (h *CheckoutHandlers) Routes(r chi.Router) {
	if r == nil {
		return
	}
	r.Post("/session", h.startCheckout)
}

type startCheckoutRequest struct {
	Email           string            `json:"email"`
	FirstName       string            `json:"first_name"`
	LastName        string            `json:"last_name"`
	Phone           string            `json:"phone"`
	ShippingAddress addressPayload    `json:"shipping_address"`
	Items           []lineItemPayload `json:"items"`
	ShippingMethod  string            `json:"shipping_method"`
	ShipmentID      string            `json:"shipment_id"`
}

type startCheckoutResponse struct {
	Order       orderPayload `json:"order"`
	SessionID   string       `json:"session_id"`
	RedirectURL string       `json:"redirect_url"`
}

func (h *CheckoutHandlers) startCheckout(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.checkout == nil {
		httpx.WriteError(ctx, w, httpx.NewError("checkout_unavailable", "checkout service unavailable", http.StatusServiceUnavailable))
		return
	}

	var req startCheckoutRequest
	if err := decodeJSONBody(w, r, &req); err != nil {
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", err.Error(), http.StatusBadRequest))
		return
	}

	result, err := h.checkout.StartCheckout(ctx, services.StartCheckoutCommand{
		Email:           req.Email,
		FirstName:       req.FirstName,
		LastName:        req.LastName,
		Phone:           req.Phone,
		ShippingAddress: req.ShippingAddress.toDomain(),
		Items:           lineItemsToDomain(req.Items),
		ShippingMethod:  req.ShippingMethod,
		ShipmentID:      req.ShipmentID,
		IdempotencyKey:  strings.TrimSpace(r.Header.Get(h.idempotencyHeader)),
	})
	if err != nil {
		writeCheckoutError(w, r, err)
		return
	}

	writeJSONResponse(w, http.StatusCreated, startCheckoutResponse{
		Order:       orderFromDomain(result.Order),
		SessionID:   result.SessionID,
		RedirectURL: result.RedirectURL,
	})
}

func writeCheckoutError(w http.ResponseWriter, r *http.Request, err error) {
	ctx := r.Context()
	switch {
	case errors.Is(err, services.ErrCheckoutInvalidInput):
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", err.Error(), http.StatusBadRequest))
	case errors.Is(err, services.ErrCheckoutRateUnavailable):
		httpx.WriteError(ctx, w, httpx.NewError("rate_unavailable", err.Error(), http.StatusUnprocessableEntity))
	default:
		httpx.WriteError(ctx, w, httpx.NewError("checkout_failed", "failed to start checkout", http.StatusInternalServerError))
	}
}
