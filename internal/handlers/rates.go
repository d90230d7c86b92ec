package handlers

import (
	"context"
	"net/http"

	"github.com/go-chi/chi/v5"

	domain "github.com/lathermill/api/internal/domain"
	"github.com/lathermill/api/internal/platform/httpx"
	"github.com/lathermill/api/internal/shipping"
)

// RateQuoter quotes carrier rates for a destination.
type RateQuoter interface {
	QuoteShipment(ctx context.Context, from, to domain.Address, weightOz float64) (domain.ShipmentQuote, error)
}

// RateHandlers exposes the public shipping rate quote endpoint.
type RateHandlers struct {
	quotes       RateQuoter
	origin       domain.Address
	ceilingCents int64
}

// NewRateHandlers constructs a new RateHandlers instance.
func NewRateHandlers(quotes RateQuoter, origin domain.Address, ceilingCents int64) *RateHandlers {
	if ceilingCents <= 0 {
		ceilingCents = shipping.DefaultRateCeilingCents
	}
	return &RateHandlers{
		quotes:       quotes,
		origin:       origin,
		ceilingCents: ceilingCents,
	}
}

// Routes registers the /shipping endpoints.
func (h *RateHandlers) Routes(r chi.Router) {
	if r == nil {
		return
	}
	r.Post("/rates", h.quoteRates)
}

type quoteRatesRequest struct {
	Address  addressPayload `json:"address"`
	WeightOz float64        `json:"weight_oz"`
}

type quoteRatesResponse struct {
	ShipmentID string        `json:"shipment_id"`
	Rates      []ratePayload `json:"rates"`
}

func (h *RateHandlers) quoteRates(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.quotes == nil {
		httpx.WriteError(ctx, w, httpx.NewError("shipping_unavailable", "shipping service unavailable", http.StatusServiceUnavailable))
		return
	}

	var req quoteRatesRequest
	if err := decodeJSONBody(w, r, &req); err != nil {
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", err.Error(), http.StatusBadRequest))
		return
	}

	destination := req.Address.toDomain()
	if err := shipping.ValidateDestination(destination); err != nil {
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", err.Error(), http.StatusBadRequest))
		return
	}

	if req.WeightOz <= 0 {
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", "weight_oz must be positive", http.StatusBadRequest))
		return
	}

	quote, err := h.quotes.QuoteShipment(ctx, h.origin, destination, req.WeightOz)
	if err != nil {
		httpx.WriteError(ctx, w, httpx.NewError("quote_failed", "failed to quote shipping rates", http.StatusBadGateway))
		return
	}

	prepared := shipping.PrepareRates(quote.Rates, h.ceilingCents)
	rates := make([]ratePayload, 0, len(prepared))
	for _, rate := range prepared {
		rates = append(rates, rateFromDomain(rate))
	}

	writeJSONResponse(w, http.StatusOK, quoteRatesResponse{
		ShipmentID: quote.ShipmentID,
		Rates:      rates,
	})
}
