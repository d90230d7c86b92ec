package handlers

import (
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"

	domain "github.com/lathermill/api/internal/domain"
	"github.com/lathermill/api/internal/platform/httpx"
	"github.com/lathermill/api/internal/repositories"
	"github.com/lathermill/api/internal/services"
)

const (
	defaultOrderListLimit = 50
	maxOrderListLimit     = 200
)

// AdminOrderHandlers exposes the operator order endpoints.
type AdminOrderHandlers struct {
	orders services.OrderService
}

// NewAdminOrderHandlers constructs a new AdminOrderHandlers instance.
func NewAdminOrderHandlers(orders services.OrderService) *AdminOrderHandlers {
	return &AdminOrderHandlers{orders: orders}
}

// Routes registers the /admin/orders endpoints.
func (h *AdminOrderHandlers) Routes(r chi.Router) {
	if r == nil {
		return
	}
	r.Route("/orders", func(orders chi.Router) {
		orders.Get("/", h.listOrders)
		orders.Post("/", h.createOrder)
		orders.Get("/{orderID}", h.getOrder)
		orders.Post("/{orderID}/label", h.createLabel)
		orders.Post("/{orderID}/notifications", h.resendNotifications)
		orders.Post("/{orderID}/fulfillment", h.setFulfillment)
	})
}

func (h *AdminOrderHandlers) listOrders(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.orders == nil {
		httpx.WriteError(ctx, w, httpx.NewError("order_service_unavailable", "order service unavailable", http.StatusServiceUnavailable))
		return
	}

	query := r.URL.Query()
	limit := defaultOrderListLimit
	if raw := strings.TrimSpace(query.Get("limit")); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil {
			httpx.WriteError(ctx, w, httpx.NewError("invalid_request", "limit must be an integer", http.StatusBadRequest))
			return
		}
		switch {
		case parsed <= 0:
			limit = defaultOrderListLimit
		case parsed > maxOrderListLimit:
			limit = maxOrderListLimit
		default:
			limit = parsed
		}
	}

	orders, err := h.orders.ListOrders(ctx, repositories.OrderListFilter{
		Status:            strings.TrimSpace(query.Get("status")),
		FulfillmentStatus: strings.TrimSpace(query.Get("fulfillment_status")),
		Limit:             limit,
	})
	if err != nil {
		writeOrderError(ctx, w, err)
		return
	}

	items := make([]orderPayload, 0, len(orders))
	for _, order := range orders {
		items = append(items, orderFromDomain(order))
	}
	writeJSONResponse(w, http.StatusOK, map[string]any{"orders": items})
}

type createOrderRequest struct {
	Email           string            `json:"email"`
	FirstName       string            `json:"first_name"`
	LastName        string            `json:"last_name"`
	Phone           string            `json:"phone"`
	ShippingAddress addressPayload    `json:"shipping_address"`
	Items           []lineItemPayload `json:"items"`
	ShippingMethod  string            `json:"shipping_method"`
	ShipmentID      string            `json:"shipment_id"`
	ShippingCost    int64             `json:"shipping_cost"`
	PaymentMethod   string            `json:"payment_method"`
}

func (h *AdminOrderHandlers) createOrder(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.orders == nil {
		httpx.WriteError(ctx, w, httpx.NewError("order_service_unavailable", "order service unavailable", http.StatusServiceUnavailable))
		return
	}

	var req createOrderRequest
	if err := decodeJSONBody(w, r, &req); err != nil {
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", err.Error(), http.StatusBadRequest))
		return
	}

	order, err := h.orders.CreateManualOrder(ctx, services.ManualOrderCommand{
		Email:           req.Email,
		FirstName:       req.FirstName,
		LastName:        req.LastName,
		Phone:           req.Phone,
		ShippingAddress: req.ShippingAddress.toDomain(),
		Items:           lineItemsToDomain(req.Items),
		ShippingMethod:  req.ShippingMethod,
		ShipmentID:      req.ShipmentID,
		ShippingCost:    req.ShippingCost,
		PaymentMethod:   services.ManualPaymentMethod(strings.ToLower(strings.TrimSpace(req.PaymentMethod))),
	})
	if err != nil {
		writeOrderError(ctx, w, err)
		return
	}

	writeJSONResponse(w, http.StatusCreated, orderFromDomain(order))
}

func (h *AdminOrderHandlers) getOrder(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.orders == nil {
		httpx.WriteError(ctx, w, httpx.NewError("order_service_unavailable", "order service unavailable", http.StatusServiceUnavailable))
		return
	}

	orderID := strings.TrimSpace(chi.URLParam(r, "orderID"))
	order, err := h.orders.GetOrder(ctx, orderID)
	if err != nil {
		writeOrderError(ctx, w, err)
		return
	}

	writeJSONResponse(w, http.StatusOK, orderFromDomain(order))
}

func (h *AdminOrderHandlers) createLabel(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.orders == nil {
		httpx.WriteError(ctx, w, httpx.NewError("order_service_unavailable", "order service unavailable", http.StatusServiceUnavailable))
		return
	}

	orderID := strings.TrimSpace(chi.URLParam(r, "orderID"))
	order, err := h.orders.CreateLabel(ctx, orderID)
	if err != nil {
		writeOrderError(ctx, w, err)
		return
	}

	writeJSONResponse(w, http.StatusOK, orderFromDomain(order))
}

type resendNotificationsRequest struct {
	Force bool `json:"force"`
}

func (h *AdminOrderHandlers) resendNotifications(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.orders == nil {
		httpx.WriteError(ctx, w, httpx.NewError("order_service_unavailable", "order service unavailable", http.StatusServiceUnavailable))
		return
	}

	var req resendNotificationsRequest
	if r.ContentLength > 0 {
		if err := decodeJSONBody(w, r, &req); err != nil {
			httpx.WriteError(ctx, w, httpx.NewError("invalid_request", err.Error(), http.StatusBadRequest))
			return
		}
	}

	orderID := strings.TrimSpace(chi.URLParam(r, "orderID"))
	order, err := h.orders.ResendNotifications(ctx, services.ResendNotificationsCommand{
		OrderID: orderID,
		Force:   req.Force,
	})
	if err != nil {
		writeOrderError(ctx, w, err)
		return
	}

	writeJSONResponse(w, http.StatusOK, orderFromDomain(order))
}

type setFulfillmentRequest struct {
	FulfillmentStatus string `json:"fulfillment_status"`
}

func (h *AdminOrderHandlers) setFulfillment(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.orders == nil {
		httpx.WriteError(ctx, w, httpx.NewError("order_service_unavailable", "order service unavailable", http.StatusServiceUnavailable))
		return
	}

	var req setFulfillmentRequest
	if err := decodeJSONBody(w, r, &req); err != nil {
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", err.Error(), http.StatusBadRequest))
		return
	}

	orderID := strings.TrimSpace(chi.URLParam(r, "orderID"))
	order, err := h.orders.SetFulfillment(ctx, orderID, domain.FulfillmentStatus(strings.ToLower(strings.TrimSpace(req.FulfillmentStatus))))
	if err != nil {
		writeOrderError(ctx, w, err)
		return
	}

	writeJSONResponse(w, http.StatusOK, orderFromDomain(order))
}
