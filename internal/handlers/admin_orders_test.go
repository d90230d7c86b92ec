package handlers

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"

	domain "github.com/lathermill/api/internal/domain"
	"github.com/lathermill/api/internal/repositories"
	"github.com/lathermill/api/internal/services"
)

func newAdminRouter(svc services.OrderService) chi.Router {
	handlers := NewAdminOrderHandlers(svc)
	r := chi.NewRouter()
	handlers.Routes(r)
	return r
}

func adminTestOrder() domain.Order {
	return domain.Order{
		ID:                "ord_1",
		CustomerEmail:     "casey@example.test",
		Items:             []domain.LineItem{{Name: "Lavender Soap", Quantity: 2, UnitPrice: 1000}},
		Subtotal:          2000,
		Tax:               165,
		ShippingMethod:    domain.ShippingMethodLocalPickup,
		Status:            domain.OrderStatusPaid,
		FulfillmentStatus: domain.FulfillmentStatusUnfulfilled,
		CreatedAt:         time.Date(2025, time.June, 1, 12, 0, 0, 0, time.UTC),
	}
}

func TestAdminListOrdersAppliesFilters(t *testing.T) {
	var captured repositories.OrderListFilter
	svc := &stubOrderService{
		listFn: func(_ context.Context, filter repositories.OrderListFilter) ([]domain.Order, error) {
			captured = filter
			return []domain.Order{adminTestOrder()}, nil
		},
	}

	req := httptest.NewRequest(http.MethodGet, "/orders/?status=paid&fulfillment_status=unfulfilled&limit=10", nil)
	rr := httptest.NewRecorder()
	newAdminRouter(svc).ServeHTTP(rr, req)

	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rr.Code, rr.Body.String())
	}
	if captured.Status != "paid" || captured.FulfillmentStatus != "unfulfilled" || captured.Limit != 10 {
		t.Fatalf("unexpected filter %+v", captured)
	}

	var resp struct {
		Orders []orderPayload `json:"orders"`
	}
	if err := json.Unmarshal(rr.Body.Bytes(), &resp); err != nil {
		t.Fatalf("parse response: %v", err)
	}
	if len(resp.Orders) != 1 || resp.Orders[0].Total != 2165 {
		t.Fatalf("unexpected orders %+v", resp.Orders)
	}
}

func TestAdminGetOrderNotFound(t *testing.T) {
	svc := &stubOrderService{
		getFn: func(_ context.Context, orderID string) (domain.Order, error) {
			return domain.Order{}, fmt.Errorf("%w: %s", services.ErrOrderNotFound, orderID)
		},
	}

	req := httptest.NewRequest(http.MethodGet, "/orders/ord_missing", nil)
	rr := httptest.NewRecorder()
	newAdminRouter(svc).ServeHTTP(rr, req)

	if rr.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", rr.Code)
	}
}

func TestAdminCreateOrderForwardsCommand(t *testing.T) {
	var captured services.ManualOrderCommand
	svc := &stubOrderService{
		createFn: func(_ context.Context, cmd services.ManualOrderCommand) (domain.Order, error) {
			captured = cmd
			order := adminTestOrder()
			order.Status = domain.OrderStatusPaid
			return order, nil
		},
	}

	body := `{
		"email": "market@example.test",
		"items": [{"name": "Oat Soap", "quantity": 1, "unit_price": 1200}],
		"shipping_method": "Hand Delivery",
		"payment_method": "Cash"
	}`
	req := httptest.NewRequest(http.MethodPost, "/orders/", strings.NewReader(body))
	rr := httptest.NewRecorder()
	newAdminRouter(svc).ServeHTTP(rr, req)

	if rr.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d: %s", rr.Code, rr.Body.String())
	}
	if captured.PaymentMethod != services.ManualPaymentCash {
		t.Fatalf("payment method not normalised: %q", captured.PaymentMethod)
	}
	if captured.Email != "market@example.test" {
		t.Fatalf("unexpected command %+v", captured)
	}
}

func TestAdminCreateLabelMapsInvalidState(t *testing.T) {
	svc := &stubOrderService{
		labelFn: func(_ context.Context, orderID string) (domain.Order, error) {
			return domain.Order{}, fmt.Errorf("%w: label already purchased", services.ErrOrderInvalidState)
		},
	}

	req := httptest.NewRequest(http.MethodPost, "/orders/ord_1/label", nil)
	rr := httptest.NewRecorder()
	newAdminRouter(svc).ServeHTTP(rr, req)

	if rr.Code != http.StatusConflict {
		t.Fatalf("expected 409, got %d", rr.Code)
	}
}

func TestAdminResendNotificationsReadsForceFlag(t *testing.T) {
	var captured services.ResendNotificationsCommand
	svc := &stubOrderService{
		resendFn: func(_ context.Context, cmd services.ResendNotificationsCommand) (domain.Order, error) {
			captured = cmd
			return adminTestOrder(), nil
		},
	}

	req := httptest.NewRequest(http.MethodPost, "/orders/ord_1/notifications", strings.NewReader(`{"force":true}`))
	rr := httptest.NewRecorder()
	newAdminRouter(svc).ServeHTTP(rr, req)

	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rr.Code)
	}
	if captured.OrderID != "ord_1" || !captured.Force {
		t.Fatalf("unexpected command %+v", captured)
	}
}

func TestAdminSetFulfillment(t *testing.T) {
	svc := &stubOrderService{
		fulfillFn: func(_ context.Context, orderID string, status domain.FulfillmentStatus) (domain.Order, error) {
			order := adminTestOrder()
			order.FulfillmentStatus = status
			return order, nil
		},
	}

	req := httptest.NewRequest(http.MethodPost, "/orders/ord_1/fulfillment", strings.NewReader(`{"fulfillment_status":"fulfilled"}`))
	rr := httptest.NewRecorder()
	newAdminRouter(svc).ServeHTTP(rr, req)

	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rr.Code, rr.Body.String())
	}

	var resp orderPayload
	if err := json.Unmarshal(rr.Body.Bytes(), &resp); err != nil {
		t.Fatalf("parse response: %v", err)
	}
	if resp.FulfillmentStatus != "fulfilled" {
		t.Fatalf("unexpected fulfillment status %q", resp.FulfillmentStatus)
	}
	if resp.Status != "paid" {
		t.Fatalf("payment status must be untouched, got %q", resp.Status)
	}
}
