package handlers

import (
	"context"

	domain "github.com/lathermill/api/internal/domain"
	"github.com/lathermill/api/internal/payments"
	"github.com/lathermill/api/internal/repositories"
	"github.com/lathermill/api/internal/services"
)

type stubOrderService struct {
	handleFn  func(ctx context.Context, event payments.Event) error
	createFn  func(ctx context.Context, cmd services.ManualOrderCommand) (domain.Order, error)
	getFn     func(ctx context.Context, orderID string) (domain.Order, error)
	listFn    func(ctx context.Context, filter repositories.OrderListFilter) ([]domain.Order, error)
	labelFn   func(ctx context.Context, orderID string) (domain.Order, error)
	resendFn  func(ctx context.Context, cmd services.ResendNotificationsCommand) (domain.Order, error)
	fulfillFn func(ctx context.Context, orderID string, status domain.FulfillmentStatus) (domain.Order, error)
	sweepFn   func(ctx context.Context) (int, error)
}

func (s *stubOrderService) HandlePaymentEvent(ctx context.Context, event payments.Event) error {
	if s.handleFn != nil {
		return s.handleFn(ctx, event)
	}
	return nil
}

func (s *stubOrderService) CreateManualOrder(ctx context.Context, cmd services.ManualOrderCommand) (domain.Order, error) {
	if s.createFn != nil {
		return s.createFn(ctx, cmd)
	}
	return domain.Order{}, nil
}

func (s *stubOrderService) GetOrder(ctx context.Context, orderID string) (domain.Order, error) {
	if s.getFn != nil {
		return s.getFn(ctx, orderID)
	}
	return domain.Order{}, nil
}

func (s *stubOrderService) ListOrders(ctx context.Context, filter repositories.OrderListFilter) ([]domain.Order, error) {
	if s.listFn != nil {
		return s.listFn(ctx, filter)
	}
	return nil, nil
}

func (s *stubOrderService) CreateLabel(ctx context.Context, orderID string) (domain.Order, error) {
	if s.labelFn != nil {
		return s.labelFn(ctx, orderID)
	}
	return domain.Order{}, nil
}

func (s *stubOrderService) ResendNotifications(ctx context.Context, cmd services.ResendNotificationsCommand) (domain.Order, error) {
	if s.resendFn != nil {
		return s.resendFn(ctx, cmd)
	}
	return domain.Order{}, nil
}

func (s *stubOrderService) SetFulfillment(ctx context.Context, orderID string, status domain.FulfillmentStatus) (domain.Order, error) {
	if s.fulfillFn != nil {
		return s.fulfillFn(ctx, orderID, status)
	}
	return domain.Order{}, nil
}

func (s *stubOrderService) SweepUnpaid(ctx context.Context) (int, error) {
	if s.sweepFn != nil {
		return s.sweepFn(ctx)
	}
	return 0, nil
}

type stubCheckoutService struct {
	startFn func(ctx context.Context, cmd services.StartCheckoutCommand) (services.CheckoutResult, error)
}

func (s *stubCheckoutService) StartCheckout(ctx context.Context, cmd services.StartCheckoutCommand) (services.CheckoutResult, error) {
	if s.startFn != nil {
		return s.startFn(ctx, cmd)
	}
	return services.CheckoutResult{}, nil
}

type stubRateQuoter struct {
	quoteFn func(ctx context.Context, from, to domain.Address, weightOz float64) (domain.ShipmentQuote, error)
}

func (s *stubRateQuoter) QuoteShipment(ctx context.Context, from, to domain.Address, weightOz float64) (domain.ShipmentQuote, error) {
	if s.quoteFn != nil {
		return s.quoteFn(ctx, from, to, weightOz)
	}
	return domain.ShipmentQuote{}, nil
}

type stubEventParser struct {
	parseFn func(payload []byte, signatureHeader string) (payments.Event, error)
}

func (s *stubEventParser) Parse(payload []byte, signatureHeader string) (payments.Event, error) {
	if s.parseFn != nil {
		return s.parseFn(payload, signatureHeader)
	}
	return payments.Event{}, nil
}
