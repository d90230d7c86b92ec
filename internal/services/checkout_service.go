package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/oklog/ulid/v2"

	domain "github.com/lathermill/api/internal/domain"
	"github.com/lathermill/api/internal/payments"
	"github.com/lathermill/api/internal/repositories"
	"github.com/lathermill/api/internal/shipping"
)

const orderIDPrefix = "ord_"

var (
	// ErrCheckoutInvalidInput signals the shopper submitted an unusable cart.
	ErrCheckoutInvalidInput = errors.New("checkout: invalid input")
	// ErrCheckoutRateUnavailable indicates the selected shipping rate could not
	// be resolved against the quoted shipment.
	ErrCheckoutRateUnavailable = errors.New("checkout: shipping rate unavailable")
)

// CheckoutServiceDeps bundles collaborators required to construct the checkout service.
type CheckoutServiceDeps struct {
	Orders      repositories.OrderRepository
	Customers   repositories.CustomerRepository
	Payments    payments.Provider
	Shipping    ShipmentGateway
	Events      EventPublisher
	Tax         TaxPolicy
	Clock       func() time.Time
	IDGenerator func() string
	Logger      func(ctx context.Context, event string, fields map[string]any)

	SuccessURL string
	CancelURL  string
	Currency   string
}

type checkoutService struct {
	orders    repositories.OrderRepository
	customers repositories.CustomerRepository
	payments  payments.Provider
	shipping  ShipmentGateway
	events    EventPublisher
	tax       TaxPolicy
	clock     func() time.Time
	newID     func() string
	logger    func(context.Context, string, map[string]any)

	successURL string
	cancelURL  string
	currency   string
}

// NewCheckoutService wires dependencies into a concrete CheckoutService implementation.
func NewCheckoutService(deps CheckoutServiceDeps) (CheckoutService, error) {
	if deps.Orders == nil {
		return nil, errors.New("checkout service: order repository is required")
	}
	if deps.Customers == nil {
		return nil, errors.New("checkout service: customer repository is required")
	}
	if deps.Payments == nil {
		return nil, errors.New("checkout service: payment provider is required")
	}
	if deps.Shipping == nil {
		return nil, errors.New("checkout service: shipment gateway is required")
	}
	if strings.TrimSpace(deps.SuccessURL) == "" || strings.TrimSpace(deps.CancelURL) == "" {
		return nil, errors.New("checkout service: success and cancel urls are required")
	}

	tax := deps.Tax
	if tax == nil {
		tax = FlatTaxPolicy(DefaultTaxBasisPoints)
	}

	clock := deps.Clock
	if clock == nil {
		clock = time.Now
	}

	idGen := deps.IDGenerator
	if idGen == nil {
		idGen = func() string {
			return ulid.Make().String()
		}
	}

	logger := deps.Logger
	if logger == nil {
		logger = func(context.Context, string, map[string]any) {}
	}

	currency := strings.ToLower(strings.TrimSpace(deps.Currency))
	if currency == "" {
		currency = "usd"
	}

	return &checkoutService{
		orders:    deps.Orders,
		customers: deps.Customers,
		payments:  deps.Payments,
		shipping:  deps.Shipping,
		events:    deps.Events,
		tax:       tax,
		clock: func() time.Time {
			return clock().UTC()
		},
		newID:      idGen,
		logger:     logger,
		successURL: strings.TrimSpace(deps.SuccessURL),
		cancelURL:  strings.TrimSpace(deps.CancelURL),
		currency:   currency,
	}, nil
}

// StartCheckout prices the cart, opens a gateway session and stores the order
// as unpaid. Payment confirmation arrives later through the webhook handlers.
func (s *checkoutService) StartCheckout(ctx context.Context, cmd StartCheckoutCommand) (CheckoutResult, error) {
	email := strings.ToLower(strings.TrimSpace(cmd.Email))
	if email == "" {
		return CheckoutResult{}, fmt.Errorf("%w: customer email is required", ErrCheckoutInvalidInput)
	}
	if len(cmd.Items) == 0 {
		return CheckoutResult{}, fmt.Errorf("%w: cart must contain at least one item", ErrCheckoutInvalidInput)
	}
	for _, item := range cmd.Items {
		if strings.TrimSpace(item.Name) == "" {
			return CheckoutResult{}, fmt.Errorf("%w: item name is required", ErrCheckoutInvalidInput)
		}
		if item.Quantity <= 0 {
			return CheckoutResult{}, fmt.Errorf("%w: item quantity must be positive", ErrCheckoutInvalidInput)
		}
		if item.UnitPrice < 0 {
			return CheckoutResult{}, fmt.Errorf("%w: item price must not be negative", ErrCheckoutInvalidInput)
		}
	}

	method := strings.TrimSpace(cmd.ShippingMethod)
	if method == "" {
		return CheckoutResult{}, fmt.Errorf("%w: shipping method is required", ErrCheckoutInvalidInput)
	}

	shipmentID := strings.TrimSpace(cmd.ShipmentID)
	var shippingCost int64
	if !domain.IsFreeDeliveryMethod(method) {
		if shipmentID == "" {
			return CheckoutResult{}, fmt.Errorf("%w: shipment id is required for carrier delivery", ErrCheckoutInvalidInput)
		}
		if err := shipping.ValidateDestination(cmd.ShippingAddress); err != nil {
			return CheckoutResult{}, fmt.Errorf("%w: %v", ErrCheckoutInvalidInput, err)
		}

		quote, err := s.shipping.GetShipment(ctx, shipmentID)
		if err != nil {
			return CheckoutResult{}, fmt.Errorf("checkout: load shipment %q: %w", shipmentID, err)
		}
		rate, err := shipping.FindRateByMethod(quote, method)
		if err != nil {
			return CheckoutResult{}, fmt.Errorf("%w: %v", ErrCheckoutRateUnavailable, err)
		}
		shippingCost = rate.Amount
		method = rate.MethodLabel()
	}

	var subtotal int64
	for _, item := range cmd.Items {
		subtotal += item.Amount()
	}
	tax := s.tax(subtotal)

	now := s.clock()
	order := domain.Order{
		ID:                orderIDPrefix + s.newID(),
		CustomerEmail:     email,
		CustomerFirstName: strings.TrimSpace(cmd.FirstName),
		CustomerLastName:  strings.TrimSpace(cmd.LastName),
		CustomerPhone:     strings.TrimSpace(cmd.Phone),
		ShippingAddress:   cmd.ShippingAddress,
		Items:             cmd.Items,
		Subtotal:          subtotal,
		Tax:               tax,
		ShippingCost:      shippingCost,
		ShippingMethod:    method,
		ShipmentID:        shipmentID,
		Status:            domain.OrderStatusUnpaid,
		FulfillmentStatus: domain.FulfillmentStatusUnfulfilled,
		CreatedAt:         now,
		UpdatedAt:         now,
	}

	session, err := s.payments.CreateCheckoutSession(ctx, payments.CheckoutSessionRequest{
		OrderID:        order.ID,
		CustomerEmail:  email,
		SuccessURL:     s.successURL,
		CancelURL:      s.cancelURL,
		Currency:       s.currency,
		Items:          sessionItems(order),
		IdempotencyKey: cmd.IdempotencyKey,
	})
	if err != nil {
		return CheckoutResult{}, fmt.Errorf("checkout: open payment session: %w", err)
	}

	// A retried request with the same idempotency key gets the same session
	// back from the gateway. Reuse the order stored for it instead of writing
	// a duplicate.
	if existing, err := s.orders.FindByCheckoutSessionID(ctx, session.ID); err == nil {
		return CheckoutResult{Order: existing, RedirectURL: session.RedirectURL, SessionID: session.ID}, nil
	} else if !isRepoNotFound(err) {
		return CheckoutResult{}, fmt.Errorf("checkout: look up session order: %w", err)
	}

	order.Payment.CheckoutSessionID = session.ID
	stored, err := s.orders.Insert(ctx, order)
	if err != nil {
		return CheckoutResult{}, fmt.Errorf("checkout: store order: %w", err)
	}

	if _, err := upsertCustomer(ctx, s.customers, s.clock, s.newID, domain.Customer{
		Email:     email,
		FirstName: cmd.FirstName,
		LastName:  cmd.LastName,
		Phone:     cmd.Phone,
	}); err != nil {
		// The order is the source of truth; a customer write failure must not
		// block the shopper.
		s.logger(ctx, "checkout.customer_upsert_failed", map[string]any{
			"order_id": stored.ID,
			"error":    err.Error(),
		})
	}

	s.publish(ctx, orderEventCreated, stored)

	return CheckoutResult{Order: stored, RedirectURL: session.RedirectURL, SessionID: session.ID}, nil
}

func (s *checkoutService) publish(ctx context.Context, event string, order domain.Order) {
	if s.events == nil {
		return
	}
	if _, err := s.events.PublishOrderEvent(ctx, OrderEventMessage{
		Event:         event,
		OrderID:       order.ID,
		CustomerEmail: order.CustomerEmail,
		Status:        string(order.Status),
		OccurredAt:    s.clock(),
	}); err != nil {
		s.logger(ctx, "checkout.event_publish_failed", map[string]any{
			"order_id": order.ID,
			"event":    event,
			"error":    err.Error(),
		})
	}
}

func sessionItems(order domain.Order) []payments.SessionItem {
	items := make([]payments.SessionItem, 0, len(order.Items)+2)
	for _, item := range order.Items {
		name := item.Name
		if strings.TrimSpace(item.Size) != "" {
			name = fmt.Sprintf("%s (%s)", item.Name, item.Size)
		}
		items = append(items, payments.SessionItem{
			Name:     name,
			Amount:   item.UnitPrice,
			Quantity: item.Quantity,
		})
	}
	if order.Tax > 0 {
		items = append(items, payments.SessionItem{Name: "Sales Tax", Amount: order.Tax, Quantity: 1})
	}
	if order.ShippingCost > 0 {
		items = append(items, payments.SessionItem{
			Name:     "Shipping: " + order.ShippingMethod,
			Amount:   order.ShippingCost,
			Quantity: 1,
		})
	}
	return items
}

func isRepoNotFound(err error) bool {
	var repoErr repositories.RepositoryError
	return errors.As(err, &repoErr) && repoErr.IsNotFound()
}
