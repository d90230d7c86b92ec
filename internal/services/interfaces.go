package services

import (
	"context"
	"time"

	domain "github.com/lathermill/api/internal/domain"
	"github.com/lathermill/api/internal/payments"
	"github.com/lathermill/api/internal/repositories"
)

// Order lifecycle event names published to downstream consumers.
const (
	orderEventCreated        = "order.created"
	orderEventPaid           = "order.paid"
	orderEventLabelPurchased = "order.label.purchased"
	orderEventSwept          = "order.swept"
)

// OrderEventMessage is the payload published for order lifecycle events.
type OrderEventMessage struct {
	Event         string    `json:"event"`
	OrderID       string    `json:"orderId"`
	CustomerEmail string    `json:"customerEmail,omitempty"`
	Status        string    `json:"status,omitempty"`
	OccurredAt    time.Time `json:"occurredAt"`
}

// EventPublisher publishes order lifecycle events for downstream consumers.
// Publishing is best-effort; failures never abort the triggering operation.
type EventPublisher interface {
	PublishOrderEvent(ctx context.Context, message OrderEventMessage) (string, error)
}

// ShipmentGateway exposes the carrier operations the order lifecycle needs
// after a quote was taken: re-reading a shipment and buying a label.
type ShipmentGateway interface {
	GetShipment(ctx context.Context, shipmentID string) (domain.ShipmentQuote, error)
	PurchaseLabel(ctx context.Context, shipmentID, rateID string) (domain.Label, error)
}

// StartCheckoutCommand carries the cart and destination a shopper submits.
type StartCheckoutCommand struct {
	Email     string
	FirstName string
	LastName  string
	Phone     string

	ShippingAddress domain.Address
	Items           []domain.LineItem

	// ShippingMethod is either a carrier rate label from a prior quote or one
	// of the free-delivery options. ShipmentID ties it back to that quote and
	// is required for carrier methods.
	ShippingMethod string
	ShipmentID     string

	IdempotencyKey string
}

// CheckoutResult is the created order plus the gateway redirect.
type CheckoutResult struct {
	Order       domain.Order
	RedirectURL string
	SessionID   string
}

// CheckoutService opens payment sessions for shopper carts.
type CheckoutService interface {
	StartCheckout(ctx context.Context, cmd StartCheckoutCommand) (CheckoutResult, error)
}

// ManualPaymentMethod selects how an operator-entered order is settled.
type ManualPaymentMethod string

const (
	// ManualPaymentCash records the order as already paid out of band.
	ManualPaymentCash ManualPaymentMethod = "cash"
	// ManualPaymentInvoice emails a gateway invoice and leaves the order
	// unpaid until the invoice settles.
	ManualPaymentInvoice ManualPaymentMethod = "invoice"
)

// ManualOrderCommand carries an operator-entered order.
type ManualOrderCommand struct {
	Email     string
	FirstName string
	LastName  string
	Phone     string

	ShippingAddress domain.Address
	Items           []domain.LineItem

	ShippingMethod string
	ShipmentID     string
	ShippingCost   int64

	PaymentMethod  ManualPaymentMethod
	IdempotencyKey string
}

// ResendNotificationsCommand re-runs the post-payment notification steps.
type ResendNotificationsCommand struct {
	OrderID string

	// Force clears the sent flags first so every message goes out again.
	Force bool
}

// OrderService owns the order lifecycle: payment events, operator actions
// and the unpaid-order sweep.
type OrderService interface {
	HandlePaymentEvent(ctx context.Context, event payments.Event) error
	CreateManualOrder(ctx context.Context, cmd ManualOrderCommand) (domain.Order, error)
	GetOrder(ctx context.Context, orderID string) (domain.Order, error)
	ListOrders(ctx context.Context, filter repositories.OrderListFilter) ([]domain.Order, error)
	CreateLabel(ctx context.Context, orderID string) (domain.Order, error)
	ResendNotifications(ctx context.Context, cmd ResendNotificationsCommand) (domain.Order, error)
	SetFulfillment(ctx context.Context, orderID string, status domain.FulfillmentStatus) (domain.Order, error)
	SweepUnpaid(ctx context.Context) (int, error)
}
