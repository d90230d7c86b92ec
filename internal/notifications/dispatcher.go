package notifications

import (
	"context"

	domain "github.com/lathermill/api/internal/domain"
)

// Kind selects the email template rendered by the mail service.
type Kind string

const (
	// KindCustomerConfirmation is the post-payment order confirmation.
	KindCustomerConfirmation Kind = "customer-confirmation"
	// KindCustomerShipment carries the tracking number after a label purchase.
	KindCustomerShipment Kind = "customer-shipment"
	// KindOwnerPickup alerts the owner about a paid pickup order.
	KindOwnerPickup Kind = "owner-pickup"
	// KindOwnerShipping alerts the owner about a paid shippable order.
	KindOwnerShipping Kind = "owner-shipping"
)

// Message is a templated send request with the structured order payload the
// mail service needs to render the template.
type Message struct {
	Kind      Kind
	Recipient string
	Order     domain.Order

	// PackingSlipURL is included on owner-shipping messages.
	PackingSlipURL string
}

// Dispatcher sends templated emails. Implementations must treat each call as
// best-effort; the caller owns the idempotency flags.
type Dispatcher interface {
	Send(ctx context.Context, msg Message) error
}
