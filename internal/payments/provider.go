package payments

import (
	"context"
	"time"
)

// MetadataOrderID is the metadata key linking gateway objects back to an order.
const MetadataOrderID = "order_id"

// SessionItem is a line item submitted when opening a checkout session.
// Amount is the unit price in cents.
type SessionItem struct {
	Name        string
	Description string
	Amount      int64
	Quantity    int64
}

// CheckoutSessionRequest describes a new gateway checkout session for an order.
type CheckoutSessionRequest struct {
	OrderID        string
	CustomerEmail  string
	SuccessURL     string
	CancelURL      string
	Currency       string
	Items          []SessionItem
	IdempotencyKey string
}

// CheckoutSession is the handle returned when a session is opened.
type CheckoutSession struct {
	ID          string
	RedirectURL string
	ExpiresAt   time.Time
}

// GatewayLineItem is an authoritative line item as recorded by the gateway.
type GatewayLineItem struct {
	Name     string
	Quantity int64
	Amount   int64
}

// CheckoutSessionDetails carries the authoritative payment data fetched after
// a session completes.
type CheckoutSessionDetails struct {
	ID              string
	PaymentIntentID string
	CustomerID      string
	CustomerEmail   string
	ReceiptURL      string
	Items           []GatewayLineItem
}

// CustomerRequest identifies a gateway customer to find or create.
type CustomerRequest struct {
	Email   string
	Name    string
	Phone   string
	OrderID string
}

// InvoiceItem is a line item attached to a gateway invoice. Amount is the unit
// price in cents.
type InvoiceItem struct {
	Name     string
	Amount   int64
	Quantity int64
}

// InvoiceRequest describes an invoice issued for a manually created order.
// When MarkPaid is set the invoice is finalized and recorded as paid out of
// band instead of being emailed to the customer.
type InvoiceRequest struct {
	CustomerID     string
	OrderID        string
	Currency       string
	Items          []InvoiceItem
	DaysUntilDue   int
	MarkPaid       bool
	IdempotencyKey string
}

// Invoice is the handle returned after invoice creation.
type Invoice struct {
	ID              string
	PaymentIntentID string
	HostedURL       string
	Status          string
}

// Provider is the payment gateway contract consumed by the order lifecycle.
type Provider interface {
	CreateCheckoutSession(ctx context.Context, req CheckoutSessionRequest) (CheckoutSession, error)
	LookupCheckoutSession(ctx context.Context, sessionID string) (CheckoutSessionDetails, error)
	FindOrCreateCustomer(ctx context.Context, req CustomerRequest) (string, error)
	CreateInvoice(ctx context.Context, req InvoiceRequest) (Invoice, error)
}
