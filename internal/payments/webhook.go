package payments

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/stripe/stripe-go/v78"
	"github.com/stripe/stripe-go/v78/webhook"
)

// EventType classifies gateway webhook events relevant to the order lifecycle.
type EventType string

const (
	// EventCheckoutCompleted signals an interactive checkout session finished paying.
	EventCheckoutCompleted EventType = "checkout_completed"
	// EventInvoicePaid signals a manually issued invoice was paid.
	EventInvoicePaid EventType = "invoice_paid"
	// EventPaymentSucceeded signals a payment intent succeeded outside the checkout flow.
	EventPaymentSucceeded EventType = "payment_succeeded"
	// EventIgnored marks event types the lifecycle does not act on.
	EventIgnored EventType = "ignored"
)

// Event is a gateway webhook event normalised for the order lifecycle engine.
type Event struct {
	Type EventType

	// GatewayType carries the raw gateway event name for logging.
	GatewayType string

	SessionID       string
	InvoiceID       string
	PaymentIntentID string
	CustomerID      string
	CustomerEmail   string

	// OrderID is present when the gateway object carries order metadata
	// (invoice and payment-intent paths).
	OrderID string
}

// ErrInvalidSignature is returned when the webhook payload fails signature verification.
var ErrInvalidSignature = errors.New("payments: invalid webhook signature")

// WebhookParser verifies and decodes gateway webhook deliveries.
type WebhookParser struct {
	secret string
}

// NewWebhookParser constructs a parser bound to the endpoint signing secret.
func NewWebhookParser(secret string) (*WebhookParser, error) {
	secret = strings.TrimSpace(secret)
	if secret == "" {
		return nil, errors.New("payments: webhook secret is required")
	}
	return &WebhookParser{secret: secret}, nil
}

// Parse verifies the signature header and maps the payload to a lifecycle event.
func (p *WebhookParser) Parse(payload []byte, signatureHeader string) (Event, error) {
	if p == nil {
		return Event{}, errors.New("payments: webhook parser is nil")
	}

	stripeEvent, err := webhook.ConstructEvent(payload, signatureHeader, p.secret)
	if err != nil {
		return Event{}, fmt.Errorf("%w: %v", ErrInvalidSignature, err)
	}

	return mapStripeEvent(stripeEvent)
}

func mapStripeEvent(stripeEvent stripe.Event) (Event, error) {
	event := Event{GatewayType: string(stripeEvent.Type)}

	switch stripeEvent.Type {
	case "checkout.session.completed":
		var session stripe.CheckoutSession
		if err := json.Unmarshal(stripeEvent.Data.Raw, &session); err != nil {
			return Event{}, fmt.Errorf("payments: decode checkout session: %w", err)
		}
		event.Type = EventCheckoutCompleted
		event.SessionID = session.ID
		if session.PaymentIntent != nil {
			event.PaymentIntentID = session.PaymentIntent.ID
		}
		if session.Customer != nil {
			event.CustomerID = session.Customer.ID
		}
		if session.CustomerDetails != nil {
			event.CustomerEmail = session.CustomerDetails.Email
		}
		event.OrderID = session.Metadata[MetadataOrderID]
		return event, nil

	case "invoice.paid", "invoice.payment_succeeded":
		var invoice stripe.Invoice
		if err := json.Unmarshal(stripeEvent.Data.Raw, &invoice); err != nil {
			return Event{}, fmt.Errorf("payments: decode invoice: %w", err)
		}
		event.Type = EventInvoicePaid
		event.InvoiceID = invoice.ID
		if invoice.PaymentIntent != nil {
			event.PaymentIntentID = invoice.PaymentIntent.ID
		}
		if invoice.Customer != nil {
			event.CustomerID = invoice.Customer.ID
		}
		event.CustomerEmail = invoice.CustomerEmail
		event.OrderID = invoice.Metadata[MetadataOrderID]
		return event, nil

	case "payment_intent.succeeded":
		var intent stripe.PaymentIntent
		if err := json.Unmarshal(stripeEvent.Data.Raw, &intent); err != nil {
			return Event{}, fmt.Errorf("payments: decode payment intent: %w", err)
		}
		event.Type = EventPaymentSucceeded
		event.PaymentIntentID = intent.ID
		if intent.Customer != nil {
			event.CustomerID = intent.Customer.ID
		}
		event.OrderID = intent.Metadata[MetadataOrderID]
		return event, nil

	default:
		event.Type = EventIgnored
		return event, nil
	}
}
