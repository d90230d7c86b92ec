package payments

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/stripe/stripe-go/v78"
	"github.com/stripe/stripe-go/v78/client"
	"github.com/stripe/stripe-go/v78/customer"
)

// StripeLogger defines the logging contract for Stripe provider operations.
type StripeLogger func(ctx context.Context, event string, fields map[string]any)

type stripeSessionAPI interface {
	New(params *stripe.CheckoutSessionParams) (*stripe.CheckoutSession, error)
	Get(id string, params *stripe.CheckoutSessionParams) (*stripe.CheckoutSession, error)
}

type stripeCustomerAPI interface {
	New(params *stripe.CustomerParams) (*stripe.Customer, error)
	List(params *stripe.CustomerListParams) *customer.Iter
}

type stripeInvoiceAPI interface {
	New(params *stripe.InvoiceParams) (*stripe.Invoice, error)
	FinalizeInvoice(id string, params *stripe.InvoiceFinalizeInvoiceParams) (*stripe.Invoice, error)
	SendInvoice(id string, params *stripe.InvoiceSendInvoiceParams) (*stripe.Invoice, error)
	Pay(id string, params *stripe.InvoicePayParams) (*stripe.Invoice, error)
}

type stripeInvoiceItemAPI interface {
	New(params *stripe.InvoiceItemParams) (*stripe.InvoiceItem, error)
}

type stripeClients struct {
	sessions     stripeSessionAPI
	customers    stripeCustomerAPI
	invoices     stripeInvoiceAPI
	invoiceItems stripeInvoiceItemAPI
}

// StripeProviderConfig configures the StripeProvider.
type StripeProviderConfig struct {
	APIKey   string
	Backends *stripe.Backends
	Logger   StripeLogger
	Clock    func() time.Time
	Clients  *stripeClients
}

// StripeProvider implements the Provider interface using Stripe APIs.
type StripeProvider struct {
	api    stripeClients
	clock  func() time.Time
	logger StripeLogger
}

var _ Provider = (*StripeProvider)(nil)

// NewStripeProvider constructs a Stripe Provider using the given configuration.
func NewStripeProvider(cfg StripeProviderConfig) (*StripeProvider, error) {
	apiKey := strings.TrimSpace(cfg.APIKey)
	if apiKey == "" && cfg.Clients == nil {
		return nil, errors.New("stripe: api key is required")
	}

	var clients stripeClients
	if cfg.Clients != nil {
		clients = *cfg.Clients
	} else {
		sc := client.New(apiKey, cfg.Backends)
		clients = stripeClients{
			sessions:     sc.CheckoutSessions,
			customers:    sc.Customers,
			invoices:     sc.Invoices,
			invoiceItems: sc.InvoiceItems,
		}
	}

	if clients.sessions == nil || clients.invoices == nil || clients.invoiceItems == nil {
		return nil, errors.New("stripe: incomplete client configuration")
	}

	clock := cfg.Clock
	if clock == nil {
		clock = time.Now
	}

	logger := cfg.Logger
	if logger == nil {
		logger = func(context.Context, string, map[string]any) {}
	}

	return &StripeProvider{
		api: clients,
		clock: func() time.Time {
			return clock().UTC()
		},
		logger: logger,
	}, nil
}

// CreateCheckoutSession creates a Stripe Checkout session keyed to the order.
func (p *StripeProvider) CreateCheckoutSession(ctx context.Context, req CheckoutSessionRequest) (CheckoutSession, error) {
	if p == nil {
		return CheckoutSession{}, errors.New("stripe: provider is nil")
	}

	currency := strings.ToLower(defaultString(req.Currency, "usd"))

	params := &stripe.CheckoutSessionParams{
		Mode:       stripe.String(string(stripe.CheckoutSessionModePayment)),
		SuccessURL: stripe.String(req.SuccessURL),
		CancelURL:  stripe.String(req.CancelURL),
	}
	params.Context = ctx
	if key := strings.TrimSpace(req.IdempotencyKey); key != "" {
		params.SetIdempotencyKey(key)
	}
	if email := strings.TrimSpace(req.CustomerEmail); email != "" {
		params.CustomerEmail = stripe.String(email)
	}

	metadata := map[string]string{MetadataOrderID: req.OrderID}
	params.Metadata = metadata
	params.PaymentIntentData = &stripe.CheckoutSessionPaymentIntentDataParams{
		Metadata: metadata,
	}

	lineItems := make([]*stripe.CheckoutSessionLineItemParams, 0, len(req.Items))
	for _, item := range req.Items {
		line := &stripe.CheckoutSessionLineItemParams{
			Quantity: stripe.Int64(max64(item.Quantity, 1)),
			PriceData: &stripe.CheckoutSessionLineItemPriceDataParams{
				Currency:   stripe.String(currency),
				UnitAmount: stripe.Int64(item.Amount),
				ProductData: &stripe.CheckoutSessionLineItemPriceDataProductDataParams{
					Name: stripe.String(item.Name),
				},
			},
		}
		if item.Description != "" {
			line.PriceData.ProductData.Description = stripe.String(item.Description)
		}
		lineItems = append(lineItems, line)
	}
	if len(lineItems) == 0 {
		return CheckoutSession{}, errors.New("stripe: checkout session requires line items")
	}
	params.LineItems = lineItems

	session, err := p.api.sessions.New(params)
	if err != nil {
		return CheckoutSession{}, fmt.Errorf("stripe: create checkout session: %w", err)
	}

	p.logger(ctx, "payments.stripe.session.created", map[string]any{
		"sessionId": session.ID,
		"orderId":   req.OrderID,
		"currency":  session.Currency,
	})

	expiresAt := p.clock().Add(30 * time.Minute)
	if session.ExpiresAt != 0 {
		expiresAt = time.Unix(session.ExpiresAt, 0).UTC()
	}

	return CheckoutSession{
		ID:          session.ID,
		RedirectURL: session.URL,
		ExpiresAt:   expiresAt,
	}, nil
}

// LookupCheckoutSession fetches the authoritative session state, expanded with
// line items and the latest charge for the receipt URL.
func (p *StripeProvider) LookupCheckoutSession(ctx context.Context, sessionID string) (CheckoutSessionDetails, error) {
	if p == nil {
		return CheckoutSessionDetails{}, errors.New("stripe: provider is nil")
	}
	sessionID = strings.TrimSpace(sessionID)
	if sessionID == "" {
		return CheckoutSessionDetails{}, errors.New("stripe: session id is required")
	}

	params := &stripe.CheckoutSessionParams{}
	params.Context = ctx
	params.AddExpand("line_items")
	params.AddExpand("payment_intent.latest_charge")

	session, err := p.api.sessions.Get(sessionID, params)
	if err != nil {
		return CheckoutSessionDetails{}, fmt.Errorf("stripe: lookup checkout session: %w", err)
	}

	details := CheckoutSessionDetails{ID: session.ID}
	if session.PaymentIntent != nil {
		details.PaymentIntentID = session.PaymentIntent.ID
		if charge := session.PaymentIntent.LatestCharge; charge != nil {
			details.ReceiptURL = charge.ReceiptURL
		}
	}
	if session.Customer != nil {
		details.CustomerID = session.Customer.ID
	}
	if session.CustomerDetails != nil {
		details.CustomerEmail = session.CustomerDetails.Email
	}
	if session.LineItems != nil {
		details.Items = make([]GatewayLineItem, 0, len(session.LineItems.Data))
		for _, item := range session.LineItems.Data {
			if item == nil {
				continue
			}
			details.Items = append(details.Items, GatewayLineItem{
				Name:     item.Description,
				Quantity: item.Quantity,
				Amount:   item.AmountTotal,
			})
		}
	}
	return details, nil
}

// FindOrCreateCustomer returns an existing gateway customer matching the email
// or creates a new one.
func (p *StripeProvider) FindOrCreateCustomer(ctx context.Context, req CustomerRequest) (string, error) {
	if p == nil {
		return "", errors.New("stripe: provider is nil")
	}
	email := strings.TrimSpace(req.Email)
	if email == "" {
		return "", errors.New("stripe: customer email is required")
	}

	if p.api.customers != nil {
		listParams := &stripe.CustomerListParams{Email: stripe.String(email)}
		listParams.Context = ctx
		listParams.Limit = stripe.Int64(1)
		iter := p.api.customers.List(listParams)
		if iter != nil && iter.Next() {
			if existing := iter.Customer(); existing != nil {
				return existing.ID, nil
			}
		}
		if iter != nil {
			if err := iter.Err(); err != nil {
				return "", fmt.Errorf("stripe: list customers: %w", err)
			}
		}
	}

	params := &stripe.CustomerParams{Email: stripe.String(email)}
	params.Context = ctx
	if name := strings.TrimSpace(req.Name); name != "" {
		params.Name = stripe.String(name)
	}
	if phone := strings.TrimSpace(req.Phone); phone != "" {
		params.Phone = stripe.String(phone)
	}
	if orderID := strings.TrimSpace(req.OrderID); orderID != "" {
		params.Metadata = map[string]string{MetadataOrderID: orderID}
	}

	created, err := p.api.customers.New(params)
	if err != nil {
		return "", fmt.Errorf("stripe: create customer: %w", err)
	}

	p.logger(ctx, "payments.stripe.customer.created", map[string]any{
		"customerId": created.ID,
	})
	return created.ID, nil
}

// CreateInvoice issues an invoice carrying the order id in its metadata. The
// invoice is either finalized and emailed, or finalized and recorded as paid
// out of band when MarkPaid is set.
func (p *StripeProvider) CreateInvoice(ctx context.Context, req InvoiceRequest) (Invoice, error) {
	if p == nil {
		return Invoice{}, errors.New("stripe: provider is nil")
	}
	if strings.TrimSpace(req.CustomerID) == "" {
		return Invoice{}, errors.New("stripe: customer id is required")
	}
	if strings.TrimSpace(req.OrderID) == "" {
		return Invoice{}, errors.New("stripe: order id is required")
	}
	if len(req.Items) == 0 {
		return Invoice{}, errors.New("stripe: invoice requires line items")
	}

	currency := strings.ToLower(defaultString(req.Currency, "usd"))

	invoiceParams := &stripe.InvoiceParams{
		Customer:         stripe.String(req.CustomerID),
		CollectionMethod: stripe.String(string(stripe.InvoiceCollectionMethodSendInvoice)),
		DaysUntilDue:     stripe.Int64(int64(maxInt(req.DaysUntilDue, 1))),
		Metadata:         map[string]string{MetadataOrderID: req.OrderID},
	}
	invoiceParams.Context = ctx
	if key := strings.TrimSpace(req.IdempotencyKey); key != "" {
		invoiceParams.SetIdempotencyKey(key)
	}

	created, err := p.api.invoices.New(invoiceParams)
	if err != nil {
		return Invoice{}, fmt.Errorf("stripe: create invoice: %w", err)
	}

	for _, item := range req.Items {
		itemParams := &stripe.InvoiceItemParams{
			Customer:    stripe.String(req.CustomerID),
			Invoice:     stripe.String(created.ID),
			Currency:    stripe.String(currency),
			UnitAmount:  stripe.Int64(item.Amount),
			Quantity:    stripe.Int64(max64(item.Quantity, 1)),
			Description: stripe.String(item.Name),
		}
		itemParams.Context = ctx
		if _, err := p.api.invoiceItems.New(itemParams); err != nil {
			return Invoice{}, fmt.Errorf("stripe: add invoice item: %w", err)
		}
	}

	finalizeParams := &stripe.InvoiceFinalizeInvoiceParams{}
	finalizeParams.Context = ctx
	finalized, err := p.api.invoices.FinalizeInvoice(created.ID, finalizeParams)
	if err != nil {
		return Invoice{}, fmt.Errorf("stripe: finalize invoice: %w", err)
	}

	if req.MarkPaid {
		payParams := &stripe.InvoicePayParams{PaidOutOfBand: stripe.Bool(true)}
		payParams.Context = ctx
		if finalized, err = p.api.invoices.Pay(created.ID, payParams); err != nil {
			return Invoice{}, fmt.Errorf("stripe: mark invoice paid: %w", err)
		}
	} else {
		sendParams := &stripe.InvoiceSendInvoiceParams{}
		sendParams.Context = ctx
		if finalized, err = p.api.invoices.SendInvoice(created.ID, sendParams); err != nil {
			return Invoice{}, fmt.Errorf("stripe: send invoice: %w", err)
		}
	}

	p.logger(ctx, "payments.stripe.invoice.created", map[string]any{
		"invoiceId": finalized.ID,
		"orderId":   req.OrderID,
		"status":    finalized.Status,
		"markPaid":  req.MarkPaid,
	})

	result := Invoice{
		ID:        finalized.ID,
		HostedURL: finalized.HostedInvoiceURL,
		Status:    string(finalized.Status),
	}
	if finalized.PaymentIntent != nil {
		result.PaymentIntentID = finalized.PaymentIntent.ID
	}
	return result, nil
}

func max64(a, b int64) int64 {
	if a > b {
		return a
	}
	return b
}

func maxInt(a, b int) int {
	if a > b {
		return a
	}
	return b
}

func defaultString(value, fallback string) string {
	if strings.TrimSpace(value) != "" {
		return value
	}
	return fallback
}
