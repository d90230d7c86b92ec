package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/oklog/ulid/v2"

	domain "github.com/lathermill/api/internal/domain"
	"github.com/lathermill/api/internal/notifications"
	"github.com/lathermill/api/internal/payments"
	"github.com/lathermill/api/internal/repositories"
	"github.com/lathermill/api/internal/shipping"
)

const (
	defaultUnpaidTTL           = 10 * time.Minute
	defaultInvoiceDaysUntilDue = 7
)

var (
	// ErrOrderInvalidInput signals the caller provided invalid data.
	ErrOrderInvalidInput = errors.New("order: invalid input")
	// ErrOrderNotFound indicates the order could not be located.
	ErrOrderNotFound = errors.New("order: not found")
	// ErrOrderInvalidState indicates the operation is not allowed for the
	// order's current payment or shipping state.
	ErrOrderInvalidState = errors.New("order: invalid state")
)

// OrderServiceDeps bundles collaborators required to construct the order service.
type OrderServiceDeps struct {
	Orders      repositories.OrderRepository
	Customers   repositories.CustomerRepository
	Payments    payments.Provider
	Shipping    ShipmentGateway
	Mail        notifications.Dispatcher
	Events      EventPublisher
	Tax         TaxPolicy
	Clock       func() time.Time
	IDGenerator func() string
	Logger      func(ctx context.Context, event string, fields map[string]any)

	OwnerEmail          string
	PackingSlipURL      string
	Currency            string
	InvoiceDaysUntilDue int
	UnpaidTTL           time.Duration
}

type orderService struct {
	orders    repositories.OrderRepository
	customers repositories.CustomerRepository
	payments  payments.Provider
	shipping  ShipmentGateway
	mail      notifications.Dispatcher
	events    EventPublisher
	tax       TaxPolicy
	clock     func() time.Time
	newID     func() string
	logger    func(context.Context, string, map[string]any)

	ownerEmail     string
	packingSlipURL string
	currency       string
	daysUntilDue   int
	unpaidTTL      time.Duration
}

// NewOrderService wires dependencies into a concrete OrderService implementation.
func NewOrderService(deps OrderServiceDeps) (OrderService, error) {
	if deps.Orders == nil {
		return nil, errors.New("order service: order repository is required")
	}
	if deps.Customers == nil {
		return nil, errors.New("order service: customer repository is required")
	}
	if deps.Payments == nil {
		return nil, errors.New("order service: payment provider is required")
	}
	if deps.Shipping == nil {
		return nil, errors.New("order service: shipment gateway is required")
	}
	if deps.Mail == nil {
		return nil, errors.New("order service: mail dispatcher is required")
	}
	if strings.TrimSpace(deps.OwnerEmail) == "" {
		return nil, errors.New("order service: owner email is required")
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

	daysUntilDue := deps.InvoiceDaysUntilDue
	if daysUntilDue <= 0 {
		daysUntilDue = defaultInvoiceDaysUntilDue
	}

	unpaidTTL := deps.UnpaidTTL
	if unpaidTTL <= 0 {
		unpaidTTL = defaultUnpaidTTL
	}

	return &orderService{
		orders:    deps.Orders,
		customers: deps.Customers,
		payments:  deps.Payments,
		shipping:  deps.Shipping,
		mail:      deps.Mail,
		events:    deps.Events,
		tax:       tax,
		clock: func() time.Time {
			return clock().UTC()
		},
		newID:          idGen,
		logger:         logger,
		ownerEmail:     strings.TrimSpace(deps.OwnerEmail),
		packingSlipURL: strings.TrimSpace(deps.PackingSlipURL),
		currency:       currency,
		daysUntilDue:   daysUntilDue,
		unpaidTTL:      unpaidTTL,
	}, nil
}

// HandlePaymentEvent routes a verified gateway event to the matching order.
// Events that cannot be matched to an order are logged and dropped so the
// gateway does not retry them forever.
func (s *orderService) HandlePaymentEvent(ctx context.Context, event payments.Event) error {
	switch event.Type {
	case payments.EventCheckoutCompleted:
		return s.applyCheckoutCompleted(ctx, event)
	case payments.EventInvoicePaid:
		return s.applyInvoicePaid(ctx, event)
	case payments.EventPaymentSucceeded:
		return s.applyPaymentSucceeded(ctx, event)
	default:
		s.logger(ctx, "payments.event_ignored", map[string]any{
			"gateway_type": event.GatewayType,
		})
		return nil
	}
}

func (s *orderService) applyCheckoutCompleted(ctx context.Context, event payments.Event) error {
	order, err := s.orders.FindByCheckoutSessionID(ctx, event.SessionID)
	if err != nil {
		if !isRepoNotFound(err) {
			return s.mapRepositoryError(err)
		}
		order, err = s.matchUnpaidByEmail(ctx, event)
		if err != nil {
			return err
		}
		if order.ID == "" {
			return nil
		}
	}
	linkage := domain.PaymentLinkage{
		CheckoutSessionID: event.SessionID,
		PaymentIntentID:   event.PaymentIntentID,
		CustomerID:        event.CustomerID,
	}

	// The session lookup carries the authoritative receipt and payment
	// references. A lookup failure must not lose the payment, so fall back to
	// the event fields.
	if details, err := s.payments.LookupCheckoutSession(ctx, event.SessionID); err != nil {
		s.logger(ctx, "payments.session_lookup_failed", map[string]any{
			"order_id": order.ID,
			"error":    err.Error(),
		})
	} else {
		linkage.PaymentIntentID = defaultIfEmpty(details.PaymentIntentID, linkage.PaymentIntentID)
		linkage.CustomerID = defaultIfEmpty(details.CustomerID, linkage.CustomerID)
		linkage.ReceiptURL = details.ReceiptURL
	}

	order, transitioned, err := s.markPaid(ctx, order, linkage)
	if err != nil {
		return err
	}
	if !transitioned {
		s.logger(ctx, "payments.event_replayed", map[string]any{"order_id": order.ID})
	}
	s.runPostPaymentEffects(ctx, order)
	return nil
}

// matchUnpaidByEmail is the fallback for sessions created outside the store,
// such as payment links. The transition only happens when exactly one unpaid
// order exists for the payer's email; anything else is ambiguous and dropped.
func (s *orderService) matchUnpaidByEmail(ctx context.Context, event payments.Event) (domain.Order, error) {
	email := strings.ToLower(strings.TrimSpace(event.CustomerEmail))
	if email == "" {
		s.logger(ctx, "payments.event_unmatched", map[string]any{"session_id": event.SessionID})
		return domain.Order{}, nil
	}

	candidates, err := s.orders.FindUnpaidByEmail(ctx, email)
	if err != nil {
		return domain.Order{}, s.mapRepositoryError(err)
	}
	if len(candidates) != 1 {
		s.logger(ctx, "payments.event_unmatched", map[string]any{
			"session_id": event.SessionID,
			"candidates": len(candidates),
		})
		return domain.Order{}, nil
	}
	return candidates[0], nil
}

func (s *orderService) applyInvoicePaid(ctx context.Context, event payments.Event) error {
	var (
		order domain.Order
		err   error
	)
	if event.OrderID != "" {
		order, err = s.orders.FindByID(ctx, event.OrderID)
	} else {
		order, err = s.orders.FindByInvoiceID(ctx, event.InvoiceID)
	}
	if err != nil {
		if isRepoNotFound(err) {
			s.logger(ctx, "payments.event_unmatched", map[string]any{"invoice_id": event.InvoiceID})
			return nil
		}
		return s.mapRepositoryError(err)
	}
	order, transitioned, err := s.markPaid(ctx, order, domain.PaymentLinkage{
		InvoiceID:       event.InvoiceID,
		PaymentIntentID: event.PaymentIntentID,
		CustomerID:      event.CustomerID,
	})
	if err != nil {
		return err
	}
	if !transitioned {
		s.logger(ctx, "payments.event_replayed", map[string]any{"order_id": order.ID})
	}
	s.runPostPaymentEffects(ctx, order)
	return nil
}

func (s *orderService) applyPaymentSucceeded(ctx context.Context, event payments.Event) error {
	// Intents opened through a checkout session are settled by the session
	// event; only intents carrying our order metadata are handled here.
	if event.OrderID == "" {
		s.logger(ctx, "payments.event_ignored", map[string]any{"gateway_type": event.GatewayType})
		return nil
	}

	order, err := s.orders.FindByID(ctx, event.OrderID)
	if err != nil {
		if isRepoNotFound(err) {
			s.logger(ctx, "payments.event_unmatched", map[string]any{"order_id": event.OrderID})
			return nil
		}
		return s.mapRepositoryError(err)
	}
	order, transitioned, err := s.markPaid(ctx, order, domain.PaymentLinkage{
		PaymentIntentID: event.PaymentIntentID,
		CustomerID:      event.CustomerID,
	})
	if err != nil {
		return err
	}
	if !transitioned {
		s.logger(ctx, "payments.event_replayed", map[string]any{"order_id": order.ID})
	}
	s.runPostPaymentEffects(ctx, order)
	return nil
}

// markPaid flips the order to paid and persists it before any side effect
// runs. The repository applies the transition transactionally against the
// stored state, so concurrent redeliveries of the same payment race to a
// single transition and order.paid is published exactly once.
func (s *orderService) markPaid(ctx context.Context, order domain.Order, linkage domain.PaymentLinkage) (domain.Order, bool, error) {
	updated, transitioned, err := s.orders.MarkPaid(ctx, order.ID, func(current domain.Order) domain.Order {
		current.Payment.CheckoutSessionID = defaultIfEmpty(current.Payment.CheckoutSessionID, linkage.CheckoutSessionID)
		current.Payment.InvoiceID = defaultIfEmpty(current.Payment.InvoiceID, linkage.InvoiceID)
		current.Payment.PaymentIntentID = defaultIfEmpty(linkage.PaymentIntentID, current.Payment.PaymentIntentID)
		current.Payment.CustomerID = defaultIfEmpty(linkage.CustomerID, current.Payment.CustomerID)
		current.Payment.ReceiptURL = defaultIfEmpty(linkage.ReceiptURL, current.Payment.ReceiptURL)

		current.Status = domain.OrderStatusPaid
		current.UpdatedAt = s.clock()
		return current
	})
	if err != nil {
		return domain.Order{}, false, s.mapRepositoryError(err)
	}

	if transitioned {
		s.publish(ctx, orderEventPaid, updated)
	}
	return updated, transitioned, nil
}

// runPostPaymentEffects executes the one-time side effects of a payment. Each
// step is independently guarded by its sent flag and failures are logged
// without blocking the remaining steps; a later replay retries what failed.
func (s *orderService) runPostPaymentEffects(ctx context.Context, order domain.Order) domain.Order {
	if !order.Notifications.ConfirmationEmailSent {
		if err := s.mail.Send(ctx, notifications.Message{
			Kind:      notifications.KindCustomerConfirmation,
			Recipient: order.CustomerEmail,
			Order:     order,
		}); err != nil {
			s.logEffectFailure(ctx, order.ID, "confirmation_email", err)
		} else {
			order.Notifications.ConfirmationEmailSent = true
			order = s.persistOrder(ctx, order)
		}
	}

	switch {
	case order.ShippingMethod == domain.ShippingMethodLocalPickup:
		if !order.Notifications.OwnerPickupEmailSent {
			if err := s.mail.Send(ctx, notifications.Message{
				Kind:      notifications.KindOwnerPickup,
				Recipient: s.ownerEmail,
				Order:     order,
			}); err != nil {
				s.logEffectFailure(ctx, order.ID, "owner_pickup_email", err)
			} else {
				order.Notifications.OwnerPickupEmailSent = true
				order = s.persistOrder(ctx, order)
			}
		}
	case order.IsFreeDelivery():
		// Hand delivery: the owner is the courier, so no owner notice and
		// never a label, even when a stray shipment id was captured.
	default:
		if !order.Notifications.OwnerShippingEmailSent {
			if err := s.mail.Send(ctx, notifications.Message{
				Kind:           notifications.KindOwnerShipping,
				Recipient:      s.ownerEmail,
				Order:          order,
				PackingSlipURL: s.packingSlipURL,
			}); err != nil {
				s.logEffectFailure(ctx, order.ID, "owner_shipping_email", err)
			} else {
				order.Notifications.OwnerShippingEmailSent = true
				order = s.persistOrder(ctx, order)
			}
		}

		if order.ShipmentID != "" {
			order = s.purchaseLabelIfNeeded(ctx, order)
		}
	}

	if order.TrackingNumber != "" && !order.Notifications.ShipmentEmailSent {
		if err := s.mail.Send(ctx, notifications.Message{
			Kind:      notifications.KindCustomerShipment,
			Recipient: order.CustomerEmail,
			Order:     order,
		}); err != nil {
			s.logEffectFailure(ctx, order.ID, "shipment_email", err)
		} else {
			order.Notifications.ShipmentEmailSent = true
			order = s.persistOrder(ctx, order)
		}
	}

	return order
}

// purchaseLabelIfNeeded buys at most one label per order. It re-reads the
// stored order first so a concurrent replay that already bought the label is
// observed before money is spent.
func (s *orderService) purchaseLabelIfNeeded(ctx context.Context, order domain.Order) domain.Order {
	fresh, err := s.orders.FindByID(ctx, order.ID)
	if err != nil {
		s.logEffectFailure(ctx, order.ID, "label_purchase", err)
		return order
	}
	if fresh.HasLabel() {
		return fresh
	}

	quote, err := s.shipping.GetShipment(ctx, fresh.ShipmentID)
	if err != nil {
		s.logEffectFailure(ctx, fresh.ID, "label_purchase", err)
		return fresh
	}
	rate, err := shipping.FindRateByMethod(quote, fresh.ShippingMethod)
	if err != nil {
		s.logEffectFailure(ctx, fresh.ID, "label_purchase", err)
		return fresh
	}
	label, err := s.shipping.PurchaseLabel(ctx, fresh.ShipmentID, rate.ID)
	if err != nil {
		s.logEffectFailure(ctx, fresh.ID, "label_purchase", err)
		return fresh
	}

	fresh.TrackingNumber = label.TrackingNumber
	fresh.LabelURL = label.LabelURL
	fresh = s.persistOrder(ctx, fresh)

	s.publish(ctx, orderEventLabelPurchased, fresh)
	return fresh
}

// CreateManualOrder records an operator-entered order. Cash orders are paid
// immediately and run the post-payment effects; invoice orders stay unpaid
// until the emailed invoice settles.
func (s *orderService) CreateManualOrder(ctx context.Context, cmd ManualOrderCommand) (domain.Order, error) {
	email := strings.ToLower(strings.TrimSpace(cmd.Email))
	if email == "" {
		return domain.Order{}, fmt.Errorf("%w: customer email is required", ErrOrderInvalidInput)
	}
	if len(cmd.Items) == 0 {
		return domain.Order{}, fmt.Errorf("%w: order must contain at least one item", ErrOrderInvalidInput)
	}
	if cmd.PaymentMethod != ManualPaymentCash && cmd.PaymentMethod != ManualPaymentInvoice {
		return domain.Order{}, fmt.Errorf("%w: payment method must be %q or %q", ErrOrderInvalidInput, ManualPaymentCash, ManualPaymentInvoice)
	}
	method := strings.TrimSpace(cmd.ShippingMethod)
	if method == "" {
		return domain.Order{}, fmt.Errorf("%w: shipping method is required", ErrOrderInvalidInput)
	}
	if cmd.ShippingCost < 0 {
		return domain.Order{}, fmt.Errorf("%w: shipping cost must not be negative", ErrOrderInvalidInput)
	}

	var subtotal int64
	for _, item := range cmd.Items {
		if item.Quantity <= 0 || item.UnitPrice < 0 {
			return domain.Order{}, fmt.Errorf("%w: item quantities must be positive and prices non-negative", ErrOrderInvalidInput)
		}
		subtotal += item.Amount()
	}
	tax := s.tax(subtotal)

	shippingCost := cmd.ShippingCost
	if domain.IsFreeDeliveryMethod(method) {
		shippingCost = 0
	}

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
		ShipmentID:        strings.TrimSpace(cmd.ShipmentID),
		Status:            domain.OrderStatusUnpaid,
		FulfillmentStatus: domain.FulfillmentStatusUnfulfilled,
		CreatedAt:         now,
		UpdatedAt:         now,
	}

	customerID, err := s.payments.FindOrCreateCustomer(ctx, payments.CustomerRequest{
		Email:   email,
		Name:    order.CustomerName(),
		Phone:   order.CustomerPhone,
		OrderID: order.ID,
	})
	if err != nil {
		return domain.Order{}, fmt.Errorf("order: resolve gateway customer: %w", err)
	}

	invoice, err := s.payments.CreateInvoice(ctx, payments.InvoiceRequest{
		CustomerID:     customerID,
		OrderID:        order.ID,
		Currency:       s.currency,
		Items:          invoiceItems(order),
		DaysUntilDue:   s.daysUntilDue,
		MarkPaid:       cmd.PaymentMethod == ManualPaymentCash,
		IdempotencyKey: cmd.IdempotencyKey,
	})
	if err != nil {
		return domain.Order{}, fmt.Errorf("order: create invoice: %w", err)
	}

	order.Payment = domain.PaymentLinkage{
		InvoiceID:       invoice.ID,
		PaymentIntentID: invoice.PaymentIntentID,
		CustomerID:      customerID,
	}
	if cmd.PaymentMethod == ManualPaymentCash {
		order.Status = domain.OrderStatusPaid
	}

	stored, err := s.orders.Insert(ctx, order)
	if err != nil {
		return domain.Order{}, s.mapRepositoryError(err)
	}

	if _, err := upsertCustomer(ctx, s.customers, s.clock, s.newID, domain.Customer{
		Email:     email,
		FirstName: cmd.FirstName,
		LastName:  cmd.LastName,
		Phone:     cmd.Phone,
	}); err != nil {
		s.logger(ctx, "order.customer_upsert_failed", map[string]any{
			"order_id": stored.ID,
			"error":    err.Error(),
		})
	}

	s.publish(ctx, orderEventCreated, stored)

	if stored.IsPaid() {
		s.publish(ctx, orderEventPaid, stored)
		stored = s.runPostPaymentEffects(ctx, stored)
	}
	return stored, nil
}

// GetOrder loads a single order.
func (s *orderService) GetOrder(ctx context.Context, orderID string) (domain.Order, error) {
	if strings.TrimSpace(orderID) == "" {
		return domain.Order{}, fmt.Errorf("%w: order id is required", ErrOrderInvalidInput)
	}
	order, err := s.orders.FindByID(ctx, orderID)
	if err != nil {
		return domain.Order{}, s.mapRepositoryError(err)
	}
	return order, nil
}

// ListOrders returns orders matching the filter, newest first.
func (s *orderService) ListOrders(ctx context.Context, filter repositories.OrderListFilter) ([]domain.Order, error) {
	if filter.Status != "" && filter.Status != string(domain.OrderStatusUnpaid) && filter.Status != string(domain.OrderStatusPaid) {
		return nil, fmt.Errorf("%w: unknown status %q", ErrOrderInvalidInput, filter.Status)
	}
	if filter.FulfillmentStatus != "" && filter.FulfillmentStatus != string(domain.FulfillmentStatusUnfulfilled) && filter.FulfillmentStatus != string(domain.FulfillmentStatusFulfilled) {
		return nil, fmt.Errorf("%w: unknown fulfillment status %q", ErrOrderInvalidInput, filter.FulfillmentStatus)
	}
	orders, err := s.orders.List(ctx, filter)
	if err != nil {
		return nil, s.mapRepositoryError(err)
	}
	return orders, nil
}

// CreateLabel buys a label on operator request. Unlike the post-payment
// effect, precondition violations are reported to the caller.
func (s *orderService) CreateLabel(ctx context.Context, orderID string) (domain.Order, error) {
	order, err := s.GetOrder(ctx, orderID)
	if err != nil {
		return domain.Order{}, err
	}
	if !order.IsPaid() {
		return domain.Order{}, fmt.Errorf("%w: order is not paid", ErrOrderInvalidState)
	}
	if order.IsFreeDelivery() {
		return domain.Order{}, fmt.Errorf("%w: %s orders do not ship", ErrOrderInvalidState, order.ShippingMethod)
	}
	if order.ShipmentID == "" {
		return domain.Order{}, fmt.Errorf("%w: order has no shipment reference", ErrOrderInvalidState)
	}
	if order.HasLabel() {
		return domain.Order{}, fmt.Errorf("%w: label already purchased", ErrOrderInvalidState)
	}

	quote, err := s.shipping.GetShipment(ctx, order.ShipmentID)
	if err != nil {
		return domain.Order{}, fmt.Errorf("order: load shipment %q: %w", order.ShipmentID, err)
	}
	rate, err := shipping.FindRateByMethod(quote, order.ShippingMethod)
	if err != nil {
		return domain.Order{}, fmt.Errorf("%w: no rate matches method %q", ErrOrderInvalidState, order.ShippingMethod)
	}
	label, err := s.shipping.PurchaseLabel(ctx, order.ShipmentID, rate.ID)
	if err != nil {
		return domain.Order{}, fmt.Errorf("order: purchase label: %w", err)
	}

	order.TrackingNumber = label.TrackingNumber
	order.LabelURL = label.LabelURL
	order.UpdatedAt = s.clock()
	updated, err := s.orders.Update(ctx, order)
	if err != nil {
		return domain.Order{}, s.mapRepositoryError(err)
	}

	s.publish(ctx, orderEventLabelPurchased, updated)

	if !updated.Notifications.ShipmentEmailSent {
		if err := s.mail.Send(ctx, notifications.Message{
			Kind:      notifications.KindCustomerShipment,
			Recipient: updated.CustomerEmail,
			Order:     updated,
		}); err != nil {
			s.logEffectFailure(ctx, updated.ID, "shipment_email", err)
		} else {
			updated.Notifications.ShipmentEmailSent = true
			updated = s.persistOrder(ctx, updated)
		}
	}
	return updated, nil
}

// ResendNotifications re-runs the post-payment steps. Without force only the
// steps whose sent flag is still clear go out again.
func (s *orderService) ResendNotifications(ctx context.Context, cmd ResendNotificationsCommand) (domain.Order, error) {
	order, err := s.GetOrder(ctx, cmd.OrderID)
	if err != nil {
		return domain.Order{}, err
	}
	if !order.IsPaid() {
		return domain.Order{}, fmt.Errorf("%w: order is not paid", ErrOrderInvalidState)
	}

	if cmd.Force {
		order.Notifications = domain.NotificationFlags{}
		order.UpdatedAt = s.clock()
		order, err = s.orders.Update(ctx, order)
		if err != nil {
			return domain.Order{}, s.mapRepositoryError(err)
		}
	}

	return s.runPostPaymentEffects(ctx, order), nil
}

// SetFulfillment toggles the operator-controlled fulfillment axis. It never
// touches the payment status.
func (s *orderService) SetFulfillment(ctx context.Context, orderID string, status domain.FulfillmentStatus) (domain.Order, error) {
	if status != domain.FulfillmentStatusUnfulfilled && status != domain.FulfillmentStatusFulfilled {
		return domain.Order{}, fmt.Errorf("%w: unknown fulfillment status %q", ErrOrderInvalidInput, status)
	}
	order, err := s.GetOrder(ctx, orderID)
	if err != nil {
		return domain.Order{}, err
	}
	if order.FulfillmentStatus == status {
		return order, nil
	}

	order.FulfillmentStatus = status
	order.UpdatedAt = s.clock()
	updated, err := s.orders.Update(ctx, order)
	if err != nil {
		return domain.Order{}, s.mapRepositoryError(err)
	}
	return updated, nil
}

// SweepUnpaid deletes unpaid orders older than the configured TTL. Paid
// orders are never touched regardless of age.
func (s *orderService) SweepUnpaid(ctx context.Context) (int, error) {
	cutoff := s.clock().Add(-s.unpaidTTL)
	deleted, err := s.orders.DeleteUnpaidCreatedBefore(ctx, cutoff)
	if err != nil {
		return 0, s.mapRepositoryError(err)
	}

	for _, order := range deleted {
		s.publish(ctx, orderEventSwept, order)
	}
	if len(deleted) > 0 {
		s.logger(ctx, "orders.swept", map[string]any{
			"count":  len(deleted),
			"cutoff": cutoff,
		})
	}
	return len(deleted), nil
}

// persistOrder writes incremental state such as sent flags and label fields.
// Failures are logged; the next replay reconciles from the stored state.
func (s *orderService) persistOrder(ctx context.Context, order domain.Order) domain.Order {
	order.UpdatedAt = s.clock()
	updated, err := s.orders.Update(ctx, order)
	if err != nil {
		s.logger(ctx, "orders.persist_failed", map[string]any{
			"order_id": order.ID,
			"error":    err.Error(),
		})
		return order
	}
	return updated
}

func (s *orderService) publish(ctx context.Context, event string, order domain.Order) {
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
		s.logger(ctx, "orders.event_publish_failed", map[string]any{
			"order_id": order.ID,
			"event":    event,
			"error":    err.Error(),
		})
	}
}

func (s *orderService) logEffectFailure(ctx context.Context, orderID, step string, err error) {
	s.logger(ctx, "orders.effect_failed", map[string]any{
		"order_id": orderID,
		"step":     step,
		"error":    err.Error(),
	})
}

func (s *orderService) mapRepositoryError(err error) error {
	if err == nil {
		return nil
	}

	var repoErr repositories.RepositoryError
	if errors.As(err, &repoErr) {
		switch {
		case repoErr.IsNotFound():
			return fmt.Errorf("%w: %v", ErrOrderNotFound, err)
		case repoErr.IsUnavailable():
			return fmt.Errorf("order: repository unavailable: %w", err)
		}
	}
	return err
}

func invoiceItems(order domain.Order) []payments.InvoiceItem {
	items := make([]payments.InvoiceItem, 0, len(order.Items)+2)
	for _, item := range order.Items {
		items = append(items, payments.InvoiceItem{
			Name:     item.Name,
			Amount:   item.UnitPrice,
			Quantity: item.Quantity,
		})
	}
	if order.Tax > 0 {
		items = append(items, payments.InvoiceItem{Name: "Sales Tax", Amount: order.Tax, Quantity: 1})
	}
	if order.ShippingCost > 0 {
		items = append(items, payments.InvoiceItem{Name: "Shipping: " + order.ShippingMethod, Amount: order.ShippingCost, Quantity: 1})
	}
	return items
}

func defaultIfEmpty(value, fallback string) string {
	if strings.TrimSpace(value) != "" {
		return value
	}
	return fallback
}
