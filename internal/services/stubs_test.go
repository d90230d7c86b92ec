package services

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	domain "github.com/lathermill/api/internal/domain"
	"github.com/lathermill/api/internal/notifications"
	"github.com/lathermill/api/internal/payments"
	"github.com/lathermill/api/internal/repositories"
)

var testClock = func() time.Time {
	return time.Date(2025, time.June, 1, 12, 0, 0, 0, time.UTC)
}

type repoError struct {
	notFound bool
}

func (e repoError) Error() string {
	if e.notFound {
		return "not found"
	}
	return "repository failure"
}

func (e repoError) IsNotFound() bool    { return e.notFound }
func (e repoError) IsConflict() bool    { return false }
func (e repoError) IsUnavailable() bool { return false }

type memOrderRepo struct {
	mu      sync.Mutex
	orders  map[string]domain.Order
	inserts int
	updates int
}

func newMemOrderRepo(seed ...domain.Order) *memOrderRepo {
	repo := &memOrderRepo{orders: make(map[string]domain.Order)}
	for _, order := range seed {
		repo.orders[order.ID] = order
	}
	return repo
}

func (r *memOrderRepo) get(id string) domain.Order {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.orders[id]
}

func (r *memOrderRepo) Insert(_ context.Context, order domain.Order) (domain.Order, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.inserts++
	r.orders[order.ID] = order
	return order, nil
}

func (r *memOrderRepo) Update(_ context.Context, order domain.Order) (domain.Order, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.orders[order.ID]; !ok {
		return domain.Order{}, repoError{notFound: true}
	}
	r.updates++
	r.orders[order.ID] = order
	return order, nil
}

func (r *memOrderRepo) MarkPaid(_ context.Context, orderID string, mutate func(domain.Order) domain.Order) (domain.Order, bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	order, ok := r.orders[orderID]
	if !ok {
		return domain.Order{}, false, repoError{notFound: true}
	}
	if order.IsPaid() {
		return order, false, nil
	}
	order = mutate(order)
	order.Status = domain.OrderStatusPaid
	r.updates++
	r.orders[orderID] = order
	return order, true, nil
}

func (r *memOrderRepo) FindByID(_ context.Context, orderID string) (domain.Order, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	order, ok := r.orders[orderID]
	if !ok {
		return domain.Order{}, repoError{notFound: true}
	}
	return order, nil
}

func (r *memOrderRepo) FindByCheckoutSessionID(_ context.Context, sessionID string) (domain.Order, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, order := range r.orders {
		if sessionID != "" && order.Payment.CheckoutSessionID == sessionID {
			return order, nil
		}
	}
	return domain.Order{}, repoError{notFound: true}
}

func (r *memOrderRepo) FindByInvoiceID(_ context.Context, invoiceID string) (domain.Order, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, order := range r.orders {
		if invoiceID != "" && order.Payment.InvoiceID == invoiceID {
			return order, nil
		}
	}
	return domain.Order{}, repoError{notFound: true}
}

func (r *memOrderRepo) FindUnpaidByEmail(_ context.Context, email string) ([]domain.Order, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var matches []domain.Order
	for _, order := range r.orders {
		if order.Status == domain.OrderStatusUnpaid && order.CustomerEmail == email {
			matches = append(matches, order)
		}
	}
	sort.Slice(matches, func(i, j int) bool { return matches[i].ID < matches[j].ID })
	return matches, nil
}

func (r *memOrderRepo) List(_ context.Context, filter repositories.OrderListFilter) ([]domain.Order, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var matches []domain.Order
	for _, order := range r.orders {
		if filter.Status != "" && string(order.Status) != filter.Status {
			continue
		}
		if filter.FulfillmentStatus != "" && string(order.FulfillmentStatus) != filter.FulfillmentStatus {
			continue
		}
		matches = append(matches, order)
	}
	sort.Slice(matches, func(i, j int) bool { return matches[i].ID < matches[j].ID })
	return matches, nil
}

func (r *memOrderRepo) DeleteUnpaidCreatedBefore(_ context.Context, cutoff time.Time) ([]domain.Order, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var deleted []domain.Order
	for id, order := range r.orders {
		if order.Status == domain.OrderStatusUnpaid && order.CreatedAt.Before(cutoff) {
			deleted = append(deleted, order)
			delete(r.orders, id)
		}
	}
	return deleted, nil
}

type memCustomerRepo struct {
	mu        sync.Mutex
	customers map[string]domain.Customer
}

func newMemCustomerRepo(seed ...domain.Customer) *memCustomerRepo {
	repo := &memCustomerRepo{customers: make(map[string]domain.Customer)}
	for _, customer := range seed {
		repo.customers[customer.Email] = customer
	}
	return repo
}

func (r *memCustomerRepo) FindByEmail(_ context.Context, email string) (domain.Customer, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	customer, ok := r.customers[email]
	if !ok {
		return domain.Customer{}, repoError{notFound: true}
	}
	return customer, nil
}

func (r *memCustomerRepo) Insert(_ context.Context, customer domain.Customer) (domain.Customer, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.customers[customer.Email] = customer
	return customer, nil
}

func (r *memCustomerRepo) Update(_ context.Context, customer domain.Customer) (domain.Customer, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.customers[customer.Email] = customer
	return customer, nil
}

type stubProvider struct {
	createSessionFn  func(ctx context.Context, req payments.CheckoutSessionRequest) (payments.CheckoutSession, error)
	lookupSessionFn  func(ctx context.Context, sessionID string) (payments.CheckoutSessionDetails, error)
	findCustomerFn   func(ctx context.Context, req payments.CustomerRequest) (string, error)
	createInvoiceFn  func(ctx context.Context, req payments.InvoiceRequest) (payments.Invoice, error)
	invoiceRequests  []payments.InvoiceRequest
	sessionRequests  []payments.CheckoutSessionRequest
	customerRequests []payments.CustomerRequest
}

func (p *stubProvider) CreateCheckoutSession(ctx context.Context, req payments.CheckoutSessionRequest) (payments.CheckoutSession, error) {
	p.sessionRequests = append(p.sessionRequests, req)
	if p.createSessionFn != nil {
		return p.createSessionFn(ctx, req)
	}
	return payments.CheckoutSession{ID: "cs_test", RedirectURL: "https://pay.example.test/cs_test"}, nil
}

func (p *stubProvider) LookupCheckoutSession(ctx context.Context, sessionID string) (payments.CheckoutSessionDetails, error) {
	if p.lookupSessionFn != nil {
		return p.lookupSessionFn(ctx, sessionID)
	}
	return payments.CheckoutSessionDetails{ID: sessionID, PaymentIntentID: "pi_test", ReceiptURL: "https://receipts.example.test/pi_test"}, nil
}

func (p *stubProvider) FindOrCreateCustomer(ctx context.Context, req payments.CustomerRequest) (string, error) {
	p.customerRequests = append(p.customerRequests, req)
	if p.findCustomerFn != nil {
		return p.findCustomerFn(ctx, req)
	}
	return "gcus_test", nil
}

func (p *stubProvider) CreateInvoice(ctx context.Context, req payments.InvoiceRequest) (payments.Invoice, error) {
	p.invoiceRequests = append(p.invoiceRequests, req)
	if p.createInvoiceFn != nil {
		return p.createInvoiceFn(ctx, req)
	}
	return payments.Invoice{ID: "in_test", PaymentIntentID: "pi_invoice"}, nil
}

type stubShipping struct {
	mu          sync.Mutex
	getFn       func(ctx context.Context, shipmentID string) (domain.ShipmentQuote, error)
	purchaseFn  func(ctx context.Context, shipmentID, rateID string) (domain.Label, error)
	purchases   int
	purchasedTo []string
}

func (s *stubShipping) GetShipment(ctx context.Context, shipmentID string) (domain.ShipmentQuote, error) {
	if s.getFn != nil {
		return s.getFn(ctx, shipmentID)
	}
	return domain.ShipmentQuote{
		ShipmentID: shipmentID,
		Rates: []domain.Rate{
			{ID: "r1", Provider: "USPS", Service: "Priority Mail", Amount: 500},
			{ID: "r2", Provider: "UPS", Service: "Ground", Amount: 840},
		},
	}, nil
}

func (s *stubShipping) PurchaseLabel(ctx context.Context, shipmentID, rateID string) (domain.Label, error) {
	s.mu.Lock()
	s.purchases++
	s.purchasedTo = append(s.purchasedTo, shipmentID)
	s.mu.Unlock()
	if s.purchaseFn != nil {
		return s.purchaseFn(ctx, shipmentID, rateID)
	}
	return domain.Label{TrackingNumber: "1Z999", LabelURL: "https://labels.example.test/1Z999.pdf"}, nil
}

func (s *stubShipping) purchaseCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.purchases
}

type recordingMailer struct {
	mu       sync.Mutex
	sent     []notifications.Message
	failures map[notifications.Kind]error
}

func (m *recordingMailer) Send(_ context.Context, msg notifications.Message) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err, ok := m.failures[msg.Kind]; ok && err != nil {
		delete(m.failures, msg.Kind)
		return err
	}
	m.sent = append(m.sent, msg)
	return nil
}

func (m *recordingMailer) count(kind notifications.Kind) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := 0
	for _, msg := range m.sent {
		if msg.Kind == kind {
			n++
		}
	}
	return n
}

type recordingPublisher struct {
	mu     sync.Mutex
	events []OrderEventMessage
}

func (p *recordingPublisher) PublishOrderEvent(_ context.Context, message OrderEventMessage) (string, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, message)
	return "msg_1", nil
}

func (p *recordingPublisher) count(event string) int {
	p.mu.Lock()
	defer p.mu.Unlock()
	n := 0
	for _, msg := range p.events {
		if msg.Event == event {
			n++
		}
	}
	return n
}

func sequentialIDs(prefix string) func() string {
	var mu sync.Mutex
	n := 0
	return func() string {
		mu.Lock()
		defer mu.Unlock()
		n++
		return fmt.Sprintf("%s%d", prefix, n)
	}
}
