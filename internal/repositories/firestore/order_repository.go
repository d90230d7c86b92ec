package firestore

import (
	"context"
	"errors"
	"sort"
	"strings"
	"time"

	"cloud.google.com/go/firestore"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	domain "github.com/lathermill/api/internal/domain"
	pfirestore "github.com/lathermill/api/internal/platform/firestore"
	"github.com/lathermill/api/internal/repositories"
)

const (
	orderCollection = "orders"

	defaultListLimit = 100
)

// OrderRepository persists orders in Firestore.
type OrderRepository struct {
	base     *pfirestore.BaseRepository[orderDocument]
	provider *pfirestore.Provider
}

var _ repositories.OrderRepository = (*OrderRepository)(nil)

// NewOrderRepository constructs a Firestore-backed order repository.
func NewOrderRepository(provider *pfirestore.Provider) (*OrderRepository, error) {
	if provider == nil {
		return nil, errors.New("order repository requires firestore provider")
	}

	base := pfirestore.NewBaseRepository[orderDocument](provider, orderCollection)
	return &OrderRepository{base: base, provider: provider}, nil
}

// Insert stores a new order under its generated ID.
func (r *OrderRepository) Insert(ctx context.Context, order domain.Order) (domain.Order, error) {
	if strings.TrimSpace(order.ID) == "" {
		return domain.Order{}, errors.New("order id is required")
	}

	doc := fromDomainOrder(order)
	if _, err := r.base.Set(ctx, order.ID, doc); err != nil {
		return domain.Order{}, err
	}
	return toDomainOrder(order.ID, doc), nil
}

// Update overwrites the stored order.
func (r *OrderRepository) Update(ctx context.Context, order domain.Order) (domain.Order, error) {
	if strings.TrimSpace(order.ID) == "" {
		return domain.Order{}, errors.New("order id is required")
	}

	doc := fromDomainOrder(order)
	if _, err := r.base.Set(ctx, order.ID, doc); err != nil {
		return domain.Order{}, err
	}
	return toDomainOrder(order.ID, doc), nil
}

// MarkPaid transitions an order to paid inside a Firestore transaction. The
// mutate callback runs against the state read in the transaction, so a lost
// update between a webhook retry and the first delivery cannot happen: the
// loser observes the paid document and reports transitioned=false.
func (r *OrderRepository) MarkPaid(ctx context.Context, orderID string, mutate func(domain.Order) domain.Order) (domain.Order, bool, error) {
	if strings.TrimSpace(orderID) == "" {
		return domain.Order{}, false, errors.New("order id is required")
	}
	if mutate == nil {
		return domain.Order{}, false, errors.New("mutate function is required")
	}

	client, err := r.provider.Client(ctx)
	if err != nil {
		return domain.Order{}, false, err
	}
	ref, err := r.base.DocumentRef(ctx, orderID)
	if err != nil {
		return domain.Order{}, false, err
	}

	var (
		result       domain.Order
		transitioned bool
	)
	err = pfirestore.RunTransaction(ctx, client, func(_ context.Context, tx *firestore.Transaction) error {
		result = domain.Order{}
		transitioned = false

		snapshot, err := tx.Get(ref)
		if err != nil {
			return pfirestore.WrapError("orders.mark_paid", err)
		}
		var doc orderDocument
		if err := snapshot.DataTo(&doc); err != nil {
			return pfirestore.WrapError("orders.mark_paid", err)
		}

		current := toDomainOrder(snapshot.Ref.ID, doc)
		if current.IsPaid() {
			result = current
			return nil
		}

		updated := mutate(current)
		updated.ID = current.ID
		updated.Status = domain.OrderStatusPaid
		if err := tx.Set(ref, fromDomainOrder(updated)); err != nil {
			return pfirestore.WrapError("orders.mark_paid", err)
		}
		result = updated
		transitioned = true
		return nil
	})
	if err != nil {
		return domain.Order{}, false, err
	}
	return result, transitioned, nil
}

// FindByID loads an order by its ID.
func (r *OrderRepository) FindByID(ctx context.Context, orderID string) (domain.Order, error) {
	if strings.TrimSpace(orderID) == "" {
		return domain.Order{}, errors.New("order id is required")
	}

	doc, err := r.base.Get(ctx, orderID)
	if err != nil {
		return domain.Order{}, err
	}
	return toDomainOrder(doc.ID, doc.Data), nil
}

// FindByCheckoutSessionID locates the order created for a gateway checkout session.
func (r *OrderRepository) FindByCheckoutSessionID(ctx context.Context, sessionID string) (domain.Order, error) {
	sessionID = strings.TrimSpace(sessionID)
	if sessionID == "" {
		return domain.Order{}, errors.New("checkout session id is required")
	}

	return r.findOne(ctx, "orders.find_by_checkout_session", func(q firestore.Query) firestore.Query {
		return q.Where("stripe_checkout_id", "==", sessionID).Limit(1)
	})
}

// FindByInvoiceID locates the order created for a gateway invoice.
func (r *OrderRepository) FindByInvoiceID(ctx context.Context, invoiceID string) (domain.Order, error) {
	invoiceID = strings.TrimSpace(invoiceID)
	if invoiceID == "" {
		return domain.Order{}, errors.New("invoice id is required")
	}

	return r.findOne(ctx, "orders.find_by_invoice", func(q firestore.Query) firestore.Query {
		return q.Where("stripe_invoice_id", "==", invoiceID).Limit(1)
	})
}

// FindUnpaidByEmail returns all unpaid orders for the customer email, most recent first.
func (r *OrderRepository) FindUnpaidByEmail(ctx context.Context, email string) ([]domain.Order, error) {
	email = strings.ToLower(strings.TrimSpace(email))
	if email == "" {
		return nil, errors.New("email is required")
	}

	docs, err := r.base.Query(ctx, func(q firestore.Query) firestore.Query {
		return q.Where("customer_email", "==", email).
			Where("status", "==", string(domain.OrderStatusUnpaid))
	})
	if err != nil {
		return nil, err
	}

	orders := make([]domain.Order, 0, len(docs))
	for _, doc := range docs {
		orders = append(orders, toDomainOrder(doc.ID, doc.Data))
	}
	sort.Slice(orders, func(i, j int) bool {
		return orders[i].CreatedAt.After(orders[j].CreatedAt)
	})
	return orders, nil
}

// List returns orders matching the filter, most recent first.
func (r *OrderRepository) List(ctx context.Context, filter repositories.OrderListFilter) ([]domain.Order, error) {
	limit := filter.Limit
	if limit <= 0 {
		limit = defaultListLimit
	}

	docs, err := r.base.Query(ctx, func(q firestore.Query) firestore.Query {
		if s := strings.TrimSpace(filter.Status); s != "" {
			q = q.Where("status", "==", s)
		}
		if s := strings.TrimSpace(filter.FulfillmentStatus); s != "" {
			q = q.Where("fulfillment_status", "==", s)
		}
		return q.OrderBy("created_at", firestore.Desc).Limit(limit)
	})
	if err != nil {
		return nil, err
	}

	orders := make([]domain.Order, 0, len(docs))
	for _, doc := range docs {
		orders = append(orders, toDomainOrder(doc.ID, doc.Data))
	}
	return orders, nil
}

// DeleteUnpaidCreatedBefore removes unpaid orders older than the cutoff and
// returns the deleted orders.
func (r *OrderRepository) DeleteUnpaidCreatedBefore(ctx context.Context, cutoff time.Time) ([]domain.Order, error) {
	docs, err := r.base.Query(ctx, func(q firestore.Query) firestore.Query {
		return q.Where("status", "==", string(domain.OrderStatusUnpaid)).
			Where("created_at", "<", cutoff.UTC())
	})
	if err != nil {
		return nil, err
	}

	deleted := make([]domain.Order, 0, len(docs))
	for _, doc := range docs {
		if err := r.base.Delete(ctx, doc.ID); err != nil {
			return deleted, err
		}
		deleted = append(deleted, toDomainOrder(doc.ID, doc.Data))
	}
	return deleted, nil
}

func (r *OrderRepository) findOne(ctx context.Context, op string, build pfirestore.QueryBuilder) (domain.Order, error) {
	docs, err := r.base.Query(ctx, build)
	if err != nil {
		return domain.Order{}, err
	}
	if len(docs) == 0 {
		return domain.Order{}, pfirestore.WrapError(op, status.Error(codes.NotFound, "order not found"))
	}
	return toDomainOrder(docs[0].ID, docs[0].Data), nil
}

type orderDocument struct {
	CustomerEmail     string `firestore:"customer_email"`
	CustomerFirstName string `firestore:"customer_first_name"`
	CustomerLastName  string `firestore:"customer_last_name"`
	CustomerPhone     string `firestore:"customer_phone"`

	ShippingAddress addressDocument    `firestore:"shipping_address"`
	Items           []lineItemDocument `firestore:"items"`

	Subtotal     int64 `firestore:"subtotal"`
	Tax          int64 `firestore:"tax"`
	ShippingCost int64 `firestore:"shipping_cost"`

	ShippingMethod string `firestore:"shipping_method"`
	ShipmentID     string `firestore:"shipment_id"`
	TrackingNumber string `firestore:"tracking_number"`
	LabelURL       string `firestore:"label_url"`

	StripeCheckoutID      string `firestore:"stripe_checkout_id"`
	StripeInvoiceID       string `firestore:"stripe_invoice_id"`
	StripePaymentIntentID string `firestore:"stripe_payment_intent_id"`
	StripeCustomerID      string `firestore:"stripe_customer_id"`
	StripeReceiptURL      string `firestore:"stripe_receipt_url"`

	Status            string `firestore:"status"`
	FulfillmentStatus string `firestore:"fulfillment_status"`

	ConfirmationEmailSent  bool `firestore:"confirmation_email_sent"`
	OwnerPickupEmailSent   bool `firestore:"owner_pickup_email_sent"`
	OwnerShippingEmailSent bool `firestore:"owner_shipping_email_sent"`
	ShipmentEmailSent      bool `firestore:"shipment_email_sent"`

	CreatedAt time.Time `firestore:"created_at"`
	UpdatedAt time.Time `firestore:"updated_at"`
}

type addressDocument struct {
	Name    string `firestore:"name"`
	Street1 string `firestore:"street1"`
	Street2 string `firestore:"street2"`
	City    string `firestore:"city"`
	State   string `firestore:"state"`
	Zip     string `firestore:"zip"`
	Country string `firestore:"country"`
	Phone   string `firestore:"phone"`
	Email   string `firestore:"email"`
}

type lineItemDocument struct {
	Name      string `firestore:"name"`
	Size      string `firestore:"size"`
	Quantity  int64  `firestore:"quantity"`
	UnitPrice int64  `firestore:"unit_price"`
}

func fromDomainOrder(order domain.Order) orderDocument {
	items := make([]lineItemDocument, 0, len(order.Items))
	for _, item := range order.Items {
		items = append(items, lineItemDocument{
			Name:      strings.TrimSpace(item.Name),
			Size:      strings.TrimSpace(item.Size),
			Quantity:  item.Quantity,
			UnitPrice: item.UnitPrice,
		})
	}

	status := order.Status
	if status == "" {
		status = domain.OrderStatusUnpaid
	}
	fulfillment := order.FulfillmentStatus
	if fulfillment == "" {
		fulfillment = domain.FulfillmentStatusUnfulfilled
	}

	return orderDocument{
		CustomerEmail:     strings.ToLower(strings.TrimSpace(order.CustomerEmail)),
		CustomerFirstName: strings.TrimSpace(order.CustomerFirstName),
		CustomerLastName:  strings.TrimSpace(order.CustomerLastName),
		CustomerPhone:     strings.TrimSpace(order.CustomerPhone),
		ShippingAddress: addressDocument{
			Name:    order.ShippingAddress.Name,
			Street1: order.ShippingAddress.Street1,
			Street2: order.ShippingAddress.Street2,
			City:    order.ShippingAddress.City,
			State:   order.ShippingAddress.State,
			Zip:     order.ShippingAddress.Zip,
			Country: order.ShippingAddress.Country,
			Phone:   order.ShippingAddress.Phone,
			Email:   order.ShippingAddress.Email,
		},
		Items:                  items,
		Subtotal:               order.Subtotal,
		Tax:                    order.Tax,
		ShippingCost:           order.ShippingCost,
		ShippingMethod:         strings.TrimSpace(order.ShippingMethod),
		ShipmentID:             strings.TrimSpace(order.ShipmentID),
		TrackingNumber:         strings.TrimSpace(order.TrackingNumber),
		LabelURL:               strings.TrimSpace(order.LabelURL),
		StripeCheckoutID:       strings.TrimSpace(order.Payment.CheckoutSessionID),
		StripeInvoiceID:        strings.TrimSpace(order.Payment.InvoiceID),
		StripePaymentIntentID:  strings.TrimSpace(order.Payment.PaymentIntentID),
		StripeCustomerID:       strings.TrimSpace(order.Payment.CustomerID),
		StripeReceiptURL:       strings.TrimSpace(order.Payment.ReceiptURL),
		Status:                 string(status),
		FulfillmentStatus:      string(fulfillment),
		ConfirmationEmailSent:  order.Notifications.ConfirmationEmailSent,
		OwnerPickupEmailSent:   order.Notifications.OwnerPickupEmailSent,
		OwnerShippingEmailSent: order.Notifications.OwnerShippingEmailSent,
		ShipmentEmailSent:      order.Notifications.ShipmentEmailSent,
		CreatedAt:              order.CreatedAt.UTC(),
		UpdatedAt:              order.UpdatedAt.UTC(),
	}
}

func toDomainOrder(id string, doc orderDocument) domain.Order {
	items := make([]domain.LineItem, 0, len(doc.Items))
	for _, item := range doc.Items {
		items = append(items, domain.LineItem{
			Name:      item.Name,
			Size:      item.Size,
			Quantity:  item.Quantity,
			UnitPrice: item.UnitPrice,
		})
	}

	return domain.Order{
		ID:                id,
		CustomerEmail:     doc.CustomerEmail,
		CustomerFirstName: doc.CustomerFirstName,
		CustomerLastName:  doc.CustomerLastName,
		CustomerPhone:     doc.CustomerPhone,
		ShippingAddress: domain.Address{
			Name:    doc.ShippingAddress.Name,
			Street1: doc.ShippingAddress.Street1,
			Street2: doc.ShippingAddress.Street2,
			City:    doc.ShippingAddress.City,
			State:   doc.ShippingAddress.State,
			Zip:     doc.ShippingAddress.Zip,
			Country: doc.ShippingAddress.Country,
			Phone:   doc.ShippingAddress.Phone,
			Email:   doc.ShippingAddress.Email,
		},
		Items:          items,
		Subtotal:       doc.Subtotal,
		Tax:            doc.Tax,
		ShippingCost:   doc.ShippingCost,
		ShippingMethod: doc.ShippingMethod,
		ShipmentID:     doc.ShipmentID,
		TrackingNumber: doc.TrackingNumber,
		LabelURL:       doc.LabelURL,
		Payment: domain.PaymentLinkage{
			CheckoutSessionID: doc.StripeCheckoutID,
			InvoiceID:         doc.StripeInvoiceID,
			PaymentIntentID:   doc.StripePaymentIntentID,
			CustomerID:        doc.StripeCustomerID,
			ReceiptURL:        doc.StripeReceiptURL,
		},
		Status:            domain.OrderStatus(doc.Status),
		FulfillmentStatus: domain.FulfillmentStatus(doc.FulfillmentStatus),
		Notifications: domain.NotificationFlags{
			ConfirmationEmailSent:  doc.ConfirmationEmailSent,
			OwnerPickupEmailSent:   doc.OwnerPickupEmailSent,
			OwnerShippingEmailSent: doc.OwnerShippingEmailSent,
			ShipmentEmailSent:      doc.ShipmentEmailSent,
		},
		CreatedAt: doc.CreatedAt,
		UpdatedAt: doc.UpdatedAt,
	}
}
