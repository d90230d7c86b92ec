package domain

import (
	"strings"
	"time"
)

// OrderStatus represents the payment state of an order. It only ever moves
// from unpaid to paid.
type OrderStatus string

const (
	// OrderStatusUnpaid indicates payment has not been captured yet.
	OrderStatusUnpaid OrderStatus = "unpaid"
	// OrderStatusPaid indicates payment has been captured. Terminal.
	OrderStatusPaid OrderStatus = "paid"
)

// FulfillmentStatus represents the admin-controlled fulfillment axis,
// independent of payment state.
type FulfillmentStatus string

const (
	// FulfillmentStatusUnfulfilled indicates the order has not shipped or been handed over.
	FulfillmentStatusUnfulfilled FulfillmentStatus = "unfulfilled"
	// FulfillmentStatusFulfilled indicates the order has been completed by the operator.
	FulfillmentStatusFulfilled FulfillmentStatus = "fulfilled"
)

// Free-delivery shipping methods. Neither is backed by a carrier rate and
// neither triggers a label purchase.
const (
	ShippingMethodLocalPickup  = "Local Pickup"
	ShippingMethodHandDelivery = "Hand Delivery"
)

// IsFreeDeliveryMethod reports whether the shipping method is one of the
// synthetic zero-cost options.
func IsFreeDeliveryMethod(method string) bool {
	switch strings.TrimSpace(method) {
	case ShippingMethodLocalPickup, ShippingMethodHandDelivery:
		return true
	default:
		return false
	}
}

// Address is a postal address used for rate quoting and label purchase.
type Address struct {
	Name    string
	Street1 string
	Street2 string
	City    string
	State   string
	Zip     string
	Country string
	Phone   string
	Email   string
}

// LineItem is a snapshot of a purchased item. The unit price is captured at
// checkout time and does not track the live catalog price.
type LineItem struct {
	Name      string
	Size      string
	Quantity  int64
	UnitPrice int64
}

// Amount returns the line total in cents.
func (i LineItem) Amount() int64 {
	return i.Quantity * i.UnitPrice
}

// NotificationFlags records which one-time sends have completed for an order.
// Each flag is set only after the corresponding send succeeded.
type NotificationFlags struct {
	ConfirmationEmailSent  bool
	OwnerPickupEmailSent   bool
	OwnerShippingEmailSent bool
	ShipmentEmailSent      bool
}

// PaymentLinkage connects an order to its payment gateway objects. Exactly one
// of CheckoutSessionID and InvoiceID is set, depending on the entry path.
type PaymentLinkage struct {
	CheckoutSessionID string
	InvoiceID         string
	PaymentIntentID   string
	CustomerID        string
	ReceiptURL        string
}

// Order is one checkout or manually entered purchase record with its payment
// and fulfillment state. All monetary amounts are in cents.
type Order struct {
	ID string

	CustomerEmail     string
	CustomerFirstName string
	CustomerLastName  string
	CustomerPhone     string
	ShippingAddress   Address

	Items []LineItem

	Subtotal     int64
	Tax          int64
	ShippingCost int64

	ShippingMethod string
	ShipmentID     string
	TrackingNumber string
	LabelURL       string

	Payment PaymentLinkage

	Status            OrderStatus
	FulfillmentStatus FulfillmentStatus
	Notifications     NotificationFlags

	CreatedAt time.Time
	UpdatedAt time.Time
}

// Total returns the derived order total in cents.
func (o Order) Total() int64 {
	return o.Subtotal + o.Tax + o.ShippingCost
}

// IsPaid reports whether payment has been captured.
func (o Order) IsPaid() bool {
	return o.Status == OrderStatusPaid
}

// HasLabel reports whether a shipping label was already purchased.
func (o Order) HasLabel() bool {
	return strings.TrimSpace(o.LabelURL) != ""
}

// IsFreeDelivery reports whether the order uses a zero-cost fulfillment option.
func (o Order) IsFreeDelivery() bool {
	return IsFreeDeliveryMethod(o.ShippingMethod)
}

// CustomerName returns the customer's display name.
func (o Order) CustomerName() string {
	return strings.TrimSpace(strings.TrimSpace(o.CustomerFirstName) + " " + strings.TrimSpace(o.CustomerLastName))
}

// Customer is a purchaser record deduplicated by email. Name fields are filled
// from whichever order first supplies them and never overwritten once set.
type Customer struct {
	ID        string
	Email     string
	FirstName string
	LastName  string
	Phone     string
	CreatedAt time.Time
	UpdatedAt time.Time
}

// Rate is a single carrier rate option from a shipment quote. Amount is in cents.
type Rate struct {
	ID            string
	Provider      string
	Service       string
	Amount        int64
	EstimatedDays int
	BestValue     bool
}

// MethodLabel returns the shipping method string stored on an order when this
// rate is selected.
func (r Rate) MethodLabel() string {
	provider := strings.TrimSpace(r.Provider)
	service := strings.TrimSpace(r.Service)
	if provider == "" {
		return service
	}
	if service == "" {
		return provider
	}
	return provider + " " + service
}

// ShipmentQuote is a short-lived set of carrier rate options tied to an
// address pair and parcel weight. Only the ShipmentID outlives the quote.
type ShipmentQuote struct {
	ShipmentID string
	Rates      []Rate
}

// Label is a purchased shipping document plus tracking number.
type Label struct {
	TrackingNumber string
	LabelURL       string
}
