package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"time"

	domain "github.com/lathermill/api/internal/domain"
	"github.com/lathermill/api/internal/platform/httpx"
	"github.com/lathermill/api/internal/services"
)

const maxRequestBodySize = 64 * 1024

type addressPayload struct {
	Name    string `json:"name,omitempty"`
	Street1 string `json:"street1"`
	Street2 string `json:"street2,omitempty"`
	City    string `json:"city"`
	State   string `json:"state"`
	Zip     string `json:"zip"`
	Country string `json:"country,omitempty"`
	Phone   string `json:"phone,omitempty"`
	Email   string `json:"email,omitempty"`
}

func (p addressPayload) toDomain() domain.Address {
	return domain.Address{
		Name:    p.Name,
		Street1: p.Street1,
		Street2: p.Street2,
		City:    p.City,
		State:   p.State,
		Zip:     p.Zip,
		Country: p.Country,
		Phone:   p.Phone,
		Email:   p.Email,
	}
}

func addressFromDomain(addr domain.Address) addressPayload {
	return addressPayload{
		Name:    addr.Name,
		Street1: addr.Street1,
		Street2: addr.Street2,
		City:    addr.City,
		State:   addr.State,
		Zip:     addr.Zip,
		Country: addr.Country,
		Phone:   addr.Phone,
		Email:   addr.Email,
	}
}

type lineItemPayload struct {
	Name      string `json:"name"`
	Size      string `json:"size,omitempty"`
	Quantity  int64  `json:"quantity"`
	UnitPrice int64  `json:"unit_price"`
}

func lineItemsToDomain(items []lineItemPayload) []domain.LineItem {
	out := make([]domain.LineItem, 0, len(items))
	for _, item := range items {
		out = append(out, domain.LineItem{
			Name:      item.Name,
			Size:      item.Size,
			Quantity:  item.Quantity,
			UnitPrice: item.UnitPrice,
		})
	}
	return out
}

type orderPayload struct {
	ID                string            `json:"id"`
	CustomerEmail     string            `json:"customer_email"`
	CustomerFirstName string            `json:"customer_first_name,omitempty"`
	CustomerLastName  string            `json:"customer_last_name,omitempty"`
	CustomerPhone     string            `json:"customer_phone,omitempty"`
	ShippingAddress   *addressPayload   `json:"shipping_address,omitempty"`
	Items             []lineItemPayload `json:"items"`
	Subtotal          int64             `json:"subtotal"`
	Tax               int64             `json:"tax"`
	ShippingCost      int64             `json:"shipping_cost"`
	Total             int64             `json:"total"`
	ShippingMethod    string            `json:"shipping_method"`
	ShipmentID        string            `json:"shipment_id,omitempty"`
	TrackingNumber    string            `json:"tracking_number,omitempty"`
	LabelURL          string            `json:"label_url,omitempty"`
	Status            string            `json:"status"`
	FulfillmentStatus string            `json:"fulfillment_status"`
	Notifications     map[string]bool   `json:"notifications"`
	ReceiptURL        string            `json:"receipt_url,omitempty"`
	CreatedAt         time.Time         `json:"created_at"`
	UpdatedAt         time.Time         `json:"updated_at"`
}

func orderFromDomain(order domain.Order) orderPayload {
	items := make([]lineItemPayload, 0, len(order.Items))
	for _, item := range order.Items {
		items = append(items, lineItemPayload{
			Name:      item.Name,
			Size:      item.Size,
			Quantity:  item.Quantity,
			UnitPrice: item.UnitPrice,
		})
	}

	payload := orderPayload{
		ID:                order.ID,
		CustomerEmail:     order.CustomerEmail,
		CustomerFirstName: order.CustomerFirstName,
		CustomerLastName:  order.CustomerLastName,
		CustomerPhone:     order.CustomerPhone,
		Items:             items,
		Subtotal:          order.Subtotal,
		Tax:               order.Tax,
		ShippingCost:      order.ShippingCost,
		Total:             order.Total(),
		ShippingMethod:    order.ShippingMethod,
		ShipmentID:        order.ShipmentID,
		TrackingNumber:    order.TrackingNumber,
		LabelURL:          order.LabelURL,
		Status:            string(order.Status),
		FulfillmentStatus: string(order.FulfillmentStatus),
		Notifications: map[string]bool{
			"confirmation_email_sent":   order.Notifications.ConfirmationEmailSent,
			"owner_pickup_email_sent":   order.Notifications.OwnerPickupEmailSent,
			"owner_shipping_email_sent": order.Notifications.OwnerShippingEmailSent,
			"shipment_email_sent":       order.Notifications.ShipmentEmailSent,
		},
		ReceiptURL: order.Payment.ReceiptURL,
		CreatedAt:  order.CreatedAt,
		UpdatedAt:  order.UpdatedAt,
	}
	if order.ShippingAddress != (domain.Address{}) {
		addr := addressFromDomain(order.ShippingAddress)
		payload.ShippingAddress = &addr
	}
	return payload
}

type ratePayload struct {
	ID            string `json:"id"`
	Provider      string `json:"provider"`
	Service       string `json:"service"`
	Amount        int64  `json:"amount"`
	EstimatedDays int    `json:"estimated_days,omitempty"`
	BestValue     bool   `json:"best_value"`
	Method        string `json:"method"`
}

func rateFromDomain(rate domain.Rate) ratePayload {
	return ratePayload{
		ID:            rate.ID,
		Provider:      rate.Provider,
		Service:       rate.Service,
		Amount:        rate.Amount,
		EstimatedDays: rate.EstimatedDays,
		BestValue:     rate.BestValue,
		Method:        rate.MethodLabel(),
	}
}

func writeJSONResponse(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func decodeJSONBody(w http.ResponseWriter, r *http.Request, dst any) error {
	r.Body = http.MaxBytesReader(w, r.Body, maxRequestBodySize)
	decoder := json.NewDecoder(r.Body)
	if err := decoder.Decode(dst); err != nil {
		if errors.Is(err, io.EOF) {
			return errors.New("request body is required")
		}
		return err
	}
	return nil
}

func writeOrderError(ctx context.Context, w http.ResponseWriter, err error) {
	if err == nil {
		return
	}
	switch {
	case errors.Is(err, services.ErrOrderInvalidInput):
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", err.Error(), http.StatusBadRequest))
	case errors.Is(err, services.ErrOrderNotFound):
		httpx.WriteError(ctx, w, httpx.NewError("order_not_found", "order not found", http.StatusNotFound))
	case errors.Is(err, services.ErrOrderInvalidState):
		httpx.WriteError(ctx, w, httpx.NewError("order_invalid_state", err.Error(), http.StatusConflict))
	default:
		httpx.WriteError(ctx, w, httpx.NewError("order_error", "failed to process order request", http.StatusInternalServerError))
	}
}
