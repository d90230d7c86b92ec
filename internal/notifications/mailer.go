package notifications

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"

	domain "github.com/lathermill/api/internal/domain"
)

const defaultTimeout = 10 * time.Second

// Mailer sends templated emails through the transactional mail API.
type Mailer struct {
	baseURL    string
	apiKey     string
	from       string
	httpClient *http.Client
	logger     *zap.Logger
}

// MailerOption customises the Mailer.
type MailerOption func(*Mailer)

// WithHTTPClient overrides the underlying HTTP client, primarily for tests.
func WithHTTPClient(httpClient *http.Client) MailerOption {
	return func(m *Mailer) {
		if httpClient != nil {
			m.httpClient = httpClient
		}
	}
}

// WithLogger sets the logger used for diagnostics.
func WithLogger(logger *zap.Logger) MailerOption {
	return func(m *Mailer) {
		if logger != nil {
			m.logger = logger
		}
	}
}

var _ Dispatcher = (*Mailer)(nil)

// NewMailer constructs a mail API client.
func NewMailer(baseURL, apiKey, from string, opts ...MailerOption) (*Mailer, error) {
	baseURL = strings.TrimRight(strings.TrimSpace(baseURL), "/")
	if baseURL == "" {
		return nil, errors.New("notifications: mailer base url is required")
	}
	if strings.TrimSpace(from) == "" {
		return nil, errors.New("notifications: from address is required")
	}

	mailer := &Mailer{
		baseURL:    baseURL,
		apiKey:     strings.TrimSpace(apiKey),
		from:       strings.TrimSpace(from),
		httpClient: &http.Client{Timeout: defaultTimeout},
		logger:     zap.NewNop(),
	}
	for _, opt := range opts {
		if opt != nil {
			opt(mailer)
		}
	}
	return mailer, nil
}

type sendRequest struct {
	Template string         `json:"template"`
	From     string         `json:"from"`
	To       string         `json:"to"`
	Payload  map[string]any `json:"payload"`
}

// Send posts the templated message to the mail API.
func (m *Mailer) Send(ctx context.Context, msg Message) error {
	if m == nil {
		return errors.New("notifications: mailer is nil")
	}
	recipient := strings.TrimSpace(msg.Recipient)
	if recipient == "" {
		return errors.New("notifications: recipient is required")
	}
	if msg.Kind == "" {
		return errors.New("notifications: template kind is required")
	}

	body, err := json.Marshal(sendRequest{
		Template: string(msg.Kind),
		From:     m.from,
		To:       recipient,
		Payload:  orderPayload(msg),
	})
	if err != nil {
		return fmt.Errorf("notifications: encode message: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, m.baseURL+"/messages", bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("notifications: create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if m.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+m.apiKey)
	}

	resp, err := m.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("notifications: send %s: %w", msg.Kind, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		detail, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return fmt.Errorf("notifications: send %s: unexpected status %d: %s", msg.Kind, resp.StatusCode, strings.TrimSpace(string(detail)))
	}

	m.logger.Debug("notifications: message sent",
		zap.String("template", string(msg.Kind)),
		zap.String("order_id", msg.Order.ID),
	)
	return nil
}

func orderPayload(msg Message) map[string]any {
	order := msg.Order

	items := make([]map[string]any, 0, len(order.Items))
	for _, item := range order.Items {
		items = append(items, map[string]any{
			"name":       item.Name,
			"size":       item.Size,
			"quantity":   item.Quantity,
			"unit_price": formatCents(item.UnitPrice),
		})
	}

	payload := map[string]any{
		"order_id":        order.ID,
		"customer_name":   order.CustomerName(),
		"customer_email":  order.CustomerEmail,
		"items":           items,
		"subtotal":        formatCents(order.Subtotal),
		"tax":             formatCents(order.Tax),
		"shipping_cost":   formatCents(order.ShippingCost),
		"total":           formatCents(order.Total()),
		"shipping_method": order.ShippingMethod,
	}
	if order.Payment.ReceiptURL != "" {
		payload["receipt_url"] = order.Payment.ReceiptURL
	}
	if order.TrackingNumber != "" {
		payload["tracking_number"] = order.TrackingNumber
	}
	if msg.PackingSlipURL != "" {
		payload["packing_slip_url"] = msg.PackingSlipURL
	}
	if !domain.IsFreeDeliveryMethod(order.ShippingMethod) {
		payload["shipping_address"] = map[string]any{
			"name":    order.ShippingAddress.Name,
			"street1": order.ShippingAddress.Street1,
			"street2": order.ShippingAddress.Street2,
			"city":    order.ShippingAddress.City,
			"state":   order.ShippingAddress.State,
			"zip":     order.ShippingAddress.Zip,
		}
	}
	return payload
}

func formatCents(cents int64) string {
	sign := ""
	if cents < 0 {
		sign = "-"
		cents = -cents
	}
	return fmt.Sprintf("%s%d.%02d", sign, cents/100, cents%100)
}
