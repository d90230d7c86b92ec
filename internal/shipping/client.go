package shipping

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math"
	"net/http"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"

	domain "github.com/lathermill/api/internal/domain"
)

const (
	defaultTimeout = 10 * time.Second

	transactionStatusSuccess = "SUCCESS"
)

// ErrLabelPurchaseFailed indicates the carrier declined the label purchase.
// The order keeps no label and an operator may retry.
var ErrLabelPurchaseFailed = errors.New("shipping: label purchase failed")

// Client talks to the rate quoting / label purchase API over HTTP.
type Client struct {
	baseURL    string
	token      string
	httpClient *http.Client
	logger     *zap.Logger
}

// ClientOption customises the Client.
type ClientOption func(*Client)

// WithHTTPClient overrides the underlying HTTP client, primarily for tests.
func WithHTTPClient(httpClient *http.Client) ClientOption {
	return func(c *Client) {
		if httpClient != nil {
			c.httpClient = httpClient
		}
	}
}

// WithLogger sets the logger used for diagnostics.
func WithLogger(logger *zap.Logger) ClientOption {
	return func(c *Client) {
		if logger != nil {
			c.logger = logger
		}
	}
}

// NewClient constructs a shipping API client.
func NewClient(baseURL, token string, opts ...ClientOption) (*Client, error) {
	baseURL = strings.TrimRight(strings.TrimSpace(baseURL), "/")
	if baseURL == "" {
		return nil, errors.New("shipping: base url is required")
	}

	client := &Client{
		baseURL:    baseURL,
		token:      strings.TrimSpace(token),
		httpClient: &http.Client{Timeout: defaultTimeout},
		logger:     zap.NewNop(),
	}
	for _, opt := range opts {
		if opt != nil {
			opt(client)
		}
	}
	return client, nil
}

type addressPayload struct {
	Name    string `json:"name,omitempty"`
	Street1 string `json:"street1"`
	Street2 string `json:"street2,omitempty"`
	City    string `json:"city"`
	State   string `json:"state"`
	Zip     string `json:"zip"`
	Country string `json:"country"`
	Phone   string `json:"phone,omitempty"`
	Email   string `json:"email,omitempty"`
}

type parcelPayload struct {
	Length       string `json:"length"`
	Width        string `json:"width"`
	Height       string `json:"height"`
	DistanceUnit string `json:"distance_unit"`
	Weight       string `json:"weight"`
	MassUnit     string `json:"mass_unit"`
}

type shipmentRequest struct {
	AddressFrom addressPayload  `json:"address_from"`
	AddressTo   addressPayload  `json:"address_to"`
	Parcels     []parcelPayload `json:"parcels"`
	Async       bool            `json:"async"`
}

type ratePayload struct {
	ObjectID     string `json:"object_id"`
	Provider     string `json:"provider"`
	ServiceLevel struct {
		Name string `json:"name"`
	} `json:"servicelevel"`
	Amount        string `json:"amount"`
	EstimatedDays int    `json:"estimated_days"`
}

type shipmentResponse struct {
	ObjectID string        `json:"object_id"`
	Status   string        `json:"status"`
	Rates    []ratePayload `json:"rates"`
}

type transactionRequest struct {
	Shipment      string `json:"shipment"`
	Rate          string `json:"rate"`
	LabelFileType string `json:"label_file_type"`
	Async         bool   `json:"async"`
}

type transactionResponse struct {
	ObjectID       string `json:"object_id"`
	Status         string `json:"status"`
	TrackingNumber string `json:"tracking_number"`
	LabelURL       string `json:"label_url"`
	Messages       []struct {
		Text string `json:"text"`
	} `json:"messages"`
}

// QuoteShipment creates a shipment on the quoting service and returns the raw
// candidate rates plus the shipment reference.
func (c *Client) QuoteShipment(ctx context.Context, from, to domain.Address, weightOz float64) (domain.ShipmentQuote, error) {
	if weightOz <= 0 {
		return domain.ShipmentQuote{}, errors.New("shipping: weight must be positive")
	}

	payload := shipmentRequest{
		AddressFrom: toAddressPayload(from),
		AddressTo:   toAddressPayload(to),
		Parcels: []parcelPayload{{
			Length:       "8",
			Width:        "6",
			Height:       "4",
			DistanceUnit: "in",
			Weight:       strconv.FormatFloat(weightOz, 'f', -1, 64),
			MassUnit:     "oz",
		}},
		Async: false,
	}

	var resp shipmentResponse
	if err := c.do(ctx, http.MethodPost, "/shipments", payload, &resp); err != nil {
		return domain.ShipmentQuote{}, err
	}
	if strings.TrimSpace(resp.ObjectID) == "" {
		return domain.ShipmentQuote{}, errors.New("shipping: quoting service returned no shipment reference")
	}

	quote := toShipmentQuote(resp)
	c.logger.Debug("shipping: quoted shipment",
		zap.String("shipment_id", quote.ShipmentID),
		zap.Int("rate_count", len(quote.Rates)),
	)
	return quote, nil
}

// GetShipment re-fetches a previously quoted shipment by reference.
func (c *Client) GetShipment(ctx context.Context, shipmentID string) (domain.ShipmentQuote, error) {
	shipmentID = strings.TrimSpace(shipmentID)
	if shipmentID == "" {
		return domain.ShipmentQuote{}, errors.New("shipping: shipment id is required")
	}

	var resp shipmentResponse
	if err := c.do(ctx, http.MethodGet, "/shipments/"+shipmentID, nil, &resp); err != nil {
		return domain.ShipmentQuote{}, err
	}
	return toShipmentQuote(resp), nil
}

// PurchaseLabel buys a label for the given shipment and rate. A non-success
// transaction status is returned as ErrLabelPurchaseFailed.
func (c *Client) PurchaseLabel(ctx context.Context, shipmentID, rateID string) (domain.Label, error) {
	if strings.TrimSpace(shipmentID) == "" || strings.TrimSpace(rateID) == "" {
		return domain.Label{}, errors.New("shipping: shipment id and rate id are required")
	}

	payload := transactionRequest{
		Shipment:      shipmentID,
		Rate:          rateID,
		LabelFileType: "PDF",
		Async:         false,
	}

	var resp transactionResponse
	if err := c.do(ctx, http.MethodPost, "/transactions", payload, &resp); err != nil {
		return domain.Label{}, err
	}

	if !strings.EqualFold(resp.Status, transactionStatusSuccess) {
		detail := ""
		if len(resp.Messages) > 0 {
			detail = resp.Messages[0].Text
		}
		c.logger.Warn("shipping: label purchase declined",
			zap.String("shipment_id", shipmentID),
			zap.String("status", resp.Status),
			zap.String("detail", detail),
		)
		return domain.Label{}, fmt.Errorf("%w: status %s", ErrLabelPurchaseFailed, resp.Status)
	}

	return domain.Label{
		TrackingNumber: resp.TrackingNumber,
		LabelURL:       resp.LabelURL,
	}, nil
}

func (c *Client) do(ctx context.Context, method, path string, body, out any) error {
	var reader io.Reader
	if body != nil {
		encoded, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("shipping: encode request: %w", err)
		}
		reader = bytes.NewReader(encoded)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return fmt.Errorf("shipping: create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if c.token != "" {
		req.Header.Set("Authorization", "ShippoToken "+c.token)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("shipping: %s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return fmt.Errorf("shipping: read response: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("shipping: %s %s: unexpected status %d: %s", method, path, resp.StatusCode, strings.TrimSpace(string(data)))
	}

	if out == nil {
		return nil
	}
	if err := json.Unmarshal(data, out); err != nil {
		return fmt.Errorf("shipping: decode response: %w", err)
	}
	return nil
}

func toAddressPayload(addr domain.Address) addressPayload {
	country := strings.TrimSpace(addr.Country)
	if country == "" {
		country = "US"
	}
	return addressPayload{
		Name:    addr.Name,
		Street1: addr.Street1,
		Street2: addr.Street2,
		City:    addr.City,
		State:   addr.State,
		Zip:     addr.Zip,
		Country: country,
		Phone:   addr.Phone,
		Email:   addr.Email,
	}
}

func toShipmentQuote(resp shipmentResponse) domain.ShipmentQuote {
	rates := make([]domain.Rate, 0, len(resp.Rates))
	for _, rate := range resp.Rates {
		rates = append(rates, domain.Rate{
			ID:            rate.ObjectID,
			Provider:      strings.TrimSpace(rate.Provider),
			Service:       strings.TrimSpace(rate.ServiceLevel.Name),
			Amount:        parseAmountCents(rate.Amount),
			EstimatedDays: rate.EstimatedDays,
		})
	}
	return domain.ShipmentQuote{
		ShipmentID: resp.ObjectID,
		Rates:      rates,
	}
}

// parseAmountCents converts a decimal currency string such as "8.40" to cents.
func parseAmountCents(amount string) int64 {
	value, err := strconv.ParseFloat(strings.TrimSpace(amount), 64)
	if err != nil {
		return 0
	}
	return int64(math.Round(value * 100))
}
