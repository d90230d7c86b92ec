package notifications

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	domain "github.com/lathermill/api/internal/domain"
)

func sampleOrder() domain.Order {
	return domain.Order{
		ID:                "ord_1",
		CustomerEmail:     "casey@example.test",
		CustomerFirstName: "Casey",
		CustomerLastName:  "Doe",
		Items: []domain.LineItem{
			{Name: "Lavender Soap", Quantity: 2, UnitPrice: 1000},
		},
		Subtotal:       2000,
		Tax:            165,
		ShippingCost:   0,
		ShippingMethod: domain.ShippingMethodLocalPickup,
		Status:         domain.OrderStatusPaid,
	}
}

func TestMailerSendsTemplatedPayload(t *testing.T) {
	var received sendRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost || r.URL.Path != "/messages" {
			t.Errorf("unexpected request %s %s", r.Method, r.URL.Path)
		}
		if got := r.Header.Get("Authorization"); got != "Bearer mk_test" {
			t.Errorf("unexpected authorization header %q", got)
		}
		if err := json.NewDecoder(r.Body).Decode(&received); err != nil {
			t.Errorf("decode request: %v", err)
		}
		w.WriteHeader(http.StatusAccepted)
	}))
	defer srv.Close()

	mailer, err := NewMailer(srv.URL, "mk_test", "orders@lathermill.test")
	if err != nil {
		t.Fatalf("NewMailer: %v", err)
	}

	err = mailer.Send(context.Background(), Message{
		Kind:      KindCustomerConfirmation,
		Recipient: "casey@example.test",
		Order:     sampleOrder(),
	})
	if err != nil {
		t.Fatalf("Send: %v", err)
	}

	if received.Template != string(KindCustomerConfirmation) {
		t.Fatalf("unexpected template %q", received.Template)
	}
	if received.To != "casey@example.test" || received.From != "orders@lathermill.test" {
		t.Fatalf("unexpected addressing %+v", received)
	}
	if received.Payload["total"] != "21.65" {
		t.Fatalf("unexpected total %v", received.Payload["total"])
	}
	if _, ok := received.Payload["shipping_address"]; ok {
		t.Fatal("pickup orders must not include a shipping address")
	}
}

func TestMailerSurfacesAPIErrors(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, `{"error":"template unknown"}`, http.StatusUnprocessableEntity)
	}))
	defer srv.Close()

	mailer, err := NewMailer(srv.URL, "mk_test", "orders@lathermill.test")
	if err != nil {
		t.Fatalf("NewMailer: %v", err)
	}

	err = mailer.Send(context.Background(), Message{
		Kind:      KindOwnerPickup,
		Recipient: "owner@lathermill.test",
		Order:     sampleOrder(),
	})
	if err == nil {
		t.Fatal("expected error for non-2xx response")
	}
}

func TestFormatCents(t *testing.T) {
	cases := map[int64]string{
		0:    "0.00",
		5:    "0.05",
		840:  "8.40",
		2165: "21.65",
	}
	for cents, want := range cases {
		if got := formatCents(cents); got != want {
			t.Errorf("formatCents(%d) = %q, want %q", cents, got, want)
		}
	}
}
