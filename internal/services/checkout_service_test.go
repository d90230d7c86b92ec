package services

import (
	"context"
	"errors"
	"testing"

	domain "github.com/lathermill/api/internal/domain"
	"github.com/lathermill/api/internal/payments"
)

type checkoutFixture struct {
	repo      *memOrderRepo
	customers *memCustomerRepo
	provider  *stubProvider
	shipping  *stubShipping
	events    *recordingPublisher
	svc       CheckoutService
}

func newCheckoutFixture(t *testing.T) *checkoutFixture {
	t.Helper()

	f := &checkoutFixture{
		repo:      newMemOrderRepo(),
		customers: newMemCustomerRepo(),
		provider:  &stubProvider{},
		shipping:  &stubShipping{},
		events:    &recordingPublisher{},
	}

	svc, err := NewCheckoutService(CheckoutServiceDeps{
		Orders:      f.repo,
		Customers:   f.customers,
		Payments:    f.provider,
		Shipping:    f.shipping,
		Events:      f.events,
		Clock:       testClock,
		IDGenerator: sequentialIDs("chk"),
		SuccessURL:  "https://lathermill.test/thanks",
		CancelURL:   "https://lathermill.test/cart",
	})
	if err != nil {
		t.Fatalf("NewCheckoutService: %v", err)
	}
	f.svc = svc
	return f
}

func pickupCheckout() StartCheckoutCommand {
	return StartCheckoutCommand{
		Email:          "Casey@Example.test",
		FirstName:      "Casey",
		LastName:       "Doe",
		Items:          []domain.LineItem{{Name: "Lavender Soap", Quantity: 2, UnitPrice: 1000}},
		ShippingMethod: domain.ShippingMethodLocalPickup,
	}
}

func TestStartCheckoutPickupOrder(t *testing.T) {
	f := newCheckoutFixture(t)

	result, err := f.svc.StartCheckout(context.Background(), pickupCheckout())
	if err != nil {
		t.Fatalf("StartCheckout: %v", err)
	}

	order := result.Order
	if order.Subtotal != 2000 || order.Tax != 165 || order.ShippingCost != 0 {
		t.Fatalf("unexpected amounts: %+v", order)
	}
	if order.Total() != 2165 {
		t.Fatalf("unexpected total %d", order.Total())
	}
	if order.Status != domain.OrderStatusUnpaid {
		t.Fatalf("new orders start unpaid, got %q", order.Status)
	}
	if order.CustomerEmail != "casey@example.test" {
		t.Fatalf("email not normalised: %q", order.CustomerEmail)
	}
	if order.Payment.CheckoutSessionID != "cs_test" {
		t.Fatalf("expected session linkage, got %+v", order.Payment)
	}
	if result.RedirectURL == "" {
		t.Fatal("expected a gateway redirect url")
	}

	if len(f.provider.sessionRequests) != 1 {
		t.Fatalf("expected 1 session request, got %d", len(f.provider.sessionRequests))
	}
	items := f.provider.sessionRequests[0].Items
	if len(items) != 2 {
		t.Fatalf("expected soap plus tax line, got %+v", items)
	}
	if items[1].Name != "Sales Tax" || items[1].Amount != 165 {
		t.Fatalf("unexpected tax line: %+v", items[1])
	}

	if _, err := f.customers.FindByEmail(context.Background(), "casey@example.test"); err != nil {
		t.Fatalf("expected customer record: %v", err)
	}
	if got := f.events.count("order.created"); got != 1 {
		t.Fatalf("expected 1 order.created event, got %d", got)
	}
}

func TestStartCheckoutCarrierResolvesRateFromQuote(t *testing.T) {
	f := newCheckoutFixture(t)

	cmd := pickupCheckout()
	cmd.ShippingMethod = "UPS Ground"
	cmd.ShipmentID = "shp_1"
	cmd.ShippingAddress = domain.Address{Name: "Casey Doe", Street1: "12 Mill Rd", City: "Dallas", State: "TX", Zip: "75201"}

	result, err := f.svc.StartCheckout(context.Background(), cmd)
	if err != nil {
		t.Fatalf("StartCheckout: %v", err)
	}

	order := result.Order
	if order.ShippingCost != 840 {
		t.Fatalf("expected quoted rate amount, got %d", order.ShippingCost)
	}
	if order.ShippingMethod != "UPS Ground" {
		t.Fatalf("unexpected method %q", order.ShippingMethod)
	}
	if order.Total() != 3005 {
		t.Fatalf("unexpected total %d", order.Total())
	}

	items := f.provider.sessionRequests[0].Items
	last := items[len(items)-1]
	if last.Name != "Shipping: UPS Ground" || last.Amount != 840 {
		t.Fatalf("unexpected shipping line: %+v", last)
	}
}

func TestStartCheckoutCarrierRequiresShipmentReference(t *testing.T) {
	f := newCheckoutFixture(t)

	cmd := pickupCheckout()
	cmd.ShippingMethod = "UPS Ground"
	cmd.ShippingAddress = domain.Address{Street1: "12 Mill Rd", City: "Dallas", State: "TX", Zip: "75201"}

	if _, err := f.svc.StartCheckout(context.Background(), cmd); !errors.Is(err, ErrCheckoutInvalidInput) {
		t.Fatalf("expected ErrCheckoutInvalidInput, got %v", err)
	}
}

func TestStartCheckoutRejectsUnknownRate(t *testing.T) {
	f := newCheckoutFixture(t)

	cmd := pickupCheckout()
	cmd.ShippingMethod = "DHL Express"
	cmd.ShipmentID = "shp_1"
	cmd.ShippingAddress = domain.Address{Street1: "12 Mill Rd", City: "Dallas", State: "TX", Zip: "75201"}

	if _, err := f.svc.StartCheckout(context.Background(), cmd); !errors.Is(err, ErrCheckoutRateUnavailable) {
		t.Fatalf("expected ErrCheckoutRateUnavailable, got %v", err)
	}
}

func TestStartCheckoutRejectsEmptyCart(t *testing.T) {
	f := newCheckoutFixture(t)

	cmd := pickupCheckout()
	cmd.Items = nil

	if _, err := f.svc.StartCheckout(context.Background(), cmd); !errors.Is(err, ErrCheckoutInvalidInput) {
		t.Fatalf("expected ErrCheckoutInvalidInput, got %v", err)
	}
	if f.repo.inserts != 0 {
		t.Fatal("invalid carts must not store orders")
	}
}

func TestStartCheckoutReusesOrderForReplayedSession(t *testing.T) {
	f := newCheckoutFixture(t)

	first, err := f.svc.StartCheckout(context.Background(), pickupCheckout())
	if err != nil {
		t.Fatalf("StartCheckout: %v", err)
	}

	// The gateway deduplicates by idempotency key and returns the same
	// session, so the retry must not create a second order.
	second, err := f.svc.StartCheckout(context.Background(), pickupCheckout())
	if err != nil {
		t.Fatalf("StartCheckout retry: %v", err)
	}

	if second.Order.ID != first.Order.ID {
		t.Fatalf("expected the stored order back, got %q and %q", first.Order.ID, second.Order.ID)
	}
	if f.repo.inserts != 1 {
		t.Fatalf("expected a single insert, got %d", f.repo.inserts)
	}
}

func TestStartCheckoutSurfacesGatewayFailure(t *testing.T) {
	f := newCheckoutFixture(t)
	f.provider.createSessionFn = func(context.Context, payments.CheckoutSessionRequest) (payments.CheckoutSession, error) {
		return payments.CheckoutSession{}, errors.New("gateway down")
	}

	if _, err := f.svc.StartCheckout(context.Background(), pickupCheckout()); err == nil {
		t.Fatal("expected gateway failure to surface")
	}
	if f.repo.inserts != 0 {
		t.Fatal("no order may be stored when the session fails")
	}
}
