package handlers

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"

	"github.com/lathermill/api/internal/payments"
	"github.com/lathermill/api/internal/services"
)

func newWebhookRouter(parser EventParser, orders services.OrderService) chi.Router {
	handlers := NewWebhookHandlers(parser, orders, nil)
	r := chi.NewRouter()
	handlers.Routes(r)
	return r
}

func TestStripeWebhookBadSignature(t *testing.T) {
	parser := &stubEventParser{
		parseFn: func([]byte, string) (payments.Event, error) {
			return payments.Event{}, payments.ErrInvalidSignature
		},
	}

	req := httptest.NewRequest(http.MethodPost, "/stripe", strings.NewReader(`{}`))
	rr := httptest.NewRecorder()
	newWebhookRouter(parser, &stubOrderService{}).ServeHTTP(rr, req)

	if rr.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 on bad signature, got %d", rr.Code)
	}
}

func TestStripeWebhookAcknowledgesUnmatchedEvents(t *testing.T) {
	parser := &stubEventParser{
		parseFn: func(_ []byte, sig string) (payments.Event, error) {
			if sig != "t=1,v1=abc" {
				t.Errorf("signature header not forwarded: %q", sig)
			}
			return payments.Event{Type: payments.EventCheckoutCompleted, SessionID: "cs_unknown"}, nil
		},
	}
	// The service drops unmatched events without error; the handler must
	// acknowledge so the gateway stops retrying.
	orders := &stubOrderService{
		handleFn: func(context.Context, payments.Event) error { return nil },
	}

	req := httptest.NewRequest(http.MethodPost, "/stripe", strings.NewReader(`{}`))
	req.Header.Set("Stripe-Signature", "t=1,v1=abc")
	rr := httptest.NewRecorder()
	newWebhookRouter(parser, orders).ServeHTTP(rr, req)

	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rr.Code, rr.Body.String())
	}
	if !strings.Contains(rr.Body.String(), `"received":true`) {
		t.Fatalf("unexpected body %s", rr.Body.String())
	}
}

func TestStripeWebhookReportsTransientFailures(t *testing.T) {
	orders := &stubOrderService{
		handleFn: func(context.Context, payments.Event) error {
			return errors.New("datastore unavailable")
		},
	}

	req := httptest.NewRequest(http.MethodPost, "/stripe", strings.NewReader(`{}`))
	rr := httptest.NewRecorder()
	newWebhookRouter(&stubEventParser{}, orders).ServeHTTP(rr, req)

	if rr.Code != http.StatusInternalServerError {
		t.Fatalf("expected 500 so the gateway retries, got %d", rr.Code)
	}
}
