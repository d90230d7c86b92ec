package handlers

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"

	domain "github.com/lathermill/api/internal/domain"
)

func newRateRouter(quoter RateQuoter) chi.Router {
	handlers := NewRateHandlers(quoter, domain.Address{Street1: "1 Workshop Way", City: "Austin", State: "TX", Zip: "78701"}, 2500)
	r := chi.NewRouter()
	handlers.Routes(r)
	return r
}

func TestQuoteRatesFiltersAndAppendsFreeOptions(t *testing.T) {
	quoter := &stubRateQuoter{
		quoteFn: func(_ context.Context, _, to domain.Address, weightOz float64) (domain.ShipmentQuote, error) {
			if to.Zip != "75201" {
				t.Errorf("unexpected destination zip %q", to.Zip)
			}
			if weightOz != 12 {
				t.Errorf("expected requested weight, got %v", weightOz)
			}
			return domain.ShipmentQuote{
				ShipmentID: "shp_1",
				Rates: []domain.Rate{
					{ID: "r1", Provider: "UPS", Service: "Ground", Amount: 840},
					{ID: "r2", Provider: "FedEx", Service: "Overnight", Amount: 4200},
				},
			}, nil
		},
	}

	body := `{"address":{"street1":"12 Mill Rd","city":"Dallas","state":"TX","zip":"75201"},"weight_oz":12}`
	req := httptest.NewRequest(http.MethodPost, "/rates", strings.NewReader(body))
	rr := httptest.NewRecorder()
	newRateRouter(quoter).ServeHTTP(rr, req)

	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rr.Code, rr.Body.String())
	}

	var resp quoteRatesResponse
	if err := json.Unmarshal(rr.Body.Bytes(), &resp); err != nil {
		t.Fatalf("parse response: %v", err)
	}
	if resp.ShipmentID != "shp_1" {
		t.Fatalf("unexpected shipment id %q", resp.ShipmentID)
	}
	if len(resp.Rates) != 3 {
		t.Fatalf("expected carrier rate plus two free options, got %+v", resp.Rates)
	}
	if resp.Rates[0].Method != "UPS Ground" || !resp.Rates[0].BestValue {
		t.Fatalf("unexpected first rate %+v", resp.Rates[0])
	}
	if resp.Rates[1].Service != domain.ShippingMethodLocalPickup || resp.Rates[2].Service != domain.ShippingMethodHandDelivery {
		t.Fatalf("expected free options last, got %+v", resp.Rates[1:])
	}
}

func TestQuoteRatesRejectsIncompleteAddress(t *testing.T) {
	body := `{"address":{"city":"Dallas"}}`
	req := httptest.NewRequest(http.MethodPost, "/rates", strings.NewReader(body))
	rr := httptest.NewRecorder()
	newRateRouter(&stubRateQuoter{}).ServeHTTP(rr, req)

	if rr.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", rr.Code)
	}
}

func TestQuoteRatesRejectsNonPositiveWeight(t *testing.T) {
	quoter := &stubRateQuoter{
		quoteFn: func(context.Context, domain.Address, domain.Address, float64) (domain.ShipmentQuote, error) {
			t.Error("quote must not be requested for an invalid weight")
			return domain.ShipmentQuote{}, nil
		},
	}

	for _, body := range []string{
		`{"address":{"street1":"12 Mill Rd","city":"Dallas","state":"TX","zip":"75201"}}`,
		`{"address":{"street1":"12 Mill Rd","city":"Dallas","state":"TX","zip":"75201"},"weight_oz":-4}`,
	} {
		req := httptest.NewRequest(http.MethodPost, "/rates", strings.NewReader(body))
		rr := httptest.NewRecorder()
		newRateRouter(quoter).ServeHTTP(rr, req)

		if rr.Code != http.StatusBadRequest {
			t.Fatalf("expected 400 for %s, got %d", body, rr.Code)
		}
	}
}

func TestQuoteRatesSurfacesQuoteFailure(t *testing.T) {
	quoter := &stubRateQuoter{
		quoteFn: func(context.Context, domain.Address, domain.Address, float64) (domain.ShipmentQuote, error) {
			return domain.ShipmentQuote{}, context.DeadlineExceeded
		},
	}

	body := `{"address":{"street1":"12 Mill Rd","city":"Dallas","state":"TX","zip":"75201"},"weight_oz":12}`
	req := httptest.NewRequest(http.MethodPost, "/rates", strings.NewReader(body))
	rr := httptest.NewRecorder()
	newRateRouter(quoter).ServeHTTP(rr, req)

	if rr.Code != http.StatusBadGateway {
		t.Fatalf("expected 502, got %d", rr.Code)
	}
}
