package shipping

import (
	"errors"
	"testing"

	domain "github.com/lathermill/api/internal/domain"
)

func TestPrepareRatesFiltersDeduplicatesAndAppendsFreeOptions(t *testing.T) {
	quoted := []domain.Rate{
		{ID: "r1", Provider: "USPS", Service: "Priority Mail", Amount: 500},
		{ID: "r2", Provider: "USPS", Service: "Priority Mail", Amount: 500},
		{ID: "r3", Provider: "FedEx", Service: "Overnight", Amount: 3000},
		{ID: "r4", Provider: "UPS", Service: "Ground", Amount: 1200},
	}

	prepared := PrepareRates(quoted, 2500)

	if len(prepared) != 4 {
		t.Fatalf("expected 4 rates, got %d: %+v", len(prepared), prepared)
	}
	if prepared[0].ID != "r1" || prepared[1].ID != "r4" {
		t.Fatalf("unexpected carrier rates: %+v", prepared[:2])
	}
	if !prepared[0].BestValue {
		t.Fatal("expected the cheapest positive rate to be tagged best value")
	}
	if prepared[1].BestValue {
		t.Fatal("only one rate may carry the best value tag")
	}
	if prepared[2].Service != domain.ShippingMethodLocalPickup || prepared[2].Amount != 0 {
		t.Fatalf("expected local pickup option, got %+v", prepared[2])
	}
	if prepared[3].Service != domain.ShippingMethodHandDelivery || prepared[3].Amount != 0 {
		t.Fatalf("expected hand delivery option, got %+v", prepared[3])
	}
}

func TestPrepareRatesBestValueTiesKeepFirst(t *testing.T) {
	quoted := []domain.Rate{
		{ID: "a", Provider: "USPS", Service: "Ground Advantage", Amount: 700},
		{ID: "b", Provider: "UPS", Service: "Ground", Amount: 700},
	}

	prepared := PrepareRates(quoted, 2500)
	if !prepared[0].BestValue || prepared[1].BestValue {
		t.Fatalf("tie should keep first-encountered best value: %+v", prepared[:2])
	}
}

func TestPrepareRatesWithOnlyFreeOptions(t *testing.T) {
	prepared := PrepareRates(nil, 0)
	if len(prepared) != 2 {
		t.Fatalf("expected only the synthetic options, got %+v", prepared)
	}
	for _, rate := range prepared {
		if rate.BestValue {
			t.Fatal("zero-cost options must not be tagged best value")
		}
	}
}

func TestFindRateByMethodMatchesProviderServiceLabel(t *testing.T) {
	quote := domain.ShipmentQuote{
		ShipmentID: "shp_1",
		Rates: []domain.Rate{
			{ID: "r1", Provider: "USPS", Service: "Priority Mail", Amount: 500},
			{ID: "r2", Provider: "UPS", Service: "Ground", Amount: 840},
		},
	}

	rate, err := FindRateByMethod(quote, "UPS Ground")
	if err != nil {
		t.Fatalf("FindRateByMethod: %v", err)
	}
	if rate.ID != "r2" {
		t.Fatalf("expected rate r2, got %q", rate.ID)
	}

	// Formatting drift between quote and purchase time.
	rate, err = FindRateByMethod(quote, "  ups   ground ")
	if err != nil {
		t.Fatalf("normalised match failed: %v", err)
	}
	if rate.ID != "r2" {
		t.Fatalf("expected rate r2, got %q", rate.ID)
	}

	if _, err := FindRateByMethod(quote, "DHL Express"); !errors.Is(err, ErrRateNotFound) {
		t.Fatalf("expected ErrRateNotFound, got %v", err)
	}
}

func TestValidateDestination(t *testing.T) {
	valid := domain.Address{Street1: "12 Mill Rd", City: "Austin", State: "TX", Zip: "78701"}
	if err := ValidateDestination(valid); err != nil {
		t.Fatalf("valid destination rejected: %v", err)
	}

	invalid := domain.Address{City: "Austin"}
	if err := ValidateDestination(invalid); err == nil {
		t.Fatal("expected rejection for missing fields")
	}
}

func TestParseAmountCents(t *testing.T) {
	cases := map[string]int64{
		"8.40":  840,
		"5":     500,
		"25.00": 2500,
		"bogus": 0,
	}
	for input, want := range cases {
		if got := parseAmountCents(input); got != want {
			t.Errorf("parseAmountCents(%q) = %d, want %d", input, got, want)
		}
	}
}
