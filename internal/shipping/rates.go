package shipping

import (
	"errors"
	"fmt"
	"strings"

	domain "github.com/lathermill/api/internal/domain"
)

// DefaultRateCeilingCents caps the carrier rates offered to customers. Quotes
// above the ceiling are treated as erroneous and dropped.
const DefaultRateCeilingCents int64 = 2500

// Synthetic zero-cost options appended to every quote.
const (
	localPickupRateID  = "local-pickup"
	handDeliveryRateID = "hand-delivery"
)

// ErrRateNotFound indicates no quoted rate matched the stored shipping method.
var ErrRateNotFound = errors.New("shipping: no rate matches shipping method")

// PrepareRates applies the customer-facing rate policy: drop rates above the
// ceiling, deduplicate by provider and service, append the two free-delivery
// options, and tag the lowest strictly-positive rate as best value.
func PrepareRates(rates []domain.Rate, ceilingCents int64) []domain.Rate {
	if ceilingCents <= 0 {
		ceilingCents = DefaultRateCeilingCents
	}

	seen := make(map[string]struct{}, len(rates))
	prepared := make([]domain.Rate, 0, len(rates)+2)
	for _, rate := range rates {
		if rate.Amount > ceilingCents {
			continue
		}
		key := dedupeKey(rate.Provider, rate.Service)
		if _, ok := seen[key]; ok {
			continue
		}
		seen[key] = struct{}{}
		rate.BestValue = false
		prepared = append(prepared, rate)
	}

	bestIdx := -1
	for i, rate := range prepared {
		if rate.Amount <= 0 {
			continue
		}
		if bestIdx < 0 || rate.Amount < prepared[bestIdx].Amount {
			bestIdx = i
		}
	}
	if bestIdx >= 0 {
		prepared[bestIdx].BestValue = true
	}

	prepared = append(prepared,
		domain.Rate{ID: localPickupRateID, Service: domain.ShippingMethodLocalPickup},
		domain.Rate{ID: handDeliveryRateID, Service: domain.ShippingMethodHandDelivery},
	)
	return prepared
}

// FindRateByMethod locates the quoted rate whose "<provider> <service>" label
// matches the stored shipping method.
func FindRateByMethod(quote domain.ShipmentQuote, method string) (domain.Rate, error) {
	want := normalizeMethod(method)
	if want == "" {
		return domain.Rate{}, fmt.Errorf("%w: empty method", ErrRateNotFound)
	}

	for _, rate := range quote.Rates {
		if normalizeMethod(rate.MethodLabel()) == want {
			return rate, nil
		}
	}
	return domain.Rate{}, fmt.Errorf("%w: %q", ErrRateNotFound, method)
}

// ValidateDestination rejects addresses that cannot be quoted.
func ValidateDestination(addr domain.Address) error {
	var missing []string
	if strings.TrimSpace(addr.Street1) == "" {
		missing = append(missing, "street1")
	}
	if strings.TrimSpace(addr.City) == "" {
		missing = append(missing, "city")
	}
	if strings.TrimSpace(addr.State) == "" {
		missing = append(missing, "state")
	}
	if strings.TrimSpace(addr.Zip) == "" {
		missing = append(missing, "zip")
	}
	if len(missing) > 0 {
		return fmt.Errorf("shipping: destination missing %s", strings.Join(missing, ", "))
	}
	return nil
}

func dedupeKey(provider, service string) string {
	return normalizeMethod(provider) + "|" + normalizeMethod(service)
}

// normalizeMethod collapses whitespace so label matching tolerates formatting
// drift between quote time and purchase time.
func normalizeMethod(value string) string {
	return strings.ToLower(strings.Join(strings.Fields(value), " "))
}
