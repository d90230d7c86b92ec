package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	domain "github.com/lathermill/api/internal/domain"
	"github.com/lathermill/api/internal/repositories"
)

const customerIDPrefix = "cus_"

// mergeCustomer folds a new purchase's contact details into an existing
// customer record. Name fields are write-once: whichever order first supplied
// them wins. The phone number follows the latest order when it changes.
func mergeCustomer(existing, incoming domain.Customer) (domain.Customer, bool) {
	changed := false

	if strings.TrimSpace(existing.FirstName) == "" && strings.TrimSpace(incoming.FirstName) != "" {
		existing.FirstName = strings.TrimSpace(incoming.FirstName)
		changed = true
	}
	if strings.TrimSpace(existing.LastName) == "" && strings.TrimSpace(incoming.LastName) != "" {
		existing.LastName = strings.TrimSpace(incoming.LastName)
		changed = true
	}

	phone := strings.TrimSpace(incoming.Phone)
	if phone != "" && phone != existing.Phone {
		existing.Phone = phone
		changed = true
	}

	return existing, changed
}

// upsertCustomer deduplicates purchasers by email: it creates the record on
// first purchase and merges contact details on repeat purchases.
func upsertCustomer(ctx context.Context, customers repositories.CustomerRepository, clock func() time.Time, newID func() string, incoming domain.Customer) (domain.Customer, error) {
	email := strings.ToLower(strings.TrimSpace(incoming.Email))
	if email == "" {
		return domain.Customer{}, errors.New("customer email is required")
	}
	incoming.Email = email

	existing, err := customers.FindByEmail(ctx, email)
	if err != nil {
		var repoErr repositories.RepositoryError
		if !errors.As(err, &repoErr) || !repoErr.IsNotFound() {
			return domain.Customer{}, fmt.Errorf("find customer: %w", err)
		}

		now := clock()
		incoming.ID = customerIDPrefix + newID()
		incoming.FirstName = strings.TrimSpace(incoming.FirstName)
		incoming.LastName = strings.TrimSpace(incoming.LastName)
		incoming.Phone = strings.TrimSpace(incoming.Phone)
		incoming.CreatedAt = now
		incoming.UpdatedAt = now
		return customers.Insert(ctx, incoming)
	}

	merged, changed := mergeCustomer(existing, incoming)
	if !changed {
		return existing, nil
	}
	merged.UpdatedAt = clock()
	return customers.Update(ctx, merged)
}
