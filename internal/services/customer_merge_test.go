package services

import (
	"testing"

	domain "github.com/lathermill/api/internal/domain"
)

func TestMergeCustomerNeverOverwritesNames(t *testing.T) {
	existing := domain.Customer{ID: "cus_1", Email: "casey@example.test", FirstName: "Casey", LastName: "Doe"}
	incoming := domain.Customer{Email: "casey@example.test", FirstName: "KC", LastName: "D"}

	merged, changed := mergeCustomer(existing, incoming)
	if changed {
		t.Fatal("merge must not report a change when names are already set")
	}
	if merged.FirstName != "Casey" || merged.LastName != "Doe" {
		t.Fatalf("names were overwritten: %+v", merged)
	}
}

func TestMergeCustomerFillsMissingNames(t *testing.T) {
	existing := domain.Customer{ID: "cus_1", Email: "casey@example.test"}
	incoming := domain.Customer{Email: "casey@example.test", FirstName: "Casey", LastName: "Doe"}

	merged, changed := mergeCustomer(existing, incoming)
	if !changed {
		t.Fatal("expected a change when names were missing")
	}
	if merged.FirstName != "Casey" || merged.LastName != "Doe" {
		t.Fatalf("names not filled: %+v", merged)
	}
}

func TestMergeCustomerUpdatesPhone(t *testing.T) {
	existing := domain.Customer{ID: "cus_1", Email: "casey@example.test", Phone: "512-555-0100"}

	merged, changed := mergeCustomer(existing, domain.Customer{Phone: "512-555-0199"})
	if !changed || merged.Phone != "512-555-0199" {
		t.Fatalf("phone not updated: changed=%v %+v", changed, merged)
	}

	merged, changed = mergeCustomer(merged, domain.Customer{Phone: ""})
	if changed {
		t.Fatal("empty phone must not count as a change")
	}
	if merged.Phone != "512-555-0199" {
		t.Fatalf("phone cleared unexpectedly: %+v", merged)
	}
}
