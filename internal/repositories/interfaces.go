package repositories

import (
	"context"
	"time"

	domain "github.com/lathermill/api/internal/domain"
)

// Registry exposes typed repository accessors and lifecycle hooks for dependency injection.
type Registry interface {
	Close(ctx context.Context) error

	Orders() OrderRepository
	Customers() CustomerRepository
	Health() HealthRepository
}

// RepositoryError wraps low-level persistence failures with categorisation used by services.
type RepositoryError interface {
	error
	IsNotFound() bool
	IsConflict() bool
	IsUnavailable() bool
}

// OrderListFilter restricts order listings.
type OrderListFilter struct {
	Status            string
	FulfillmentStatus string
	Limit             int
}

// OrderRepository persists orders and supports the lookups required by the
// payment event handlers and the cleanup sweep.
type OrderRepository interface {
	Insert(ctx context.Context, order domain.Order) (domain.Order, error)
	Update(ctx context.Context, order domain.Order) (domain.Order, error)

	// MarkPaid transitions the order to paid, applying mutate to the freshly
	// read state in the same transaction. It reports false without writing
	// when the order was already paid, so redelivered payment events cannot
	// transition an order twice.
	MarkPaid(ctx context.Context, orderID string, mutate func(domain.Order) domain.Order) (domain.Order, bool, error)

	FindByID(ctx context.Context, orderID string) (domain.Order, error)
	FindByCheckoutSessionID(ctx context.Context, sessionID string) (domain.Order, error)
	FindByInvoiceID(ctx context.Context, invoiceID string) (domain.Order, error)
	FindUnpaidByEmail(ctx context.Context, email string) ([]domain.Order, error)
	List(ctx context.Context, filter OrderListFilter) ([]domain.Order, error)
	DeleteUnpaidCreatedBefore(ctx context.Context, cutoff time.Time) ([]domain.Order, error)
}

// CustomerRepository persists purchaser records deduplicated by email.
type CustomerRepository interface {
	FindByEmail(ctx context.Context, email string) (domain.Customer, error)
	Insert(ctx context.Context, customer domain.Customer) (domain.Customer, error)
	Update(ctx context.Context, customer domain.Customer) (domain.Customer, error)
}

// HealthRepository verifies connectivity to the backing datastore.
type HealthRepository interface {
	CheckReadiness(ctx context.Context) error
}
