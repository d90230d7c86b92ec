package firestore

import (
	"context"
	"errors"

	pfirestore "github.com/lathermill/api/internal/platform/firestore"
	"github.com/lathermill/api/internal/repositories"
)

// Registry bundles the Firestore-backed repositories behind the repositories.Registry interface.
type Registry struct {
	provider  *pfirestore.Provider
	orders    *OrderRepository
	customers *CustomerRepository
	health    repositories.HealthRepository
}

var _ repositories.Registry = (*Registry)(nil)

// NewRegistry constructs all repositories against the shared provider.
func NewRegistry(provider *pfirestore.Provider) (*Registry, error) {
	if provider == nil {
		return nil, errors.New("registry requires firestore provider")
	}

	orders, err := NewOrderRepository(provider)
	if err != nil {
		return nil, err
	}
	customers, err := NewCustomerRepository(provider)
	if err != nil {
		return nil, err
	}

	return &Registry{
		provider:  provider,
		orders:    orders,
		customers: customers,
		health:    &healthRepository{provider: provider},
	}, nil
}

// Close releases the underlying Firestore client.
func (r *Registry) Close(ctx context.Context) error {
	return r.provider.Close(ctx)
}

// Orders returns the order repository.
func (r *Registry) Orders() repositories.OrderRepository {
	return r.orders
}

// Customers returns the customer repository.
func (r *Registry) Customers() repositories.CustomerRepository {
	return r.customers
}

// Health returns the readiness probe repository.
func (r *Registry) Health() repositories.HealthRepository {
	return r.health
}

type healthRepository struct {
	provider *pfirestore.Provider
}

// CheckReadiness verifies the Firestore client can execute a query.
func (h *healthRepository) CheckReadiness(ctx context.Context) error {
	client, err := h.provider.Client(ctx)
	if err != nil {
		return err
	}
	if _, err := client.Collection(orderCollection).Limit(1).Documents(ctx).GetAll(); err != nil {
		return pfirestore.WrapError("health.readiness", err)
	}
	return nil
}
