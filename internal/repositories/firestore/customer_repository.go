package firestore

import (
	"context"
	"errors"
	"strings"
	"time"

	"cloud.google.com/go/firestore"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	domain "github.com/lathermill/api/internal/domain"
	pfirestore "github.com/lathermill/api/internal/platform/firestore"
	"github.com/lathermill/api/internal/repositories"
)

const customerCollection = "customers"

// CustomerRepository persists purchaser records in Firestore.
type CustomerRepository struct {
	base *pfirestore.BaseRepository[customerDocument]
}

var _ repositories.CustomerRepository = (*CustomerRepository)(nil)

// NewCustomerRepository constructs a Firestore-backed customer repository.
func NewCustomerRepository(provider *pfirestore.Provider) (*CustomerRepository, error) {
	if provider == nil {
		return nil, errors.New("customer repository requires firestore provider")
	}

	base := pfirestore.NewBaseRepository[customerDocument](provider, customerCollection)
	return &CustomerRepository{base: base}, nil
}

// FindByEmail loads the customer deduplicated under the given email.
func (r *CustomerRepository) FindByEmail(ctx context.Context, email string) (domain.Customer, error) {
	email = strings.ToLower(strings.TrimSpace(email))
	if email == "" {
		return domain.Customer{}, errors.New("email is required")
	}

	docs, err := r.base.Query(ctx, func(q firestore.Query) firestore.Query {
		return q.Where("email", "==", email).Limit(1)
	})
	if err != nil {
		return domain.Customer{}, err
	}
	if len(docs) == 0 {
		return domain.Customer{}, pfirestore.WrapError("customers.find_by_email", status.Error(codes.NotFound, "customer not found"))
	}
	return toDomainCustomer(docs[0].ID, docs[0].Data), nil
}

// Insert stores a new customer record under its generated ID.
func (r *CustomerRepository) Insert(ctx context.Context, customer domain.Customer) (domain.Customer, error) {
	return r.save(ctx, customer)
}

// Update overwrites the stored customer record.
func (r *CustomerRepository) Update(ctx context.Context, customer domain.Customer) (domain.Customer, error) {
	return r.save(ctx, customer)
}

func (r *CustomerRepository) save(ctx context.Context, customer domain.Customer) (domain.Customer, error) {
	if strings.TrimSpace(customer.ID) == "" {
		return domain.Customer{}, errors.New("customer id is required")
	}
	if strings.TrimSpace(customer.Email) == "" {
		return domain.Customer{}, errors.New("customer email is required")
	}

	doc := fromDomainCustomer(customer)
	if _, err := r.base.Set(ctx, customer.ID, doc); err != nil {
		return domain.Customer{}, err
	}
	return toDomainCustomer(customer.ID, doc), nil
}

type customerDocument struct {
	Email     string    `firestore:"email"`
	FirstName string    `firestore:"first_name"`
	LastName  string    `firestore:"last_name"`
	Phone     string    `firestore:"phone"`
	CreatedAt time.Time `firestore:"created_at"`
	UpdatedAt time.Time `firestore:"updated_at"`
}

func fromDomainCustomer(customer domain.Customer) customerDocument {
	return customerDocument{
		Email:     strings.ToLower(strings.TrimSpace(customer.Email)),
		FirstName: strings.TrimSpace(customer.FirstName),
		LastName:  strings.TrimSpace(customer.LastName),
		Phone:     strings.TrimSpace(customer.Phone),
		CreatedAt: customer.CreatedAt.UTC(),
		UpdatedAt: customer.UpdatedAt.UTC(),
	}
}

func toDomainCustomer(id string, doc customerDocument) domain.Customer {
	return domain.Customer{
		ID:        id,
		Email:     doc.Email,
		FirstName: doc.FirstName,
		LastName:  doc.LastName,
		Phone:     doc.Phone,
		CreatedAt: doc.CreatedAt,
		UpdatedAt: doc.UpdatedAt,
	}
}
