package crm

import (
	"context"
	"errors"
	"time"
)

// ErrUnknownCustomer is returned for operations against a customer ID that
// does not exist.
var ErrUnknownCustomer = errors.New("unknown customer")

// Customer is a CRM customer record. VisibleToCompanyIDs is the fixed
// distribution list stamped at creation time: the owning company plus any
// explicitly shared companies. Coordinates are filled in asynchronously by
// the geocoding worker, so they are nullable.
type Customer struct {
	ID                  string     `json:"id"`
	Name                string     `json:"name"`
	Email               string     `json:"email"`
	Address             string     `json:"address"`
	Latitude            *float64   `json:"latitude"`
	Longitude           *float64   `json:"longitude"`
	CompanyID           string     `json:"company_id"`
	VisibleToCompanyIDs []string   `json:"visible_to_company_ids"`
	CreatedAt           time.Time  `json:"created_at"`
	UpdatedAt           time.Time  `json:"updated_at"`
	DeletedAt           *time.Time `json:"deleted_at,omitempty"`
}

// CustomerRepository abstracts customer persistence.
type CustomerRepository interface {
	// Create persists a new customer.
	Create(ctx context.Context, customer *Customer) error
	// GetByID returns the customer or (nil, nil) when not found.
	GetByID(ctx context.Context, id string) (*Customer, error)
	// List returns all customers in creation order.
	List(ctx context.Context) ([]*Customer, error)
	// UpdateCoordinates sets the geocoded position. Returns
	// ErrUnknownCustomer when the ID does not exist.
	UpdateCoordinates(ctx context.Context, id string, lat, lng float64) error
}
