package crm

import (
	"context"
	"sync"
	"time"
)

// MemoryCustomerRepository is an in-memory CustomerRepository used in tests
// and local development.
type MemoryCustomerRepository struct {
	mu        sync.RWMutex
	customers map[string]*Customer
	order     []string
	failErr   error
}

// NewMemoryCustomerRepository creates an empty in-memory repository.
func NewMemoryCustomerRepository() *MemoryCustomerRepository {
	return &MemoryCustomerRepository{customers: make(map[string]*Customer)}
}

// FailWith makes every subsequent call return err. Pass nil to recover.
func (r *MemoryCustomerRepository) FailWith(err error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.failErr = err
}

func (r *MemoryCustomerRepository) Create(_ context.Context, customer *Customer) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.failErr != nil {
		return r.failErr
	}
	clone := cloneCustomer(customer)
	if _, exists := r.customers[clone.ID]; !exists {
		r.order = append(r.order, clone.ID)
	}
	r.customers[clone.ID] = clone
	return nil
}

func (r *MemoryCustomerRepository) GetByID(_ context.Context, id string) (*Customer, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if r.failErr != nil {
		return nil, r.failErr
	}
	c, ok := r.customers[id]
	if !ok {
		return nil, nil
	}
	return cloneCustomer(c), nil
}

func (r *MemoryCustomerRepository) List(_ context.Context) ([]*Customer, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if r.failErr != nil {
		return nil, r.failErr
	}
	out := make([]*Customer, 0, len(r.order))
	for _, id := range r.order {
		out = append(out, cloneCustomer(r.customers[id]))
	}
	return out, nil
}

func (r *MemoryCustomerRepository) UpdateCoordinates(_ context.Context, id string, lat, lng float64) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.failErr != nil {
		return r.failErr
	}
	c, ok := r.customers[id]
	if !ok {
		return ErrUnknownCustomer
	}
	c.Latitude = &lat
	c.Longitude = &lng
	c.UpdatedAt = time.Now().UTC()
	return nil
}

func cloneCustomer(c *Customer) *Customer {
	clone := *c
	clone.VisibleToCompanyIDs = append([]string(nil), c.VisibleToCompanyIDs...)
	if c.Latitude != nil {
		lat := *c.Latitude
		clone.Latitude = &lat
	}
	if c.Longitude != nil {
		lng := *c.Longitude
		clone.Longitude = &lng
	}
	return &clone
}
