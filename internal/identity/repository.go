package identity

import (
	"context"
	"sync"
)

// CompanyRepository defines the data access surface for companies.
type CompanyRepository interface {
	// Create persists a new company
	Create(ctx context.Context, company *Company) error
	// GetByID retrieves a company by ID, nil when not found
	GetByID(ctx context.Context, id string) (*Company, error)
	// List retrieves all companies (the forest is small; the index rebuild
	// consumes the full set)
	List(ctx context.Context) ([]*Company, error)
	// SetParent updates a company's parent link
	SetParent(ctx context.Context, id, parentID string) error
}

// MemoryCompanyRepository is an in-memory CompanyRepository for tests.
type MemoryCompanyRepository struct {
	mu        sync.RWMutex
	companies map[string]*Company
	order     []string
}

// NewMemoryCompanyRepository creates an empty in-memory repository.
func NewMemoryCompanyRepository() *MemoryCompanyRepository {
	return &MemoryCompanyRepository{companies: make(map[string]*Company)}
}

func (r *MemoryCompanyRepository) Create(ctx context.Context, company *Company) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	clone := *company
	r.companies[company.ID] = &clone
	r.order = append(r.order, company.ID)
	return nil
}

func (r *MemoryCompanyRepository) GetByID(ctx context.Context, id string) (*Company, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	c, ok := r.companies[id]
	if !ok {
		return nil, nil
	}
	clone := *c
	return &clone, nil
}

func (r *MemoryCompanyRepository) List(ctx context.Context) ([]*Company, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]*Company, 0, len(r.order))
	for _, id := range r.order {
		clone := *r.companies[id]
		out = append(out, &clone)
	}
	return out, nil
}

func (r *MemoryCompanyRepository) SetParent(ctx context.Context, id, parentID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	c, ok := r.companies[id]
	if !ok {
		return ErrUnknownCompany
	}
	c.ParentID = parentID
	return nil
}
