package crm

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/Hello-Vince/crm-system/internal/identity"
	"github.com/Hello-Vince/crm-system/pkg/event"
	"github.com/Hello-Vince/crm-system/pkg/logger"
)

var (
	ErrCustomerNameRequired = errors.New("customer name is required")
	ErrCompanyRequired      = errors.New("creator has no company")
)

// EventPublisher is the slice of the reliable publisher the service needs.
type EventPublisher interface {
	Publish(ctx context.Context, topic string, env *event.Envelope) error
}

// CustomerService owns customer records. Every customer is stamped at
// creation with a visibility list (the owning company plus any explicitly
// shared companies) and announced on crm.customer.created after the write
// commits. The downstream workers take the distribution list from the event
// payload, so it is always included.
type CustomerService struct {
	repo      CustomerRepository
	resolver  *identity.Resolver
	publisher EventPublisher
	log       *logger.Logger
}

// NewCustomerService creates a customer service.
func NewCustomerService(repo CustomerRepository, resolver *identity.Resolver, publisher EventPublisher, log *logger.Logger) *CustomerService {
	if log == nil {
		log = logger.Get()
	}
	return &CustomerService{
		repo:      repo,
		resolver:  resolver,
		publisher: publisher,
		log:       log,
	}
}

// CreateCustomerRequest carries the customer create input. ShareWith lists
// additional company IDs the customer should be visible to beyond the
// creator's own company.
type CreateCustomerRequest struct {
	Name      string   `json:"name" binding:"required"`
	Email     string   `json:"email"`
	Address   string   `json:"address"`
	ShareWith []string `json:"share_with"`
}

// Create persists the customer and publishes crm.customer.created. The
// creator must belong to a company; the visibility list is the creator's
// company plus any shared companies, deduplicated. A publish failure is
// logged as a consistency gap; the customer itself is already committed.
func (s *CustomerService) Create(ctx context.Context, p identity.Principal, req *CreateCustomerRequest) (*Customer, error) {
	if req.Name == "" {
		return nil, ErrCustomerNameRequired
	}
	if p.CompanyID == "" {
		return nil, ErrCompanyRequired
	}

	now := time.Now().UTC()
	customer := &Customer{
		ID:                  uuid.New().String(),
		Name:                req.Name,
		Email:               req.Email,
		Address:             req.Address,
		CompanyID:           p.CompanyID,
		VisibleToCompanyIDs: visibilityList(p.CompanyID, req.ShareWith),
		CreatedAt:           now,
		UpdatedAt:           now,
	}

	if err := s.repo.Create(ctx, customer); err != nil {
		return nil, err
	}

	env := event.New(event.TopicCustomerCreated, map[string]interface{}{
		"customer_id":            customer.ID,
		"name":                   customer.Name,
		"email":                  customer.Email,
		"address":                customer.Address,
		"visible_to_company_ids": toInterfaceSlice(customer.VisibleToCompanyIDs),
	})
	env.CompanyID = customer.CompanyID
	env.PartitionKey = customer.CompanyID
	if err := s.publisher.Publish(ctx, event.TopicCustomerCreated, env); err != nil {
		s.log.ErrorContext(ctx, "customer created but event publish failed",
			zap.String("customer_id", customer.ID),
			zap.Error(err),
		)
	}

	return customer, nil
}

// UpdateCoordinates writes the geocoded position back and publishes
// crm.customer.updated. Called by the geocoding worker through the internal
// endpoint.
func (s *CustomerService) UpdateCoordinates(ctx context.Context, id string, lat, lng float64) error {
	if err := s.repo.UpdateCoordinates(ctx, id, lat, lng); err != nil {
		return err
	}

	customer, err := s.repo.GetByID(ctx, id)
	if err != nil || customer == nil {
		// The update itself committed; the event just loses its payload
		// enrichment.
		s.log.WarnContext(ctx, "coordinates updated but reload failed",
			zap.String("customer_id", id),
			zap.Error(err),
		)
		customer = &Customer{ID: id}
	}

	env := event.New(event.TopicCustomerUpdated, map[string]interface{}{
		"customer_id":            id,
		"name":                   customer.Name,
		"latitude":               lat,
		"longitude":              lng,
		"visible_to_company_ids": toInterfaceSlice(customer.VisibleToCompanyIDs),
	})
	env.CompanyID = customer.CompanyID
	env.PartitionKey = customer.CompanyID
	if err := s.publisher.Publish(ctx, event.TopicCustomerUpdated, env); err != nil {
		s.log.ErrorContext(ctx, "coordinates updated but event publish failed",
			zap.String("customer_id", id),
			zap.Error(err),
		)
	}
	return nil
}

// Get returns a customer by ID, nil when not found.
func (s *CustomerService) Get(ctx context.Context, id string) (*Customer, error) {
	return s.repo.GetByID(ctx, id)
}

// ListVisible returns the customers whose distribution list intersects the
// principal's visibility scope.
func (s *CustomerService) ListVisible(ctx context.Context, p identity.Principal) ([]*Customer, error) {
	scope := s.resolver.Resolve(p)
	if scope.Empty() {
		return []*Customer{}, nil
	}
	customers, err := s.repo.List(ctx)
	if err != nil {
		return nil, err
	}
	out := make([]*Customer, 0, len(customers))
	for _, c := range customers {
		if scope.IntersectsAny(c.VisibleToCompanyIDs) {
			out = append(out, c)
		}
	}
	return out, nil
}

// Visible reports whether the principal may see the customer.
func (s *CustomerService) Visible(p identity.Principal, customer *Customer) bool {
	return s.resolver.Resolve(p).IntersectsAny(customer.VisibleToCompanyIDs)
}

func visibilityList(ownCompany string, shareWith []string) []string {
	out := []string{ownCompany}
	seen := map[string]struct{}{ownCompany: {}}
	for _, id := range shareWith {
		if id == "" {
			continue
		}
		if _, dup := seen[id]; dup {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	return out
}

func toInterfaceSlice(ids []string) []interface{} {
	out := make([]interface{}, len(ids))
	for i, id := range ids {
		out[i] = id
	}
	return out
}
