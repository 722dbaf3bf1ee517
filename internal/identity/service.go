package identity

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/Hello-Vince/crm-system/pkg/event"
	"github.com/Hello-Vince/crm-system/pkg/logger"
)

var (
	ErrCompanyNameRequired = errors.New("company name is required")
	ErrParentNotFound      = errors.New("parent company not found")
)

// EventPublisher is the slice of the reliable publisher the service needs.
type EventPublisher interface {
	Publish(ctx context.Context, topic string, env *event.Envelope) error
}

// CompanyService owns the company forest: it validates topology changes
// against the hierarchy index before persisting them, keeps the index in
// sync, and publishes identity.company.created after the write commits.
type CompanyService struct {
	repo      CompanyRepository
	index     *Index
	publisher EventPublisher
	log       *logger.Logger
}

// NewCompanyService creates a company service sharing the given index.
func NewCompanyService(repo CompanyRepository, index *Index, publisher EventPublisher, log *logger.Logger) *CompanyService {
	if log == nil {
		log = logger.Get()
	}
	return &CompanyService{
		repo:      repo,
		index:     index,
		publisher: publisher,
		log:       log,
	}
}

// LoadIndex rebuilds the hierarchy index from the repository. Called on
// startup and after any persisted topology change.
func (s *CompanyService) LoadIndex(ctx context.Context) error {
	companies, err := s.repo.List(ctx)
	if err != nil {
		return err
	}
	s.index.Rebuild(companies)
	return nil
}

// CreateCompanyRequest carries the company create input.
type CreateCompanyRequest struct {
	Name     string `json:"name" binding:"required"`
	ParentID string `json:"parent_id"`
}

// Create validates the optional parent link, persists the company, registers
// it in the index and publishes identity.company.created. A publish failure
// is logged as a consistency gap; the company itself is already committed.
func (s *CompanyService) Create(ctx context.Context, req *CreateCompanyRequest) (*Company, error) {
	if req.Name == "" {
		return nil, ErrCompanyNameRequired
	}
	if req.ParentID != "" && !s.index.Has(req.ParentID) {
		return nil, ErrParentNotFound
	}

	now := time.Now().UTC()
	company := &Company{
		ID:        uuid.New().String(),
		Name:      req.Name,
		ParentID:  req.ParentID,
		CreatedAt: now,
		UpdatedAt: now,
	}

	if err := s.repo.Create(ctx, company); err != nil {
		return nil, err
	}
	if err := s.index.Add(company.ID, company.ParentID); err != nil {
		// A fresh uuid cannot collide or form a cycle; an error here means
		// the index and the store have diverged. Resync from the store.
		if rerr := s.LoadIndex(ctx); rerr != nil {
			return nil, rerr
		}
	}

	env := event.New(event.TopicCompanyCreated, map[string]interface{}{
		"company_id": company.ID,
		"name":       company.Name,
		"parent_id":  company.ParentID,
	})
	env.CompanyID = company.ID
	env.PartitionKey = company.ID
	if err := s.publisher.Publish(ctx, event.TopicCompanyCreated, env); err != nil {
		s.log.ErrorContext(ctx, "company created but event publish failed",
			zap.String("company_id", company.ID),
			zap.Error(err),
		)
	}

	return company, nil
}

// SetParent re-parents a company. The cycle check runs against the index
// first; only an accepted link is persisted.
func (s *CompanyService) SetParent(ctx context.Context, id, parentID string) error {
	if !s.index.Has(id) {
		return ErrUnknownCompany
	}
	if parentID != "" {
		if err := s.index.AttachParent(id, parentID); err != nil {
			return err
		}
	} else if err := s.index.Add(id, ""); err != nil {
		return err
	}

	if err := s.repo.SetParent(ctx, id, parentID); err != nil {
		// Restore the index from the committed state.
		if rerr := s.LoadIndex(ctx); rerr != nil {
			s.log.ErrorContext(ctx, "index resync failed after persist error", zap.Error(rerr))
		}
		return err
	}
	return nil
}

// Get returns a company by ID, nil when not found.
func (s *CompanyService) Get(ctx context.Context, id string) (*Company, error) {
	return s.repo.GetByID(ctx, id)
}

// ListVisible returns the companies within the principal's visibility scope.
func (s *CompanyService) ListVisible(ctx context.Context, resolver *Resolver, p Principal) ([]*Company, error) {
	scope := resolver.Resolve(p)
	if scope.Empty() {
		return []*Company{}, nil
	}
	companies, err := s.repo.List(ctx)
	if err != nil {
		return nil, err
	}
	out := make([]*Company, 0, len(companies))
	for _, c := range companies {
		if scope.Contains(c.ID) {
			out = append(out, c)
		}
	}
	return out, nil
}
