package notify

import (
	"context"

	"github.com/Hello-Vince/crm-system/internal/identity"
)

// Service reads notifications on behalf of a principal, filtering by the
// resolved visibility set.
type Service struct {
	store    Store
	resolver *identity.Resolver
}

// NewService creates a notification read service.
func NewService(store Store, resolver *identity.Resolver) *Service {
	return &Service{store: store, resolver: resolver}
}

// ListVisible returns the most recent notifications whose distribution list
// intersects the principal's visibility set. A principal with an empty set
// sees nothing.
func (s *Service) ListVisible(ctx context.Context, p identity.Principal, limit int) ([]*Notification, error) {
	scope := s.resolver.Resolve(p)
	if scope.Empty() {
		return []*Notification{}, nil
	}

	recent, err := s.store.ListRecent(ctx, limit)
	if err != nil {
		return nil, err
	}

	out := make([]*Notification, 0, len(recent))
	for _, n := range recent {
		if scope.IntersectsAny(n.VisibleToCompanyIDs) {
			out = append(out, n)
		}
	}
	return out, nil
}
