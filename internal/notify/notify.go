package notify

import (
	"context"
	"time"
)

// Notification is one fan-out record produced from a domain event.
// VisibleToCompanyIDs is the distribution list: a principal sees the
// notification when their resolved visibility set intersects it.
type Notification struct {
	ID                  string    `json:"id"`
	Title               string    `json:"title"`
	Message             string    `json:"message"`
	EventType           string    `json:"event_type"`
	RelatedEntityID     string    `json:"related_entity_id,omitempty"`
	VisibleToCompanyIDs []string  `json:"visible_to_company_ids"`
	CreatedAt           time.Time `json:"created_at"`
}

// Store persists notifications and lists the most recent ones.
type Store interface {
	Save(ctx context.Context, n *Notification) error
	// ListRecent returns up to limit notifications, newest first. Visibility
	// filtering happens in the service layer against the resolved set.
	ListRecent(ctx context.Context, limit int) ([]*Notification, error)
}
