package audit

import (
	"context"
	"encoding/json"
	"errors"
	"time"
)

// ErrDuplicateEntry is returned by stores when an entry for the same
// (topic, partition, offset) already exists. Redelivered messages hit this
// path; the handler treats it as success.
var ErrDuplicateEntry = errors.New("audit entry already recorded")

// Entry is one immutable audit log row. Topic/Partition/Offset identify the
// source message and make writes idempotent under redelivery.
type Entry struct {
	ID         string          `json:"id"`
	EventType  string          `json:"event_type"`
	Topic      string          `json:"topic"`
	Partition  int32           `json:"partition"`
	Offset     int64           `json:"offset"`
	CompanyID  string          `json:"company_id,omitempty"`
	Payload    json.RawMessage `json:"payload"`
	OccurredAt time.Time       `json:"occurred_at"`
	RecordedAt time.Time       `json:"recorded_at"`
}

// Store persists audit entries. Save must be idempotent on
// (topic, partition, offset): a duplicate returns ErrDuplicateEntry.
type Store interface {
	Save(ctx context.Context, entry *Entry) error
	// ListByCompanies returns entries whose company_id is in the given set,
	// newest first. An empty id list returns nothing; all=true returns
	// everything.
	ListByCompanies(ctx context.Context, all bool, companyIDs []string, limit int) ([]*Entry, error)
}
