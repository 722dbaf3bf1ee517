package audit

import (
	"context"

	"github.com/jackc/pgx/v5/pgxpool"
)

// PostgresStore implements Store using PostgreSQL. The audit_entries table
// carries a unique constraint on (topic, partition, source_offset), which is
// what makes Save idempotent.
type PostgresStore struct {
	pool *pgxpool.Pool
}

// NewPostgresStore creates a new PostgresStore
func NewPostgresStore(pool *pgxpool.Pool) *PostgresStore {
	return &PostgresStore{pool: pool}
}

// Save inserts the entry. A redelivered message hits the unique constraint
// and reports ErrDuplicateEntry.
func (s *PostgresStore) Save(ctx context.Context, entry *Entry) error {
	query := `
		INSERT INTO audit_entries
			(id, event_type, topic, partition, source_offset, company_id, payload, occurred_at, recorded_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		ON CONFLICT (topic, partition, source_offset) DO NOTHING
	`
	result, err := s.pool.Exec(ctx, query,
		entry.ID,
		entry.EventType,
		entry.Topic,
		entry.Partition,
		entry.Offset,
		nullStringOrValue(entry.CompanyID),
		entry.Payload,
		entry.OccurredAt,
		entry.RecordedAt,
	)
	if err != nil {
		return err
	}
	if result.RowsAffected() == 0 {
		return ErrDuplicateEntry
	}
	return nil
}

// ListByCompanies returns entries visible to the given company set, newest
// first.
func (s *PostgresStore) ListByCompanies(ctx context.Context, all bool, companyIDs []string, limit int) ([]*Entry, error) {
	if limit <= 0 {
		limit = 100
	}

	query := `
		SELECT id, event_type, topic, partition, source_offset,
		       COALESCE(company_id, '') as company_id, payload, occurred_at, recorded_at
		FROM audit_entries
		WHERE $1 OR company_id = ANY($2)
		ORDER BY recorded_at DESC
		LIMIT $3
	`
	rows, err := s.pool.Query(ctx, query, all, companyIDs, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	entries := make([]*Entry, 0)
	for rows.Next() {
		entry := &Entry{}
		err := rows.Scan(
			&entry.ID,
			&entry.EventType,
			&entry.Topic,
			&entry.Partition,
			&entry.Offset,
			&entry.CompanyID,
			&entry.Payload,
			&entry.OccurredAt,
			&entry.RecordedAt,
		)
		if err != nil {
			return nil, err
		}
		entries = append(entries, entry)
	}
	return entries, rows.Err()
}

func nullStringOrValue(s string) interface{} {
	if s == "" {
		return nil
	}
	return s
}
