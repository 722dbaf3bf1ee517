package identity

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// PostgresCompanyRepository implements CompanyRepository using PostgreSQL
type PostgresCompanyRepository struct {
	pool *pgxpool.Pool
}

// NewPostgresCompanyRepository creates a new PostgresCompanyRepository
func NewPostgresCompanyRepository(pool *pgxpool.Pool) *PostgresCompanyRepository {
	return &PostgresCompanyRepository{pool: pool}
}

// Create persists a new company
func (r *PostgresCompanyRepository) Create(ctx context.Context, company *Company) error {
	query := `
		INSERT INTO companies (id, name, parent_id, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5)
	`
	_, err := r.pool.Exec(ctx, query,
		company.ID,
		company.Name,
		nullStringOrValue(company.ParentID),
		company.CreatedAt,
		company.UpdatedAt,
	)
	return err
}

// GetByID retrieves a company by ID
func (r *PostgresCompanyRepository) GetByID(ctx context.Context, id string) (*Company, error) {
	query := `
		SELECT id, name, COALESCE(parent_id, '') as parent_id, created_at, updated_at, deleted_at
		FROM companies
		WHERE id = $1 AND deleted_at IS NULL
	`
	company := &Company{}
	err := r.pool.QueryRow(ctx, query, id).Scan(
		&company.ID,
		&company.Name,
		&company.ParentID,
		&company.CreatedAt,
		&company.UpdatedAt,
		&company.DeletedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return company, nil
}

// List retrieves all live companies, oldest first
func (r *PostgresCompanyRepository) List(ctx context.Context) ([]*Company, error) {
	query := `
		SELECT id, name, COALESCE(parent_id, '') as parent_id, created_at, updated_at, deleted_at
		FROM companies
		WHERE deleted_at IS NULL
		ORDER BY created_at ASC
	`
	rows, err := r.pool.Query(ctx, query)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	companies := make([]*Company, 0)
	for rows.Next() {
		company := &Company{}
		err := rows.Scan(
			&company.ID,
			&company.Name,
			&company.ParentID,
			&company.CreatedAt,
			&company.UpdatedAt,
			&company.DeletedAt,
		)
		if err != nil {
			return nil, err
		}
		companies = append(companies, company)
	}
	return companies, rows.Err()
}

// SetParent updates a company's parent link
func (r *PostgresCompanyRepository) SetParent(ctx context.Context, id, parentID string) error {
	query := `
		UPDATE companies
		SET parent_id = $2, updated_at = $3
		WHERE id = $1 AND deleted_at IS NULL
	`
	result, err := r.pool.Exec(ctx, query, id, nullStringOrValue(parentID), time.Now())
	if err != nil {
		return err
	}
	if result.RowsAffected() == 0 {
		return ErrUnknownCompany
	}
	return nil
}

// nullStringOrValue returns nil for empty strings, otherwise returns the value
func nullStringOrValue(s string) interface{} {
	if s == "" {
		return nil
	}
	return s
}
