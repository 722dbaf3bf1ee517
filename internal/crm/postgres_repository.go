package crm

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// PostgresCustomerRepository implements CustomerRepository using PostgreSQL
type PostgresCustomerRepository struct {
	pool *pgxpool.Pool
}

// NewPostgresCustomerRepository creates a new PostgresCustomerRepository
func NewPostgresCustomerRepository(pool *pgxpool.Pool) *PostgresCustomerRepository {
	return &PostgresCustomerRepository{pool: pool}
}

// Create persists a new customer
func (r *PostgresCustomerRepository) Create(ctx context.Context, customer *Customer) error {
	query := `
		INSERT INTO customers (id, name, email, address, latitude, longitude, company_id, visible_to_company_ids, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
	`
	_, err := r.pool.Exec(ctx, query,
		customer.ID,
		customer.Name,
		customer.Email,
		customer.Address,
		customer.Latitude,
		customer.Longitude,
		customer.CompanyID,
		customer.VisibleToCompanyIDs,
		customer.CreatedAt,
		customer.UpdatedAt,
	)
	return err
}

// GetByID retrieves a customer by ID
func (r *PostgresCustomerRepository) GetByID(ctx context.Context, id string) (*Customer, error) {
	query := `
		SELECT id, name, email, address, latitude, longitude, company_id, visible_to_company_ids, created_at, updated_at, deleted_at
		FROM customers
		WHERE id = $1 AND deleted_at IS NULL
	`
	customer := &Customer{}
	err := r.pool.QueryRow(ctx, query, id).Scan(
		&customer.ID,
		&customer.Name,
		&customer.Email,
		&customer.Address,
		&customer.Latitude,
		&customer.Longitude,
		&customer.CompanyID,
		&customer.VisibleToCompanyIDs,
		&customer.CreatedAt,
		&customer.UpdatedAt,
		&customer.DeletedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return customer, nil
}

// List retrieves all live customers, oldest first
func (r *PostgresCustomerRepository) List(ctx context.Context) ([]*Customer, error) {
	query := `
		SELECT id, name, email, address, latitude, longitude, company_id, visible_to_company_ids, created_at, updated_at, deleted_at
		FROM customers
		WHERE deleted_at IS NULL
		ORDER BY created_at ASC
	`
	rows, err := r.pool.Query(ctx, query)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	customers := make([]*Customer, 0)
	for rows.Next() {
		customer := &Customer{}
		err := rows.Scan(
			&customer.ID,
			&customer.Name,
			&customer.Email,
			&customer.Address,
			&customer.Latitude,
			&customer.Longitude,
			&customer.CompanyID,
			&customer.VisibleToCompanyIDs,
			&customer.CreatedAt,
			&customer.UpdatedAt,
			&customer.DeletedAt,
		)
		if err != nil {
			return nil, err
		}
		customers = append(customers, customer)
	}
	return customers, rows.Err()
}

// UpdateCoordinates sets the geocoded position on an existing customer
func (r *PostgresCustomerRepository) UpdateCoordinates(ctx context.Context, id string, lat, lng float64) error {
	query := `
		UPDATE customers
		SET latitude = $2, longitude = $3, updated_at = $4
		WHERE id = $1 AND deleted_at IS NULL
	`
	result, err := r.pool.Exec(ctx, query, id, lat, lng, time.Now())
	if err != nil {
		return err
	}
	if result.RowsAffected() == 0 {
		return ErrUnknownCustomer
	}
	return nil
}
