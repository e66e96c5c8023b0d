package leads

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// PostgresRepository stores leads in the relational database.
type PostgresRepository struct {
	pool *pgxpool.Pool
}

// NewPostgresRepository initializes a repo backed by pgxpool.
func NewPostgresRepository(pool *pgxpool.Pool) *PostgresRepository {
	if pool == nil {
		panic("leads: pgx pool required")
	}
	return &PostgresRepository{pool: pool}
}

// UpsertByEmail inserts or refreshes the row keyed by (business, email).
func (r *PostgresRepository) UpsertByEmail(ctx context.Context, req *UpsertLeadRequest) (*Lead, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}

	email := strings.ToLower(strings.TrimSpace(req.Email))
	query := `
		INSERT INTO leads (id, business_id, name, email, phone, source)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (business_id, email) DO UPDATE
		SET name = EXCLUDED.name,
		    phone = CASE WHEN EXCLUDED.phone <> '' THEN EXCLUDED.phone ELSE leads.phone END
		RETURNING id, business_id, name, email, phone, source, created_at
	`
	row := r.pool.QueryRow(ctx, query,
		uuid.New(),
		req.BusinessID,
		req.Name,
		email,
		req.Phone,
		req.Source,
	)
	lead, err := scanLead(row)
	if err != nil {
		return nil, fmt.Errorf("leads: upsert failed: %w", err)
	}
	return lead, nil
}

// GetByID fetches a lead scoped to the business.
func (r *PostgresRepository) GetByID(ctx context.Context, businessID, id string) (*Lead, error) {
	query := `
		SELECT id, business_id, name, email, phone, source, created_at
		FROM leads
		WHERE id = $1 AND business_id = $2
	`
	lead, err := scanLead(r.pool.QueryRow(ctx, query, id, businessID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrLeadNotFound
		}
		return nil, fmt.Errorf("leads: select failed: %w", err)
	}
	return lead, nil
}

// GetByPhone finds the newest lead carrying the phone number.
func (r *PostgresRepository) GetByPhone(ctx context.Context, businessID, phone string) (*Lead, error) {
	phone = strings.TrimSpace(phone)
	if phone == "" {
		return nil, ErrLeadNotFound
	}
	query := `
		SELECT id, business_id, name, email, phone, source, created_at
		FROM leads
		WHERE business_id = $1 AND phone = $2
		ORDER BY created_at DESC
		LIMIT 1
	`
	lead, err := scanLead(r.pool.QueryRow(ctx, query, businessID, phone))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrLeadNotFound
		}
		return nil, fmt.Errorf("leads: select by phone failed: %w", err)
	}
	return lead, nil
}

func (r *PostgresRepository) ListByBusiness(ctx context.Context, businessID string, filter ListLeadsFilter) ([]*Lead, error) {
	limit := filter.Limit
	if limit <= 0 {
		limit = 50
	}
	query := `
		SELECT id, business_id, name, email, phone, source, created_at
		FROM leads
		WHERE business_id = $1
		ORDER BY created_at DESC
		LIMIT $2 OFFSET $3
	`
	rows, err := r.pool.Query(ctx, query, businessID, limit, filter.Offset)
	if err != nil {
		return nil, fmt.Errorf("leads: list failed: %w", err)
	}
	defer rows.Close()

	var out []*Lead
	for rows.Next() {
		lead, err := scanLead(rows)
		if err != nil {
			return nil, fmt.Errorf("leads: scan failed: %w", err)
		}
		out = append(out, lead)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("leads: iterate failed: %w", err)
	}
	return out, nil
}

func scanLead(row pgx.Row) (*Lead, error) {
	var lead Lead
	if err := row.Scan(
		&lead.ID,
		&lead.BusinessID,
		&lead.Name,
		&lead.Email,
		&lead.Phone,
		&lead.Source,
		&lead.CreatedAt,
	); err != nil {
		return nil, err
	}
	return &lead, nil
}
