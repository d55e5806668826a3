package customers

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/aquaflow/portal/internal/shared"
)

// DBTX is satisfied by *pgxpool.Pool and pgx.Tx.
type DBTX interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// Repository persists customers in PostgreSQL.
type Repository struct {
	db DBTX
}

// NewRepository constructs Repository over a pool or a transaction.
func NewRepository(db DBTX) *Repository {
	return &Repository{db: db}
}

const customerColumns = `id, name, phone, email, notes, created_at, updated_at`

func scanCustomer(row pgx.Row) (Customer, error) {
	var c Customer
	err := row.Scan(&c.ID, &c.Name, &c.Phone, &c.Email, &c.Notes, &c.CreatedAt, &c.UpdatedAt)
	return c, err
}

func (r *Repository) findOne(ctx context.Context, where string, arg any) (Customer, error) {
	c, err := scanCustomer(r.db.QueryRow(ctx, `SELECT `+customerColumns+` FROM customers WHERE `+where, arg))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Customer{}, shared.ErrNotFound
		}
		return Customer{}, fmt.Errorf("customers: lookup: %w", err)
	}
	return c, nil
}

// FindByPhone returns the customer holding phone.
func (r *Repository) FindByPhone(ctx context.Context, phone string) (Customer, error) {
	return r.findOne(ctx, `phone=$1`, phone)
}

// FindByEmail matches email case-insensitively.
func (r *Repository) FindByEmail(ctx context.Context, email string) (Customer, error) {
	return r.findOne(ctx, `lower(email)=lower($1)`, email)
}

// Get returns a customer by ID.
func (r *Repository) Get(ctx context.Context, id uuid.UUID) (Customer, error) {
	c, err := r.findOne(ctx, `id=$1`, id)
	if errors.Is(err, shared.ErrNotFound) {
		return Customer{}, fmt.Errorf("%w: customer %s", shared.ErrNotFound, id)
	}
	return c, err
}

// Insert stores a new customer. Phone or email collisions return ErrDuplicateCustomer.
func (r *Repository) Insert(ctx context.Context, c Customer) error {
	_, err := r.db.Exec(ctx, `INSERT INTO customers (`+customerColumns+`)
VALUES ($1, $2, $3, $4, $5, $6, $7)`, c.ID, c.Name, c.Phone, c.Email, c.Notes, c.CreatedAt, c.UpdatedAt)
	return translate("insert", err)
}

// UpdateContact rewrites name, phone and email of an existing customer. A phone or
// email held by another row returns ErrDuplicateCustomer.
func (r *Repository) UpdateContact(ctx context.Context, c Customer) error {
	_, err := r.db.Exec(ctx, `UPDATE customers SET name=$2, phone=$3, email=$4, updated_at=$5 WHERE id=$1`,
		c.ID, c.Name, c.Phone, c.Email, c.UpdatedAt)
	return translate("update", err)
}

// List returns customers ordered by name.
func (r *Repository) List(ctx context.Context, filter ListFilter) ([]Customer, error) {
	rows, err := r.db.Query(ctx, `SELECT `+customerColumns+` FROM customers
WHERE ($1 = '' OR name ILIKE '%' || $1 || '%' OR phone ILIKE '%' || $1 || '%' OR email ILIKE '%' || $1 || '%')
ORDER BY name ASC, id ASC
LIMIT $2 OFFSET $3`, filter.Search, filter.Limit, filter.Offset)
	if err != nil {
		return nil, fmt.Errorf("customers: list: %w", err)
	}
	defer rows.Close()
	var out []Customer
	for rows.Next() {
		c, err := scanCustomer(rows)
		if err != nil {
			return nil, fmt.Errorf("customers: list: %w", err)
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

func translate(op string, err error) error {
	if err == nil {
		return nil
	}
	if shared.IsUniqueViolation(err) {
		return fmt.Errorf("%w: %s", shared.ErrDuplicateCustomer, shared.UniqueConstraint(err))
	}
	return fmt.Errorf("customers: %s: %w", op, err)
}
