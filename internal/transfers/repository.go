package transfers

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/aquaflow/portal/internal/inventory"
	"github.com/aquaflow/portal/internal/platform/db"
	"github.com/aquaflow/portal/internal/shared"
	"github.com/aquaflow/portal/internal/workflow"
)

// TxRepository exposes transactional operations used by Service.
type TxRepository interface {
	inventory.StockTx
	workflow.Guard
	InsertTransfer(ctx context.Context, t Transfer) error
	LoadTransfer(ctx context.Context, id uuid.UUID) (Transfer, error)
}

// Repository persists transfers in PostgreSQL.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs Repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

type txRepository struct {
	inventory.StockTx
	workflow.Guard
	tx pgx.Tx
}

// WithTx executes fn inside a transaction.
func (r *Repository) WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error {
	return db.WithTx(ctx, r.pool, func(tx pgx.Tx) error {
		return fn(ctx, txRepository{StockTx: inventory.NewStockTx(tx), Guard: workflow.NewGuard(tx), tx: tx})
	})
}

const transferColumns = `id, number, product_id, from_location, to_location, quantity, note, status,
created_by, approved_by, approved_at, created_at, updated_at`

func scanTransfer(row pgx.Row) (Transfer, error) {
	var t Transfer
	var from, to, status string
	err := row.Scan(&t.ID, &t.Number, &t.ProductID, &from, &to, &t.Quantity, &t.Note, &status,
		&t.CreatedBy, &t.ApprovedBy, &t.ApprovedAt, &t.CreatedAt, &t.UpdatedAt)
	t.FromLocation = inventory.Location(from)
	t.ToLocation = inventory.Location(to)
	t.Status = workflow.Status(status)
	return t, err
}

func (r txRepository) InsertTransfer(ctx context.Context, t Transfer) error {
	_, err := r.tx.Exec(ctx, `INSERT INTO transfers (`+transferColumns+`)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)`,
		t.ID, t.Number, t.ProductID, string(t.FromLocation), string(t.ToLocation), t.Quantity, t.Note,
		string(t.Status), t.CreatedBy, t.ApprovedBy, t.ApprovedAt, t.CreatedAt, t.UpdatedAt)
	if err != nil {
		if shared.IsUniqueViolation(err) {
			return fmt.Errorf("%w: transfer %s", shared.ErrConflict, t.Number)
		}
		if shared.IsRejectedInput(err) {
			return shared.RejectedInput("transfers: insert", err)
		}
		return fmt.Errorf("transfers: insert: %w", err)
	}
	return nil
}

func (r txRepository) LoadTransfer(ctx context.Context, id uuid.UUID) (Transfer, error) {
	return getTransfer(ctx, r.tx, id)
}

type rowQuerier interface {
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

func getTransfer(ctx context.Context, q rowQuerier, id uuid.UUID) (Transfer, error) {
	t, err := scanTransfer(q.QueryRow(ctx, `SELECT `+transferColumns+` FROM transfers WHERE id=$1`, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Transfer{}, fmt.Errorf("%w: transfer %s", shared.ErrNotFound, id)
		}
		return Transfer{}, fmt.Errorf("transfers: get: %w", err)
	}
	return t, nil
}

// GetTransfer returns one transfer.
func (r *Repository) GetTransfer(ctx context.Context, id uuid.UUID) (Transfer, error) {
	return getTransfer(ctx, r.pool, id)
}

// ListTransfers returns transfers newest first.
func (r *Repository) ListTransfers(ctx context.Context, filter ListFilter) ([]Transfer, error) {
	var product *uuid.UUID
	if filter.ProductID != uuid.Nil {
		product = &filter.ProductID
	}
	rows, err := r.pool.Query(ctx, `SELECT `+transferColumns+` FROM transfers
WHERE ($1 = '' OR status = $1) AND ($2::uuid IS NULL OR product_id = $2)
ORDER BY created_at DESC, id
LIMIT $3 OFFSET $4`, string(filter.Status), product, filter.Limit, filter.Offset)
	if err != nil {
		return nil, fmt.Errorf("transfers: list: %w", err)
	}
	list, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (Transfer, error) {
		return scanTransfer(row)
	})
	if err != nil {
		return nil, fmt.Errorf("transfers: list: %w", err)
	}
	return list, nil
}
