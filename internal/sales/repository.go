package sales

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"github.com/aquaflow/portal/internal/inventory"
	"github.com/aquaflow/portal/internal/platform/db"
	"github.com/aquaflow/portal/internal/shared"
	"github.com/aquaflow/portal/internal/workflow"
)

// Writer holds the sale writes that other documents also perform inside their own
// transactions.
type Writer interface {
	InsertSale(ctx context.Context, sale Sale) error
	SaleItems(ctx context.Context, id uuid.UUID) ([]Item, error)
	ReplaceItems(ctx context.Context, id uuid.UUID, items []Item, total decimal.Decimal, at time.Time) error
	// LockSale reads status and request link under a row lock.
	LockSale(ctx context.Context, id uuid.UUID) (Link, error)
	// LinkRequest attaches a deduction request; a sale linked to another request yields
	// ErrConflict. Linking the same request again is a no-op.
	LinkRequest(ctx context.Context, id, requestID uuid.UUID, at time.Time) error
}

// TxRepository exposes transactional operations used by Service.
type TxRepository interface {
	inventory.StockTx
	workflow.Guard
	Writer
}

// Repository persists sales in PostgreSQL.
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
	Writer
}

// WithTx executes fn inside a transaction.
func (r *Repository) WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error {
	return db.WithTx(ctx, r.pool, func(tx pgx.Tx) error {
		return fn(ctx, txRepository{
			StockTx: inventory.NewStockTx(tx),
			Guard:   workflow.NewGuard(tx),
			Writer:  NewWriter(tx),
		})
	})
}

const saleColumns = `id, number, customer_id, request_id, total, status, created_by, approved_by, approved_at, created_at, updated_at`

func scanSale(row pgx.Row) (Sale, error) {
	var s Sale
	var status string
	err := row.Scan(&s.ID, &s.Number, &s.CustomerID, &s.RequestID, &s.Total, &status, &s.CreatedBy,
		&s.ApprovedBy, &s.ApprovedAt, &s.CreatedAt, &s.UpdatedAt)
	s.Status = workflow.Status(status)
	return s, err
}

// GetSale returns a sale with its items.
func (r *Repository) GetSale(ctx context.Context, id uuid.UUID) (Sale, error) {
	sale, err := scanSale(r.pool.QueryRow(ctx, `SELECT `+saleColumns+` FROM sales WHERE id=$1`, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Sale{}, fmt.Errorf("%w: sale %s", shared.ErrNotFound, id)
		}
		return Sale{}, fmt.Errorf("sales: get: %w", err)
	}
	items, err := queryItems(ctx, r.pool, []uuid.UUID{id})
	if err != nil {
		return Sale{}, err
	}
	sale.Items = items[id]
	return sale, nil
}

// ListSales returns sales newest first with their items.
func (r *Repository) ListSales(ctx context.Context, filter ListFilter) ([]Sale, error) {
	var from, to *time.Time
	if !filter.From.IsZero() {
		from = &filter.From
	}
	if !filter.To.IsZero() {
		to = &filter.To
	}
	rows, err := r.pool.Query(ctx, `SELECT `+saleColumns+` FROM sales
WHERE ($1 = '' OR status = $1)
  AND ($2::timestamptz IS NULL OR created_at >= $2)
  AND ($3::timestamptz IS NULL OR created_at <= $3)
ORDER BY created_at DESC, id
LIMIT $4 OFFSET $5`, string(filter.Status), from, to, filter.Limit, filter.Offset)
	if err != nil {
		return nil, fmt.Errorf("sales: list: %w", err)
	}
	defer rows.Close()
	var list []Sale
	var ids []uuid.UUID
	for rows.Next() {
		s, err := scanSale(rows)
		if err != nil {
			return nil, fmt.Errorf("sales: list: %w", err)
		}
		list = append(list, s)
		ids = append(ids, s.ID)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("sales: list: %w", err)
	}
	if len(ids) == 0 {
		return list, nil
	}
	items, err := queryItems(ctx, r.pool, ids)
	if err != nil {
		return nil, err
	}
	for i := range list {
		list[i].Items = items[list[i].ID]
	}
	return list, nil
}

type querier interface {
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
}

func queryItems(ctx context.Context, q querier, ids []uuid.UUID) (map[uuid.UUID][]Item, error) {
	rows, err := q.Query(ctx, `SELECT sale_id, product_id, quantity, unit_price, line_total
FROM sale_items WHERE sale_id = ANY($1) ORDER BY sale_id, line_no`, ids)
	if err != nil {
		return nil, fmt.Errorf("sales: items: %w", err)
	}
	defer rows.Close()
	out := make(map[uuid.UUID][]Item, len(ids))
	for rows.Next() {
		var saleID uuid.UUID
		var it Item
		if err := rows.Scan(&saleID, &it.ProductID, &it.Quantity, &it.UnitPrice, &it.LineTotal); err != nil {
			return nil, fmt.Errorf("sales: items: %w", err)
		}
		out[saleID] = append(out[saleID], it)
	}
	return out, rows.Err()
}
