package procurement

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
	InsertPurchaseOrder(ctx context.Context, po PurchaseOrder) error
	LoadPurchaseOrder(ctx context.Context, id uuid.UUID) (PurchaseOrder, error)
}

// Repository persists LPOs in PostgreSQL.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs Repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// WithTx executes fn inside a transaction.
func (r *Repository) WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error {
	return db.WithTx(ctx, r.pool, func(tx pgx.Tx) error {
		return fn(ctx, txRepository{StockTx: inventory.NewStockTx(tx), Guard: workflow.NewGuard(tx), tx: tx})
	})
}

const poColumns = `id, number, supplier_name, supplier_phone, supplier_email, target_location, total, note,
status, created_by, approved_by, approved_at, created_at, updated_at`

func scanPurchaseOrder(row pgx.Row) (PurchaseOrder, error) {
	var po PurchaseOrder
	var loc, status string
	err := row.Scan(&po.ID, &po.Number, &po.Supplier.Name, &po.Supplier.Phone, &po.Supplier.Email, &loc,
		&po.Total, &po.Note, &status, &po.CreatedBy, &po.ApprovedBy, &po.ApprovedAt, &po.CreatedAt, &po.UpdatedAt)
	po.TargetLocation = inventory.Location(loc)
	po.Status = workflow.Status(status)
	return po, err
}

type rowQuerier interface {
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

func getPurchaseOrder(ctx context.Context, q rowQuerier, id uuid.UUID) (PurchaseOrder, error) {
	po, err := scanPurchaseOrder(q.QueryRow(ctx, `SELECT `+poColumns+` FROM purchase_orders WHERE id=$1`, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return PurchaseOrder{}, fmt.Errorf("%w: purchase order %s", shared.ErrNotFound, id)
		}
		return PurchaseOrder{}, fmt.Errorf("procurement: get purchase order: %w", err)
	}
	items, err := queryLines(ctx, q, []uuid.UUID{id})
	if err != nil {
		return PurchaseOrder{}, err
	}
	po.Items = items[id]
	return po, nil
}

// GetPurchaseOrder returns an LPO with its lines.
func (r *Repository) GetPurchaseOrder(ctx context.Context, id uuid.UUID) (PurchaseOrder, error) {
	return getPurchaseOrder(ctx, r.pool, id)
}

// ListPurchaseOrders returns LPOs newest first.
func (r *Repository) ListPurchaseOrders(ctx context.Context, filter ListFilter) ([]PurchaseOrder, error) {
	rows, err := r.pool.Query(ctx, `SELECT `+poColumns+` FROM purchase_orders
WHERE ($1 = '' OR status = $1) AND ($2 = '' OR target_location = $2)
ORDER BY created_at DESC, id
LIMIT $3 OFFSET $4`, string(filter.Status), string(filter.Location), filter.Limit, filter.Offset)
	if err != nil {
		return nil, fmt.Errorf("procurement: list purchase orders: %w", err)
	}
	defer rows.Close()
	var list []PurchaseOrder
	var ids []uuid.UUID
	for rows.Next() {
		po, err := scanPurchaseOrder(rows)
		if err != nil {
			return nil, fmt.Errorf("procurement: list purchase orders: %w", err)
		}
		list = append(list, po)
		ids = append(ids, po.ID)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	if len(ids) == 0 {
		return list, nil
	}
	items, err := queryLines(ctx, r.pool, ids)
	if err != nil {
		return nil, err
	}
	for i := range list {
		list[i].Items = items[list[i].ID]
	}
	return list, nil
}

func queryLines(ctx context.Context, q rowQuerier, ids []uuid.UUID) (map[uuid.UUID][]LineItem, error) {
	rows, err := q.Query(ctx, `SELECT purchase_order_id, product_id, quantity, unit_price, line_total
FROM purchase_order_items WHERE purchase_order_id = ANY($1) ORDER BY purchase_order_id, line_no`, ids)
	if err != nil {
		return nil, fmt.Errorf("procurement: lines: %w", err)
	}
	defer rows.Close()
	out := make(map[uuid.UUID][]LineItem, len(ids))
	for rows.Next() {
		var poID uuid.UUID
		var it LineItem
		if err := rows.Scan(&poID, &it.ProductID, &it.Quantity, &it.UnitPrice, &it.LineTotal); err != nil {
			return nil, fmt.Errorf("procurement: lines: %w", err)
		}
		out[poID] = append(out[poID], it)
	}
	return out, rows.Err()
}
