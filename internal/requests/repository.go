package requests

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/aquaflow/portal/internal/inventory"
	"github.com/aquaflow/portal/internal/platform/db"
	"github.com/aquaflow/portal/internal/sales"
	"github.com/aquaflow/portal/internal/shared"
	"github.com/aquaflow/portal/internal/workflow"
)

// TxRepository exposes transactional operations used by Service.
type TxRepository interface {
	inventory.StockTx
	workflow.Guard
	sales.Writer
	InsertRequest(ctx context.Context, r DeductionRequest) error
	LoadRequest(ctx context.Context, id uuid.UUID) (DeductionRequest, error)
	SetRequestSale(ctx context.Context, id, saleID uuid.UUID, at time.Time) error
}

// Repository persists deduction requests in PostgreSQL.
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
	sales.Writer
	tx pgx.Tx
}

// WithTx executes fn inside a transaction.
func (r *Repository) WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error {
	return db.WithTx(ctx, r.pool, func(tx pgx.Tx) error {
		return fn(ctx, txRepository{
			StockTx: inventory.NewStockTx(tx),
			Guard:   workflow.NewGuard(tx),
			Writer:  sales.NewWriter(tx),
			tx:      tx,
		})
	})
}

const requestColumns = `id, number, customer_id, customer_name, customer_phone, customer_email, note, sale_id,
status, created_by, approved_by, approved_at, created_at, updated_at`

type rowQuerier interface {
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

func scanRequest(row pgx.Row) (DeductionRequest, error) {
	var r DeductionRequest
	var status string
	err := row.Scan(&r.ID, &r.Number, &r.CustomerID, &r.CustomerName, &r.CustomerPhone, &r.CustomerEmail,
		&r.Note, &r.SaleID, &status, &r.CreatedBy, &r.ApprovedBy, &r.ApprovedAt, &r.CreatedAt, &r.UpdatedAt)
	r.Status = workflow.Status(status)
	return r, err
}

func getRequest(ctx context.Context, q rowQuerier, id uuid.UUID) (DeductionRequest, error) {
	r, err := scanRequest(q.QueryRow(ctx, `SELECT `+requestColumns+` FROM deduction_requests WHERE id=$1`, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return DeductionRequest{}, fmt.Errorf("%w: deduction request %s", shared.ErrNotFound, id)
		}
		return DeductionRequest{}, fmt.Errorf("requests: get: %w", err)
	}
	items, err := queryItems(ctx, q, []uuid.UUID{id})
	if err != nil {
		return DeductionRequest{}, err
	}
	r.Items = items[id]
	return r, nil
}

func queryItems(ctx context.Context, q rowQuerier, ids []uuid.UUID) (map[uuid.UUID][]Item, error) {
	rows, err := q.Query(ctx, `SELECT request_id, product_id, quantity FROM deduction_request_items
WHERE request_id = ANY($1) ORDER BY request_id, line_no`, ids)
	if err != nil {
		return nil, fmt.Errorf("requests: items: %w", err)
	}
	defer rows.Close()
	out := make(map[uuid.UUID][]Item, len(ids))
	for rows.Next() {
		var id uuid.UUID
		var it Item
		if err := rows.Scan(&id, &it.ProductID, &it.Quantity); err != nil {
			return nil, fmt.Errorf("requests: items: %w", err)
		}
		out[id] = append(out[id], it)
	}
	return out, rows.Err()
}

func (r txRepository) InsertRequest(ctx context.Context, d DeductionRequest) error {
	batch := &pgx.Batch{}
	batch.Queue(`INSERT INTO deduction_requests (`+requestColumns+`)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)`,
		d.ID, d.Number, d.CustomerID, d.CustomerName, d.CustomerPhone, d.CustomerEmail, d.Note, d.SaleID,
		string(d.Status), d.CreatedBy, d.ApprovedBy, d.ApprovedAt, d.CreatedAt, d.UpdatedAt)
	for i, it := range d.Items {
		batch.Queue(`INSERT INTO deduction_request_items (request_id, line_no, product_id, quantity)
VALUES ($1, $2, $3, $4)`, d.ID, i+1, it.ProductID, it.Quantity)
	}
	if err := r.tx.SendBatch(ctx, batch).Close(); err != nil {
		if shared.IsUniqueViolation(err) {
			return fmt.Errorf("%w: deduction request %s", shared.ErrConflict, d.Number)
		}
		if shared.IsRejectedInput(err) {
			return shared.RejectedInput("requests: insert", err)
		}
		return fmt.Errorf("requests: insert: %w", err)
	}
	return nil
}

func (r txRepository) LoadRequest(ctx context.Context, id uuid.UUID) (DeductionRequest, error) {
	return getRequest(ctx, r.tx, id)
}

func (r txRepository) SetRequestSale(ctx context.Context, id, saleID uuid.UUID, at time.Time) error {
	tag, err := r.tx.Exec(ctx, `UPDATE deduction_requests SET sale_id=$2, updated_at=$3 WHERE id=$1`, id, saleID, at)
	if err != nil {
		return fmt.Errorf("requests: set sale: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("%w: deduction request %s", shared.ErrNotFound, id)
	}
	return nil
}

// GetRequest returns one request with its items.
func (r *Repository) GetRequest(ctx context.Context, id uuid.UUID) (DeductionRequest, error) {
	return getRequest(ctx, r.pool, id)
}

// ListRequests returns requests newest first.
func (r *Repository) ListRequests(ctx context.Context, filter ListFilter) ([]DeductionRequest, error) {
	rows, err := r.pool.Query(ctx, `SELECT `+requestColumns+` FROM deduction_requests
WHERE ($1 = '' OR status = $1)
ORDER BY created_at DESC, id
LIMIT $2 OFFSET $3`, string(filter.Status), filter.Limit, filter.Offset)
	if err != nil {
		return nil, fmt.Errorf("requests: list: %w", err)
	}
	list, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (DeductionRequest, error) {
		return scanRequest(row)
	})
	if err != nil {
		return nil, fmt.Errorf("requests: list: %w", err)
	}
	if len(list) == 0 {
		return list, nil
	}
	ids := make([]uuid.UUID, 0, len(list))
	for _, d := range list {
		ids = append(ids, d.ID)
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
