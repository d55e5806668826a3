package sales

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/shopspring/decimal"

	"github.com/aquaflow/portal/internal/shared"
	"github.com/aquaflow/portal/internal/workflow"
)

type writer struct {
	tx pgx.Tx
}

// NewWriter returns the PostgreSQL Writer bound to tx.
func NewWriter(tx pgx.Tx) Writer {
	return writer{tx: tx}
}

func (w writer) InsertSale(ctx context.Context, s Sale) error {
	batch := &pgx.Batch{}
	batch.Queue(`INSERT INTO sales (`+saleColumns+`)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)`,
		s.ID, s.Number, s.CustomerID, s.RequestID, s.Total, string(s.Status), s.CreatedBy,
		s.ApprovedBy, s.ApprovedAt, s.CreatedAt, s.UpdatedAt)
	queueItems(batch, s.ID, s.Items)
	if err := w.tx.SendBatch(ctx, batch).Close(); err != nil {
		if shared.IsUniqueViolation(err) {
			return fmt.Errorf("%w: sale %s (%s)", shared.ErrConflict, s.Number, shared.UniqueConstraint(err))
		}
		if shared.IsRejectedInput(err) {
			return shared.RejectedInput("sales: insert", err)
		}
		return fmt.Errorf("sales: insert: %w", err)
	}
	return nil
}

func (w writer) SaleItems(ctx context.Context, id uuid.UUID) ([]Item, error) {
	items, err := queryItems(ctx, w.tx, []uuid.UUID{id})
	if err != nil {
		return nil, err
	}
	return items[id], nil
}

func (w writer) ReplaceItems(ctx context.Context, id uuid.UUID, items []Item, total decimal.Decimal, at time.Time) error {
	batch := &pgx.Batch{}
	batch.Queue(`DELETE FROM sale_items WHERE sale_id=$1`, id)
	queueItems(batch, id, items)
	batch.Queue(`UPDATE sales SET total=$2, updated_at=$3 WHERE id=$1`, id, total, at)
	if err := w.tx.SendBatch(ctx, batch).Close(); err != nil {
		if shared.IsRejectedInput(err) {
			return shared.RejectedInput("sales: replace items", err)
		}
		return fmt.Errorf("sales: replace items: %w", err)
	}
	return nil
}

func (w writer) LockSale(ctx context.Context, id uuid.UUID) (Link, error) {
	var link Link
	var status string
	err := w.tx.QueryRow(ctx, `SELECT status, request_id FROM sales WHERE id=$1 FOR UPDATE`, id).Scan(&status, &link.RequestID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Link{}, fmt.Errorf("%w: sale %s", shared.ErrNotFound, id)
		}
		return Link{}, fmt.Errorf("sales: lock: %w", err)
	}
	link.Status = workflow.Status(status)
	return link, nil
}

func (w writer) LinkRequest(ctx context.Context, id, requestID uuid.UUID, at time.Time) error {
	tag, err := w.tx.Exec(ctx, `UPDATE sales SET request_id=$2, updated_at=$3 WHERE id=$1 AND (request_id IS NULL OR request_id=$2)`, id, requestID, at)
	if err != nil {
		if shared.IsUniqueViolation(err) {
			return fmt.Errorf("%w: request %s already has a sale", shared.ErrConflict, requestID)
		}
		return fmt.Errorf("sales: link request: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("%w: sale %s is already linked", shared.ErrConflict, id)
	}
	return nil
}

func queueItems(batch *pgx.Batch, saleID uuid.UUID, items []Item) {
	for i, it := range items {
		batch.Queue(`INSERT INTO sale_items (sale_id, line_no, product_id, quantity, unit_price, line_total)
VALUES ($1, $2, $3, $4, $5, $6)`, saleID, i+1, it.ProductID, it.Quantity, it.UnitPrice, it.LineTotal)
	}
}
