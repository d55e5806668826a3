package procurement

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/aquaflow/portal/internal/inventory"
	"github.com/aquaflow/portal/internal/shared"
	"github.com/aquaflow/portal/internal/workflow"
)

type txRepository struct {
	inventory.StockTx
	workflow.Guard
	tx pgx.Tx
}

func (r txRepository) InsertPurchaseOrder(ctx context.Context, po PurchaseOrder) error {
	batch := &pgx.Batch{}
	batch.Queue(`INSERT INTO purchase_orders (`+poColumns+`)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)`,
		po.ID, po.Number, po.Supplier.Name, po.Supplier.Phone, po.Supplier.Email, string(po.TargetLocation),
		po.Total, po.Note, string(po.Status), po.CreatedBy, po.ApprovedBy, po.ApprovedAt, po.CreatedAt, po.UpdatedAt)
	for i, it := range po.Items {
		batch.Queue(`INSERT INTO purchase_order_items (purchase_order_id, line_no, product_id, quantity, unit_price, line_total)
VALUES ($1, $2, $3, $4, $5, $6)`, po.ID, i+1, it.ProductID, it.Quantity, it.UnitPrice, it.LineTotal)
	}
	if err := r.tx.SendBatch(ctx, batch).Close(); err != nil {
		if shared.IsUniqueViolation(err) {
			return fmt.Errorf("%w: purchase order %s", shared.ErrConflict, po.Number)
		}
		if shared.IsRejectedInput(err) {
			return shared.RejectedInput("procurement: insert purchase order", err)
		}
		return fmt.Errorf("procurement: insert purchase order: %w", err)
	}
	return nil
}

func (r txRepository) LoadPurchaseOrder(ctx context.Context, id uuid.UUID) (PurchaseOrder, error) {
	return getPurchaseOrder(ctx, r.tx, id)
}
