package inventory

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/shopspring/decimal"

	"github.com/aquaflow/portal/internal/shared"
)

type stockTx struct {
	tx pgx.Tx
}

// NewStockTx returns the PostgreSQL StockTx bound to tx, for repositories of other
// documents that mutate stock inside their own transactions.
func NewStockTx(tx pgx.Tx) StockTx {
	return stockTx{tx: tx}
}

func (s stockTx) LockStock(ctx context.Context, productID uuid.UUID, locations ...Location) error {
	names := make([]string, 0, len(locations))
	for _, loc := range locations {
		names = append(names, string(loc))
	}
	rows, err := s.tx.Query(ctx, `SELECT location FROM stock_records
WHERE product_id=$1 AND location = ANY($2) ORDER BY location FOR UPDATE`, productID, names)
	if err != nil {
		return fmt.Errorf("inventory: lock stock: %w", err)
	}
	defer rows.Close()
	found := 0
	for rows.Next() {
		found++
	}
	if err := rows.Err(); err != nil {
		return fmt.Errorf("inventory: lock stock: %w", err)
	}
	if found != len(names) {
		return fmt.Errorf("%w: stock record for product %s", shared.ErrNotFound, productID)
	}
	return nil
}

func (s stockTx) DecrementStock(ctx context.Context, productID uuid.UUID, loc Location, qty decimal.Decimal) (decimal.Decimal, bool, error) {
	var balance decimal.Decimal
	err := s.tx.QueryRow(ctx, `UPDATE stock_records
SET quantity = quantity - $3, updated_at = NOW()
WHERE product_id=$1 AND location=$2 AND quantity >= $3
RETURNING quantity`, productID, string(loc), qty).Scan(&balance)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return decimal.Zero, false, nil
		}
		return decimal.Zero, false, fmt.Errorf("inventory: decrement stock: %w", err)
	}
	return balance, true, nil
}

func (s stockTx) IncrementStock(ctx context.Context, productID uuid.UUID, loc Location, qty decimal.Decimal) (decimal.Decimal, error) {
	var balance decimal.Decimal
	err := s.tx.QueryRow(ctx, `UPDATE stock_records
SET quantity = quantity + $3, updated_at = NOW()
WHERE product_id=$1 AND location=$2
RETURNING quantity`, productID, string(loc), qty).Scan(&balance)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return decimal.Zero, fmt.Errorf("%w: stock record for product %s at %s", shared.ErrNotFound, productID, loc)
		}
		return decimal.Zero, fmt.Errorf("inventory: increment stock: %w", err)
	}
	return balance, nil
}

func (s stockTx) StockQuantity(ctx context.Context, productID uuid.UUID, loc Location) (decimal.Decimal, error) {
	var qty decimal.Decimal
	err := s.tx.QueryRow(ctx, `SELECT quantity FROM stock_records WHERE product_id=$1 AND location=$2`, productID, string(loc)).Scan(&qty)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return decimal.Zero, fmt.Errorf("%w: stock record for product %s at %s", shared.ErrNotFound, productID, loc)
		}
		return decimal.Zero, fmt.Errorf("inventory: stock quantity: %w", err)
	}
	return qty, nil
}

func (s stockTx) InsertMovements(ctx context.Context, movements []Movement) error {
	if len(movements) == 0 {
		return nil
	}
	batch := &pgx.Batch{}
	for _, m := range movements {
		batch.Queue(`INSERT INTO stock_movements
(product_id, location, movement_type, quantity_delta, balance_after, ref_kind, ref_id, actor_id, created_at)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`,
			m.ProductID, string(m.Location), string(m.Type), m.QuantityDelta, m.BalanceAfter, m.RefKind, m.RefID, m.ActorID, m.CreatedAt)
	}
	if err := s.tx.SendBatch(ctx, batch).Close(); err != nil {
		return fmt.Errorf("inventory: insert movements: %w", err)
	}
	return nil
}

type txRepository struct {
	stockTx
}

func (r txRepository) InsertProduct(ctx context.Context, p Product) error {
	_, err := r.tx.Exec(ctx, `INSERT INTO products (id, sku, name, description, unit, min_stock_level, created_at, updated_at)
VALUES ($1, $2, $3, $4, $5, $6, $7, $7)`, p.ID, p.SKU, p.Name, p.Description, p.Unit, p.MinStockLevel, p.CreatedAt)
	if err != nil {
		if shared.IsUniqueViolation(err) {
			return fmt.Errorf("%w: sku %q already exists", shared.ErrConflict, p.SKU)
		}
		if shared.IsRejectedInput(err) {
			return shared.RejectedInput("inventory: insert product", err)
		}
		return fmt.Errorf("inventory: insert product: %w", err)
	}
	return nil
}

func (r txRepository) UpdateProduct(ctx context.Context, p Product) error {
	tag, err := r.tx.Exec(ctx, `UPDATE products SET name=$2, description=$3, unit=$4, min_stock_level=$5, updated_at=$6
WHERE id=$1`, p.ID, p.Name, p.Description, p.Unit, p.MinStockLevel, p.UpdatedAt)
	if err != nil {
		if shared.IsRejectedInput(err) {
			return shared.RejectedInput("inventory: update product", err)
		}
		return fmt.Errorf("inventory: update product: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("%w: product %s", shared.ErrNotFound, p.ID)
	}
	return nil
}

func (r txRepository) SeedStock(ctx context.Context, productID uuid.UUID) error {
	for _, loc := range Locations {
		if _, err := r.tx.Exec(ctx, `INSERT INTO stock_records (product_id, location, quantity) VALUES ($1, $2, 0)`, productID, string(loc)); err != nil {
			return fmt.Errorf("inventory: seed stock: %w", err)
		}
	}
	return nil
}

func (r txRepository) SetStock(ctx context.Context, productID uuid.UUID, loc Location, qty decimal.Decimal) (decimal.Decimal, time.Time, error) {
	var (
		previous  decimal.Decimal
		updatedAt time.Time
	)
	err := r.tx.QueryRow(ctx, `UPDATE stock_records s SET quantity=$3, updated_at=NOW()
FROM (SELECT quantity FROM stock_records WHERE product_id=$1 AND location=$2 FOR UPDATE) old
WHERE s.product_id=$1 AND s.location=$2
RETURNING old.quantity, s.updated_at`, productID, string(loc), qty).Scan(&previous, &updatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return decimal.Zero, time.Time{}, fmt.Errorf("%w: stock record for product %s at %s", shared.ErrNotFound, productID, loc)
		}
		if shared.IsRejectedInput(err) {
			return decimal.Zero, time.Time{}, shared.RejectedInput("inventory: set stock", err)
		}
		return decimal.Zero, time.Time{}, fmt.Errorf("inventory: set stock: %w", err)
	}
	return previous, updatedAt.UTC(), nil
}
