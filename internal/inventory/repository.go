package inventory

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"github.com/aquaflow/portal/internal/platform/db"
	"github.com/aquaflow/portal/internal/shared"
)

// Repository persists inventory data in PostgreSQL.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs Repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// TxRepository exposes transactional operations used by Service.
type TxRepository interface {
	StockTx
	InsertProduct(ctx context.Context, product Product) error
	UpdateProduct(ctx context.Context, product Product) error
	// SeedStock creates the zero-quantity record at every location.
	SeedStock(ctx context.Context, productID uuid.UUID) error
	// SetStock overwrites the quantity and returns the previous value with the row's new timestamp.
	SetStock(ctx context.Context, productID uuid.UUID, loc Location, qty decimal.Decimal) (decimal.Decimal, time.Time, error)
}

// WithTx executes fn inside a transaction.
func (r *Repository) WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error {
	return db.WithTx(ctx, r.pool, func(tx pgx.Tx) error {
		return fn(ctx, txRepository{stockTx{tx: tx}})
	})
}

const productColumns = `id, sku, name, description, unit, min_stock_level, created_at, updated_at`

func scanProduct(row pgx.Row) (Product, error) {
	var p Product
	err := row.Scan(&p.ID, &p.SKU, &p.Name, &p.Description, &p.Unit, &p.MinStockLevel, &p.CreatedAt, &p.UpdatedAt)
	return p, err
}

// GetProduct fetches one product.
func (r *Repository) GetProduct(ctx context.Context, id uuid.UUID) (Product, error) {
	p, err := scanProduct(r.pool.QueryRow(ctx, `SELECT `+productColumns+` FROM products WHERE id=$1`, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Product{}, fmt.Errorf("%w: product %s", shared.ErrNotFound, id)
		}
		return Product{}, fmt.Errorf("inventory: get product: %w", err)
	}
	return p, nil
}

// ListProducts returns products ordered by name.
func (r *Repository) ListProducts(ctx context.Context, filter ProductFilter) ([]Product, error) {
	rows, err := r.pool.Query(ctx, `SELECT `+productColumns+` FROM products
WHERE ($1 = '' OR name ILIKE '%' || $1 || '%' OR sku ILIKE '%' || $1 || '%')
ORDER BY name LIMIT $2 OFFSET $3`, strings.TrimSpace(filter.Search), filter.Limit, filter.Offset)
	if err != nil {
		return nil, fmt.Errorf("inventory: list products: %w", err)
	}
	defer rows.Close()
	var products []Product
	for rows.Next() {
		p, err := scanProduct(rows)
		if err != nil {
			return nil, err
		}
		products = append(products, p)
	}
	return products, rows.Err()
}

// GetStock reads one stock record.
func (r *Repository) GetStock(ctx context.Context, productID uuid.UUID, loc Location) (StockRecord, error) {
	rec := StockRecord{ProductID: productID, Location: loc}
	err := r.pool.QueryRow(ctx, `SELECT quantity, updated_at FROM stock_records WHERE product_id=$1 AND location=$2`,
		productID, string(loc)).Scan(&rec.Quantity, &rec.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return StockRecord{}, fmt.Errorf("%w: stock record for product %s at %s", shared.ErrNotFound, productID, loc)
		}
		return StockRecord{}, fmt.Errorf("inventory: get stock: %w", err)
	}
	return rec, nil
}

// ListStockLevels returns every product with quantities at both locations.
func (r *Repository) ListStockLevels(ctx context.Context, filter ProductFilter) ([]StockLevel, error) {
	rows, err := r.pool.Query(ctx, `SELECT p.id, p.sku, p.name, p.description, p.unit, p.min_stock_level, p.created_at, p.updated_at,
	COALESCE(SUM(s.quantity) FILTER (WHERE s.location='kamulu'), 0),
	COALESCE(SUM(s.quantity) FILTER (WHERE s.location='utawala'), 0)
FROM products p
LEFT JOIN stock_records s ON s.product_id = p.id
WHERE ($1 = '' OR p.name ILIKE '%' || $1 || '%' OR p.sku ILIKE '%' || $1 || '%')
GROUP BY p.id
ORDER BY p.name LIMIT $2 OFFSET $3`, strings.TrimSpace(filter.Search), filter.Limit, filter.Offset)
	if err != nil {
		return nil, fmt.Errorf("inventory: list stock: %w", err)
	}
	defer rows.Close()
	var levels []StockLevel
	for rows.Next() {
		var lvl StockLevel
		p := &lvl.Product
		if err := rows.Scan(&p.ID, &p.SKU, &p.Name, &p.Description, &p.Unit, &p.MinStockLevel, &p.CreatedAt, &p.UpdatedAt,
			&lvl.Kamulu, &lvl.Utawala); err != nil {
			return nil, err
		}
		levels = append(levels, lvl)
	}
	return levels, rows.Err()
}

// ListMovements returns the transaction log for a product, newest first.
func (r *Repository) ListMovements(ctx context.Context, filter MovementFilter) ([]Movement, error) {
	var from, to *time.Time
	if !filter.From.IsZero() {
		from = &filter.From
	}
	if !filter.To.IsZero() {
		to = &filter.To
	}
	rows, err := r.pool.Query(ctx, `SELECT id, product_id, location, movement_type, quantity_delta, balance_after, ref_kind, ref_id, actor_id, created_at
FROM stock_movements
WHERE product_id=$1
  AND ($2 = '' OR location = $2)
  AND ($3::timestamptz IS NULL OR created_at >= $3)
  AND ($4::timestamptz IS NULL OR created_at <= $4)
ORDER BY created_at DESC, id DESC
LIMIT $5`, filter.ProductID, string(filter.Location), from, to, filter.Limit)
	if err != nil {
		return nil, fmt.Errorf("inventory: list movements: %w", err)
	}
	defer rows.Close()
	var movements []Movement
	for rows.Next() {
		var m Movement
		var loc, kind string
		if err := rows.Scan(&m.ID, &m.ProductID, &loc, &kind, &m.QuantityDelta, &m.BalanceAfter, &m.RefKind, &m.RefID, &m.ActorID, &m.CreatedAt); err != nil {
			return nil, err
		}
		m.Location = Location(loc)
		m.Type = MovementType(kind)
		movements = append(movements, m)
	}
	return movements, rows.Err()
}
