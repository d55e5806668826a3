package inventory

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/aquaflow/portal/internal/shared"
)

// RepositoryPort abstracts repository usage for Service.
type RepositoryPort interface {
	WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error
	GetProduct(ctx context.Context, id uuid.UUID) (Product, error)
	ListProducts(ctx context.Context, filter ProductFilter) ([]Product, error)
	GetStock(ctx context.Context, productID uuid.UUID, loc Location) (StockRecord, error)
	ListStockLevels(ctx context.Context, filter ProductFilter) ([]StockLevel, error)
	ListMovements(ctx context.Context, filter MovementFilter) ([]Movement, error)
}

// AuditPort abstracts audit logging functionality.
type AuditPort interface {
	Record(ctx context.Context, log shared.AuditLog) error
}

// Service coordinates product and stock operations outside the approval workflow.
type Service struct {
	repo   RepositoryPort
	audit  AuditPort
	logger *slog.Logger
	now    func() time.Time
}

// NewService builds Service.
func NewService(repo RepositoryPort, audit AuditPort, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{repo: repo, audit: audit, logger: logger, now: time.Now}
}

// CreateProduct inserts a product and its zero-quantity stock record at each location.
func (s *Service) CreateProduct(ctx context.Context, actor shared.Actor, input CreateProductInput) (Product, error) {
	if !actor.Role.In(shared.RoleAdmin, shared.RoleClerk) {
		return Product{}, shared.ErrForbidden
	}
	input.SKU = strings.ToUpper(strings.TrimSpace(input.SKU))
	input.Name = strings.TrimSpace(input.Name)
	if input.SKU == "" || input.Name == "" {
		return Product{}, fmt.Errorf("%w: sku and name are required", shared.ErrValidation)
	}
	minLevel, err := exactQuantity(input.MinStockLevel)
	if err != nil {
		return Product{}, err
	}
	if minLevel.IsNegative() {
		return Product{}, fmt.Errorf("%w: min stock level must not be negative", shared.ErrValidation)
	}
	now := s.now().UTC()
	product := Product{
		ID:            uuid.New(),
		SKU:           input.SKU,
		Name:          input.Name,
		Description:   strings.TrimSpace(input.Description),
		Unit:          defaultString(strings.TrimSpace(input.Unit), "pcs"),
		MinStockLevel: minLevel,
		CreatedAt:     now,
		UpdatedAt:     now,
	}
	err = s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		if err := tx.InsertProduct(ctx, product); err != nil {
			return err
		}
		return tx.SeedStock(ctx, product.ID)
	})
	if err != nil {
		return Product{}, err
	}
	s.recordAudit(ctx, actor, "product.create", product.ID.String(), map[string]any{"sku": product.SKU})
	return product, nil
}

// UpdateProduct replaces descriptive fields. SKU and identity are immutable.
func (s *Service) UpdateProduct(ctx context.Context, actor shared.Actor, id uuid.UUID, input UpdateProductInput) (Product, error) {
	if !actor.Role.In(shared.RoleAdmin, shared.RoleClerk) {
		return Product{}, shared.ErrForbidden
	}
	product, err := s.repo.GetProduct(ctx, id)
	if err != nil {
		return Product{}, err
	}
	name := strings.TrimSpace(input.Name)
	if name == "" {
		return Product{}, fmt.Errorf("%w: name is required", shared.ErrValidation)
	}
	minLevel, err := exactQuantity(input.MinStockLevel)
	if err != nil {
		return Product{}, err
	}
	if minLevel.IsNegative() {
		return Product{}, fmt.Errorf("%w: min stock level must not be negative", shared.ErrValidation)
	}
	product.Name = name
	product.Description = strings.TrimSpace(input.Description)
	product.Unit = defaultString(strings.TrimSpace(input.Unit), product.Unit)
	product.MinStockLevel = minLevel
	product.UpdatedAt = s.now().UTC()
	if err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		return tx.UpdateProduct(ctx, product)
	}); err != nil {
		return Product{}, err
	}
	return product, nil
}

// GetProduct returns one product.
func (s *Service) GetProduct(ctx context.Context, id uuid.UUID) (Product, error) {
	return s.repo.GetProduct(ctx, id)
}

// ListProducts returns a page of products.
func (s *Service) ListProducts(ctx context.Context, filter ProductFilter) ([]Product, error) {
	filter.Limit = clampLimit(filter.Limit)
	return s.repo.ListProducts(ctx, filter)
}

// GetStock returns the quantity of a product at loc.
func (s *Service) GetStock(ctx context.Context, productID uuid.UUID, loc Location) (decimal.Decimal, error) {
	if !loc.Valid() {
		return decimal.Zero, fmt.Errorf("%w: unknown location %q", shared.ErrValidation, loc)
	}
	rec, err := s.repo.GetStock(ctx, productID, loc)
	if err != nil {
		return decimal.Zero, err
	}
	return rec.Quantity, nil
}

// AdjustStock overwrites a stock quantity after a physical count. It writes an audit
// entry but no transaction log movement.
func (s *Service) AdjustStock(ctx context.Context, actor shared.Actor, productID uuid.UUID, loc Location, quantity decimal.Decimal) (StockRecord, error) {
	if actor.Anonymous() {
		return StockRecord{}, shared.ErrUnauthorized
	}
	if actor.Role != shared.RoleAdmin {
		return StockRecord{}, shared.ErrForbidden
	}
	if !loc.Valid() {
		return StockRecord{}, fmt.Errorf("%w: unknown location %q", shared.ErrValidation, loc)
	}
	quantity, err := exactQuantity(quantity)
	if err != nil {
		return StockRecord{}, err
	}
	if quantity.IsNegative() {
		return StockRecord{}, fmt.Errorf("%w: quantity must not be negative", shared.ErrValidation)
	}
	var (
		previous  decimal.Decimal
		updatedAt time.Time
	)
	err = s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		var err error
		previous, updatedAt, err = tx.SetStock(ctx, productID, loc, quantity)
		return err
	})
	if err != nil {
		return StockRecord{}, err
	}
	s.recordAudit(ctx, actor, "stock.adjust", productID.String(), map[string]any{
		"location": string(loc),
		"previous": previous.String(),
		"quantity": quantity.String(),
	})
	return StockRecord{ProductID: productID, Location: loc, Quantity: quantity, UpdatedAt: updatedAt}, nil
}

// ListStock returns quantities at both locations per product.
func (s *Service) ListStock(ctx context.Context, filter ProductFilter) ([]StockLevel, error) {
	filter.Limit = clampLimit(filter.Limit)
	return s.repo.ListStockLevels(ctx, filter)
}

// LowStock returns products whose combined quantity is below their reorder threshold.
func (s *Service) LowStock(ctx context.Context) ([]StockLevel, error) {
	var low []StockLevel
	filter := ProductFilter{Limit: maxPageSize}
	for {
		page, err := s.repo.ListStockLevels(ctx, filter)
		if err != nil {
			return nil, err
		}
		for _, lvl := range page {
			if lvl.Low() {
				low = append(low, lvl)
			}
		}
		if len(page) < filter.Limit {
			return low, nil
		}
		filter.Offset += len(page)
	}
}

// ListMovements returns the transaction log of one product.
func (s *Service) ListMovements(ctx context.Context, filter MovementFilter) ([]Movement, error) {
	if filter.ProductID == uuid.Nil {
		return nil, fmt.Errorf("%w: product is required", shared.ErrValidation)
	}
	if filter.Location != "" && !filter.Location.Valid() {
		return nil, fmt.Errorf("%w: unknown location %q", shared.ErrValidation, filter.Location)
	}
	filter.Limit = clampLimit(filter.Limit)
	return s.repo.ListMovements(ctx, filter)
}

func (s *Service) recordAudit(ctx context.Context, actor shared.Actor, action, entityID string, meta map[string]any) {
	if s.audit == nil {
		return
	}
	if err := s.audit.Record(ctx, shared.AuditLog{
		ActorID:  actor.ID,
		Role:     actor.Role,
		Action:   action,
		Entity:   "inventory",
		EntityID: entityID,
		Meta:     meta,
	}); err != nil {
		s.logger.Warn("inventory audit", slog.String("action", action), slog.Any("error", err))
	}
}

const (
	defaultPageSize = 50
	maxPageSize     = 500
)

func clampLimit(limit int) int {
	if limit <= 0 {
		return defaultPageSize
	}
	if limit > maxPageSize {
		return maxPageSize
	}
	return limit
}

func defaultString(value string, fallback string) string {
	if value == "" {
		return fallback
	}
	return value
}
