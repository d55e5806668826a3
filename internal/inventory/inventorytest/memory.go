// Package inventorytest provides an in-memory stock store for service tests.
package inventorytest

import (
	"context"
	"fmt"
	"maps"
	"slices"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/aquaflow/portal/internal/inventory"
	"github.com/aquaflow/portal/internal/shared"
)

type stockKey struct {
	product  uuid.UUID
	location inventory.Location
}

// Store implements inventory.TxRepository in memory. It is not synchronized; wrap it in
// a memtx.Runner.
type Store struct {
	products  map[uuid.UUID]inventory.Product
	stock     map[stockKey]decimal.Decimal
	updated   map[stockKey]time.Time
	movements []inventory.Movement
	nextID    int64

	// Now stamps stock rows on write. Defaults to time.Now.
	Now func() time.Time
}

// NewStore constructs an empty Store.
func NewStore() *Store {
	return &Store{
		products: make(map[uuid.UUID]inventory.Product),
		stock:    make(map[stockKey]decimal.Decimal),
		updated:  make(map[stockKey]time.Time),
		Now:      time.Now,
	}
}

// Snapshot implements memtx.Snapshotter.
func (s *Store) Snapshot() func() {
	products := maps.Clone(s.products)
	stock := maps.Clone(s.stock)
	updated := maps.Clone(s.updated)
	movements := slices.Clone(s.movements)
	nextID := s.nextID
	return func() {
		s.products = products
		s.stock = stock
		s.updated = updated
		s.movements = movements
		s.nextID = nextID
	}
}

// AddProduct registers a product with the given quantities and returns its ID.
func (s *Store) AddProduct(name string, kamulu, utawala float64) uuid.UUID {
	id := uuid.New()
	s.products[id] = inventory.Product{ID: id, SKU: strings.ToUpper(name), Name: name, Unit: "pcs"}
	s.stock[stockKey{id, inventory.LocationKamulu}] = decimal.NewFromFloat(kamulu)
	s.stock[stockKey{id, inventory.LocationUtawala}] = decimal.NewFromFloat(utawala)
	return id
}

// Quantity returns the stored quantity, zero when missing.
func (s *Store) Quantity(productID uuid.UUID, loc inventory.Location) decimal.Decimal {
	return s.stock[stockKey{productID, loc}]
}

// Movements returns a copy of the transaction log.
func (s *Store) Movements() []inventory.Movement {
	return slices.Clone(s.movements)
}

func (s *Store) LockStock(ctx context.Context, productID uuid.UUID, locations ...inventory.Location) error {
	for _, loc := range locations {
		if _, ok := s.stock[stockKey{productID, loc}]; !ok {
			return fmt.Errorf("%w: stock record for product %s", shared.ErrNotFound, productID)
		}
	}
	return nil
}

func (s *Store) DecrementStock(ctx context.Context, productID uuid.UUID, loc inventory.Location, qty decimal.Decimal) (decimal.Decimal, bool, error) {
	key := stockKey{productID, loc}
	current, ok := s.stock[key]
	if !ok || current.LessThan(qty) {
		return decimal.Zero, false, nil
	}
	next := current.Sub(qty)
	s.stock[key] = next
	return next, true, nil
}

func (s *Store) IncrementStock(ctx context.Context, productID uuid.UUID, loc inventory.Location, qty decimal.Decimal) (decimal.Decimal, error) {
	key := stockKey{productID, loc}
	current, ok := s.stock[key]
	if !ok {
		return decimal.Zero, fmt.Errorf("%w: stock record for product %s at %s", shared.ErrNotFound, productID, loc)
	}
	next := current.Add(qty)
	s.stock[key] = next
	return next, nil
}

func (s *Store) StockQuantity(ctx context.Context, productID uuid.UUID, loc inventory.Location) (decimal.Decimal, error) {
	qty, ok := s.stock[stockKey{productID, loc}]
	if !ok {
		return decimal.Zero, fmt.Errorf("%w: stock record for product %s at %s", shared.ErrNotFound, productID, loc)
	}
	return qty, nil
}

func (s *Store) InsertMovements(ctx context.Context, movements []inventory.Movement) error {
	for _, m := range movements {
		s.nextID++
		m.ID = s.nextID
		s.movements = append(s.movements, m)
	}
	return nil
}

func (s *Store) InsertProduct(ctx context.Context, p inventory.Product) error {
	for _, existing := range s.products {
		if existing.SKU == p.SKU {
			return fmt.Errorf("%w: sku %q already exists", shared.ErrConflict, p.SKU)
		}
	}
	s.products[p.ID] = p
	return nil
}

func (s *Store) UpdateProduct(ctx context.Context, p inventory.Product) error {
	if _, ok := s.products[p.ID]; !ok {
		return fmt.Errorf("%w: product %s", shared.ErrNotFound, p.ID)
	}
	s.products[p.ID] = p
	return nil
}

func (s *Store) SeedStock(ctx context.Context, productID uuid.UUID) error {
	for _, loc := range inventory.Locations {
		key := stockKey{productID, loc}
		if _, ok := s.stock[key]; ok {
			return fmt.Errorf("inventorytest: duplicate stock record %s/%s", productID, loc)
		}
		s.stock[key] = decimal.Zero
	}
	return nil
}

func (s *Store) SetStock(ctx context.Context, productID uuid.UUID, loc inventory.Location, qty decimal.Decimal) (decimal.Decimal, time.Time, error) {
	key := stockKey{productID, loc}
	previous, ok := s.stock[key]
	if !ok {
		return decimal.Zero, time.Time{}, fmt.Errorf("%w: stock record for product %s at %s", shared.ErrNotFound, productID, loc)
	}
	s.stock[key] = qty
	s.updated[key] = s.Now().UTC()
	return previous, s.updated[key], nil
}

// GetProduct reads a product.
func (s *Store) GetProduct(ctx context.Context, id uuid.UUID) (inventory.Product, error) {
	p, ok := s.products[id]
	if !ok {
		return inventory.Product{}, fmt.Errorf("%w: product %s", shared.ErrNotFound, id)
	}
	return p, nil
}

// ListProducts returns products sorted by name.
func (s *Store) ListProducts(ctx context.Context, filter inventory.ProductFilter) ([]inventory.Product, error) {
	var out []inventory.Product
	for _, p := range s.products {
		if filter.Search == "" || strings.Contains(strings.ToLower(p.Name), strings.ToLower(filter.Search)) {
			out = append(out, p)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return page(out, filter.Offset, filter.Limit), nil
}

// GetStock reads one stock record.
func (s *Store) GetStock(ctx context.Context, productID uuid.UUID, loc inventory.Location) (inventory.StockRecord, error) {
	qty, err := s.StockQuantity(ctx, productID, loc)
	if err != nil {
		return inventory.StockRecord{}, err
	}
	updatedAt, ok := s.updated[stockKey{productID, loc}]
	if !ok {
		updatedAt = s.Now().UTC()
	}
	return inventory.StockRecord{ProductID: productID, Location: loc, Quantity: qty, UpdatedAt: updatedAt}, nil
}

// ListStockLevels joins products with their quantities.
func (s *Store) ListStockLevels(ctx context.Context, filter inventory.ProductFilter) ([]inventory.StockLevel, error) {
	products, _ := s.ListProducts(ctx, inventory.ProductFilter{Search: filter.Search})
	levels := make([]inventory.StockLevel, 0, len(products))
	for _, p := range products {
		levels = append(levels, inventory.StockLevel{
			Product: p,
			Kamulu:  s.Quantity(p.ID, inventory.LocationKamulu),
			Utawala: s.Quantity(p.ID, inventory.LocationUtawala),
		})
	}
	return page(levels, filter.Offset, filter.Limit), nil
}

// ListMovements filters the log by product and location, newest first.
func (s *Store) ListMovements(ctx context.Context, filter inventory.MovementFilter) ([]inventory.Movement, error) {
	var out []inventory.Movement
	for i := len(s.movements) - 1; i >= 0; i-- {
		m := s.movements[i]
		if m.ProductID != filter.ProductID {
			continue
		}
		if filter.Location != "" && m.Location != filter.Location {
			continue
		}
		out = append(out, m)
	}
	return page(out, 0, filter.Limit), nil
}

func page[T any](items []T, offset, limit int) []T {
	if offset >= len(items) {
		return nil
	}
	items = items[offset:]
	if limit > 0 && limit < len(items) {
		items = items[:limit]
	}
	return items
}
