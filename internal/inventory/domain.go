package inventory

import (
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/aquaflow/portal/internal/shared"
)

// Location is one of the two warehouses that hold stock.
type Location string

const (
	LocationKamulu  Location = "kamulu"
	LocationUtawala Location = "utawala"
)

// SalesLocation is where sales and deduction requests draw stock from.
const SalesLocation = LocationUtawala

// Locations lists every location in lock order.
var Locations = []Location{LocationKamulu, LocationUtawala}

// Valid reports whether l is a known location.
func (l Location) Valid() bool {
	return l == LocationKamulu || l == LocationUtawala
}

// ParseLocation normalises and validates a location name.
func ParseLocation(raw string) (Location, error) {
	loc := Location(strings.ToLower(strings.TrimSpace(raw)))
	if !loc.Valid() {
		return "", fmt.Errorf("%w: unknown location %q", shared.ErrValidation, raw)
	}
	return loc, nil
}

const (
	// QuantityPlaces is the precision stored for quantities.
	QuantityPlaces = 3
	// MoneyPlaces is the currency minor unit precision.
	MoneyPlaces = 2
)

var (
	// ErrInvalidQuantity indicates a zero or negative quantity.
	ErrInvalidQuantity = fmt.Errorf("%w: quantity must be positive", shared.ErrValidation)
	// ErrQuantityPrecision indicates a quantity with more than QuantityPlaces decimals.
	ErrQuantityPrecision = fmt.Errorf("%w: quantity allows at most %d decimal places", shared.ErrValidation, QuantityPlaces)
	// ErrInvalidPrice indicates a negative unit price.
	ErrInvalidPrice = fmt.Errorf("%w: unit price must not be negative", shared.ErrValidation)
)

// NormalizeQuantity requires q to be positive with at most QuantityPlaces decimals.
func NormalizeQuantity(q decimal.Decimal) (decimal.Decimal, error) {
	if !q.IsPositive() {
		return decimal.Zero, ErrInvalidQuantity
	}
	return exactQuantity(q)
}

// exactQuantity rejects rather than rounds extra decimals, so a stored quantity is
// always the one the user typed.
func exactQuantity(q decimal.Decimal) (decimal.Decimal, error) {
	if !q.Equal(q.Truncate(QuantityPlaces)) {
		return decimal.Zero, ErrQuantityPrecision
	}
	return q.Truncate(QuantityPlaces), nil
}

// NormalizePrice rounds p to MoneyPlaces and requires it to be non-negative.
func NormalizePrice(p decimal.Decimal) (decimal.Decimal, error) {
	p = p.Round(MoneyPlaces)
	if p.IsNegative() {
		return decimal.Zero, ErrInvalidPrice
	}
	return p, nil
}

// LineTotal returns quantity*price at currency precision.
func LineTotal(quantity, unitPrice decimal.Decimal) decimal.Decimal {
	return quantity.Mul(unitPrice).Round(MoneyPlaces)
}

// Product is a stocked item. Identity and SKU never change.
type Product struct {
	ID            uuid.UUID       `json:"id"`
	SKU           string          `json:"sku"`
	Name          string          `json:"name"`
	Description   string          `json:"description"`
	Unit          string          `json:"unit"`
	MinStockLevel decimal.Decimal `json:"min_stock_level"`
	CreatedAt     time.Time       `json:"created_at"`
	UpdatedAt     time.Time       `json:"updated_at"`
}

// StockRecord is the quantity of one product at one location.
type StockRecord struct {
	ProductID uuid.UUID       `json:"product_id"`
	Location  Location        `json:"location"`
	Quantity  decimal.Decimal `json:"quantity"`
	UpdatedAt time.Time       `json:"updated_at"`
}

// StockLevel joins a product with its quantity at both locations.
type StockLevel struct {
	Product Product         `json:"product"`
	Kamulu  decimal.Decimal `json:"kamulu"`
	Utawala decimal.Decimal `json:"utawala"`
}

// Total returns the quantity across both locations.
func (s StockLevel) Total() decimal.Decimal {
	return s.Kamulu.Add(s.Utawala)
}

// Low reports whether the combined quantity is below the reorder threshold.
func (s StockLevel) Low() bool {
	return s.Total().LessThan(s.Product.MinStockLevel)
}

// MovementType classifies transaction log entries.
type MovementType string

const (
	MovementSale      MovementType = "sale"
	MovementPurchase  MovementType = "purchase"
	MovementTransfer  MovementType = "transfer"
	MovementDeduction MovementType = "deduction"
)

// Reference ties a movement to the document and actor that caused it.
type Reference struct {
	Kind    string
	ID      uuid.UUID
	ActorID uuid.UUID
}

// Line is a product quantity to move.
type Line struct {
	ProductID uuid.UUID
	Quantity  decimal.Decimal
}

// Movement is an append-only transaction log entry.
type Movement struct {
	ID            int64           `json:"id"`
	ProductID     uuid.UUID       `json:"product_id"`
	Location      Location        `json:"location"`
	Type          MovementType    `json:"type"`
	QuantityDelta decimal.Decimal `json:"quantity_delta"`
	BalanceAfter  decimal.Decimal `json:"balance_after"`
	RefKind       string          `json:"ref_kind"`
	RefID         uuid.UUID       `json:"ref_id"`
	ActorID       uuid.UUID       `json:"actor_id"`
	CreatedAt     time.Time       `json:"created_at"`
}

// MovementFilter narrows the transaction log.
type MovementFilter struct {
	ProductID uuid.UUID
	Location  Location
	From      time.Time
	To        time.Time
	Limit     int
}

// ShortageError reports a failed stock check. It matches shared.ErrInsufficientStock.
type ShortageError struct {
	ProductID uuid.UUID
	Location  Location
	Requested decimal.Decimal
	Available decimal.Decimal
}

func (e *ShortageError) Error() string {
	return fmt.Sprintf("insufficient stock for product %s at %s: requested %s, available %s, short by %s",
		e.ProductID, e.Location, e.Requested.String(), e.Available.String(), e.Shortfall().String())
}

// Is makes errors.Is(err, shared.ErrInsufficientStock) hold.
func (e *ShortageError) Is(target error) bool {
	return target == shared.ErrInsufficientStock
}

// Shortfall is the quantity missing to satisfy the request.
func (e *ShortageError) Shortfall() decimal.Decimal {
	return e.Requested.Sub(e.Available)
}

// ShortageFields exposes the shortfall to problem responses.
func (e *ShortageError) ShortageFields() map[string]string {
	return map[string]string{
		"product_id": e.ProductID.String(),
		"location":   string(e.Location),
		"requested":  e.Requested.String(),
		"available":  e.Available.String(),
		"shortfall":  e.Shortfall().String(),
	}
}

// CreateProductInput describes a new product.
type CreateProductInput struct {
	SKU           string
	Name          string
	Description   string
	Unit          string
	MinStockLevel decimal.Decimal
}

// UpdateProductInput replaces the descriptive fields of a product.
type UpdateProductInput struct {
	Name          string
	Description   string
	Unit          string
	MinStockLevel decimal.Decimal
}

// ProductFilter narrows product listings.
type ProductFilter struct {
	Search string
	Limit  int
	Offset int
}
