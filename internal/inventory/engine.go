package inventory

import (
	"bytes"
	"context"
	"fmt"
	"slices"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/aquaflow/portal/internal/shared"
)

// StockTx is the transaction-scoped stock store. Every quantity change is a single
// conditional statement; callers never read-modify-write a quantity.
type StockTx interface {
	// LockStock takes row locks on the given locations of a product, in the order given.
	LockStock(ctx context.Context, productID uuid.UUID, locations ...Location) error
	// DecrementStock subtracts qty only when at least qty is on hand. ok is false otherwise.
	DecrementStock(ctx context.Context, productID uuid.UUID, loc Location, qty decimal.Decimal) (balance decimal.Decimal, ok bool, err error)
	IncrementStock(ctx context.Context, productID uuid.UUID, loc Location, qty decimal.Decimal) (decimal.Decimal, error)
	StockQuantity(ctx context.Context, productID uuid.UUID, loc Location) (decimal.Decimal, error)
	InsertMovements(ctx context.Context, movements []Movement) error
}

// Engine translates approved documents into stock deltas. It runs inside the caller's
// transaction so the delta and the status write commit together.
type Engine struct {
	now func() time.Time
}

// NewEngine constructs an Engine.
func NewEngine() *Engine {
	return &Engine{now: time.Now}
}

// DeductSale removes every sale line from the sales location.
func (e *Engine) DeductSale(ctx context.Context, tx StockTx, ref Reference, lines []Line) error {
	return e.deduct(ctx, tx, ref, MovementSale, lines)
}

// DeductRequest removes deduction request lines from the sales location.
func (e *Engine) DeductRequest(ctx context.Context, tx StockTx, ref Reference, lines []Line) error {
	return e.deduct(ctx, tx, ref, MovementDeduction, lines)
}

func (e *Engine) deduct(ctx context.Context, tx StockTx, ref Reference, kind MovementType, lines []Line) error {
	if err := validateLines(lines); err != nil {
		return err
	}
	at := e.now().UTC()
	movements := make([]Movement, 0, len(lines))
	// Product order keeps lock acquisition consistent across concurrent multi-line documents.
	for _, line := range sortedLines(lines) {
		balance, ok, err := tx.DecrementStock(ctx, line.ProductID, SalesLocation, line.Quantity)
		if err != nil {
			return err
		}
		if !ok {
			return shortage(ctx, tx, line.ProductID, SalesLocation, line.Quantity)
		}
		movements = append(movements, Movement{
			ProductID:     line.ProductID,
			Location:      SalesLocation,
			Type:          kind,
			QuantityDelta: line.Quantity.Neg(),
			BalanceAfter:  balance,
			RefKind:       ref.Kind,
			RefID:         ref.ID,
			ActorID:       ref.ActorID,
			CreatedAt:     at,
		})
	}
	return tx.InsertMovements(ctx, movements)
}

// Receive adds purchase order lines to loc.
func (e *Engine) Receive(ctx context.Context, tx StockTx, ref Reference, loc Location, lines []Line) error {
	if !loc.Valid() {
		return fmt.Errorf("%w: unknown location %q", shared.ErrValidation, loc)
	}
	if err := validateLines(lines); err != nil {
		return err
	}
	at := e.now().UTC()
	movements := make([]Movement, 0, len(lines))
	for _, line := range sortedLines(lines) {
		balance, err := tx.IncrementStock(ctx, line.ProductID, loc, line.Quantity)
		if err != nil {
			return err
		}
		movements = append(movements, Movement{
			ProductID:     line.ProductID,
			Location:      loc,
			Type:          MovementPurchase,
			QuantityDelta: line.Quantity,
			BalanceAfter:  balance,
			RefKind:       ref.Kind,
			RefID:         ref.ID,
			ActorID:       ref.ActorID,
			CreatedAt:     at,
		})
	}
	return tx.InsertMovements(ctx, movements)
}

// Transfer moves qty of a product from one location to the other. Both rows are locked
// before either is written.
func (e *Engine) Transfer(ctx context.Context, tx StockTx, ref Reference, productID uuid.UUID, from, to Location, qty decimal.Decimal) error {
	if !from.Valid() || !to.Valid() || from == to {
		return fmt.Errorf("%w: transfer needs two distinct locations", shared.ErrValidation)
	}
	if err := validateLines([]Line{{ProductID: productID, Quantity: qty}}); err != nil {
		return err
	}
	if err := tx.LockStock(ctx, productID, Locations...); err != nil {
		return err
	}
	fromBalance, ok, err := tx.DecrementStock(ctx, productID, from, qty)
	if err != nil {
		return err
	}
	if !ok {
		return shortage(ctx, tx, productID, from, qty)
	}
	toBalance, err := tx.IncrementStock(ctx, productID, to, qty)
	if err != nil {
		return err
	}
	at := e.now().UTC()
	return tx.InsertMovements(ctx, []Movement{
		{
			ProductID: productID, Location: from, Type: MovementTransfer,
			QuantityDelta: qty.Neg(), BalanceAfter: fromBalance,
			RefKind: ref.Kind, RefID: ref.ID, ActorID: ref.ActorID, CreatedAt: at,
		},
		{
			ProductID: productID, Location: to, Type: MovementTransfer,
			QuantityDelta: qty, BalanceAfter: toBalance,
			RefKind: ref.Kind, RefID: ref.ID, ActorID: ref.ActorID, CreatedAt: at,
		},
	})
}

func shortage(ctx context.Context, tx StockTx, productID uuid.UUID, loc Location, requested decimal.Decimal) error {
	available, err := tx.StockQuantity(ctx, productID, loc)
	if err != nil {
		return err
	}
	return &ShortageError{ProductID: productID, Location: loc, Requested: requested, Available: available}
}

func validateLines(lines []Line) error {
	if len(lines) == 0 {
		return fmt.Errorf("%w: at least one line is required", shared.ErrValidation)
	}
	for _, line := range lines {
		if line.ProductID == uuid.Nil {
			return fmt.Errorf("%w: product is required", shared.ErrValidation)
		}
		if !line.Quantity.IsPositive() {
			return ErrInvalidQuantity
		}
	}
	return nil
}

func sortedLines(lines []Line) []Line {
	sorted := slices.Clone(lines)
	slices.SortStableFunc(sorted, func(a, b Line) int {
		return bytes.Compare(a.ProductID[:], b.ProductID[:])
	})
	return sorted
}
