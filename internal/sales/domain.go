// Package sales records sales at the sales location and deducts stock on approval.
package sales

import (
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/aquaflow/portal/internal/customers"
	"github.com/aquaflow/portal/internal/inventory"
	"github.com/aquaflow/portal/internal/shared"
	"github.com/aquaflow/portal/internal/workflow"
)

// Sale is a customer sale drawn from the sales location.
type Sale struct {
	ID         uuid.UUID       `json:"id"`
	Number     string          `json:"number"`
	CustomerID *uuid.UUID      `json:"customer_id,omitempty"`
	RequestID  *uuid.UUID      `json:"request_id,omitempty"`
	Items      []Item          `json:"items"`
	Total      decimal.Decimal `json:"total"`
	Status     workflow.Status `json:"status"`
	CreatedBy  uuid.UUID       `json:"created_by"`
	ApprovedBy *uuid.UUID      `json:"approved_by,omitempty"`
	ApprovedAt *time.Time      `json:"approved_at,omitempty"`
	CreatedAt  time.Time       `json:"created_at"`
	UpdatedAt  time.Time       `json:"updated_at"`
}

// Item is one priced sale line.
type Item struct {
	ProductID uuid.UUID       `json:"product_id"`
	Quantity  decimal.Decimal `json:"quantity"`
	UnitPrice decimal.Decimal `json:"unit_price"`
	LineTotal decimal.Decimal `json:"line_total"`
}

// ItemInput is a requested sale line.
type ItemInput struct {
	ProductID uuid.UUID       `json:"product_id" validate:"required"`
	Quantity  decimal.Decimal `json:"quantity"`
	UnitPrice decimal.Decimal `json:"unit_price"`
}

// CreateInput describes a new sale. Customer and RequestID are optional.
type CreateInput struct {
	Customer  *customers.ResolveInput `json:"customer,omitempty"`
	RequestID *uuid.UUID              `json:"request_id,omitempty"`
	Items     []ItemInput             `json:"items" validate:"required,min=1,dive"`
}

// TransitionInput moves a sale out of pending.
type TransitionInput struct {
	Target workflow.Status `json:"status" validate:"required"`
	Note   string          `json:"note" validate:"max=500"`
}

// ListFilter narrows ListSales.
type ListFilter struct {
	Status workflow.Status
	From   time.Time
	To     time.Time
	Limit  int
	Offset int
}

// Link is the locked linkage state of a sale, used when attaching a deduction request.
type Link struct {
	Status    workflow.Status
	RequestID *uuid.UUID
}

// BuildItems validates inputs, rounds quantities and prices and returns the items and
// their total.
func BuildItems(inputs []ItemInput) ([]Item, decimal.Decimal, error) {
	if len(inputs) == 0 {
		return nil, decimal.Zero, fmt.Errorf("%w: at least one item is required", shared.ErrValidation)
	}
	items := make([]Item, 0, len(inputs))
	total := decimal.Zero
	for _, in := range inputs {
		if in.ProductID == uuid.Nil {
			return nil, decimal.Zero, fmt.Errorf("%w: product is required", shared.ErrValidation)
		}
		qty, err := inventory.NormalizeQuantity(in.Quantity)
		if err != nil {
			return nil, decimal.Zero, err
		}
		price, err := inventory.NormalizePrice(in.UnitPrice)
		if err != nil {
			return nil, decimal.Zero, err
		}
		line := inventory.LineTotal(qty, price)
		items = append(items, Item{ProductID: in.ProductID, Quantity: qty, UnitPrice: price, LineTotal: line})
		total = total.Add(line)
	}
	return items, total, nil
}

// NewSale assembles a sale created by actor at the given time. Status is pending.
func NewSale(actor shared.Actor, items []Item, total decimal.Decimal, at time.Time) Sale {
	at = at.UTC()
	return Sale{
		ID:        uuid.New(),
		Number:    shared.DocumentNumber("SO", at),
		Items:     items,
		Total:     total,
		Status:    workflow.StatusPending,
		CreatedBy: actor.ID,
		CreatedAt: at,
		UpdatedAt: at,
	}
}

// Lines converts items to engine lines.
func Lines(items []Item) []inventory.Line {
	lines := make([]inventory.Line, 0, len(items))
	for _, it := range items {
		lines = append(lines, inventory.Line{ProductID: it.ProductID, Quantity: it.Quantity})
	}
	return lines
}

// Reference identifies a sale in the transaction log.
func Reference(id uuid.UUID, actor shared.Actor) inventory.Reference {
	return inventory.Reference{Kind: workflow.KindSale.Name, ID: id, ActorID: actor.ID}
}
