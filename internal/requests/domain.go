// Package requests handles stock deduction requests and their conversion into sales.
package requests

import (
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/aquaflow/portal/internal/customers"
	"github.com/aquaflow/portal/internal/inventory"
	"github.com/aquaflow/portal/internal/sales"
	"github.com/aquaflow/portal/internal/shared"
	"github.com/aquaflow/portal/internal/workflow"
)

// DeductionRequest asks an admin to release stock from the sales location for a customer.
type DeductionRequest struct {
	ID            uuid.UUID       `json:"id"`
	Number        string          `json:"number"`
	Items         []Item          `json:"items"`
	CustomerID    *uuid.UUID      `json:"customer_id,omitempty"`
	CustomerName  string          `json:"customer_name"`
	CustomerPhone string          `json:"customer_phone"`
	CustomerEmail string          `json:"customer_email"`
	Note          string          `json:"note"`
	SaleID        *uuid.UUID      `json:"sale_id,omitempty"`
	Status        workflow.Status `json:"status"`
	CreatedBy     uuid.UUID       `json:"created_by"`
	ApprovedBy    *uuid.UUID      `json:"approved_by,omitempty"`
	ApprovedAt    *time.Time      `json:"approved_at,omitempty"`
	CreatedAt     time.Time       `json:"created_at"`
	UpdatedAt     time.Time       `json:"updated_at"`
}

// Item is one requested product quantity.
type Item struct {
	ProductID uuid.UUID       `json:"product_id" validate:"required"`
	Quantity  decimal.Decimal `json:"quantity"`
}

// CreateInput describes a new request. Customer is optional.
type CreateInput struct {
	Items    []Item                  `json:"items" validate:"required,min=1,dive"`
	Customer *customers.ResolveInput `json:"customer,omitempty"`
	Note     string                  `json:"note" validate:"max=2000"`
}

// Price sets the unit price of one product when an approval spawns a sale.
type Price struct {
	ProductID uuid.UUID       `json:"product_id" validate:"required"`
	UnitPrice decimal.Decimal `json:"unit_price"`
}

// TransitionInput approves or rejects a request. An approval with SaleID attaches the
// request to that sale; without it the request's stock is deducted, and Prices covering
// every item also produce an approved sale.
type TransitionInput struct {
	Target workflow.Status `json:"status" validate:"required"`
	SaleID *uuid.UUID      `json:"sale_id,omitempty"`
	Prices []Price         `json:"prices,omitempty" validate:"dive"`
	Note   string          `json:"note" validate:"max=500"`
}

// ListFilter narrows ListRequests.
type ListFilter struct {
	Status workflow.Status
	Limit  int
	Offset int
}

func normalizeItems(items []Item) ([]Item, error) {
	if len(items) == 0 {
		return nil, fmt.Errorf("%w: at least one item is required", shared.ErrValidation)
	}
	out := make([]Item, 0, len(items))
	for _, it := range items {
		if it.ProductID == uuid.Nil {
			return nil, fmt.Errorf("%w: product is required", shared.ErrValidation)
		}
		qty, err := inventory.NormalizeQuantity(it.Quantity)
		if err != nil {
			return nil, err
		}
		out = append(out, Item{ProductID: it.ProductID, Quantity: qty})
	}
	return out, nil
}

func lines(items []Item) []inventory.Line {
	out := make([]inventory.Line, 0, len(items))
	for _, it := range items {
		out = append(out, inventory.Line{ProductID: it.ProductID, Quantity: it.Quantity})
	}
	return out
}

// pricedItems pairs every request item with a supplied price. ok is false when no prices
// were supplied; a partial or foreign price list is a validation error.
func pricedItems(items []Item, prices []Price) (inputs []sales.ItemInput, ok bool, err error) {
	if len(prices) == 0 {
		return nil, false, nil
	}
	byProduct := make(map[uuid.UUID]decimal.Decimal, len(prices))
	for _, p := range prices {
		if _, dup := byProduct[p.ProductID]; dup {
			return nil, false, fmt.Errorf("%w: duplicate price for product %s", shared.ErrValidation, p.ProductID)
		}
		byProduct[p.ProductID] = p.UnitPrice
	}
	used := make(map[uuid.UUID]bool, len(byProduct))
	for _, it := range items {
		price, found := byProduct[it.ProductID]
		if !found {
			return nil, false, fmt.Errorf("%w: missing price for product %s", shared.ErrValidation, it.ProductID)
		}
		used[it.ProductID] = true
		inputs = append(inputs, sales.ItemInput{ProductID: it.ProductID, Quantity: it.Quantity, UnitPrice: price})
	}
	if len(used) != len(byProduct) {
		return nil, false, fmt.Errorf("%w: price given for a product not in the request", shared.ErrValidation)
	}
	return inputs, true, nil
}
