// Package procurement manages local purchase orders (LPOs) that receive stock on approval.
package procurement

import (
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/aquaflow/portal/internal/inventory"
	"github.com/aquaflow/portal/internal/shared"
	"github.com/aquaflow/portal/internal/workflow"
)

// Supplier is the vendor named on an LPO.
type Supplier struct {
	Name  string `json:"name" validate:"required,max=200"`
	Phone string `json:"phone" validate:"max=32"`
	Email string `json:"email" validate:"omitempty,email,max=254"`
}

// PurchaseOrder is an LPO delivering stock to one location.
type PurchaseOrder struct {
	ID             uuid.UUID          `json:"id"`
	Number         string             `json:"number"`
	Supplier       Supplier           `json:"supplier"`
	TargetLocation inventory.Location `json:"target_location"`
	Items          []LineItem         `json:"items"`
	Total          decimal.Decimal    `json:"total"`
	Note           string             `json:"note"`
	Status         workflow.Status    `json:"status"`
	CreatedBy      uuid.UUID          `json:"created_by"`
	ApprovedBy     *uuid.UUID         `json:"approved_by,omitempty"`
	ApprovedAt     *time.Time         `json:"approved_at,omitempty"`
	CreatedAt      time.Time          `json:"created_at"`
	UpdatedAt      time.Time          `json:"updated_at"`
}

// LineItem is one priced LPO line.
type LineItem struct {
	ProductID uuid.UUID       `json:"product_id"`
	Quantity  decimal.Decimal `json:"quantity"`
	UnitPrice decimal.Decimal `json:"unit_price"`
	LineTotal decimal.Decimal `json:"line_total"`
}

// LineInput is a requested LPO line.
type LineInput struct {
	ProductID uuid.UUID       `json:"product_id" validate:"required"`
	Quantity  decimal.Decimal `json:"quantity"`
	UnitPrice decimal.Decimal `json:"unit_price"`
}

// CreateInput describes a new LPO.
type CreateInput struct {
	Supplier       Supplier           `json:"supplier"`
	TargetLocation inventory.Location `json:"target_location" validate:"required"`
	Items          []LineInput        `json:"items" validate:"required,min=1,dive"`
	Note           string             `json:"note" validate:"max=2000"`
}

// TransitionInput approves or rejects an LPO.
type TransitionInput struct {
	Target workflow.Status `json:"status" validate:"required"`
	Note   string          `json:"note" validate:"max=500"`
}

// ListFilter narrows ListPurchaseOrders.
type ListFilter struct {
	Status   workflow.Status
	Location inventory.Location
	Limit    int
	Offset   int
}

func buildLines(inputs []LineInput) ([]LineItem, decimal.Decimal, error) {
	if len(inputs) == 0 {
		return nil, decimal.Zero, fmt.Errorf("%w: at least one line is required", shared.ErrValidation)
	}
	items := make([]LineItem, 0, len(inputs))
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
		items = append(items, LineItem{ProductID: in.ProductID, Quantity: qty, UnitPrice: price, LineTotal: line})
		total = total.Add(line)
	}
	return items, total, nil
}

func normalizeSupplier(s Supplier) (Supplier, error) {
	s.Name = strings.TrimSpace(s.Name)
	s.Phone = strings.TrimSpace(s.Phone)
	s.Email = strings.ToLower(strings.TrimSpace(s.Email))
	if s.Name == "" {
		return Supplier{}, fmt.Errorf("%w: supplier name is required", shared.ErrValidation)
	}
	return s, nil
}

func lines(items []LineItem) []inventory.Line {
	out := make([]inventory.Line, 0, len(items))
	for _, it := range items {
		out = append(out, inventory.Line{ProductID: it.ProductID, Quantity: it.Quantity})
	}
	return out
}
