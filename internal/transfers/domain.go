// Package transfers moves stock of one product between the two locations.
package transfers

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/aquaflow/portal/internal/inventory"
	"github.com/aquaflow/portal/internal/workflow"
)

// Transfer moves Quantity of a product from one location to the other.
type Transfer struct {
	ID           uuid.UUID          `json:"id"`
	Number       string             `json:"number"`
	ProductID    uuid.UUID          `json:"product_id"`
	FromLocation inventory.Location `json:"from_location"`
	ToLocation   inventory.Location `json:"to_location"`
	Quantity     decimal.Decimal    `json:"quantity"`
	Note         string             `json:"note"`
	Status       workflow.Status    `json:"status"`
	CreatedBy    uuid.UUID          `json:"created_by"`
	ApprovedBy   *uuid.UUID         `json:"approved_by,omitempty"`
	ApprovedAt   *time.Time         `json:"approved_at,omitempty"`
	CreatedAt    time.Time          `json:"created_at"`
	UpdatedAt    time.Time          `json:"updated_at"`
}

// CreateInput describes a new transfer.
type CreateInput struct {
	ProductID    uuid.UUID          `json:"product_id" validate:"required"`
	FromLocation inventory.Location `json:"from_location" validate:"required"`
	ToLocation   inventory.Location `json:"to_location" validate:"required,nefield=FromLocation"`
	Quantity     decimal.Decimal    `json:"quantity"`
	Note         string             `json:"note" validate:"max=2000"`
}

// TransitionInput completes or cancels a transfer.
type TransitionInput struct {
	Target workflow.Status `json:"status" validate:"required"`
	Note   string          `json:"note" validate:"max=500"`
}

// ListFilter narrows ListTransfers.
type ListFilter struct {
	Status    workflow.Status
	ProductID uuid.UUID
	Limit     int
	Offset    int
}
