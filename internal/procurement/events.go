package procurement

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/aquaflow/portal/internal/inventory"
)

// ReceivedEvent describes an approved LPO whose stock has been received.
type ReceivedEvent struct {
	ID         uuid.UUID
	Number     string
	Supplier   string
	Location   inventory.Location
	Total      decimal.Decimal
	ApprovedBy uuid.UUID
	ApprovedAt time.Time
	Lines      int
}

// Notifier is told about received LPOs after the approval commits.
type Notifier interface {
	PurchaseOrderReceived(ctx context.Context, evt ReceivedEvent) error
}
