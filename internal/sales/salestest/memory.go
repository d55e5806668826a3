// Package salestest provides an in-memory sales store for service tests.
package salestest

import (
	"context"
	"fmt"
	"maps"
	"slices"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/aquaflow/portal/internal/sales"
	"github.com/aquaflow/portal/internal/shared"
	"github.com/aquaflow/portal/internal/workflow"
	"github.com/aquaflow/portal/internal/workflow/workflowtest"
)

// Store implements sales.Writer and the sale reads. Statuses live in the shared guard
// the way they live in the sales table. It is not synchronized; wrap it in a memtx.Runner.
type Store struct {
	guard *workflowtest.Guard
	sales map[uuid.UUID]sales.Sale
}

// NewStore constructs a Store that keeps statuses in guard.
func NewStore(guard *workflowtest.Guard) *Store {
	return &Store{guard: guard, sales: make(map[uuid.UUID]sales.Sale)}
}

// Snapshot implements memtx.Snapshotter.
func (s *Store) Snapshot() func() {
	saved := maps.Clone(s.sales)
	return func() { s.sales = saved }
}

// Sale returns the stored sale with its current status.
func (s *Store) Sale(id uuid.UUID) (sales.Sale, bool) {
	sale, ok := s.sales[id]
	if !ok {
		return sales.Sale{}, false
	}
	return s.withStatus(sale), true
}

// Len returns the number of stored sales.
func (s *Store) Len() int {
	return len(s.sales)
}

func (s *Store) withStatus(sale sales.Sale) sales.Sale {
	if rec, ok := s.guard.Get(workflow.KindSale, sale.ID); ok {
		sale.Status = rec.Status
		if rec.ApprovedBy != uuid.Nil {
			by, at := rec.ApprovedBy, rec.ApprovedAt
			sale.ApprovedBy, sale.ApprovedAt = &by, &at
		}
	}
	sale.Items = slices.Clone(sale.Items)
	return sale
}

func (s *Store) InsertSale(ctx context.Context, sale sales.Sale) error {
	if _, ok := s.sales[sale.ID]; ok {
		return fmt.Errorf("%w: sale %s", shared.ErrConflict, sale.ID)
	}
	if sale.RequestID != nil {
		for _, other := range s.sales {
			if other.RequestID != nil && *other.RequestID == *sale.RequestID {
				return fmt.Errorf("%w: request %s already has a sale", shared.ErrConflict, *sale.RequestID)
			}
		}
	}
	rec := workflowtest.Record{Status: sale.Status}
	if sale.ApprovedBy != nil {
		rec.ApprovedBy = *sale.ApprovedBy
	}
	if sale.ApprovedAt != nil {
		rec.ApprovedAt = *sale.ApprovedAt
	}
	s.guard.Set(workflow.KindSale, sale.ID, rec)
	sale.Items = slices.Clone(sale.Items)
	s.sales[sale.ID] = sale
	return nil
}

func (s *Store) SaleItems(ctx context.Context, id uuid.UUID) ([]sales.Item, error) {
	sale, ok := s.sales[id]
	if !ok {
		return nil, fmt.Errorf("%w: sale %s", shared.ErrNotFound, id)
	}
	return slices.Clone(sale.Items), nil
}

func (s *Store) ReplaceItems(ctx context.Context, id uuid.UUID, items []sales.Item, total decimal.Decimal, at time.Time) error {
	sale, ok := s.sales[id]
	if !ok {
		return fmt.Errorf("%w: sale %s", shared.ErrNotFound, id)
	}
	sale.Items = slices.Clone(items)
	sale.Total = total
	sale.UpdatedAt = at
	s.sales[id] = sale
	return nil
}

func (s *Store) LockSale(ctx context.Context, id uuid.UUID) (sales.Link, error) {
	sale, ok := s.sales[id]
	if !ok {
		return sales.Link{}, fmt.Errorf("%w: sale %s", shared.ErrNotFound, id)
	}
	return sales.Link{Status: s.withStatus(sale).Status, RequestID: sale.RequestID}, nil
}

func (s *Store) LinkRequest(ctx context.Context, id, requestID uuid.UUID, at time.Time) error {
	sale, ok := s.sales[id]
	if !ok {
		return fmt.Errorf("%w: sale %s", shared.ErrNotFound, id)
	}
	if sale.RequestID != nil && *sale.RequestID != requestID {
		return fmt.Errorf("%w: sale %s is already linked", shared.ErrConflict, id)
	}
	for otherID, other := range s.sales {
		if otherID != id && other.RequestID != nil && *other.RequestID == requestID {
			return fmt.Errorf("%w: request %s already has a sale", shared.ErrConflict, requestID)
		}
	}
	sale.RequestID = &requestID
	sale.UpdatedAt = at
	s.sales[id] = sale
	return nil
}

// GetSale implements the sales repository read.
func (s *Store) GetSale(ctx context.Context, id uuid.UUID) (sales.Sale, error) {
	sale, ok := s.Sale(id)
	if !ok {
		return sales.Sale{}, fmt.Errorf("%w: sale %s", shared.ErrNotFound, id)
	}
	return sale, nil
}

// ListSales implements the sales repository list.
func (s *Store) ListSales(ctx context.Context, filter sales.ListFilter) ([]sales.Sale, error) {
	var out []sales.Sale
	for _, sale := range s.sales {
		sale = s.withStatus(sale)
		if filter.Status != "" && sale.Status != filter.Status {
			continue
		}
		if !filter.From.IsZero() && sale.CreatedAt.Before(filter.From) {
			continue
		}
		if !filter.To.IsZero() && sale.CreatedAt.After(filter.To) {
			continue
		}
		out = append(out, sale)
	}
	slices.SortFunc(out, func(a, b sales.Sale) int { return b.CreatedAt.Compare(a.CreatedAt) })
	if filter.Offset >= len(out) {
		return nil, nil
	}
	out = out[filter.Offset:]
	if filter.Limit > 0 && len(out) > filter.Limit {
		out = out[:filter.Limit]
	}
	return out, nil
}
