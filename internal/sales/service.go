package sales

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/aquaflow/portal/internal/customers"
	"github.com/aquaflow/portal/internal/inventory"
	"github.com/aquaflow/portal/internal/shared"
	"github.com/aquaflow/portal/internal/workflow"
)

// RepositoryPort describes the storage used by Service.
type RepositoryPort interface {
	WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error
	GetSale(ctx context.Context, id uuid.UUID) (Sale, error)
	ListSales(ctx context.Context, filter ListFilter) ([]Sale, error)
}

// CustomerResolver finds or creates the customer of a sale.
type CustomerResolver interface {
	Resolve(ctx context.Context, in customers.ResolveInput) (customers.Customer, error)
}

// Service implements the sale lifecycle.
type Service struct {
	repo      RepositoryPort
	customers CustomerResolver
	machine   *workflow.Machine
	engine    *inventory.Engine
	logger    *slog.Logger
	now       func() time.Time
}

// NewService constructs Service.
func NewService(repo RepositoryPort, resolver CustomerResolver, machine *workflow.Machine, engine *inventory.Engine, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{
		repo:      repo,
		customers: resolver,
		machine:   machine,
		engine:    engine,
		logger:    logger,
		now:       time.Now,
	}
}

// CreateSale records a pending sale. Stock is untouched until approval.
func (s *Service) CreateSale(ctx context.Context, actor shared.Actor, in CreateInput) (Sale, error) {
	if actor.Anonymous() {
		return Sale{}, shared.ErrUnauthorized
	}
	if !actor.Role.In(shared.RoleAdmin, shared.RoleClerk) {
		return Sale{}, shared.ErrForbidden
	}
	items, total, err := BuildItems(in.Items)
	if err != nil {
		return Sale{}, err
	}
	sale := NewSale(actor, items, total, s.now())
	if in.RequestID != nil && *in.RequestID != uuid.Nil {
		requestID := *in.RequestID
		sale.RequestID = &requestID
	}
	if in.Customer != nil && !in.Customer.Empty() {
		customer, err := s.customers.Resolve(ctx, *in.Customer)
		if err != nil {
			return Sale{}, err
		}
		sale.CustomerID = &customer.ID
	}
	if err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		return tx.InsertSale(ctx, sale)
	}); err != nil {
		return Sale{}, err
	}
	s.logger.Info("sale created",
		slog.String("sale", sale.ID.String()),
		slog.String("number", sale.Number),
		slog.String("total", sale.Total.StringFixed(inventory.MoneyPlaces)))
	return sale, nil
}

// ReviseSale replaces the items of a pending sale and recomputes its total. Only the
// roles that may create a sale may revise one.
func (s *Service) ReviseSale(ctx context.Context, actor shared.Actor, id uuid.UUID, inputs []ItemInput) (Sale, error) {
	if actor.Anonymous() {
		return Sale{}, shared.ErrUnauthorized
	}
	if !actor.Role.In(shared.RoleAdmin, shared.RoleClerk) {
		return Sale{}, shared.ErrForbidden
	}
	items, total, err := BuildItems(inputs)
	if err != nil {
		return Sale{}, err
	}
	err = s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		status, err := tx.LockStatus(ctx, workflow.KindSale, id)
		if err != nil {
			return err
		}
		if status.Terminal() {
			return fmt.Errorf("%w: sale %s is %s", shared.ErrInvalidTransition, id, status)
		}
		return tx.ReplaceItems(ctx, id, items, total, s.now().UTC())
	})
	if err != nil {
		return Sale{}, err
	}
	return s.repo.GetSale(ctx, id)
}

// TransitionSale approves or rejects a pending sale. Approval deducts every item from
// the sales location in the same transaction; a shortage leaves the sale pending.
func (s *Service) TransitionSale(ctx context.Context, actor shared.Actor, id uuid.UUID, in TransitionInput) (Sale, error) {
	req := workflow.Request{Kind: workflow.KindSale, ID: id, Target: in.Target, Actor: actor, Note: in.Note}
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		return s.machine.Apply(ctx, tx, req, func(ctx context.Context) error {
			items, err := tx.SaleItems(ctx, id)
			if err != nil {
				return err
			}
			return s.engine.DeductSale(ctx, tx, Reference(id, actor), Lines(items))
		})
	})
	s.machine.Observe(req, err)
	if err != nil {
		return Sale{}, err
	}
	return s.repo.GetSale(ctx, id)
}

// GetSale returns one sale.
func (s *Service) GetSale(ctx context.Context, id uuid.UUID) (Sale, error) {
	return s.repo.GetSale(ctx, id)
}

// ListSales returns a page of sales.
func (s *Service) ListSales(ctx context.Context, filter ListFilter) ([]Sale, error) {
	if filter.Status != "" {
		if _, ok := workflow.KindSale.Rules[filter.Status]; !ok && filter.Status != workflow.StatusPending {
			return nil, fmt.Errorf("%w: unknown status %q", shared.ErrValidation, filter.Status)
		}
	}
	if filter.Limit <= 0 || filter.Limit > 500 {
		filter.Limit = 50
	}
	return s.repo.ListSales(ctx, filter)
}
