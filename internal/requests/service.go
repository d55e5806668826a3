package requests

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/aquaflow/portal/internal/customers"
	"github.com/aquaflow/portal/internal/inventory"
	"github.com/aquaflow/portal/internal/sales"
	"github.com/aquaflow/portal/internal/shared"
	"github.com/aquaflow/portal/internal/workflow"
)

// RepositoryPort describes the storage used by Service.
type RepositoryPort interface {
	WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error
	GetRequest(ctx context.Context, id uuid.UUID) (DeductionRequest, error)
	ListRequests(ctx context.Context, filter ListFilter) ([]DeductionRequest, error)
}

// CustomerResolver finds or creates the customer named on a request.
type CustomerResolver interface {
	Resolve(ctx context.Context, in customers.ResolveInput) (customers.Customer, error)
}

// Service orchestrates deduction requests, customers and sales.
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

// CreateRequest records a pending deduction request. Any authenticated actor may ask.
func (s *Service) CreateRequest(ctx context.Context, actor shared.Actor, in CreateInput) (DeductionRequest, error) {
	if actor.Anonymous() {
		return DeductionRequest{}, shared.ErrUnauthorized
	}
	items, err := normalizeItems(in.Items)
	if err != nil {
		return DeductionRequest{}, err
	}
	now := s.now().UTC()
	d := DeductionRequest{
		ID:        uuid.New(),
		Number:    shared.DocumentNumber("DR", now),
		Items:     items,
		Note:      in.Note,
		Status:    workflow.StatusPending,
		CreatedBy: actor.ID,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if in.Customer != nil && !in.Customer.Empty() {
		customer, err := s.customers.Resolve(ctx, *in.Customer)
		if err != nil {
			return DeductionRequest{}, err
		}
		d.CustomerID = &customer.ID
		d.CustomerName = customer.Name
		d.CustomerPhone = customers.NormalizePhone(in.Customer.Phone)
		d.CustomerEmail = customers.NormalizeEmail(in.Customer.Email)
	}
	if err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		return tx.InsertRequest(ctx, d)
	}); err != nil {
		return DeductionRequest{}, err
	}
	return d, nil
}

// TransitionRequest approves or rejects a pending request.
//
// A direct approval names an existing sale: the sale must not be rejected or linked to
// another request, and no stock moves. An indirect approval deducts every item from the
// sales location; when prices cover every item an approved sale is created and linked in
// the same transaction.
func (s *Service) TransitionRequest(ctx context.Context, actor shared.Actor, id uuid.UUID, in TransitionInput) (DeductionRequest, error) {
	if in.Target != workflow.StatusApproved && (in.SaleID != nil || len(in.Prices) > 0) {
		return DeductionRequest{}, fmt.Errorf("%w: sale and prices apply only to approval", shared.ErrValidation)
	}
	if in.SaleID != nil && len(in.Prices) > 0 {
		return DeductionRequest{}, fmt.Errorf("%w: give either an existing sale or prices", shared.ErrValidation)
	}
	req := workflow.Request{Kind: workflow.KindDeductionRequest, ID: id, Target: in.Target, Actor: actor, Note: in.Note}
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		return s.machine.Apply(ctx, tx, req, func(ctx context.Context) error {
			if in.SaleID != nil {
				return s.attach(ctx, tx, id, *in.SaleID)
			}
			return s.deduct(ctx, tx, actor, id, in.Prices)
		})
	})
	s.machine.Observe(req, err)
	if err != nil {
		return DeductionRequest{}, err
	}
	return s.repo.GetRequest(ctx, id)
}

func (s *Service) attach(ctx context.Context, tx TxRepository, id, saleID uuid.UUID) error {
	link, err := tx.LockSale(ctx, saleID)
	if err != nil {
		return err
	}
	if link.Status == workflow.StatusRejected {
		return fmt.Errorf("%w: sale %s is rejected", shared.ErrConflict, saleID)
	}
	if link.RequestID != nil && *link.RequestID != id {
		return fmt.Errorf("%w: sale %s belongs to another request", shared.ErrConflict, saleID)
	}
	at := s.now().UTC()
	if err := tx.LinkRequest(ctx, saleID, id, at); err != nil {
		return err
	}
	return tx.SetRequestSale(ctx, id, saleID, at)
}

func (s *Service) deduct(ctx context.Context, tx TxRepository, actor shared.Actor, id uuid.UUID, prices []Price) error {
	d, err := tx.LoadRequest(ctx, id)
	if err != nil {
		return err
	}
	priced, ok, err := pricedItems(d.Items, prices)
	if err != nil {
		return err
	}
	ref := inventory.Reference{Kind: workflow.KindDeductionRequest.Name, ID: id, ActorID: actor.ID}
	if err := s.engine.DeductRequest(ctx, tx, ref, lines(d.Items)); err != nil {
		return err
	}
	if !ok {
		return nil
	}
	items, total, err := sales.BuildItems(priced)
	if err != nil {
		return err
	}
	now := s.now().UTC()
	sale := sales.NewSale(actor, items, total, now)
	sale.Status = workflow.StatusApproved
	sale.ApprovedBy = &actor.ID
	sale.ApprovedAt = &now
	sale.RequestID = &id
	sale.CustomerID = d.CustomerID
	if err := tx.InsertSale(ctx, sale); err != nil {
		return err
	}
	if err := tx.RecordDecision(ctx, workflow.Decision{
		Module:  workflow.KindSale.Name,
		RefID:   sale.ID,
		ActorID: actor.ID,
		Role:    actor.Role,
		Action:  workflow.StatusApproved,
		Note:    "created from deduction request " + d.Number,
		At:      now,
	}); err != nil {
		return err
	}
	return tx.SetRequestSale(ctx, id, sale.ID, now)
}

// GetRequest returns one request.
func (s *Service) GetRequest(ctx context.Context, id uuid.UUID) (DeductionRequest, error) {
	return s.repo.GetRequest(ctx, id)
}

// ListRequests returns a page of requests.
func (s *Service) ListRequests(ctx context.Context, filter ListFilter) ([]DeductionRequest, error) {
	if filter.Limit <= 0 || filter.Limit > 500 {
		filter.Limit = 50
	}
	return s.repo.ListRequests(ctx, filter)
}
