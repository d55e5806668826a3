package procurement

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/aquaflow/portal/internal/inventory"
	"github.com/aquaflow/portal/internal/shared"
	"github.com/aquaflow/portal/internal/workflow"
)

// RepositoryPort describes the storage used by Service.
type RepositoryPort interface {
	WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error
	GetPurchaseOrder(ctx context.Context, id uuid.UUID) (PurchaseOrder, error)
	ListPurchaseOrders(ctx context.Context, filter ListFilter) ([]PurchaseOrder, error)
}

// Service implements the LPO lifecycle.
type Service struct {
	repo     RepositoryPort
	machine  *workflow.Machine
	engine   *inventory.Engine
	notifier Notifier
	logger   *slog.Logger
	now      func() time.Time
}

// NewService constructs Service. notifier may be nil.
func NewService(repo RepositoryPort, machine *workflow.Machine, engine *inventory.Engine, notifier Notifier, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{repo: repo, machine: machine, engine: engine, notifier: notifier, logger: logger, now: time.Now}
}

// CreatePurchaseOrder records a pending LPO for the target location.
func (s *Service) CreatePurchaseOrder(ctx context.Context, actor shared.Actor, in CreateInput) (PurchaseOrder, error) {
	if actor.Anonymous() {
		return PurchaseOrder{}, shared.ErrUnauthorized
	}
	if !actor.Role.In(shared.RoleAdmin, shared.RoleClerk) {
		return PurchaseOrder{}, shared.ErrForbidden
	}
	supplier, err := normalizeSupplier(in.Supplier)
	if err != nil {
		return PurchaseOrder{}, err
	}
	loc, err := inventory.ParseLocation(string(in.TargetLocation))
	if err != nil {
		return PurchaseOrder{}, err
	}
	items, total, err := buildLines(in.Items)
	if err != nil {
		return PurchaseOrder{}, err
	}
	now := s.now().UTC()
	po := PurchaseOrder{
		ID:             uuid.New(),
		Number:         shared.DocumentNumber("LPO", now),
		Supplier:       supplier,
		TargetLocation: loc,
		Items:          items,
		Total:          total,
		Note:           in.Note,
		Status:         workflow.StatusPending,
		CreatedBy:      actor.ID,
		CreatedAt:      now,
		UpdatedAt:      now,
	}
	if err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		return tx.InsertPurchaseOrder(ctx, po)
	}); err != nil {
		return PurchaseOrder{}, err
	}
	s.logger.Info("purchase order created", slog.String("po", po.ID.String()), slog.String("number", po.Number))
	return po, nil
}

// TransitionPurchaseOrder approves or rejects a pending LPO. Approval receives every
// line into the target location.
func (s *Service) TransitionPurchaseOrder(ctx context.Context, actor shared.Actor, id uuid.UUID, in TransitionInput) (PurchaseOrder, error) {
	req := workflow.Request{Kind: workflow.KindPurchaseOrder, ID: id, Target: in.Target, Actor: actor, Note: in.Note}
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		return s.machine.Apply(ctx, tx, req, func(ctx context.Context) error {
			po, err := tx.LoadPurchaseOrder(ctx, id)
			if err != nil {
				return err
			}
			ref := inventory.Reference{Kind: workflow.KindPurchaseOrder.Name, ID: id, ActorID: actor.ID}
			return s.engine.Receive(ctx, tx, ref, po.TargetLocation, lines(po.Items))
		})
	})
	s.machine.Observe(req, err)
	if err != nil {
		return PurchaseOrder{}, err
	}
	updated, err := s.repo.GetPurchaseOrder(ctx, id)
	if err != nil {
		return PurchaseOrder{}, err
	}
	if updated.Status == workflow.StatusApproved {
		s.notify(ctx, updated)
	}
	return updated, nil
}

// GetPurchaseOrder returns one LPO.
func (s *Service) GetPurchaseOrder(ctx context.Context, id uuid.UUID) (PurchaseOrder, error) {
	return s.repo.GetPurchaseOrder(ctx, id)
}

// ListPurchaseOrders returns a page of LPOs.
func (s *Service) ListPurchaseOrders(ctx context.Context, filter ListFilter) ([]PurchaseOrder, error) {
	if filter.Location != "" && !filter.Location.Valid() {
		return nil, fmt.Errorf("%w: unknown location %q", shared.ErrValidation, filter.Location)
	}
	if filter.Limit <= 0 || filter.Limit > 500 {
		filter.Limit = 50
	}
	return s.repo.ListPurchaseOrders(ctx, filter)
}

func (s *Service) notify(ctx context.Context, po PurchaseOrder) {
	if s.notifier == nil {
		return
	}
	evt := ReceivedEvent{
		ID:       po.ID,
		Number:   po.Number,
		Supplier: po.Supplier.Name,
		Location: po.TargetLocation,
		Total:    po.Total,
		Lines:    len(po.Items),
	}
	if po.ApprovedBy != nil {
		evt.ApprovedBy = *po.ApprovedBy
	}
	if po.ApprovedAt != nil {
		evt.ApprovedAt = *po.ApprovedAt
	}
	if err := s.notifier.PurchaseOrderReceived(ctx, evt); err != nil {
		s.logger.Warn("purchase order notify", slog.String("po", po.ID.String()), slog.Any("error", err))
	}
}
