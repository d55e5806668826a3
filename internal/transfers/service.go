package transfers

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
	GetTransfer(ctx context.Context, id uuid.UUID) (Transfer, error)
	ListTransfers(ctx context.Context, filter ListFilter) ([]Transfer, error)
}

// Service implements the transfer lifecycle.
type Service struct {
	repo    RepositoryPort
	machine *workflow.Machine
	engine  *inventory.Engine
	logger  *slog.Logger
	now     func() time.Time
}

// NewService constructs Service.
func NewService(repo RepositoryPort, machine *workflow.Machine, engine *inventory.Engine, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{repo: repo, machine: machine, engine: engine, logger: logger, now: time.Now}
}

// CreateTransfer records a pending transfer. Availability is checked on completion.
func (s *Service) CreateTransfer(ctx context.Context, actor shared.Actor, in CreateInput) (Transfer, error) {
	if actor.Anonymous() {
		return Transfer{}, shared.ErrUnauthorized
	}
	if !actor.Role.In(shared.RoleAdmin, shared.RoleClerk) {
		return Transfer{}, shared.ErrForbidden
	}
	if in.ProductID == uuid.Nil {
		return Transfer{}, fmt.Errorf("%w: product is required", shared.ErrValidation)
	}
	from, err := inventory.ParseLocation(string(in.FromLocation))
	if err != nil {
		return Transfer{}, err
	}
	to, err := inventory.ParseLocation(string(in.ToLocation))
	if err != nil {
		return Transfer{}, err
	}
	if from == to {
		return Transfer{}, fmt.Errorf("%w: source and destination must differ", shared.ErrValidation)
	}
	qty, err := inventory.NormalizeQuantity(in.Quantity)
	if err != nil {
		return Transfer{}, err
	}
	now := s.now().UTC()
	t := Transfer{
		ID:           uuid.New(),
		Number:       shared.DocumentNumber("TRF", now),
		ProductID:    in.ProductID,
		FromLocation: from,
		ToLocation:   to,
		Quantity:     qty,
		Note:         in.Note,
		Status:       workflow.StatusPending,
		CreatedBy:    actor.ID,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	if err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		return tx.InsertTransfer(ctx, t)
	}); err != nil {
		return Transfer{}, err
	}
	return t, nil
}

// TransitionTransfer completes or cancels a pending transfer. Completion moves the
// quantity between both stock records or neither.
func (s *Service) TransitionTransfer(ctx context.Context, actor shared.Actor, id uuid.UUID, in TransitionInput) (Transfer, error) {
	req := workflow.Request{Kind: workflow.KindTransfer, ID: id, Target: in.Target, Actor: actor, Note: in.Note}
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		return s.machine.Apply(ctx, tx, req, func(ctx context.Context) error {
			t, err := tx.LoadTransfer(ctx, id)
			if err != nil {
				return err
			}
			ref := inventory.Reference{Kind: workflow.KindTransfer.Name, ID: id, ActorID: actor.ID}
			return s.engine.Transfer(ctx, tx, ref, t.ProductID, t.FromLocation, t.ToLocation, t.Quantity)
		})
	})
	s.machine.Observe(req, err)
	if err != nil {
		return Transfer{}, err
	}
	return s.repo.GetTransfer(ctx, id)
}

// GetTransfer returns one transfer.
func (s *Service) GetTransfer(ctx context.Context, id uuid.UUID) (Transfer, error) {
	return s.repo.GetTransfer(ctx, id)
}

// ListTransfers returns a page of transfers.
func (s *Service) ListTransfers(ctx context.Context, filter ListFilter) ([]Transfer, error) {
	if filter.Limit <= 0 || filter.Limit > 500 {
		filter.Limit = 50
	}
	return s.repo.ListTransfers(ctx, filter)
}
