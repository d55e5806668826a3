package workflow

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/aquaflow/portal/internal/shared"
)

// Guard is the transaction-scoped status store for documents.
type Guard interface {
	// LockStatus reads the current status and holds a row lock until the transaction ends.
	LockStatus(ctx context.Context, kind Kind, id uuid.UUID) (Status, error)
	// SetStatus moves a pending document to target; false means it was no longer pending.
	SetStatus(ctx context.Context, kind Kind, id uuid.UUID, target Status, actorID uuid.UUID, at time.Time) (bool, error)
	RecordDecision(ctx context.Context, decision Decision) error
}

// Effect is the stock mutation bound to a positive outcome.
type Effect func(ctx context.Context) error

// Observer receives transition outcomes.
type Observer interface {
	ObserveTransition(kind, target, outcome string)
}

// Machine applies transitions for every document kind.
type Machine struct {
	logger   *slog.Logger
	observer Observer
	now      func() time.Time
}

// NewMachine constructs a Machine. observer may be nil.
func NewMachine(logger *slog.Logger, observer Observer) *Machine {
	if logger == nil {
		logger = slog.Default()
	}
	return &Machine{logger: logger, observer: observer, now: time.Now}
}

// Apply runs req inside the caller's transaction. The effect runs only for positive
// outcomes and before the status write; any error leaves the document pending once the
// caller rolls back.
func (m *Machine) Apply(ctx context.Context, guard Guard, req Request, effect Effect) error {
	if req.Actor.Anonymous() {
		return shared.ErrUnauthorized
	}
	rule, err := req.Kind.Authorize(req.Target, req.Actor.Role)
	if err != nil {
		return err
	}
	current, err := guard.LockStatus(ctx, req.Kind, req.ID)
	if err != nil {
		return err
	}
	if current.Terminal() {
		return fmt.Errorf("%w: %s %s is %s", shared.ErrInvalidTransition, req.Kind.Name, req.ID, current)
	}
	if rule.Positive && effect != nil {
		if err := effect(ctx); err != nil {
			return err
		}
	}
	at := m.now().UTC()
	ok, err := guard.SetStatus(ctx, req.Kind, req.ID, req.Target, req.Actor.ID, at)
	if err != nil {
		return err
	}
	if !ok {
		return fmt.Errorf("%w: %s %s", shared.ErrInvalidTransition, req.Kind.Name, req.ID)
	}
	return guard.RecordDecision(ctx, Decision{
		Module:  req.Kind.Name,
		RefID:   req.ID,
		ActorID: req.Actor.ID,
		Role:    req.Actor.Role,
		Action:  req.Target,
		Note:    req.Note,
		At:      at,
	})
}

// Observe reports the committed result of req. Call it after the transaction finishes.
func (m *Machine) Observe(req Request, err error) {
	outcome := "ok"
	if err != nil {
		outcome = string(shared.KindOf(err))
	}
	if m.observer != nil {
		m.observer.ObserveTransition(req.Kind.Name, string(req.Target), outcome)
	}
	attrs := []any{
		slog.String("kind", req.Kind.Name),
		slog.String("id", req.ID.String()),
		slog.String("target", string(req.Target)),
		slog.String("actor", req.Actor.ID.String()),
		slog.String("outcome", outcome),
	}
	if err != nil && shared.KindOf(err) == shared.KindStorageFailure {
		m.logger.Error("workflow transition", append(attrs, slog.Any("error", err))...)
		return
	}
	m.logger.Info("workflow transition", attrs...)
}
