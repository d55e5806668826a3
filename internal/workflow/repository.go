package workflow

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/aquaflow/portal/internal/shared"
)

type pgGuard struct {
	tx pgx.Tx
}

// NewGuard returns a Guard bound to tx.
func NewGuard(tx pgx.Tx) Guard {
	return pgGuard{tx: tx}
}

func (g pgGuard) LockStatus(ctx context.Context, kind Kind, id uuid.UUID) (Status, error) {
	table := pgx.Identifier{kind.Table}.Sanitize()
	var status string
	err := g.tx.QueryRow(ctx, `SELECT status FROM `+table+` WHERE id=$1 FOR UPDATE`, id).Scan(&status)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return "", fmt.Errorf("%w: %s %s", shared.ErrNotFound, kind.Name, id)
		}
		return "", fmt.Errorf("workflow: lock %s: %w", kind.Name, err)
	}
	return Status(status), nil
}

func (g pgGuard) SetStatus(ctx context.Context, kind Kind, id uuid.UUID, target Status, actorID uuid.UUID, at time.Time) (bool, error) {
	table := pgx.Identifier{kind.Table}.Sanitize()
	tag, err := g.tx.Exec(ctx, `UPDATE `+table+`
SET status=$2, approved_by=$3, approved_at=$4, updated_at=$4
WHERE id=$1 AND status='pending'`, id, string(target), actorID, at)
	if err != nil {
		return false, fmt.Errorf("workflow: set %s status: %w", kind.Name, err)
	}
	return tag.RowsAffected() == 1, nil
}

func (g pgGuard) RecordDecision(ctx context.Context, d Decision) error {
	_, err := g.tx.Exec(ctx, `INSERT INTO approvals (module, ref_id, actor_id, role, action, note, at)
VALUES ($1, $2, $3, $4, $5, $6, $7)`, d.Module, d.RefID, d.ActorID, string(d.Role), string(d.Action), d.Note, d.At)
	if err != nil {
		return fmt.Errorf("workflow: record decision: %w", err)
	}
	return nil
}

// History reads the approval log.
type History struct {
	pool *pgxpool.Pool
}

// NewHistory constructs History.
func NewHistory(pool *pgxpool.Pool) *History {
	return &History{pool: pool}
}

// List returns decisions for one document, oldest first.
func (h *History) List(ctx context.Context, kind Kind, ref uuid.UUID) ([]Decision, error) {
	rows, err := h.pool.Query(ctx, `SELECT id, module, ref_id, actor_id, role, action, note, at
FROM approvals WHERE module=$1 AND ref_id=$2 ORDER BY at ASC, id ASC`, kind.Name, ref)
	if err != nil {
		return nil, fmt.Errorf("workflow: list decisions: %w", err)
	}
	defer rows.Close()
	var decisions []Decision
	for rows.Next() {
		var d Decision
		var role, action string
		if err := rows.Scan(&d.ID, &d.Module, &d.RefID, &d.ActorID, &role, &action, &d.Note, &d.At); err != nil {
			return nil, err
		}
		d.Role = shared.Role(role)
		d.Action = Status(action)
		decisions = append(decisions, d)
	}
	return decisions, rows.Err()
}
