package workflow_test

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/stretchr/testify/require"

	"github.com/aquaflow/portal/internal/platform/db"
	"github.com/aquaflow/portal/internal/shared"
	"github.com/aquaflow/portal/internal/testing/pgtest"
	"github.com/aquaflow/portal/internal/workflow"
)

func TestPostgresSetStatusOnlyMovesPending(t *testing.T) {
	pool := pgtest.Pool(t)
	ctx := context.Background()
	saleID := uuid.New()
	_, err := pool.Exec(ctx, `INSERT INTO sales (id, number, created_by) VALUES ($1, $2, $3)`,
		saleID, "SO-PG-"+saleID.String()[:8], uuid.New())
	require.NoError(t, err)

	approver := uuid.New()
	err = db.WithTx(ctx, pool, func(tx pgx.Tx) error {
		guard := workflow.NewGuard(tx)
		status, err := guard.LockStatus(ctx, workflow.KindSale, saleID)
		require.NoError(t, err)
		require.Equal(t, workflow.StatusPending, status)

		ok, err := guard.SetStatus(ctx, workflow.KindSale, saleID, workflow.StatusApproved, approver, time.Now().UTC())
		require.NoError(t, err)
		require.True(t, ok)

		ok, err = guard.SetStatus(ctx, workflow.KindSale, saleID, workflow.StatusRejected, approver, time.Now().UTC())
		require.NoError(t, err)
		require.False(t, ok)
		return nil
	})
	require.NoError(t, err)

	var status string
	require.NoError(t, pool.QueryRow(ctx, `SELECT status FROM sales WHERE id=$1`, saleID).Scan(&status))
	require.Equal(t, string(workflow.StatusApproved), status)

	// A second decision on the committed row is refused by the machine.
	machine := workflow.NewMachine(nil, nil)
	admin := shared.Actor{ID: approver, Role: shared.RoleAdmin}
	err = db.WithTx(ctx, pool, func(tx pgx.Tx) error {
		return machine.Apply(ctx, workflow.NewGuard(tx), workflow.Request{
			Kind: workflow.KindSale, ID: saleID, Target: workflow.StatusRejected, Actor: admin,
		}, nil)
	})
	require.ErrorIs(t, err, shared.ErrInvalidTransition)

	err = db.WithTx(ctx, pool, func(tx pgx.Tx) error {
		_, err := workflow.NewGuard(tx).LockStatus(ctx, workflow.KindSale, uuid.New())
		return err
	})
	require.ErrorIs(t, err, shared.ErrNotFound)
}
