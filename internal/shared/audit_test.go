package shared

import (
	"context"
	"errors"
	"testing"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/require"
)

type execSpy struct {
	args []any
	err  error
}

func (e *execSpy) Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error) {
	e.args = args
	return pgconn.NewCommandTag("INSERT 0 1"), e.err
}

func TestAuditRecordWritesRole(t *testing.T) {
	spy := &execSpy{}
	actor := uuid.New()
	err := NewAuditLogger(spy).Record(context.Background(), AuditLog{
		ActorID: actor, Role: RoleAdmin, Action: "stock.adjust", Entity: "inventory", EntityID: "p1",
	})
	require.NoError(t, err)
	require.Equal(t, actor, spy.args[0])
	require.Equal(t, "admin", spy.args[1])
	require.JSONEq(t, `{}`, string(spy.args[5].([]byte)))
	require.Nil(t, spy.args[6])
}

func TestAuditRecordValidatesAndWrapsStorage(t *testing.T) {
	spy := &execSpy{err: errors.New("conn reset")}
	logger := NewAuditLogger(spy)

	err := logger.Record(context.Background(), AuditLog{Action: "x"})
	require.ErrorIs(t, err, ErrValidation)

	err = logger.Record(context.Background(), AuditLog{Action: "x", Entity: "inventory", EntityID: "p1"})
	require.ErrorIs(t, err, ErrStorage)
}
