package workflow_test

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"github.com/aquaflow/portal/internal/shared"
	"github.com/aquaflow/portal/internal/testing/memtx"
	"github.com/aquaflow/portal/internal/workflow"
	"github.com/aquaflow/portal/internal/workflow/workflowtest"
)

type countingObserver struct {
	mu       sync.Mutex
	outcomes map[string]int
}

func (o *countingObserver) ObserveTransition(kind, target, outcome string) {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.outcomes == nil {
		o.outcomes = map[string]int{}
	}
	o.outcomes[kind+"/"+target+"/"+outcome]++
}

func actor(role shared.Role) shared.Actor {
	return shared.Actor{ID: uuid.New(), Role: role}
}

func TestApplyRunsEffectAndRecordsDecision(t *testing.T) {
	guard := workflowtest.NewGuard()
	id := uuid.New()
	guard.Put(workflow.KindSale, id)
	m := workflow.NewMachine(nil, nil)
	approver := actor(shared.RoleAccountant)

	ran := false
	err := m.Apply(context.Background(), guard, workflow.Request{
		Kind: workflow.KindSale, ID: id, Target: workflow.StatusApproved, Actor: approver, Note: "ok",
	}, func(context.Context) error {
		ran = true
		return nil
	})
	require.NoError(t, err)
	require.True(t, ran)

	rec, ok := guard.Get(workflow.KindSale, id)
	require.True(t, ok)
	require.Equal(t, workflow.StatusApproved, rec.Status)
	require.Equal(t, approver.ID, rec.ApprovedBy)
	require.False(t, rec.ApprovedAt.IsZero())

	decisions := guard.Decisions()
	require.Len(t, decisions, 1)
	require.Equal(t, "sale", decisions[0].Module)
	require.Equal(t, workflow.StatusApproved, decisions[0].Action)
	require.Equal(t, shared.RoleAccountant, decisions[0].Role)
}

func TestApplyRejectSkipsEffect(t *testing.T) {
	guard := workflowtest.NewGuard()
	id := uuid.New()
	guard.Put(workflow.KindPurchaseOrder, id)
	m := workflow.NewMachine(nil, nil)

	err := m.Apply(context.Background(), guard, workflow.Request{
		Kind: workflow.KindPurchaseOrder, ID: id, Target: workflow.StatusRejected, Actor: actor(shared.RoleAdmin),
	}, func(context.Context) error {
		t.Fatal("effect must not run on rejection")
		return nil
	})
	require.NoError(t, err)
	rec, _ := guard.Get(workflow.KindPurchaseOrder, id)
	require.Equal(t, workflow.StatusRejected, rec.Status)
}

func TestApplyAuthorization(t *testing.T) {
	cases := []struct {
		name   string
		kind   workflow.Kind
		target workflow.Status
		role   shared.Role
		want   error
	}{
		{"staff cannot approve sale", workflow.KindSale, workflow.StatusApproved, shared.RoleStaff, shared.ErrForbidden},
		{"accountant cannot approve lpo", workflow.KindPurchaseOrder, workflow.StatusApproved, shared.RoleAccountant, shared.ErrForbidden},
		{"admin cannot complete transfer", workflow.KindTransfer, workflow.StatusCompleted, shared.RoleAdmin, shared.ErrForbidden},
		{"clerk cannot approve request", workflow.KindDeductionRequest, workflow.StatusApproved, shared.RoleClerk, shared.ErrForbidden},
		{"sale has no completed state", workflow.KindSale, workflow.StatusCompleted, shared.RoleAdmin, shared.ErrValidation},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			guard := workflowtest.NewGuard()
			id := uuid.New()
			guard.Put(tc.kind, id)
			err := workflow.NewMachine(nil, nil).Apply(context.Background(), guard, workflow.Request{
				Kind: tc.kind, ID: id, Target: tc.target, Actor: actor(tc.role),
			}, nil)
			require.ErrorIs(t, err, tc.want)
			rec, _ := guard.Get(tc.kind, id)
			require.Equal(t, workflow.StatusPending, rec.Status)
		})
	}
}

func TestApplyAnonymousIsUnauthorized(t *testing.T) {
	guard := workflowtest.NewGuard()
	id := uuid.New()
	guard.Put(workflow.KindSale, id)
	err := workflow.NewMachine(nil, nil).Apply(context.Background(), guard, workflow.Request{
		Kind: workflow.KindSale, ID: id, Target: workflow.StatusApproved,
	}, nil)
	require.ErrorIs(t, err, shared.ErrUnauthorized)
}

func TestApplyTerminalDocumentIsInvalidTransition(t *testing.T) {
	guard := workflowtest.NewGuard()
	id := uuid.New()
	guard.Put(workflow.KindTransfer, id)
	m := workflow.NewMachine(nil, nil)
	clerk := actor(shared.RoleClerk)
	req := workflow.Request{Kind: workflow.KindTransfer, ID: id, Target: workflow.StatusCancelled, Actor: clerk}

	require.NoError(t, m.Apply(context.Background(), guard, req, nil))
	req.Target = workflow.StatusCompleted
	err := m.Apply(context.Background(), guard, req, func(context.Context) error {
		t.Fatal("effect must not run on a terminal document")
		return nil
	})
	require.ErrorIs(t, err, shared.ErrInvalidTransition)
	rec, _ := guard.Get(workflow.KindTransfer, id)
	require.Equal(t, workflow.StatusCancelled, rec.Status)
}

func TestApplyMissingDocument(t *testing.T) {
	err := workflow.NewMachine(nil, nil).Apply(context.Background(), workflowtest.NewGuard(), workflow.Request{
		Kind: workflow.KindSale, ID: uuid.New(), Target: workflow.StatusApproved, Actor: actor(shared.RoleAdmin),
	}, nil)
	require.ErrorIs(t, err, shared.ErrNotFound)
}

func TestApplyEffectFailureLeavesPending(t *testing.T) {
	guard := workflowtest.NewGuard()
	id := uuid.New()
	guard.Put(workflow.KindSale, id)
	runner := memtx.NewRunner(guard)
	boom := errors.New("boom")

	err := runner.Run(func() error {
		return workflow.NewMachine(nil, nil).Apply(context.Background(), guard, workflow.Request{
			Kind: workflow.KindSale, ID: id, Target: workflow.StatusApproved, Actor: actor(shared.RoleAdmin),
		}, func(context.Context) error { return boom })
	})
	require.ErrorIs(t, err, boom)
	rec, _ := guard.Get(workflow.KindSale, id)
	require.Equal(t, workflow.StatusPending, rec.Status)
	require.Empty(t, guard.Decisions())
}

func TestConcurrentApprovalsSucceedOnce(t *testing.T) {
	guard := workflowtest.NewGuard()
	id := uuid.New()
	guard.Put(workflow.KindDeductionRequest, id)
	runner := memtx.NewRunner(guard)
	observer := &countingObserver{}
	m := workflow.NewMachine(nil, observer)

	var effects int
	errs := make([]error, 8)
	var wg sync.WaitGroup
	for i := range errs {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			req := workflow.Request{
				Kind: workflow.KindDeductionRequest, ID: id, Target: workflow.StatusApproved, Actor: actor(shared.RoleAdmin),
			}
			errs[i] = runner.Run(func() error {
				return m.Apply(context.Background(), guard, req, func(context.Context) error {
					effects++
					return nil
				})
			})
			m.Observe(req, errs[i])
		}(i)
	}
	wg.Wait()

	var ok, invalid int
	for _, err := range errs {
		switch {
		case err == nil:
			ok++
		case errors.Is(err, shared.ErrInvalidTransition):
			invalid++
		}
	}
	require.Equal(t, 1, ok)
	require.Equal(t, len(errs)-1, invalid)
	require.Equal(t, 1, effects)
	require.Len(t, guard.Decisions(), 1)
	require.Equal(t, 1, observer.outcomes["deduction_request/approved/ok"])
	require.Equal(t, len(errs)-1, observer.outcomes["deduction_request/approved/invalid_transition"])
}
