package procurement_test

import (
	"context"
	"fmt"
	"maps"
	"testing"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/aquaflow/portal/internal/inventory"
	"github.com/aquaflow/portal/internal/inventory/inventorytest"
	"github.com/aquaflow/portal/internal/procurement"
	"github.com/aquaflow/portal/internal/shared"
	"github.com/aquaflow/portal/internal/testing/memtx"
	"github.com/aquaflow/portal/internal/workflow"
	"github.com/aquaflow/portal/internal/workflow/workflowtest"
)

type poStore struct {
	orders map[uuid.UUID]procurement.PurchaseOrder
}

func (s *poStore) Snapshot() func() {
	saved := maps.Clone(s.orders)
	return func() { s.orders = saved }
}

type memoryTx struct {
	inventory.StockTx
	workflow.Guard
	guard *workflowtest.Guard
	store *poStore
}

func (tx memoryTx) InsertPurchaseOrder(ctx context.Context, po procurement.PurchaseOrder) error {
	tx.store.orders[po.ID] = po
	tx.guard.Put(workflow.KindPurchaseOrder, po.ID)
	return nil
}

func (tx memoryTx) LoadPurchaseOrder(ctx context.Context, id uuid.UUID) (procurement.PurchaseOrder, error) {
	po, ok := tx.store.orders[id]
	if !ok {
		return procurement.PurchaseOrder{}, fmt.Errorf("%w: purchase order %s", shared.ErrNotFound, id)
	}
	return po, nil
}

type memoryRepo struct {
	stock  *inventorytest.Store
	guard  *workflowtest.Guard
	store  *poStore
	runner *memtx.Runner
}

func newMemoryRepo() *memoryRepo {
	stock := inventorytest.NewStore()
	guard := workflowtest.NewGuard()
	store := &poStore{orders: make(map[uuid.UUID]procurement.PurchaseOrder)}
	return &memoryRepo{stock: stock, guard: guard, store: store, runner: memtx.NewRunner(stock, guard, store)}
}

func (r *memoryRepo) WithTx(ctx context.Context, fn func(context.Context, procurement.TxRepository) error) error {
	return r.runner.Run(func() error {
		return fn(ctx, memoryTx{StockTx: r.stock, Guard: r.guard, guard: r.guard, store: r.store})
	})
}

func (r *memoryRepo) GetPurchaseOrder(ctx context.Context, id uuid.UUID) (po procurement.PurchaseOrder, err error) {
	r.runner.Read(func() {
		var ok bool
		if po, ok = r.store.orders[id]; !ok {
			err = fmt.Errorf("%w: purchase order %s", shared.ErrNotFound, id)
			return
		}
		rec, _ := r.guard.Get(workflow.KindPurchaseOrder, id)
		po.Status = rec.Status
		if rec.ApprovedBy != uuid.Nil {
			by, at := rec.ApprovedBy, rec.ApprovedAt
			po.ApprovedBy, po.ApprovedAt = &by, &at
		}
	})
	return po, err
}

func (r *memoryRepo) ListPurchaseOrders(ctx context.Context, filter procurement.ListFilter) ([]procurement.PurchaseOrder, error) {
	var out []procurement.PurchaseOrder
	for id := range r.store.orders {
		po, err := r.GetPurchaseOrder(ctx, id)
		if err != nil {
			return nil, err
		}
		if filter.Status != "" && po.Status != filter.Status {
			continue
		}
		out = append(out, po)
	}
	return out, nil
}

type notifierSpy struct {
	events []procurement.ReceivedEvent
}

func (n *notifierSpy) PurchaseOrderReceived(ctx context.Context, evt procurement.ReceivedEvent) error {
	n.events = append(n.events, evt)
	return nil
}

var (
	admin      = shared.Actor{ID: uuid.New(), Role: shared.RoleAdmin}
	accountant = shared.Actor{ID: uuid.New(), Role: shared.RoleAccountant}
	clerk      = shared.Actor{ID: uuid.New(), Role: shared.RoleClerk}
	staff      = shared.Actor{ID: uuid.New(), Role: shared.RoleStaff}
)

func qty(v string) decimal.Decimal {
	return decimal.RequireFromString(v)
}

func newService(repo *memoryRepo, notifier procurement.Notifier) *procurement.Service {
	return procurement.NewService(repo, workflow.NewMachine(nil, nil), inventory.NewEngine(), notifier, nil)
}

func lpo(product uuid.UUID, loc inventory.Location, quantity string) procurement.CreateInput {
	return procurement.CreateInput{
		Supplier:       procurement.Supplier{Name: "Davis & Shirtliff", Email: "Orders@Example.com"},
		TargetLocation: loc,
		Items:          []procurement.LineInput{{ProductID: product, Quantity: qty(quantity), UnitPrice: qty("1200")}},
	}
}

func TestApprovePurchaseOrderReceivesAtTarget(t *testing.T) {
	repo := newMemoryRepo()
	notifier := &notifierSpy{}
	svc := newService(repo, notifier)
	ctx := context.Background()
	membrane := repo.stock.AddProduct("Membrane", 4, 1)

	po, err := svc.CreatePurchaseOrder(ctx, clerk, lpo(membrane, inventory.LocationKamulu, "25"))
	require.NoError(t, err)
	require.Equal(t, workflow.StatusPending, po.Status)
	require.Equal(t, "orders@example.com", po.Supplier.Email)
	require.True(t, qty("30000").Equal(po.Total))
	require.True(t, qty("4").Equal(repo.stock.Quantity(membrane, inventory.LocationKamulu)))

	approved, err := svc.TransitionPurchaseOrder(ctx, admin, po.ID, procurement.TransitionInput{Target: workflow.StatusApproved})
	require.NoError(t, err)
	require.Equal(t, workflow.StatusApproved, approved.Status)
	require.True(t, qty("29").Equal(repo.stock.Quantity(membrane, inventory.LocationKamulu)))
	require.True(t, qty("1").Equal(repo.stock.Quantity(membrane, inventory.LocationUtawala)))

	movements := repo.stock.Movements()
	require.Len(t, movements, 1)
	require.Equal(t, inventory.MovementPurchase, movements[0].Type)
	require.Equal(t, inventory.LocationKamulu, movements[0].Location)
	require.True(t, qty("25").Equal(movements[0].QuantityDelta))

	require.Len(t, notifier.events, 1)
	require.Equal(t, po.Number, notifier.events[0].Number)
	require.Equal(t, admin.ID, notifier.events[0].ApprovedBy)
}

func TestRejectPurchaseOrderLeavesStock(t *testing.T) {
	repo := newMemoryRepo()
	notifier := &notifierSpy{}
	svc := newService(repo, notifier)
	ctx := context.Background()
	salt := repo.stock.AddProduct("Salt", 0, 7)

	po, err := svc.CreatePurchaseOrder(ctx, admin, lpo(salt, inventory.LocationUtawala, "10"))
	require.NoError(t, err)

	rejected, err := svc.TransitionPurchaseOrder(ctx, admin, po.ID, procurement.TransitionInput{Target: workflow.StatusRejected, Note: "price too high"})
	require.NoError(t, err)
	require.Equal(t, workflow.StatusRejected, rejected.Status)
	require.True(t, qty("7").Equal(repo.stock.Quantity(salt, inventory.LocationUtawala)))
	require.Empty(t, repo.stock.Movements())
	require.Empty(t, notifier.events)

	_, err = svc.TransitionPurchaseOrder(ctx, admin, po.ID, procurement.TransitionInput{Target: workflow.StatusApproved})
	require.ErrorIs(t, err, shared.ErrInvalidTransition)
	require.True(t, qty("7").Equal(repo.stock.Quantity(salt, inventory.LocationUtawala)))
}

func TestPurchaseOrderRoles(t *testing.T) {
	repo := newMemoryRepo()
	svc := newService(repo, nil)
	ctx := context.Background()
	salt := repo.stock.AddProduct("Salt", 0, 0)

	_, err := svc.CreatePurchaseOrder(ctx, staff, lpo(salt, inventory.LocationUtawala, "1"))
	require.ErrorIs(t, err, shared.ErrForbidden)

	po, err := svc.CreatePurchaseOrder(ctx, clerk, lpo(salt, inventory.LocationUtawala, "1"))
	require.NoError(t, err)

	for _, actor := range []shared.Actor{accountant, clerk, staff} {
		_, err = svc.TransitionPurchaseOrder(ctx, actor, po.ID, procurement.TransitionInput{Target: workflow.StatusApproved})
		require.ErrorIs(t, err, shared.ErrForbidden, actor.Role)
	}
	stored, err := svc.GetPurchaseOrder(ctx, po.ID)
	require.NoError(t, err)
	require.Equal(t, workflow.StatusPending, stored.Status)
	require.True(t, repo.stock.Quantity(salt, inventory.LocationUtawala).IsZero())
}

func TestCreatePurchaseOrderValidation(t *testing.T) {
	repo := newMemoryRepo()
	svc := newService(repo, nil)
	ctx := context.Background()
	salt := repo.stock.AddProduct("Salt", 0, 0)

	in := lpo(salt, "nairobi", "1")
	_, err := svc.CreatePurchaseOrder(ctx, admin, in)
	require.ErrorIs(t, err, shared.ErrValidation)

	in = lpo(salt, inventory.LocationKamulu, "1")
	in.Supplier.Name = " "
	_, err = svc.CreatePurchaseOrder(ctx, admin, in)
	require.ErrorIs(t, err, shared.ErrValidation)

	_, err = svc.CreatePurchaseOrder(ctx, admin, lpo(salt, inventory.LocationKamulu, "-2"))
	require.ErrorIs(t, err, shared.ErrValidation)
}
