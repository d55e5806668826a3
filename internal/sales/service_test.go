package sales_test

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/aquaflow/portal/internal/customers"
	"github.com/aquaflow/portal/internal/customers/customerstest"
	"github.com/aquaflow/portal/internal/inventory"
	"github.com/aquaflow/portal/internal/inventory/inventorytest"
	"github.com/aquaflow/portal/internal/sales"
	"github.com/aquaflow/portal/internal/sales/salestest"
	"github.com/aquaflow/portal/internal/shared"
	"github.com/aquaflow/portal/internal/testing/memtx"
	"github.com/aquaflow/portal/internal/workflow"
	"github.com/aquaflow/portal/internal/workflow/workflowtest"
)

type memoryTx struct {
	inventory.StockTx
	workflow.Guard
	sales.Writer
}

type memoryRepo struct {
	stock  *inventorytest.Store
	guard  *workflowtest.Guard
	sales  *salestest.Store
	runner *memtx.Runner
}

func newMemoryRepo() *memoryRepo {
	stock := inventorytest.NewStore()
	guard := workflowtest.NewGuard()
	store := salestest.NewStore(guard)
	return &memoryRepo{stock: stock, guard: guard, sales: store, runner: memtx.NewRunner(stock, guard, store)}
}

func (r *memoryRepo) WithTx(ctx context.Context, fn func(context.Context, sales.TxRepository) error) error {
	return r.runner.Run(func() error {
		return fn(ctx, memoryTx{StockTx: r.stock, Guard: r.guard, Writer: r.sales})
	})
}

func (r *memoryRepo) GetSale(ctx context.Context, id uuid.UUID) (sale sales.Sale, err error) {
	r.runner.Read(func() { sale, err = r.sales.GetSale(ctx, id) })
	return sale, err
}

func (r *memoryRepo) ListSales(ctx context.Context, filter sales.ListFilter) (list []sales.Sale, err error) {
	r.runner.Read(func() { list, err = r.sales.ListSales(ctx, filter) })
	return list, err
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

type fixture struct {
	repo      *memoryRepo
	customers *customerstest.Store
	svc       *sales.Service
}

func newFixture() fixture {
	repo := newMemoryRepo()
	custStore := customerstest.NewStore()
	svc := sales.NewService(repo, customers.NewService(custStore, nil), workflow.NewMachine(nil, nil), inventory.NewEngine(), nil)
	return fixture{repo: repo, customers: custStore, svc: svc}
}

func (f fixture) sale(t *testing.T, lines ...sales.ItemInput) sales.Sale {
	t.Helper()
	sale, err := f.svc.CreateSale(context.Background(), clerk, sales.CreateInput{Items: lines})
	require.NoError(t, err)
	return sale
}

func approve() sales.TransitionInput {
	return sales.TransitionInput{Target: workflow.StatusApproved}
}

func TestCreateSaleLeavesStockUntouched(t *testing.T) {
	f := newFixture()
	pump := f.repo.stock.AddProduct("Booster pump", 0, 10)

	sale, err := f.svc.CreateSale(context.Background(), admin, sales.CreateInput{
		Customer: &customers.ResolveInput{Name: "Mama Njeri", Phone: "0722 000 111"},
		Items: []sales.ItemInput{
			{ProductID: pump, Quantity: qty("2"), UnitPrice: qty("4500")},
			{ProductID: pump, Quantity: qty("0.5"), UnitPrice: qty("99.999")},
		},
	})
	require.NoError(t, err)
	require.Equal(t, workflow.StatusPending, sale.Status)
	require.NotNil(t, sale.CustomerID)
	require.Equal(t, 1, f.customers.Len())
	require.True(t, qty("9050").Equal(sale.Total), sale.Total.String())
	require.True(t, qty("10").Equal(f.repo.stock.Quantity(pump, inventory.LocationUtawala)))
	require.Empty(t, f.repo.stock.Movements())
}

func TestCreateSaleValidation(t *testing.T) {
	f := newFixture()
	pump := f.repo.stock.AddProduct("Booster pump", 0, 10)
	ctx := context.Background()

	_, err := f.svc.CreateSale(ctx, shared.Actor{}, sales.CreateInput{Items: []sales.ItemInput{{ProductID: pump, Quantity: qty("1")}}})
	require.ErrorIs(t, err, shared.ErrUnauthorized)

	_, err = f.svc.CreateSale(ctx, staff, sales.CreateInput{Items: []sales.ItemInput{{ProductID: pump, Quantity: qty("1")}}})
	require.ErrorIs(t, err, shared.ErrForbidden)

	_, err = f.svc.CreateSale(ctx, clerk, sales.CreateInput{})
	require.ErrorIs(t, err, shared.ErrValidation)

	_, err = f.svc.CreateSale(ctx, clerk, sales.CreateInput{Items: []sales.ItemInput{{ProductID: pump, Quantity: qty("0")}}})
	require.ErrorIs(t, err, shared.ErrValidation)

	_, err = f.svc.CreateSale(ctx, clerk, sales.CreateInput{Items: []sales.ItemInput{{ProductID: pump, Quantity: qty("1"), UnitPrice: qty("-1")}}})
	require.ErrorIs(t, err, shared.ErrValidation)
}

func TestApproveSaleDeductsSalesLocation(t *testing.T) {
	f := newFixture()
	ctx := context.Background()
	membrane := f.repo.stock.AddProduct("Membrane", 50, 10)
	sale := f.sale(t, sales.ItemInput{ProductID: membrane, Quantity: qty("3"), UnitPrice: qty("2500")})

	approved, err := f.svc.TransitionSale(ctx, accountant, sale.ID, approve())
	require.NoError(t, err)
	require.Equal(t, workflow.StatusApproved, approved.Status)
	require.NotNil(t, approved.ApprovedBy)
	require.Equal(t, accountant.ID, *approved.ApprovedBy)

	require.True(t, qty("7").Equal(f.repo.stock.Quantity(membrane, inventory.LocationUtawala)))
	require.True(t, qty("50").Equal(f.repo.stock.Quantity(membrane, inventory.LocationKamulu)))
	movements := f.repo.stock.Movements()
	require.Len(t, movements, 1)
	require.Equal(t, inventory.MovementSale, movements[0].Type)
	require.Equal(t, sale.ID, movements[0].RefID)
	require.True(t, qty("-3").Equal(movements[0].QuantityDelta))
	require.True(t, qty("7").Equal(movements[0].BalanceAfter))
}

func TestShortageLeavesSalePendingUntilRevised(t *testing.T) {
	f := newFixture()
	ctx := context.Background()
	cartridge := f.repo.stock.AddProduct("Cartridge", 100, 10)
	sale := f.sale(t, sales.ItemInput{ProductID: cartridge, Quantity: qty("12"), UnitPrice: qty("300")})

	_, err := f.svc.TransitionSale(ctx, admin, sale.ID, approve())
	require.ErrorIs(t, err, shared.ErrInsufficientStock)
	require.Equal(t, shared.KindInsufficientStock, shared.KindOf(err))
	var shortage *inventory.ShortageError
	require.True(t, errors.As(err, &shortage))
	require.Equal(t, cartridge, shortage.ProductID)
	require.True(t, qty("12").Equal(shortage.Requested))
	require.True(t, qty("10").Equal(shortage.Available))

	stored, err := f.svc.GetSale(ctx, sale.ID)
	require.NoError(t, err)
	require.Equal(t, workflow.StatusPending, stored.Status)
	require.True(t, qty("10").Equal(f.repo.stock.Quantity(cartridge, inventory.LocationUtawala)))
	require.Empty(t, f.repo.stock.Movements())
	require.Empty(t, f.repo.guard.Decisions())

	revised, err := f.svc.ReviseSale(ctx, clerk, sale.ID, []sales.ItemInput{{ProductID: cartridge, Quantity: qty("4"), UnitPrice: qty("300")}})
	require.NoError(t, err)
	require.True(t, qty("1200").Equal(revised.Total))

	_, err = f.svc.TransitionSale(ctx, admin, sale.ID, approve())
	require.NoError(t, err)
	require.True(t, qty("6").Equal(f.repo.stock.Quantity(cartridge, inventory.LocationUtawala)))
	require.True(t, qty("100").Equal(f.repo.stock.Quantity(cartridge, inventory.LocationKamulu)))
}

func TestMultiLineSaleIsAllOrNothing(t *testing.T) {
	f := newFixture()
	ctx := context.Background()
	resin := f.repo.stock.AddProduct("Resin", 0, 20)
	valve := f.repo.stock.AddProduct("Valve", 0, 1)
	sale := f.sale(t,
		sales.ItemInput{ProductID: resin, Quantity: qty("5"), UnitPrice: qty("10")},
		sales.ItemInput{ProductID: valve, Quantity: qty("2"), UnitPrice: qty("10")},
	)

	_, err := f.svc.TransitionSale(ctx, admin, sale.ID, approve())
	require.ErrorIs(t, err, shared.ErrInsufficientStock)
	require.True(t, qty("20").Equal(f.repo.stock.Quantity(resin, inventory.LocationUtawala)))
	require.True(t, qty("1").Equal(f.repo.stock.Quantity(valve, inventory.LocationUtawala)))
}

func TestRejectedSaleCannotBeApproved(t *testing.T) {
	f := newFixture()
	ctx := context.Background()
	tank := f.repo.stock.AddProduct("Tank", 0, 5)
	sale := f.sale(t, sales.ItemInput{ProductID: tank, Quantity: qty("1"), UnitPrice: qty("1")})

	rejected, err := f.svc.TransitionSale(ctx, accountant, sale.ID, sales.TransitionInput{Target: workflow.StatusRejected, Note: "wrong branch"})
	require.NoError(t, err)
	require.Equal(t, workflow.StatusRejected, rejected.Status)

	_, err = f.svc.TransitionSale(ctx, admin, sale.ID, approve())
	require.ErrorIs(t, err, shared.ErrInvalidTransition)
	require.True(t, qty("5").Equal(f.repo.stock.Quantity(tank, inventory.LocationUtawala)))

	_, err = f.svc.ReviseSale(ctx, clerk, sale.ID, []sales.ItemInput{{ProductID: tank, Quantity: qty("1")}})
	require.ErrorIs(t, err, shared.ErrInvalidTransition)
}

func TestTransitionSaleRoles(t *testing.T) {
	f := newFixture()
	ctx := context.Background()
	tank := f.repo.stock.AddProduct("Tank", 0, 5)
	sale := f.sale(t, sales.ItemInput{ProductID: tank, Quantity: qty("1"), UnitPrice: qty("1")})

	_, err := f.svc.TransitionSale(ctx, clerk, sale.ID, approve())
	require.ErrorIs(t, err, shared.ErrForbidden)
	_, err = f.svc.TransitionSale(ctx, staff, sale.ID, approve())
	require.ErrorIs(t, err, shared.ErrForbidden)
	_, err = f.svc.TransitionSale(ctx, shared.Actor{}, sale.ID, approve())
	require.ErrorIs(t, err, shared.ErrUnauthorized)
	_, err = f.svc.TransitionSale(ctx, admin, uuid.New(), approve())
	require.ErrorIs(t, err, shared.ErrNotFound)

	stored, err := f.svc.GetSale(ctx, sale.ID)
	require.NoError(t, err)
	require.Equal(t, workflow.StatusPending, stored.Status)
}

func TestReviseSaleRoles(t *testing.T) {
	f := newFixture()
	ctx := context.Background()
	tank := f.repo.stock.AddProduct("Tank", 0, 5)
	sale := f.sale(t, sales.ItemInput{ProductID: tank, Quantity: qty("1"), UnitPrice: qty("1")})
	items := []sales.ItemInput{{ProductID: tank, Quantity: qty("3"), UnitPrice: qty("1")}}

	_, err := f.svc.ReviseSale(ctx, accountant, sale.ID, items)
	require.ErrorIs(t, err, shared.ErrForbidden)
	_, err = f.svc.ReviseSale(ctx, staff, sale.ID, items)
	require.ErrorIs(t, err, shared.ErrForbidden)
	_, err = f.svc.ReviseSale(ctx, shared.Actor{}, sale.ID, items)
	require.ErrorIs(t, err, shared.ErrUnauthorized)

	stored, err := f.svc.GetSale(ctx, sale.ID)
	require.NoError(t, err)
	require.True(t, qty("1").Equal(stored.Total))

	revised, err := f.svc.ReviseSale(ctx, admin, sale.ID, items)
	require.NoError(t, err)
	require.True(t, qty("3").Equal(revised.Total))
}

func TestConcurrentApprovalDeductsOnce(t *testing.T) {
	f := newFixture()
	filter := f.repo.stock.AddProduct("Sediment filter", 0, 10)
	sale := f.sale(t, sales.ItemInput{ProductID: filter, Quantity: qty("3"), UnitPrice: qty("150")})

	errs := make([]error, 2)
	var wg sync.WaitGroup
	for i, actor := range []shared.Actor{admin, accountant} {
		wg.Add(1)
		go func(i int, actor shared.Actor) {
			defer wg.Done()
			_, errs[i] = f.svc.TransitionSale(context.Background(), actor, sale.ID, approve())
		}(i, actor)
	}
	wg.Wait()

	var ok, invalid int
	for _, err := range errs {
		if err == nil {
			ok++
		} else if errors.Is(err, shared.ErrInvalidTransition) {
			invalid++
		}
	}
	require.Equal(t, 1, ok)
	require.Equal(t, 1, invalid)
	require.True(t, qty("7").Equal(f.repo.stock.Quantity(filter, inventory.LocationUtawala)))
	require.Len(t, f.repo.stock.Movements(), 1)
}

func TestListSalesFiltersByStatus(t *testing.T) {
	f := newFixture()
	ctx := context.Background()
	tank := f.repo.stock.AddProduct("Tank", 0, 5)
	first := f.sale(t, sales.ItemInput{ProductID: tank, Quantity: qty("1"), UnitPrice: qty("1")})
	f.sale(t, sales.ItemInput{ProductID: tank, Quantity: qty("1"), UnitPrice: qty("1")})
	_, err := f.svc.TransitionSale(ctx, admin, first.ID, approve())
	require.NoError(t, err)

	pending, err := f.svc.ListSales(ctx, sales.ListFilter{Status: workflow.StatusPending})
	require.NoError(t, err)
	require.Len(t, pending, 1)

	approved, err := f.svc.ListSales(ctx, sales.ListFilter{Status: workflow.StatusApproved})
	require.NoError(t, err)
	require.Len(t, approved, 1)
	require.Equal(t, first.ID, approved[0].ID)

	_, err = f.svc.ListSales(ctx, sales.ListFilter{Status: workflow.StatusCompleted})
	require.ErrorIs(t, err, shared.ErrValidation)
}
