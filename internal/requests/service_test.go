package requests_test

import (
	"context"
	"fmt"
	"maps"
	"slices"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aquaflow/portal/internal/customers"
	"github.com/aquaflow/portal/internal/customers/customerstest"
	"github.com/aquaflow/portal/internal/inventory"
	"github.com/aquaflow/portal/internal/inventory/inventorytest"
	"github.com/aquaflow/portal/internal/requests"
	"github.com/aquaflow/portal/internal/sales"
	"github.com/aquaflow/portal/internal/sales/salestest"
	"github.com/aquaflow/portal/internal/shared"
	"github.com/aquaflow/portal/internal/testing/memtx"
	"github.com/aquaflow/portal/internal/workflow"
	"github.com/aquaflow/portal/internal/workflow/workflowtest"
)

type requestStore struct {
	guard *workflowtest.Guard
	docs  map[uuid.UUID]requests.DeductionRequest
}

func (s *requestStore) Snapshot() func() {
	saved := maps.Clone(s.docs)
	return func() { s.docs = saved }
}

func (s *requestStore) InsertRequest(ctx context.Context, d requests.DeductionRequest) error {
	d.Items = slices.Clone(d.Items)
	s.docs[d.ID] = d
	s.guard.Put(workflow.KindDeductionRequest, d.ID)
	return nil
}

func (s *requestStore) LoadRequest(ctx context.Context, id uuid.UUID) (requests.DeductionRequest, error) {
	d, ok := s.docs[id]
	if !ok {
		return requests.DeductionRequest{}, fmt.Errorf("%w: deduction request %s", shared.ErrNotFound, id)
	}
	if rec, ok := s.guard.Get(workflow.KindDeductionRequest, id); ok {
		d.Status = rec.Status
		if rec.ApprovedBy != uuid.Nil {
			by, at := rec.ApprovedBy, rec.ApprovedAt
			d.ApprovedBy, d.ApprovedAt = &by, &at
		}
	}
	d.Items = slices.Clone(d.Items)
	return d, nil
}

func (s *requestStore) SetRequestSale(ctx context.Context, id, saleID uuid.UUID, at time.Time) error {
	d, ok := s.docs[id]
	if !ok {
		return fmt.Errorf("%w: deduction request %s", shared.ErrNotFound, id)
	}
	d.SaleID = &saleID
	d.UpdatedAt = at
	s.docs[id] = d
	return nil
}

type memoryTx struct {
	inventory.StockTx
	workflow.Guard
	sales.Writer
	*requestStore
}

type memoryRepo struct {
	stock    *inventorytest.Store
	guard    *workflowtest.Guard
	sales    *salestest.Store
	requests *requestStore
	runner   *memtx.Runner
}

func newMemoryRepo() *memoryRepo {
	stock := inventorytest.NewStore()
	guard := workflowtest.NewGuard()
	saleStore := salestest.NewStore(guard)
	reqStore := &requestStore{guard: guard, docs: make(map[uuid.UUID]requests.DeductionRequest)}
	return &memoryRepo{
		stock:    stock,
		guard:    guard,
		sales:    saleStore,
		requests: reqStore,
		runner:   memtx.NewRunner(stock, guard, saleStore, reqStore),
	}
}

func (r *memoryRepo) WithTx(ctx context.Context, fn func(context.Context, requests.TxRepository) error) error {
	return r.runner.Run(func() error {
		return fn(ctx, memoryTx{StockTx: r.stock, Guard: r.guard, Writer: r.sales, requestStore: r.requests})
	})
}

func (r *memoryRepo) GetRequest(ctx context.Context, id uuid.UUID) (d requests.DeductionRequest, err error) {
	r.runner.Read(func() { d, err = r.requests.LoadRequest(ctx, id) })
	return d, err
}

func (r *memoryRepo) ListRequests(ctx context.Context, filter requests.ListFilter) (list []requests.DeductionRequest, err error) {
	r.runner.Read(func() {
		for id := range r.requests.docs {
			d, loadErr := r.requests.LoadRequest(ctx, id)
			if loadErr != nil {
				err = loadErr
				return
			}
			if filter.Status != "" && d.Status != filter.Status {
				continue
			}
			list = append(list, d)
		}
	})
	return list, err
}

var (
	admin = shared.Actor{ID: uuid.New(), Role: shared.RoleAdmin}
	clerk = shared.Actor{ID: uuid.New(), Role: shared.RoleClerk}
	staff = shared.Actor{ID: uuid.New(), Role: shared.RoleStaff}
)

func qty(v string) decimal.Decimal {
	return decimal.RequireFromString(v)
}

type fixture struct {
	repo      *memoryRepo
	customers *customerstest.Store
	svc       *requests.Service
	sales     *sales.Service
}

func newFixture() fixture {
	repo := newMemoryRepo()
	custStore := customerstest.NewStore()
	resolver := customers.NewService(custStore, nil)
	machine := workflow.NewMachine(nil, nil)
	engine := inventory.NewEngine()
	return fixture{
		repo:      repo,
		customers: custStore,
		svc:       requests.NewService(repo, resolver, machine, engine, nil),
		sales:     sales.NewService(salesRepo{repo}, resolver, machine, engine, nil),
	}
}

// salesRepo exposes the same memory state through the sales repository port.
type salesRepo struct{ r *memoryRepo }

func (s salesRepo) WithTx(ctx context.Context, fn func(context.Context, sales.TxRepository) error) error {
	return s.r.runner.Run(func() error {
		return fn(ctx, memoryTx{StockTx: s.r.stock, Guard: s.r.guard, Writer: s.r.sales, requestStore: s.r.requests})
	})
}

func (s salesRepo) GetSale(ctx context.Context, id uuid.UUID) (sale sales.Sale, err error) {
	s.r.runner.Read(func() { sale, err = s.r.sales.GetSale(ctx, id) })
	return sale, err
}

func (s salesRepo) ListSales(ctx context.Context, filter sales.ListFilter) (list []sales.Sale, err error) {
	s.r.runner.Read(func() { list, err = s.r.sales.ListSales(ctx, filter) })
	return list, err
}

func (f fixture) request(t *testing.T, items ...requests.Item) requests.DeductionRequest {
	t.Helper()
	d, err := f.svc.CreateRequest(context.Background(), staff, requests.CreateInput{Items: items})
	require.NoError(t, err)
	return d
}

func approve() requests.TransitionInput {
	return requests.TransitionInput{Target: workflow.StatusApproved}
}

func TestCreateRequestResolvesCustomer(t *testing.T) {
	f := newFixture()
	ctx := context.Background()
	filter := f.repo.stock.AddProduct("Filter", 0, 5)

	d, err := f.svc.CreateRequest(ctx, staff, requests.CreateInput{
		Items:    []requests.Item{{ProductID: filter, Quantity: qty("2")}},
		Customer: &customers.ResolveInput{Name: "Otieno", Phone: "+254 700 123 456"},
	})
	require.NoError(t, err)
	require.Equal(t, workflow.StatusPending, d.Status)
	require.NotNil(t, d.CustomerID)
	require.Equal(t, "+254700123456", d.CustomerPhone)

	again, err := f.svc.CreateRequest(ctx, clerk, requests.CreateInput{
		Items:    []requests.Item{{ProductID: filter, Quantity: qty("1")}},
		Customer: &customers.ResolveInput{Phone: "+254700123456"},
	})
	require.NoError(t, err)
	require.Equal(t, *d.CustomerID, *again.CustomerID)
	require.Equal(t, 1, f.customers.Len())
	require.True(t, qty("5").Equal(f.repo.stock.Quantity(filter, inventory.LocationUtawala)))
}

func TestCreateRequestValidation(t *testing.T) {
	f := newFixture()
	ctx := context.Background()
	filter := f.repo.stock.AddProduct("Filter", 0, 5)

	_, err := f.svc.CreateRequest(ctx, shared.Actor{}, requests.CreateInput{Items: []requests.Item{{ProductID: filter, Quantity: qty("1")}}})
	require.ErrorIs(t, err, shared.ErrUnauthorized)

	_, err = f.svc.CreateRequest(ctx, staff, requests.CreateInput{})
	require.ErrorIs(t, err, shared.ErrValidation)

	_, err = f.svc.CreateRequest(ctx, staff, requests.CreateInput{Items: []requests.Item{{ProductID: filter, Quantity: qty("-1")}}})
	require.ErrorIs(t, err, shared.ErrValidation)
}

func TestIndirectApprovalDeductsWithoutSale(t *testing.T) {
	f := newFixture()
	ctx := context.Background()
	filter := f.repo.stock.AddProduct("Filter", 7, 5)
	d := f.request(t, requests.Item{ProductID: filter, Quantity: qty("3")})

	got, err := f.svc.TransitionRequest(ctx, admin, d.ID, approve())
	require.NoError(t, err)
	require.Equal(t, workflow.StatusApproved, got.Status)
	require.Nil(t, got.SaleID)
	require.True(t, qty("2").Equal(f.repo.stock.Quantity(filter, inventory.LocationUtawala)))
	require.True(t, qty("7").Equal(f.repo.stock.Quantity(filter, inventory.LocationKamulu)))
	require.Zero(t, f.repo.sales.Len())

	moves := f.repo.stock.Movements()
	require.Len(t, moves, 1)
	require.Equal(t, inventory.MovementDeduction, moves[0].Type)
	require.Equal(t, d.ID, moves[0].RefID)
}

func TestIndirectApprovalWithPricesSpawnsSale(t *testing.T) {
	f := newFixture()
	ctx := context.Background()
	filter := f.repo.stock.AddProduct("Filter", 0, 5)
	tap := f.repo.stock.AddProduct("Tap", 0, 4)
	d := f.request(t,
		requests.Item{ProductID: filter, Quantity: qty("2")},
		requests.Item{ProductID: tap, Quantity: qty("1")},
	)

	in := approve()
	in.Prices = []requests.Price{
		{ProductID: filter, UnitPrice: qty("1200")},
		{ProductID: tap, UnitPrice: qty("350.50")},
	}
	got, err := f.svc.TransitionRequest(ctx, admin, d.ID, in)
	require.NoError(t, err)
	require.NotNil(t, got.SaleID)

	sale, ok := f.repo.sales.Sale(*got.SaleID)
	require.True(t, ok)
	require.Equal(t, workflow.StatusApproved, sale.Status)
	require.NotNil(t, sale.RequestID)
	require.Equal(t, d.ID, *sale.RequestID)
	require.True(t, qty("2750.5").Equal(sale.Total), sale.Total.String())
	require.True(t, qty("3").Equal(f.repo.stock.Quantity(filter, inventory.LocationUtawala)))
	require.True(t, qty("3").Equal(f.repo.stock.Quantity(tap, inventory.LocationUtawala)))
}

func TestIndirectApprovalRejectsPartialPrices(t *testing.T) {
	f := newFixture()
	ctx := context.Background()
	filter := f.repo.stock.AddProduct("Filter", 0, 5)
	tap := f.repo.stock.AddProduct("Tap", 0, 4)
	d := f.request(t,
		requests.Item{ProductID: filter, Quantity: qty("2")},
		requests.Item{ProductID: tap, Quantity: qty("1")},
	)

	in := approve()
	in.Prices = []requests.Price{{ProductID: filter, UnitPrice: qty("1200")}}
	_, err := f.svc.TransitionRequest(ctx, admin, d.ID, in)
	require.ErrorIs(t, err, shared.ErrValidation)

	got, err := f.svc.GetRequest(ctx, d.ID)
	require.NoError(t, err)
	require.Equal(t, workflow.StatusPending, got.Status)
	require.True(t, qty("5").Equal(f.repo.stock.Quantity(filter, inventory.LocationUtawala)))
	require.Empty(t, f.repo.stock.Movements())
}

func TestIndirectShortageLeavesRequestPending(t *testing.T) {
	f := newFixture()
	ctx := context.Background()
	filter := f.repo.stock.AddProduct("Filter", 0, 5)
	tap := f.repo.stock.AddProduct("Tap", 20, 1)
	d := f.request(t,
		requests.Item{ProductID: filter, Quantity: qty("2")},
		requests.Item{ProductID: tap, Quantity: qty("3")},
	)

	_, err := f.svc.TransitionRequest(ctx, admin, d.ID, approve())
	require.ErrorIs(t, err, shared.ErrInsufficientStock)
	var shortage *inventory.ShortageError
	require.ErrorAs(t, err, &shortage)
	require.Equal(t, tap, shortage.ProductID)

	got, err := f.svc.GetRequest(ctx, d.ID)
	require.NoError(t, err)
	require.Equal(t, workflow.StatusPending, got.Status)
	require.True(t, qty("5").Equal(f.repo.stock.Quantity(filter, inventory.LocationUtawala)))
	require.Empty(t, f.repo.stock.Movements())
}

func TestDirectApprovalLinksExistingSale(t *testing.T) {
	f := newFixture()
	ctx := context.Background()
	filter := f.repo.stock.AddProduct("Filter", 0, 5)
	sale, err := f.sales.CreateSale(ctx, clerk, sales.CreateInput{Items: []sales.ItemInput{{ProductID: filter, Quantity: qty("2"), UnitPrice: qty("1000")}}})
	require.NoError(t, err)
	d := f.request(t, requests.Item{ProductID: filter, Quantity: qty("2")})

	in := approve()
	in.SaleID = &sale.ID
	got, err := f.svc.TransitionRequest(ctx, admin, d.ID, in)
	require.NoError(t, err)
	require.Equal(t, workflow.StatusApproved, got.Status)
	require.Equal(t, sale.ID, *got.SaleID)

	linked, _ := f.repo.sales.Sale(sale.ID)
	require.Equal(t, d.ID, *linked.RequestID)
	require.Equal(t, workflow.StatusPending, linked.Status)
	require.True(t, qty("5").Equal(f.repo.stock.Quantity(filter, inventory.LocationUtawala)))
	require.Empty(t, f.repo.stock.Movements())
}

func TestDirectApprovalRefusesRejectedOrTakenSale(t *testing.T) {
	f := newFixture()
	ctx := context.Background()
	filter := f.repo.stock.AddProduct("Filter", 0, 5)
	item := []sales.ItemInput{{ProductID: filter, Quantity: qty("1"), UnitPrice: qty("10")}}

	rejected, err := f.sales.CreateSale(ctx, clerk, sales.CreateInput{Items: item})
	require.NoError(t, err)
	_, err = f.sales.TransitionSale(ctx, admin, rejected.ID, sales.TransitionInput{Target: workflow.StatusRejected})
	require.NoError(t, err)

	first := f.request(t, requests.Item{ProductID: filter, Quantity: qty("1")})
	in := approve()
	in.SaleID = &rejected.ID
	_, err = f.svc.TransitionRequest(ctx, admin, first.ID, in)
	require.ErrorIs(t, err, shared.ErrConflict)

	taken, err := f.sales.CreateSale(ctx, clerk, sales.CreateInput{Items: item})
	require.NoError(t, err)
	in.SaleID = &taken.ID
	_, err = f.svc.TransitionRequest(ctx, admin, first.ID, in)
	require.NoError(t, err)

	second := f.request(t, requests.Item{ProductID: filter, Quantity: qty("1")})
	_, err = f.svc.TransitionRequest(ctx, admin, second.ID, in)
	require.ErrorIs(t, err, shared.ErrConflict)

	got, err := f.svc.GetRequest(ctx, second.ID)
	require.NoError(t, err)
	require.Equal(t, workflow.StatusPending, got.Status)
	require.Nil(t, got.SaleID)
}

func TestDirectApprovalUnknownSale(t *testing.T) {
	f := newFixture()
	filter := f.repo.stock.AddProduct("Filter", 0, 5)
	d := f.request(t, requests.Item{ProductID: filter, Quantity: qty("1")})

	missing := uuid.New()
	in := approve()
	in.SaleID = &missing
	_, err := f.svc.TransitionRequest(context.Background(), admin, d.ID, in)
	require.ErrorIs(t, err, shared.ErrNotFound)
}

func TestRejectRequest(t *testing.T) {
	f := newFixture()
	ctx := context.Background()
	filter := f.repo.stock.AddProduct("Filter", 0, 5)
	d := f.request(t, requests.Item{ProductID: filter, Quantity: qty("1")})

	saleID := uuid.New()
	_, err := f.svc.TransitionRequest(ctx, admin, d.ID, requests.TransitionInput{Target: workflow.StatusRejected, SaleID: &saleID})
	require.ErrorIs(t, err, shared.ErrValidation)

	got, err := f.svc.TransitionRequest(ctx, admin, d.ID, requests.TransitionInput{Target: workflow.StatusRejected, Note: "duplicate"})
	require.NoError(t, err)
	require.Equal(t, workflow.StatusRejected, got.Status)
	require.Empty(t, f.repo.stock.Movements())

	_, err = f.svc.TransitionRequest(ctx, admin, d.ID, approve())
	require.ErrorIs(t, err, shared.ErrInvalidTransition)
}

func TestOnlyAdminsDecideRequests(t *testing.T) {
	f := newFixture()
	filter := f.repo.stock.AddProduct("Filter", 0, 5)
	d := f.request(t, requests.Item{ProductID: filter, Quantity: qty("1")})

	for _, actor := range []shared.Actor{clerk, staff, {ID: uuid.New(), Role: shared.RoleAccountant}} {
		_, err := f.svc.TransitionRequest(context.Background(), actor, d.ID, approve())
		require.ErrorIs(t, err, shared.ErrForbidden, string(actor.Role))
	}
	_, err := f.svc.TransitionRequest(context.Background(), shared.Actor{}, d.ID, approve())
	require.ErrorIs(t, err, shared.ErrUnauthorized)
}

func TestConcurrentRequestApprovalDeductsOnce(t *testing.T) {
	f := newFixture()
	filter := f.repo.stock.AddProduct("Filter", 0, 10)
	d := f.request(t, requests.Item{ProductID: filter, Quantity: qty("4")})

	var wg sync.WaitGroup
	errs := make([]error, 6)
	for i := range errs {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, errs[i] = f.svc.TransitionRequest(context.Background(), admin, d.ID, approve())
		}(i)
	}
	wg.Wait()

	succeeded := 0
	for _, err := range errs {
		if err == nil {
			succeeded++
			continue
		}
		assert.ErrorIs(t, err, shared.ErrInvalidTransition)
	}
	require.Equal(t, 1, succeeded)
	require.True(t, qty("6").Equal(f.repo.stock.Quantity(filter, inventory.LocationUtawala)))
	require.Len(t, f.repo.stock.Movements(), 1)
}

func TestListRequestsByStatus(t *testing.T) {
	f := newFixture()
	ctx := context.Background()
	filter := f.repo.stock.AddProduct("Filter", 0, 5)
	a := f.request(t, requests.Item{ProductID: filter, Quantity: qty("1")})
	f.request(t, requests.Item{ProductID: filter, Quantity: qty("1")})
	_, err := f.svc.TransitionRequest(ctx, admin, a.ID, requests.TransitionInput{Target: workflow.StatusRejected})
	require.NoError(t, err)

	pending, err := f.svc.ListRequests(ctx, requests.ListFilter{Status: workflow.StatusPending})
	require.NoError(t, err)
	require.Len(t, pending, 1)
	rejected, err := f.svc.ListRequests(ctx, requests.ListFilter{Status: workflow.StatusRejected})
	require.NoError(t, err)
	require.Len(t, rejected, 1)
	require.Equal(t, a.ID, rejected[0].ID)
}
