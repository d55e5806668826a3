// Package reports builds stock and sales exports from the ledger.
package reports

import (
	"context"
	"slices"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"golang.org/x/sync/errgroup"

	"github.com/aquaflow/portal/internal/customers"
	"github.com/aquaflow/portal/internal/inventory"
	"github.com/aquaflow/portal/internal/sales"
	"github.com/aquaflow/portal/internal/workflow"
)

const pageSize = 200

// StockSource lists stock levels.
type StockSource interface {
	ListStock(ctx context.Context, filter inventory.ProductFilter) ([]inventory.StockLevel, error)
}

// SalesSource lists sales.
type SalesSource interface {
	ListSales(ctx context.Context, filter sales.ListFilter) ([]sales.Sale, error)
}

// CustomerSource loads customers by ID.
type CustomerSource interface {
	Get(ctx context.Context, id uuid.UUID) (customers.Customer, error)
}

// StockReport is a snapshot of both locations.
type StockReport struct {
	GeneratedAt time.Time
	Levels      []inventory.StockLevel
	Kamulu      decimal.Decimal
	Utawala     decimal.Decimal
	LowCount    int
}

// SalesRow is one sale in a sales report.
type SalesRow struct {
	Sale     sales.Sale
	Customer string
}

// SalesFilter narrows a sales report.
type SalesFilter struct {
	Status workflow.Status
	From   time.Time
	To     time.Time
}

// SalesReport lists sales with totals per status.
type SalesReport struct {
	GeneratedAt time.Time
	Filter      SalesFilter
	Rows        []SalesRow
	Totals      map[workflow.Status]decimal.Decimal
}

// Service assembles reports.
type Service struct {
	stock     StockSource
	sales     SalesSource
	customers CustomerSource
	now       func() time.Time
}

// NewService constructs Service.
func NewService(stock StockSource, sales SalesSource, customers CustomerSource) *Service {
	return &Service{stock: stock, sales: sales, customers: customers, now: time.Now}
}

// Stock returns every product with its quantities at both locations.
func (s *Service) Stock(ctx context.Context) (StockReport, error) {
	report := StockReport{GeneratedAt: s.now().UTC()}
	filter := inventory.ProductFilter{Limit: pageSize}
	for {
		page, err := s.stock.ListStock(ctx, filter)
		if err != nil {
			return StockReport{}, err
		}
		for _, lvl := range page {
			report.Kamulu = report.Kamulu.Add(lvl.Kamulu)
			report.Utawala = report.Utawala.Add(lvl.Utawala)
			if lvl.Low() {
				report.LowCount++
			}
		}
		report.Levels = append(report.Levels, page...)
		if len(page) < filter.Limit {
			return report, nil
		}
		filter.Offset += len(page)
	}
}

// Sales returns the sales matching filter with customer names resolved.
func (s *Service) Sales(ctx context.Context, filter SalesFilter) (SalesReport, error) {
	report := SalesReport{
		GeneratedAt: s.now().UTC(),
		Filter:      filter,
		Totals:      make(map[workflow.Status]decimal.Decimal),
	}
	list := sales.ListFilter{Status: filter.Status, From: filter.From, To: filter.To, Limit: pageSize}
	var all []sales.Sale
	for {
		page, err := s.sales.ListSales(ctx, list)
		if err != nil {
			return SalesReport{}, err
		}
		all = append(all, page...)
		if len(page) < list.Limit {
			break
		}
		list.Offset += len(page)
	}

	names, err := s.customerNames(ctx, all)
	if err != nil {
		return SalesReport{}, err
	}
	report.Rows = make([]SalesRow, 0, len(all))
	for _, sale := range all {
		row := SalesRow{Sale: sale}
		if sale.CustomerID != nil {
			row.Customer = names[*sale.CustomerID]
		}
		report.Rows = append(report.Rows, row)
		report.Totals[sale.Status] = report.Totals[sale.Status].Add(sale.Total)
	}
	return report, nil
}

// customerNames loads the distinct customers of list concurrently.
func (s *Service) customerNames(ctx context.Context, list []sales.Sale) (map[uuid.UUID]string, error) {
	var ids []uuid.UUID
	for _, sale := range list {
		if sale.CustomerID != nil && !slices.Contains(ids, *sale.CustomerID) {
			ids = append(ids, *sale.CustomerID)
		}
	}
	names := make([]string, len(ids))
	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(4)
	for i, id := range ids {
		g.Go(func() error {
			c, err := s.customers.Get(ctx, id)
			if err != nil {
				return err
			}
			names[i] = c.Name
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	out := make(map[uuid.UUID]string, len(ids))
	for i, id := range ids {
		out[id] = names[i]
	}
	return out, nil
}
