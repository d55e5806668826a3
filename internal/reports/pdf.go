package reports

import (
	"fmt"
	"slices"

	"github.com/johnfercher/maroto/v2"
	"github.com/johnfercher/maroto/v2/pkg/components/col"
	"github.com/johnfercher/maroto/v2/pkg/components/line"
	"github.com/johnfercher/maroto/v2/pkg/components/row"
	"github.com/johnfercher/maroto/v2/pkg/components/text"
	"github.com/johnfercher/maroto/v2/pkg/config"
	"github.com/johnfercher/maroto/v2/pkg/consts/align"
	"github.com/johnfercher/maroto/v2/pkg/consts/fontstyle"
	"github.com/johnfercher/maroto/v2/pkg/consts/pagesize"
	"github.com/johnfercher/maroto/v2/pkg/core"
	"github.com/johnfercher/maroto/v2/pkg/props"

	"github.com/aquaflow/portal/internal/workflow"
)

var (
	colorPrimary = &props.Color{Red: 0, Green: 94, Blue: 140}
	colorGray    = &props.Color{Red: 100, Green: 100, Blue: 100}
	colorAlert   = &props.Color{Red: 180, Green: 30, Blue: 30}
)

type column struct {
	label string
	size  int
	align align.Type
}

func newDocument(title string) core.Maroto {
	cfg := config.NewBuilder().
		WithPageSize(pagesize.A4).
		WithLeftMargin(10).WithRightMargin(10).
		WithTopMargin(10).WithBottomMargin(10).
		WithDefaultFont(&props.Font{Family: "helvetica", Size: 9}).
		WithTitle(title, true).
		WithAuthor("AquaFlow Portal", true).
		Build()
	return maroto.New(cfg)
}

func titleRow(title, subtitle string) core.Row {
	return row.New(16).Add(col.New(12).Add(
		text.New(title, props.Text{Style: fontstyle.Bold, Size: 13, Color: colorPrimary, Top: 1}),
		text.New(subtitle, props.Text{Size: 8, Color: colorGray, Top: 9}),
	))
}

func headerRow(cols []column) core.Row {
	r := row.New(7)
	for _, c := range cols {
		r.Add(col.New(c.size).Add(text.New(c.label, props.Text{Style: fontstyle.Bold, Size: 8, Align: c.align, Top: 1})))
	}
	return r
}

func dataRow(cols []column, values []string, color *props.Color) core.Row {
	r := row.New(6)
	for i, c := range cols {
		r.Add(col.New(c.size).Add(text.New(values[i], props.Text{Size: 8, Align: c.align, Top: 1, Color: color})))
	}
	return r
}

func rule() core.Row {
	return line.NewRow(1, props.Line{Color: colorPrimary, Thickness: 0.3})
}

func render(m core.Maroto) ([]byte, error) {
	doc, err := m.Generate()
	if err != nil {
		return nil, fmt.Errorf("reports: generate pdf: %w", err)
	}
	return doc.GetBytes(), nil
}

var stockColumns = []column{
	{"SKU", 2, align.Left},
	{"Product", 4, align.Left},
	{"Kamulu", 2, align.Right},
	{"Utawala", 2, align.Right},
	{"Total", 2, align.Right},
}

// StockPDF renders a stock report. Products below their reorder level are printed in red.
func StockPDF(report StockReport) ([]byte, error) {
	m := newDocument("Stock report")
	m.AddRows(titleRow("Stock report", "Generated "+report.GeneratedAt.Format("02 Jan 2006 15:04 UTC")))
	m.AddRows(rule(), headerRow(stockColumns))
	for _, lvl := range report.Levels {
		var color *props.Color
		if lvl.Low() {
			color = colorAlert
		}
		m.AddRows(dataRow(stockColumns, []string{
			lvl.Product.SKU,
			lvl.Product.Name,
			Quantity(lvl.Kamulu),
			Quantity(lvl.Utawala),
			Quantity(lvl.Total()),
		}, color))
	}
	m.AddRows(rule())
	m.AddRows(dataRow(stockColumns, []string{
		"",
		fmt.Sprintf("%d products, %d low", len(report.Levels), report.LowCount),
		Quantity(report.Kamulu),
		Quantity(report.Utawala),
		Quantity(report.Kamulu.Add(report.Utawala)),
	}, colorPrimary))
	return render(m)
}

var salesColumns = []column{
	{"Number", 3, align.Left},
	{"Date", 2, align.Left},
	{"Customer", 3, align.Left},
	{"Status", 2, align.Left},
	{"Total", 2, align.Right},
}

// SalesPDF renders a sales report with a total per status.
func SalesPDF(report SalesReport) ([]byte, error) {
	m := newDocument("Sales report")
	subtitle := "Generated " + report.GeneratedAt.Format("02 Jan 2006 15:04 UTC")
	if !report.Filter.From.IsZero() || !report.Filter.To.IsZero() {
		subtitle += fmt.Sprintf("  |  %s to %s", dateOrOpen(report.Filter.From.Format("02 Jan 2006"), report.Filter.From.IsZero()),
			dateOrOpen(report.Filter.To.Format("02 Jan 2006"), report.Filter.To.IsZero()))
	}
	m.AddRows(titleRow("Sales report", subtitle))
	m.AddRows(rule(), headerRow(salesColumns))
	for _, r := range report.Rows {
		m.AddRows(dataRow(salesColumns, []string{
			r.Sale.Number,
			r.Sale.CreatedAt.Format("02 Jan 2006"),
			r.Customer,
			string(r.Sale.Status),
			Money(r.Sale.Total),
		}, nil))
	}
	m.AddRows(rule())
	statuses := make([]workflow.Status, 0, len(report.Totals))
	for status := range report.Totals {
		statuses = append(statuses, status)
	}
	slices.Sort(statuses)
	for _, status := range statuses {
		m.AddRows(dataRow(salesColumns, []string{"", "", "", string(status), Money(report.Totals[status])}, colorPrimary))
	}
	return render(m)
}

func dateOrOpen(s string, open bool) string {
	if open {
		return "..."
	}
	return s
}
