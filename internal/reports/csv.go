package reports

import (
	"encoding/csv"
	"io"
	"strconv"
	"time"
)

// WriteStockCSV serialises a stock report.
func WriteStockCSV(w io.Writer, report StockReport) error {
	writer := csv.NewWriter(w)
	defer writer.Flush()
	if err := writer.Write([]string{"SKU", "Product", "Unit", "Kamulu", "Utawala", "Total", "Min Stock", "Low"}); err != nil {
		return err
	}
	for _, lvl := range report.Levels {
		low := "no"
		if lvl.Low() {
			low = "yes"
		}
		if err := writer.Write([]string{
			lvl.Product.SKU,
			lvl.Product.Name,
			lvl.Product.Unit,
			lvl.Kamulu.String(),
			lvl.Utawala.String(),
			lvl.Total().String(),
			lvl.Product.MinStockLevel.String(),
			low,
		}); err != nil {
			return err
		}
	}
	writer.Flush()
	return writer.Error()
}

// WriteSalesCSV serialises a sales report.
func WriteSalesCSV(w io.Writer, report SalesReport) error {
	writer := csv.NewWriter(w)
	defer writer.Flush()
	if err := writer.Write([]string{"Number", "Date", "Customer", "Status", "Items", "Total", "Approved At"}); err != nil {
		return err
	}
	for _, row := range report.Rows {
		approved := ""
		if row.Sale.ApprovedAt != nil {
			approved = row.Sale.ApprovedAt.UTC().Format(time.RFC3339)
		}
		if err := writer.Write([]string{
			row.Sale.Number,
			row.Sale.CreatedAt.UTC().Format(time.DateOnly),
			row.Customer,
			string(row.Sale.Status),
			strconv.Itoa(len(row.Sale.Items)),
			row.Sale.Total.StringFixed(2),
			approved,
		}); err != nil {
			return err
		}
	}
	writer.Flush()
	return writer.Error()
}
