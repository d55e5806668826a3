package jobs

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/hibiken/asynq"

	"github.com/aquaflow/portal/internal/inventory"
)

const (
	// TaskLowStockScan checks every product against its reorder level.
	TaskLowStockScan = "stock:low_scan"
)

// NewLowStockScanTask constructs the scan task.
func NewLowStockScanTask() *asynq.Task {
	return asynq.NewTask(TaskLowStockScan, nil, asynq.Queue(QueueDefault))
}

// LowStockSource lists products below their reorder level.
type LowStockSource interface {
	LowStock(ctx context.Context) ([]inventory.StockLevel, error)
}

// EmailEnqueuer queues an email for delivery.
type EmailEnqueuer interface {
	EnqueueSendEmail(ctx context.Context, payload SendEmailPayload) (*asynq.TaskInfo, error)
}

// LowStockGauge records the number of low products.
type LowStockGauge interface {
	SetLowStock(n int)
}

// LowStockJob reports products below their reorder level and mails the stock
// controller when there are any.
type LowStockJob struct {
	Stock      LowStockSource
	Emails     EmailEnqueuer
	Gauge      LowStockGauge
	AlertEmail string
	Logger     *slog.Logger
}

// Handle implements asynq.HandlerFunc.
func (j *LowStockJob) Handle(ctx context.Context, t *asynq.Task) error {
	low, err := j.Stock.LowStock(ctx)
	if err != nil {
		return fmt.Errorf("low stock scan: %w", err)
	}
	if j.Gauge != nil {
		j.Gauge.SetLowStock(len(low))
	}
	j.logger().Info("low stock scan", slog.Int("low", len(low)))
	if len(low) == 0 || j.AlertEmail == "" || j.Emails == nil {
		return nil
	}
	_, err = j.Emails.EnqueueSendEmail(ctx, SendEmailPayload{
		To:      j.AlertEmail,
		Subject: fmt.Sprintf("%d products below reorder level", len(low)),
		Body:    lowStockBody(low),
	})
	if err != nil {
		return fmt.Errorf("low stock scan: enqueue alert: %w", err)
	}
	return nil
}

func lowStockBody(low []inventory.StockLevel) string {
	var b strings.Builder
	b.WriteString("The following products are below their minimum stock level:\n\n")
	for _, lvl := range low {
		fmt.Fprintf(&b, "%s  %s: kamulu %s, utawala %s, minimum %s %s\n",
			lvl.Product.SKU, lvl.Product.Name, lvl.Kamulu, lvl.Utawala, lvl.Product.MinStockLevel, lvl.Product.Unit)
	}
	return b.String()
}

func (j *LowStockJob) logger() *slog.Logger {
	if j.Logger == nil {
		return slog.Default()
	}
	return j.Logger
}
