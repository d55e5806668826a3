package jobs_test

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/hibiken/asynq"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/aquaflow/portal/internal/inventory"
	"github.com/aquaflow/portal/internal/procurement"
	"github.com/aquaflow/portal/jobs"
)

type lowStub struct {
	levels []inventory.StockLevel
	err    error
}

func (s lowStub) LowStock(ctx context.Context) ([]inventory.StockLevel, error) {
	return s.levels, s.err
}

type outbox struct {
	sent []jobs.SendEmailPayload
}

func (o *outbox) EnqueueSendEmail(ctx context.Context, payload jobs.SendEmailPayload) (*asynq.TaskInfo, error) {
	o.sent = append(o.sent, payload)
	return &asynq.TaskInfo{ID: uuid.NewString()}, nil
}

func (o *outbox) Send(ctx context.Context, msg jobs.SendEmailPayload) error {
	o.sent = append(o.sent, msg)
	return nil
}

type gauge struct{ value int }

func (g *gauge) SetLowStock(n int) { g.value = n }

func lowLevel(sku string) inventory.StockLevel {
	return inventory.StockLevel{
		Product: inventory.Product{ID: uuid.New(), SKU: sku, Name: sku, Unit: "pcs", MinStockLevel: decimal.NewFromInt(10)},
		Kamulu:  decimal.NewFromInt(1),
		Utawala: decimal.NewFromInt(2),
	}
}

func TestLowStockJobAlertsWhenProductsAreLow(t *testing.T) {
	box := &outbox{}
	g := &gauge{}
	job := &jobs.LowStockJob{
		Stock:      lowStub{levels: []inventory.StockLevel{lowLevel("MEM-1"), lowLevel("UV-2")}},
		Emails:     box,
		Gauge:      g,
		AlertEmail: "stores@aquaflow.test",
	}

	require.NoError(t, job.Handle(context.Background(), jobs.NewLowStockScanTask()))
	require.Equal(t, 2, g.value)
	require.Len(t, box.sent, 1)
	require.Equal(t, "stores@aquaflow.test", box.sent[0].To)
	require.Contains(t, box.sent[0].Subject, "2 products")
	require.Contains(t, box.sent[0].Body, "UV-2")
}

func TestLowStockJobQuietWhenNothingIsLow(t *testing.T) {
	box := &outbox{}
	g := &gauge{value: 7}
	job := &jobs.LowStockJob{Stock: lowStub{}, Emails: box, Gauge: g, AlertEmail: "stores@aquaflow.test"}

	require.NoError(t, job.Handle(context.Background(), jobs.NewLowStockScanTask()))
	require.Zero(t, g.value)
	require.Empty(t, box.sent)
}

func TestLowStockJobPropagatesErrors(t *testing.T) {
	job := &jobs.LowStockJob{Stock: lowStub{err: errors.New("db down")}}
	require.Error(t, job.Handle(context.Background(), jobs.NewLowStockScanTask()))
}

type purger struct{ olderThan time.Duration }

func (p *purger) Cleanup(ctx context.Context, olderThan time.Duration) (int64, error) {
	p.olderThan = olderThan
	return 3, nil
}

func TestIdempotencyCleanupUsesRetention(t *testing.T) {
	p := &purger{}
	job := &jobs.IdempotencyCleanupJob{Store: p}

	task, err := jobs.NewIdempotencyCleanupTask(72 * time.Hour)
	require.NoError(t, err)
	require.NoError(t, job.Handle(context.Background(), task))
	require.Equal(t, 72*time.Hour, p.olderThan)

	require.NoError(t, job.Handle(context.Background(), asynq.NewTask(jobs.TaskIdempotencyCleanup, nil)))
	require.Equal(t, 48*time.Hour, p.olderThan)

	err = job.Handle(context.Background(), asynq.NewTask(jobs.TaskIdempotencyCleanup, []byte("{")))
	require.ErrorIs(t, err, asynq.SkipRetry)
}

func TestEmailJobSkipsRetryOnBadPayload(t *testing.T) {
	box := &outbox{}
	job := jobs.EmailJob{Mailer: box}

	task, err := jobs.NewSendEmailTask(jobs.SendEmailPayload{To: "a@b.test", Subject: "hi"})
	require.NoError(t, err)
	require.NoError(t, job.Handle(context.Background(), task))
	require.Len(t, box.sent, 1)

	err = job.Handle(context.Background(), asynq.NewTask(jobs.TaskTypeSendEmail, []byte("nope")))
	require.ErrorIs(t, err, asynq.SkipRetry)

	_, err = jobs.NewSendEmailTask(jobs.SendEmailPayload{})
	require.Error(t, err)
}

func TestPurchaseOrderMailer(t *testing.T) {
	box := &outbox{}
	var notifier procurement.Notifier = jobs.PurchaseOrderMailer{Emails: box, To: "stores@aquaflow.test"}
	err := notifier.PurchaseOrderReceived(context.Background(), procurement.ReceivedEvent{
		Number:     "LPO-20260301-1",
		Supplier:   "Davis & Shirtliff",
		Location:   inventory.LocationKamulu,
		Total:      decimal.RequireFromString("12500"),
		ApprovedAt: time.Date(2026, 3, 1, 9, 30, 0, 0, time.UTC),
		Lines:      2,
	})
	require.NoError(t, err)
	require.Len(t, box.sent, 1)
	require.Contains(t, box.sent[0].Subject, "LPO-20260301-1")
	require.Contains(t, box.sent[0].Body, "12500.00")

	require.NoError(t, jobs.PurchaseOrderMailer{}.PurchaseOrderReceived(context.Background(), procurement.ReceivedEvent{}))
}

type observed struct {
	runs map[string][]error
}

func (o *observed) ObserveJob(task string, err error) {
	o.runs[task] = append(o.runs[task], err)
}

func TestServeMuxObservesEveryRun(t *testing.T) {
	obs := &observed{runs: make(map[string][]error)}
	boom := errors.New("boom")
	mux := jobs.NewServeMux(slogDiscard(), obs, []jobs.TaskHandler{
		{Type: "ok", Handler: func(ctx context.Context, t *asynq.Task) error { return nil }},
		{Type: "fail", Handler: func(ctx context.Context, t *asynq.Task) error { return boom }},
	})

	require.NoError(t, mux.ProcessTask(context.Background(), asynq.NewTask("ok", nil)))
	require.ErrorIs(t, mux.ProcessTask(context.Background(), asynq.NewTask("fail", nil)), boom)
	require.Len(t, obs.runs["ok"], 1)
	require.Equal(t, []error{boom}, obs.runs["fail"])
}

type inspectorStub struct {
	info *asynq.QueueInfo
	err  error
}

func (s inspectorStub) GetQueueInfo(queue string) (*asynq.QueueInfo, error) {
	return s.info, s.err
}

func TestJobsHealth(t *testing.T) {
	get := func(h *jobs.Handler) *httptest.ResponseRecorder {
		r := chi.NewRouter()
		r.Route("/jobs", h.MountRoutes)
		rec := httptest.NewRecorder()
		r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/jobs/health", nil))
		return rec
	}

	rec := get(jobs.NewHandler(inspectorStub{info: &asynq.QueueInfo{Queue: "default", Pending: 4, Retry: 1}}, nil))
	require.Equal(t, http.StatusOK, rec.Code)
	var body map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	require.EqualValues(t, 4, body["pending"])
	require.EqualValues(t, 1, body["retry"])

	rec = get(jobs.NewHandler(inspectorStub{err: errors.New("redis down")}, nil))
	require.Equal(t, http.StatusServiceUnavailable, rec.Code)

	rec = get(jobs.NewHandler(nil, nil))
	require.Equal(t, http.StatusOK, rec.Code)
}

func slogDiscard() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}
