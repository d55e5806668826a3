package reports

import (
	"bytes"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/aquaflow/portal/internal/platform/httpx"
	"github.com/aquaflow/portal/internal/rbac"
	"github.com/aquaflow/portal/internal/shared"
	"github.com/aquaflow/portal/internal/workflow"
)

// Handler exposes /reports.
type Handler struct {
	logger  *slog.Logger
	service *Service
	rbac    rbac.Middleware
}

// NewHandler constructs Handler.
func NewHandler(logger *slog.Logger, service *Service, rbac rbac.Middleware) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{logger: logger, service: service, rbac: rbac}
}

// MountRoutes registers report routes. Sales figures are limited to admins and accountants.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Use(h.rbac.RequireAuth)
	r.Get("/stock.csv", h.stockCSV)
	r.Get("/stock.pdf", h.stockPDF)
	r.Group(func(r chi.Router) {
		r.Use(h.rbac.RequireAny(shared.RoleAdmin, shared.RoleAccountant))
		r.Get("/sales.csv", h.salesCSV)
		r.Get("/sales.pdf", h.salesPDF)
	})
}

func (h *Handler) stockCSV(w http.ResponseWriter, r *http.Request) {
	report, err := h.service.Stock(r.Context())
	if err != nil {
		h.fail(w, "stock report", err)
		return
	}
	var buf bytes.Buffer
	if err := WriteStockCSV(&buf, report); err != nil {
		h.fail(w, "stock csv", err)
		return
	}
	attach(w, "text/csv", fmt.Sprintf("stock-%s.csv", report.GeneratedAt.Format("20060102")), buf.Bytes())
}

func (h *Handler) stockPDF(w http.ResponseWriter, r *http.Request) {
	report, err := h.service.Stock(r.Context())
	if err != nil {
		h.fail(w, "stock report", err)
		return
	}
	doc, err := StockPDF(report)
	if err != nil {
		h.fail(w, "stock pdf", err)
		return
	}
	attach(w, "application/pdf", fmt.Sprintf("stock-%s.pdf", report.GeneratedAt.Format("20060102")), doc)
}

func (h *Handler) salesCSV(w http.ResponseWriter, r *http.Request) {
	report, ok := h.sales(w, r)
	if !ok {
		return
	}
	var buf bytes.Buffer
	if err := WriteSalesCSV(&buf, report); err != nil {
		h.fail(w, "sales csv", err)
		return
	}
	attach(w, "text/csv", fmt.Sprintf("sales-%s.csv", report.GeneratedAt.Format("20060102")), buf.Bytes())
}

func (h *Handler) salesPDF(w http.ResponseWriter, r *http.Request) {
	report, ok := h.sales(w, r)
	if !ok {
		return
	}
	doc, err := SalesPDF(report)
	if err != nil {
		h.fail(w, "sales pdf", err)
		return
	}
	attach(w, "application/pdf", fmt.Sprintf("sales-%s.pdf", report.GeneratedAt.Format("20060102")), doc)
}

func (h *Handler) sales(w http.ResponseWriter, r *http.Request) (SalesReport, bool) {
	filter := SalesFilter{Status: workflow.Status(r.URL.Query().Get("status"))}
	var err error
	if filter.From, filter.To, err = httpx.DateRange(r); err != nil {
		httpx.RespondError(w, err)
		return SalesReport{}, false
	}
	report, err := h.service.Sales(r.Context(), filter)
	if err != nil {
		h.fail(w, "sales report", err)
		return SalesReport{}, false
	}
	return report, true
}

func attach(w http.ResponseWriter, contentType, filename string, body []byte) {
	w.Header().Set("Content-Type", contentType)
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", filename))
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(body)
}

func (h *Handler) fail(w http.ResponseWriter, op string, err error) {
	if shared.KindOf(err) == shared.KindStorageFailure {
		h.logger.Error(op, slog.Any("error", err))
	}
	httpx.RespondError(w, err)
}
