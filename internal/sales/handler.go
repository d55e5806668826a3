package sales

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/aquaflow/portal/internal/platform/httpx"
	"github.com/aquaflow/portal/internal/rbac"
	"github.com/aquaflow/portal/internal/shared"
	"github.com/aquaflow/portal/internal/workflow"
)

// HistoryReader lists approval decisions of a document.
type HistoryReader interface {
	List(ctx context.Context, kind workflow.Kind, ref uuid.UUID) ([]workflow.Decision, error)
}

// Handler exposes /sales.
type Handler struct {
	logger      *slog.Logger
	service     *Service
	history     HistoryReader
	idempotency httpx.IdempotencyStore
	validate    *httpx.Validator
	rbac        rbac.Middleware
}

// NewHandler constructs Handler.
func NewHandler(logger *slog.Logger, service *Service, history HistoryReader, idempotency httpx.IdempotencyStore, rbac rbac.Middleware) *Handler {
	return &Handler{
		logger:      logger,
		service:     service,
		history:     history,
		idempotency: idempotency,
		validate:    httpx.NewValidator(),
		rbac:        rbac,
	}
}

// MountRoutes registers sale routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Use(h.rbac.RequireAuth)
	r.Get("/", h.list)
	r.With(httpx.Idempotent(h.idempotency, "sales", h.logger)).Post("/", h.create)
	r.Get("/{id}", h.get)
	r.Get("/{id}/history", h.listHistory)
	r.Put("/{id}/items", h.revise)
	r.With(h.rbac.RequireAny(shared.RoleAdmin, shared.RoleAccountant)).Post("/{id}/transition", h.transition)
}

type reviseRequest struct {
	Items []ItemInput `json:"items" validate:"required,min=1,dive"`
}

func (h *Handler) create(w http.ResponseWriter, r *http.Request) {
	actor, _ := shared.ActorFromContext(r.Context())
	var in CreateInput
	if !h.decode(w, r, &in) {
		return
	}
	sale, err := h.service.CreateSale(r.Context(), actor, in)
	if err != nil {
		h.fail(w, "create sale", err)
		return
	}
	httpx.JSON(w, http.StatusCreated, sale)
}

func (h *Handler) revise(w http.ResponseWriter, r *http.Request) {
	actor, _ := shared.ActorFromContext(r.Context())
	id, err := httpx.PathUUID(r, "id")
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	var in reviseRequest
	if !h.decode(w, r, &in) {
		return
	}
	sale, err := h.service.ReviseSale(r.Context(), actor, id, in.Items)
	if err != nil {
		h.fail(w, "revise sale", err)
		return
	}
	httpx.JSON(w, http.StatusOK, sale)
}

func (h *Handler) transition(w http.ResponseWriter, r *http.Request) {
	actor, _ := shared.ActorFromContext(r.Context())
	id, err := httpx.PathUUID(r, "id")
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	var in TransitionInput
	if !h.decode(w, r, &in) {
		return
	}
	sale, err := h.service.TransitionSale(r.Context(), actor, id, in)
	if err != nil {
		h.fail(w, "transition sale", err)
		return
	}
	httpx.JSON(w, http.StatusOK, sale)
}

func (h *Handler) get(w http.ResponseWriter, r *http.Request) {
	id, err := httpx.PathUUID(r, "id")
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	sale, err := h.service.GetSale(r.Context(), id)
	if err != nil {
		h.fail(w, "get sale", err)
		return
	}
	httpx.JSON(w, http.StatusOK, sale)
}

func (h *Handler) listHistory(w http.ResponseWriter, r *http.Request) {
	id, err := httpx.PathUUID(r, "id")
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	decisions, err := h.history.List(r.Context(), workflow.KindSale, id)
	if err != nil {
		h.fail(w, "sale history", err)
		return
	}
	httpx.JSON(w, http.StatusOK, decisions)
}

func (h *Handler) list(w http.ResponseWriter, r *http.Request) {
	filter := ListFilter{Status: workflow.Status(r.URL.Query().Get("status"))}
	filter.Limit, filter.Offset = httpx.Page(r)
	var err error
	if filter.From, filter.To, err = httpx.DateRange(r); err != nil {
		httpx.RespondError(w, err)
		return
	}
	list, err := h.service.ListSales(r.Context(), filter)
	if err != nil {
		h.fail(w, "list sales", err)
		return
	}
	httpx.JSON(w, http.StatusOK, list)
}

func (h *Handler) decode(w http.ResponseWriter, r *http.Request, target any) bool {
	if err := httpx.DecodeJSON(w, r, target); err != nil {
		httpx.RespondError(w, err)
		return false
	}
	if err := h.validate.Struct(target); err != nil {
		httpx.RespondError(w, err)
		return false
	}
	return true
}

func (h *Handler) fail(w http.ResponseWriter, op string, err error) {
	if shared.KindOf(err) == shared.KindStorageFailure {
		h.logger.Error(op, slog.Any("error", err))
	}
	httpx.RespondError(w, err)
}
