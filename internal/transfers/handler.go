package transfers

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

// Handler exposes /transfers.
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

// MountRoutes registers transfer routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Use(h.rbac.RequireAuth)
	r.Get("/", h.list)
	r.Get("/{id}", h.get)
	r.Get("/{id}/history", h.listHistory)
	r.With(
		h.rbac.RequireAny(shared.RoleAdmin, shared.RoleClerk),
		httpx.Idempotent(h.idempotency, "transfers", h.logger),
	).Post("/", h.create)
	r.With(h.rbac.RequireAny(shared.RoleClerk)).Post("/{id}/transition", h.transition)
}

func (h *Handler) create(w http.ResponseWriter, r *http.Request) {
	actor, _ := shared.ActorFromContext(r.Context())
	var in CreateInput
	if err := httpx.DecodeJSON(w, r, &in); err != nil {
		httpx.RespondError(w, err)
		return
	}
	if err := h.validate.Struct(in); err != nil {
		httpx.RespondError(w, err)
		return
	}
	t, err := h.service.CreateTransfer(r.Context(), actor, in)
	if err != nil {
		h.fail(w, "create transfer", err)
		return
	}
	httpx.JSON(w, http.StatusCreated, t)
}

func (h *Handler) transition(w http.ResponseWriter, r *http.Request) {
	actor, _ := shared.ActorFromContext(r.Context())
	id, err := httpx.PathUUID(r, "id")
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	var in TransitionInput
	if err := httpx.DecodeJSON(w, r, &in); err != nil {
		httpx.RespondError(w, err)
		return
	}
	t, err := h.service.TransitionTransfer(r.Context(), actor, id, in)
	if err != nil {
		h.fail(w, "transition transfer", err)
		return
	}
	httpx.JSON(w, http.StatusOK, t)
}

func (h *Handler) get(w http.ResponseWriter, r *http.Request) {
	id, err := httpx.PathUUID(r, "id")
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	t, err := h.service.GetTransfer(r.Context(), id)
	if err != nil {
		h.fail(w, "get transfer", err)
		return
	}
	httpx.JSON(w, http.StatusOK, t)
}

func (h *Handler) listHistory(w http.ResponseWriter, r *http.Request) {
	id, err := httpx.PathUUID(r, "id")
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	decisions, err := h.history.List(r.Context(), workflow.KindTransfer, id)
	if err != nil {
		h.fail(w, "transfer history", err)
		return
	}
	httpx.JSON(w, http.StatusOK, decisions)
}

func (h *Handler) list(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	filter := ListFilter{Status: workflow.Status(q.Get("status"))}
	if raw := q.Get("product_id"); raw != "" {
		id, err := uuid.Parse(raw)
		if err != nil {
			httpx.Problem(w, http.StatusBadRequest, "invalid input", "product_id must be a UUID")
			return
		}
		filter.ProductID = id
	}
	filter.Limit, filter.Offset = httpx.Page(r)
	list, err := h.service.ListTransfers(r.Context(), filter)
	if err != nil {
		h.fail(w, "list transfers", err)
		return
	}
	httpx.JSON(w, http.StatusOK, list)
}

func (h *Handler) fail(w http.ResponseWriter, op string, err error) {
	if shared.KindOf(err) == shared.KindStorageFailure {
		h.logger.Error(op, slog.Any("error", err))
	}
	httpx.RespondError(w, err)
}
