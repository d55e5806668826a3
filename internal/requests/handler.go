package requests

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

// Handler exposes /requests.
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

// MountRoutes registers deduction request routes. Anyone signed in may file a request;
// only admins decide.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Use(h.rbac.RequireAuth)
	r.Get("/", h.list)
	r.With(httpx.Idempotent(h.idempotency, "deduction_requests", h.logger)).Post("/", h.create)
	r.Get("/{id}", h.get)
	r.Get("/{id}/history", h.listHistory)
	r.With(h.rbac.RequireAny(shared.RoleAdmin)).Post("/{id}/transition", h.transition)
}

func (h *Handler) create(w http.ResponseWriter, r *http.Request) {
	actor, _ := shared.ActorFromContext(r.Context())
	var in CreateInput
	if !h.decode(w, r, &in) {
		return
	}
	d, err := h.service.CreateRequest(r.Context(), actor, in)
	if err != nil {
		h.fail(w, "create deduction request", err)
		return
	}
	httpx.JSON(w, http.StatusCreated, d)
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
	d, err := h.service.TransitionRequest(r.Context(), actor, id, in)
	if err != nil {
		h.fail(w, "transition deduction request", err)
		return
	}
	httpx.JSON(w, http.StatusOK, d)
}

func (h *Handler) get(w http.ResponseWriter, r *http.Request) {
	id, err := httpx.PathUUID(r, "id")
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	d, err := h.service.GetRequest(r.Context(), id)
	if err != nil {
		h.fail(w, "get deduction request", err)
		return
	}
	httpx.JSON(w, http.StatusOK, d)
}

func (h *Handler) listHistory(w http.ResponseWriter, r *http.Request) {
	id, err := httpx.PathUUID(r, "id")
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	decisions, err := h.history.List(r.Context(), workflow.KindDeductionRequest, id)
	if err != nil {
		h.fail(w, "deduction request history", err)
		return
	}
	httpx.JSON(w, http.StatusOK, decisions)
}

func (h *Handler) list(w http.ResponseWriter, r *http.Request) {
	filter := ListFilter{Status: workflow.Status(r.URL.Query().Get("status"))}
	filter.Limit, filter.Offset = httpx.Page(r)
	list, err := h.service.ListRequests(r.Context(), filter)
	if err != nil {
		h.fail(w, "list deduction requests", err)
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
