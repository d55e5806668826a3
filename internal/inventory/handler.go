package inventory

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/aquaflow/portal/internal/platform/httpx"
	"github.com/aquaflow/portal/internal/rbac"
	"github.com/aquaflow/portal/internal/shared"
)

// Handler wires HTTP endpoints for products and stock.
type Handler struct {
	logger   *slog.Logger
	service  *Service
	validate *httpx.Validator
	rbac     rbac.Middleware
}

// NewHandler constructs inventory handler.
func NewHandler(logger *slog.Logger, service *Service, rbac rbac.Middleware) *Handler {
	return &Handler{logger: logger, service: service, validate: httpx.NewValidator(), rbac: rbac}
}

// MountProductRoutes registers /products routes.
func (h *Handler) MountProductRoutes(r chi.Router) {
	r.Use(h.rbac.RequireAuth)
	r.Get("/", h.listProducts)
	r.Get("/{id}", h.getProduct)
	r.Get("/{id}/movements", h.listMovements)
	r.Group(func(r chi.Router) {
		r.Use(h.rbac.RequireAny(shared.RoleAdmin, shared.RoleClerk))
		r.Post("/", h.createProduct)
		r.Put("/{id}", h.updateProduct)
	})
}

// MountStockRoutes registers /stock routes.
func (h *Handler) MountStockRoutes(r chi.Router) {
	r.Use(h.rbac.RequireAuth)
	r.Get("/", h.listStock)
	r.Get("/low", h.lowStock)
	r.Get("/{productID}/{location}", h.getStock)
	r.With(h.rbac.RequireAny(shared.RoleAdmin)).Put("/{productID}/{location}", h.adjustStock)
}

type productRequest struct {
	SKU           string          `json:"sku" validate:"required,max=64"`
	Name          string          `json:"name" validate:"required,max=200"`
	Description   string          `json:"description" validate:"max=2000"`
	Unit          string          `json:"unit" validate:"max=32"`
	MinStockLevel decimal.Decimal `json:"min_stock_level"`
}

type adjustRequest struct {
	Quantity decimal.Decimal `json:"quantity"`
}

type stockResponse struct {
	ProductID uuid.UUID       `json:"product_id"`
	Location  Location        `json:"location"`
	Quantity  decimal.Decimal `json:"quantity"`
}

type stockLevelResponse struct {
	StockLevel
	Total decimal.Decimal `json:"total"`
	Low   bool            `json:"low"`
}

func (h *Handler) createProduct(w http.ResponseWriter, r *http.Request) {
	actor, _ := shared.ActorFromContext(r.Context())
	var req productRequest
	if err := httpx.DecodeJSON(w, r, &req); err != nil {
		httpx.RespondError(w, err)
		return
	}
	if err := h.validate.Struct(req); err != nil {
		httpx.RespondError(w, err)
		return
	}
	product, err := h.service.CreateProduct(r.Context(), actor, CreateProductInput{
		SKU:           req.SKU,
		Name:          req.Name,
		Description:   req.Description,
		Unit:          req.Unit,
		MinStockLevel: req.MinStockLevel,
	})
	if err != nil {
		h.fail(w, "create product", err)
		return
	}
	httpx.JSON(w, http.StatusCreated, product)
}

func (h *Handler) updateProduct(w http.ResponseWriter, r *http.Request) {
	actor, _ := shared.ActorFromContext(r.Context())
	id, err := httpx.PathUUID(r, "id")
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	var req productRequest
	if err := httpx.DecodeJSON(w, r, &req); err != nil {
		httpx.RespondError(w, err)
		return
	}
	product, err := h.service.UpdateProduct(r.Context(), actor, id, UpdateProductInput{
		Name:          req.Name,
		Description:   req.Description,
		Unit:          req.Unit,
		MinStockLevel: req.MinStockLevel,
	})
	if err != nil {
		h.fail(w, "update product", err)
		return
	}
	httpx.JSON(w, http.StatusOK, product)
}

func (h *Handler) getProduct(w http.ResponseWriter, r *http.Request) {
	id, err := httpx.PathUUID(r, "id")
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	product, err := h.service.GetProduct(r.Context(), id)
	if err != nil {
		h.fail(w, "get product", err)
		return
	}
	httpx.JSON(w, http.StatusOK, product)
}

func (h *Handler) listProducts(w http.ResponseWriter, r *http.Request) {
	products, err := h.service.ListProducts(r.Context(), productFilter(r))
	if err != nil {
		h.fail(w, "list products", err)
		return
	}
	httpx.JSON(w, http.StatusOK, products)
}

func (h *Handler) listMovements(w http.ResponseWriter, r *http.Request) {
	id, err := httpx.PathUUID(r, "id")
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	filter := MovementFilter{ProductID: id, Location: Location(r.URL.Query().Get("location"))}
	filter.Limit, _ = httpx.Page(r)
	if filter.From, filter.To, err = httpx.DateRange(r); err != nil {
		httpx.RespondError(w, err)
		return
	}
	movements, err := h.service.ListMovements(r.Context(), filter)
	if err != nil {
		h.fail(w, "list movements", err)
		return
	}
	httpx.JSON(w, http.StatusOK, movements)
}

func (h *Handler) listStock(w http.ResponseWriter, r *http.Request) {
	levels, err := h.service.ListStock(r.Context(), productFilter(r))
	if err != nil {
		h.fail(w, "list stock", err)
		return
	}
	httpx.JSON(w, http.StatusOK, levelResponses(levels))
}

func (h *Handler) lowStock(w http.ResponseWriter, r *http.Request) {
	levels, err := h.service.LowStock(r.Context())
	if err != nil {
		h.fail(w, "low stock", err)
		return
	}
	httpx.JSON(w, http.StatusOK, levelResponses(levels))
}

func (h *Handler) getStock(w http.ResponseWriter, r *http.Request) {
	productID, loc, err := stockPath(r)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	qty, err := h.service.GetStock(r.Context(), productID, loc)
	if err != nil {
		h.fail(w, "get stock", err)
		return
	}
	httpx.JSON(w, http.StatusOK, stockResponse{ProductID: productID, Location: loc, Quantity: qty})
}

func (h *Handler) adjustStock(w http.ResponseWriter, r *http.Request) {
	actor, _ := shared.ActorFromContext(r.Context())
	productID, loc, err := stockPath(r)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	var req adjustRequest
	if err := httpx.DecodeJSON(w, r, &req); err != nil {
		httpx.RespondError(w, err)
		return
	}
	rec, err := h.service.AdjustStock(r.Context(), actor, productID, loc, req.Quantity)
	if err != nil {
		h.fail(w, "adjust stock", err)
		return
	}
	httpx.JSON(w, http.StatusOK, stockResponse{ProductID: rec.ProductID, Location: rec.Location, Quantity: rec.Quantity})
}

func (h *Handler) fail(w http.ResponseWriter, op string, err error) {
	if shared.KindOf(err) == shared.KindStorageFailure {
		h.logger.Error(op, slog.Any("error", err))
	}
	httpx.RespondError(w, err)
}

func levelResponses(levels []StockLevel) []stockLevelResponse {
	out := make([]stockLevelResponse, 0, len(levels))
	for _, lvl := range levels {
		out = append(out, stockLevelResponse{StockLevel: lvl, Total: lvl.Total(), Low: lvl.Low()})
	}
	return out
}

func productFilter(r *http.Request) ProductFilter {
	filter := ProductFilter{Search: r.URL.Query().Get("q")}
	filter.Limit, filter.Offset = httpx.Page(r)
	return filter
}

func stockPath(r *http.Request) (uuid.UUID, Location, error) {
	productID, err := httpx.PathUUID(r, "productID")
	if err != nil {
		return uuid.Nil, "", err
	}
	loc, err := ParseLocation(chi.URLParam(r, "location"))
	if err != nil {
		return uuid.Nil, "", err
	}
	return productID, loc, nil
}
