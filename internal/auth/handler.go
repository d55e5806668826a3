package auth

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/aquaflow/portal/internal/platform/httpx"
	"github.com/aquaflow/portal/internal/rbac"
	"github.com/aquaflow/portal/internal/shared"
)

// Handler wires HTTP endpoints for authentication flows.
type Handler struct {
	logger         *slog.Logger
	service        *Service
	tokens         *Tokens
	sessionManager *shared.SessionManager
	csrfManager    *shared.CSRFManager
	validate       *httpx.Validator
	rbac           rbac.Middleware
}

// NewHandler constructs a Handler instance. tokens may be nil when bearer tokens are disabled.
func NewHandler(logger *slog.Logger, service *Service, tokens *Tokens, sessions *shared.SessionManager, csrf *shared.CSRFManager, rbac rbac.Middleware) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{
		logger:         logger,
		service:        service,
		tokens:         tokens,
		sessionManager: sessions,
		csrfManager:    csrf,
		validate:       httpx.NewValidator(),
		rbac:           rbac,
	}
}

// MountRoutes registers auth routes on provided router.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Post("/login", h.handleLogin)
	r.Post("/logout", h.handleLogout)
	r.With(h.rbac.RequireAuth).Get("/me", h.handleMe)
}

type loginRequest struct {
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required,min=8"`
}

type loginResponse struct {
	Profile   Profile    `json:"profile"`
	CSRFToken string     `json:"csrf_token,omitempty"`
	Token     string     `json:"token,omitempty"`
	ExpiresAt *time.Time `json:"expires_at,omitempty"`
}

func (h *Handler) handleLogin(w http.ResponseWriter, r *http.Request) {
	var form loginRequest
	if err := httpx.DecodeJSON(w, r, &form); err != nil {
		httpx.RespondError(w, err)
		return
	}
	if err := h.validate.Struct(form); err != nil {
		httpx.RespondError(w, err)
		return
	}
	profile, err := h.service.Authenticate(r.Context(), form.Email, form.Password)
	if err != nil {
		if shared.KindOf(err) == shared.KindStorageFailure {
			h.logger.Error("authenticate", slog.Any("error", err))
		}
		httpx.RespondError(w, err)
		return
	}

	resp := loginResponse{Profile: profile}
	if sess := shared.SessionFromContext(r.Context()); sess != nil {
		sess.SetUser(profile.ID.String())
		// The session ID rotated, so the CSRF token must be reissued for it.
		sess.Set(shared.CSRFSessionKey, "")
		if resp.CSRFToken, err = h.csrfManager.EnsureToken(r.Context(), sess); err != nil {
			h.logger.Error("issue csrf token", slog.Any("error", err))
			httpx.RespondError(w, err)
			return
		}
		expiresAt := time.Now().Add(h.sessionManager.TTL())
		if err := h.service.RegisterSession(r.Context(), sess.ID, profile.ID, expiresAt, r.RemoteAddr, r.UserAgent()); err != nil {
			h.logger.Warn("register session", slog.Any("error", err))
		}
	}
	if h.tokens != nil {
		token, expires, err := h.tokens.Issue(profile)
		if err != nil {
			h.logger.Error("issue token", slog.Any("error", err))
			httpx.RespondError(w, err)
			return
		}
		resp.Token, resp.ExpiresAt = token, &expires
	}
	h.logger.Info("login", slog.String("profile_id", profile.ID.String()), slog.String("role", string(profile.Role)))
	httpx.JSON(w, http.StatusOK, resp)
}

func (h *Handler) handleLogout(w http.ResponseWriter, r *http.Request) {
	sess := shared.SessionFromContext(r.Context())
	if sess != nil {
		if err := h.service.RemoveSession(r.Context(), sess.ID); err != nil {
			h.logger.Warn("remove session", slog.Any("error", err))
		}
		h.sessionManager.Destroy(sess)
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) handleMe(w http.ResponseWriter, r *http.Request) {
	actor, _ := shared.ActorFromContext(r.Context())
	profile, err := h.service.Profile(r.Context(), actor.ID)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	resp := loginResponse{Profile: profile}
	if sess := shared.SessionFromContext(r.Context()); sess != nil && sess.User() != "" {
		resp.CSRFToken, _ = h.csrfManager.EnsureToken(r.Context(), sess)
	}
	httpx.JSON(w, http.StatusOK, resp)
}
