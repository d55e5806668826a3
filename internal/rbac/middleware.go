// Package rbac resolves the calling actor and gates routes by role.
package rbac

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strings"

	"github.com/google/uuid"

	"github.com/aquaflow/portal/internal/platform/httpx"
	"github.com/aquaflow/portal/internal/shared"
)

// ActorLookup loads the current role of an active profile.
type ActorLookup interface {
	LookupActor(ctx context.Context, profileID uuid.UUID) (shared.Actor, error)
}

// TokenVerifier extracts the profile ID from a bearer token.
type TokenVerifier interface {
	Verify(token string) (uuid.UUID, error)
}

// Middleware wires authentication and role checks for HTTP handlers.
type Middleware struct {
	Actors ActorLookup
	Tokens TokenVerifier
	Logger *slog.Logger
}

// Authenticate resolves the actor from a bearer token or the session cookie and stores
// it in the request context. Requests without credentials pass through anonymously.
func (m Middleware) Authenticate(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		profileID, ok, err := m.profileID(r)
		if err != nil {
			httpx.RespondError(w, err)
			return
		}
		if !ok {
			next.ServeHTTP(w, r)
			return
		}
		actor, err := m.Actors.LookupActor(r.Context(), profileID)
		if err != nil {
			if !errors.Is(err, shared.ErrUnauthorized) && m.Logger != nil {
				m.Logger.Error("rbac lookup actor", slog.Any("error", err))
			}
			httpx.RespondError(w, err)
			return
		}
		next.ServeHTTP(w, r.WithContext(shared.ContextWithActor(r.Context(), actor)))
	})
}

// RequireAuth rejects anonymous requests with 401.
func (m Middleware) RequireAuth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if _, err := shared.ActorFromContext(r.Context()); err != nil {
			httpx.RespondError(w, err)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// RequireAny ensures the current actor holds one of roles.
func (m Middleware) RequireAny(roles ...shared.Role) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			actor, err := shared.ActorFromContext(r.Context())
			if err != nil {
				httpx.RespondError(w, err)
				return
			}
			if len(roles) > 0 && !actor.Role.In(roles...) {
				httpx.RespondError(w, shared.ErrForbidden)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

func (m Middleware) profileID(r *http.Request) (uuid.UUID, bool, error) {
	if header := r.Header.Get("Authorization"); header != "" {
		token, found := strings.CutPrefix(header, "Bearer ")
		if !found || m.Tokens == nil {
			return uuid.Nil, false, shared.ErrUnauthorized
		}
		id, err := m.Tokens.Verify(strings.TrimSpace(token))
		if err != nil {
			return uuid.Nil, false, shared.ErrUnauthorized
		}
		return id, true, nil
	}
	sess := shared.SessionFromContext(r.Context())
	if sess == nil {
		return uuid.Nil, false, nil
	}
	raw := strings.TrimSpace(sess.User())
	if raw == "" {
		return uuid.Nil, false, nil
	}
	id, err := uuid.Parse(raw)
	if err != nil {
		if m.Logger != nil {
			m.Logger.Error("rbac parse user id", slog.String("value", raw))
		}
		return uuid.Nil, false, shared.ErrUnauthorized
	}
	return id, true, nil
}

// BearerRequest reports whether r authenticates with a bearer token rather than a cookie.
func BearerRequest(r *http.Request) bool {
	return strings.HasPrefix(r.Header.Get("Authorization"), "Bearer ")
}
