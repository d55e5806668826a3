package httpx

import (
	"context"
	"errors"
	"log/slog"
	"net/http"

	"github.com/aquaflow/portal/internal/shared"
)

// IdempotencyHeader carries a client-chosen key for create requests.
const IdempotencyHeader = "Idempotency-Key"

// IdempotencyStore claims and releases request keys.
type IdempotencyStore interface {
	CheckAndInsert(ctx context.Context, key, scope string) error
	Delete(ctx context.Context, key, scope string) error
}

type statusWriter struct {
	http.ResponseWriter
	status int
}

func (w *statusWriter) WriteHeader(status int) {
	if w.status == 0 {
		w.status = status
	}
	w.ResponseWriter.WriteHeader(status)
}

func (w *statusWriter) Write(b []byte) (int, error) {
	if w.status == 0 {
		w.status = http.StatusOK
	}
	return w.ResponseWriter.Write(b)
}

// Idempotent rejects a repeated Idempotency-Key within scope with 409. Keys of failed
// requests are released so the client can retry.
func Idempotent(store IdempotencyStore, scope string, logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			key := r.Header.Get(IdempotencyHeader)
			if key == "" || store == nil {
				next.ServeHTTP(w, r)
				return
			}
			if actor, err := shared.ActorFromContext(r.Context()); err == nil {
				key = actor.ID.String() + ":" + key
			}
			if err := store.CheckAndInsert(r.Context(), key, scope); err != nil {
				if errors.Is(err, shared.ErrIdempotencyConflict) {
					Problem(w, http.StatusConflict, "duplicate request", "this request was already submitted")
					return
				}
				RespondError(w, err)
				return
			}
			sw := &statusWriter{ResponseWriter: w}
			next.ServeHTTP(sw, r)
			if sw.status >= http.StatusBadRequest {
				if err := store.Delete(context.WithoutCancel(r.Context()), key, scope); err != nil && logger != nil {
					logger.Warn("release idempotency key", slog.String("scope", scope), slog.Any("error", err))
				}
			}
		})
	}
}
