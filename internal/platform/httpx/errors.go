// Package httpx provides HTTP response utilities.
package httpx

import (
	"errors"
	"net/http"

	"github.com/aquaflow/portal/internal/shared"
)

// ShortageDetail is implemented by errors that describe a stock shortfall.
type ShortageDetail interface {
	ShortageFields() map[string]string
}

// RespondError maps domain errors to RFC7807 responses using the shared error taxonomy.
func RespondError(w http.ResponseWriter, err error) {
	kind := shared.KindOf(err)
	meta := shared.Describe(kind)
	problem := ProblemDetail{
		Type:   "urn:portal:error:" + string(kind),
		Title:  meta.PublicMessage,
		Status: meta.HTTPStatus,
	}
	switch kind {
	case shared.KindInsufficientStock, shared.KindValidation, shared.KindNotFound:
		problem.Detail = err.Error()
	}
	var shortage ShortageDetail
	if errors.As(err, &shortage) {
		problem.Extensions = shortage.ShortageFields()
	}
	if meta.Retryable {
		w.Header().Set("Retry-After", "1")
	}
	JSON(w, meta.HTTPStatus, problem)
}
