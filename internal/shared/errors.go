package shared

import (
	"errors"
	"net/http"
)

var (
	// ErrNotFound indicates resource not found.
	ErrNotFound = errors.New("not found")
	// ErrValidation indicates malformed input.
	ErrValidation = errors.New("validation failed")
	// ErrConflict indicates a request that collides with existing state.
	ErrConflict = errors.New("conflict")
	// ErrUnauthorized indicates a missing or invalid caller identity.
	ErrUnauthorized = errors.New("unauthorized")
	// ErrForbidden indicates a valid identity without the required role.
	ErrForbidden = errors.New("forbidden")
	// ErrInvalidTransition indicates the entity already left the pending state.
	ErrInvalidTransition = errors.New("already processed")
	// ErrInsufficientStock indicates a stock check failed during a mutation.
	ErrInsufficientStock = errors.New("insufficient stock")
	// ErrDuplicateCustomer indicates a phone or email uniqueness violation.
	ErrDuplicateCustomer = errors.New("customer already exists")
	// ErrStorage wraps transient backend failures.
	ErrStorage = errors.New("storage failure")
	// ErrInvalidCredentials indicates login failure.
	ErrInvalidCredentials = errors.New("invalid credentials")
	// ErrCSRFTokenMissing occurs when CSRF token missing.
	ErrCSRFTokenMissing = errors.New("csrf token missing")
	// ErrCSRFTokenMismatch occurs when CSRF tokens do not match.
	ErrCSRFTokenMismatch = errors.New("csrf token mismatch")
)

// Kind classifies errors surfaced at the request boundary.
type Kind string

const (
	KindUnauthorized      Kind = "unauthorized"
	KindForbidden         Kind = "forbidden"
	KindInvalidTransition Kind = "invalid_transition"
	KindInsufficientStock Kind = "insufficient_stock"
	KindDuplicateCustomer Kind = "duplicate_customer"
	KindStorageFailure    Kind = "storage_failure"
	KindNotFound          Kind = "not_found"
	KindValidation        Kind = "validation"
	KindConflict          Kind = "conflict"
)

// KindMeta describes how a kind is presented to callers.
type KindMeta struct {
	HTTPStatus    int
	Retryable     bool
	PublicMessage string
}

var kindMeta = map[Kind]KindMeta{
	KindUnauthorized:      {HTTPStatus: http.StatusUnauthorized, PublicMessage: "sign in to continue"},
	KindForbidden:         {HTTPStatus: http.StatusForbidden, PublicMessage: "your role cannot perform this action"},
	KindInvalidTransition: {HTTPStatus: http.StatusConflict, PublicMessage: "this record has already been processed"},
	KindInsufficientStock: {HTTPStatus: http.StatusUnprocessableEntity, PublicMessage: "not enough stock"},
	KindDuplicateCustomer: {HTTPStatus: http.StatusConflict, PublicMessage: "a customer with this phone or email already exists"},
	KindStorageFailure:    {HTTPStatus: http.StatusServiceUnavailable, Retryable: true, PublicMessage: "temporary failure, please retry"},
	KindNotFound:          {HTTPStatus: http.StatusNotFound, PublicMessage: "not found"},
	KindValidation:        {HTTPStatus: http.StatusBadRequest, PublicMessage: "invalid input"},
	KindConflict:          {HTTPStatus: http.StatusConflict, PublicMessage: "request conflicts with existing data"},
}

// KindOf maps an error onto the boundary taxonomy. Driver errors that no retry can fix
// map to conflict or validation; anything else unknown is a storage failure.
func KindOf(err error) Kind {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, ErrUnauthorized), errors.Is(err, ErrInvalidCredentials):
		return KindUnauthorized
	case errors.Is(err, ErrForbidden), errors.Is(err, ErrCSRFTokenMissing), errors.Is(err, ErrCSRFTokenMismatch):
		return KindForbidden
	case errors.Is(err, ErrInvalidTransition):
		return KindInvalidTransition
	case errors.Is(err, ErrInsufficientStock):
		return KindInsufficientStock
	case errors.Is(err, ErrDuplicateCustomer):
		return KindDuplicateCustomer
	case errors.Is(err, ErrNotFound):
		return KindNotFound
	case errors.Is(err, ErrValidation):
		return KindValidation
	case errors.Is(err, ErrConflict):
		return KindConflict
	case IsUniqueViolation(err):
		return KindConflict
	case IsRejectedInput(err):
		return KindValidation
	default:
		return KindStorageFailure
	}
}

// Describe returns presentation metadata for kind.
func Describe(kind Kind) KindMeta {
	if meta, ok := kindMeta[kind]; ok {
		return meta
	}
	return kindMeta[KindStorageFailure]
}
