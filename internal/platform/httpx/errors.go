package httpx

import (
	"errors"
	"net/http"
)

// Sentinel errors for the domain layer.
var (
	ErrNotFound    = errors.New("resource not found")
	ErrConflict    = errors.New("conflicting state")
	ErrValidation  = errors.New("validation failed")
	ErrUnavailable = errors.New("storage unavailable")
)

// statusError is implemented by errors that carry their own HTTP
// mapping, e.g. authorization denials. PublicMessage is what the
// caller may see; internals stay in the error string for logs.
type statusError interface {
	StatusCode() int
	PublicMessage() string
}

// RespondError maps domain errors to HTTP responses using RFC7807.
func RespondError(w http.ResponseWriter, err error) {
	var se statusError
	switch {
	case errors.As(err, &se):
		Problem(w, se.StatusCode(), http.StatusText(se.StatusCode()), se.PublicMessage())
	case errors.Is(err, ErrNotFound):
		Problem(w, http.StatusNotFound, "Not Found", err.Error())
	case errors.Is(err, ErrConflict):
		Problem(w, http.StatusConflict, "Conflict", err.Error())
	case errors.Is(err, ErrValidation):
		Problem(w, http.StatusUnprocessableEntity, "Validation Failed", err.Error())
	case errors.Is(err, ErrUnavailable):
		Problem(w, http.StatusServiceUnavailable, "Storage Unavailable", "temporary failure, retry the request")
	default:
		Problem(w, http.StatusInternalServerError, "Internal Error", "")
	}
}
