// Package errs holds the error kinds shared by the drive core. Callers wrap
// them with fmt.Errorf("...: %w", errs.X) and test with errors.Is.
package errs

import (
	"errors"
	"net/http"
)

var (
	ErrAccessDenied      = errors.New("access denied")
	ErrNotFound          = errors.New("not found")
	ErrCapacityExceeded  = errors.New("capacity exceeded")
	ErrMalformedState    = errors.New("malformed state")
	ErrUpstreamFetch     = errors.New("upstream fetch failed")
	ErrValidation        = errors.New("validation failed")
	ErrConflict          = errors.New("conflict")
	ErrUnauthenticated   = errors.New("unauthenticated")
	ErrUnsupportedFormat = errors.New("unsupported format")
)

// HTTPStatus maps an error to the status code reported at the API boundary.
func HTTPStatus(err error) int {
	switch {
	case err == nil:
		return http.StatusOK
	case errors.Is(err, ErrAccessDenied), errors.Is(err, ErrUnauthenticated):
		return http.StatusUnauthorized
	case errors.Is(err, ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, ErrValidation), errors.Is(err, ErrUnsupportedFormat):
		return http.StatusUnprocessableEntity
	case errors.Is(err, ErrConflict):
		return http.StatusConflict
	case errors.Is(err, ErrUpstreamFetch):
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

// PublicMessage returns the text safe to send to clients.
func PublicMessage(err error) string {
	switch HTTPStatus(err) {
	case http.StatusUnauthorized:
		return "unauthorized"
	case http.StatusInternalServerError:
		return "server error"
	default:
		return err.Error()
	}
}
