package errs

import (
	"fmt"
	"net/http"
	"testing"
)

func TestHTTPStatusFollowsWrappedKind(t *testing.T) {
	cases := map[error]int{
		fmt.Errorf("doc 1: %w", ErrAccessDenied):        http.StatusUnauthorized,
		fmt.Errorf("doc 1: %w", ErrNotFound):            http.StatusNotFound,
		fmt.Errorf("org doc: %w", ErrValidation):        http.StatusUnprocessableEntity,
		fmt.Errorf("signature in use: %w", ErrConflict): http.StatusConflict,
		fmt.Errorf("fetch: %w", ErrUpstreamFetch):       http.StatusBadGateway,
		fmt.Errorf("sign: %w", ErrCapacityExceeded):     http.StatusInternalServerError,
		fmt.Errorf("sign: %w", ErrMalformedState):       http.StatusInternalServerError,
	}
	for err, want := range cases {
		if got := HTTPStatus(err); got != want {
			t.Fatalf("%v: expected %d, got %d", err, want, got)
		}
	}
}

func TestPublicMessageHidesInternals(t *testing.T) {
	err := fmt.Errorf("pq: relation missing: %w", ErrMalformedState)
	if got := PublicMessage(err); got != "server error" {
		t.Fatalf("expected generic message, got %q", got)
	}
}
