package apperr

import (
	"errors"
	"fmt"
	"net/http"
	"testing"
)

func TestHTTPStatus(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want int
		kind string
	}{
		{"nil", nil, http.StatusOK, "ok"},
		{"not found", fmt.Errorf("dataset 7: %w", ErrNotFound), http.StatusNotFound, "not_found"},
		{"conflict", fmt.Errorf("parent 2 is stale: %w", ErrConflict), http.StatusConflict, "conflict"},
		{"invalid", fmt.Errorf("insight text required: %w", ErrInvalidInput), http.StatusBadRequest, "invalid_input"},
		{"internal", fmt.Errorf("commit: %w", ErrInternal), http.StatusInternalServerError, "internal"},
		{"unknown", errors.New("boom"), http.StatusInternalServerError, "internal"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := HTTPStatus(tt.err); got != tt.want {
				t.Errorf("HTTPStatus = %d, want %d", got, tt.want)
			}
			if got := Kind(tt.err); got != tt.kind {
				t.Errorf("Kind = %q, want %q", got, tt.kind)
			}
		})
	}
}
