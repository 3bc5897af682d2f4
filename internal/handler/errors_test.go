package handler

import (
	"errors"
	"fmt"
	"log/slog"
	"net/http/httptest"
	"testing"

	"loom/internal/domain"
)

func TestHandleErrorStatusMapping(t *testing.T) {
	tests := []struct {
		name       string
		err        error
		wantStatus int
	}{
		{
			name:       "typed not found",
			err:        &domain.NotFoundError{Message: "project p1 not found"},
			wantStatus: 404,
		},
		{
			name:       "sentinel not found from repository",
			err:        fmt.Errorf("project p1: %w", domain.ErrNotFound),
			wantStatus: 404,
		},
		{
			name:       "sentinel conflict",
			err:        fmt.Errorf("project type %q: %w", "Software Delivery", domain.ErrConflict),
			wantStatus: 409,
		},
		{
			name:       "sentinel validation",
			err:        fmt.Errorf("parent document: %w", domain.ErrValidation),
			wantStatus: 400,
		},
		{
			name:       "sentinel unauthorized",
			err:        fmt.Errorf("token: %w", domain.ErrUnauthorized),
			wantStatus: 401,
		},
		{
			name:       "typed validation",
			err:        &domain.ValidationError{Message: "query is required"},
			wantStatus: 400,
		},
		{
			name:       "unknown error",
			err:        errors.New("pool exhausted"),
			wantStatus: 500,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := httptest.NewRecorder()
			req := httptest.NewRequest("GET", "/api/projects/p1", nil)

			handleError(rec, req, slog.Default(), tt.err)

			if rec.Code != tt.wantStatus {
				t.Errorf("status = %d, want %d", rec.Code, tt.wantStatus)
			}
		})
	}
}
