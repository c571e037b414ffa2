package httpx

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	apperrors "github.com/target/engagement-ledger/internal/errors"
	"github.com/target/engagement-ledger/internal/ports"
)

func TestStatusForError(t *testing.T) {
	tests := []struct {
		name   string
		err    error
		status int
		code   string
	}{
		{"not found", apperrors.NotFound("contract not found"), http.StatusNotFound, "not_found"},
		{"forbidden", apperrors.Forbidden("no"), http.StatusForbidden, "forbidden"},
		{"invalid state", apperrors.InvalidState("paused"), http.StatusConflict, "invalid_state"},
		{"outstanding work", apperrors.OutstandingWork("milestones"), http.StatusConflict, "outstanding_work"},
		{"open interval", apperrors.OpenIntervalExists("open"), http.StatusConflict, "open_interval_exists"},
		{"degenerate interval", apperrors.DegenerateInterval("too short"), http.StatusUnprocessableEntity, "degenerate_interval"},
		{"already settled", apperrors.AlreadySettled("paid"), http.StatusOK, "already_settled"},
		{"gateway", apperrors.Gateway(errors.New("503"), "submit"), http.StatusBadGateway, "gateway"},
		{"conflict", apperrors.Conflict("ref mismatch"), http.StatusConflict, "conflict"},
		{"validation", apperrors.ValidationField("title", "required"), http.StatusBadRequest, "validation"},
		{"foreign key", apperrors.ForeignKey("unknown contract"), http.StatusBadRequest, "foreign_key"},
		{"internal", apperrors.Internal("boom"), http.StatusInternalServerError, "internal"},
		{"plain error", errors.New("boom"), http.StatusInternalServerError, "internal"},
		{"deadline", fmt.Errorf("query: %w", context.DeadlineExceeded), http.StatusGatewayTimeout, "timeout"},
		{"canceled", context.Canceled, statusClientClosedRequest, "canceled"},
		{"unauthenticated", fmt.Errorf("verify: %w", ports.ErrUnauthenticated), http.StatusUnauthorized, "unauthenticated"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			status, code := StatusForError(tt.err)
			assert.Equal(t, tt.status, status)
			assert.Equal(t, tt.code, code)
		})
	}
}

func renderError(t *testing.T, err error) (int, map[string]any) {
	t.Helper()
	rec := httptest.NewRecorder()
	WriteAppError(rec, httptest.NewRequest(http.MethodGet, "/", nil), err)
	var body map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	return rec.Code, body
}

func TestWriteAppError(t *testing.T) {
	t.Run("validation carries the field", func(t *testing.T) {
		status, body := renderError(t, apperrors.ValidationField("amount_cents", "must be positive"))
		assert.Equal(t, http.StatusBadRequest, status)
		assert.Equal(t, "amount_cents", body["field"])
		assert.Equal(t, "must be positive", body["message"])
	})

	t.Run("internal errors hide their cause", func(t *testing.T) {
		status, body := renderError(t, fmt.Errorf("scan row: %w", errors.New("pq: password authentication failed")))
		assert.Equal(t, http.StatusInternalServerError, status)
		assert.Equal(t, "internal error", body["message"])
	})

	t.Run("already settled is a success body", func(t *testing.T) {
		status, body := renderError(t, apperrors.AlreadySettled("milestone is already paid"))
		assert.Equal(t, http.StatusOK, status)
		assert.Equal(t, true, body["already_settled"])
		assert.NotContains(t, body, "error")
	})

	t.Run("error is recorded for the access log", func(t *testing.T) {
		r, rl := withRequestLog(httptest.NewRequest(http.MethodGet, "/", nil))
		err := apperrors.NotFound("gone")
		WriteAppError(httptest.NewRecorder(), r, err)
		assert.Equal(t, err, rl.err)
	})
}
