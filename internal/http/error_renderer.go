package httpx

import (
	"context"
	"errors"
	"net/http"

	apperrors "github.com/target/engagement-ledger/internal/errors"
	"github.com/target/engagement-ledger/internal/ports"
)

// statusClientClosedRequest is the de facto status for a request the client abandoned.
const statusClientClosedRequest = 499

var statusByCode = map[apperrors.ErrorCode]int{ //nolint:gochecknoglobals // read-only lookup table
	apperrors.ErrCodeNotFound:           http.StatusNotFound,
	apperrors.ErrCodeForbidden:          http.StatusForbidden,
	apperrors.ErrCodeInvalidState:       http.StatusConflict,
	apperrors.ErrCodeOutstandingWork:    http.StatusConflict,
	apperrors.ErrCodeOpenIntervalExists: http.StatusConflict,
	apperrors.ErrCodeDegenerateInterval: http.StatusUnprocessableEntity,
	apperrors.ErrCodeAlreadySettled:     http.StatusOK,
	apperrors.ErrCodeGateway:            http.StatusBadGateway,
	apperrors.ErrCodeConflict:           http.StatusConflict,
	apperrors.ErrCodeValidation:         http.StatusBadRequest,
	apperrors.ErrCodeForeignKey:         http.StatusBadRequest,
	apperrors.ErrCodeInternal:           http.StatusInternalServerError,
	apperrors.ErrCodeTimeout:            http.StatusGatewayTimeout,
	apperrors.ErrCodeCanceled:           statusClientClosedRequest,
}

// StatusForError maps an error to its HTTP status and wire error code.
func StatusForError(err error) (int, string) {
	switch {
	case errors.Is(err, ports.ErrUnauthenticated):
		return http.StatusUnauthorized, "unauthenticated"
	case errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout, string(apperrors.ErrCodeTimeout)
	case errors.Is(err, context.Canceled):
		return statusClientClosedRequest, string(apperrors.ErrCodeCanceled)
	}
	code := apperrors.GetCode(err)
	if status, ok := statusByCode[code]; ok {
		return status, string(code)
	}
	return http.StatusInternalServerError, string(apperrors.ErrCodeInternal)
}

// WriteAppError renders err as {"error": code, "message": ...}. Internal errors
// never leak their cause; the logging middleware records it instead.
func WriteAppError(w http.ResponseWriter, r *http.Request, err error) {
	status, code := StatusForError(err)
	recordError(r, err)

	if code == string(apperrors.ErrCodeAlreadySettled) {
		WriteJSON(w, status, map[string]any{"already_settled": true, "message": appMessage(err)})
		return
	}

	body := map[string]string{"error": code, "message": appMessage(err)}
	if status >= http.StatusInternalServerError && status != http.StatusBadGateway && status != http.StatusGatewayTimeout {
		body["message"] = "internal error"
	}
	if field := apperrors.GetField(err); field != "" {
		body["field"] = field
	}
	WriteJSON(w, status, body)
}

func appMessage(err error) string {
	var appErr *apperrors.AppError
	if errors.As(err, &appErr) && appErr.Message != "" {
		return appErr.Message
	}
	return err.Error()
}
