package httpx

import (
	"net/http"
	"strconv"
	"strings"

	"github.com/target/engagement-ledger/internal/domain/model"
	apperrors "github.com/target/engagement-ledger/internal/errors"
)

const (
	defaultListLimit = 50
	maxListLimit     = 500
)

// parsePage reads ?limit and ?offset. Missing values take defaults, limit is
// clamped to [1, maxLimit], and non-numeric values are a validation error.
func parsePage(r *http.Request, defLimit, maxLimit int) (int, int, error) {
	q := r.URL.Query()
	limit, err := intParam(q.Get("limit"), "limit", defLimit)
	if err != nil {
		return 0, 0, err
	}
	offset, err := intParam(q.Get("offset"), "offset", 0)
	if err != nil {
		return 0, 0, err
	}
	return min(max(limit, 1), max(maxLimit, 1)), max(offset, 0), nil
}

func intParam(raw, field string, def int) (int, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return def, nil
	}
	v, err := strconv.Atoi(raw)
	if err != nil {
		return 0, apperrors.ValidationField(field, field+" must be an integer")
	}
	return v, nil
}

// jobTypesParam returns the ?type filter, or every outbox job type when absent.
func jobTypesParam(r *http.Request) ([]model.JobType, error) {
	raw := strings.TrimSpace(r.URL.Query().Get("type"))
	if raw == "" {
		return []model.JobType{model.JobTypePaymentSubmit, model.JobTypeNotification}, nil
	}
	var jt model.JobType
	if err := jt.UnmarshalText([]byte(raw)); err != nil {
		return nil, apperrors.ValidationField("type", err.Error())
	}
	return []model.JobType{jt}, nil
}
