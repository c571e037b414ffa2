package data

import (
	"database/sql"
	"encoding/json"
	"time"

	"github.com/target/engagement-ledger/internal/domain/model"
)

func scanJobFromRow(s rowScanner) (*model.Job, error) {
	var (
		job                              model.Job
		payload, metadata                []byte
		lastError                        sql.NullString
		startedAt, completedAt, leaseEnd sql.NullTime
	)
	err := s.Scan(
		&job.ID, &job.Type, &job.Status, &job.Priority,
		&payload, &metadata,
		&job.ScheduledAt, &startedAt, &completedAt,
		&job.RetryCount, &job.MaxRetries, &lastError,
		&leaseEnd, &job.CreatedAt, &job.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	job.Payload = jsonOrEmpty(payload)
	job.Metadata = jsonOrEmpty(metadata)
	if lastError.Valid {
		job.LastError = &lastError.String
	}
	job.StartedAt = utcPtr(startedAt)
	job.CompletedAt = utcPtr(completedAt)
	job.LeaseExpiresAt = utcPtr(leaseEnd)
	return &job, nil
}

// jsonOrEmpty copies raw because pgx reuses scan buffers between rows.
func jsonOrEmpty(raw []byte) json.RawMessage {
	if len(raw) == 0 {
		return json.RawMessage(`{}`)
	}
	return append(json.RawMessage(nil), raw...)
}

func utcPtr(nt sql.NullTime) *time.Time {
	if !nt.Valid {
		return nil
	}
	t := nt.Time.UTC()
	return &t
}
