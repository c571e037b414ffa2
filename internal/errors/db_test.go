package errors

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"

	"github.com/jackc/pgerrcode"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

func TestMapDBError_NilError(t *testing.T) {
	if err := MapDBError(nil); err != nil {
		t.Errorf("MapDBError(nil) = %v, want nil", err)
	}
}

func TestMapDBError_ContextErrors(t *testing.T) {
	tests := []struct {
		name     string
		err      error
		wantCode ErrorCode
	}{
		{name: "deadline exceeded", err: context.DeadlineExceeded, wantCode: ErrCodeTimeout},
		{name: "canceled", err: context.Canceled, wantCode: ErrCodeCanceled},
		{name: "wrapped deadline", err: fmt.Errorf("query: %w", context.DeadlineExceeded), wantCode: ErrCodeTimeout},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := MapDBError(tt.err)
			if !IsAppError(err, tt.wantCode) {
				t.Errorf("MapDBError() code = %v, want %v", GetCode(err), tt.wantCode)
			}
		})
	}
}

func TestMapDBError_NoRows(t *testing.T) {
	err := MapDBError(fmt.Errorf("get contract: %w", pgx.ErrNoRows))
	if !IsNotFound(err) {
		t.Errorf("MapDBError(pgx.ErrNoRows) should be NotFound, got %v", GetCode(err))
	}
}

func TestMapDBError_PassesThroughAppError(t *testing.T) {
	in := InvalidState("milestone is not submitted")
	out := MapDBError(in)
	if out != error(in) {
		t.Errorf("MapDBError() should return AppError unchanged, got %v", out)
	}
}

func TestMapDBError_LedgerConstraints(t *testing.T) {
	tests := []struct {
		name       string
		constraint string
		wantCode   ErrorCode
		wantField  string
	}{
		{name: "open interval", constraint: "time_entries_one_open_idx", wantCode: ErrCodeOpenIntervalExists},
		{name: "one active contract", constraint: "contracts_one_active_idx", wantCode: ErrCodeInvalidState},
		{name: "one live contract per post", constraint: "contracts_one_live_per_post_idx", wantCode: ErrCodeInvalidState},
		{
			name:       "duplicate application",
			constraint: "applications_job_post_id_worker_id_key",
			wantCode:   ErrCodeConflict,
			wantField:  "worker_id",
		},
		{
			name:       "duplicate gateway ref",
			constraint: "payments_gateway_ref_key",
			wantCode:   ErrCodeConflict,
			wantField:  "gateway_ref",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := MapDBError(&pgconn.PgError{Code: pgerrcode.UniqueViolation, ConstraintName: tt.constraint})
			if !IsAppError(err, tt.wantCode) {
				t.Fatalf("code = %v, want %v", GetCode(err), tt.wantCode)
			}
			if got := GetField(err); got != tt.wantField {
				t.Errorf("field = %q, want %q", got, tt.wantField)
			}
			var pgErr *pgconn.PgError
			if !errors.As(err, &pgErr) {
				t.Errorf("mapped error should wrap the PgError")
			}
		})
	}
}

func TestMapDBError_UniqueViolationFieldInference(t *testing.T) {
	tests := []struct {
		name      string
		pgErr     *pgconn.PgError
		wantField string
	}{
		{
			name:      "column name wins",
			pgErr:     &pgconn.PgError{ColumnName: "title", ConstraintName: "job_posts_other_key"},
			wantField: "title",
		},
		{
			name:      "detail parsing",
			pgErr:     &pgconn.PgError{Detail: "Key (gateway_ref)=(gw_1) already exists."},
			wantField: "gateway_ref",
		},
		{
			name:      "constraint inference",
			pgErr:     &pgconn.PgError{ConstraintName: "payments_idempotency_key"},
			wantField: "idempotency",
		},
		{
			name:      "ambiguous multi column",
			pgErr:     &pgconn.PgError{ConstraintName: "contracts_employer_id_worker_id_key"},
			wantField: "",
		},
		{
			name:      "expression index",
			pgErr:     &pgconn.PgError{ConstraintName: "job_posts_lower_idx"},
			wantField: "",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tt.pgErr.Code = pgerrcode.UniqueViolation
			err := MapDBError(tt.pgErr)
			if !IsConflict(err) {
				t.Fatalf("code = %v, want conflict", GetCode(err))
			}
			if got := GetField(err); got != tt.wantField {
				t.Errorf("field = %q, want %q", got, tt.wantField)
			}
		})
	}
}

func TestMapDBError_ForeignKeyMessages(t *testing.T) {
	tests := []struct {
		name        string
		pgErr       *pgconn.PgError
		wantContain string
	}{
		{
			name: "missing parent",
			pgErr: &pgconn.PgError{
				Detail: `Key (contract_id)=(abc) is not present in table "contracts".`,
			},
			wantContain: "referenced Contract does not exist",
		},
		{
			name: "parent still referenced",
			pgErr: &pgconn.PgError{
				Detail: `Key (id)=(abc) is still referenced from table "time_entries".`,
			},
			wantContain: "in use by Time Entry",
		},
		{
			name:        "table fallback",
			pgErr:       &pgconn.PgError{TableName: "payment_time_entries"},
			wantContain: "in use by Payment",
		},
		{
			name:        "generic",
			pgErr:       &pgconn.PgError{},
			wantContain: "related record",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tt.pgErr.Code = pgerrcode.ForeignKeyViolation
			err := MapDBError(tt.pgErr)
			if !IsForeignKey(err) {
				t.Fatalf("code = %v, want foreign_key", GetCode(err))
			}
			var appErr *AppError
			errors.As(err, &appErr)
			if !strings.Contains(appErr.Message, tt.wantContain) {
				t.Errorf("message = %q, want to contain %q", appErr.Message, tt.wantContain)
			}
		})
	}
}

func TestMapDBError_ValidationViolations(t *testing.T) {
	notNull := MapDBError(&pgconn.PgError{Code: pgerrcode.NotNullViolation, ColumnName: "worker_id"})
	if !IsValidation(notNull) || GetField(notNull) != "worker_id" {
		t.Errorf("not null: code=%v field=%q", GetCode(notNull), GetField(notNull))
	}

	check := MapDBError(&pgconn.PgError{Code: pgerrcode.CheckViolation, ConstraintName: "payments_fee_check"})
	if !IsValidation(check) || GetField(check) != "fee" {
		t.Errorf("check: code=%v field=%q", GetCode(check), GetField(check))
	}
}

func TestMapDBError_ConcurrencyFailures(t *testing.T) {
	for _, code := range []string{pgerrcode.SerializationFailure, pgerrcode.DeadlockDetected} {
		err := MapDBError(&pgconn.PgError{Code: code})
		if !IsConflict(err) {
			t.Errorf("code %s: got %v, want conflict", code, GetCode(err))
		}
	}
}

func TestMapDBError_UnknownPgError(t *testing.T) {
	err := MapDBError(&pgconn.PgError{Code: pgerrcode.DiskFull})
	if !IsInternal(err) {
		t.Errorf("got %v, want internal", GetCode(err))
	}
}

func TestMapDBError_Unrecognized(t *testing.T) {
	in := errors.New("boom")
	if out := MapDBError(in); out != in {
		t.Errorf("MapDBError() = %v, want original error", out)
	}
}

func TestIsRetryableTx(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want bool
	}{
		{name: "serialization", err: &pgconn.PgError{Code: pgerrcode.SerializationFailure}, want: true},
		{name: "deadlock wrapped", err: fmt.Errorf("tx: %w", &pgconn.PgError{Code: pgerrcode.DeadlockDetected}), want: true},
		{name: "unique", err: &pgconn.PgError{Code: pgerrcode.UniqueViolation}, want: false},
		{name: "plain", err: errors.New("x"), want: false},
		{name: "nil", err: nil, want: false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := IsRetryableTx(tt.err); got != tt.want {
				t.Errorf("IsRetryableTx() = %v, want %v", got, tt.want)
			}
		})
	}
}

// IsAppError is a helper function to check if an error is an AppError with a specific code.
func IsAppError(err error, code ErrorCode) bool {
	return GetCode(err) == code
}
