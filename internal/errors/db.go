package errors

import (
	"context"
	"errors"
	"regexp"
	"strings"

	"github.com/jackc/pgerrcode"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

var (
	// "Key (gateway_ref)=(gw_1) already exists."
	reDetailKey = regexp.MustCompile(`Key \(([^)]+)\)=`)
	// "... is still referenced from table "time_entries"." / "... is not present in table "contracts"."
	reDetailTable = regexp.MustCompile(`is (still referenced from|not present in) table "?([^"]+)"?`)
)

// ledgerIndexes maps the partial unique indexes that back ledger invariants to the
// error the service layer would have raised had its own check caught the race.
var ledgerIndexes = map[string]AppError{
	"time_entries_one_open_idx": {
		Code:    ErrCodeOpenIntervalExists,
		Message: "An open time interval already exists for this contract.",
	},
	"contracts_one_active_idx": {
		Code:    ErrCodeInvalidState,
		Message: "Another contract is already active for this employer, worker and job post.",
	},
	"contracts_one_live_per_post_idx": {
		Code:    ErrCodeInvalidState,
		Message: "The job post already has a live contract.",
	},
	"applications_job_post_id_worker_id_key": {
		Code:    ErrCodeConflict,
		Message: "The worker has already applied to this job post.",
		Field:   "worker_id",
	},
	"payments_gateway_ref_key": {
		Code:    ErrCodeConflict,
		Message: "Gateway reference is already assigned to another payment.",
		Field:   "gateway_ref",
	},
}

// tableNames holds display names for ledger tables, longest table name first so
// constraint prefixes match greedily.
var tableNames = []struct{ table, display string }{
	{"payment_time_entries", "Payment"},
	{"time_entries", "Time Entry"},
	{"applications", "Application"},
	{"milestones", "Milestone"},
	{"job_posts", "Job Post"},
	{"contracts", "Contract"},
	{"payments", "Payment"},
	{"jobs", "Job"},
}

// MapDBError translates driver errors into AppErrors: missing rows become not_found,
// constraint violations become conflict, foreign_key or validation, and lost
// serialization races become conflict. Context errors map to timeout and canceled.
// AppErrors pass through and anything unrecognized is returned unchanged.
func MapDBError(err error) error {
	if err == nil {
		return nil
	}
	var appErr *AppError
	if errors.As(err, &appErr) {
		return err
	}

	switch {
	case errors.Is(err, context.DeadlineExceeded):
		return Wrap(err, ErrCodeTimeout, "Request timed out. Please try again.")
	case errors.Is(err, context.Canceled):
		return Wrap(err, ErrCodeCanceled, "Request was canceled.")
	case errors.Is(err, pgx.ErrNoRows):
		return Wrap(err, ErrCodeNotFound, "Resource not found")
	}

	var pgErr *pgconn.PgError
	if !errors.As(err, &pgErr) {
		return err
	}

	switch pgErr.Code {
	case pgerrcode.UniqueViolation:
		return uniqueViolation(pgErr)
	case pgerrcode.ForeignKeyViolation:
		return Wrap(pgErr, ErrCodeForeignKey, foreignKeyMessage(pgErr))
	case pgerrcode.CheckViolation:
		field := firstNonEmpty(pgErr.ColumnName, fieldFromConstraint(strings.TrimSuffix(pgErr.ConstraintName, "_check")))
		return withField(Wrap(pgErr, ErrCodeValidation, "Invalid data. Please check your input."), field)
	case pgerrcode.NotNullViolation:
		if pgErr.ColumnName == "" {
			return Wrap(pgErr, ErrCodeValidation, "Required field is missing. Please check your input.")
		}
		return withField(Wrap(pgErr, ErrCodeValidation, "This field is required."), pgErr.ColumnName)
	case pgerrcode.SerializationFailure, pgerrcode.DeadlockDetected:
		return Wrap(pgErr, ErrCodeConflict, "The record was modified concurrently. Please retry.")
	default:
		return Wrap(pgErr, ErrCodeInternal, "A database error occurred. Please try again.")
	}
}

// IsRetryableTx reports whether rerunning the whole transaction may succeed.
func IsRetryableTx(err error) bool {
	var pgErr *pgconn.PgError
	if !errors.As(err, &pgErr) {
		return false
	}
	switch pgErr.Code {
	case pgerrcode.SerializationFailure, pgerrcode.DeadlockDetected:
		return true
	}
	return false
}

func uniqueViolation(pgErr *pgconn.PgError) *AppError {
	if known, ok := ledgerIndexes[pgErr.ConstraintName]; ok {
		known.Cause = pgErr
		return &known
	}
	var fromDetail string
	if m := reDetailKey.FindStringSubmatch(pgErr.Detail); m != nil {
		fromDetail = m[1]
	}
	field := firstNonEmpty(pgErr.ColumnName, fromDetail, fieldFromConstraint(pgErr.ConstraintName))
	return withField(Wrap(pgErr, ErrCodeConflict, "This value already exists."), field)
}

func foreignKeyMessage(pgErr *pgconn.PgError) string {
	if m := reDetailTable.FindStringSubmatch(pgErr.Detail); m != nil {
		if strings.HasPrefix(m[1], "still") {
			return "Cannot delete because this item is in use by " + displayName(m[2]) + "."
		}
		return "The referenced " + displayName(m[2]) + " does not exist."
	}
	if pgErr.TableName != "" {
		return "Cannot complete operation because this item is in use by " + displayName(pgErr.TableName) + "."
	}
	return "Cannot complete operation because a related record is missing or in use."
}

// fieldFromConstraint guesses the column behind a default-named constraint such as
// "payments_idempotency_key". Multi-column and expression constraints yield "".
func fieldFromConstraint(name string) string {
	name = strings.TrimSuffix(strings.TrimSuffix(name, "_key"), "_idx")
	rest := ""
	for _, t := range tableNames {
		if r, ok := strings.CutPrefix(name, t.table+"_"); ok {
			rest = r
			break
		}
	}
	if rest == "" {
		_, rest, _ = strings.Cut(name, "_")
	}
	if rest == "" || strings.Count(rest, "_") > 1 {
		return ""
	}
	switch strings.ToLower(rest) {
	case "lower", "upper", "trim", "ltrim", "rtrim", "md5", "coalesce":
		return ""
	}
	return rest
}

func displayName(table string) string {
	table = strings.ToLower(strings.TrimSpace(table))
	for _, t := range tableNames {
		if t.table == table {
			return t.display
		}
	}
	words := strings.Fields(strings.ReplaceAll(table, "_", " "))
	for i, w := range words {
		words[i] = strings.ToUpper(w[:1]) + w[1:]
	}
	return strings.Join(words, " ")
}

func withField(e *AppError, field string) *AppError {
	e.Field = field
	return e
}

func firstNonEmpty(vals ...string) string {
	for _, v := range vals {
		if v != "" {
			return v
		}
	}
	return ""
}
