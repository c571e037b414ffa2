package data

import "errors"

// Shared sentinel errors for data-layer repositories.
var (
	// ErrJobNotFound is returned when a job is not found.
	ErrJobNotFound = errors.New("job not found")

	// ErrTxRequired is returned by in-transaction helpers handed a nil transaction.
	ErrTxRequired = errors.New("transaction is required")
)
