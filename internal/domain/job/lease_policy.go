// Package job holds the outbox queue policies shared by the job service and runners.
package job

import (
	"errors"
	"time"
)

// ErrInvalidDefaultLease indicates the configured default lease duration is not positive.
var ErrInvalidDefaultLease = errors.New("default lease must be positive")

// DefaultMaxLease bounds any lease a runner can ask for. A crashed payment runner
// holds its job for at most this long before the reaper or another runner sees it.
const DefaultMaxLease = 15 * time.Minute

// LeasePolicy turns requested lease durations into whole seconds for the job store.
type LeasePolicy struct {
	def time.Duration
	max time.Duration
}

// NewLeasePolicy builds a policy with the given default lease and DefaultMaxLease.
func NewLeasePolicy(defaultLease time.Duration) (*LeasePolicy, error) {
	return NewBoundedLeasePolicy(defaultLease, DefaultMaxLease)
}

// NewBoundedLeasePolicy builds a policy with an explicit upper bound. A maxLease
// below the default is raised to it.
func NewBoundedLeasePolicy(defaultLease, maxLease time.Duration) (*LeasePolicy, error) {
	if defaultLease <= 0 {
		return nil, ErrInvalidDefaultLease
	}
	return &LeasePolicy{def: defaultLease, max: max(maxLease, defaultLease)}, nil
}

// Default returns the configured default lease duration.
func (p *LeasePolicy) Default() time.Duration {
	if p == nil {
		return 0
	}
	return p.def
}

// Lease is a resolved lease request.
type Lease struct {
	Seconds   int
	Requested time.Duration
	// Clamped is set when the request fell outside [1s, max] and was adjusted.
	Clamped bool
}

// Resolve maps a requested duration to a lease. Zero selects the default; other
// values are truncated to whole seconds and kept within [1s, max].
func (p *LeasePolicy) Resolve(request time.Duration) Lease {
	if p == nil {
		return Lease{Requested: request}
	}
	d := request
	if d == 0 {
		d = p.def
	}
	secs := int64(d / time.Second)
	limit := int64(p.max / time.Second)
	switch {
	case secs < 1:
		return Lease{Seconds: 1, Requested: request, Clamped: true}
	case secs > limit:
		return Lease{Seconds: int(limit), Requested: request, Clamped: true}
	default:
		return Lease{Seconds: int(secs), Requested: request}
	}
}
