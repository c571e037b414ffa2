package model

import "time"

// TimeEntryStatus is the review status of a tracked interval.
type TimeEntryStatus string

const (
	TimeEntryStatusPending  TimeEntryStatus = "pending"
	TimeEntryStatusApproved TimeEntryStatus = "approved"
	TimeEntryStatusRejected TimeEntryStatus = "rejected"
	TimeEntryStatusPaid     TimeEntryStatus = "paid"
)

// Valid reports whether s is a known time entry status.
func (s TimeEntryStatus) Valid() bool {
	switch s {
	case TimeEntryStatusPending, TimeEntryStatusApproved, TimeEntryStatusRejected, TimeEntryStatusPaid:
		return true
	}
	return false
}

// TimeEntry is one start/stop interval of hourly work.
type TimeEntry struct {
	ID              string          `json:"id"`
	ContractID      string          `json:"contract_id"`
	WorkerID        string          `json:"worker_id"`
	StartTime       time.Time       `json:"start_time"`
	EndTime         *time.Time      `json:"end_time,omitempty"`
	DurationMinutes *int            `json:"duration_minutes,omitempty"`
	Status          TimeEntryStatus `json:"status"`
	// PaymentID links the entry to the in-flight or completed batch payment.
	PaymentID *string   `json:"payment_id,omitempty"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Open reports whether the interval has not been stopped.
func (e *TimeEntry) Open() bool { return e.EndTime == nil }

// Minutes returns the derived duration, or zero while the interval is open.
func (e *TimeEntry) Minutes() int {
	if e.DurationMinutes == nil {
		return 0
	}
	return *e.DurationMinutes
}
