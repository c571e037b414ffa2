package testutil

import "time"

// TestTime is the fixed instant ledger fixtures are stamped with: a Monday, 09:00 UTC.
func TestTime() time.Time {
	return time.Date(2025, 3, 3, 9, 0, 0, 0, time.UTC)
}

func TimePtr(t time.Time) *time.Time { return &t }
