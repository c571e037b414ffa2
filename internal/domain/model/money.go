package model

import (
	"fmt"
	"time"
)

// Cents is an amount of money in minor currency units.
type Cents int64

// String renders the amount as a decimal with two fractional digits, e.g. 3167 → "31.67".
func (c Cents) String() string {
	sign := ""
	v := int64(c)
	if v < 0 {
		sign = "-"
		v = -v
	}
	return fmt.Sprintf("%s%d.%02d", sign, v/100, v%100)
}

// HourlyAmount prices minutes of work at rate cents per hour, rounding half up to
// the nearest cent. 95 minutes at 2000/h yields 3167.
func HourlyAmount(minutes int, rate Cents) Cents {
	if minutes <= 0 || rate <= 0 {
		return 0
	}
	num := int64(minutes) * int64(rate)
	return Cents((num + 30) / 60)
}

// BillableMinutes returns the whole minutes covered by [start, end], rounding any
// partial minute up.
func BillableMinutes(start, end time.Time) int {
	d := end.Sub(start)
	if d <= 0 {
		return 0
	}
	mins := d / time.Minute
	if d%time.Minute != 0 {
		mins++
	}
	return int(mins)
}
