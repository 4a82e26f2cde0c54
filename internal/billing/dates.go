// Package billing holds the pure rules of the subscription lifecycle: billing-period date
// arithmetic, the access policy and the gateway status mapping. Nothing here performs I/O.
package billing

import "time"

// AddBillingMonth advances t by one calendar month, keeping the time of day and location.
// When the day does not exist in the target month it is clamped to that month's last day,
// so Jan 31 becomes Feb 28 (Feb 29 in leap years) while Feb 28 becomes Mar 28.
func AddBillingMonth(t time.Time) time.Time {
	return AddBillingMonths(t, 1)
}

// AddBillingMonths applies AddBillingMonth n times in one step. n must be non-negative.
func AddBillingMonths(t time.Time, n int) time.Time {
	year, month, day := t.Date()
	hour, minute, sec := t.Clock()

	target := time.Date(year, month+time.Month(n), 1, 0, 0, 0, 0, t.Location())
	if last := daysIn(target.Year(), target.Month(), t.Location()); day > last {
		day = last
	}
	return time.Date(target.Year(), target.Month(), day, hour, minute, sec, t.Nanosecond(), t.Location())
}

func daysIn(year int, month time.Month, loc *time.Location) int {
	// Day 0 of the following month is the last day of this one.
	return time.Date(year, month+1, 0, 0, 0, 0, 0, loc).Day()
}

// RenewalBase is the date a renewal extends from: the current end of the paid period, or
// now when the record has never had one.
func RenewalBase(currentEnd *time.Time, now time.Time) time.Time {
	if currentEnd == nil || currentEnd.IsZero() {
		return now
	}
	return *currentEnd
}
