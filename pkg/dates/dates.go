// Package dates provides the calendar-period arithmetic behind installment
// due dates. All operations work on calendar dates in UTC, never on instants,
// so results are deterministic and timezone-agnostic.
package dates

import (
	"time"

	"github.com/jmdavis/peerlend/pkg/models"
)

// DateOnly strips the time-of-day component, keeping the calendar date in UTC.
func DateOnly(t time.Time) time.Time {
	y, m, d := t.UTC().Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

// AddMonths adds n calendar months, clamping to the last day of the target
// month. Adding one month to Jan 31 lands on Feb 28 (or 29), never on a
// normalized March date.
func AddMonths(t time.Time, n int) time.Time {
	t = DateOnly(t)
	y, m, d := t.Date()
	first := time.Date(y, m+time.Month(n), 1, 0, 0, 0, 0, time.UTC)
	last := daysIn(first.Year(), first.Month())
	if d > last {
		d = last
	}
	return time.Date(first.Year(), first.Month(), d, 0, 0, 0, 0, time.UTC)
}

// AddPeriod advances a date by count periods of the given frequency.
func AddPeriod(t time.Time, f models.Frequency, count int) time.Time {
	t = DateOnly(t)
	switch f {
	case models.FrequencyWeekly:
		return t.AddDate(0, 0, 7*count)
	case models.FrequencyBiWeekly:
		return t.AddDate(0, 0, 14*count)
	case models.FrequencyMonthly:
		return AddMonths(t, count)
	case models.FrequencyQuarterly:
		return AddMonths(t, 3*count)
	case models.FrequencyHalfYearly:
		return AddMonths(t, 6*count)
	case models.FrequencyYearly:
		return AddMonths(t, 12*count)
	}
	return t
}

func daysIn(year int, month time.Month) int {
	// Day zero of the next month is the last day of this month.
	return time.Date(year, month+1, 0, 0, 0, 0, 0, time.UTC).Day()
}
