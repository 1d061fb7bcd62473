package domain

import "time"

// TimeRange selects the reporting window ending at "now".
type TimeRange string

const (
	RangeDay   TimeRange = "day"
	RangeWeek  TimeRange = "week"
	RangeMonth TimeRange = "month"
	RangeYear  TimeRange = "year"
)

func ParseTimeRange(s string) (TimeRange, bool) {
	switch TimeRange(s) {
	case RangeDay, RangeWeek, RangeMonth, RangeYear:
		return TimeRange(s), true
	}
	return "", false
}

// PeriodStart returns the calendar-aware start of the window in loc.
// Day means midnight of the current local day; week, month and year
// subtract whole calendar units via AddDate, so month boundaries
// follow Go's normalization rules (Mar 31 minus one month is Mar 3).
func (r TimeRange) PeriodStart(now time.Time, loc *time.Location) time.Time {
	local := now.In(loc)
	switch r {
	case RangeDay:
		return time.Date(local.Year(), local.Month(), local.Day(), 0, 0, 0, 0, loc)
	case RangeWeek:
		return local.AddDate(0, 0, -7)
	case RangeMonth:
		return local.AddDate(0, -1, 0)
	case RangeYear:
		return local.AddDate(-1, 0, 0)
	}
	return local
}
