package layout

import (
	"sort"
	"time"
)

// Midnight returns the start of the calendar day containing t in loc.
func Midnight(t time.Time, loc *time.Location) time.Time {
	t = t.In(loc)
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, loc)
}

// NextCalendarDay returns the midnight of the calendar day after the one
// containing t. Adding a fixed 24h lands on 23:00 or 01:00 across a DST
// transition, so the result is cleared to midnight again after the step.
func NextCalendarDay(t time.Time, loc *time.Location) time.Time {
	return Midnight(Midnight(t, loc).AddDate(0, 0, 1), loc)
}

// VisibleDays returns n consecutive local midnights starting with the day
// containing anchor.
func VisibleDays(anchor time.Time, n int, loc *time.Location) []time.Time {
	if n <= 0 {
		return nil
	}
	days := make([]time.Time, n)
	days[0] = Midnight(anchor, loc)
	for i := 1; i < n; i++ {
		days[i] = NextCalendarDay(days[i-1], loc)
	}
	return days
}

// DayIndex returns the index of the visible day containing t, or -1.
func DayIndex(days []time.Time, t time.Time) int {
	if len(days) == 0 || t.Before(days[0]) {
		return -1
	}
	last := days[len(days)-1]
	if !t.Before(NextCalendarDay(last, last.Location())) {
		return -1
	}
	// First day starting after t, minus one.
	return sort.Search(len(days), func(i int) bool { return days[i].After(t) }) - 1
}

// minuteOfDay returns the wall-clock minute of t within its day.
func minuteOfDay(t time.Time, loc *time.Location) int {
	t = t.In(loc)
	return t.Hour()*60 + t.Minute()
}

// lastDay returns the midnight of the day an interval ending at end last
// touches. An end exactly at midnight belongs to the previous day.
func lastDay(start, end time.Time, loc *time.Location) time.Time {
	if end.After(start) && Midnight(end, loc).Equal(end) {
		return Midnight(end.Add(-time.Nanosecond), loc)
	}
	return Midnight(end, loc)
}

// At returns the instant minute minutes into the day starting at midnight.
// Minute 1440 is the next midnight. Wall-clock minutes that do not exist
// on a DST day are normalized by time.Date.
func At(midnight time.Time, minute int) time.Time {
	loc := midnight.Location()
	if minute >= 24*60 {
		return NextCalendarDay(midnight, loc)
	}
	return time.Date(midnight.Year(), midnight.Month(), midnight.Day(), 0, minute, 0, 0, loc)
}
