package layout

import (
	"time"

	"github.com/cpuguy83/calgrid/internal/calendar"
)

// MinutesPerDay is the extent of a segment's day.
const MinutesPerDay = 24 * 60

// Kind classifies an event for splitting.
type Kind int

const (
	// KindTimed starts and ends on the same calendar day.
	KindTimed Kind = iota
	// KindAllDay is flagged all-day by its source.
	KindAllDay
	// KindMultiDayTimed is not flagged all-day but crosses midnight.
	KindMultiDayTimed
)

func (k Kind) String() string {
	switch k {
	case KindAllDay:
		return "all-day"
	case KindMultiDayTimed:
		return "multi-day"
	default:
		return "timed"
	}
}

// Classify returns how ev is split. An end exactly at midnight belongs to
// the previous day, so 22:00 to 00:00 is a timed event.
func Classify(ev calendar.Event, loc *time.Location) Kind {
	if ev.AllDay {
		return KindAllDay
	}
	if lastDay(ev.Start, ev.End, loc).After(Midnight(ev.Start, loc)) {
		return KindMultiDayTimed
	}
	return KindTimed
}

// Segment is the part of one event that falls on one visible day.
type Segment struct {
	// Owner is the calendar.Event Key the segment was cut from.
	Owner string
	// Day indexes the visible days.
	Day int
	// Start and End are minutes of the day, End exclusive, 0 <= Start < End <= 1440.
	Start int
	End   int

	ContinuesBefore bool
	ContinuesAfter  bool
}

// Duration returns the segment length in minutes.
func (s Segment) Duration() int { return s.End - s.Start }

// Banner is the all-day lane representation of an event, clipped to the
// visible days.
type Banner struct {
	Owner    string
	StartDay int
	Days     int

	// AllDay is false for multi-day timed events shown in the lane.
	AllDay          bool
	ContinuesBefore bool
	ContinuesAfter  bool
}

// EndDay returns the last visible day the banner covers.
func (b Banner) EndDay() int { return b.StartDay + b.Days - 1 }

// Covers reports whether the banner occupies day.
func (b Banner) Covers(day int) bool {
	return day >= b.StartDay && day <= b.EndDay()
}

// Split cuts ev into per-day timed segments and an optional all-day lane
// banner for the visible days. days must be consecutive local midnights.
//
// Zero-length events are widened to one minute. Multi-day timed events
// yield a segment on their first and last day only; the days between are
// covered by the banner. Events outside the visible days yield nothing.
func Split(ev calendar.Event, days []time.Time) ([]Segment, *Banner, error) {
	return split(ev, days, true)
}

func split(ev calendar.Event, days []time.Time, multiDayBanners bool) ([]Segment, *Banner, error) {
	if err := ev.Validate(); err != nil {
		return nil, nil, err
	}
	if len(days) == 0 {
		return nil, nil, nil
	}
	loc := days[0].Location()
	ev = widen(floatAllDay(ev, loc), loc)

	visible := calendar.Range{Start: days[0], End: NextCalendarDay(days[len(days)-1], loc)}
	if !visible.Overlaps(ev.Start, ev.End) {
		return nil, nil, nil
	}

	switch Classify(ev, loc) {
	case KindAllDay:
		return nil, bannerFor(ev, days, visible), nil

	case KindMultiDayTimed:
		var segs []Segment
		if day := DayIndex(days, ev.Start); day >= 0 {
			segs = append(segs, Segment{
				Owner:          ev.Key(),
				Day:            day,
				Start:          minuteOfDay(ev.Start, loc),
				End:            MinutesPerDay,
				ContinuesAfter: true,
			})
		}
		last := lastDay(ev.Start, ev.End, loc)
		if day := DayIndex(days, last); day >= 0 {
			segs = append(segs, Segment{
				Owner:           ev.Key(),
				Day:             day,
				Start:           0,
				End:             segmentEnd(0, ev.End, last, loc),
				ContinuesBefore: true,
			})
		}

		b := bannerFor(ev, days, visible)
		// A single visible day already shown as a timed segment needs no banner.
		if !multiDayBanners || (b.Days == 1 && len(segs) > 0) {
			b = nil
		}
		return segs, b, nil

	default:
		day := DayIndex(days, ev.Start)
		if day < 0 {
			return nil, nil, nil
		}
		start := minuteOfDay(ev.Start, loc)
		return []Segment{{
			Owner: ev.Key(),
			Day:   day,
			Start: start,
			End:   segmentEnd(start, ev.End, days[day], loc),
		}}, nil, nil
	}
}

// floatAllDay re-anchors the dates of an all-day event at midnight in loc.
// All-day dates are floating and keep their calendar date in every zone.
func floatAllDay(ev calendar.Event, loc *time.Location) calendar.Event {
	if !ev.AllDay {
		return ev
	}
	date := func(t time.Time) time.Time {
		return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, loc)
	}
	ev.Start, ev.End = date(ev.Start), date(ev.End)
	return ev
}

// widen gives a zero-length event one minute, without crossing into the
// next day.
func widen(ev calendar.Event, loc *time.Location) calendar.Event {
	if !ev.End.Equal(ev.Start) {
		return ev
	}
	ev.End = ev.Start.Add(time.Minute)
	if next := NextCalendarDay(ev.Start, loc); ev.End.After(next) {
		ev.End = next
	}
	return ev
}

// segmentEnd returns the exclusive end minute of a segment starting at
// start on the day beginning at midnight. It is at least one minute past
// start, which also covers the repeated hour of a DST fall-back.
func segmentEnd(start int, end, midnight time.Time, loc *time.Location) int {
	m := MinutesPerDay
	if end.Before(NextCalendarDay(midnight, loc)) {
		m = minuteOfDay(end, loc)
	}
	if m <= start {
		m = start + 1
	}
	if m > MinutesPerDay {
		m = MinutesPerDay
	}
	return m
}

// bannerFor clips ev to the visible days as a lane banner.
func bannerFor(ev calendar.Event, days []time.Time, visible calendar.Range) *Banner {
	loc := days[0].Location()

	first := Midnight(ev.Start, loc)
	last := lastDay(ev.Start, ev.End, loc)

	b := &Banner{
		Owner:  ev.Key(),
		AllDay: ev.AllDay,
	}
	if first.Before(visible.Start) {
		first = visible.Start
		b.ContinuesBefore = true
	}
	if end := days[len(days)-1]; last.After(end) {
		last = end
		b.ContinuesAfter = true
	}

	b.StartDay = DayIndex(days, first)
	b.Days = DayIndex(days, last) - b.StartDay + 1
	return b
}

// BannerOf returns the lane banner for any kind of event, as used by the
// month view where timed events are drawn as one-day banners. It returns
// nil when ev does not touch the visible days.
func BannerOf(ev calendar.Event, days []time.Time) (*Banner, error) {
	if err := ev.Validate(); err != nil {
		return nil, err
	}
	if len(days) == 0 {
		return nil, nil
	}
	loc := days[0].Location()
	ev = widen(floatAllDay(ev, loc), loc)
	visible := calendar.Range{Start: days[0], End: NextCalendarDay(days[len(days)-1], loc)}
	if !visible.Overlaps(ev.Start, ev.End) {
		return nil, nil
	}
	return bannerFor(ev, days, visible), nil
}
