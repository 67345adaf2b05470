package layout

import (
	"fmt"
	"time"

	"github.com/cpuguy83/calgrid/internal/calendar"
)

// ViewKind names a calendar view.
type ViewKind string

const (
	ViewDay      ViewKind = "day"
	ViewTwoDay   ViewKind = "two-day"
	ViewWorkWeek ViewKind = "work-week"
	ViewWeek     ViewKind = "week"
	ViewMonth    ViewKind = "month"
	ViewPrint    ViewKind = "print"
)

// ParseViewKind parses a view name.
func ParseViewKind(s string) (ViewKind, error) {
	switch k := ViewKind(s); k {
	case ViewDay, ViewTwoDay, ViewWorkWeek, ViewWeek, ViewMonth, ViewPrint:
		return k, nil
	}
	return "", fmt.Errorf("unknown view %q", s)
}

// ViewForDayCount returns the grid view showing n days.
func ViewForDayCount(n int) ViewKind {
	switch n {
	case 1:
		return ViewDay
	case 2:
		return ViewTwoDay
	case 5:
		return ViewWorkWeek
	default:
		return ViewWeek
	}
}

// DayCount returns the number of day columns.
func (k ViewKind) DayCount() int {
	switch k {
	case ViewDay:
		return 1
	case ViewTwoDay:
		return 2
	case ViewWorkWeek:
		return 5
	default:
		return 7
	}
}

// View composes a LayoutEngine into one of the calendar views.
type View struct {
	kind      ViewKind
	engine    LayoutEngine
	loc       *time.Location
	weekStart time.Weekday
}

// NewView returns a view of kind. weekStart anchors week, print and
// month views.
func NewView(kind ViewKind, engine LayoutEngine, loc *time.Location, weekStart time.Weekday) *View {
	if loc == nil {
		loc = time.Local
	}
	return &View{kind: kind, engine: engine, loc: loc, weekStart: weekStart}
}

// Kind returns the view kind.
func (v *View) Kind() ViewKind { return v.kind }

// Location returns the zone days are computed in.
func (v *View) Location() *time.Location { return v.loc }

// Interactive reports whether the view accepts gestures.
func (v *View) Interactive() bool { return v.kind != ViewPrint }

// Days returns the visible days for anchor.
func (v *View) Days(anchor time.Time) []time.Time {
	switch v.kind {
	case ViewDay, ViewTwoDay:
		return VisibleDays(anchor, v.kind.DayCount(), v.loc)
	case ViewWorkWeek:
		return VisibleDays(startOfWeek(anchor, time.Monday, v.loc), 5, v.loc)
	case ViewMonth:
		return v.monthDays(anchor)
	default:
		return VisibleDays(startOfWeek(anchor, v.weekStart, v.loc), 7, v.loc)
	}
}

// Range returns the time range covered by the view for anchor.
func (v *View) Range(anchor time.Time) calendar.Range {
	days := v.Days(anchor)
	return calendar.Range{Start: days[0], End: NextCalendarDay(days[len(days)-1], v.loc)}
}

// monthDays covers the month of anchor with whole weeks.
func (v *View) monthDays(anchor time.Time) []time.Time {
	a := anchor.In(v.loc)
	first := time.Date(a.Year(), a.Month(), 1, 0, 0, 0, 0, v.loc)
	last := time.Date(a.Year(), a.Month()+1, 0, 0, 0, 0, 0, v.loc)

	start := startOfWeek(first, v.weekStart, v.loc)
	var days []time.Time
	for d := start; !d.After(last) || len(days)%7 != 0; d = NextCalendarDay(d, v.loc) {
		days = append(days, d)
	}
	return days
}

func startOfWeek(t time.Time, weekStart time.Weekday, loc *time.Location) time.Time {
	d := Midnight(t, loc)
	back := (int(d.Weekday()) - int(weekStart) + 7) % 7
	return Midnight(d.AddDate(0, 0, -back), loc)
}

// Week is one row of the month view.
type Week struct {
	Days    []time.Time
	Banners []Banner
	Rows    map[string]int
	Height  int
}

// Result is the plain-data output of a layout pass.
type Result struct {
	Kind ViewKind
	Days []time.Time
	// Events holds the laid out events keyed by calendar.Event Key.
	Events map[string]calendar.Event

	Timed      []Placement
	Banners    []Banner
	LaneRows   map[string]int
	LaneHeight int

	// Weeks is set for the month view instead of the fields above.
	Weeks []Week

	Skipped []Skipped
}

// DayPlacements returns the timed placements on day.
func (r *Result) DayPlacements(day int) []Placement {
	var out []Placement
	for _, p := range r.Timed {
		if p.Day == day {
			out = append(out, p)
		}
	}
	return out
}

// Layout runs a full layout pass for events around anchor.
func (v *View) Layout(events []calendar.Event, anchor time.Time) *Result {
	res := &Result{
		Kind:   v.kind,
		Days:   v.Days(anchor),
		Events: make(map[string]calendar.Event, len(events)),
	}
	for _, ev := range events {
		res.Events[ev.Key()] = ev
	}

	if v.kind == ViewMonth {
		v.layoutMonth(res, events)
		return res
	}

	seg := v.engine.Segment(events, res.Days)
	res.Skipped = seg.Skipped
	res.Timed = v.engine.PackTimed(seg.Timed)
	res.Banners = seg.Banners
	res.LaneRows, res.LaneHeight = v.engine.PackAllDay(seg.Banners, len(res.Days))
	return res
}

// layoutMonth lays out every event as a banner per week row.
func (v *View) layoutMonth(res *Result, events []calendar.Event) {
	valid := events[:0:0]
	for _, ev := range events {
		if err := ev.Validate(); err != nil {
			res.Skipped = append(res.Skipped, Skipped{ID: ev.ID, Err: err})
			continue
		}
		valid = append(valid, ev)
	}

	for i := 0; i+7 <= len(res.Days); i += 7 {
		week := Week{Days: res.Days[i : i+7]}
		for _, ev := range valid {
			b, err := BannerOf(ev, week.Days)
			if err != nil || b == nil {
				continue
			}
			week.Banners = append(week.Banners, *b)
		}
		week.Rows, week.Height = v.engine.PackAllDay(week.Banners, 7)
		res.Weeks = append(res.Weeks, week)
	}
}
