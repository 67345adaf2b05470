// Package reschedule converts drag and resize gestures into new event
// times and commits them to a sink.
package reschedule

import (
	"errors"
	"fmt"
	"time"

	"github.com/cpuguy83/calgrid/internal/calendar"
	"github.com/cpuguy83/calgrid/internal/grid"
	"github.com/cpuguy83/calgrid/internal/layout"
)

// ErrTargetOutOfRange is returned for a drop outside the visible days.
var ErrTargetOutOfRange = errors.New("reschedule: target outside visible days")

// Gesture is the kind of pointer gesture applied to a rendered event.
type Gesture int

const (
	// Move drags the whole event; the target is where its top now sits.
	Move Gesture = iota
	// ResizeStart drags the top edge.
	ResizeStart
	// ResizeEnd drags the bottom edge.
	ResizeEnd
)

func (g Gesture) String() string {
	switch g {
	case ResizeStart:
		return "resize-start"
	case ResizeEnd:
		return "resize-end"
	default:
		return "move"
	}
}

// Result is a candidate new placement for an event.
type Result struct {
	Start time.Time
	End   time.Time
	// Basedate is the occurrence of a recurring series, copied from the
	// event. It is never derived from Start.
	Basedate *time.Time
	// NoOp is set when the gesture does not apply and nothing changes.
	NoOp bool
}

// Occurrence reports whether the result moves one occurrence of a series.
// Asking whether the whole series should follow is up to the caller.
func (r Result) Occurrence() bool { return r.Basedate != nil }

// Request returns the sink request for the result.
func (r Result) Request(eventID string, notify bool) calendar.RescheduleRequest {
	return calendar.RescheduleRequest{
		EventID:         eventID,
		Basedate:        r.Basedate,
		NewStart:        r.Start,
		NewEnd:          r.End,
		NotifyAttendees: notify,
	}
}

// Calculator maps a gesture's target cell back to instants. Days are the
// visible local midnights the cell's day indexes.
type Calculator struct {
	Days        []time.Time
	CellMinutes int
	Location    *time.Location
}

func (c Calculator) location() *time.Location {
	if c.Location != nil {
		return c.Location
	}
	if len(c.Days) > 0 {
		return c.Days[0].Location()
	}
	return time.Local
}

func (c Calculator) cell() time.Duration {
	if c.CellMinutes <= 0 {
		return 30 * time.Minute
	}
	return time.Duration(c.CellMinutes) * time.Minute
}

// Calculate returns where ev lands after gesture g is dropped on target.
func (c Calculator) Calculate(ev calendar.Event, g Gesture, target grid.Cell) (Result, error) {
	if err := ev.Validate(); err != nil {
		return Result{}, err
	}
	if target.Day < 0 || target.Day >= len(c.Days) {
		return Result{}, fmt.Errorf("%w: day %d of %d", ErrTargetOutOfRange, target.Day, len(c.Days))
	}

	loc := c.location()
	res := Result{Start: ev.Start, End: ev.End}
	if ev.IsOccurrence() {
		basedate := ev.Basedate
		res.Basedate = &basedate
	}

	day := c.Days[target.Day]
	kind := layout.Classify(ev, loc)

	switch g {
	case Move:
		if ev.AllDay {
			res.Start = day
			res.End = addCalendarDays(day, calendarDays(ev.Start, ev.End), loc)
			return res, nil
		}
		minute := target.Minute
		if target.AllDay {
			// Dropped on the lane: keep the time of day.
			s := ev.Start.In(loc)
			minute = s.Hour()*60 + s.Minute()
		}
		res.Start = layout.At(day, minute)
		res.End = res.Start.Add(ev.End.Sub(ev.Start))
		return res, nil

	case ResizeStart, ResizeEnd:
		if kind != layout.KindTimed || target.AllDay {
			res.NoOp = true
			return res, nil
		}
		edge := layout.At(day, target.Minute)
		if g == ResizeStart {
			res.Start = edge
			if !res.Start.Before(res.End) {
				res.Start = res.End.Add(-c.cell())
			}
		} else {
			res.End = edge
			if !res.End.After(res.Start) {
				res.End = res.Start.Add(c.cell())
			}
		}
		return res, nil
	}

	return Result{}, fmt.Errorf("reschedule: unknown gesture %d", g)
}

// calendarDays returns how many calendar dates an all-day event spans,
// at least one.
func calendarDays(start, end time.Time) int {
	civil := func(t time.Time) time.Time {
		return time.Date(t.Year(), t.Month(), t.Day(), 12, 0, 0, 0, time.UTC)
	}
	n := int(civil(end).Sub(civil(start)).Hours()+12) / 24
	if n < 1 {
		return 1
	}
	return n
}

func addCalendarDays(day time.Time, n int, loc *time.Location) time.Time {
	for i := 0; i < n; i++ {
		day = layout.NextCalendarDay(day, loc)
	}
	return day
}

// NeedsAttendeeConfirmation reports whether the user must be asked before
// attendees are notified: the user organized the meeting, invitations went
// out, and the meeting has not ended yet at its new time.
func NeedsAttendeeConfirmation(ev calendar.Event, res Result, now time.Time) bool {
	return !res.NoOp && ev.Meeting == calendar.MeetingSent && res.End.After(now)
}
