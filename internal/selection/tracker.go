// Package selection turns pointer gestures over the grid into a time range.
package selection

import (
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/cpuguy83/calgrid/internal/calendar"
	"github.com/cpuguy83/calgrid/internal/grid"
	"github.com/cpuguy83/calgrid/internal/layout"
)

// ErrNoSelection is returned when no cells are selected.
var ErrNoSelection = errors.New("selection: nothing selected")

// State is the tracker state.
type State int

const (
	Idle State = iota
	Selecting
	Committed
)

func (s State) String() string {
	switch s {
	case Selecting:
		return "selecting"
	case Committed:
		return "committed"
	default:
		return "idle"
	}
}

// Tracker follows one selection gesture on one grid. A gesture stays in
// the lane it started in: an all-day selection dragged into the timed grid
// keeps selecting whole days, and a timed selection ignores the lane.
type Tracker struct {
	cellMinutes int

	state  State
	allDay bool
	anchor grid.Cell
	cursor grid.Cell
	cells  []grid.Cell
}

// NewTracker returns an idle tracker for a grid quantized to cellMinutes.
func NewTracker(cellMinutes int) *Tracker {
	if cellMinutes <= 0 {
		cellMinutes = 30
	}
	return &Tracker{cellMinutes: cellMinutes}
}

// State returns the current state.
func (t *Tracker) State() State { return t.state }

// AllDay reports whether the gesture selects whole days.
func (t *Tracker) AllDay() bool { return t.allDay }

// Cells returns the covered cells in reading order.
func (t *Tracker) Cells() []grid.Cell {
	return append([]grid.Cell(nil), t.cells...)
}

// PointerDown starts a new selection at c, discarding any previous one.
func (t *Tracker) PointerDown(c grid.Cell) {
	t.state = Selecting
	t.allDay = c.AllDay
	c = t.normalize(c)
	t.anchor, t.cursor = c, c
	t.recompute()
}

// PointerMove extends the selection to c.
func (t *Tracker) PointerMove(c grid.Cell) {
	if t.state != Selecting {
		return
	}
	if !t.allDay && c.AllDay {
		return
	}
	t.cursor = t.normalize(c)
	t.recompute()
}

// PointerUp extends the selection to c and freezes it.
func (t *Tracker) PointerUp(c grid.Cell) {
	if t.state != Selecting {
		return
	}
	t.PointerMove(c)
	t.state = Committed
}

// Escape cancels the selection.
func (t *Tracker) Escape() {
	t.reset()
}

// Done returns a committed tracker to idle after the selection was used,
// e.g. by a quick-create.
func (t *Tracker) Done() {
	if t.state == Committed {
		t.reset()
	}
}

func (t *Tracker) reset() {
	t.state = Idle
	t.allDay = false
	t.cells = nil
}

// normalize projects c onto the gesture's lane and snaps it to a cell.
func (t *Tracker) normalize(c grid.Cell) grid.Cell {
	if t.allDay {
		return grid.Cell{Day: c.Day, AllDay: true}
	}
	m := c.Minute
	if m < 0 {
		m = 0
	}
	if m >= grid.MinutesPerDay {
		m = grid.MinutesPerDay - 1
	}
	return grid.Cell{Day: c.Day, Minute: m - m%t.cellMinutes}
}

// before reports whether a precedes b in reading order.
func before(a, b grid.Cell) bool {
	if a.Day != b.Day {
		return a.Day < b.Day
	}
	return a.Minute < b.Minute
}

func (t *Tracker) recompute() {
	from, to := t.anchor, t.cursor
	if before(to, from) {
		from, to = to, from
	}

	t.cells = t.cells[:0]
	if t.allDay {
		for d := from.Day; d <= to.Day; d++ {
			t.cells = append(t.cells, grid.Cell{Day: d, AllDay: true})
		}
		return
	}

	for c := from; !before(to, c); {
		t.cells = append(t.cells, c)
		c.Minute += t.cellMinutes
		if c.Minute >= grid.MinutesPerDay {
			c.Day, c.Minute = c.Day+1, 0
		}
	}
}

// Range converts the selected cells to a time range over the visible
// days. Timed selections end one cell past the last covered cell; all-day
// selections end at the midnight after the last day.
func (t *Tracker) Range(days []time.Time) (calendar.Range, error) {
	if t.state == Idle || len(t.cells) == 0 {
		return calendar.Range{}, ErrNoSelection
	}
	first, last := t.cells[0], t.cells[len(t.cells)-1]
	if first.Day < 0 || last.Day >= len(days) {
		return calendar.Range{}, fmt.Errorf("selection: day %d..%d outside %d visible days", first.Day, last.Day, len(days))
	}

	if t.allDay {
		loc := days[last.Day].Location()
		return calendar.Range{
			Start: days[first.Day],
			End:   layout.NextCalendarDay(days[last.Day], loc),
		}, nil
	}
	return calendar.Range{
		Start: layout.At(days[first.Day], first.Minute),
		End:   layout.At(days[last.Day], last.Minute+t.cellMinutes),
	}, nil
}

// Draft returns a new event covering the tracker's selection.
func Draft(t *Tracker, days []time.Time, summary string) (calendar.Event, error) {
	r, err := t.Range(days)
	if err != nil {
		return calendar.Event{}, err
	}
	return calendar.Event{
		ID:      uuid.NewString(),
		Summary: summary,
		Start:   r.Start,
		End:     r.End,
		AllDay:  t.allDay,
	}, nil
}
