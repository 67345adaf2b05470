// Package layout places calendar events on a day/week time grid.
//
// A layout pass runs in fixed order: events are split into per-day
// segments and lane banners, timed segments are packed into slots, and
// banners are packed into lane rows. The result is plain data; mapping to
// pixels is left to the renderer.
package layout

import (
	"log/slog"
	"time"

	"github.com/cpuguy83/calgrid/internal/calendar"
)

// LayoutEngine is the capability every view composes.
type LayoutEngine interface {
	Segment(events []calendar.Event, days []time.Time) Segmented
	PackTimed(segs []Segment) []Placement
	PackAllDay(banners []Banner, days int) (map[string]int, int)
}

// Segmented is the output of the split phase.
type Segmented struct {
	Timed   []Segment
	Banners []Banner
	Skipped []Skipped
}

// Skipped records an event left out of the layout.
type Skipped struct {
	ID  string
	Err error
}

// Engine is the default LayoutEngine.
type Engine struct {
	multiDayBanners bool
}

// Option configures an Engine.
type Option func(*Engine)

// WithMultiDayBanners controls whether multi-day timed events also get an
// all-day lane banner. On by default.
func WithMultiDayBanners(on bool) Option {
	return func(e *Engine) { e.multiDayBanners = on }
}

// NewEngine returns an Engine.
func NewEngine(opts ...Option) *Engine {
	e := &Engine{multiDayBanners: true}
	for _, o := range opts {
		o(e)
	}
	return e
}

// Segment splits every event over days. Malformed events are skipped and
// the rest are still laid out.
func (e *Engine) Segment(events []calendar.Event, days []time.Time) Segmented {
	var out Segmented
	for _, ev := range events {
		segs, banner, err := split(ev, days, e.multiDayBanners)
		if err != nil {
			slog.Debug("skip malformed event", "id", ev.ID, "error", err)
			out.Skipped = append(out.Skipped, Skipped{ID: ev.ID, Err: err})
			continue
		}
		out.Timed = append(out.Timed, segs...)
		if banner != nil {
			out.Banners = append(out.Banners, *banner)
		}
	}
	return out
}

// PackTimed implements LayoutEngine.
func (e *Engine) PackTimed(segs []Segment) []Placement {
	return PackTimed(segs)
}

// PackAllDay implements LayoutEngine.
func (e *Engine) PackAllDay(banners []Banner, days int) (map[string]int, int) {
	return PackAllDay(banners, days)
}

var _ LayoutEngine = (*Engine)(nil)
