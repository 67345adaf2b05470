// Package grid maps between grid cells and pixel offsets of a day/week view.
//
// The vertical axis measures minutes of the day, quantized into cells of
// CellMinutes each; the horizontal axis holds DayCount columns. Mapping
// from pixels back to time is a floor, so forward and inverse mapping
// compose to the start of the containing cell.
package grid

import (
	"errors"
	"fmt"

	"github.com/cpuguy83/calgrid/internal/config"
)

// MinutesPerDay is the extent of the vertical axis.
const MinutesPerDay = 24 * 60

// ErrInvalidConfig is returned by New for unusable grid dimensions.
var ErrInvalidConfig = errors.New("grid: invalid config")

// Config holds the grid dimensions.
type Config struct {
	DayCount      int
	CellMinutes   int
	PixelsPerCell int
	Width         int
}

// FromGrid returns the mapper dimensions of a normalized grid configuration.
func FromGrid(g config.GridConfig) Config {
	return Config{
		DayCount:      g.DayCount,
		CellMinutes:   g.CellMinutes,
		PixelsPerCell: g.PixelsPerCell,
		Width:         g.Width,
	}
}

// Cell addresses one quantization cell. AllDay cells belong to the banner
// lane above the timed grid and carry no minute.
type Cell struct {
	Day    int
	Minute int
	AllDay bool
}

// Mapper converts between (day, minute) and pixel coordinates.
type Mapper struct {
	cfg      Config
	dayWidth int
}

// New returns a Mapper for cfg.
func New(cfg Config) (*Mapper, error) {
	switch {
	case cfg.DayCount <= 0:
		return nil, fmt.Errorf("%w: day count %d", ErrInvalidConfig, cfg.DayCount)
	case cfg.CellMinutes <= 0 || MinutesPerDay%cfg.CellMinutes != 0:
		return nil, fmt.Errorf("%w: cell minutes %d", ErrInvalidConfig, cfg.CellMinutes)
	case cfg.PixelsPerCell <= 0:
		return nil, fmt.Errorf("%w: pixels per cell %d", ErrInvalidConfig, cfg.PixelsPerCell)
	case cfg.Width < cfg.DayCount:
		return nil, fmt.Errorf("%w: width %d for %d days", ErrInvalidConfig, cfg.Width, cfg.DayCount)
	}
	return &Mapper{cfg: cfg, dayWidth: cfg.Width / cfg.DayCount}, nil
}

// Config returns the dimensions the mapper was built with.
func (m *Mapper) Config() Config { return m.cfg }

// DayPixelX returns the left edge of a day column.
func (m *Mapper) DayPixelX(day int) int {
	return day * m.dayWidth
}

// DayWidth returns the width of a day column. The last column absorbs the
// rounding remainder so the columns fill the full width.
func (m *Mapper) DayWidth(day int) int {
	if day == m.cfg.DayCount-1 {
		return m.cfg.Width - m.dayWidth*(m.cfg.DayCount-1)
	}
	return m.dayWidth
}

// PixelToDay returns the day column containing x, clamped to the grid.
func (m *Mapper) PixelToDay(x int) int {
	if x < 0 {
		return 0
	}
	day := x / m.dayWidth
	if day >= m.cfg.DayCount {
		return m.cfg.DayCount - 1
	}
	return day
}

// TimePixelY returns the vertical offset of a minute of the day. Minute
// 1440 maps to the bottom edge.
func (m *Mapper) TimePixelY(minute int) int {
	return minute * m.cfg.PixelsPerCell / m.cfg.CellMinutes
}

// PixelToTime returns the first minute of the cell containing y, clamped
// to the grid.
func (m *Mapper) PixelToTime(y int) int {
	if y < 0 {
		return 0
	}
	if h := m.Height(); y >= h {
		y = h - 1
	}
	return (y / m.cfg.PixelsPerCell) * m.cfg.CellMinutes
}

// FloorToCell returns the first minute of the cell containing minute.
func (m *Mapper) FloorToCell(minute int) int {
	return minute - minute%m.cfg.CellMinutes
}

// CellAt returns the timed cell under (x, y).
func (m *Mapper) CellAt(x, y int) Cell {
	return Cell{Day: m.PixelToDay(x), Minute: m.PixelToTime(y)}
}

// LaneCellAt returns the all-day lane cell under x.
func (m *Mapper) LaneCellAt(x int) Cell {
	return Cell{Day: m.PixelToDay(x), AllDay: true}
}

// Height returns the height of the timed grid in pixels.
func (m *Mapper) Height() int {
	return MinutesPerDay / m.cfg.CellMinutes * m.cfg.PixelsPerCell
}

// ScrollOffset returns the initial scroll position that brings the workday
// start to the top of the viewport.
func (m *Mapper) ScrollOffset(workdayStart int) int {
	return m.TimePixelY(m.FloorToCell(workdayStart))
}
