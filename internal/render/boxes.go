// Package render turns layout results into pixel rectangles and text tables.
package render

import (
	"sort"

	"github.com/cpuguy83/calgrid/internal/grid"
	"github.com/cpuguy83/calgrid/internal/layout"
)

// Box is a rectangle in grid pixels.
type Box struct {
	Owner string
	Day   int
	X, Y  int
	W, H  int

	ContinuesBefore bool
	ContinuesAfter  bool
}

// Boxes returns the rectangles of the timed placements in res. A day is
// split into SlotCount equal columns and the last column takes the
// remainder.
func Boxes(res *layout.Result, m *grid.Mapper) []Box {
	boxes := make([]Box, 0, len(res.Timed))
	for _, p := range res.Timed {
		dayX, dayW := m.DayPixelX(p.Day), m.DayWidth(p.Day)
		count := max(p.SlotCount, 1)
		slotW := dayW / count

		w := slotW
		if p.Slot == count-1 {
			w = dayW - p.Slot*slotW
		}
		y := m.TimePixelY(p.Start)
		boxes = append(boxes, Box{
			Owner:           p.Owner,
			Day:             p.Day,
			X:               dayX + p.Slot*slotW,
			Y:               y,
			W:               w,
			H:               max(m.TimePixelY(p.End)-y, 1),
			ContinuesBefore: p.ContinuesBefore,
			ContinuesAfter:  p.ContinuesAfter,
		})
	}
	return boxes
}

// LaneBoxes returns the rectangles of the all-day lane banners in res,
// ordered by row and then by day.
func LaneBoxes(res *layout.Result, m *grid.Mapper, rowHeight int) []Box {
	boxes := make([]Box, 0, len(res.Banners))
	for _, b := range res.Banners {
		row, ok := res.LaneRows[b.Owner]
		if !ok {
			continue
		}
		x := m.DayPixelX(b.StartDay)
		end := b.EndDay()
		boxes = append(boxes, Box{
			Owner:           b.Owner,
			Day:             b.StartDay,
			X:               x,
			Y:               row * rowHeight,
			W:               m.DayPixelX(end) + m.DayWidth(end) - x,
			H:               rowHeight,
			ContinuesBefore: b.ContinuesBefore,
			ContinuesAfter:  b.ContinuesAfter,
		})
	}
	sort.SliceStable(boxes, func(i, j int) bool {
		if boxes[i].Y != boxes[j].Y {
			return boxes[i].Y < boxes[j].Y
		}
		return boxes[i].X < boxes[j].X
	})
	return boxes
}
