package layout

import (
	"fmt"
	"sort"
)

// Placement is a timed segment with its column within the day.
type Placement struct {
	Segment
	Slot      int
	SlotCount int
}

// InvariantError reports a slot assignment that would render overlapping
// events.
type InvariantError struct {
	Day    int
	A, B   string
	Reason string
}

func (e *InvariantError) Error() string {
	return fmt.Sprintf("layout: day %d: %s and %s: %s", e.Day, e.A, e.B, e.Reason)
}

// overlaps reports whether two segments share time. Equal starts always
// overlap.
func overlaps(a, b Segment) bool {
	return a.Start == b.Start || (a.Start < b.End && b.Start < a.End)
}

// PackTimed assigns slots to timed segments, independently per day. The
// result is in input order.
//
// Segments are placed by start, longer first on equal starts. Each takes
// the lowest slot its overlappers leave free; when none is free the
// cluster gains a column and the wider count is propagated to every
// transitively overlapping segment, so a cluster renders at one width.
func PackTimed(segs []Segment) []Placement {
	out := make([]Placement, len(segs))
	byDay := make(map[int][]int)
	for i, s := range segs {
		out[i] = Placement{Segment: s}
		byDay[s.Day] = append(byDay[s.Day], i)
	}

	for _, idx := range byDay {
		packDay(out, idx)
	}

	if err := VerifyTimed(out); err != nil {
		invariantViolated(err)
	}
	return out
}

func packDay(out []Placement, idx []int) {
	sort.SliceStable(idx, func(i, j int) bool {
		a, b := out[idx[i]], out[idx[j]]
		if a.Start != b.Start {
			return a.Start < b.Start
		}
		if a.Duration() != b.Duration() {
			return a.Duration() > b.Duration()
		}
		return a.Owner < b.Owner
	})

	var placed []int
	for _, cur := range idx {
		var overlappers []int
		for _, p := range placed {
			if overlaps(out[p].Segment, out[cur].Segment) {
				overlappers = append(overlappers, p)
			}
		}

		if len(overlappers) == 0 {
			out[cur].Slot, out[cur].SlotCount = 0, 1
			placed = append(placed, cur)
			continue
		}

		count := out[overlappers[0]].SlotCount
		used := make(map[int]bool, len(overlappers))
		for _, p := range overlappers {
			if c := out[p].SlotCount; c != count {
				invariantViolated(&InvariantError{
					Day:    out[cur].Day,
					A:      out[overlappers[0]].Owner,
					B:      out[p].Owner,
					Reason: fmt.Sprintf("slot count %d != %d before placing %s", count, c, out[cur].Owner),
				})
				count = max(count, c)
			}
			used[out[p].Slot] = true
		}

		slot := -1
		for s := 0; s < count; s++ {
			if !used[s] {
				slot = s
				break
			}
		}

		if slot >= 0 {
			out[cur].Slot, out[cur].SlotCount = slot, count
			placed = append(placed, cur)
			continue
		}

		out[cur].Slot, out[cur].SlotCount = count, count+1
		placed = append(placed, cur)
		propagate(out, placed, overlappers, count+1)
	}
}

// propagate raises the slot count of every placed segment reachable from
// start through overlaps. A segment already at target is not revisited.
func propagate(out []Placement, placed, start []int, target int) {
	queue := append([]int(nil), start...)
	for len(queue) > 0 {
		p := queue[0]
		queue = queue[1:]
		if out[p].SlotCount >= target {
			continue
		}
		out[p].SlotCount = target
		for _, q := range placed {
			if q != p && out[q].SlotCount < target && overlaps(out[p].Segment, out[q].Segment) {
				queue = append(queue, q)
			}
		}
	}
}

// VerifyTimed checks that overlapping placements on a day never share a
// slot, that every slot lies within its count, and that transitively
// overlapping placements agree on the count.
func VerifyTimed(ps []Placement) error {
	byDay := make(map[int][]int)
	for i, p := range ps {
		if p.Slot < 0 || p.Slot >= p.SlotCount {
			return &InvariantError{Day: p.Day, A: p.Owner, B: p.Owner, Reason: fmt.Sprintf("slot %d outside count %d", p.Slot, p.SlotCount)}
		}
		byDay[p.Day] = append(byDay[p.Day], i)
	}

	for day, idx := range byDay {
		for i, a := range idx {
			for _, b := range idx[i+1:] {
				pa, pb := ps[a], ps[b]
				if !overlaps(pa.Segment, pb.Segment) {
					continue
				}
				if pa.Slot == pb.Slot {
					return &InvariantError{Day: day, A: pa.Owner, B: pb.Owner, Reason: fmt.Sprintf("overlapping segments share slot %d", pa.Slot)}
				}
				// Direct overlap is enough: equal counts along every edge
				// make counts equal across the cluster.
				if pa.SlotCount != pb.SlotCount {
					return &InvariantError{Day: day, A: pa.Owner, B: pb.Owner, Reason: fmt.Sprintf("slot counts differ: %d != %d", pa.SlotCount, pb.SlotCount)}
				}
			}
		}
	}
	return nil
}
