package layout

import (
	"errors"
	"fmt"
	"math/rand/v2"
	"testing"
)

type slotWant struct {
	Slot, SlotCount int
}

func packed(ps []Placement) map[string]slotWant {
	out := make(map[string]slotWant, len(ps))
	for _, p := range ps {
		out[p.Owner] = slotWant{p.Slot, p.SlotCount}
	}
	return out
}

func seg(owner string, start, end int) Segment {
	return Segment{Owner: owner, Start: start, End: end}
}

func TestPackTimed(t *testing.T) {
	tests := []struct {
		name string
		segs []Segment
		want map[string]slotWant
	}{
		{
			name: "three mutually overlapping",
			segs: []Segment{
				seg("a", 540, 600), // 09:00-10:00
				seg("b", 570, 660), // 09:30-11:00
				seg("c", 585, 615), // 09:45-10:15
			},
			want: map[string]slotWant{"a": {0, 3}, "b": {1, 3}, "c": {2, 3}},
		},
		{
			name: "touching events do not overlap",
			segs: []Segment{
				seg("a", 540, 600),
				seg("b", 600, 660),
			},
			want: map[string]slotWant{"a": {0, 1}, "b": {0, 1}},
		},
		{
			name: "equal start puts the longer event left",
			segs: []Segment{
				seg("short", 540, 570),
				seg("long", 540, 660),
			},
			want: map[string]slotWant{"long": {0, 2}, "short": {1, 2}},
		},
		{
			name: "freed slot is reused",
			segs: []Segment{
				seg("a", 540, 600), // 09:00-10:00
				seg("b", 570, 630), // 09:30-10:30
				seg("c", 615, 660), // 10:15-11:00
			},
			want: map[string]slotWant{"a": {0, 2}, "b": {1, 2}, "c": {0, 2}},
		},
		{
			name: "wider count propagates transitively",
			segs: []Segment{
				seg("a", 540, 600), // 09:00-10:00
				seg("b", 570, 660), // 09:30-11:00
				seg("c", 630, 720), // 10:30-12:00
				seg("d", 645, 675), // 10:45-11:15
			},
			want: map[string]slotWant{"a": {0, 3}, "b": {1, 3}, "c": {0, 3}, "d": {2, 3}},
		},
		{
			name: "separate clusters keep their own counts",
			segs: []Segment{
				seg("a", 540, 600),
				seg("b", 540, 600),
				seg("c", 780, 840),
			},
			want: map[string]slotWant{"a": {0, 2}, "b": {1, 2}, "c": {0, 1}},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := packed(PackTimed(tt.segs))
			for owner, want := range tt.want {
				if got[owner] != want {
					t.Errorf("%s: got slot %d/%d, want %d/%d", owner, got[owner].Slot, got[owner].SlotCount, want.Slot, want.SlotCount)
				}
			}
		})
	}
}

func TestPackTimedPerDay(t *testing.T) {
	segs := []Segment{
		{Owner: "mon", Day: 0, Start: 540, End: 600},
		{Owner: "tue", Day: 1, Start: 540, End: 600},
	}
	got := packed(PackTimed(segs))
	if got["mon"] != (slotWant{0, 1}) || got["tue"] != (slotWant{0, 1}) {
		t.Errorf("segments on different days interfered: %+v", got)
	}
}

func TestPackTimedKeepsInputOrder(t *testing.T) {
	segs := []Segment{seg("late", 700, 760), seg("early", 540, 600)}
	ps := PackTimed(segs)
	if ps[0].Owner != "late" || ps[1].Owner != "early" {
		t.Errorf("placements reordered: %s, %s", ps[0].Owner, ps[1].Owner)
	}
}

// TestPackTimedProperties checks the no-overlap and slot-count properties
// on random days.
func TestPackTimedProperties(t *testing.T) {
	rnd := rand.New(rand.NewPCG(3, 4))

	for round := 0; round < 500; round++ {
		n := 1 + rnd.IntN(25)
		segs := make([]Segment, n)
		for i := range segs {
			start := rnd.IntN(MinutesPerDay - 1)
			end := start + 1 + rnd.IntN(min(240, MinutesPerDay-start))
			segs[i] = Segment{Owner: fmt.Sprintf("e%d", i), Day: rnd.IntN(2), Start: start, End: min(end, MinutesPerDay)}
		}

		ps := PackTimed(segs)
		if err := VerifyTimed(ps); err != nil {
			t.Fatalf("round %d: %v", round, err)
		}

		// Every cluster shares one count.
		for day := 0; day < 2; day++ {
			var idx []int
			for i, p := range ps {
				if p.Day == day {
					idx = append(idx, i)
				}
			}
			seen := make(map[int]bool)
			for _, root := range idx {
				if seen[root] {
					continue
				}
				queue := []int{root}
				seen[root] = true
				for len(queue) > 0 {
					cur := queue[0]
					queue = queue[1:]
					if ps[cur].SlotCount != ps[root].SlotCount {
						t.Fatalf("round %d: %s and %s in one cluster with counts %d and %d",
							round, ps[cur].Owner, ps[root].Owner, ps[cur].SlotCount, ps[root].SlotCount)
					}
					for _, o := range idx {
						if !seen[o] && overlaps(ps[cur].Segment, ps[o].Segment) {
							seen[o] = true
							queue = append(queue, o)
						}
					}
				}
			}
		}
	}
}

func TestVerifyTimed(t *testing.T) {
	tests := []struct {
		name string
		ps   []Placement
	}{
		{
			name: "shared slot",
			ps: []Placement{
				{Segment: seg("a", 540, 600), Slot: 0, SlotCount: 2},
				{Segment: seg("b", 570, 630), Slot: 0, SlotCount: 2},
			},
		},
		{
			name: "count disagreement",
			ps: []Placement{
				{Segment: seg("a", 540, 600), Slot: 0, SlotCount: 2},
				{Segment: seg("b", 570, 630), Slot: 1, SlotCount: 3},
			},
		},
		{
			name: "slot outside count",
			ps: []Placement{
				{Segment: seg("a", 540, 600), Slot: 1, SlotCount: 1},
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var ierr *InvariantError
			if err := VerifyTimed(tt.ps); !errors.As(err, &ierr) {
				t.Fatalf("VerifyTimed() = %v, want *InvariantError", err)
			}
		})
	}
}
