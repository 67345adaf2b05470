package layout

import (
	"testing"
	"time"
	_ "time/tzdata"
)

func mustLoc(t *testing.T, name string) *time.Location {
	t.Helper()
	loc, err := time.LoadLocation(name)
	if err != nil {
		t.Fatalf("load %s: %v", name, err)
	}
	return loc
}

func TestNextCalendarDayDST(t *testing.T) {
	ny := mustLoc(t, "America/New_York")

	tests := []struct {
		name  string
		from  time.Time
		want  time.Time
		naive time.Time // from + 24h, which misses midnight
	}{
		{
			name:  "spring forward",
			from:  time.Date(2026, 3, 8, 0, 0, 0, 0, ny),
			want:  time.Date(2026, 3, 9, 0, 0, 0, 0, ny),
			naive: time.Date(2026, 3, 9, 1, 0, 0, 0, ny),
		},
		{
			name:  "fall back",
			from:  time.Date(2026, 11, 1, 0, 0, 0, 0, ny),
			want:  time.Date(2026, 11, 2, 0, 0, 0, 0, ny),
			naive: time.Date(2026, 11, 1, 23, 0, 0, 0, ny),
		},
		{
			name: "mid-day input",
			from: time.Date(2026, 3, 8, 15, 30, 0, 0, ny),
			want: time.Date(2026, 3, 9, 0, 0, 0, 0, ny),
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := NextCalendarDay(tt.from, ny)
			if !got.Equal(tt.want) {
				t.Errorf("NextCalendarDay(%v) = %v, want %v", tt.from, got, tt.want)
			}
			if !tt.naive.IsZero() && !tt.from.Add(24*time.Hour).Equal(tt.naive) {
				t.Errorf("expected 24h step to land on %v", tt.naive)
			}
		})
	}
}

func TestVisibleDaysAcrossDST(t *testing.T) {
	ny := mustLoc(t, "America/New_York")

	days := VisibleDays(time.Date(2026, 3, 5, 13, 0, 0, 0, ny), 7, ny)
	if len(days) != 7 {
		t.Fatalf("got %d days", len(days))
	}
	for i, d := range days {
		if d.Hour() != 0 || d.Minute() != 0 {
			t.Errorf("day %d = %v, not midnight", i, d)
		}
		if d.Day() != 5+i {
			t.Errorf("day %d = %v, want March %d", i, d, 5+i)
		}
	}
}

func TestDayIndex(t *testing.T) {
	days := VisibleDays(time.Date(2026, 2, 16, 0, 0, 0, 0, time.UTC), 7, time.UTC)

	tests := []struct {
		name string
		t    time.Time
		want int
	}{
		{name: "first midnight", t: days[0], want: 0},
		{name: "mid week", t: time.Date(2026, 2, 18, 13, 0, 0, 0, time.UTC), want: 2},
		{name: "last instant", t: time.Date(2026, 2, 22, 23, 59, 59, 0, time.UTC), want: 6},
		{name: "before", t: time.Date(2026, 2, 15, 23, 0, 0, 0, time.UTC), want: -1},
		{name: "after", t: time.Date(2026, 2, 23, 0, 0, 0, 0, time.UTC), want: -1},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := DayIndex(days, tt.t); got != tt.want {
				t.Errorf("DayIndex(%v) = %d, want %d", tt.t, got, tt.want)
			}
		})
	}
}
