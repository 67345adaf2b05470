package calendar

import (
	"errors"
	"testing"
	"time"
)

func TestIsEffectivelyAllDay(t *testing.T) {
	loc := time.Local

	tests := []struct {
		name  string
		start time.Time
		end   time.Time
		want  bool
	}{
		{
			name:  "single day midnight to midnight",
			start: time.Date(2026, 2, 17, 0, 0, 0, 0, loc),
			end:   time.Date(2026, 2, 18, 0, 0, 0, 0, loc),
			want:  true,
		},
		{
			name:  "multi-day midnight to midnight (5 days)",
			start: time.Date(2026, 2, 16, 0, 0, 0, 0, loc),
			end:   time.Date(2026, 2, 21, 0, 0, 0, 0, loc),
			want:  true,
		},
		{
			name:  "start not midnight",
			start: time.Date(2026, 2, 17, 9, 0, 0, 0, loc),
			end:   time.Date(2026, 2, 18, 0, 0, 0, 0, loc),
			want:  false,
		},
		{
			name:  "same time (zero duration)",
			start: time.Date(2026, 2, 17, 0, 0, 0, 0, loc),
			end:   time.Date(2026, 2, 17, 0, 0, 0, 0, loc),
			want:  false,
		},
		{
			name:  "end before start",
			start: time.Date(2026, 2, 18, 0, 0, 0, 0, loc),
			end:   time.Date(2026, 2, 17, 0, 0, 0, 0, loc),
			want:  false,
		},
		{
			name:  "start has seconds",
			start: time.Date(2026, 2, 17, 0, 0, 1, 0, loc),
			end:   time.Date(2026, 2, 18, 0, 0, 0, 0, loc),
			want:  false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := isEffectivelyAllDay(tt.start, tt.end)
			if got != tt.want {
				t.Errorf("isEffectivelyAllDay(%v, %v) = %v, want %v", tt.start, tt.end, got, tt.want)
			}
		})
	}
}

func TestValidate(t *testing.T) {
	start := time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC)

	tests := []struct {
		name    string
		event   Event
		wantErr bool
	}{
		{"ok", Event{ID: "a", Start: start, End: start.Add(time.Hour)}, false},
		{"zero length is valid", Event{ID: "a", Start: start, End: start}, false},
		{"missing id", Event{Start: start, End: start}, true},
		{"missing start", Event{ID: "a", End: start}, true},
		{"missing end", Event{ID: "a", Start: start}, true},
		{"end before start", Event{ID: "a", Start: start, End: start.Add(-time.Minute)}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.event.Validate()
			if (err != nil) != tt.wantErr {
				t.Fatalf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
			if err != nil && !errors.Is(err, ErrMalformedEvent) {
				t.Errorf("Validate() error = %v, want ErrMalformedEvent", err)
			}
		})
	}
}

func TestKey(t *testing.T) {
	base := time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC)
	single := Event{ID: "x"}
	if got := single.Key(); got != "x" {
		t.Errorf("single Key() = %q, want %q", got, "x")
	}

	occ := Event{ID: "x", Recurring: true, Basedate: base}
	other := Event{ID: "x", Recurring: true, Basedate: base.AddDate(0, 0, 7)}
	if occ.Key() == other.Key() {
		t.Errorf("occurrences share key %q", occ.Key())
	}

	work := Event{ID: "x", Source: "work"}
	home := Event{ID: "x", Source: "home"}
	if work.Key() == home.Key() {
		t.Errorf("sources share key %q", work.Key())
	}
	if got := work.Key(); got != "work/x" {
		t.Errorf("work Key() = %q, want %q", got, "work/x")
	}
}

func TestRangeOverlaps(t *testing.T) {
	day := time.Date(2026, 3, 2, 0, 0, 0, 0, time.UTC)
	r := Range{Start: day, End: day.AddDate(0, 0, 1)}

	tests := []struct {
		name       string
		start, end time.Time
		want       bool
	}{
		{"inside", day.Add(9 * time.Hour), day.Add(10 * time.Hour), true},
		{"ends at range start", day.Add(-time.Hour), day, false},
		{"starts at range end", r.End, r.End.Add(time.Hour), false},
		{"spans", day.Add(-time.Hour), r.End.Add(time.Hour), true},
		{"instant inside", day.Add(time.Hour), day.Add(time.Hour), true},
		{"instant at end", r.End, r.End, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := r.Overlaps(tt.start, tt.end); got != tt.want {
				t.Errorf("Overlaps() = %v, want %v", got, tt.want)
			}
		})
	}
}
