package config

import (
	"testing"
	"time"

	"github.com/kylelemons/godebug/pretty"
)

func TestParseDuration(t *testing.T) {
	tests := []struct {
		input    string
		expected time.Duration
		wantErr  bool
	}{
		// Days
		{"1d", 24 * time.Hour, false},
		{"14d", 14 * 24 * time.Hour, false},
		{"30d", 30 * 24 * time.Hour, false},

		// Weeks
		{"1w", 7 * 24 * time.Hour, false},
		{"2w", 14 * 24 * time.Hour, false},
		{"4w", 28 * 24 * time.Hour, false},

		// Standard Go durations
		{"5m", 5 * time.Minute, false},
		{"1h", time.Hour, false},
		{"24h", 24 * time.Hour, false},
		{"336h", 14 * 24 * time.Hour, false},
		{"1h30m", time.Hour + 30*time.Minute, false},

		// Edge cases
		{"0d", 0, false},
		{"0w", 0, false},
		{"", 0, false},
		{"  14d  ", 14 * 24 * time.Hour, false},

		// Errors
		{"invalid", 0, true},
		{"d", 0, true},
		{"w", 0, true},
		{"14x", 0, true},
		{"-1d", 0, true},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			got, err := parseDuration(tt.input)
			if (err != nil) != tt.wantErr {
				t.Errorf("parseDuration(%q) error = %v, wantErr %v", tt.input, err, tt.wantErr)
				return
			}
			if got != tt.expected {
				t.Errorf("parseDuration(%q) = %v, want %v", tt.input, got, tt.expected)
			}
		})
	}
}

func TestParseClock(t *testing.T) {
	tests := []struct {
		input   string
		want    Clock
		wantErr bool
	}{
		{"09:00", 540, false},
		{"17:30", 1050, false},
		{"00:00", 0, false},
		{"24:00", 1440, false},
		{" 8:05 ", 485, false},
		{"24:01", 0, true},
		{"12:60", 0, true},
		{"noon", 0, true},
		{"-1:00", 0, true},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			got, err := ParseClock(tt.input)
			if (err != nil) != tt.wantErr {
				t.Fatalf("ParseClock(%q) error = %v, wantErr %v", tt.input, err, tt.wantErr)
			}
			if got != tt.want {
				t.Errorf("ParseClock(%q) = %d, want %d", tt.input, got, tt.want)
			}
		})
	}
}

func TestGridNormalize(t *testing.T) {
	tests := []struct {
		name      string
		in        GridConfig
		wantReset []string
		check     func(t *testing.T, g GridConfig)
	}{
		{
			name: "empty gets defaults silently",
			check: func(t *testing.T, g GridConfig) {
				if g.DayCount != 7 || g.CellMinutes != 30 || g.PixelsPerCell != 24 || g.Width != 700 {
					t.Errorf("defaults not applied: %+v", g)
				}
				if g.WorkdayStart != 540 || g.WorkdayEnd != 1020 {
					t.Errorf("workday = %v-%v", g.WorkdayStart, g.WorkdayEnd)
				}
				if !g.Banners() {
					t.Errorf("multi-day banners should default on")
				}
			},
		},
		{
			name:      "inverted workday falls back",
			in:        GridConfig{WorkdayStart: 1020, WorkdayEnd: 540},
			wantReset: []string{"workday"},
			check: func(t *testing.T, g GridConfig) {
				if g.WorkdayStart != DefaultWorkdayStart || g.WorkdayEnd != DefaultWorkdayEnd {
					t.Errorf("workday = %v-%v", g.WorkdayStart, g.WorkdayEnd)
				}
			},
		},
		{
			name:      "unsupported day count and cell",
			in:        GridConfig{DayCount: 3, CellMinutes: 7},
			wantReset: []string{"day_count", "cell_minutes"},
			check: func(t *testing.T, g GridConfig) {
				if g.DayCount != 7 || g.CellMinutes != 30 {
					t.Errorf("got day_count=%d cell=%d", g.DayCount, g.CellMinutes)
				}
			},
		},
		{
			name:      "bad timezone",
			in:        GridConfig{DayCount: 5, CellMinutes: 15, Timezone: "Mars/Olympus"},
			wantReset: []string{"timezone"},
			check: func(t *testing.T, g GridConfig) {
				if g.Location() != time.Local {
					t.Errorf("expected local fallback")
				}
				if g.DayCount != 5 || g.CellMinutes != 15 {
					t.Errorf("valid settings changed: %+v", g)
				}
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			g := tt.in
			reset := g.Normalize()
			if diff := pretty.Compare(reset, tt.wantReset); diff != "" {
				t.Errorf("reset diff (-got +want):\n%s", diff)
			}
			tt.check(t, g)
		})
	}
}

func TestParse(t *testing.T) {
	cfg, err := Parse([]byte(`
identity: me@example.com
grid:
  day_count: 5
  workday_start: "08:30"
  workday_end: "18:00"
  cell_minutes: 15
  week_start: monday
  multi_day_banners: false
sync:
  refresh: "*/10 * * * *"
  lookahead: 2w
notifications:
  enabled: true
  confirm_timeout: 30s
sources:
  - name: work
    type: ms365
    calendars: [primary]
  - name: local
    type: file
    path: /tmp/cal
    read_only: [holidays]
`))
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}

	if cfg.Identity != "me@example.com" {
		t.Errorf("Identity = %q", cfg.Identity)
	}
	if cfg.Grid.WorkdayStart != 510 || cfg.Grid.WorkdayEnd != 1080 {
		t.Errorf("workday = %v-%v", cfg.Grid.WorkdayStart, cfg.Grid.WorkdayEnd)
	}
	if time.Weekday(cfg.Grid.WeekStart) != time.Monday {
		t.Errorf("WeekStart = %v", time.Weekday(cfg.Grid.WeekStart))
	}
	if cfg.Grid.Banners() {
		t.Errorf("multi_day_banners should be off")
	}
	if cfg.Sync.Lookahead != 14*24*time.Hour {
		t.Errorf("Lookahead = %v", cfg.Sync.Lookahead)
	}
	if cfg.Notifications.ConfirmTimeout != 30*time.Second {
		t.Errorf("ConfirmTimeout = %v", cfg.Notifications.ConfirmTimeout)
	}
	if len(cfg.Sources) != 2 || cfg.Sources[1].ReadOnly[0] != "holidays" {
		t.Fatalf("sources = %+v", cfg.Sources)
	}
	if cfg.Sources[0].Filters.Mode != "or" {
		t.Errorf("filter mode default not applied")
	}
	if cfg.Store.Snapshots == "" {
		t.Errorf("snapshot dir default not applied")
	}
}

func TestGridProviderUpdate(t *testing.T) {
	p := NewGridProvider(GridConfig{})

	var got []GridConfig
	p.Subscribe(func(g GridConfig) { got = append(got, g) })

	reset := p.Update(GridConfig{DayCount: 2, CellMinutes: 45})
	if len(reset) != 1 || reset[0] != "cell_minutes" {
		t.Errorf("reset = %v", reset)
	}
	if len(got) != 1 || got[0].DayCount != 2 || got[0].CellMinutes != DefaultCellMinutes {
		t.Errorf("subscriber saw %+v", got)
	}
	if p.Grid().DayCount != 2 {
		t.Errorf("Grid() not updated")
	}
}
