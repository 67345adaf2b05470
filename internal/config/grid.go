package config

import (
	"fmt"
	"slices"
	"strconv"
	"strings"
	"sync"
	"time"

	"gopkg.in/yaml.v3"
)

// Grid defaults used when a setting is missing or out of range.
const (
	DefaultDayCount      = 7
	DefaultWorkdayStart  = Clock(9 * 60)
	DefaultWorkdayEnd    = Clock(17 * 60)
	DefaultCellMinutes   = 30
	DefaultPixelsPerCell = 24
	DefaultWidth         = 700
	DefaultLaneRowHeight = 20
)

// Clock is a minute of the day. In YAML it is written as "HH:MM".
type Clock int

func (c Clock) String() string {
	return fmt.Sprintf("%02d:%02d", int(c)/60, int(c)%60)
}

// ParseClock parses "HH:MM" into a minute of the day. "24:00" is accepted
// as the end of the day.
func ParseClock(s string) (Clock, error) {
	hh, mm, ok := strings.Cut(strings.TrimSpace(s), ":")
	if !ok {
		return 0, fmt.Errorf("invalid clock %q: want HH:MM", s)
	}
	h, err := strconv.Atoi(hh)
	if err != nil {
		return 0, fmt.Errorf("invalid clock %q: %w", s, err)
	}
	m, err := strconv.Atoi(mm)
	if err != nil {
		return 0, fmt.Errorf("invalid clock %q: %w", s, err)
	}
	if h < 0 || m < 0 || m > 59 || h > 24 || (h == 24 && m != 0) {
		return 0, fmt.Errorf("invalid clock %q: out of range", s)
	}
	return Clock(h*60 + m), nil
}

// UnmarshalYAML accepts "HH:MM" or a plain minute count.
func (c *Clock) UnmarshalYAML(node *yaml.Node) error {
	if n, err := strconv.Atoi(node.Value); err == nil {
		*c = Clock(n)
		return nil
	}
	v, err := ParseClock(node.Value)
	if err != nil {
		return err
	}
	*c = v
	return nil
}

// Weekday is a time.Weekday written by name in YAML.
type Weekday time.Weekday

// UnmarshalYAML parses a weekday name such as "monday" or "sun".
func (w *Weekday) UnmarshalYAML(node *yaml.Node) error {
	name := strings.ToLower(strings.TrimSpace(node.Value))
	for d := time.Sunday; d <= time.Saturday; d++ {
		full := strings.ToLower(d.String())
		if name == full || name == full[:3] {
			*w = Weekday(d)
			return nil
		}
	}
	return fmt.Errorf("invalid weekday %q", node.Value)
}

// GridConfig describes the time grid shared by all views.
type GridConfig struct {
	DayCount      int    `yaml:"day_count"`
	WorkdayStart  Clock  `yaml:"workday_start"`
	WorkdayEnd    Clock  `yaml:"workday_end"`
	CellMinutes   int    `yaml:"cell_minutes"`
	PixelsPerCell int    `yaml:"pixels_per_cell"`
	Width         int    `yaml:"width"`
	LaneRowHeight int    `yaml:"lane_row_height"`
	Timezone      string `yaml:"timezone"`
	// WeekStart anchors week, work-week and month views.
	WeekStart Weekday `yaml:"week_start"`
	// MultiDayBanners also shows multi-day timed events in the all-day lane.
	MultiDayBanners *bool `yaml:"multi_day_banners"`
}

var validDayCounts = map[int]bool{1: true, 2: true, 5: true, 7: true}

// Normalize replaces missing or out-of-range values with the defaults and
// returns the names of the settings it reset. Unset values are filled
// silently.
func (g *GridConfig) Normalize() []string {
	var reset []string
	fix := func(name string, set bool) {
		if set {
			reset = append(reset, name)
		}
	}

	switch {
	case g.DayCount == 0:
		g.DayCount = DefaultDayCount
	case !validDayCounts[g.DayCount]:
		fix("day_count", true)
		g.DayCount = DefaultDayCount
	}

	switch {
	case g.CellMinutes == 0:
		g.CellMinutes = DefaultCellMinutes
	case g.CellMinutes < 0 || 60%g.CellMinutes != 0:
		fix("cell_minutes", true)
		g.CellMinutes = DefaultCellMinutes
	}

	switch {
	case g.PixelsPerCell == 0:
		g.PixelsPerCell = DefaultPixelsPerCell
	case g.PixelsPerCell < 0:
		fix("pixels_per_cell", true)
		g.PixelsPerCell = DefaultPixelsPerCell
	}

	switch {
	case g.Width == 0:
		g.Width = DefaultWidth
	case g.Width < g.DayCount:
		fix("width", true)
		g.Width = DefaultWidth
	}

	switch {
	case g.LaneRowHeight == 0:
		g.LaneRowHeight = DefaultLaneRowHeight
	case g.LaneRowHeight < 0:
		fix("lane_row_height", true)
		g.LaneRowHeight = DefaultLaneRowHeight
	}

	switch {
	case g.WorkdayStart == 0 && g.WorkdayEnd == 0:
		g.WorkdayStart, g.WorkdayEnd = DefaultWorkdayStart, DefaultWorkdayEnd
	case g.WorkdayStart < 0 || g.WorkdayEnd > 24*60 || g.WorkdayStart >= g.WorkdayEnd:
		fix("workday", true)
		g.WorkdayStart, g.WorkdayEnd = DefaultWorkdayStart, DefaultWorkdayEnd
	}

	if g.Timezone != "" {
		if _, err := time.LoadLocation(g.Timezone); err != nil {
			fix("timezone", true)
			g.Timezone = ""
		}
	}

	if g.MultiDayBanners == nil {
		on := true
		g.MultiDayBanners = &on
	}

	return reset
}

// Location returns the configured time zone, or the local zone.
func (g GridConfig) Location() *time.Location {
	if g.Timezone == "" {
		return time.Local
	}
	loc, err := time.LoadLocation(g.Timezone)
	if err != nil {
		return time.Local
	}
	return loc
}

// Banners reports whether multi-day timed events get an all-day banner.
func (g GridConfig) Banners() bool {
	return g.MultiDayBanners == nil || *g.MultiDayBanners
}

// GridProvider hands out the grid configuration. Views read it when they
// are created and when Update reports a user change; nothing polls it.
type GridProvider struct {
	mu   sync.RWMutex
	grid GridConfig
	subs []func(GridConfig)
}

// NewGridProvider returns a provider for g, normalized.
func NewGridProvider(g GridConfig) *GridProvider {
	g.Normalize()
	return &GridProvider{grid: g}
}

// Grid returns the current configuration.
func (p *GridProvider) Grid() GridConfig {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.grid
}

// Subscribe registers fn to be called after each Update.
func (p *GridProvider) Subscribe(fn func(GridConfig)) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.subs = append(p.subs, fn)
}

// Update replaces the configuration and notifies subscribers. It returns
// the settings that were reset to defaults.
func (p *GridProvider) Update(g GridConfig) []string {
	reset := g.Normalize()

	p.mu.Lock()
	p.grid = g
	subs := slices.Clone(p.subs)
	p.mu.Unlock()

	for _, fn := range subs {
		fn(g)
	}
	return reset
}
