// Package filter provides include filtering for calendar events.
package filter

import (
	"fmt"
	"log/slog"
	"regexp"
	"strconv"
	"strings"

	"github.com/cpuguy83/calgrid/internal/calendar"
	"github.com/cpuguy83/calgrid/internal/config"
)

// fields maps a rule field name to the event value it matches against.
var fields = map[string]func(calendar.Event) string{
	"title":     func(ev calendar.Event) string { return ev.Summary },
	"summary":   func(ev calendar.Event) string { return ev.Summary },
	"label":     func(ev calendar.Event) string { return ev.Label },
	"organizer": func(ev calendar.Event) string { return ev.Organizer },
	"source":    func(ev calendar.Event) string { return ev.Source },
	"calendar":  func(ev calendar.Event) string { return ev.Source },
	"folder":    func(ev calendar.Event) string { return ev.Folder },
	"busy":      func(ev calendar.Event) string { return ev.BusyStatus.String() },
	"private":   func(ev calendar.Event) string { return strconv.FormatBool(ev.Private) },
}

// Filter applies include rules to events.
type Filter struct {
	all   bool // "and" mode
	rules []rule
}

type rule struct {
	value func(calendar.Event) string
	match func(string) bool
}

// New creates a new filter from configuration. Mode "and" requires every
// rule to match; anything else keeps an event when one rule matches.
func New(cfg config.FilterConfig) (*Filter, error) {
	f := &Filter{all: cfg.Mode == "and"}

	for i, r := range cfg.Rules {
		compiled, err := compileRule(r)
		if err != nil {
			return nil, fmt.Errorf("rule %d: %w", i, err)
		}
		f.rules = append(f.rules, compiled)
	}
	return f, nil
}

func compileRule(r config.FilterRule) (rule, error) {
	value, ok := fields[r.Field]
	if !ok {
		return rule{}, fmt.Errorf("unknown field %q", r.Field)
	}

	if r.Regex != "" {
		pattern := r.Regex
		if r.CaseInsensitive {
			pattern = "(?i)" + pattern
		}
		re, err := regexp.Compile(pattern)
		if err != nil {
			return rule{}, fmt.Errorf("invalid regex %q: %w", r.Regex, err)
		}
		return rule{value: value, match: re.MatchString}, nil
	}

	var (
		pattern string
		op      func(s, pattern string) bool
	)
	switch {
	case r.Exact != "":
		pattern, op = r.Exact, func(s, p string) bool { return s == p }
	case r.Prefix != "":
		pattern, op = r.Prefix, strings.HasPrefix
	case r.Suffix != "":
		pattern, op = r.Suffix, strings.HasSuffix
	case r.Contains != "":
		pattern, op = r.Contains, strings.Contains
	default:
		return rule{}, fmt.Errorf("no match pattern specified (use contains, exact, prefix, suffix, or regex)")
	}

	if r.CaseInsensitive {
		pattern = strings.ToLower(pattern)
		return rule{value: value, match: func(s string) bool {
			return op(strings.ToLower(s), pattern)
		}}, nil
	}
	return rule{value: value, match: func(s string) bool { return op(s, pattern) }}, nil
}

// Apply returns the events matching the include rules.
// Without rules every event passes.
func (f *Filter) Apply(events []calendar.Event) []calendar.Event {
	if len(f.rules) == 0 {
		return events
	}

	var filtered []calendar.Event
	for _, ev := range events {
		if f.keep(ev) {
			filtered = append(filtered, ev)
		}
	}
	slog.Debug("filter applied", "and", f.all, "in", len(events), "out", len(filtered))
	return filtered
}

func (f *Filter) keep(ev calendar.Event) bool {
	for _, r := range f.rules {
		if r.match(r.value(ev)) != f.all {
			// First miss in "and" mode, first hit in "or" mode.
			return !f.all
		}
	}
	return f.all
}
