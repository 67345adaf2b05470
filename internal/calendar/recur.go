package calendar

import (
	"fmt"
	"log/slog"
	"math"
	"sort"
	"time"

	"github.com/teambition/rrule-go"
)

// maxOccurrences caps the expansion of a single series.
const maxOccurrences = 5000

// Series is a single event or a recurring master with its edited occurrences.
type Series struct {
	// Master is the first instance of the series. Its ID is the series UID.
	Master Event

	// Rule is the recurrence set, nil for single events.
	Rule *rrule.Set

	// Overrides are edited occurrences. Basedate holds their RECURRENCE-ID.
	Overrides []Event
}

// NewRuleSet builds a recurrence set from an RRULE value and its EXDATEs.
func NewRuleSet(dtstart time.Time, rule string, exdates []time.Time) (*rrule.Set, error) {
	r, err := rrule.StrToRRule(rule)
	if err != nil {
		return nil, fmt.Errorf("parse rrule %q: %w", rule, err)
	}
	r.DTStart(dtstart)

	var set rrule.Set
	set.RRule(r)
	for _, ex := range exdates {
		set.ExDate(ex.In(dtstart.Location()))
	}
	return &set, nil
}

// Expand returns the events of the series that intersect r, sorted by start.
// Occurrences carry their original start as Basedate.
func (s Series) Expand(r Range) []Event {
	overrides := make(map[int64]Event, len(s.Overrides))
	for _, o := range s.Overrides {
		overrides[o.Basedate.Unix()] = o
	}

	var out []Event
	switch {
	case s.Master.ID == "":
		// Orphaned overrides, e.g. a CalDAV object holding only edited instances.
	case s.Rule == nil:
		if r.Overlaps(s.Master.Start, s.Master.End) {
			out = append(out, s.Master)
		}
	default:
		out = append(out, s.expandRule(r, overrides)...)
	}

	// Overrides whose basedate fell outside the expanded window may still
	// have been moved into it.
	for _, o := range s.Overrides {
		if _, pending := overrides[o.Basedate.Unix()]; !pending {
			continue
		}
		if r.Overlaps(o.Start, o.End) {
			out = append(out, o)
		}
	}

	sort.SliceStable(out, func(i, j int) bool {
		return out[i].Start.Before(out[j].Start)
	})
	return out
}

func (s Series) expandRule(r Range, overrides map[int64]Event) []Event {
	master := s.Master
	dur := master.End.Sub(master.Start)
	days := 0
	if master.AllDay {
		days = int(math.Round(dur.Hours() / 24))
		if days < 1 {
			days = 1
		}
	}

	// Look back by the duration to catch occurrences already in progress.
	occurrences := s.Rule.Between(r.Start.Add(-dur), r.End, true)
	if len(occurrences) > maxOccurrences {
		slog.Warn("truncated recurrence expansion", "id", master.ID, "cap", maxOccurrences)
		occurrences = occurrences[:maxOccurrences]
	}

	var out []Event
	for _, occ := range occurrences {
		key := occ.Unix()
		if o, ok := overrides[key]; ok {
			delete(overrides, key)
			if r.Overlaps(o.Start, o.End) {
				out = append(out, o)
			}
			continue
		}

		ev := master
		ev.Start = occ
		if master.AllDay {
			ev.End = occ.AddDate(0, 0, days)
		} else {
			ev.End = occ.Add(dur)
		}
		ev.Recurring = true
		ev.Basedate = occ
		if r.Overlaps(ev.Start, ev.End) {
			out = append(out, ev)
		}
	}
	return out
}
