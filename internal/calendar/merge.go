package calendar

import (
	"sort"
	"time"
)

// Merge combines events from multiple sources into a single slice.
// Events are sorted by start time, then by key so equal starts order stably.
func Merge(eventSets ...[]Event) []Event {
	var all []Event
	for _, events := range eventSets {
		all = append(all, events...)
	}

	sort.SliceStable(all, func(i, j int) bool {
		if !all[i].Start.Equal(all[j].Start) {
			return all[i].Start.Before(all[j].Start)
		}
		return all[i].Key() < all[j].Key()
	})

	return all
}

// Find returns the event with the given ID. When basedate is non-zero the
// matching occurrence is returned.
func Find(events []Event, id string, basedate time.Time) (Event, bool) {
	for _, e := range events {
		if e.ID != id {
			continue
		}
		if basedate.IsZero() || e.Basedate.Equal(basedate) {
			return e, true
		}
	}
	return Event{}, false
}
