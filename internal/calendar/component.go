package calendar

import (
	"fmt"
	"strings"
	"time"

	ics "github.com/emersion/go-ical"
)

// Non-standard busy status property written by Exchange and Outlook.
const propBusyStatus = "X-MICROSOFT-CDO-BUSYSTATUS"

// componentParser converts VEVENT components into events for one source.
type componentParser struct {
	source   string
	folder   string
	identity string // current user's address, used to classify meetings
	loc      *time.Location
}

// parsedComponent is a VEVENT converted to an Event plus its recurrence data.
type parsedComponent struct {
	event    Event
	comp     *ics.Component
	override bool // carries a RECURRENCE-ID; event.Basedate holds it
}

func (p componentParser) location() *time.Location {
	if p.loc == nil {
		return time.Local
	}
	return p.loc
}

// parse converts a VEVENT component to our Event type.
func (p componentParser) parse(comp *ics.Component) (parsedComponent, error) {
	loc := p.location()
	event := Event{
		Source: p.source,
		Folder: p.folder,
	}

	if prop := comp.Props.Get(ics.PropUID); prop != nil {
		event.ID = prop.Value
	}
	if event.ID == "" {
		return parsedComponent{}, fmt.Errorf("%w: missing UID", ErrMalformedEvent)
	}

	if prop := comp.Props.Get(ics.PropSummary); prop != nil {
		event.Summary = prop.Value
	}

	// Start time
	prop := comp.Props.Get(ics.PropDateTimeStart)
	if prop == nil {
		return parsedComponent{}, fmt.Errorf("%w: %s: missing DTSTART", ErrMalformedEvent, event.ID)
	}
	start, allDay, err := parseTimeProp(prop, loc)
	if err != nil {
		return parsedComponent{}, fmt.Errorf("parse start time: %w", err)
	}
	event.Start = start
	event.AllDay = allDay

	// End time / duration
	switch {
	case comp.Props.Get(ics.PropDateTimeEnd) != nil:
		end, _, err := parseTimeProp(comp.Props.Get(ics.PropDateTimeEnd), loc)
		if err != nil {
			return parsedComponent{}, fmt.Errorf("parse end time: %w", err)
		}
		event.End = end
	case comp.Props.Get(ics.PropDuration) != nil:
		d, err := comp.Props.Get(ics.PropDuration).Duration()
		if err != nil {
			return parsedComponent{}, fmt.Errorf("parse duration: %w", err)
		}
		event.End = event.Start.Add(d)
	case event.AllDay:
		event.End = event.Start.AddDate(0, 0, 1)
	default:
		// A DTSTART without DTEND is an instant.
		event.End = event.Start
	}

	if !event.AllDay {
		event.AllDay = isEffectivelyAllDay(event.Start, event.End)
	}

	if prop := comp.Props.Get(ics.PropCategories); prop != nil {
		event.Label = strings.TrimSpace(strings.Split(prop.Value, ",")[0])
	}

	if prop := comp.Props.Get(ics.PropClass); prop != nil {
		switch strings.ToUpper(prop.Value) {
		case "PRIVATE", "CONFIDENTIAL":
			event.Private = true
		}
	}

	event.BusyStatus = busyStatusFromProps(comp)

	if prop := comp.Props.Get(ics.PropOrganizer); prop != nil {
		event.Organizer = stripMailto(prop.Value)
	}
	event.Meeting = p.meetingState(event.Organizer, len(comp.Props.Values(ics.PropAttendee)))

	out := parsedComponent{event: event, comp: comp}

	if prop := comp.Props.Get(ics.PropRecurrenceID); prop != nil {
		rid, _, err := parseTimeProp(prop, loc)
		if err != nil {
			return parsedComponent{}, fmt.Errorf("parse recurrence id: %w", err)
		}
		out.event.Basedate = rid
		out.event.Recurring = true
		out.event.Exception = true
		out.override = true
	}

	return out, nil
}

// meetingState classifies the current user's role in a meeting.
func (p componentParser) meetingState(organizer string, attendees int) MeetingState {
	if attendees == 0 {
		return MeetingNone
	}
	if p.identity != "" && strings.EqualFold(organizer, p.identity) {
		// Anything a server publishes with attendees has been sent.
		return MeetingSent
	}
	return MeetingReceived
}

func busyStatusFromProps(comp *ics.Component) BusyStatus {
	if prop := comp.Props.Get(propBusyStatus); prop != nil {
		switch strings.ToUpper(prop.Value) {
		case "FREE":
			return BusyStatusFree
		case "TENTATIVE":
			return BusyStatusTentative
		case "OOF":
			return BusyStatusOutOfOffice
		case "BUSY":
			return BusyStatusBusy
		}
	}
	if prop := comp.Props.Get(ics.PropStatus); prop != nil && strings.EqualFold(prop.Value, "TENTATIVE") {
		return BusyStatusTentative
	}
	if prop := comp.Props.Get(ics.PropTransparency); prop != nil && strings.EqualFold(prop.Value, "TRANSPARENT") {
		return BusyStatusFree
	}
	return BusyStatusBusy
}

// parseTimeProp parses a DATE or DATE-TIME property, reporting whether it
// was a date-only value.
func parseTimeProp(prop *ics.Prop, loc *time.Location) (time.Time, bool, error) {
	if prop.ValueType() == ics.ValueDate {
		t, err := parseDateOnly(prop.Value, loc)
		return t, true, err
	}
	t, err := prop.DateTime(loc)
	if err == nil {
		return t, false, nil
	}
	// Floating time without TZID
	if t, err := parseDateTime(prop.Value, loc); err == nil {
		return t, false, nil
	}
	t, err = parseDateOnly(prop.Value, loc)
	if err != nil {
		return time.Time{}, false, err
	}
	return t, true, nil
}

// parseDateOnly parses a date-only value (YYYYMMDD format).
func parseDateOnly(s string, loc *time.Location) (time.Time, error) {
	return time.ParseInLocation("20060102", s, loc)
}

// parseDateTime parses a datetime value without timezone (YYYYMMDDTHHmmss format).
func parseDateTime(s string, loc *time.Location) (time.Time, error) {
	return time.ParseInLocation("20060102T150405", s, loc)
}

func stripMailto(s string) string {
	if len(s) > 7 && strings.EqualFold(s[:7], "mailto:") {
		return s[7:]
	}
	return s
}

// seriesFromComponents groups parsed VEVENTs by UID and expands each
// series into the events intersecting r.
func seriesFromComponents(items []parsedComponent, r Range, loc *time.Location) []Event {
	masters := make(map[string]*Series)
	var order []string

	get := func(uid string) *Series {
		s, ok := masters[uid]
		if !ok {
			s = &Series{}
			masters[uid] = s
			order = append(order, uid)
		}
		return s
	}

	for _, item := range items {
		s := get(item.event.ID)
		if item.override {
			s.Overrides = append(s.Overrides, item.event)
			continue
		}
		s.Master = item.event
		set, err := item.comp.RecurrenceSet(loc)
		if err != nil {
			// Show the first instance rather than dropping the series.
			continue
		}
		s.Rule = set
	}

	var events []Event
	for _, uid := range order {
		events = append(events, masters[uid].Expand(r)...)
	}
	return events
}
