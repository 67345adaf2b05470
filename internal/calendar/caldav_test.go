package calendar

import (
	"errors"
	"strings"
	"testing"
	"time"

	ics "github.com/emersion/go-ical"
)

func decodeCalendar(t *testing.T, data string) *ics.Calendar {
	t.Helper()
	cal, err := ics.NewDecoder(strings.NewReader(data)).Decode()
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	return cal
}

func eventsByUID(cal *ics.Calendar, uid string) []*ics.Component {
	var out []*ics.Component
	for _, comp := range cal.Children {
		if comp.Name != ics.CompEvent {
			continue
		}
		if prop := comp.Props.Get(ics.PropUID); prop != nil && prop.Value == uid {
			out = append(out, comp)
		}
	}
	return out
}

func TestApplyReschedule_Single(t *testing.T) {
	cal := decodeCalendar(t, `BEGIN:VCALENDAR
VERSION:2.0
PRODID:-//test//EN
BEGIN:VEVENT
UID:review
DTSTAMP:20260101T000000Z
SUMMARY:Review
DTSTART:20260217T140000Z
DTEND:20260217T143000Z
SEQUENCE:2
ATTENDEE:mailto:you@example.com
END:VEVENT
END:VCALENDAR`)

	newStart := time.Date(2026, 2, 18, 10, 0, 0, 0, time.UTC)
	req := RescheduleRequest{EventID: "review", NewStart: newStart, NewEnd: newStart.Add(30 * time.Minute)}
	if err := applyReschedule(cal, req, newStart); err != nil {
		t.Fatalf("applyReschedule: %v", err)
	}

	comps := eventsByUID(cal, "review")
	if len(comps) != 1 {
		t.Fatalf("expected 1 component, got %d", len(comps))
	}
	start, err := comps[0].Props.DateTime(ics.PropDateTimeStart, time.UTC)
	if err != nil || !start.Equal(newStart) {
		t.Errorf("DTSTART = %v (%v), want %v", start, err, newStart)
	}
	if seq := comps[0].Props.Get(ics.PropSequence); seq == nil || seq.Value != "3" {
		t.Errorf("SEQUENCE not bumped: %+v", seq)
	}
	att := comps[0].Props.Get(ics.PropAttendee)
	if att == nil || att.Params.Get("SCHEDULE-AGENT") != "CLIENT" {
		t.Errorf("attendee scheduling not suppressed: %+v", att)
	}
}

func TestApplyReschedule_OccurrenceOverride(t *testing.T) {
	cal := decodeCalendar(t, `BEGIN:VCALENDAR
VERSION:2.0
PRODID:-//test//EN
BEGIN:VEVENT
UID:standup
DTSTAMP:20260101T000000Z
SUMMARY:Standup
DTSTART:20260216T090000Z
DTEND:20260216T091500Z
RRULE:FREQ=DAILY;COUNT=5
END:VEVENT
END:VCALENDAR`)

	basedate := time.Date(2026, 2, 18, 9, 0, 0, 0, time.UTC)
	newStart := time.Date(2026, 2, 18, 15, 0, 0, 0, time.UTC)
	req := RescheduleRequest{
		EventID:         "standup",
		Basedate:        &basedate,
		NewStart:        newStart,
		NewEnd:          newStart.Add(15 * time.Minute),
		NotifyAttendees: true,
	}
	if err := applyReschedule(cal, req, newStart); err != nil {
		t.Fatalf("applyReschedule: %v", err)
	}

	comps := eventsByUID(cal, "standup")
	if len(comps) != 2 {
		t.Fatalf("expected master and override, got %d components", len(comps))
	}

	master, override := comps[0], comps[1]
	if start, _ := master.Props.DateTime(ics.PropDateTimeStart, time.UTC); !start.Equal(time.Date(2026, 2, 16, 9, 0, 0, 0, time.UTC)) {
		t.Errorf("master DTSTART changed to %v", start)
	}
	if override.Props.Get(ics.PropRecurrenceRule) != nil {
		t.Errorf("override must not carry RRULE")
	}
	rid, err := override.Props.DateTime(ics.PropRecurrenceID, time.UTC)
	if err != nil || !rid.Equal(basedate) {
		t.Errorf("RECURRENCE-ID = %v (%v), want %v", rid, err, basedate)
	}
	if start, _ := override.Props.DateTime(ics.PropDateTimeStart, time.UTC); !start.Equal(newStart) {
		t.Errorf("override DTSTART = %v, want %v", start, newStart)
	}

	// A second move of the same occurrence edits the override in place.
	newStart = newStart.Add(time.Hour)
	req.NewStart, req.NewEnd = newStart, newStart.Add(15*time.Minute)
	if err := applyReschedule(cal, req, newStart); err != nil {
		t.Fatalf("second applyReschedule: %v", err)
	}
	if n := len(eventsByUID(cal, "standup")); n != 2 {
		t.Errorf("expected override to be reused, got %d components", n)
	}
}

func TestApplyReschedule_NotFound(t *testing.T) {
	cal := decodeCalendar(t, `BEGIN:VCALENDAR
VERSION:2.0
PRODID:-//test//EN
END:VCALENDAR`)

	err := applyReschedule(cal, RescheduleRequest{EventID: "missing"}, time.Now())
	if !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestClassifyDAVError(t *testing.T) {
	tests := []struct {
		msg  string
		want SinkCode
	}{
		{"403 Forbidden", CodePermissionDenied},
		{"412 Precondition Failed", CodeConflict},
		{"405 Method Not Allowed", CodeForbiddenFolder},
		{"connection reset", CodeRejected},
	}
	for _, tt := range tests {
		t.Run(tt.msg, func(t *testing.T) {
			var serr *SinkError
			if !errors.As(classifyDAVError("put", errors.New(tt.msg)), &serr) {
				t.Fatal("expected *SinkError")
			}
			if serr.Code != tt.want {
				t.Errorf("Code = %q, want %q", serr.Code, tt.want)
			}
		})
	}
}
