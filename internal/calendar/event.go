// Package calendar provides the event model, event sources and persistence sinks.
package calendar

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"
)

var (
	// ErrMalformedEvent is returned for events that cannot be placed on a grid.
	ErrMalformedEvent = errors.New("calendar: malformed event")

	// ErrNotFound is returned when a sink has no record of the event.
	ErrNotFound = errors.New("calendar: event not found")
)

// BusyStatus is the free/busy state an event shows as.
type BusyStatus int

const (
	BusyStatusBusy BusyStatus = iota
	BusyStatusFree
	BusyStatusTentative
	BusyStatusOutOfOffice
)

func (b BusyStatus) String() string {
	switch b {
	case BusyStatusFree:
		return "free"
	case BusyStatusTentative:
		return "tentative"
	case BusyStatusOutOfOffice:
		return "out_of_office"
	default:
		return "busy"
	}
}

// MeetingState describes the current user's role in a meeting.
type MeetingState int

const (
	// MeetingNone is a plain appointment without attendees.
	MeetingNone MeetingState = iota
	// MeetingOrganized is a meeting organized by the current user that has not been sent.
	MeetingOrganized
	// MeetingSent is a meeting organized by the current user whose invitations went out.
	MeetingSent
	// MeetingReceived is a meeting the current user was invited to.
	MeetingReceived
)

// Event is a snapshot of a calendar item as supplied by a Source.
// Events are replaced wholesale on every refresh.
type Event struct {
	// ID is the unique identifier for this event. Occurrences of a
	// recurring series share the ID and differ by Basedate.
	ID string

	// Summary is the event title.
	Summary string

	// Start is when the event begins.
	Start time.Time

	// End is when the event ends.
	End time.Time

	// AllDay indicates this is an all-day event.
	AllDay bool

	// Recurring marks an occurrence of a recurring series.
	Recurring bool

	// Exception marks an occurrence that was edited individually.
	Exception bool

	// Basedate identifies the occurrence within its series. It is the
	// original start of the occurrence and never follows edits to Start.
	Basedate time.Time

	// Label is the category or color label.
	Label string

	// BusyStatus is how the event shows on free/busy.
	BusyStatus BusyStatus

	// Private hides details from delegates.
	Private bool

	// Organizer is the email of the event organizer.
	Organizer string

	// Meeting is the current user's role if this is a meeting.
	Meeting MeetingState

	// Source is the name of the calendar source this event came from.
	Source string

	// Folder is the calendar folder within the source.
	Folder string
}

// Duration returns the duration of the event.
func (e *Event) Duration() time.Duration {
	return e.End.Sub(e.Start)
}

// IsOccurrence reports whether the event is one instance of a series.
func (e *Event) IsOccurrence() bool {
	return e.Recurring && !e.Basedate.IsZero()
}

// Key identifies the event across sources, including the occurrence for
// recurring series. UIDs are only unique within one source.
func (e *Event) Key() string {
	k := e.ID
	if e.IsOccurrence() {
		k = occurrenceKey(e.ID, e.Basedate)
	}
	if e.Source == "" {
		return k
	}
	return e.Source + "/" + k
}

// occurrenceKey identifies one occurrence of a series within its source.
func occurrenceKey(id string, basedate time.Time) string {
	return id + "@" + strconv.FormatInt(basedate.Unix(), 10)
}

// Validate reports whether the event can be laid out.
func (e *Event) Validate() error {
	switch {
	case e.ID == "":
		return fmt.Errorf("%w: missing id", ErrMalformedEvent)
	case e.Start.IsZero():
		return fmt.Errorf("%w: %s: missing start", ErrMalformedEvent, e.ID)
	case e.End.IsZero():
		return fmt.Errorf("%w: %s: missing end", ErrMalformedEvent, e.ID)
	case e.End.Before(e.Start):
		return fmt.Errorf("%w: %s: ends before it starts", ErrMalformedEvent, e.ID)
	}
	return nil
}

// Range is a half-open time range [Start, End).
type Range struct {
	Start time.Time
	End   time.Time
}

// Overlaps reports whether [start, end) intersects the range. A zero-length
// interval intersects when its instant lies inside the range.
func (r Range) Overlaps(start, end time.Time) bool {
	if start.Equal(end) {
		return !start.Before(r.Start) && start.Before(r.End)
	}
	return start.Before(r.End) && r.Start.Before(end)
}

// Source is the interface that calendar sources must implement.
type Source interface {
	// Name returns the display name of this calendar source.
	Name() string

	// Fetch retrieves the events intersecting r from the given folder.
	// An empty folder selects the source's configured default.
	Fetch(ctx context.Context, r Range, folder string) ([]Event, error)
}

// RescheduleRequest asks a sink to move an event.
type RescheduleRequest struct {
	EventID string
	// Basedate selects the occurrence of a recurring series. Nil for single events.
	Basedate        *time.Time
	NewStart        time.Time
	NewEnd          time.Time
	NotifyAttendees bool
}

// Sink persists reschedules.
type Sink interface {
	Reschedule(ctx context.Context, req RescheduleRequest) error
}

// SinkCode classifies a sink failure.
type SinkCode string

const (
	CodeForbiddenFolder  SinkCode = "forbidden_folder"
	CodePermissionDenied SinkCode = "permission_denied"
	CodeConflict         SinkCode = "conflict"
	CodeRejected         SinkCode = "rejected"
)

// SinkError is the structured failure reported by a Sink.
type SinkError struct {
	Code    SinkCode
	Message string
	Err     error
}

func (e *SinkError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *SinkError) Unwrap() error {
	return e.Err
}

// isEffectivelyAllDay reports whether a timed event runs from midnight to
// midnight in the location the times were parsed in.
func isEffectivelyAllDay(start, end time.Time) bool {
	if !end.After(start) {
		return false
	}
	atMidnight := func(t time.Time) bool {
		return t.Hour() == 0 && t.Minute() == 0 && t.Second() == 0 && t.Nanosecond() == 0
	}
	return atMidnight(start) && atMidnight(end)
}
