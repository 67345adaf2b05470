package calendar

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	ics "github.com/emersion/go-ical"
	"github.com/emersion/go-webdav/caldav"
)

// CalDAVSource fetches events from a CalDAV server and writes reschedules back.
type CalDAVSource struct {
	name      string
	url       string
	username  string
	password  string
	identity  string
	calendars []string // Optional: specific calendars to sync
	loc       *time.Location

	clientOnce sync.Once
	client     *caldav.Client
	clientErr  error

	mu      sync.Mutex
	objects map[string]string // event ID -> calendar object path
}

// NewCalDAVSource creates a new CalDAV calendar source.
func NewCalDAVSource(name, url, username, password, identity string, calendars []string, loc *time.Location) *CalDAVSource {
	return &CalDAVSource{
		name:      name,
		url:       url,
		username:  username,
		password:  password,
		identity:  identity,
		calendars: calendars,
		loc:       loc,
		objects:   make(map[string]string),
	}
}

// iCloudCalDAVURL is the base URL for iCloud CalDAV.
const iCloudCalDAVURL = "https://caldav.icloud.com"

// NewICloudSource creates a new iCloud calendar source.
// iCloud uses CalDAV with a specific server URL.
func NewICloudSource(name, username, password, identity string, calendars []string, loc *time.Location) *CalDAVSource {
	return NewCalDAVSource(name, iCloudCalDAVURL, username, password, identity, calendars, loc)
}

// Name returns the display name of this calendar source.
func (s *CalDAVSource) Name() string {
	return s.name
}

func (s *CalDAVSource) caldavClient() (*caldav.Client, error) {
	s.clientOnce.Do(func() {
		httpClient := &http.Client{
			Timeout: 60 * time.Second,
			Transport: &basicAuthTransport{
				username: s.username,
				password: s.password,
				base:     http.DefaultTransport,
			},
		}
		s.client, s.clientErr = caldav.NewClient(httpClient, s.url)
		if s.clientErr != nil {
			s.clientErr = fmt.Errorf("create caldav client: %w", s.clientErr)
		}
	})
	return s.client, s.clientErr
}

// Fetch retrieves the events intersecting r. A non-empty folder selects a
// single calendar by name or path; otherwise the configured calendars are used.
func (s *CalDAVSource) Fetch(ctx context.Context, r Range, folder string) ([]Event, error) {
	client, err := s.caldavClient()
	if err != nil {
		return nil, err
	}

	// Find the user's calendar home
	principal, err := client.FindCurrentUserPrincipal(ctx)
	if err != nil {
		return nil, fmt.Errorf("find principal: %w", err)
	}

	homeSet, err := client.FindCalendarHomeSet(ctx, principal)
	if err != nil {
		return nil, fmt.Errorf("find calendar home: %w", err)
	}

	cals, err := client.FindCalendars(ctx, homeSet)
	if err != nil {
		return nil, fmt.Errorf("find calendars: %w", err)
	}

	var allEvents []Event
	for _, cal := range cals {
		if !s.shouldSyncCalendar(cal, folder) {
			continue
		}

		events, err := s.fetchCalendarEvents(ctx, client, cal, r)
		if err != nil {
			// Log but continue with other calendars
			slog.Warn("failed to fetch calendar", "source", s.name, "calendar", cal.Name, "error", err)
			continue
		}

		allEvents = append(allEvents, events...)
	}

	return allEvents, nil
}

// shouldSyncCalendar checks if a calendar should be synced based on the
// requested folder and the configured calendars.
func (s *CalDAVSource) shouldSyncCalendar(cal caldav.Calendar, folder string) bool {
	if folder != "" {
		return strings.EqualFold(cal.Name, folder) || cal.Path == folder
	}
	if len(s.calendars) == 0 {
		return true
	}
	for _, c := range s.calendars {
		if strings.EqualFold(c, cal.Name) {
			return true
		}
	}
	return false
}

// fetchCalendarEvents fetches the events of a single calendar within r.
func (s *CalDAVSource) fetchCalendarEvents(ctx context.Context, client *caldav.Client, cal caldav.Calendar, r Range) ([]Event, error) {
	query := &caldav.CalendarQuery{
		CompRequest: caldav.CalendarCompRequest{
			Name:     "VCALENDAR",
			AllProps: true,
			AllComps: true,
		},
		CompFilter: caldav.CompFilter{
			Name: "VCALENDAR",
			Comps: []caldav.CompFilter{{
				Name:  "VEVENT",
				Start: r.Start,
				End:   r.End,
			}},
		},
	}

	objects, err := client.QueryCalendar(ctx, cal.Path, query)
	if err != nil {
		return nil, fmt.Errorf("query calendar %s: %w", cal.Name, err)
	}

	p := componentParser{
		source:   s.name,
		folder:   cal.Name,
		identity: s.identity,
		loc:      s.loc,
	}

	var events []Event
	for _, obj := range objects {
		if obj.Data == nil {
			continue
		}

		var items []parsedComponent
		for _, comp := range obj.Data.Children {
			if comp.Name != ics.CompEvent {
				continue
			}
			item, err := p.parse(comp)
			if err != nil {
				slog.Debug("skip unparsable event", "source", s.name, "path", obj.Path, "error", err)
				continue
			}
			items = append(items, item)
		}

		for _, item := range items {
			s.remember(item.event.ID, obj.Path)
		}
		events = append(events, seriesFromComponents(items, r, p.location())...)
	}

	return events, nil
}

func (s *CalDAVSource) remember(id, path string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.objects[id] = path
}

func (s *CalDAVSource) objectPath(id string) (string, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	path, ok := s.objects[id]
	return path, ok
}

// Reschedule rewrites the calendar object holding the event. For an
// occurrence of a recurring series an override component is written
// instead of touching the master.
func (s *CalDAVSource) Reschedule(ctx context.Context, req RescheduleRequest) error {
	path, ok := s.objectPath(req.EventID)
	if !ok {
		return &SinkError{Code: CodeRejected, Message: "event was not fetched from this source", Err: ErrNotFound}
	}

	client, err := s.caldavClient()
	if err != nil {
		return err
	}

	obj, err := client.GetCalendarObject(ctx, path)
	if err != nil {
		return classifyDAVError("get calendar object", err)
	}

	if err := applyReschedule(obj.Data, req, time.Now()); err != nil {
		return err
	}

	if _, err := client.PutCalendarObject(ctx, path, obj.Data); err != nil {
		return classifyDAVError("put calendar object", err)
	}

	slog.Info("rescheduled event", "source", s.name, "id", req.EventID, "start", req.NewStart, "end", req.NewEnd)
	return nil
}

// applyReschedule updates the VEVENT addressed by req inside cal.
func applyReschedule(cal *ics.Calendar, req RescheduleRequest, now time.Time) error {
	var master, override *ics.Component
	for _, comp := range cal.Children {
		if comp.Name != ics.CompEvent {
			continue
		}
		if uid := comp.Props.Get(ics.PropUID); uid == nil || uid.Value != req.EventID {
			continue
		}
		rid := comp.Props.Get(ics.PropRecurrenceID)
		switch {
		case rid == nil:
			master = comp
		case req.Basedate != nil:
			if t, err := rid.DateTime(req.Basedate.Location()); err == nil && t.Equal(*req.Basedate) {
				override = comp
			}
		}
	}

	target := master
	if req.Basedate != nil {
		target = override
		if target == nil {
			if master == nil {
				return &SinkError{Code: CodeRejected, Message: "series master not found", Err: ErrNotFound}
			}
			target = newOverride(master, *req.Basedate)
			cal.Children = append(cal.Children, target)
		}
	}
	if target == nil {
		return &SinkError{Code: CodeRejected, Message: "event not found in calendar object", Err: ErrNotFound}
	}

	if prop := target.Props.Get(ics.PropDateTimeStart); prop != nil && prop.ValueType() == ics.ValueDate {
		target.Props.SetDate(ics.PropDateTimeStart, req.NewStart)
		target.Props.SetDate(ics.PropDateTimeEnd, req.NewEnd)
	} else {
		target.Props.SetDateTime(ics.PropDateTimeStart, req.NewStart)
		target.Props.SetDateTime(ics.PropDateTimeEnd, req.NewEnd)
	}
	target.Props.Del(ics.PropDuration)
	target.Props.SetDateTime(ics.PropDateTimeStamp, now.UTC())
	bumpSequence(target)

	if !req.NotifyAttendees {
		// RFC 6638: the server must not send scheduling messages for
		// attendees the client handles itself.
		attendees := target.Props.Values(ics.PropAttendee)
		for i := range attendees {
			if attendees[i].Params == nil {
				attendees[i].Params = make(ics.Params)
			}
			attendees[i].Params.Set("SCHEDULE-AGENT", "CLIENT")
		}
	}
	return nil
}

// newOverride creates a RECURRENCE-ID component for one occurrence of master.
func newOverride(master *ics.Component, basedate time.Time) *ics.Component {
	comp := ics.NewComponent(ics.CompEvent)
	for name, props := range master.Props {
		switch name {
		case ics.PropRecurrenceRule, ics.PropRecurrenceDates, ics.PropExceptionDates:
			continue
		}
		comp.Props[name] = append([]ics.Prop(nil), props...)
	}
	if prop := master.Props.Get(ics.PropDateTimeStart); prop != nil && prop.ValueType() == ics.ValueDate {
		comp.Props.SetDate(ics.PropRecurrenceID, basedate)
	} else {
		comp.Props.SetDateTime(ics.PropRecurrenceID, basedate)
	}
	return comp
}

func bumpSequence(comp *ics.Component) {
	seq := 0
	if prop := comp.Props.Get(ics.PropSequence); prop != nil {
		seq, _ = strconv.Atoi(strings.TrimSpace(prop.Value))
	}
	comp.Props.SetText(ics.PropSequence, strconv.Itoa(seq+1))
}

// classifyDAVError maps a CalDAV failure to a SinkError. go-webdav keeps
// its HTTP error type internal, so the status is read from the message.
func classifyDAVError(op string, err error) error {
	msg := err.Error()
	code := CodeRejected
	switch {
	case strings.Contains(msg, "403"), strings.Contains(msg, "401"):
		code = CodePermissionDenied
	case strings.Contains(msg, "409"), strings.Contains(msg, "412"):
		code = CodeConflict
	case strings.Contains(msg, "405"):
		code = CodeForbiddenFolder
	}
	return &SinkError{Code: code, Message: op, Err: err}
}

// basicAuthTransport adds basic auth to HTTP requests.
type basicAuthTransport struct {
	username string
	password string
	base     http.RoundTripper
}

func (t *basicAuthTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	req.SetBasicAuth(t.username, t.password)
	return t.base.RoundTrip(req)
}

var (
	_ Source = (*CalDAVSource)(nil)
	_ Sink   = (*CalDAVSource)(nil)
)
