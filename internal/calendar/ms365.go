package calendar

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/cpuguy83/calgrid/internal/auth"
)

const (
	// MS Graph API base URL
	graphBaseURL = "https://graph.microsoft.com/v1.0"

	// Required scope for reading and rescheduling events
	calendarReadWriteScope = "Calendars.ReadWrite"
)

// tokenProvider can acquire access tokens.
type tokenProvider interface {
	GetToken(ctx context.Context) (*auth.Token, error)
	Close() error
}

// MS365Source fetches events from Microsoft 365 calendar via Graph API
// and writes reschedules back with PATCH requests.
type MS365Source struct {
	name      string
	clientID  string
	identity  string
	calendars []string
	loc       *time.Location
	baseURL   string
	client    *http.Client

	auth     tokenProvider
	initOnce sync.Once
	initErr  error

	mu          sync.Mutex
	occurrences map[string]string // occurrence key -> graph occurrence id
}

// NewMS365Source creates a new MS365 calendar source. calendars lists
// calendar ids to fetch when no folder is requested; empty means the
// default calendar.
func NewMS365Source(name, clientID, identity string, calendars []string, loc *time.Location) *MS365Source {
	if loc == nil {
		loc = time.Local
	}
	return &MS365Source{
		name:      name,
		clientID:  clientID,
		identity:  identity,
		calendars: calendars,
		loc:       loc,
		baseURL:   graphBaseURL,
		client: &http.Client{
			Timeout: 30 * time.Second,
		},
		occurrences: make(map[string]string),
	}
}

// initAuth initializes the device code authentication provider.
func (s *MS365Source) initAuth() error {
	s.initOnce.Do(func() {
		if s.auth != nil {
			return
		}
		deviceCode, err := auth.NewDeviceCodeAuth(s.clientID, []string{calendarReadWriteScope})
		if err != nil {
			s.initErr = fmt.Errorf("initialize device code auth: %w", err)
			return
		}
		s.auth = deviceCode
	})
	return s.initErr
}

func (s *MS365Source) token(ctx context.Context) (string, error) {
	if err := s.initAuth(); err != nil {
		return "", err
	}
	token, err := s.auth.GetToken(ctx)
	if err != nil {
		return "", fmt.Errorf("get token: %w", err)
	}
	return token.AccessToken, nil
}

// Name returns the display name of this calendar source.
func (s *MS365Source) Name() string {
	return s.name
}

// Fetch retrieves events intersecting r from Microsoft 365. A non-empty
// folder selects a calendar id; otherwise the configured calendars or the
// default calendar are used.
func (s *MS365Source) Fetch(ctx context.Context, r Range, folder string) ([]Event, error) {
	accessToken, err := s.token(ctx)
	if err != nil {
		return nil, err
	}

	folders := []string{folder}
	if folder == "" && len(s.calendars) > 0 {
		folders = s.calendars
	}

	var events []Event
	for _, f := range folders {
		evs, err := s.fetchCalendarView(ctx, accessToken, f, r)
		if err != nil {
			return nil, fmt.Errorf("fetch calendar: %w", err)
		}
		events = append(events, evs...)
	}
	return events, nil
}

// Close cleans up resources.
func (s *MS365Source) Close() error {
	if s.auth != nil {
		return s.auth.Close()
	}
	return nil
}

// graphCalendarResponse is the MS Graph API response for calendar events.
type graphCalendarResponse struct {
	Value    []graphEvent `json:"value"`
	NextLink string       `json:"@odata.nextLink,omitempty"`
}

// graphEvent represents an event from MS Graph API.
type graphEvent struct {
	ID             string          `json:"id"`
	Subject        string          `json:"subject"`
	Start          graphDateTime   `json:"start"`
	End            graphDateTime   `json:"end"`
	IsAllDay       bool            `json:"isAllDay"`
	IsCancelled    bool            `json:"isCancelled"`
	IsOrganizer    bool            `json:"isOrganizer"`
	IsDraft        bool            `json:"isDraft"`
	Organizer      *graphOrganizer `json:"organizer,omitempty"`
	Attendees      []graphAttendee `json:"attendees,omitempty"`
	Categories     []string        `json:"categories,omitempty"`
	Sensitivity    string          `json:"sensitivity"`
	ShowAs         string          `json:"showAs"`
	Type           string          `json:"type"`
	SeriesMasterID string          `json:"seriesMasterId,omitempty"`
	OriginalStart  string          `json:"originalStart,omitempty"`
}

type graphDateTime struct {
	DateTime string `json:"dateTime"`
	TimeZone string `json:"timeZone"`
}

type graphOrganizer struct {
	EmailAddress graphEmailAddress `json:"emailAddress"`
}

type graphAttendee struct {
	EmailAddress graphEmailAddress `json:"emailAddress"`
}

type graphEmailAddress struct {
	Name    string `json:"name"`
	Address string `json:"address"`
}

type graphErrorResponse struct {
	Error struct {
		Code    string `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
}

// calendarViewURL returns the calendarView endpoint for a calendar id.
func (s *MS365Source) calendarViewURL(folder string) string {
	if folder == "" {
		return s.baseURL + "/me/calendarView"
	}
	return s.baseURL + "/me/calendars/" + url.PathEscape(folder) + "/calendarView"
}

// fetchCalendarView fetches events using the calendarView endpoint (handles recurrence expansion).
func (s *MS365Source) fetchCalendarView(ctx context.Context, accessToken, folder string, r Range) ([]Event, error) {
	// Build URL with time range
	params := url.Values{}
	params.Set("startDateTime", r.Start.UTC().Format(time.RFC3339))
	params.Set("endDateTime", r.End.UTC().Format(time.RFC3339))
	params.Set("$orderby", "start/dateTime")
	params.Set("$top", "500")
	params.Set("$select", "id,subject,start,end,isAllDay,isCancelled,isOrganizer,isDraft,organizer,attendees,categories,sensitivity,showAs,type,seriesMasterId,originalStart")

	reqURL := s.calendarViewURL(folder) + "?" + params.Encode()

	var allEvents []Event

	// Handle pagination
	for reqURL != "" {
		events, nextLink, err := s.fetchPage(ctx, accessToken, reqURL, folder)
		if err != nil {
			return nil, err
		}
		allEvents = append(allEvents, events...)
		reqURL = nextLink
	}

	slog.Debug("fetched MS365 events", "source", s.name, "folder", folder, "count", len(allEvents))
	return allEvents, nil
}

// fetchPage fetches a single page of events.
func (s *MS365Source) fetchPage(ctx context.Context, accessToken, reqURL, folder string) ([]Event, string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
	if err != nil {
		return nil, "", fmt.Errorf("create request: %w", err)
	}

	req.Header.Set("Authorization", "Bearer "+accessToken)
	req.Header.Set("Accept", "application/json")
	// Request times in UTC; conversion to the grid location happens when parsing
	req.Header.Set("Prefer", `outlook.timezone="UTC"`)

	resp, err := s.client.Do(req)
	if err != nil {
		return nil, "", fmt.Errorf("fetch: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return nil, "", fmt.Errorf("graph API error: status %d: %s", resp.StatusCode, string(body))
	}

	var graphResp graphCalendarResponse
	if err := json.NewDecoder(resp.Body).Decode(&graphResp); err != nil {
		return nil, "", fmt.Errorf("decode response: %w", err)
	}

	events := make([]Event, 0, len(graphResp.Value))
	for _, ge := range graphResp.Value {
		// Skip cancelled events
		if ge.IsCancelled {
			continue
		}

		event, err := s.convertEvent(ge, folder)
		if err != nil {
			slog.Warn("skip event conversion error", "id", ge.ID, "error", err)
			continue
		}
		if event.IsOccurrence() {
			s.rememberOccurrence(occurrenceKey(event.ID, event.Basedate), ge.ID)
		}
		events = append(events, event)
	}

	return events, graphResp.NextLink, nil
}

// convertEvent converts a Graph API event to our Event type.
func (s *MS365Source) convertEvent(ge graphEvent, folder string) (Event, error) {
	event := Event{
		ID:      ge.ID,
		Summary: ge.Subject,
		Source:  s.name,
		Folder:  folder,
		AllDay:  ge.IsAllDay,
		Private: ge.Sensitivity == "private" || ge.Sensitivity == "confidential",
	}

	start, err := s.parseGraphDateTime(ge.Start, ge.IsAllDay)
	if err != nil {
		return event, fmt.Errorf("parse start: %w", err)
	}
	event.Start = start

	end, err := s.parseGraphDateTime(ge.End, ge.IsAllDay)
	if err != nil {
		return event, fmt.Errorf("parse end: %w", err)
	}
	event.End = end

	if len(ge.Categories) > 0 {
		event.Label = ge.Categories[0]
	}

	switch ge.ShowAs {
	case "free", "workingElsewhere":
		event.BusyStatus = BusyStatusFree
	case "tentative":
		event.BusyStatus = BusyStatusTentative
	case "oof":
		event.BusyStatus = BusyStatusOutOfOffice
	default:
		event.BusyStatus = BusyStatusBusy
	}

	if ge.Organizer != nil {
		event.Organizer = ge.Organizer.EmailAddress.Address
	}

	switch {
	case len(ge.Attendees) == 0:
		event.Meeting = MeetingNone
	case ge.IsOrganizer && ge.IsDraft:
		event.Meeting = MeetingOrganized
	case ge.IsOrganizer:
		event.Meeting = MeetingSent
	default:
		event.Meeting = MeetingReceived
	}

	switch ge.Type {
	case "occurrence", "exception":
		// Occurrences are addressed by their series and original start.
		event.ID = ge.SeriesMasterID
		event.Recurring = true
		event.Exception = ge.Type == "exception"
		event.Basedate = event.Start
		if ge.OriginalStart != "" {
			basedate, err := time.Parse(time.RFC3339, ge.OriginalStart)
			if err != nil {
				return event, fmt.Errorf("parse originalStart: %w", err)
			}
			event.Basedate = basedate.In(s.loc)
		}
	case "seriesMaster":
		event.Recurring = true
	}

	return event, nil
}

// parseGraphDateTime parses a Graph API datetime value. All-day events
// are floating dates and are placed at midnight in the source location.
func (s *MS365Source) parseGraphDateTime(gdt graphDateTime, allDay bool) (time.Time, error) {
	// Format: "2024-01-15T09:00:00.0000000"
	formats := []string{
		"2006-01-02T15:04:05.0000000",
		"2006-01-02T15:04:05",
		"2006-01-02",
	}

	for _, format := range formats {
		t, err := time.ParseInLocation(format, gdt.DateTime, time.UTC)
		if err != nil {
			continue
		}
		if allDay {
			return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, s.loc), nil
		}
		return t.In(s.loc), nil
	}

	return time.Time{}, fmt.Errorf("cannot parse datetime: %s", gdt.DateTime)
}

func (s *MS365Source) rememberOccurrence(key, graphID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.occurrences[key] = graphID
}

// graphEventID resolves the Graph id to PATCH for a reschedule request.
func (s *MS365Source) graphEventID(req RescheduleRequest) (string, error) {
	if req.Basedate == nil {
		return req.EventID, nil
	}
	key := occurrenceKey(req.EventID, *req.Basedate)

	s.mu.Lock()
	defer s.mu.Unlock()
	id, ok := s.occurrences[key]
	if !ok {
		return "", &SinkError{Code: CodeRejected, Message: "occurrence was not fetched from this source", Err: ErrNotFound}
	}
	return id, nil
}

type graphPatch struct {
	Start graphDateTime `json:"start"`
	End   graphDateTime `json:"end"`
}

func formatGraphDateTime(t time.Time, allDay bool) graphDateTime {
	if allDay {
		return graphDateTime{DateTime: t.Format("2006-01-02") + "T00:00:00", TimeZone: "UTC"}
	}
	return graphDateTime{DateTime: t.UTC().Format("2006-01-02T15:04:05"), TimeZone: "UTC"}
}

// Reschedule moves an event with PATCH /me/events/{id}. Graph sends
// meeting updates on its own, so NotifyAttendees cannot suppress them.
func (s *MS365Source) Reschedule(ctx context.Context, req RescheduleRequest) error {
	id, err := s.graphEventID(req)
	if err != nil {
		return err
	}

	accessToken, err := s.token(ctx)
	if err != nil {
		return err
	}

	allDay := isEffectivelyAllDay(req.NewStart, req.NewEnd)
	body, err := json.Marshal(graphPatch{
		Start: formatGraphDateTime(req.NewStart, allDay),
		End:   formatGraphDateTime(req.NewEnd, allDay),
	})
	if err != nil {
		return fmt.Errorf("encode patch: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPatch, s.baseURL+"/me/events/"+url.PathEscape(id), bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	httpReq.Header.Set("Authorization", "Bearer "+accessToken)
	httpReq.Header.Set("Content-Type", "application/json")

	if !req.NotifyAttendees {
		slog.Debug("graph sends meeting updates regardless of notify flag", "source", s.name, "id", req.EventID)
	}

	resp, err := s.client.Do(httpReq)
	if err != nil {
		return &SinkError{Code: CodeRejected, Message: "patch event", Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode/100 == 2 {
		slog.Info("rescheduled event", "source", s.name, "id", req.EventID, "start", req.NewStart, "end", req.NewEnd)
		return nil
	}

	return graphSinkError(resp)
}

// graphSinkError converts a failed Graph response into a SinkError.
func graphSinkError(resp *http.Response) error {
	data, _ := io.ReadAll(io.LimitReader(resp.Body, 64<<10))

	msg := http.StatusText(resp.StatusCode)
	var gerr graphErrorResponse
	if json.Unmarshal(data, &gerr) == nil && gerr.Error.Message != "" {
		msg = gerr.Error.Message
	}

	code := CodeRejected
	switch {
	case resp.StatusCode == http.StatusForbidden || resp.StatusCode == http.StatusUnauthorized:
		code = CodePermissionDenied
	case resp.StatusCode == http.StatusConflict || resp.StatusCode == http.StatusPreconditionFailed:
		code = CodeConflict
	case strings.Contains(gerr.Error.Code, "Folder"):
		code = CodeForbiddenFolder
	}
	return &SinkError{Code: code, Message: msg, Err: fmt.Errorf("graph API status %d", resp.StatusCode)}
}

var (
	_ Source = (*MS365Source)(nil)
	_ Sink   = (*MS365Source)(nil)
)
