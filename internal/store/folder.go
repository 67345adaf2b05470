package store

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"slices"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	ical "github.com/arran4/golang-ical"

	"github.com/cpuguy83/calgrid/internal/calendar"
)

const (
	propRecurrenceID = ical.ComponentProperty("RECURRENCE-ID")
	propDuration     = ical.ComponentProperty("DURATION")
	propRDate        = ical.ComponentProperty("RDATE")
)

// Folder is a directory of ICS files, one per calendar folder, named
// <folder>.ics. It is both a calendar.Source and a calendar.Sink.
type Folder struct {
	name     string
	dir      string
	identity string
	readOnly map[string]bool
	loc      *time.Location
	now      func() time.Time

	mu sync.Mutex
}

// NewFolder returns a folder store for dir. Reschedules into the readOnly
// folders are refused.
func NewFolder(name, dir, identity string, readOnly []string, loc *time.Location) *Folder {
	if loc == nil {
		loc = time.Local
	}
	ro := make(map[string]bool, len(readOnly))
	for _, f := range readOnly {
		ro[f] = true
	}
	return &Folder{
		name:     name,
		dir:      dir,
		identity: identity,
		readOnly: ro,
		loc:      loc,
		now:      time.Now,
	}
}

// Name returns the source name.
func (f *Folder) Name() string { return f.name }

// Folders lists the folders in the directory, sorted.
func (f *Folder) Folders() ([]string, error) {
	matches, err := filepath.Glob(filepath.Join(f.dir, "*.ics"))
	if err != nil {
		return nil, err
	}
	folders := make([]string, 0, len(matches))
	for _, m := range matches {
		folders = append(folders, strings.TrimSuffix(filepath.Base(m), ".ics"))
	}
	sort.Strings(folders)
	return folders, nil
}

func (f *Folder) path(folder string) string {
	return filepath.Join(f.dir, folder+".ics")
}

func (f *Folder) read(folder string) (*ical.Calendar, error) {
	fd, err := os.Open(f.path(folder))
	if err != nil {
		return nil, err
	}
	defer fd.Close()

	cal, err := ical.ParseCalendar(fd)
	if err != nil {
		return nil, fmt.Errorf("parse %s: %w", f.path(folder), err)
	}
	return cal, nil
}

// Fetch returns the events of folder intersecting r. An empty folder
// reads every folder in the directory.
func (f *Folder) Fetch(ctx context.Context, r calendar.Range, folder string) ([]calendar.Event, error) {
	folders := []string{folder}
	if folder == "" {
		var err error
		if folders, err = f.Folders(); err != nil {
			return nil, err
		}
	}

	var events []calendar.Event
	for _, name := range folders {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		cal, err := f.read(name)
		if err != nil {
			return nil, err
		}
		events = append(events, f.expand(cal, name, r)...)
	}

	slog.Debug("read folder store", "source", f.name, "folders", len(folders), "events", len(events))
	return events, nil
}

// expand groups the VEVENTs of cal into series and expands them over r.
func (f *Folder) expand(cal *ical.Calendar, folder string, r calendar.Range) []calendar.Event {
	series := make(map[string]*calendar.Series)
	var order []string

	for _, ve := range cal.Events() {
		ev, err := f.convert(ve, folder)
		if err != nil {
			slog.Debug("skip vevent", "source", f.name, "folder", folder, "error", err)
			continue
		}
		s, ok := series[ev.ID]
		if !ok {
			s = &calendar.Series{}
			series[ev.ID] = s
			order = append(order, ev.ID)
		}
		if ev.Exception {
			s.Overrides = append(s.Overrides, ev)
			continue
		}
		s.Master = ev

		rule := ve.GetProperty(ical.ComponentPropertyRrule)
		if rule == nil {
			continue
		}
		set, err := calendar.NewRuleSet(ev.Start, rule.Value, f.exdates(ve))
		if err != nil {
			slog.Warn("bad recurrence rule", "source", f.name, "id", ev.ID, "error", err)
			continue
		}
		s.Rule = set
	}

	var events []calendar.Event
	for _, id := range order {
		events = append(events, series[id].Expand(r)...)
	}
	return events
}

func (f *Folder) convert(ve *ical.VEvent, folder string) (calendar.Event, error) {
	ev := calendar.Event{
		ID:     ve.Id(),
		Source: f.name,
		Folder: folder,
	}
	if ev.ID == "" {
		return ev, fmt.Errorf("%w: missing UID", calendar.ErrMalformedEvent)
	}
	if p := ve.GetProperty(ical.ComponentPropertySummary); p != nil {
		ev.Summary = p.Value
	}

	start := ve.GetProperty(ical.ComponentPropertyDtStart)
	if start == nil {
		return ev, fmt.Errorf("%w: %s: missing DTSTART", calendar.ErrMalformedEvent, ev.ID)
	}
	var err error
	if ev.Start, ev.AllDay, err = f.parseTime(start, start.Value); err != nil {
		return ev, fmt.Errorf("%s: DTSTART: %w", ev.ID, err)
	}

	switch end := ve.GetProperty(ical.ComponentPropertyDtEnd); {
	case end != nil:
		if ev.End, _, err = f.parseTime(end, end.Value); err != nil {
			return ev, fmt.Errorf("%s: DTEND: %w", ev.ID, err)
		}
	case ev.AllDay:
		ev.End = ev.Start.AddDate(0, 0, 1)
	default:
		ev.End = ev.Start
	}

	if p := ve.GetProperty(ical.ComponentPropertyCategories); p != nil {
		ev.Label = strings.TrimSpace(strings.Split(p.Value, ",")[0])
	}
	if p := ve.GetProperty(ical.ComponentPropertyClass); p != nil {
		switch strings.ToUpper(p.Value) {
		case "PRIVATE", "CONFIDENTIAL":
			ev.Private = true
		}
	}
	if p := ve.GetProperty(ical.ComponentPropertyTransp); p != nil && strings.EqualFold(p.Value, "TRANSPARENT") {
		ev.BusyStatus = calendar.BusyStatusFree
	}
	if p := ve.GetProperty(ical.ComponentPropertyOrganizer); p != nil {
		ev.Organizer = strings.TrimPrefix(strings.TrimPrefix(p.Value, "mailto:"), "MAILTO:")
	}
	if len(ve.GetProperties(ical.ComponentPropertyAttendee)) > 0 {
		ev.Meeting = calendar.MeetingReceived
		if f.identity != "" && strings.EqualFold(ev.Organizer, f.identity) {
			ev.Meeting = calendar.MeetingSent
		}
	}

	if p := ve.GetProperty(propRecurrenceID); p != nil {
		rid, _, err := f.parseTime(p, p.Value)
		if err != nil {
			return ev, fmt.Errorf("%s: RECURRENCE-ID: %w", ev.ID, err)
		}
		ev.Recurring = true
		ev.Exception = true
		ev.Basedate = rid
	}
	return ev, nil
}

func (f *Folder) exdates(ve *ical.VEvent) []time.Time {
	var out []time.Time
	for _, p := range ve.GetProperties(ical.ComponentPropertyExdate) {
		for _, v := range strings.Split(p.Value, ",") {
			if t, _, err := f.parseTime(p, strings.TrimSpace(v)); err == nil {
				out = append(out, t)
			}
		}
	}
	return out
}

// parseTime parses one DATE or DATE-TIME value of p. Floating times are
// read in the folder's location.
func (f *Folder) parseTime(p *ical.IANAProperty, v string) (time.Time, bool, error) {
	param := func(name string) string {
		if vs := p.ICalParameters[name]; len(vs) > 0 {
			return vs[0]
		}
		return ""
	}

	if strings.EqualFold(param("VALUE"), "DATE") || len(v) == 8 {
		t, err := time.ParseInLocation("20060102", v, f.loc)
		return t, true, err
	}
	if strings.HasSuffix(v, "Z") {
		t, err := time.Parse("20060102T150405Z", v)
		return t, false, err
	}
	loc := f.loc
	if tzid := param("TZID"); tzid != "" {
		if l, err := time.LoadLocation(tzid); err == nil {
			loc = l
		}
	}
	t, err := time.ParseInLocation("20060102T150405", v, loc)
	return t, false, err
}

// locate returns the folder holding the series id.
func (f *Folder) locate(ctx context.Context, id string) (string, *ical.Calendar, error) {
	folders, err := f.Folders()
	if err != nil {
		return "", nil, err
	}
	for _, name := range folders {
		if err := ctx.Err(); err != nil {
			return "", nil, err
		}
		cal, err := f.read(name)
		if err != nil {
			return "", nil, err
		}
		for _, ve := range cal.Events() {
			if ve.Id() == id {
				return name, cal, nil
			}
		}
	}
	return "", nil, calendar.ErrNotFound
}

// Reschedule moves an event or one occurrence and rewrites its folder.
// Moving an occurrence writes a RECURRENCE-ID override.
func (f *Folder) Reschedule(ctx context.Context, req calendar.RescheduleRequest) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	folder, cal, err := f.locate(ctx, req.EventID)
	if err != nil {
		if errors.Is(err, calendar.ErrNotFound) {
			return &calendar.SinkError{Code: calendar.CodeRejected, Message: "unknown event " + req.EventID, Err: err}
		}
		return fmt.Errorf("locate %s: %w", req.EventID, err)
	}
	if f.readOnly[folder] {
		return &calendar.SinkError{
			Code:    calendar.CodeForbiddenFolder,
			Message: fmt.Sprintf("folder %q does not allow scheduling items", folder),
		}
	}

	if err := f.apply(cal, req); err != nil {
		return &calendar.SinkError{Code: calendar.CodeRejected, Message: "reschedule " + req.EventID, Err: err}
	}
	if err := f.write(folder, cal); err != nil {
		return fmt.Errorf("write folder %s: %w", folder, err)
	}

	slog.Debug("rescheduled in folder store", "source", f.name, "folder", folder, "id", req.EventID)
	return nil
}

func (f *Folder) apply(cal *ical.Calendar, req calendar.RescheduleRequest) error {
	var master, target *ical.VEvent
	for _, ve := range cal.Events() {
		if ve.Id() != req.EventID {
			continue
		}
		rid := ve.GetProperty(propRecurrenceID)
		switch {
		case rid == nil:
			master = ve
		case req.Basedate != nil:
			if t, _, err := f.parseTime(rid, rid.Value); err == nil && t.Equal(*req.Basedate) {
				target = ve
			}
		}
	}

	if req.Basedate == nil {
		target = master
	}
	if target == nil {
		if master == nil {
			return calendar.ErrNotFound
		}
		target = f.override(cal, master, *req.Basedate)
	}

	allDay := false
	if p := target.GetProperty(ical.ComponentPropertyDtStart); p != nil {
		_, allDay, _ = f.parseTime(p, p.Value)
	}
	if allDay {
		target.SetAllDayStartAt(req.NewStart)
		target.SetAllDayEndAt(req.NewEnd)
	} else {
		target.SetStartAt(req.NewStart)
		target.SetEndAt(req.NewEnd)
	}
	target.Properties = slices.DeleteFunc(target.Properties, func(p ical.IANAProperty) bool {
		return p.IANAToken == string(propDuration)
	})

	seq := 0
	if p := target.GetProperty(ical.ComponentPropertySequence); p != nil {
		seq, _ = strconv.Atoi(strings.TrimSpace(p.Value))
	}
	target.SetSequence(seq + 1)
	target.SetDtStampTime(f.now())
	return nil
}

// override adds an edited instance of master for the occurrence at basedate.
func (f *Folder) override(cal *ical.Calendar, master *ical.VEvent, basedate time.Time) *ical.VEvent {
	ov := cal.AddEvent(master.Id())
	for _, p := range master.Properties {
		switch ical.ComponentProperty(p.IANAToken) {
		case ical.ComponentPropertyUniqueId, ical.ComponentPropertyRrule, ical.ComponentPropertyExdate, propRDate:
			continue
		}
		ov.Properties = append(ov.Properties, p)
	}

	allDay := false
	if p := master.GetProperty(ical.ComponentPropertyDtStart); p != nil {
		_, allDay, _ = f.parseTime(p, p.Value)
	}
	if allDay {
		ov.SetProperty(propRecurrenceID, basedate.Format("20060102"), ical.WithValue("DATE"))
	} else {
		ov.SetProperty(propRecurrenceID, basedate.UTC().Format("20060102T150405Z"))
	}
	return ov
}

// write replaces the folder file through a temp file.
func (f *Folder) write(folder string, cal *ical.Calendar) error {
	tmp, err := os.CreateTemp(f.dir, ".calgrid-*")
	if err != nil {
		return err
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.WriteString(cal.Serialize()); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	return os.Rename(tmp.Name(), f.path(folder))
}

var (
	_ calendar.Source = (*Folder)(nil)
	_ calendar.Sink   = (*Folder)(nil)
)
