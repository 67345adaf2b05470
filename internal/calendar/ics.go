package calendar

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	ics "github.com/emersion/go-ical"
)

// ICSSource fetches events from a read-only ICS/iCal subscription.
type ICSSource struct {
	name     string
	url      string
	username string
	password string
	identity string
	loc      *time.Location
	client   *http.Client
}

// NewICSSource creates a new ICS calendar source.
func NewICSSource(name, url, username, password, identity string, loc *time.Location) *ICSSource {
	return &ICSSource{
		name:     name,
		url:      url,
		username: username,
		password: password,
		identity: identity,
		loc:      loc,
		client: &http.Client{
			Timeout: 30 * time.Second,
		},
	}
}

// Name returns the display name of this calendar source.
func (s *ICSSource) Name() string {
	return s.name
}

// Fetch retrieves the events of the feed intersecting r. A subscription
// is a single folder so folder is only recorded on the events.
func (s *ICSSource) Fetch(ctx context.Context, r Range, folder string) ([]Event, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, s.url, nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}

	// Add basic auth if credentials provided
	if s.username != "" && s.password != "" {
		req.SetBasicAuth(s.username, s.password)
	}

	resp, err := s.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetch ICS: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("fetch ICS: status %d", resp.StatusCode)
	}

	return s.parseICS(resp.Body, r, folder)
}

// parseICS parses an ICS stream and returns the events intersecting r.
func (s *ICSSource) parseICS(rd io.Reader, r Range, folder string) ([]Event, error) {
	dec := ics.NewDecoder(rd)
	p := componentParser{source: s.name, folder: folder, identity: s.identity, loc: s.loc}

	var items []parsedComponent
	for {
		cal, err := dec.Decode()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("decode ICS: %w", err)
		}

		for _, comp := range cal.Children {
			if comp.Name != ics.CompEvent {
				continue
			}

			item, err := p.parse(comp)
			if err != nil {
				slog.Debug("skip unparsable event", "source", s.name, "error", err)
				continue
			}
			items = append(items, item)
		}
	}

	return seriesFromComponents(items, r, p.location()), nil
}

// Ensure ICSSource implements Source interface.
var _ Source = (*ICSSource)(nil)
