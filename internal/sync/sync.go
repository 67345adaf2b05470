// Package sync provides calendar synchronization from multiple sources.
package sync

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/cpuguy83/calgrid/internal/calendar"
	"github.com/cpuguy83/calgrid/internal/config"
	"github.com/cpuguy83/calgrid/internal/filter"
	"github.com/cpuguy83/calgrid/internal/store"
)

// sourceWithFilter pairs a calendar source with its optional filter.
type sourceWithFilter struct {
	source calendar.Source
	folder string
	filter *filter.Filter
}

// Syncer handles calendar synchronization from multiple sources.
type Syncer struct {
	sources   []sourceWithFilter
	schedule  string
	lookahead time.Duration
}

// NewSyncer creates a new Syncer from configuration.
func NewSyncer(cfg *config.Config) (*Syncer, error) {
	if _, err := cron.ParseStandard(cfg.Sync.Refresh); err != nil {
		return nil, fmt.Errorf("parse refresh schedule %q: %w", cfg.Sync.Refresh, err)
	}

	sources, err := createSources(cfg)
	if err != nil {
		return nil, err
	}

	return &Syncer{
		sources:   sources,
		schedule:  cfg.Sync.Refresh,
		lookahead: cfg.Sync.Lookahead,
	}, nil
}

// Schedule returns the configured refresh schedule.
func (s *Syncer) Schedule() string {
	return s.schedule
}

// SourceCount returns the number of configured sources.
func (s *Syncer) SourceCount() int {
	return len(s.sources)
}

// Sink returns the sink for the named source, if it accepts reschedules.
func (s *Syncer) Sink(name string) (calendar.Sink, bool) {
	for _, swf := range s.sources {
		if swf.source.Name() != name {
			continue
		}
		sink, ok := swf.source.(calendar.Sink)
		return sink, ok
	}
	return nil, false
}

// Sync fetches all sources for r, applies per-source filters, and returns
// merged events. The range end is widened by the configured lookahead.
func (s *Syncer) Sync(ctx context.Context, r calendar.Range) ([]calendar.Event, error) {
	r.End = r.End.Add(s.lookahead)
	slog.Info("starting sync", "sources", len(s.sources), "start", r.Start, "end", r.End)

	// Fetch from all sources in parallel, applying per-source filters
	type result struct {
		events   []calendar.Event
		name     string
		fetched  int // count before filtering
		filtered int // count after filtering
		err      error
	}

	results := make(chan result, len(s.sources))
	var wg sync.WaitGroup

	for _, swf := range s.sources {
		wg.Go(func() {
			name := swf.source.Name()
			slog.Debug("fetching source", "name", name, "folder", swf.folder)

			events, err := swf.source.Fetch(ctx, r, swf.folder)
			if err != nil {
				results <- result{name: name, err: err}
				return
			}

			fetched := len(events)

			// Apply per-source filter (if no rules, all events pass through)
			if swf.filter != nil {
				events = swf.filter.Apply(events)
			}

			results <- result{
				events:   events,
				name:     name,
				fetched:  fetched,
				filtered: len(events),
			}
		})
	}

	// Close results channel when all goroutines complete
	go func() {
		wg.Wait()
		close(results)
	}()

	// Collect results
	var sets [][]calendar.Event
	var firstErr error
	for res := range results {
		if res.err != nil {
			slog.Warn("failed to fetch source", "name", res.name, "error", res.err)
			if firstErr == nil {
				firstErr = res.err
			}
			continue
		}
		slog.Info("fetched source", "name", res.name, "fetched", res.fetched, "after_filter", res.filtered)
		sets = append(sets, res.events)
	}

	merged := calendar.Merge(sets...)

	slog.Info("sync complete", "events", len(merged))

	// Return events even if some sources failed (partial success)
	// Only return error if we got zero events and there was an error
	if len(merged) == 0 && firstErr != nil {
		return nil, firstErr
	}

	return merged, nil
}

// Run syncs once and then on the refresh schedule, calling onSync after
// each sync. rangeFn supplies the visible range at the time of each sync.
// A sync still running when the next one is due is skipped. Run blocks
// until the context is cancelled.
func (s *Syncer) Run(ctx context.Context, rangeFn func() calendar.Range, onSync func([]calendar.Event, error)) error {
	events, err := s.Sync(ctx, rangeFn())
	onSync(events, err)

	logger := cron.PrintfLogger(slog.NewLogLogger(slog.Default().Handler(), slog.LevelDebug))
	c := cron.New(cron.WithChain(cron.SkipIfStillRunning(logger)), cron.WithLogger(logger))
	if _, err := c.AddFunc(s.schedule, func() {
		events, err := s.Sync(ctx, rangeFn())
		onSync(events, err)
	}); err != nil {
		return fmt.Errorf("schedule sync: %w", err)
	}

	c.Start()
	<-ctx.Done()
	<-c.Stop().Done()
	return nil
}

// createSources creates calendar sources with their per-source filters from configuration.
func createSources(cfg *config.Config) ([]sourceWithFilter, error) {
	var sources []sourceWithFilter
	loc := cfg.Grid.Location()

	for _, sc := range cfg.Sources {
		var src calendar.Source

		switch sc.Type {
		case "ics":
			password, err := sc.GetPassword()
			if err != nil {
				return nil, err
			}
			src = calendar.NewICSSource(sc.Name, sc.URL, sc.Username, password, cfg.Identity, loc)

		case "caldav":
			password, err := sc.GetPassword()
			if err != nil {
				return nil, err
			}
			src = calendar.NewCalDAVSource(sc.Name, sc.URL, sc.Username, password, cfg.Identity, sc.Calendars, loc)

		case "icloud":
			password, err := sc.GetPassword()
			if err != nil {
				return nil, err
			}
			src = calendar.NewICloudSource(sc.Name, sc.Username, password, cfg.Identity, sc.Calendars, loc)

		case "ms365":
			src = calendar.NewMS365Source(sc.Name, sc.ClientID, cfg.Identity, sc.Calendars, loc)

		case "file":
			src = store.NewFolder(sc.Name, sc.Path, cfg.Identity, sc.ReadOnly, loc)

		default:
			slog.Warn("unknown source type", "type", sc.Type, "name", sc.Name)
			continue
		}

		// Create per-source filter (if no rules, filter passes everything through)
		f, err := filter.New(sc.Filters)
		if err != nil {
			return nil, fmt.Errorf("source %s: %w", sc.Name, err)
		}

		sources = append(sources, sourceWithFilter{
			source: src,
			folder: sc.Folder,
			filter: f,
		})
	}

	return sources, nil
}
