package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	gosync "sync"
	"time"

	"github.com/cpuguy83/calgrid/internal/calendar"
	"github.com/cpuguy83/calgrid/internal/config"
	"github.com/cpuguy83/calgrid/internal/grid"
	"github.com/cpuguy83/calgrid/internal/layout"
	"github.com/cpuguy83/calgrid/internal/notify"
	"github.com/cpuguy83/calgrid/internal/reschedule"
	"github.com/cpuguy83/calgrid/internal/store"
	"github.com/cpuguy83/calgrid/internal/sync"
)

// snapshotMaxAge bounds how long a known-good snapshot is kept for events
// no sync has supplied again.
const snapshotMaxAge = 7 * 24 * time.Hour

// App is the main calgrid application.
type App struct {
	cfg       *config.Config
	grid      *config.GridProvider
	engine    *layout.Engine
	syncer    *sync.Syncer
	snapshots *store.Snapshots
	notifier  *notify.Notifier
	confirmer *notify.Confirmer

	mu          gosync.RWMutex
	events      []calendar.Event
	lastSync    time.Time
	lastSyncErr error
}

func newApp(cfg *config.Config) (*App, error) {
	syncer, err := sync.NewSyncer(cfg)
	if err != nil {
		return nil, fmt.Errorf("create syncer: %w", err)
	}
	if syncer.SourceCount() == 0 {
		return nil, fmt.Errorf("no calendar sources configured")
	}

	a := &App{
		cfg:       cfg,
		grid:      config.NewGridProvider(cfg.Grid),
		syncer:    syncer,
		snapshots: store.NewSnapshots(cfg.Store.Snapshots),
	}
	a.engine = layout.NewEngine(layout.WithMultiDayBanners(cfg.Grid.Banners()))
	a.grid.Subscribe(func(g config.GridConfig) {
		a.mu.Lock()
		a.engine = layout.NewEngine(layout.WithMultiDayBanners(g.Banners()))
		a.mu.Unlock()
	})

	// Initialize notifications
	if cfg.Notifications.Enabled {
		a.notifier, err = notify.New("calgrid")
		if err != nil {
			slog.Warn("failed to initialize notifications", "error", err)
		} else if a.confirmer, err = notify.NewConfirmer(a.notifier, cfg.Notifications.ConfirmTimeout); err != nil {
			slog.Warn("failed to watch notification actions", "error", err)
		}
	}
	return a, nil
}

// close releases resources when the app is shutting down.
func (a *App) close() {
	if a.notifier != nil {
		a.notifier.Close()
	}
}

// view returns the view of kind, or the configured day count's view.
func (a *App) view(kind string) (*layout.View, error) {
	g := a.grid.Grid()
	k := layout.ViewForDayCount(g.DayCount)
	if kind != "" {
		var err error
		if k, err = layout.ParseViewKind(kind); err != nil {
			return nil, err
		}
	}
	a.mu.RLock()
	engine := a.engine
	a.mu.RUnlock()
	return layout.NewView(k, engine, g.Location(), time.Weekday(g.WeekStart)), nil
}

// mapper returns the pixel mapper for a view.
func (a *App) mapper(v *layout.View) (*grid.Mapper, error) {
	cfg := grid.FromGrid(a.grid.Grid())
	cfg.DayCount = v.Kind().DayCount()
	return grid.New(cfg)
}

// refresh syncs the events for the range v shows around anchor.
func (a *App) refresh(ctx context.Context, v *layout.View, anchor time.Time) error {
	events, err := a.syncer.Sync(ctx, v.Range(anchor))
	a.onSyncComplete(events, err)
	return err
}

// onSyncComplete is called after each sync completes.
func (a *App) onSyncComplete(events []calendar.Event, err error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if err != nil {
		slog.Warn("sync failed", "error", err)
		a.lastSyncErr = err
		// Keep old events on error
	} else {
		a.events = events
		a.lastSyncErr = nil
		if n, err := a.snapshots.Reconcile(events); err != nil {
			slog.Warn("reconcile snapshots", "error", err)
		} else if n > 0 {
			slog.Debug("dropped superseded snapshots", "count", n)
		}
	}
	a.lastSync = time.Now()
}

// pruneSnapshots drops snapshots older than snapshotMaxAge.
func (a *App) pruneSnapshots() {
	n, err := a.snapshots.Prune(time.Now().Add(-snapshotMaxAge))
	if err != nil {
		slog.Warn("prune snapshots", "error", err)
		return
	}
	if n > 0 {
		slog.Debug("pruned snapshots", "count", n)
	}
}

func (a *App) snapshot() []calendar.Event {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.events
}

// find returns the event with id, or the occurrence at basedate. A
// non-empty source picks between sources whose feeds share a UID.
func (a *App) find(source, id string, basedate time.Time) (calendar.Event, error) {
	events := a.snapshot()
	if source != "" {
		var fromSource []calendar.Event
		for _, ev := range events {
			if ev.Source == source {
				fromSource = append(fromSource, ev)
			}
		}
		events = fromSource
	}
	ev, ok := calendar.Find(events, id, basedate)
	if !ok {
		return calendar.Event{}, fmt.Errorf("event %s: %w", id, calendar.ErrNotFound)
	}
	return ev, nil
}

// reschedule applies gesture g dropped on target and commits it to the
// event's source. On rejection the known-good event is put back in place.
func (a *App) reschedule(ctx context.Context, days []time.Time, ev calendar.Event, g reschedule.Gesture, target grid.Cell) (calendar.Event, error) {
	sink, ok := a.syncer.Sink(ev.Source)
	if !ok {
		return ev, fmt.Errorf("source %q does not accept reschedules", ev.Source)
	}

	gc := a.grid.Grid()
	calc := reschedule.Calculator{Days: days, CellMinutes: gc.CellMinutes, Location: gc.Location()}
	res, err := calc.Calculate(ev, g, target)
	if err != nil {
		return ev, err
	}
	if res.NoOp {
		slog.Info("gesture does not apply", "event", ev.Key(), "gesture", g)
		return ev, nil
	}

	svc := &reschedule.Service{Sink: sink, KnownGood: a.snapshots}
	if a.confirmer != nil {
		svc.Confirmer = a.confirmer
	}

	got, err := svc.Commit(ctx, ev, res)
	a.replace(got)

	var rej *reschedule.RejectedError
	if errors.As(err, &rej) && a.notifier != nil {
		if nerr := a.notifier.ReportRejection(ev, err); nerr != nil {
			slog.Warn("failed to send notification", "error", nerr)
		}
	}
	return got, err
}

// replace swaps ev into the current event set.
func (a *App) replace(ev calendar.Event) {
	a.mu.Lock()
	defer a.mu.Unlock()
	for i := range a.events {
		if a.events[i].Key() == ev.Key() {
			a.events[i] = ev
			return
		}
	}
}
