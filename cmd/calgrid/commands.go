package main

import (
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"sync/atomic"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/cpuguy83/calgrid/internal/calendar"
	"github.com/cpuguy83/calgrid/internal/config"
	"github.com/cpuguy83/calgrid/internal/grid"
	"github.com/cpuguy83/calgrid/internal/layout"
	"github.com/cpuguy83/calgrid/internal/render"
	"github.com/cpuguy83/calgrid/internal/reschedule"
	"github.com/cpuguy83/calgrid/internal/selection"
)

// viewOptions select the view and the date it shows.
type viewOptions struct {
	view  string
	date  string
	color bool
	boxes bool
}

func (o *viewOptions) addFlags(cmd *cobra.Command) {
	cmd.Flags().StringVar(&o.view, "view", "", "day, two-day, work-week, week, month or print (default: from grid.day_count)")
	cmd.Flags().StringVar(&o.date, "date", "", "date shown by the view, YYYY-MM-DD (default: today)")
	cmd.Flags().BoolVar(&o.color, "color", false, "colorize output")
	cmd.Flags().BoolVar(&o.boxes, "boxes", false, "print pixel rectangles instead of the table")
}

func (o *viewOptions) anchor(loc *time.Location) (time.Time, error) {
	if o.date == "" {
		return time.Now().In(loc), nil
	}
	t, err := time.ParseInLocation("2006-01-02", o.date, loc)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid --date: %w", err)
	}
	return t, nil
}

// setup loads the config, builds the app and syncs the view.
func setup(cmd *cobra.Command, root *rootOptions, vo *viewOptions) (*App, *layout.View, time.Time, error) {
	cfg, err := root.loadConfig()
	if err != nil {
		return nil, nil, time.Time{}, err
	}
	app, err := newApp(cfg)
	if err != nil {
		return nil, nil, time.Time{}, err
	}
	v, err := app.view(vo.view)
	if err != nil {
		app.close()
		return nil, nil, time.Time{}, err
	}
	anchor, err := vo.anchor(v.Location())
	if err != nil {
		app.close()
		return nil, nil, time.Time{}, err
	}
	if err := app.refresh(cmd.Context(), v, anchor); err != nil {
		app.close()
		return nil, nil, time.Time{}, err
	}
	return app, v, anchor, nil
}

func addLayout(topLevel *cobra.Command, root *rootOptions) {
	vo := &viewOptions{}
	cmd := &cobra.Command{
		Use:   "layout",
		Short: "Print the layout of a view",
		Example: `
calgrid layout
calgrid layout --view month --date 2026-02-01
`,
		RunE: func(cmd *cobra.Command, args []string) error {
			app, v, anchor, err := setup(cmd, root, vo)
			if err != nil {
				return err
			}
			defer app.close()
			return printLayout(cmd, app, v, anchor, vo)
		},
	}
	vo.addFlags(cmd)
	topLevel.AddCommand(cmd)
}

func printLayout(cmd *cobra.Command, app *App, v *layout.View, anchor time.Time, vo *viewOptions) error {
	res := v.Layout(app.snapshot(), anchor)
	for _, s := range res.Skipped {
		slog.Warn("event not laid out", "id", s.ID, "error", s.Err)
	}
	if !vo.boxes || v.Kind() == layout.ViewMonth {
		return render.Table{W: cmd.OutOrStdout(), Color: vo.color}.Print(res)
	}

	m, err := app.mapper(v)
	if err != nil {
		return err
	}
	w := cmd.OutOrStdout()
	for _, b := range render.LaneBoxes(res, m, app.grid.Grid().LaneRowHeight) {
		fmt.Fprintf(w, "lane %s %d,%d %dx%d\n", b.Owner, b.X, b.Y, b.W, b.H)
	}
	for _, b := range render.Boxes(res, m) {
		fmt.Fprintf(w, "grid %s %d,%d %dx%d\n", b.Owner, b.X, b.Y, b.W, b.H)
	}
	fmt.Fprintf(w, "scroll %d\n", m.ScrollOffset(int(app.grid.Grid().WorkdayStart)))
	return nil
}

// targetOptions name an event and the cell it is dropped on.
type targetOptions struct {
	source   string
	basedate string
	day      int
	at       string
	allDay   bool
}

func (o *targetOptions) addFlags(cmd *cobra.Command) {
	cmd.Flags().StringVar(&o.source, "source", "", "source the event comes from, when several share its id")
	cmd.Flags().StringVar(&o.basedate, "basedate", "", "occurrence of a recurring event, RFC 3339")
	cmd.Flags().IntVar(&o.day, "day", 0, "target day column of the view, from 0")
	cmd.Flags().StringVar(&o.at, "at", "", "target time, HH:MM")
	cmd.Flags().BoolVar(&o.allDay, "all-day", false, "drop on the all-day lane")
}

func (o *targetOptions) cell() (grid.Cell, error) {
	if o.allDay {
		return grid.Cell{Day: o.day, AllDay: true}, nil
	}
	c, err := config.ParseClock(o.at)
	if err != nil {
		return grid.Cell{}, fmt.Errorf("invalid --at: %w", err)
	}
	return grid.Cell{Day: o.day, Minute: int(c)}, nil
}

func (o *targetOptions) parseBasedate() (time.Time, error) {
	if o.basedate == "" {
		return time.Time{}, nil
	}
	t, err := time.Parse(time.RFC3339, o.basedate)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid --basedate: %w", err)
	}
	return t, nil
}

func runGesture(cmd *cobra.Command, root *rootOptions, vo *viewOptions, to *targetOptions, id string, g reschedule.Gesture) error {
	target, err := to.cell()
	if err != nil {
		return err
	}
	basedate, err := to.parseBasedate()
	if err != nil {
		return err
	}

	app, v, anchor, err := setup(cmd, root, vo)
	if err != nil {
		return err
	}
	defer app.close()

	if !v.Interactive() {
		return fmt.Errorf("the %s view is read-only", v.Kind())
	}

	ev, err := app.find(to.source, id, basedate)
	if err != nil {
		return err
	}
	got, err := app.reschedule(cmd.Context(), v.Days(anchor), ev, g, target)
	if err != nil {
		return err
	}

	fmt.Fprintf(cmd.OutOrStdout(), "%s: %s - %s\n", got.Summary,
		got.Start.In(v.Location()).Format("Mon Jan 2 15:04"),
		got.End.In(v.Location()).Format("Mon Jan 2 15:04"))
	return nil
}

func addMove(topLevel *cobra.Command, root *rootOptions) {
	vo := &viewOptions{}
	to := &targetOptions{}
	cmd := &cobra.Command{
		Use:   "move <event-id>",
		Short: "Move an event to another cell",
		Example: `
calgrid move 4f1c@example.com --day 1 --at 10:00
calgrid move standup --basedate 2026-02-19T09:00:00Z --day 3 --at 11:00
`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runGesture(cmd, root, vo, to, args[0], reschedule.Move)
		},
	}
	vo.addFlags(cmd)
	to.addFlags(cmd)
	topLevel.AddCommand(cmd)
}

func addResize(topLevel *cobra.Command, root *rootOptions) {
	vo := &viewOptions{}
	to := &targetOptions{}
	var edge string
	cmd := &cobra.Command{
		Use:   "resize <event-id>",
		Short: "Drag the start or end edge of an event",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var g reschedule.Gesture
			switch edge {
			case "start":
				g = reschedule.ResizeStart
			case "end":
				g = reschedule.ResizeEnd
			default:
				return fmt.Errorf("invalid --edge %q: want start or end", edge)
			}
			return runGesture(cmd, root, vo, to, args[0], g)
		},
	}
	vo.addFlags(cmd)
	to.addFlags(cmd)
	cmd.Flags().StringVar(&edge, "edge", "end", "edge to drag: start or end")
	topLevel.AddCommand(cmd)
}

// parseCell parses "DAY:HH:MM" or "DAY:all-day".
func parseCell(s string) (grid.Cell, error) {
	day, rest, ok := strings.Cut(s, ":")
	if !ok {
		return grid.Cell{}, fmt.Errorf("invalid cell %q: want DAY:HH:MM", s)
	}
	d, err := strconv.Atoi(day)
	if err != nil {
		return grid.Cell{}, fmt.Errorf("invalid cell %q: %w", s, err)
	}
	if rest == "all-day" {
		return grid.Cell{Day: d, AllDay: true}, nil
	}
	c, err := config.ParseClock(rest)
	if err != nil {
		return grid.Cell{}, fmt.Errorf("invalid cell %q: %w", s, err)
	}
	return grid.Cell{Day: d, Minute: int(c)}, nil
}

func addSelect(topLevel *cobra.Command, root *rootOptions) {
	var (
		view, date string
		from, to   string
		summary    string
	)
	cmd := &cobra.Command{
		Use:   "select",
		Short: "Print the draft event a drag selection would create",
		Example: `
calgrid select --from 0:09:00 --to 0:10:30
calgrid select --from 1:all-day --to 3:all-day --summary Trip
`,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := root.loadConfig()
			if err != nil {
				// Selection needs only the grid.
				slog.Debug("using default config", "error", err)
				cfg = config.Default()
			}
			a, err := parseCell(from)
			if err != nil {
				return err
			}
			b, err := parseCell(to)
			if err != nil {
				return err
			}

			kind := layout.ViewForDayCount(cfg.Grid.DayCount)
			if view != "" {
				if kind, err = layout.ParseViewKind(view); err != nil {
					return err
				}
			}
			loc := cfg.Grid.Location()
			v := layout.NewView(kind, layout.NewEngine(), loc, time.Weekday(cfg.Grid.WeekStart))
			anchor := time.Now().In(loc)
			if date != "" {
				if anchor, err = time.ParseInLocation("2006-01-02", date, loc); err != nil {
					return fmt.Errorf("invalid --date: %w", err)
				}
			}

			t := selection.NewTracker(cfg.Grid.CellMinutes)
			t.PointerDown(a)
			t.PointerUp(b)
			ev, err := selection.Draft(t, v.Days(anchor), summary)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s %q all-day=%v %s - %s\n", ev.ID, ev.Summary, ev.AllDay,
				ev.Start.Format(time.RFC3339), ev.End.Format(time.RFC3339))
			return nil
		},
	}
	cmd.Flags().StringVar(&view, "view", "", "view the cells refer to")
	cmd.Flags().StringVar(&date, "date", "", "date shown by the view, YYYY-MM-DD (default: today)")
	cmd.Flags().StringVar(&from, "from", "", "cell where the drag starts, DAY:HH:MM or DAY:all-day")
	cmd.Flags().StringVar(&to, "to", "", "cell where the drag ends")
	cmd.Flags().StringVar(&summary, "summary", "New event", "summary of the draft event")
	_ = cmd.MarkFlagRequired("from")
	_ = cmd.MarkFlagRequired("to")
	topLevel.AddCommand(cmd)
}

func addWatch(topLevel *cobra.Command, root *rootOptions) {
	vo := &viewOptions{}
	cmd := &cobra.Command{
		Use:   "watch",
		Short: "Refresh and print the layout on the sync schedule",
		Long:  "Refresh and print the layout on the sync schedule. SIGHUP reloads the grid settings.",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := root.loadConfig()
			if err != nil {
				return err
			}
			app, err := newApp(cfg)
			if err != nil {
				return err
			}
			defer app.close()

			first, err := app.view(vo.view)
			if err != nil {
				return err
			}
			var view atomic.Pointer[layout.View]
			view.Store(first)
			app.grid.Subscribe(func(config.GridConfig) {
				if nv, err := app.view(vo.view); err == nil {
					view.Store(nv)
				}
			})
			go reloadOnHangup(cmd, root, app)

			slog.Info("calgrid watching",
				"sources", app.syncer.SourceCount(),
				"schedule", app.syncer.Schedule(),
			)

			rangeFn := func() calendar.Range {
				v := view.Load()
				anchor, _ := vo.anchor(v.Location())
				return v.Range(anchor)
			}
			return app.syncer.Run(cmd.Context(), rangeFn, func(events []calendar.Event, err error) {
				app.onSyncComplete(events, err)
				if app.notifier != nil {
					app.notifier.CleanupOldNotifications(24 * time.Hour)
				}
				app.pruneSnapshots()
				v := view.Load()
				anchor, _ := vo.anchor(v.Location())
				if err := printLayout(cmd, app, v, anchor, vo); err != nil {
					slog.Warn("print layout", "error", err)
				}
				if next, ok := nextEvent(app.snapshot(), time.Now()); ok {
					fmt.Fprintf(cmd.OutOrStdout(), "next: %s in %s\n", next.Summary, formatDuration(time.Until(next.Start)))
				}
			})
		},
	}
	vo.addFlags(cmd)
	topLevel.AddCommand(cmd)
}

// reloadOnHangup re-reads the grid settings on SIGHUP.
func reloadOnHangup(cmd *cobra.Command, root *rootOptions, app *App) {
	ch := make(chan os.Signal, 1)
	signal.Notify(ch, syscall.SIGHUP)
	defer signal.Stop(ch)

	for {
		select {
		case <-ch:
			cfg, err := root.loadConfig()
			if err != nil {
				slog.Warn("reload config", "error", err)
				continue
			}
			for _, field := range app.grid.Update(cfg.Grid) {
				slog.Warn("grid setting out of range, using default", "setting", field)
			}
			slog.Info("reloaded grid settings")
		case <-cmd.Context().Done():
			return
		}
	}
}

// nextEvent returns the first timed event starting after now.
func nextEvent(events []calendar.Event, now time.Time) (calendar.Event, bool) {
	for _, e := range events {
		if !e.AllDay && e.Start.After(now) {
			return e, true
		}
	}
	return calendar.Event{}, false
}

// formatDuration formats a duration for display.
func formatDuration(d time.Duration) string {
	if d < 0 {
		return "now"
	}
	if d < time.Minute {
		return "< 1 min"
	}
	if d < time.Hour {
		mins := int(d.Minutes())
		if mins == 1 {
			return "1 minute"
		}
		return fmt.Sprintf("%d minutes", mins)
	}
	hours := int(d.Hours())
	mins := int(d.Minutes()) % 60
	if mins == 0 {
		if hours == 1 {
			return "1 hour"
		}
		return fmt.Sprintf("%d hours", hours)
	}
	return fmt.Sprintf("%dh %dm", hours, mins)
}
