package render

import (
	"fmt"
	"io"
	"sort"
	"strings"
	"time"

	"github.com/fatih/color"
	"github.com/gosuri/uitable"

	"github.com/cpuguy83/calgrid/internal/layout"
)

// Table prints layout results as text.
type Table struct {
	W     io.Writer
	Color bool
}

func (t Table) style(attrs ...color.Attribute) func(a ...any) string {
	c := color.New(attrs...)
	if t.Color {
		c.EnableColor()
	} else {
		c.DisableColor()
	}
	return c.SprintFunc()
}

func clock(minute int) string {
	return fmt.Sprintf("%02d:%02d", minute/60, minute%60)
}

func arrows(before, after bool) string {
	var s string
	if before {
		s += "<"
	}
	if after {
		s += ">"
	}
	return s
}

func (t Table) summary(res *layout.Result, owner string) string {
	if ev, ok := res.Events[owner]; ok && ev.Summary != "" {
		return ev.Summary
	}
	return owner
}

// Print writes res: the all-day lane first, then the timed placements of
// each day. Month results print one lane table per week.
func (t Table) Print(res *layout.Result) error {
	bold := t.style(color.Bold)
	dim := t.style(color.Faint)

	if res.Kind == layout.ViewMonth {
		for _, w := range res.Weeks {
			title := w.Days[0].Format("Jan 2") + " - " + w.Days[len(w.Days)-1].Format("Jan 2")
			if _, err := fmt.Fprintln(t.W, bold(title)); err != nil {
				return err
			}
			if err := t.lane(res, w.Banners, w.Rows, w.Days); err != nil {
				return err
			}
		}
		return nil
	}

	if err := t.lane(res, res.Banners, res.LaneRows, res.Days); err != nil {
		return err
	}

	tbl := uitable.New()
	tbl.Separator = "  "
	tbl.AddRow(bold("DAY"), bold("TIME"), bold("SLOT"), bold("EVENT"))
	for day, d := range res.Days {
		ps := res.DayPlacements(day)
		sort.SliceStable(ps, func(i, j int) bool {
			if ps[i].Start != ps[j].Start {
				return ps[i].Start < ps[j].Start
			}
			return ps[i].Slot < ps[j].Slot
		})
		for _, p := range ps {
			tbl.AddRow(
				d.Format("Mon Jan 2"),
				clock(p.Start)+"-"+clock(p.End),
				fmt.Sprintf("%d/%d", p.Slot+1, p.SlotCount),
				t.summary(res, p.Owner)+dim(arrows(p.ContinuesBefore, p.ContinuesAfter)),
			)
		}
	}
	if len(res.Timed) == 0 {
		return nil
	}
	_, err := fmt.Fprintln(t.W, tbl)
	return err
}

func (t Table) lane(res *layout.Result, banners []layout.Banner, rows map[string]int, days []time.Time) error {
	if len(banners) == 0 {
		return nil
	}
	bold := t.style(color.Bold)
	label := t.style(color.FgCyan)

	sorted := append([]layout.Banner(nil), banners...)
	sort.SliceStable(sorted, func(i, j int) bool {
		if rows[sorted[i].Owner] != rows[sorted[j].Owner] {
			return rows[sorted[i].Owner] < rows[sorted[j].Owner]
		}
		return sorted[i].StartDay < sorted[j].StartDay
	})

	tbl := uitable.New()
	tbl.Separator = "  "
	tbl.AddRow(bold("ROW"), bold("DAYS"), bold("ALL-DAY"))
	for _, b := range sorted {
		span := days[b.StartDay].Format("Mon")
		if b.Days > 1 {
			span += "-" + days[b.EndDay()].Format("Mon")
		}
		tbl.AddRow(
			fmt.Sprint(rows[b.Owner]),
			span,
			label(t.summary(res, b.Owner))+arrows(b.ContinuesBefore, b.ContinuesAfter),
		)
	}
	_, err := fmt.Fprintln(t.W, strings.TrimRight(tbl.String(), "\n"))
	return err
}
