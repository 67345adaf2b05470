package layout

import "sort"

// Lanes holds the all-day lane rows of a view. Every Add or Remove
// rebuilds the row map from scratch.
type Lanes struct {
	days    int
	banners map[string]Banner
	rows    map[string]int
	height  int
}

// NewLanes returns empty lanes over days visible days.
func NewLanes(days int) *Lanes {
	return &Lanes{
		days:    days,
		banners: make(map[string]Banner),
		rows:    make(map[string]int),
	}
}

// Add inserts or replaces the banner of b.Owner.
func (l *Lanes) Add(b Banner) {
	l.banners[b.Owner] = b
	l.rebuild()
}

// Remove drops the banner of owner.
func (l *Lanes) Remove(owner string) {
	if _, ok := l.banners[owner]; !ok {
		return
	}
	delete(l.banners, owner)
	l.rebuild()
}

// Row returns the row of owner's banner.
func (l *Lanes) Row(owner string) (int, bool) {
	r, ok := l.rows[owner]
	return r, ok
}

// Rows returns a copy of the row map keyed by owner.
func (l *Lanes) Rows() map[string]int {
	out := make(map[string]int, len(l.rows))
	for k, v := range l.rows {
		out[k] = v
	}
	return out
}

// Height is the number of rows in use, the highest row plus one.
func (l *Lanes) Height() int { return l.height }

func (l *Lanes) rebuild() {
	banners := make([]Banner, 0, len(l.banners))
	for _, b := range l.banners {
		banners = append(banners, b)
	}
	l.rows, l.height = PackAllDay(banners, l.days)
}

// PackAllDay assigns lane rows so that banners sharing a day never share a
// row. Longer banners claim rows first, then earlier ones. It returns the
// rows keyed by owner and the lane height.
func PackAllDay(banners []Banner, days int) (map[string]int, int) {
	sorted := make([]Banner, 0, len(banners))
	for _, b := range banners {
		if b, ok := clipBanner(b, days); ok {
			sorted = append(sorted, b)
		}
	}
	sort.SliceStable(sorted, func(i, j int) bool {
		a, b := sorted[i], sorted[j]
		if a.Days != b.Days {
			return a.Days > b.Days
		}
		if a.StartDay != b.StartDay {
			return a.StartDay < b.StartDay
		}
		return a.Owner < b.Owner
	})

	// used[day][row] marks occupied rows.
	used := make([][]bool, days)
	rows := make(map[string]int, len(sorted))
	height := 0

	for _, b := range sorted {
		row := 0
		for !rowFree(used, row, b) {
			row++
		}
		for d := b.StartDay; d <= b.EndDay(); d++ {
			for len(used[d]) <= row {
				used[d] = append(used[d], false)
			}
			used[d][row] = true
		}
		rows[b.Owner] = row
		height = max(height, row+1)
	}
	return rows, height
}

func rowFree(used [][]bool, row int, b Banner) bool {
	for d := b.StartDay; d <= b.EndDay(); d++ {
		if row < len(used[d]) && used[d][row] {
			return false
		}
	}
	return true
}

// clipBanner restricts b to [0, days).
func clipBanner(b Banner, days int) (Banner, bool) {
	end := b.EndDay()
	if b.Days <= 0 || end < 0 || b.StartDay >= days {
		return b, false
	}
	if b.StartDay < 0 {
		b.StartDay = 0
		b.ContinuesBefore = true
	}
	if end >= days {
		end = days - 1
		b.ContinuesAfter = true
	}
	b.Days = end - b.StartDay + 1
	return b, true
}
