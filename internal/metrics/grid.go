package metrics

import (
	"time"

	"planner/internal/ledger"
	"planner/internal/schedule"
)

const (
	gridDays        = 365
	daysPerWeek     = 7
	labelMonths     = 12
	labelMinSpacing = 4
)

// Cell is one day of the contribution grid. Placeholder cells pad weeks and
// have an empty Date.
type Cell struct {
	Date           string `json:"date"`
	AttendanceRate int    `json:"attendanceRate"`
	TotalClasses   int    `json:"totalClasses"`
}

// Placeholder reports whether the cell is padding rather than a real day.
func (c Cell) Placeholder() bool { return c.Date == "" }

// MonthLabel places a month name above a week column.
type MonthLabel struct {
	Label     string `json:"label"`
	Month     int    `json:"month"`
	Year      int    `json:"year"`
	WeekIndex int    `json:"weekIndex"`
}

// Grid is the 365-day contribution grid.
type Grid struct {
	Weeks  [][]Cell     `json:"weeks"`
	Labels []MonthLabel `json:"labels"`
}

// Days returns the last 365 calendar days ending today, oldest first, with
// zero-valued cells for days that have no record.
func Days(records []ledger.AttendanceRecord, today time.Time) []Cell {
	byDate := make(map[string]ledger.AttendanceRecord, len(records))
	for _, r := range records {
		byDate[r.Date] = r
	}

	start := gridStart(today)
	out := make([]Cell, gridDays)
	for i := range out {
		iso := start.AddDate(0, 0, i).Format(schedule.DateLayout)
		r := byDate[iso]
		out[i] = Cell{Date: iso, AttendanceRate: r.AttendanceRate, TotalClasses: r.TotalClasses}
	}
	return out
}

// Weeks buckets days into columns of 7. The first week is left-padded so
// that each row is a fixed weekday (Sunday first); the last is right-padded.
func Weeks(days []Cell) [][]Cell {
	if len(days) == 0 {
		return nil
	}
	lead := 0
	if first, err := schedule.ParseDate(days[0].Date); err == nil {
		lead = int(first.Weekday())
	}

	cells := make([]Cell, lead, lead+len(days)+daysPerWeek)
	cells = append(cells, days...)
	for len(cells)%daysPerWeek != 0 {
		cells = append(cells, Cell{})
	}

	weeks := make([][]Cell, 0, len(cells)/daysPerWeek)
	for i := 0; i < len(cells); i += daysPerWeek {
		weeks = append(weeks, cells[i:i+daysPerWeek:i+daysPerWeek])
	}
	return weeks
}

// MonthLabels places the trailing 12 months' names on the week containing
// each month's first day, oldest first.
func MonthLabels(today time.Time) []MonthLabel {
	start := gridStart(today)
	lead := int(start.Weekday())
	end := schedule.Day(today)

	var candidates []MonthLabel
	for i := labelMonths - 1; i >= 0; i-- {
		first := time.Date(end.Year(), end.Month()-time.Month(i), 1, 0, 0, 0, 0, time.UTC)
		if first.Before(start) || first.After(end) {
			continue
		}
		offset := int(first.Sub(start).Hours() / 24)
		candidates = append(candidates, MonthLabel{
			Label:     first.Format("Jan"),
			Month:     int(first.Month()),
			Year:      first.Year(),
			WeekIndex: (lead + offset) / daysPerWeek,
		})
	}
	return spaceLabels(candidates)
}

// spaceLabels drops any label within 4 weeks of one already kept; earlier
// candidates win.
func spaceLabels(candidates []MonthLabel) []MonthLabel {
	var kept []MonthLabel
	for _, c := range candidates {
		if !crowded(kept, c.WeekIndex) {
			kept = append(kept, c)
		}
	}
	return kept
}

func crowded(labels []MonthLabel, idx int) bool {
	for _, l := range labels {
		d := idx - l.WeekIndex
		if d < 0 {
			d = -d
		}
		if d < labelMinSpacing {
			return true
		}
	}
	return false
}

// BuildGrid assembles weeks and month labels for the year ending today.
func BuildGrid(records []ledger.AttendanceRecord, today time.Time) Grid {
	return Grid{
		Weeks:  Weeks(Days(records, today)),
		Labels: MonthLabels(today),
	}
}

func gridStart(today time.Time) time.Time {
	return schedule.AddDays(today, -(gridDays - 1))
}
