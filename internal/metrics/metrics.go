// Package metrics derives attendance statistics from ledger records. Every
// value is computed from the records at call time; nothing is cached.
package metrics

import (
	"math"
	"time"

	"planner/internal/ledger"
	"planner/internal/schedule"
)

// Rolling window sizes, in days.
const (
	WeeklyWindow   = 7
	MonthlyWindow  = 30
	SemesterWindow = 120
)

// Source is the read side of the ledger.
type Source interface {
	Records() []ledger.AttendanceRecord
	Today() time.Time
}

// RateSince aggregates attended/total classes over records dated within
// [today-days, today] that have classes. Returns 0 when none qualify.
func RateSince(records []ledger.AttendanceRecord, today time.Time, days int) int {
	from := schedule.FormatDate(schedule.AddDays(today, -days))
	to := schedule.FormatDate(today)

	var attended, total int
	for _, r := range records {
		if r.TotalClasses == 0 || r.Date < from || r.Date > to {
			continue
		}
		attended += r.AttendedClasses
		total += r.TotalClasses
	}
	if total == 0 {
		return 0
	}
	return int(math.Round(100 * float64(attended) / float64(total)))
}

// Streak counts consecutive fully-attended class days, walking back from
// today. Days without classes neither extend nor break it.
func Streak(records []ledger.AttendanceRecord, today time.Time) int {
	to := schedule.FormatDate(today)
	streak := 0
	for i := len(records) - 1; i >= 0; i-- {
		r := records[i]
		if r.Date > to || r.TotalClasses == 0 {
			continue
		}
		if r.AttendanceRate < 100 {
			break
		}
		streak++
	}
	return streak
}

// PerfectDays counts class days with a 100% rate.
func PerfectDays(records []ledger.AttendanceRecord) int {
	n := 0
	for _, r := range records {
		if r.TotalClasses > 0 && r.AttendanceRate == 100 {
			n++
		}
	}
	return n
}

// TotalDays counts records that have at least one class, including
// backfilled days that have not happened yet.
func TotalDays(records []ledger.AttendanceRecord) int {
	n := 0
	for _, r := range records {
		if r.TotalClasses > 0 {
			n++
		}
	}
	return n
}

// Summary is the dashboard card payload.
type Summary struct {
	WeeklyRate   int `json:"weeklyRate"`
	MonthlyRate  int `json:"monthlyRate"`
	SemesterRate int `json:"semesterRate"`
	Streak       int `json:"streak"`
	PerfectDays  int `json:"perfectDays"`
	TotalDays    int `json:"totalDays"`
}

// Summarize computes every scalar statistic in one pass over the inputs.
func Summarize(records []ledger.AttendanceRecord, today time.Time) Summary {
	return Summary{
		WeeklyRate:   RateSince(records, today, WeeklyWindow),
		MonthlyRate:  RateSince(records, today, MonthlyWindow),
		SemesterRate: RateSince(records, today, SemesterWindow),
		Streak:       Streak(records, today),
		PerfectDays:  PerfectDays(records),
		TotalDays:    TotalDays(records),
	}
}

// Engine binds the pure functions to a ledger.
type Engine struct {
	src Source
}

// NewEngine creates an engine reading from src.
func NewEngine(src Source) *Engine {
	return &Engine{src: src}
}

func (e *Engine) RateSince(days int) int {
	return RateSince(e.src.Records(), e.src.Today(), days)
}

func (e *Engine) Streak() int {
	return Streak(e.src.Records(), e.src.Today())
}

func (e *Engine) Summary() Summary {
	return Summarize(e.src.Records(), e.src.Today())
}

func (e *Engine) Grid() Grid {
	return BuildGrid(e.src.Records(), e.src.Today())
}
