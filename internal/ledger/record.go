package ledger

import (
	"math"

	"planner/internal/schedule"
)

// AttendanceRecord is the stored attendance state for one calendar date.
// TotalClasses, AttendedClasses and AttendanceRate are derived from Classes
// and are recomputed on every change.
type AttendanceRecord struct {
	Date            string                   `json:"date"`
	Classes         []schedule.ClassInstance `json:"classes"`
	TotalClasses    int                      `json:"totalClasses"`
	AttendedClasses int                      `json:"attendedClasses"`
	AttendanceRate  int                      `json:"attendanceRate"`
}

func newRecord(date string, classes []schedule.ClassInstance) AttendanceRecord {
	r := AttendanceRecord{Date: date, Classes: classes}
	r.recompute()
	return r
}

// recompute refreshes the aggregates from Classes.
func (r *AttendanceRecord) recompute() {
	var attended, marked int
	for _, c := range r.Classes {
		if !c.Marked {
			continue
		}
		marked++
		if c.Attended {
			attended++
		}
	}
	r.TotalClasses = len(r.Classes)
	r.AttendedClasses = attended
	r.AttendanceRate = Rate(attended, marked)
}

// MarkedClasses counts classes with an explicit present/absent entry.
func (r AttendanceRecord) MarkedClasses() int {
	n := 0
	for _, c := range r.Classes {
		if c.Marked {
			n++
		}
	}
	return n
}

// Unmarked returns the classes still waiting for a present/absent entry.
func (r AttendanceRecord) Unmarked() []schedule.ClassInstance {
	var out []schedule.ClassInstance
	for _, c := range r.Classes {
		if !c.Marked {
			out = append(out, c)
		}
	}
	return out
}

func (r AttendanceRecord) clone() AttendanceRecord {
	r.Classes = append([]schedule.ClassInstance(nil), r.Classes...)
	return r
}

// Rate is round(100 * attended / marked), or 0 when nothing is marked.
func Rate(attended, marked int) int {
	if marked <= 0 {
		return 0
	}
	return int(math.Round(100 * float64(attended) / float64(marked)))
}
