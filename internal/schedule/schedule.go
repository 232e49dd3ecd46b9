package schedule

import "time"

// ClassSlot is a recurring weekly class definition. DayOfWeek follows
// time.Weekday numbering (0 = Sunday).
type ClassSlot struct {
	ID         string `json:"id" yaml:"id"`
	DayOfWeek  int    `json:"dayOfWeek" yaml:"dayOfWeek"`
	CourseCode string `json:"courseCode" yaml:"courseCode"`
	Title      string `json:"title,omitempty" yaml:"title"`
	StartTime  string `json:"startTime" yaml:"startTime"`
	Room       string `json:"room,omitempty" yaml:"room"`
}

// Term is a weekly schedule valid between StartDate and EndDate (inclusive).
type Term struct {
	Name      string      `json:"name,omitempty" yaml:"name"`
	StartDate string      `json:"startDate" yaml:"startDate"`
	EndDate   string      `json:"endDate" yaml:"endDate"`
	Slots     []ClassSlot `json:"slots" yaml:"slots"`
}

// HasRange reports whether both bounds of the term are set.
func (t Term) HasRange() bool {
	return t.StartDate != "" && t.EndDate != ""
}

// Contains reports whether date lies inside the term's range.
func (t Term) Contains(date time.Time) bool {
	start, err := ParseDate(t.StartDate)
	if err != nil {
		return false
	}
	end, err := ParseDate(t.EndDate)
	if err != nil {
		return false
	}
	d := Day(date)
	return !d.Before(start) && !d.After(end)
}

// ClassInstance is a slot materialized onto one calendar date. Attended is
// only meaningful once Marked is true.
type ClassInstance struct {
	Date       string `json:"date"`
	SlotID     string `json:"slotId"`
	CourseCode string `json:"courseCode"`
	CourseName string `json:"courseName"`
	Attended   bool   `json:"attended"`
	Marked     bool   `json:"marked"`
	Time       string `json:"time"`
	Room       string `json:"room,omitempty"`
}

const fallbackCourseName = "Class"

// Materialize returns the unmarked class instances the term schedules on
// date's weekday. The term range is not consulted; callers check it.
func Materialize(term Term, date time.Time) []ClassInstance {
	day := Day(date)
	weekday := int(day.Weekday())
	iso := day.Format(DateLayout)

	var out []ClassInstance
	for _, slot := range term.Slots {
		if slot.DayOfWeek != weekday {
			continue
		}
		out = append(out, ClassInstance{
			Date:       iso,
			SlotID:     slot.ID,
			CourseCode: slot.CourseCode,
			CourseName: courseName(slot),
			Time:       slot.StartTime,
			Room:       slot.Room,
		})
	}
	return out
}

func courseName(slot ClassSlot) string {
	switch {
	case slot.Title != "":
		return slot.Title
	case slot.CourseCode != "":
		return slot.CourseCode
	default:
		return fallbackCourseName
	}
}
