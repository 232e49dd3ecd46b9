package schedule

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func mustDate(t *testing.T, s string) time.Time {
	t.Helper()
	d, err := ParseDate(s)
	require.NoError(t, err)
	return d
}

func testTerm() Term {
	return Term{
		Name:      "Fall",
		StartDate: "2026-09-07",
		EndDate:   "2026-09-20",
		Slots: []ClassSlot{
			{ID: "math-mon", DayOfWeek: 1, CourseCode: "MATH101", Title: "Calculus", StartTime: "09:00", Room: "A1"},
			{ID: "phys-mon", DayOfWeek: 1, CourseCode: "PHYS100", StartTime: "11:00"},
			{ID: "lab-wed", DayOfWeek: 3, StartTime: "14:00"},
		},
	}
}

func TestMaterialize(t *testing.T) {
	term := testTerm()

	tests := []struct {
		name      string
		date      string
		wantSlots []string
		wantNames []string
	}{
		{name: "monday", date: "2026-09-07", wantSlots: []string{"math-mon", "phys-mon"}, wantNames: []string{"Calculus", "PHYS100"}},
		{name: "wednesday fallback label", date: "2026-09-09", wantSlots: []string{"lab-wed"}, wantNames: []string{"Class"}},
		{name: "no class on sunday", date: "2026-09-13"},
		{name: "outside term range still matches weekday", date: "2027-01-04", wantSlots: []string{"math-mon", "phys-mon"}, wantNames: []string{"Calculus", "PHYS100"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Materialize(term, mustDate(t, tt.date))
			require.Len(t, got, len(tt.wantSlots))
			for i, inst := range got {
				assert.Equal(t, tt.date, inst.Date)
				assert.Equal(t, tt.wantSlots[i], inst.SlotID)
				assert.Equal(t, tt.wantNames[i], inst.CourseName)
				assert.False(t, inst.Marked)
				assert.False(t, inst.Attended)
			}
		})
	}
}

func TestMaterializeCopiesSlotFields(t *testing.T) {
	got := Materialize(testTerm(), mustDate(t, "2026-09-14"))
	require.NotEmpty(t, got)
	assert.Equal(t, "MATH101", got[0].CourseCode)
	assert.Equal(t, "09:00", got[0].Time)
	assert.Equal(t, "A1", got[0].Room)
}

func TestDayUsesLocalCalendarDate(t *testing.T) {
	loc := time.FixedZone("UTC+9", 9*60*60)
	late := time.Date(2026, 3, 1, 23, 30, 0, 0, loc)
	assert.Equal(t, "2026-03-01", FormatDate(late))
	assert.Equal(t, "2026-03-02", FormatDate(AddDays(late, 1)))
}

func TestTermContains(t *testing.T) {
	term := testTerm()
	assert.True(t, term.Contains(mustDate(t, "2026-09-07")))
	assert.True(t, term.Contains(mustDate(t, "2026-09-20")))
	assert.False(t, term.Contains(mustDate(t, "2026-09-21")))
	assert.False(t, Term{}.Contains(mustDate(t, "2026-09-21")))
	assert.False(t, Term{}.HasRange())
}
