package schedule

import (
	"strings"
	"time"

	"github.com/pkg/errors"
)

// DateLayout is the ISO calendar date format used for every stored date.
const DateLayout = "2006-01-02"

// ParseDate parses YYYY-MM-DD and anchors it at midnight UTC.
func ParseDate(s string) (time.Time, error) {
	t, err := time.Parse(DateLayout, strings.TrimSpace(s))
	if err != nil {
		return time.Time{}, errors.Wrapf(err, "invalid date %q", s)
	}
	return t, nil
}

// Day returns the calendar day of t (as seen in t's location) at midnight UTC.
func Day(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

// FormatDate renders the calendar day of t as YYYY-MM-DD.
func FormatDate(t time.Time) string {
	return Day(t).Format(DateLayout)
}

// AddDays shifts a calendar day by n days.
func AddDays(t time.Time, n int) time.Time {
	return Day(t).AddDate(0, 0, n)
}
