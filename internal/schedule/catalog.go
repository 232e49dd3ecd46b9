package schedule

import (
	"os"
	"time"

	"github.com/pkg/errors"
	"gopkg.in/yaml.v3"
)

// Resolver finds the term in effect on a given date.
type Resolver interface {
	ActiveTermForDate(date time.Time) (Term, bool)
}

// Catalog is a static, ordered list of terms.
type Catalog struct {
	Terms []Term `yaml:"terms"`
}

// LoadCatalog reads a YAML term catalog. A missing path yields an empty catalog.
func LoadCatalog(path string) (*Catalog, error) {
	if path == "" {
		return &Catalog{}, nil
	}
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrap(err, "read term catalog")
	}
	return ParseCatalog(raw)
}

// ParseCatalog decodes YAML and validates every term's dates and slots.
func ParseCatalog(raw []byte) (*Catalog, error) {
	var c Catalog
	if err := yaml.Unmarshal(raw, &c); err != nil {
		return nil, errors.Wrap(err, "decode term catalog")
	}
	for i, t := range c.Terms {
		if !t.HasRange() {
			return nil, errors.Errorf("term %d (%s): startDate and endDate are required", i, t.Name)
		}
		start, err := ParseDate(t.StartDate)
		if err != nil {
			return nil, errors.Wrapf(err, "term %d (%s)", i, t.Name)
		}
		end, err := ParseDate(t.EndDate)
		if err != nil {
			return nil, errors.Wrapf(err, "term %d (%s)", i, t.Name)
		}
		if end.Before(start) {
			return nil, errors.Errorf("term %d (%s): endDate before startDate", i, t.Name)
		}
		for _, s := range t.Slots {
			if s.DayOfWeek < 0 || s.DayOfWeek > 6 {
				return nil, errors.Errorf("term %d (%s): slot %q has dayOfWeek %d outside 0..6", i, t.Name, s.ID, s.DayOfWeek)
			}
		}
	}
	return &c, nil
}

// ActiveTermForDate returns the first term whose range contains date.
func (c *Catalog) ActiveTermForDate(date time.Time) (Term, bool) {
	if c == nil {
		return Term{}, false
	}
	for _, t := range c.Terms {
		if t.Contains(date) {
			return t, true
		}
	}
	return Term{}, false
}
