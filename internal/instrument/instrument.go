// Package instrument exposes ledger activity and derived statistics as
// prometheus collectors.
package instrument

import (
	"strconv"

	"github.com/prometheus/client_golang/prometheus"

	"planner/internal/metrics"
)

// Stats is the part of the metrics engine the gauges read from.
type Stats interface {
	Summary() metrics.Summary
}

// Collectors groups the counters updated by the api.
type Collectors struct {
	Marks        *prometheus.CounterVec
	Materialized prometheus.Counter
	PublishFails prometheus.Counter
}

// New creates the counters and the summary gauges and registers them.
func New(reg prometheus.Registerer, stats Stats) (*Collectors, error) {
	c := &Collectors{
		Marks: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "planner",
			Name:      "marks_total",
			Help:      "Attendance marks applied, by outcome.",
		}, []string{"attended"}),
		Materialized: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "planner",
			Name:      "records_materialized_total",
			Help:      "Attendance records created from the weekly schedule.",
		}),
		PublishFails: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "planner",
			Name:      "event_publish_failures_total",
			Help:      "Mark events that could not be queued.",
		}),
	}

	gauge := func(name, help string, pick func(metrics.Summary) int) prometheus.Collector {
		return prometheus.NewGaugeFunc(prometheus.GaugeOpts{
			Namespace: "planner",
			Name:      name,
			Help:      help,
		}, func() float64 { return float64(pick(stats.Summary())) })
	}

	for _, col := range []prometheus.Collector{
		c.Marks,
		c.Materialized,
		c.PublishFails,
		gauge("streak_days", "Current run of fully attended class days.", func(s metrics.Summary) int { return s.Streak }),
		gauge("weekly_rate_percent", "Attendance rate over the last 7 days.", func(s metrics.Summary) int { return s.WeeklyRate }),
		gauge("monthly_rate_percent", "Attendance rate over the last 30 days.", func(s metrics.Summary) int { return s.MonthlyRate }),
		gauge("perfect_days", "Class days with every class attended.", func(s metrics.Summary) int { return s.PerfectDays }),
	} {
		if err := reg.Register(col); err != nil {
			return nil, err
		}
	}
	return c, nil
}

// ObserveMark counts one applied mark.
func (c *Collectors) ObserveMark(attended bool) {
	c.Marks.WithLabelValues(strconv.FormatBool(attended)).Inc()
}
