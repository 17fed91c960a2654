package ecdc

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

type Metrics struct {
	Attempts    prometheus.Counter
	Failures    prometheus.Counter
	RowsParsed  prometheus.Counter
	RowsSkipped prometheus.Counter
	RowsClamped prometheus.Counter
}

// NewMetrics registers the provider collectors on reg. A nil reg leaves them unregistered.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		Attempts: factory.NewCounter(prometheus.CounterOpts{
			Namespace: "covidtrend",
			Subsystem: "ecdc",
			Name:      "request_attempts_total",
			Help:      "HTTP attempts made against the dataset endpoint, retries included.",
		}),
		Failures: factory.NewCounter(prometheus.CounterOpts{
			Namespace: "covidtrend",
			Subsystem: "ecdc",
			Name:      "fetch_failures_total",
			Help:      "Fetches that ended without a parsed dataset.",
		}),
		RowsParsed: factory.NewCounter(prometheus.CounterOpts{
			Namespace: "covidtrend",
			Subsystem: "ecdc",
			Name:      "rows_parsed_total",
			Help:      "CSV rows turned into observations.",
		}),
		RowsSkipped: factory.NewCounter(prometheus.CounterOpts{
			Namespace: "covidtrend",
			Subsystem: "ecdc",
			Name:      "rows_skipped_total",
			Help:      "CSV rows dropped as malformed.",
		}),
		RowsClamped: factory.NewCounter(prometheus.CounterOpts{
			Namespace: "covidtrend",
			Subsystem: "ecdc",
			Name:      "rows_clamped_total",
			Help:      "CSV rows with a negative count clamped to zero.",
		}),
	}
}

func (m *Metrics) observeParse(stats ParseStats) {
	m.RowsParsed.Add(float64(stats.Rows))
	m.RowsSkipped.Add(float64(stats.Skipped))
	m.RowsClamped.Add(float64(stats.Clamped))
}
