package main

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"covidtrend/internal/model"
)

type collectorMetrics struct {
	runs           *prometheus.CounterVec
	emptyCountries prometheus.Gauge
	lastSuccess    prometheus.Gauge
}

func newCollectorMetrics(reg prometheus.Registerer) *collectorMetrics {
	factory := promauto.With(reg)
	return &collectorMetrics{
		runs: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "covidtrend",
			Subsystem: "collector",
			Name:      "runs_total",
			Help:      "Trend runs produced, by metric.",
		}, []string{"metric"}),
		emptyCountries: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: "covidtrend",
			Subsystem: "collector",
			Name:      "empty_countries",
			Help:      "Lines in the last run without enough history for the window.",
		}),
		lastSuccess: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: "covidtrend",
			Subsystem: "collector",
			Name:      "last_success_timestamp_seconds",
			Help:      "Unix time of the last stored run.",
		}),
	}
}

func (m *collectorMetrics) observeRun(run model.TrendRun) {
	m.runs.WithLabelValues(run.MetricLabel()).Inc()
	empty := 0
	for _, line := range run.Lines {
		if line.Empty() {
			empty++
		}
	}
	m.emptyCountries.Set(float64(empty))
	m.lastSuccess.Set(float64(run.CreatedAt.Unix()))
}
