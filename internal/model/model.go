package model

import (
	"fmt"
	"strings"
	"time"
)

type Metric string

const (
	MetricCases  Metric = "cases"
	MetricDeaths Metric = "deaths"
)

func ParseMetric(value string) (Metric, error) {
	switch strings.ToLower(strings.TrimSpace(value)) {
	case "cases", "case":
		return MetricCases, nil
	case "deaths", "death":
		return MetricDeaths, nil
	default:
		return "", fmt.Errorf("unknown metric: %s", value)
	}
}

type Alignment string

const (
	AlignFromEpoch        Alignment = "from-epoch"
	AlignFromFirstNonzero Alignment = "from-first-nonzero"
)

func ParseAlignment(value string) (Alignment, error) {
	switch strings.ToLower(strings.TrimSpace(value)) {
	case "from-epoch", "epoch":
		return AlignFromEpoch, nil
	case "from-first-nonzero", "first-nonzero", "first":
		return AlignFromFirstNonzero, nil
	default:
		return "", fmt.Errorf("unknown alignment: %s", value)
	}
}

// Observation is one country-day row of the source dataset.
type Observation struct {
	Date        time.Time
	Country     string
	GeoID       string
	CountryCode string
	Continent   string
	Cases       int64
	Deaths      int64
	Population  int64
}

// Value returns the count recorded for metric, or 0 for an unknown metric.
func (o Observation) Value(metric Metric) int64 {
	switch metric {
	case MetricCases:
		return o.Cases
	case MetricDeaths:
		return o.Deaths
	default:
		return 0
	}
}

type Point struct {
	Date  time.Time
	Value float64
}

// Series holds one country's values for one metric, ascending by date.
type Series struct {
	Country string
	Metric  Metric
	Points  []Point
}

func (s Series) Len() int {
	return len(s.Points)
}

func (s Series) Values() []float64 {
	values := make([]float64, len(s.Points))
	for i, point := range s.Points {
		values[i] = point.Value
	}
	return values
}

func (s Series) Dates() []time.Time {
	dates := make([]time.Time, len(s.Points))
	for i, point := range s.Points {
		dates[i] = point.Date
	}
	return dates
}

// TrendLine is a moving average where Dates[i] is the last day of the window behind Values[i].
type TrendLine struct {
	Country string
	Metric  Metric
	Dates   []time.Time
	Values  []float64
}

func (l TrendLine) Empty() bool {
	return len(l.Values) == 0
}

// TrendRun is the derived output of one collector invocation. Metric is empty when the lines
// cover more than one metric, as for a single-country run.
type TrendRun struct {
	ID         string
	CreatedAt  time.Time
	Source     string
	Metric     Metric
	Alignment  Alignment
	PerMillion bool
	Window     int
	Lines      []TrendLine
}

// Metrics returns the distinct metrics of the run's lines in line order, falling back to the run
// metric for lines that carry none.
func (r TrendRun) Metrics() []Metric {
	var metrics []Metric
	seen := make(map[Metric]struct{}, 2)
	for _, line := range r.Lines {
		metric := line.Metric
		if metric == "" {
			metric = r.Metric
		}
		if _, ok := seen[metric]; ok || metric == "" {
			continue
		}
		seen[metric] = struct{}{}
		metrics = append(metrics, metric)
	}
	if len(metrics) == 0 && r.Metric != "" {
		metrics = append(metrics, r.Metric)
	}
	return metrics
}

// MetricLabel joins Metrics with "+".
func (r TrendRun) MetricLabel() string {
	return JoinMetrics(r.Metrics())
}

func JoinMetrics(metrics []Metric) string {
	parts := make([]string, len(metrics))
	for i, metric := range metrics {
		parts[i] = string(metric)
	}
	return strings.Join(parts, "+")
}
