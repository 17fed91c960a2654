// Package analytics turns daily per-country observations into ordered series and smoothed,
// comparable trends.
//
// Every function is pure: inputs are never mutated and each call returns fresh values.
//
//	series := analytics.Build(observations, "Sweden", model.MetricDeaths, model.AlignFromFirstNonzero)
//	perMillion, err := analytics.Normalize(series, population)
//	averages, err := analytics.MovingAverage(perMillion.Values(), 7)
//
// Compare runs the same pipeline for several countries and isolates per-country failures.
package analytics
