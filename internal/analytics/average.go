package analytics

import (
	"errors"
	"fmt"
	"time"

	"covidtrend/internal/model"
)

var (
	ErrInsufficientData = errors.New("analytics: not enough history for window")
	ErrInvalidWindow    = errors.New("analytics: window must be at least 1")
)

// MovingAverage returns the trailing mean of every run of window consecutive values, computed from
// prefix sums. The result has len(values)-window+1 elements; element i averages
// values[i..i+window-1] and belongs to the date of values[i+window-1].
func MovingAverage(values []float64, window int) ([]float64, error) {
	if window < 1 {
		return nil, fmt.Errorf("%w: got %d", ErrInvalidWindow, window)
	}
	if len(values) < window {
		return nil, fmt.Errorf("%w: %d values, window %d", ErrInsufficientData, len(values), window)
	}

	prefix := make([]float64, len(values)+1)
	for i, value := range values {
		prefix[i+1] = prefix[i] + value
	}

	averages := make([]float64, len(values)-window+1)
	size := float64(window)
	for i := range averages {
		averages[i] = (prefix[i+window] - prefix[i]) / size
	}
	return averages, nil
}

// Trend computes the moving average of series and anchors each value to the last day of its window.
func Trend(series model.Series, window int) (model.TrendLine, error) {
	averages, err := MovingAverage(series.Values(), window)
	if err != nil {
		return model.TrendLine{}, fmt.Errorf("%s: %w", series.Country, err)
	}

	dates := make([]time.Time, len(averages))
	for i := range averages {
		dates[i] = series.Points[i+window-1].Date
	}
	return model.TrendLine{Country: series.Country, Metric: series.Metric, Dates: dates, Values: averages}, nil
}
