package analytics

import (
	"errors"
	"fmt"

	"covidtrend/internal/model"
)

const perMillion = 1_000_000

var ErrInvalidPopulation = errors.New("analytics: population must be positive")

// Normalize rescales series to counts per one million inhabitants. No rounding is applied.
func Normalize(series model.Series, population int64) (model.Series, error) {
	if population <= 0 {
		return model.Series{}, fmt.Errorf("%w: %s has population %d", ErrInvalidPopulation, series.Country, population)
	}

	points := make([]model.Point, len(series.Points))
	for i, point := range series.Points {
		points[i] = model.Point{
			Date:  point.Date,
			Value: point.Value / float64(population) * perMillion,
		}
	}
	return model.Series{Country: series.Country, Metric: series.Metric, Points: points}, nil
}
