package analytics

import (
	"time"

	"covidtrend/internal/model"
)

var day0 = time.Date(2020, time.March, 1, 0, 0, 0, 0, time.UTC)

func dayN(n int) time.Time {
	return day0.AddDate(0, 0, n)
}

// observations returns one row per case count, ascending from day0, newest first like the feed.
func observations(country string, population int64, cases ...int64) []model.Observation {
	rows := make([]model.Observation, 0, len(cases))
	for i := len(cases) - 1; i >= 0; i-- {
		rows = append(rows, model.Observation{
			Date:       dayN(i),
			Country:    country,
			Cases:      cases[i],
			Deaths:     cases[i] / 2,
			Population: population,
		})
	}
	return rows
}
