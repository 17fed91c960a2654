package analytics

import (
	"sort"

	"covidtrend/internal/model"
)

// Build returns the series of metric for country in ascending date order. Observations for other
// countries are ignored; a country with no observations yields an empty series.
func Build(records []model.Observation, country string, metric model.Metric, alignment model.Alignment) model.Series {
	matched := make([]model.Observation, 0)
	for _, record := range records {
		if record.Country == country {
			matched = append(matched, record)
		}
	}
	return buildSeries(matched, country, metric, alignment)
}

// BuildMany builds one series per requested country. Each country is truncated at its own first
// nonzero day.
func BuildMany(records []model.Observation, countries []string, metric model.Metric, alignment model.Alignment) map[string]model.Series {
	grouped := groupByCountry(records, countries)
	result := make(map[string]model.Series, len(countries))
	for _, country := range countries {
		result[country] = buildSeries(grouped[country], country, metric, alignment)
	}
	return result
}

func groupByCountry(records []model.Observation, countries []string) map[string][]model.Observation {
	grouped := make(map[string][]model.Observation, len(countries))
	for _, country := range countries {
		grouped[country] = nil
	}
	for _, record := range records {
		if _, ok := grouped[record.Country]; !ok {
			continue
		}
		grouped[record.Country] = append(grouped[record.Country], record)
	}
	return grouped
}

func buildSeries(records []model.Observation, country string, metric model.Metric, alignment model.Alignment) model.Series {
	series := model.Series{Country: country, Metric: metric, Points: []model.Point{}}
	if len(records) == 0 {
		return series
	}

	ordered := make([]model.Observation, len(records))
	copy(ordered, records)
	sort.SliceStable(ordered, func(i, j int) bool {
		return ordered[i].Date.Before(ordered[j].Date)
	})

	points := make([]model.Point, 0, len(ordered))
	started := alignment != model.AlignFromFirstNonzero
	for i, record := range ordered {
		if i > 0 && record.Date.Equal(ordered[i-1].Date) {
			continue
		}
		value := record.Value(metric)
		if !started {
			if value <= 0 {
				continue
			}
			started = true
		}
		points = append(points, model.Point{Date: record.Date, Value: float64(value)})
	}
	series.Points = points
	return series
}

func populationOf(records []model.Observation) int64 {
	for _, record := range records {
		if record.Population > 0 {
			return record.Population
		}
	}
	if len(records) > 0 {
		return records[0].Population
	}
	return 0
}
