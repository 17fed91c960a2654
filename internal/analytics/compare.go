package analytics

import (
	"fmt"
	"time"

	"github.com/rs/zerolog/log"

	"covidtrend/internal/model"
)

// Comparison maps each requested country to its moving average.
type Comparison map[string][]float64

type CompareOptions struct {
	Metric        model.Metric
	Alignment     model.Alignment
	UsePopulation bool
	Window        int
}

// Compare builds, optionally normalizes and averages one series per country. Countries without
// records, with an invalid population or with fewer values than the window map to an empty
// sequence. The only error is ErrInvalidWindow.
func Compare(records []model.Observation, countries []string, opts CompareOptions) (Comparison, error) {
	trends, err := CompareTrends(records, countries, opts)
	if err != nil {
		return nil, err
	}
	comparison := make(Comparison, len(trends))
	for country, line := range trends {
		comparison[country] = line.Values
	}
	return comparison, nil
}

// CompareTrends is Compare with each average paired to its window's last date.
func CompareTrends(records []model.Observation, countries []string, opts CompareOptions) (map[string]model.TrendLine, error) {
	if opts.Window < 1 {
		return nil, fmt.Errorf("%w: got %d", ErrInvalidWindow, opts.Window)
	}

	grouped := groupByCountry(records, countries)
	trends := make(map[string]model.TrendLine, len(countries))
	for _, country := range countries {
		line, err := trendFor(grouped[country], country, opts)
		if err != nil {
			log.Debug().Err(err).Str("country", country).Str("metric", string(opts.Metric)).Msg("country left empty in comparison")
			line = emptyLine(country, opts.Metric)
		}
		trends[country] = line
	}
	return trends, nil
}

func trendFor(records []model.Observation, country string, opts CompareOptions) (model.TrendLine, error) {
	series := buildSeries(records, country, opts.Metric, opts.Alignment)
	if opts.UsePopulation {
		normalized, err := Normalize(series, populationOf(records))
		if err != nil {
			return model.TrendLine{}, err
		}
		series = normalized
	}
	return Trend(series, opts.Window)
}

func emptyLine(country string, metric model.Metric) model.TrendLine {
	return model.TrendLine{Country: country, Metric: metric, Dates: []time.Time{}, Values: []float64{}}
}
