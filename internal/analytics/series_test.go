package analytics

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"covidtrend/internal/model"
)

func TestBuildSortsNewestFirstInput(t *testing.T) {
	records := observations("X", 1000, 1, 2, 3, 4)

	series := Build(records, "X", model.MetricCases, model.AlignFromEpoch)

	assert.Equal(t, "X", series.Country)
	assert.Equal(t, model.MetricCases, series.Metric)
	assert.Equal(t, []float64{1, 2, 3, 4}, series.Values())
	for i := 1; i < series.Len(); i++ {
		assert.True(t, series.Points[i-1].Date.Before(series.Points[i].Date), "dates must be strictly increasing")
	}
}

func TestBuildDoesNotRelyOnReversal(t *testing.T) {
	records := []model.Observation{
		{Date: dayN(2), Country: "X", Cases: 30},
		{Date: dayN(0), Country: "X", Cases: 10},
		{Date: dayN(3), Country: "X", Cases: 40},
		{Date: dayN(1), Country: "X", Cases: 20},
	}

	series := Build(records, "X", model.MetricCases, model.AlignFromEpoch)

	assert.Equal(t, []float64{10, 20, 30, 40}, series.Values())
	assert.Equal(t, dayN(0), series.Points[0].Date)
	assert.Equal(t, dayN(3), series.Points[3].Date)
}

func TestBuildFromEpochKeepsEveryObservation(t *testing.T) {
	cases := []int64{0, 0, 3, 5, 0, 2, 4, 6, 8, 10}
	records := append(observations("X", 1000, cases...), observations("Y", 1000, 9, 9)...)

	series := Build(records, "X", model.MetricCases, model.AlignFromEpoch)

	require.Equal(t, len(cases), series.Len())
	assert.Equal(t, []float64{0, 0, 3, 5, 0, 2, 4, 6, 8, 10}, series.Values())
}

func TestBuildFromFirstNonzeroDropsLeadingZeros(t *testing.T) {
	records := observations("X", 1000, 0, 0, 3, 5, 0, 2, 4, 6, 8, 10)

	series := Build(records, "X", model.MetricCases, model.AlignFromFirstNonzero)

	assert.Equal(t, []float64{3, 5, 0, 2, 4, 6, 8, 10}, series.Values())
	assert.Equal(t, dayN(2), series.Points[0].Date)
	assert.Greater(t, series.Points[0].Value, 0.0)
}

func TestBuildFromFirstNonzeroWithoutNonzero(t *testing.T) {
	records := observations("X", 1000, 0, 0, 0)

	series := Build(records, "X", model.MetricCases, model.AlignFromFirstNonzero)

	assert.Equal(t, 0, series.Len())
	assert.NotNil(t, series.Points)
}

func TestBuildUsesRequestedMetric(t *testing.T) {
	records := []model.Observation{
		{Date: dayN(0), Country: "X", Cases: 4, Deaths: 0},
		{Date: dayN(1), Country: "X", Cases: 6, Deaths: 1},
		{Date: dayN(2), Country: "X", Cases: 8, Deaths: 0},
	}

	cases := Build(records, "X", model.MetricCases, model.AlignFromFirstNonzero)
	deaths := Build(records, "X", model.MetricDeaths, model.AlignFromFirstNonzero)

	assert.Equal(t, []float64{4, 6, 8}, cases.Values())
	assert.Equal(t, []float64{1, 0}, deaths.Values())
}

func TestBuildMissingCountryIsEmpty(t *testing.T) {
	series := Build(observations("X", 1000, 1, 2), "Atlantis", model.MetricCases, model.AlignFromEpoch)

	assert.Equal(t, "Atlantis", series.Country)
	assert.Equal(t, 0, series.Len())
}

func TestBuildSkipsDuplicateDates(t *testing.T) {
	records := []model.Observation{
		{Date: dayN(1), Country: "X", Cases: 2},
		{Date: dayN(0), Country: "X", Cases: 1},
		{Date: dayN(1), Country: "X", Cases: 99},
	}

	series := Build(records, "X", model.MetricCases, model.AlignFromEpoch)

	assert.Equal(t, []float64{1, 2}, series.Values())
}

func TestBuildDoesNotMutateInput(t *testing.T) {
	records := observations("X", 1000, 1, 2, 3)
	first := records[0]

	Build(records, "X", model.MetricCases, model.AlignFromEpoch)

	assert.Equal(t, first, records[0])
}

func TestBuildManyTruncatesPerCountry(t *testing.T) {
	records := append(observations("X", 1000, 0, 0, 1, 2), observations("Y", 1000, 0, 5, 0, 6)...)

	result := BuildMany(records, []string{"X", "Y", "Z"}, model.MetricCases, model.AlignFromFirstNonzero)

	require.Len(t, result, 3)
	assert.Equal(t, []float64{1, 2}, result["X"].Values())
	assert.Equal(t, dayN(2), result["X"].Points[0].Date)
	assert.Equal(t, []float64{5, 0, 6}, result["Y"].Values())
	assert.Equal(t, dayN(1), result["Y"].Points[0].Date)
	assert.Equal(t, 0, result["Z"].Len())
}
