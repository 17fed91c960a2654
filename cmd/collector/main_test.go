package main

import (
	"bytes"
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"covidtrend/internal/model"
	"covidtrend/internal/store/sqlite"
)

// datasetCSV renders rows newest first, as the feed publishes them.
func datasetCSV() string {
	var b strings.Builder
	b.WriteString("dateRep,day,month,year,cases,deaths,countriesAndTerritories,geoId,countryterritoryCode,popData2019,continentExp\n")
	start := time.Date(2020, time.March, 1, 0, 0, 0, 0, time.UTC)
	sweden := []int{0, 0, 3, 5, 0, 2, 4, 6, 8, 10}
	for i := len(sweden) - 1; i >= 0; i-- {
		day := start.AddDate(0, 0, i)
		fmt.Fprintf(&b, "%s,%d,%d,%d,%d,%d,Sweden,SE,SWE,1000000,Europe\n",
			day.Format("02/01/2006"), day.Day(), int(day.Month()), day.Year(), sweden[i], sweden[i]/2)
	}
	for i := 1; i >= 0; i-- {
		day := start.AddDate(0, 0, i)
		fmt.Fprintf(&b, "%s,%d,%d,%d,1,0,Norway,NO,NOR,5000000,Europe\n",
			day.Format("02/01/2006"), day.Day(), int(day.Month()), day.Year())
	}
	return b.String()
}

func startDataset(t *testing.T) {
	t.Helper()
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(datasetCSV()))
	}))
	t.Cleanup(server.Close)
	t.Setenv("COVIDTREND_SOURCE_URL", server.URL)
}

func TestCompareCommandStoresRun(t *testing.T) {
	startDataset(t)
	dir := t.TempDir()
	dbPath := filepath.Join(dir, "trends.db")
	metricsPath := filepath.Join(dir, "collector.prom")

	var out bytes.Buffer
	err := run([]string{
		"compare",
		"--countries", "Sweden,Norway",
		"--countries", "Atlantis",
		"--kind", "cases",
		"--per-million=false",
		"--window", "3",
		"--db", dbPath,
		"--metrics-file", metricsPath,
	}, &out)
	require.NoError(t, err)

	assert.Contains(t, out.String(), "Sweden")
	assert.Contains(t, out.String(), "not enough history")

	st, err := sqlite.New(dbPath)
	require.NoError(t, err)
	defer st.Close()

	stored, err := st.LatestRun(context.Background())
	require.NoError(t, err)
	assert.Equal(t, model.MetricCases, stored.Metric)
	assert.Equal(t, model.AlignFromFirstNonzero, stored.Alignment)
	assert.False(t, stored.PerMillion)
	assert.Equal(t, 3, stored.Window)
	require.Len(t, stored.Lines, 3)
	assert.Equal(t, "Sweden", stored.Lines[0].Country)
	require.Len(t, stored.Lines[0].Values, 6)
	assert.InDelta(t, 8.0/3, stored.Lines[0].Values[0], 1e-9)
	assert.Equal(t, time.Date(2020, time.March, 5, 0, 0, 0, 0, time.UTC), stored.Lines[0].Dates[0])
	assert.True(t, stored.Lines[1].Empty())
	assert.True(t, stored.Lines[2].Empty())

	metrics, err := os.ReadFile(metricsPath)
	require.NoError(t, err)
	assert.Contains(t, string(metrics), "covidtrend_ecdc_request_attempts_total 1")
	assert.Contains(t, string(metrics), `covidtrend_collector_runs_total{metric="cases"} 1`)
	assert.Contains(t, string(metrics), "covidtrend_collector_empty_countries 2")
}

func TestCountryCommandPrintsBothMetrics(t *testing.T) {
	startDataset(t)

	var out bytes.Buffer
	err := run([]string{"country", "--country", "Sweden", "--window", "7", "--db", ""}, &out)
	require.NoError(t, err)

	text := out.String()
	assert.Contains(t, text, "Moving 7-days average for Sweden")
	assert.Contains(t, text, "2020-03-07")
	assert.Contains(t, text, "2020-03-10")
	assert.NotContains(t, text, "2020-03-06")
}

func TestCountryCommandStoresOneRunWithBothMetrics(t *testing.T) {
	startDataset(t)
	dbPath := filepath.Join(t.TempDir(), "trends.db")

	err := run([]string{"country", "--country", "Sweden", "--window", "3", "--db", dbPath}, &bytes.Buffer{})
	require.NoError(t, err)

	st, err := sqlite.New(dbPath)
	require.NoError(t, err)
	defer st.Close()

	summaries, err := st.ListRuns(context.Background(), 0)
	require.NoError(t, err)
	require.Len(t, summaries, 1)
	assert.Equal(t, "cases+deaths", summaries[0].MetricLabel())

	stored, err := st.LatestRun(context.Background())
	require.NoError(t, err)
	assert.Equal(t, model.AlignFromEpoch, stored.Alignment)
	require.Len(t, stored.Lines, 2)
	assert.Equal(t, model.MetricCases, stored.Lines[0].Metric)
	assert.Equal(t, model.MetricDeaths, stored.Lines[1].Metric)
	require.Len(t, stored.Lines[0].Values, 8)
	assert.InDelta(t, 1.0, stored.Lines[0].Values[0], 1e-9)
	assert.InDelta(t, 1.0/3, stored.Lines[1].Values[0], 1e-9)
}

func TestCountriesCommand(t *testing.T) {
	startDataset(t)

	var out bytes.Buffer
	err := run([]string{"countries", "--db", ""}, &out)
	require.NoError(t, err)

	lines := strings.Split(strings.TrimSpace(out.String()), "\n")
	require.Len(t, lines, 3)
	assert.True(t, strings.HasPrefix(lines[1], "Norway"))
	assert.True(t, strings.HasPrefix(lines[2], "Sweden"))
	assert.Contains(t, lines[2], "1000000")
}

func TestCompareCommandRejectsUnknownMetric(t *testing.T) {
	startDataset(t)

	err := run([]string{"compare", "--countries", "Sweden", "--kind", "recoveries", "--db", ""}, &bytes.Buffer{})

	assert.ErrorContains(t, err, "unknown metric")
}

func TestParseList(t *testing.T) {
	assert.Equal(t, []string{"Sweden", "United_Kingdom", "Norway"}, parseList([]string{" Sweden ,United_Kingdom", "", "Norway,Sweden"}))
	assert.Empty(t, parseList(nil))
}
