package ecdc

import (
	"bytes"
	"strings"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"covidtrend/internal/logging"
)

const sampleCSV = `dateRep,day,month,year,cases,deaths,countriesAndTerritories,geoId,countryterritoryCode,popData2019,continentExp
03/04/2020,3,4,2020,12,1,Sweden,SE,SWE,10230185,Europe
02/04/2020,2,4,2020,-3,0,Sweden,SE,SWE,10230185,Europe
01/04/2020,1,4,2020,5,0,Sweden,SE,SWE,10230185,Europe
03/04/2020,3,4,2020,7,2,Norway,NO,NOR,5328212,Europe
02/04/2020,2,4,2020,n/a,0,Norway,NO,NOR,5328212,Europe
31/13/2020,31,13,2020,1,0,Norway,NO,NOR,5328212,Europe
01/04/2020,1,4,2020,0,0,Cases_on_an_international_conveyance_Japan,JPG1,,,Other
`

func TestParseCSV(t *testing.T) {
	observations, stats, err := ParseCSV(strings.NewReader(sampleCSV), "")

	require.NoError(t, err)
	assert.Equal(t, ParseStats{Rows: 5, Skipped: 2, Clamped: 1}, stats)
	require.Len(t, observations, 5)

	first := observations[0]
	assert.Equal(t, time.Date(2020, time.April, 3, 0, 0, 0, 0, time.UTC), first.Date)
	assert.Equal(t, "Sweden", first.Country)
	assert.Equal(t, "SE", first.GeoID)
	assert.Equal(t, "SWE", first.CountryCode)
	assert.Equal(t, "Europe", first.Continent)
	assert.Equal(t, int64(12), first.Cases)
	assert.Equal(t, int64(1), first.Deaths)
	assert.Equal(t, int64(10230185), first.Population)

	assert.Equal(t, int64(0), observations[1].Cases, "negative corrections are clamped")
	assert.Equal(t, int64(0), observations[4].Population, "empty population parses as zero")
}

func TestParseCSVExplicitPopulationField(t *testing.T) {
	data := "dateRep,cases,deaths,countriesAndTerritories,popData2018,popData2019\n01/04/2020,1,0,X,100,200\n"

	observations, _, err := ParseCSV(strings.NewReader(data), "popData2019")
	require.NoError(t, err)
	require.Len(t, observations, 1)
	assert.Equal(t, int64(200), observations[0].Population)

	observations, _, err = ParseCSV(strings.NewReader(data), "")
	require.NoError(t, err)
	assert.Equal(t, int64(100), observations[0].Population)
}

func TestParseCSVMissingColumn(t *testing.T) {
	_, _, err := ParseCSV(strings.NewReader("dateRep,cases,countriesAndTerritories,popData2019\n01/04/2020,1,X,1\n"), "")
	assert.ErrorIs(t, err, ErrMissingColumn)

	_, _, err = ParseCSV(strings.NewReader("dateRep,cases,deaths,countriesAndTerritories\n01/04/2020,1,0,X\n"), "")
	assert.ErrorIs(t, err, ErrMissingColumn)

	_, _, err = ParseCSV(strings.NewReader(sampleCSV), "popData2030")
	assert.ErrorIs(t, err, ErrMissingColumn)
}

func TestParseCSVNoRecords(t *testing.T) {
	_, _, err := ParseCSV(strings.NewReader(""), "")
	assert.ErrorIs(t, err, ErrNoRecords)

	_, _, err = ParseCSV(strings.NewReader("dateRep,cases,deaths,countriesAndTerritories,popData2019\n"), "")
	assert.ErrorIs(t, err, ErrNoRecords)
}

func TestParseCSVHeaderWithByteOrderMark(t *testing.T) {
	data := "\ufeffdateRep,cases,deaths,countriesAndTerritories,popData2019\n01/04/2020,4,1,X,10\n"

	observations, _, err := ParseCSV(strings.NewReader(data), "")

	require.NoError(t, err)
	require.Len(t, observations, 1)
	assert.Equal(t, int64(4), observations[0].Cases)
}

func TestParseCSVSkipsMalformedRow(t *testing.T) {
	data := "dateRep,cases,deaths,countriesAndTerritories,popData2019\n" +
		"01/04/2020,4,1,Sweden,10\n" +
		"01/04/2020,2,0,Bad\"Name,10\n" +
		"02/04/2020,6,2,Sweden,10\n"

	observations, stats, err := ParseCSV(strings.NewReader(data), "")

	require.NoError(t, err)
	assert.Equal(t, ParseStats{Rows: 2, Skipped: 1}, stats)
	require.Len(t, observations, 2)
	assert.Equal(t, int64(6), observations[1].Cases)
}

func TestParseCSVLogsPhysicalLineOfSkippedRow(t *testing.T) {
	var buf bytes.Buffer
	logger := log.Logger
	logging.Configure(&buf, true)
	t.Cleanup(func() {
		log.Logger = logger
		zerolog.SetGlobalLevel(zerolog.InfoLevel)
	})

	data := "dateRep,cases,deaths,countriesAndTerritories,popData2019,notes\n" +
		"01/04/2020,4,1,Sweden,10,\"first\nsecond\"\n" +
		"bad-date,2,0,Sweden,10,\n"

	_, stats, err := ParseCSV(strings.NewReader(data), "")

	require.NoError(t, err)
	assert.Equal(t, 1, stats.Skipped)
	assert.Contains(t, buf.String(), `"line":4`)
}
