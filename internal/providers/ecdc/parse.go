package ecdc

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog/log"

	"covidtrend/internal/model"
)

const (
	dateLayout = "02/01/2006"

	fieldDate        = "daterep"
	fieldCases       = "cases"
	fieldDeaths      = "deaths"
	fieldCountry     = "countriesandterritories"
	fieldGeoID       = "geoid"
	fieldCountryCode = "countryterritorycode"
	fieldContinent   = "continentexp"

	populationPrefix = "popdata"
)

var (
	ErrNoRecords     = errors.New("ecdc: no records found")
	ErrMissingColumn = errors.New("ecdc: missing column")
)

type ParseStats struct {
	Rows    int
	Skipped int
	Clamped int
}

// ParseCSV reads the case distribution CSV. Field lookup is case-insensitive. When
// populationField is empty the first column starting with "popData" is used.
// Rows that are not valid CSV or carry an unparseable date or count are skipped; negative counts
// are clamped to zero.
func ParseCSV(r io.Reader, populationField string) ([]model.Observation, ParseStats, error) {
	var stats ParseStats

	reader := csv.NewReader(r)
	reader.FieldsPerRecord = -1
	reader.TrimLeadingSpace = true

	header, err := reader.Read()
	if errors.Is(err, io.EOF) {
		return nil, stats, ErrNoRecords
	}
	if err != nil {
		return nil, stats, err
	}
	columns := normalizeHeader(header)

	popField, err := resolvePopulationField(columns, populationField)
	if err != nil {
		return nil, stats, err
	}
	for _, required := range []string{fieldDate, fieldCases, fieldDeaths, fieldCountry} {
		if _, ok := columns[required]; !ok {
			return nil, stats, fmt.Errorf("%w: %s", ErrMissingColumn, required)
		}
	}

	observations := make([]model.Observation, 0)
	for {
		record, err := reader.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		var parseErr *csv.ParseError
		if errors.As(err, &parseErr) {
			stats.Skipped++
			log.Debug().Err(err).Int("line", parseErr.StartLine).Msg("skipping malformed row")
			continue
		}
		if err != nil {
			return nil, stats, fmt.Errorf("ecdc: %w", err)
		}

		observation, clamped, err := rowToObservation(record, columns, popField)
		if err != nil {
			stats.Skipped++
			line, _ := reader.FieldPos(0)
			log.Debug().Err(err).Int("line", line).Msg("skipping row")
			continue
		}
		if clamped {
			stats.Clamped++
		}
		stats.Rows++
		observations = append(observations, observation)
	}

	if len(observations) == 0 {
		return nil, stats, ErrNoRecords
	}
	return observations, stats, nil
}

func rowToObservation(record []string, columns map[string]int, popField string) (model.Observation, bool, error) {
	country := getCell(record, columns, fieldCountry)
	if country == "" {
		return model.Observation{}, false, errors.New("ecdc: missing country")
	}

	date, err := time.Parse(dateLayout, getCell(record, columns, fieldDate))
	if err != nil {
		return model.Observation{}, false, fmt.Errorf("ecdc: invalid date: %w", err)
	}

	cases, clampedCases, err := parseCount(getCell(record, columns, fieldCases))
	if err != nil {
		return model.Observation{}, false, fmt.Errorf("ecdc: invalid cases: %w", err)
	}
	deaths, clampedDeaths, err := parseCount(getCell(record, columns, fieldDeaths))
	if err != nil {
		return model.Observation{}, false, fmt.Errorf("ecdc: invalid deaths: %w", err)
	}

	var population int64
	if raw := getCell(record, columns, popField); raw != "" {
		population, err = strconv.ParseInt(raw, 10, 64)
		if err != nil {
			return model.Observation{}, false, fmt.Errorf("ecdc: invalid population: %w", err)
		}
	}

	return model.Observation{
		Date:        date,
		Country:     country,
		GeoID:       getCell(record, columns, fieldGeoID),
		CountryCode: getCell(record, columns, fieldCountryCode),
		Continent:   getCell(record, columns, fieldContinent),
		Cases:       cases,
		Deaths:      deaths,
		Population:  population,
	}, clampedCases || clampedDeaths, nil
}

func parseCount(value string) (int64, bool, error) {
	if value == "" {
		return 0, false, errors.New("empty value")
	}
	count, err := strconv.ParseInt(value, 10, 64)
	if err != nil {
		return 0, false, err
	}
	if count < 0 {
		return 0, true, nil
	}
	return count, false, nil
}

func resolvePopulationField(columns map[string]int, configured string) (string, error) {
	if configured = strings.ToLower(strings.TrimSpace(configured)); configured != "" {
		if _, ok := columns[configured]; !ok {
			return "", fmt.Errorf("%w: %s", ErrMissingColumn, configured)
		}
		return configured, nil
	}

	best := ""
	bestIndex := -1
	for name, index := range columns {
		if !strings.HasPrefix(name, populationPrefix) {
			continue
		}
		if bestIndex == -1 || index < bestIndex {
			best, bestIndex = name, index
		}
	}
	if best == "" {
		return "", fmt.Errorf("%w: %s*", ErrMissingColumn, populationPrefix)
	}
	return best, nil
}

func normalizeHeader(header []string) map[string]int {
	result := make(map[string]int, len(header))
	for i, value := range header {
		key := strings.ToLower(strings.TrimSpace(strings.TrimPrefix(value, "\ufeff")))
		if key == "" {
			continue
		}
		result[key] = i
	}
	return result
}

func getCell(record []string, header map[string]int, key string) string {
	index, ok := header[key]
	if !ok || index >= len(record) {
		return ""
	}
	return strings.TrimSpace(record[index])
}
