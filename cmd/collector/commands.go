package main

import (
	"errors"
	"fmt"
	"io"
	"sort"
	"text/tabwriter"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"covidtrend/internal/analytics"
	"covidtrend/internal/model"
)

func newCountryCmd(state *app) *cobra.Command {
	var (
		country string
		window  int
	)
	cmd := &cobra.Command{
		Use:   "country",
		Short: "Moving average of daily cases and deaths for one country",
		Example: `  collector country --country Sweden
  collector country --country Italy --window 14 --db ""`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if !cmd.Flags().Changed("window") {
				window = state.cfg.Analysis.Window
			}
			return state.runCountry(cmd, country, window)
		},
	}
	cmd.Flags().StringVarP(&country, "country", "c", "", "country as named in the dataset, e.g. United_Kingdom")
	cmd.Flags().IntVarP(&window, "window", "w", 7, "moving average window in days")
	_ = cmd.MarkFlagRequired("country")
	return cmd
}

func newCompareCmd(state *app) *cobra.Command {
	var (
		countries  []string
		kind       string
		align      string
		perMillion bool
		window     int
	)
	cmd := &cobra.Command{
		Use:   "compare",
		Short: "Compare moving averages of one metric across countries",
		Example: `  collector compare --countries Sweden,Norway,Denmark --kind deaths
  collector compare -c Italy -c Spain -k cases --align epoch --per-million=false`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			flags := cmd.Flags()
			analysis := state.cfg.Analysis
			if !flags.Changed("kind") {
				kind = analysis.Metric
			}
			if !flags.Changed("align") {
				align = analysis.Alignment
			}
			if !flags.Changed("per-million") {
				perMillion = analysis.PerMillion
			}
			if !flags.Changed("window") {
				window = analysis.Window
			}

			metric, err := model.ParseMetric(kind)
			if err != nil {
				return err
			}
			alignment, err := model.ParseAlignment(align)
			if err != nil {
				return err
			}
			requested := parseList(countries)
			if len(requested) == 0 {
				return errors.New("no countries provided")
			}
			return state.runCompare(cmd, requested, analytics.CompareOptions{
				Metric:        metric,
				Alignment:     alignment,
				UsePopulation: perMillion,
				Window:        window,
			})
		},
	}
	cmd.Flags().StringSliceVarP(&countries, "countries", "c", nil, "countries as named in the dataset (comma-separated or repeated)")
	cmd.Flags().StringVarP(&kind, "kind", "k", "cases", "metric to compare: cases or deaths")
	cmd.Flags().StringVar(&align, "align", "first-nonzero", "series start: first-nonzero or epoch")
	cmd.Flags().BoolVar(&perMillion, "per-million", true, "normalize by population before averaging")
	cmd.Flags().IntVarP(&window, "window", "w", 7, "moving average window in days")
	_ = cmd.MarkFlagRequired("countries")
	return cmd
}

func newCountriesCmd(state *app) *cobra.Command {
	return &cobra.Command{
		Use:   "countries",
		Short: "List the countries present in the dataset",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			observations, err := state.fetch(cmd.Context())
			if err != nil {
				return err
			}
			printCountries(cmd.OutOrStdout(), summarizeCountries(observations))
			return nil
		},
	}
}

func (a *app) runCountry(cmd *cobra.Command, country string, window int) error {
	ctx := cmd.Context()
	observations, err := a.fetch(ctx)
	if err != nil {
		return err
	}

	// one run holds both metrics
	run := a.newRun("", model.AlignFromEpoch, false, window)
	for _, metric := range []model.Metric{model.MetricCases, model.MetricDeaths} {
		series := analytics.Build(observations, country, metric, model.AlignFromEpoch)
		line, err := analytics.Trend(series, window)
		if errors.Is(err, analytics.ErrInsufficientData) {
			log.Warn().Str("country", country).Str("metric", string(metric)).Int("days", series.Len()).Int("window", window).Msg("not enough history")
			line = model.TrendLine{Country: country, Metric: metric}
		} else if err != nil {
			return err
		}
		run.Lines = append(run.Lines, line)
	}
	if err := a.save(ctx, run); err != nil {
		return err
	}

	printCountryTrend(cmd.OutOrStdout(), country, window, run.Lines[0], run.Lines[1])
	return nil
}

func (a *app) runCompare(cmd *cobra.Command, countries []string, opts analytics.CompareOptions) error {
	ctx := cmd.Context()
	observations, err := a.fetch(ctx)
	if err != nil {
		return err
	}

	trends, err := analytics.CompareTrends(observations, countries, opts)
	if err != nil {
		return err
	}

	run := a.newRun(opts.Metric, opts.Alignment, opts.UsePopulation, opts.Window)
	run.Lines = make([]model.TrendLine, 0, len(countries))
	for _, country := range countries {
		line := trends[country]
		if line.Empty() {
			log.Warn().Str("country", country).Str("metric", string(opts.Metric)).Msg("not enough history, country left empty")
		}
		run.Lines = append(run.Lines, line)
	}
	if err := a.save(ctx, run); err != nil {
		return err
	}

	printComparison(cmd.OutOrStdout(), run)
	return nil
}

func printCountryTrend(out io.Writer, country string, window int, cases, deaths model.TrendLine) {
	fmt.Fprintf(out, "Moving %d-days average for %s\n", window, country)
	if cases.Empty() && deaths.Empty() {
		fmt.Fprintln(out, "not enough history")
		return
	}

	deathsByDay := make(map[time.Time]float64, len(deaths.Values))
	for i, day := range deaths.Dates {
		deathsByDay[day] = deaths.Values[i]
	}

	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', tabwriter.AlignRight)
	fmt.Fprintln(w, "date\tcases\tdeaths\t")
	for i, day := range cases.Dates {
		fmt.Fprintf(w, "%s\t%.2f\t%.2f\t\n", day.Format(time.DateOnly), cases.Values[i], deathsByDay[day])
	}
	_ = w.Flush()
}

func printComparison(out io.Writer, run model.TrendRun) {
	unit := string(run.Metric)
	if run.PerMillion {
		unit += " per 1 million"
	}
	fmt.Fprintf(out, "Moving average of %s (window %d, %s)\n", unit, run.Window, run.Alignment)

	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "country\tdays\tlatest\tpeak\tas of")
	for _, line := range run.Lines {
		if line.Empty() {
			fmt.Fprintf(w, "%s\t0\t-\t-\tnot enough history\n", line.Country)
			continue
		}
		last := len(line.Values) - 1
		fmt.Fprintf(w, "%s\t%d\t%.2f\t%.2f\t%s\n",
			line.Country,
			len(line.Values),
			line.Values[last],
			peak(line.Values),
			line.Dates[last].Format(time.DateOnly),
		)
	}
	_ = w.Flush()
	fmt.Fprintf(out, "run %s\n", run.ID)
}

func peak(values []float64) float64 {
	best := 0.0
	for i, value := range values {
		if i == 0 || value > best {
			best = value
		}
	}
	return best
}

type countrySummary struct {
	Country    string
	GeoID      string
	Continent  string
	Days       int
	First      time.Time
	Last       time.Time
	Population int64
}

func summarizeCountries(observations []model.Observation) []countrySummary {
	byCountry := make(map[string]*countrySummary)
	for _, observation := range observations {
		summary, ok := byCountry[observation.Country]
		if !ok {
			summary = &countrySummary{
				Country:   observation.Country,
				GeoID:     observation.GeoID,
				Continent: observation.Continent,
				First:     observation.Date,
				Last:      observation.Date,
			}
			byCountry[observation.Country] = summary
		}
		summary.Days++
		if observation.Date.Before(summary.First) {
			summary.First = observation.Date
		}
		if observation.Date.After(summary.Last) {
			summary.Last = observation.Date
		}
		if summary.Population <= 0 {
			summary.Population = observation.Population
		}
	}

	summaries := make([]countrySummary, 0, len(byCountry))
	for _, summary := range byCountry {
		summaries = append(summaries, *summary)
	}
	sort.Slice(summaries, func(i, j int) bool {
		return summaries[i].Country < summaries[j].Country
	})
	return summaries
}

func printCountries(out io.Writer, summaries []countrySummary) {
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "country\tgeo\tcontinent\tdays\tfrom\tto\tpopulation")
	for _, s := range summaries {
		fmt.Fprintf(w, "%s\t%s\t%s\t%d\t%s\t%s\t%d\n",
			s.Country, s.GeoID, s.Continent, s.Days,
			s.First.Format(time.DateOnly), s.Last.Format(time.DateOnly), s.Population,
		)
	}
	_ = w.Flush()
}
