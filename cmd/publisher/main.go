package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"text/tabwriter"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"covidtrend/internal/config"
	"covidtrend/internal/logging"
	"covidtrend/internal/model"
	"covidtrend/internal/store"
	"covidtrend/internal/store/sqlite"
)

// palette mirrors the matplotlib single-letter colours; series beyond its length wrap around.
var palette = []string{"blue", "green", "red", "cyan", "magenta", "yellow", "black"}

// metricColors are used when one country's metrics share a chart, each on its own axis.
var metricColors = map[model.Metric]string{
	model.MetricCases:  "blue",
	model.MetricDeaths: "red",
}

type metaFile struct {
	GeneratedAt string `json:"generated_at"`
	RunID       string `json:"run_id"`
	RunAt       string `json:"run_at"`
	Source      string `json:"source"`
}

type trendsFile struct {
	GeneratedAt string        `json:"generated_at"`
	Title       string        `json:"title"`
	XLabel      string        `json:"x_label"`
	YLabel      string        `json:"y_label"`
	Y2Label     string        `json:"y2_label,omitempty"`
	Metric      string        `json:"metric"`
	Alignment   string        `json:"alignment"`
	PerMillion  bool          `json:"per_million"`
	Window      int           `json:"window"`
	Series      []chartSeries `json:"series"`
}

type chartSeries struct {
	Country string    `json:"country"`
	Metric  string    `json:"metric"`
	Axis    string    `json:"axis"`
	Color   string    `json:"color"`
	X       []string  `json:"x"`
	Y       []float64 `json:"y"`
}

type options struct {
	configPath string
	dbPath     string
	verbose    bool
}

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "publisher failed:", err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	opts := &options{}
	root := &cobra.Command{
		Use:           "publisher",
		Short:         "Turn stored trend runs into chart-ready JSON",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			logging.Setup(opts.verbose)
		},
	}
	root.PersistentFlags().StringVar(&opts.configPath, "config", "", "path to YAML config file")
	root.PersistentFlags().StringVar(&opts.dbPath, "db", "", "sqlite database path (default from config)")
	root.PersistentFlags().BoolVar(&opts.verbose, "verbose", false, "debug logging")

	root.AddCommand(newBuildCmd(opts), newRunsCmd(opts))
	return root
}

func newBuildCmd(opts *options) *cobra.Command {
	var (
		outDir string
		runID  string
	)
	cmd := &cobra.Command{
		Use:   "build",
		Short: "Write meta.json and trends.json for a stored run",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, st, err := openFromOptions(cmd, opts)
			if err != nil {
				return err
			}
			defer st.Close()
			if !cmd.Flags().Changed("out") {
				outDir = cfg.Storage.OutDir
			}
			return build(cmd.Context(), st, outDir, runID, cmd.OutOrStdout())
		},
	}
	cmd.Flags().StringVar(&outDir, "out", "site/data", "output directory")
	cmd.Flags().StringVar(&runID, "run", "", "run id to publish (default: latest)")
	return cmd
}

func newRunsCmd(opts *options) *cobra.Command {
	var limit int
	cmd := &cobra.Command{
		Use:   "runs",
		Short: "List stored trend runs, newest first",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			_, st, err := openFromOptions(cmd, opts)
			if err != nil {
				return err
			}
			defer st.Close()

			summaries, err := st.ListRuns(cmd.Context(), limit)
			if err != nil {
				return err
			}
			printRuns(cmd.OutOrStdout(), summaries)
			return nil
		},
	}
	cmd.Flags().IntVar(&limit, "limit", 20, "maximum runs to list (0 = all)")
	return cmd
}

func openFromOptions(cmd *cobra.Command, opts *options) (config.Config, store.Store, error) {
	cfg, err := config.Load(opts.configPath)
	if err != nil {
		return config.Config{}, nil, err
	}
	if cmd.Flags().Changed("db") {
		cfg.Storage.DBPath = opts.dbPath
	}
	if cfg.Storage.DBPath == "" {
		return config.Config{}, nil, errors.New("db path is required")
	}
	st, err := sqlite.New(cfg.Storage.DBPath)
	if err != nil {
		return config.Config{}, nil, err
	}
	return cfg, st, nil
}

func build(ctx context.Context, st store.Store, outDir, runID string, out io.Writer) error {
	run, err := selectRun(ctx, st, runID)
	if err != nil {
		return err
	}

	if err := os.MkdirAll(outDir, 0o755); err != nil {
		return fmt.Errorf("create output dir: %w", err)
	}

	now := time.Now().UTC().Format(time.RFC3339)
	meta := metaFile{
		GeneratedAt: now,
		RunID:       run.ID,
		RunAt:       run.CreatedAt.UTC().Format(time.RFC3339),
		Source:      run.Source,
	}
	if err := writeJSON(filepath.Join(outDir, "meta.json"), meta); err != nil {
		return fmt.Errorf("write meta.json: %w", err)
	}

	trends := buildTrends(run)
	trends.GeneratedAt = now
	if err := writeJSON(filepath.Join(outDir, "trends.json"), trends); err != nil {
		return fmt.Errorf("write trends.json: %w", err)
	}

	log.Info().Str("run", run.ID).Int("series", len(trends.Series)).Msg("trends published")
	fmt.Fprintf(out, "publisher build complete (out=%s run=%s)\n", outDir, run.ID)
	return nil
}

func selectRun(ctx context.Context, st store.Store, runID string) (model.TrendRun, error) {
	if runID == "" {
		return st.LatestRun(ctx)
	}
	return st.Run(ctx, runID)
}

// buildTrends assigns palette colours in country order. Countries without history are left out
// of the chart. A run covering several metrics keeps its line order and puts every metric after
// the first on a secondary axis.
func buildTrends(run model.TrendRun) trendsFile {
	metrics := run.Metrics()
	multiMetric := len(metrics) > 1

	lines := make([]model.TrendLine, 0, len(run.Lines))
	for _, line := range run.Lines {
		if line.Empty() {
			log.Debug().Str("country", line.Country).Msg("skipping empty series")
			continue
		}
		lines = append(lines, line)
	}
	if !multiMetric {
		sort.SliceStable(lines, func(i, j int) bool {
			return lines[i].Country < lines[j].Country
		})
	}

	trends := trendsFile{
		Title:      chartTitle(run),
		XLabel:     "Date",
		YLabel:     yLabel(run, model.Metric(run.MetricLabel())),
		Metric:     run.MetricLabel(),
		Alignment:  string(run.Alignment),
		PerMillion: run.PerMillion,
		Window:     run.Window,
		Series:     make([]chartSeries, 0, len(lines)),
	}
	if run.Alignment == model.AlignFromFirstNonzero {
		trends.XLabel = "Days"
	}

	if multiMetric {
		trends.YLabel = yLabel(run, metrics[0])
		trends.Y2Label = yLabel(run, metrics[1])
	}

	for i, line := range lines {
		metric := line.Metric
		if metric == "" {
			metric = run.Metric
		}
		series := chartSeries{
			Country: line.Country,
			Metric:  string(metric),
			Axis:    "y",
			Color:   palette[i%len(palette)],
			X:       make([]string, len(line.Values)),
			Y:       line.Values,
		}
		if multiMetric {
			if metric != metrics[0] {
				series.Axis = "y2"
			}
			if color, ok := metricColors[metric]; ok {
				series.Color = color
			}
		}
		for j := range line.Values {
			if run.Alignment == model.AlignFromFirstNonzero || j >= len(line.Dates) {
				// day offset of the window's last day from the country's first nonzero day
				series.X[j] = fmt.Sprintf("%d", j+run.Window-1)
				continue
			}
			series.X[j] = line.Dates[j].Format(time.DateOnly)
		}
		trends.Series = append(trends.Series, series)
	}
	return trends
}

func chartTitle(run model.TrendRun) string {
	if run.Metric == "" && len(run.Lines) > 0 {
		return fmt.Sprintf("Moving %d-days average for %s", run.Window, run.Lines[0].Country)
	}
	title := fmt.Sprintf("Moving %d-days average of %s", run.Window, run.Metric)
	if run.PerMillion {
		title += " per 1 million"
	}
	if run.Alignment == model.AlignFromFirstNonzero {
		title += fmt.Sprintf(" (from 1st %s)", run.Metric)
	}
	return title
}

func yLabel(run model.TrendRun, metric model.Metric) string {
	if run.PerMillion {
		return string(metric) + " per 1M"
	}
	return string(metric)
}

func writeJSON(path string, value any) error {
	file, err := os.Create(path)
	if err != nil {
		return err
	}
	defer file.Close()

	encoder := json.NewEncoder(file)
	encoder.SetIndent("", "  ")
	return encoder.Encode(value)
}

func printRuns(out io.Writer, summaries []store.RunSummary) {
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "run\tcreated\tmetric\talignment\tper_million\twindow\tcountries")
	for _, s := range summaries {
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%t\t%d\t%d\n",
			s.ID, s.CreatedAt.UTC().Format(time.RFC3339), s.MetricLabel(), s.Alignment, s.PerMillion, s.Window, s.Countries,
		)
	}
	_ = w.Flush()
}
