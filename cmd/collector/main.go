package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	"covidtrend/internal/config"
	"covidtrend/internal/logging"
	"covidtrend/internal/model"
	"covidtrend/internal/providers"
	"covidtrend/internal/providers/ecdc"
	"covidtrend/internal/store"
	"covidtrend/internal/store/sqlite"
)

func main() {
	if err := run(os.Args[1:], os.Stdout); err != nil {
		fmt.Fprintln(os.Stderr, "collector run failed:", err)
		os.Exit(1)
	}
}

func run(args []string, stdout io.Writer) error {
	root, state := newRootCmd()
	root.SetArgs(args)
	root.SetOut(stdout)
	err := root.Execute()
	return errors.Join(err, state.close())
}

type globalOptions struct {
	configPath  string
	dbPath      string
	metricsFile string
	verbose     bool
}

// app carries what every subcommand needs once flags and config are resolved.
type app struct {
	cfg      config.Config
	provider providers.Provider
	store    store.Store
	registry *prometheus.Registry
	metrics  *collectorMetrics
}

func newRootCmd() (*cobra.Command, *app) {
	opts := &globalOptions{}
	state := &app{}

	root := &cobra.Command{
		Use:           "collector",
		Short:         "Fetch the ECDC case distribution and derive moving-average trends",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			logging.Setup(opts.verbose)
			return state.setup(cmd.Flags(), opts)
		},
	}

	flags := root.PersistentFlags()
	flags.StringVar(&opts.configPath, "config", "", "path to YAML config file")
	flags.StringVar(&opts.dbPath, "db", "", "sqlite database path (empty disables persistence; default from config)")
	flags.StringVar(&opts.metricsFile, "metrics-file", "", "write Prometheus metrics to this textfile after the run")
	flags.BoolVar(&opts.verbose, "verbose", false, "debug logging")

	root.AddCommand(newCountryCmd(state), newCompareCmd(state), newCountriesCmd(state))
	return root, state
}

func (a *app) setup(flags *pflag.FlagSet, opts *globalOptions) error {
	cfg, err := config.Load(opts.configPath)
	if err != nil {
		return err
	}
	if flags.Changed("db") {
		cfg.Storage.DBPath = opts.dbPath
	}
	if flags.Changed("metrics-file") {
		cfg.Storage.MetricsFile = opts.metricsFile
	}
	a.cfg = cfg

	a.registry = prometheus.NewRegistry()
	a.metrics = newCollectorMetrics(a.registry)

	provider, err := ecdc.NewWithConfig(cfg.ECDC(), ecdc.NewMetrics(a.registry))
	if err != nil {
		return err
	}
	a.provider = provider

	st, err := openStore(cfg.Storage.DBPath)
	if err != nil {
		return err
	}
	a.store = st
	return nil
}

func (a *app) close() error {
	var errs []error
	if a.store != nil {
		errs = append(errs, a.store.Close())
		a.store = nil
	}
	if path := strings.TrimSpace(a.cfg.Storage.MetricsFile); path != "" && a.registry != nil {
		if err := prometheus.WriteToTextfile(path, a.registry); err != nil {
			errs = append(errs, fmt.Errorf("write metrics: %w", err))
		}
	}
	return errors.Join(errs...)
}

func (a *app) fetch(ctx context.Context) ([]model.Observation, error) {
	observations, err := a.provider.FetchObservations(ctx)
	if err != nil {
		return nil, fmt.Errorf("fetch %s: %w", a.provider.Name(), err)
	}
	return observations, nil
}

func (a *app) save(ctx context.Context, run model.TrendRun) error {
	if err := a.store.SaveRun(ctx, run); err != nil {
		return fmt.Errorf("save run %s: %w", run.ID, err)
	}
	a.metrics.observeRun(run)
	log.Debug().Str("run", run.ID).Str("metric", run.MetricLabel()).Int("lines", len(run.Lines)).Msg("run stored")
	return nil
}

func (a *app) newRun(metric model.Metric, alignment model.Alignment, perMillion bool, window int) model.TrendRun {
	source := a.provider.Name()
	if p, ok := a.provider.(*ecdc.Provider); ok {
		source = p.URL()
	}
	return model.TrendRun{
		ID:         uuid.NewString(),
		CreatedAt:  time.Now().UTC(),
		Source:     source,
		Metric:     metric,
		Alignment:  alignment,
		PerMillion: perMillion,
		Window:     window,
	}
}

func openStore(path string) (store.Store, error) {
	if strings.TrimSpace(path) == "" {
		return &store.NopStore{}, nil
	}
	return sqlite.New(path)
}

// parseList trims, drops empties and removes repeats while keeping order. Country names are
// matched exactly, so case is preserved.
func parseList(values []string) []string {
	seen := make(map[string]struct{}, len(values))
	items := make([]string, 0, len(values))
	for _, value := range values {
		for _, item := range strings.Split(value, ",") {
			trimmed := strings.TrimSpace(item)
			if trimmed == "" {
				continue
			}
			if _, ok := seen[trimmed]; ok {
				continue
			}
			seen[trimmed] = struct{}{}
			items = append(items, trimmed)
		}
	}
	return items
}
