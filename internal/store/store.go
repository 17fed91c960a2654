package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"covidtrend/internal/model"
)

var (
	ErrNoRuns        = errors.New("store: no trend runs recorded")
	ErrRunNotFound   = errors.New("store: trend run not found")
	ErrDuplicateLine = errors.New("store: duplicate trend line")
)

// Store keeps derived trend runs. Raw observations are never persisted. A run holds at most one
// line per country and metric; SaveRun rejects anything else with ErrDuplicateLine and stores
// nothing.
type Store interface {
	SaveRun(ctx context.Context, run model.TrendRun) error
	LatestRun(ctx context.Context) (model.TrendRun, error)
	Run(ctx context.Context, id string) (model.TrendRun, error)
	ListRuns(ctx context.Context, limit int) ([]RunSummary, error)
	Close() error
}

type RunSummary struct {
	ID         string
	CreatedAt  time.Time
	Source     string
	Metric     model.Metric
	Metrics    []model.Metric
	Alignment  model.Alignment
	PerMillion bool
	Window     int
	Countries  int
}

// MetricLabel is the run metric, or the line metrics joined with "+" for multi-metric runs.
func (s RunSummary) MetricLabel() string {
	if s.Metric != "" {
		return string(s.Metric)
	}
	return model.JoinMetrics(s.Metrics)
}

// CheckLines reports the first country and metric pair that appears twice in run.
func CheckLines(run model.TrendRun) error {
	type key struct {
		country string
		metric  model.Metric
	}
	seen := make(map[key]struct{}, len(run.Lines))
	for _, line := range run.Lines {
		metric := line.Metric
		if metric == "" {
			metric = run.Metric
		}
		k := key{country: line.Country, metric: metric}
		if _, ok := seen[k]; ok {
			return fmt.Errorf("%w: run %s has %s/%s twice", ErrDuplicateLine, run.ID, line.Country, metric)
		}
		seen[k] = struct{}{}
	}
	return nil
}

type NopStore struct{}

func (s *NopStore) SaveRun(ctx context.Context, run model.TrendRun) error {
	_ = ctx
	return CheckLines(run)
}

func (s *NopStore) LatestRun(ctx context.Context) (model.TrendRun, error) {
	_ = ctx
	return model.TrendRun{}, ErrNoRuns
}

func (s *NopStore) Run(ctx context.Context, id string) (model.TrendRun, error) {
	_ = ctx
	_ = id
	return model.TrendRun{}, ErrRunNotFound
}

func (s *NopStore) ListRuns(ctx context.Context, limit int) ([]RunSummary, error) {
	_ = ctx
	_ = limit
	return nil, nil
}

func (s *NopStore) Close() error {
	return nil
}
