package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"
	_ "modernc.org/sqlite"

	"covidtrend/internal/model"
	"covidtrend/internal/store"
)

// Fixed width so created_at sorts lexically.
const timeLayout = "2006-01-02T15:04:05.000000000Z07:00"

type Store struct {
	db *sqlx.DB
}

func New(path string) (*Store, error) {
	if path == "" {
		return nil, fmt.Errorf("sqlite: path is required")
	}

	db, err := sqlx.Open("sqlite", path)
	if err != nil {
		return nil, err
	}
	db.SetMaxOpenConns(1)

	s := &Store{db: db}
	if err := s.migrate(); err != nil {
		_ = db.Close()
		return nil, err
	}

	return s, nil
}

func (s *Store) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

func (s *Store) SaveRun(ctx context.Context, run model.TrendRun) (err error) {
	if run.ID == "" {
		return errors.New("sqlite: run id is required")
	}
	if err := store.CheckLines(run); err != nil {
		return err
	}
	if run.CreatedAt.IsZero() {
		run.CreatedAt = time.Now()
	}

	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	_, err = tx.ExecContext(ctx, `
		INSERT INTO trend_runs (
			run_id, created_at, source, metric, alignment, per_million, window_size
		) VALUES (?, ?, ?, ?, ?, ?, ?)
	`,
		run.ID,
		run.CreatedAt.UTC().Format(timeLayout),
		run.Source,
		string(run.Metric),
		string(run.Alignment),
		run.PerMillion,
		run.Window,
	)
	if err != nil {
		return err
	}

	lineStmt, err := tx.PrepareContext(ctx, `
		INSERT INTO trend_lines (run_id, country, metric, position) VALUES (?, ?, ?, ?)
	`)
	if err != nil {
		return err
	}
	defer lineStmt.Close()

	pointStmt, err := tx.PrepareContext(ctx, `
		INSERT INTO trend_line_points (run_id, country, metric, idx, day, value) VALUES (?, ?, ?, ?, ?, ?)
	`)
	if err != nil {
		return err
	}
	defer pointStmt.Close()

	for position, line := range run.Lines {
		metric := lineMetric(run, line)
		if _, err = lineStmt.ExecContext(ctx, run.ID, line.Country, metric, position); err != nil {
			return err
		}
		for i, value := range line.Values {
			var day any
			if i < len(line.Dates) && !line.Dates[i].IsZero() {
				day = line.Dates[i].Format(time.DateOnly)
			}
			if _, err = pointStmt.ExecContext(ctx, run.ID, line.Country, metric, i, day, value); err != nil {
				return err
			}
		}
	}

	return tx.Commit()
}

func lineMetric(run model.TrendRun, line model.TrendLine) string {
	if line.Metric != "" {
		return string(line.Metric)
	}
	return string(run.Metric)
}

type runRow struct {
	ID         string `db:"run_id"`
	CreatedAt  string `db:"created_at"`
	Source     string `db:"source"`
	Metric     string `db:"metric"`
	Alignment  string `db:"alignment"`
	PerMillion bool   `db:"per_million"`
	Window     int    `db:"window_size"`
	Countries  int    `db:"countries"`
}

type lineRow struct {
	Country string `db:"country"`
	Metric  string `db:"metric"`
}

type pointRow struct {
	Country string         `db:"country"`
	Metric  string         `db:"metric"`
	Index   int            `db:"idx"`
	Day     sql.NullString `db:"day"`
	Value   float64        `db:"value"`
}

const selectRuns = `
	SELECT r.run_id, r.created_at, r.source, r.metric, r.alignment, r.per_million, r.window_size,
		(SELECT COUNT(DISTINCT l.country) FROM trend_lines l WHERE l.run_id = r.run_id) AS countries
	FROM trend_runs r
`

func (s *Store) ListRuns(ctx context.Context, limit int) ([]store.RunSummary, error) {
	query := selectRuns + " ORDER BY r.created_at DESC, r.rowid DESC"
	args := []any{}
	if limit > 0 {
		query += " LIMIT ?"
		args = append(args, limit)
	}

	var rows []runRow
	if err := s.db.SelectContext(ctx, &rows, query, args...); err != nil {
		return nil, err
	}

	summaries := make([]store.RunSummary, 0, len(rows))
	for _, row := range rows {
		summary, err := s.summary(ctx, row)
		if err != nil {
			return nil, err
		}
		summaries = append(summaries, summary)
	}
	return summaries, nil
}

func (s *Store) LatestRun(ctx context.Context) (model.TrendRun, error) {
	summaries, err := s.ListRuns(ctx, 1)
	if err != nil {
		return model.TrendRun{}, err
	}
	if len(summaries) == 0 {
		return model.TrendRun{}, store.ErrNoRuns
	}
	return s.loadRun(ctx, summaries[0])
}

func (s *Store) Run(ctx context.Context, id string) (model.TrendRun, error) {
	var row runRow
	err := s.db.GetContext(ctx, &row, selectRuns+" WHERE r.run_id = ?", id)
	if errors.Is(err, sql.ErrNoRows) {
		return model.TrendRun{}, fmt.Errorf("%w: %s", store.ErrRunNotFound, id)
	}
	if err != nil {
		return model.TrendRun{}, err
	}
	summary, err := s.summary(ctx, row)
	if err != nil {
		return model.TrendRun{}, err
	}
	return s.loadRun(ctx, summary)
}

func (s *Store) loadRun(ctx context.Context, summary store.RunSummary) (model.TrendRun, error) {
	run := model.TrendRun{
		ID:         summary.ID,
		CreatedAt:  summary.CreatedAt,
		Source:     summary.Source,
		Metric:     summary.Metric,
		Alignment:  summary.Alignment,
		PerMillion: summary.PerMillion,
		Window:     summary.Window,
	}

	var lineRows []lineRow
	if err := s.db.SelectContext(ctx, &lineRows, `
		SELECT country, metric FROM trend_lines WHERE run_id = ? ORDER BY position
	`, summary.ID); err != nil {
		return model.TrendRun{}, err
	}

	var points []pointRow
	if err := s.db.SelectContext(ctx, &points, `
		SELECT country, metric, idx, day, value FROM trend_line_points
		WHERE run_id = ? ORDER BY country, metric, idx
	`, summary.ID); err != nil {
		return model.TrendRun{}, err
	}

	lines := make(map[lineRow]*model.TrendLine, len(lineRows))
	run.Lines = make([]model.TrendLine, len(lineRows))
	for i, row := range lineRows {
		run.Lines[i] = model.TrendLine{
			Country: row.Country,
			Metric:  model.Metric(row.Metric),
			Dates:   []time.Time{},
			Values:  []float64{},
		}
		lines[row] = &run.Lines[i]
	}
	for _, point := range points {
		line, ok := lines[lineRow{Country: point.Country, Metric: point.Metric}]
		if !ok {
			continue
		}
		var day time.Time
		if point.Day.Valid {
			parsed, err := time.Parse(time.DateOnly, point.Day.String)
			if err != nil {
				return model.TrendRun{}, fmt.Errorf("sqlite: run %s: %w", summary.ID, err)
			}
			day = parsed
		}
		line.Dates = append(line.Dates, day)
		line.Values = append(line.Values, point.Value)
	}
	return run, nil
}

func (s *Store) summary(ctx context.Context, r runRow) (store.RunSummary, error) {
	createdAt, err := time.Parse(timeLayout, r.CreatedAt)
	if err != nil {
		return store.RunSummary{}, fmt.Errorf("sqlite: run %s: %w", r.ID, err)
	}

	var metrics []string
	if err := s.db.SelectContext(ctx, &metrics, `
		SELECT metric FROM trend_lines WHERE run_id = ? GROUP BY metric ORDER BY MIN(position)
	`, r.ID); err != nil {
		return store.RunSummary{}, err
	}

	summary := store.RunSummary{
		ID:         r.ID,
		CreatedAt:  createdAt,
		Source:     r.Source,
		Metric:     model.Metric(r.Metric),
		Metrics:    make([]model.Metric, len(metrics)),
		Alignment:  model.Alignment(r.Alignment),
		PerMillion: r.PerMillion,
		Window:     r.Window,
		Countries:  r.Countries,
	}
	for i, metric := range metrics {
		summary.Metrics[i] = model.Metric(metric)
	}
	return summary, nil
}

func (s *Store) migrate() error {
	statements := []string{
		`PRAGMA foreign_keys = ON;`,
		`CREATE TABLE IF NOT EXISTS trend_runs (
			run_id TEXT NOT NULL PRIMARY KEY,
			created_at TEXT NOT NULL,
			source TEXT NOT NULL,
			metric TEXT NOT NULL,
			alignment TEXT NOT NULL,
			per_million INTEGER NOT NULL,
			window_size INTEGER NOT NULL
		);`,
		`CREATE TABLE IF NOT EXISTS trend_lines (
			run_id TEXT NOT NULL REFERENCES trend_runs(run_id) ON DELETE CASCADE,
			country TEXT NOT NULL,
			metric TEXT NOT NULL,
			position INTEGER NOT NULL,
			PRIMARY KEY (run_id, country, metric)
		);`,
		`CREATE TABLE IF NOT EXISTS trend_line_points (
			run_id TEXT NOT NULL,
			country TEXT NOT NULL,
			metric TEXT NOT NULL,
			idx INTEGER NOT NULL,
			day TEXT,
			value REAL NOT NULL,
			PRIMARY KEY (run_id, country, metric, idx),
			FOREIGN KEY (run_id, country, metric) REFERENCES trend_lines(run_id, country, metric) ON DELETE CASCADE
		);`,
	}

	for _, statement := range statements {
		if _, err := s.db.Exec(statement); err != nil {
			return err
		}
	}

	return nil
}

var _ store.Store = (*Store)(nil)
