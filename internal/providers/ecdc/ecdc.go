package ecdc

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/failsafe-go/failsafe-go/failsafehttp"
	"github.com/rs/zerolog/log"

	"covidtrend/internal/model"
	"covidtrend/internal/providers"
)

const (
	DefaultURL                   = "https://opendata.ecdc.europa.eu/covid19/casedistribution/csv"
	defaultTimeoutSeconds        = 120
	defaultAttemptTimeoutSeconds = 60
	defaultMaxRetries            = 2
	defaultBackoffMin            = 500 * time.Millisecond
	defaultBackoffMax            = 10 * time.Second
	defaultUserAgent             = "covidtrend/0.1"
)

type Config struct {
	URL             string
	Timeout         time.Duration
	AttemptTimeout  time.Duration
	MaxRetries      int
	BackoffMin      time.Duration
	BackoffMax      time.Duration
	UserAgent       string
	PopulationField string
}

func DefaultConfig() Config {
	return Config{
		URL:            DefaultURL,
		Timeout:        defaultTimeoutSeconds * time.Second,
		AttemptTimeout: defaultAttemptTimeoutSeconds * time.Second,
		MaxRetries:     defaultMaxRetries,
		BackoffMin:     defaultBackoffMin,
		BackoffMax:     defaultBackoffMax,
		UserAgent:      defaultUserAgent,
	}
}

type Provider struct {
	config  Config
	client  *http.Client
	metrics *Metrics
}

// NewWithConfig fills unset fields with defaults. A nil metrics value records into unregistered
// collectors.
func NewWithConfig(cfg Config, metrics *Metrics) (*Provider, error) {
	if strings.TrimSpace(cfg.URL) == "" {
		return nil, errors.New("ecdc url is required")
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = defaultTimeoutSeconds * time.Second
	}
	if cfg.AttemptTimeout <= 0 {
		cfg.AttemptTimeout = defaultAttemptTimeoutSeconds * time.Second
	}
	if cfg.MaxRetries < 0 {
		cfg.MaxRetries = 0
	}
	if cfg.BackoffMin <= 0 {
		cfg.BackoffMin = defaultBackoffMin
	}
	if cfg.BackoffMax < cfg.BackoffMin {
		cfg.BackoffMax = cfg.BackoffMin
	}
	if cfg.UserAgent == "" {
		cfg.UserAgent = defaultUserAgent
	}
	if metrics == nil {
		metrics = NewMetrics(nil)
	}

	retryPolicy := failsafehttp.NewRetryPolicyBuilder().
		WithMaxRetries(cfg.MaxRetries).
		WithBackoff(cfg.BackoffMin, cfg.BackoffMax).
		ReturnLastFailure().
		Build()

	// The attempt limit covers waiting for headers only; the body is read after the round trip returns.
	base := http.DefaultTransport.(*http.Transport).Clone()
	base.ResponseHeaderTimeout = cfg.AttemptTimeout

	transport := failsafehttp.NewRoundTripper(&attemptCounter{next: base, metrics: metrics}, retryPolicy)
	return &Provider{
		config:  cfg,
		client:  &http.Client{Timeout: cfg.Timeout, Transport: transport},
		metrics: metrics,
	}, nil
}

func (p *Provider) Name() string {
	return "ecdc"
}

func (p *Provider) URL() string {
	return p.config.URL
}

func (p *Provider) FetchObservations(ctx context.Context) ([]model.Observation, error) {
	started := time.Now()
	body, err := p.doRequest(ctx, "text/csv")
	if err != nil {
		p.metrics.Failures.Inc()
		return nil, err
	}

	observations, stats, err := ParseCSV(bytes.NewReader(body), p.config.PopulationField)
	p.metrics.observeParse(stats)
	if err != nil {
		p.metrics.Failures.Inc()
		return nil, err
	}

	log.Info().
		Str("provider", p.Name()).
		Int("bytes", len(body)).
		Int("rows", stats.Rows).
		Int("skipped", stats.Skipped).
		Int("clamped", stats.Clamped).
		Dur("elapsed", time.Since(started)).
		Msg("dataset fetched")
	return observations, nil
}

func (p *Provider) doRequest(ctx context.Context, accept string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, p.config.URL, nil)
	if err != nil {
		return nil, err
	}
	if accept != "" {
		req.Header.Set("Accept", accept)
	}
	if p.config.UserAgent != "" {
		req.Header.Set("User-Agent", p.config.UserAgent)
	}

	resp, err := p.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}

	if resp.StatusCode < http.StatusOK || resp.StatusCode >= http.StatusMultipleChoices {
		return nil, fmt.Errorf("ecdc: request failed (%s): %s", resp.Status, truncate(strings.TrimSpace(string(body)), 200))
	}
	if len(bytes.TrimSpace(body)) == 0 {
		return nil, ErrNoRecords
	}
	return body, nil
}

type attemptCounter struct {
	next    http.RoundTripper
	metrics *Metrics
}

func (a *attemptCounter) RoundTrip(req *http.Request) (*http.Response, error) {
	a.metrics.Attempts.Inc()
	resp, err := a.next.RoundTrip(req)
	if err != nil {
		log.Warn().Err(err).Str("url", req.URL.Redacted()).Msg("dataset request attempt failed")
		return nil, err
	}
	if resp.StatusCode >= http.StatusInternalServerError || resp.StatusCode == http.StatusTooManyRequests {
		log.Warn().Int("status", resp.StatusCode).Str("url", req.URL.Redacted()).Msg("dataset request attempt failed")
	}
	return resp, nil
}

func truncate(value string, limit int) string {
	if len(value) <= limit {
		return value
	}
	return value[:limit] + "..."
}

var _ providers.Provider = (*Provider)(nil)
