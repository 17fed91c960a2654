package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"covidtrend/internal/providers/ecdc"
)

const envPrefix = "COVIDTREND_"

// Config is the optional YAML file. Environment variables override it; command flags override both.
type Config struct {
	Source   SourceConfig   `yaml:"source"`
	Analysis AnalysisConfig `yaml:"analysis"`
	Storage  StorageConfig  `yaml:"storage"`
}

type SourceConfig struct {
	URL                   string `yaml:"url"`
	TimeoutSeconds        int    `yaml:"timeout_seconds"`
	AttemptTimeoutSeconds int    `yaml:"attempt_timeout_seconds"`
	MaxRetries            int    `yaml:"max_retries"`
	BackoffMinMs          int    `yaml:"backoff_min_ms"`
	BackoffMaxMs          int    `yaml:"backoff_max_ms"`
	UserAgent             string `yaml:"user_agent"`
	PopulationField       string `yaml:"population_field"`
}

type AnalysisConfig struct {
	Window     int    `yaml:"window"`
	Metric     string `yaml:"metric"`
	Alignment  string `yaml:"alignment"`
	PerMillion bool   `yaml:"per_million"`
}

type StorageConfig struct {
	DBPath      string `yaml:"db"`
	OutDir      string `yaml:"out"`
	MetricsFile string `yaml:"metrics_file"`
}

func Default() Config {
	source := ecdc.DefaultConfig()
	return Config{
		Source: SourceConfig{
			URL:                   source.URL,
			TimeoutSeconds:        int(source.Timeout / time.Second),
			AttemptTimeoutSeconds: int(source.AttemptTimeout / time.Second),
			MaxRetries:            source.MaxRetries,
			BackoffMinMs:          int(source.BackoffMin / time.Millisecond),
			BackoffMaxMs:          int(source.BackoffMax / time.Millisecond),
			UserAgent:             source.UserAgent,
		},
		Analysis: AnalysisConfig{
			Window:     7,
			Metric:     "cases",
			Alignment:  "from-first-nonzero",
			PerMillion: true,
		},
		Storage: StorageConfig{
			DBPath: "covidtrend.db",
			OutDir: "site/data",
		},
	}
}

// Load reads path over the defaults and applies COVIDTREND_* variables. An empty path skips the
// file; a named file that does not exist is an error.
func Load(path string) (Config, error) {
	cfg := Default()
	if strings.TrimSpace(path) != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return Config{}, err
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return Config{}, fmt.Errorf("config: %s: %w", path, err)
		}
	}
	cfg.applyEnv()
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (c *Config) applyEnv() {
	c.Source.URL = getenv("SOURCE_URL", c.Source.URL)
	c.Source.TimeoutSeconds = getenvInt("SOURCE_TIMEOUT_SECONDS", c.Source.TimeoutSeconds)
	c.Source.AttemptTimeoutSeconds = getenvInt("SOURCE_ATTEMPT_TIMEOUT_SECONDS", c.Source.AttemptTimeoutSeconds)
	c.Source.MaxRetries = getenvInt("SOURCE_MAX_RETRIES", c.Source.MaxRetries)
	c.Source.BackoffMinMs = getenvInt("SOURCE_BACKOFF_MIN_MS", c.Source.BackoffMinMs)
	c.Source.BackoffMaxMs = getenvInt("SOURCE_BACKOFF_MAX_MS", c.Source.BackoffMaxMs)
	c.Source.UserAgent = getenv("SOURCE_USER_AGENT", c.Source.UserAgent)
	c.Source.PopulationField = getenv("SOURCE_POPULATION_FIELD", c.Source.PopulationField)

	c.Analysis.Window = getenvInt("WINDOW", c.Analysis.Window)
	c.Analysis.Metric = getenv("METRIC", c.Analysis.Metric)
	c.Analysis.Alignment = getenv("ALIGNMENT", c.Analysis.Alignment)
	c.Analysis.PerMillion = getenvBool("PER_MILLION", c.Analysis.PerMillion)

	c.Storage.DBPath = getenvAllowEmpty("DB", c.Storage.DBPath)
	c.Storage.OutDir = getenv("OUT", c.Storage.OutDir)
	c.Storage.MetricsFile = getenv("METRICS_FILE", c.Storage.MetricsFile)
}

func (c Config) Validate() error {
	if strings.TrimSpace(c.Source.URL) == "" {
		return errors.New("config: source.url is required")
	}
	if c.Analysis.Window < 1 {
		return fmt.Errorf("config: analysis.window must be at least 1, got %d", c.Analysis.Window)
	}
	if c.Source.MaxRetries < 0 {
		return fmt.Errorf("config: source.max_retries must not be negative, got %d", c.Source.MaxRetries)
	}
	return nil
}

func (c Config) ECDC() ecdc.Config {
	return ecdc.Config{
		URL:             c.Source.URL,
		Timeout:         time.Duration(c.Source.TimeoutSeconds) * time.Second,
		AttemptTimeout:  time.Duration(c.Source.AttemptTimeoutSeconds) * time.Second,
		MaxRetries:      c.Source.MaxRetries,
		BackoffMin:      time.Duration(c.Source.BackoffMinMs) * time.Millisecond,
		BackoffMax:      time.Duration(c.Source.BackoffMaxMs) * time.Millisecond,
		UserAgent:       c.Source.UserAgent,
		PopulationField: c.Source.PopulationField,
	}
}

func getenv(key, fallback string) string {
	value := strings.TrimSpace(os.Getenv(envPrefix + key))
	if value == "" {
		return fallback
	}
	return value
}

// getenvAllowEmpty lets a set-but-empty variable clear the value.
func getenvAllowEmpty(key, fallback string) string {
	value, ok := os.LookupEnv(envPrefix + key)
	if !ok {
		return fallback
	}
	return strings.TrimSpace(value)
}

func getenvInt(key string, fallback int) int {
	value := strings.TrimSpace(os.Getenv(envPrefix + key))
	if value == "" {
		return fallback
	}
	parsed, err := strconv.Atoi(value)
	if err != nil {
		return fallback
	}
	return parsed
}

func getenvBool(key string, fallback bool) bool {
	value := strings.TrimSpace(os.Getenv(envPrefix + key))
	if value == "" {
		return fallback
	}
	switch strings.ToLower(value) {
	case "1", "true", "yes", "y":
		return true
	case "0", "false", "no", "n":
		return false
	default:
		return fallback
	}
}
