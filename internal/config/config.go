package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/robfig/cron/v3"
)

// Config holds all configuration for the application
type Config struct {
	Server    ServerConfig
	Database  DatabaseConfig
	CORS      CORSConfig
	Log       LogConfig
	Provider  ProviderConfig
	Fetch     FetchConfig
	Quality   QualityConfig
	Update    UpdateConfig
	Indicator IndicatorConfig
	Export    ExportConfig
}

// ServerConfig holds server-specific configuration
type ServerConfig struct {
	Port string
	Host string
	Addr string // Combined host:port for convenience
}

// DatabaseConfig holds database-specific configuration
type DatabaseConfig struct {
	Path     string
	StateDir string // run lock and last-success file
}

// CORSConfig holds CORS-specific configuration
type CORSConfig struct {
	AllowedOrigins []string
}

// LogConfig holds logging configuration
type LogConfig struct {
	Level string
}

// ProviderConfig describes the upstream market-data provider.
type ProviderConfig struct {
	BaseURL string
	Timeout time.Duration
}

// FetchConfig controls throttling, retries and fetch windows.
type FetchConfig struct {
	MinInterval        time.Duration
	MaxRetries         int
	BackoffBase        time.Duration
	BackoffMax         time.Duration
	HistoryYears       int
	RefetchOverlapDays int
}

// QualityConfig holds anomaly detection thresholds.
type QualityConfig struct {
	GapThresholdDays int
	OutlierThreshold float64
}

// UpdateConfig controls the orchestrator.
type UpdateConfig struct {
	StalenessThreshold time.Duration
	FailureTolerance   float64
	Cron               string
}

// IndicatorConfig lists the calculation versions refreshed after each merge.
type IndicatorConfig struct {
	Versions []string
}

// ExportConfig holds the Parquet snapshot destination.
type ExportConfig struct {
	Dir string
}

// Load reads configuration from environment variables and .env file
func Load() (*Config, error) {
	// Try to load .env file (ignore error if it doesn't exist)
	_ = godotenv.Load()

	p := &parser{}

	dbPath := getEnv("DB_PATH", "./data/market_data.db")
	config := &Config{
		Server: ServerConfig{
			Port: getEnv("SERVER_PORT", "5002"),
			Host: getEnv("SERVER_HOST", "localhost"),
		},
		Database: DatabaseConfig{
			Path:     dbPath,
			StateDir: getEnv("STATE_DIR", filepath.Dir(dbPath)),
		},
		CORS: CORSConfig{
			AllowedOrigins: splitList(getEnv("CORS_ALLOWED_ORIGINS", "http://localhost:3000,http://localhost")),
		},
		Log: LogConfig{
			Level: getEnv("LOG_LEVEL", "info"),
		},
		Provider: ProviderConfig{
			BaseURL: getEnv("PROVIDER_BASE_URL", "https://query2.finance.yahoo.com"),
			Timeout: p.duration("PROVIDER_TIMEOUT", "30s"),
		},
		Fetch: FetchConfig{
			MinInterval:        p.duration("FETCH_MIN_INTERVAL", "1s"),
			MaxRetries:         p.integer("FETCH_MAX_RETRIES", "3"),
			BackoffBase:        p.duration("FETCH_BACKOFF_BASE", "2s"),
			BackoffMax:         p.duration("FETCH_BACKOFF_MAX", "30s"),
			HistoryYears:       p.integer("HISTORY_YEARS", "20"),
			RefetchOverlapDays: p.integer("REFETCH_OVERLAP_DAYS", "0"),
		},
		Quality: QualityConfig{
			GapThresholdDays: p.integer("GAP_THRESHOLD_DAYS", "7"),
			OutlierThreshold: p.float("OUTLIER_THRESHOLD", "0.20"),
		},
		Update: UpdateConfig{
			StalenessThreshold: p.duration("STALENESS_THRESHOLD", "23h"),
			FailureTolerance:   p.float("FAILURE_TOLERANCE", "0.5"),
			Cron:               getEnv("UPDATE_CRON", "0 30 22 * * 1-5"),
		},
		Indicator: IndicatorConfig{
			Versions: splitList(getEnv("INDICATOR_VERSIONS", "v1")),
		},
		Export: ExportConfig{
			Dir: getEnv("EXPORT_DIR", "./export"),
		},
	}

	if p.err != nil {
		return nil, p.err
	}

	// Combine host and port
	config.Server.Addr = fmt.Sprintf("%s:%s", config.Server.Host, config.Server.Port)

	if err := config.Validate(); err != nil {
		return nil, err
	}
	return config, nil
}

// Validate rejects values the pipeline cannot run with.
func (c *Config) Validate() error {
	var errs []error
	if c.Database.Path == "" {
		errs = append(errs, errors.New("DB_PATH must not be empty"))
	}
	if c.Fetch.MinInterval < 0 {
		errs = append(errs, errors.New("FETCH_MIN_INTERVAL must not be negative"))
	}
	if c.Fetch.MaxRetries < 0 {
		errs = append(errs, errors.New("FETCH_MAX_RETRIES must not be negative"))
	}
	if c.Fetch.BackoffBase <= 0 {
		errs = append(errs, errors.New("FETCH_BACKOFF_BASE must be positive"))
	}
	if c.Fetch.BackoffMax < c.Fetch.BackoffBase {
		errs = append(errs, errors.New("FETCH_BACKOFF_MAX must be at least FETCH_BACKOFF_BASE"))
	}
	if c.Fetch.HistoryYears <= 0 {
		errs = append(errs, errors.New("HISTORY_YEARS must be positive"))
	}
	if c.Fetch.RefetchOverlapDays < 0 {
		errs = append(errs, errors.New("REFETCH_OVERLAP_DAYS must not be negative"))
	}
	if c.Quality.GapThresholdDays <= 0 {
		errs = append(errs, errors.New("GAP_THRESHOLD_DAYS must be positive"))
	}
	if c.Quality.OutlierThreshold <= 0 {
		errs = append(errs, errors.New("OUTLIER_THRESHOLD must be positive"))
	}
	if c.Update.StalenessThreshold < 0 {
		errs = append(errs, errors.New("STALENESS_THRESHOLD must not be negative"))
	}
	if c.Update.FailureTolerance < 0 || c.Update.FailureTolerance > 1 {
		errs = append(errs, errors.New("FAILURE_TOLERANCE must be between 0 and 1"))
	}
	if _, err := cron.NewParser(cron.SecondOptional | cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor).Parse(c.Update.Cron); err != nil {
		errs = append(errs, fmt.Errorf("UPDATE_CRON is invalid: %w", err))
	}
	if len(c.Indicator.Versions) == 0 {
		errs = append(errs, errors.New("INDICATOR_VERSIONS must list at least one version"))
	}
	return errors.Join(errs...)
}

// getEnv gets an environment variable or returns a default value
func getEnv(key, defaultValue string) string {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	return value
}

// parser collects the first conversion error so Load can report it once.
type parser struct {
	err error
}

func (p *parser) fail(key, value string, err error) {
	if p.err == nil {
		p.err = fmt.Errorf("invalid value %q for %s: %w", value, key, err)
	}
}

func (p *parser) duration(key, def string) time.Duration {
	v := getEnv(key, def)
	d, err := time.ParseDuration(v)
	if err != nil {
		p.fail(key, v, err)
	}
	return d
}

func (p *parser) integer(key, def string) int {
	v := getEnv(key, def)
	n, err := strconv.Atoi(v)
	if err != nil {
		p.fail(key, v, err)
	}
	return n
}

func (p *parser) float(key, def string) float64 {
	v := getEnv(key, def)
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		p.fail(key, v, err)
	}
	return f
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
