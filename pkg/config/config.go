package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/unklstewy/ads-trajectory/pkg/analysis"
	"github.com/unklstewy/ads-trajectory/pkg/tracking"
)

// Config represents the complete application configuration.
type Config struct {
	Database   DatabaseConfig   `json:"database"`
	Trajectory TrajectoryConfig `json:"trajectory"`
	Processing ProcessingConfig `json:"processing"`
	Logging    LoggingConfig    `json:"logging"`
	Metrics    MetricsConfig    `json:"metrics"`
}

// DatabaseConfig contains database connection settings.
type DatabaseConfig struct {
	// Driver is the database driver (only postgres is supported)
	Driver string `json:"driver"`

	// Host is the database server hostname
	Host string `json:"host"`

	// Port is the database server port
	Port int `json:"port"`

	// Database is the database name
	Database string `json:"database"`

	// Username for database authentication
	Username string `json:"username"`

	// Password for database authentication (should be loaded from environment)
	Password string `json:"password"`

	// SSLMode for PostgreSQL connections (disable, require, verify-ca, verify-full)
	SSLMode string `json:"ssl_mode"`

	// MaxOpenConns is the maximum number of open connections
	MaxOpenConns int `json:"max_open_conns"`

	// MaxIdleConns is the maximum number of idle connections
	MaxIdleConns int `json:"max_idle_conns"`

	// ConnMaxLifetimeMinutes closes pooled connections after this many minutes
	ConnMaxLifetimeMinutes int `json:"conn_max_lifetime_minutes"`
}

// TrajectoryConfig controls how each flight is analysed.
type TrajectoryConfig struct {
	// AcrossTrackToleranceNM is the maximum distance of a position from the
	// simplified horizontal path
	AcrossTrackToleranceNM float64 `json:"across_track_tolerance_nm"`

	// MaxSpeedKnots is the speed limit used both for cleaning and for
	// constraining the smoothed time profile
	MaxSpeedKnots float64 `json:"max_speed_knots"`

	// DuplicateToleranceNM is the along-path distance under which positions
	// are duplicates
	DuplicateToleranceNM float64 `json:"duplicate_tolerance_nm"`

	// SmoothingWindow is the number of positions in each local regression
	SmoothingWindow int `json:"smoothing_window"`

	// SmoothingIterations is the number of smoothing passes
	SmoothingIterations int `json:"smoothing_iterations"`

	// CleanPositions enables removal of invalid reports
	CleanPositions bool `json:"clean_positions"`

	// CheckAddresses rejects reports whose ICAO address differs from the
	// flight's most common address
	CheckAddresses bool `json:"check_addresses"`

	// DistanceAccuracyNM is the position accuracy allowed when checking speed
	DistanceAccuracyNM float64 `json:"distance_accuracy_nm"`

	// TimePrecisionSeconds is the timestamp precision allowed when checking speed
	TimePrecisionSeconds float64 `json:"time_precision_seconds"`

	// FastProjection measures distances against the leg that covered each
	// position during simplification
	FastProjection bool `json:"fast_projection"`

	// ModelTurns fits turns at the path waypoints instead of sharp corners
	ModelTurns bool `json:"model_turns"`
}

// ProcessingConfig controls batch processing.
type ProcessingConfig struct {
	// Workers is the number of flights analysed concurrently
	Workers int `json:"workers"`

	// FlightsPerSecond limits how quickly flights are loaded from the database.
	// 0 = no rate limit
	FlightsPerSecond float64 `json:"flights_per_second"`

	// Burst is the number of flights that may start at once under the rate limit
	Burst int `json:"burst"`

	// LookbackHours selects flights first seen within this many hours when no
	// explicit time range is given
	LookbackHours int `json:"lookback_hours"`
}

// LoggingConfig controls the structured logger.
type LoggingConfig struct {
	// Level is debug, info, warn or error
	Level string `json:"level"`

	// Format is text or json
	Format string `json:"format"`
}

// MetricsConfig controls the Prometheus endpoint.
type MetricsConfig struct {
	// Enabled starts the metrics HTTP server
	Enabled bool `json:"enabled"`

	// Address is the listen address of the metrics server (e.g., ":9102")
	Address string `json:"address"`
}

// Load reads configuration from a JSON file.
// If the file doesn't exist, returns a default configuration.
// Fields missing from the file keep their default values.
func Load(path string) (*Config, error) {
	if _, err := os.Stat(path); os.IsNotExist(err) {
		cfg := DefaultConfig()
		cfg.applyEnvironmentOverrides()
		return cfg, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	cfg := DefaultConfig()
	if err := json.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	// Override with environment variables
	cfg.applyEnvironmentOverrides()

	return cfg, nil
}

// Save writes the configuration to a JSON file.
func (c *Config) Save(path string) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	data, err := json.MarshalIndent(c, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	return nil
}

// DefaultConfig returns a configuration with sensible defaults.
func DefaultConfig() *Config {
	settings := analysis.DefaultSettings()
	return &Config{
		Database: DatabaseConfig{
			Driver:                 "postgres",
			Host:                   "localhost",
			Port:                   5432,
			Database:               "adstrajectory",
			Username:               "adstrajectory",
			SSLMode:                "disable",
			MaxOpenConns:           25,
			MaxIdleConns:           5,
			ConnMaxLifetimeMinutes: 30,
		},
		Trajectory: TrajectoryConfig{
			AcrossTrackToleranceNM: settings.AcrossTrackToleranceNM,
			MaxSpeedKnots:          settings.MaxSpeedKnots,
			DuplicateToleranceNM:   settings.DuplicateToleranceNM,
			SmoothingWindow:        settings.SmoothingWindow,
			SmoothingIterations:    settings.SmoothingIterations,
			CleanPositions:         settings.CleanPositions,
			CheckAddresses:         settings.Cleaning.CheckAddresses,
			DistanceAccuracyNM:     settings.Cleaning.DistanceAccuracyNM,
			TimePrecisionSeconds:   settings.Cleaning.TimePrecisionSeconds,
			FastProjection:         false,
			ModelTurns:             settings.ModelTurns,
		},
		Processing: ProcessingConfig{
			Workers:          4,
			FlightsPerSecond: 0, // unlimited
			Burst:            1,
			LookbackHours:    24,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "text",
		},
		Metrics: MetricsConfig{
			Enabled: false,
			Address: ":9102",
		},
	}
}

// Settings converts the trajectory configuration into analysis settings.
func (t TrajectoryConfig) Settings() analysis.Settings {
	return analysis.Settings{
		AcrossTrackToleranceNM: t.AcrossTrackToleranceNM,
		MaxSpeedKnots:          t.MaxSpeedKnots,
		DuplicateToleranceNM:   t.DuplicateToleranceNM,
		SmoothingWindow:        t.SmoothingWindow,
		SmoothingIterations:    t.SmoothingIterations,
		CleanPositions:         t.CleanPositions,
		Cleaning: tracking.CleaningConfig{
			MaxSpeedKnots:        t.MaxSpeedKnots,
			DistanceAccuracyNM:   t.DistanceAccuracyNM,
			TimePrecisionSeconds: t.TimePrecisionSeconds,
			CheckAddresses:       t.CheckAddresses,
		},
		FastProjection: t.FastProjection,
		ModelTurns:     t.ModelTurns,
	}
}

// ConnMaxLifetime returns the pooled connection lifetime.
func (d DatabaseConfig) ConnMaxLifetime() time.Duration {
	return time.Duration(d.ConnMaxLifetimeMinutes) * time.Minute
}

// Validate checks the configuration for values the processor cannot run with.
func (c *Config) Validate() error {
	var errs []error

	if c.Database.Driver != "postgres" {
		errs = append(errs, fmt.Errorf("unsupported database driver %q", c.Database.Driver))
	}
	if c.Database.Port <= 0 || c.Database.Port > 65535 {
		errs = append(errs, fmt.Errorf("invalid database port %d", c.Database.Port))
	}

	t := c.Trajectory
	if t.AcrossTrackToleranceNM < 0 {
		errs = append(errs, fmt.Errorf("across_track_tolerance_nm must not be negative, got %g", t.AcrossTrackToleranceNM))
	}
	if t.MaxSpeedKnots <= 0 {
		errs = append(errs, fmt.Errorf("max_speed_knots must be positive, got %g", t.MaxSpeedKnots))
	}
	if t.DuplicateToleranceNM < 0 {
		errs = append(errs, fmt.Errorf("duplicate_tolerance_nm must not be negative, got %g", t.DuplicateToleranceNM))
	}
	if t.SmoothingWindow < 1 {
		errs = append(errs, fmt.Errorf("smoothing_window must be at least 1, got %d", t.SmoothingWindow))
	}
	if t.SmoothingIterations < 0 {
		errs = append(errs, fmt.Errorf("smoothing_iterations must not be negative, got %d", t.SmoothingIterations))
	}

	if c.Processing.Workers < 1 {
		errs = append(errs, fmt.Errorf("workers must be at least 1, got %d", c.Processing.Workers))
	}
	if c.Processing.FlightsPerSecond < 0 {
		errs = append(errs, fmt.Errorf("flights_per_second must not be negative, got %g", c.Processing.FlightsPerSecond))
	}

	switch c.Logging.Format {
	case "text", "json":
	default:
		errs = append(errs, fmt.Errorf("unknown log format %q", c.Logging.Format))
	}

	return errors.Join(errs...)
}

// applyEnvironmentOverrides applies environment variable overrides to the config.
// This allows sensitive data like passwords to be kept out of config files.
func (c *Config) applyEnvironmentOverrides() {
	if dbHost := os.Getenv("ADS_TRAJECTORY_DB_HOST"); dbHost != "" {
		c.Database.Host = dbHost
	}
	if dbPort := os.Getenv("ADS_TRAJECTORY_DB_PORT"); dbPort != "" {
		if port, err := strconv.Atoi(dbPort); err == nil {
			c.Database.Port = port
		}
	}
	if dbPassword := os.Getenv("ADS_TRAJECTORY_DB_PASSWORD"); dbPassword != "" {
		c.Database.Password = dbPassword
	}
	if addr := os.Getenv("ADS_TRAJECTORY_METRICS_ADDR"); addr != "" {
		c.Metrics.Address = addr
		c.Metrics.Enabled = true
	}
	if level := os.Getenv("LOG_LEVEL"); level != "" {
		c.Logging.Level = level
	}
	if format := os.Getenv("LOG_FORMAT"); format != "" {
		c.Logging.Format = format
	}
}
