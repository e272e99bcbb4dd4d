package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	"github.com/unklstewy/ads-trajectory/internal/batch"
	"github.com/unklstewy/ads-trajectory/internal/db"
	"github.com/unklstewy/ads-trajectory/internal/logging"
	"github.com/unklstewy/ads-trajectory/internal/observability"
	"github.com/unklstewy/ads-trajectory/pkg/config"
)

// options holds the command line flags.
type options struct {
	configPath string
	from, to   string
	flightID   string
	interval   time.Duration
	keepRuns   time.Duration
	positions  time.Duration
}

// The trajectory processor reads raw position reports from the database,
// derives a smoothed trajectory for each flight and stores the results as an
// analysis run. It runs once over a time window, or repeatedly with -interval.
func main() {
	var opts options
	flag.StringVar(&opts.configPath, "config", "configs/config.json", "Path to configuration file")
	flag.StringVar(&opts.from, "from", "", "Start of the time window (RFC3339, default: now - lookback)")
	flag.StringVar(&opts.to, "to", "", "End of the time window (RFC3339, default: now)")
	flag.StringVar(&opts.flightID, "flight", "", "Analyse a single flight and print its trajectory")
	flag.DurationVar(&opts.interval, "interval", 0, "Repeat processing at this interval (0 = run once)")
	flag.DurationVar(&opts.keepRuns, "keep-runs", 0, "Delete analysis runs older than this (0 = keep all)")
	flag.DurationVar(&opts.positions, "positions", 0, "With -flight, print positions at this interval (0 = none)")
	flag.Parse()

	log.Println("===========================================")
	log.Println("  ADS-B Trajectory Processor")
	log.Println("===========================================")

	if err := run(opts); err != nil {
		log.Printf("✗ %v", err)
		os.Exit(1)
	}

	log.Println("Shutting down gracefully...")
	log.Println("✓ Trajectory processor stopped")
}

// run does the work of main. Deferred cleanup has finished by the time it
// returns.
func run(opts options) error {
	cfg, err := config.Load(opts.configPath)
	if err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}
	lookback := time.Duration(cfg.Processing.LookbackHours) * time.Hour

	var from, to time.Time
	if opts.flightID == "" && opts.interval <= 0 {
		from, to, err = parseWindow(opts.from, opts.to, lookback, time.Now().UTC())
		if err != nil {
			return fmt.Errorf("invalid time window: %w", err)
		}
	}

	log.Printf("Configuration loaded from: %s", opts.configPath)
	log.Printf("Across-track tolerance: %.2f NM, max speed: %.0f kt",
		cfg.Trajectory.AcrossTrackToleranceNM, cfg.Trajectory.MaxSpeedKnots)
	log.Printf("Smoothing: window %d, %d iterations",
		cfg.Trajectory.SmoothingWindow, cfg.Trajectory.SmoothingIterations)
	log.Printf("Workers: %d", cfg.Processing.Workers)

	logger := logging.New(logging.Config{
		Level:  cfg.Logging.Level,
		Format: cfg.Logging.Format,
	})

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// Connect to database
	log.Println("\nConnecting to database...")
	retry := db.DefaultRetryConfig()
	retry.MaxRetries = 10
	database, err := db.ReconnectWithRetry(ctx, cfg.Database, retry, logger)
	if err != nil {
		return fmt.Errorf("failed to connect to database: %w", err)
	}
	defer database.Close()
	log.Println("✓ Database connected")

	if err := database.InitSchema(ctx); err != nil {
		return fmt.Errorf("failed to initialize schema: %w", err)
	}
	log.Println("✓ Database schema initialized")

	// Metrics
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	metrics, err := observability.NewProcessingCollector(reg)
	if err != nil {
		return fmt.Errorf("failed to register metrics: %w", err)
	}
	if cfg.Metrics.Enabled {
		go func() {
			if err := metrics.Serve(ctx, cfg.Metrics.Address); err != nil {
				log.Printf("✗ Metrics server stopped: %v", err)
			}
		}()
		log.Printf("✓ Metrics on %s/metrics", cfg.Metrics.Address)
	}

	trajectories := db.NewTrajectoryRepository(database)
	processor := batch.NewProcessor(
		db.NewPositionRepository(database),
		trajectories,
		batch.Options{
			Workers:          cfg.Processing.Workers,
			FlightsPerSecond: cfg.Processing.FlightsPerSecond,
			Burst:            cfg.Processing.Burst,
			Settings:         cfg.Trajectory.Settings(),
			Retry:            db.DefaultRetryConfig(),
		},
		metrics,
		logger,
	)

	r := &runner{
		db:           database,
		trajectories: trajectories,
		processor:    processor,
		settings:     cfg.Trajectory,
		lookback:     lookback,
		keepRuns:     opts.keepRuns,
		positions:    opts.positions,
	}

	switch {
	case opts.flightID != "":
		err = r.runFlight(ctx, opts.flightID)
	case opts.interval > 0:
		log.Println("\n===========================================")
		log.Printf("  Processing every %v", opts.interval)
		log.Println("  Press Ctrl+C to stop")
		log.Println("===========================================")
		err = r.runEvery(ctx, opts.interval)
	default:
		err = r.runWindow(ctx, from, to)
	}

	if err != nil && !errors.Is(err, context.Canceled) {
		return fmt.Errorf("processing failed: %w", err)
	}
	return nil
}
