package db

import (
	"context"
	"database/sql/driver"
	"errors"
	"fmt"
	"io"
	"math"
	"net"
	"strings"
	"time"

	"github.com/lib/pq"

	"github.com/unklstewy/ads-trajectory/internal/logging"
	"github.com/unklstewy/ads-trajectory/pkg/config"
)

// RetryConfig configures retry behavior with exponential backoff.
type RetryConfig struct {
	// MaxRetries is the maximum number of retry attempts (0 = retry forever)
	MaxRetries int

	// InitialDelay is the initial backoff delay (default: 1 second)
	InitialDelay time.Duration

	// MaxDelay is the maximum backoff delay (default: 60 seconds)
	MaxDelay time.Duration

	// Multiplier is the backoff multiplier (default: 2.0 for exponential)
	Multiplier float64
}

// DefaultRetryConfig returns sensible defaults for retry behavior.
func DefaultRetryConfig() RetryConfig {
	return RetryConfig{
		MaxRetries:   3,
		InitialDelay: time.Second,
		MaxDelay:     60 * time.Second,
		Multiplier:   2.0,
	}
}

// Delay returns the wait before retry attempt n (1-based):
// min(InitialDelay * Multiplier^(n-1), MaxDelay).
func (c RetryConfig) Delay(attempt int) time.Duration {
	if attempt < 1 {
		return 0
	}
	delay := time.Duration(float64(c.InitialDelay) * math.Pow(c.Multiplier, float64(attempt-1)))
	if c.MaxDelay > 0 && (delay > c.MaxDelay || delay < 0) {
		return c.MaxDelay
	}
	return delay
}

// connectFunc is swapped in tests.
var connectFunc = Connect

// ReconnectWithRetry attempts to connect to the database with exponential backoff.
// This provides resilience against temporary database outages at startup.
func ReconnectWithRetry(ctx context.Context, cfg config.DatabaseConfig, retry RetryConfig, log logging.Logger) (*DB, error) {
	if log == nil {
		log = logging.Noop()
	}

	for attempt := 1; ; attempt++ {
		log.Debug(ctx, "database connection attempt", logging.Int("attempt", attempt))

		db, err := connectFunc(cfg)
		if err == nil {
			if attempt > 1 {
				log.Info(ctx, "database reconnected", logging.Int("attempts", attempt))
			}
			return db, nil
		}

		if retry.MaxRetries > 0 && attempt >= retry.MaxRetries {
			return nil, fmt.Errorf("failed to connect after %d attempts: %w", attempt, err)
		}

		delay := retry.Delay(attempt)
		log.Warn(ctx, "database connection failed",
			logging.Err(err), logging.Int("attempt", attempt), logging.Duration("retry_in", delay))

		select {
		case <-ctx.Done():
			return nil, fmt.Errorf("reconnect cancelled: %w", ctx.Err())
		case <-time.After(delay):
		}
	}
}

// EnsureConnection checks if the database connection is alive and reconnects if needed.
// Returns the active connection, either the original or a new one.
func EnsureConnection(ctx context.Context, db *DB, cfg config.DatabaseConfig, log logging.Logger) (*DB, error) {
	if db != nil {
		pingCtx, cancel := context.WithTimeout(ctx, 2*time.Second)
		defer cancel()

		err := db.PingContext(pingCtx)
		if err == nil {
			return db, nil
		}
		if log != nil {
			log.Warn(ctx, "database connection lost", logging.Err(err))
		}
		db.Close()
	}

	return ReconnectWithRetry(ctx, cfg, DefaultRetryConfig(), log)
}

// HealthCheck reports whether the database answers a trivial query.
func HealthCheck(ctx context.Context, db *DB) error {
	if db == nil {
		return errors.New("no database connection")
	}

	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	var result int
	if err := db.QueryRowContext(ctx, "SELECT 1").Scan(&result); err != nil {
		return fmt.Errorf("health check query failed: %w", err)
	}
	if result != 1 {
		return fmt.Errorf("health check returned %d", result)
	}
	return nil
}

// connErrorPatterns are message fragments of transient connection failures.
var connErrorPatterns = []string{
	"connection refused",
	"broken pipe",
	"no connection",
	"connection reset",
	"bad connection",
	"timeout",
}

// IsConnectionError reports whether err is a transient connection failure
// worth retrying.
func IsConnectionError(err error) bool {
	if err == nil {
		return false
	}

	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		switch pqErr.Code.Class() {
		case "08", // connection exception
			"53", // insufficient resources
			"57": // operator intervention (e.g. admin shutdown)
			return true
		}
		return false
	}

	if errors.Is(err, driver.ErrBadConn) || errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
		return true
	}
	var netErr net.Error
	if errors.As(err, &netErr) {
		return true
	}

	msg := strings.ToLower(err.Error())
	for _, pattern := range connErrorPatterns {
		if strings.Contains(msg, pattern) {
			return true
		}
	}
	return false
}

// WithRetry executes a database operation, retrying connection failures.
// Other errors are returned immediately.
func WithRetry(ctx context.Context, retry RetryConfig, operation func() error) error {
	_, err := WithRetryResult(ctx, retry, func() (struct{}, error) {
		return struct{}{}, operation()
	})
	return err
}

// WithRetryResult is WithRetry for operations that return a value.
func WithRetryResult[T any](ctx context.Context, retry RetryConfig, operation func() (T, error)) (T, error) {
	var zero T
	for attempt := 1; ; attempt++ {
		res, err := operation()
		if err == nil {
			return res, nil
		}
		if !IsConnectionError(err) {
			return zero, err
		}
		if retry.MaxRetries > 0 && attempt > retry.MaxRetries {
			return zero, fmt.Errorf("max retries (%d) exceeded: %w", retry.MaxRetries, err)
		}

		select {
		case <-ctx.Done():
			return zero, fmt.Errorf("retry cancelled: %w", ctx.Err())
		case <-time.After(retry.Delay(attempt)):
		}
	}
}
