// Package orchestrator deploys logic contract releases, provisions rollup
// instances and upgrades them between sealed versions.
package orchestrator

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/myronchain/ethbeijing-rollup-tools/internal/config"
	"github.com/myronchain/ethbeijing-rollup-tools/internal/pkg/ulid"
)

// Options configures the orchestrators.
type Options struct {
	Logger *slog.Logger
	// Locker defaults to an in-process LocalLocker.
	Locker Locker
	// RetryAttempts bounds repeated runs after transient failures.
	RetryAttempts int
	RetryDelay    time.Duration
	Registry      config.RegistryConfig
}

func (o Options) withDefaults() Options {
	if o.Logger == nil {
		o.Logger = slog.Default()
	}
	if o.Locker == nil {
		o.Locker = NewLocalLocker()
	}
	if o.RetryAttempts <= 0 {
		o.RetryAttempts = 1
	}
	if o.RetryDelay <= 0 {
		o.RetryDelay = 5 * time.Second
	}
	return o
}

// run executes fn holding the locks of keys. Transient failures repeat the
// whole run, which is safe because every step resumes from the registry.
func run(ctx context.Context, opts Options, operation string, keys []string, attrs []any,
	fn func(ctx context.Context, logger *slog.Logger) error,
) (err error) {
	start := time.Now()
	logger := opts.Logger.With(
		slog.String("run_id", ulid.New()),
		slog.String("operation", operation),
	).With(attrs...)

	defer func() {
		result := "success"
		if err != nil {
			result = "failure"
		}
		runsTotal.WithLabelValues(operation, result).Inc()
		runDuration.WithLabelValues(operation).Observe(time.Since(start).Seconds())
	}()

	for _, key := range keys {
		unlock, err := opts.Locker.TryLock(ctx, key)
		if err != nil {
			return err
		}
		defer func(key string) {
			if err := unlock(context.WithoutCancel(ctx)); err != nil {
				logger.Warn("failed to release lock",
					slog.String("key", key),
					slog.String("error", err.Error()),
				)
			}
		}(key)
	}

	logger.Info("run started")

	var lastErr error
	for attempt := 0; attempt < opts.RetryAttempts; attempt++ {
		if attempt > 0 {
			logger.Info("retrying run",
				slog.Int("attempt", attempt+1),
				slog.Int("max_attempts", opts.RetryAttempts),
			)
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(opts.RetryDelay):
			}
		}

		lastErr = fn(ctx, logger)
		if lastErr == nil {
			logger.Info("run completed", slog.Duration("duration", time.Since(start)))
			return nil
		}
		if !Retryable(lastErr) {
			logger.Error("run failed", slog.String("error", lastErr.Error()))
			return lastErr
		}
		logger.Warn("run failed with retryable error", slog.String("error", lastErr.Error()))
	}

	if opts.RetryAttempts == 1 {
		return lastErr
	}
	return fmt.Errorf("run failed after %d attempts: %w", opts.RetryAttempts, lastErr)
}

func rollupLockKey(l1ChainID, l2ChainID uint64) string {
	return fmt.Sprintf("rollup:%d:%d", l1ChainID, l2ChainID)
}
