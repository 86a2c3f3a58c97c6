package loadgen

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/okian/benchtrack/pkg/logger"
)

// ErrVerification is returned when the service's verdicts disagree with the
// injected regressions.
var ErrVerification = errors.New("verification failed")

// Run checks the service, submits the simulated history and verifies the
// verdicts.
func Run(ctx context.Context, cfg *Config) (*Stats, error) {
	if cfg.Workers < 1 {
		cfg.Workers = 1
	}
	log := logger.Named("loadgen")
	stats := &Stats{StartTime: time.Now()}

	log.Info(ctx, "starting benchtrack simulation",
		logger.String("baseURL", cfg.BaseURL),
		logger.Int("suites", cfg.Suites),
		logger.Int("benches", cfg.Benches),
		logger.Int("commits", cfg.Commits),
		logger.Int("workers", cfg.Workers),
		logger.Float64("regressFactor", cfg.RegressFactor),
		logger.Duration("timeout", cfg.Timeout),
	)

	if err := checkServiceHealth(ctx, cfg); err != nil {
		return stats, fmt.Errorf("service health check failed: %w", err)
	}

	p := generate(cfg)
	stats.RunsGenerated = p.runCount

	submitRuns(ctx, cfg, p, stats)
	if err := ctx.Err(); err != nil {
		return stats, err
	}

	err := verify(ctx, cfg, p, stats)

	stats.EndTime = time.Now()
	stats.Duration = stats.EndTime.Sub(stats.StartTime)
	displayFinalStats(ctx, stats)
	return stats, err
}

func checkServiceHealth(ctx context.Context, cfg *Config) error {
	status, err := newHTTPClient(cfg.Timeout).Get(ctx, cfg.BaseURL+"/healthz", nil)
	if err != nil {
		return fmt.Errorf("failed to connect to service: %w", err)
	}
	if status != http.StatusOK {
		return fmt.Errorf("unexpected status: %d", status)
	}
	return nil
}

func displayFinalStats(ctx context.Context, stats *Stats) {
	var runsPerSecond float64
	if stats.Duration > 0 {
		runsPerSecond = float64(stats.RunsSubmitted) / stats.Duration.Seconds()
	}
	logger.Named("loadgen").Info(ctx, "final statistics",
		logger.Int("runsGenerated", stats.RunsGenerated),
		logger.Int("runsSubmitted", stats.RunsSubmitted),
		logger.Int("runsFailed", stats.RunsFailed),
		logger.Int("recordsInserted", stats.RecordsInserted),
		logger.Int("duplicates", stats.Duplicates),
		logger.Int("regressionsExpected", stats.Expected),
		logger.Int("regressionsDetected", stats.Detected),
		logger.Duration("duration", stats.Duration),
		logger.Float64("runsPerSecond", runsPerSecond),
	)
}
