package loadgen

import (
	"context"
	"fmt"
	"slices"

	"github.com/okian/benchtrack/internal/domain/detector"
	"github.com/okian/benchtrack/internal/domain/types"
	"github.com/okian/benchtrack/pkg/logger"
)

const evaluatePath = "/api/v1/evaluate"

// verify compares the server's verdicts for the simulated suites against the
// injected regressions.
func verify(ctx context.Context, cfg *Config, p plan, stats *Stats) error {
	var verdicts []types.Verdict
	client := newHTTPClient(cfg.Timeout)
	if _, err := client.Get(ctx, cfg.BaseURL+evaluatePath, &verdicts); err != nil {
		return fmt.Errorf("evaluate: %w", err)
	}

	simulated := make(map[string]bool, len(p.runs))
	for _, runs := range p.runs {
		if len(runs) > 0 {
			simulated[runs[0].Suite] = true
		}
	}

	flagged := make(map[series]bool)
	for _, v := range verdicts {
		if !simulated[v.Suite] || v.Kind != detector.Regressed {
			continue
		}
		flagged[series{Suite: v.Suite, Name: v.Name}] = true
	}

	stats.Expected = len(p.regress)
	for _, s := range p.regress {
		if flagged[s] {
			stats.Detected++
			delete(flagged, s)
			continue
		}
		stats.Missed = append(stats.Missed, s.Suite+"/"+s.Name)
	}
	for s := range flagged {
		stats.Unexpected = append(stats.Unexpected, s.Suite+"/"+s.Name)
	}
	slices.Sort(stats.Unexpected)

	logger.Named("loadgen").Info(ctx, "verification completed",
		logger.Int("expected", stats.Expected),
		logger.Int("detected", stats.Detected),
		logger.Int("missed", len(stats.Missed)),
		logger.Int("unexpected", len(stats.Unexpected)),
	)

	if len(stats.Missed) > 0 || len(stats.Unexpected) > 0 {
		return fmt.Errorf("%w: missed %v, unexpected %v", ErrVerification, stats.Missed, stats.Unexpected)
	}
	return nil
}
