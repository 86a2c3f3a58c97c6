package cli

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/okian/benchtrack/internal/loadgen"
)

func newSimulateCmd() *cobra.Command {
	cfg := &loadgen.Config{}

	cmd := &cobra.Command{
		Use:   "simulate",
		Short: "Drive a running server with synthetic CI runs",
		Long: `simulate uploads a generated benchmark history to a running benchtrack
server, slowing down the first benchmark of every suite on the last commit,
and fails unless exactly those series are reported as regressed.

Commits must exceed the server's baseline window for regressions to be
detectable.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg.BaseURL = strings.TrimRight(cfg.BaseURL, "/")
			stats, err := loadgen.Run(cmd.Context(), cfg)
			if err != nil {
				return err
			}
			_, err = fmt.Fprintf(cmd.OutOrStdout(), "submitted %d runs, detected %d/%d regressions in %s\n",
				stats.RunsSubmitted, stats.Detected, stats.Expected, stats.Duration.Round(time.Millisecond))
			return err
		},
	}

	f := cmd.Flags()
	f.StringVar(&cfg.BaseURL, "url", "http://localhost:9080", "base URL of the service")
	f.IntVar(&cfg.Suites, "suites", 4, "number of benchmark suites")
	f.IntVar(&cfg.Benches, "benches", 8, "benchmarks per suite")
	f.IntVar(&cfg.Commits, "commits", 12, "commits per suite")
	f.IntVar(&cfg.Workers, "workers", 4, "suites submitted concurrently")
	f.Float64Var(&cfg.Noise, "noise", 0.05, "relative jitter of each measurement")
	f.Float64Var(&cfg.RegressFactor, "regress", 2, "slowdown injected on the last commit (<= 1 disables)")
	f.Uint64Var(&cfg.Seed, "seed", 1, "random seed")
	f.DurationVar(&cfg.Timeout, "timeout", 10*time.Second, "HTTP request timeout")
	f.BoolVarP(&cfg.Verbose, "verbose", "v", false, "log every rejected run")

	return cmd
}
