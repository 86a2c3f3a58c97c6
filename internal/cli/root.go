// Package cli provides the benchctl commands. Every command except simulate
// opens the configured journal and feed in process. A journal already held by
// the server or another benchctl fails to open.
package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"io"

	"github.com/spf13/cobra"

	service "github.com/okian/benchtrack/internal/app"
	"github.com/okian/benchtrack/internal/config"
	"github.com/okian/benchtrack/pkg/logger"
)

// globals are the persistent flags shared by every command. Set flags
// override the file and environment configuration.
type globals struct {
	journal    string
	feed       string
	feedFormat string
	repoURL    string
	window     int
	threshold  float64
	logLevel   string

	cfg *config.Config
}

// NewRootCmd creates the root command for the benchctl CLI.
func NewRootCmd() *cobra.Command {
	g := &globals{}

	cmd := &cobra.Command{
		Use:   "benchctl",
		Short: "Benchmark history and regression tool",
		Long: `benchctl records benchmark results per commit, flags regressions
against a rolling baseline and publishes the history as a data.js feed
for the github-action-benchmark dashboard.

Configuration comes from BENCHTRACK_CONFIG (YAML) and BENCHTRACK_* environment
variables; flags override both.`,
		SilenceUsage:      true,
		PersistentPreRunE: g.load,
	}

	f := cmd.PersistentFlags()
	f.StringVar(&g.journal, "journal", "", "sqlite journal file (empty keeps history in memory)")
	f.StringVar(&g.feed, "feed", "", "feed file written after changes (empty disables publishing)")
	f.StringVar(&g.feedFormat, "feed-format", "", "feed format: js or json")
	f.StringVar(&g.repoURL, "repo-url", "", "repository URL written into the feed")
	f.IntVar(&g.window, "window", 0, "baseline window size")
	f.Float64Var(&g.threshold, "threshold", 0, "regression threshold factor")
	f.StringVar(&g.logLevel, "log-level", "", "log level: debug, info, warn, error")

	cmd.AddCommand(newIngestCmd(g))
	cmd.AddCommand(newHistoryCmd(g))
	cmd.AddCommand(newSeriesCmd(g))
	cmd.AddCommand(newEvaluateCmd(g))
	cmd.AddCommand(newBacktestCmd(g))
	cmd.AddCommand(newEmitCmd(g))
	cmd.AddCommand(newRotateCmd(g))
	cmd.AddCommand(newCompactCmd(g))
	cmd.AddCommand(newSimulateCmd())

	return cmd
}

// Execute runs the root command.
func Execute(ctx context.Context) error {
	return NewRootCmd().ExecuteContext(ctx)
}

func (g *globals) load(cmd *cobra.Command, _ []string) error {
	cfg, err := config.Load(cmd.Context())
	if err != nil {
		return err
	}

	f := cmd.Flags()
	if f.Changed("journal") {
		cfg.JournalPath = g.journal
	}
	if f.Changed("feed") {
		cfg.FeedPath = g.feed
	}
	if f.Changed("feed-format") {
		cfg.FeedFormat = g.feedFormat
	}
	if f.Changed("repo-url") {
		cfg.RepoURL = g.repoURL
	}
	if f.Changed("window") {
		cfg.BaselineWindow = g.window
	}
	if f.Changed("threshold") {
		cfg.RegressionThreshold = g.threshold
	}
	if f.Changed("log-level") {
		cfg.LogLevel = g.logLevel
	}
	if err := cfg.Validate(); err != nil {
		return err
	}

	// stdout carries command output; logs go to stderr.
	if err := logger.Init(logger.WithOutput(cmd.ErrOrStderr()), logger.WithFormat(cfg.LogFormat)); err != nil {
		return fmt.Errorf("failed to initialize logger: %w", err)
	}
	if err := logger.SetLevelString(cfg.LogLevel); err != nil {
		return err
	}
	g.cfg = cfg
	return nil
}

// open starts a service over the configured journal and feed. The caller
// must Stop it, which also publishes pending changes.
func (g *globals) open(ctx context.Context) (*service.Service, error) {
	opts := append(service.ConfigOptions(g.cfg),
		service.WithWorkerCount(1),
		service.WithLogger(logger.Named("benchctl")),
	)
	svc := service.New(opts...)
	if err := svc.Start(ctx); err != nil {
		return nil, err
	}
	return svc, nil
}

// withService runs fn against a started service and stops it afterwards.
func (g *globals) withService(cmd *cobra.Command, fn func(ctx context.Context, svc *service.Service) error) error {
	ctx := cmd.Context()
	svc, err := g.open(ctx)
	if err != nil {
		return err
	}
	defer svc.Stop()
	return fn(ctx, svc)
}

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
