package cli

import (
	"context"
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"

	service "github.com/okian/benchtrack/internal/app"
	"github.com/okian/benchtrack/internal/domain/detector"
	"github.com/okian/benchtrack/internal/domain/types"
)

func newHistoryCmd(g *globals) *cobra.Command {
	var limit int

	cmd := &cobra.Command{
		Use:   "history SUITE NAME",
		Short: "Print the records of a series, oldest first",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return g.withService(cmd, func(ctx context.Context, svc *service.Service) error {
				records, err := svc.History(ctx, args[0], args[1], limit)
				if err != nil {
					return err
				}
				return writeJSON(cmd.OutOrStdout(), records)
			})
		},
	}
	cmd.Flags().IntVarP(&limit, "limit", "n", 0, "only the newest N records")
	return cmd
}

func newSeriesCmd(g *globals) *cobra.Command {
	return &cobra.Command{
		Use:   "series",
		Short: "List series with their record counts",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return g.withService(cmd, func(ctx context.Context, svc *service.Service) error {
				series, err := svc.Series(ctx)
				if err != nil {
					return err
				}
				tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
				fmt.Fprintln(tw, "SUITE\tNAME\tRECORDS")
				for _, s := range series {
					fmt.Fprintf(tw, "%s\t%s\t%d\n", s.Suite, s.Name, s.Records)
				}
				return tw.Flush()
			})
		},
	}
}

func newEvaluateCmd(g *globals) *cobra.Command {
	var failOnRegression bool

	cmd := &cobra.Command{
		Use:   "evaluate [SUITE NAME]",
		Short: "Judge the newest record of one or every series",
		Args: func(cmd *cobra.Command, args []string) error {
			if len(args) != 0 && len(args) != 2 {
				return fmt.Errorf("accepts 0 or 2 args, received %d", len(args))
			}
			return nil
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			return g.withService(cmd, func(ctx context.Context, svc *service.Service) error {
				var verdicts []types.Verdict
				if len(args) == 2 {
					v, err := svc.Evaluate(ctx, args[0], args[1])
					if err != nil {
						return err
					}
					verdicts = []types.Verdict{v}
				} else {
					all, err := svc.EvaluateAll(ctx)
					if err != nil {
						return err
					}
					verdicts = all
				}
				if err := writeJSON(cmd.OutOrStdout(), verdicts); err != nil {
					return err
				}
				if failOnRegression && anyRegressed(verdicts) {
					return ErrRegression
				}
				return nil
			})
		},
	}
	cmd.Flags().BoolVar(&failOnRegression, "fail-on-regression", false, "exit non-zero when a series regressed")
	return cmd
}

func newBacktestCmd(g *globals) *cobra.Command {
	return &cobra.Command{
		Use:   "backtest SUITE NAME",
		Short: "Replay regression detection over a whole series",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return g.withService(cmd, func(ctx context.Context, svc *service.Service) error {
				verdicts, err := svc.Backtest(ctx, args[0], args[1])
				if err != nil {
					return err
				}
				return writeJSON(cmd.OutOrStdout(), verdicts)
			})
		},
	}
}

func anyRegressed(verdicts []types.Verdict) bool {
	for _, v := range verdicts {
		if v.Kind == detector.Regressed {
			return true
		}
	}
	return false
}
