package cli

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	service "github.com/okian/benchtrack/internal/app"
	"github.com/okian/benchtrack/pkg/logger"
)

func newEmitCmd(g *globals) *cobra.Command {
	var (
		format string
		output string
	)

	cmd := &cobra.Command{
		Use:   "emit",
		Short: "Print the history as a feed document",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if format != service.FormatJS && format != service.FormatJSON {
				return fmt.Errorf("unknown format %q", format)
			}
			return g.withService(cmd, func(ctx context.Context, svc *service.Service) error {
				var (
					data []byte
					err  error
				)
				if format == service.FormatJSON {
					data, err = svc.Emit(ctx)
				} else {
					data, err = svc.EmitJS(ctx)
				}
				if err != nil {
					return err
				}
				return writeOutput(cmd, output, data)
			})
		},
	}
	cmd.Flags().StringVarP(&format, "format", "f", service.FormatJS, "js or json")
	cmd.Flags().StringVarP(&output, "output", "o", "", "write to a file instead of stdout")
	return cmd
}

func newRotateCmd(g *globals) *cobra.Command {
	var output string

	cmd := &cobra.Command{
		Use:   "rotate",
		Short: "Archive the whole history and start empty series",
		Long: `Writes the current history as a JSON feed document and empties every
series. Archived commits keep being recognised as duplicates.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return g.withService(cmd, func(ctx context.Context, svc *service.Service) error {
				archived, err := svc.Rotate(ctx)
				if err != nil {
					return err
				}
				return writeOutput(cmd, output, archived)
			})
		},
	}
	cmd.Flags().StringVarP(&output, "output", "o", "", "write the archive to a file instead of stdout")
	return cmd
}

func newCompactCmd(g *globals) *cobra.Command {
	return &cobra.Command{
		Use:   "compact",
		Short: "Shrink the journal by dropping rotated records",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return g.withService(cmd, func(ctx context.Context, svc *service.Service) error {
				n, err := svc.Compact(ctx)
				if err != nil {
					return err
				}
				logger.Get().Info(ctx, "journal compacted", logger.Int("retired", n))
				_, err = fmt.Fprintf(cmd.OutOrStdout(), "retired %d records\n", n)
				return err
			})
		},
	}
}

func writeOutput(cmd *cobra.Command, path string, data []byte) error {
	if path == "" {
		out := cmd.OutOrStdout()
		if _, err := out.Write(data); err != nil {
			return err
		}
		_, err := fmt.Fprintln(out)
		return err
	}
	if err := os.WriteFile(path, append(data, '\n'), 0o644); err != nil {
		return fmt.Errorf("write %s: %w", path, err)
	}
	return nil
}
