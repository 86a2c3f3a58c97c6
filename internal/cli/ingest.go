package cli

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/okian/benchtrack/internal/adapters/publisher"
	service "github.com/okian/benchtrack/internal/app"
	"github.com/okian/benchtrack/internal/domain/detector"
	"github.com/okian/benchtrack/internal/domain/types"
)

// ErrRegression is returned by commands run with --fail-on-regression when a
// regression was found.
var ErrRegression = errors.New("regression detected")

func newIngestCmd(g *globals) *cobra.Command {
	var failOnRegression bool

	cmd := &cobra.Command{
		Use:   "ingest [file...]",
		Short: "Record benchmark runs",
		Long: `Reads CI runs as JSON and records them. Each file holds one run or an
array of runs; a run is a data.js entry with a "suite" field:

  {"suite": "Go Benchmark", "commit": {...}, "date": 1709312400000,
   "tool": "go", "benches": [{"name": "...", "value": 1, "unit": "ns/op"}]}

With no file, or "-", runs are read from stdin.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			if len(args) == 0 {
				args = []string{"-"}
			}
			var runs []publisher.Run
			for _, name := range args {
				rs, err := readRuns(cmd.InOrStdin(), name)
				if err != nil {
					return err
				}
				runs = append(runs, rs...)
			}
			return g.withService(cmd, func(ctx context.Context, svc *service.Service) error {
				return runIngest(ctx, cmd.OutOrStdout(), svc, runs, failOnRegression)
			})
		},
	}
	cmd.Flags().BoolVar(&failOnRegression, "fail-on-regression", false, "exit non-zero when a run regresses")
	return cmd
}

func runIngest(ctx context.Context, out io.Writer, svc *service.Service, runs []publisher.Run, failOnRegression bool) error {
	reports := make([]types.IngestReport, 0, len(runs))
	regressed := false
	for i, run := range runs {
		req, err := run.Request()
		if err != nil {
			return fmt.Errorf("run %d: %w", i, err)
		}
		report, err := svc.Ingest(ctx, req)
		if err != nil {
			return fmt.Errorf("run %d: %w", i, err)
		}
		for _, v := range report.Verdicts {
			if v.Kind == detector.Regressed {
				regressed = true
			}
		}
		reports = append(reports, report)
	}
	if err := writeJSON(out, reports); err != nil {
		return err
	}
	if failOnRegression && regressed {
		return ErrRegression
	}
	return nil
}

// readRuns decodes one run or an array of runs.
func readRuns(stdin io.Reader, name string) ([]publisher.Run, error) {
	var (
		data []byte
		err  error
	)
	if name == "-" {
		data, err = io.ReadAll(stdin)
	} else {
		data, err = os.ReadFile(name)
	}
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", name, err)
	}

	data = bytes.TrimSpace(data)
	if len(data) > 0 && data[0] == '[' {
		var runs []publisher.Run
		if err := json.Unmarshal(data, &runs); err != nil {
			return nil, fmt.Errorf("decode %s: %w", name, err)
		}
		return runs, nil
	}
	var run publisher.Run
	if err := json.Unmarshal(data, &run); err != nil {
		return nil, fmt.Errorf("decode %s: %w", name, err)
	}
	return []publisher.Run{run}, nil
}
