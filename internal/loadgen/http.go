package loadgen

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/okian/benchtrack/internal/adapters/publisher"
	"github.com/okian/benchtrack/internal/domain/types"
	"github.com/okian/benchtrack/pkg/logger"
)

const ingestPath = "/api/v1/ingest?sync=true"

// HTTPClient wraps http.Client with timeout.
type HTTPClient struct {
	client *http.Client
}

func newHTTPClient(timeout time.Duration) *HTTPClient {
	return &HTTPClient{client: &http.Client{Timeout: timeout}}
}

// Get performs a GET request and decodes a JSON answer into out when out is
// not nil.
func (c *HTTPClient) Get(ctx context.Context, url string, out any) (int, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return 0, fmt.Errorf("failed to create request: %w", err)
	}
	return c.do(req, out)
}

// Post performs a POST request with a JSON body.
func (c *HTTPClient) Post(ctx context.Context, url string, body, out any) (int, error) {
	data, err := json.Marshal(body)
	if err != nil {
		return 0, fmt.Errorf("failed to marshal request body: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(data))
	if err != nil {
		return 0, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	return c.do(req, out)
}

func (c *HTTPClient) do(req *http.Request, out any) (int, error) {
	resp, err := c.client.Do(req)
	if err != nil {
		return 0, err
	}
	defer func() { _ = resp.Body.Close() }()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return resp.StatusCode, fmt.Errorf("failed to read response: %w", err)
	}
	if resp.StatusCode >= http.StatusBadRequest {
		return resp.StatusCode, fmt.Errorf("%s %s: status %d: %s", req.Method, req.URL.Path, resp.StatusCode, bytes.TrimSpace(body))
	}
	if out != nil {
		if err := json.Unmarshal(body, out); err != nil {
			return resp.StatusCode, fmt.Errorf("failed to decode response: %w", err)
		}
	}
	return resp.StatusCode, nil
}

// submitRuns uploads every suite's runs. Suites are spread over the workers;
// the runs of one suite go out in commit order so the server evaluates each
// against the history before it.
func submitRuns(ctx context.Context, cfg *Config, p plan, stats *Stats) {
	log := logger.Named("loadgen")
	log.Info(ctx, "submitting runs",
		logger.Int("runs", p.runCount),
		logger.Int("suites", len(p.runs)),
		logger.Int("workers", cfg.Workers),
	)

	client := newHTTPClient(cfg.Timeout)
	url := cfg.BaseURL + ingestPath

	var (
		submitted  int64
		failed     int64
		inserted   int64
		duplicates int64
	)

	suites := make(chan []publisher.Run, cfg.Workers*2)
	var wg sync.WaitGroup
	for range cfg.Workers {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for runs := range suites {
				for _, run := range runs {
					if ctx.Err() != nil {
						return
					}
					var report types.IngestReport
					atomic.AddInt64(&submitted, 1)
					if _, err := client.Post(ctx, url, run, &report); err != nil {
						atomic.AddInt64(&failed, 1)
						if cfg.Verbose {
							log.Warn(ctx, "run rejected",
								logger.String("suite", run.Suite),
								logger.String("commit", run.Commit.ID),
								logger.Error(err),
							)
						}
						continue
					}
					atomic.AddInt64(&inserted, int64(report.Inserted))
					atomic.AddInt64(&duplicates, int64(report.Duplicates))
				}
			}
		}()
	}

	go func() {
		defer close(suites)
		for _, runs := range p.runs {
			select {
			case <-ctx.Done():
				return
			case suites <- runs:
			}
		}
	}()
	wg.Wait()

	stats.RunsSubmitted = int(atomic.LoadInt64(&submitted))
	stats.RunsFailed = int(atomic.LoadInt64(&failed))
	stats.RecordsInserted = int(atomic.LoadInt64(&inserted))
	stats.Duplicates = int(atomic.LoadInt64(&duplicates))

	log.Info(ctx, "run submission completed",
		logger.Int("submitted", stats.RunsSubmitted),
		logger.Int("failed", stats.RunsFailed),
		logger.Int("inserted", stats.RecordsInserted),
		logger.Int("duplicates", stats.Duplicates),
	)
}
