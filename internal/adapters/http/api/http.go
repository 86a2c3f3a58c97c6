// Package api declares HTTP contracts and route registration helpers.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"github.com/okian/benchtrack/internal/adapters/mq/queue"
	"github.com/okian/benchtrack/internal/adapters/repository"
	"github.com/okian/benchtrack/internal/domain/parser"
)

const defaultAlertLimit = 50

// Dependencies required by HTTP handlers. Using an interface bundle keeps
// the handler layer loosely coupled to implementations in other packages.
type Dependencies interface {
	IngestDependencies
	SeriesDependencies
	AlertDependencies
	SnapshotDependencies
}

// Server wires HTTP routes for the business API.
type Server struct {
	healthHandler   *HealthHandler
	statsHandler    *StatsHandler
	ingestHandler   *IngestHandler
	seriesHandler   *SeriesHandler
	alertsHandler   *AlertsHandler
	snapshotHandler *SnapshotHandler
}

// NewServer creates a new API server with all handlers. maxAlerts caps the
// limit accepted by GET /api/v1/alerts.
func NewServer(deps Dependencies, statsProvider StatsProvider, maxAlerts int) *Server {
	return &Server{
		healthHandler:   NewHealthHandler(),
		statsHandler:    NewStatsHandler(statsProvider),
		ingestHandler:   NewIngestHandler(deps),
		seriesHandler:   NewSeriesHandler(deps),
		alertsHandler:   NewAlertsHandler(deps, maxAlerts),
		snapshotHandler: NewSnapshotHandler(deps),
	}
}

// Register attaches all HTTP routes to mux.
func (s *Server) Register(_ context.Context, mux *http.ServeMux) {
	mux.HandleFunc("/healthz", MetricsMiddleware(s.healthHandler.HandleHealth, "healthz"))
	mux.HandleFunc("/metrics", MetricsMiddleware(s.healthHandler.HandleHealth, "metrics"))
	mux.HandleFunc("/stats", MetricsMiddleware(s.statsHandler.HandleStats, "stats"))
	mux.HandleFunc("/data.js", MetricsMiddleware(s.snapshotHandler.HandleDataJS, "data_js"))

	mux.HandleFunc("/api/v1/ingest", MetricsMiddleware(s.ingestHandler.HandlePostIngest, "ingest"))
	mux.HandleFunc("/api/v1/series", MetricsMiddleware(s.seriesHandler.HandleListSeries, "series"))
	mux.HandleFunc("/api/v1/history", MetricsMiddleware(s.seriesHandler.HandleHistory, "history"))
	mux.HandleFunc("/api/v1/evaluate", MetricsMiddleware(s.seriesHandler.HandleEvaluate, "evaluate"))
	mux.HandleFunc("/api/v1/backtest", MetricsMiddleware(s.seriesHandler.HandleBacktest, "backtest"))
	mux.HandleFunc("/api/v1/alerts", MetricsMiddleware(s.alertsHandler.HandleGetAlerts, "alerts"))
	mux.HandleFunc("/api/v1/snapshot", MetricsMiddleware(s.snapshotHandler.HandleSnapshot, "snapshot"))
}

type errorResponse struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, code string, err error) {
	msg := http.StatusText(status)
	if err != nil {
		msg = err.Error()
	}
	writeJSON(w, status, errorResponse{Code: code, Message: msg})
}

// writeFailure maps upstream errors onto status codes.
func writeFailure(w http.ResponseWriter, op string, err error) {
	switch {
	case errors.Is(err, ErrBadRequest), errors.Is(err, parser.ErrMalformedRecord):
		writeError(w, http.StatusBadRequest, "bad_request", WrapKind(op, ErrBadRequest, err))
	case errors.Is(err, repository.ErrUnknownSeries):
		writeError(w, http.StatusNotFound, "not_found", WrapKind(op, ErrNotFound, err))
	case errors.Is(err, queue.ErrFull), errors.Is(err, queue.ErrClosed):
		writeError(w, http.StatusTooManyRequests, "backpressure", WrapKind(op, ErrBackpressure, err))
	case errors.Is(err, context.DeadlineExceeded), errors.Is(err, context.Canceled):
		writeError(w, http.StatusServiceUnavailable, "unavailable", WrapKind(op, ErrUnavailable, err))
	default:
		writeError(w, http.StatusInternalServerError, "internal_error", Wrap(op, err))
	}
}
