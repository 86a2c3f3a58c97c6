package api

import (
	"context"
	"net/http"
	"strconv"
	"strings"

	"github.com/okian/benchtrack/internal/domain/types"
)

// SeriesDependencies defines the read operations on series.
type SeriesDependencies interface {
	Series(ctx context.Context) ([]types.Series, error)
	History(ctx context.Context, suite, name string, limit int) ([]types.Record, error)
	Evaluate(ctx context.Context, suite, name string) (types.Verdict, error)
	EvaluateAll(ctx context.Context) ([]types.Verdict, error)
	Backtest(ctx context.Context, suite, name string) ([]types.Verdict, error)
}

// SeriesHandler handles series, history and verdict requests.
type SeriesHandler struct {
	deps SeriesDependencies
}

// NewSeriesHandler creates a new series handler.
func NewSeriesHandler(deps SeriesDependencies) *SeriesHandler {
	return &SeriesHandler{deps: deps}
}

// HandleListSeries handles GET /api/v1/series requests.
func (h *SeriesHandler) HandleListSeries(w http.ResponseWriter, r *http.Request) {
	const op = "api.list_series"
	if r.Method != http.MethodGet {
		http.NotFound(w, r)
		return
	}
	series, err := h.deps.Series(r.Context())
	if err != nil {
		writeFailure(w, op, err)
		return
	}
	writeJSON(w, http.StatusOK, series)
}

// HandleHistory handles GET /api/v1/history?suite=S&name=N[&limit=L] requests.
func (h *SeriesHandler) HandleHistory(w http.ResponseWriter, r *http.Request) {
	const op = "api.get_history"
	if r.Method != http.MethodGet {
		http.NotFound(w, r)
		return
	}
	suite, name, ok := seriesParams(w, r, op)
	if !ok {
		return
	}
	limit := 0
	if s := r.URL.Query().Get("limit"); s != "" {
		n, err := strconv.Atoi(s)
		if err != nil || n < 1 {
			writeError(w, http.StatusBadRequest, "bad_request", NewKind(op, ErrBadRequest))
			return
		}
		limit = n
	}
	records, err := h.deps.History(r.Context(), suite, name, limit)
	if err != nil {
		writeFailure(w, op, err)
		return
	}
	writeJSON(w, http.StatusOK, records)
}

// HandleEvaluate handles GET /api/v1/evaluate requests. Without suite and
// name every series is evaluated.
func (h *SeriesHandler) HandleEvaluate(w http.ResponseWriter, r *http.Request) {
	const op = "api.evaluate"
	if r.Method != http.MethodGet {
		http.NotFound(w, r)
		return
	}
	q := r.URL.Query()
	if q.Get("suite") == "" && q.Get("name") == "" {
		verdicts, err := h.deps.EvaluateAll(r.Context())
		if err != nil {
			writeFailure(w, op, err)
			return
		}
		writeJSON(w, http.StatusOK, verdicts)
		return
	}
	suite, name, ok := seriesParams(w, r, op)
	if !ok {
		return
	}
	verdict, err := h.deps.Evaluate(r.Context(), suite, name)
	if err != nil {
		writeFailure(w, op, err)
		return
	}
	writeJSON(w, http.StatusOK, verdict)
}

// HandleBacktest handles GET /api/v1/backtest?suite=S&name=N requests.
func (h *SeriesHandler) HandleBacktest(w http.ResponseWriter, r *http.Request) {
	const op = "api.backtest"
	if r.Method != http.MethodGet {
		http.NotFound(w, r)
		return
	}
	suite, name, ok := seriesParams(w, r, op)
	if !ok {
		return
	}
	verdicts, err := h.deps.Backtest(r.Context(), suite, name)
	if err != nil {
		writeFailure(w, op, err)
		return
	}
	writeJSON(w, http.StatusOK, verdicts)
}

// seriesParams reads the suite and name query parameters, answering 400
// when either is missing.
func seriesParams(w http.ResponseWriter, r *http.Request, op string) (suite, name string, ok bool) {
	q := r.URL.Query()
	suite, name = q.Get("suite"), q.Get("name")
	if strings.TrimSpace(suite) == "" || strings.TrimSpace(name) == "" {
		writeError(w, http.StatusBadRequest, "bad_request", NewKind(op+": suite and name are required", ErrBadRequest))
		return "", "", false
	}
	return suite, name, true
}
