package api

import (
	"context"
	"net/http"
	"strconv"

	"github.com/okian/benchtrack/internal/domain/types"
)

// AlertDependencies defines the interface for reading raised regressions.
type AlertDependencies interface {
	Alerts(ctx context.Context, n int) ([]types.Alert, error)
}

// AlertsHandler handles alert requests.
type AlertsHandler struct {
	deps     AlertDependencies
	maxLimit int
}

// NewAlertsHandler creates a new alerts handler.
func NewAlertsHandler(deps AlertDependencies, maxLimit int) *AlertsHandler {
	if maxLimit < 1 {
		maxLimit = defaultAlertLimit
	}
	return &AlertsHandler{deps: deps, maxLimit: maxLimit}
}

// HandleGetAlerts handles GET /api/v1/alerts[?limit=N] requests, newest first.
func (h *AlertsHandler) HandleGetAlerts(w http.ResponseWriter, r *http.Request) {
	const op = "api.get_alerts"
	if r.Method != http.MethodGet {
		http.NotFound(w, r)
		return
	}
	n := min(defaultAlertLimit, h.maxLimit)
	if s := r.URL.Query().Get("limit"); s != "" {
		v, err := strconv.Atoi(s)
		if err != nil || v < 1 {
			writeError(w, http.StatusBadRequest, "bad_request", NewKind(op, ErrBadRequest))
			return
		}
		if v > h.maxLimit {
			writeError(w, http.StatusBadRequest, "limit_exceeded", NewKind(op, ErrBadRequest))
			return
		}
		n = v
	}
	alerts, err := h.deps.Alerts(r.Context(), n)
	if err != nil {
		writeFailure(w, op, err)
		return
	}
	writeJSON(w, http.StatusOK, alerts)
}
