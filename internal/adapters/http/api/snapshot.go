package api

import (
	"context"
	"net/http"
)

// SnapshotDependencies defines the interface for rendering the feed.
type SnapshotDependencies interface {
	Emit(ctx context.Context) ([]byte, error)
	EmitJS(ctx context.Context) ([]byte, error)
}

// SnapshotHandler serves the dashboard feed.
type SnapshotHandler struct {
	deps SnapshotDependencies
}

// NewSnapshotHandler creates a new snapshot handler.
func NewSnapshotHandler(deps SnapshotDependencies) *SnapshotHandler {
	return &SnapshotHandler{deps: deps}
}

// HandleSnapshot handles GET /api/v1/snapshot requests.
func (h *SnapshotHandler) HandleSnapshot(w http.ResponseWriter, r *http.Request) {
	h.serve(w, r, "api.snapshot", "application/json; charset=utf-8", h.deps.Emit)
}

// HandleDataJS handles GET /data.js requests with the script the benchmark
// dashboard loads.
func (h *SnapshotHandler) HandleDataJS(w http.ResponseWriter, r *http.Request) {
	h.serve(w, r, "api.data_js", "application/javascript; charset=utf-8", h.deps.EmitJS)
}

func (h *SnapshotHandler) serve(w http.ResponseWriter, r *http.Request, op, contentType string, emit func(context.Context) ([]byte, error)) {
	if r.Method != http.MethodGet && r.Method != http.MethodHead {
		http.NotFound(w, r)
		return
	}
	body, err := emit(r.Context())
	if err != nil {
		writeFailure(w, op, err)
		return
	}
	w.Header().Set("Content-Type", contentType)
	w.Header().Set("Cache-Control", "no-cache")
	w.WriteHeader(http.StatusOK)
	if r.Method == http.MethodGet {
		_, _ = w.Write(body)
	}
}
