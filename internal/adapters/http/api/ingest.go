package api

import (
	"context"
	"encoding/json"
	"net/http"
	"strconv"
	"strings"

	"github.com/okian/benchtrack/internal/adapters/publisher"
	"github.com/okian/benchtrack/internal/domain/types"
)

// maxIngestBytes bounds one uploaded run.
const maxIngestBytes = 8 << 20

// IngestDependencies defines the interface for ingestion.
type IngestDependencies interface {
	// Ingest applies a run before returning.
	Ingest(ctx context.Context, req types.IngestRequest) (types.IngestReport, error)
	// Submit queues a run for the workers.
	Submit(ctx context.Context, req types.IngestRequest) (types.IngestReport, error)
}

// IngestHandler handles ingestion requests.
type IngestHandler struct {
	deps IngestDependencies
}

// NewIngestHandler creates a new ingest handler.
func NewIngestHandler(deps IngestDependencies) *IngestHandler {
	return &IngestHandler{deps: deps}
}

// HandlePostIngest handles POST /api/v1/ingest requests. The body is one
// benchmark action entry tagged with its suite. With ?sync=true the run is
// applied and evaluated before the response; otherwise it is queued.
func (h *IngestHandler) HandlePostIngest(w http.ResponseWriter, r *http.Request) {
	const op = "api.post_ingest"
	if r.Method != http.MethodPost {
		http.NotFound(w, r)
		return
	}
	sync, err := parseBool(r.URL.Query().Get("sync"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "bad_request", WrapKind(op, ErrBadRequest, err))
		return
	}

	var run publisher.Run
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxIngestBytes)).Decode(&run); err != nil {
		writeError(w, http.StatusBadRequest, "bad_request", WrapKind(op, ErrBadRequest, err))
		return
	}
	if strings.TrimSpace(run.Suite) == "" {
		writeError(w, http.StatusBadRequest, "bad_request", NewKind(op+": missing suite", ErrBadRequest))
		return
	}
	if len(run.Benches) == 0 {
		writeError(w, http.StatusBadRequest, "bad_request", NewKind(op+": missing benches", ErrBadRequest))
		return
	}
	req, err := run.Request()
	if err != nil {
		writeError(w, http.StatusBadRequest, "bad_request", WrapKind(op, ErrBadRequest, err))
		return
	}

	if sync {
		report, err := h.deps.Ingest(r.Context(), req)
		if err != nil {
			writeFailure(w, op, err)
			return
		}
		writeJSON(w, http.StatusOK, report)
		return
	}

	report, err := h.deps.Submit(r.Context(), req)
	if err != nil {
		writeFailure(w, op, err)
		return
	}
	status := http.StatusAccepted
	if report.Status != types.StatusQueued {
		status = http.StatusOK
	}
	writeJSON(w, status, report)
}

func parseBool(s string) (bool, error) {
	if s == "" {
		return false, nil
	}
	return strconv.ParseBool(s)
}
