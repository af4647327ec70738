package api

import (
	"context"
	"errors"
	"net/http"
	"strconv"

	"github.com/okian/killpoints/internal/adapters/upstream"
	service "github.com/okian/killpoints/internal/app"
)

// ExplainDependencies scores a single kill.
type ExplainDependencies interface {
	Explain(ctx context.Context, killID int64, hash string, perspective int64) (service.Explanation, error)
}

// ExplainHandler handles explain requests.
type ExplainHandler struct {
	deps ExplainDependencies
}

// NewExplainHandler creates a new explain handler.
func NewExplainHandler(deps ExplainDependencies) *ExplainHandler {
	return &ExplainHandler{deps: deps}
}

// HandleExplain handles GET /explain/{kill}[/{hash}]?perspective=<entity id>.
// Without a hash the kill is looked up by id.
func (h *ExplainHandler) HandleExplain(w http.ResponseWriter, r *http.Request) {
	const op = "api.explain"
	killID, err := pathID(r, "kill")
	if err != nil {
		writeError(w, http.StatusBadRequest, "bad_request", opError(op, err))
		return
	}
	var perspective int64
	if raw := r.URL.Query().Get("perspective"); raw != "" {
		perspective, err = strconv.ParseInt(raw, 10, 64)
		if err != nil || perspective < 0 {
			writeError(w, http.StatusBadRequest, "bad_request", opError(op, ErrBadID))
			return
		}
	}
	exp, err := h.deps.Explain(r.Context(), killID, r.PathValue("hash"), perspective)
	if err != nil {
		// The kill itself is what was asked for, so an upstream 404 is ours.
		if errors.Is(err, upstream.ErrNotFound) {
			writeError(w, http.StatusNotFound, "not_found", opError(op, err))
			return
		}
		writeServiceError(w, opError(op, err))
		return
	}
	writeJSON(w, http.StatusOK, exp)
}
