package api

import (
	"context"
	"net/http"

	"github.com/okian/killpoints/internal/domain/types"
)

// PointsDependencies computes live totals.
type PointsDependencies interface {
	Points(ctx context.Context, entityID int64) (float64, error)
	Breakdown(ctx context.Context, entityID int64) ([]types.Breakdown, float64, error)
}

type pointsResponse struct {
	EntityID int64   `json:"entity_id"`
	Points   float64 `json:"points"`
}

type breakdownResponse struct {
	EntityID int64             `json:"entity_id"`
	Points   float64           `json:"points"`
	Chains   []types.Breakdown `json:"chains"`
}

// PointsHandler serves live totals and chain breakdowns.
type PointsHandler struct {
	deps PointsDependencies
}

// NewPointsHandler creates a new points handler.
func NewPointsHandler(deps PointsDependencies) *PointsHandler {
	return &PointsHandler{deps: deps}
}

// HandleGetPoints handles GET /points/{id}. An entity without recent kills
// scores zero.
func (h *PointsHandler) HandleGetPoints(w http.ResponseWriter, r *http.Request) {
	const op = "api.get_points"
	id, err := pathID(r, "id")
	if err != nil {
		writeError(w, http.StatusBadRequest, "bad_request", opError(op, err))
		return
	}
	total, err := h.deps.Points(r.Context(), id)
	if err != nil {
		writeServiceError(w, opError(op, err))
		return
	}
	writeJSON(w, http.StatusOK, pointsResponse{EntityID: id, Points: total})
}

// HandleGetBreakdown handles GET /breakdown/{id}.
func (h *PointsHandler) HandleGetBreakdown(w http.ResponseWriter, r *http.Request) {
	const op = "api.get_breakdown"
	id, err := pathID(r, "id")
	if err != nil {
		writeError(w, http.StatusBadRequest, "bad_request", opError(op, err))
		return
	}
	chains, total, err := h.deps.Breakdown(r.Context(), id)
	if err != nil {
		writeServiceError(w, opError(op, err))
		return
	}
	if chains == nil {
		chains = []types.Breakdown{}
	}
	writeJSON(w, http.StatusOK, breakdownResponse{EntityID: id, Points: total, Chains: chains})
}
