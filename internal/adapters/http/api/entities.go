package api

import (
	"context"
	"encoding/json"
	"net/http"
)

// EntityDependencies manages the tracked entity set.
type EntityDependencies interface {
	Track(ctx context.Context, entityID int64) error
	Untrack(ctx context.Context, entityID int64) error
	RefreshEntity(ctx context.Context, entityID int64) error
}

// trackRequest mirrors the OpenAPI schema for POST /entities.
type trackRequest struct {
	EntityID int64 `json:"entity_id"`
}

type ackResponse struct {
	Status   string `json:"status"`
	EntityID int64  `json:"entity_id"`
}

// EntitiesHandler handles tracking requests.
type EntitiesHandler struct {
	deps EntityDependencies
}

// NewEntitiesHandler creates a new entities handler.
func NewEntitiesHandler(deps EntityDependencies) *EntitiesHandler {
	return &EntitiesHandler{deps: deps}
}

// HandleTrack handles POST /entities. The first computation is queued.
func (h *EntitiesHandler) HandleTrack(w http.ResponseWriter, r *http.Request) {
	const op = "api.track"
	var req trackRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "bad_request", opError(op, ErrBadRequest))
		return
	}
	if req.EntityID <= 0 {
		writeError(w, http.StatusBadRequest, "bad_request", opError(op, ErrBadID))
		return
	}
	if err := h.deps.Track(r.Context(), req.EntityID); err != nil {
		writeServiceError(w, opError(op, err))
		return
	}
	writeJSON(w, http.StatusAccepted, ackResponse{Status: "tracked", EntityID: req.EntityID})
}

// HandleUntrack handles DELETE /entities/{id}.
func (h *EntitiesHandler) HandleUntrack(w http.ResponseWriter, r *http.Request) {
	const op = "api.untrack"
	id, err := pathID(r, "id")
	if err != nil {
		writeError(w, http.StatusBadRequest, "bad_request", opError(op, err))
		return
	}
	if err := h.deps.Untrack(r.Context(), id); err != nil {
		writeServiceError(w, opError(op, err))
		return
	}
	writeJSON(w, http.StatusOK, ackResponse{Status: "untracked", EntityID: id})
}

// HandleRefresh handles POST /entities/{id}/refresh.
func (h *EntitiesHandler) HandleRefresh(w http.ResponseWriter, r *http.Request) {
	const op = "api.refresh"
	id, err := pathID(r, "id")
	if err != nil {
		writeError(w, http.StatusBadRequest, "bad_request", opError(op, err))
		return
	}
	if err := h.deps.RefreshEntity(r.Context(), id); err != nil {
		writeServiceError(w, opError(op, err))
		return
	}
	writeJSON(w, http.StatusAccepted, ackResponse{Status: "queued", EntityID: id})
}
