// Package api declares HTTP contracts and route registration helpers.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/okian/killpoints/internal/adapters/mq/queue"
	"github.com/okian/killpoints/internal/adapters/repository"
	"github.com/okian/killpoints/internal/adapters/upstream"
	service "github.com/okian/killpoints/internal/app"
	"github.com/okian/killpoints/internal/domain/types"
)

// DefaultMaxLimit caps /leaderboard?limit=.
const DefaultMaxLimit = 1000

// Dependencies required by HTTP handlers. Using an interface bundle keeps
// the handler layer loosely coupled to implementations in other packages.
type Dependencies interface {
	LeaderboardDependencies
	RankDependencies
	PointsDependencies
	ExplainDependencies
	EntityDependencies
}

// Entry mirrors the read shape returned by leaderboard queries.
type Entry = types.Entry

// Server wires HTTP routes for the business API.
type Server struct {
	healthHandler      *HealthHandler
	statsHandler       *StatsHandler
	leaderboardHandler *LeaderboardHandler
	rankHandler        *RankHandler
	pointsHandler      *PointsHandler
	explainHandler     *ExplainHandler
	entitiesHandler    *EntitiesHandler
}

// NewServer creates a new API server with all handlers.
func NewServer(deps Dependencies, statsProvider StatsProvider, maxLimit int) *Server {
	if maxLimit <= 0 {
		maxLimit = DefaultMaxLimit
	}
	return &Server{
		healthHandler:      NewHealthHandler(),
		statsHandler:       NewStatsHandler(statsProvider),
		leaderboardHandler: NewLeaderboardHandler(deps, maxLimit),
		rankHandler:        NewRankHandler(deps),
		pointsHandler:      NewPointsHandler(deps),
		explainHandler:     NewExplainHandler(deps),
		entitiesHandler:    NewEntitiesHandler(deps),
	}
}

// Register attaches all HTTP routes to mux.
func (s *Server) Register(_ context.Context, mux *http.ServeMux) {
	mux.HandleFunc("GET /healthz", MetricsMiddleware(s.healthHandler.HandleHealth, "healthz"))
	mux.HandleFunc("GET /stats", MetricsMiddleware(s.statsHandler.HandleStats, "stats"))
	mux.HandleFunc("GET /leaderboard", MetricsMiddleware(s.leaderboardHandler.HandleGetLeaderboard, "leaderboard"))
	mux.HandleFunc("GET /rank/{id}", MetricsMiddleware(s.rankHandler.HandleGetRank, "rank"))
	mux.HandleFunc("GET /points/{id}", MetricsMiddleware(s.pointsHandler.HandleGetPoints, "points"))
	mux.HandleFunc("GET /breakdown/{id}", MetricsMiddleware(s.pointsHandler.HandleGetBreakdown, "breakdown"))
	mux.HandleFunc("GET /explain/{kill}", MetricsMiddleware(s.explainHandler.HandleExplain, "explain"))
	mux.HandleFunc("GET /explain/{kill}/{hash}", MetricsMiddleware(s.explainHandler.HandleExplain, "explain"))
	mux.HandleFunc("POST /entities", MetricsMiddleware(s.entitiesHandler.HandleTrack, "entities"))
	mux.HandleFunc("DELETE /entities/{id}", MetricsMiddleware(s.entitiesHandler.HandleUntrack, "entities"))
	mux.HandleFunc("POST /entities/{id}/refresh", MetricsMiddleware(s.entitiesHandler.HandleRefresh, "entities"))
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

// writeServiceError maps service and upstream failures to HTTP answers.
// Any upstream failure, a 4xx on one killmail included, is unavailability.
func writeServiceError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, upstream.ErrDataUnavailable):
		writeError(w, http.StatusServiceUnavailable, "upstream_unavailable",
			errors.New("upstream unavailable, try later"))
	case errors.Is(err, repository.ErrNotFound), errors.Is(err, upstream.ErrUnknownCharacter):
		writeError(w, http.StatusNotFound, "not_found", err)
	case errors.Is(err, service.ErrNotStarted):
		writeError(w, http.StatusServiceUnavailable, "not_started", err)
	case errors.Is(err, queue.ErrFull):
		writeError(w, http.StatusTooManyRequests, "backpressure", err)
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		writeError(w, http.StatusGatewayTimeout, "timeout", err)
	default:
		writeError(w, http.StatusInternalServerError, "internal_error", err)
	}
}

// pathID parses a positive int64 path value.
func pathID(r *http.Request, name string) (int64, error) {
	id, err := strconv.ParseInt(r.PathValue(name), 10, 64)
	if err != nil || id <= 0 {
		return 0, ErrBadID
	}
	return id, nil
}
