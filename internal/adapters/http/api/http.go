// Package api serves the renderer surface: broadcast state, hotness scores,
// master-user controls and the live WebSocket stream.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"github.com/okian/hackcast/internal/domain/gate"
	"github.com/okian/hackcast/internal/domain/model"
	"github.com/okian/hackcast/internal/domain/types"
)

// Broadcast exposes the read side of the playback machine. Every frame is
// read under one lock, so its commentary index always fits its content.
type Broadcast interface {
	Frame() types.Frame
	Subscribe() (<-chan types.Frame, func())
}

// Scores exposes the hotness board.
type Scores interface {
	SnapshotScores() []types.Entry
}

// Controls are the master-user pause toggles and viewer inputs.
type Controls interface {
	SetManualPause(paused bool)
	SetAutoPauseEnabled(enabled bool)
	GateState() gate.State
	// SetPresenceViewers reports viewers counted outside the stream.
	SetPresenceViewers(n int)
	// SetStreamClients reports the number of open stream connections.
	SetStreamClients(n int)
}

// Injector routes an externally supplied event as if it came from the feed.
type Injector interface {
	InjectEvent(ctx context.Context, ev model.DomainEvent) error
}

// Dependencies required by HTTP handlers. Using an interface bundle keeps
// the handler layer loosely coupled to implementations in other packages.
type Dependencies interface {
	Broadcast
	Scores
	Controls
	Injector
}

// Server wires HTTP routes for the renderer API.
type Server struct {
	healthHandler    *HealthHandler
	statsHandler     *StatsHandler
	broadcastHandler *BroadcastHandler
	controlHandler   *ControlHandler
	breakingHandler  *BreakingHandler
	hub              *Hub
}

// NewServer creates a new API server with all handlers.
func NewServer(deps Dependencies, statsProvider StatsProvider, opts ...HubOption) *Server {
	return &Server{
		healthHandler:    NewHealthHandler(),
		statsHandler:     NewStatsHandler(statsProvider),
		broadcastHandler: NewBroadcastHandler(deps, deps),
		controlHandler:   NewControlHandler(deps),
		breakingHandler:  NewBreakingHandler(deps),
		hub:              NewHub(deps, deps.SetStreamClients, opts...),
	}
}

// Hub returns the WebSocket hub so the caller can run and stop it.
func (s *Server) Hub() *Hub {
	return s.hub
}

// Register attaches all HTTP routes to mux.
func (s *Server) Register(mux *http.ServeMux) {
	mux.HandleFunc("/healthz", MetricsMiddleware(s.healthHandler.HandleHealth, "healthz"))
	mux.HandleFunc("/stats", MetricsMiddleware(s.statsHandler.HandleStats, "stats"))
	mux.HandleFunc("/state", MetricsMiddleware(s.broadcastHandler.HandleState, "state"))
	mux.HandleFunc("/scores", MetricsMiddleware(s.broadcastHandler.HandleScores, "scores"))
	mux.HandleFunc("/control/pause", MetricsMiddleware(s.controlHandler.HandlePause, "control_pause"))
	mux.HandleFunc("/control/resume", MetricsMiddleware(s.controlHandler.HandleResume, "control_resume"))
	mux.HandleFunc("/control/auto-pause", MetricsMiddleware(s.controlHandler.HandleAutoPause, "control_auto_pause"))
	mux.HandleFunc("/presence", MetricsMiddleware(s.controlHandler.HandlePresence, "presence"))
	mux.HandleFunc("/breaking", MetricsMiddleware(s.breakingHandler.HandlePostBreaking, "breaking"))
	mux.HandleFunc("/ws", MetricsMiddleware(s.hub.HandleWebSocket, "ws"))
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

// writeKindError picks the status from the error kind.
func writeKindError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, ErrBadRequest):
		writeError(w, http.StatusBadRequest, "bad_request", err)
	case errors.Is(err, ErrUnavailable):
		writeError(w, http.StatusServiceUnavailable, "unavailable", err)
	default:
		writeError(w, http.StatusInternalServerError, "internal_error", err)
	}
}

func decodeBody(r *http.Request, v any) error {
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	return dec.Decode(v)
}
