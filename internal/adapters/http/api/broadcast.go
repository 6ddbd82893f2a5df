package api

import (
	"net/http"

	"github.com/okian/hackcast/internal/domain/types"
)

// BroadcastHandler serves the read side of the broadcast.
type BroadcastHandler struct {
	broadcast Broadcast
	scores    Scores
}

// NewBroadcastHandler creates a new broadcast handler.
func NewBroadcastHandler(b Broadcast, s Scores) *BroadcastHandler {
	return &BroadcastHandler{broadcast: b, scores: s}
}

// HandleState handles GET /state requests.
func (h *BroadcastHandler) HandleState(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.NotFound(w, r)
		return
	}
	writeJSON(w, http.StatusOK, h.broadcast.Frame())
}

// HandleScores handles GET /scores requests.
func (h *BroadcastHandler) HandleScores(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.NotFound(w, r)
		return
	}
	entries := h.scores.SnapshotScores()
	if entries == nil {
		entries = []types.Entry{}
	}
	writeJSON(w, http.StatusOK, entries)
}
