package api

import (
	"net/http"
	"time"

	"github.com/google/uuid"

	"github.com/okian/hackcast/internal/domain/model"
)

type ackResponse struct {
	Status string `json:"status"`
	ID     string `json:"id"`
}

// BreakingHandler accepts manually injected news.
type BreakingHandler struct {
	injector Injector
	now      func() time.Time
}

// NewBreakingHandler creates a new breaking handler.
func NewBreakingHandler(i Injector) *BreakingHandler {
	return &BreakingHandler{injector: i, now: time.Now}
}

// HandlePostBreaking handles POST /breaking with a DomainEvent body. A
// missing id or timestamp is filled in; kind, priority and hackathon are
// required.
func (h *BreakingHandler) HandlePostBreaking(w http.ResponseWriter, r *http.Request) {
	const op = "api.post_breaking"
	if r.Method != http.MethodPost {
		http.NotFound(w, r)
		return
	}
	var ev model.DomainEvent
	if err := decodeBody(r, &ev); err != nil {
		writeKindError(w, WrapKind(op, ErrBadRequest, err))
		return
	}
	if err := ev.Validate(); err != nil {
		writeKindError(w, WrapKind(op, ErrBadRequest, err))
		return
	}
	if ev.ID == "" {
		ev.ID = uuid.NewString()
	}
	if ev.Timestamp.IsZero() {
		ev.Timestamp = h.now().UTC()
	}
	if err := h.injector.InjectEvent(r.Context(), ev); err != nil {
		writeKindError(w, Wrap(op, err))
		return
	}
	writeJSON(w, http.StatusAccepted, ackResponse{Status: "accepted", ID: ev.ID})
}
