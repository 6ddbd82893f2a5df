package api

import (
	"errors"
	"net/http"
)

type autoPauseRequest struct {
	Enabled *bool `json:"enabled"`
}

type presenceRequest struct {
	Viewers *int `json:"viewers"`
}

// ControlHandler handles the master-user controls and presence reports.
type ControlHandler struct {
	controls Controls
}

// NewControlHandler creates a new control handler.
func NewControlHandler(c Controls) *ControlHandler {
	return &ControlHandler{controls: c}
}

// HandlePause handles POST /control/pause requests.
func (h *ControlHandler) HandlePause(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.NotFound(w, r)
		return
	}
	h.controls.SetManualPause(true)
	writeJSON(w, http.StatusOK, h.controls.GateState())
}

// HandleResume handles POST /control/resume requests. It clears the manual
// pause only; a system pause stays until a viewer arrives.
func (h *ControlHandler) HandleResume(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.NotFound(w, r)
		return
	}
	h.controls.SetManualPause(false)
	writeJSON(w, http.StatusOK, h.controls.GateState())
}

// HandleAutoPause handles POST /control/auto-pause {"enabled": bool}.
func (h *ControlHandler) HandleAutoPause(w http.ResponseWriter, r *http.Request) {
	const op = "api.auto_pause"
	if r.Method != http.MethodPost {
		http.NotFound(w, r)
		return
	}
	var req autoPauseRequest
	if err := decodeBody(r, &req); err != nil {
		writeKindError(w, WrapKind(op, ErrBadRequest, err))
		return
	}
	if req.Enabled == nil {
		writeKindError(w, WrapKind(op, ErrBadRequest, errors.New("missing enabled")))
		return
	}
	h.controls.SetAutoPauseEnabled(*req.Enabled)
	writeJSON(w, http.StatusOK, h.controls.GateState())
}

// HandlePresence handles POST /presence {"viewers": n}.
func (h *ControlHandler) HandlePresence(w http.ResponseWriter, r *http.Request) {
	const op = "api.presence"
	if r.Method != http.MethodPost {
		http.NotFound(w, r)
		return
	}
	var req presenceRequest
	if err := decodeBody(r, &req); err != nil {
		writeKindError(w, WrapKind(op, ErrBadRequest, err))
		return
	}
	if req.Viewers == nil || *req.Viewers < 0 {
		writeKindError(w, WrapKind(op, ErrBadRequest, errors.New("viewers must be a non-negative integer")))
		return
	}
	h.controls.SetPresenceViewers(*req.Viewers)
	writeJSON(w, http.StatusOK, h.controls.GateState())
}
