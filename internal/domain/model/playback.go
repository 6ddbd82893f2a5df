package model

import "time"

// Phase is a state of the segment playback machine.
type Phase string

// Playback phases, in cycle order.
const (
	PhaseBumperIn        Phase = "BUMPER_IN"
	PhaseContentDelivery Phase = "CONTENT_DELIVERY"
	PhaseBumperOut       Phase = "BUMPER_OUT"
	PhaseTransition      Phase = "TRANSITION"
	PhaseHackathonSwitch Phase = "HACKATHON_SWITCH"
)

// PlaybackState is the read-only snapshot renderers consume.
type PlaybackState struct {
	Phase                Phase   `json:"phase"`
	SceneIndex           int     `json:"scene_index"`
	Scene                Scene   `json:"scene"`
	CommentaryIndex      int     `json:"commentary_index"`
	ProgressPercent      float64 `json:"progress_percent"`
	IsTransitioning      bool    `json:"is_transitioning"`
	IsHackathonSwitching bool    `json:"is_hackathon_switching"`
	ShowBumper           bool    `json:"show_bumper"`
	ActiveHackathonID    string  `json:"active_hackathon_id"`
	ActiveHackathonName  string  `json:"active_hackathon_name"`
	Initializing         bool    `json:"initializing"`
	Paused               bool    `json:"paused"`
	SwitchPending        bool    `json:"switch_pending"`
	HasAired             bool    `json:"has_aired"`
	Version              uint64  `json:"version"`
}

// HackathonScore is the running hotness of one hackathon.
type HackathonScore struct {
	HackathonID   string
	HackathonName string
	Score         float64
	LastEventTime time.Time
	RecentEvents  *EventRing
}

// EventRing is a fixed-capacity ring of recent events; the oldest entry is
// overwritten first.
type EventRing struct {
	buf   []DomainEvent
	start int
	size  int
}

// NewEventRing creates a ring holding at most capacity events.
func NewEventRing(capacity int) *EventRing {
	if capacity < 1 {
		capacity = 1
	}
	return &EventRing{buf: make([]DomainEvent, capacity)}
}

// Push appends e, dropping the oldest entry when full.
func (r *EventRing) Push(e DomainEvent) {
	idx := (r.start + r.size) % len(r.buf)
	r.buf[idx] = e
	if r.size < len(r.buf) {
		r.size++
		return
	}
	r.start = (r.start + 1) % len(r.buf)
}

// Len returns the number of stored events.
func (r *EventRing) Len() int { return r.size }

// Items returns the events oldest first.
func (r *EventRing) Items() []DomainEvent {
	out := make([]DomainEvent, r.size)
	for i := 0; i < r.size; i++ {
		out[i] = r.buf[(r.start+i)%len(r.buf)]
	}
	return out
}
