// Package types contains common types used across the application
package types

import "github.com/okian/hackcast/internal/domain/model"

// Entry represents one row of the hotness board.
type Entry struct {
	Rank           int     `json:"rank"`
	HackathonID    string  `json:"hackathon_id"`
	HackathonName  string  `json:"hackathon_name"`
	EffectiveScore float64 `json:"effective_score"`
	Active         bool    `json:"active"`
}

// CurrentLine is the commentary line being narrated right now. All fields
// are empty outside content delivery.
type CurrentLine struct {
	Text     string `json:"text"`
	Speaker  string `json:"speaker"`
	Priority string `json:"priority"`
}

// Frame is one coherent view of the broadcast: the state, the content it
// indexes into and the line being narrated, all read at the same instant.
type Frame struct {
	State       model.PlaybackState   `json:"state"`
	Content     *model.SegmentContent `json:"content,omitempty"`
	CurrentLine CurrentLine           `json:"current_line"`
}
