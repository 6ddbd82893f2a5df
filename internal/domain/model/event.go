// Package model contains domain models passed between layers.
package model

import (
	"encoding/json"
	"fmt"
	"strconv"
	"time"
)

// ChangeType is the kind of row mutation a change notification carries.
type ChangeType string

// Change types delivered by the change feed.
const (
	ChangeInsert ChangeType = "INSERT"
	ChangeUpdate ChangeType = "UPDATE"
)

// RawChange is an untyped row change as delivered by the change feed.
// The JSON shape follows the realtime payload of the backend.
type RawChange struct {
	Table           string         `json:"table"`
	Type            ChangeType     `json:"type"`
	Record          map[string]any `json:"record"`
	OldRecord       map[string]any `json:"old_record,omitempty"`
	CommitTimestamp time.Time      `json:"commit_timestamp"`
}

// RowID returns the "id" column of the new row, or of the old row for updates.
func (c RawChange) RowID() string {
	if id := StringField(c.Record, "id"); id != "" {
		return id
	}
	return StringField(c.OldRecord, "id")
}

// Kind classifies a DomainEvent.
type Kind string

// Event kinds. The set is closed; see Valid.
const (
	KindBetPlaced    Kind = "bet_placed"
	KindOddsChange   Kind = "odds_change"
	KindTeamUpdate   Kind = "team_update"
	KindMilestone    Kind = "milestone"
	KindBreakingNews Kind = "breaking_news"
	KindMarketOpened Kind = "market_opened"
)

// Valid reports whether k is one of the known kinds.
func (k Kind) Valid() bool {
	switch k {
	case KindBetPlaced, KindOddsChange, KindTeamUpdate, KindMilestone, KindBreakingNews, KindMarketOpened:
		return true
	}
	return false
}

// Priority ranks how newsworthy an event is.
type Priority string

// Priorities from most to least urgent.
const (
	PriorityBreaking   Priority = "breaking"
	PriorityHigh       Priority = "high"
	PriorityNormal     Priority = "normal"
	PriorityBackground Priority = "background"
)

// Valid reports whether p is one of the known priorities.
func (p Priority) Valid() bool {
	switch p {
	case PriorityBreaking, PriorityHigh, PriorityNormal, PriorityBackground:
		return true
	}
	return false
}

// DomainEvent is a normalized signal derived from a backend change row.
type DomainEvent struct {
	ID            string    `json:"id"`
	HackathonID   string    `json:"hackathon_id"`
	HackathonName string    `json:"hackathon_name"`
	Kind          Kind      `json:"kind"`
	TeamName      string    `json:"team_name,omitempty"`
	MetricType    string    `json:"metric_type"`
	CurrentValue  float64   `json:"current_value"`
	Delta         float64   `json:"delta"`
	Priority      Priority  `json:"priority"`
	Timestamp     time.Time `json:"timestamp"`
}

// IsBreaking reports whether the event carries breaking priority.
func (e DomainEvent) IsBreaking() bool {
	return e.Priority == PriorityBreaking
}

// Validate checks the fields required to route the event.
func (e DomainEvent) Validate() error {
	switch {
	case e.HackathonID == "":
		return fmt.Errorf("missing hackathon_id")
	case !e.Kind.Valid():
		return fmt.Errorf("unknown kind %q", e.Kind)
	case !e.Priority.Valid():
		return fmt.Errorf("unknown priority %q", e.Priority)
	}
	return nil
}

// StringField reads a column as a string. Numbers are formatted without
// exponent so numeric primary keys still produce stable ids.
func StringField(row map[string]any, key string) string {
	v, ok := row[key]
	if !ok || v == nil {
		return ""
	}
	switch t := v.(type) {
	case string:
		return t
	case float64:
		return strconv.FormatFloat(t, 'f', -1, 64)
	case int:
		return strconv.Itoa(t)
	case int64:
		return strconv.FormatInt(t, 10)
	case json.Number:
		return t.String()
	default:
		return fmt.Sprint(t)
	}
}

// NumberField reads a column as a float64. The second result is false when
// the column is missing or not numeric.
func NumberField(row map[string]any, key string) (float64, bool) {
	v, ok := row[key]
	if !ok || v == nil {
		return 0, false
	}
	switch t := v.(type) {
	case float64:
		return t, true
	case float32:
		return float64(t), true
	case int:
		return float64(t), true
	case int64:
		return float64(t), true
	case json.Number:
		f, err := t.Float64()
		return f, err == nil
	case string:
		f, err := strconv.ParseFloat(t, 64)
		return f, err == nil
	}
	return 0, false
}
