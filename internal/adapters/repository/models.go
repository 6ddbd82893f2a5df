package repository

import "time"

// HackathonRow is one row of the hackathons table.
type HackathonRow struct {
	ID        string `gorm:"primaryKey"`
	Name      string `gorm:"not null"`
	Status    string `gorm:"index"`
	CreatedAt time.Time
}

// TableName overrides the default pluralization.
func (HackathonRow) TableName() string { return "hackathons" }

// Record returns the row as a change-feed record.
func (h HackathonRow) Record() map[string]any {
	return map[string]any{"id": h.ID, "name": h.Name, "status": h.Status}
}

// TeamRow is one row of the teams table.
type TeamRow struct {
	ID          string `gorm:"primaryKey"`
	Name        string `gorm:"not null"`
	HackathonID string `gorm:"index;not null"`
	Momentum    float64
	Milestone   string
	UpdatedAt   time.Time
}

// TableName overrides the default pluralization.
func (TeamRow) TableName() string { return "teams" }

// Record returns the row as a change-feed record.
func (t TeamRow) Record() map[string]any {
	return map[string]any{
		"id":           t.ID,
		"name":         t.Name,
		"hackathon_id": t.HackathonID,
		"momentum":     t.Momentum,
		"milestone":    t.Milestone,
	}
}

// MarketRow is one row of the markets table. TeamID is empty for markets on
// the hackathon as a whole.
type MarketRow struct {
	ID          string `gorm:"primaryKey"`
	Title       string `gorm:"not null"`
	HackathonID string `gorm:"index;not null"`
	TeamID      string
	Odds        float64
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// TableName overrides the default pluralization.
func (MarketRow) TableName() string { return "markets" }

// Record returns the row as a change-feed record.
func (m MarketRow) Record() map[string]any {
	return map[string]any{
		"id":           m.ID,
		"title":        m.Title,
		"hackathon_id": m.HackathonID,
		"team_id":      m.TeamID,
		"odds":         m.Odds,
	}
}

// BetRow is one row of the bets table.
type BetRow struct {
	ID        string  `gorm:"primaryKey"`
	MarketID  string  `gorm:"index;not null"`
	Amount    float64 `gorm:"not null"`
	CreatedAt time.Time
}

// TableName overrides the default pluralization.
func (BetRow) TableName() string { return "bets" }

// Record returns the row as a change-feed record.
func (b BetRow) Record() map[string]any {
	return map[string]any{"id": b.ID, "market_id": b.MarketID, "amount": b.Amount}
}

// CommentaryRow is one row of the commentary table.
type CommentaryRow struct {
	ID          string `gorm:"primaryKey"`
	HackathonID string `gorm:"index;not null"`
	TeamID      string
	Text        string
	Sentiment   float64
	CreatedAt   time.Time
}

// TableName overrides the default pluralization.
func (CommentaryRow) TableName() string { return "commentary" }

// Record returns the row as a change-feed record.
func (c CommentaryRow) Record() map[string]any {
	return map[string]any{
		"id":           c.ID,
		"hackathon_id": c.HackathonID,
		"team_id":      c.TeamID,
		"text":         c.Text,
		"sentiment":    c.Sentiment,
	}
}

// allModels lists every table in migration order.
func allModels() []any {
	return []any{&HackathonRow{}, &TeamRow{}, &MarketRow{}, &BetRow{}, &CommentaryRow{}}
}
