package model

// Hackathon is the broadcast channel an event belongs to.
type Hackathon struct {
	ID     string
	Name   string
	Status string
}

// Team is a competing team; HackathonID never changes once assigned.
type Team struct {
	ID          string
	Name        string
	HackathonID string
	Momentum    float64
	Milestone   string
}

// Market is a prediction market, optionally attached to a team.
type Market struct {
	ID          string
	Title       string
	HackathonID string
	TeamID      string
	Odds        float64
}

// Facts is the backend context a scene is narrated from.
type Facts struct {
	HackathonName string
	TopTeams      []Team
	HotMarkets    []Market
	BetCount      int
	TotalStaked   float64
}
