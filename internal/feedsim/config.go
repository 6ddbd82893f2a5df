// Package feedsim drives a running hackcast service through its change feed:
// it mutates the backend, publishes the matching row changes and checks the
// hotness board afterwards.
package feedsim

import (
	"time"

	"github.com/okian/hackcast/internal/adapters/feed"
	"github.com/okian/hackcast/internal/adapters/repository"
)

// Config holds configuration for a simulation run.
type Config struct {
	BaseURL  string            // Base URL of the service
	Redis    feed.Options      // Change feed connection
	Database repository.Config // Backend shared with the service
	Seed     bool              // Insert the demo dataset first

	NumChanges int           // Number of background changes to publish
	Workers    int           // Number of concurrent publishers
	Hot        string        // Hackathon that receives breaking bets; empty picks the last live one
	HotBets    int           // Number of breaking bets on Hot
	Settle     time.Duration // Wait between publishing and verification
	Timeout    time.Duration // HTTP request timeout
	RandSeed   int64         // Plan seed; zero uses the clock
	Verbose    bool          // Log every published change
}

// Stats holds run statistics.
type Stats struct {
	ChangesPlanned   int
	ChangesPublished int
	ChangesFailed    int
	StartTime        time.Time
	EndTime          time.Time
	Duration         time.Duration
}
