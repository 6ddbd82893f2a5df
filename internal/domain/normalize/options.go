package normalize

import (
	"time"

	"github.com/okian/hackcast/internal/domain/clock"
	"github.com/okian/hackcast/internal/domain/dedupe"
	"github.com/okian/hackcast/pkg/logger"
)

// Thresholds are the magnitude cut-offs used to filter and classify changes.
// All comparisons are strict (value > threshold).
type Thresholds struct {
	BetBreakingStake  float64 `koanf:"bet_breaking_stake"`
	OddsNoise         float64 `koanf:"odds_noise"`
	OddsBreaking      float64 `koanf:"odds_breaking"`
	MomentumNoise     float64 `koanf:"momentum_noise"`
	MomentumHigh      float64 `koanf:"momentum_high"`
	MomentumBreaking  float64 `koanf:"momentum_breaking"`
	SentimentBreaking float64 `koanf:"sentiment_breaking"`
}

// DefaultThresholds returns the stock cut-offs.
func DefaultThresholds() Thresholds {
	return Thresholds{
		BetBreakingStake:  500,
		OddsNoise:         1,
		OddsBreaking:      10,
		MomentumNoise:     3,
		MomentumHigh:      5,
		MomentumBreaking:  15,
		SentimentBreaking: 0.7,
	}
}

const defaultDedupBucket = 5 * time.Second

// Option applies a configuration option to the Normalizer.
type Option func(*Normalizer)

// WithThresholds overrides the classification cut-offs.
func WithThresholds(t Thresholds) Option {
	return func(n *Normalizer) {
		n.thresholds = t
	}
}

// WithDeduper sets the seen-id tracker.
func WithDeduper(d dedupe.Deduper) Option {
	return func(n *Normalizer) {
		if d != nil {
			n.deduper = d
		}
	}
}

// WithDedupBucket sets the coarse time bucket folded into synthetic ids.
func WithDedupBucket(d time.Duration) Option {
	return func(n *Normalizer) {
		if d > 0 {
			n.bucket = d
		}
	}
}

// WithClock sets the clock used when a change carries no commit timestamp.
func WithClock(c clock.Clock) Option {
	return func(n *Normalizer) {
		if c != nil {
			n.clock = c
		}
	}
}

// WithLogger sets the logger.
func WithLogger(l logger.Logger) Option {
	return func(n *Normalizer) {
		if l != nil {
			n.log = l
		}
	}
}
