package scoring

import (
	"time"

	"github.com/okian/hackcast/internal/domain/clock"
	"github.com/okian/hackcast/internal/domain/model"
	"github.com/okian/hackcast/pkg/logger"
)

// Default scoring configuration constants.
const (
	defaultHalfLife        = 2 * time.Minute
	defaultActivationFloor = 20
	defaultSwitchCadence   = 2
	defaultRecentEvents    = 10
)

// DefaultWeights returns the score added per event priority.
func DefaultWeights() map[model.Priority]float64 {
	return map[model.Priority]float64{
		model.PriorityBreaking:   100,
		model.PriorityHigh:       50,
		model.PriorityNormal:     10,
		model.PriorityBackground: 5,
	}
}

// Option applies a configuration option to the Scorer.
type Option func(*Scorer)

// WithWeights overrides the per-priority weights. Non-positive weights and
// unknown priorities are ignored.
func WithWeights(weights map[model.Priority]float64) Option {
	return func(s *Scorer) {
		for p, w := range weights {
			if p.Valid() && w > 0 {
				s.weights[p] = w
			}
		}
	}
}

// WithHalfLife sets the decay half-life.
func WithHalfLife(d time.Duration) Option {
	return func(s *Scorer) {
		if d > 0 {
			s.halfLife = d
		}
	}
}

// WithActivationFloor sets the effective score a candidate must exceed before
// it can take the air.
func WithActivationFloor(floor float64) Option {
	return func(s *Scorer) {
		if floor >= 0 {
			s.floor = floor
		}
	}
}

// WithSwitchCadence sets how many completed scenes pass between switch checks.
func WithSwitchCadence(n int) Option {
	return func(s *Scorer) {
		if n > 0 {
			s.cadence = n
		}
	}
}

// WithClock sets the time source used for decay.
func WithClock(c clock.Clock) Option {
	return func(s *Scorer) {
		if c != nil {
			s.clock = c
		}
	}
}

// WithLogger sets the logger.
func WithLogger(l logger.Logger) Option {
	return func(s *Scorer) {
		if l != nil {
			s.log = l
		}
	}
}
