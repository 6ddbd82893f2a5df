package content

import (
	"math/rand"
	"time"

	"github.com/okian/hackcast/pkg/logger"
)

// Default generation parameters.
const (
	defaultMinLines         = 3
	defaultMaxLines         = 5
	defaultTickerLimit      = 8
	defaultNarrationTimeout = 8 * time.Second
	defaultWordsPerSecond   = 2.5
	defaultMinLineDuration  = 4.0
)

// Option applies a configuration option to the Generator.
type Option func(*Generator)

// WithFactSource sets where scene facts are read from.
func WithFactSource(f FactSource) Option {
	return func(g *Generator) {
		g.facts = f
	}
}

// WithTickerSource sets where ticker items are read from.
func WithTickerSource(t TickerSource) Option {
	return func(g *Generator) {
		g.ticker = t
	}
}

// WithRecentEvents sets where ticker items come from when the ticker source
// has nothing.
func WithRecentEvents(r RecentSource) Option {
	return func(g *Generator) {
		g.recent = r
	}
}

// WithNarrationTimeout bounds each narrator call.
func WithNarrationTimeout(d time.Duration) Option {
	return func(g *Generator) {
		if d > 0 {
			g.timeout = d
		}
	}
}

// WithLineRange sets the inclusive range the per-segment line count is drawn from.
func WithLineRange(minLines, maxLines int) Option {
	return func(g *Generator) {
		if minLines > 0 && maxLines >= minLines {
			g.minLines = minLines
			g.maxLines = maxLines
		}
	}
}

// WithTickerLimit sets how many ticker items are requested.
func WithTickerLimit(n int) Option {
	return func(g *Generator) {
		if n > 0 {
			g.tickerLimit = n
		}
	}
}

// WithSpeakingRate sets the assumed narration rate and the per-line floor in seconds.
func WithSpeakingRate(wordsPerSecond, minSeconds float64) Option {
	return func(g *Generator) {
		if wordsPerSecond > 0 {
			g.wordsPerSecond = wordsPerSecond
		}
		if minSeconds > 0 {
			g.minLineSeconds = minSeconds
		}
	}
}

// WithSeed makes line counts and template substitutions reproducible.
func WithSeed(seed int64) Option {
	return func(g *Generator) {
		g.rng = rand.New(rand.NewSource(seed)) //nolint:gosec // presentation randomness only
	}
}

// WithLogger sets the logger.
func WithLogger(l logger.Logger) Option {
	return func(g *Generator) {
		if l != nil {
			g.log = l
		}
	}
}
