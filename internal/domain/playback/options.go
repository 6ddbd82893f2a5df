package playback

import (
	"time"

	"github.com/okian/hackcast/internal/domain/clock"
	"github.com/okian/hackcast/pkg/logger"
)

// Timings are the fixed phase durations. Commentary lines are timed by their
// own DurationSeconds.
type Timings struct {
	BumperIn   time.Duration `koanf:"bumper_in"`
	BumperOut  time.Duration `koanf:"bumper_out"`
	Transition time.Duration `koanf:"transition"`
	Switch     time.Duration `koanf:"switch"`
}

// DefaultTimings returns the stock phase durations.
func DefaultTimings() Timings {
	return Timings{
		BumperIn:   2500 * time.Millisecond,
		BumperOut:  1500 * time.Millisecond,
		Transition: time.Second,
		Switch:     3 * time.Second,
	}
}

const (
	defaultSubscriberBuffer = 16
	// maxPendingBreaking bounds the breaking events waiting for narration.
	maxPendingBreaking = 4
)

// Option applies a configuration option to the Machine.
type Option func(*Machine)

// WithTimings overrides the phase durations. Zero fields keep their defaults.
func WithTimings(t Timings) Option {
	return func(m *Machine) {
		if t.BumperIn > 0 {
			m.timings.BumperIn = t.BumperIn
		}
		if t.BumperOut > 0 {
			m.timings.BumperOut = t.BumperOut
		}
		if t.Transition > 0 {
			m.timings.Transition = t.Transition
		}
		if t.Switch > 0 {
			m.timings.Switch = t.Switch
		}
	}
}

// WithScheduler sets the timer source.
func WithScheduler(s clock.Scheduler) Option {
	return func(m *Machine) {
		if s != nil {
			m.sched = s
		}
	}
}

// WithHackathon sets the hackathon on air when the machine starts.
func WithHackathon(id, name string) Option {
	return func(m *Machine) {
		m.activeID = id
		m.activeName = name
	}
}

// WithSubscriberBuffer sets the per-subscriber snapshot buffer.
func WithSubscriberBuffer(n int) Option {
	return func(m *Machine) {
		if n > 0 {
			m.subBuffer = n
		}
	}
}

// WithLogger sets the logger.
func WithLogger(l logger.Logger) Option {
	return func(m *Machine) {
		if l != nil {
			m.log = l
		}
	}
}
