// Package gate decides whether the broadcast clocks may run, combining the
// master-user pause toggle with an automatic pause when nobody is watching.
package gate

import (
	"context"
	"sync"
	"time"

	"github.com/okian/hackcast/internal/domain/clock"
	"github.com/okian/hackcast/pkg/logger"
	"github.com/okian/hackcast/pkg/metrics"
)

const defaultZeroViewerDebounce = 30 * time.Second

// State is the gate's full view, exposed to control endpoints.
type State struct {
	Paused           bool `json:"paused"`
	ManualPause      bool `json:"manual_pause"`
	SystemPause      bool `json:"system_pause"`
	AutoPauseEnabled bool `json:"auto_pause_enabled"`
	Viewers          int  `json:"viewers"`
}

// Gate tracks pause sources. Paused is true when either the manual toggle or
// the system pause is set; a manual pause is never cleared by viewers.
type Gate struct {
	sched    clock.Scheduler
	debounce time.Duration
	log      logger.Logger

	mu          sync.Mutex
	viewers     int
	manual      bool
	system      bool
	autoEnabled bool
	timer       clock.Timer
	epoch       uint64
	last        bool
	disposed    bool
	listeners   []func(paused bool)
}

// Option applies a configuration option to the Gate.
type Option func(*Gate)

// WithZeroViewerDebounce sets how long the viewer count must stay at zero
// before the system pause engages.
func WithZeroViewerDebounce(d time.Duration) Option {
	return func(g *Gate) {
		if d > 0 {
			g.debounce = d
		}
	}
}

// WithScheduler sets the timer source.
func WithScheduler(s clock.Scheduler) Option {
	return func(g *Gate) {
		if s != nil {
			g.sched = s
		}
	}
}

// WithAutoPause sets whether the system pause is enabled initially.
func WithAutoPause(enabled bool) Option {
	return func(g *Gate) {
		g.autoEnabled = enabled
	}
}

// WithLogger sets the logger.
func WithLogger(l logger.Logger) Option {
	return func(g *Gate) {
		if l != nil {
			g.log = l
		}
	}
}

// New creates an unpaused Gate with auto pause enabled.
func New(opts ...Option) *Gate {
	g := &Gate{
		sched:       clock.Real{},
		debounce:    defaultZeroViewerDebounce,
		log:         logger.Get().Named("gate"),
		autoEnabled: true,
	}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

// OnChange registers fn to be called on every paused edge. Callbacks run
// with the gate locked and must not call back into it.
func (g *Gate) OnChange(fn func(paused bool)) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.listeners = append(g.listeners, fn)
}

// SetViewerCount records the current number of viewers. Zero viewers start
// the debounce; any viewer cancels it and lifts a system pause at once.
func (g *Gate) SetViewerCount(n int) {
	if n < 0 {
		n = 0
	}
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.disposed {
		return
	}
	g.viewers = n
	metrics.UpdateViewers(n)
	if n > 0 {
		g.stopTimer()
		g.system = false
	} else if g.autoEnabled && !g.system && g.timer == nil {
		g.startTimer()
	}
	g.notify()
}

// SetManualPause sets the master-user override.
func (g *Gate) SetManualPause(paused bool) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.disposed {
		return
	}
	g.manual = paused
	g.notify()
}

// SetAutoPauseEnabled toggles the system pause. Disabling it lifts any
// system pause immediately.
func (g *Gate) SetAutoPauseEnabled(enabled bool) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.disposed {
		return
	}
	g.autoEnabled = enabled
	if !enabled {
		g.stopTimer()
		g.system = false
	} else if g.viewers == 0 && !g.system && g.timer == nil {
		g.startTimer()
	}
	g.notify()
}

// Paused reports whether the broadcast must be frozen.
func (g *Gate) Paused() bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.manual || g.system
}

// State returns all pause inputs.
func (g *Gate) State() State {
	g.mu.Lock()
	defer g.mu.Unlock()
	return State{
		Paused:           g.manual || g.system,
		ManualPause:      g.manual,
		SystemPause:      g.system,
		AutoPauseEnabled: g.autoEnabled,
		Viewers:          g.viewers,
	}
}

// Dispose stops the debounce timer. Later calls are ignored.
func (g *Gate) Dispose() {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.disposed = true
	g.stopTimer()
}

func (g *Gate) startTimer() {
	g.epoch++
	epoch := g.epoch
	g.timer = g.sched.AfterFunc(g.debounce, func() { g.expire(epoch) })
}

func (g *Gate) stopTimer() {
	if g.timer != nil {
		g.timer.Stop()
		g.timer = nil
	}
	g.epoch++
}

func (g *Gate) expire(epoch uint64) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if epoch != g.epoch || g.disposed {
		return
	}
	g.timer = nil
	if g.viewers == 0 && g.autoEnabled {
		g.system = true
		g.log.Info(context.Background(), "no viewers, pausing broadcast", logger.Duration("after", g.debounce))
	}
	g.notify()
}

// notify must be called with g.mu held.
func (g *Gate) notify() {
	paused := g.manual || g.system
	if paused == g.last {
		return
	}
	g.last = paused
	for _, fn := range g.listeners {
		fn(paused)
	}
}
