// Package playback implements the segment playback state machine that drives
// the broadcast: bumpers, per-line commentary timers, scene transitions and
// hackathon switches.
package playback

import (
	"context"
	"sync"
	"time"

	"github.com/okian/hackcast/internal/domain/clock"
	"github.com/okian/hackcast/internal/domain/content"
	"github.com/okian/hackcast/internal/domain/model"
	"github.com/okian/hackcast/internal/domain/scoring"
	"github.com/okian/hackcast/internal/domain/types"
	"github.com/okian/hackcast/pkg/logger"
	"github.com/okian/hackcast/pkg/metrics"
)

// ContentGenerator produces the content for one scene. It must always return.
type ContentGenerator interface {
	Generate(ctx context.Context, req content.Request) model.SegmentContent
}

// Advisor is consulted at scene boundaries for cadence-based switches.
type Advisor interface {
	SceneCompleted() (scoring.Target, bool)
	CommitSwitch(id string)
}

// genToken identifies one content request. Only the latest token may commit.
type genToken struct {
	seq         uint64
	sceneIndex  int
	hackathonID string
}

// Machine is the single owner of phase, index and timer state. All methods
// are safe for concurrent use.
type Machine struct {
	gen       ContentGenerator
	advisor   Advisor
	sched     clock.Scheduler
	timings   Timings
	log       logger.Logger
	subBuffer int

	mu       sync.Mutex
	ctx      context.Context
	cancel   context.CancelFunc
	started  bool
	disposed bool

	phase           model.Phase
	sceneIndex      int
	commentaryIndex int
	progress        float64
	content         *model.SegmentContent
	activeID        string
	activeName      string
	switchTarget    *scoring.Target
	pendingSwitch   *scoring.Target
	pendingBreaking []queuedBreaking
	breakingSeq     uint64
	initializing    bool
	token           genToken
	paused          bool
	hasAired        bool
	version         uint64

	// Exactly one timer is armed at a time. epoch invalidates stale fires.
	timer    clock.Timer
	epoch    uint64
	deadline time.Time
	next     func()
	// Set while paused with an interrupted timer.
	remaining time.Duration
	held      bool

	subs   map[int]chan types.Frame
	nextID int
}

// queuedBreaking is a breaking event waiting for its hackathon's next segment.
type queuedBreaking struct {
	seq uint64
	ev  model.DomainEvent
}

// New creates a Machine in BUMPER_IN at scene 0. Nothing runs until Start.
func New(gen ContentGenerator, advisor Advisor, opts ...Option) *Machine {
	m := &Machine{
		gen:       gen,
		advisor:   advisor,
		sched:     clock.Real{},
		timings:   DefaultTimings(),
		log:       logger.Get().Named("playback"),
		subBuffer: defaultSubscriberBuffer,
		phase:     model.PhaseBumperIn,
		subs:      make(map[int]chan types.Frame),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Start begins the first scene. Content generation runs in the background;
// no timer is armed until it commits.
func (m *Machine) Start(ctx context.Context) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.started || m.disposed {
		return
	}
	m.started = true
	m.ctx, m.cancel = context.WithCancel(ctx)
	m.log.Info(m.ctx, "broadcast started",
		logger.String("hackathon_id", m.activeID),
		logger.String("scene", string(model.SceneAt(m.sceneIndex))))
	m.beginScene()
}

// Dispose stops every timer, abandons in-flight generations and closes all
// subscriptions. The machine cannot be restarted.
func (m *Machine) Dispose() {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.disposed {
		return
	}
	m.disposed = true
	m.disarm()
	m.held = false
	if m.cancel != nil {
		m.cancel()
	}
	for id, ch := range m.subs {
		close(ch)
		delete(m.subs, id)
	}
}

// Pause suspends the machine. The armed timer is stopped and its remaining
// time recorded; phase and indices stay frozen.
func (m *Machine) Pause() {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.paused || m.disposed {
		return
	}
	m.paused = true
	if m.timer != nil {
		m.remaining = m.deadline.Sub(m.sched.Now())
		if m.remaining < 0 {
			m.remaining = 0
		}
		m.held = true
		fn := m.next
		m.disarm()
		m.next = fn
	}
	metrics.UpdatePaused(true)
	m.log.Info(m.ctx, "broadcast paused",
		logger.String("phase", string(m.phase)),
		logger.Int("commentary_index", m.commentaryIndex),
		logger.Duration("remaining", m.remaining))
	m.publish()
}

// Resume re-arms the interrupted timer with exactly its remaining time.
func (m *Machine) Resume() {
	m.mu.Lock()
	defer m.mu.Unlock()
	if !m.paused || m.disposed {
		return
	}
	m.paused = false
	if m.held {
		m.held = false
		m.arm(m.remaining, m.next)
	}
	metrics.UpdatePaused(false)
	m.log.Info(m.ctx, "broadcast resumed", logger.String("phase", string(m.phase)))
	m.publish()
}

// SetPaused calls Pause or Resume.
func (m *Machine) SetPaused(paused bool) {
	if paused {
		m.Pause()
		return
	}
	m.Resume()
}

// RequestSwitch flags a switch to t, honoured at the next BUMPER_OUT. The
// current segment is never interrupted.
func (m *Machine) RequestSwitch(t scoring.Target) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.disposed || t.HackathonID == "" || t.HackathonID == m.activeID {
		return
	}
	m.pendingSwitch = &t
	m.log.Info(m.ctx, "switch pending", logger.String("to", t.HackathonID))
	m.publish()
}

// InjectBreaking queues ev for narration at the next generated segment of its
// hackathon. Queued events are narrated in arrival order; past
// maxPendingBreaking the oldest is dropped. An event from an inactive
// hackathon also flags a switch to it, the latest such event naming the target.
func (m *Machine) InjectBreaking(ev model.DomainEvent) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.disposed || ev.HackathonID == "" {
		return
	}
	m.breakingSeq++
	m.pendingBreaking = append(m.pendingBreaking, queuedBreaking{seq: m.breakingSeq, ev: ev})
	if over := len(m.pendingBreaking) - maxPendingBreaking; over > 0 {
		for _, q := range m.pendingBreaking[:over] {
			m.log.Warn(m.ctx, "breaking queue full, dropping oldest event",
				logger.String("event_id", q.ev.ID),
				logger.String("hackathon_id", q.ev.HackathonID))
		}
		m.pendingBreaking = append([]queuedBreaking(nil), m.pendingBreaking[over:]...)
	}
	if ev.HackathonID != m.activeID {
		m.pendingSwitch = &scoring.Target{HackathonID: ev.HackathonID, HackathonName: ev.HackathonName}
	} else if m.started && m.initializing {
		// Content for the coming segment is still in flight; ask again so the
		// breaking line makes it in. The older result will be discarded.
		m.requestContent()
	}
	m.publish()
}

// Snapshot returns the current read-only state.
func (m *Machine) Snapshot() model.PlaybackState {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.snapshot()
}

// Frame returns the state together with the content it indexes into and the
// line being narrated. The current line is empty outside CONTENT_DELIVERY.
func (m *Machine) Frame() types.Frame {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.frame()
}

// Subscribe returns a channel receiving a frame after every change. Slow
// subscribers lose older frames, never the latest.
func (m *Machine) Subscribe() (<-chan types.Frame, func()) {
	m.mu.Lock()
	defer m.mu.Unlock()
	ch := make(chan types.Frame, m.subBuffer)
	if m.disposed {
		close(ch)
		return ch, func() {}
	}
	id := m.nextID
	m.nextID++
	m.subs[id] = ch
	ch <- m.frame()

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			m.mu.Lock()
			defer m.mu.Unlock()
			if c, ok := m.subs[id]; ok {
				close(c)
				delete(m.subs, id)
			}
		})
	}
}

func (m *Machine) currentLine() (model.CommentaryLine, bool) {
	if m.phase != model.PhaseContentDelivery || m.content == nil {
		return model.CommentaryLine{}, false
	}
	if m.commentaryIndex < 0 || m.commentaryIndex >= len(m.content.Commentary) {
		return model.CommentaryLine{}, false
	}
	return m.content.Commentary[m.commentaryIndex], true
}

// frame must be called with m.mu held.
func (m *Machine) frame() types.Frame {
	f := types.Frame{State: m.snapshot()}
	if m.content != nil {
		c := *m.content
		f.Content = &c
	}
	if line, ok := m.currentLine(); ok {
		f.CurrentLine = types.CurrentLine{Text: line.Text, Speaker: string(line.Speaker), Priority: string(line.Priority)}
	}
	return f
}

func (m *Machine) snapshot() model.PlaybackState {
	idx := m.commentaryIndex
	if m.content == nil || idx >= len(m.content.Commentary) || idx < 0 {
		idx = 0
	}
	return model.PlaybackState{
		Phase:                m.phase,
		SceneIndex:           m.sceneIndex,
		Scene:                model.SceneAt(m.sceneIndex),
		CommentaryIndex:      idx,
		ProgressPercent:      m.progress,
		IsTransitioning:      m.phase == model.PhaseTransition,
		IsHackathonSwitching: m.phase == model.PhaseHackathonSwitch,
		ShowBumper:           m.phase == model.PhaseBumperIn || m.phase == model.PhaseBumperOut,
		ActiveHackathonID:    m.activeID,
		ActiveHackathonName:  m.activeName,
		Initializing:         m.initializing,
		Paused:               m.paused,
		SwitchPending:        m.pendingSwitch != nil,
		HasAired:             m.hasAired,
		Version:              m.version,
	}
}

// publish must be called with m.mu held.
func (m *Machine) publish() {
	m.version++
	if len(m.subs) == 0 {
		return
	}
	f := m.frame()
	for _, ch := range m.subs {
		select {
		case ch <- f:
			continue
		default:
		}
		select {
		case <-ch:
		default:
		}
		select {
		case ch <- f:
		default:
		}
	}
}

func (m *Machine) setPhase(p model.Phase) {
	m.phase = p
	metrics.RecordPhaseTransition(string(p))
	m.log.Debug(m.ctx, "phase",
		logger.String("phase", string(p)),
		logger.Int("scene_index", m.sceneIndex),
		logger.String("hackathon_id", m.activeID))
}

// arm schedules fn after d, replacing any armed timer. While paused the
// timer is held instead and armed on Resume.
func (m *Machine) arm(d time.Duration, fn func()) {
	m.disarm()
	m.next = fn
	if m.paused {
		m.remaining = d
		m.held = true
		return
	}
	m.epoch++
	epoch := m.epoch
	m.deadline = m.sched.Now().Add(d)
	m.timer = m.sched.AfterFunc(d, func() { m.fire(epoch) })
}

func (m *Machine) disarm() {
	if m.timer != nil {
		m.timer.Stop()
		m.timer = nil
	}
	m.epoch++
	m.next = nil
}

func (m *Machine) fire(epoch uint64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if epoch != m.epoch || m.disposed || m.paused || m.next == nil {
		return
	}
	fn := m.next
	m.timer = nil
	m.next = nil
	fn()
	m.publish()
}

// beginScene enters BUMPER_IN for the current scene and requests content.
func (m *Machine) beginScene() {
	m.setPhase(model.PhaseBumperIn)
	m.commentaryIndex = 0
	m.progress = 0
	m.content = nil
	m.requestContent()
	m.publish()
}

func (m *Machine) requestContent() {
	m.disarm()
	m.held = false
	m.initializing = true
	m.token = genToken{seq: m.token.seq + 1, sceneIndex: m.sceneIndex, hackathonID: m.activeID}
	tok := m.token

	req := content.Request{
		Scene:         model.SceneAt(m.sceneIndex),
		HackathonID:   m.activeID,
		HackathonName: m.activeName,
	}
	var delivered []uint64
	for _, q := range m.pendingBreaking {
		if q.ev.HackathonID == m.activeID {
			req.Breaking = append(req.Breaking, q.ev)
			delivered = append(delivered, q.seq)
		}
	}
	ctx := m.ctx
	go func() {
		c := m.gen.Generate(ctx, req)
		m.commit(tok, delivered, c)
	}()
}

// commit installs generated content if tok is still the latest request and
// retires the breaking events it narrates.
func (m *Machine) commit(tok genToken, delivered []uint64, c model.SegmentContent) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.disposed {
		return
	}
	if tok != m.token || !m.initializing {
		m.log.Debug(m.ctx, "stale content discarded",
			logger.Int("scene_index", tok.sceneIndex),
			logger.String("hackathon_id", tok.hackathonID))
		return
	}
	m.content = &c
	m.initializing = false
	m.hasAired = true
	if len(delivered) > 0 {
		m.retireBreaking(delivered)
	}
	m.arm(m.timings.BumperIn, m.onBumperInDone)
	m.publish()
}

func (m *Machine) retireBreaking(seqs []uint64) {
	done := make(map[uint64]struct{}, len(seqs))
	for _, seq := range seqs {
		done[seq] = struct{}{}
	}
	kept := m.pendingBreaking[:0]
	for _, q := range m.pendingBreaking {
		if _, ok := done[q.seq]; !ok {
			kept = append(kept, q)
		}
	}
	m.pendingBreaking = kept
}

func (m *Machine) onBumperInDone() {
	m.setPhase(model.PhaseContentDelivery)
	m.commentaryIndex = 0
	m.progress = 0
	line, ok := m.currentLine()
	if !ok {
		m.log.Warn(m.ctx, "no commentary to deliver, ending segment")
		m.enterBumperOut()
		return
	}
	m.arm(seconds(line.DurationSeconds), m.onLineDone)
}

func (m *Machine) onLineDone() {
	if _, ok := m.currentLine(); !ok {
		m.log.Warn(m.ctx, "commentary index out of range, ending segment",
			logger.Int("commentary_index", m.commentaryIndex))
		m.enterBumperOut()
		return
	}
	if m.commentaryIndex+1 >= len(m.content.Commentary) {
		m.progress = 100
		m.enterBumperOut()
		return
	}
	m.commentaryIndex++
	if m.content.TotalDuration > 0 {
		p := m.content.ElapsedBefore(m.commentaryIndex) / m.content.TotalDuration * 100
		if p > 100 {
			p = 100
		}
		if p > m.progress {
			m.progress = p
		}
	}
	line, _ := m.currentLine()
	m.arm(seconds(line.DurationSeconds), m.onLineDone)
}

func (m *Machine) enterBumperOut() {
	m.progress = 100
	m.setPhase(model.PhaseBumperOut)
	m.arm(m.timings.BumperOut, m.onBumperOutDone)
}

func (m *Machine) onBumperOutDone() {
	if t := m.pendingSwitch; t != nil {
		m.pendingSwitch = nil
		if t.HackathonID != m.activeID {
			m.enterSwitch(*t, "breaking")
			return
		}
	}
	if m.advisor != nil {
		if t, ok := m.advisor.SceneCompleted(); ok && t.HackathonID != m.activeID {
			m.enterSwitch(t, "cadence")
			return
		}
	}
	m.setPhase(model.PhaseTransition)
	m.arm(m.timings.Transition, m.onTransitionDone)
}

func (m *Machine) enterSwitch(t scoring.Target, reason string) {
	m.switchTarget = &t
	m.setPhase(model.PhaseHackathonSwitch)
	m.log.Info(m.ctx, "switching hackathon",
		logger.String("from", m.activeID),
		logger.String("to", t.HackathonID),
		logger.String("reason", reason))
	metrics.RecordHackathonSwitch(reason)
	m.arm(m.timings.Switch, m.onSwitchDone)
}

func (m *Machine) onSwitchDone() {
	if t := m.switchTarget; t != nil {
		m.activeID = t.HackathonID
		m.activeName = t.HackathonName
		m.switchTarget = nil
		if m.advisor != nil {
			m.advisor.CommitSwitch(t.HackathonID)
		}
		kept := m.pendingBreaking[:0]
		for _, q := range m.pendingBreaking {
			if q.ev.HackathonID == m.activeID {
				kept = append(kept, q)
			}
		}
		m.pendingBreaking = kept
	}
	m.advanceScene()
}

func (m *Machine) onTransitionDone() {
	m.advanceScene()
}

func (m *Machine) advanceScene() {
	m.sceneIndex = (m.sceneIndex + 1) % len(model.Scenes)
	m.beginScene()
}

func seconds(s float64) time.Duration {
	return time.Duration(s * float64(time.Second))
}
