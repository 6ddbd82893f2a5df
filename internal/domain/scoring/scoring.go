// Package scoring keeps a decaying hotness score per hackathon and decides
// which hackathon should be on air.
package scoring

import (
	"context"
	"math"
	"sort"
	"sync"
	"time"

	"github.com/okian/hackcast/internal/domain/clock"
	"github.com/okian/hackcast/internal/domain/model"
	"github.com/okian/hackcast/internal/domain/types"
	"github.com/okian/hackcast/pkg/logger"
	"github.com/okian/hackcast/pkg/metrics"
)

// Target names the hackathon a switch should land on.
type Target struct {
	HackathonID   string
	HackathonName string
}

// Decision is the outcome of applying one event.
type Decision struct {
	ActiveHackathonID string
	// Candidate is set when Switched is true.
	Candidate Target
	// Switched reports a forced switch: a breaking event from a hackathon
	// other than the active one, hot enough to clear the activation floor.
	Switched bool
}

// Scorer owns all HackathonScore state. Decay is computed on read, there is
// no background tick.
type Scorer struct {
	weights  map[model.Priority]float64
	halfLife time.Duration
	floor    float64
	cadence  int
	clock    clock.Clock
	log      logger.Logger

	mu        sync.Mutex
	scores    map[string]*model.HackathonScore
	active    string
	completed int
}

// New creates a Scorer with the stock weights, 2 minute half-life, floor 20
// and a switch check every 2 completed scenes.
func New(opts ...Option) *Scorer {
	s := &Scorer{
		weights:  DefaultWeights(),
		halfLife: defaultHalfLife,
		floor:    defaultActivationFloor,
		cadence:  defaultSwitchCadence,
		clock:    clock.Real{},
		log:      logger.Get().Named("scoring"),
		scores:   make(map[string]*model.HackathonScore),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Decay returns score decayed from last to now with the given half-life.
// Decay(s, t, t, h) == s and the result never increases with now.
func Decay(score float64, last, now time.Time, halfLife time.Duration) float64 {
	elapsed := now.Sub(last)
	if elapsed <= 0 || halfLife <= 0 {
		return score
	}
	return score * math.Pow(0.5, float64(elapsed)/float64(halfLife))
}

// Decay applies the scorer's half-life.
func (s *Scorer) Decay(score float64, last, now time.Time) float64 {
	return Decay(score, last, now, s.halfLife)
}

// Track registers a hackathon with a zero score. Tracking a known hackathon
// only refreshes its name.
func (s *Scorer) Track(id, name string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.track(id, name)
}

func (s *Scorer) track(id, name string) *model.HackathonScore {
	hs, ok := s.scores[id]
	if !ok {
		hs = &model.HackathonScore{
			HackathonID:   id,
			HackathonName: name,
			LastEventTime: s.clock.Now(),
			RecentEvents:  model.NewEventRing(defaultRecentEvents),
		}
		s.scores[id] = hs
	} else if name != "" {
		hs.HackathonName = name
	}
	return hs
}

// SetActive sets the hackathon currently on air without touching the cadence counter.
func (s *Scorer) SetActive(id string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.active = id
}

// ApplyEvent folds ev into its hackathon's score. Unknown hackathons are
// tracked on first sight. The result carries a forced switch only for
// breaking events from an inactive hackathon.
func (s *Scorer) ApplyEvent(ev model.DomainEvent) Decision {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.clock.Now()
	hs := s.track(ev.HackathonID, ev.HackathonName)
	hs.Score = Decay(hs.Score, hs.LastEventTime, now, s.halfLife) + s.weights[ev.Priority]
	hs.LastEventTime = now
	hs.RecentEvents.Push(ev)
	metrics.UpdateHotness(hs.HackathonID, hs.Score)

	d := Decision{ActiveHackathonID: s.active}
	if ev.IsBreaking() && ev.HackathonID != s.active && hs.Score > s.floor {
		d.Switched = true
		d.Candidate = Target{HackathonID: hs.HackathonID, HackathonName: hs.HackathonName}
		s.log.Info(context.Background(), "breaking event forces switch",
			logger.String("from", s.active),
			logger.String("to", hs.HackathonID),
			logger.Float64("score", hs.Score))
	}
	return d
}

// SnapshotScores returns every tracked hackathon with its effective score,
// highest first. Ties are broken by id.
func (s *Scorer) SnapshotScores() []types.Entry {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.snapshot(s.clock.Now())
}

func (s *Scorer) snapshot(now time.Time) []types.Entry {
	out := make([]types.Entry, 0, len(s.scores))
	for _, hs := range s.scores {
		out = append(out, types.Entry{
			HackathonID:    hs.HackathonID,
			HackathonName:  hs.HackathonName,
			EffectiveScore: Decay(hs.Score, hs.LastEventTime, now, s.halfLife),
			Active:         hs.HackathonID == s.active,
		})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].EffectiveScore != out[j].EffectiveScore {
			return out[i].EffectiveScore > out[j].EffectiveScore
		}
		return out[i].HackathonID < out[j].HackathonID
	})
	for i := range out {
		out[i].Rank = i + 1
	}
	return out
}

// SceneCompleted counts a finished scene. Every cadence-th call evaluates the
// leader and returns it when it is not already on air and clears the floor.
// The counter resets on each evaluation.
func (s *Scorer) SceneCompleted() (Target, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.completed++
	if s.completed < s.cadence {
		return Target{}, false
	}
	s.completed = 0

	board := s.snapshot(s.clock.Now())
	for _, e := range board {
		metrics.UpdateHotness(e.HackathonID, e.EffectiveScore)
	}
	if len(board) == 0 {
		return Target{}, false
	}
	top := board[0]
	if top.HackathonID == s.active || top.EffectiveScore <= s.floor {
		return Target{}, false
	}
	return Target{HackathonID: top.HackathonID, HackathonName: top.HackathonName}, true
}

// CommitSwitch puts id on air and resets the cadence counter.
func (s *Scorer) CommitSwitch(id string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.active = id
	s.completed = 0
}

// RecentEvents returns the last events applied to id, oldest first.
func (s *Scorer) RecentEvents(id string) []model.DomainEvent {
	s.mu.Lock()
	defer s.mu.Unlock()
	hs, ok := s.scores[id]
	if !ok {
		return nil
	}
	return hs.RecentEvents.Items()
}

// Name returns the display name of a tracked hackathon.
func (s *Scorer) Name(id string) string {
	s.mu.Lock()
	defer s.mu.Unlock()
	if hs, ok := s.scores[id]; ok {
		return hs.HackathonName
	}
	return ""
}
