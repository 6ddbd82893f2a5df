// Package normalize turns raw backend change notifications into typed,
// prioritized DomainEvents.
package normalize

import (
	"context"
	"fmt"
	"math"
	"sync"
	"time"

	"github.com/okian/hackcast/internal/domain/clock"
	"github.com/okian/hackcast/internal/domain/dedupe"
	"github.com/okian/hackcast/internal/domain/model"
	"github.com/okian/hackcast/pkg/logger"
	"github.com/okian/hackcast/pkg/metrics"
)

// Source tables understood by the normalizer.
const (
	TableBets       = "bets"
	TableMarkets    = "markets"
	TableTeams      = "teams"
	TableCommentary = "commentary"
)

// Directory resolves foreign keys against the data backend. Team and market
// ownership never changes, so results are cached for the normalizer's lifetime.
type Directory interface {
	Team(ctx context.Context, id string) (model.Team, error)
	Market(ctx context.Context, id string) (model.Market, error)
	Hackathon(ctx context.Context, id string) (model.Hackathon, error)
}

// Normalizer converts RawChange values into DomainEvents. It is safe for
// concurrent use.
type Normalizer struct {
	dir        Directory
	deduper    dedupe.Deduper
	thresholds Thresholds
	bucket     time.Duration
	clock      clock.Clock
	log        logger.Logger

	mu         sync.RWMutex
	teams      map[string]model.Team
	markets    map[string]model.Market
	hackathons map[string]model.Hackathon
}

// New creates a Normalizer resolving references through dir.
func New(dir Directory, opts ...Option) *Normalizer {
	n := &Normalizer{
		dir:        dir,
		deduper:    dedupe.NewInMemoryDeduper(),
		thresholds: DefaultThresholds(),
		bucket:     defaultDedupBucket,
		clock:      clock.Real{},
		log:        logger.Get().Named("normalize"),
		teams:      make(map[string]model.Team),
		markets:    make(map[string]model.Market),
		hackathons: make(map[string]model.Hackathon),
	}
	for _, opt := range opts {
		opt(n)
	}
	return n
}

// Normalize returns the DomainEvent for c, or false when the change is
// filtered, duplicated or cannot be resolved. It never fails loudly.
func (n *Normalizer) Normalize(ctx context.Context, c model.RawChange) (*model.DomainEvent, bool) {
	event, err := n.Process(ctx, c)
	if err != nil {
		reason := dropReason(err)
		if reason == "duplicate" {
			metrics.RecordEventDuplicate()
		} else {
			metrics.RecordEventDropped(reason)
		}
		n.log.Debug(ctx, "change dropped",
			logger.String("table", c.Table),
			logger.String("type", string(c.Type)),
			logger.String("reason", reason),
			logger.Error(err))
		return nil, false
	}
	metrics.RecordEventNormalized(string(event.Kind), string(event.Priority))
	return event, true
}

// Process is Normalize with the drop reason exposed as one of the package
// sentinel errors.
func (n *Normalizer) Process(ctx context.Context, c model.RawChange) (ev *model.DomainEvent, err error) {
	defer func() {
		if r := recover(); r != nil {
			ev, err = nil, fmt.Errorf("%w: %v", ErrMalformedRow, r)
		}
	}()

	d, err := n.classify(c)
	if err != nil {
		return nil, err
	}

	rowID := c.RowID()
	if rowID == "" {
		return nil, fmt.Errorf("%w: %s row without id", ErrMalformedRow, c.Table)
	}
	ts := c.CommitTimestamp
	if ts.IsZero() {
		ts = n.clock.Now()
	}
	id := n.syntheticID(c, rowID, ts)
	if n.deduper.SeenAndRecord(ctx, id) {
		return nil, fmt.Errorf("%w: %s", ErrDuplicate, id)
	}

	if err := n.resolve(ctx, &d); err != nil {
		// Allow a redelivery to retry once the backend answers.
		n.deduper.Unrecord(ctx, id)
		return nil, err
	}

	return &model.DomainEvent{
		ID:            id,
		HackathonID:   d.hackathonID,
		HackathonName: d.hackathonName,
		Kind:          d.kind,
		TeamName:      d.teamName,
		MetricType:    d.metric,
		CurrentValue:  d.current,
		Delta:         d.delta,
		Priority:      d.priority,
		Timestamp:     ts,
	}, nil
}

func (n *Normalizer) syntheticID(c model.RawChange, rowID string, ts time.Time) string {
	bucket := ts.UnixNano() / int64(n.bucket)
	return fmt.Sprintf("%s:%s:%s:%d", c.Table, rowID, c.Type, bucket)
}

// draft is a classified change awaiting foreign-key resolution.
type draft struct {
	kind          model.Kind
	priority      model.Priority
	metric        string
	current       float64
	delta         float64
	hackathonID   string
	hackathonName string
	teamID        string
	teamName      string
	marketID      string
}

func (n *Normalizer) classify(c model.RawChange) (draft, error) {
	switch {
	case c.Table == TableBets && c.Type == model.ChangeInsert:
		return n.classifyBet(c)
	case c.Table == TableMarkets && c.Type == model.ChangeUpdate:
		return n.classifyOdds(c)
	case c.Table == TableMarkets && c.Type == model.ChangeInsert:
		return classifyMarketOpened(c), nil
	case c.Table == TableTeams && c.Type == model.ChangeUpdate:
		return n.classifyTeam(c)
	case c.Table == TableCommentary && c.Type == model.ChangeInsert:
		return n.classifyCommentary(c), nil
	}
	return draft{}, fmt.Errorf("%w: %s %s", ErrUnsupportedChange, c.Table, c.Type)
}

func (n *Normalizer) classifyBet(c model.RawChange) (draft, error) {
	amount, ok := model.NumberField(c.Record, "amount")
	if !ok {
		if amount, ok = model.NumberField(c.Record, "stake"); !ok {
			return draft{}, fmt.Errorf("%w: bet without amount", ErrMalformedRow)
		}
	}
	marketID := model.StringField(c.Record, "market_id")
	if marketID == "" {
		return draft{}, fmt.Errorf("%w: bet without market_id", ErrMalformedRow)
	}
	priority := model.PriorityNormal
	if amount > n.thresholds.BetBreakingStake {
		priority = model.PriorityBreaking
	}
	return draft{
		kind:     model.KindBetPlaced,
		priority: priority,
		metric:   "bet",
		current:  amount,
		delta:    amount,
		marketID: marketID,
		teamID:   model.StringField(c.Record, "team_id"),
	}, nil
}

func (n *Normalizer) classifyOdds(c model.RawChange) (draft, error) {
	now, okNew := model.NumberField(c.Record, "odds")
	before, okOld := model.NumberField(c.OldRecord, "odds")
	if !okNew || !okOld {
		return draft{}, fmt.Errorf("%w: odds update without before/after", ErrBelowThreshold)
	}
	delta := now - before
	if math.Abs(delta) <= n.thresholds.OddsNoise {
		return draft{}, fmt.Errorf("%w: odds delta %.2f", ErrBelowThreshold, delta)
	}
	priority := model.PriorityNormal
	if math.Abs(delta) > n.thresholds.OddsBreaking {
		priority = model.PriorityBreaking
	}
	return draft{
		kind:        model.KindOddsChange,
		priority:    priority,
		metric:      "odds",
		current:     now,
		delta:       delta,
		hackathonID: model.StringField(c.Record, "hackathon_id"),
		marketID:    c.RowID(),
		teamID:      model.StringField(c.Record, "team_id"),
	}, nil
}

func classifyMarketOpened(c model.RawChange) draft {
	odds, _ := model.NumberField(c.Record, "odds")
	metric := model.StringField(c.Record, "title")
	if metric == "" {
		metric = "market"
	}
	return draft{
		kind:        model.KindMarketOpened,
		priority:    model.PriorityHigh,
		metric:      metric,
		current:     odds,
		hackathonID: model.StringField(c.Record, "hackathon_id"),
		marketID:    c.RowID(),
		teamID:      model.StringField(c.Record, "team_id"),
	}
}

func (n *Normalizer) classifyTeam(c model.RawChange) (draft, error) {
	base := draft{
		hackathonID: model.StringField(c.Record, "hackathon_id"),
		teamID:      c.RowID(),
		teamName:    model.StringField(c.Record, "name"),
	}
	momentum, okNew := model.NumberField(c.Record, "momentum")
	before, okOld := model.NumberField(c.OldRecord, "momentum")
	var delta float64
	if okNew && okOld {
		delta = momentum - before
	}

	milestone := model.StringField(c.Record, "milestone")
	if milestone != "" && milestone != model.StringField(c.OldRecord, "milestone") {
		base.kind = model.KindMilestone
		base.priority = model.PriorityHigh
		base.metric = milestone
		base.current = momentum
		base.delta = delta
		return base, nil
	}

	if !okNew || !okOld {
		return draft{}, fmt.Errorf("%w: momentum update without before/after", ErrBelowThreshold)
	}
	abs := math.Abs(delta)
	if abs <= n.thresholds.MomentumNoise {
		return draft{}, fmt.Errorf("%w: momentum delta %.2f", ErrBelowThreshold, delta)
	}
	switch {
	case abs > n.thresholds.MomentumBreaking:
		base.priority = model.PriorityBreaking
	case abs > n.thresholds.MomentumHigh:
		base.priority = model.PriorityHigh
	default:
		base.priority = model.PriorityNormal
	}
	base.kind = model.KindTeamUpdate
	base.metric = "momentum"
	base.current = momentum
	base.delta = delta
	return base, nil
}

func (n *Normalizer) classifyCommentary(c model.RawChange) draft {
	sentiment, _ := model.NumberField(c.Record, "sentiment")
	priority := model.PriorityNormal
	if math.Abs(sentiment) > n.thresholds.SentimentBreaking {
		priority = model.PriorityBreaking
	}
	return draft{
		kind:        model.KindBreakingNews,
		priority:    priority,
		metric:      "sentiment",
		current:     sentiment,
		delta:       sentiment,
		hackathonID: model.StringField(c.Record, "hackathon_id"),
		teamID:      model.StringField(c.Record, "team_id"),
	}
}

// resolve fills the owning hackathon and team name. A missing hackathon is a
// hard failure; a missing team name is not.
func (n *Normalizer) resolve(ctx context.Context, d *draft) error {
	if d.hackathonID == "" && d.marketID != "" {
		m, err := n.market(ctx, d.marketID)
		if err != nil {
			return fmt.Errorf("%w: market %s: %w", ErrUnresolved, d.marketID, err)
		}
		d.hackathonID = m.HackathonID
		if d.teamID == "" {
			d.teamID = m.TeamID
		}
	}
	if d.teamID != "" && (d.hackathonID == "" || d.teamName == "") {
		t, err := n.team(ctx, d.teamID)
		switch {
		case err == nil:
			if d.hackathonID == "" {
				d.hackathonID = t.HackathonID
			}
			if d.teamName == "" {
				d.teamName = t.Name
			}
		case d.hackathonID == "":
			return fmt.Errorf("%w: team %s: %w", ErrUnresolved, d.teamID, err)
		default:
			n.log.Debug(ctx, "team name lookup failed", logger.String("team_id", d.teamID), logger.Error(err))
		}
	}
	if d.hackathonID == "" {
		return fmt.Errorf("%w: no owning hackathon", ErrUnresolved)
	}
	h, err := n.hackathon(ctx, d.hackathonID)
	if err != nil {
		return fmt.Errorf("%w: hackathon %s: %w", ErrUnresolved, d.hackathonID, err)
	}
	d.hackathonName = h.Name
	return nil
}

func (n *Normalizer) team(ctx context.Context, id string) (model.Team, error) {
	n.mu.RLock()
	t, ok := n.teams[id]
	n.mu.RUnlock()
	if ok {
		return t, nil
	}
	t, err := n.dir.Team(ctx, id)
	if err != nil {
		return model.Team{}, err
	}
	n.mu.Lock()
	n.teams[id] = t
	n.mu.Unlock()
	return t, nil
}

func (n *Normalizer) market(ctx context.Context, id string) (model.Market, error) {
	n.mu.RLock()
	m, ok := n.markets[id]
	n.mu.RUnlock()
	if ok {
		return m, nil
	}
	m, err := n.dir.Market(ctx, id)
	if err != nil {
		return model.Market{}, err
	}
	n.mu.Lock()
	n.markets[id] = m
	n.mu.Unlock()
	return m, nil
}

func (n *Normalizer) hackathon(ctx context.Context, id string) (model.Hackathon, error) {
	n.mu.RLock()
	h, ok := n.hackathons[id]
	n.mu.RUnlock()
	if ok {
		return h, nil
	}
	h, err := n.dir.Hackathon(ctx, id)
	if err != nil {
		return model.Hackathon{}, err
	}
	n.mu.Lock()
	n.hackathons[id] = h
	n.mu.Unlock()
	return h, nil
}
