// Package service wires the broadcast engine together and implements the
// dependencies required by the HTTP API.
package service

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/redis/go-redis/v9"
	"gorm.io/gorm"

	"github.com/okian/hackcast/internal/adapters/feed"
	"github.com/okian/hackcast/internal/adapters/http/api"
	"github.com/okian/hackcast/internal/adapters/llm"
	eventqueue "github.com/okian/hackcast/internal/adapters/mq/queue"
	workerpool "github.com/okian/hackcast/internal/adapters/mq/worker"
	"github.com/okian/hackcast/internal/adapters/repository"
	"github.com/okian/hackcast/internal/config"
	"github.com/okian/hackcast/internal/domain/clock"
	"github.com/okian/hackcast/internal/domain/content"
	"github.com/okian/hackcast/internal/domain/dedupe"
	"github.com/okian/hackcast/internal/domain/gate"
	"github.com/okian/hackcast/internal/domain/model"
	"github.com/okian/hackcast/internal/domain/normalize"
	"github.com/okian/hackcast/internal/domain/playback"
	"github.com/okian/hackcast/internal/domain/scoring"
	"github.com/okian/hackcast/internal/domain/types"
	"github.com/okian/hackcast/pkg/logger"
	"github.com/okian/hackcast/pkg/metrics"
)

const stopTimeout = 10 * time.Second

// ErrNotStarted is returned by operations that need a running service.
var ErrNotStarted = errors.New("service not started")

// Service owns every engine component. The broadcast accessors are valid
// once Start has returned.
type Service struct {
	mu sync.RWMutex

	cfg   *config.Config
	log   logger.Logger
	sched clock.Scheduler
	clk   clock.Clock

	// Injected collaborators are never closed by the service.
	db          *gorm.DB
	ownDB       bool
	redisClient *redis.Client
	ownRedis    bool
	narrator    content.Narrator

	store      *repository.Store
	deduper    dedupe.Deduper
	queue      *eventqueue.InMemoryQueue
	pool       *workerpool.Pool
	normalizer *normalize.Normalizer
	scorer     *scoring.Scorer
	generator  *content.Generator
	machine    *playback.Machine
	gate       *gate.Gate
	subscriber *feed.Subscriber

	viewersMu       sync.Mutex
	streamClients   int
	presenceViewers int

	injected  atomic.Int64
	started   bool
	startedAt time.Time
	cancel    context.CancelFunc
}

// Option applies a configuration option to the Service.
type Option func(*Service)

// WithConfig replaces the default configuration.
func WithConfig(cfg *config.Config) Option {
	return func(s *Service) {
		if cfg != nil {
			s.cfg = cfg
		}
	}
}

// WithLogger sets a custom logger for the service.
func WithLogger(l logger.Logger) Option {
	return func(s *Service) {
		if l != nil {
			s.log = l
		}
	}
}

// WithDB uses an open database instead of dialing the configured one.
func WithDB(db *gorm.DB) Option {
	return func(s *Service) {
		s.db = db
	}
}

// WithRedisClient uses an existing client for the change feed.
func WithRedisClient(c *redis.Client) Option {
	return func(s *Service) {
		s.redisClient = c
	}
}

// WithNarrator overrides the narrator built from the LLM settings.
func WithNarrator(n content.Narrator) Option {
	return func(s *Service) {
		s.narrator = n
	}
}

// WithScheduler sets the timer source for playback and the gate.
func WithScheduler(sched clock.Scheduler) Option {
	return func(s *Service) {
		if sched != nil {
			s.sched = sched
		}
	}
}

// WithClock sets the time source used for decay and event timestamps.
func WithClock(c clock.Clock) Option {
	return func(s *Service) {
		if c != nil {
			s.clk = c
		}
	}
}

// New constructs a Service. Nothing is opened until Start.
func New(opts ...Option) *Service {
	s := &Service{
		cfg:   config.New(),
		sched: clock.Real{},
		clk:   clock.Real{},
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.log == nil {
		s.log = logger.Get().Named("service")
	}
	return s
}

// Start opens the backend, builds the engine and starts playback, ingest and
// the change feed.
func (s *Service) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.started {
		return nil
	}
	cfg := s.cfg
	s.log.Info(ctx, "starting hackcast service...")

	if err := s.openStore(ctx); err != nil {
		return err
	}

	hackathons, err := s.store.ActiveHackathons(ctx)
	if err != nil {
		s.closeOwned()
		return fmt.Errorf("load active hackathons: %w", err)
	}

	s.scorer = scoring.New(
		scoring.WithWeights(cfg.PriorityWeights()),
		scoring.WithHalfLife(cfg.Scoring.HalfLife),
		scoring.WithActivationFloor(cfg.Scoring.ActivationFloor),
		scoring.WithSwitchCadence(cfg.Scoring.SwitchCadence),
		scoring.WithClock(s.clk),
	)
	for _, h := range hackathons {
		s.scorer.Track(h.ID, h.Name)
	}
	initial := pickInitial(hackathons, cfg.DefaultHackathon)
	if initial.ID == "" {
		s.log.Warn(ctx, "no live hackathons, waiting for events")
	} else {
		s.scorer.SetActive(initial.ID)
	}

	s.deduper = dedupe.NewInMemoryDeduper(dedupe.WithMaxSize(cfg.DedupeSize))
	s.normalizer = normalize.New(s.store,
		normalize.WithThresholds(cfg.Thresholds),
		normalize.WithDeduper(s.deduper),
		normalize.WithDedupBucket(cfg.DedupeBucket),
		normalize.WithClock(s.clk),
	)

	s.generator = content.New(s.buildNarrator(ctx),
		content.WithFactSource(s.store),
		content.WithTickerSource(s.store),
		content.WithRecentEvents(s.scorer),
		content.WithNarrationTimeout(cfg.Narration.Timeout),
		content.WithLineRange(cfg.Narration.MinLines, cfg.Narration.MaxLines),
		content.WithTickerLimit(cfg.Narration.TickerLimit),
		content.WithSpeakingRate(cfg.Narration.WordsPerSecond, cfg.Narration.MinLineSeconds),
	)

	s.machine = playback.New(s.generator, s.scorer,
		playback.WithTimings(cfg.Timings),
		playback.WithScheduler(s.sched),
		playback.WithHackathon(initial.ID, initial.Name),
	)

	s.gate = gate.New(
		gate.WithZeroViewerDebounce(cfg.AutoPause.ZeroViewerDebounce),
		gate.WithAutoPause(cfg.AutoPause.Enabled),
		gate.WithScheduler(s.sched),
	)
	s.gate.OnChange(s.machine.SetPaused)

	s.queue = eventqueue.NewInMemoryQueue(eventqueue.WithCapacity(cfg.EventQueueSize))
	s.pool = workerpool.NewPool(cfg.WorkerCount, s.queue, s.normalizer, s.scorer, s.machine)

	runCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	s.cancel = cancel

	if err := s.startFeed(runCtx); err != nil {
		cancel()
		s.closeOwned()
		return err
	}

	s.pool.Start(runCtx)
	s.machine.Start(runCtx)
	s.viewersMu.Lock()
	s.viewersChangedLocked()
	s.viewersMu.Unlock()

	s.started = true
	s.startedAt = time.Now()
	s.log.Info(ctx, "hackcast service started",
		logger.String("active_hackathon", initial.ID),
		logger.Int("hackathons", len(hackathons)),
		logger.Int("workers", s.pool.Size()),
		logger.Int("queue_size", cfg.EventQueueSize),
		logger.Bool("feed", s.subscriber != nil),
		logger.Bool("narrator", !s.generator.FallbackActive()),
	)
	return nil
}

func (s *Service) openStore(ctx context.Context) error {
	if s.db == nil {
		db, err := repository.Open(s.cfg.Database)
		if err != nil {
			return fmt.Errorf("open database: %w", err)
		}
		s.db = db
		s.ownDB = true
	}
	s.store = repository.New(s.db)
	if err := s.store.AutoMigrate(ctx); err != nil {
		s.closeOwned()
		return fmt.Errorf("migrate database: %w", err)
	}
	if s.cfg.SeedDemo {
		if err := s.store.Seed(ctx); err != nil {
			s.closeOwned()
			return fmt.Errorf("seed database: %w", err)
		}
	}
	return nil
}

func (s *Service) buildNarrator(ctx context.Context) content.Narrator {
	if s.narrator != nil {
		return s.narrator
	}
	if s.cfg.LLM.APIKey == "" {
		s.log.Info(ctx, "no llm api key, commentary uses scripts")
		return nil
	}
	var clientOpts []llm.ClientOption
	if s.cfg.LLM.BaseURL != "" {
		clientOpts = append(clientOpts, llm.WithBaseURL(s.cfg.LLM.BaseURL))
	}
	return llm.NewNarrator(llm.NewClient(s.cfg.LLM.APIKey, clientOpts...),
		llm.WithModel(s.cfg.LLM.Model),
		llm.WithMaxTokens(s.cfg.LLM.MaxTokens),
		llm.WithTemperature(s.cfg.LLM.Temperature),
	)
}

// startFeed subscribes to the change feed when one is configured.
func (s *Service) startFeed(ctx context.Context) error {
	if s.redisClient == nil && s.cfg.Redis.Addr != "" {
		client, err := feed.Dial(ctx, feed.Options{
			Addr:     s.cfg.Redis.Addr,
			Password: s.cfg.Redis.Password,
			DB:       s.cfg.Redis.DB,
		})
		if err != nil {
			return fmt.Errorf("connect change feed: %w", err)
		}
		s.redisClient = client
		s.ownRedis = true
	}
	if s.redisClient == nil {
		s.log.Info(ctx, "no change feed configured, accepting injected events only")
		return nil
	}
	s.subscriber = feed.NewSubscriber(s.redisClient, s.cfg.Redis.Pattern, s.queue)
	go s.subscriber.Run(ctx)
	return nil
}

func pickInitial(hackathons []model.Hackathon, preferred string) model.Hackathon {
	for _, h := range hackathons {
		if h.ID == preferred {
			return h
		}
	}
	if len(hackathons) > 0 {
		return hackathons[0]
	}
	return model.Hackathon{}
}

// Stop tears everything down. It is safe to call more than once.
func (s *Service) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.started {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), stopTimeout)
	defer cancel()
	s.log.Info(ctx, "stopping hackcast service...")

	s.cancel()
	if s.subscriber != nil {
		select {
		case <-s.subscriber.Done():
		case <-ctx.Done():
		}
	}
	if err := s.pool.Shutdown(ctx); err != nil {
		s.log.Warn(ctx, "worker pool shutdown", logger.Error(err))
	}
	s.gate.Dispose()
	s.machine.Dispose()
	s.closeOwned()

	s.started = false
	s.log.Info(ctx, "hackcast service stopped")
}

func (s *Service) closeOwned() {
	if s.ownRedis && s.redisClient != nil {
		if err := s.redisClient.Close(); err != nil {
			s.log.Warn(context.Background(), "close redis", logger.Error(err))
		}
		s.redisClient = nil
		s.ownRedis = false
	}
	if s.ownDB && s.store != nil {
		if err := s.store.Close(); err != nil {
			s.log.Warn(context.Background(), "close database", logger.Error(err))
		}
		s.db = nil
		s.ownDB = false
	}
}

// Frame returns the playback state with the content and line it refers to.
func (s *Service) Frame() types.Frame { return s.machine.Frame() }

// Subscribe streams frames until the returned cancel is called.
func (s *Service) Subscribe() (<-chan types.Frame, func()) { return s.machine.Subscribe() }

// SnapshotScores returns the hotness board.
func (s *Service) SnapshotScores() []types.Entry { return s.scorer.SnapshotScores() }

// SetManualPause sets the master-user pause.
func (s *Service) SetManualPause(paused bool) { s.gate.SetManualPause(paused) }

// SetAutoPauseEnabled toggles pausing when nobody watches.
func (s *Service) SetAutoPauseEnabled(enabled bool) { s.gate.SetAutoPauseEnabled(enabled) }

// GateState returns the pause inputs.
func (s *Service) GateState() gate.State { return s.gate.State() }

// SetPresenceViewers records viewers reported outside the stream.
func (s *Service) SetPresenceViewers(n int) {
	s.viewersMu.Lock()
	defer s.viewersMu.Unlock()
	s.presenceViewers = max(n, 0)
	s.viewersChangedLocked()
}

// SetStreamClients records the number of open stream connections.
func (s *Service) SetStreamClients(n int) {
	s.viewersMu.Lock()
	defer s.viewersMu.Unlock()
	s.streamClients = max(n, 0)
	s.viewersChangedLocked()
}

func (s *Service) viewersChangedLocked() {
	if s.gate != nil {
		s.gate.SetViewerCount(s.streamClients + s.presenceViewers)
	}
}

// Enqueue submits a raw change for ingest, the same path feed messages take.
// It reports false when the service is stopped or the queue is full.
func (s *Service) Enqueue(ctx context.Context, c model.RawChange) bool { //nolint:gocritic // hugeParam: changes are values
	s.mu.RLock()
	defer s.mu.RUnlock()
	if !s.started {
		return false
	}
	return s.queue.Enqueue(ctx, c)
}

// InjectEvent scores ev and routes it to playback as if it came off the feed.
// Re-sending an id that was already seen is a no-op.
func (s *Service) InjectEvent(ctx context.Context, ev model.DomainEvent) error { //nolint:gocritic // hugeParam: events are values
	s.mu.RLock()
	started := s.started
	s.mu.RUnlock()
	if !started {
		return api.WrapKind("service.inject", api.ErrUnavailable, ErrNotStarted)
	}
	if err := ev.Validate(); err != nil {
		return api.WrapKind("service.inject", api.ErrBadRequest, err)
	}
	if s.deduper.SeenAndRecord(ctx, ev.ID) {
		metrics.RecordEventDuplicate()
		return nil
	}
	if ev.HackathonName == "" {
		ev.HackathonName = s.scorer.Name(ev.HackathonID)
	}

	metrics.RecordEventNormalized(string(ev.Kind), string(ev.Priority))
	d := s.scorer.ApplyEvent(ev)
	workerpool.Route(s.machine, d, ev)
	s.injected.Add(1)

	s.log.Info(ctx, "event injected",
		logger.String("event_id", ev.ID),
		logger.String("hackathon_id", ev.HackathonID),
		logger.String("priority", string(ev.Priority)),
		logger.Bool("switched", d.Switched))
	return nil
}

// GetStats returns service statistics for monitoring.
func (s *Service) GetStats() map[string]any {
	s.mu.RLock()
	defer s.mu.RUnlock()

	ctx := context.Background()
	stats := map[string]any{
		"started":     s.started,
		"workerCount": s.cfg.WorkerCount,
		"queueSize":   s.cfg.EventQueueSize,
		"dedupeSize":  s.cfg.DedupeSize,
	}
	if !s.started {
		return stats
	}

	s.viewersMu.Lock()
	stream, presence := s.streamClients, s.presenceViewers
	s.viewersMu.Unlock()

	queueLen := s.queue.Len(ctx)
	snap := s.machine.Snapshot()
	gs := s.gate.State()

	stats["uptimeSeconds"] = time.Since(s.startedAt).Seconds()
	stats["workerCount"] = s.pool.Size()
	stats["queueLength"] = queueLen
	stats["processed"] = s.pool.Processed()
	stats["injected"] = s.injected.Load()
	stats["dedupeEntries"] = s.deduper.Size()
	stats["activeHackathon"] = snap.ActiveHackathonID
	stats["phase"] = string(snap.Phase)
	stats["paused"] = gs.Paused
	stats["viewers"] = gs.Viewers
	stats["streamClients"] = stream
	stats["presenceViewers"] = presence
	stats["narrationFallback"] = s.generator.FallbackActive()
	stats["feedConnected"] = s.subscriber != nil

	metrics.UpdateQueueSize(queueLen)
	return stats
}
