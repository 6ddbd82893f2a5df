// Package worker drains the change queue: every change is normalized, folded
// into the hotness scores and, when it matters on air, handed to playback.
package worker

import (
	"context"
	"fmt"
	"runtime"
	"strconv"
	"sync/atomic"
	"time"

	"github.com/okian/hackcast/internal/adapters/mq/queue"
	"github.com/okian/hackcast/internal/domain/model"
	"github.com/okian/hackcast/internal/domain/scoring"
	"github.com/okian/hackcast/pkg/logger"
	"github.com/okian/hackcast/pkg/metrics"
)

const poolShutdownTimeout = 30 * time.Second

// Queue defines how workers receive changes.
type Queue interface {
	Dequeue(ctx context.Context) <-chan queue.Change
}

// Normalizer turns a raw change into a domain event. ok is false when the
// change is dropped.
type Normalizer interface {
	Normalize(ctx context.Context, c model.RawChange) (*model.DomainEvent, bool)
}

// Scorer folds an event into the hotness scores.
type Scorer interface {
	ApplyEvent(ev model.DomainEvent) scoring.Decision
}

// Broadcaster receives switch requests and breaking events.
type Broadcaster interface {
	RequestSwitch(t scoring.Target)
	InjectBreaking(ev model.DomainEvent)
}

// Worker processes changes until stopped.
type Worker interface {
	// Run starts the worker loop until ctx is canceled.
	Run(ctx context.Context)

	// Shutdown gracefully stops the worker.
	Shutdown(ctx context.Context) error
}

// InMemoryWorker implements Worker.
type InMemoryWorker struct {
	queue       Queue
	normalizer  Normalizer
	scorer      Scorer
	broadcaster Broadcaster
	name        string
	onProcessed func()

	shutdown chan struct{}
	done     chan struct{}

	logger logger.Logger
}

// NewInMemoryWorker creates a new worker with configuration options.
func NewInMemoryWorker(q Queue, n Normalizer, s Scorer, b Broadcaster, opts ...Option) *InMemoryWorker {
	w := &InMemoryWorker{
		queue:       q,
		normalizer:  n,
		scorer:      s,
		broadcaster: b,
		name:        "worker",
		shutdown:    make(chan struct{}),
		done:        make(chan struct{}),
		logger:      logger.Get().Named("worker"),
	}
	for _, opt := range opts {
		opt(w)
	}
	if w.name != "worker" {
		w.logger = w.logger.Named(w.name)
	}
	return w
}

// Run starts the worker loop.
func (w *InMemoryWorker) Run(ctx context.Context) {
	defer close(w.done)

	changes := w.queue.Dequeue(ctx)
	for {
		select {
		case <-ctx.Done():
			return
		case <-w.shutdown:
			return
		case c, ok := <-changes:
			if !ok {
				return
			}
			if err := w.process(ctx, c); err != nil {
				w.logger.Error(ctx, "error processing change", logger.Error(err))
			}
		}
	}
}

// Shutdown gracefully stops the worker.
func (w *InMemoryWorker) Shutdown(ctx context.Context) error {
	close(w.shutdown)
	select {
	case <-w.done:
		return nil
	case <-ctx.Done():
		w.logger.Warn(ctx, "shutdown timed out")
		return fmt.Errorf("shutdown timed out: %w", ctx.Err())
	}
}

// process handles a single change. Panics from collaborators are reported as
// errors so one bad row never kills the worker.
func (w *InMemoryWorker) process(ctx context.Context, c queue.Change) (err error) { //nolint:gocritic // hugeParam: passed by value for channel semantics
	start := time.Now()
	defer func() {
		if r := recover(); r != nil {
			metrics.RecordWorkerError()
			err = fmt.Errorf("panic processing %s change %s: %v", c.Table, c.RowID(), r)
		}
		metrics.RecordWorkerProcessingLatency(float64(time.Since(start).Milliseconds()))
	}()

	ev, ok := w.normalizer.Normalize(ctx, c)
	if !ok {
		return nil
	}

	d := w.scorer.ApplyEvent(*ev)
	Route(w.broadcaster, d, *ev)

	if w.onProcessed != nil {
		w.onProcessed()
	}
	w.logger.Debug(ctx, "change processed",
		logger.String("event_id", ev.ID),
		logger.String("kind", string(ev.Kind)),
		logger.String("hackathon_id", ev.HackathonID),
		logger.Bool("switched", d.Switched))
	return nil
}

// Route hands a scored event to playback. A forced switch is followed by the
// breaking event that caused it; a breaking event for the hackathon on air is
// injected in place. Everything else only moves the scores.
func Route(b Broadcaster, d scoring.Decision, ev model.DomainEvent) { //nolint:gocritic // hugeParam: events are values
	switch {
	case d.Switched:
		b.RequestSwitch(d.Candidate)
		b.InjectBreaking(ev)
	case ev.IsBreaking() && ev.HackathonID == d.ActiveHackathonID:
		b.InjectBreaking(ev)
	}
}

// Pool manages multiple workers sharing one queue.
type Pool struct {
	workers []*InMemoryWorker
	queue   Queue

	processed atomic.Int64

	logger logger.Logger
}

// NewPool creates a new worker pool. A count below one uses one worker per CPU.
func NewPool(workerCount int, q Queue, n Normalizer, s Scorer, b Broadcaster) *Pool {
	if workerCount < 1 {
		workerCount = runtime.NumCPU()
	}

	p := &Pool{
		workers: make([]*InMemoryWorker, workerCount),
		queue:   q,
		logger:  logger.Get().Named("worker-pool"),
	}
	for i := 0; i < workerCount; i++ {
		p.workers[i] = NewInMemoryWorker(q, n, s, b,
			WithName("worker-"+strconv.Itoa(i)),
			WithProcessedHook(func() { p.processed.Add(1) }),
		)
	}

	metrics.UpdateWorkerCount(workerCount)
	return p
}

// Start starts all workers in the pool.
func (p *Pool) Start(ctx context.Context) {
	for _, w := range p.workers {
		go w.Run(ctx)
	}
	p.logger.Info(ctx, "worker pool started", logger.Int("workers", len(p.workers)))
}

// Size returns the number of workers.
func (p *Pool) Size() int {
	return len(p.workers)
}

// Processed returns how many changes produced an event since start.
func (p *Pool) Processed() int64 {
	return p.processed.Load()
}

// Shutdown closes the queue, letting workers drain what is left, then waits
// for them to exit.
func (p *Pool) Shutdown(ctx context.Context) error {
	if closer, ok := p.queue.(interface{ Close() error }); ok {
		if err := closer.Close(); err != nil {
			p.logger.Error(ctx, "error closing queue", logger.Error(err))
		}
	}

	shutdownCtx, cancel := context.WithTimeout(ctx, poolShutdownTimeout)
	defer cancel()

	var timedOut bool
	for i, w := range p.workers {
		select {
		case <-w.done:
		case <-shutdownCtx.Done():
			timedOut = true
			p.logger.Warn(ctx, "worker shutdown timed out", logger.Int("worker_id", i))
		}
	}
	metrics.UpdateWorkerCount(0)
	if timedOut {
		return fmt.Errorf("worker pool shutdown: %w", shutdownCtx.Err())
	}
	return nil
}
