package feedsim

import (
	"context"
	"fmt"
	"math/rand"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/okian/hackcast/internal/adapters/feed"
	"github.com/okian/hackcast/internal/adapters/repository"
	"github.com/okian/hackcast/pkg/logger"
)

// Run executes a complete simulation against a running service.
func Run(ctx context.Context, cfg *Config) error {
	stats := &Stats{StartTime: time.Now()}
	log := logger.Get().Named("feed-sim")

	log.Info(ctx, "starting hackcast feed simulation",
		logger.String("baseURL", cfg.BaseURL),
		logger.String("redis", cfg.Redis.Addr),
		logger.Int("changes", cfg.NumChanges),
		logger.Int("hotBets", cfg.HotBets),
		logger.Int("workers", cfg.Workers))

	client := NewClient(cfg.BaseURL, cfg.Timeout)
	if err := client.Health(ctx); err != nil {
		return fmt.Errorf("service health check failed: %w", err)
	}

	db, err := repository.Open(cfg.Database)
	if err != nil {
		return err
	}
	store := repository.New(db)
	defer func() { _ = store.Close() }()
	if cfg.Seed {
		if err := store.AutoMigrate(ctx); err != nil {
			return err
		}
		if err := store.Seed(ctx); err != nil {
			return err
		}
	}

	rdb, err := feed.Dial(ctx, cfg.Redis)
	if err != nil {
		return fmt.Errorf("connect change feed: %w", err)
	}
	defer func() { _ = rdb.Close() }()

	targets, err := loadTargets(ctx, store)
	if err != nil {
		return err
	}
	hot := cfg.Hot
	if hot == "" {
		hot = targets[len(targets)-1].Hackathon.ID
	}
	seed := cfg.RandSeed
	if seed == 0 {
		seed = time.Now().UnixNano()
	}
	ops, err := Plan(rand.New(rand.NewSource(seed)), targets, hot, cfg.NumChanges, cfg.HotBets) //nolint:gosec // simulation only
	if err != nil {
		return err
	}
	stats.ChangesPlanned = len(ops)

	if err := Publish(ctx, store, feed.NewPublisher(rdb), ops, cfg.Workers, cfg.Verbose, stats); err != nil {
		return fmt.Errorf("publishing failed: %w", err)
	}

	log.Info(ctx, "waiting for changes to be processed", logger.Duration("settle", cfg.Settle))
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-time.After(cfg.Settle):
	}

	entries, err := client.Scores(ctx)
	if err != nil {
		return fmt.Errorf("score retrieval failed: %w", err)
	}
	if err := Verify(entries, hot); err != nil {
		return err
	}

	stats.EndTime = time.Now()
	stats.Duration = stats.EndTime.Sub(stats.StartTime)
	log.Info(ctx, "simulation completed successfully",
		logger.String("hot", hot),
		logger.Float64("hotScore", entries[0].EffectiveScore),
		logger.Int("planned", stats.ChangesPlanned),
		logger.Int("published", stats.ChangesPublished),
		logger.Int("failed", stats.ChangesFailed),
		logger.Duration("duration", stats.Duration))
	return nil
}

// Publish applies ops with a bounded number of workers. Background ops may
// fail individually; the run only aborts when ctx ends.
func Publish(ctx context.Context, b Backend, p Publisher, ops []Op, workers int, verbose bool, stats *Stats) error {
	log := logger.Get().Named("feed-sim")
	if workers < 1 {
		workers = 1
	}

	var published, failed atomic.Int64
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(workers)
	for _, op := range ops {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			change, err := Apply(gctx, b, op)
			if err == nil {
				err = p.Publish(gctx, change)
			}
			if err != nil {
				failed.Add(1)
				log.Warn(gctx, "change failed", logger.String("op", string(op.Kind)), logger.Error(err))
				return nil
			}
			published.Add(1)
			if verbose {
				log.Info(gctx, "change published",
					logger.String("table", change.Table),
					logger.String("id", change.RowID()),
					logger.String("hackathon_id", op.HackathonID))
			}
			return nil
		})
	}
	err := g.Wait()

	stats.ChangesPublished = int(published.Load())
	stats.ChangesFailed = int(failed.Load())
	return err
}
