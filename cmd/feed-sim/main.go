package main

import (
	"context"
	"flag"
	"os"
	"runtime"
	"time"

	"github.com/okian/hackcast/internal/adapters/feed"
	"github.com/okian/hackcast/internal/adapters/repository"
	"github.com/okian/hackcast/internal/feedsim"
	"github.com/okian/hackcast/pkg/logger"
)

// Default configuration constants.
const (
	defaultNumChanges = 200
	defaultHotBets    = 5
	defaultSettle     = 3 * time.Second
	defaultTimeout    = 10 * time.Second
	defaultRunTimeout = 5 * time.Minute
)

func main() {
	var (
		baseURL   = flag.String("url", "http://localhost:9080", "Base URL of the service")
		redisAddr = flag.String("redis", "localhost:6379", "Redis address of the change feed")
		redisPass = flag.String("redis-password", "", "Redis password")
		redisDB   = flag.Int("redis-db", 0, "Redis database")
		driver    = flag.String("db-driver", "sqlite", "Backend driver: postgres or sqlite")
		dsn       = flag.String("db-dsn", "hackcast.db", "Backend DSN shared with the service")
		seed      = flag.Bool("seed", false, "Insert the demo dataset first")
		changes   = flag.Int("changes", defaultNumChanges, "Number of background changes")
		hot       = flag.String("hot", "", "Hackathon to make hot (default: last live hackathon)")
		hotBets   = flag.Int("hot-bets", defaultHotBets, "Number of breaking bets on the hot hackathon")
		workers   = flag.Int("workers", runtime.NumCPU(), "Number of concurrent publishers")
		settle    = flag.Duration("settle", defaultSettle, "Wait before verifying scores")
		timeout   = flag.Duration("timeout", defaultTimeout, "HTTP request timeout")
		randSeed  = flag.Int64("rand-seed", 0, "Plan seed (default: clock)")
		verbose   = flag.Bool("verbose", false, "Log every published change")
	)
	flag.Parse()

	if err := logger.Init(); err != nil {
		os.Stderr.WriteString("Failed to setup logging: " + err.Error() + "\n")
		os.Exit(1)
	}

	ctx, cancel := context.WithTimeout(context.Background(), defaultRunTimeout)
	defer cancel()

	cfg := &feedsim.Config{
		BaseURL:    *baseURL,
		Redis:      feed.Options{Addr: *redisAddr, Password: *redisPass, DB: *redisDB},
		Database:   repository.Config{Driver: *driver, DSN: *dsn},
		Seed:       *seed,
		NumChanges: *changes,
		Workers:    *workers,
		Hot:        *hot,
		HotBets:    *hotBets,
		Settle:     *settle,
		Timeout:    *timeout,
		RandSeed:   *randSeed,
		Verbose:    *verbose,
	}

	if err := feedsim.Run(ctx, cfg); err != nil {
		os.Stderr.WriteString("Simulation failed: " + err.Error() + "\n")
		os.Exit(1)
	}
}
