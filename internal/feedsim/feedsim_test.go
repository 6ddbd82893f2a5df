package feedsim_test

import (
	"context"
	"errors"
	"math/rand"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"

	"github.com/okian/hackcast/internal/adapters/repository"
	"github.com/okian/hackcast/internal/domain/model"
	"github.com/okian/hackcast/internal/domain/types"
	"github.com/okian/hackcast/internal/feedsim"
	"github.com/okian/hackcast/pkg/logger"
	. "github.com/smartystreets/goconvey/convey"
)

func init() {
	_ = logger.Init()
}

func newStore(t *testing.T) *repository.Store {
	t.Helper()
	db, err := repository.Open(repository.Config{Driver: "sqlite", DSN: ":memory:", MaxOpenConns: 1})
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	s := repository.New(db)
	t.Cleanup(func() { _ = s.Close() })
	ctx := context.Background()
	if err := s.AutoMigrate(ctx); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	if err := s.Seed(ctx); err != nil {
		t.Fatalf("seed: %v", err)
	}
	return s
}

func targets() []feedsim.Target {
	mk := func(id string) feedsim.Target {
		return feedsim.Target{
			Hackathon: model.Hackathon{ID: id, Name: id},
			Teams:     []repository.TeamRow{{ID: id + "-t1", HackathonID: id}},
			Markets:   []repository.MarketRow{{ID: id + "-m1", HackathonID: id, Odds: 2}},
		}
	}
	return []feedsim.Target{mk("h-a"), mk("h-b")}
}

type capturePublisher struct {
	mu      sync.Mutex
	changes []model.RawChange
	err     error
}

func (p *capturePublisher) Publish(_ context.Context, c model.RawChange) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.err != nil {
		return p.err
	}
	p.changes = append(p.changes, c)
	return nil
}

func TestPlan(t *testing.T) {
	Convey("Given two targets", t, func() {
		rng := rand.New(rand.NewSource(7))

		Convey("The plan ends with breaking bets on the hot hackathon", func() {
			ops, err := feedsim.Plan(rng, targets(), "h-b", 20, 3)
			So(err, ShouldBeNil)
			So(ops, ShouldHaveLength, 23)
			for _, op := range ops[20:] {
				So(op.Kind, ShouldEqual, feedsim.OpBet)
				So(op.HackathonID, ShouldEqual, "h-b")
				So(op.Amount, ShouldBeGreaterThan, 500)
			}
		})

		Convey("Background bets stay under the breaking stake", func() {
			ops, _ := feedsim.Plan(rng, targets(), "h-a", 200, 0)
			for _, op := range ops {
				if op.Kind == feedsim.OpBet {
					So(op.Amount, ShouldBeLessThan, 500)
				}
			}
		})

		Convey("An unknown hot hackathon is rejected", func() {
			_, err := feedsim.Plan(rng, targets(), "h-z", 1, 1)
			So(err, ShouldNotBeNil)
		})
	})
}

func TestApply(t *testing.T) {
	Convey("Given a seeded store", t, func() {
		store := newStore(t)
		ctx := context.Background()

		Convey("A bet becomes a bets insert", func() {
			c, err := feedsim.Apply(ctx, store, feedsim.Op{Kind: feedsim.OpBet, MarketID: "h-aurora-m1", Amount: 900})
			So(err, ShouldBeNil)
			So(c.Table, ShouldEqual, "bets")
			So(c.Type, ShouldEqual, model.ChangeInsert)
			So(c.Record["amount"], ShouldEqual, 900.0)
			So(c.RowID(), ShouldNotBeEmpty)
		})

		Convey("An odds move becomes a markets update with the old row", func() {
			c, err := feedsim.Apply(ctx, store, feedsim.Op{Kind: feedsim.OpOdds, MarketID: "h-aurora-m1", Amount: 1.5})
			So(err, ShouldBeNil)
			So(c.Type, ShouldEqual, model.ChangeUpdate)
			So(c.OldRecord["odds"], ShouldEqual, 2.0)
			So(c.Record["odds"], ShouldEqual, 3.5)
		})

		Convey("Odds never drop below the floor", func() {
			c, err := feedsim.Apply(ctx, store, feedsim.Op{Kind: feedsim.OpOdds, MarketID: "h-aurora-m1", Amount: -10})
			So(err, ShouldBeNil)
			So(c.Record["odds"], ShouldEqual, 1.1)
		})

		Convey("A momentum move becomes a teams update", func() {
			c, err := feedsim.Apply(ctx, store, feedsim.Op{Kind: feedsim.OpMomentum, TeamID: "h-aurora-t1", Amount: 4})
			So(err, ShouldBeNil)
			So(c.Table, ShouldEqual, "teams")
			So(c.Record["momentum"], ShouldEqual, 34.0)
		})

		Convey("Commentary becomes a commentary insert", func() {
			c, err := feedsim.Apply(ctx, store, feedsim.Op{Kind: feedsim.OpCommentary, HackathonID: "h-aurora", TeamID: "h-aurora-t1", Text: "hi"})
			So(err, ShouldBeNil)
			So(c.Table, ShouldEqual, "commentary")
		})

		Convey("A bet on a missing market fails", func() {
			_, err := feedsim.Apply(ctx, store, feedsim.Op{Kind: feedsim.OpBet, MarketID: "nope", Amount: 1})
			So(errors.Is(err, repository.ErrNotFound), ShouldBeTrue)
		})
	})
}

func TestPublish(t *testing.T) {
	Convey("Given a seeded store and a capturing publisher", t, func() {
		store := newStore(t)
		pub := &capturePublisher{}
		stats := &feedsim.Stats{}
		ops := []feedsim.Op{
			{Kind: feedsim.OpBet, MarketID: "h-cinder-m1", Amount: 900},
			{Kind: feedsim.OpBet, MarketID: "missing", Amount: 1},
			{Kind: feedsim.OpMomentum, TeamID: "h-cinder-t2", Amount: 2},
		}

		Convey("Failures are counted without aborting the run", func() {
			So(feedsim.Publish(context.Background(), store, pub, ops, 2, false, stats), ShouldBeNil)
			So(stats.ChangesPublished, ShouldEqual, 2)
			So(stats.ChangesFailed, ShouldEqual, 1)
			So(pub.changes, ShouldHaveLength, 2)
		})

		Convey("Publisher errors count as failures", func() {
			pub.err = errors.New("redis down")
			So(feedsim.Publish(context.Background(), store, pub, ops, 1, true, stats), ShouldBeNil)
			So(stats.ChangesFailed, ShouldEqual, 3)
		})
	})
}

func TestVerify(t *testing.T) {
	Convey("Given a board", t, func() {
		board := []types.Entry{
			{Rank: 1, HackathonID: "h-c", EffectiveScore: 300},
			{Rank: 2, HackathonID: "h-a", EffectiveScore: 20},
		}

		Convey("The expected leader passes", func() {
			So(feedsim.Verify(board, "h-c"), ShouldBeNil)
		})

		Convey("A different leader fails", func() {
			So(errors.Is(feedsim.Verify(board, "h-a"), feedsim.ErrVerification), ShouldBeTrue)
		})

		Convey("Out of order scores fail", func() {
			board[1].EffectiveScore = 400
			So(errors.Is(feedsim.Verify(board, "h-c"), feedsim.ErrVerification), ShouldBeTrue)
		})

		Convey("An empty board fails", func() {
			So(feedsim.Verify(nil, "h-c"), ShouldNotBeNil)
		})
	})
}

func TestClient(t *testing.T) {
	Convey("Given a fake service", t, func() {
		status := http.StatusOK
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(status)
			if r.URL.Path == "/scores" {
				_, _ = w.Write([]byte(`[{"rank":1,"hackathon_id":"h-c","effective_score":150,"active":false}]`))
			}
		}))
		defer srv.Close()
		client := feedsim.NewClient(srv.URL, 0)
		ctx := context.Background()

		Convey("Health and scores are read", func() {
			So(client.Health(ctx), ShouldBeNil)
			entries, err := client.Scores(ctx)
			So(err, ShouldBeNil)
			So(entries, ShouldHaveLength, 1)
			So(entries[0].EffectiveScore, ShouldEqual, 150.0)
		})

		Convey("A failing service is reported", func() {
			status = http.StatusInternalServerError
			So(client.Health(ctx), ShouldNotBeNil)
			_, err := client.Scores(ctx)
			So(err, ShouldNotBeNil)
		})
	})
}
