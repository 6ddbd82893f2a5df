package repository_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/okian/hackcast/internal/adapters/repository"
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
	ctx := context.Background()
	if err := s.AutoMigrate(ctx); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	if err := s.Seed(ctx); err != nil {
		t.Fatalf("seed: %v", err)
	}
	return s
}

func TestOpen(t *testing.T) {
	Convey("An unknown driver is rejected", t, func() {
		_, err := repository.Open(repository.Config{Driver: "oracle"})
		So(errors.Is(err, repository.ErrUnsupportedDriver), ShouldBeTrue)
	})
}

func TestLookups(t *testing.T) {
	Convey("Given a seeded store", t, func() {
		s := newStore(t)
		defer s.Close()
		ctx := context.Background()

		Convey("Seeding twice is harmless", func() {
			So(s.Seed(ctx), ShouldBeNil)
			active, err := s.ActiveHackathons(ctx)
			So(err, ShouldBeNil)
			So(active, ShouldHaveLength, 3)
		})

		Convey("Hackathons, teams and markets resolve by id", func() {
			h, err := s.Hackathon(ctx, "h-aurora")
			So(err, ShouldBeNil)
			So(h.Name, ShouldEqual, "Aurora Hack")

			team, err := s.Team(ctx, "h-aurora-t2")
			So(err, ShouldBeNil)
			So(team.Name, ShouldEqual, "Null Pointers")
			So(team.HackathonID, ShouldEqual, "h-aurora")

			m, err := s.Market(ctx, "h-cinder-m1")
			So(err, ShouldBeNil)
			So(m.TeamID, ShouldEqual, "h-cinder-t1")
			So(m.HackathonID, ShouldEqual, "h-cinder")
		})

		Convey("Unknown ids report ErrNotFound", func() {
			_, err := s.Team(ctx, "ghost")
			So(errors.Is(err, repository.ErrNotFound), ShouldBeTrue)
			_, err = s.Market(ctx, "ghost")
			So(errors.Is(err, repository.ErrNotFound), ShouldBeTrue)
			_, err = s.Hackathon(ctx, "ghost")
			So(errors.Is(err, repository.ErrNotFound), ShouldBeTrue)
		})

		Convey("Active hackathons are ordered by name", func() {
			active, err := s.ActiveHackathons(ctx)
			So(err, ShouldBeNil)
			So(active[0].Name, ShouldEqual, "Aurora Hack")
		})
	})
}

func TestWritesAndFacts(t *testing.T) {
	Convey("Given a seeded store", t, func() {
		s := newStore(t)
		defer s.Close()
		ctx := context.Background()

		Convey("Bets on unknown markets are refused", func() {
			_, err := s.PlaceBet(ctx, "ghost", 10)
			So(errors.Is(err, repository.ErrNotFound), ShouldBeTrue)
		})

		Convey("Odds updates return both rows", func() {
			before, after, err := s.SetOdds(ctx, "h-aurora-m1", 14)
			So(err, ShouldBeNil)
			So(before.Odds, ShouldEqual, 2.0)
			So(after.Odds, ShouldEqual, 14.0)
			m, _ := s.Market(ctx, "h-aurora-m1")
			So(m.Odds, ShouldEqual, 14.0)
			So(after.Record()["odds"], ShouldEqual, 14.0)
		})

		Convey("Momentum updates accumulate and set milestones", func() {
			before, after, err := s.AdjustMomentum(ctx, "h-borealis-t3", 20, "demo shipped")
			So(err, ShouldBeNil)
			So(before.Momentum, ShouldEqual, 10.0)
			So(after.Momentum, ShouldEqual, 30.0)
			So(after.Milestone, ShouldEqual, "demo shipped")

			Convey("And the team moves to the top of the facts", func() {
				facts, err := s.Facts(ctx, "h-borealis")
				So(err, ShouldBeNil)
				So(facts.TopTeams[0].ID, ShouldEqual, "h-borealis-t3")
			})
		})

		Convey("Facts total the bets of the hackathon only", func() {
			_, err := s.PlaceBet(ctx, "h-aurora-m1", 100)
			So(err, ShouldBeNil)
			_, err = s.PlaceBet(ctx, "h-aurora-m2", 250)
			So(err, ShouldBeNil)
			_, err = s.PlaceBet(ctx, "h-cinder-m1", 999)
			So(err, ShouldBeNil)

			facts, err := s.Facts(ctx, "h-aurora")
			So(err, ShouldBeNil)
			So(facts.HackathonName, ShouldEqual, "Aurora Hack")
			So(facts.BetCount, ShouldEqual, 2)
			So(facts.TotalStaked, ShouldEqual, 350.0)
			So(facts.TopTeams, ShouldHaveLength, 3)
			So(facts.HotMarkets[0].ID, ShouldEqual, "h-aurora-m3")
		})

		Convey("Facts for an unknown hackathon fail", func() {
			_, err := s.Facts(ctx, "ghost")
			So(errors.Is(err, repository.ErrNotFound), ShouldBeTrue)
		})

		Convey("The ticker merges bets and commentary newest first", func() {
			_, err := s.PlaceBet(ctx, "h-aurora-m1", 40)
			So(err, ShouldBeNil)
			time.Sleep(5 * time.Millisecond)
			_, err = s.AddCommentary(ctx, "h-aurora", "", "Judges arrive early", 0.2)
			So(err, ShouldBeNil)
			time.Sleep(5 * time.Millisecond)
			_, err = s.PlaceBet(ctx, "h-aurora-m2", 60)
			So(err, ShouldBeNil)

			items, err := s.Ticker(ctx, "h-aurora", 10)
			So(err, ShouldBeNil)
			So(items, ShouldHaveLength, 3)
			So(items[0].Text, ShouldEqual, "60 staked on Null Pointers to win")
			So(items[1].Category, ShouldEqual, "news")
			So(items[2].Category, ShouldEqual, "bet")

			Convey("And honours the limit", func() {
				items, err := s.Ticker(ctx, "h-aurora", 2)
				So(err, ShouldBeNil)
				So(items, ShouldHaveLength, 2)
			})
		})

		Convey("A non-positive ticker limit is invalid", func() {
			_, err := s.Ticker(ctx, "h-aurora", 0)
			So(errors.Is(err, repository.ErrInvalidLimit), ShouldBeTrue)
		})

		Convey("Opened markets are listed", func() {
			m, err := s.OpenMarket(ctx, "h-cinder", "", "Cinder finishes on time", 3)
			So(err, ShouldBeNil)
			markets, err := s.Markets(ctx, "h-cinder")
			So(err, ShouldBeNil)
			So(markets, ShouldHaveLength, 4)
			So(m.Record()["hackathon_id"], ShouldEqual, "h-cinder")
		})
	})
}
