package normalize_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/okian/hackcast/internal/domain/model"
	"github.com/okian/hackcast/internal/domain/normalize"
	"github.com/okian/hackcast/pkg/logger"
	. "github.com/smartystreets/goconvey/convey"
)

func init() {
	_ = logger.Init()
}

var errNotFound = errors.New("not found")

type fakeDirectory struct {
	mu         sync.Mutex
	teams      map[string]model.Team
	markets    map[string]model.Market
	hackathons map[string]model.Hackathon
	calls      map[string]int
	fail       bool
}

func newFakeDirectory() *fakeDirectory {
	return &fakeDirectory{
		teams: map[string]model.Team{
			"t-a": {ID: "t-a", Name: "Byte Club", HackathonID: "h-a"},
			"t-b": {ID: "t-b", Name: "Null Pointers", HackathonID: "h-b"},
			"t-orphan": {ID: "t-orphan", Name: "Orphans", HackathonID: "h-gone"},
		},
		markets: map[string]model.Market{
			"m-a": {ID: "m-a", Title: "Who wins?", HackathonID: "h-a", TeamID: "t-a"},
		},
		hackathons: map[string]model.Hackathon{
			"h-a": {ID: "h-a", Name: "Spring Jam"},
			"h-b": {ID: "h-b", Name: "Winter Hack"},
		},
		calls: map[string]int{},
	}
}

func (f *fakeDirectory) Team(_ context.Context, id string) (model.Team, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls["team:"+id]++
	t, ok := f.teams[id]
	if f.fail || !ok {
		return model.Team{}, errNotFound
	}
	return t, nil
}

func (f *fakeDirectory) Market(_ context.Context, id string) (model.Market, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls["market:"+id]++
	m, ok := f.markets[id]
	if f.fail || !ok {
		return model.Market{}, errNotFound
	}
	return m, nil
}

func (f *fakeDirectory) Hackathon(_ context.Context, id string) (model.Hackathon, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls["hackathon:"+id]++
	h, ok := f.hackathons[id]
	if f.fail || !ok {
		return model.Hackathon{}, errNotFound
	}
	return h, nil
}

var commit = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

func bet(id string, amount float64) model.RawChange {
	return model.RawChange{
		Table:           normalize.TableBets,
		Type:            model.ChangeInsert,
		Record:          map[string]any{"id": id, "market_id": "m-a", "amount": amount},
		CommitTimestamp: commit,
	}
}

func teamUpdate(id string, before, after float64) model.RawChange {
	return model.RawChange{
		Table:           normalize.TableTeams,
		Type:            model.ChangeUpdate,
		Record:          map[string]any{"id": id, "momentum": after},
		OldRecord:       map[string]any{"id": id, "momentum": before},
		CommitTimestamp: commit,
	}
}

func TestNormalizeBets(t *testing.T) {
	ctx := context.Background()

	Convey("Given a normalizer over a fake backend", t, func() {
		dir := newFakeDirectory()
		n := normalize.New(dir)

		Convey("When a large bet is inserted", func() {
			ev, ok := n.Normalize(ctx, bet("b-1", 1000))

			Convey("Then a breaking bet_placed event is produced for the market's hackathon", func() {
				So(ok, ShouldBeTrue)
				So(ev.Kind, ShouldEqual, model.KindBetPlaced)
				So(ev.Priority, ShouldEqual, model.PriorityBreaking)
				So(ev.HackathonID, ShouldEqual, "h-a")
				So(ev.HackathonName, ShouldEqual, "Spring Jam")
				So(ev.TeamName, ShouldEqual, "Byte Club")
				So(ev.CurrentValue, ShouldEqual, 1000.0)
				So(ev.Timestamp, ShouldEqual, commit)
				So(ev.ID, ShouldStartWith, "bets:b-1:INSERT:")
			})
		})

		Convey("When a bet at exactly the stake threshold is inserted", func() {
			ev, ok := n.Normalize(ctx, bet("b-2", 500))

			Convey("Then it is normal priority", func() {
				So(ok, ShouldBeTrue)
				So(ev.Priority, ShouldEqual, model.PriorityNormal)
			})
		})

		Convey("When the same bet is delivered twice in one bucket", func() {
			_, first := n.Normalize(ctx, bet("b-3", 10))
			_, err := n.Process(ctx, bet("b-3", 10))

			Convey("Then the redelivery is dropped as a duplicate", func() {
				So(first, ShouldBeTrue)
				So(errors.Is(err, normalize.ErrDuplicate), ShouldBeTrue)
			})
		})

		Convey("When the same row changes again in a later bucket", func() {
			later := bet("b-4", 10)
			later.CommitTimestamp = commit.Add(6 * time.Second)
			_, first := n.Normalize(ctx, bet("b-4", 10))
			_, second := n.Normalize(ctx, later)

			Convey("Then both are kept", func() {
				So(first, ShouldBeTrue)
				So(second, ShouldBeTrue)
			})
		})

		Convey("When the market cannot be resolved", func() {
			c := bet("b-5", 900)
			c.Record["market_id"] = "m-missing"
			_, err := n.Process(ctx, c)

			Convey("Then the event is dropped as unresolved", func() {
				So(errors.Is(err, normalize.ErrUnresolved), ShouldBeTrue)
			})

			Convey("Then a redelivery is retried rather than deduplicated", func() {
				dir.markets["m-missing"] = model.Market{ID: "m-missing", HackathonID: "h-b"}
				ev, ok := n.Normalize(ctx, c)
				So(ok, ShouldBeTrue)
				So(ev.HackathonID, ShouldEqual, "h-b")
			})
		})

		Convey("When lookups repeat", func() {
			n.Normalize(ctx, bet("b-6", 1))
			n.Normalize(ctx, bet("b-7", 1))
			n.Normalize(ctx, bet("b-8", 1))

			Convey("Then the backend is asked once per id", func() {
				So(dir.calls["market:m-a"], ShouldEqual, 1)
				So(dir.calls["hackathon:h-a"], ShouldEqual, 1)
			})
		})

		Convey("When a bet has no amount", func() {
			c := bet("b-9", 0)
			delete(c.Record, "amount")
			_, err := n.Process(ctx, c)

			Convey("Then it is malformed", func() {
				So(errors.Is(err, normalize.ErrMalformedRow), ShouldBeTrue)
			})
		})
	})
}

func TestNormalizeTeamsAndMarkets(t *testing.T) {
	ctx := context.Background()

	Convey("Given a normalizer over a fake backend", t, func() {
		n := normalize.New(newFakeDirectory())

		Convey("When momentum moves by less than the noise floor", func() {
			_, err := n.Process(ctx, teamUpdate("t-b", 10, 12))

			Convey("Then nothing is emitted", func() {
				So(errors.Is(err, normalize.ErrBelowThreshold), ShouldBeTrue)
			})
		})

		Convey("When momentum moves across each tier", func() {
			normal, _ := n.Normalize(ctx, teamUpdate("t-b", 10, 14))
			high, _ := n.Normalize(ctx, teamUpdate("t-a", 10, 4))
			surge := teamUpdate("t-a", 0, 20)
			surge.CommitTimestamp = commit.Add(time.Minute)
			breaking, _ := n.Normalize(ctx, surge)

			Convey("Then priority scales with magnitude", func() {
				So(normal.Priority, ShouldEqual, model.PriorityNormal)
				So(normal.TeamName, ShouldEqual, "Null Pointers")
				So(normal.HackathonID, ShouldEqual, "h-b")
				So(high.Priority, ShouldEqual, model.PriorityHigh)
				So(high.Delta, ShouldEqual, -6.0)
				So(breaking.Priority, ShouldEqual, model.PriorityBreaking)
				So(breaking.Kind, ShouldEqual, model.KindTeamUpdate)
			})
		})

		Convey("When a team's milestone changes", func() {
			c := teamUpdate("t-a", 10, 11)
			c.Record["milestone"] = "demo submitted"
			c.OldRecord["milestone"] = "prototype"
			ev, ok := n.Normalize(ctx, c)

			Convey("Then a high priority milestone is emitted", func() {
				So(ok, ShouldBeTrue)
				So(ev.Kind, ShouldEqual, model.KindMilestone)
				So(ev.Priority, ShouldEqual, model.PriorityHigh)
				So(ev.MetricType, ShouldEqual, "demo submitted")
			})
		})

		Convey("When a team has no resolvable hackathon", func() {
			_, err := n.Process(ctx, teamUpdate("t-orphan", 0, 30))

			Convey("Then the event is dropped", func() {
				So(errors.Is(err, normalize.ErrUnresolved), ShouldBeTrue)
			})
		})

		Convey("When odds change", func() {
			small := model.RawChange{Table: "markets", Type: model.ChangeUpdate, CommitTimestamp: commit,
				Record: map[string]any{"id": "m-a", "odds": 2.5}, OldRecord: map[string]any{"id": "m-a", "odds": 2.0}}
			mid := model.RawChange{Table: "markets", Type: model.ChangeUpdate, CommitTimestamp: commit,
				Record: map[string]any{"id": "m-a", "odds": 40.0}, OldRecord: map[string]any{"id": "m-a", "odds": 35.0}}
			big := model.RawChange{Table: "markets", Type: model.ChangeUpdate, CommitTimestamp: commit.Add(time.Minute),
				Record: map[string]any{"id": "m-a", "odds": 60.0}, OldRecord: map[string]any{"id": "m-a", "odds": 40.0}}

			_, smallErr := n.Process(ctx, small)
			midEv, _ := n.Normalize(ctx, mid)
			bigEv, _ := n.Normalize(ctx, big)

			Convey("Then noise is filtered and large swings are breaking", func() {
				So(errors.Is(smallErr, normalize.ErrBelowThreshold), ShouldBeTrue)
				So(midEv.Kind, ShouldEqual, model.KindOddsChange)
				So(midEv.Priority, ShouldEqual, model.PriorityNormal)
				So(midEv.Delta, ShouldEqual, 5.0)
				So(bigEv.Priority, ShouldEqual, model.PriorityBreaking)
			})
		})

		Convey("When a market is opened", func() {
			ev, ok := n.Normalize(ctx, model.RawChange{Table: "markets", Type: model.ChangeInsert, CommitTimestamp: commit,
				Record: map[string]any{"id": "m-new", "hackathon_id": "h-b", "title": "First demo?"}})

			Convey("Then it is always high priority", func() {
				So(ok, ShouldBeTrue)
				So(ev.Kind, ShouldEqual, model.KindMarketOpened)
				So(ev.Priority, ShouldEqual, model.PriorityHigh)
				So(ev.MetricType, ShouldEqual, "First demo?")
			})
		})

		Convey("When commentary with strong sentiment is inserted", func() {
			strong, _ := n.Normalize(ctx, model.RawChange{Table: "commentary", Type: model.ChangeInsert, CommitTimestamp: commit,
				Record: map[string]any{"id": 1, "hackathon_id": "h-a", "sentiment": -0.9}})
			mild, _ := n.Normalize(ctx, model.RawChange{Table: "commentary", Type: model.ChangeInsert, CommitTimestamp: commit,
				Record: map[string]any{"id": 2, "hackathon_id": "h-a", "sentiment": 0.2}})

			Convey("Then priority follows absolute sentiment", func() {
				So(strong.Kind, ShouldEqual, model.KindBreakingNews)
				So(strong.Priority, ShouldEqual, model.PriorityBreaking)
				So(mild.Priority, ShouldEqual, model.PriorityNormal)
			})
		})

		Convey("When the change comes from an unknown table", func() {
			_, err := n.Process(ctx, model.RawChange{Table: "profiles", Type: model.ChangeUpdate,
				Record: map[string]any{"id": "p"}})

			Convey("Then it is unsupported", func() {
				So(errors.Is(err, normalize.ErrUnsupportedChange), ShouldBeTrue)
			})
		})
	})

	Convey("Given custom thresholds", t, func() {
		th := normalize.DefaultThresholds()
		th.BetBreakingStake = 50
		n := normalize.New(newFakeDirectory(), normalize.WithThresholds(th))

		Convey("Then they drive classification", func() {
			ev, ok := n.Normalize(ctx, bet("b-x", 60))
			So(ok, ShouldBeTrue)
			So(ev.Priority, ShouldEqual, model.PriorityBreaking)
		})
	})
}

func TestNormalizeMixedScenario(t *testing.T) {
	ctx := context.Background()

	Convey("Given a breaking bet for A followed by a sub-noise momentum change for B", t, func() {
		n := normalize.New(newFakeDirectory())

		a, okA := n.Normalize(ctx, bet("b-100", 1000))
		_, okB := n.Normalize(ctx, teamUpdate("t-b", 20, 22))

		Convey("Then only the first produces an event", func() {
			So(okA, ShouldBeTrue)
			So(a.HackathonID, ShouldEqual, "h-a")
			So(a.Priority, ShouldEqual, model.PriorityBreaking)
			So(okB, ShouldBeFalse)
		})
	})
}
