package feedsim

import (
	"context"
	"fmt"
	"math/rand"

	"github.com/okian/hackcast/internal/adapters/repository"
	"github.com/okian/hackcast/internal/domain/model"
)

// OpKind is one kind of backend mutation.
type OpKind string

// Mutations the simulator knows how to apply.
const (
	OpBet        OpKind = "bet"
	OpOdds       OpKind = "odds"
	OpMomentum   OpKind = "momentum"
	OpCommentary OpKind = "commentary"
)

// Stake and move ranges. Background changes stay under the breaking
// thresholds; hot bets clear the 500 stake cut-off.
const (
	smallStakeMin   = 10.0
	smallStakeRange = 200.0
	hotStakeMin     = 800.0
	hotStakeRange   = 1200.0
	oddsStepMax     = 4.0
	momentumStepMax = 10.0
	minOdds         = 1.1
)

var commentaryLines = []string{
	"Judges are circling the demo tables",
	"Coffee supply is holding up",
	"A late pivot is rumoured",
	"Live demo survived the wifi",
}

// Op is one planned mutation.
type Op struct {
	Kind        OpKind
	HackathonID string
	MarketID    string
	TeamID      string
	Amount      float64
	Text        string
}

// Target is everything the planner may touch in one hackathon.
type Target struct {
	Hackathon model.Hackathon
	Teams     []repository.TeamRow
	Markets   []repository.MarketRow
}

// loadTargets reads every live hackathon with its teams and markets.
func loadTargets(ctx context.Context, store *repository.Store) ([]Target, error) {
	hackathons, err := store.ActiveHackathons(ctx)
	if err != nil {
		return nil, err
	}
	targets := make([]Target, 0, len(hackathons))
	for _, h := range hackathons {
		teams, err := store.Teams(ctx, h.ID)
		if err != nil {
			return nil, err
		}
		markets, err := store.Markets(ctx, h.ID)
		if err != nil {
			return nil, err
		}
		if len(teams) == 0 || len(markets) == 0 {
			continue
		}
		targets = append(targets, Target{Hackathon: h, Teams: teams, Markets: markets})
	}
	if len(targets) == 0 {
		return nil, fmt.Errorf("no live hackathon has teams and markets")
	}
	return targets, nil
}

// Plan builds n background ops spread over every target, followed by hotBets
// breaking bets on hot.
func Plan(rng *rand.Rand, targets []Target, hot string, n, hotBets int) ([]Op, error) {
	var hotTarget *Target
	for i := range targets {
		if targets[i].Hackathon.ID == hot {
			hotTarget = &targets[i]
		}
	}
	if hotTarget == nil {
		return nil, fmt.Errorf("hot hackathon %q is not live", hot)
	}

	ops := make([]Op, 0, n+hotBets)
	for i := 0; i < n; i++ {
		t := targets[rng.Intn(len(targets))]
		ops = append(ops, backgroundOp(rng, t))
	}
	for i := 0; i < hotBets; i++ {
		m := hotTarget.Markets[rng.Intn(len(hotTarget.Markets))]
		ops = append(ops, Op{
			Kind:        OpBet,
			HackathonID: hotTarget.Hackathon.ID,
			MarketID:    m.ID,
			Amount:      hotStakeMin + rng.Float64()*hotStakeRange,
		})
	}
	return ops, nil
}

func backgroundOp(rng *rand.Rand, t Target) Op {
	m := t.Markets[rng.Intn(len(t.Markets))]
	team := t.Teams[rng.Intn(len(t.Teams))]
	op := Op{HackathonID: t.Hackathon.ID, MarketID: m.ID, TeamID: team.ID}
	switch rng.Intn(4) {
	case 0:
		op.Kind = OpBet
		op.Amount = smallStakeMin + rng.Float64()*smallStakeRange
	case 1:
		op.Kind = OpOdds
		op.Amount = (rng.Float64()*2 - 1) * oddsStepMax
	case 2:
		op.Kind = OpMomentum
		op.Amount = (rng.Float64()*2 - 1) * momentumStepMax
	default:
		op.Kind = OpCommentary
		op.Text = commentaryLines[rng.Intn(len(commentaryLines))]
	}
	return op
}
