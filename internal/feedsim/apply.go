package feedsim

import (
	"context"
	"fmt"
	"math"
	"time"

	"github.com/okian/hackcast/internal/adapters/repository"
	"github.com/okian/hackcast/internal/domain/model"
)

// Publisher sends row changes to the change feed.
type Publisher interface {
	Publish(ctx context.Context, c model.RawChange) error
}

// Backend is the slice of the store the simulator writes through.
type Backend interface {
	PlaceBet(ctx context.Context, marketID string, amount float64) (repository.BetRow, error)
	Market(ctx context.Context, id string) (model.Market, error)
	SetOdds(ctx context.Context, marketID string, odds float64) (before, after repository.MarketRow, err error)
	AdjustMomentum(ctx context.Context, teamID string, delta float64, milestone string) (before, after repository.TeamRow, err error)
	AddCommentary(ctx context.Context, hackathonID, teamID, text string, sentiment float64) (repository.CommentaryRow, error)
}

// Apply performs op against the backend and returns the change the backend
// would have emitted for it.
func Apply(ctx context.Context, b Backend, op Op) (model.RawChange, error) { //nolint:gocritic // hugeParam: ops are values
	now := time.Now().UTC()
	switch op.Kind {
	case OpBet:
		row, err := b.PlaceBet(ctx, op.MarketID, op.Amount)
		if err != nil {
			return model.RawChange{}, err
		}
		return model.RawChange{Table: "bets", Type: model.ChangeInsert, Record: row.Record(), CommitTimestamp: now}, nil
	case OpOdds:
		m, err := b.Market(ctx, op.MarketID)
		if err != nil {
			return model.RawChange{}, err
		}
		before, after, err := b.SetOdds(ctx, op.MarketID, math.Max(minOdds, m.Odds+op.Amount))
		if err != nil {
			return model.RawChange{}, err
		}
		return update("markets", before.Record(), after.Record(), now), nil
	case OpMomentum:
		before, after, err := b.AdjustMomentum(ctx, op.TeamID, op.Amount, "")
		if err != nil {
			return model.RawChange{}, err
		}
		return update("teams", before.Record(), after.Record(), now), nil
	case OpCommentary:
		row, err := b.AddCommentary(ctx, op.HackathonID, op.TeamID, op.Text, 0)
		if err != nil {
			return model.RawChange{}, err
		}
		return model.RawChange{Table: "commentary", Type: model.ChangeInsert, Record: row.Record(), CommitTimestamp: now}, nil
	}
	return model.RawChange{}, fmt.Errorf("unknown op %q", op.Kind)
}

func update(table string, before, after map[string]any, at time.Time) model.RawChange {
	return model.RawChange{
		Table:           table,
		Type:            model.ChangeUpdate,
		Record:          after,
		OldRecord:       before,
		CommitTimestamp: at,
	}
}
