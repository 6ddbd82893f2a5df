package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// PlaceBet inserts a bet on marketID.
func (s *Store) PlaceBet(ctx context.Context, marketID string, amount float64) (BetRow, error) {
	if _, err := s.Market(ctx, marketID); err != nil {
		return BetRow{}, err
	}
	row := BetRow{ID: uuid.NewString(), MarketID: marketID, Amount: amount, CreatedAt: time.Now().UTC()}
	if err := s.db.WithContext(ctx).Create(&row).Error; err != nil {
		return BetRow{}, fmt.Errorf("place bet: %w", err)
	}
	return row, nil
}

// OpenMarket inserts a new market.
func (s *Store) OpenMarket(ctx context.Context, hackathonID, teamID, title string, odds float64) (MarketRow, error) {
	row := MarketRow{
		ID:          uuid.NewString(),
		Title:       title,
		HackathonID: hackathonID,
		TeamID:      teamID,
		Odds:        odds,
	}
	if err := s.db.WithContext(ctx).Create(&row).Error; err != nil {
		return MarketRow{}, fmt.Errorf("open market: %w", err)
	}
	return row, nil
}

// SetOdds updates a market's odds and returns the row before and after.
func (s *Store) SetOdds(ctx context.Context, marketID string, odds float64) (before, after MarketRow, err error) {
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.First(&before, "id = ?", marketID).Error; err != nil {
			return notFound(err, "market", marketID)
		}
		after = before
		after.Odds = odds
		return tx.Model(&after).Update("odds", odds).Error
	})
	return before, after, err
}

// AdjustMomentum adds delta to a team's momentum, optionally setting a new
// milestone, and returns the row before and after.
func (s *Store) AdjustMomentum(ctx context.Context, teamID string, delta float64, milestone string) (before, after TeamRow, err error) {
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.First(&before, "id = ?", teamID).Error; err != nil {
			return notFound(err, "team", teamID)
		}
		after = before
		after.Momentum += delta
		updates := map[string]any{"momentum": after.Momentum}
		if milestone != "" {
			after.Milestone = milestone
			updates["milestone"] = milestone
		}
		return tx.Model(&after).Updates(updates).Error
	})
	return before, after, err
}

// AddCommentary inserts a commentary note.
func (s *Store) AddCommentary(ctx context.Context, hackathonID, teamID, text string, sentiment float64) (CommentaryRow, error) {
	row := CommentaryRow{
		ID:          uuid.NewString(),
		HackathonID: hackathonID,
		TeamID:      teamID,
		Text:        text,
		Sentiment:   sentiment,
		CreatedAt:   time.Now().UTC(),
	}
	if err := s.db.WithContext(ctx).Create(&row).Error; err != nil {
		return CommentaryRow{}, fmt.Errorf("add commentary: %w", err)
	}
	return row, nil
}

// Teams lists the teams of a hackathon ordered by id.
func (s *Store) Teams(ctx context.Context, hackathonID string) ([]TeamRow, error) {
	var rows []TeamRow
	if err := s.db.WithContext(ctx).Where("hackathon_id = ?", hackathonID).Order("id").Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("list teams: %w", err)
	}
	return rows, nil
}

// Markets lists the markets of a hackathon ordered by id.
func (s *Store) Markets(ctx context.Context, hackathonID string) ([]MarketRow, error) {
	var rows []MarketRow
	if err := s.db.WithContext(ctx).Where("hackathon_id = ?", hackathonID).Order("id").Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("list markets: %w", err)
	}
	return rows, nil
}

// Seed inserts a fixed demo dataset. Existing rows are left alone so it is
// safe to run on every start.
func (s *Store) Seed(ctx context.Context) error {
	hackathons := []HackathonRow{
		{ID: "h-aurora", Name: "Aurora Hack", Status: StatusLive},
		{ID: "h-borealis", Name: "Borealis Build", Status: StatusLive},
		{ID: "h-cinder", Name: "Cinder Jam", Status: StatusLive},
	}
	var teams []TeamRow
	var markets []MarketRow
	for _, h := range hackathons {
		for i, name := range []string{"Pixel Pushers", "Null Pointers", "Async Owls"} {
			id := fmt.Sprintf("%s-t%d", h.ID, i+1)
			teams = append(teams, TeamRow{ID: id, Name: name, HackathonID: h.ID, Momentum: float64(10 * (3 - i))})
			markets = append(markets, MarketRow{
				ID:          fmt.Sprintf("%s-m%d", h.ID, i+1),
				Title:       name + " to win",
				HackathonID: h.ID,
				TeamID:      id,
				Odds:        float64(2 + 2*i),
			})
		}
	}

	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Clauses(clause.OnConflict{DoNothing: true}).Create(&hackathons).Error; err != nil {
			return fmt.Errorf("seed hackathons: %w", err)
		}
		if err := tx.Clauses(clause.OnConflict{DoNothing: true}).Create(&teams).Error; err != nil {
			return fmt.Errorf("seed teams: %w", err)
		}
		if err := tx.Clauses(clause.OnConflict{DoNothing: true}).Create(&markets).Error; err != nil {
			return fmt.Errorf("seed markets: %w", err)
		}
		s.log.Info(ctx, "demo data seeded")
		return nil
	})
}
