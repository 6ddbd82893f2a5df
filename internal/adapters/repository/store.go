// Package repository is the gorm-backed data backend: hackathons, teams,
// markets, bets and commentary. It resolves ids for the normalizer and
// supplies narration facts and ticker items.
package repository

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"github.com/okian/hackcast/internal/domain/model"
	"github.com/okian/hackcast/pkg/logger"
)

const (
	defaultTopN = 3

	// StatusLive marks a hackathon that is currently broadcastable.
	StatusLive = "live"
)

// Config holds database connection settings.
type Config struct {
	Driver          string        `koanf:"driver"` // postgres or sqlite
	DSN             string        `koanf:"dsn"`
	MaxIdleConns    int           `koanf:"max_idle_conns"`
	MaxOpenConns    int           `koanf:"max_open_conns"`
	ConnMaxLifetime time.Duration `koanf:"conn_max_lifetime"`
}

// Open creates a gorm connection for the configured driver.
func Open(cfg Config) (*gorm.DB, error) {
	var dialector gorm.Dialector
	switch cfg.Driver {
	case "postgres":
		dialector = postgres.New(postgres.Config{
			DSN:                  cfg.DSN,
			PreferSimpleProtocol: true,
		})
	case "sqlite":
		dialector = sqlite.Open(cfg.DSN)
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnsupportedDriver, cfg.Driver)
	}

	db, err := gorm.Open(dialector, &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Silent),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("failed to get underlying sql.DB: %w", err)
	}
	if cfg.MaxIdleConns > 0 {
		sqlDB.SetMaxIdleConns(cfg.MaxIdleConns)
	}
	if cfg.MaxOpenConns > 0 {
		sqlDB.SetMaxOpenConns(cfg.MaxOpenConns)
	}
	if cfg.ConnMaxLifetime > 0 {
		sqlDB.SetConnMaxLifetime(cfg.ConnMaxLifetime)
	}
	return db, nil
}

// Store reads and writes the broadcast tables.
type Store struct {
	db   *gorm.DB
	topN int
	log  logger.Logger
}

// New wraps an open connection.
func New(db *gorm.DB, opts ...Option) *Store {
	s := &Store{
		db:   db,
		topN: defaultTopN,
		log:  logger.Get().Named("repository"),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// AutoMigrate creates or updates every table.
func (s *Store) AutoMigrate(ctx context.Context) error {
	if err := s.db.WithContext(ctx).AutoMigrate(allModels()...); err != nil {
		return fmt.Errorf("auto migrate: %w", err)
	}
	return nil
}

// Close releases the underlying connection pool.
func (s *Store) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

func notFound(err error, what, id string) error {
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return fmt.Errorf("%s %s: %w", what, id, ErrNotFound)
	}
	return fmt.Errorf("load %s %s: %w", what, id, err)
}

// Hackathon returns one hackathon by id.
func (s *Store) Hackathon(ctx context.Context, id string) (model.Hackathon, error) {
	var row HackathonRow
	if err := s.db.WithContext(ctx).First(&row, "id = ?", id).Error; err != nil {
		return model.Hackathon{}, notFound(err, "hackathon", id)
	}
	return toHackathon(row), nil
}

// Team returns one team by id.
func (s *Store) Team(ctx context.Context, id string) (model.Team, error) {
	var row TeamRow
	if err := s.db.WithContext(ctx).First(&row, "id = ?", id).Error; err != nil {
		return model.Team{}, notFound(err, "team", id)
	}
	return toTeam(row), nil
}

// Market returns one market by id.
func (s *Store) Market(ctx context.Context, id string) (model.Market, error) {
	var row MarketRow
	if err := s.db.WithContext(ctx).First(&row, "id = ?", id).Error; err != nil {
		return model.Market{}, notFound(err, "market", id)
	}
	return toMarket(row), nil
}

// ActiveHackathons returns every live hackathon ordered by name.
func (s *Store) ActiveHackathons(ctx context.Context) ([]model.Hackathon, error) {
	var rows []HackathonRow
	if err := s.db.WithContext(ctx).Where("status = ?", StatusLive).Order("name").Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("list active hackathons: %w", err)
	}
	out := make([]model.Hackathon, 0, len(rows))
	for _, r := range rows {
		out = append(out, toHackathon(r))
	}
	return out, nil
}

// Facts gathers narration context: top teams by momentum, markets with the
// longest odds and the bet totals for the hackathon.
func (s *Store) Facts(ctx context.Context, hackathonID string) (model.Facts, error) {
	h, err := s.Hackathon(ctx, hackathonID)
	if err != nil {
		return model.Facts{}, err
	}
	db := s.db.WithContext(ctx)
	facts := model.Facts{HackathonName: h.Name}

	var teams []TeamRow
	if err := db.Where("hackathon_id = ?", hackathonID).
		Order("momentum DESC").Order("id").Limit(s.topN).
		Find(&teams).Error; err != nil {
		return facts, fmt.Errorf("top teams: %w", err)
	}
	for _, t := range teams {
		facts.TopTeams = append(facts.TopTeams, toTeam(t))
	}

	var markets []MarketRow
	if err := db.Where("hackathon_id = ?", hackathonID).
		Order("odds DESC").Order("id").Limit(s.topN).
		Find(&markets).Error; err != nil {
		return facts, fmt.Errorf("hot markets: %w", err)
	}
	for _, m := range markets {
		facts.HotMarkets = append(facts.HotMarkets, toMarket(m))
	}

	var totals struct {
		Count int64
		Total float64
	}
	if err := db.Table("bets").
		Select("COUNT(bets.id) AS count, COALESCE(SUM(bets.amount), 0) AS total").
		Joins("JOIN markets ON markets.id = bets.market_id").
		Where("markets.hackathon_id = ?", hackathonID).
		Scan(&totals).Error; err != nil {
		return facts, fmt.Errorf("bet totals: %w", err)
	}
	facts.BetCount = int(totals.Count)
	facts.TotalStaked = totals.Total
	return facts, nil
}

// Ticker returns the most recent bets and commentary for the hackathon,
// newest first, at most limit items.
func (s *Store) Ticker(ctx context.Context, hackathonID string, limit int) ([]model.TickerItem, error) {
	if limit <= 0 {
		return nil, ErrInvalidLimit
	}
	db := s.db.WithContext(ctx)

	type betLine struct {
		Amount    float64
		Title     string
		CreatedAt time.Time
	}
	var bets []betLine
	if err := db.Table("bets").
		Select("bets.amount, markets.title, bets.created_at").
		Joins("JOIN markets ON markets.id = bets.market_id").
		Where("markets.hackathon_id = ?", hackathonID).
		Order("bets.created_at DESC").Limit(limit).
		Scan(&bets).Error; err != nil {
		return nil, fmt.Errorf("recent bets: %w", err)
	}

	var notes []CommentaryRow
	if err := db.Where("hackathon_id = ?", hackathonID).
		Order("created_at DESC").Limit(limit).
		Find(&notes).Error; err != nil {
		return nil, fmt.Errorf("recent commentary: %w", err)
	}

	type stamped struct {
		at   time.Time
		item model.TickerItem
	}
	all := make([]stamped, 0, len(bets)+len(notes))
	for _, b := range bets {
		all = append(all, stamped{b.CreatedAt, model.TickerItem{
			Text:     fmt.Sprintf("%.0f staked on %s", b.Amount, b.Title),
			Category: "bet",
		}})
	}
	for _, n := range notes {
		if strings.TrimSpace(n.Text) == "" {
			continue
		}
		all = append(all, stamped{n.CreatedAt, model.TickerItem{Text: n.Text, Category: "news"}})
	}
	// Merge newest first; both inputs are already sorted.
	out := make([]model.TickerItem, 0, limit)
	i, j := 0, len(bets)
	for len(out) < limit && (i < len(bets) || j < len(all)) {
		if j >= len(all) || (i < len(bets) && !all[i].at.Before(all[j].at)) {
			out = append(out, all[i].item)
			i++
			continue
		}
		out = append(out, all[j].item)
		j++
	}
	return out, nil
}

func toHackathon(r HackathonRow) model.Hackathon {
	return model.Hackathon{ID: r.ID, Name: r.Name, Status: r.Status}
}

func toTeam(r TeamRow) model.Team {
	return model.Team{ID: r.ID, Name: r.Name, HackathonID: r.HackathonID, Momentum: r.Momentum, Milestone: r.Milestone}
}

func toMarket(r MarketRow) model.Market {
	return model.Market{ID: r.ID, Title: r.Title, HackathonID: r.HackathonID, TeamID: r.TeamID, Odds: r.Odds}
}
