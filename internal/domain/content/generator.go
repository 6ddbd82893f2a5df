// Package content builds the SegmentContent aired for each scene. Generation
// never fails: when the narrator is unavailable it switches permanently to
// deterministic scene scripts.
package content

import (
	"context"
	"errors"
	"fmt"
	"math"
	"math/rand"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/okian/hackcast/internal/domain/model"
	"github.com/okian/hackcast/pkg/logger"
	"github.com/okian/hackcast/pkg/metrics"
)

// Prompt is the context handed to the narrator for one line.
type Prompt struct {
	Scene         model.Scene
	HackathonName string
	Facts         model.Facts
	LineIndex     int
	LineCount     int
}

// Narrator turns a prompt into one spoken line.
type Narrator interface {
	Narrate(ctx context.Context, p Prompt) (string, error)
}

// FactSource supplies best-effort backend context for a hackathon.
type FactSource interface {
	Facts(ctx context.Context, hackathonID string) (model.Facts, error)
}

// TickerSource supplies recent activity for the ticker.
type TickerSource interface {
	Ticker(ctx context.Context, hackathonID string, limit int) ([]model.TickerItem, error)
}

// RecentSource supplies the events scored for a hackathon, oldest first.
type RecentSource interface {
	RecentEvents(hackathonID string) []model.DomainEvent
}

// Request describes the segment to generate.
type Request struct {
	Scene         model.Scene
	HackathonID   string
	HackathonName string
	// Breaking events are narrated first, one urgent line each, in order.
	Breaking []model.DomainEvent
}

// Generator is the content facade. The fallback flag is owned by the
// instance, so a new Generator starts with the narrator enabled again.
type Generator struct {
	narrator       Narrator
	facts          FactSource
	ticker         TickerSource
	recent         RecentSource
	timeout        time.Duration
	minLines       int
	maxLines       int
	tickerLimit    int
	wordsPerSecond float64
	minLineSeconds float64
	log            logger.Logger

	rngMu sync.Mutex
	rng   *rand.Rand

	fallback atomic.Bool
}

// New creates a Generator. A nil narrator starts in template mode.
func New(narrator Narrator, opts ...Option) *Generator {
	g := &Generator{
		narrator:       narrator,
		timeout:        defaultNarrationTimeout,
		minLines:       defaultMinLines,
		maxLines:       defaultMaxLines,
		tickerLimit:    defaultTickerLimit,
		wordsPerSecond: defaultWordsPerSecond,
		minLineSeconds: defaultMinLineDuration,
		log:            logger.Get().Named("content"),
		rng:            rand.New(rand.NewSource(time.Now().UnixNano())), //nolint:gosec // presentation randomness only
	}
	for _, opt := range opts {
		opt(g)
	}
	if narrator == nil {
		g.fallback.Store(true)
	}
	return g
}

// FallbackActive reports whether the narrator has been disabled.
func (g *Generator) FallbackActive() bool {
	return g.fallback.Load()
}

// Generate returns a fully formed segment for req. It always returns content,
// even when every collaborator fails.
func (g *Generator) Generate(ctx context.Context, req Request) model.SegmentContent {
	began := time.Now()
	facts := g.loadFacts(ctx, req)
	vars := g.templateVars(req, facts)
	count := g.lineCount()

	var texts []string
	source := "template"
	if !g.fallback.Load() {
		var err error
		texts, err = g.narrate(ctx, req, facts, count)
		switch {
		case err == nil:
			source = "narrator"
		case ctx.Err() != nil:
			// Caller gave up; not the narrator's fault.
			g.log.Debug(ctx, "narration cancelled", logger.String("scene", string(req.Scene)))
			texts = nil
		default:
			g.trip(ctx, err)
			texts = nil
		}
	}
	if texts == nil {
		texts = g.script(req.Scene, vars, count)
	}

	lines := make([]model.CommentaryLine, 0, len(texts)+len(req.Breaking))
	for _, ev := range req.Breaking {
		lines = append(lines, g.line(breakingText(ev), model.PriorityBreaking))
	}
	for _, t := range texts {
		lines = append(lines, g.line(t, model.PriorityNormal))
	}
	for i := range lines {
		if i%2 == 0 {
			lines[i].Speaker = model.SpeakerLeft
		} else {
			lines[i].Speaker = model.SpeakerRight
		}
	}

	cp := sceneCopies[req.Scene]
	banner := vars.Replace(cp.banner)
	if len(req.Breaking) > 0 {
		banner = "BREAKING NEWS"
	}
	out := model.SegmentContent{
		Scene:       req.Scene,
		HackathonID: req.HackathonID,
		Title:       vars.Replace(cp.title),
		Subtitle:    vars.Replace(cp.subtitle),
		BannerText:  banner,
		Commentary:  lines,
		TickerItems: g.loadTicker(ctx, req),
		Fallback:    source == "template",
	}
	out.SumDurations()

	metrics.RecordContentGeneration(source, float64(time.Since(began).Milliseconds()))
	return out
}

// narrate requests count lines concurrently and returns them in speaking order.
func (g *Generator) narrate(ctx context.Context, req Request, facts model.Facts, count int) ([]string, error) {
	texts := make([]string, count)
	eg, egCtx := errgroup.WithContext(ctx)
	for i := 0; i < count; i++ {
		eg.Go(func() error {
			callCtx, cancel := context.WithTimeout(egCtx, g.timeout)
			defer cancel()
			text, err := g.narrator.Narrate(callCtx, Prompt{
				Scene:         req.Scene,
				HackathonName: facts.HackathonName,
				Facts:         facts,
				LineIndex:     i,
				LineCount:     count,
			})
			if err != nil {
				return fmt.Errorf("line %d: %w", i, err)
			}
			text = strings.TrimSpace(text)
			if text == "" {
				return fmt.Errorf("line %d: %w", i, ErrEmptyNarration)
			}
			texts[i] = text
			return nil
		})
	}
	if err := eg.Wait(); err != nil {
		return nil, err
	}
	return texts, nil
}

// trip disables the narrator for the rest of the generator's life.
func (g *Generator) trip(ctx context.Context, err error) {
	if g.fallback.CompareAndSwap(false, true) {
		metrics.RecordNarrationError()
		g.log.Warn(ctx, "narrator failed, switching to scripted commentary", logger.Error(err),
			logger.Bool("timeout", errors.Is(err, context.DeadlineExceeded)))
	}
}

func (g *Generator) script(scene model.Scene, vars *strings.Replacer, count int) []string {
	lines := scripts[scene]
	if len(lines) == 0 {
		lines = scripts[model.SceneAnchor]
	}
	if count > len(lines) {
		count = len(lines)
	}
	out := make([]string, count)
	for i := 0; i < count; i++ {
		out[i] = vars.Replace(lines[i])
	}
	return out
}

func (g *Generator) loadFacts(ctx context.Context, req Request) model.Facts {
	facts := model.Facts{HackathonName: req.HackathonName}
	if g.facts == nil || req.HackathonID == "" {
		return facts
	}
	got, err := g.facts.Facts(ctx, req.HackathonID)
	if err != nil {
		g.log.Debug(ctx, "facts unavailable", logger.String("hackathon_id", req.HackathonID), logger.Error(err))
		return facts
	}
	if got.HackathonName == "" {
		got.HackathonName = req.HackathonName
	}
	return got
}

func (g *Generator) loadTicker(ctx context.Context, req Request) []model.TickerItem {
	if g.ticker != nil && req.HackathonID != "" {
		items, err := g.ticker.Ticker(ctx, req.HackathonID, g.tickerLimit)
		if err == nil && len(items) > 0 {
			return items
		}
		if err != nil {
			g.log.Debug(ctx, "ticker unavailable", logger.String("hackathon_id", req.HackathonID), logger.Error(err))
		}
	}
	if items := g.recentTicker(req.HackathonID); len(items) > 0 {
		return items
	}
	filler := fillerTicker[req.Scene]
	out := make([]model.TickerItem, len(filler))
	for i, text := range filler {
		out[i] = model.TickerItem{Text: text, Category: string(req.Scene)}
	}
	return out
}

// recentTicker lists the hackathon's scored events, newest first.
func (g *Generator) recentTicker(hackathonID string) []model.TickerItem {
	if g.recent == nil || hackathonID == "" {
		return nil
	}
	events := g.recent.RecentEvents(hackathonID)
	out := make([]model.TickerItem, 0, min(len(events), g.tickerLimit))
	for i := len(events) - 1; i >= 0 && len(out) < g.tickerLimit; i-- {
		out = append(out, model.TickerItem{Text: tickerText(events[i]), Category: string(events[i].Kind)})
	}
	return out
}

func (g *Generator) line(text string, p model.Priority) model.CommentaryLine {
	return model.CommentaryLine{
		ID:              uuid.NewString(),
		Text:            text,
		DurationSeconds: g.Duration(text),
		Priority:        p,
	}
}

// Duration estimates how long text takes to speak, never below the floor.
func (g *Generator) Duration(text string) float64 {
	words := float64(len(strings.Fields(text)))
	return math.Max(g.minLineSeconds, words/g.wordsPerSecond)
}

func (g *Generator) lineCount() int {
	return g.minLines + g.intn(g.maxLines-g.minLines+1)
}

func (g *Generator) intn(n int) int {
	if n <= 1 {
		return 0
	}
	g.rngMu.Lock()
	defer g.rngMu.Unlock()
	return g.rng.Intn(n)
}

// pickTwo draws two different entries; options must hold at least two.
func (g *Generator) pickTwo(options []string) (string, string) {
	i := g.intn(len(options))
	j := g.intn(len(options) - 1)
	if j >= i {
		j++
	}
	return options[i], options[j]
}
