package llm

import (
	"context"
	"fmt"
	"strings"

	"github.com/okian/hackcast/internal/domain/content"
	"github.com/okian/hackcast/internal/domain/model"
)

const (
	defaultModel       = "gpt-4o-mini"
	defaultTemperature = 0.8
	defaultMaxTokens   = 80
)

const systemPrompt = "You are a lively live-broadcast commentator covering hackathons. " +
	"Answer with exactly one spoken sentence, no quotes, no stage directions."

var sceneBriefs = map[model.Scene]string{
	model.SceneAnchor:    "Open the segment as the anchor and set the stakes.",
	model.SceneTeam:      "Spotlight the leading team and what they are building.",
	model.SceneMarket:    "Talk about the prediction markets and how the odds are moving.",
	model.SceneStats:     "Give the numbers: bets placed and how much is staked.",
	model.SceneHighlight: "Pick the standout moment so far and hype it.",
}

// Narrator voices one line per call through a ChatClient.
type Narrator struct {
	client      ChatClient
	model       string
	temperature float64
	maxTokens   int
}

// NarratorOption configures a Narrator.
type NarratorOption func(*Narrator)

// WithModel sets the completion model.
func WithModel(name string) NarratorOption {
	return func(n *Narrator) {
		if name != "" {
			n.model = name
		}
	}
}

// WithTemperature sets the sampling temperature.
func WithTemperature(t float64) NarratorOption {
	return func(n *Narrator) {
		if t >= 0 {
			n.temperature = t
		}
	}
}

// WithMaxTokens caps the completion length.
func WithMaxTokens(max int) NarratorOption {
	return func(n *Narrator) {
		if max > 0 {
			n.maxTokens = max
		}
	}
}

// NewNarrator creates a Narrator on client.
func NewNarrator(client ChatClient, opts ...NarratorOption) *Narrator {
	n := &Narrator{
		client:      client,
		model:       defaultModel,
		temperature: defaultTemperature,
		maxTokens:   defaultMaxTokens,
	}
	for _, opt := range opts {
		opt(n)
	}
	return n
}

var _ content.Narrator = (*Narrator)(nil)

// Narrate asks the model for line p.LineIndex of the scene.
func (n *Narrator) Narrate(ctx context.Context, p content.Prompt) (string, error) {
	resp, err := n.client.ChatCompletion(ctx, ChatCompletionRequest{
		Model: n.model,
		Messages: []Message{
			{Role: "system", Content: systemPrompt},
			{Role: "user", Content: RenderPrompt(p)},
		},
		Temperature: n.temperature,
		MaxTokens:   n.maxTokens,
	})
	if err != nil {
		return "", err
	}
	if len(resp.Choices) == 0 {
		return "", ErrNoChoices
	}
	return strings.Trim(strings.TrimSpace(resp.Choices[0].Message.Content), `"`), nil
}

// RenderPrompt formats the facts of a scene as the user message.
func RenderPrompt(p content.Prompt) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Hackathon: %s\n", p.HackathonName)
	fmt.Fprintf(&b, "Scene: %s. %s\n", p.Scene, sceneBriefs[p.Scene])
	if len(p.Facts.TopTeams) > 0 {
		b.WriteString("Top teams:")
		for _, t := range p.Facts.TopTeams {
			fmt.Fprintf(&b, " %s (momentum %.0f)", t.Name, t.Momentum)
			if t.Milestone != "" {
				fmt.Fprintf(&b, " [%s]", t.Milestone)
			}
			b.WriteString(";")
		}
		b.WriteString("\n")
	}
	if len(p.Facts.HotMarkets) > 0 {
		b.WriteString("Markets:")
		for _, m := range p.Facts.HotMarkets {
			fmt.Fprintf(&b, " %s at %.1f;", m.Title, m.Odds)
		}
		b.WriteString("\n")
	}
	if p.Facts.BetCount > 0 {
		fmt.Fprintf(&b, "Bets: %d totalling %.0f\n", p.Facts.BetCount, p.Facts.TotalStaked)
	}
	fmt.Fprintf(&b, "Write line %d of %d.", p.LineIndex+1, p.LineCount)
	return b.String()
}
