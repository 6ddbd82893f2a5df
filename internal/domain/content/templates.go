package content

import (
	"fmt"
	"math"
	"strings"

	"github.com/okian/hackcast/internal/domain/model"
)

// sceneCopy is the fixed on-screen text for a scene.
type sceneCopy struct {
	title    string
	subtitle string
	banner   string
}

var sceneCopies = map[model.Scene]sceneCopy{
	model.SceneAnchor:    {"{hackathon} Live", "Top of the hour", "LIVE FROM THE FLOOR"},
	model.SceneTeam:      {"Team Spotlight", "{team} under the lights", "TEAM WATCH"},
	model.SceneMarket:    {"Market Pulse", "Where the money is moving", "MARKETS"},
	model.SceneStats:     {"By the Numbers", "{bets} predictions and counting", "STATS DESK"},
	model.SceneHighlight: {"Highlight Reel", "The moments that mattered", "HIGHLIGHTS"},
}

// Scripts used when the narrator is unavailable. Placeholders are replaced
// from facts or stock values.
var scripts = map[model.Scene][]string{
	model.SceneAnchor: {
		"Good evening and welcome back to {hackathon}, where the clock never stops.",
		"{team} and {team2} are setting the pace so far tonight.",
		"We have {bets} predictions on the board and the floor is buzzing.",
		"Stay with us, there is plenty of building left to do.",
		"Let's check in with the teams and see who is shipping.",
	},
	model.SceneTeam: {
		"All eyes on {team} right now, momentum sitting at {momentum}.",
		"Their last push has the crowd talking about a podium finish.",
		"{team2} is watching closely and could answer at any moment.",
		"Consistency has been the story for {team} all weekend.",
		"If they land the demo, this one could be decided early.",
	},
	model.SceneMarket: {
		"The market on {market} is trading at {odds} right now.",
		"Backers have staked {staked} credits across the board.",
		"Sharp money is leaning toward {team}, but nothing is settled.",
		"Odds have been swinging every few minutes in this one.",
		"Keep an eye on late movement as judging gets closer.",
	},
	model.SceneStats: {
		"Let's run the numbers for {hackathon}.",
		"{bets} predictions placed with {staked} credits in play.",
		"{team} leads the momentum chart at {momentum}.",
		"{team2} is the biggest mover in the last hour.",
		"Numbers never lie, but they do change fast around here.",
	},
	model.SceneHighlight: {
		"Time for the moments you might have missed.",
		"{team} pulled off a late rally that turned heads.",
		"The market on {market} flipped in a matter of minutes.",
		"{team2} kept grinding when others slowed down.",
		"That's the reel for now, more action is on the way.",
	},
}

var fillerTicker = map[model.Scene][]string{
	model.SceneAnchor:    {"Broadcast live from the hackathon floor", "Predictions open all night", "Stay tuned for breaking updates"},
	model.SceneTeam:      {"Teams pushing commits around the clock", "Mentors on the floor", "Demos start soon"},
	model.SceneMarket:    {"Markets update in real time", "Odds shift with every push", "Place your predictions"},
	model.SceneStats:     {"Stats refreshed every few minutes", "Momentum measured live", "Leaderboard on the way"},
	model.SceneHighlight: {"Replays of the top moments", "Clip of the night coming up", "Highlights after the break"},
}

var stockTeams = []string{"the underdogs", "the front runners", "the dark horses", "the late bloomers"}

// templateVars builds the placeholder values for a scene from facts.
func (g *Generator) templateVars(req Request, facts model.Facts) *strings.Replacer {
	name := facts.HackathonName
	if name == "" {
		name = req.HackathonName
	}
	if name == "" {
		name = "the hackathon"
	}

	team, team2 := g.pickTwo(stockTeams)
	momentum := fmt.Sprintf("%d", g.intn(40)+10)
	if len(facts.TopTeams) > 0 {
		team = facts.TopTeams[0].Name
		momentum = formatNumber(facts.TopTeams[0].Momentum)
	}
	if len(facts.TopTeams) > 1 {
		team2 = facts.TopTeams[1].Name
	}

	market, odds := "tonight's winner", fmt.Sprintf("%d", g.intn(30)+2)
	if len(facts.HotMarkets) > 0 {
		market = facts.HotMarkets[0].Title
		odds = formatNumber(facts.HotMarkets[0].Odds)
	}

	bets := fmt.Sprintf("%d", g.intn(200)+20)
	if facts.BetCount > 0 {
		bets = fmt.Sprintf("%d", facts.BetCount)
	}
	staked := fmt.Sprintf("%d", (g.intn(90)+10)*100)
	if facts.TotalStaked > 0 {
		staked = formatNumber(facts.TotalStaked)
	}

	return strings.NewReplacer(
		"{hackathon}", name,
		"{team}", team,
		"{team2}", team2,
		"{momentum}", momentum,
		"{market}", market,
		"{odds}", odds,
		"{bets}", bets,
		"{staked}", staked,
	)
}

// breakingText builds the urgent line for a breaking event.
func breakingText(ev model.DomainEvent) string {
	team := ev.TeamName
	if team == "" {
		team = "one of the teams"
	}
	where := ev.HackathonName
	if where == "" {
		where = "the floor"
	}
	switch ev.Kind {
	case model.KindBetPlaced:
		return fmt.Sprintf("Breaking news from %s: a %s credit prediction just landed on %s!", where, formatNumber(ev.CurrentValue), team)
	case model.KindOddsChange:
		return fmt.Sprintf("Breaking news from %s: odds on %s swing %s to %s!", where, team, signed(ev.Delta), formatNumber(ev.CurrentValue))
	case model.KindTeamUpdate:
		return fmt.Sprintf("Breaking news from %s: %s momentum moves %s!", where, team, signed(ev.Delta))
	case model.KindMilestone:
		return fmt.Sprintf("Breaking news from %s: %s reach a milestone, %s!", where, team, ev.MetricType)
	case model.KindMarketOpened:
		return fmt.Sprintf("Breaking news from %s: a new market just opened, %s!", where, ev.MetricType)
	default:
		return fmt.Sprintf("Breaking news from %s: %s reading shifts %s around %s!", where, ev.MetricType, signed(ev.Delta), team)
	}
}

// tickerText is the one-line ticker form of a scored event.
func tickerText(ev model.DomainEvent) string {
	team := ev.TeamName
	if team == "" {
		team = "a team"
	}
	switch ev.Kind {
	case model.KindBetPlaced:
		return fmt.Sprintf("%s staked on %s", formatNumber(ev.CurrentValue), team)
	case model.KindOddsChange:
		return fmt.Sprintf("Odds on %s now %s (%s)", team, formatNumber(ev.CurrentValue), signed(ev.Delta))
	case model.KindTeamUpdate:
		return fmt.Sprintf("%s momentum %s", team, signed(ev.Delta))
	case model.KindMilestone:
		return fmt.Sprintf("%s hit %s", team, ev.MetricType)
	case model.KindMarketOpened:
		return fmt.Sprintf("New market: %s", ev.MetricType)
	case model.KindBreakingNews:
		return fmt.Sprintf("Breaking: news around %s", team)
	default:
		return fmt.Sprintf("%s update for %s", ev.MetricType, team)
	}
}

func formatNumber(v float64) string {
	if v == math.Trunc(v) {
		return fmt.Sprintf("%.0f", v)
	}
	return fmt.Sprintf("%.1f", v)
}

func signed(v float64) string {
	if v >= 0 {
		return "+" + formatNumber(v)
	}
	return "-" + formatNumber(-v)
}
