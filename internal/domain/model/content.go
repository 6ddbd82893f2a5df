package model

// Scene identifies one slot of the fixed broadcast rotation.
type Scene string

// Scenes in airing order.
const (
	SceneAnchor    Scene = "anchor"
	SceneTeam      Scene = "team"
	SceneMarket    Scene = "market"
	SceneStats     Scene = "stats"
	SceneHighlight Scene = "highlight"
)

// Scenes is the fixed rotation the playback machine cycles through.
var Scenes = []Scene{SceneAnchor, SceneTeam, SceneMarket, SceneStats, SceneHighlight}

// SceneAt returns the scene for a (possibly out of range) index, wrapping modulo len(Scenes).
func SceneAt(index int) Scene {
	n := len(Scenes)
	return Scenes[((index%n)+n)%n]
}

// Speaker is the on-screen anchor delivering a line.
type Speaker string

// The two anchor positions.
const (
	SpeakerLeft  Speaker = "left"
	SpeakerRight Speaker = "right"
)

// CommentaryLine is one narrated line. Order inside SegmentContent is the speaking order.
type CommentaryLine struct {
	ID              string   `json:"id"`
	Text            string   `json:"text"`
	DurationSeconds float64  `json:"duration_seconds"`
	Speaker         Speaker  `json:"speaker"`
	Priority        Priority `json:"priority"`
}

// TickerItem is one entry of the scrolling ticker.
type TickerItem struct {
	Text     string `json:"text"`
	Category string `json:"category"`
}

// SegmentContent is the generated package for one scene airing.
// It is never mutated after generation.
type SegmentContent struct {
	Scene         Scene            `json:"scene"`
	HackathonID   string           `json:"hackathon_id"`
	Title         string           `json:"title"`
	Subtitle      string           `json:"subtitle"`
	BannerText    string           `json:"banner_text"`
	Commentary    []CommentaryLine `json:"commentary"`
	TickerItems   []TickerItem     `json:"ticker_items"`
	TotalDuration float64          `json:"total_duration"`
	Fallback      bool             `json:"fallback"`
}

// SumDurations recomputes TotalDuration from the commentary lines.
func (c *SegmentContent) SumDurations() {
	var total float64
	for _, line := range c.Commentary {
		total += line.DurationSeconds
	}
	c.TotalDuration = total
}

// ElapsedBefore returns the summed duration of the lines before index.
func (c *SegmentContent) ElapsedBefore(index int) float64 {
	var total float64
	for i := 0; i < index && i < len(c.Commentary); i++ {
		total += c.Commentary[i].DurationSeconds
	}
	return total
}
