package models

import "time"

// RichText is a formatted text value together with its serialization
// format tag (e.g. "basic_html", "plain_text").
type RichText struct {
	Value  string `json:"value"`
	Format string `json:"format"`
}

// FeedSettings is the channel-level metadata bag for one podcast feed.
// The set of keys inside Values is driven by the field schema, not
// hard-coded; Value and Rich provide typed access with defaults.
type FeedSettings struct {
	Label  string            `json:"label"`
	Values map[string]string `json:"values"`
}

// Value returns the named setting, or fallback when absent or empty.
func (s FeedSettings) Value(name, fallback string) string {
	if s.Values == nil {
		return fallback
	}
	if v, ok := s.Values[name]; ok && v != "" {
		return v
	}
	return fallback
}

// Rich returns a rich-text setting stored as a value/format key pair.
func (s FeedSettings) Rich(name string) RichText {
	return RichText{
		Value:  s.Value(name, ""),
		Format: s.Value(name+"_format", "basic_html"),
	}
}

// Episode represents one podcast entry. Episodes belong to exactly one
// feed and reference their audio asset by id (a path relative to the
// media root).
type Episode struct {
	ID        string `json:"id"`
	GUID      string `json:"guid"`
	FeedID    string `json:"feed_id"`
	Published bool   `json:"published"`

	Title   string `json:"title"`
	AssetID string `json:"asset_id"`

	// PodcastDate is the editor-supplied publication date. It may be
	// empty or unparseable, in which case CreatedAt is used instead.
	PodcastDate string `json:"podcast_date,omitempty"`

	Duration      string   `json:"duration,omitempty"`
	Explicit      string   `json:"explicit,omitempty"`
	EpisodeNumber string   `json:"episode_number,omitempty"`
	SeasonNumber  string   `json:"season_number,omitempty"`
	EpisodeType   string   `json:"episode_type,omitempty"`
	Keywords      string   `json:"keywords,omitempty"`
	Subtitle      string   `json:"subtitle,omitempty"`
	Author        string   `json:"author,omitempty"`
	Description   RichText `json:"description"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Comment is a visitor comment on an episode. Comments are created
// unpublished and only appear after moderation.
type Comment struct {
	ID        string    `json:"id"`
	EpisodeID string    `json:"episode_id"`
	FeedID    string    `json:"feed_id"`
	Name      string    `json:"name"`
	Body      string    `json:"body"`
	Format    string    `json:"format"`
	Published bool      `json:"published"`
	CreatedAt time.Time `json:"created_at"`
}
