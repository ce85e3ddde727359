// Package feed renders podcast RSS documents with iTunes and content
// namespace extensions.
package feed

import (
	"encoding/xml"
	"errors"
	"fmt"
	"log"
	"net/url"
	pathpkg "path"
	"strings"
	"time"

	"podhost/internal/assets"
	"podhost/internal/models"
)

// itemWindow is the fixed number of episodes a feed renders. There is
// deliberately no configuration knob; podcast clients re-fetch the
// whole document anyway.
const itemWindow = 100

// ErrFeedNotFound is returned by Render for feed ids that are not in
// the configured feed list.
var ErrFeedNotFound = errors.New("feed not found")

// FeedSource supplies the configured feed list and per-feed settings.
type FeedSource interface {
	HasFeed(id string) (bool, error)
	FeedSettings(id string) (models.FeedSettings, error)
}

// EpisodeSource queries published episodes for one feed, ordered by
// creation time descending and capped at limit.
type EpisodeSource interface {
	EpisodesForFeed(feedID string, limit int) ([]models.Episode, error)
}

// AssetResolver resolves an episode's asset id to an existing file
// with an absolute URL and byte size.
type AssetResolver interface {
	Resolve(assetID string) (assets.Asset, error)
}

// Renderer builds the RSS document for a feed.
type Renderer struct {
	feeds    FeedSource
	episodes EpisodeSource
	assets   AssetResolver
	baseURL  *url.URL
	logger   *log.Logger
	now      func() time.Time
}

// NewRenderer wires a Renderer from its collaborators. baseURL is used
// for the canonical episode links inside items.
func NewRenderer(feeds FeedSource, episodes EpisodeSource, resolver AssetResolver, baseURL *url.URL, logger *log.Logger) *Renderer {
	if logger == nil {
		logger = log.Default()
	}
	return &Renderer{
		feeds:    feeds,
		episodes: episodes,
		assets:   resolver,
		baseURL:  baseURL,
		logger:   logger,
		now:      time.Now,
	}
}

// Render produces the RSS document for feedID together with the feed's
// last-modified timestamp (the newest change among rendered episodes,
// or the render time for an empty feed).
func (r *Renderer) Render(feedID string) ([]byte, time.Time, error) {
	ok, err := r.feeds.HasFeed(feedID)
	if err != nil {
		return nil, time.Time{}, err
	}
	if !ok {
		return nil, time.Time{}, fmt.Errorf("%w: %q", ErrFeedNotFound, feedID)
	}

	settings, err := r.feeds.FeedSettings(feedID)
	if err != nil {
		return nil, time.Time{}, err
	}

	episodes, err := r.episodes.EpisodesForFeed(feedID, itemWindow)
	if err != nil {
		return nil, time.Time{}, err
	}

	var items []rssItem
	var lastModified time.Time

	for _, ep := range episodes {
		asset, err := r.assets.Resolve(ep.AssetID)
		if err != nil {
			if errors.Is(err, assets.ErrAssetNotFound) {
				r.logger.Printf("episode %s has no usable audio asset (%q), skipping", ep.ID, ep.AssetID)
				continue
			}
			return nil, time.Time{}, err
		}

		items = append(items, r.buildItem(ep, asset))

		if ep.UpdatedAt.After(lastModified) {
			lastModified = ep.UpdatedAt
		}
	}

	if lastModified.IsZero() {
		lastModified = r.now()
	}
	lastModified = lastModified.UTC()

	doc := rssFeed{
		Version:   "2.0",
		ITunesNS:  "http://www.itunes.com/dtds/podcast-1.0.dtd",
		ContentNS: "http://purl.org/rss/1.0/modules/content/",
		Channel:   r.buildChannel(settings, items),
	}

	output, err := xml.MarshalIndent(doc, "", "  ")
	if err != nil {
		return nil, time.Time{}, err
	}

	return append([]byte(xml.Header), output...), lastModified, nil
}

func (r *Renderer) buildItem(ep models.Episode, asset assets.Asset) rssItem {
	link := *r.baseURL
	link.Path = "/" + pathpkg.Join("episodes", ep.ID)
	link.RawQuery = ""

	richDesc := ep.Description.Value
	plainDesc := StripToPlainText(richDesc)

	return rssItem{
		Title: ep.Title,
		Link:  link.String(),
		GUID:  rssGUID{IsPermaLink: "false", Value: ep.GUID},
		Enclosure: rssEnclosure{
			URL:    asset.URL,
			Length: asset.Size,
			Type:   "audio/mpeg",
		},
		PubDate:       publishTime(ep).UTC().Format(time.RFC1123Z),
		Duration:      ep.Duration,
		Author:        ep.Author,
		Explicit:      ep.Explicit,
		EpisodeNumber: ep.EpisodeNumber,
		Keywords:      ep.Keywords,
		Subtitle:      ep.Subtitle,
		Summary:       cdata{Value: escapeCDATA(plainDesc)},
		Description:   plainDesc,
		Content:       cdata{Value: escapeCDATA(richDesc)},
		Season:        ep.SeasonNumber,
		EpisodeType:   ep.EpisodeType,
	}
}

func (r *Renderer) buildChannel(settings models.FeedSettings, items []rssItem) rssChannel {
	richDesc := settings.Rich("podcast_description").Value
	plainDesc := StripToPlainText(richDesc)

	channel := rssChannel{
		Title:      settings.Value("podcast_title", ""),
		Keywords:   settings.Value("podcast_keywords", ""),
		Descr:      cdata{Value: escapeCDATA(plainDesc)},
		Summary:    cdata{Value: escapeCDATA(plainDesc)},
		Content:    cdata{Value: escapeCDATA(richDesc)},
		Language:   settings.Value("podcast_language", ""),
		Explicit:   settings.Value("itunes_explicit", ""),
		Author:     settings.Value("itunes_author", ""),
		Link:       settings.Value("podcast_link", ""),
		Type:       settings.Value("itunes_type", "episodic"),
		Copyright:  settings.Value("podcast_copyright", ""),
		Owner: rssOwner{
			Name:  settings.Value("podcast_owner_name", ""),
			Email: settings.Value("podcast_owner_email", ""),
		},
		Items: items,
	}

	if category := settings.Value("podcast_category", ""); category != "" {
		channel.Category = &rssCategory{Text: category}
		if sub := settings.Value("podcast_sub_category", ""); sub != "" {
			channel.Category.Sub = &rssCategory{Text: sub}
		}
	}

	if image := settings.Value("podcast_image_url", ""); image != "" {
		channel.Image = &rssImage{Href: image}
	}

	return channel
}

// publishTime is the episode's effective publication timestamp: the
// parsed editor-supplied podcast date, or CreatedAt when that field is
// empty or unparseable.
func publishTime(ep models.Episode) time.Time {
	raw := strings.TrimSpace(ep.PodcastDate)
	if raw == "" {
		return ep.CreatedAt
	}
	for _, layout := range dateLayouts {
		if ts, err := time.ParseInLocation(layout, raw, time.UTC); err == nil {
			return ts
		}
	}
	return ep.CreatedAt
}

var dateLayouts = []string{
	time.RFC3339,
	"2006-01-02 15:04:05",
	"2006-01-02T15:04",
	"2006-01-02 15:04",
	"2006-01-02",
	time.RFC1123Z,
	time.RFC1123,
}

// escapeCDATA neutralizes literal CDATA terminators so every wrapped
// value stays a single section.
func escapeCDATA(text string) string {
	return strings.ReplaceAll(text, "]]>", "]]&gt;")
}

type cdata struct {
	Value string `xml:",cdata"`
}

type rssFeed struct {
	XMLName   xml.Name   `xml:"rss"`
	Version   string     `xml:"version,attr"`
	ITunesNS  string     `xml:"xmlns:itunes,attr"`
	ContentNS string     `xml:"xmlns:content,attr"`
	Channel   rssChannel `xml:"channel"`
}

type rssChannel struct {
	Title     string       `xml:"title"`
	Keywords  string       `xml:"itunes:keywords"`
	Descr     cdata        `xml:"description"`
	Summary   cdata        `xml:"itunes:summary"`
	Content   cdata        `xml:"content:encoded"`
	Language  string       `xml:"language"`
	Explicit  string       `xml:"itunes:explicit"`
	Author    string       `xml:"itunes:author"`
	Owner     rssOwner     `xml:"itunes:owner"`
	Category  *rssCategory `xml:"itunes:category,omitempty"`
	Image     *rssImage    `xml:"itunes:image,omitempty"`
	Link      string       `xml:"link,omitempty"`
	Type      string       `xml:"itunes:type,omitempty"`
	Copyright string       `xml:"copyright,omitempty"`
	Items     []rssItem    `xml:"item"`
}

type rssOwner struct {
	Name  string `xml:"itunes:name"`
	Email string `xml:"itunes:email"`
}

type rssCategory struct {
	Text string       `xml:"text,attr"`
	Sub  *rssCategory `xml:"itunes:category,omitempty"`
}

type rssImage struct {
	Href string `xml:"href,attr"`
}

type rssItem struct {
	Title         string       `xml:"title"`
	Link          string       `xml:"link"`
	GUID          rssGUID      `xml:"guid"`
	Enclosure     rssEnclosure `xml:"enclosure"`
	PubDate       string       `xml:"pubDate"`
	Duration      string       `xml:"itunes:duration"`
	Author        string       `xml:"itunes:author"`
	Explicit      string       `xml:"itunes:explicit"`
	EpisodeNumber string       `xml:"itunes:episode"`
	Keywords      string       `xml:"itunes:keywords"`
	Subtitle      string       `xml:"itunes:subtitle"`
	Summary       cdata        `xml:"itunes:summary"`
	Description   string       `xml:"description"`
	Content       cdata        `xml:"content:encoded"`
	Season        string       `xml:"itunes:season"`
	EpisodeType   string       `xml:"itunes:episodeType"`
}

type rssGUID struct {
	IsPermaLink string `xml:"isPermaLink,attr"`
	Value       string `xml:",chardata"`
}

type rssEnclosure struct {
	URL    string `xml:"url,attr"`
	Length int64  `xml:"length,attr"`
	Type   string `xml:"type,attr"`
}
