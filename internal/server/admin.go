package server

import (
	"crypto/subtle"
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"

	"podhost/internal/assets"
	"podhost/internal/fields"
	"podhost/internal/models"
	"podhost/internal/store"
)

// sanitizeAdvisory is shown once per settings save when any submitted
// value lost characters during ASCII normalization.
const sanitizeAdvisory = "Some characters were replaced or removed so the feed stays ASCII clean."

// handleAdmin dispatches the token-guarded /admin/ routes.
func (h *handler) handleAdmin(w http.ResponseWriter, r *http.Request) {
	if !h.requireAdmin(w, r) {
		return
	}

	rest := strings.TrimPrefix(r.URL.Path, "/admin/")
	switch {
	case rest == "feeds" && r.Method == http.MethodGet:
		h.adminListFeeds(w, r)
	case strings.HasPrefix(rest, "feeds/"):
		h.adminFeedSettings(w, r, strings.TrimPrefix(rest, "feeds/"))
	case rest == "episodes" && r.Method == http.MethodPost:
		h.adminCreateEpisode(w, r)
	case strings.HasPrefix(rest, "episodes/"):
		h.adminEpisodeComments(w, r, strings.TrimPrefix(rest, "episodes/"))
	case strings.HasPrefix(rest, "comments/"):
		h.adminModerateComment(w, r, strings.TrimPrefix(rest, "comments/"))
	default:
		w.WriteHeader(http.StatusNotFound)
	}
}

// requireAdmin checks the X-Admin-Token header. With no token
// configured the admin surface is disabled entirely.
func (h *handler) requireAdmin(w http.ResponseWriter, r *http.Request) bool {
	supplied := strings.TrimSpace(r.Header.Get("X-Admin-Token"))
	if h.adminToken == "" || supplied == "" ||
		subtle.ConstantTimeCompare([]byte(supplied), []byte(h.adminToken)) != 1 {
		w.WriteHeader(http.StatusUnauthorized)
		return false
	}
	return true
}

func (h *handler) adminListFeeds(w http.ResponseWriter, _ *http.Request) {
	feeds, err := h.store.Feeds()
	if err != nil {
		h.logger.Printf("listing feeds: %v", err)
		w.WriteHeader(http.StatusInternalServerError)
		return
	}
	if feeds == nil {
		feeds = []string{}
	}
	h.writeJSON(w, http.StatusOK, map[string]any{"feeds": feeds})
}

func (h *handler) adminFeedSettings(w http.ResponseWriter, r *http.Request, rest string) {
	feedID, tail, _ := strings.Cut(rest, "/")
	if feedID == "" || tail != "settings" {
		w.WriteHeader(http.StatusNotFound)
		return
	}

	switch r.Method {
	case http.MethodGet:
		h.adminGetSettings(w, feedID)
	case http.MethodPut:
		h.adminPutSettings(w, r, feedID)
	default:
		w.WriteHeader(http.StatusMethodNotAllowed)
	}
}

func (h *handler) adminGetSettings(w http.ResponseWriter, feedID string) {
	settings, err := h.store.FeedSettings(feedID)
	if err != nil {
		if errors.Is(err, store.ErrFeedNotFound) {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		h.logger.Printf("loading settings for %s: %v", feedID, err)
		w.WriteHeader(http.StatusInternalServerError)
		return
	}

	h.writeJSON(w, http.StatusOK, map[string]any{
		"settings": settings,
		"fields":   h.schema.Definitions(),
	})
}

type settingsRequest struct {
	Values map[string]string `json:"values"`
}

// adminPutSettings folds submitted values through the field schema and
// stores the result. The response carries a single advisory when the
// sanitizer changed anything, regardless of how many fields were hit.
func (h *handler) adminPutSettings(w http.ResponseWriter, r *http.Request, feedID string) {
	current, err := h.store.FeedSettings(feedID)
	if err != nil {
		if errors.Is(err, store.ErrFeedNotFound) {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		h.logger.Printf("loading settings for %s: %v", feedID, err)
		w.WriteHeader(http.StatusInternalServerError)
		return
	}

	var req settingsRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeJSON(w, http.StatusBadRequest, map[string]any{"error": "invalid JSON body"})
		return
	}
	if req.Values == nil {
		req.Values = map[string]string{}
	}

	updated, warned, err := fields.Apply(h.schema.Definitions(), req.Values, current)
	if err != nil {
		h.writeJSON(w, http.StatusUnprocessableEntity, map[string]any{"error": err.Error()})
		return
	}

	if err := h.store.SaveFeedSettings(feedID, updated); err != nil {
		h.logger.Printf("saving settings for %s: %v", feedID, err)
		w.WriteHeader(http.StatusInternalServerError)
		return
	}

	resp := map[string]any{"settings": updated}
	if warned {
		resp["warning"] = sanitizeAdvisory
	}
	h.writeJSON(w, http.StatusOK, resp)
}

type episodeRequest struct {
	ID            string          `json:"id"`
	GUID          string          `json:"guid"`
	FeedID        string          `json:"feed_id"`
	Published     bool            `json:"published"`
	Title         string          `json:"title"`
	AssetID       string          `json:"asset_id"`
	PodcastDate   string          `json:"podcast_date"`
	Duration      string          `json:"duration"`
	Explicit      string          `json:"explicit"`
	EpisodeNumber string          `json:"episode_number"`
	SeasonNumber  string          `json:"season_number"`
	EpisodeType   string          `json:"episode_type"`
	Keywords      string          `json:"keywords"`
	Subtitle      string          `json:"subtitle"`
	Author        string          `json:"author"`
	Description   models.RichText `json:"description"`
}

// adminCreateEpisode ingests an episode. The audio asset must exist
// under the media root; its tags prefill title and duration when the
// request leaves them blank.
func (h *handler) adminCreateEpisode(w http.ResponseWriter, r *http.Request) {
	var req episodeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeJSON(w, http.StatusBadRequest, map[string]any{"error": "invalid JSON body"})
		return
	}

	if req.FeedID == "" || req.AssetID == "" {
		h.writeJSON(w, http.StatusUnprocessableEntity, map[string]any{"error": "feed_id and asset_id are required"})
		return
	}

	exists, err := h.store.HasFeed(req.FeedID)
	if err != nil {
		h.logger.Printf("checking feed %s: %v", req.FeedID, err)
		w.WriteHeader(http.StatusInternalServerError)
		return
	}
	if !exists {
		h.writeJSON(w, http.StatusUnprocessableEntity, map[string]any{"error": "unknown feed " + req.FeedID})
		return
	}

	if _, err := h.assets.Resolve(req.AssetID); err != nil {
		if errors.Is(err, assets.ErrAssetNotFound) {
			h.writeJSON(w, http.StatusUnprocessableEntity, map[string]any{"error": "audio asset not found: " + req.AssetID})
			return
		}
		h.logger.Printf("resolving asset %s: %v", req.AssetID, err)
		w.WriteHeader(http.StatusInternalServerError)
		return
	}

	if req.Title == "" || req.Duration == "" || req.Author == "" {
		probe, err := h.assets.Probe(req.AssetID)
		if err != nil {
			h.logger.Printf("probing asset %s: %v", req.AssetID, err)
		} else {
			if req.Title == "" {
				req.Title = probe.Title
			}
			if req.Duration == "" && probe.DurationSeconds > 0 {
				req.Duration = assets.FormatDuration(probe.DurationSeconds)
			}
			if req.Author == "" {
				req.Author = probe.Artist
			}
		}
	}

	now := time.Now().UTC()
	ep := models.Episode{
		ID:            req.ID,
		GUID:          req.GUID,
		FeedID:        req.FeedID,
		Published:     req.Published,
		Title:         req.Title,
		AssetID:       req.AssetID,
		PodcastDate:   req.PodcastDate,
		Duration:      req.Duration,
		Explicit:      req.Explicit,
		EpisodeNumber: req.EpisodeNumber,
		SeasonNumber:  req.SeasonNumber,
		EpisodeType:   req.EpisodeType,
		Keywords:      req.Keywords,
		Subtitle:      req.Subtitle,
		Author:        req.Author,
		Description:   req.Description,
		CreatedAt:     now,
		UpdatedAt:     now,
	}
	if ep.ID == "" {
		ep.ID = uuid.NewString()
	}
	if ep.GUID == "" {
		ep.GUID = uuid.NewString()
	}

	if err := h.store.SaveEpisode(ep); err != nil {
		h.logger.Printf("saving episode %s: %v", ep.ID, err)
		w.WriteHeader(http.StatusInternalServerError)
		return
	}

	h.writeJSON(w, http.StatusCreated, ep)
}

// adminEpisodeComments lists every comment on an episode, including
// the unpublished ones waiting for moderation.
func (h *handler) adminEpisodeComments(w http.ResponseWriter, r *http.Request, rest string) {
	episodeID, tail, _ := strings.Cut(rest, "/")
	if episodeID == "" || tail != "comments" || r.Method != http.MethodGet {
		w.WriteHeader(http.StatusNotFound)
		return
	}

	if _, err := h.store.GetEpisode(episodeID); err != nil {
		if errors.Is(err, store.ErrEpisodeNotFound) {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		h.logger.Printf("loading episode %s: %v", episodeID, err)
		w.WriteHeader(http.StatusInternalServerError)
		return
	}

	comments, err := h.store.CommentsForEpisode(episodeID)
	if err != nil {
		h.logger.Printf("loading comments for %s: %v", episodeID, err)
		w.WriteHeader(http.StatusInternalServerError)
		return
	}
	if comments == nil {
		comments = []models.Comment{}
	}
	h.writeJSON(w, http.StatusOK, map[string]any{"comments": comments})
}

// adminModerateComment is the moderation write path: publishing a
// comment makes it visible on the episode page, unpublishing hides it
// again.
func (h *handler) adminModerateComment(w http.ResponseWriter, r *http.Request, rest string) {
	commentID, action, _ := strings.Cut(rest, "/")
	if commentID == "" || (action != "publish" && action != "unpublish") {
		w.WriteHeader(http.StatusNotFound)
		return
	}
	if r.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}

	if err := h.store.SetCommentPublished(commentID, action == "publish"); err != nil {
		if errors.Is(err, store.ErrCommentNotFound) {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		h.logger.Printf("moderating comment %s: %v", commentID, err)
		w.WriteHeader(http.StatusInternalServerError)
		return
	}

	h.writeJSON(w, http.StatusOK, map[string]any{
		"id":        commentID,
		"published": action == "publish",
	})
}

func (h *handler) writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		h.logger.Printf("encoding response: %v", err)
	}
}
