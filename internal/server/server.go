// Package server exposes the podcast over HTTP: public RSS feeds with
// conditional caching, audio delivery with download logging, episode
// pages with moderated comments, and a token-guarded admin API.
package server

import (
	"crypto/md5"
	"encoding/hex"
	"encoding/json"
	"errors"
	"log"
	"net"
	"net/http"
	"net/url"
	"path/filepath"
	"strings"
	"time"

	"podhost/internal/assets"
	"podhost/internal/downloads"
	"podhost/internal/feed"
	"podhost/internal/fields"
	"podhost/internal/models"
	"podhost/internal/store"
)

// FeedRenderer produces the RSS document and last-modified timestamp
// for one feed.
type FeedRenderer interface {
	Render(feedID string) ([]byte, time.Time, error)
}

// Storage is the persistence surface the handlers need.
type Storage interface {
	Feeds() ([]string, error)
	HasFeed(id string) (bool, error)
	FeedSettings(id string) (models.FeedSettings, error)
	SaveFeedSettings(id string, settings models.FeedSettings) error
	GetEpisode(id string) (models.Episode, error)
	SaveEpisode(ep models.Episode) error
	SaveComment(c models.Comment) error
	SetCommentPublished(id string, published bool) error
	CommentsForEpisode(episodeID string) ([]models.Comment, error)
}

// SchemaSource supplies the current settings field definitions.
type SchemaSource interface {
	Definitions() []fields.Definition
}

// AssetSource resolves and inspects audio assets.
type AssetSource interface {
	Resolve(assetID string) (assets.Asset, error)
	Probe(assetID string) (assets.Probe, error)
}

// DownloadLog records download events.
type DownloadLog interface {
	Record(rec downloads.Record) (bool, error)
}

// Options carries the collaborators and settings for New.
type Options struct {
	Store        Storage
	Renderer     FeedRenderer
	Schema       SchemaSource
	Assets       AssetSource
	Downloads    DownloadLog
	BaseURL      *url.URL
	AdminToken   string
	CommentIntro string
	Logger       *log.Logger
}

type handler struct {
	store        Storage
	renderer     FeedRenderer
	schema       SchemaSource
	assets       AssetSource
	downloads    DownloadLog
	baseURL      *url.URL
	adminToken   string
	commentIntro string
	logger       *log.Logger
}

// New creates the HTTP handler for the whole server surface.
func New(opts Options) http.Handler {
	logger := opts.Logger
	if logger == nil {
		logger = log.Default()
	}

	h := &handler{
		store:        opts.Store,
		renderer:     opts.Renderer,
		schema:       opts.Schema,
		assets:       opts.Assets,
		downloads:    opts.Downloads,
		baseURL:      opts.BaseURL,
		adminToken:   opts.AdminToken,
		commentIntro: opts.CommentIntro,
		logger:       logger,
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/health", h.handleHealth)
	mux.HandleFunc("/feeds/", h.handleFeed)
	mux.HandleFunc("/media/", h.handleMedia)
	mux.HandleFunc("/download/", h.handleDownload)
	mux.HandleFunc("/episodes/", h.handleEpisodes)
	mux.HandleFunc("/admin/", h.handleAdmin)

	return logRequests(mux, logger)
}

func (h *handler) handleHealth(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(map[string]string{"status": "ok"})
}

// handleFeed renders /feeds/{feed}. The document is rebuilt on every
// request; clients that sent a matching validator get an empty 304.
func (h *handler) handleFeed(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet && r.Method != http.MethodHead {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}

	feedID := strings.TrimPrefix(r.URL.Path, "/feeds/")
	if feedID == "" || strings.Contains(feedID, "/") {
		w.WriteHeader(http.StatusNotFound)
		return
	}

	body, lastModified, err := h.renderer.Render(feedID)
	if err != nil {
		if errors.Is(err, feed.ErrFeedNotFound) {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		h.logger.Printf("rendering feed %s: %v", feedID, err)
		w.WriteHeader(http.StatusInternalServerError)
		return
	}

	sum := md5.Sum(body)
	etag := hex.EncodeToString(sum[:])
	lastModHTTP := lastModified.UTC().Format(http.TimeFormat)

	w.Header().Set("ETag", etag)
	w.Header().Set("Last-Modified", lastModHTTP)
	w.Header().Set("Cache-Control", "private, max-age=0")

	if r.Header.Get("If-None-Match") == etag || r.Header.Get("If-Modified-Since") == lastModHTTP {
		w.WriteHeader(http.StatusNotModified)
		return
	}

	w.Header().Set("Content-Type", "application/rss+xml")
	if r.Method == http.MethodHead {
		return
	}
	if _, err := w.Write(body); err != nil {
		h.logger.Printf("writing feed %s: %v", feedID, err)
	}
}

// handleMedia serves raw files under the media root through the asset
// resolver, which owns the traversal guard. Enclosure URLs point here;
// download counting happens on the /download/ route.
func (h *handler) handleMedia(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet && r.Method != http.MethodHead {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}

	rel := strings.TrimPrefix(r.URL.Path, "/media/")
	asset, err := h.assets.Resolve(rel)
	if err != nil {
		if errors.Is(err, assets.ErrAssetNotFound) {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		h.logger.Printf("resolving media path %s: %v", rel, err)
		w.WriteHeader(http.StatusInternalServerError)
		return
	}

	http.ServeFile(w, r, asset.Path)
}

// handleDownload streams /download/{episode}/{asset...} and logs the
// event. The asset segment must match the episode's own asset; the
// route is not a generic file proxy.
func (h *handler) handleDownload(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet && r.Method != http.MethodHead {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}

	rest := strings.TrimPrefix(r.URL.Path, "/download/")
	episodeID, assetID, ok := strings.Cut(rest, "/")
	if !ok || episodeID == "" || assetID == "" {
		w.WriteHeader(http.StatusNotFound)
		return
	}

	ep, err := h.store.GetEpisode(episodeID)
	if err != nil {
		if errors.Is(err, store.ErrEpisodeNotFound) {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		h.logger.Printf("loading episode %s: %v", episodeID, err)
		w.WriteHeader(http.StatusInternalServerError)
		return
	}

	if !ep.Published || ep.AssetID != assetID {
		w.WriteHeader(http.StatusNotFound)
		return
	}

	asset, err := h.assets.Resolve(assetID)
	if err != nil {
		if errors.Is(err, assets.ErrAssetNotFound) {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		h.logger.Printf("resolving asset %s: %v", assetID, err)
		w.WriteHeader(http.StatusInternalServerError)
		return
	}

	// HEAD probes fetch no audio; counting them would inflate the log.
	if r.Method == http.MethodGet {
		if _, err := h.downloads.Record(downloads.Record{
			EpisodeID: ep.ID,
			AssetID:   asset.ID,
			FeedID:    ep.FeedID,
			IP:        clientIP(r),
			UserAgent: r.UserAgent(),
			Referer:   r.Referer(),
		}); err != nil {
			// A broken log must not block the download itself.
			h.logger.Printf("recording download of %s: %v", asset.ID, err)
		}
	}

	w.Header().Set("Content-Type", "audio/mpeg")
	w.Header().Set("Content-Disposition", "inline; filename=\""+filepath.Base(asset.Path)+"\"")
	http.ServeFile(w, r, asset.Path)
}

// clientIP prefers the first X-Forwarded-For hop, falling back to the
// connection address.
func clientIP(r *http.Request) string {
	if forwarded := strings.TrimSpace(r.Header.Get("X-Forwarded-For")); forwarded != "" {
		first, _, _ := strings.Cut(forwarded, ",")
		if ip := strings.TrimSpace(first); ip != "" {
			return ip
		}
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}

type statusWriter struct {
	http.ResponseWriter
	status int
	size   int
}

func (w *statusWriter) WriteHeader(code int) {
	w.status = code
	w.ResponseWriter.WriteHeader(code)
}

func (w *statusWriter) Write(b []byte) (int, error) {
	n, err := w.ResponseWriter.Write(b)
	w.size += n
	return n, err
}

func logRequests(next http.Handler, logger *log.Logger) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		sw := &statusWriter{ResponseWriter: w, status: http.StatusOK}
		start := time.Now()
		next.ServeHTTP(sw, r)
		duration := time.Since(start)
		logger.Printf("%s %s -> %d (%dB) in %s", r.Method, r.URL.Path, sw.status, sw.size, duration)
	})
}
