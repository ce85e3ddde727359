// Package store persists feeds, per-feed settings, episodes and
// comments in a single bbolt database.
package store

import (
	"encoding/json"
	"errors"
	"fmt"
	"regexp"
	"sort"
	"time"

	bolt "go.etcd.io/bbolt"

	"podhost/internal/models"
)

var (
	settingsBucket = []byte("feed_settings")
	episodesBucket = []byte("episodes")
	commentsBucket = []byte("comments")
	metaBucket     = []byte("metadata")

	feedListKey = []byte("feeds")
)

var (
	ErrFeedNotFound    = errors.New("feed not found")
	ErrFeedExists      = errors.New("feed already exists")
	ErrEpisodeNotFound = errors.New("episode not found")
	ErrCommentNotFound = errors.New("comment not found")
	ErrInvalidFeedID   = errors.New("invalid feed id")
)

var feedIDPattern = regexp.MustCompile(`^[a-z0-9_]+$`)

type Store struct {
	db *bolt.DB
}

func NewStore(dbPath string) (*Store, error) {
	db, err := bolt.Open(dbPath, 0o600, &bolt.Options{Timeout: 1 * time.Second})
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}

	err = db.Update(func(tx *bolt.Tx) error {
		for _, bucket := range [][]byte{settingsBucket, episodesBucket, commentsBucket, metaBucket} {
			if _, createErr := tx.CreateBucketIfNotExists(bucket); createErr != nil {
				return createErr
			}
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("creating buckets: %w", err)
	}

	return &Store{db: db}, nil
}

func (s *Store) Close() error {
	return s.db.Close()
}

// Feeds returns the ordered list of configured feed ids.
func (s *Store) Feeds() ([]string, error) {
	var feeds []string
	err := s.db.View(func(tx *bolt.Tx) error {
		return readFeedList(tx, &feeds)
	})
	return feeds, err
}

// HasFeed reports whether the feed id is in the configured list.
func (s *Store) HasFeed(id string) (bool, error) {
	feeds, err := s.Feeds()
	if err != nil {
		return false, err
	}
	for _, f := range feeds {
		if f == id {
			return true, nil
		}
	}
	return false, nil
}

// AddFeed appends a feed id to the list and stores its human label.
// The id must already be in machine-name form ([a-z0-9_]+).
func (s *Store) AddFeed(id, label string) error {
	if !feedIDPattern.MatchString(id) {
		return fmt.Errorf("%w: %q", ErrInvalidFeedID, id)
	}

	return s.db.Update(func(tx *bolt.Tx) error {
		var feeds []string
		if err := readFeedList(tx, &feeds); err != nil {
			return err
		}
		for _, f := range feeds {
			if f == id {
				return ErrFeedExists
			}
		}
		feeds = append(feeds, id)
		if err := writeFeedList(tx, feeds); err != nil {
			return err
		}

		settings := models.FeedSettings{Label: label, Values: map[string]string{}}
		data, err := json.Marshal(settings)
		if err != nil {
			return err
		}
		return tx.Bucket(settingsBucket).Put([]byte(id), data)
	})
}

// RemoveFeed drops the feed from the list and deletes its settings bag.
// Episodes keep their feed field; they simply stop rendering.
func (s *Store) RemoveFeed(id string) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		var feeds []string
		if err := readFeedList(tx, &feeds); err != nil {
			return err
		}

		kept := feeds[:0]
		found := false
		for _, f := range feeds {
			if f == id {
				found = true
				continue
			}
			kept = append(kept, f)
		}
		if !found {
			return ErrFeedNotFound
		}

		if err := writeFeedList(tx, kept); err != nil {
			return err
		}
		return tx.Bucket(settingsBucket).Delete([]byte(id))
	})
}

// FeedSettings returns the metadata bag for one feed.
func (s *Store) FeedSettings(id string) (models.FeedSettings, error) {
	var settings models.FeedSettings
	err := s.db.View(func(tx *bolt.Tx) error {
		data := tx.Bucket(settingsBucket).Get([]byte(id))
		if data == nil {
			return ErrFeedNotFound
		}
		return json.Unmarshal(data, &settings)
	})
	if settings.Values == nil {
		settings.Values = map[string]string{}
	}
	return settings, err
}

// SaveFeedSettings replaces the metadata bag for one feed.
func (s *Store) SaveFeedSettings(id string, settings models.FeedSettings) error {
	ok, err := s.HasFeed(id)
	if err != nil {
		return err
	}
	if !ok {
		return ErrFeedNotFound
	}

	return s.db.Update(func(tx *bolt.Tx) error {
		data, err := json.Marshal(settings)
		if err != nil {
			return err
		}
		return tx.Bucket(settingsBucket).Put([]byte(id), data)
	})
}

// SaveEpisode inserts or replaces an episode record.
func (s *Store) SaveEpisode(ep models.Episode) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		data, err := json.Marshal(ep)
		if err != nil {
			return err
		}
		return tx.Bucket(episodesBucket).Put([]byte(ep.ID), data)
	})
}

// GetEpisode loads one episode by id.
func (s *Store) GetEpisode(id string) (models.Episode, error) {
	var ep models.Episode
	err := s.db.View(func(tx *bolt.Tx) error {
		data := tx.Bucket(episodesBucket).Get([]byte(id))
		if data == nil {
			return ErrEpisodeNotFound
		}
		return json.Unmarshal(data, &ep)
	})
	return ep, err
}

// EpisodesForFeed returns the published episodes of a feed ordered by
// creation time descending, capped at limit when limit > 0.
func (s *Store) EpisodesForFeed(feedID string, limit int) ([]models.Episode, error) {
	var episodes []models.Episode
	err := s.db.View(func(tx *bolt.Tx) error {
		return tx.Bucket(episodesBucket).ForEach(func(_, v []byte) error {
			var ep models.Episode
			if err := json.Unmarshal(v, &ep); err != nil {
				return nil
			}
			if ep.Published && ep.FeedID == feedID {
				episodes = append(episodes, ep)
			}
			return nil
		})
	})
	if err != nil {
		return nil, err
	}

	sort.SliceStable(episodes, func(i, j int) bool {
		if episodes[i].CreatedAt.Equal(episodes[j].CreatedAt) {
			return episodes[i].ID > episodes[j].ID
		}
		return episodes[i].CreatedAt.After(episodes[j].CreatedAt)
	})
	if limit > 0 && len(episodes) > limit {
		episodes = episodes[:limit]
	}
	return episodes, nil
}

// SaveComment stores a visitor comment. Comments are always written
// unpublished; moderation happens elsewhere.
func (s *Store) SaveComment(c models.Comment) error {
	c.Published = false
	return s.db.Update(func(tx *bolt.Tx) error {
		data, err := json.Marshal(c)
		if err != nil {
			return err
		}
		return tx.Bucket(commentsBucket).Put([]byte(c.ID), data)
	})
}

// SetCommentPublished flips a comment's moderation state. This is the
// only write path that can make a comment visible.
func (s *Store) SetCommentPublished(id string, published bool) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		bucket := tx.Bucket(commentsBucket)
		data := bucket.Get([]byte(id))
		if data == nil {
			return ErrCommentNotFound
		}
		var c models.Comment
		if err := json.Unmarshal(data, &c); err != nil {
			return err
		}
		c.Published = published
		updated, err := json.Marshal(c)
		if err != nil {
			return err
		}
		return bucket.Put([]byte(id), updated)
	})
}

// CommentsForEpisode lists comments for one episode, oldest first.
func (s *Store) CommentsForEpisode(episodeID string) ([]models.Comment, error) {
	var comments []models.Comment
	err := s.db.View(func(tx *bolt.Tx) error {
		return tx.Bucket(commentsBucket).ForEach(func(_, v []byte) error {
			var c models.Comment
			if err := json.Unmarshal(v, &c); err != nil {
				return nil
			}
			if c.EpisodeID == episodeID {
				comments = append(comments, c)
			}
			return nil
		})
	})
	if err != nil {
		return nil, err
	}

	sort.SliceStable(comments, func(i, j int) bool {
		return comments[i].CreatedAt.Before(comments[j].CreatedAt)
	})
	return comments, nil
}

func readFeedList(tx *bolt.Tx, feeds *[]string) error {
	data := tx.Bucket(metaBucket).Get(feedListKey)
	if data == nil {
		return nil
	}
	return json.Unmarshal(data, feeds)
}

func writeFeedList(tx *bolt.Tx, feeds []string) error {
	data, err := json.Marshal(feeds)
	if err != nil {
		return err
	}
	return tx.Bucket(metaBucket).Put(feedListKey, data)
}
