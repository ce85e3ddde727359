// Package downloads records episode downloads in a small sqlite table.
// Podcast clients re-request files aggressively (range requests,
// retries), so identical requests from the same address inside a one
// hour window count as a single download.
package downloads

import (
	"database/sql"
	"fmt"
	"time"

	_ "github.com/mattn/go-sqlite3"
)

// dedupeWindow is how long an (asset, ip) pair suppresses repeat rows.
const dedupeWindow = 3600 * time.Second

const (
	maxIPLen      = 45
	maxUserAgent  = 512
	maxRefererLen = 512
)

// Record is one download event.
type Record struct {
	EpisodeID string
	AssetID   string
	FeedID    string
	IP        string
	UserAgent string
	Referer   string
}

// Log is the sqlite-backed download log.
type Log struct {
	db  *sql.DB
	now func() time.Time
}

// OpenLog opens (and if needed bootstraps) the download log database.
func OpenLog(path string) (*Log, error) {
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("opening download log: %w", err)
	}

	_, err = db.Exec(`CREATE TABLE IF NOT EXISTS downloads (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		timestamp INTEGER NOT NULL,
		episode_id TEXT NOT NULL,
		asset_id TEXT NOT NULL,
		feed_name TEXT NOT NULL,
		ip_address TEXT NOT NULL,
		user_agent TEXT NOT NULL,
		referer TEXT NOT NULL
	)`)
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("creating downloads table: %w", err)
	}

	_, err = db.Exec(`CREATE INDEX IF NOT EXISTS downloads_dedupe
		ON downloads (asset_id, ip_address, timestamp)`)
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("indexing downloads table: %w", err)
	}

	return &Log{db: db, now: time.Now}, nil
}

// Close releases the database handle.
func (l *Log) Close() error {
	return l.db.Close()
}

// Record inserts a download row unless the same (asset, ip) pair was
// already logged inside the dedupe window. It returns whether a row
// was written. The check-then-insert is not race-free under identical
// concurrent requests; a stray duplicate row is harmless.
func (l *Log) Record(rec Record) (bool, error) {
	now := l.now()
	ip := clamp(rec.IP, maxIPLen)
	cutoff := now.Add(-dedupeWindow).Unix()

	var existing int64
	err := l.db.QueryRow(
		`SELECT id FROM downloads WHERE asset_id = ? AND ip_address = ? AND timestamp > ? LIMIT 1`,
		rec.AssetID, ip, cutoff,
	).Scan(&existing)
	switch {
	case err == nil:
		return false, nil
	case err != sql.ErrNoRows:
		return false, fmt.Errorf("querying download log: %w", err)
	}

	_, err = l.db.Exec(
		`INSERT INTO downloads (timestamp, episode_id, asset_id, feed_name, ip_address, user_agent, referer)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		now.Unix(), rec.EpisodeID, rec.AssetID, rec.FeedID, ip,
		clamp(rec.UserAgent, maxUserAgent), clamp(rec.Referer, maxRefererLen),
	)
	if err != nil {
		return false, fmt.Errorf("inserting download row: %w", err)
	}
	return true, nil
}

// CountForAsset reports logged downloads of one asset.
func (l *Log) CountForAsset(assetID string) (int64, error) {
	var count int64
	err := l.db.QueryRow(`SELECT COUNT(*) FROM downloads WHERE asset_id = ?`, assetID).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("counting downloads: %w", err)
	}
	return count, nil
}

func clamp(s string, max int) string {
	if len(s) > max {
		return s[:max]
	}
	return s
}
