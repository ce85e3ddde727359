package downloads

import (
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setupTestLog(t *testing.T) *Log {
	t.Helper()
	l, err := OpenLog(filepath.Join(t.TempDir(), "downloads.db"))
	require.NoError(t, err)
	t.Cleanup(func() { l.Close() })
	return l
}

func testRecord() Record {
	return Record{
		EpisodeID: "ep1",
		AssetID:   "shows/ep1.mp3",
		FeedID:    "default",
		IP:        "203.0.113.9",
		UserAgent: "Podcatcher/2.0",
		Referer:   "https://pod.example/episodes/ep1",
	}
}

func TestRecordInsertsRow(t *testing.T) {
	l := setupTestLog(t)

	inserted, err := l.Record(testRecord())
	require.NoError(t, err)
	assert.True(t, inserted)

	count, err := l.CountForAsset("shows/ep1.mp3")
	require.NoError(t, err)
	assert.EqualValues(t, 1, count)
}

func TestRecordDedupesWithinWindow(t *testing.T) {
	l := setupTestLog(t)
	base := time.Date(2025, 5, 1, 12, 0, 0, 0, time.UTC)
	l.now = func() time.Time { return base }

	inserted, err := l.Record(testRecord())
	require.NoError(t, err)
	require.True(t, inserted)

	// Same asset and ip one second before the window closes: skipped.
	l.now = func() time.Time { return base.Add(3599 * time.Second) }
	inserted, err = l.Record(testRecord())
	require.NoError(t, err)
	assert.False(t, inserted)

	// Past the window: logged again.
	l.now = func() time.Time { return base.Add(3601 * time.Second) }
	inserted, err = l.Record(testRecord())
	require.NoError(t, err)
	assert.True(t, inserted)

	count, err := l.CountForAsset("shows/ep1.mp3")
	require.NoError(t, err)
	assert.EqualValues(t, 2, count)
}

func TestRecordDifferentClientNotDeduped(t *testing.T) {
	l := setupTestLog(t)

	inserted, err := l.Record(testRecord())
	require.NoError(t, err)
	require.True(t, inserted)

	other := testRecord()
	other.IP = "198.51.100.4"
	inserted, err = l.Record(other)
	require.NoError(t, err)
	assert.True(t, inserted)

	otherAsset := testRecord()
	otherAsset.AssetID = "shows/ep2.mp3"
	inserted, err = l.Record(otherAsset)
	require.NoError(t, err)
	assert.True(t, inserted)
}

func TestRecordClampsOversizedFields(t *testing.T) {
	l := setupTestLog(t)

	rec := testRecord()
	rec.IP = strings.Repeat("f", 100)
	rec.UserAgent = strings.Repeat("u", 1000)
	rec.Referer = strings.Repeat("r", 1000)

	inserted, err := l.Record(rec)
	require.NoError(t, err)
	require.True(t, inserted)

	// The dedupe lookup uses the clamped ip, so an identical oversized
	// ip still dedupes.
	inserted, err = l.Record(rec)
	require.NoError(t, err)
	assert.False(t, inserted)

	var ip, ua, ref string
	err = l.db.QueryRow(`SELECT ip_address, user_agent, referer FROM downloads LIMIT 1`).Scan(&ip, &ua, &ref)
	require.NoError(t, err)
	assert.Len(t, ip, 45)
	assert.Len(t, ua, 512)
	assert.Len(t, ref, 512)
}
