package assets

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/dhowden/tag"
	"github.com/tcolgate/mp3"
)

// Probe is the metadata extracted from an audio file at ingest time.
// Fields are best-effort; a file without tags yields only the
// filename-derived title.
type Probe struct {
	Title           string
	Artist          string
	DurationSeconds float64
}

// Probe inspects the asset's tags and, for MP3 files, sums the frame
// durations. Used to prefill episode metadata when an episode record
// arrives without title or duration.
func (r *Resolver) Probe(assetID string) (Probe, error) {
	asset, err := r.Resolve(assetID)
	if err != nil {
		return Probe{}, err
	}

	probe := Probe{}
	probe.Title, probe.Artist = readTags(asset.Path)
	if probe.Title == "" {
		base := filepath.Base(asset.Path)
		probe.Title = strings.TrimSuffix(base, filepath.Ext(base))
	}

	if strings.EqualFold(filepath.Ext(asset.Path), ".mp3") {
		if dur, err := mp3Duration(asset.Path); err == nil && dur > 0 {
			probe.DurationSeconds = dur
		}
	}

	return probe, nil
}

// FormatDuration renders a second count as HH:MM:SS for itunes:duration.
func FormatDuration(seconds float64) string {
	if seconds <= 0 {
		return ""
	}
	total := int64(seconds + 0.5)
	return fmt.Sprintf("%02d:%02d:%02d", total/3600, (total%3600)/60, total%60)
}

func readTags(path string) (string, string) {
	f, err := os.Open(path)
	if err != nil {
		return "", ""
	}
	defer f.Close()

	meta, err := tag.ReadFrom(f)
	if err != nil {
		return "", ""
	}
	return strings.TrimSpace(meta.Title()), strings.TrimSpace(meta.Artist())
}

func mp3Duration(path string) (float64, error) {
	f, err := os.Open(path)
	if err != nil {
		return 0, err
	}
	defer f.Close()

	decoder := mp3.NewDecoder(f)
	var frame mp3.Frame
	var skipped int
	var total float64

	for {
		err := decoder.Decode(&frame, &skipped)
		if err != nil {
			if errors.Is(err, io.EOF) {
				break
			}
			return 0, err
		}
		total += frame.Duration().Seconds()
	}

	return total, nil
}
