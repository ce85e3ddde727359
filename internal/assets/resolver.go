// Package assets resolves audio asset ids (paths relative to the media
// root) to on-disk files and absolute download URLs.
package assets

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	pathpkg "path"
	"path/filepath"
	"strings"
)

// ErrAssetNotFound is returned when an asset id does not resolve to an
// existing file inside the media root.
var ErrAssetNotFound = errors.New("asset not found")

// Asset describes one resolved audio file.
type Asset struct {
	ID   string
	Path string
	URL  string
	Size int64
}

// Resolver maps asset ids to files under a single media root and to
// absolute URLs under the server's /media/ route.
type Resolver struct {
	root    string
	baseURL *url.URL
}

// NewResolver creates a Resolver for the given media root. baseURL is
// the externally visible server address used for enclosure links.
func NewResolver(root string, baseURL *url.URL) (*Resolver, error) {
	abs, err := filepath.Abs(filepath.Clean(root))
	if err != nil {
		return nil, fmt.Errorf("resolving media root: %w", err)
	}
	return &Resolver{root: abs, baseURL: baseURL}, nil
}

// Root returns the absolute media root directory.
func (r *Resolver) Root() string {
	return r.root
}

// Resolve validates the asset id, checks the file exists on disk and
// returns its path, byte size and absolute URL. Ids escaping the media
// root resolve to ErrAssetNotFound, never to files outside it.
func (r *Resolver) Resolve(assetID string) (Asset, error) {
	rel := pathpkg.Clean(strings.TrimPrefix(assetID, "/"))
	if rel == "" || rel == "." || rel == ".." || strings.HasPrefix(rel, "../") {
		return Asset{}, fmt.Errorf("%w: %q", ErrAssetNotFound, assetID)
	}

	target := filepath.Join(r.root, filepath.FromSlash(rel))
	resolved, err := filepath.Abs(target)
	if err != nil {
		return Asset{}, fmt.Errorf("resolving asset path: %w", err)
	}
	if !pathWithinRoot(r.root, resolved) {
		return Asset{}, fmt.Errorf("%w: %q", ErrAssetNotFound, assetID)
	}

	info, err := os.Stat(resolved)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return Asset{}, fmt.Errorf("%w: %q", ErrAssetNotFound, assetID)
		}
		return Asset{}, err
	}
	if info.IsDir() {
		return Asset{}, fmt.Errorf("%w: %q", ErrAssetNotFound, assetID)
	}

	fileURL := *r.baseURL
	fileURL.Path = "/" + pathpkg.Join("media", rel)
	fileURL.RawQuery = ""

	return Asset{
		ID:   rel,
		Path: resolved,
		URL:  fileURL.String(),
		Size: info.Size(),
	}, nil
}

func pathWithinRoot(root, target string) bool {
	rel, err := filepath.Rel(root, target)
	if err != nil {
		return false
	}
	rel = filepath.ToSlash(rel)
	return rel != ".." && !strings.HasPrefix(rel, "../")
}
