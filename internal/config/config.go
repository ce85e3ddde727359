package config

import (
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

const (
	defaultListenAddr        = "127.0.0.1:8080"
	defaultRefreshDebounceMS = 500
	defaultCommentIntro      = "Leave a short note. Your comment will appear after moderation."
)

// Settings is the resolved server configuration: defaults, overlaid
// with the optional YAML file, overlaid with PODHOST_* environment
// variables.
type Settings struct {
	ListenAddr      string
	BaseURL         string
	MediaDir        string
	DataDir         string
	AdminToken      string
	SchemaFile      string
	CommentIntro    string
	RefreshDebounce time.Duration
}

type settingsYAML struct {
	ListenAddr        string `yaml:"listen_addr"`
	BaseURL           string `yaml:"base_url"`
	MediaDir          string `yaml:"media_dir"`
	DataDir           string `yaml:"data_dir"`
	AdminToken        string `yaml:"admin_token"`
	SchemaFile        string `yaml:"schema_file"`
	CommentIntro      string `yaml:"comment_intro"`
	RefreshDebounceMS int    `yaml:"refresh_debounce_ms"`
}

// Load resolves the full configuration. configPath names the optional
// YAML file; when empty the PODHOST_CONFIG variable is consulted. The
// media and data directories are created when missing.
func Load(configPath string) (Settings, error) {
	s := Settings{
		ListenAddr:      defaultListenAddr,
		CommentIntro:    defaultCommentIntro,
		RefreshDebounce: defaultRefreshDebounceMS * time.Millisecond,
	}

	if configPath == "" {
		configPath = os.Getenv("PODHOST_CONFIG")
	}
	configPath = strings.TrimSpace(configPath)
	if configPath != "" {
		resolved, err := resolvePath(configPath)
		if err != nil {
			return Settings{}, err
		}
		data, err := os.ReadFile(resolved)
		if err != nil {
			return Settings{}, err
		}
		var y settingsYAML
		if err := yaml.Unmarshal(data, &y); err != nil {
			return Settings{}, fmt.Errorf("parsing %s: %w", resolved, err)
		}
		applyYAML(&s, y)
	}

	applyEnv(&s)

	if s.MediaDir == "" {
		cwd, err := os.Getwd()
		if err != nil {
			return Settings{}, err
		}
		s.MediaDir = filepath.Join(cwd, "media")
	}
	if s.DataDir == "" {
		cwd, err := os.Getwd()
		if err != nil {
			return Settings{}, err
		}
		s.DataDir = filepath.Join(cwd, "data")
	}

	var err error
	if s.MediaDir, err = ensureDir(s.MediaDir); err != nil {
		return Settings{}, err
	}
	if s.DataDir, err = ensureDir(s.DataDir); err != nil {
		return Settings{}, err
	}

	if s.BaseURL == "" {
		s.BaseURL = "http://" + s.ListenAddr
	}
	if _, err := ParseBaseURL(s.BaseURL); err != nil {
		return Settings{}, err
	}

	if s.SchemaFile != "" {
		if s.SchemaFile, err = resolvePath(s.SchemaFile); err != nil {
			return Settings{}, err
		}
	}

	return s, nil
}

// StorePath is the bbolt database location inside the data directory.
func (s Settings) StorePath() string {
	return filepath.Join(s.DataDir, "podhost.db")
}

// DownloadLogPath is the sqlite download log location.
func (s Settings) DownloadLogPath() string {
	return filepath.Join(s.DataDir, "downloads.db")
}

// ParseBaseURL validates the externally visible server URL.
func ParseBaseURL(raw string) (*url.URL, error) {
	u, err := url.Parse(raw)
	if err != nil {
		return nil, fmt.Errorf("invalid base URL %q: %w", raw, err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return nil, fmt.Errorf("base URL %q must use http or https", raw)
	}
	if u.Host == "" {
		return nil, fmt.Errorf("base URL %q has no host", raw)
	}
	return u, nil
}

func applyYAML(s *Settings, y settingsYAML) {
	if v := strings.TrimSpace(y.ListenAddr); v != "" {
		s.ListenAddr = v
	}
	if v := strings.TrimSpace(y.BaseURL); v != "" {
		s.BaseURL = v
	}
	if v := strings.TrimSpace(y.MediaDir); v != "" {
		s.MediaDir = v
	}
	if v := strings.TrimSpace(y.DataDir); v != "" {
		s.DataDir = v
	}
	if v := strings.TrimSpace(y.AdminToken); v != "" {
		s.AdminToken = v
	}
	if v := strings.TrimSpace(y.SchemaFile); v != "" {
		s.SchemaFile = v
	}
	if v := strings.TrimSpace(y.CommentIntro); v != "" {
		s.CommentIntro = v
	}
	if y.RefreshDebounceMS > 0 {
		s.RefreshDebounce = time.Duration(y.RefreshDebounceMS) * time.Millisecond
	}
}

func applyEnv(s *Settings) {
	if v := strings.TrimSpace(os.Getenv("PODHOST_LISTEN_ADDR")); v != "" {
		s.ListenAddr = v
	}
	if v := strings.TrimSpace(os.Getenv("PODHOST_BASE_URL")); v != "" {
		s.BaseURL = v
	}
	if v := strings.TrimSpace(os.Getenv("PODHOST_MEDIA_DIR")); v != "" {
		s.MediaDir = v
	}
	if v := strings.TrimSpace(os.Getenv("PODHOST_DATA_DIR")); v != "" {
		s.DataDir = v
	}
	if v := strings.TrimSpace(os.Getenv("PODHOST_ADMIN_TOKEN")); v != "" {
		s.AdminToken = v
	}
	if v := strings.TrimSpace(os.Getenv("PODHOST_SCHEMA_FILE")); v != "" {
		s.SchemaFile = v
	}
	if v := strings.TrimSpace(os.Getenv("PODHOST_COMMENT_INTRO")); v != "" {
		s.CommentIntro = v
	}
	if v := strings.TrimSpace(os.Getenv("PODHOST_REFRESH_DEBOUNCE_MS")); v != "" {
		if ms, err := strconv.Atoi(v); err == nil && ms > 0 {
			s.RefreshDebounce = time.Duration(ms) * time.Millisecond
		}
	}
}

func ensureDir(dir string) (string, error) {
	resolved, err := resolvePath(dir)
	if err != nil {
		return "", err
	}
	if err := os.MkdirAll(resolved, 0o755); err != nil {
		return "", err
	}
	return resolved, nil
}

func resolvePath(path string) (string, error) {
	if strings.HasPrefix(path, "~") {
		home, err := os.UserHomeDir()
		if err == nil {
			path = filepath.Join(home, path[1:])
		}
	}
	return filepath.Abs(path)
}
