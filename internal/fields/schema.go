package fields

import (
	"errors"
	"log"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"gopkg.in/yaml.v3"
)

// SchemaStore serves the current field definitions, backed by a YAML
// schema file on disk. Edits to the file are picked up without a
// restart; when the file is missing or broken the built-in defaults
// stay in effect.
type SchemaStore struct {
	file         string
	logger       *log.Logger
	watcher      *fsnotify.Watcher
	refreshDelay time.Duration

	mu   sync.RWMutex
	defs []Definition

	refreshMu    sync.Mutex
	refreshTimer *time.Timer
	done         chan struct{}
	wg           sync.WaitGroup
	closeOnce    sync.Once
	closeErr     error
}

// NewSchemaStore creates a SchemaStore watching the given schema file.
func NewSchemaStore(filePath string, debounce time.Duration, logger *log.Logger) (*SchemaStore, error) {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}

	if logger == nil {
		logger = log.Default()
	}

	s := &SchemaStore{
		file:         filepath.Clean(filePath),
		logger:       logger,
		watcher:      watcher,
		refreshDelay: debounce,
		defs:         DefaultDefinitions(),
		done:         make(chan struct{}),
	}

	if err := s.refresh(); err != nil {
		watcher.Close()
		return nil, err
	}

	dir := filepath.Dir(s.file)
	if err := watcher.Add(dir); err != nil {
		watcher.Close()
		return nil, err
	}

	if err := watcher.Add(s.file); err != nil {
		s.logger.Printf("schema watcher could not watch file directly: %v", err)
	}

	s.wg.Add(1)
	go s.run()

	return s, nil
}

// Close stops the file watcher and releases resources.
func (s *SchemaStore) Close() error {
	s.closeOnce.Do(func() {
		close(s.done)

		s.refreshMu.Lock()
		if s.refreshTimer != nil {
			s.refreshTimer.Stop()
			s.refreshTimer = nil
		}
		s.refreshMu.Unlock()

		s.closeErr = s.watcher.Close()
		s.wg.Wait()
	})
	return s.closeErr
}

// Definitions returns a snapshot of the current schema.
func (s *SchemaStore) Definitions() []Definition {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]Definition, len(s.defs))
	copy(result, s.defs)
	return result
}

func (s *SchemaStore) run() {
	defer s.wg.Done()

	for {
		select {
		case event, ok := <-s.watcher.Events:
			if !ok {
				return
			}
			s.handleEvent(event)
		case err, ok := <-s.watcher.Errors:
			if !ok {
				return
			}
			s.logger.Printf("schema watcher error: %v", err)
		case <-s.done:
			return
		}
	}
}

func (s *SchemaStore) handleEvent(event fsnotify.Event) {
	if filepath.Clean(event.Name) != s.file {
		return
	}

	if event.Op&(fsnotify.Create|fsnotify.Write|fsnotify.Remove|fsnotify.Rename) != 0 {
		s.scheduleRefresh()
	}
}

func (s *SchemaStore) scheduleRefresh() {
	select {
	case <-s.done:
		return
	default:
	}

	s.refreshMu.Lock()
	defer s.refreshMu.Unlock()

	if s.refreshTimer != nil {
		s.refreshTimer.Stop()
	}

	s.refreshTimer = time.AfterFunc(s.refreshDelay, func() {
		if err := s.refresh(); err != nil {
			s.logger.Printf("schema refresh error: %v", err)
		}

		s.refreshMu.Lock()
		if s.refreshTimer != nil {
			s.refreshTimer = nil
		}
		s.refreshMu.Unlock()
	})
}

func (s *SchemaStore) refresh() error {
	data, err := os.ReadFile(s.file)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			s.mu.Lock()
			s.defs = DefaultDefinitions()
			s.mu.Unlock()
			s.logger.Printf("schema file %s missing; using built-in field definitions", s.file)
			return nil
		}
		return err
	}

	var defs []Definition
	if err := yaml.Unmarshal(data, &defs); err != nil {
		// Keep the last good schema; a half-saved file must not wipe
		// the admin form.
		s.logger.Printf("schema file %s unreadable, keeping previous definitions: %v", s.file, err)
		return nil
	}
	if len(defs) == 0 {
		defs = DefaultDefinitions()
	}

	s.mu.Lock()
	s.defs = defs
	s.mu.Unlock()

	s.logger.Printf("loaded %d field definitions", len(defs))
	return nil
}
