package bear

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"maps"
	"os"
	"path/filepath"

	"github.com/fsnotify/fsnotify"
)

// Phrases returns a copy of the loaded phrases (key to text).
func (s *Service) Phrases() map[string]string {
	s.phrasesMu.RLock()
	defer s.phrasesMu.RUnlock()
	return maps.Clone(s.phrases)
}

// ReloadPhrases reads the phrases file. A missing file is logged and
// leaves the current phrases in place.
func (s *Service) ReloadPhrases() error {
	if s.phrasesFile == "" {
		return nil
	}

	data, err := os.ReadFile(s.phrasesFile)
	if errors.Is(err, os.ErrNotExist) {
		s.logger.Warn("phrases file not found", "file", s.phrasesFile)
		return nil
	}
	if err != nil {
		return fmt.Errorf("bear: read phrases: %w", err)
	}

	phrases := make(map[string]string)
	if err := json.Unmarshal(data, &phrases); err != nil {
		return fmt.Errorf("bear: parse phrases %s: %w", s.phrasesFile, err)
	}

	s.phrasesMu.Lock()
	s.phrases = phrases
	s.phrasesMu.Unlock()

	s.logger.Info("phrases loaded", "count", len(phrases))
	return nil
}

// WatchPhrases reloads the phrases file whenever it changes until ctx is
// cancelled. The parent directory is watched so editors that replace the
// file are handled.
func (s *Service) WatchPhrases(ctx context.Context) error {
	if s.phrasesFile == "" {
		<-ctx.Done()
		return ctx.Err()
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("bear: watch phrases: %w", err)
	}
	defer watcher.Close()

	target, err := filepath.Abs(s.phrasesFile)
	if err != nil {
		return fmt.Errorf("bear: watch phrases: %w", err)
	}
	if err := watcher.Add(filepath.Dir(target)); err != nil {
		return fmt.Errorf("bear: watch phrases: %w", err)
	}

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if !event.Has(fsnotify.Write) && !event.Has(fsnotify.Create) {
				continue
			}
			if name, _ := filepath.Abs(event.Name); name != target {
				continue
			}
			if err := s.ReloadPhrases(); err != nil {
				s.logger.Warn("phrases reload failed", "error", err)
			}
		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			s.logger.Warn("phrases watcher error", "error", err)
		}
	}
}
