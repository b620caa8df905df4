package notefmt

import (
	"context"
	"os"
	"path/filepath"
	"sync"
	"text/template"

	"github.com/fsnotify/fsnotify"
	"github.com/rs/zerolog"
)

// Source holds the current header template. When backed by a file it can
// watch for edits and reload, keeping the last good template on a parse
// failure.
type Source struct {
	path   string
	logger zerolog.Logger

	mu  sync.RWMutex
	tpl *template.Template
}

// NewSource loads the header template from path, or the built-in default
// when path is empty.
func NewSource(path string) (*Source, error) {
	s := &Source{path: path, logger: zerolog.Nop()}
	if path == "" {
		tpl, err := template.New("note").Parse(DefaultTemplate)
		if err != nil {
			return nil, err
		}
		s.tpl = tpl
		return s, nil
	}
	if err := s.reload(); err != nil {
		return nil, err
	}
	return s, nil
}

func (s *Source) SetLogger(logger zerolog.Logger) {
	s.logger = logger
}

func (s *Source) Template() *template.Template {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.tpl
}

func (s *Source) reload() error {
	raw, err := os.ReadFile(s.path)
	if err != nil {
		return err
	}
	tpl, err := template.New(filepath.Base(s.path)).Parse(string(raw))
	if err != nil {
		return err
	}
	s.mu.Lock()
	s.tpl = tpl
	s.mu.Unlock()
	return nil
}

// Watch reloads the template whenever its file changes, until ctx is done.
// Editors replace files rather than rewriting them, so the watch sits on
// the directory and filters by name.
func (s *Source) Watch(ctx context.Context) error {
	if s.path == "" {
		<-ctx.Done()
		return nil
	}
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	defer watcher.Close()

	if err := watcher.Add(filepath.Dir(s.path)); err != nil {
		return err
	}
	target := filepath.Base(s.path)
	for {
		select {
		case <-ctx.Done():
			return nil
		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if filepath.Base(event.Name) != target {
				continue
			}
			if !event.Has(fsnotify.Write) && !event.Has(fsnotify.Create) && !event.Has(fsnotify.Rename) {
				continue
			}
			if err := s.reload(); err != nil {
				s.logger.Warn().Err(err).Str("template", s.path).Msg("template reload failed, keeping previous")
				continue
			}
			s.logger.Info().Str("template", s.path).Msg("note template reloaded")
		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			s.logger.Warn().Err(err).Msg("template watcher error")
		}
	}
}
