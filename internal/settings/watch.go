package settings

import (
	"context"
	"fmt"
	"path/filepath"

	"github.com/fsnotify/fsnotify"
)

// Watch reloads the settings whenever the file is changed by another
// process, until ctx is cancelled. The directory is watched rather than the
// file so that editors which replace the file are still seen. A file that
// fails to parse is logged and ignored; the previous settings stay active.
func (s *Store) Watch(ctx context.Context) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("failed to create fsnotify watcher: %w", err)
	}
	defer watcher.Close()

	dir := filepath.Dir(s.path)
	if err := watcher.Add(dir); err != nil {
		return fmt.Errorf("failed to watch settings directory %s: %w", dir, err)
	}

	target := filepath.Clean(s.path)
	for {
		select {
		case <-ctx.Done():
			return nil

		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if filepath.Clean(event.Name) != target {
				continue
			}
			if !event.Has(fsnotify.Write) && !event.Has(fsnotify.Create) {
				continue
			}
			s.reload()

		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			s.log.WithError(err).Warn("settings watcher error")
		}
	}
}

// reload reads the file and publishes it if it differs from the snapshot.
func (s *Store) reload() {
	next, err := load(s.path)
	if err != nil {
		s.log.WithError(err).Warn("ignoring unreadable settings file")
		return
	}

	s.mu.Lock()
	changed := next != s.cur
	s.cur = next
	s.mu.Unlock()

	if changed {
		s.log.WithField("level", next.Level).Info("settings reloaded")
		s.publish(next)
	}
}
