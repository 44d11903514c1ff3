package session

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/fsnotify/fsnotify"
)

// Watch keeps the store's read cache in sync with the mapping file until ctx is done.
// The parent directory is watched because writers replace the file via rename.
// Without a running watcher every Load reads the file from disk.
func (s *Store) Watch(ctx context.Context) error {
	dir := filepath.Dir(s.path)
	if err := os.MkdirAll(dir, 0700); err != nil {
		return fmt.Errorf("create state dir: %w", err)
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("store watcher: %w", err)
	}
	defer watcher.Close()

	if err := watcher.Add(dir); err != nil {
		return fmt.Errorf("watch %s: %w", dir, err)
	}

	s.setWatching(true)
	defer s.setWatching(false)
	s.log.Debug("store_watch_started", slog.String("path", s.path))

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
			if event.Op&(fsnotify.Create|fsnotify.Write|fsnotify.Rename|fsnotify.Remove) == 0 {
				continue
			}
			s.invalidate()
			s.log.Debug("store_cache_invalidated", slog.String("op", event.Op.String()))

		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			// Overflow or similar: drop the cache so the next Load rereads
			s.invalidate()
			s.log.Warn("store_watcher_error", slog.String("error", err.Error()))
		}
	}
}
