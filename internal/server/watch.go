package server

import (
	"context"
	"fmt"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"
)

// Watch reloads the document whenever its file changes, until ctx is cancelled.
// Bursts of changes within debounce of each other cause a single reload.
//
// The containing directory is watched rather than the file itself so editors
// that save by replacing the file are still picked up.
func (s *Server) Watch(ctx context.Context, debounce time.Duration) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("could not start file watcher: %w", err)
	}
	defer watcher.Close()

	target, err := filepath.Abs(s.path)
	if err != nil {
		return err
	}

	if err := watcher.Add(filepath.Dir(target)); err != nil {
		return fmt.Errorf("could not watch %s: %w", s.path, err)
	}

	logger := s.logger.Prefixed("watch")
	logger.Debug("Watching for changes", "path", s.path, "debounce", debounce)

	var (
		timer  *time.Timer
		timerC <-chan time.Time
	)
	defer func() {
		if timer != nil {
			timer.Stop()
		}
	}()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-timerC:
			timerC = nil
			// Errors are logged by Reload, the previous document stays live
			_ = s.Reload()
		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			logger.Error("Watcher error", "error", err)
		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if !changed(event, target) {
				continue
			}

			logger.Debug("Document changed", "op", event.Op.String())

			if timer == nil {
				timer = time.NewTimer(debounce)
			} else {
				timer.Reset(debounce)
			}
			timerC = timer.C
		}
	}
}

// changed reports whether event is a change to the file at target.
func changed(event fsnotify.Event, target string) bool {
	if event.Op&(fsnotify.Create|fsnotify.Write|fsnotify.Rename|fsnotify.Remove) == 0 {
		return false
	}

	name, err := filepath.Abs(event.Name)
	if err != nil {
		return false
	}

	return name == target
}
