package script

import (
	"context"
	"fmt"
	"path/filepath"
	"time"

	"github.com/charmbracelet/log"
	"github.com/fsnotify/fsnotify"
)

// settle is how long a file must stay quiet before it is re-read.
const settle = 100 * time.Millisecond

// Follow watches the script at path and calls fn with each response added
// after the first seen responses, along with the reloaded script. It
// returns when ctx is done. Edits that leave the script invalid are logged
// and skipped until the file is fixed.
func Follow(ctx context.Context, path string, seen int, fn func(s *Script, fresh []Entry)) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("create watcher: %w", err)
	}
	defer watcher.Close()

	// Editors often replace files, so watch the directory.
	dir := filepath.Dir(path)
	if err := watcher.Add(dir); err != nil {
		return fmt.Errorf("watch %s: %w", dir, err)
	}
	log.Debug("watching script", "path", path)

	abs, _ := filepath.Abs(path)
	timer := time.NewTimer(settle)
	timer.Stop()
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil

		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if name, _ := filepath.Abs(event.Name); name != abs {
				continue
			}
			if !event.Has(fsnotify.Write) && !event.Has(fsnotify.Create) {
				continue
			}
			timer.Reset(settle)

		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			log.Debug("fsnotify error", "dir", dir, "error", err)

		case <-timer.C:
			s, err := Load(path)
			if err != nil {
				log.Warn("ignoring script change", "err", err)
				continue
			}
			if len(s.Responses) < seen {
				log.Warn("script lost responses; following from its new end", "had", seen, "now", len(s.Responses))
				seen = len(s.Responses)
				continue
			}
			if len(s.Responses) == seen {
				continue
			}
			fresh := s.Responses[seen:]
			seen = len(s.Responses)
			fn(s, fresh)
		}
	}
}
