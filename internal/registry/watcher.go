package registry

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/fsnotify/fsnotify"
)

const reloadDebounce = 250 * time.Millisecond

// Watch reloads the registry whenever pack files change, debounced so a
// burst of writes triggers one reload. It blocks until ctx is done. Without
// a directory (or with a missing one) it idles.
func (r *Registry) Watch(ctx context.Context) error {
	if r.dir == "" {
		<-ctx.Done()
		return nil
	}
	if _, err := os.Stat(r.dir); err != nil {
		r.logger.Warn("schema directory missing, hot reload disabled", slog.String("dir", r.dir))
		<-ctx.Done()
		return nil
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("registry: start watcher: %w", err)
	}
	defer watcher.Close()

	if err := watcher.Add(r.dir); err != nil {
		return fmt.Errorf("registry: watch %s: %w", r.dir, err)
	}

	var pending <-chan time.Time
	for {
		select {
		case <-ctx.Done():
			return nil
		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if !event.Op.Has(fsnotify.Create) && !event.Op.Has(fsnotify.Write) &&
				!event.Op.Has(fsnotify.Remove) && !event.Op.Has(fsnotify.Rename) {
				continue
			}
			pending = time.After(reloadDebounce)
		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			r.logger.Warn("schema watcher error", slog.String("error", err.Error()))
		case <-pending:
			pending = nil
			if err := r.Reload(); err != nil {
				r.logger.Warn("schema reload failed, keeping previous packs", slog.String("error", err.Error()))
				continue
			}
			r.logger.Info("constraint packs reloaded", slog.Int("datasets", r.Len()))
		}
	}
}
