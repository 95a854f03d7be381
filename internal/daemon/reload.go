package daemon

import (
	"context"
	"path/filepath"

	"github.com/fsnotify/fsnotify"
	"github.com/omnish-sh/omnish/internal/config"
	"github.com/omnish-sh/omnish/internal/logger"
)

// watchConfig reloads configPath on every write/create event and swaps in a
// freshly resolved LLM backend. Only the backend is hot-reloadable: the
// listening socket and shell settings take effect on the next process start.
func (d *Daemon) watchConfig(ctx context.Context, configPath string) {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		logger.Warn("config reload watcher unavailable", "err", err)
		return
	}
	defer watcher.Close()

	// Watch the containing directory rather than the file itself: editors
	// commonly replace a file via rename-into-place, which drops the original
	// inode (and any watch on it) without firing a Write event.
	dir := filepath.Dir(configPath)
	if err := watcher.Add(dir); err != nil {
		logger.Warn("config reload watcher add failed", "dir", dir, "err", err)
		return
	}

	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-watcher.Events:
			if !ok {
				return
			}
			if ev.Name != configPath || !(ev.Has(fsnotify.Write) || ev.Has(fsnotify.Create)) {
				continue
			}
			cfg, err := config.Load(configPath)
			if err != nil {
				logger.Warn("config reload failed", "err", err)
				continue
			}
			cfg.ApplyDefaults()
			d.reloadBackend(cfg)
		case err, ok := <-watcher.Errors:
			if !ok {
				return
			}
			logger.Warn("config reload watcher error", "err", err)
		}
	}
}
