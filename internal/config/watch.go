package config

import (
	"log/slog"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"
)

// reloadSettleDelay coalesces the burst of write events editors produce when
// saving a file.
const reloadSettleDelay = 250 * time.Millisecond

// Watch monitors the config file and reloads it when it changes on disk.
// onReload is called after each successful reload. The watcher runs until
// stopCh is closed. Our own saveLocked writes also trigger a reload, which
// is harmless: the values are already current.
func (c *Config) Watch(stopCh <-chan struct{}, onReload func()) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}

	// Watch the directory, not the file: editors and atomic writers replace
	// the file, which would silently drop a file-level watch.
	dir := filepath.Dir(c.filePath)
	if err := watcher.Add(dir); err != nil {
		_ = watcher.Close()
		return err
	}

	base := filepath.Base(c.filePath)

	go func() {
		defer watcher.Close() //nolint:errcheck // Shutdown path, close error not actionable

		var settle *time.Timer
		var settleCh <-chan time.Time

		for {
			select {
			case event, ok := <-watcher.Events:
				if !ok {
					return
				}
				if filepath.Base(event.Name) != base {
					continue
				}
				if event.Op&(fsnotify.Write|fsnotify.Create) == 0 {
					continue
				}
				if settle == nil {
					settle = time.NewTimer(reloadSettleDelay)
					settleCh = settle.C
				} else {
					settle.Reset(reloadSettleDelay)
				}

			case <-settleCh:
				settle = nil
				settleCh = nil
				if err := c.Reload(); err != nil {
					slog.Warn("config reload failed, keeping current values", "error", err)
					continue
				}
				slog.Info("config reloaded", "path", c.filePath)
				if onReload != nil {
					onReload()
				}

			case err, ok := <-watcher.Errors:
				if !ok {
					return
				}
				slog.Warn("config watcher error", "error", err)

			case <-stopCh:
				return
			}
		}
	}()

	return nil
}
