package config

import (
	"fmt"
	"log/slog"
	"path/filepath"
	"sync/atomic"
	"time"

	"github.com/fsnotify/fsnotify"
)

// reloadDebounce coalesces the burst of fsnotify events editors emit per save.
const reloadDebounce = 250 * time.Millisecond

// Runtime holds the live configuration and applies file-change reloads.
// Only the reloadable subset (admin allowlist, log level) is swapped at
// runtime; structural settings such as the data directory require a restart.
type Runtime struct {
	current atomic.Pointer[Config]
	logger  *slog.Logger
}

// NewRuntime wraps an initial configuration.
func NewRuntime(cfg Config) *Runtime {
	r := &Runtime{logger: slog.Default().With("component", "config")}
	r.current.Store(&cfg)
	return r
}

// Current returns the live configuration snapshot.
func (r *Runtime) Current() Config {
	return *r.current.Load()
}

// IsAdmin checks the live admin allowlist.
func (r *Runtime) IsAdmin(userID int64) bool {
	return r.Current().IsAdmin(userID)
}

// Watch re-loads the file on change and swaps the reloadable subset in. The
// returned stop function releases the watcher.
func (r *Runtime) Watch(path string) (func(), error) {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("config: start watcher: %w", err)
	}
	// Watch the directory, not the file: editors replace files via rename,
	// which drops a direct file watch.
	if err := watcher.Add(filepath.Dir(path)); err != nil {
		_ = watcher.Close()
		return nil, fmt.Errorf("config: watch %s: %w", path, err)
	}

	done := make(chan struct{})
	go r.watchLoop(watcher, path, done)
	return func() {
		_ = watcher.Close()
		<-done
	}, nil
}

func (r *Runtime) watchLoop(watcher *fsnotify.Watcher, path string, done chan<- struct{}) {
	defer close(done)
	var pending *time.Timer
	target := filepath.Clean(path)
	for {
		select {
		case event, ok := <-watcher.Events:
			if !ok {
				return
			}
			if filepath.Clean(event.Name) != target {
				continue
			}
			if !event.Has(fsnotify.Write) && !event.Has(fsnotify.Create) && !event.Has(fsnotify.Rename) {
				continue
			}
			if pending != nil {
				pending.Stop()
			}
			pending = time.AfterFunc(reloadDebounce, func() { r.reload(path) })
		case err, ok := <-watcher.Errors:
			if !ok {
				return
			}
			r.logger.Warn("config watcher error", "error", err)
		}
	}
}

func (r *Runtime) reload(path string) {
	next, err := Load(path)
	if err != nil {
		r.logger.Warn("config reload rejected", "path", path, "error", err)
		return
	}
	updated := r.Current()
	updated.Admins = next.Admins
	updated.Log = next.Log
	r.current.Store(&updated)
	r.logger.Info("config reloaded", "path", path, "admins", len(updated.Admins), "log_level", updated.Log.Level)
}
