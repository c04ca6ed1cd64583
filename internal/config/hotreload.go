package config

import (
	"log/slog"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
)

// ChangeHandler is called when the config file changes. It receives both
// the previous and the newly loaded config so a caller can react only to
// the sections it owns (the scheduler loop cares about PollInterval/
// LeaseTTL, the mailer only about SMTP, and so on) instead of tearing
// everything down on every reload.
type ChangeHandler func(old, next *Config)

// reloadDebounce absorbs editors that save a config file as several rapid
// writes (truncate, then write, then rename) so a single edit never fires
// more than one reload.
const reloadDebounce = 300 * time.Millisecond

// Watcher watches the scheduler's config file for changes and reloads it,
// debounced so rapid successive writes collapse into one reload.
type Watcher struct {
	path     string
	watcher  *fsnotify.Watcher
	current  *Config
	handlers []ChangeHandler
	stopChan chan struct{}
	mu       sync.Mutex
}

// NewWatcher creates a config file watcher seeded with the config already
// loaded at startup, so the first detected change has something to diff
// against.
func NewWatcher(configPath string, initial *Config) (*Watcher, error) {
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}

	return &Watcher{
		path:    configPath,
		watcher: w,
		current: initial,
	}, nil
}

// OnChange registers a handler to be called when config changes.
func (cw *Watcher) OnChange(handler ChangeHandler) {
	cw.mu.Lock()
	defer cw.mu.Unlock()
	cw.handlers = append(cw.handlers, handler)
}

// Start begins watching the config file for changes.
func (cw *Watcher) Start() error {
	if err := cw.watcher.Add(cw.path); err != nil {
		return err
	}

	cw.stopChan = make(chan struct{})
	go cw.watchLoop()

	slog.Info("config watcher started", "path", cw.path)
	return nil
}

// Stop halts the file watcher.
func (cw *Watcher) Stop() {
	if cw.stopChan != nil {
		close(cw.stopChan)
	}
	cw.watcher.Close()
	slog.Info("config watcher stopped")
}

func (cw *Watcher) watchLoop() {
	var debounceTimer *time.Timer

	for {
		select {
		case <-cw.stopChan:
			if debounceTimer != nil {
				debounceTimer.Stop()
			}
			return

		case event, ok := <-cw.watcher.Events:
			if !ok {
				return
			}

			if !event.Has(fsnotify.Write) && !event.Has(fsnotify.Create) {
				continue
			}

			// Debounce: reset timer on each change
			if debounceTimer != nil {
				debounceTimer.Stop()
			}
			debounceTimer = time.AfterFunc(reloadDebounce, func() {
				cw.reload()
			})

		case err, ok := <-cw.watcher.Errors:
			if !ok {
				return
			}
			slog.Error("config watcher error", "error", err)
		}
	}
}

func (cw *Watcher) reload() {
	slog.Info("config file changed, reloading", "path", cw.path)

	next, err := Load(cw.path)
	if err != nil {
		slog.Error("config reload failed", "error", err)
		return
	}

	cw.mu.Lock()
	old := cw.current
	cw.current = next
	handlers := make([]ChangeHandler, len(cw.handlers))
	copy(handlers, cw.handlers)
	cw.mu.Unlock()

	logChangedSections(old, next)
	for _, h := range handlers {
		h(old, next)
	}

	slog.Info("config reloaded successfully")
}

// logChangedSections reports which top-level concerns actually moved, so an
// operator watching logs can tell a poll-interval tweak apart from a
// credential rotation without diffing the file themselves.
func logChangedSections(old, next *Config) {
	if old == nil {
		return
	}
	if old.Postgres.DSN != next.Postgres.DSN {
		slog.Info("config reload: postgres DSN changed")
	}
	if old.Redis != next.Redis {
		slog.Info("config reload: redis settings changed")
	}
	if old.SMTP != next.SMTP {
		slog.Info("config reload: smtp settings changed")
	}
	if old.Scheduler != next.Scheduler {
		slog.Info("config reload: scheduler tunables changed",
			"poll_interval", next.Scheduler.PollInterval,
			"lease_ttl", next.Scheduler.LeaseTTL)
	}
}
