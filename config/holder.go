// Package config provides configuration loading and hot reload.
package config

import (
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"reflect"
	"sync"
	"syscall"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/rs/zerolog"
)

// reloadDelay coalesces the bursts of events editors produce for one save.
const reloadDelay = 100 * time.Millisecond

// Holder provides thread-safe access to configuration with hot reload support.
type Holder struct {
	mu       sync.RWMutex
	config   *Config
	onChange []func(*Config)
	onReload []func(error)

	// reloading serializes Reload so listeners observe reloads in order.
	reloading sync.Mutex

	path     string
	logger   zerolog.Logger
	watcher  *fsnotify.Watcher
	done     chan struct{}
	stopOnce sync.Once
}

// NewHolder loads the configuration at path. Watching starts with
// WatchFile and WatchSignals.
func NewHolder(path string, logger zerolog.Logger) (*Holder, error) {
	cfg, err := Load(path)
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	abs, err := filepath.Abs(path)
	if err != nil {
		return nil, fmt.Errorf("absolute path: %w", err)
	}
	return &Holder{
		config: cfg,
		path:   abs,
		logger: logger.With().Str("config", abs).Logger(),
		done:   make(chan struct{}),
	}, nil
}

// Get returns the current configuration.
func (h *Holder) Get() *Config {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.config
}

// Path returns the absolute path of the config file.
func (h *Holder) Path() string { return h.path }

// OnChange registers fn to run with every successfully reloaded config.
func (h *Holder) OnChange(fn func(*Config)) {
	h.mu.Lock()
	h.onChange = append(h.onChange, fn)
	h.mu.Unlock()
}

// OnReload registers a callback run after every reload attempt with its
// error, nil on success.
func (h *Holder) OnReload(fn func(error)) {
	h.mu.Lock()
	h.onReload = append(h.onReload, fn)
	h.mu.Unlock()
}

// Reload reads the file again. On failure the previous config stays in
// effect and the error is returned.
func (h *Holder) Reload() error {
	h.reloading.Lock()
	defer h.reloading.Unlock()

	next, err := Load(h.path)
	if err != nil {
		h.logger.Error().Err(err).Msg("config reload failed, keeping previous config")
		h.finish(err)
		return fmt.Errorf("reload config: %w", err)
	}

	h.mu.Lock()
	prev := h.config
	h.config = next
	changed := append([]func(*Config){}, h.onChange...)
	h.mu.Unlock()

	if prev.Logging.Level != next.Logging.Level {
		h.logger.Info().
			Str("old", prev.Logging.Level).
			Str("new", next.Logging.Level).
			Msg("log level changed")
	}
	for _, field := range RestartRequired(prev, next) {
		h.logger.Warn().Str("field", field).Msg("changed field requires a restart")
	}

	for _, fn := range changed {
		fn(next)
	}
	h.finish(nil)
	h.logger.Info().Msg("configuration reloaded")
	return nil
}

func (h *Holder) finish(err error) {
	h.mu.RLock()
	listeners := append([]func(error){}, h.onReload...)
	h.mu.RUnlock()
	for _, fn := range listeners {
		fn(err)
	}
}

// WatchFile reloads whenever the config file is written or replaced.
// The parent directory is watched so atomic saves are seen.
func (h *Holder) WatchFile() error {
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("create watcher: %w", err)
	}
	if err := w.Add(filepath.Dir(h.path)); err != nil {
		w.Close()
		return fmt.Errorf("watch directory: %w", err)
	}
	h.watcher = w

	go h.watch(w)
	h.logger.Debug().Msg("watching config file")
	return nil
}

func (h *Holder) watch(w *fsnotify.Watcher) {
	var (
		timer   *time.Timer
		pending <-chan time.Time
	)
	for {
		select {
		case ev, ok := <-w.Events:
			if !ok {
				return
			}
			if filepath.Clean(ev.Name) != h.path || !ev.Has(fsnotify.Write) && !ev.Has(fsnotify.Create) {
				continue
			}
			if timer == nil {
				timer = time.NewTimer(reloadDelay)
			} else {
				timer.Reset(reloadDelay)
			}
			pending = timer.C

		case <-pending:
			pending = nil
			h.Reload()

		case err, ok := <-w.Errors:
			if !ok {
				return
			}
			h.logger.Error().Err(err).Msg("config watcher error")

		case <-h.done:
			if timer != nil {
				timer.Stop()
			}
			return
		}
	}
}

// WatchSignals reloads on SIGHUP until Stop.
func (h *Holder) WatchSignals() {
	hup := make(chan os.Signal, 1)
	signal.Notify(hup, syscall.SIGHUP)

	go func() {
		defer signal.Stop(hup)
		for {
			select {
			case <-hup:
				h.logger.Info().Msg("SIGHUP received")
				h.Reload()
			case <-h.done:
				return
			}
		}
	}()
}

// Stop ends file and signal watching. It is safe to call more than once.
func (h *Holder) Stop() {
	h.stopOnce.Do(func() {
		close(h.done)
		if h.watcher != nil {
			h.watcher.Close()
		}
	})
}

// field describes one config setting and how to tell it changed.
type field struct {
	name    string
	changed func(a, b *Config) bool
}

var restartFields = []field{
	{"definitions.paths", func(a, b *Config) bool { return !reflect.DeepEqual(a.Definitions.Paths, b.Definitions.Paths) }},
	{"definitions.watch", func(a, b *Config) bool { return a.Definitions.Watch != b.Definitions.Watch }},
	{"runtime.name", func(a, b *Config) bool { return a.Runtime.Name != b.Runtime.Name }},
	{"runtime.version", func(a, b *Config) bool { return a.Runtime.Version != b.Runtime.Version }},
	{"cache.driver", func(a, b *Config) bool { return a.Cache.Driver != b.Cache.Driver }},
	{"cache.dsn", func(a, b *Config) bool { return a.Cache.DSN != b.Cache.DSN }},
	{"remote.timeout", func(a, b *Config) bool { return a.Remote.Timeout != b.Remote.Timeout }},
	{"remote.headers", func(a, b *Config) bool { return !reflect.DeepEqual(a.Remote.Headers, b.Remote.Headers) }},
	{"server.host", func(a, b *Config) bool { return a.Server.Host != b.Server.Host }},
	{"server.port", func(a, b *Config) bool { return a.Server.Port != b.Server.Port }},
	{"server.path", func(a, b *Config) bool { return a.Server.Path != b.Server.Path }},
	{"logging.format", func(a, b *Config) bool { return a.Logging.Format != b.Logging.Format }},
	{"metrics.enabled", func(a, b *Config) bool { return a.Metrics.Enabled != b.Metrics.Enabled }},
	{"values", func(a, b *Config) bool { return !reflect.DeepEqual(a.Values, b.Values) }},
}

// RestartRequired lists the fields that differ between a and b and only
// take effect after a restart.
func RestartRequired(a, b *Config) []string {
	var out []string
	for _, f := range restartFields {
		if f.changed(a, b) {
			out = append(out, f.name)
		}
	}
	return out
}

// ReloadableFields returns which fields can be changed without restart.
func ReloadableFields() []string {
	return []string{"logging.level"}
}

// NonReloadableFields returns which fields require a restart.
func NonReloadableFields() []string {
	names := make([]string, len(restartFields))
	for i, f := range restartFields {
		names[i] = f.name
	}
	return names
}
