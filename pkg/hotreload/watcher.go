package hotreload

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
)

// WatcherConfig configures a Watcher.
type WatcherConfig struct {
	// Files are watched by name. Their directories are watched so that
	// editors replacing a file by rename are noticed.
	Files []string
	// Debounce period for rapid changes.
	Debounce time.Duration
	// OnReload is called after every reload attempt.
	OnReload func(path string, err error)
	Logger   *slog.Logger
}

// WatcherStats tracks reload statistics.
type WatcherStats struct {
	ReloadsTotal   int64     `json:"reloads_total"`
	ReloadsSuccess int64     `json:"reloads_success"`
	ReloadsFailed  int64     `json:"reloads_failed"`
	LastReload     time.Time `json:"last_reload,omitempty"`
	LastError      string    `json:"last_error,omitempty"`
}

// Watcher reloads a value whenever one of its files changes. A failed
// reload keeps the previous value.
type Watcher[T any] struct {
	files    map[string]bool
	dirs     []string
	load     func() (*T, error)
	debounce time.Duration
	onReload func(path string, err error)
	logger   *slog.Logger

	value *Reloadable[T]

	mu    sync.Mutex
	stats WatcherStats
}

// NewWatcher loads the initial value and prepares to watch cfg.Files.
func NewWatcher[T any](cfg WatcherConfig, load func() (*T, error)) (*Watcher[T], error) {
	if len(cfg.Files) == 0 {
		return nil, fmt.Errorf("no files to watch")
	}
	if load == nil {
		return nil, fmt.Errorf("loader is required")
	}
	initial, err := load()
	if err != nil {
		return nil, fmt.Errorf("initial load: %w", err)
	}

	w := &Watcher[T]{
		files:    make(map[string]bool),
		load:     load,
		debounce: cfg.Debounce,
		onReload: cfg.OnReload,
		logger:   cfg.Logger,
		value:    NewReloadable(initial),
	}
	if w.debounce <= 0 {
		w.debounce = 100 * time.Millisecond
	}
	if w.logger == nil {
		w.logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}

	seenDir := map[string]bool{}
	for _, f := range cfg.Files {
		if f == "" {
			continue
		}
		abs, err := filepath.Abs(f)
		if err != nil {
			return nil, err
		}
		w.files[abs] = true
		if dir := filepath.Dir(abs); !seenDir[dir] {
			seenDir[dir] = true
			w.dirs = append(w.dirs, dir)
		}
	}
	return w, nil
}

// Current returns the latest successfully loaded value.
func (w *Watcher[T]) Current() *T { return w.value.Get() }

// Version counts successful reloads.
func (w *Watcher[T]) Version() int64 { return w.value.Version() }

// Run watches until ctx is done.
func (w *Watcher[T]) Run(ctx context.Context) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("creating watcher: %w", err)
	}
	defer watcher.Close()

	for _, dir := range w.dirs {
		if err := watcher.Add(dir); err != nil {
			return fmt.Errorf("watching %s: %w", dir, err)
		}
	}

	var pending string
	var timer *time.Timer
	var fire <-chan time.Time

	for {
		select {
		case <-ctx.Done():
			if timer != nil {
				timer.Stop()
			}
			return nil

		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if event.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename) == 0 {
				continue
			}
			name, err := filepath.Abs(event.Name)
			if err != nil || !w.files[name] {
				continue
			}
			pending = name
			if timer == nil {
				timer = time.NewTimer(w.debounce)
			} else {
				timer.Reset(w.debounce)
			}
			fire = timer.C

		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			w.logger.Warn("hotreload: watcher error", "error", err)

		case <-fire:
			fire = nil
			w.reload(pending)
		}
	}
}

func (w *Watcher[T]) reload(path string) {
	v, err := w.load()

	w.mu.Lock()
	w.stats.ReloadsTotal++
	if err != nil {
		w.stats.ReloadsFailed++
		w.stats.LastError = err.Error()
	} else {
		w.stats.ReloadsSuccess++
		w.stats.LastReload = time.Now()
	}
	w.mu.Unlock()

	if err != nil {
		w.logger.Warn("hotreload: reload failed, keeping previous value", "path", path, "error", err)
	} else {
		w.value.Swap(v)
		w.logger.Info("hotreload: reloaded", "path", path)
	}
	if w.onReload != nil {
		w.onReload(path, err)
	}
}

// Stats returns the current watcher statistics.
func (w *Watcher[T]) Stats() WatcherStats {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.stats
}
