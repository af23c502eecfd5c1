// Package publish pushes engine snapshots to displays outside the engine:
// a widget data file, the terminal title and the log.
package publish

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/charmbracelet/log"
	"github.com/fsnotify/fsnotify"

	"github.com/dgnsrekt/versecast/internal/engine"
	"github.com/dgnsrekt/versecast/internal/voice"
)

// Widget is the JSON document other processes read.
type Widget struct {
	engine.Snapshot
	UpdatedAt time.Time `json:"updated_at"`
}

// Restore fills the fields omitted from JSON.
func (wd Widget) Restore() engine.Snapshot {
	s := wd.Snapshot
	s.State = engine.ParseState(s.StateName)
	if k, err := voice.ParseKind(s.VoiceName); err == nil {
		s.VoiceKind = k
	}
	return s
}

// WidgetStore writes the latest snapshot to a file. Publish never blocks;
// intermediate snapshots are coalesced.
type WidgetStore struct {
	path   string
	now    func() time.Time
	logger *log.Logger

	mu      sync.Mutex
	latest  *engine.Snapshot
	wake    chan struct{}
	closed  chan struct{}
	done    chan struct{}
	closing sync.Once
}

// NewWidgetStore starts a writer for path.
func NewWidgetStore(path string, logger *log.Logger) (*WidgetStore, error) {
	if path == "" {
		return nil, errors.New("widget path is required")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("create widget directory: %w", err)
	}
	if logger == nil {
		logger = log.Default().WithPrefix("publish")
	}
	w := &WidgetStore{
		path:   path,
		now:    time.Now,
		logger: logger,
		wake:   make(chan struct{}, 1),
		closed: make(chan struct{}),
		done:   make(chan struct{}),
	}
	go w.loop()
	return w, nil
}

// Publish implements engine.Publisher.
func (w *WidgetStore) Publish(s engine.Snapshot) {
	w.mu.Lock()
	w.latest = &s
	w.mu.Unlock()
	select {
	case w.wake <- struct{}{}:
	default:
	}
}

// Close writes any pending snapshot and stops the writer.
func (w *WidgetStore) Close() error {
	w.closing.Do(func() { close(w.closed) })
	<-w.done
	return nil
}

func (w *WidgetStore) loop() {
	defer close(w.done)
	for {
		select {
		case <-w.wake:
			w.flush()
		case <-w.closed:
			w.flush()
			return
		}
	}
}

func (w *WidgetStore) flush() {
	w.mu.Lock()
	s := w.latest
	w.latest = nil
	w.mu.Unlock()
	if s == nil {
		return
	}
	if err := writeWidget(w.path, Widget{Snapshot: *s, UpdatedAt: w.now()}); err != nil {
		w.logger.Warn("widget write failed", "path", w.path, "err", err)
	}
}

func writeWidget(path string, wd Widget) error {
	data, err := json.MarshalIndent(wd, "", "  ")
	if err != nil {
		return err
	}
	tmp, err := os.CreateTemp(filepath.Dir(path), ".widget-*")
	if err != nil {
		return err
	}
	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		_ = os.Remove(tmp.Name())
		return err
	}
	if err := tmp.Close(); err != nil {
		_ = os.Remove(tmp.Name())
		return err
	}
	return os.Rename(tmp.Name(), path)
}

// ReadWidget reads the widget file. A missing file returns os.ErrNotExist.
func ReadWidget(path string) (Widget, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Widget{}, err
	}
	var wd Widget
	if err := json.Unmarshal(data, &wd); err != nil {
		return Widget{}, fmt.Errorf("decode widget: %w", err)
	}
	return wd, nil
}

// WatchWidget sends the widget's contents now and after every change until
// ctx ends.
func WatchWidget(ctx context.Context, path string) (<-chan Widget, error) {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("create watcher: %w", err)
	}
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		_ = watcher.Close()
		return nil, err
	}
	if err := watcher.Add(dir); err != nil {
		_ = watcher.Close()
		return nil, fmt.Errorf("watch %s: %w", dir, err)
	}

	out := make(chan Widget, 1)
	go func() {
		defer close(out)
		defer watcher.Close()

		send := func() bool {
			wd, err := ReadWidget(path)
			if err != nil {
				return true
			}
			select {
			case out <- wd:
				return true
			case <-ctx.Done():
				return false
			}
		}

		if !send() {
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
				if filepath.Clean(ev.Name) != filepath.Clean(path) {
					continue
				}
				if ev.Has(fsnotify.Create) || ev.Has(fsnotify.Write) || ev.Has(fsnotify.Rename) {
					if !send() {
						return
					}
				}
			case _, ok := <-watcher.Errors:
				if !ok {
					return
				}
			}
		}
	}()
	return out, nil
}

var _ engine.Publisher = (*WidgetStore)(nil)
