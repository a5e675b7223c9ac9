package config

import (
	"context"
	"errors"
	"math/rand"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	logx "agentcron/pkg/logx"
)

const (
	reloadDebounce  = 250 * time.Millisecond
	validateTimeout = 5 * time.Second
	watchBackoffMin = 250 * time.Millisecond
	watchBackoffMax = 5 * time.Second
)

// watchOps are the events that may mean the file content changed. Editors
// often save by writing a temp file and renaming it over the original.
const watchOps = fsnotify.Write | fsnotify.Create | fsnotify.Rename | fsnotify.Remove | fsnotify.Chmod

// reload parses the file and, when it changed and passes validation, commits
// and publishes it.
func (m *Manager) reload(ctx context.Context) {
	cfg, err := m.Parse()
	if err != nil {
		m.log.Warn("config reload rejected", logx.String("path", m.path), logx.Err(err))
		return
	}
	sum := hashConfig(cfg)
	m.mu.RLock()
	same := sum != 0 && sum == m.lastHash
	m.mu.RUnlock()
	if same {
		m.log.Debug("config unchanged; skipping publish", logx.String("path", m.path))
		return
	}
	if err := m.validate(ctx, cfg); err != nil {
		m.log.Warn("config rejected by validator", logx.String("path", m.path), logx.Err(err))
		return
	}
	m.Commit(cfg)
	m.publish(cfg)
	m.log.Info("config reloaded", logx.String("path", m.path))
}

func (m *Manager) validate(ctx context.Context, cfg *Config) error {
	if m.validator == nil {
		return nil
	}
	vctx, cancel := context.WithTimeout(ctx, validateTimeout)
	defer cancel()
	return m.validator(vctx, cfg)
}

// debouncer collapses a burst of Trigger calls into one fn call after the
// burst has been quiet for delay.
type debouncer struct {
	mu    sync.Mutex
	delay time.Duration
	fn    func()
	t     *time.Timer
}

func (d *debouncer) Trigger() {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.t == nil {
		d.t = time.AfterFunc(d.delay, d.fn)
		return
	}
	d.t.Reset(d.delay)
}

func (d *debouncer) Stop() {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.t != nil {
		d.t.Stop()
	}
}

// backoff yields jittered, doubling delays between watcher restarts.
type backoff struct {
	rng *rand.Rand
	cur time.Duration
}

func newBackoff() *backoff {
	return &backoff{rng: rand.New(rand.NewSource(time.Now().UnixNano())), cur: watchBackoffMin}
}

func (b *backoff) Reset() { b.cur = watchBackoffMin }

// Sleep waits out the next delay. It reports false when ctx ended first.
func (b *backoff) Sleep(ctx context.Context) bool {
	d := b.cur + time.Duration(b.rng.Int63n(int64(b.cur/2)+1))
	b.cur = min(b.cur*2, watchBackoffMax)
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}

// Watch reloads the file on change until ctx ends. The directory is watched
// rather than the file so replace-on-save keeps working, and a broken
// watcher is recreated with backoff.
func (m *Manager) Watch(ctx context.Context) error {
	dir, file := filepath.Dir(m.path), filepath.Base(m.path)
	deb := &debouncer{delay: reloadDebounce, fn: func() { m.reload(ctx) }}
	defer deb.Stop()
	bo := newBackoff()

	for ctx.Err() == nil {
		w, err := openWatcher(dir)
		if err != nil {
			m.log.Warn("config watch setup failed", logx.String("dir", dir), logx.Err(err))
			if !bo.Sleep(ctx) {
				return nil
			}
			continue
		}
		bo.Reset()
		m.log.Debug("config watcher started", logx.String("dir", dir), logx.String("file", file))

		ended := m.consume(ctx, w, file, deb.Trigger)
		_ = w.Close()
		if ended {
			return nil
		}
		m.log.Warn("config watcher stopped; restarting", logx.String("dir", dir))
		if !bo.Sleep(ctx) {
			return nil
		}
	}
	return nil
}

func openWatcher(dir string) (*fsnotify.Watcher, error) {
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	if err := w.Add(dir); err != nil {
		_ = w.Close()
		return nil, err
	}
	return w, nil
}

// consume drains watcher events. It returns true when ctx ended and false
// when the watcher broke.
func (m *Manager) consume(ctx context.Context, w *fsnotify.Watcher, file string, changed func()) bool {
	for {
		select {
		case <-ctx.Done():
			return true
		case ev, ok := <-w.Events:
			if !ok {
				return false
			}
			if ev.Op&watchOps != 0 && strings.EqualFold(filepath.Base(ev.Name), file) {
				changed()
			}
		case err, ok := <-w.Errors:
			switch {
			case !ok || errors.Is(err, fsnotify.ErrClosed):
				return false
			case err == nil:
			case errors.Is(err, fsnotify.ErrEventOverflow):
				m.log.Warn("config watch overflow; forcing reload", logx.Err(err))
				changed()
			default:
				m.log.Warn("config watch error", logx.Err(err))
			}
		}
	}
}
