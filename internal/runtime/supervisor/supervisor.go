package supervisor

import (
	"context"
	"errors"
	"fmt"
	"runtime/debug"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	logx "agentcron/pkg/logx"
)

// Supervisor runs named goroutines under one cancellable context.
// Panics are recovered and recorded; the first error is kept for health output.
type Supervisor struct {
	ctx    context.Context
	cancel context.CancelFunc

	log         logx.Logger
	cancelOnErr bool

	errOnce  sync.Once
	firstErr atomic.Value // error

	wg       sync.WaitGroup
	doneOnce sync.Once
	doneCh   chan struct{}

	mu    sync.Mutex
	stats map[string]*GoroutineStats
}

type Option func(*Supervisor)

// GoroutineStats aggregates every goroutine started under one name.
type GoroutineStats struct {
	Name        string    `json:"name"`
	Active      int64     `json:"active"`
	Started     uint64    `json:"started"`
	Restarts    uint64    `json:"restarts"`
	Panics      uint64    `json:"panics"`
	LastStartAt time.Time `json:"lastStartAt"`
	LastErr     string    `json:"lastErr,omitempty"`
	LastErrAt   time.Time `json:"lastErrAt,omitzero"`
}

type Snapshot struct {
	FirstError string           `json:"firstError,omitempty"`
	Goroutines []GoroutineStats `json:"goroutines"`
}

func WithLogger(log logx.Logger) Option {
	return func(s *Supervisor) { s.log = log }
}

// WithCancelOnError cancels the supervisor context on the first goroutine error.
func WithCancelOnError(enabled bool) Option {
	return func(s *Supervisor) { s.cancelOnErr = enabled }
}

func New(parent context.Context, opts ...Option) *Supervisor {
	ctx, cancel := context.WithCancel(parent)
	s := &Supervisor{
		ctx:    ctx,
		cancel: cancel,
		log:    logx.Nop(),
		doneCh: make(chan struct{}),
		stats:  map[string]*GoroutineStats{},
	}
	for _, o := range opts {
		o(s)
	}
	if s.log.IsZero() {
		s.log = logx.Nop()
	}
	return s
}

func (s *Supervisor) Context() context.Context { return s.ctx }

// Cancel cancels the context without waiting.
func (s *Supervisor) Cancel() { s.cancel() }

func (s *Supervisor) Err() error {
	if err, ok := s.firstErr.Load().(error); ok {
		return err
	}
	return nil
}

func (s *Supervisor) setErr(err error) {
	if err == nil {
		return
	}
	s.errOnce.Do(func() { s.firstErr.Store(err) })
}

func (s *Supervisor) fail(err error) {
	s.setErr(err)
	if s.cancelOnErr {
		s.cancel()
	}
}

func (s *Supervisor) Snapshot() Snapshot {
	if s == nil {
		return Snapshot{}
	}
	var snap Snapshot
	if err := s.Err(); err != nil {
		snap.FirstError = err.Error()
	}
	s.mu.Lock()
	snap.Goroutines = make([]GoroutineStats, 0, len(s.stats))
	for _, st := range s.stats {
		snap.Goroutines = append(snap.Goroutines, *st)
	}
	s.mu.Unlock()
	sort.Slice(snap.Goroutines, func(i, j int) bool { return snap.Goroutines[i].Name < snap.Goroutines[j].Name })
	return snap
}

func (s *Supervisor) note(name string, fn func(st *GoroutineStats)) {
	s.mu.Lock()
	st := s.stats[name]
	if st == nil {
		st = &GoroutineStats{Name: name}
		s.stats[name] = st
	}
	fn(st)
	s.mu.Unlock()
}

func (s *Supervisor) noteStart(name string, restart bool) {
	s.note(name, func(st *GoroutineStats) {
		st.Active++
		st.Started++
		if restart {
			st.Restarts++
		}
		st.LastStartAt = time.Now()
	})
}

func (s *Supervisor) noteStop(name string, err error) {
	s.note(name, func(st *GoroutineStats) {
		if st.Active > 0 {
			st.Active--
		}
		if err != nil {
			st.LastErr = err.Error()
			st.LastErrAt = time.Now()
		}
	})
}

// attempt runs fn once under the stats and panic guard. It returns nil for
// a clean return or a cancellation, otherwise the error wrapped with name.
func (s *Supervisor) attempt(name string, restart bool, fn func(ctx context.Context) error) (err error) {
	s.noteStart(name, restart)
	defer func() {
		if r := recover(); r != nil {
			s.note(name, func(st *GoroutineStats) { st.Panics++ })
			s.log.Error("goroutine panicked", logx.String("name", name), logx.Any("panic", r), logx.Stack(string(debug.Stack())))
			err = fmt.Errorf("panic: %v", r)
		}
		if err != nil && !errors.Is(err, context.Canceled) {
			err = fmt.Errorf("%s: %w", name, err)
		} else {
			err = nil
		}
		s.noteStop(name, err)
	}()
	return fn(s.ctx)
}

// Go runs fn once. A non-cancellation error is recorded as the supervisor error.
func (s *Supervisor) Go(name string, fn func(ctx context.Context) error) {
	if fn == nil {
		return
	}
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		s.log.Debug("goroutine started", logx.String("name", name))
		if err := s.attempt(name, false, fn); err != nil {
			s.fail(err)
		}
		s.log.Debug("goroutine stopped", logx.String("name", name))
	}()
}

type RestartOption func(*restartPolicy)

type restartPolicy struct {
	minBackoff      time.Duration
	maxBackoff      time.Duration
	healthyAfter    time.Duration
	maxRestarts     int // <=0 means unlimited
	publishFirstErr bool
}

// WithRestartBackoff sets the exponential backoff window between restarts.
func WithRestartBackoff(lo, hi time.Duration) RestartOption {
	return func(p *restartPolicy) {
		if lo > 0 {
			p.minBackoff = lo
		}
		if hi > 0 {
			p.maxBackoff = hi
		}
	}
}

// WithMaxRestarts gives up after n restarts. The first run is not counted.
func WithMaxRestarts(n int) RestartOption { return func(p *restartPolicy) { p.maxRestarts = n } }

// WithPublishFirstError records the first failure as the supervisor error while still restarting.
func WithPublishFirstError(enabled bool) RestartOption {
	return func(p *restartPolicy) { p.publishFirstErr = enabled }
}

// GoRestart runs fn until it returns nil or the context ends, restarting it
// with jittered exponential backoff after errors and panics.
func (s *Supervisor) GoRestart(name string, fn func(ctx context.Context) error, opts ...RestartOption) {
	if fn == nil {
		return
	}
	p := restartPolicy{minBackoff: 250 * time.Millisecond, maxBackoff: 30 * time.Second, healthyAfter: 30 * time.Second}
	for _, o := range opts {
		o(&p)
	}
	p.maxBackoff = max(p.maxBackoff, p.minBackoff)

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		s.restartLoop(name, fn, p)
	}()
}

func (s *Supervisor) restartLoop(name string, fn func(ctx context.Context) error, p restartPolicy) {
	delay := p.minBackoff
	for n := 0; s.ctx.Err() == nil; n++ {
		began := time.Now()
		err := s.attempt(name, n > 0, fn)
		if err == nil || s.ctx.Err() != nil {
			return
		}
		if p.publishFirstErr {
			s.setErr(err)
		}
		if p.maxRestarts > 0 && n >= p.maxRestarts {
			s.log.Error("goroutine gave up", logx.String("name", name), logx.Int("restarts", n), logx.Err(err))
			s.fail(err)
			return
		}
		if time.Since(began) >= p.healthyAfter {
			delay = p.minBackoff
		}
		wait := jitter(delay)
		s.log.Warn("goroutine restarting", logx.String("name", name), logx.Duration("backoff", wait), logx.Err(err))
		t := time.NewTimer(wait)
		select {
		case <-s.ctx.Done():
			t.Stop()
			return
		case <-t.C:
		}
		delay = min(delay*2, p.maxBackoff)
	}
}

// jitter adds up to 20% to d.
func jitter(d time.Duration) time.Duration {
	j := int64(d) / 5
	if j <= 0 {
		return d
	}
	return d + time.Duration(time.Now().UnixNano()%(j+1))
}

// Stop cancels the context and waits for every goroutine, bounded by ctx.
func (s *Supervisor) Stop(ctx context.Context) error {
	s.cancel()
	return s.Wait(ctx)
}

func (s *Supervisor) Wait(ctx context.Context) error {
	s.doneOnce.Do(func() {
		go func() {
			s.wg.Wait()
			close(s.doneCh)
		}()
	})
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-s.doneCh:
		return s.Err()
	}
}
