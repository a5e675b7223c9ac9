package scheduler

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	"agentcron/internal/task"
	logx "agentcron/pkg/logx"
)

// TaskLister is the slice of the task store the registry reads on Init.
type TaskLister interface {
	List(ctx context.Context) ([]task.Task, error)
}

// Executor runs one task to completion. ok is false when nothing ran or the run failed.
type Executor interface {
	Execute(ctx context.Context, id string) (sessionID string, ok bool)
}

type entry struct {
	id   cron.EntryID
	spec string
}

// Registry maps task ids to live cron entries. It holds at most one entry per id.
type Registry struct {
	mu sync.Mutex

	log   logx.Logger
	cfg   Config
	store TaskLister
	exec  Executor

	parser      cron.Parser
	initialized bool
	c           *cron.Cron
	loc         *time.Location
	entries     map[string]entry

	// runCtx is handed to fired jobs. It outlives Stop so in-flight runs finish.
	runCtx context.Context

	gate  runGate
	skips skipReporter
	now   func() time.Time
}

func NewRegistry(cfg Config, store TaskLister, exec Executor, log logx.Logger) *Registry {
	if log.IsZero() {
		log = logx.Nop()
	}
	return &Registry{
		cfg:   cfg,
		store: store,
		exec:  exec,
		log:   log,
		// SecondOptional allows both 5-field and 6-field (with seconds) cron specs.
		parser:  cron.NewParser(cron.SecondOptional | cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor),
		entries: map[string]entry{},
		runCtx:  context.Background(),
		now:     time.Now,
	}
}

// Validate parses spec without scheduling it.
func (r *Registry) Validate(spec string) error {
	_, err := r.parse(spec)
	return err
}

func (r *Registry) parse(spec string) (cron.Schedule, error) {
	s := strings.TrimSpace(spec)
	if s == "" {
		return nil, &ScheduleError{Spec: spec, Err: errors.New("expression required")}
	}
	sched, err := r.parser.Parse(s)
	if err != nil {
		return nil, &ScheduleError{Spec: spec, Err: err}
	}
	return sched, nil
}

// Init loads every enabled task and starts the cron loop. A second call is a no-op.
// Tasks whose stored cron no longer parses are logged and skipped.
func (r *Registry) Init(ctx context.Context) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.initialized {
		return nil
	}
	if !r.cfg.Enabled {
		r.initialized = true
		r.log.Info("scheduler disabled; no timers registered")
		return nil
	}

	tasks, err := r.store.List(ctx)
	if err != nil {
		return fmt.Errorf("load tasks: %w", err)
	}

	loc := r.loadLocationLocked()
	r.loc = loc
	r.runCtx = context.WithoutCancel(ctx)
	r.c = cron.New(
		cron.WithParser(r.parser),
		cron.WithLocation(loc),
		cron.WithLogger(cronLogger{log: r.log}),
		cron.WithChain(cron.Recover(cronLogger{log: r.log})),
	)
	r.entries = map[string]entry{}

	for _, t := range tasks {
		if !t.Enabled {
			continue
		}
		if err := r.addLocked(t); err != nil {
			r.log.Error("stored task has invalid cron; not scheduled",
				logx.Task(t.ID), logx.String("cron", t.Cron), logx.Err(err))
		}
	}
	r.c.Start()
	r.initialized = true
	r.log.Info("registry started", logx.String("tz", loc.String()), logx.Int("scheduled", len(r.entries)), logx.Int("tasks", len(tasks)))
	return nil
}

// Stop discards every timer and waits (bounded by ctx) for running jobs to return.
// A later Init rebuilds from the store.
func (r *Registry) Stop(ctx context.Context) {
	start := time.Now()
	r.mu.Lock()
	c := r.resetLocked()
	r.mu.Unlock()

	if c != nil {
		select {
		case <-c.Stop().Done():
		case <-ctx.Done():
			r.log.Warn("registry stop timed out; runs still in flight", logx.Int("inFlight", r.gate.count()))
		}
	}
	r.log.Info("registry stopped", logx.Duration("took", time.Since(start)))
}

// resetLocked returns the cron instance to stop, or nil. Call with r.mu held.
func (r *Registry) resetLocked() *cron.Cron {
	c := r.c
	r.c = nil
	r.entries = map[string]entry{}
	r.initialized = false
	return c
}

// Apply swaps the config. A timezone or enabled change on an initialized registry
// rebuilds every timer from the store.
func (r *Registry) Apply(ctx context.Context, cfg Config) error {
	r.mu.Lock()
	old := r.cfg
	r.cfg = cfg
	rebuild := r.initialized &&
		(strings.TrimSpace(old.Timezone) != strings.TrimSpace(cfg.Timezone) || old.Enabled != cfg.Enabled)
	var c *cron.Cron
	if rebuild {
		c = r.resetLocked()
	}
	r.mu.Unlock()

	if !rebuild {
		return nil
	}
	if c != nil {
		// In-flight jobs keep running; only future firings of the old loop stop.
		c.Stop()
	}
	r.log.Info("scheduler config changed; rebuilding timers",
		logx.String("tz", cfg.Timezone), logx.Bool("enabled", cfg.Enabled))
	return r.Init(ctx)
}

// Schedule upserts the timer for t. Any existing timer is removed first; a
// disabled task is left with none. A bad cron fails synchronously.
func (r *Registry) Schedule(t task.Task) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.removeLocked(t.ID)
	if !t.Enabled {
		return nil
	}
	if r.c == nil {
		// Not running; Init picks the task up from the store.
		_, err := r.parse(t.Cron)
		return err
	}
	if err := r.addLocked(t); err != nil {
		return err
	}
	args := []logx.Field{logx.Task(t.ID), logx.String("cron", t.Cron)}
	if next := r.previewNextRunsLocked(t.Cron, 3); next != "" {
		args = append(args, logx.String("next", next))
	}
	r.log.Debug("task scheduled", args...)
	return nil
}

// addLocked registers t with the running cron. Call with r.mu held.
func (r *Registry) addLocked(t task.Task) error {
	sched, err := r.parse(t.Cron)
	if err != nil {
		return err
	}
	id := t.ID
	eid := r.c.Schedule(sched, cron.FuncJob(func() { r.fire(id) }))
	r.entries[id] = entry{id: eid, spec: t.Cron}
	return nil
}

// Unschedule removes the timer for id. Unknown ids are ignored.
func (r *Registry) Unschedule(id string) {
	r.mu.Lock()
	removed := r.removeLocked(id)
	r.mu.Unlock()
	r.skips.forget(id)
	if removed {
		r.log.Debug("task unscheduled", logx.Task(id))
	}
}

func (r *Registry) removeLocked(id string) bool {
	e, ok := r.entries[id]
	if !ok {
		return false
	}
	if r.c != nil {
		r.c.Remove(e.id)
	}
	delete(r.entries, id)
	return true
}

// fire is the cron callback. It reads only the task id; the trigger re-reads the task.
func (r *Registry) fire(id string) {
	r.mu.Lock()
	ctx := r.runCtx
	r.mu.Unlock()
	r.Run(ctx, id)
}

// Run executes id unless a run for the same id is already in flight.
func (r *Registry) Run(ctx context.Context, id string) (string, bool) {
	if !r.gate.tryAcquire(id) {
		r.skips.report(r.log, id, r.now())
		return "", false
	}
	defer r.gate.release(id)
	if r.exec == nil {
		return "", false
	}
	return r.exec.Execute(ctx, id)
}

// NextRun reports the next fire time of the live timer for id.
// ok is false for unknown, disabled or unscheduled tasks.
func (r *Registry) NextRun(id string) (time.Time, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	e, ok := r.entries[id]
	if !ok || r.c == nil {
		return time.Time{}, false
	}
	ent := r.c.Entry(e.id)
	if !ent.Valid() {
		return time.Time{}, false
	}
	next := ent.Next
	if next.IsZero() && ent.Schedule != nil {
		next = ent.Schedule.Next(r.now().In(r.locLocked()))
	}
	if next.IsZero() {
		return time.Time{}, false
	}
	return next, true
}

// IsRunning reports whether an execution of id is in flight.
func (r *Registry) IsRunning(id string) bool {
	return r.gate.active(id)
}

func (r *Registry) Snapshot() Snapshot {
	r.mu.Lock()
	defer r.mu.Unlock()

	snap := Snapshot{
		Enabled:     r.cfg.Enabled,
		Initialized: r.initialized,
		Timezone:    r.locLocked().String(),
		InFlight:    r.gate.count(),
		Entries:     make([]EntryInfo, 0, len(r.entries)),
	}
	for id, e := range r.entries {
		it := EntryInfo{TaskID: id, Cron: e.spec, Running: r.gate.active(id)}
		if r.c != nil {
			ent := r.c.Entry(e.id)
			it.Next = ent.Next
			it.Prev = ent.Prev
		}
		snap.Entries = append(snap.Entries, it)
	}
	sort.Slice(snap.Entries, func(i, j int) bool { return snap.Entries[i].TaskID < snap.Entries[j].TaskID })
	return snap
}

func (r *Registry) locLocked() *time.Location {
	if r.loc != nil {
		return r.loc
	}
	return r.loadLocationLocked()
}

func (r *Registry) loadLocationLocked() *time.Location {
	tz := strings.TrimSpace(r.cfg.Timezone)
	if tz == "" {
		return time.Local
	}
	loc, err := time.LoadLocation(tz)
	if err != nil {
		r.log.Warn("invalid timezone; falling back to Local", logx.String("tz", tz), logx.Err(err))
		return time.Local
	}
	return loc
}

// previewNextRunsLocked lists upcoming fire times for debug logs. Call with r.mu held.
func (r *Registry) previewNextRunsLocked(spec string, n int) string {
	if !r.log.Enabled(logx.LevelDebug) || n <= 0 {
		return ""
	}
	sched, err := r.parse(spec)
	if err != nil {
		return ""
	}
	t := r.now().In(r.locLocked())
	var b strings.Builder
	for i := 0; i < n; i++ {
		t = sched.Next(t)
		if t.IsZero() {
			break
		}
		if i > 0 {
			b.WriteString(", ")
		}
		b.WriteString(t.Format("2006-01-02 15:04:05"))
	}
	return b.String()
}
