package scheduler

import (
	"context"
	"fmt"
	"runtime/debug"
	"sync/atomic"
	"time"

	"agentcron/internal/session"
	"agentcron/internal/task"
	logx "agentcron/pkg/logx"
)

// TitlePrefix marks sessions created by a scheduled or on-demand run.
const TitlePrefix = "[Scheduled] "

// RunStore is the slice of the task store a run reads and writes.
type RunStore interface {
	Get(ctx context.Context, id string) (task.Task, bool, error)
	MarkStarted(ctx context.Context, id, sessionID string) (task.Task, error)
	MarkCompleted(ctx context.Context, id, sessionID string, status task.RunStatus) (task.Task, error)
}

// Trigger drives one execution of a task through the session pipeline.
type Trigger struct {
	store    RunStore
	pipeline session.Pipeline
	log      logx.Logger
	timeout  atomic.Int64 // time.Duration
}

func NewTrigger(store RunStore, pipeline session.Pipeline, timeout time.Duration, log logx.Logger) *Trigger {
	if log.IsZero() {
		log = logx.Nop()
	}
	t := &Trigger{store: store, pipeline: pipeline, log: log}
	t.SetTimeout(timeout)
	return t
}

// SetTimeout changes the run timeout for runs that start afterwards.
func (t *Trigger) SetTimeout(d time.Duration) { t.timeout.Store(int64(max(d, 0))) }

// Execute runs task id once and returns the session id on success.
// Failures are logged and recorded on the task, never returned.
func (t *Trigger) Execute(ctx context.Context, id string) (string, bool) {
	log := t.log.With(logx.Task(id))

	tk, ok, err := t.store.Get(ctx, id)
	if err != nil {
		log.Error("task lookup failed", logx.Err(err))
		return "", false
	}
	if !ok {
		log.Warn("task not found; run skipped")
		return "", false
	}

	start := time.Now()
	sid, err := t.run(ctx, tk)
	if err != nil {
		log.Error("task run failed", logx.Err(err), logx.Duration("took", time.Since(start)))
		t.recordFailure(context.WithoutCancel(ctx), id, log)
		return "", false
	}
	log.Info("task run completed", logx.Session(sid), logx.Duration("took", time.Since(start)))
	return sid, true
}

func (t *Trigger) run(ctx context.Context, tk task.Task) (sid string, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic: %v", r)
			t.log.Error("task run panicked", logx.Task(tk.ID), logx.Stack(string(debug.Stack())))
		}
	}()

	pctx := ctx
	if d := time.Duration(t.timeout.Load()); d > 0 {
		var cancel context.CancelFunc
		pctx, cancel = context.WithTimeout(ctx, d)
		defer cancel()
	}

	inst, err := t.pipeline.Bootstrap(pctx, tk.Cwd)
	if err != nil {
		return "", fmt.Errorf("bootstrap %s: %w", tk.Cwd, err)
	}
	ses, err := t.pipeline.CreateSession(pctx, inst, TitlePrefix+tk.Name)
	if err != nil {
		return "", fmt.Errorf("create session: %w", err)
	}
	if _, err := t.store.MarkStarted(ctx, tk.ID, ses.ID); err != nil {
		return "", fmt.Errorf("mark started: %w", err)
	}
	parts, err := t.pipeline.ResolveParts(pctx, inst, tk.Prompt)
	if err != nil {
		return "", fmt.Errorf("resolve prompt: %w", err)
	}
	if _, err := t.pipeline.Prompt(pctx, session.PromptInput{
		SessionID: ses.ID,
		Instance:  inst,
		Parts:     parts,
		Model:     modelOf(tk),
	}); err != nil {
		return "", fmt.Errorf("prompt: %w", err)
	}
	if _, err := t.store.MarkCompleted(ctx, tk.ID, ses.ID, task.StatusSuccess); err != nil {
		return "", fmt.Errorf("mark completed: %w", err)
	}
	return ses.ID, nil
}

// recordFailure re-reads the task and marks its current LastSessionID as
// failed. A task that never recorded a session is left alone.
func (t *Trigger) recordFailure(ctx context.Context, id string, log logx.Logger) {
	cur, ok, err := t.store.Get(ctx, id)
	if err != nil {
		log.Error("task re-read after failure failed", logx.Err(err))
		return
	}
	if !ok || cur.LastSessionID == nil {
		return
	}
	if _, err := t.store.MarkCompleted(ctx, id, *cur.LastSessionID, task.StatusError); err != nil {
		log.Error("recording failed run", logx.Err(err))
	}
}

func modelOf(tk task.Task) *session.Model {
	if tk.Model == nil {
		return nil
	}
	return &session.Model{ProviderID: tk.Model.ProviderID, ModelID: tk.Model.ModelID}
}
