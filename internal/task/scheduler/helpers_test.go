package scheduler

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"

	"agentcron/internal/session"
	"agentcron/internal/storage"
	"agentcron/internal/task"
	logx "agentcron/pkg/logx"
)

func newTaskStore(t *testing.T) *task.Store {
	t.Helper()
	kv, err := storage.Open(storage.Config{Driver: "file", Path: t.TempDir()}, logx.Nop())
	if err != nil {
		t.Fatalf("storage.Open: %v", err)
	}
	t.Cleanup(func() { _ = kv.Close() })
	return task.NewStore(kv, logx.Nop())
}

func taskInput(name, cron string) task.CreateInput {
	return task.CreateInput{Name: name, Cron: cron, Cwd: "/tmp", Prompt: "hi"}
}

func boolPtr(b bool) *bool    { return &b }
func strPtr(s string) *string { return &s }

// fakePipeline records calls and fails at a configurable step.
type fakePipeline struct {
	mu sync.Mutex

	bootErr   error
	createErr error
	promptErr error
	panicMsg  string
	// block, when set, makes Prompt wait for it to close or ctx to end.
	block chan struct{}

	sessions int
	prompts  int
}

var _ session.Pipeline = (*fakePipeline)(nil)

func (f *fakePipeline) Bootstrap(_ context.Context, dir string) (*session.Instance, error) {
	if f.bootErr != nil {
		return nil, f.bootErr
	}
	return &session.Instance{Directory: dir}, nil
}

func (f *fakePipeline) CreateSession(_ context.Context, inst *session.Instance, title string) (session.Session, error) {
	if f.createErr != nil {
		return session.Session{}, f.createErr
	}
	f.mu.Lock()
	f.sessions++
	n := f.sessions
	f.mu.Unlock()
	return session.Session{ID: fmt.Sprintf("ses_%d", n), Title: title, Directory: inst.Directory}, nil
}

func (f *fakePipeline) ResolveParts(_ context.Context, _ *session.Instance, prompt string) ([]session.Part, error) {
	return []session.Part{{Type: session.PartText, Text: prompt}}, nil
}

func (f *fakePipeline) Prompt(ctx context.Context, in session.PromptInput) (session.Message, error) {
	f.mu.Lock()
	f.prompts++
	f.mu.Unlock()
	if f.panicMsg != "" {
		panic(f.panicMsg)
	}
	if f.block != nil {
		select {
		case <-f.block:
		case <-ctx.Done():
			return session.Message{}, ctx.Err()
		}
	}
	if f.promptErr != nil {
		return session.Message{}, f.promptErr
	}
	return session.Message{Role: session.RoleAssistant}, nil
}

func (f *fakePipeline) promptCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.prompts
}

// blockingExec is an Executor that waits on release and reports each start.
type blockingExec struct {
	started chan string
	release chan struct{}
}

func newBlockingExec() *blockingExec {
	return &blockingExec{started: make(chan string, 8), release: make(chan struct{})}
}

func (b *blockingExec) Execute(ctx context.Context, id string) (string, bool) {
	b.started <- id
	select {
	case <-b.release:
	case <-ctx.Done():
		return "", false
	}
	return "ses_" + id, true
}

// countingExec counts executions per id.
type countingExec struct {
	mu    sync.Mutex
	runs  map[string]int
	fired chan string
}

func newCountingExec() *countingExec {
	return &countingExec{runs: map[string]int{}, fired: make(chan string, 16)}
}

func (c *countingExec) Execute(_ context.Context, id string) (string, bool) {
	c.mu.Lock()
	c.runs[id]++
	c.mu.Unlock()
	select {
	case c.fired <- id:
	default:
	}
	return "ses_" + id, true
}

var errBoom = errors.New("boom")
