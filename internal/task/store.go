package task

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"agentcron/internal/eventbus"
	"agentcron/internal/storage"
	logx "agentcron/pkg/logx"
)

// Store provides CRUD over the persisted task list.
type Store struct {
	kv    storage.KV
	sinks eventbus.Sinks
	log   logx.Logger

	// mu serializes read-modify-write cycles on StorageKey.
	mu sync.Mutex

	now   func() time.Time
	newID func() string
}

func NewStore(kv storage.KV, log logx.Logger, sinks ...eventbus.Sink) *Store {
	if log.IsZero() {
		log = logx.Nop()
	}
	return &Store{
		kv:    kv,
		sinks: eventbus.Sinks(sinks),
		log:   log,
		now:   time.Now,
		newID: NewID,
	}
}

// NewID returns a time-ordered task id.
func NewID() string {
	return "tsk_" + uuid.Must(uuid.NewV7()).String()
}

func (s *Store) read(ctx context.Context) ([]Task, error) {
	var f tasksFile
	if err := s.kv.Read(ctx, StorageKey, &f); err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return []Task{}, nil
		}
		return nil, fmt.Errorf("read tasks: %w", err)
	}
	if f.Tasks == nil {
		return []Task{}, nil
	}
	return f.Tasks, nil
}

func (s *Store) write(ctx context.Context, tasks []Task) error {
	if err := s.kv.Write(ctx, StorageKey, tasksFile{Tasks: tasks}); err != nil {
		return fmt.Errorf("write tasks: %w", err)
	}
	return nil
}

func (s *Store) emit(typ string, props any) {
	s.sinks.Emit(eventbus.Event{Type: typ, Time: s.now(), Data: props})
}

// List returns all tasks in storage order.
func (s *Store) List(ctx context.Context) ([]Task, error) {
	return s.read(ctx)
}

// Get returns the task with id. A missing task is (Task{}, false, nil).
func (s *Store) Get(ctx context.Context, id string) (Task, bool, error) {
	tasks, err := s.read(ctx)
	if err != nil {
		return Task{}, false, err
	}
	for _, t := range tasks {
		if t.ID == id {
			return t, true, nil
		}
	}
	return Task{}, false, nil
}

func (s *Store) Create(ctx context.Context, in CreateInput) (Task, error) {
	if err := in.Validate(); err != nil {
		return Task{}, err
	}
	enabled := true
	if in.Enabled != nil {
		enabled = *in.Enabled
	}
	t := Task{
		ID:        s.newID(),
		Name:      in.Name,
		Cron:      in.Cron,
		Cwd:       in.Cwd,
		Prompt:    in.Prompt,
		Enabled:   enabled,
		CreatedAt: s.now().UnixMilli(),
	}
	if in.Model != nil {
		m := *in.Model
		t.Model = &m
	}

	s.mu.Lock()
	tasks, err := s.read(ctx)
	if err != nil {
		s.mu.Unlock()
		return Task{}, err
	}
	tasks = append(tasks, t)
	err = s.write(ctx, tasks)
	s.mu.Unlock()
	if err != nil {
		return Task{}, err
	}

	s.log.Debug("task created", logx.String("id", t.ID), logx.String("name", t.Name))
	s.emit(EventCreated, TaskProps{Task: t})
	return t, nil
}

// mutate applies fn to the task with id under the store lock and persists the result.
func (s *Store) mutate(ctx context.Context, id string, fn func(t *Task)) (Task, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	tasks, err := s.read(ctx)
	if err != nil {
		return Task{}, err
	}
	idx := indexOf(tasks, id)
	if idx < 0 {
		return Task{}, notFound(id)
	}
	fn(&tasks[idx])
	if err := s.write(ctx, tasks); err != nil {
		return Task{}, err
	}
	return tasks[idx], nil
}

// Update merges p over the task. Server-managed run fields are not reachable from Patch.
func (s *Store) Update(ctx context.Context, id string, p Patch) (Task, error) {
	if err := p.Validate(); err != nil {
		return Task{}, err
	}
	t, err := s.mutate(ctx, id, p.apply)
	if err != nil {
		return Task{}, err
	}
	s.emit(EventUpdated, TaskProps{Task: t})
	return t, nil
}

func (s *Store) Remove(ctx context.Context, id string) error {
	s.mu.Lock()
	tasks, err := s.read(ctx)
	if err != nil {
		s.mu.Unlock()
		return err
	}
	idx := indexOf(tasks, id)
	if idx < 0 {
		s.mu.Unlock()
		return notFound(id)
	}
	tasks = append(tasks[:idx], tasks[idx+1:]...)
	err = s.write(ctx, tasks)
	s.mu.Unlock()
	if err != nil {
		return err
	}

	s.log.Debug("task removed", logx.String("id", id))
	s.emit(EventDeleted, DeletedProps{TaskID: id})
	return nil
}

// MarkStarted records the start of a run for sessionID.
func (s *Store) MarkStarted(ctx context.Context, id, sessionID string) (Task, error) {
	now := s.now().UnixMilli()
	t, err := s.mutate(ctx, id, func(t *Task) {
		st := StatusRunning
		sid := sessionID
		t.LastRunAt = &now
		t.LastRunStatus = &st
		t.LastSessionID = &sid
	})
	if err != nil {
		return Task{}, err
	}
	s.emit(EventUpdated, TaskProps{Task: t})
	s.emit(EventStarted, StartedProps{Task: t, SessionID: sessionID})
	return t, nil
}

// MarkCompleted records the outcome of the run for sessionID.
// status must be StatusSuccess or StatusError.
func (s *Store) MarkCompleted(ctx context.Context, id, sessionID string, status RunStatus) (Task, error) {
	if status != StatusSuccess && status != StatusError {
		return Task{}, &ValidationError{Field: "status", Msg: fmt.Sprintf("must be success or error, got %q", status)}
	}
	t, err := s.mutate(ctx, id, func(t *Task) {
		st := status
		t.LastRunStatus = &st
	})
	if err != nil {
		return Task{}, err
	}
	s.emit(EventUpdated, TaskProps{Task: t})
	s.emit(EventCompleted, CompletedProps{Task: t, SessionID: sessionID, Status: status})
	return t, nil
}

func indexOf(tasks []Task, id string) int {
	for i := range tasks {
		if tasks[i].ID == id {
			return i
		}
	}
	return -1
}
