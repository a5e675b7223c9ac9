package task

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"agentcron/internal/eventbus"
	"agentcron/internal/storage"
	logx "agentcron/pkg/logx"
)

type recorder struct {
	mu     sync.Mutex
	events []eventbus.Event
}

func (r *recorder) Emit(e eventbus.Event) {
	r.mu.Lock()
	r.events = append(r.events, e)
	r.mu.Unlock()
}

func (r *recorder) types() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]string, 0, len(r.events))
	for _, e := range r.events {
		out = append(out, e.Type)
	}
	return out
}

func (r *recorder) reset() {
	r.mu.Lock()
	r.events = nil
	r.mu.Unlock()
}

func newTestStore(t *testing.T) (*Store, *recorder) {
	t.Helper()
	kv, err := storage.Open(storage.Config{Driver: "file", Path: t.TempDir()}, logx.Nop())
	if err != nil {
		t.Fatalf("storage.Open: %v", err)
	}
	t.Cleanup(func() { _ = kv.Close() })

	rec := &recorder{}
	s := NewStore(kv, logx.Nop(), rec)
	s.now = func() time.Time { return time.UnixMilli(1_700_000_000_000) }
	var n int
	s.newID = func() string {
		n++
		return fmt.Sprintf("tsk_%d", n)
	}
	return s, rec
}

func sampleInput() CreateInput {
	return CreateInput{Name: "nightly", Cron: "0 3 * * *", Cwd: "/srv/app", Prompt: "summarize logs"}
}

func equalStrings(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

func TestListEmptyStore(t *testing.T) {
	s, _ := newTestStore(t)
	got, err := s.List(context.Background())
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if got == nil || len(got) != 0 {
		t.Fatalf("List = %#v, want empty non-nil", got)
	}
}

func TestCreateAssignsIDAndDefaults(t *testing.T) {
	s, rec := newTestStore(t)
	ctx := context.Background()

	created, err := s.Create(ctx, sampleInput())
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	if created.ID != "tsk_1" {
		t.Fatalf("ID = %q", created.ID)
	}
	if !created.Enabled {
		t.Fatal("Enabled should default to true")
	}
	if created.CreatedAt != 1_700_000_000_000 {
		t.Fatalf("CreatedAt = %d", created.CreatedAt)
	}
	if created.LastRunAt != nil || created.LastRunStatus != nil || created.LastSessionID != nil {
		t.Fatalf("run fields should be unset: %+v", created)
	}

	got, ok, err := s.Get(ctx, created.ID)
	if err != nil || !ok {
		t.Fatalf("Get = (%v, %v)", ok, err)
	}
	if got.Name != "nightly" || got.Cron != "0 3 * * *" {
		t.Fatalf("Get = %+v", got)
	}

	if ts := rec.types(); !equalStrings(ts, []string{EventCreated}) {
		t.Fatalf("events = %v", ts)
	}
}

func TestCreateRespectsExplicitDisabled(t *testing.T) {
	s, _ := newTestStore(t)
	in := sampleInput()
	off := false
	in.Enabled = &off
	in.Model = &ModelRef{ProviderID: "ollama", ModelID: "llama3.2"}

	got, err := s.Create(context.Background(), in)
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	if got.Enabled {
		t.Fatal("Enabled = true, want false")
	}
	if got.Model == nil || got.Model.ModelID != "llama3.2" {
		t.Fatalf("Model = %+v", got.Model)
	}
}

func TestCreateValidation(t *testing.T) {
	tests := []struct {
		name  string
		mut   func(*CreateInput)
		field string
	}{
		{"missing name", func(in *CreateInput) { in.Name = "" }, "name"},
		{"blank cron", func(in *CreateInput) { in.Cron = "   " }, "cron"},
		{"missing cwd", func(in *CreateInput) { in.Cwd = "" }, "cwd"},
		{"missing prompt", func(in *CreateInput) { in.Prompt = "" }, "prompt"},
		{"partial model", func(in *CreateInput) { in.Model = &ModelRef{ProviderID: "ollama"} }, "model.modelID"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s, rec := newTestStore(t)
			in := sampleInput()
			tt.mut(&in)
			_, err := s.Create(context.Background(), in)
			if !errors.Is(err, ErrValidation) {
				t.Fatalf("err = %v, want ErrValidation", err)
			}
			var ve *ValidationError
			if !errors.As(err, &ve) || ve.Field != tt.field {
				t.Fatalf("field = %v, want %q", err, tt.field)
			}
			if len(rec.types()) != 0 {
				t.Fatal("no events expected on validation failure")
			}
		})
	}
}

func TestGetMissing(t *testing.T) {
	s, _ := newTestStore(t)
	_, ok, err := s.Get(context.Background(), "tsk_nope")
	if err != nil || ok {
		t.Fatalf("Get = (%v, %v), want (false, nil)", ok, err)
	}
}

func TestUpdateMergesPatch(t *testing.T) {
	s, rec := newTestStore(t)
	ctx := context.Background()
	created, _ := s.Create(ctx, sampleInput())
	rec.reset()

	name := "hourly"
	cron := "0 * * * *"
	got, err := s.Update(ctx, created.ID, Patch{Name: &name, Cron: &cron})
	if err != nil {
		t.Fatalf("Update: %v", err)
	}
	if got.Name != "hourly" || got.Cron != "0 * * * *" {
		t.Fatalf("Update = %+v", got)
	}
	if got.Prompt != created.Prompt || got.CreatedAt != created.CreatedAt || got.ID != created.ID {
		t.Fatalf("untouched fields changed: %+v", got)
	}
	if ts := rec.types(); !equalStrings(ts, []string{EventUpdated}) {
		t.Fatalf("events = %v", ts)
	}
}

func TestUpdateMissingAndInvalid(t *testing.T) {
	s, _ := newTestStore(t)
	ctx := context.Background()
	name := "x"
	if _, err := s.Update(ctx, "tsk_nope", Patch{Name: &name}); !errors.Is(err, ErrNotFound) {
		t.Fatalf("err = %v, want ErrNotFound", err)
	}

	created, _ := s.Create(ctx, sampleInput())
	blank := ""
	if _, err := s.Update(ctx, created.ID, Patch{Prompt: &blank}); !errors.Is(err, ErrValidation) {
		t.Fatalf("err = %v, want ErrValidation", err)
	}
}

func TestRemove(t *testing.T) {
	s, rec := newTestStore(t)
	ctx := context.Background()
	a, _ := s.Create(ctx, sampleInput())
	b, _ := s.Create(ctx, sampleInput())
	rec.reset()

	if err := s.Remove(ctx, a.ID); err != nil {
		t.Fatalf("Remove: %v", err)
	}
	list, _ := s.List(ctx)
	if len(list) != 1 || list[0].ID != b.ID {
		t.Fatalf("List = %+v", list)
	}
	if ts := rec.types(); !equalStrings(ts, []string{EventDeleted}) {
		t.Fatalf("events = %v", ts)
	}
	if props, ok := rec.events[0].Data.(DeletedProps); !ok || props.TaskID != a.ID {
		t.Fatalf("deleted props = %#v", rec.events[0].Data)
	}

	if err := s.Remove(ctx, a.ID); !errors.Is(err, ErrNotFound) {
		t.Fatalf("second Remove err = %v, want ErrNotFound", err)
	}
}

func TestMarkStartedAndCompleted(t *testing.T) {
	s, rec := newTestStore(t)
	ctx := context.Background()
	created, _ := s.Create(ctx, sampleInput())
	rec.reset()

	started, err := s.MarkStarted(ctx, created.ID, "ses_1")
	if err != nil {
		t.Fatalf("MarkStarted: %v", err)
	}
	if started.LastRunStatus == nil || *started.LastRunStatus != StatusRunning {
		t.Fatalf("status = %v", started.LastRunStatus)
	}
	if started.LastSessionID == nil || *started.LastSessionID != "ses_1" {
		t.Fatalf("session = %v", started.LastSessionID)
	}
	if started.LastRunAt == nil || *started.LastRunAt != 1_700_000_000_000 {
		t.Fatalf("lastRunAt = %v", started.LastRunAt)
	}

	done, err := s.MarkCompleted(ctx, created.ID, "ses_1", StatusError)
	if err != nil {
		t.Fatalf("MarkCompleted: %v", err)
	}
	if *done.LastRunStatus != StatusError || *done.LastSessionID != "ses_1" {
		t.Fatalf("completed = %+v", done)
	}

	want := []string{EventUpdated, EventStarted, EventUpdated, EventCompleted}
	if ts := rec.types(); !equalStrings(ts, want) {
		t.Fatalf("events = %v, want %v", ts, want)
	}
}

func TestMarkCompletedRejectsRunning(t *testing.T) {
	s, _ := newTestStore(t)
	created, _ := s.Create(context.Background(), sampleInput())
	_, err := s.MarkCompleted(context.Background(), created.ID, "ses_1", StatusRunning)
	if !errors.Is(err, ErrValidation) {
		t.Fatalf("err = %v, want ErrValidation", err)
	}
}

func TestConcurrentCreatesAreNotLost(t *testing.T) {
	s, _ := newTestStore(t)
	s.newID = NewID
	ctx := context.Background()

	const n = 16
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := s.Create(ctx, sampleInput()); err != nil {
				t.Errorf("Create: %v", err)
			}
		}()
	}
	wg.Wait()

	list, err := s.List(ctx)
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(list) != n {
		t.Fatalf("len = %d, want %d", len(list), n)
	}
}
