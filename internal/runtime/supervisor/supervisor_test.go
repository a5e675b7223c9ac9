package supervisor

import (
	"context"
	"errors"
	"strings"
	"sync/atomic"
	"testing"
	"time"
)

func TestGoRecordsFirstError(t *testing.T) {
	s := New(context.Background())
	s.Go("ok", func(ctx context.Context) error { return nil })
	s.Go("bad", func(ctx context.Context) error { return errors.New("boom") })

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	err := s.Wait(ctx)
	if err == nil || !strings.Contains(err.Error(), "bad: boom") {
		t.Fatalf("Wait = %v", err)
	}
}

func TestGoRecoversPanic(t *testing.T) {
	s := New(context.Background(), WithCancelOnError(true))
	s.Go("panicky", func(ctx context.Context) error { panic("oops") })

	select {
	case <-s.Context().Done():
	case <-time.After(time.Second):
		t.Fatal("expected cancel on panic")
	}
	snap := s.Snapshot()
	if len(snap.Goroutines) != 1 || snap.Goroutines[0].Panics != 1 {
		t.Fatalf("snapshot = %+v", snap)
	}
}

func TestGoRestartRestartsUntilSuccess(t *testing.T) {
	s := New(context.Background())
	var runs atomic.Int32
	s.GoRestart("flaky", func(ctx context.Context) error {
		if runs.Add(1) < 3 {
			return errors.New("transient")
		}
		return nil
	}, WithRestartBackoff(time.Millisecond, 5*time.Millisecond))

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := s.Wait(ctx); err != nil {
		t.Fatalf("Wait = %v", err)
	}
	if got := runs.Load(); got != 3 {
		t.Fatalf("runs = %d, want 3", got)
	}
	st := s.Snapshot().Goroutines[0]
	if st.Restarts != 2 || st.Active != 0 {
		t.Fatalf("stats = %+v", st)
	}
}

func TestGoRestartGivesUp(t *testing.T) {
	s := New(context.Background())
	s.GoRestart("broken", func(ctx context.Context) error { return errors.New("nope") },
		WithRestartBackoff(time.Millisecond, time.Millisecond), WithMaxRestarts(2))

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := s.Wait(ctx); err == nil {
		t.Fatal("expected final error")
	}
}

func TestStopCancelsLoops(t *testing.T) {
	s := New(context.Background())
	s.GoRestart("loop", func(ctx context.Context) error {
		<-ctx.Done()
		return ctx.Err()
	})
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	if err := s.Stop(ctx); err != nil {
		t.Fatalf("Stop = %v", err)
	}
}
