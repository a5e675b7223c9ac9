package scheduler

import (
	"context"
	"fmt"
	"time"

	"agentcron/internal/task"
	logx "agentcron/pkg/logx"
)

// Service combines the task store and the registry for the API surfaces.
// Every mutation that can change a timer is followed by a registry call.
type Service struct {
	store *task.Store
	reg   *Registry
	log   logx.Logger
}

func NewService(store *task.Store, reg *Registry, log logx.Logger) *Service {
	if log.IsZero() {
		log = logx.Nop()
	}
	return &Service{store: store, reg: reg, log: log}
}

func (s *Service) List(ctx context.Context) ([]task.Task, error) {
	return s.store.List(ctx)
}

func (s *Service) Get(ctx context.Context, id string) (task.Task, bool, error) {
	return s.store.Get(ctx, id)
}

// Create validates input and cron before persisting, so a rejected cron leaves no record.
func (s *Service) Create(ctx context.Context, in task.CreateInput) (task.Task, error) {
	if err := in.Validate(); err != nil {
		return task.Task{}, err
	}
	if err := s.reg.Validate(in.Cron); err != nil {
		return task.Task{}, err
	}
	t, err := s.store.Create(ctx, in)
	if err != nil {
		return task.Task{}, err
	}
	if err := s.reg.Schedule(t); err != nil {
		return task.Task{}, err
	}
	s.log.Info("task created", logx.Task(t.ID), logx.String("name", t.Name), logx.String("cron", t.Cron),
		logx.Bool("enabled", t.Enabled))
	return t, nil
}

func (s *Service) Update(ctx context.Context, id string, p task.Patch) (task.Task, error) {
	if err := p.Validate(); err != nil {
		return task.Task{}, err
	}
	if p.Cron != nil {
		if err := s.reg.Validate(*p.Cron); err != nil {
			return task.Task{}, err
		}
	}
	t, err := s.store.Update(ctx, id, p)
	if err != nil {
		return task.Task{}, err
	}
	if p.AffectsSchedule() {
		if err := s.reg.Schedule(t); err != nil {
			return task.Task{}, err
		}
	}
	return t, nil
}

// Delete removes the timer, then the record.
func (s *Service) Delete(ctx context.Context, id string) error {
	s.reg.Unschedule(id)
	if err := s.store.Remove(ctx, id); err != nil {
		return err
	}
	s.log.Info("task deleted", logx.Task(id))
	return nil
}

// RunNow executes the task immediately and waits for the run to finish.
// ok is false when the run failed or an earlier run is still in flight.
// The run is detached from ctx cancellation so a dropped caller does not abort it.
func (s *Service) RunNow(ctx context.Context, id string) (sessionID string, ok bool, err error) {
	_, found, err := s.store.Get(ctx, id)
	if err != nil {
		return "", false, err
	}
	if !found {
		return "", false, fmt.Errorf("%w: %s", task.ErrNotFound, id)
	}
	sid, ok := s.reg.Run(context.WithoutCancel(ctx), id)
	return sid, ok, nil
}

func (s *Service) NextRun(id string) (time.Time, bool) {
	return s.reg.NextRun(id)
}

func (s *Service) Snapshot() Snapshot {
	return s.reg.Snapshot()
}
