package client

import (
	"context"

	"agentcron/internal/task"
)

// Tasks adapts a Client to the in-process task service shape, so callers
// written against the daemon's service can run against a remote daemon.
type Tasks struct {
	c *Client
}

func NewTasks(c *Client) Tasks { return Tasks{c: c} }

func (t Tasks) List(ctx context.Context) ([]task.Task, error) { return t.c.List(ctx) }

func (t Tasks) Get(ctx context.Context, id string) (task.Task, bool, error) {
	tk, err := t.c.Get(ctx, id)
	if IsNotFound(err) {
		return task.Task{}, false, nil
	}
	if err != nil {
		return task.Task{}, false, err
	}
	return tk, true, nil
}

func (t Tasks) Create(ctx context.Context, in task.CreateInput) (task.Task, error) {
	return t.c.Create(ctx, in)
}

func (t Tasks) Update(ctx context.Context, id string, p task.Patch) (task.Task, error) {
	return t.c.Update(ctx, id, p)
}

func (t Tasks) Delete(ctx context.Context, id string) error { return t.c.Delete(ctx, id) }

func (t Tasks) RunNow(ctx context.Context, id string) (string, bool, error) {
	sid, err := t.c.Run(ctx, id)
	if err != nil {
		return "", false, err
	}
	return sid, sid != "", nil
}
