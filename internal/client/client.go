// Package client talks to a running agentcron daemon over its HTTP API.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"agentcron/internal/api"
	"agentcron/internal/task"
)

// DefaultTimeout bounds ordinary requests. Run requests wait for the run to
// finish and are bounded by the caller's context instead.
const DefaultTimeout = 10 * time.Second

// APIError is a non-2xx response.
type APIError struct {
	Status  int
	Message string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("api error (%d): %s", e.Status, e.Message)
}

// IsNotFound reports whether err is a 404 from the daemon.
func IsNotFound(err error) bool {
	var ae *APIError
	return errors.As(err, &ae) && ae.Status == http.StatusNotFound
}

type Client struct {
	base  string
	token string
	hc    *http.Client
}

// New returns a client for base (for example "http://127.0.0.1:7470").
func New(base, token string) *Client {
	return &Client{
		base:  strings.TrimRight(strings.TrimSpace(base), "/"),
		token: strings.TrimSpace(token),
		hc:    &http.Client{},
	}
}

func (c *Client) do(ctx context.Context, method, path string, body, out any) error {
	if _, ok := ctx.Deadline(); !ok && !strings.HasSuffix(path, "/run") {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, DefaultTimeout)
		defer cancel()
	}

	var rd io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			return err
		}
		rd = bytes.NewReader(b)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.base+path, rd)
	if err != nil {
		return err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	resp, err := c.hc.Do(req)
	if err != nil {
		return fmt.Errorf("api request failed: %w", err)
	}
	defer resp.Body.Close()
	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return err
	}
	if resp.StatusCode >= 400 {
		var e struct {
			Error string `json:"error"`
		}
		msg := strings.TrimSpace(string(raw))
		if json.Unmarshal(raw, &e) == nil && e.Error != "" {
			msg = e.Error
		}
		return &APIError{Status: resp.StatusCode, Message: msg}
	}
	if out == nil {
		return nil
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}

func taskPath(id string) string { return "/tasks/" + url.PathEscape(id) }

func (c *Client) List(ctx context.Context) ([]task.Task, error) {
	var out []task.Task
	err := c.do(ctx, http.MethodGet, "/tasks", nil, &out)
	return out, err
}

func (c *Client) Get(ctx context.Context, id string) (task.Task, error) {
	var out task.Task
	err := c.do(ctx, http.MethodGet, taskPath(id), nil, &out)
	return out, err
}

func (c *Client) Create(ctx context.Context, in task.CreateInput) (task.Task, error) {
	var out task.Task
	err := c.do(ctx, http.MethodPost, "/tasks", in, &out)
	return out, err
}

func (c *Client) Update(ctx context.Context, id string, p task.Patch) (task.Task, error) {
	var out task.Task
	err := c.do(ctx, http.MethodPut, taskPath(id), p, &out)
	return out, err
}

func (c *Client) Delete(ctx context.Context, id string) error {
	return c.do(ctx, http.MethodDelete, taskPath(id), nil, nil)
}

// Run executes the task now. The session id is empty when the run failed or
// was skipped.
func (c *Client) Run(ctx context.Context, id string) (string, error) {
	var out api.RunResponse
	err := c.do(ctx, http.MethodPost, taskPath(id)+"/run", nil, &out)
	return out.SessionID, err
}

// NextRun returns the next fire time, ok=false when the task has no timer.
func (c *Client) NextRun(ctx context.Context, id string) (time.Time, bool, error) {
	var out api.NextRunResponse
	if err := c.do(ctx, http.MethodGet, taskPath(id)+"/next-run", nil, &out); err != nil {
		return time.Time{}, false, err
	}
	if out.NextRun == nil {
		return time.Time{}, false, nil
	}
	t, err := time.Parse(time.RFC3339Nano, *out.NextRun)
	if err != nil {
		return time.Time{}, false, fmt.Errorf("parse nextRun %q: %w", *out.NextRun, err)
	}
	return t, true, nil
}
