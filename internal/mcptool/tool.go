// Package mcptool exposes task management to agents as a single MCP tool.
package mcptool

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"agentcron/internal/task"
	logx "agentcron/pkg/logx"
)

const ToolName = "scheduler"

const description = `Manage scheduled tasks: list, get, create, update, delete, or run one now.

A scheduled task runs a prompt as a full agent session on a cron schedule. Prefer this
tool over writing system cron or launchd entries when the user asks for periodic work.
Cron expressions use the scheduler's timezone (process local unless configured).

Actions:
- list: all tasks
- get: one task (taskId)
- create: new task (task.name, task.cron, task.prompt; cwd defaults to the server's working directory)
- update: change a task (taskId, task)
- delete: remove a task (taskId)
- run: execute now without waiting for the schedule (taskId)

Cron examples: "30 12 * * *" daily 12:30, "0 9 * * 1-5" weekdays 9:00, "0 */2 * * *" every 2 hours.`

// Tasks is the task surface the tool drives. *scheduler.Service implements it.
type Tasks interface {
	List(ctx context.Context) ([]task.Task, error)
	Get(ctx context.Context, id string) (task.Task, bool, error)
	Create(ctx context.Context, in task.CreateInput) (task.Task, error)
	Update(ctx context.Context, id string, p task.Patch) (task.Task, error)
	Delete(ctx context.Context, id string) error
	RunNow(ctx context.Context, id string) (sessionID string, ok bool, err error)
}

type Input struct {
	Action string      `json:"action" jsonschema:"operation: list, get, create, update, delete or run"`
	TaskID string      `json:"taskId,omitempty" jsonschema:"task id, required for get, update, delete and run"`
	Task   *TaskFields `json:"task,omitempty" jsonschema:"task fields for create and update"`
}

type TaskFields struct {
	Name    *string        `json:"name,omitempty" jsonschema:"task name"`
	Cron    *string        `json:"cron,omitempty" jsonschema:"cron expression"`
	Cwd     *string        `json:"cwd,omitempty" jsonschema:"working directory for the run"`
	Prompt  *string        `json:"prompt,omitempty" jsonschema:"prompt sent to the agent on each run"`
	Model   *task.ModelRef `json:"model,omitempty" jsonschema:"model override"`
	Enabled *bool          `json:"enabled,omitempty" jsonschema:"whether the schedule is active"`
}

var ErrInvalidInput = errors.New("invalid tool input")

// Tool executes scheduler actions.
type Tool struct {
	tasks Tasks
	cwd   string
	log   logx.Logger
}

// New returns a Tool. An empty cwd uses the process working directory.
func New(tasks Tasks, cwd string, log logx.Logger) *Tool {
	if log.IsZero() {
		log = logx.Nop()
	}
	if strings.TrimSpace(cwd) == "" {
		if wd, err := os.Getwd(); err == nil {
			cwd = wd
		}
	}
	return &Tool{tasks: tasks, cwd: cwd, log: log}
}

// Register adds the tool to srv.
func (t *Tool) Register(srv *mcp.Server) {
	mcp.AddTool(srv, &mcp.Tool{Name: ToolName, Description: description}, t.call)
}

// NewServer returns an MCP server carrying only the scheduler tool.
func (t *Tool) NewServer(version string) *mcp.Server {
	srv := mcp.NewServer(&mcp.Implementation{Name: "agentcron", Version: version}, nil)
	t.Register(srv)
	return srv
}

func (t *Tool) call(ctx context.Context, _ *mcp.CallToolRequest, in Input) (*mcp.CallToolResult, any, error) {
	out, err := t.Handle(ctx, in)
	if err != nil {
		t.log.Debug("tool call failed", logx.String("action", in.Action), logx.Err(err))
		return &mcp.CallToolResult{
			IsError: true,
			Content: []mcp.Content{&mcp.TextContent{Text: err.Error()}},
		}, nil, nil
	}
	return &mcp.CallToolResult{Content: []mcp.Content{&mcp.TextContent{Text: out}}}, nil, nil
}

// Handle runs one action and returns its text output.
func (t *Tool) Handle(ctx context.Context, in Input) (string, error) {
	id := strings.TrimSpace(in.TaskID)
	needID := func() error {
		if id == "" {
			return fmt.Errorf("%w: %s requires taskId", ErrInvalidInput, in.Action)
		}
		return nil
	}

	switch in.Action {
	case "list":
		tasks, err := t.tasks.List(ctx)
		if err != nil {
			return "", err
		}
		if tasks == nil {
			tasks = []task.Task{}
		}
		return pretty(tasks)

	case "get":
		if err := needID(); err != nil {
			return "", err
		}
		tk, ok, err := t.tasks.Get(ctx, id)
		if err != nil {
			return "", err
		}
		if !ok {
			return "", fmt.Errorf("%w: %s", task.ErrNotFound, id)
		}
		return pretty(tk)

	case "create":
		f := in.Task
		if f == nil || deref(f.Name) == "" || deref(f.Cron) == "" || deref(f.Prompt) == "" {
			return "", fmt.Errorf("%w: create requires task.name, task.cron and task.prompt", ErrInvalidInput)
		}
		cwd := t.cwd
		if c := deref(f.Cwd); c != "" {
			cwd = c
		}
		tk, err := t.tasks.Create(ctx, task.CreateInput{
			Name:    *f.Name,
			Cron:    *f.Cron,
			Cwd:     cwd,
			Prompt:  *f.Prompt,
			Model:   f.Model,
			Enabled: f.Enabled,
		})
		if err != nil {
			return "", err
		}
		return pretty(tk)

	case "update":
		if err := needID(); err != nil {
			return "", err
		}
		if in.Task == nil {
			return "", fmt.Errorf("%w: update requires task", ErrInvalidInput)
		}
		f := in.Task
		tk, err := t.tasks.Update(ctx, id, task.Patch{
			Name:    f.Name,
			Cron:    f.Cron,
			Cwd:     f.Cwd,
			Prompt:  f.Prompt,
			Model:   f.Model,
			Enabled: f.Enabled,
		})
		if err != nil {
			return "", err
		}
		return pretty(tk)

	case "delete":
		if err := needID(); err != nil {
			return "", err
		}
		if err := t.tasks.Delete(ctx, id); err != nil {
			return "", err
		}
		return fmt.Sprintf("task %s deleted", id), nil

	case "run":
		if err := needID(); err != nil {
			return "", err
		}
		sid, ok, err := t.tasks.RunNow(ctx, id)
		if err != nil {
			return "", err
		}
		if !ok {
			return "task run failed or was skipped", nil
		}
		return "task run completed, session " + sid, nil
	}
	return "", fmt.Errorf("%w: unknown action %q", ErrInvalidInput, in.Action)
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return strings.TrimSpace(*s)
}

func pretty(v any) (string, error) {
	b, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return "", err
	}
	return string(b), nil
}
