package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"agentcron/internal/task"
)

var tasksCmd = &cobra.Command{
	Use:     "tasks",
	Aliases: []string{"task"},
	Short:   "Manage scheduled tasks on a running daemon",
}

var tasksListCmd = &cobra.Command{
	Use:   "list",
	Short: "List tasks",
	Args:  cobra.NoArgs,
	RunE:  runTasksList,
}

var tasksGetCmd = &cobra.Command{
	Use:   "get <task-id>",
	Short: "Show task details",
	Args:  cobra.ExactArgs(1),
	RunE:  runTasksGet,
}

var tasksCreateCmd = &cobra.Command{
	Use:   "create",
	Short: "Create a task",
	Args:  cobra.NoArgs,
	RunE:  runTasksCreate,
}

var tasksUpdateCmd = &cobra.Command{
	Use:   "update <task-id>",
	Short: "Update fields of a task",
	Args:  cobra.ExactArgs(1),
	RunE:  runTasksUpdate,
}

var tasksDeleteCmd = &cobra.Command{
	Use:   "delete <task-id>",
	Short: "Delete a task and its timer",
	Args:  cobra.ExactArgs(1),
	RunE:  runTasksDelete,
}

var tasksRunCmd = &cobra.Command{
	Use:   "run <task-id>",
	Short: "Run a task now and wait for it",
	Args:  cobra.ExactArgs(1),
	RunE:  runTasksRun,
}

var tasksNextCmd = &cobra.Command{
	Use:   "next <task-id>",
	Short: "Show the next scheduled run",
	Args:  cobra.ExactArgs(1),
	RunE:  runTasksNext,
}

var (
	taskName     string
	taskCron     string
	taskCwd      string
	taskPrompt   string
	taskModel    string
	taskDisabled bool
	taskEnabled  bool
	runTimeout   time.Duration
)

func init() {
	tasksCmd.AddCommand(tasksListCmd, tasksGetCmd, tasksCreateCmd, tasksUpdateCmd, tasksDeleteCmd, tasksRunCmd, tasksNextCmd)

	f := tasksCreateCmd.Flags()
	f.StringVar(&taskName, "name", "", "task name (required)")
	f.StringVar(&taskCron, "cron", "", `cron expression, e.g. "0 9 * * 1-5" (required)`)
	f.StringVar(&taskCwd, "cwd", "", "working directory (default current dir)")
	f.StringVar(&taskPrompt, "prompt", "", "prompt text (required)")
	f.StringVar(&taskModel, "model", "", "model as provider/model, e.g. ollama/llama3.2")
	f.BoolVar(&taskDisabled, "disabled", false, "create without a timer")
	_ = tasksCreateCmd.MarkFlagRequired("name")
	_ = tasksCreateCmd.MarkFlagRequired("cron")
	_ = tasksCreateCmd.MarkFlagRequired("prompt")

	u := tasksUpdateCmd.Flags()
	u.StringVar(&taskName, "name", "", "new name")
	u.StringVar(&taskCron, "cron", "", "new cron expression")
	u.StringVar(&taskCwd, "cwd", "", "new working directory")
	u.StringVar(&taskPrompt, "prompt", "", "new prompt")
	u.StringVar(&taskModel, "model", "", "new model as provider/model")
	u.BoolVar(&taskEnabled, "enabled", true, "enable or disable the timer")

	tasksRunCmd.Flags().DurationVar(&runTimeout, "timeout", 0, "give up waiting after this long (0 = wait for the run)")
}

func runTasksList(cmd *cobra.Command, _ []string) error {
	tasks, err := newClient().List(cmd.Context())
	if err != nil {
		return err
	}
	out := cmd.OutOrStdout()
	if len(tasks) == 0 {
		fmt.Fprintln(out, mutedStyle.Render("No tasks found"))
		return nil
	}
	fmt.Fprintln(out, titleStyle.Render(fmt.Sprintf("Tasks (%d)", len(tasks))))
	writeTaskTable(out, tasks)
	return nil
}

func writeTaskTable(out io.Writer, tasks []task.Task) {
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tNAME\tCRON\tENABLED\tLAST RUN")
	for _, t := range tasks {
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\n", t.ID, truncate(t.Name, 32), t.Cron, enabledText(t.Enabled), statusText(t))
	}
	_ = w.Flush()
}

func runTasksGet(cmd *cobra.Command, args []string) error {
	t, err := newClient().Get(cmd.Context(), args[0])
	if err != nil {
		return err
	}
	printTask(cmd.OutOrStdout(), t)
	return nil
}

func printTask(out io.Writer, t task.Task) {
	row := func(label, val string) {
		fmt.Fprintf(out, "%s %s\n", labelStyle.Render(fmt.Sprintf("%-10s", label+":")), val)
	}
	fmt.Fprintln(out, titleStyle.Render(t.Name))
	row("ID", t.ID)
	row("Cron", t.Cron)
	row("Cwd", t.Cwd)
	row("Enabled", enabledText(t.Enabled))
	if t.Model != nil {
		row("Model", t.Model.ProviderID+"/"+t.Model.ModelID)
	}
	row("Created", time.UnixMilli(t.CreatedAt).Format(time.RFC3339))
	row("Last run", statusText(t))
	if t.LastRunAt != nil {
		row("Run at", time.UnixMilli(*t.LastRunAt).Format(time.RFC3339))
	}
	if t.LastSessionID != nil {
		row("Session", *t.LastSessionID)
	}
	row("Prompt", t.Prompt)
}

func runTasksCreate(cmd *cobra.Command, _ []string) error {
	cwd := taskCwd
	if strings.TrimSpace(cwd) == "" {
		wd, err := os.Getwd()
		if err != nil {
			return err
		}
		cwd = wd
	}
	model, err := parseModel(taskModel)
	if err != nil {
		return err
	}
	in := task.CreateInput{Name: taskName, Cron: taskCron, Cwd: cwd, Prompt: taskPrompt, Model: model}
	if taskDisabled {
		off := false
		in.Enabled = &off
	}
	t, err := newClient().Create(cmd.Context(), in)
	if err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "%s %s\n", okStyle.Render("Created task"), t.ID)
	return nil
}

func runTasksUpdate(cmd *cobra.Command, args []string) error {
	p, err := patchFromFlags(cmd)
	if err != nil {
		return err
	}
	t, err := newClient().Update(cmd.Context(), args[0], p)
	if err != nil {
		return err
	}
	printTask(cmd.OutOrStdout(), t)
	return nil
}

// patchFromFlags sets only the fields whose flags were given.
func patchFromFlags(cmd *cobra.Command) (task.Patch, error) {
	var p task.Patch
	fl := cmd.Flags()
	str := func(name string, v string) *string {
		if !fl.Changed(name) {
			return nil
		}
		return &v
	}
	p.Name = str("name", taskName)
	p.Cron = str("cron", taskCron)
	p.Cwd = str("cwd", taskCwd)
	p.Prompt = str("prompt", taskPrompt)
	if fl.Changed("model") {
		m, err := parseModel(taskModel)
		if err != nil {
			return task.Patch{}, err
		}
		p.Model = m
	}
	if fl.Changed("enabled") {
		on := taskEnabled
		p.Enabled = &on
	}
	if p == (task.Patch{}) {
		return p, fmt.Errorf("nothing to update; pass at least one of --name --cron --cwd --prompt --model --enabled")
	}
	return p, nil
}

func runTasksDelete(cmd *cobra.Command, args []string) error {
	if err := newClient().Delete(cmd.Context(), args[0]); err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "%s %s\n", okStyle.Render("Deleted task"), args[0])
	return nil
}

func runTasksRun(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	if runTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, runTimeout)
		defer cancel()
	}
	sid, err := newClient().Run(ctx, args[0])
	if err != nil {
		return err
	}
	if sid == "" {
		return fmt.Errorf("task %s did not complete; see daemon logs", args[0])
	}
	fmt.Fprintf(cmd.OutOrStdout(), "%s session %s\n", okStyle.Render("Run completed,"), sid)
	return nil
}

func runTasksNext(cmd *cobra.Command, args []string) error {
	next, ok, err := newClient().NextRun(cmd.Context(), args[0])
	if err != nil {
		return err
	}
	out := cmd.OutOrStdout()
	if !ok {
		fmt.Fprintln(out, mutedStyle.Render("not scheduled"))
		return nil
	}
	fmt.Fprintf(out, "%s (in %s)\n", next.Local().Format(time.RFC3339), time.Until(next).Round(time.Second))
	return nil
}

// parseModel splits "provider/model". Empty input means no model.
func parseModel(s string) (*task.ModelRef, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil, nil
	}
	provider, model, ok := strings.Cut(s, "/")
	if !ok || provider == "" || model == "" {
		return nil, fmt.Errorf("--model %q: want provider/model", s)
	}
	return &task.ModelRef{ProviderID: provider, ModelID: model}, nil
}

func truncate(s string, n int) string {
	if len([]rune(s)) <= n {
		return s
	}
	return string([]rune(s)[:n-1]) + "…"
}
