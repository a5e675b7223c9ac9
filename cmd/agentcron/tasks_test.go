package main

import (
	"bytes"
	"strings"
	"testing"

	"github.com/spf13/cobra"

	"agentcron/internal/task"
)

func TestParseModel(t *testing.T) {
	tests := []struct {
		in   string
		want *task.ModelRef
		fail bool
	}{
		{in: ""},
		{in: "ollama/llama3.2", want: &task.ModelRef{ProviderID: "ollama", ModelID: "llama3.2"}},
		{in: "ollama/library/qwen", want: &task.ModelRef{ProviderID: "ollama", ModelID: "library/qwen"}},
		{in: "llama3.2", fail: true},
		{in: "/x", fail: true},
	}
	for _, tt := range tests {
		got, err := parseModel(tt.in)
		if tt.fail {
			if err == nil {
				t.Fatalf("parseModel(%q) expected error", tt.in)
			}
			continue
		}
		if err != nil {
			t.Fatalf("parseModel(%q): %v", tt.in, err)
		}
		if (got == nil) != (tt.want == nil) || (got != nil && *got != *tt.want) {
			t.Fatalf("parseModel(%q) = %+v, want %+v", tt.in, got, tt.want)
		}
	}
}

func TestPatchFromFlags(t *testing.T) {
	cmd := &cobra.Command{Use: "update"}
	fl := cmd.Flags()
	fl.StringVar(&taskName, "name", "", "")
	fl.StringVar(&taskCron, "cron", "", "")
	fl.StringVar(&taskCwd, "cwd", "", "")
	fl.StringVar(&taskPrompt, "prompt", "", "")
	fl.StringVar(&taskModel, "model", "", "")
	fl.BoolVar(&taskEnabled, "enabled", true, "")

	if _, err := patchFromFlags(cmd); err == nil {
		t.Fatal("empty patch should fail")
	}
	if err := fl.Parse([]string{"--cron", "@hourly", "--enabled=false"}); err != nil {
		t.Fatal(err)
	}
	p, err := patchFromFlags(cmd)
	if err != nil {
		t.Fatalf("patchFromFlags: %v", err)
	}
	if p.Cron == nil || *p.Cron != "@hourly" || p.Enabled == nil || *p.Enabled || p.Name != nil || p.Model != nil {
		t.Fatalf("patch = %+v", p)
	}
}

func TestWriteTaskTable(t *testing.T) {
	var buf bytes.Buffer
	writeTaskTable(&buf, []task.Task{{ID: "tsk_1", Name: "nightly", Cron: "0 3 * * *", Enabled: true}})
	out := buf.String()
	for _, want := range []string{"ID", "tsk_1", "nightly", "0 3 * * *"} {
		if !strings.Contains(out, want) {
			t.Fatalf("table missing %q:\n%s", want, out)
		}
	}
}

func TestTruncate(t *testing.T) {
	if got := truncate("short", 10); got != "short" {
		t.Fatalf("truncate = %q", got)
	}
	if got := truncate("a much longer name", 6); got != "a muc…" {
		t.Fatalf("truncate = %q", got)
	}
}
