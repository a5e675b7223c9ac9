package logx

import (
	"bufio"
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func TestZeroLoggerIsSafe(t *testing.T) {
	var l Logger
	if !l.IsZero() {
		t.Fatal("zero Logger should report IsZero")
	}
	l.Info("dropped", String("k", "v"))
	l.With(Comp("x")).Error("dropped")
	if Nop().IsZero() {
		t.Fatal("Nop should not be zero")
	}
}

func TestWriterLevelAndFields(t *testing.T) {
	var buf bytes.Buffer
	l := NewWriter(&buf, "info").With(Comp("scheduler"))
	l.Debug("hidden")
	l.Info("task run completed", Task("tsk_1"), Session(""), Duration("took", 1500*time.Millisecond))

	out := buf.String()
	if strings.Contains(out, "hidden") {
		t.Fatalf("debug line written at info level:\n%s", out)
	}
	for _, want := range []string{"task run completed", "comp=", "scheduler", "task=", "tsk_1", "took=", "1.5s"} {
		if !strings.Contains(out, want) {
			t.Fatalf("output missing %q:\n%s", want, out)
		}
	}
	if strings.Contains(out, "session=") {
		t.Fatalf("empty session id should be omitted:\n%s", out)
	}
	if l.Enabled(LevelDebug) || !l.Enabled(LevelWarn) {
		t.Fatal("Enabled does not match level")
	}
}

func readJSONLines(t *testing.T, path string) []map[string]any {
	t.Helper()
	f, err := os.Open(path)
	if err != nil {
		t.Fatal(err)
	}
	defer f.Close()
	var out []map[string]any
	sc := bufio.NewScanner(f)
	for sc.Scan() {
		var m map[string]any
		if err := json.Unmarshal(sc.Bytes(), &m); err != nil {
			t.Fatalf("line %q: %v", sc.Text(), err)
		}
		out = append(out, m)
	}
	return out
}

func TestServiceApplyFollowsReload(t *testing.T) {
	path := filepath.Join(t.TempDir(), "agentcron.log")
	svc, l := New(Config{Level: "info", File: FileConfig{Enabled: true, Path: path}})
	defer svc.Close()

	l = l.With(Comp("app"))
	l.Debug("before")
	svc.Apply(Config{Level: "debug", File: FileConfig{Enabled: true, Path: path}})
	l.Debug("after", Task("tsk_2"), Err(os.ErrNotExist))

	lines := readJSONLines(t, path)
	if len(lines) != 1 {
		t.Fatalf("lines = %v", lines)
	}
	got := lines[0]
	if got["message"] != "after" || got["comp"] != "app" || got["task"] != "tsk_2" || got["err"] == nil {
		t.Fatalf("line = %v", got)
	}
	if _, ok := got["caller"].(string); !ok {
		t.Fatalf("missing caller: %v", got)
	}
}

func TestValidLevelAndFormat(t *testing.T) {
	for _, s := range []string{"", "debug", "WARN", "warning", " error "} {
		if !ValidLevel(s) {
			t.Fatalf("ValidLevel(%q) = false", s)
		}
	}
	if ValidLevel("loud") {
		t.Fatal("ValidLevel(loud) = true")
	}
	if !ValidFormat("JSON") || !ValidFormat("") || ValidFormat("xml") {
		t.Fatal("ValidFormat mismatch")
	}
}
