package config

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

const sampleYAML = `
logging:
  level: debug
  console: true
storage:
  driver: sqlite
  path: ./data/agentcron.db
  busy_timeout: 2s
scheduler:
  timezone: UTC
  run_timeout: 30m
http:
  addr: 127.0.0.1:7470
  run_rate_per_sec: 2
session:
  model: llama3.2
systemd:
  notify: true
`

func writeFile(t *testing.T, name, body string) string {
	t.Helper()
	p := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(p, []byte(body), 0o644); err != nil {
		t.Fatal(err)
	}
	return p
}

func TestLoadYAML(t *testing.T) {
	m := NewManager(writeFile(t, "agentcron.yaml", sampleYAML))
	cfg, err := m.Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Storage.Driver != "sqlite" || cfg.Scheduler.Timezone != "UTC" || cfg.HTTP.RunRatePerSec != 2 {
		t.Fatalf("cfg = %+v", cfg)
	}
	if !cfg.SchedulerEnabled() || !cfg.HTTPEnabled() {
		t.Fatal("omitted enabled flags should default to true")
	}
	if m.Get() != cfg {
		t.Fatal("Load did not commit")
	}
}

func TestDecodeEmptyYAML(t *testing.T) {
	cfg, err := Decode("empty.yaml", nil)
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	if cfg.Storage.Driver != "" {
		t.Fatalf("cfg = %+v", cfg)
	}
}

func TestDecodeRejects(t *testing.T) {
	tests := []struct {
		name string
		path string
		body string
		want string
	}{
		{"unknown key", "c.yaml", "scheduler:\n  tz: UTC\n", "unknown field"},
		{"trailing json", "c.json", `{"logging":{}} {}`, "trailing data"},
		{"bad level", "c.yaml", "logging:\n  level: loud\n", "logging.level"},
		{"bad format", "c.yaml", "logging:\n  format: xml\n", "logging.format"},
		{"bad driver", "c.yaml", "storage:\n  driver: redis\n", "storage.driver"},
		{"bad timezone", "c.yaml", "scheduler:\n  timezone: Mars/Base\n", "scheduler.timezone"},
		{"bad duration", "c.yaml", "scheduler:\n  run_timeout: soon\n", "scheduler.run_timeout"},
		{"negative rate", "c.yaml", "http:\n  run_rate_per_sec: -1\n", "run_rate_per_sec"},
		{"bad addr", "c.yaml", "http:\n  addr: nowhere\n", "http.addr"},
		{"foreign provider", "c.yaml", "session:\n  provider: openai\n", "session.provider"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Decode(tt.path, []byte(tt.body))
			if err == nil || !strings.Contains(err.Error(), tt.want) {
				t.Fatalf("Decode err = %v, want %q", err, tt.want)
			}
		})
	}
}

func TestValidateJoinsErrors(t *testing.T) {
	cfg := &Config{
		Logging: LoggingConfig{Level: "loud"},
		HTTP:    HTTPConfig{RunBurst: -1},
	}
	err := cfg.Validate()
	if err == nil {
		t.Fatal("expected errors")
	}
	msg := err.Error()
	if !strings.Contains(msg, "logging.level") || !strings.Contains(msg, "http.run_burst") {
		t.Fatalf("err = %v", err)
	}
}

func TestParseDurationOrDefault(t *testing.T) {
	d, err := ParseDurationOrDefault("x", "", time.Minute)
	if err != nil || d != time.Minute {
		t.Fatalf("got %v, %v", d, err)
	}
	d, err = ParseDurationOrDefault("x", "5s", time.Minute)
	if err != nil || d != 5*time.Second {
		t.Fatalf("got %v, %v", d, err)
	}
	if _, err := ParseDurationField("x", "-1s"); err == nil {
		t.Fatal("negative duration accepted")
	}
}

func TestDiff(t *testing.T) {
	base, err := Decode("c.yaml", []byte(sampleYAML))
	if err != nil {
		t.Fatal(err)
	}
	same := *base
	if ch := Diff(base, &same); !ch.Empty() {
		t.Fatalf("identical configs differ: %v", ch.Sections)
	}

	next := *base
	next.Scheduler.Timezone = "Asia/Tokyo"
	next.HTTP.Token = "secret"
	next.Storage.Path = "./other.db"
	ch := Diff(base, &next)
	for _, s := range []string{"scheduler", "http", "storage"} {
		if !ch.Has(s) {
			t.Fatalf("sections = %v, missing %s", ch.Sections, s)
		}
	}
	if ch.Has("logging") {
		t.Fatalf("sections = %v", ch.Sections)
	}
	if len(ch.RestartRequired) != 1 || ch.RestartRequired[0] != "storage" {
		t.Fatalf("restart required = %v", ch.RestartRequired)
	}
}

func TestWatchPublishesReload(t *testing.T) {
	path := writeFile(t, "agentcron.yaml", sampleYAML)
	m := NewManager(path)
	if _, err := m.Load(); err != nil {
		t.Fatal(err)
	}
	updates := m.Subscribe(1)
	defer m.Unsubscribe(updates)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() { _ = m.Watch(ctx) }()

	// Give the watcher time to register before touching the file.
	time.Sleep(100 * time.Millisecond)
	body := strings.Replace(sampleYAML, "timezone: UTC", "timezone: Asia/Tokyo", 1)
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatal(err)
	}

	select {
	case cfg := <-updates:
		if cfg.Scheduler.Timezone != "Asia/Tokyo" {
			t.Fatalf("timezone = %q", cfg.Scheduler.Timezone)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("no reload published")
	}
	if m.Get().Scheduler.Timezone != "Asia/Tokyo" {
		t.Fatal("reload not committed")
	}
}

func TestReloadValidatorRejects(t *testing.T) {
	path := writeFile(t, "agentcron.yaml", sampleYAML)
	m := NewManager(path)
	if _, err := m.Load(); err != nil {
		t.Fatal(err)
	}
	m.SetValidator(func(context.Context, *Config) error { return errors.New("no") })
	updates := m.Subscribe(1)

	body := strings.Replace(sampleYAML, "level: debug", "level: warn", 1)
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatal(err)
	}
	m.reload(context.Background())

	select {
	case <-updates:
		t.Fatal("rejected config was published")
	default:
	}
	if m.Get().Logging.Level != "debug" {
		t.Fatalf("level = %q", m.Get().Logging.Level)
	}
}
