package storage

import (
	"context"
	"errors"
	"path/filepath"
	"testing"

	logx "agentcron/pkg/logx"
)

type doc struct {
	Name  string `json:"name"`
	Count int    `json:"count"`
}

func openDrivers(t *testing.T) map[string]KV {
	t.Helper()
	dir := t.TempDir()
	out := map[string]KV{}
	for _, cfg := range []Config{
		{Driver: "file", Path: filepath.Join(dir, "files")},
		{Driver: "sqlite", Path: filepath.Join(dir, "db", "agentcron.db")},
	} {
		kv, err := Open(cfg, logx.Nop())
		if err != nil {
			t.Fatalf("Open(%s): %v", cfg.Driver, err)
		}
		t.Cleanup(func() { _ = kv.Close() })
		out[cfg.Driver] = kv
	}
	return out
}

func TestReadMissingKeyIsNotFound(t *testing.T) {
	for name, kv := range openDrivers(t) {
		t.Run(name, func(t *testing.T) {
			var d doc
			err := kv.Read(context.Background(), []string{"scheduler", "tasks"}, &d)
			if !errors.Is(err, ErrNotFound) {
				t.Fatalf("err = %v, want ErrNotFound", err)
			}
		})
	}
}

func TestWriteReadOverwrite(t *testing.T) {
	ctx := context.Background()
	for name, kv := range openDrivers(t) {
		t.Run(name, func(t *testing.T) {
			key := []string{"scheduler", "tasks"}
			if err := kv.Write(ctx, key, doc{Name: "a", Count: 1}); err != nil {
				t.Fatalf("Write: %v", err)
			}
			if err := kv.Write(ctx, key, doc{Name: "b", Count: 2}); err != nil {
				t.Fatalf("Write (overwrite): %v", err)
			}
			var got doc
			if err := kv.Read(ctx, key, &got); err != nil {
				t.Fatalf("Read: %v", err)
			}
			if got.Name != "b" || got.Count != 2 {
				t.Fatalf("got %+v, want {b 2}", got)
			}
		})
	}
}

func TestDeleteAndList(t *testing.T) {
	ctx := context.Background()
	for name, kv := range openDrivers(t) {
		t.Run(name, func(t *testing.T) {
			for _, id := range []string{"ses_b", "ses_a"} {
				if err := kv.Write(ctx, []string{"session", id}, doc{Name: id}); err != nil {
					t.Fatalf("Write: %v", err)
				}
			}
			if err := kv.Write(ctx, []string{"scheduler", "tasks"}, doc{}); err != nil {
				t.Fatalf("Write: %v", err)
			}

			keys, err := kv.List(ctx, []string{"session"})
			if err != nil {
				t.Fatalf("List: %v", err)
			}
			if len(keys) != 2 || keys[0][1] != "ses_a" || keys[1][1] != "ses_b" {
				t.Fatalf("List = %v, want [session/ses_a session/ses_b]", keys)
			}

			if err := kv.Delete(ctx, []string{"session", "ses_a"}); err != nil {
				t.Fatalf("Delete: %v", err)
			}
			if err := kv.Delete(ctx, []string{"session", "ses_a"}); !errors.Is(err, ErrNotFound) {
				t.Fatalf("second Delete err = %v, want ErrNotFound", err)
			}
			keys, err = kv.List(ctx, []string{"session"})
			if err != nil {
				t.Fatalf("List: %v", err)
			}
			if len(keys) != 1 {
				t.Fatalf("List after delete = %v", keys)
			}
		})
	}
}

func TestInvalidKeys(t *testing.T) {
	t.Parallel()
	tests := [][]string{
		nil,
		{""},
		{".."},
		{"a/b"},
		{"scheduler", `x\y`},
	}
	for _, key := range tests {
		if err := validateKey(key); !errors.Is(err, ErrInvalidKey) {
			t.Fatalf("validateKey(%q) = %v, want ErrInvalidKey", key, err)
		}
	}
	if err := validateKey([]string{"scheduler", "tasks"}); err != nil {
		t.Fatalf("validateKey(valid) = %v", err)
	}
}

func TestUnknownDriver(t *testing.T) {
	t.Parallel()
	if _, err := Open(Config{Driver: "redis"}, logx.Nop()); err == nil {
		t.Fatal("expected error for unknown driver")
	}
}
