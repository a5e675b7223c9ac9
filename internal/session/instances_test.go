package session

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	logx "agentcron/pkg/logx"
)

func TestInstancesLoadsInstructions(t *testing.T) {
	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, InstructionsFile), []byte("be terse"), 0o644); err != nil {
		t.Fatal(err)
	}
	c := NewInstances(logx.Nop())
	inst, err := c.Get(dir)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if inst.Root || inst.Instructions != "be terse" {
		t.Fatalf("instance = %+v", inst)
	}

	again, _ := c.Get(dir + string(filepath.Separator))
	if again != inst {
		t.Fatal("expected cached instance for the same directory")
	}
	c.Forget(dir)
	if fresh, _ := c.Get(dir); fresh == inst {
		t.Fatal("expected a new instance after Forget")
	}
}

func TestInstancesMissingDirectory(t *testing.T) {
	c := NewInstances(logx.Nop())
	_, err := c.Get(filepath.Join(t.TempDir(), "gone"))
	if !errors.Is(err, ErrNoDirectory) {
		t.Fatalf("err = %v, want ErrNoDirectory", err)
	}

	f := filepath.Join(t.TempDir(), "file")
	if err := os.WriteFile(f, nil, 0o644); err != nil {
		t.Fatal(err)
	}
	if _, err := c.Get(f); !errors.Is(err, ErrNoDirectory) {
		t.Fatalf("file err = %v, want ErrNoDirectory", err)
	}
}

func TestInstancesFilesystemRoot(t *testing.T) {
	root := filepath.VolumeName(os.TempDir()) + string(filepath.Separator)
	inst, err := NewInstances(logx.Nop()).Get(root)
	if err != nil {
		t.Fatalf("Get(%q): %v", root, err)
	}
	if !inst.Root || inst.Instructions != "" {
		t.Fatalf("instance = %+v", inst)
	}
}
