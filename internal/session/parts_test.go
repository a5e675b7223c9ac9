package session

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestResolveParts(t *testing.T) {
	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, "notes.md"), []byte("remember the milk"), 0o644); err != nil {
		t.Fatal(err)
	}
	if err := os.MkdirAll(filepath.Join(dir, "sub"), 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(dir, "sub", "big.txt"), []byte(strings.Repeat("x", 100)), 0o644); err != nil {
		t.Fatal(err)
	}

	tests := []struct {
		name      string
		prompt    string
		wantFiles []string
		truncated bool
	}{
		{"plain text", "just do it", nil, false},
		{"one file", "summarize @notes.md please", []string{"notes.md"}, false},
		{"trailing punctuation", "look at @notes.md.", []string{"notes.md"}, false},
		{"duplicate ref", "@notes.md and again @notes.md", []string{"notes.md"}, false},
		{"missing file", "read @nope.txt", nil, false},
		{"directory ref", "list @sub", nil, false},
		{"escape attempt", "read @../../etc/passwd", nil, false},
		{"truncated", "check @sub/big.txt", []string{"sub/big.txt"}, true},
		{"email is not a ref", "mail me at a@b.c", nil, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			parts, err := ResolveParts(dir, tt.prompt, 32)
			if err != nil {
				t.Fatalf("ResolveParts: %v", err)
			}
			if parts[0].Type != PartText || parts[0].Text != tt.prompt {
				t.Fatalf("first part = %+v", parts[0])
			}
			files := parts[1:]
			if len(files) != len(tt.wantFiles) {
				t.Fatalf("file parts = %+v, want %v", files, tt.wantFiles)
			}
			for i, f := range files {
				if f.Type != PartFile || f.Path != tt.wantFiles[i] {
					t.Fatalf("part %d = %+v", i, f)
				}
				if f.Truncated != tt.truncated {
					t.Fatalf("Truncated = %v", f.Truncated)
				}
				if len(f.Text) > 32 {
					t.Fatalf("content not capped: %d bytes", len(f.Text))
				}
			}
		})
	}
}

func TestResolvePartsEmptyPrompt(t *testing.T) {
	if _, err := ResolveParts(t.TempDir(), "  ", 0); !errors.Is(err, ErrEmptyPrompt) {
		t.Fatalf("err = %v, want ErrEmptyPrompt", err)
	}
}
