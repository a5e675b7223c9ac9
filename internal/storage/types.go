package storage

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"
)

var (
	ErrNotFound   = errors.New("storage: not found")
	ErrClosed     = errors.New("storage: closed")
	ErrInvalidKey = errors.New("storage: invalid key")
)

// Config configures storage.
//
// Driver values:
//   - "file": JSON files under Path (a directory)
//   - "sqlite": SQLite database file at Path
type Config struct {
	Driver      string
	Path        string
	BusyTimeout time.Duration // sqlite only; 0 means default
}

// KV is the persistence API used by the task store and session pipeline.
//
// Read decodes the JSON document stored at key into out.
// List returns every stored key that starts with prefix, sorted.
type KV interface {
	Read(ctx context.Context, key []string, out any) error
	Write(ctx context.Context, key []string, v any) error
	Delete(ctx context.Context, key []string) error
	List(ctx context.Context, prefix []string) ([][]string, error)
	Close() error
}

// validateKey rejects keys that cannot be mapped safely onto a file path.
func validateKey(key []string) error {
	if len(key) == 0 {
		return fmt.Errorf("%w: empty", ErrInvalidKey)
	}
	for _, k := range key {
		if strings.TrimSpace(k) == "" || k == "." || k == ".." || strings.ContainsAny(k, `/\`) {
			return fmt.Errorf("%w: %q", ErrInvalidKey, strings.Join(key, "/"))
		}
	}
	return nil
}

func joinKey(key []string) string { return strings.Join(key, "/") }

func splitKey(s string) []string { return strings.Split(s, "/") }
