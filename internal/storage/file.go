package storage

import (
	"context"
	"encoding/json"
	"errors"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	logx "agentcron/pkg/logx"
)

// fileStore keeps one JSON document per key.
//
// Layout:
//   - <root>/<k1>/.../<kn>.json
//
// Writes go to a temp file in the same directory and are renamed into place,
// so readers never observe a partial document.
type fileStore struct {
	log  logx.Logger
	root string

	mu     sync.RWMutex
	closed bool
}

func openFile(cfg Config, log logx.Logger) (KV, error) {
	root := strings.TrimSpace(cfg.Path)
	if root == "" {
		return nil, errors.New("storage.path is required for file driver")
	}
	if err := os.MkdirAll(root, 0o755); err != nil {
		return nil, err
	}
	return &fileStore{log: log, root: root}, nil
}

func (s *fileStore) pathFor(key []string) string {
	parts := append([]string{s.root}, key...)
	return filepath.Join(parts...) + ".json"
}

func (s *fileStore) Read(ctx context.Context, key []string, out any) error {
	_ = ctx
	if err := validateKey(key); err != nil {
		return err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return ErrClosed
	}
	b, err := os.ReadFile(s.pathFor(key))
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return ErrNotFound
		}
		return err
	}
	return json.Unmarshal(b, out)
}

func (s *fileStore) Write(ctx context.Context, key []string, v any) error {
	_ = ctx
	if err := validateKey(key); err != nil {
		return err
	}
	b, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrClosed
	}
	path := s.pathFor(key)
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	tmp := path + ".tmp"
	f, err := os.OpenFile(tmp, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, 0o600)
	if err != nil {
		return err
	}
	if _, err := f.Write(b); err != nil {
		_ = f.Close()
		_ = os.Remove(tmp)
		return err
	}
	if err := f.Close(); err != nil {
		_ = os.Remove(tmp)
		return err
	}
	return os.Rename(tmp, path)
}

func (s *fileStore) Delete(ctx context.Context, key []string) error {
	_ = ctx
	if err := validateKey(key); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrClosed
	}
	err := os.Remove(s.pathFor(key))
	if errors.Is(err, fs.ErrNotExist) {
		return ErrNotFound
	}
	return err
}

func (s *fileStore) List(ctx context.Context, prefix []string) ([][]string, error) {
	_ = ctx
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return nil, ErrClosed
	}

	dir := filepath.Join(append([]string{s.root}, prefix...)...)
	var keys [][]string
	err := filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				return fs.SkipAll
			}
			return err
		}
		if d.IsDir() || !strings.HasSuffix(path, ".json") {
			return nil
		}
		rel, err := filepath.Rel(s.root, strings.TrimSuffix(path, ".json"))
		if err != nil {
			return err
		}
		keys = append(keys, splitKey(filepath.ToSlash(rel)))
		return nil
	})
	if err != nil {
		return nil, err
	}
	sort.Slice(keys, func(i, j int) bool { return joinKey(keys[i]) < joinKey(keys[j]) })
	return keys, nil
}

func (s *fileStore) Close() error {
	s.mu.Lock()
	s.closed = true
	s.mu.Unlock()
	return nil
}
