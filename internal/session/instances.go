package session

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sync"

	logx "agentcron/pkg/logx"
)

// InstructionsFile is loaded from a working directory as system instructions.
const InstructionsFile = "AGENTS.md"

// Instances caches one bootstrapped Instance per absolute directory.
type Instances struct {
	mu    sync.Mutex
	byDir map[string]*Instance
	log   logx.Logger
}

func NewInstances(log logx.Logger) *Instances {
	if log.IsZero() {
		log = logx.Nop()
	}
	return &Instances{byDir: map[string]*Instance{}, log: log}
}

// Get returns the Instance for dir, bootstrapping it on first use.
func (c *Instances) Get(dir string) (*Instance, error) {
	abs, err := filepath.Abs(dir)
	if err != nil {
		return nil, fmt.Errorf("resolve %q: %w", dir, err)
	}
	abs = filepath.Clean(abs)

	c.mu.Lock()
	defer c.mu.Unlock()
	if inst, ok := c.byDir[abs]; ok {
		return inst, nil
	}

	st, err := os.Stat(abs)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("%w: %s", ErrNoDirectory, abs)
		}
		return nil, err
	}
	if !st.IsDir() {
		return nil, fmt.Errorf("%w: %s is not a directory", ErrNoDirectory, abs)
	}

	inst := &Instance{Directory: abs}
	if isFilesystemRoot(abs) {
		// Nothing is loaded at a filesystem root.
		inst.Root = true
	} else {
		b, err := os.ReadFile(filepath.Join(abs, InstructionsFile))
		switch {
		case err == nil:
			inst.Instructions = string(b)
		case errors.Is(err, fs.ErrNotExist):
		default:
			c.log.Warn("instructions unreadable", logx.String("dir", abs), logx.Err(err))
		}
	}
	c.byDir[abs] = inst
	c.log.Debug("instance bootstrapped", logx.String("dir", abs), logx.Bool("root", inst.Root),
		logx.Bool("instructions", inst.Instructions != ""))
	return inst, nil
}

// Forget drops the cached Instance for dir so the next Get reloads it.
func (c *Instances) Forget(dir string) {
	abs, err := filepath.Abs(dir)
	if err != nil {
		return
	}
	c.mu.Lock()
	delete(c.byDir, filepath.Clean(abs))
	c.mu.Unlock()
}

func isFilesystemRoot(p string) bool {
	return filepath.Dir(p) == p
}
