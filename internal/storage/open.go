package storage

import (
	"fmt"
	"strings"

	logx "agentcron/pkg/logx"
)

var drivers = map[string]func(Config, logx.Logger) (KV, error){
	"":        openFile,
	"file":    openFile,
	"sqlite":  openSQLite,
	"sqlite3": openSQLite,
}

// Open returns the KV backend named by cfg.Driver. Empty means "file".
func Open(cfg Config, log logx.Logger) (KV, error) {
	if log.IsZero() {
		log = logx.Nop()
	}
	name := strings.ToLower(strings.TrimSpace(cfg.Driver))
	open, ok := drivers[name]
	if !ok {
		return nil, fmt.Errorf("unknown storage driver: %q", cfg.Driver)
	}
	return open(cfg, log)
}
