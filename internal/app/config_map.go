package app

import (
	"fmt"
	"strings"
	"time"

	"agentcron/internal/api"
	"agentcron/internal/config"
	"agentcron/internal/session"
	"agentcron/internal/storage"
	"agentcron/internal/task/scheduler"
	logx "agentcron/pkg/logx"
)

const (
	defaultFileStorePath  = "./data/agentcron"
	defaultSQLitePath     = "./data/agentcron.db"
	defaultSQLiteBusy     = time.Second
	defaultModel          = "llama3.2"
	defaultRunTimeout     = 30 * time.Minute
	defaultAPIReadTimeout = 10 * time.Second
	defaultAPIIdleTimeout = 60 * time.Second
	defaultSessionTimeout = 0
)

func mapLogConfig(cfg *config.Config) logx.Config {
	return logx.Config{
		Level:   cfg.Logging.Level,
		Console: cfg.Logging.Console,
		Format:  cfg.Logging.Format,
		File: logx.FileConfig{
			Enabled: cfg.Logging.File.Enabled,
			Path:    cfg.Logging.File.Path,
		},
	}
}

func mapStorageConfig(cfg *config.Config) (storage.Config, error) {
	sc := cfg.Storage
	path := strings.TrimSpace(sc.Path)
	switch driver := strings.ToLower(strings.TrimSpace(sc.Driver)); driver {
	case "", "file":
		if path == "" {
			path = defaultFileStorePath
		}
		return storage.Config{Driver: "file", Path: path}, nil
	case "sqlite", "sqlite3":
		if path == "" {
			path = defaultSQLitePath
		}
		busy, err := config.ParseDurationOrDefault("storage.busy_timeout", sc.BusyTimeout, defaultSQLiteBusy)
		if err != nil {
			return storage.Config{}, err
		}
		return storage.Config{Driver: "sqlite", Path: path, BusyTimeout: busy}, nil
	default:
		return storage.Config{}, fmt.Errorf("unknown storage.driver: %s", sc.Driver)
	}
}

// mapSchedulerConfig treats an omitted run_timeout as the default and an
// explicit "0s" as unbounded.
func mapSchedulerConfig(cfg *config.Config) (scheduler.Config, error) {
	timeout := defaultRunTimeout
	if strings.TrimSpace(cfg.Scheduler.RunTimeout) != "" {
		d, err := config.ParseDurationField("scheduler.run_timeout", cfg.Scheduler.RunTimeout)
		if err != nil {
			return scheduler.Config{}, err
		}
		timeout = d
	}
	return scheduler.Config{
		Enabled:    cfg.SchedulerEnabled(),
		Timezone:   strings.TrimSpace(cfg.Scheduler.Timezone),
		RunTimeout: timeout,
	}, nil
}

func mapAPIConfig(cfg *config.Config) (api.Config, error) {
	h := cfg.HTTP
	read, err := config.ParseDurationOrDefault("http.read_timeout", h.ReadTimeout, defaultAPIReadTimeout)
	if err != nil {
		return api.Config{}, err
	}
	// Run requests block for the whole run, so no write timeout by default.
	write, err := config.ParseDurationField("http.write_timeout", h.WriteTimeout)
	if err != nil {
		return api.Config{}, err
	}
	idle, err := config.ParseDurationOrDefault("http.idle_timeout", h.IdleTimeout, defaultAPIIdleTimeout)
	if err != nil {
		return api.Config{}, err
	}
	return api.Config{
		Enabled:       cfg.HTTPEnabled(),
		Addr:          strings.TrimSpace(h.Addr),
		Token:         strings.TrimSpace(h.Token),
		AllowInsecure: h.AllowInsecure,
		RunRatePerSec: h.RunRatePerSec,
		RunBurst:      h.RunBurst,
		ReadTimeout:   read,
		WriteTimeout:  write,
		IdleTimeout:   idle,
		Pprof:         h.Pprof,
	}, nil
}

func mapSessionConfig(cfg *config.Config) (session.Config, error) {
	s := cfg.Session
	timeout, err := config.ParseDurationOrDefault("session.timeout", s.Timeout, defaultSessionTimeout)
	if err != nil {
		return session.Config{}, err
	}
	model := strings.TrimSpace(s.Model)
	if model == "" {
		model = defaultModel
	}
	provider := strings.ToLower(strings.TrimSpace(s.Provider))
	if provider == "" {
		provider = session.ProviderOllama
	}
	return session.Config{
		Provider:     provider,
		Host:         strings.TrimSpace(s.Host),
		Model:        model,
		MaxFileBytes: s.MaxFileBytes,
		Timeout:      timeout,
	}, nil
}

// validateReload rejects configs the running daemon cannot apply safely.
func validateReload(cfg *config.Config) error {
	if _, err := mapStorageConfig(cfg); err != nil {
		return err
	}
	if _, err := mapSchedulerConfig(cfg); err != nil {
		return err
	}
	ac, err := mapAPIConfig(cfg)
	if err != nil {
		return err
	}
	if ac.Enabled && ac.Token == "" && !ac.AllowInsecure && !api.IsLoopbackAddr(addrOrDefault(ac.Addr)) {
		return fmt.Errorf("http.addr %q: non-loopback addr requires http.token or http.allow_insecure", ac.Addr)
	}
	_, err = mapSessionConfig(cfg)
	return err
}

func addrOrDefault(addr string) string {
	if addr == "" {
		return api.DefaultAddr
	}
	return addr
}
