package config

// Config is the on-disk daemon configuration (YAML or JSON).
//
// All durations are Go duration strings ("500ms", "10s", "30m").
// Unknown keys are rejected on load and on reload.
type Config struct {
	Logging   LoggingConfig   `json:"logging"`
	Storage   StorageConfig   `json:"storage"`
	Scheduler SchedulerConfig `json:"scheduler"`
	HTTP      HTTPConfig      `json:"http"`
	Session   SessionConfig   `json:"session"`
	Systemd   SystemdConfig   `json:"systemd"`
}

type LoggingConfig struct {
	Level   string      `json:"level"`
	Console bool        `json:"console"`
	Format  string      `json:"format,omitempty"` // "console" (default) | "json"; stderr only
	File    LoggingFile `json:"file"`
}

type LoggingFile struct {
	Enabled bool   `json:"enabled"`
	Path    string `json:"path"`
}

// StorageConfig selects the key-value backend.
//
// Example:
//
//	storage: { driver: sqlite, path: ./data/agentcron.db, busy_timeout: 2s }
type StorageConfig struct {
	Driver      string `json:"driver"` // "file" (default) | "sqlite"
	Path        string `json:"path"`
	BusyTimeout string `json:"busy_timeout,omitempty"`
}

type SchedulerConfig struct {
	// Enabled is a pointer so an omitted key defaults to true.
	Enabled *bool `json:"enabled,omitempty"`
	// Timezone is an IANA name; empty means the process local zone.
	Timezone string `json:"timezone,omitempty"`
	// RunTimeout bounds one run's session pipeline; "0s" disables it.
	RunTimeout string `json:"run_timeout,omitempty"`
}

// HTTPConfig controls the API listener.
//
// Security:
//   - Prefer a loopback addr (default).
//   - A non-loopback addr requires Token unless AllowInsecure is set.
type HTTPConfig struct {
	Enabled       *bool  `json:"enabled,omitempty"`
	Addr          string `json:"addr,omitempty"`
	Token         string `json:"token,omitempty"` // bearer token (never logged)
	AllowInsecure bool   `json:"allow_insecure,omitempty"`

	// RunRatePerSec limits POST /tasks/{id}/run process-wide; 0 disables.
	RunRatePerSec float64 `json:"run_rate_per_sec,omitempty"`
	RunBurst      int     `json:"run_burst,omitempty"`

	ReadTimeout  string `json:"read_timeout,omitempty"`
	WriteTimeout string `json:"write_timeout,omitempty"`
	IdleTimeout  string `json:"idle_timeout,omitempty"`

	// Pprof mounts net/http/pprof under /debug/pprof/.
	Pprof bool `json:"pprof,omitempty"`
}

type SessionConfig struct {
	Provider     string `json:"provider,omitempty"` // "ollama"
	Host         string `json:"host,omitempty"`
	Model        string `json:"model,omitempty"`
	MaxFileBytes int64  `json:"max_file_bytes,omitempty"`
	Timeout      string `json:"timeout,omitempty"` // backend HTTP timeout
}

type SystemdConfig struct {
	Notify bool `json:"notify"`
}

// SchedulerEnabled reports scheduler.enabled with its default applied.
func (c *Config) SchedulerEnabled() bool {
	return c.Scheduler.Enabled == nil || *c.Scheduler.Enabled
}

// HTTPEnabled reports http.enabled with its default applied.
func (c *Config) HTTPEnabled() bool {
	return c.HTTP.Enabled == nil || *c.HTTP.Enabled
}
