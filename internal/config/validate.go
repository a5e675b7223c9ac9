package config

import (
	"errors"
	"fmt"
	"net"
	"strings"
	"time"

	logx "agentcron/pkg/logx"
)

func ParseDurationField(path, raw string) (time.Duration, error) {
	s := strings.TrimSpace(raw)
	if s == "" {
		return 0, nil
	}
	d, err := time.ParseDuration(s)
	if err != nil {
		return 0, fmt.Errorf("%s: invalid duration %q: %w", path, raw, err)
	}
	if d < 0 {
		return 0, fmt.Errorf("%s: duration must be >= 0", path)
	}
	return d, nil
}

// ParseDurationOrDefault returns def for an empty or zero value.
func ParseDurationOrDefault(path, raw string, def time.Duration) (time.Duration, error) {
	d, err := ParseDurationField(path, raw)
	if err != nil {
		return 0, err
	}
	if d <= 0 {
		return def, nil
	}
	return d, nil
}

// Validate reports every invalid field at once.
func (c *Config) Validate() error {
	var errs []error
	add := func(err error) {
		if err != nil {
			errs = append(errs, err)
		}
	}

	if lvl := strings.TrimSpace(c.Logging.Level); lvl != "" && !logx.ValidLevel(lvl) {
		add(fmt.Errorf("logging.level: unknown level %q", lvl))
	}
	if f := c.Logging.Format; !logx.ValidFormat(f) {
		add(fmt.Errorf("logging.format: want console or json, got %q", f))
	}

	switch strings.ToLower(strings.TrimSpace(c.Storage.Driver)) {
	case "", "file", "sqlite", "sqlite3":
	default:
		add(fmt.Errorf("storage.driver: unknown driver %q", c.Storage.Driver))
	}
	_, err := ParseDurationField("storage.busy_timeout", c.Storage.BusyTimeout)
	add(err)

	if tz := strings.TrimSpace(c.Scheduler.Timezone); tz != "" {
		if _, err := time.LoadLocation(tz); err != nil {
			add(fmt.Errorf("scheduler.timezone: %w", err))
		}
	}
	_, err = ParseDurationField("scheduler.run_timeout", c.Scheduler.RunTimeout)
	add(err)

	if addr := strings.TrimSpace(c.HTTP.Addr); addr != "" {
		if _, _, err := net.SplitHostPort(addr); err != nil {
			add(fmt.Errorf("http.addr: %w", err))
		}
	}
	if c.HTTP.RunRatePerSec < 0 {
		add(errors.New("http.run_rate_per_sec: must be >= 0"))
	}
	if c.HTTP.RunBurst < 0 {
		add(errors.New("http.run_burst: must be >= 0"))
	}
	for _, f := range []struct{ path, raw string }{
		{"http.read_timeout", c.HTTP.ReadTimeout},
		{"http.write_timeout", c.HTTP.WriteTimeout},
		{"http.idle_timeout", c.HTTP.IdleTimeout},
		{"session.timeout", c.Session.Timeout},
	} {
		_, err := ParseDurationField(f.path, f.raw)
		add(err)
	}

	switch strings.ToLower(strings.TrimSpace(c.Session.Provider)) {
	case "", "ollama":
	default:
		add(fmt.Errorf("session.provider: unsupported provider %q", c.Session.Provider))
	}
	if c.Session.MaxFileBytes < 0 {
		add(errors.New("session.max_file_bytes: must be >= 0"))
	}

	return errors.Join(errs...)
}
