package config

import (
	"strings"

	logx "agentcron/pkg/logx"
)

// Change lists what a reload touched.
type Change struct {
	Sections []string
	Fields   []logx.Field // safe for logs; secrets are reported as *_set booleans

	// RestartRequired names sections whose change only takes effect after a restart.
	RestartRequired []string
}

func (c Change) Empty() bool { return len(c.Sections) == 0 }

func (c Change) Has(section string) bool {
	for _, s := range c.Sections {
		if s == section {
			return true
		}
	}
	return false
}

// Diff summarizes the difference between two configs.
func Diff(oldCfg, newCfg *Config) Change {
	if oldCfg == nil {
		oldCfg = &Config{}
	}
	if newCfg == nil {
		newCfg = &Config{}
	}
	var ch Change
	mark := func(section string, restart bool, fields ...logx.Field) {
		ch.Sections = append(ch.Sections, section)
		ch.Fields = append(ch.Fields, fields...)
		if restart {
			ch.RestartRequired = append(ch.RestartRequired, section)
		}
	}

	if oldCfg.Logging != newCfg.Logging {
		mark("logging", false,
			logx.String("logging.level", newCfg.Logging.Level),
			logx.Bool("logging.console", newCfg.Logging.Console),
			logx.String("logging.format", newCfg.Logging.Format),
			logx.Bool("logging.file", newCfg.Logging.File.Enabled),
		)
	}
	if oldCfg.Storage != newCfg.Storage {
		mark("storage", true,
			logx.String("storage.driver", newCfg.Storage.Driver),
			logx.String("storage.path", newCfg.Storage.Path),
		)
	}
	if oldCfg.SchedulerEnabled() != newCfg.SchedulerEnabled() ||
		strings.TrimSpace(oldCfg.Scheduler.Timezone) != strings.TrimSpace(newCfg.Scheduler.Timezone) ||
		strings.TrimSpace(oldCfg.Scheduler.RunTimeout) != strings.TrimSpace(newCfg.Scheduler.RunTimeout) {
		mark("scheduler", false,
			logx.Bool("scheduler.enabled", newCfg.SchedulerEnabled()),
			logx.String("scheduler.timezone", newCfg.Scheduler.Timezone),
			logx.String("scheduler.run_timeout", newCfg.Scheduler.RunTimeout),
		)
	}
	if httpChanged(oldCfg.HTTP, newCfg.HTTP) || oldCfg.HTTPEnabled() != newCfg.HTTPEnabled() {
		mark("http", false,
			logx.Bool("http.enabled", newCfg.HTTPEnabled()),
			logx.String("http.addr", newCfg.HTTP.Addr),
			logx.Bool("http.token_set", strings.TrimSpace(newCfg.HTTP.Token) != ""),
			logx.Any("http.run_rate_per_sec", newCfg.HTTP.RunRatePerSec),
		)
	}
	if oldCfg.Session != newCfg.Session {
		mark("session", true,
			logx.String("session.host", newCfg.Session.Host),
			logx.String("session.model", newCfg.Session.Model),
		)
	}
	if oldCfg.Systemd != newCfg.Systemd {
		mark("systemd", true, logx.Bool("systemd.notify", newCfg.Systemd.Notify))
	}
	return ch
}

func httpChanged(a, b HTTPConfig) bool {
	a.Enabled, b.Enabled = nil, nil
	return a != b
}
