package logx

import (
	"fmt"
	"io"
	"os"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/rs/zerolog"
)

const (
	timeFormat      = "2006-01-02T15:04:05.000Z07:00"
	defaultFilePath = "./agentcron.log"
)

// Config selects level and sinks.
//
// Format applies to the stderr sink: "console" (default) or "json" for
// journald and log shippers. The file sink always writes JSON lines.
type Config struct {
	Level   string
	Console bool
	Format  string
	File    FileConfig
}

type FileConfig struct {
	Enabled bool
	Path    string
}

// Service owns the sinks behind every Logger it hands out.
type Service struct {
	mu   sync.Mutex
	file *os.File
	path string

	root atomic.Pointer[zerolog.Logger]
}

var globalsOnce sync.Once

func setGlobals() {
	globalsOnce.Do(func() {
		zerolog.ErrorFieldName = "err"
		zerolog.TimeFieldFormat = timeFormat
	})
}

// New builds the service from cfg and returns it with its root Logger.
func New(cfg Config) (*Service, Logger) {
	setGlobals()
	s := &Service{}
	s.Apply(cfg)
	return s, Logger{svc: s}
}

func (s *Service) Logger() Logger { return Logger{svc: s} }

func (s *Service) current() zerolog.Logger {
	if zl := s.root.Load(); zl != nil {
		return *zl
	}
	return zerolog.Nop()
}

// Apply rebuilds the root logger. The log file is reopened only when its
// path changes, and a file that fails to open keeps the previous one.
func (s *Service) Apply(cfg Config) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var writers []io.Writer
	if cfg.Console {
		writers = append(writers, stderrWriter(cfg.Format))
	}

	path := strings.TrimSpace(cfg.File.Path)
	if path == "" {
		path = defaultFilePath
	}
	switch {
	case !cfg.File.Enabled:
		s.closeFileLocked()
	case s.file == nil || s.path != path:
		f, err := os.OpenFile(path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
		if err != nil {
			fmt.Fprintf(os.Stderr, "logx: open log file %q: %v\n", path, err)
			break
		}
		s.closeFileLocked()
		s.file, s.path = f, path
	}
	if s.file != nil {
		writers = append(writers, zerolog.SyncWriter(s.file))
	}

	if len(writers) == 0 {
		writers = append(writers, stderrWriter(cfg.Format))
	}
	zl := zerolog.New(zerolog.MultiLevelWriter(writers...)).
		Level(parseLevel(cfg.Level, zerolog.InfoLevel)).
		With().Timestamp().Logger()
	s.root.Store(&zl)
}

func (s *Service) closeFileLocked() {
	if s.file != nil {
		_ = s.file.Close()
		s.file, s.path = nil, ""
	}
}

// Close releases the log file. Loggers keep writing to stderr sinks.
func (s *Service) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.file == nil {
		return nil
	}
	err := s.file.Close()
	s.file, s.path = nil, ""
	return err
}

func stderrWriter(format string) io.Writer {
	if strings.EqualFold(strings.TrimSpace(format), "json") {
		return zerolog.SyncWriter(Stderr())
	}
	return newConsoleWriter(Stderr())
}

func newConsoleWriter(w io.Writer) io.Writer {
	return zerolog.ConsoleWriter{
		Out:          w,
		TimeFormat:   timeFormat,
		FormatCaller: func(i any) string {
			s, _ := i.(string)
			return s
		},
	}
}

func parseLevel(s string, def zerolog.Level) zerolog.Level {
	switch strings.ToUpper(strings.TrimSpace(s)) {
	case "TRACE":
		return zerolog.TraceLevel
	case "DEBUG":
		return zerolog.DebugLevel
	case "INFO":
		return zerolog.InfoLevel
	case "WARN", "WARNING":
		return zerolog.WarnLevel
	case "ERROR":
		return zerolog.ErrorLevel
	}
	return def
}

// ValidLevel reports whether s names a known level. Empty is valid.
func ValidLevel(s string) bool {
	switch strings.ToUpper(strings.TrimSpace(s)) {
	case "", "TRACE", "DEBUG", "INFO", "WARN", "WARNING", "ERROR":
		return true
	}
	return false
}

// ValidFormat reports whether s names a stderr format. Empty is valid.
func ValidFormat(s string) bool {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "console", "json":
		return true
	}
	return false
}

func Stdout() io.Writer { return os.Stdout }
func Stderr() io.Writer { return os.Stderr }
