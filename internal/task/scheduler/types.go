package scheduler

import (
	"errors"
	"fmt"
	"time"
)

// Config controls the registry and trigger.
type Config struct {
	Enabled    bool
	Timezone   string        // IANA TZ, e.g. "Europe/Berlin"; empty means process local
	RunTimeout time.Duration // bounds the session pipeline part of a run; 0 = unbounded
}

var ErrSchedule = errors.New("invalid schedule")

// ScheduleError reports a cron expression the parser rejected.
type ScheduleError struct {
	Spec string
	Err  error
}

func (e *ScheduleError) Error() string {
	return fmt.Sprintf("invalid cron %q: %v", e.Spec, e.Err)
}

func (e *ScheduleError) Unwrap() error { return e.Err }

func (e *ScheduleError) Is(target error) bool { return target == ErrSchedule }

// EntryInfo describes one live timer.
type EntryInfo struct {
	TaskID  string    `json:"taskId"`
	Cron    string    `json:"cron"`
	Next    time.Time `json:"next"`
	Prev    time.Time `json:"prev,omitzero"`
	Running bool      `json:"running"`
}

// Snapshot is a diagnostic view of the registry.
type Snapshot struct {
	Enabled     bool        `json:"enabled"`
	Initialized bool        `json:"initialized"`
	Timezone    string      `json:"timezone"`
	InFlight    int         `json:"inFlight"`
	Entries     []EntryInfo `json:"entries"`
}
