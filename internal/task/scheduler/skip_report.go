package scheduler

import (
	"sync"
	"time"

	logx "agentcron/pkg/logx"
)

const skipWarnThrottle = 5 * time.Second

// skipReporter logs overlap skips, warning at most once per task per throttle window.
type skipReporter struct {
	mu   sync.Mutex
	last map[string]time.Time
}

func (s *skipReporter) report(log logx.Logger, id string, now time.Time) {
	s.mu.Lock()
	if s.last == nil {
		s.last = make(map[string]time.Time)
	}
	last := s.last[id]
	throttled := !last.IsZero() && now.Sub(last) < skipWarnThrottle
	if !throttled {
		s.last[id] = now
	}
	s.mu.Unlock()

	if throttled {
		log.Debug("run skipped; previous run still in flight", logx.Task(id))
		return
	}
	log.Warn("run skipped; previous run still in flight", logx.Task(id))
}

func (s *skipReporter) forget(id string) {
	s.mu.Lock()
	delete(s.last, id)
	s.mu.Unlock()
}
