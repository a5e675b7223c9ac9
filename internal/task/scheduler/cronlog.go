package scheduler

import (
	"fmt"

	logx "agentcron/pkg/logx"
)

// cronLogger routes robfig/cron's internal logging into logx.
// Its chatty Info lines (wake, run, added) go to trace.
type cronLogger struct {
	log logx.Logger
}

func (l cronLogger) Info(msg string, keysAndValues ...interface{}) {
	l.log.Trace("cron: "+msg, kvFields(keysAndValues)...)
}

func (l cronLogger) Error(err error, msg string, keysAndValues ...interface{}) {
	fields := append(kvFields(keysAndValues), logx.Err(err))
	l.log.Error("cron: "+msg, fields...)
}

func kvFields(kv []interface{}) []logx.Field {
	out := make([]logx.Field, 0, (len(kv)+1)/2)
	for i := 0; i < len(kv); i += 2 {
		key := fmt.Sprint(kv[i])
		if i+1 >= len(kv) {
			out = append(out, logx.String(key, ""))
			break
		}
		out = append(out, logx.Any(key, kv[i+1]))
	}
	return out
}
