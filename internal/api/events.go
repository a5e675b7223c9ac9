package api

import (
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"agentcron/internal/eventbus"
	logx "agentcron/pkg/logx"
)

const (
	eventBuffer    = 64
	eventKeepalive = 30 * time.Second
)

// events streams the global fan-out bus as Server-Sent Events.
// Each frame is `data: {"directory":"global","payload":{...}}`.
func (s *Server) events(w http.ResponseWriter, r *http.Request) {
	if s.bus == nil {
		writeJSON(w, http.StatusServiceUnavailable, errorResponse{Error: "event stream unavailable"})
		return
	}
	rc := http.NewResponseController(w)
	// SSE outlives any configured write timeout.
	_ = rc.SetWriteDeadline(time.Time{})

	ch, unsubscribe := s.bus.Subscribe(eventBuffer)
	defer unsubscribe()

	h := w.Header()
	h.Set("Content-Type", "text/event-stream")
	h.Set("Cache-Control", "no-cache")
	h.Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)

	send := func(v any) bool {
		b, err := json.Marshal(v)
		if err != nil {
			s.log.Warn("event encode failed", logx.Err(err))
			return true
		}
		if _, err := fmt.Fprintf(w, "data: %s\n\n", b); err != nil {
			return false
		}
		return rc.Flush() == nil
	}

	if !send(eventbus.Envelope{
		Directory: eventbus.GlobalDirectory,
		Payload:   eventbus.Payload{Type: "server.connected", Properties: struct{}{}},
	}) {
		return
	}

	ping := time.NewTicker(eventKeepalive)
	defer ping.Stop()
	for {
		select {
		case <-r.Context().Done():
			return
		case <-ping.C:
			if _, err := fmt.Fprint(w, ": ping\n\n"); err != nil || rc.Flush() != nil {
				return
			}
		case e, ok := <-ch:
			if !ok {
				return
			}
			if e.Type != eventbus.GlobalEventType {
				continue
			}
			if !send(e.Data) {
				return
			}
		}
	}
}
