package api

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	hpprof "net/http/pprof"
	"strings"
	"time"

	"agentcron/internal/task"
	"agentcron/internal/task/scheduler"
	logx "agentcron/pkg/logx"
)

// Scheduler is the task surface the API serves. *scheduler.Service implements it.
type Scheduler interface {
	List(ctx context.Context) ([]task.Task, error)
	Get(ctx context.Context, id string) (task.Task, bool, error)
	Create(ctx context.Context, in task.CreateInput) (task.Task, error)
	Update(ctx context.Context, id string, p task.Patch) (task.Task, error)
	Delete(ctx context.Context, id string) error
	RunNow(ctx context.Context, id string) (sessionID string, ok bool, err error)
	NextRun(id string) (time.Time, bool)
	Snapshot() scheduler.Snapshot
}

// TimeFormat is ISO-8601 in UTC with milliseconds.
const TimeFormat = "2006-01-02T15:04:05.000Z07:00"

const maxBodyBytes = 1 << 20

type RunResponse struct {
	SessionID string `json:"sessionId,omitempty"`
}

type NextRunResponse struct {
	NextRun *string `json:"nextRun"`
}

type errorResponse struct {
	Error string `json:"error"`
}

// Handler returns the router for the current config.
func (s *Server) Handler() http.Handler {
	s.mu.Lock()
	cur := s.cfg
	s.mu.Unlock()
	return s.handlerFor(cur)
}

func (s *Server) handlerFor(cur Config) http.Handler {
	mux := http.NewServeMux()
	auth := func(h http.HandlerFunc) http.HandlerFunc { return withAuth(cur.Token, h) }

	mux.HandleFunc("GET /healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})

	// The routes are served at the root and under /scheduler.
	for _, prefix := range []string{"", "/scheduler"} {
		mux.HandleFunc("GET "+prefix+"/tasks", auth(s.listTasks))
		mux.HandleFunc("POST "+prefix+"/tasks", auth(s.createTask))
		mux.HandleFunc("GET "+prefix+"/tasks/{id}", auth(s.getTask))
		mux.HandleFunc("PUT "+prefix+"/tasks/{id}", auth(s.updateTask))
		mux.HandleFunc("DELETE "+prefix+"/tasks/{id}", auth(s.deleteTask))
		mux.HandleFunc("POST "+prefix+"/tasks/{id}/run", auth(s.runTask))
		mux.HandleFunc("GET "+prefix+"/tasks/{id}/next-run", auth(s.nextRun))
	}
	mux.HandleFunc("GET /scheduler", auth(s.snapshot))
	mux.HandleFunc("GET /status", auth(s.statusReport))
	mux.HandleFunc("GET /event", auth(s.events))

	if cur.Pprof {
		mux.HandleFunc("/debug/pprof/", auth(hpprof.Index))
		mux.HandleFunc("/debug/pprof/cmdline", auth(hpprof.Cmdline))
		mux.HandleFunc("/debug/pprof/profile", auth(hpprof.Profile))
		mux.HandleFunc("/debug/pprof/symbol", auth(hpprof.Symbol))
		mux.HandleFunc("/debug/pprof/trace", auth(hpprof.Trace))
	}
	return s.logRequests(mux)
}

func (s *Server) listTasks(w http.ResponseWriter, r *http.Request) {
	tasks, err := s.svc.List(r.Context())
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	if tasks == nil {
		tasks = []task.Task{}
	}
	writeJSON(w, http.StatusOK, tasks)
}

func (s *Server) getTask(w http.ResponseWriter, r *http.Request) {
	t, ok, err := s.svc.Get(r.Context(), r.PathValue("id"))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	if !ok {
		writeJSON(w, http.StatusNotFound, errorResponse{Error: "Task not found"})
		return
	}
	writeJSON(w, http.StatusOK, t)
}

func (s *Server) createTask(w http.ResponseWriter, r *http.Request) {
	var in task.CreateInput
	if !s.decode(w, r, &in) {
		return
	}
	t, err := s.svc.Create(r.Context(), in)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, t)
}

// updateTask ignores unknown and server-managed keys in the body.
func (s *Server) updateTask(w http.ResponseWriter, r *http.Request) {
	var p task.Patch
	if !s.decode(w, r, &p) {
		return
	}
	t, err := s.svc.Update(r.Context(), r.PathValue("id"), p)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, t)
}

func (s *Server) deleteTask(w http.ResponseWriter, r *http.Request) {
	if err := s.svc.Delete(r.Context(), r.PathValue("id")); err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, true)
}

// runTask blocks until the run finishes. sessionId is omitted when the run
// failed or was skipped because an earlier run was still in flight.
func (s *Server) runTask(w http.ResponseWriter, r *http.Request) {
	if !s.limiter.Allow() {
		w.Header().Set("Retry-After", "1")
		writeJSON(w, http.StatusTooManyRequests, errorResponse{Error: "run rate limit exceeded"})
		return
	}
	sid, ok, err := s.svc.RunNow(r.Context(), r.PathValue("id"))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	var resp RunResponse
	if ok {
		resp.SessionID = sid
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) nextRun(w http.ResponseWriter, r *http.Request) {
	var resp NextRunResponse
	if next, ok := s.svc.NextRun(r.PathValue("id")); ok {
		v := next.UTC().Format(TimeFormat)
		resp.NextRun = &v
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) snapshot(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.svc.Snapshot())
}

func (s *Server) statusReport(w http.ResponseWriter, r *http.Request) {
	out := map[string]any{
		"time":      time.Now().UTC().Format(TimeFormat),
		"scheduler": s.svc.Snapshot(),
	}
	if sup := s.Supervisor(); sup != nil {
		out["api"] = sup.Snapshot()
	}
	if s.bus != nil {
		out["events"] = s.bus.Stats()
	}
	for name, fn := range s.status {
		out[name] = fn()
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) decode(w http.ResponseWriter, r *http.Request, out any) bool {
	dec := json.NewDecoder(io.LimitReader(r.Body, maxBodyBytes))
	if err := dec.Decode(out); err != nil {
		msg := "invalid json"
		if errors.Is(err, io.EOF) {
			msg = "empty body"
		}
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: msg})
		return false
	}
	return true
}

// writeError maps domain errors onto status codes.
func (s *Server) writeError(w http.ResponseWriter, r *http.Request, err error) {
	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, task.ErrValidation), errors.Is(err, scheduler.ErrSchedule):
		status = http.StatusBadRequest
	case errors.Is(err, task.ErrNotFound):
		status = http.StatusNotFound
	}
	if status == http.StatusInternalServerError {
		s.log.Error("request failed", logx.String("method", r.Method), logx.String("path", r.URL.Path), logx.Err(err))
	}
	writeJSON(w, status, errorResponse{Error: err.Error()})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func withAuth(token string, h http.HandlerFunc) http.HandlerFunc {
	tok := strings.TrimSpace(token)
	if tok == "" {
		return h
	}
	return func(w http.ResponseWriter, r *http.Request) {
		// Authorization: Bearer <token>, or ?token=<token> for EventSource clients.
		got := r.URL.Query().Get("token")
		if got == "" {
			if ah := r.Header.Get("Authorization"); strings.HasPrefix(ah, "Bearer ") {
				got = strings.TrimSpace(strings.TrimPrefix(ah, "Bearer "))
			}
		}
		if got != tok {
			w.Header().Set("WWW-Authenticate", "Bearer")
			writeJSON(w, http.StatusUnauthorized, errorResponse{Error: "unauthorized"})
			return
		}
		h(w, r)
	}
}

type statusWriter struct {
	http.ResponseWriter
	status int
}

func (w *statusWriter) WriteHeader(code int) {
	if w.status == 0 {
		w.status = code
	}
	w.ResponseWriter.WriteHeader(code)
}

func (w *statusWriter) Unwrap() http.ResponseWriter { return w.ResponseWriter }

func (s *Server) logRequests(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !s.log.Enabled(logx.LevelDebug) {
			next.ServeHTTP(w, r)
			return
		}
		start := time.Now()
		sw := &statusWriter{ResponseWriter: w}
		next.ServeHTTP(sw, r)
		if sw.status == 0 {
			sw.status = http.StatusOK
		}
		s.log.Debug("http request",
			logx.String("method", r.Method),
			logx.String("path", r.URL.Path),
			logx.Int("status", sw.status),
			logx.Duration("took", time.Since(start)),
		)
	})
}
