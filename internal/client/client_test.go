package client

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"agentcron/internal/task"
)

func newTestServer(t *testing.T) *httptest.Server {
	t.Helper()
	mux := http.NewServeMux()
	mux.HandleFunc("GET /tasks", func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Authorization") != "Bearer tok" {
			w.WriteHeader(http.StatusUnauthorized)
			_, _ = w.Write([]byte(`{"error":"unauthorized"}`))
			return
		}
		_, _ = w.Write([]byte(`[{"id":"tsk_1","name":"a","cron":"0 3 * * *","cwd":"/tmp","prompt":"p","enabled":true,"createdAt":1}]`))
	})
	mux.HandleFunc("POST /tasks", func(w http.ResponseWriter, r *http.Request) {
		var in task.CreateInput
		_ = json.NewDecoder(r.Body).Decode(&in)
		_ = json.NewEncoder(w).Encode(task.Task{ID: "tsk_2", Name: in.Name, Cron: in.Cron, Enabled: true})
	})
	mux.HandleFunc("GET /tasks/{id}", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
		_, _ = w.Write([]byte(`{"error":"Task not found"}`))
	})
	mux.HandleFunc("POST /tasks/{id}/run", func(w http.ResponseWriter, r *http.Request) {
		if r.PathValue("id") == "tsk_fail" {
			_, _ = w.Write([]byte(`{}`))
			return
		}
		_, _ = w.Write([]byte(`{"sessionId":"ses_1"}`))
	})
	mux.HandleFunc("GET /tasks/{id}/next-run", func(w http.ResponseWriter, r *http.Request) {
		if r.PathValue("id") == "tsk_off" {
			_, _ = w.Write([]byte(`{"nextRun":null}`))
			return
		}
		_, _ = w.Write([]byte(`{"nextRun":"2026-01-02T03:00:00.000Z"}`))
	})
	mux.HandleFunc("DELETE /tasks/{id}", func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`true`))
	})
	ts := httptest.NewServer(mux)
	t.Cleanup(ts.Close)
	return ts
}

func TestClient(t *testing.T) {
	ts := newTestServer(t)
	ctx := context.Background()
	c := New(ts.URL+"/", "tok")

	tasks, err := c.List(ctx)
	if err != nil || len(tasks) != 1 || tasks[0].ID != "tsk_1" {
		t.Fatalf("List = %+v, %v", tasks, err)
	}

	created, err := c.Create(ctx, task.CreateInput{Name: "b", Cron: "@daily", Cwd: "/tmp", Prompt: "p"})
	if err != nil || created.ID != "tsk_2" || created.Name != "b" {
		t.Fatalf("Create = %+v, %v", created, err)
	}

	_, err = c.Get(ctx, "tsk_missing")
	if !IsNotFound(err) {
		t.Fatalf("Get err = %v, want not found", err)
	}
	if ae := err.(*APIError); ae.Message != "Task not found" {
		t.Fatalf("message = %q", ae.Message)
	}

	if sid, err := c.Run(ctx, "tsk_1"); err != nil || sid != "ses_1" {
		t.Fatalf("Run = %q, %v", sid, err)
	}
	if sid, err := c.Run(ctx, "tsk_fail"); err != nil || sid != "" {
		t.Fatalf("failed Run = %q, %v", sid, err)
	}

	next, ok, err := c.NextRun(ctx, "tsk_1")
	if err != nil || !ok || !next.Equal(time.Date(2026, 1, 2, 3, 0, 0, 0, time.UTC)) {
		t.Fatalf("NextRun = %v, %v, %v", next, ok, err)
	}
	if _, ok, err := c.NextRun(ctx, "tsk_off"); err != nil || ok {
		t.Fatalf("disabled NextRun = %v, %v", ok, err)
	}

	if err := c.Delete(ctx, "tsk_1"); err != nil {
		t.Fatalf("Delete: %v", err)
	}
}

func TestClientUnauthorized(t *testing.T) {
	ts := newTestServer(t)
	_, err := New(ts.URL, "").List(context.Background())
	ae, ok := err.(*APIError)
	if !ok || ae.Status != http.StatusUnauthorized || ae.Message != "unauthorized" {
		t.Fatalf("err = %#v", err)
	}
}

func TestTasksAdapter(t *testing.T) {
	ts := newTestServer(t)
	ctx := context.Background()
	tasks := NewTasks(New(ts.URL, "tok"))

	if _, ok, err := tasks.Get(ctx, "tsk_missing"); ok || err != nil {
		t.Fatalf("Get missing = %v, %v", ok, err)
	}
	if sid, ok, err := tasks.RunNow(ctx, "tsk_1"); !ok || sid != "ses_1" || err != nil {
		t.Fatalf("RunNow = %q, %v, %v", sid, ok, err)
	}
	if _, ok, err := tasks.RunNow(ctx, "tsk_fail"); ok || err != nil {
		t.Fatalf("failed RunNow = %v, %v", ok, err)
	}
}
