package taskservice

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
)

func newTestServer(t *testing.T, handler http.HandlerFunc) *Client {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	return New(srv.URL+"/", "tok", nil)
}

func TestBearerTokenAndListTasks(t *testing.T) {
	var gotAuth, gotQuery string
	c := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		gotAuth = r.Header.Get("Authorization")
		gotQuery = r.URL.Query().Get("project_id")
		json.NewEncoder(w).Encode([]Task{{ID: "1", Content: "Buy milk", Priority: 4, Labels: []string{"sync"}}})
	})

	tasks, err := c.ListTasks(context.Background(), "p1")
	if err != nil {
		t.Fatalf("ListTasks: %v", err)
	}
	if gotAuth != "Bearer tok" {
		t.Errorf("auth: got %q", gotAuth)
	}
	if gotQuery != "p1" {
		t.Errorf("project_id: got %q", gotQuery)
	}
	if len(tasks) != 1 || tasks[0].Content != "Buy milk" || tasks[0].Priority != 4 {
		t.Errorf("tasks: got %+v", tasks)
	}
}

func TestCreateAndUpdateUsePost(t *testing.T) {
	var mu sync.Mutex
	var paths []string
	var lastBody map[string]any
	c := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			t.Errorf("method: got %s", r.Method)
		}
		data, _ := io.ReadAll(r.Body)
		mu.Lock()
		paths = append(paths, r.URL.Path)
		lastBody = map[string]any{}
		json.Unmarshal(data, &lastBody)
		mu.Unlock()
		w.Write([]byte(`{"id":"42","content":"x"}`))
	})

	content := "Buy milk"
	created, err := c.CreateTask(context.Background(), TaskInput{Content: &content})
	if err != nil {
		t.Fatalf("CreateTask: %v", err)
	}
	if created.ID != "42" {
		t.Errorf("created id: got %q", created.ID)
	}

	prio := 2
	if _, err := c.UpdateTask(context.Background(), "42", TaskInput{Priority: &prio}); err != nil {
		t.Fatalf("UpdateTask: %v", err)
	}
	if len(paths) != 2 || paths[0] != "/tasks" || paths[1] != "/tasks/42" {
		t.Errorf("paths: got %v", paths)
	}
	if _, ok := lastBody["content"]; ok {
		t.Error("unset fields must be omitted on update")
	}
	if lastBody["priority"] != float64(2) {
		t.Errorf("priority: got %v", lastBody["priority"])
	}
}

func TestCloseAndReopen(t *testing.T) {
	var paths []string
	c := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		paths = append(paths, r.URL.Path)
		w.WriteHeader(http.StatusNoContent)
	})

	if err := c.CloseTask(context.Background(), "7"); err != nil {
		t.Fatalf("CloseTask: %v", err)
	}
	if err := c.ReopenTask(context.Background(), "7"); err != nil {
		t.Fatalf("ReopenTask: %v", err)
	}
	if len(paths) != 2 || paths[0] != "/tasks/7/close" || paths[1] != "/tasks/7/reopen" {
		t.Errorf("paths: got %v", paths)
	}
}

func TestErrorSentinels(t *testing.T) {
	status := http.StatusNotFound
	c := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(status)
		w.Write([]byte("Task not found"))
	})

	_, err := c.GetTask(context.Background(), "missing")
	if !errors.Is(err, ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
	var apiErr *APIError
	if !errors.As(err, &apiErr) || apiErr.Message != "Task not found" {
		t.Errorf("APIError: got %v", err)
	}

	status = http.StatusUnauthorized
	if _, err := c.ListProjects(context.Background()); !errors.Is(err, ErrUnauthorized) {
		t.Errorf("expected ErrUnauthorized, got %v", err)
	}
}

func TestSnapshot(t *testing.T) {
	c := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/projects":
			w.Write([]byte(`[{"id":"p1","name":"Inbox"}]`))
		case "/labels":
			w.Write([]byte(`[{"id":"l1","name":"sync"},{"id":"l2","name":"errand"}]`))
		case "/tasks":
			w.Write([]byte(`[{"id":"1","content":"a"}]`))
		default:
			w.WriteHeader(http.StatusNotFound)
		}
	})

	snap, err := c.Snapshot(context.Background(), "")
	if err != nil {
		t.Fatalf("Snapshot: %v", err)
	}
	if len(snap.Projects) != 1 || len(snap.Labels) != 2 || len(snap.Tasks) != 1 {
		t.Errorf("snapshot: %+v", snap)
	}
}

func TestSnapshotFailsWhenAnyListFails(t *testing.T) {
	c := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/labels" {
			w.WriteHeader(http.StatusForbidden)
			return
		}
		w.Write([]byte(`[]`))
	})

	if _, err := c.Snapshot(context.Background(), ""); !errors.Is(err, ErrForbidden) {
		t.Errorf("expected ErrForbidden, got %v", err)
	}
}
