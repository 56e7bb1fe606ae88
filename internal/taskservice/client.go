// Package taskservice is a REST client for the external task service
// (Todoist-compatible API) used by the task bridge.
package taskservice

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"

	"golang.org/x/sync/errgroup"

	"github.com/Edelbertschen/taskfuchs-sub003/internal/transport"
)

// Sentinel errors for common HTTP error classes.
var (
	ErrUnauthorized = transport.ErrUnauthorized
	ErrForbidden    = transport.ErrForbidden
	ErrNotFound     = transport.ErrNotFound
)

// Client talks to the task service over a shared Transport.
type Client struct {
	BaseURL string
	Token   string
	t       *transport.Transport
}

// New creates a client. A nil transport gets a direct-only default.
func New(baseURL, token string, t *transport.Transport) *Client {
	if t == nil {
		t = transport.New(transport.WithoutProxies())
	}
	return &Client{BaseURL: strings.TrimRight(baseURL, "/"), Token: token, t: t}
}

// --- Remote types ---

// Due is a remote due date.
type Due struct {
	Date        string `json:"date"`
	String      string `json:"string,omitempty"`
	IsRecurring bool   `json:"is_recurring,omitempty"`
}

// Task is a remote task.
type Task struct {
	ID          string   `json:"id"`
	ProjectID   string   `json:"project_id,omitempty"`
	Content     string   `json:"content"`
	Description string   `json:"description"`
	IsCompleted bool     `json:"is_completed"`
	Priority    int      `json:"priority"`
	Labels      []string `json:"labels"`
	Due         *Due     `json:"due,omitempty"`
	CreatedAt   string   `json:"created_at,omitempty"`
}

// TaskInput is the body for create and update. Nil fields are left unchanged
// on update.
type TaskInput struct {
	Content     *string   `json:"content,omitempty"`
	Description *string   `json:"description,omitempty"`
	Priority    *int      `json:"priority,omitempty"`
	Labels      *[]string `json:"labels,omitempty"`
	DueDate     *string   `json:"due_date,omitempty"`
	// DueString "no date" clears the due date.
	DueString *string `json:"due_string,omitempty"`
	ProjectID string  `json:"project_id,omitempty"`
}

// Project is a remote project.
type Project struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

// Label is a remote label.
type Label struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

// Snapshot holds all remote collections.
type Snapshot struct {
	Projects []Project
	Labels   []Label
	Tasks    []Task
}

// --- Methods ---

// ListProjects lists all projects.
func (c *Client) ListProjects(ctx context.Context) ([]Project, error) {
	var resp []Project
	if err := c.do(ctx, http.MethodGet, "/projects", nil, &resp); err != nil {
		return nil, err
	}
	return resp, nil
}

// ListLabels lists all personal labels.
func (c *Client) ListLabels(ctx context.Context) ([]Label, error) {
	var resp []Label
	if err := c.do(ctx, http.MethodGet, "/labels", nil, &resp); err != nil {
		return nil, err
	}
	return resp, nil
}

// ListTasks lists active tasks, optionally restricted to one project.
func (c *Client) ListTasks(ctx context.Context, projectID string) ([]Task, error) {
	path := "/tasks"
	if projectID != "" {
		path += "?" + url.Values{"project_id": {projectID}}.Encode()
	}
	var resp []Task
	if err := c.do(ctx, http.MethodGet, path, nil, &resp); err != nil {
		return nil, err
	}
	return resp, nil
}

// GetTask fetches a single task, including completed ones.
func (c *Client) GetTask(ctx context.Context, id string) (*Task, error) {
	var resp Task
	if err := c.do(ctx, http.MethodGet, "/tasks/"+url.PathEscape(id), nil, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// CreateTask creates a task.
func (c *Client) CreateTask(ctx context.Context, in TaskInput) (*Task, error) {
	var resp Task
	if err := c.do(ctx, http.MethodPost, "/tasks", in, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// UpdateTask updates a task in place.
func (c *Client) UpdateTask(ctx context.Context, id string, in TaskInput) (*Task, error) {
	var resp Task
	if err := c.do(ctx, http.MethodPost, "/tasks/"+url.PathEscape(id), in, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// CloseTask marks a task completed.
func (c *Client) CloseTask(ctx context.Context, id string) error {
	return c.do(ctx, http.MethodPost, "/tasks/"+url.PathEscape(id)+"/close", nil, nil)
}

// ReopenTask marks a completed task active again.
func (c *Client) ReopenTask(ctx context.Context, id string) error {
	return c.do(ctx, http.MethodPost, "/tasks/"+url.PathEscape(id)+"/reopen", nil, nil)
}

// Snapshot fetches projects, labels and tasks concurrently.
func (c *Client) Snapshot(ctx context.Context, projectID string) (*Snapshot, error) {
	var snap Snapshot
	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		snap.Projects, err = c.ListProjects(ctx)
		return err
	})
	g.Go(func() error {
		var err error
		snap.Labels, err = c.ListLabels(ctx)
		return err
	})
	g.Go(func() error {
		var err error
		snap.Tasks, err = c.ListTasks(ctx, projectID)
		return err
	})
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return &snap, nil
}

// --- HTTP helpers ---

// APIError is a non-2xx response from the task service.
type APIError struct {
	StatusCode int
	Message    string
}

func (e *APIError) Error() string {
	if e.Message != "" {
		return fmt.Sprintf("HTTP %d: %s", e.StatusCode, e.Message)
	}
	return fmt.Sprintf("HTTP %d", e.StatusCode)
}

// Unwrap maps well-known statuses onto the package sentinels.
func (e *APIError) Unwrap() error {
	switch e.StatusCode {
	case http.StatusUnauthorized:
		return ErrUnauthorized
	case http.StatusForbidden:
		return ErrForbidden
	case http.StatusNotFound:
		return ErrNotFound
	}
	return nil
}

func (c *Client) do(ctx context.Context, method, path string, body, result any) error {
	req := &transport.Request{
		Method: method,
		URL:    c.BaseURL + path,
		Header: http.Header{},
	}
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("marshal request: %w", err)
		}
		req.Body = data
		req.Header.Set("Content-Type", "application/json")
	}
	if c.Token != "" {
		req.Header.Set("Authorization", "Bearer "+c.Token)
	}

	resp, err := c.t.Do(ctx, req)
	if err != nil {
		return fmt.Errorf("%s %s: %w", method, path, err)
	}
	if !resp.OK() {
		return &APIError{StatusCode: resp.StatusCode, Message: strings.TrimSpace(string(resp.Body))}
	}

	if result != nil && len(resp.Body) > 0 {
		if err := json.Unmarshal(resp.Body, result); err != nil {
			return fmt.Errorf("unmarshal response: %w", err)
		}
	}
	return nil
}
