// Package mp3sdk is a minimal client for the task/user REST API.
package mp3sdk

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"
)

// Client talks to the API. BaseURL should include the /api prefix, e.g.
// http://localhost:4000/api.
type Client struct {
	BaseURL    string
	HTTPClient *http.Client
	Timeout    time.Duration
}

// New creates a client with sane defaults.
func New(baseURL string) *Client {
	return &Client{
		BaseURL: baseURL,
		Timeout: 10 * time.Second,
	}
}

// Task is the API task model.
type Task struct {
	ID               string `json:"_id,omitempty"`
	Name             string `json:"name"`
	Description      string `json:"description,omitempty"`
	Deadline         any    `json:"deadline,omitempty"`
	Completed        bool   `json:"completed"`
	AssignedUser     string `json:"assignedUser,omitempty"`
	AssignedUserName string `json:"assignedUserName,omitempty"`
	DateCreated      string `json:"dateCreated,omitempty"`
}

// User is the API user model.
type User struct {
	ID           string   `json:"_id,omitempty"`
	Name         string   `json:"name"`
	Email        string   `json:"email"`
	PendingTasks []string `json:"pendingTasks,omitempty"`
	DateCreated  string   `json:"dateCreated,omitempty"`
}

// ListOptions mirror the list query parameters. Where, Select, and Sort are
// raw JSON strings passed through unmodified.
type ListOptions struct {
	Where  string
	Select string
	Sort   string
	Skip   int
	Limit  int
	Count  bool
}

func (o ListOptions) encode() string {
	v := url.Values{}
	if o.Where != "" {
		v.Set("where", o.Where)
	}
	if o.Select != "" {
		v.Set("select", o.Select)
	}
	if o.Sort != "" {
		v.Set("sort", o.Sort)
	}
	if o.Skip > 0 {
		v.Set("skip", fmt.Sprint(o.Skip))
	}
	if o.Limit > 0 {
		v.Set("limit", fmt.Sprint(o.Limit))
	}
	if o.Count {
		v.Set("count", "true")
	}
	if len(v) == 0 {
		return ""
	}
	return "?" + v.Encode()
}

// APIError wraps non-2xx responses with the server's message text.
type APIError struct {
	StatusCode int
	Message    string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("api error: status=%d message=%s", e.StatusCode, e.Message)
}

type envelope struct {
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data"`
}

// CreateTask creates a task and returns the stored document.
func (c *Client) CreateTask(ctx context.Context, t Task) (Task, string, error) {
	var out Task
	msg, err := c.do(ctx, http.MethodPost, "tasks", t, &out)
	return out, msg, err
}

// ListTasks lists tasks.
func (c *Client) ListTasks(ctx context.Context, opts ListOptions) ([]Task, error) {
	var out []Task
	_, err := c.do(ctx, http.MethodGet, "tasks"+opts.encode(), nil, &out)
	return out, err
}

// CountTasks returns the number of tasks matching opts.Where.
func (c *Client) CountTasks(ctx context.Context, where string) (int64, error) {
	var n int64
	_, err := c.do(ctx, http.MethodGet, "tasks"+(ListOptions{Where: where, Count: true}).encode(), nil, &n)
	return n, err
}

// GetTask fetches a task by id.
func (c *Client) GetTask(ctx context.Context, id string) (Task, error) {
	var out Task
	_, err := c.do(ctx, http.MethodGet, "tasks/"+url.PathEscape(id), nil, &out)
	return out, err
}

// ReplaceTask replaces the task with id.
func (c *Client) ReplaceTask(ctx context.Context, id string, t Task) (Task, error) {
	var out Task
	_, err := c.do(ctx, http.MethodPut, "tasks/"+url.PathEscape(id), t, &out)
	return out, err
}

// DeleteTask deletes the task with id.
func (c *Client) DeleteTask(ctx context.Context, id string) error {
	_, err := c.do(ctx, http.MethodDelete, "tasks/"+url.PathEscape(id), nil, nil)
	return err
}

// CreateUser creates a user. The message distinguishes plain success from a
// partial one where pending task assignment failed.
func (c *Client) CreateUser(ctx context.Context, u User) (User, string, error) {
	var out User
	msg, err := c.do(ctx, http.MethodPost, "users", u, &out)
	return out, msg, err
}

// ListUsers lists users.
func (c *Client) ListUsers(ctx context.Context, opts ListOptions) ([]User, error) {
	var out []User
	_, err := c.do(ctx, http.MethodGet, "users"+opts.encode(), nil, &out)
	return out, err
}

// CountUsers returns the number of users matching where.
func (c *Client) CountUsers(ctx context.Context, where string) (int64, error) {
	var n int64
	_, err := c.do(ctx, http.MethodGet, "users"+(ListOptions{Where: where, Count: true}).encode(), nil, &n)
	return n, err
}

// GetUser fetches a user by id.
func (c *Client) GetUser(ctx context.Context, id string) (User, error) {
	var out User
	_, err := c.do(ctx, http.MethodGet, "users/"+url.PathEscape(id), nil, &out)
	return out, err
}

// ReplaceUser replaces the user with id.
func (c *Client) ReplaceUser(ctx context.Context, id string, u User) (User, error) {
	var out User
	_, err := c.do(ctx, http.MethodPut, "users/"+url.PathEscape(id), u, &out)
	return out, err
}

// DeleteUser deletes the user with id.
func (c *Client) DeleteUser(ctx context.Context, id string) error {
	_, err := c.do(ctx, http.MethodDelete, "users/"+url.PathEscape(id), nil, nil)
	return err
}

func (c *Client) do(ctx context.Context, method, endpoint string, body, out any) (string, error) {
	if c.HTTPClient == nil {
		c.HTTPClient = &http.Client{Timeout: c.Timeout}
	}
	target := strings.TrimRight(c.BaseURL, "/") + "/" + strings.TrimLeft(endpoint, "/")
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			return "", err
		}
	}
	req, err := http.NewRequestWithContext(ctx, method, target, &buf)
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", "application/json")
	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()
	var env envelope
	if err := json.NewDecoder(resp.Body).Decode(&env); err != nil {
		return "", fmt.Errorf("decode response: %w", err)
	}
	if resp.StatusCode >= 300 {
		return env.Message, &APIError{StatusCode: resp.StatusCode, Message: env.Message}
	}
	if out != nil {
		if err := json.Unmarshal(env.Data, out); err != nil {
			return env.Message, fmt.Errorf("decode data: %w", err)
		}
	}
	return env.Message, nil
}
