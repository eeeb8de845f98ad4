package server_test

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"

	"github.com/lisperz/CS409-Art-of-Web-MP3/internal/engine"
	"github.com/lisperz/CS409-Art-of-Web-MP3/internal/events"
	"github.com/lisperz/CS409-Art-of-Web-MP3/internal/repo"
	"github.com/lisperz/CS409-Art-of-Web-MP3/internal/server"
)

type testServer struct {
	*httptest.Server
	Engine *engine.Engine
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()
	e := engine.New(repo.NewMem(), events.Writer{})
	h, err := server.New(server.Config{Engine: e})
	if err != nil {
		t.Fatalf("server.New: %v", err)
	}
	ts := httptest.NewServer(h)
	t.Cleanup(ts.Close)
	return &testServer{Server: ts, Engine: e}
}

func (ts *testServer) doJSON(t *testing.T, method, path string, body any) (int, map[string]any) {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatalf("encode body: %v", err)
		}
	}
	req, err := http.NewRequest(method, ts.URL+path, &buf)
	if err != nil {
		t.Fatalf("new request: %v", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	resp, err := ts.Client().Do(req)
	if err != nil {
		t.Fatalf("%s %s: %v", method, path, err)
	}
	defer resp.Body.Close()
	var out map[string]any
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	return resp.StatusCode, out
}

func (ts *testServer) createTask(t *testing.T, body map[string]any) map[string]any {
	t.Helper()
	status, out := ts.doJSON(t, http.MethodPost, "/api/tasks", body)
	if status != http.StatusCreated {
		t.Fatalf("create task: status %d, body %v", status, out)
	}
	return out["data"].(map[string]any)
}

func (ts *testServer) createUser(t *testing.T, body map[string]any) map[string]any {
	t.Helper()
	status, out := ts.doJSON(t, http.MethodPost, "/api/users", body)
	if status != http.StatusCreated {
		t.Fatalf("create user: status %d, body %v", status, out)
	}
	return out["data"].(map[string]any)
}

func TestCreateTaskDefaults(t *testing.T) {
	ts := newTestServer(t)
	data := ts.createTask(t, map[string]any{
		"name":     "write report",
		"deadline": "2026-09-01T00:00:00Z",
	})
	if data["assignedUser"] != nil && data["assignedUser"] != "" {
		t.Fatalf("expected empty assignedUser, got %v", data["assignedUser"])
	}
	if data["assignedUserName"] != "unassigned" {
		t.Fatalf("expected assignedUserName unassigned, got %v", data["assignedUserName"])
	}
	if data["completed"] != false {
		t.Fatalf("expected completed false, got %v", data["completed"])
	}
	if data["_id"] == "" || data["_id"] == nil {
		t.Fatalf("expected generated id, got %v", data["_id"])
	}
}

func TestCreateTaskMissingFields(t *testing.T) {
	ts := newTestServer(t)
	for _, body := range []map[string]any{
		{"deadline": "2026-09-01"},
		{"name": "no deadline"},
	} {
		status, out := ts.doJSON(t, http.MethodPost, "/api/tasks", body)
		if status != http.StatusBadRequest {
			t.Fatalf("expected 400 for %v, got %d", body, status)
		}
		if out["message"] != "Name and deadline are required" {
			t.Fatalf("unexpected message %v", out["message"])
		}
	}
}

func TestCreateTaskEpochDeadline(t *testing.T) {
	ts := newTestServer(t)
	data := ts.createTask(t, map[string]any{"name": "seeded", "deadline": 1790000000})
	if data["deadline"] == nil || data["deadline"] == "" {
		t.Fatalf("expected deadline set, got %v", data["deadline"])
	}
}

func TestListTasksWhereFilter(t *testing.T) {
	ts := newTestServer(t)
	ts.createTask(t, map[string]any{"name": "alpha", "deadline": "2026-09-01"})
	ts.createTask(t, map[string]any{"name": "beta", "deadline": "2026-09-02"})

	where := url.QueryEscape(`{"name":"alpha"}`)
	status, out := ts.doJSON(t, http.MethodGet, "/api/tasks?where="+where, nil)
	if status != http.StatusOK {
		t.Fatalf("status %d, body %v", status, out)
	}
	list := out["data"].([]any)
	if len(list) != 1 {
		t.Fatalf("expected one match, got %v", list)
	}
	if doc := list[0].(map[string]any); doc["name"] != "alpha" {
		t.Fatalf("wrong document: %v", doc)
	}
}

func TestListTasksCountIgnoresPaging(t *testing.T) {
	ts := newTestServer(t)
	for i := 0; i < 3; i++ {
		ts.createTask(t, map[string]any{"name": fmt.Sprintf("t%d", i), "deadline": "2026-09-01"})
	}
	where := url.QueryEscape(`{"completed":false}`)
	status, out := ts.doJSON(t, http.MethodGet, "/api/tasks?count=true&limit=1&skip=2&where="+where, nil)
	if status != http.StatusOK {
		t.Fatalf("status %d, body %v", status, out)
	}
	if n, ok := out["data"].(float64); !ok || n != 3 {
		t.Fatalf("expected count 3, got %v", out["data"])
	}
}

func TestListTasksMalformedWhere(t *testing.T) {
	ts := newTestServer(t)
	status, out := ts.doJSON(t, http.MethodGet, "/api/tasks?where="+url.QueryEscape(`{bad`), nil)
	if status != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", status)
	}
	if out["message"] != "Invalid JSON in 'where' parameter" {
		t.Fatalf("unexpected message %v", out["message"])
	}
}

func TestListTasksSortAndSelect(t *testing.T) {
	ts := newTestServer(t)
	ts.createTask(t, map[string]any{"name": "bbb", "deadline": "2026-09-01"})
	ts.createTask(t, map[string]any{"name": "aaa", "deadline": "2026-09-02"})

	q := "?sort=" + url.QueryEscape(`{"name":1}`) + "&select=" + url.QueryEscape(`{"name":1}`)
	status, out := ts.doJSON(t, http.MethodGet, "/api/tasks"+q, nil)
	if status != http.StatusOK {
		t.Fatalf("status %d, body %v", status, out)
	}
	list := out["data"].([]any)
	if len(list) != 2 {
		t.Fatalf("expected two documents, got %v", list)
	}
	first := list[0].(map[string]any)
	if first["name"] != "aaa" {
		t.Fatalf("expected ascending name order, got %v", list)
	}
	if _, ok := first["deadline"]; ok {
		t.Fatalf("projection leaked fields: %v", first)
	}
	if _, ok := first["_id"]; !ok {
		t.Fatalf("projection dropped _id: %v", first)
	}
}

func TestGetTaskNotFound(t *testing.T) {
	ts := newTestServer(t)
	for _, id := range []string{"ffffffffffffffffffffffff", "not-hex"} {
		status, out := ts.doJSON(t, http.MethodGet, "/api/tasks/"+id, nil)
		if status != http.StatusNotFound {
			t.Fatalf("expected 404 for %q, got %d", id, status)
		}
		if out["message"] != "Task not found" {
			t.Fatalf("unexpected message %v", out["message"])
		}
	}
}

func TestReplaceTaskIsFullReplacement(t *testing.T) {
	ts := newTestServer(t)
	data := ts.createTask(t, map[string]any{
		"name":        "original",
		"description": "keep me? no",
		"deadline":    "2026-09-01",
	})
	id := data["_id"].(string)

	status, out := ts.doJSON(t, http.MethodPut, "/api/tasks/"+id, map[string]any{
		"name":     "replaced",
		"deadline": "2026-10-01",
	})
	if status != http.StatusOK {
		t.Fatalf("status %d, body %v", status, out)
	}
	if out["message"] != "Task updated successfully" {
		t.Fatalf("unexpected message %v", out["message"])
	}
	after := out["data"].(map[string]any)
	if after["description"] != "" {
		t.Fatalf("expected description cleared, got %v", after["description"])
	}
	if after["_id"] != id {
		t.Fatalf("id must survive replacement: %v", after["_id"])
	}
}

func TestCreateUserDuplicateEmail(t *testing.T) {
	ts := newTestServer(t)
	ts.createUser(t, map[string]any{"name": "Ann", "email": "ann@example.com"})
	status, out := ts.doJSON(t, http.MethodPost, "/api/users", map[string]any{
		"name": "Other Ann", "email": "ann@example.com",
	})
	if status != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d (%v)", status, out)
	}
	if out["message"] != "User with this email already exists" {
		t.Fatalf("unexpected message %v", out["message"])
	}
}

func TestCreateUserMissingFields(t *testing.T) {
	ts := newTestServer(t)
	status, out := ts.doJSON(t, http.MethodPost, "/api/users", map[string]any{"name": "no email"})
	if status != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", status)
	}
	if out["message"] != "Name and email are required" {
		t.Fatalf("unexpected message %v", out["message"])
	}
}

func TestCreateUserAssignsPendingTasks(t *testing.T) {
	ts := newTestServer(t)
	task := ts.createTask(t, map[string]any{"name": "orphan", "deadline": "2026-09-01"})
	taskID := task["_id"].(string)

	status, out := ts.doJSON(t, http.MethodPost, "/api/users", map[string]any{
		"name":         "Bob",
		"email":        "bob@example.com",
		"pendingTasks": []string{taskID},
	})
	if status != http.StatusCreated {
		t.Fatalf("status %d, body %v", status, out)
	}
	if out["message"] != "User created successfully" {
		t.Fatalf("unexpected message %v", out["message"])
	}
	userID := out["data"].(map[string]any)["_id"].(string)

	_, got := ts.doJSON(t, http.MethodGet, "/api/tasks/"+taskID, nil)
	doc := got["data"].(map[string]any)
	if doc["assignedUser"] != userID || doc["assignedUserName"] != "Bob" {
		t.Fatalf("expected task assigned to Bob, got %v", doc)
	}
}

func TestReplaceUserReconcilesPendingTasks(t *testing.T) {
	ts := newTestServer(t)
	kept := ts.createTask(t, map[string]any{"name": "kept", "deadline": "2026-09-01"})["_id"].(string)
	dropped := ts.createTask(t, map[string]any{"name": "dropped", "deadline": "2026-09-01"})["_id"].(string)

	user := ts.createUser(t, map[string]any{
		"name": "Cara", "email": "cara@example.com",
		"pendingTasks": []string{kept, dropped},
	})
	userID := user["_id"].(string)

	status, out := ts.doJSON(t, http.MethodPut, "/api/users/"+userID, map[string]any{
		"name": "Cara", "email": "cara@example.com",
		"pendingTasks": []string{kept},
	})
	if status != http.StatusOK {
		t.Fatalf("status %d, body %v", status, out)
	}
	ts.Engine.Wait()

	_, keptOut := ts.doJSON(t, http.MethodGet, "/api/tasks/"+kept, nil)
	if doc := keptOut["data"].(map[string]any); doc["assignedUser"] != userID {
		t.Fatalf("kept task lost its assignment: %v", doc)
	}
	_, droppedOut := ts.doJSON(t, http.MethodGet, "/api/tasks/"+dropped, nil)
	if doc := droppedOut["data"].(map[string]any); doc["assignedUser"] != "" || doc["assignedUserName"] != "unassigned" {
		t.Fatalf("dropped task still assigned: %v", doc)
	}
}

func TestDeleteUserSweepsAssignments(t *testing.T) {
	ts := newTestServer(t)
	taskID := ts.createTask(t, map[string]any{"name": "mine", "deadline": "2026-09-01"})["_id"].(string)
	user := ts.createUser(t, map[string]any{
		"name": "Eve", "email": "eve@example.com",
		"pendingTasks": []string{taskID},
	})
	userID := user["_id"].(string)

	status, out := ts.doJSON(t, http.MethodDelete, "/api/users/"+userID, nil)
	if status != http.StatusOK {
		t.Fatalf("status %d, body %v", status, out)
	}
	if out["message"] != "User deleted successfully" {
		t.Fatalf("unexpected message %v", out["message"])
	}

	// The sweep is awaited, so no Wait is needed before checking the task.
	_, taskOut := ts.doJSON(t, http.MethodGet, "/api/tasks/"+taskID, nil)
	doc := taskOut["data"].(map[string]any)
	if doc["assignedUser"] != "" || doc["assignedUserName"] != "unassigned" {
		t.Fatalf("expected task unassigned after user delete, got %v", doc)
	}

	status, _ = ts.doJSON(t, http.MethodGet, "/api/users/"+userID, nil)
	if status != http.StatusNotFound {
		t.Fatalf("expected deleted user to 404, got %d", status)
	}
}

func TestDeleteTaskRemovesPendingEntry(t *testing.T) {
	ts := newTestServer(t)
	taskID := ts.createTask(t, map[string]any{"name": "short lived", "deadline": "2026-09-01"})["_id"].(string)
	user := ts.createUser(t, map[string]any{
		"name": "Dan", "email": "dan@example.com",
		"pendingTasks": []string{taskID},
	})
	userID := user["_id"].(string)

	status, out := ts.doJSON(t, http.MethodDelete, "/api/tasks/"+taskID, nil)
	if status != http.StatusOK {
		t.Fatalf("status %d, body %v", status, out)
	}
	ts.Engine.Wait()

	_, userOut := ts.doJSON(t, http.MethodGet, "/api/users/"+userID, nil)
	doc := userOut["data"].(map[string]any)
	if pending, _ := doc["pendingTasks"].([]any); len(pending) != 0 {
		t.Fatalf("expected pendingTasks emptied, got %v", doc["pendingTasks"])
	}
}

func TestErrorEnvelopeShape(t *testing.T) {
	ts := newTestServer(t)
	status, out := ts.doJSON(t, http.MethodGet, "/api/users/not-hex", nil)
	if status != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", status)
	}
	if out["message"] != "User not found" {
		t.Fatalf("unexpected message %v", out["message"])
	}
	if _, ok := out["data"]; !ok {
		t.Fatalf("error envelope missing data field: %v", out)
	}
}
