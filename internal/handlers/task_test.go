package handlers

import (
	"fmt"
	"net/http"
	"strings"
	"testing"

	"github.com/chepyr/go-todo-tree/internal/models"
	"github.com/google/uuid"
)

type listResponse struct {
	Data []models.Task `json:"data"`
}

type detailResponse struct {
	Data struct {
		models.Task
		Parent   *models.Task  `json:"parent"`
		Subtasks []models.Task `json:"subtasks"`
	} `json:"data"`
}

type errorBody struct {
	Message string              `json:"message"`
	Errors  map[string][]string `json:"errors"`
}

func TestTasks_HappyPath(t *testing.T) {
	env := setupHTTP(t)
	userID, authz := newUser(t, env, "happy@example.com")

	// 1) create with defaults
	task := createTask(t, env, authz, `{"title":"Write report","priority":"high"}`)
	if task.OwnerID != userID {
		t.Errorf("user_id = %s, want %s", task.OwnerID, userID)
	}
	if task.Labels == nil || len(task.Labels) != 0 || task.Completed {
		t.Errorf("defaults not applied: %+v", task)
	}

	// 2) child via parent_id on create
	child := createTask(t, env, authz,
		fmt.Sprintf(`{"title":"Outline","priority":"low","labels":["work"],"parent_id":%q}`, task.ID))

	// 3) show resolves parent and subtasks
	rec := env.do(t, http.MethodGet, "/api/tasks/"+task.ID.String(), authz, "")
	if rec.Code != http.StatusOK {
		t.Fatalf("GET task status=%d body=%s", rec.Code, rec.Body.String())
	}
	detail := decode[detailResponse](t, rec)
	if len(detail.Data.Subtasks) != 1 || detail.Data.Subtasks[0].ID != child.ID {
		t.Errorf("subtasks = %+v", detail.Data.Subtasks)
	}
	if detail.Data.Parent != nil {
		t.Errorf("root has parent %+v", detail.Data.Parent)
	}

	rec = env.do(t, http.MethodGet, "/api/tasks/"+child.ID.String(), authz, "")
	detail = decode[detailResponse](t, rec)
	if detail.Data.Parent == nil || detail.Data.Parent.ID != task.ID {
		t.Errorf("child parent = %+v", detail.Data.Parent)
	}

	// 4) partial update
	rec = env.do(t, http.MethodPatch, "/api/tasks/"+task.ID.String(), authz, `{"completed":true}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("PATCH status=%d body=%s", rec.Code, rec.Body.String())
	}
	updated := decode[struct {
		Message string      `json:"message"`
		Data    models.Task `json:"data"`
	}](t, rec)
	if updated.Message != "Task updated successfully" || !updated.Data.Completed || updated.Data.Title != "Write report" {
		t.Errorf("update response = %+v", updated)
	}

	// 5) delete leaves the child in place
	rec = env.do(t, http.MethodDelete, "/api/tasks/"+task.ID.String(), authz, "")
	if rec.Code != http.StatusNoContent || rec.Body.Len() != 0 {
		t.Fatalf("DELETE status=%d body=%q", rec.Code, rec.Body.String())
	}
	rec = env.do(t, http.MethodGet, "/api/tasks/"+child.ID.String(), authz, "")
	if rec.Code != http.StatusOK {
		t.Fatalf("child after parent delete: status=%d", rec.Code)
	}
	detail = decode[detailResponse](t, rec)
	if detail.Data.ParentID == nil || *detail.Data.ParentID != task.ID {
		t.Errorf("child parent_id = %v, want %s", detail.Data.ParentID, task.ID)
	}
}

func TestTasks_RequireBearer(t *testing.T) {
	env := setupHTTP(t)

	tests := []struct {
		name  string
		authz string
	}{
		{"missing header", ""},
		{"not bearer", "Basic abc"},
		{"garbage token", "Bearer not.a.token"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := env.do(t, http.MethodGet, "/api/tasks", tt.authz, "")
			if rec.Code != http.StatusUnauthorized {
				t.Errorf("status = %d, want 401", rec.Code)
			}
		})
	}
}

func TestTasks_OwnerIsolation(t *testing.T) {
	env := setupHTTP(t)
	_, alice := newUser(t, env, "alice@example.com")
	_, bob := newUser(t, env, "bob@example.com")

	task := createTask(t, env, alice, `{"title":"Alice only","priority":"medium"}`)
	path := "/api/tasks/" + task.ID.String()

	rec := env.do(t, http.MethodGet, "/api/tasks", bob, "")
	if list := decode[listResponse](t, rec); len(list.Data) != 0 {
		t.Errorf("bob sees %d tasks", len(list.Data))
	}

	for _, tc := range []struct{ method, body string }{
		{http.MethodGet, ""},
		{http.MethodPut, `{"title":"mine now"}`},
		{http.MethodDelete, ""},
	} {
		rec := env.do(t, tc.method, path, bob, tc.body)
		if rec.Code != http.StatusNotFound {
			t.Errorf("%s by non-owner: status=%d, want 404", tc.method, rec.Code)
		}
		if body := decode[errorBody](t, rec); body.Message != "Task not found" {
			t.Errorf("%s by non-owner: message=%q", tc.method, body.Message)
		}
	}

	// unknown and malformed ids look the same
	for _, id := range []string{uuid.NewString(), "42"} {
		if rec := env.do(t, http.MethodGet, "/api/tasks/"+id, alice, ""); rec.Code != http.StatusNotFound {
			t.Errorf("GET %s: status=%d, want 404", id, rec.Code)
		}
	}
}

func TestTasks_ForeignParentIsForbidden(t *testing.T) {
	env := setupHTTP(t)
	_, alice := newUser(t, env, "alice@example.com")
	_, bob := newUser(t, env, "bob@example.com")

	task := createTask(t, env, alice, `{"title":"child","priority":"low"}`)
	foreign := createTask(t, env, bob, `{"title":"bob's","priority":"low"}`)

	for _, parent := range []string{foreign.ID.String(), uuid.NewString()} {
		rec := env.do(t, http.MethodPut, "/api/tasks/"+task.ID.String(), alice,
			fmt.Sprintf(`{"parent_id":%q}`, parent))
		if rec.Code != http.StatusForbidden {
			t.Fatalf("status=%d, want 403 body=%s", rec.Code, rec.Body.String())
		}
		if body := decode[errorBody](t, rec); body.Message != "Parent task not found or not authorized" {
			t.Errorf("message = %q", body.Message)
		}
	}

	rec := env.do(t, http.MethodPost, "/api/tasks", alice,
		fmt.Sprintf(`{"title":"x","priority":"low","parent_id":%q}`, foreign.ID))
	if rec.Code != http.StatusForbidden {
		t.Errorf("create with foreign parent: status=%d, want 403", rec.Code)
	}

	rec = env.do(t, http.MethodGet, "/api/tasks/"+task.ID.String(), alice, "")
	if detail := decode[detailResponse](t, rec); detail.Data.ParentID != nil {
		t.Errorf("parent changed to %v", detail.Data.ParentID)
	}
}

func TestTasks_Validation(t *testing.T) {
	env := setupHTTP(t)
	_, authz := newUser(t, env, "v@example.com")
	task := createTask(t, env, authz, `{"title":"ok","priority":"low"}`)
	taskPath := "/api/tasks/" + task.ID.String()

	tests := []struct {
		name       string
		method     string
		path       string
		body       string
		wantStatus int
		wantField  string
	}{
		{"bad json", http.MethodPost, "/api/tasks", `{"title":`, http.StatusBadRequest, ""},
		{"missing title", http.MethodPost, "/api/tasks", `{"priority":"low"}`, http.StatusUnprocessableEntity, "title"},
		{"blank title", http.MethodPost, "/api/tasks", `{"title":"  ","priority":"low"}`, http.StatusUnprocessableEntity, "title"},
		{"long title", http.MethodPost, "/api/tasks", `{"title":"` + strings.Repeat("x", 256) + `","priority":"low"}`, http.StatusUnprocessableEntity, "title"},
		{"missing priority", http.MethodPost, "/api/tasks", `{"title":"t"}`, http.StatusUnprocessableEntity, "priority"},
		{"bad priority", http.MethodPost, "/api/tasks", `{"title":"t","priority":"urgent"}`, http.StatusUnprocessableEntity, "priority"},
		{"labels not strings", http.MethodPost, "/api/tasks", `{"title":"t","priority":"low","labels":[1]}`, http.StatusUnprocessableEntity, "labels"},
		{"completed not bool", http.MethodPost, "/api/tasks", `{"title":"t","priority":"low","completed":"yes"}`, http.StatusUnprocessableEntity, "completed"},
		{"not an object", http.MethodPost, "/api/tasks", `[1,2]`, http.StatusUnprocessableEntity, "body"},
		{"update blank title", http.MethodPatch, taskPath, `{"title":""}`, http.StatusUnprocessableEntity, "title"},
		{"update null labels", http.MethodPatch, taskPath, `{"labels":null}`, http.StatusUnprocessableEntity, "labels"},
		{"update malformed parent", http.MethodPatch, taskPath, `{"parent_id":"nope"}`, http.StatusUnprocessableEntity, "parent_id"},
		{"update self parent", http.MethodPatch, taskPath, fmt.Sprintf(`{"parent_id":%q}`, task.ID), http.StatusUnprocessableEntity, "parent_id"},
		{"bad completed filter", http.MethodGet, "/api/tasks?completed=maybe", "", http.StatusUnprocessableEntity, "completed"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := env.do(t, tt.method, tt.path, authz, tt.body)
			if rec.Code != tt.wantStatus {
				t.Fatalf("status=%d, want %d body=%s", rec.Code, tt.wantStatus, rec.Body.String())
			}
			if tt.wantField == "" {
				return
			}
			body := decode[errorBody](t, rec)
			if len(body.Errors[tt.wantField]) == 0 {
				t.Errorf("no error for %q in %+v", tt.wantField, body.Errors)
			}
			if body.Message == "" {
				t.Error("empty message")
			}
		})
	}
}

func TestTasks_CycleRejected(t *testing.T) {
	env := setupHTTP(t)
	_, authz := newUser(t, env, "cycle@example.com")
	a := createTask(t, env, authz, `{"title":"a","priority":"low"}`)
	b := createTask(t, env, authz, fmt.Sprintf(`{"title":"b","priority":"low","parent_id":%q}`, a.ID))

	rec := env.do(t, http.MethodPatch, "/api/tasks/"+a.ID.String(), authz, fmt.Sprintf(`{"parent_id":%q}`, b.ID))
	if rec.Code != http.StatusUnprocessableEntity {
		t.Fatalf("status=%d, want 422 body=%s", rec.Code, rec.Body.String())
	}
}

func TestTasks_ClearParent(t *testing.T) {
	env := setupHTTP(t)
	_, authz := newUser(t, env, "clear@example.com")
	parent := createTask(t, env, authz, `{"title":"p","priority":"low"}`)

	for _, value := range []string{`null`, `""`} {
		child := createTask(t, env, authz, fmt.Sprintf(`{"title":"c","priority":"low","parent_id":%q}`, parent.ID))
		rec := env.do(t, http.MethodPatch, "/api/tasks/"+child.ID.String(), authz, `{"parent_id":`+value+`}`)
		if rec.Code != http.StatusOK {
			t.Fatalf("parent_id=%s: status=%d body=%s", value, rec.Code, rec.Body.String())
		}
		updated := decode[struct {
			Data models.Task `json:"data"`
		}](t, rec)
		if updated.Data.ParentID != nil {
			t.Errorf("parent_id=%s: parent still %v", value, updated.Data.ParentID)
		}
	}
}

func TestTasks_ListFilters(t *testing.T) {
	env := setupHTTP(t)
	_, authz := newUser(t, env, "filters@example.com")

	oldHigh := createTask(t, env, authz, `{"title":"old high","priority":"high"}`)
	createTask(t, env, authz, `{"title":"low one","priority":"low"}`)
	createTask(t, env, authz, `{"title":"done high","priority":"high","completed":true}`)
	newHigh := createTask(t, env, authz, `{"title":"new high","priority":"high"}`)
	sub := createTask(t, env, authz, fmt.Sprintf(`{"title":"sub","priority":"medium","parent_id":%q}`, oldHigh.ID))

	ids := func(path string) []uuid.UUID {
		t.Helper()
		rec := env.do(t, http.MethodGet, path, authz, "")
		if rec.Code != http.StatusOK {
			t.Fatalf("GET %s status=%d body=%s", path, rec.Code, rec.Body.String())
		}
		var out []uuid.UUID
		for _, task := range decode[listResponse](t, rec).Data {
			out = append(out, task.ID)
		}
		return out
	}

	got := ids("/api/tasks?priority=high&completed=false")
	if len(got) != 2 || got[0] != newHigh.ID || got[1] != oldHigh.ID {
		t.Errorf("priority+completed = %v, want [new high, old high]", got)
	}

	got = ids("/api/tasks?search=high")
	if len(got) != 3 {
		t.Errorf("search=high returned %d tasks, want 3", len(got))
	}

	got = ids("/api/tasks?parent_id=" + oldHigh.ID.String())
	if len(got) != 1 || got[0] != sub.ID {
		t.Errorf("parent filter = %v, want [%s]", got, sub.ID)
	}

	got = ids("/api/tasks")
	if len(got) != 5 || got[0] != sub.ID {
		t.Errorf("unfiltered list = %v, want 5 newest first", got)
	}
}
