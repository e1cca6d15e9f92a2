package handlers

import (
	"context"
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"github.com/chepyr/go-todo-tree/internal/auth"
	"github.com/chepyr/go-todo-tree/internal/models"
	"github.com/chepyr/go-todo-tree/internal/tasks"
	"github.com/chepyr/go-todo-tree/internal/validation"
	"github.com/google/uuid"
	"github.com/gorilla/mux"
)

const requestTimeout = 5 * time.Second

type taskView struct {
	ID          uuid.UUID       `json:"id"`
	Title       string          `json:"title"`
	Description string          `json:"description"`
	Priority    models.Priority `json:"priority"`
	Completed   bool            `json:"completed"`
	Labels      []string        `json:"labels"`
	ParentID    *uuid.UUID      `json:"parent_id"`
	CreatedAt   time.Time       `json:"created_at"`
	UpdatedAt   time.Time       `json:"updated_at"`
}

type taskDetailView struct {
	taskView
	Parent   *models.Task   `json:"parent"`
	Subtasks []*models.Task `json:"subtasks"`
}

func newTaskView(t *models.Task) taskView {
	return taskView{
		ID:          t.ID,
		Title:       t.Title,
		Description: t.Description,
		Priority:    t.Priority,
		Completed:   t.Completed,
		Labels:      t.Labels,
		ParentID:    t.ParentID,
		CreatedAt:   t.CreatedAt,
		UpdatedAt:   t.UpdatedAt,
	}
}

func currentUser(w http.ResponseWriter, r *http.Request) (*models.User, bool) {
	user, ok := auth.UserFromContext(r.Context())
	if !ok {
		sendError(w, "Unauthenticated.", http.StatusUnauthorized)
	}
	return user, ok
}

// taskID parses the {taskID} path variable. Malformed ids are reported as
// missing tasks.
func taskID(w http.ResponseWriter, r *http.Request) (uuid.UUID, bool) {
	id, err := uuid.Parse(mux.Vars(r)["taskID"])
	if err != nil {
		sendError(w, "Task not found", http.StatusNotFound)
		return uuid.Nil, false
	}
	return id, true
}

// GET /api/tasks?priority=&completed=&search=&parent_id=
func (h *Handler) ListTasks(w http.ResponseWriter, r *http.Request) {
	user, ok := currentUser(w, r)
	if !ok {
		return
	}
	filter, err := parseTaskFilter(r)
	if err != nil {
		h.sendServiceError(w, r, err)
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), requestTimeout)
	defer cancel()

	list, err := h.Tasks.List(ctx, user.ID, filter)
	if err != nil {
		h.sendServiceError(w, r, err)
		return
	}
	views := make([]taskView, 0, len(list))
	for _, t := range list {
		views = append(views, newTaskView(t))
	}
	sendJSON(w, http.StatusOK, map[string]any{"data": views})
}

func parseTaskFilter(r *http.Request) (models.TaskFilter, error) {
	q := r.URL.Query()
	filter := models.TaskFilter{Search: q.Get("search")}
	errs := validation.Errors{}

	if p := q.Get("priority"); p != "" {
		priority := models.Priority(p)
		filter.Priority = &priority
	}
	if c := q.Get("completed"); c != "" {
		completed, err := strconv.ParseBool(c)
		if err != nil {
			errs.Add("completed", "The completed field must be true or false.")
		} else {
			filter.Completed = &completed
		}
	}
	if p := q.Get("parent_id"); p != "" {
		parentID, err := uuid.Parse(p)
		if err != nil {
			errs.Add("parent_id", "The selected parent id is invalid.")
		} else {
			filter.ParentID = &parentID
		}
	}
	return filter, errs.Err()
}

// POST /api/tasks
func (h *Handler) CreateTask(w http.ResponseWriter, r *http.Request) {
	user, ok := currentUser(w, r)
	if !ok {
		return
	}
	body, doc, err := readDocument(w, r, createTaskSchema)
	if err != nil {
		h.sendServiceError(w, r, err)
		return
	}
	var input struct {
		Title       string   `json:"title"`
		Description *string  `json:"description"`
		Priority    string   `json:"priority"`
		Completed   bool     `json:"completed"`
		Labels      []string `json:"labels"`
	}
	if err := json.Unmarshal(body, &input); err != nil {
		h.sendServiceError(w, r, errBadJSON)
		return
	}
	parentID, _, err := parentFromDocument(doc)
	if err != nil {
		h.sendServiceError(w, r, err)
		return
	}

	fields := tasks.CreateFields{
		Title:     input.Title,
		Priority:  models.Priority(input.Priority),
		Completed: input.Completed,
		Labels:    input.Labels,
		ParentID:  parentID,
	}
	if input.Description != nil {
		fields.Description = *input.Description
	}

	ctx, cancel := context.WithTimeout(r.Context(), requestTimeout)
	defer cancel()

	task, err := h.Tasks.Create(ctx, user.ID, fields)
	if err != nil {
		h.sendServiceError(w, r, err)
		return
	}
	w.Header().Set("Location", "/api/tasks/"+task.ID.String())
	sendJSON(w, http.StatusCreated, task)
}

// GET /api/tasks/{taskID}
func (h *Handler) GetTask(w http.ResponseWriter, r *http.Request) {
	user, ok := currentUser(w, r)
	if !ok {
		return
	}
	id, ok := taskID(w, r)
	if !ok {
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), requestTimeout)
	defer cancel()

	detail, err := h.Tasks.Get(ctx, user.ID, id)
	if err != nil {
		h.sendServiceError(w, r, err)
		return
	}
	sendJSON(w, http.StatusOK, map[string]any{"data": taskDetailView{
		taskView: newTaskView(detail.Task),
		Parent:   detail.Parent,
		Subtasks: detail.Children,
	}})
}

// PUT/PATCH /api/tasks/{taskID}
func (h *Handler) UpdateTask(w http.ResponseWriter, r *http.Request) {
	user, ok := currentUser(w, r)
	if !ok {
		return
	}
	id, ok := taskID(w, r)
	if !ok {
		return
	}
	body, doc, err := readDocument(w, r, updateTaskSchema)
	if err != nil {
		h.sendServiceError(w, r, err)
		return
	}
	var input struct {
		Title     *string   `json:"title"`
		Priority  *string   `json:"priority"`
		Completed *bool     `json:"completed"`
		Labels    *[]string `json:"labels"`
	}
	if err := json.Unmarshal(body, &input); err != nil {
		h.sendServiceError(w, r, errBadJSON)
		return
	}
	parentID, setParent, err := parentFromDocument(doc)
	if err != nil {
		h.sendServiceError(w, r, err)
		return
	}

	fields := tasks.UpdateFields{
		Title:     input.Title,
		Completed: input.Completed,
		Labels:    input.Labels,
		SetParent: setParent,
		ParentID:  parentID,
	}
	if input.Priority != nil {
		p := models.Priority(*input.Priority)
		fields.Priority = &p
	}
	// description: null clears it, same as ""
	if raw, present := doc["description"]; present {
		description, _ := raw.(string)
		fields.Description = &description
	}

	ctx, cancel := context.WithTimeout(r.Context(), requestTimeout)
	defer cancel()

	task, err := h.Tasks.Update(ctx, user.ID, id, fields)
	if err != nil {
		h.sendServiceError(w, r, err)
		return
	}
	sendJSON(w, http.StatusOK, map[string]any{
		"message": "Task updated successfully",
		"data":    task,
	})
}

// DELETE /api/tasks/{taskID}
func (h *Handler) DeleteTask(w http.ResponseWriter, r *http.Request) {
	user, ok := currentUser(w, r)
	if !ok {
		return
	}
	id, ok := taskID(w, r)
	if !ok {
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), requestTimeout)
	defer cancel()

	if err := h.Tasks.Delete(ctx, user.ID, id); err != nil {
		h.sendServiceError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// parentFromDocument reads parent_id from a decoded body. present reports
// whether the key was sent at all; null and "" mean "no parent".
func parentFromDocument(doc map[string]any) (parentID *uuid.UUID, present bool, err error) {
	raw, present := doc["parent_id"]
	if !present {
		return nil, false, nil
	}
	s, _ := raw.(string)
	if s == "" {
		return nil, true, nil
	}
	id, err := uuid.Parse(s)
	if err != nil {
		errs := validation.Errors{}
		errs.Add("parent_id", "The selected parent id is invalid.")
		return nil, true, errs
	}
	return &id, true, nil
}
