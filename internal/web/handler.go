// Package web serves the server-rendered page flow.
package web

import (
	"context"
	"errors"
	"html/template"
	"net/http"
	"strings"
	"time"

	"github.com/charmbracelet/log"
	"github.com/chepyr/go-todo-tree/internal/auth"
	"github.com/chepyr/go-todo-tree/internal/models"
	"github.com/chepyr/go-todo-tree/internal/tasks"
	"github.com/chepyr/go-todo-tree/internal/validation"
	"github.com/google/uuid"
	"github.com/gorilla/mux"
)

const sessionCookie = "session"

// Options configures the page handler.
type Options struct {
	Tasks  *tasks.Service
	Auth   *auth.Service
	Logger *log.Logger
	// SecureCookies marks the session cookie Secure.
	SecureCookies bool
	// SessionTTL is the session cookie lifetime; it should match the token TTL.
	SessionTTL time.Duration
}

// Handler serves the page flow.
type Handler struct {
	tasks         *tasks.Service
	auth          *auth.Service
	logger        *log.Logger
	templates     *template.Template
	secureCookies bool
	sessionTTL    time.Duration
}

func NewHandler(opts Options) *Handler {
	logger := opts.Logger
	if logger == nil {
		logger = log.Default()
	}
	ttl := opts.SessionTTL
	if ttl <= 0 {
		ttl = 24 * time.Hour
	}
	return &Handler{
		tasks:         opts.Tasks,
		auth:          opts.Auth,
		logger:        logger,
		templates:     newTemplates(),
		secureCookies: opts.SecureCookies,
		sessionTTL:    ttl,
	}
}

// RegisterRoutes mounts the pages on router.
func (h *Handler) RegisterRoutes(router *mux.Router) {
	router.HandleFunc("/login", h.showLogin).Methods(http.MethodGet)
	router.HandleFunc("/login", h.login).Methods(http.MethodPost)
	router.HandleFunc("/register", h.showRegister).Methods(http.MethodGet)
	router.HandleFunc("/register", h.register).Methods(http.MethodPost)

	pages := router.NewRoute().Subrouter()
	pages.Use(h.requireSession)
	pages.HandleFunc("/", h.home).Methods(http.MethodGet)
	pages.HandleFunc("/logout", h.logout).Methods(http.MethodPost)
	pages.HandleFunc("/tasks", h.listTasks).Methods(http.MethodGet)
	pages.HandleFunc("/tasks", h.createTask).Methods(http.MethodPost)
	pages.HandleFunc("/tasks/create", h.showCreate).Methods(http.MethodGet)
	pages.HandleFunc("/tasks/{taskID}/edit", h.showEdit).Methods(http.MethodGet)
	pages.HandleFunc("/tasks/{taskID}", h.updateTask).Methods(http.MethodPost)
	pages.HandleFunc("/tasks/{taskID}/toggle", h.toggleTask).Methods(http.MethodPost)
	pages.HandleFunc("/tasks/{taskID}/delete", h.deleteTask).Methods(http.MethodPost)
}

type selectOption struct {
	Value string
	Label string
}

type authForm struct {
	Name  string
	Email string
}

type taskForm struct {
	Title       string
	Description string
	Priority    string
	Completed   bool
	Labels      string
	ParentID    string
}

type pageData struct {
	Title           string
	User            *models.User
	Error           string
	Errors          validation.Errors
	Auth            authForm
	Tasks           []TaskRow
	Breadcrumb      []Crumb
	Editing         bool
	TaskID          uuid.UUID
	Form            taskForm
	PriorityOptions []selectOption
	ParentOptions   []selectOption
}

func (h *Handler) render(w http.ResponseWriter, status int, name string, data pageData) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(status)
	if err := h.templates.ExecuteTemplate(w, name, data); err != nil {
		h.logger.Error("render page", "template", name, "err", err)
	}
}

func (h *Handler) renderError(w http.ResponseWriter, r *http.Request, err error) {
	user, _ := auth.UserFromContext(r.Context())
	data := pageData{Title: "Error", User: user}
	switch {
	case errors.Is(err, tasks.ErrNotFound):
		data.Error = "Task not found"
		h.render(w, http.StatusNotFound, "error", data)
	default:
		h.logger.Error("page request failed", "method", r.Method, "path", r.URL.Path, "err", err)
		data.Error = "Something went wrong."
		h.render(w, http.StatusInternalServerError, "error", data)
	}
}

// requireSession resolves the session cookie to a user or redirects to the
// login page.
func (h *Handler) requireSession(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		cookie, err := r.Cookie(sessionCookie)
		if err != nil || cookie.Value == "" {
			http.Redirect(w, r, "/login", http.StatusSeeOther)
			return
		}
		user, err := h.auth.Authenticate(r.Context(), cookie.Value)
		if err != nil {
			if !errors.Is(err, auth.ErrUnauthenticated) {
				h.renderError(w, r, err)
				return
			}
			h.clearSession(w)
			http.Redirect(w, r, "/login", http.StatusSeeOther)
			return
		}
		next.ServeHTTP(w, r.WithContext(auth.ContextWithUser(r.Context(), user)))
	})
}

func (h *Handler) setSession(w http.ResponseWriter, token string) {
	http.SetCookie(w, &http.Cookie{
		Name:     sessionCookie,
		Value:    token,
		Path:     "/",
		MaxAge:   int(h.sessionTTL.Seconds()),
		HttpOnly: true,
		Secure:   h.secureCookies,
		SameSite: http.SameSiteLaxMode,
	})
}

func (h *Handler) clearSession(w http.ResponseWriter) {
	http.SetCookie(w, &http.Cookie{
		Name:     sessionCookie,
		Value:    "",
		Path:     "/",
		MaxAge:   -1,
		HttpOnly: true,
		Secure:   h.secureCookies,
		SameSite: http.SameSiteLaxMode,
	})
}

func (h *Handler) showLogin(w http.ResponseWriter, r *http.Request) {
	h.render(w, http.StatusOK, "login", pageData{Title: "Log in"})
}

func (h *Handler) login(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		h.render(w, http.StatusBadRequest, "login", pageData{Title: "Log in", Error: "invalid form input"})
		return
	}
	email := strings.TrimSpace(r.PostFormValue("email"))
	_, token, err := h.auth.Login(r.Context(), email, r.PostFormValue("password"))
	if err != nil {
		status := http.StatusUnauthorized
		if !errors.Is(err, auth.ErrInvalidCredentials) {
			h.logger.Error("page login", "err", err)
			status = http.StatusInternalServerError
		}
		h.render(w, status, "login", pageData{
			Title: "Log in",
			Error: "These credentials do not match our records.",
			Auth:  authForm{Email: email},
		})
		return
	}
	h.setSession(w, token)
	http.Redirect(w, r, "/tasks", http.StatusSeeOther)
}

func (h *Handler) showRegister(w http.ResponseWriter, r *http.Request) {
	h.render(w, http.StatusOK, "register", pageData{Title: "Register"})
}

func (h *Handler) register(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		h.render(w, http.StatusBadRequest, "register", pageData{Title: "Register", Error: "invalid form input"})
		return
	}
	form := authForm{Name: r.PostFormValue("name"), Email: r.PostFormValue("email")}
	_, token, err := h.auth.Register(r.Context(), auth.RegisterInput{
		Name:            form.Name,
		Email:           form.Email,
		Password:        r.PostFormValue("password"),
		ConfirmPassword: r.PostFormValue("c_password"),
	})
	if errs, ok := validation.From(err); ok {
		h.render(w, http.StatusUnprocessableEntity, "register", pageData{Title: "Register", Errors: errs, Auth: form})
		return
	}
	if err != nil {
		h.renderError(w, r, err)
		return
	}
	h.setSession(w, token)
	http.Redirect(w, r, "/tasks", http.StatusSeeOther)
}

func (h *Handler) logout(w http.ResponseWriter, r *http.Request) {
	user, _ := auth.UserFromContext(r.Context())
	if err := h.auth.Logout(r.Context(), user.ID); err != nil {
		h.renderError(w, r, err)
		return
	}
	h.clearSession(w)
	http.Redirect(w, r, "/login", http.StatusSeeOther)
}

func (h *Handler) home(w http.ResponseWriter, r *http.Request) {
	http.Redirect(w, r, "/tasks", http.StatusFound)
}

func (h *Handler) listTasks(w http.ResponseWriter, r *http.Request) {
	user, _ := auth.UserFromContext(r.Context())
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	all, err := h.tasks.List(ctx, user.ID, models.TaskFilter{})
	if err != nil {
		h.renderError(w, r, err)
		return
	}
	h.render(w, http.StatusOK, "tasks", pageData{Title: "Tasks", User: user, Tasks: buildRows(all)})
}

func (h *Handler) showCreate(w http.ResponseWriter, r *http.Request) {
	user, _ := auth.UserFromContext(r.Context())
	h.render(w, http.StatusOK, "task_form", pageData{
		Title:           "New task",
		User:            user,
		Form:            taskForm{Priority: string(models.PriorityMedium)},
		PriorityOptions: priorityOptions(),
	})
}

// createTask ignores any parent_id in the form; parents are set from the
// edit page.
func (h *Handler) createTask(w http.ResponseWriter, r *http.Request) {
	user, _ := auth.UserFromContext(r.Context())
	if err := r.ParseForm(); err != nil {
		h.render(w, http.StatusBadRequest, "task_form", pageData{
			Title: "New task", User: user, Error: "invalid form input", PriorityOptions: priorityOptions(),
		})
		return
	}
	form := taskFormFromRequest(r)

	_, err := h.tasks.Create(r.Context(), user.ID, tasks.CreateFields{
		Title:       form.Title,
		Description: form.Description,
		Priority:    models.Priority(form.Priority),
		Completed:   form.Completed,
		Labels:      parseLabels(form.Labels),
	})
	if errs, ok := validation.From(err); ok {
		h.render(w, http.StatusUnprocessableEntity, "task_form", pageData{
			Title: "New task", User: user, Errors: errs, Form: form, PriorityOptions: priorityOptions(),
		})
		return
	}
	if err != nil {
		h.renderError(w, r, err)
		return
	}
	http.Redirect(w, r, "/tasks", http.StatusSeeOther)
}

func (h *Handler) showEdit(w http.ResponseWriter, r *http.Request) {
	user, _ := auth.UserFromContext(r.Context())
	id, ok := h.taskID(w, r)
	if !ok {
		return
	}
	task, err := h.tasks.Find(r.Context(), user.ID, id)
	if err != nil {
		h.renderError(w, r, err)
		return
	}
	data, err := h.editPage(r.Context(), user, task.ID, taskFormFromTask(task))
	if err != nil {
		h.renderError(w, r, err)
		return
	}
	chain, err := h.tasks.Ancestors(r.Context(), user.ID, task)
	if err != nil {
		h.renderError(w, r, err)
		return
	}
	data.Breadcrumb = breadcrumb(chain)
	h.render(w, http.StatusOK, "task_form", data)
}

func (h *Handler) updateTask(w http.ResponseWriter, r *http.Request) {
	user, _ := auth.UserFromContext(r.Context())
	id, ok := h.taskID(w, r)
	if !ok {
		return
	}
	if err := r.ParseForm(); err != nil {
		h.render(w, http.StatusBadRequest, "error", pageData{Title: "Error", User: user, Error: "invalid form input"})
		return
	}
	form := taskFormFromRequest(r)

	fields := tasks.UpdateFields{
		Title:       &form.Title,
		Description: &form.Description,
		Completed:   &form.Completed,
		SetParent:   true,
	}
	priority := models.Priority(form.Priority)
	fields.Priority = &priority
	labels := parseLabels(form.Labels)
	fields.Labels = &labels

	errs := validation.Errors{}
	if form.ParentID != "" {
		parentID, err := uuid.Parse(form.ParentID)
		if err != nil {
			errs.Add("parent_id", "The selected parent id is invalid.")
		} else {
			fields.ParentID = &parentID
		}
	}

	err := errs.Err()
	if err == nil {
		_, err = h.tasks.Update(r.Context(), user.ID, id, fields)
	}
	if err == nil {
		http.Redirect(w, r, "/tasks", http.StatusSeeOther)
		return
	}

	status := http.StatusUnprocessableEntity
	if errors.Is(err, tasks.ErrForbidden) {
		status = http.StatusForbidden
		errs = validation.Errors{}
		errs.Add("parent_id", "Parent task not found or not authorized")
		err = errs
	}
	formErrs, ok := validation.From(err)
	if !ok {
		h.renderError(w, r, err)
		return
	}
	data, lookupErr := h.editPage(r.Context(), user, id, form)
	if lookupErr != nil {
		h.renderError(w, r, lookupErr)
		return
	}
	data.Errors = formErrs
	h.render(w, status, "task_form", data)
}

func (h *Handler) toggleTask(w http.ResponseWriter, r *http.Request) {
	user, _ := auth.UserFromContext(r.Context())
	id, ok := h.taskID(w, r)
	if !ok {
		return
	}
	if _, err := h.tasks.ToggleCompleted(r.Context(), user.ID, id); err != nil {
		h.renderError(w, r, err)
		return
	}
	http.Redirect(w, r, "/tasks", http.StatusSeeOther)
}

func (h *Handler) deleteTask(w http.ResponseWriter, r *http.Request) {
	user, _ := auth.UserFromContext(r.Context())
	id, ok := h.taskID(w, r)
	if !ok {
		return
	}
	if err := h.tasks.Delete(r.Context(), user.ID, id); err != nil {
		h.renderError(w, r, err)
		return
	}
	http.Redirect(w, r, "/tasks", http.StatusSeeOther)
}

func (h *Handler) taskID(w http.ResponseWriter, r *http.Request) (uuid.UUID, bool) {
	id, err := uuid.Parse(mux.Vars(r)["taskID"])
	if err != nil {
		h.renderError(w, r, tasks.ErrNotFound)
		return uuid.Nil, false
	}
	return id, true
}

// editPage builds the edit form; the parent choices are the owner's other tasks.
func (h *Handler) editPage(ctx context.Context, user *models.User, id uuid.UUID, form taskForm) (pageData, error) {
	all, err := h.tasks.List(ctx, user.ID, models.TaskFilter{})
	if err != nil {
		return pageData{}, err
	}
	parents := make([]selectOption, 0, len(all))
	for _, t := range all {
		if t.ID == id {
			continue
		}
		parents = append(parents, selectOption{Value: t.ID.String(), Label: t.Title})
	}
	return pageData{
		Title:           "Edit task",
		User:            user,
		Editing:         true,
		TaskID:          id,
		Form:            form,
		PriorityOptions: priorityOptions(),
		ParentOptions:   parents,
	}, nil
}

func taskFormFromRequest(r *http.Request) taskForm {
	return taskForm{
		Title:       r.PostFormValue("title"),
		Description: r.PostFormValue("description"),
		Priority:    strings.TrimSpace(r.PostFormValue("priority")),
		Completed:   r.PostFormValue("completed") != "",
		Labels:      r.PostFormValue("labels"),
		ParentID:    strings.TrimSpace(r.PostFormValue("parent_id")),
	}
}

func taskFormFromTask(t *models.Task) taskForm {
	form := taskForm{
		Title:       t.Title,
		Description: t.Description,
		Priority:    string(t.Priority),
		Completed:   t.Completed,
		Labels:      strings.Join(t.Labels, ", "),
	}
	if t.ParentID != nil {
		form.ParentID = t.ParentID.String()
	}
	return form
}

func priorityOptions() []selectOption {
	return []selectOption{
		{Value: string(models.PriorityLow), Label: "Low"},
		{Value: string(models.PriorityMedium), Label: "Medium"},
		{Value: string(models.PriorityHigh), Label: "High"},
	}
}
