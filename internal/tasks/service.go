// Package tasks enforces task ownership and the parent/child rules on top of
// a task repository.
package tasks

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/chepyr/go-todo-tree/internal/models"
	"github.com/chepyr/go-todo-tree/internal/validation"
	"github.com/google/uuid"
)

const MaxTitleLength = 255

// Repository is the persistence the service needs. Lookups scoped to an
// owner return sql.ErrNoRows for rows that are missing or owned by someone else.
type Repository interface {
	Create(ctx context.Context, task *models.Task) error
	GetByID(ctx context.Context, ownerID, id uuid.UUID) (*models.Task, error)
	List(ctx context.Context, ownerID uuid.UUID, filter models.TaskFilter) ([]*models.Task, error)
	Update(ctx context.Context, task *models.Task) error
	ToggleCompleted(ctx context.Context, ownerID, id uuid.UUID, updatedAt time.Time) error
	Delete(ctx context.Context, ownerID, id uuid.UUID) error
}

type Event string

const (
	EventCreated Event = "task_created"
	EventUpdated Event = "task_updated"
	EventDeleted Event = "task_deleted"
)

// Notifier is told about every successful mutation.
type Notifier interface {
	TaskChanged(ownerID uuid.UUID, event Event, task *models.Task)
}

type Service struct {
	repo     Repository
	notifier Notifier
	now      func() time.Time
}

type Option func(*Service)

func WithNotifier(n Notifier) Option {
	return func(s *Service) { s.notifier = n }
}

// WithClock replaces time.Now for created_at/updated_at stamps.
func WithClock(now func() time.Time) Option {
	return func(s *Service) { s.now = now }
}

func NewService(repo Repository, opts ...Option) *Service {
	s := &Service{
		repo: repo,
		now:  func() time.Time { return time.Now().UTC() },
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

type CreateFields struct {
	Title       string
	Description string
	Priority    models.Priority
	Completed   bool
	Labels      []string
	ParentID    *uuid.UUID
}

// UpdateFields carries a partial update: nil pointers leave the column as is.
// SetParent distinguishes "clear the parent" (ParentID nil) from "not sent".
type UpdateFields struct {
	Title       *string
	Description *string
	Priority    *models.Priority
	Completed   *bool
	Labels      *[]string
	SetParent   bool
	ParentID    *uuid.UUID
}

// Detail is a task together with its parent and the owner's subtasks.
type Detail struct {
	Task     *models.Task
	Parent   *models.Task
	Children []*models.Task
}

func (s *Service) List(ctx context.Context, owner uuid.UUID, filter models.TaskFilter) ([]*models.Task, error) {
	list, err := s.repo.List(ctx, owner, filter)
	if err != nil {
		return nil, fmt.Errorf("list tasks: %w", err)
	}
	return list, nil
}

// Find returns the task if owner owns it, ErrNotFound otherwise.
func (s *Service) Find(ctx context.Context, owner, id uuid.UUID) (*models.Task, error) {
	task, err := s.repo.GetByID(ctx, owner, id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get task %s: %w", id, err)
	}
	return task, nil
}

func (s *Service) Get(ctx context.Context, owner, id uuid.UUID) (*Detail, error) {
	task, err := s.Find(ctx, owner, id)
	if err != nil {
		return nil, err
	}
	detail := &Detail{Task: task}

	if task.ParentID != nil {
		parent, err := s.repo.GetByID(ctx, owner, *task.ParentID)
		switch {
		case err == nil:
			detail.Parent = parent
		case !errors.Is(err, sql.ErrNoRows):
			return nil, fmt.Errorf("get parent of %s: %w", id, err)
		}
	}

	children, err := s.repo.List(ctx, owner, models.TaskFilter{ParentID: &task.ID})
	if err != nil {
		return nil, fmt.Errorf("list subtasks of %s: %w", id, err)
	}
	detail.Children = children
	return detail, nil
}

func (s *Service) Create(ctx context.Context, owner uuid.UUID, fields CreateFields) (*models.Task, error) {
	errs := validation.Errors{}
	title := strings.TrimSpace(fields.Title)
	validateTitle(errs, title)
	validatePriority(errs, fields.Priority)
	if err := errs.Err(); err != nil {
		return nil, err
	}

	var parentID *uuid.UUID
	if fields.ParentID != nil {
		parent, err := s.ownedParent(ctx, owner, *fields.ParentID)
		if err != nil {
			return nil, err
		}
		parentID = &parent.ID
	}

	now := s.now()
	task := &models.Task{
		ID:          uuid.New(),
		OwnerID:     owner,
		Title:       title,
		Description: fields.Description,
		Priority:    fields.Priority,
		Completed:   fields.Completed,
		Labels:      normalizeLabels(fields.Labels),
		ParentID:    parentID,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if err := s.repo.Create(ctx, task); err != nil {
		return nil, fmt.Errorf("create task: %w", err)
	}
	s.notify(owner, EventCreated, task)
	return task, nil
}

func (s *Service) Update(ctx context.Context, owner, id uuid.UUID, fields UpdateFields) (*models.Task, error) {
	task, err := s.Find(ctx, owner, id)
	if err != nil {
		return nil, err
	}

	errs := validation.Errors{}
	if fields.Title != nil {
		title := strings.TrimSpace(*fields.Title)
		validateTitle(errs, title)
		task.Title = title
	}
	if fields.Description != nil {
		task.Description = *fields.Description
	}
	if fields.Priority != nil {
		validatePriority(errs, *fields.Priority)
		task.Priority = *fields.Priority
	}
	if fields.Completed != nil {
		task.Completed = *fields.Completed
	}
	if fields.Labels != nil {
		task.Labels = normalizeLabels(*fields.Labels)
	}
	if fields.SetParent && fields.ParentID != nil && *fields.ParentID == task.ID {
		errs.Add("parent_id", "A task cannot be its own parent.")
	}
	if err := errs.Err(); err != nil {
		return nil, err
	}

	if fields.SetParent {
		if fields.ParentID == nil {
			task.ParentID = nil
		} else {
			parent, err := s.ownedParent(ctx, owner, *fields.ParentID)
			if err != nil {
				return nil, err
			}
			if err := s.checkAncestry(ctx, owner, task.ID, parent); err != nil {
				return nil, err
			}
			task.ParentID = &parent.ID
		}
	}

	task.UpdatedAt = s.now()
	if err := s.repo.Update(ctx, task); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("update task %s: %w", id, err)
	}
	s.notify(owner, EventUpdated, task)
	return task, nil
}

func (s *Service) ToggleCompleted(ctx context.Context, owner, id uuid.UUID) (*models.Task, error) {
	err := s.repo.ToggleCompleted(ctx, owner, id, s.now())
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("toggle task %s: %w", id, err)
	}
	task, err := s.Find(ctx, owner, id)
	if err != nil {
		return nil, err
	}
	s.notify(owner, EventUpdated, task)
	return task, nil
}

// Delete removes the task only. Its children keep their parent_id.
func (s *Service) Delete(ctx context.Context, owner, id uuid.UUID) error {
	err := s.repo.Delete(ctx, owner, id)
	if errors.Is(err, sql.ErrNoRows) {
		return ErrNotFound
	}
	if err != nil {
		return fmt.Errorf("delete task %s: %w", id, err)
	}
	s.notify(owner, EventDeleted, &models.Task{ID: id, OwnerID: owner})
	return nil
}

func (s *Service) ownedParent(ctx context.Context, owner, parentID uuid.UUID) (*models.Task, error) {
	parent, err := s.repo.GetByID(ctx, owner, parentID)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrForbidden
	}
	if err != nil {
		return nil, fmt.Errorf("get parent %s: %w", parentID, err)
	}
	return parent, nil
}

func (s *Service) notify(owner uuid.UUID, event Event, task *models.Task) {
	if s.notifier != nil {
		s.notifier.TaskChanged(owner, event, task)
	}
}

func validateTitle(errs validation.Errors, title string) {
	if title == "" {
		errs.Add("title", "The title field is required.")
		return
	}
	if utf8.RuneCountInString(title) > MaxTitleLength {
		errs.Add("title", fmt.Sprintf("The title may not be greater than %d characters.", MaxTitleLength))
	}
}

func validatePriority(errs validation.Errors, p models.Priority) {
	if p == "" {
		errs.Add("priority", "The priority field is required.")
		return
	}
	if !p.Valid() {
		errs.Add("priority", "The selected priority is invalid.")
	}
}

func normalizeLabels(labels []string) []string {
	if labels == nil {
		return []string{}
	}
	out := make([]string, len(labels))
	copy(out, labels)
	return out
}
