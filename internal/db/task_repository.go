package db

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/chepyr/go-todo-tree/internal/models"
	"github.com/google/uuid"
	"github.com/lib/pq"
)

const taskColumns = `id, owner_id, title, description, priority, completed, labels, parent_id, created_at, updated_at`

// TaskRepository scopes every read and write by owner_id: a row owned by
// someone else behaves exactly like a missing row (sql.ErrNoRows).
type TaskRepository struct {
	db *sql.DB
}

func NewTaskRepository(db *sql.DB) *TaskRepository {
	return &TaskRepository{db: db}
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanTask(row rowScanner) (*models.Task, error) {
	task := &models.Task{}
	var labels pq.StringArray
	var parent uuid.NullUUID
	err := row.Scan(
		&task.ID, &task.OwnerID, &task.Title, &task.Description, &task.Priority,
		&task.Completed, &labels, &parent, &task.CreatedAt, &task.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	task.Labels = []string(labels)
	if task.Labels == nil {
		task.Labels = []string{}
	}
	if parent.Valid {
		id := parent.UUID
		task.ParentID = &id
	}
	return task, nil
}

func labelsValue(labels []string) pq.StringArray {
	if labels == nil {
		return pq.StringArray{}
	}
	return pq.StringArray(labels)
}

func parentValue(parentID *uuid.UUID) uuid.NullUUID {
	if parentID == nil {
		return uuid.NullUUID{}
	}
	return uuid.NullUUID{UUID: *parentID, Valid: true}
}

func (r *TaskRepository) Create(ctx context.Context, task *models.Task) error {
	query := `INSERT INTO tasks (` + taskColumns + `)
	 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`

	_, err := r.db.ExecContext(
		ctx, query, task.ID, task.OwnerID, task.Title, task.Description, string(task.Priority),
		task.Completed, labelsValue(task.Labels), parentValue(task.ParentID),
		task.CreatedAt, task.UpdatedAt)
	return err
}

func (r *TaskRepository) GetByID(ctx context.Context, ownerID, id uuid.UUID) (*models.Task, error) {
	query := `SELECT ` + taskColumns + ` FROM tasks WHERE id = $1 AND owner_id = $2`
	return scanTask(r.db.QueryRowContext(ctx, query, id, ownerID))
}

// List returns the owner's tasks matching every non-nil filter field, newest first.
func (r *TaskRepository) List(ctx context.Context, ownerID uuid.UUID, filter models.TaskFilter) ([]*models.Task, error) {
	query := `SELECT ` + taskColumns + ` FROM tasks WHERE owner_id = $1`
	args := []any{ownerID}

	if filter.Priority != nil {
		args = append(args, string(*filter.Priority))
		query += fmt.Sprintf(" AND priority = $%d", len(args))
	}
	if filter.Completed != nil {
		args = append(args, *filter.Completed)
		query += fmt.Sprintf(" AND completed = $%d", len(args))
	}
	if filter.Search != "" {
		args = append(args, "%"+filter.Search+"%")
		query += fmt.Sprintf(" AND title LIKE $%d", len(args))
	}
	if filter.ParentID != nil {
		args = append(args, *filter.ParentID)
		query += fmt.Sprintf(" AND parent_id = $%d", len(args))
	}
	query += " ORDER BY created_at DESC"

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	tasks := []*models.Task{}
	for rows.Next() {
		task, err := scanTask(rows)
		if err != nil {
			return nil, err
		}
		tasks = append(tasks, task)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return tasks, nil
}

// Update overwrites every mutable column. Concurrent writers are last-write-wins.
func (r *TaskRepository) Update(ctx context.Context, task *models.Task) error {
	query := `UPDATE tasks SET title = $1, description = $2, priority = $3, completed = $4,
	 labels = $5, parent_id = $6, updated_at = $7 WHERE id = $8 AND owner_id = $9`
	res, err := r.db.ExecContext(ctx, query,
		task.Title, task.Description, string(task.Priority), task.Completed,
		labelsValue(task.Labels), parentValue(task.ParentID), task.UpdatedAt,
		task.ID, task.OwnerID)
	if err != nil {
		return err
	}
	return expectAffected(res)
}

// ToggleCompleted flips completed in a single statement.
func (r *TaskRepository) ToggleCompleted(ctx context.Context, ownerID, id uuid.UUID, updatedAt time.Time) error {
	query := `UPDATE tasks SET completed = NOT completed, updated_at = $1 WHERE id = $2 AND owner_id = $3`
	res, err := r.db.ExecContext(ctx, query, updatedAt, id, ownerID)
	if err != nil {
		return err
	}
	return expectAffected(res)
}

// Delete removes one task. Children are left untouched.
func (r *TaskRepository) Delete(ctx context.Context, ownerID, id uuid.UUID) error {
	res, err := r.db.ExecContext(ctx, `DELETE FROM tasks WHERE id = $1 AND owner_id = $2`, id, ownerID)
	if err != nil {
		return err
	}
	return expectAffected(res)
}

func expectAffected(res sql.Result) error {
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return sql.ErrNoRows
	}
	return nil
}
