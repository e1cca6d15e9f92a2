package tasks

import "errors"

var (
	// ErrNotFound covers both missing tasks and tasks owned by someone else,
	// so callers cannot probe for ids they don't own.
	ErrNotFound = errors.New("task not found")

	// ErrForbidden is returned when a referenced parent is missing or belongs
	// to another owner.
	ErrForbidden = errors.New("parent task not found or not authorized")
)
