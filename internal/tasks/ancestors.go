package tasks

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/chepyr/go-todo-tree/internal/models"
	"github.com/chepyr/go-todo-tree/internal/validation"
	"github.com/google/uuid"
)

// MaxAncestorDepth bounds every walk up a parent chain.
const MaxAncestorDepth = 64

var errChainTooDeep = errors.New("ancestor chain too deep")

type lookupFunc func(id uuid.UUID) (*models.Task, error)

// walkAncestors follows parent links starting at start and returns the chain
// nearest ancestor first. It stops at a task without a parent, at a parent
// the lookup cannot see (errNoTask), or at the first repeated id. It fails
// with errChainTooDeep after MaxAncestorDepth hops.
func walkAncestors(start *uuid.UUID, lookup lookupFunc) ([]*models.Task, error) {
	var chain []*models.Task
	seen := map[uuid.UUID]bool{}
	next := start
	for next != nil {
		if seen[*next] {
			return chain, nil
		}
		if len(chain) == MaxAncestorDepth {
			return chain, errChainTooDeep
		}
		seen[*next] = true

		task, err := lookup(*next)
		if errors.Is(err, errNoTask) {
			return chain, nil
		}
		if err != nil {
			return nil, err
		}
		chain = append(chain, task)
		next = task.ParentID
	}
	return chain, nil
}

var errNoTask = errors.New("no such task")

func (s *Service) repoLookup(ctx context.Context, owner uuid.UUID) lookupFunc {
	return func(id uuid.UUID) (*models.Task, error) {
		task, err := s.repo.GetByID(ctx, owner, id)
		if errors.Is(err, sql.ErrNoRows) {
			return nil, errNoTask
		}
		return task, err
	}
}

// Ancestors returns the task's parent chain, nearest first. Dangling parents
// end the chain; a chain that loops back on itself is cut at the repeat.
func (s *Service) Ancestors(ctx context.Context, owner uuid.UUID, task *models.Task) ([]*models.Task, error) {
	chain, err := walkAncestors(task.ParentID, s.repoLookup(ctx, owner))
	if err != nil && !errors.Is(err, errChainTooDeep) {
		return nil, fmt.Errorf("ancestors of %s: %w", task.ID, err)
	}
	return chain, nil
}

// Index resolves ancestor chains over tasks that are already loaded, such as
// a full listing.
type Index map[uuid.UUID]*models.Task

func NewIndex(all []*models.Task) Index {
	index := make(Index, len(all))
	for _, t := range all {
		index[t.ID] = t
	}
	return index
}

// Ancestors is Service.Ancestors over the index.
func (ix Index) Ancestors(task *models.Task) []*models.Task {
	chain, _ := walkAncestors(task.ParentID, func(id uuid.UUID) (*models.Task, error) {
		if t, ok := ix[id]; ok {
			return t, nil
		}
		return nil, errNoTask
	})
	return chain
}

// AncestorsIn is Ancestors over all. Callers resolving many tasks should build
// one Index instead.
func AncestorsIn(all []*models.Task, task *models.Task) []*models.Task {
	return NewIndex(all).Ancestors(task)
}

// checkAncestry rejects making parent the parent of taskID when taskID is
// already among parent's ancestors, or when the resulting chain would exceed
// MaxAncestorDepth.
func (s *Service) checkAncestry(ctx context.Context, owner, taskID uuid.UUID, parent *models.Task) error {
	chain, err := walkAncestors(&parent.ID, s.repoLookup(ctx, owner))
	if errors.Is(err, errChainTooDeep) || len(chain) >= MaxAncestorDepth {
		errs := validation.Errors{}
		errs.Add("parent_id", fmt.Sprintf("The task hierarchy may not be deeper than %d levels.", MaxAncestorDepth))
		return errs
	}
	if err != nil {
		return fmt.Errorf("check ancestry of %s: %w", taskID, err)
	}
	for _, ancestor := range chain {
		if ancestor.ID == taskID {
			errs := validation.Errors{}
			errs.Add("parent_id", "The selected parent is a subtask of this task.")
			return errs
		}
	}
	return nil
}
