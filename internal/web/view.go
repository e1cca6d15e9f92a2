package web

import (
	"strings"
	"time"

	"github.com/chepyr/go-todo-tree/internal/models"
	"github.com/chepyr/go-todo-tree/internal/tasks"
	"github.com/google/uuid"
)

const dateLayout = "Jan 02, 2006"

// ParentView is one link of a task's ancestor chain, nearest first.
type ParentView struct {
	ID     uuid.UUID
	Title  string
	Parent *ParentView
}

type Crumb struct {
	ID    uuid.UUID
	Title string
}

type TaskRow struct {
	ID          uuid.UUID
	Title       string
	Description string
	Priority    models.Priority
	Completed   bool
	Labels      []string
	CreatedAt   string
	Parent      *ParentView
	// Breadcrumb lists the ancestors root first.
	Breadcrumb []Crumb
}

// buildRows formats a full listing. Ancestor chains are resolved against the
// listing itself, so parents owned by someone else never show up.
func buildRows(all []*models.Task) []TaskRow {
	index := tasks.NewIndex(all)
	rows := make([]TaskRow, 0, len(all))
	for _, t := range all {
		chain := index.Ancestors(t)
		rows = append(rows, TaskRow{
			ID:          t.ID,
			Title:       t.Title,
			Description: t.Description,
			Priority:    t.Priority,
			Completed:   t.Completed,
			Labels:      t.Labels,
			CreatedAt:   formatDate(t.CreatedAt),
			Parent:      nestParents(chain),
			Breadcrumb:  breadcrumb(chain),
		})
	}
	return rows
}

func nestParents(chain []*models.Task) *ParentView {
	var head *ParentView
	for i := len(chain) - 1; i >= 0; i-- {
		head = &ParentView{ID: chain[i].ID, Title: chain[i].Title, Parent: head}
	}
	return head
}

func breadcrumb(chain []*models.Task) []Crumb {
	crumbs := make([]Crumb, 0, len(chain))
	for i := len(chain) - 1; i >= 0; i-- {
		crumbs = append(crumbs, Crumb{ID: chain[i].ID, Title: chain[i].Title})
	}
	return crumbs
}

func formatDate(t time.Time) string {
	if t.IsZero() {
		return "-"
	}
	return t.Format(dateLayout)
}

// parseLabels splits the comma separated labels input.
func parseLabels(value string) []string {
	labels := []string{}
	for _, part := range strings.Split(value, ",") {
		if label := strings.TrimSpace(part); label != "" {
			labels = append(labels, label)
		}
	}
	return labels
}
