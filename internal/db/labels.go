package db

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/lib/pq"
)

// MigrateLegacyLabels rewrites labels that were stored as a comma-joined
// string or a JSON array into the array encoding the repositories read.
// Rows already in array form are left alone. It returns the number of rows
// rewritten.
func MigrateLegacyLabels(ctx context.Context, db *sql.DB) (int, error) {
	rows, err := db.QueryContext(ctx, `SELECT id, labels FROM tasks`)
	if err != nil {
		return 0, err
	}

	pending := map[uuid.UUID][]string{}
	for rows.Next() {
		var id uuid.UUID
		var raw sql.NullString
		if err := rows.Scan(&id, &raw); err != nil {
			rows.Close()
			return 0, err
		}
		if labels, legacy := parseLegacyLabels(raw); legacy {
			pending[id] = labels
		}
	}
	if err := rows.Err(); err != nil {
		rows.Close()
		return 0, err
	}
	rows.Close()

	if len(pending) == 0 {
		return 0, nil
	}

	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return 0, err
	}
	defer tx.Rollback()

	for id, labels := range pending {
		if _, err := tx.ExecContext(ctx, `UPDATE tasks SET labels = $1 WHERE id = $2`,
			pq.StringArray(labels), id); err != nil {
			return 0, fmt.Errorf("rewrite labels for task %s: %w", id, err)
		}
	}
	if err := tx.Commit(); err != nil {
		return 0, err
	}
	return len(pending), nil
}

// parseLegacyLabels reports whether raw is in a legacy encoding and, if so,
// the labels it holds.
func parseLegacyLabels(raw sql.NullString) ([]string, bool) {
	if !raw.Valid {
		return []string{}, true
	}
	value := strings.TrimSpace(raw.String)
	if strings.HasPrefix(value, "{") {
		return nil, false
	}
	if value == "" {
		return []string{}, true
	}
	if strings.HasPrefix(value, "[") {
		var labels []string
		if err := json.Unmarshal([]byte(value), &labels); err == nil {
			return cleanLabels(labels), true
		}
		value = strings.Trim(value, "[]")
	}
	return cleanLabels(strings.Split(value, ",")), true
}

func cleanLabels(in []string) []string {
	out := make([]string, 0, len(in))
	for _, label := range in {
		label = strings.TrimSpace(label)
		if label != "" {
			out = append(out, label)
		}
	}
	return out
}
