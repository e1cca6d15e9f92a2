// Package validation collects per-field input errors.
package validation

import (
	"errors"
	"sort"
	"strings"
)

// Errors maps a field name to the problems found with it. A non-empty Errors
// is an error; use Err to get a nil error when nothing was recorded.
type Errors map[string][]string

func (e Errors) Add(field, message string) {
	e[field] = append(e[field], message)
}

func (e Errors) Has(field string) bool {
	return len(e[field]) > 0
}

// Err returns e as an error, or nil if no field has a problem.
func (e Errors) Err() error {
	if len(e) == 0 {
		return nil
	}
	return e
}

func (e Errors) Error() string {
	fields := make([]string, 0, len(e))
	for field := range e {
		fields = append(fields, field)
	}
	sort.Strings(fields)

	parts := make([]string, 0, len(fields))
	for _, field := range fields {
		parts = append(parts, field+": "+strings.Join(e[field], "; "))
	}
	return "validation failed: " + strings.Join(parts, ", ")
}

// FirstMessage returns the message of the alphabetically first failing field.
func (e Errors) FirstMessage() string {
	fields := make([]string, 0, len(e))
	for field := range e {
		fields = append(fields, field)
	}
	sort.Strings(fields)
	for _, field := range fields {
		if msgs := e[field]; len(msgs) > 0 {
			return msgs[0]
		}
	}
	return ""
}

// From extracts Errors from err, if it wraps one.
func From(err error) (Errors, bool) {
	var errs Errors
	if errors.As(err, &errs) {
		return errs, true
	}
	return nil, false
}
