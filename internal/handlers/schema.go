package handlers

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/chepyr/go-todo-tree/internal/tasks"
	"github.com/chepyr/go-todo-tree/internal/validation"
	jsonschema "github.com/santhosh-tekuri/jsonschema/v5"
)

// Required fields are checked by the services so that blank strings and
// missing keys produce the same message.
var (
	createTaskSchema = jsonschema.MustCompileString("create-task.json", `{
  "type": "object",
  "properties": {
    "title":       {"type": "string", "maxLength": 255},
    "description": {"type": ["string", "null"]},
    "priority":    {"enum": ["low", "medium", "high"]},
    "completed":   {"type": "boolean"},
    "labels":      {"type": ["array", "null"], "items": {"type": "string"}},
    "parent_id":   {"type": ["string", "null"]}
  }
}`)

	updateTaskSchema = jsonschema.MustCompileString("update-task.json", `{
  "type": "object",
  "properties": {
    "title":       {"type": "string", "maxLength": 255},
    "description": {"type": ["string", "null"]},
    "priority":    {"enum": ["low", "medium", "high"]},
    "completed":   {"type": "boolean"},
    "labels":      {"type": "array", "items": {"type": "string"}},
    "parent_id":   {"type": ["string", "null"]}
  }
}`)

	registerSchema = jsonschema.MustCompileString("register.json", `{
  "type": "object",
  "properties": {
    "name":       {"type": "string"},
    "email":      {"type": "string"},
    "password":   {"type": "string"},
    "c_password": {"type": "string"}
  }
}`)

	emailSchema = jsonschema.MustCompileString("email.json", `{
  "type": "object",
  "properties": {
    "email":    {"type": "string"},
    "password": {"type": "string"}
  }
}`)
)

var errBadJSON = errors.New("bad JSON")

// readDocument reads a JSON object body and validates it against schema.
func readDocument(w http.ResponseWriter, r *http.Request, schema *jsonschema.Schema) ([]byte, map[string]any, error) {
	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err != nil {
		return nil, nil, errBadJSON
	}
	doc, err := decodeDocument(body, schema)
	if err != nil {
		return nil, nil, err
	}
	return body, doc, nil
}

// decodeDocument parses body and checks it against schema. It returns
// errBadJSON for unparsable input and validation.Errors for schema failures.
func decodeDocument(body []byte, schema *jsonschema.Schema) (map[string]any, error) {
	var doc any
	if err := json.Unmarshal(body, &doc); err != nil {
		return nil, errBadJSON
	}
	if err := schema.Validate(doc); err != nil {
		var ve *jsonschema.ValidationError
		if !errors.As(err, &ve) {
			return nil, err
		}
		errs := validation.Errors{}
		collectSchemaErrors(errs, ve)
		return nil, errs
	}
	obj, _ := doc.(map[string]any)
	return obj, nil
}

func collectSchemaErrors(errs validation.Errors, err *jsonschema.ValidationError) {
	if len(err.Causes) == 0 {
		field := instanceField(err.InstanceLocation)
		if field == "" {
			field = "body"
		}
		errs.Add(field, schemaMessage(field, err.Message))
		return
	}
	for _, cause := range err.Causes {
		collectSchemaErrors(errs, cause)
	}
}

// instanceField turns a JSON pointer such as "/labels/2" into its top-level
// field name.
func instanceField(ptr string) string {
	ptr = strings.TrimPrefix(ptr, "#")
	ptr = strings.TrimPrefix(ptr, "/")
	if i := strings.Index(ptr, "/"); i >= 0 {
		ptr = ptr[:i]
	}
	return ptr
}

func schemaMessage(field, message string) string {
	switch {
	case strings.HasPrefix(message, "value must be one of"):
		return "The selected " + strings.ReplaceAll(field, "_", " ") + " is invalid."
	case strings.HasPrefix(message, "length must be <="):
		return fmt.Sprintf("The %s may not be greater than %d characters.", field, tasks.MaxTitleLength)
	}
	return "The " + strings.ReplaceAll(field, "_", " ") + " field is invalid: " + message + "."
}
