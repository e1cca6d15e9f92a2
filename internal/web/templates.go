package web

import (
	"html/template"

	"github.com/chepyr/go-todo-tree/internal/validation"
)

func newTemplates() *template.Template {
	funcs := template.FuncMap{
		"fieldError": func(errs validation.Errors, field string) string {
			if msgs := errs[field]; len(msgs) > 0 {
				return msgs[0]
			}
			return ""
		},
	}
	return template.Must(template.New("pages").Funcs(funcs).Parse(pageTemplates))
}

const pageTemplates = `
{{define "header"}}<!doctype html>
<html lang="en">
<head>
  <meta charset="utf-8">
  <meta name="viewport" content="width=device-width, initial-scale=1">
  <title>{{.Title}}</title>
  <style>
    body { margin: 0; font-family: "Charter", "Georgia", serif; color: #2b2520; background: #fcfaf6; }
    header { display: flex; justify-content: space-between; align-items: center; padding: 12px 24px; border-bottom: 1px solid #d7cdbd; }
    header h1 { margin: 0; font-size: 20px; }
    main { max-width: 880px; margin: 24px auto; padding: 0 24px; }
    table { width: 100%; border-collapse: collapse; }
    th, td { text-align: left; padding: 8px; border-bottom: 1px solid #e6ddd0; vertical-align: top; }
    .done { text-decoration: line-through; color: #8a8075; }
    .crumbs { font-size: 12px; color: #7a6f64; }
    .label { display: inline-block; padding: 0 6px; margin-right: 4px; border-radius: 999px; background: #efe7da; font-size: 12px; }
    .priority-high { color: #a23b2a; }
    .error { color: #a23b2a; }
    form.inline { display: inline; }
    label { display: block; margin-top: 12px; }
  </style>
</head>
<body>
<header>
  <h1><a href="/tasks">Tasks</a></h1>
  {{if .User}}
  <form class="inline" method="post" action="/logout">
    <span>{{.User.Name}}</span>
    <button type="submit">Log out</button>
  </form>
  {{end}}
</header>
<main>
{{if .Error}}<p class="error">{{.Error}}</p>{{end}}
{{end}}

{{define "footer"}}</main>
</body>
</html>
{{end}}

{{define "login"}}{{template "header" .}}
<h2>Log in</h2>
<form method="post" action="/login">
  <label>Email <input type="email" name="email" value="{{.Auth.Email}}" required></label>
  <label>Password <input type="password" name="password" required></label>
  <p><button type="submit">Log in</button> or <a href="/register">register</a></p>
</form>
{{template "footer" .}}{{end}}

{{define "register"}}{{template "header" .}}
<h2>Register</h2>
<form method="post" action="/register">
  <label>Name <input name="name" value="{{.Auth.Name}}" required></label>
  {{with fieldError .Errors "name"}}<p class="error">{{.}}</p>{{end}}
  <label>Email <input type="email" name="email" value="{{.Auth.Email}}" required></label>
  {{with fieldError .Errors "email"}}<p class="error">{{.}}</p>{{end}}
  <label>Password <input type="password" name="password" required></label>
  {{with fieldError .Errors "password"}}<p class="error">{{.}}</p>{{end}}
  <label>Confirm password <input type="password" name="c_password" required></label>
  {{with fieldError .Errors "c_password"}}<p class="error">{{.}}</p>{{end}}
  <p><button type="submit">Register</button> or <a href="/login">log in</a></p>
</form>
{{template "footer" .}}{{end}}

{{define "parent"}}{{.Title}}{{with .Parent}} &larr; {{template "parent" .}}{{end}}{{end}}

{{define "tasks"}}{{template "header" .}}
<p><a href="/tasks/create">New task</a></p>
{{if .Tasks}}
<table>
  <thead><tr><th></th><th>Task</th><th>Priority</th><th>Labels</th><th>Created</th><th></th></tr></thead>
  <tbody>
  {{range .Tasks}}
  <tr>
    <td>
      <form class="inline" method="post" action="/tasks/{{.ID}}/toggle">
        <button type="submit" title="Toggle">{{if .Completed}}&#10003;{{else}}&#9744;{{end}}</button>
      </form>
    </td>
    <td>
      {{if .Breadcrumb}}<div class="crumbs">{{range $i, $c := .Breadcrumb}}{{if $i}} / {{end}}{{$c.Title}}{{end}}</div>{{end}}
      <div class="{{if .Completed}}done{{end}}">{{.Title}}</div>
      {{if .Description}}<div>{{.Description}}</div>{{end}}
      {{with .Parent}}<div class="crumbs" data-parent="{{.ID}}">Parent: {{template "parent" .}}</div>{{end}}
    </td>
    <td class="priority-{{.Priority}}">{{.Priority}}</td>
    <td>{{range .Labels}}<span class="label">{{.}}</span>{{end}}</td>
    <td>{{.CreatedAt}}</td>
    <td>
      <a href="/tasks/{{.ID}}/edit">Edit</a>
      <form class="inline" method="post" action="/tasks/{{.ID}}/delete">
        <button type="submit">Delete</button>
      </form>
    </td>
  </tr>
  {{end}}
  </tbody>
</table>
{{else}}
<p>No tasks yet.</p>
{{end}}
{{template "footer" .}}{{end}}

{{define "task_form"}}{{template "header" .}}
{{if .Editing}}
<h2>Edit task</h2>
{{if .Breadcrumb}}<p class="crumbs">{{range $i, $c := .Breadcrumb}}{{if $i}} / {{end}}{{$c.Title}}{{end}}</p>{{end}}
<form method="post" action="/tasks/{{.TaskID}}">
{{else}}
<h2>New task</h2>
<form method="post" action="/tasks">
{{end}}
  <label>Title <input name="title" value="{{.Form.Title}}" maxlength="255"></label>
  {{with fieldError .Errors "title"}}<p class="error">{{.}}</p>{{end}}
  <label>Description <textarea name="description">{{.Form.Description}}</textarea></label>
  <label>Priority
    <select name="priority">
      {{range .PriorityOptions}}<option value="{{.Value}}"{{if eq .Value $.Form.Priority}} selected{{end}}>{{.Label}}</option>{{end}}
    </select>
  </label>
  {{with fieldError .Errors "priority"}}<p class="error">{{.}}</p>{{end}}
  <label>Labels <input name="labels" value="{{.Form.Labels}}" placeholder="comma, separated"></label>
  <label><input type="checkbox" name="completed" value="1"{{if .Form.Completed}} checked{{end}}> Completed</label>
  {{if .Editing}}
  <label>Parent
    <select name="parent_id">
      <option value="">None</option>
      {{range .ParentOptions}}<option value="{{.Value}}"{{if eq .Value $.Form.ParentID}} selected{{end}}>{{.Label}}</option>{{end}}
    </select>
  </label>
  {{with fieldError .Errors "parent_id"}}<p class="error">{{.}}</p>{{end}}
  {{end}}
  <p><button type="submit">Save</button> <a href="/tasks">Cancel</a></p>
</form>
{{template "footer" .}}{{end}}

{{define "error"}}{{template "header" .}}
<p><a href="/tasks">Back to tasks</a></p>
{{template "footer" .}}{{end}}
`
