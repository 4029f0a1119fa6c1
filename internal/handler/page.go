package handler

import (
	"html/template"
	"strings"
	"time"

	"github.com/todoflow-labs/web-client/internal/dialog"
	"github.com/todoflow-labs/web-client/internal/imagefile"
	"github.com/todoflow-labs/web-client/internal/notify"
	"github.com/todoflow-labs/web-client/internal/table"
)

type pageData struct {
	View   table.View
	Dialog dialog.State
	Toasts []notify.Notification
	Accept string
}

var funcs = template.FuncMap{
	"previewURL": previewURL,
	"when":       formatTime,
}

// previewURL maps a preview to something an <img> can load: remote refs are
// used as-is, local ones are served from /previews.
func previewURL(p imagefile.Preview) string {
	if !p.IsLocal() {
		return p.Ref
	}
	return "/previews/" + strings.TrimPrefix(p.Ref, "blob:")
}

func formatTime(s string) string {
	t, err := time.Parse(time.RFC3339, s)
	if err != nil {
		return s
	}
	return t.Local().Format("2006-01-02 15:04:05")
}

var page = template.Must(template.New("page").Funcs(funcs).Parse(`<!doctype html>
<html lang="en">
<head>
<meta charset="utf-8">
<title>My Todos</title>
</head>
<body>
<main>
{{range .Toasts}}<div class="toast toast-{{.Level}}" role="status">{{.Message}}</div>
{{end}}
{{if eq .View.State "loading"}}
  <div class="progress" aria-busy="true">Loading…</div>
{{else if eq .View.State "error"}}
  <div class="alert alert-error" role="alert">{{.View.Message}}</div>
  <form method="post" action="/todos/reload"><button type="submit">Retry</button></form>
{{else if eq .View.State "empty"}}
  <section class="empty-state">
    <h2>No Todos Yet</h2>
    <p>Get started by creating your first todo</p>
    <form method="post" action="/todos/new"><button type="submit">Create Todo</button></form>
  </section>
{{else}}
  <header>
    <h1>My Todos</h1>
    <form method="post" action="/todos/new"><button type="submit">Create Todo</button></form>
  </header>
  <table aria-label="todo table">
    <thead><tr><th>ID</th><th>Title</th><th>Status</th><th>Created At</th><th>Updated At</th><th>Actions</th></tr></thead>
    <tbody>
    {{range .View.Rows}}{{$id := .Todo.ID}}
      <tr id="todo-{{$id}}">
        <td>{{$id}}</td>
        <td>{{if .Todo.HasImage}}<img src="{{.Todo.ImageURL}}" alt="{{.Todo.Title}}" width="48" height="48">{{end}}<span>{{.Todo.Title}}</span></td>
        <td>{{if .Todo.Completed}}<span class="chip chip-success">Completed</span>{{else}}<span class="chip chip-warning">Pending</span>{{end}}</td>
        <td>{{when .Todo.CreatedAt}}</td>
        <td>{{when .Todo.UpdatedAt}}</td>
        <td>
          <form method="post" action="/todos/{{$id}}/image" enctype="multipart/form-data">
            <input type="file" name="image" accept="{{$.Accept}}"{{if .Uploading}} disabled{{end}}>
            <button type="submit"{{if .Uploading}} disabled{{end}}>{{if .Todo.HasImage}}Change image{{else}}Upload image{{end}}</button>
          </form>
          <form method="post" action="/todos/{{$id}}/toggle">
            <button type="submit"{{if .Toggling}} disabled{{end}}>{{if .Todo.Completed}}Mark as pending{{else}}Mark as completed{{end}}</button>
          </form>
          <form method="post" action="/todos/{{$id}}/edit"><button type="submit">Edit</button></form>
          <form method="post" action="/todos/{{$id}}/delete">
            <label><input type="checkbox" name="confirm" value="yes"> Are you sure you want to delete this todo?</label>
            <button type="submit"{{if .Deleting}} disabled{{end}}>Delete</button>
          </form>
        </td>
      </tr>
    {{end}}
    </tbody>
  </table>
{{end}}
{{with .Dialog}}{{if .Open}}
  <dialog open>
    <form method="post" action="/dialog/submit" enctype="multipart/form-data">
      <h2>{{if eq .Mode "create"}}Create New Todo{{else}}Update Todo{{end}}</h2>
      <label>Todo Title <input type="text" name="title" value="{{.Title}}" required autofocus{{if .Submitting}} disabled{{end}}></label>
      {{if eq .Mode "update"}}<label><input type="checkbox" name="completed" value="true"{{if .Completed}} checked{{end}}> Completed</label>{{end}}
      <fieldset>
        <legend>Image (Optional)</legend>
        {{with .Preview}}<img src="{{previewURL .}}" alt="preview" width="120" height="120">{{end}}
        <input type="file" name="image" accept="{{$.Accept}}">
        <small>Supported: JPEG, PNG, GIF, WebP (Max 5MB)</small>
      </fieldset>
      <button type="submit" formaction="/dialog/close" formnovalidate>Cancel</button>
      <button type="submit"{{if .Submitting}} disabled{{end}}>{{if eq .Mode "create"}}Create{{else}}Update{{end}}</button>
    </form>
    <form method="post" action="/dialog/image" enctype="multipart/form-data">
      <input type="file" name="image" accept="{{$.Accept}}">
      <button type="submit">{{if .Preview}}Change Image{{else}}Upload Image{{end}}</button>
    </form>
    {{if .Preview}}<form method="post" action="/dialog/image/remove"><button type="submit">Remove image</button></form>{{end}}
  </dialog>
{{end}}{{end}}
</main>
</body>
</html>
`))
