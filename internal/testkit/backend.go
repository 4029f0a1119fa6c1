// Package testkit provides an in-process fake of the /todos REST backend for
// tests. It speaks the same envelope and records every request it receives.
package testkit

import (
	"encoding/json"
	"fmt"
	"io"
	"mime"
	"net/http"
	"net/http/httptest"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/todoflow-labs/web-client/internal/dto"
)

// Request is what the backend saw for one call.
type Request struct {
	Method      string
	Path        string
	ContentType string
	JSON        map[string]any
	Fields      map[string]string
	FileName    string
	FileType    string
	FileSize    int
}

// IsMultipart reports whether the request carried a multipart body.
func (r Request) IsMultipart() bool {
	return strings.HasPrefix(r.ContentType, "multipart/form-data")
}

type failure struct {
	status  int
	message string
}

type Backend struct {
	*httptest.Server

	mu       sync.Mutex
	todos    map[int64]dto.Todo
	nextID   int64
	requests []Request
	failures map[string]failure
	clock    func() time.Time
}

// NewBackend starts a fake backend; it is closed by t's cleanup when t is non-nil.
func NewBackend(t interface{ Cleanup(func()) }) *Backend {
	b := &Backend{
		todos:    make(map[int64]dto.Todo),
		nextID:   1,
		failures: make(map[string]failure),
		clock:    func() time.Time { return time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC) },
	}

	r := chi.NewRouter()
	r.Use(b.record)
	r.Get("/", b.list)
	r.Post("/", b.create)
	r.Get("/{id}", b.get)
	r.Patch("/{id}", b.update)
	r.Delete("/{id}", b.delete)
	r.Patch("/{id}/toggle", b.toggle)

	b.Server = httptest.NewServer(r)
	if t != nil {
		t.Cleanup(b.Close)
	}
	return b
}

// Seed stores todos as if they had been created earlier.
func (b *Backend) Seed(todos ...dto.Todo) {
	b.mu.Lock()
	defer b.mu.Unlock()
	for _, td := range todos {
		if td.ID == 0 {
			td.ID = b.nextID
		}
		if td.ID >= b.nextID {
			b.nextID = td.ID + 1
		}
		if td.CreatedAt == "" {
			td.CreatedAt = b.stamp()
			td.UpdatedAt = td.CreatedAt
		}
		b.todos[td.ID] = td
	}
}

func (b *Backend) Todos() []dto.Todo {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.sortedLocked()
}

// Requests returns every request received so far.
func (b *Backend) Requests() []Request {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]Request(nil), b.requests...)
}

// Mutations returns the non-GET requests received so far.
func (b *Backend) Mutations() []Request {
	var out []Request
	for _, r := range b.Requests() {
		if r.Method != http.MethodGet {
			out = append(out, r)
		}
	}
	return out
}

// CountRequests counts requests matching method and path.
func (b *Backend) CountRequests(method, path string) int {
	n := 0
	for _, r := range b.Requests() {
		if r.Method == method && r.Path == path {
			n++
		}
	}
	return n
}

func (b *Backend) ResetRequests() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.requests = nil
}

// Fail makes every request with method answer status with an error envelope
// carrying message, until Recover is called.
func (b *Backend) Fail(method string, status int, message string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.failures[method] = failure{status: status, message: message}
}

func (b *Backend) Recover() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.failures = make(map[string]failure)
}

func (b *Backend) record(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		rec := Request{
			Method:      r.Method,
			Path:        r.URL.Path,
			ContentType: r.Header.Get("Content-Type"),
		}
		mediaType, _, _ := mime.ParseMediaType(rec.ContentType)
		switch mediaType {
		case "application/json":
			raw, _ := io.ReadAll(r.Body)
			r.Body = io.NopCloser(strings.NewReader(string(raw)))
			_ = json.Unmarshal(raw, &rec.JSON)
		case "multipart/form-data":
			if err := r.ParseMultipartForm(32 << 20); err == nil {
				rec.Fields = make(map[string]string)
				for k, v := range r.MultipartForm.Value {
					if len(v) > 0 {
						rec.Fields[k] = v[0]
					}
				}
				if files := r.MultipartForm.File["image"]; len(files) > 0 {
					rec.FileName = files[0].Filename
					rec.FileType = files[0].Header.Get("Content-Type")
					rec.FileSize = int(files[0].Size)
				}
			}
		}

		b.mu.Lock()
		b.requests = append(b.requests, rec)
		f, failing := b.failures[r.Method]
		b.mu.Unlock()

		if failing {
			writeEnvelope(w, f.status, false, nil, f.message)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (b *Backend) list(w http.ResponseWriter, r *http.Request) {
	b.mu.Lock()
	todos := b.sortedLocked()
	b.mu.Unlock()
	writeEnvelope(w, http.StatusOK, true, todos, "")
}

func (b *Backend) get(w http.ResponseWriter, r *http.Request) {
	b.mu.Lock()
	defer b.mu.Unlock()
	td, ok := b.lookupLocked(w, r)
	if !ok {
		return
	}
	writeEnvelope(w, http.StatusOK, true, td, "")
}

func (b *Backend) create(w http.ResponseWriter, r *http.Request) {
	title, _, image, err := b.input(r)
	if err != nil {
		writeEnvelope(w, http.StatusBadRequest, false, nil, err.Error())
		return
	}
	if title == nil || strings.TrimSpace(*title) == "" {
		writeEnvelope(w, http.StatusBadRequest, false, nil, "title is required")
		return
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	now := b.stamp()
	td := dto.Todo{ID: b.nextID, Title: *title, CreatedAt: now, UpdatedAt: now}
	if image != "" {
		url := imageURL(td.ID, image)
		td.Image = &url
	}
	b.nextID++
	b.todos[td.ID] = td
	writeEnvelope(w, http.StatusCreated, true, td, "Todo created")
}

func (b *Backend) update(w http.ResponseWriter, r *http.Request) {
	title, completed, image, err := b.input(r)
	if err != nil {
		writeEnvelope(w, http.StatusBadRequest, false, nil, err.Error())
		return
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	td, ok := b.lookupLocked(w, r)
	if !ok {
		return
	}
	if title != nil {
		td.Title = *title
	}
	if completed != nil {
		td.Completed = *completed
	}
	if image != "" {
		url := imageURL(td.ID, image)
		td.Image = &url
	}
	td.UpdatedAt = b.stamp()
	b.todos[td.ID] = td
	writeEnvelope(w, http.StatusOK, true, td, "")
}

func (b *Backend) delete(w http.ResponseWriter, r *http.Request) {
	b.mu.Lock()
	defer b.mu.Unlock()
	td, ok := b.lookupLocked(w, r)
	if !ok {
		return
	}
	delete(b.todos, td.ID)
	writeEnvelope(w, http.StatusOK, true, nil, "Todo deleted")
}

func (b *Backend) toggle(w http.ResponseWriter, r *http.Request) {
	b.mu.Lock()
	defer b.mu.Unlock()
	td, ok := b.lookupLocked(w, r)
	if !ok {
		return
	}
	td.Completed = !td.Completed
	td.UpdatedAt = b.stamp()
	b.todos[td.ID] = td
	writeEnvelope(w, http.StatusOK, true, td, "")
}

// input reads title, completed and the image file name from a JSON or
// multipart body. The recorder has already parsed multipart forms.
func (b *Backend) input(r *http.Request) (title *string, completed *bool, image string, err error) {
	mediaType, _, _ := mime.ParseMediaType(r.Header.Get("Content-Type"))
	switch mediaType {
	case "multipart/form-data":
		if r.MultipartForm == nil {
			if err := r.ParseMultipartForm(32 << 20); err != nil {
				return nil, nil, "", err
			}
		}
		if v, ok := r.MultipartForm.Value["title"]; ok && len(v) > 0 {
			title = &v[0]
		}
		if v, ok := r.MultipartForm.Value["completed"]; ok && len(v) > 0 {
			c, perr := strconv.ParseBool(v[0])
			if perr != nil {
				return nil, nil, "", fmt.Errorf("completed: %w", perr)
			}
			completed = &c
		}
		if files := r.MultipartForm.File["image"]; len(files) > 0 {
			image = files[0].Filename
		}
	case "application/json":
		var body struct {
			Title     *string `json:"title"`
			Completed *bool   `json:"completed"`
		}
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			return nil, nil, "", err
		}
		title, completed = body.Title, body.Completed
	}
	return title, completed, image, nil
}

func (b *Backend) lookupLocked(w http.ResponseWriter, r *http.Request) (dto.Todo, bool) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		writeEnvelope(w, http.StatusBadRequest, false, nil, "invalid id")
		return dto.Todo{}, false
	}
	td, ok := b.todos[id]
	if !ok {
		writeEnvelope(w, http.StatusNotFound, false, nil, "Todo not found")
		return dto.Todo{}, false
	}
	return td, true
}

func (b *Backend) sortedLocked() []dto.Todo {
	out := make([]dto.Todo, 0, len(b.todos))
	for _, td := range b.todos {
		out = append(out, td)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

func (b *Backend) stamp() string {
	return b.clock().Format(time.RFC3339)
}

func imageURL(id int64, name string) string {
	return fmt.Sprintf("https://images.example.test/todos/%d/%s", id, name)
}

func writeEnvelope(w http.ResponseWriter, status int, success bool, data any, msg string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(dto.Envelope[any]{Success: success, Data: data, Message: msg})
}
