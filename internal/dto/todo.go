// internal/dto/todo.go
package dto

// Todo is the backend's persisted entity. Timestamps are ISO-8601 strings
// owned by the backend; the client never writes them.
type Todo struct {
	ID        int64   `json:"id"`
	Title     string  `json:"title"`
	Completed bool    `json:"completed"`
	Image     *string `json:"image,omitempty"`
	CreatedAt string  `json:"createdAt"`
	UpdatedAt string  `json:"updatedAt"`
}

func (t Todo) HasImage() bool {
	return t.Image != nil && *t.Image != ""
}

// ImageURL returns the attached image reference or "".
func (t Todo) ImageURL() string {
	if t.Image == nil {
		return ""
	}
	return *t.Image
}

// Image is a selected, not yet uploaded, binary attachment.
type Image struct {
	Name        string
	ContentType string
	Data        []byte
}

func (i Image) Size() int64 {
	return int64(len(i.Data))
}

type CreateTodo struct {
	Title string `json:"title"`
	Image *Image `json:"-"`
}

type UpdateTodo struct {
	Title     *string `json:"title,omitempty"`
	Completed *bool   `json:"completed,omitempty"`
	Image     *Image  `json:"-"`
}

// Envelope wraps every backend reply.
type Envelope[T any] struct {
	Success bool   `json:"success"`
	Data    T      `json:"data"`
	Message string `json:"message,omitempty"`
}
