package imagefile

import (
	"errors"
	"strings"
	"sync"

	"github.com/google/uuid"

	"github.com/todoflow-labs/web-client/internal/dto"
)

const localScheme = "blob:"

var ErrPreviewNotFound = errors.New("preview not found")

// Preview is a renderable reference to an image. Local previews are backed by
// bytes held in a Registry and must be released by their owner; remote ones
// point at an already persisted image and are never released.
type Preview struct {
	Ref string
}

// RemotePreview wraps a persisted image URL.
func RemotePreview(url string) Preview {
	return Preview{Ref: url}
}

// IsLocal reports whether p was generated from local file bytes.
func (p Preview) IsLocal() bool {
	return !strings.HasPrefix(p.Ref, "http://") && !strings.HasPrefix(p.Ref, "https://")
}

type resource struct {
	contentType string
	data        []byte
}

// Registry owns the bytes behind local previews.
type Registry struct {
	mu    sync.Mutex
	items map[string]resource
}

func NewRegistry() *Registry {
	return &Registry{items: make(map[string]resource)}
}

// Create registers a local preview for img. The caller owns the result.
func (r *Registry) Create(img dto.Image) Preview {
	ref := localScheme + uuid.NewString()
	data := append([]byte(nil), img.Data...)

	r.mu.Lock()
	defer r.mu.Unlock()
	r.items[ref] = resource{contentType: ContentType(img), data: data}
	return Preview{Ref: ref}
}

// Open returns the bytes behind a live local preview.
func (r *Registry) Open(ref string) ([]byte, string, error) {
	if !strings.HasPrefix(ref, localScheme) {
		ref = localScheme + ref
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	res, ok := r.items[ref]
	if !ok {
		return nil, "", ErrPreviewNotFound
	}
	return res.data, res.contentType, nil
}

// Release frees a local preview. Remote previews are left alone.
func (r *Registry) Release(p Preview) {
	if !p.IsLocal() {
		return
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.items, p.Ref)
}

// Len reports the number of live local previews.
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.items)
}
