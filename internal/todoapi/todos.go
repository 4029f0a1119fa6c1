package todoapi

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"mime/multipart"
	"net/http"
	"net/textproto"
	"strconv"

	"github.com/todoflow-labs/web-client/internal/cache"
	"github.com/todoflow-labs/web-client/internal/dto"
	"github.com/todoflow-labs/web-client/internal/imagefile"
)

const listKey = "listTodos"

func itemKey(id int64) string {
	return "getTodoById/" + strconv.FormatInt(id, 10)
}

// ListTodos fetches the whole collection.
func (c *Client) ListTodos(ctx context.Context) ([]dto.Todo, error) {
	todos, err := call[[]dto.Todo](ctx, c, OpList, http.MethodGet, c.rootURL(), nil)
	if err != nil {
		return nil, err
	}
	if todos == nil {
		todos = []dto.Todo{}
	}
	return todos, nil
}

func (c *Client) GetTodo(ctx context.Context, id int64) (dto.Todo, error) {
	if err := validID(id); err != nil {
		return dto.Todo{}, err
	}
	return call[dto.Todo](ctx, c, OpGet, http.MethodGet, c.itemURL(id), nil)
}

// SubscribeList registers the collection query under the "Todo" category.
func (c *Client) SubscribeList() *cache.Query {
	return c.store.Subscribe(listKey, []cache.Tag{cache.Category(TagTodo)}, func(ctx context.Context) (any, error) {
		return c.ListTodos(ctx)
	})
}

// SubscribeTodo registers a single-item query tagged with its id.
func (c *Client) SubscribeTodo(id int64) *cache.Query {
	return c.store.Subscribe(itemKey(id), []cache.Tag{{Type: TagTodo, ID: id}}, func(ctx context.Context) (any, error) {
		return c.GetTodo(ctx, id)
	})
}

// CreateTodo posts a new todo. With an image the body is multipart
// (title, image); otherwise JSON {title}.
func (c *Client) CreateTodo(ctx context.Context, in dto.CreateTodo) (dto.Todo, error) {
	var (
		p   payload
		err error
	)
	if in.Image != nil {
		p, err = multipartPayload(map[string]string{"title": in.Title}, in.Image)
	} else {
		p, err = jsonPayload(in)
	}
	if err != nil {
		return dto.Todo{}, fmt.Errorf("%s: encode body: %w", OpCreate, err)
	}

	todo, err := call[dto.Todo](ctx, c, OpCreate, http.MethodPost, c.rootURL(), &p)
	c.mutated(ctx, OpCreate, todo.ID, err)
	return todo, err
}

// UpdateTodo patches the given fields. With an image the body is multipart
// and completed is sent as "true"/"false".
func (c *Client) UpdateTodo(ctx context.Context, id int64, in dto.UpdateTodo) (dto.Todo, error) {
	if err := validID(id); err != nil {
		return dto.Todo{}, err
	}

	var (
		p   payload
		err error
	)
	if in.Image != nil {
		fields := make(map[string]string, 2)
		if in.Title != nil {
			fields["title"] = *in.Title
		}
		if in.Completed != nil {
			fields["completed"] = strconv.FormatBool(*in.Completed)
		}
		p, err = multipartPayload(fields, in.Image)
	} else {
		p, err = jsonPayload(in)
	}
	if err != nil {
		return dto.Todo{}, fmt.Errorf("%s: encode body: %w", OpUpdate, err)
	}

	todo, err := call[dto.Todo](ctx, c, OpUpdate, http.MethodPatch, c.itemURL(id), &p)
	c.mutated(ctx, OpUpdate, id, err)
	return todo, err
}

func (c *Client) DeleteTodo(ctx context.Context, id int64) error {
	if err := validID(id); err != nil {
		return err
	}
	_, err := call[json.RawMessage](ctx, c, OpDelete, http.MethodDelete, c.itemURL(id), nil)
	c.mutated(ctx, OpDelete, id, err)
	return err
}

// ToggleTodo asks the backend to flip the completed flag. No body is sent;
// the backend decides the new value.
func (c *Client) ToggleTodo(ctx context.Context, id int64) (dto.Todo, error) {
	if err := validID(id); err != nil {
		return dto.Todo{}, err
	}
	todo, err := call[dto.Todo](ctx, c, OpToggle, http.MethodPatch, c.itemURL(id)+"/toggle", nil)
	c.mutated(ctx, OpToggle, id, err)
	return todo, err
}

// UploadTodoImage replaces the image of an existing todo.
func (c *Client) UploadTodoImage(ctx context.Context, id int64, img dto.Image) (dto.Todo, error) {
	if err := validID(id); err != nil {
		return dto.Todo{}, err
	}
	p, err := multipartPayload(nil, &img)
	if err != nil {
		return dto.Todo{}, fmt.Errorf("%s: encode body: %w", OpUploadImage, err)
	}
	todo, err := call[dto.Todo](ctx, c, OpUploadImage, http.MethodPatch, c.itemURL(id), &p)
	c.mutated(ctx, OpUploadImage, id, err)
	return todo, err
}

func multipartPayload(fields map[string]string, img *dto.Image) (payload, error) {
	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)

	// Stable field order keeps request bodies reproducible.
	for _, name := range []string{"title", "completed"} {
		v, ok := fields[name]
		if !ok {
			continue
		}
		if err := w.WriteField(name, v); err != nil {
			return payload{}, err
		}
	}

	if img != nil {
		name := img.Name
		if name == "" {
			name = "image"
		}
		h := make(textproto.MIMEHeader)
		h.Set("Content-Disposition", fmt.Sprintf(`form-data; name="image"; filename=%q`, name))
		h.Set("Content-Type", imagefile.ContentType(*img))
		part, err := w.CreatePart(h)
		if err != nil {
			return payload{}, err
		}
		if _, err := part.Write(img.Data); err != nil {
			return payload{}, err
		}
	}

	if err := w.Close(); err != nil {
		return payload{}, err
	}
	return payload{body: &buf, contentType: w.FormDataContentType()}, nil
}
