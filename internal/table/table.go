// Package table drives the todo list page: it derives the view state from the
// list query and dispatches per-row actions to the binding layer. Rows are
// never edited locally; they change only through the refetch that follows a
// successful mutation.
package table

import (
	"context"
	"errors"
	"sync"

	"github.com/rs/zerolog"

	"github.com/todoflow-labs/web-client/internal/cache"
	"github.com/todoflow-labs/web-client/internal/dto"
	"github.com/todoflow-labs/web-client/internal/imagefile"
	"github.com/todoflow-labs/web-client/internal/notify"
	"github.com/todoflow-labs/web-client/internal/todoapi"
)

type State string

const (
	StateLoading   State = "loading"
	StateError     State = "error"
	StateEmpty     State = "empty"
	StatePopulated State = "populated"
)

var (
	ErrNotFound     = errors.New("todo not in the current list")
	ErrNotConfirmed = errors.New("delete was not confirmed")
	ErrBusy         = errors.New("operation already in progress for this row")
)

const (
	msgLoadFailed   = "Error loading todos. Please try again later."
	msgDeleted      = "Todo deleted successfully!"
	msgDeleteFailed = "Failed to delete todo. Please try again."
	msgNowPending   = "Task marked as pending!"
	msgNowCompleted = "Task completed!"
	msgToggleFailed = "Failed to toggle todo. Please try again."
	msgUploaded     = "Image uploaded successfully!"
	msgUploadFailed = "Failed to upload image. Please try again."
)

// API is the slice of the binding layer the table needs.
type API interface {
	SubscribeList() *cache.Query
	DeleteTodo(ctx context.Context, id int64) error
	ToggleTodo(ctx context.Context, id int64) (dto.Todo, error)
	UploadTodoImage(ctx context.Context, id int64, img dto.Image) (dto.Todo, error)
}

// Dialog is the part of the form controller rows open.
type Dialog interface {
	OpenCreate()
	OpenUpdate(todo dto.Todo)
}

type action string

const (
	actionDelete action = "delete"
	actionToggle action = "toggle"
	actionUpload action = "upload"
)

type busyKey struct {
	id     int64
	action action
}

type Row struct {
	Todo      dto.Todo
	Uploading bool
	Toggling  bool
	Deleting  bool
}

type View struct {
	State      State
	Rows       []Row
	Message    string
	Refreshing bool
}

type Controller struct {
	api      API
	list     *cache.Query
	dialog   Dialog
	notifier notify.Notifier
	logger   *zerolog.Logger

	mu   sync.Mutex
	busy map[busyKey]bool
}

func New(api API, dialog Dialog, notifier notify.Notifier, logger *zerolog.Logger) *Controller {
	l := logger.With().Str("component", "table").Logger()
	return &Controller{
		api:      api,
		list:     api.SubscribeList(),
		dialog:   dialog,
		notifier: notifier,
		logger:   &l,
		busy:     make(map[busyKey]bool),
	}
}

// Load issues the list query if it has not run yet, and fetches again when
// the last attempt failed. A failure shows up in View as the error state.
func (c *Controller) Load(ctx context.Context) error {
	load := c.list.Load
	if c.list.Snapshot().Status == cache.StatusError {
		load = c.list.Refetch
	}
	if err := load(ctx); err != nil {
		c.logger.Error().Err(err).Msg("failed to load todos")
		return err
	}
	return nil
}

// Reload refetches the list explicitly.
func (c *Controller) Reload(ctx context.Context) error {
	return c.list.Refetch(ctx)
}

func (c *Controller) View() View {
	snap := c.list.Snapshot()
	v := View{Refreshing: snap.Fetching}

	switch snap.Status {
	case cache.StatusIdle, cache.StatusLoading:
		v.State = StateLoading
		return v
	case cache.StatusError:
		v.State = StateError
		v.Message = msgLoadFailed
		return v
	}

	todos, _ := cache.Data[[]dto.Todo](snap)
	if len(todos) == 0 {
		v.State = StateEmpty
		return v
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	v.State = StatePopulated
	v.Rows = make([]Row, 0, len(todos))
	for _, td := range todos {
		v.Rows = append(v.Rows, Row{
			Todo:      td,
			Uploading: c.busy[busyKey{td.ID, actionUpload}],
			Toggling:  c.busy[busyKey{td.ID, actionToggle}],
			Deleting:  c.busy[busyKey{td.ID, actionDelete}],
		})
	}
	return v
}

// Create opens the dialog in create mode.
func (c *Controller) Create() {
	c.dialog.OpenCreate()
}

// Edit opens the dialog seeded with the row's todo.
func (c *Controller) Edit(id int64) error {
	td, ok := c.find(id)
	if !ok {
		return ErrNotFound
	}
	c.dialog.OpenUpdate(td)
	return nil
}

// Delete removes a todo once the user has confirmed.
func (c *Controller) Delete(ctx context.Context, id int64, confirmed bool) error {
	if !confirmed {
		return ErrNotConfirmed
	}
	release, err := c.acquire(id, actionDelete)
	if err != nil {
		return err
	}
	defer release()

	if err := c.api.DeleteTodo(ctx, id); err != nil {
		c.logger.Error().Err(err).Int64("todo_id", id).Msg("failed to delete todo")
		c.notifier.Notify(notify.Warning, todoapi.UserMessage(msgDeleteFailed, err))
		return err
	}
	c.notifier.Notify(notify.Success, msgDeleted)
	return nil
}

// Toggle flips a todo. The message predicts the flip from the row's state
// before the call; the backend's reply is not consulted.
func (c *Controller) Toggle(ctx context.Context, id int64) error {
	current, ok := c.find(id)
	if !ok {
		return ErrNotFound
	}
	release, err := c.acquire(id, actionToggle)
	if err != nil {
		return err
	}
	defer release()

	if _, err := c.api.ToggleTodo(ctx, id); err != nil {
		c.logger.Error().Err(err).Int64("todo_id", id).Msg("failed to toggle todo")
		c.notifier.Notify(notify.Warning, todoapi.UserMessage(msgToggleFailed, err))
		return err
	}
	if current.Completed {
		c.notifier.Notify(notify.Info, msgNowPending)
	} else {
		c.notifier.Notify(notify.Success, msgNowCompleted)
	}
	return nil
}

// UploadImage attaches img to a row. reset tells the caller to clear its
// file input; it is only true after a successful upload.
func (c *Controller) UploadImage(ctx context.Context, id int64, img dto.Image) (reset bool, err error) {
	if err := imagefile.Validate(img); err != nil {
		c.notifier.Notify(notify.Error, imagefile.Reason(err))
		return false, err
	}
	release, err := c.acquire(id, actionUpload)
	if err != nil {
		return false, err
	}
	defer release()

	if _, err := c.api.UploadTodoImage(ctx, id, img); err != nil {
		c.logger.Error().Err(err).Int64("todo_id", id).Msg("failed to upload image")
		c.notifier.Notify(notify.Error, todoapi.UserMessage(msgUploadFailed, err))
		return false, err
	}
	c.notifier.Notify(notify.Success, msgUploaded)
	return true, nil
}

func (c *Controller) find(id int64) (dto.Todo, bool) {
	todos, _ := cache.Data[[]dto.Todo](c.list.Snapshot())
	for _, td := range todos {
		if td.ID == id {
			return td, true
		}
	}
	return dto.Todo{}, false
}

// acquire marks one control of one row busy; other rows and other controls
// stay usable.
func (c *Controller) acquire(id int64, a action) (func(), error) {
	key := busyKey{id: id, action: a}
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.busy[key] {
		return nil, ErrBusy
	}
	c.busy[key] = true
	return func() {
		c.mu.Lock()
		defer c.mu.Unlock()
		delete(c.busy, key)
	}, nil
}
