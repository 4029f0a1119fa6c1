// Package dialog is the create/update form-state controller: fields, an
// optional image attachment with its local preview, and submission.
package dialog

import (
	"context"
	"errors"
	"strings"
	"sync"

	"github.com/rs/zerolog"

	"github.com/todoflow-labs/web-client/internal/dto"
	"github.com/todoflow-labs/web-client/internal/imagefile"
	"github.com/todoflow-labs/web-client/internal/notify"
	"github.com/todoflow-labs/web-client/internal/todoapi"
)

type Mode string

const (
	ModeCreate Mode = "create"
	ModeUpdate Mode = "update"
)

var (
	ErrClosed     = errors.New("dialog is closed")
	ErrBlankTitle = errors.New("title is blank")
	ErrBusy       = errors.New("dialog is already submitting")
)

const (
	msgBlankTitle = "Please enter a title"
	msgCreated    = "Todo created successfully!"
	msgUpdated    = "Todo updated successfully!"
	msgSaveFailed = "Failed to save todo. Please try again."
)

// API is the slice of the binding layer the dialog needs.
type API interface {
	CreateTodo(ctx context.Context, in dto.CreateTodo) (dto.Todo, error)
	UpdateTodo(ctx context.Context, id int64, in dto.UpdateTodo) (dto.Todo, error)
}

// State is what a renderer needs to draw the dialog.
type State struct {
	Open       bool
	Mode       Mode
	Target     *dto.Todo
	Title      string
	Completed  bool
	Preview    *imagefile.Preview
	HasFile    bool
	Submitting bool
}

type Controller struct {
	api      API
	previews *imagefile.Registry
	notifier notify.Notifier
	logger   *zerolog.Logger

	mu         sync.Mutex
	open       bool
	mode       Mode
	target     *dto.Todo
	title      string
	completed  bool
	file       *dto.Image
	preview    *imagefile.Preview
	submitting bool
	// session changes on every open/close so late results can tell whether
	// the form they started from is still on screen.
	session uint64
}

func New(api API, previews *imagefile.Registry, notifier notify.Notifier, logger *zerolog.Logger) *Controller {
	l := logger.With().Str("component", "dialog").Logger()
	return &Controller{
		api:      api,
		previews: previews,
		notifier: notifier,
		logger:   &l,
		mode:     ModeCreate,
	}
}

func (c *Controller) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()

	s := State{
		Open:       c.open,
		Mode:       c.mode,
		Title:      c.title,
		Completed:  c.completed,
		HasFile:    c.file != nil,
		Submitting: c.submitting,
	}
	if c.target != nil {
		t := *c.target
		s.Target = &t
	}
	if c.preview != nil {
		p := *c.preview
		s.Preview = &p
	}
	return s
}

// OpenCreate shows an empty form.
func (c *Controller) OpenCreate() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.resetLocked()
	c.open = true
	c.mode = ModeCreate
}

// OpenUpdate shows the form seeded from todo; its image, if any, becomes the
// (remote, not owned) preview.
func (c *Controller) OpenUpdate(todo dto.Todo) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.resetLocked()
	c.open = true
	c.mode = ModeUpdate
	c.target = &todo
	c.title = todo.Title
	c.completed = todo.Completed
	if todo.HasImage() {
		p := imagefile.RemotePreview(todo.ImageURL())
		c.preview = &p
	}
}

func (c *Controller) SetTitle(title string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.title = title
}

func (c *Controller) SetCompleted(completed bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.completed = completed
}

// SelectFile validates img and makes it the pending attachment. A rejected
// file leaves the previous attachment and preview untouched. A closed dialog
// takes no file and raises no toast.
func (c *Controller) SelectFile(img dto.Image) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.open {
		return ErrClosed
	}
	if err := imagefile.Validate(img); err != nil {
		c.notifier.Notify(notify.Error, imagefile.Reason(err))
		return err
	}
	p := c.previews.Create(img)
	c.releaseLocked()
	c.file = &img
	c.preview = &p
	return nil
}

// RemoveImage drops the pending file and the preview.
func (c *Controller) RemoveImage() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.releaseLocked()
	c.file = nil
	c.preview = nil
}

// Close discards the form.
func (c *Controller) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.resetLocked()
}

// Submit sends the form. A blank title is rejected locally. On failure the
// dialog stays open with its fields intact.
func (c *Controller) Submit(ctx context.Context) error {
	c.mu.Lock()
	if !c.open {
		c.mu.Unlock()
		return ErrClosed
	}
	if strings.TrimSpace(c.title) == "" {
		c.mu.Unlock()
		c.notifier.Notify(notify.Warning, msgBlankTitle)
		return ErrBlankTitle
	}
	if c.submitting {
		c.mu.Unlock()
		return ErrBusy
	}
	c.submitting = true
	mode, title, completed, file, session := c.mode, c.title, c.completed, c.file, c.session
	var targetID int64
	if c.target != nil {
		targetID = c.target.ID
	}
	c.mu.Unlock()

	var (
		err     error
		success string
	)
	switch mode {
	case ModeUpdate:
		_, err = c.api.UpdateTodo(ctx, targetID, dto.UpdateTodo{Title: &title, Completed: &completed, Image: file})
		success = msgUpdated
	default:
		_, err = c.api.CreateTodo(ctx, dto.CreateTodo{Title: title, Image: file})
		success = msgCreated
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.session == session {
		c.submitting = false
	}
	if err != nil {
		c.logger.Error().Err(err).Str("mode", string(mode)).Msg("failed to save todo")
		c.notifier.Notify(notify.Warning, todoapi.UserMessage(msgSaveFailed, err))
		return err
	}
	c.notifier.Notify(notify.Success, success)
	if c.session == session {
		c.resetLocked()
	}
	return nil
}

// resetLocked returns every field to its default and releases owned previews.
func (c *Controller) resetLocked() {
	c.releaseLocked()
	c.open = false
	c.mode = ModeCreate
	c.target = nil
	c.title = ""
	c.completed = false
	c.file = nil
	c.preview = nil
	c.submitting = false
	c.session++
}

func (c *Controller) releaseLocked() {
	if c.preview != nil {
		c.previews.Release(*c.preview)
	}
}
