// Package notify carries transient user feedback (toasts) from controllers to
// whatever renders the page.
package notify

import (
	"sync"
	"time"

	"github.com/rs/zerolog"
)

type Level string

const (
	Success Level = "success"
	Info    Level = "info"
	Warning Level = "warning"
	Error   Level = "error"
)

type Notification struct {
	Level   Level
	Message string
	At      time.Time
}

type Notifier interface {
	Notify(level Level, msg string)
}

// Queue buffers notifications until the next render drains them.
type Queue struct {
	mu      sync.Mutex
	pending []Notification
	logger  *zerolog.Logger
	now     func() time.Time
}

func NewQueue(logger *zerolog.Logger) *Queue {
	if logger == nil {
		nop := zerolog.Nop()
		logger = &nop
	}
	l := logger.With().Str("component", "notify").Logger()
	return &Queue{logger: &l, now: time.Now}
}

func (q *Queue) Notify(level Level, msg string) {
	q.event(level).Str("toast", string(level)).Msg(msg)

	q.mu.Lock()
	defer q.mu.Unlock()
	q.pending = append(q.pending, Notification{Level: level, Message: msg, At: q.now()})
}

// Drain returns and clears the pending notifications, oldest first.
func (q *Queue) Drain() []Notification {
	q.mu.Lock()
	defer q.mu.Unlock()
	out := q.pending
	q.pending = nil
	return out
}

// Pending returns a copy of the pending notifications without clearing them.
func (q *Queue) Pending() []Notification {
	q.mu.Lock()
	defer q.mu.Unlock()
	return append([]Notification(nil), q.pending...)
}

func (q *Queue) event(level Level) *zerolog.Event {
	switch level {
	case Warning:
		return q.logger.Warn()
	case Error:
		return q.logger.Error()
	default:
		return q.logger.Info()
	}
}
