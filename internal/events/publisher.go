// Package events publishes an audit trail of successful todo mutations to
// NATS JetStream. It is write-only: nothing in the UI consumes these events.
package events

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/nats-io/nats.go"

	"github.com/todoflow-labs/web-client/internal/logging"
	"github.com/todoflow-labs/web-client/internal/todoapi"
)

const (
	StreamName    = "todo_events"
	SubjectPrefix = "todo.events."
)

type Event struct {
	ID     string     `json:"id"`
	Op     todoapi.Op `json:"op"`
	TodoID int64      `json:"todo_id,omitempty"`
	At     time.Time  `json:"at"`
}

type Publisher struct {
	js     nats.JetStreamContext
	logger *logging.Logger
}

// EnsureStream creates the events stream if it does not exist yet.
func EnsureStream(js nats.JetStreamContext) error {
	_, err := js.AddStream(&nats.StreamConfig{
		Name:     StreamName,
		Subjects: []string{SubjectPrefix + ">"},
	})
	if err != nil && !strings.Contains(err.Error(), "already in use") {
		return fmt.Errorf("add stream %s: %w", StreamName, err)
	}
	return nil
}

func NewPublisher(js nats.JetStreamContext, logger *logging.Logger) *Publisher {
	l := logger.With().Str("component", "events").Logger()
	return &Publisher{js: js, logger: &l}
}

// ObserveMutation publishes successful mutations; failures are not events.
func (p *Publisher) ObserveMutation(ctx context.Context, m todoapi.Mutation) {
	if m.Err != nil {
		return
	}
	if err := p.Publish(ctx, Event{Op: m.Op, TodoID: m.TodoID}); err != nil {
		p.logger.Error().Err(err).Str("op", string(m.Op)).Msg("failed to publish todo event")
	}
}

func (p *Publisher) Publish(ctx context.Context, ev Event) error {
	if ev.ID == "" {
		ev.ID = uuid.NewString()
	}
	if ev.At.IsZero() {
		ev.At = time.Now().UTC()
	}
	data, err := json.Marshal(ev)
	if err != nil {
		return err
	}
	if _, err := p.js.Publish(SubjectPrefix+string(ev.Op), data, nats.Context(ctx), nats.MsgId(ev.ID)); err != nil {
		return err
	}
	p.logger.Debug().Str("op", string(ev.Op)).Int64("todo_id", ev.TodoID).Msg("todo event published")
	return nil
}
