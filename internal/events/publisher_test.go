package events_test

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/nats-io/nats-server/v2/server"
	"github.com/nats-io/nats.go"
	"github.com/stretchr/testify/assert"

	"github.com/todoflow-labs/web-client/internal/events"
	"github.com/todoflow-labs/web-client/internal/logging"
	"github.com/todoflow-labs/web-client/internal/todoapi"
)

func setupEmbeddedNATSServer(t *testing.T) (*server.Server, nats.JetStreamContext, *nats.Conn) {
	opts := &server.Options{
		JetStream: true,
		StoreDir:  t.TempDir(),
		Port:      -1,
		NoLog:     true,
		NoSigs:    true,
	}
	srv, err := server.NewServer(opts)
	assert.NoError(t, err)

	go srv.Start()
	if !srv.ReadyForConnections(10 * time.Second) {
		t.Fatal("NATS server not ready in time")
	}

	nc, err := nats.Connect(srv.ClientURL())
	assert.NoError(t, err)

	js, err := nc.JetStream()
	assert.NoError(t, err)

	assert.NoError(t, events.EnsureStream(js))

	return srv, js, nc
}

func TestObserveMutation_PublishesSuccess(t *testing.T) {
	srv, js, nc := setupEmbeddedNATSServer(t)
	defer srv.Shutdown()
	defer nc.Close()

	pub := events.NewPublisher(js, logging.New("debug"))
	pub.ObserveMutation(context.Background(), todoapi.Mutation{Op: todoapi.OpToggle, TodoID: 42})

	sub, err := js.PullSubscribe("todo.events.>", "test-durable")
	assert.NoError(t, err)
	msgs, err := sub.Fetch(1, nats.MaxWait(time.Second))
	assert.NoError(t, err)
	assert.Len(t, msgs, 1)

	var received events.Event
	err = json.Unmarshal(msgs[0].Data, &received)
	assert.NoError(t, err)
	assert.Equal(t, "todo.events.toggle", msgs[0].Subject)
	assert.Equal(t, todoapi.OpToggle, received.Op)
	assert.Equal(t, int64(42), received.TodoID)
	assert.NotEmpty(t, received.ID)
	assert.False(t, received.At.IsZero())
}

func TestObserveMutation_SkipsFailures(t *testing.T) {
	srv, js, nc := setupEmbeddedNATSServer(t)
	defer srv.Shutdown()
	defer nc.Close()

	pub := events.NewPublisher(js, logging.New("debug"))
	pub.ObserveMutation(context.Background(), todoapi.Mutation{Op: todoapi.OpDelete, TodoID: 1, Err: errors.New("boom")})

	info, err := js.StreamInfo(events.StreamName)
	assert.NoError(t, err)
	assert.Equal(t, uint64(0), info.State.Msgs)
}

func TestEnsureStream_Idempotent(t *testing.T) {
	srv, js, nc := setupEmbeddedNATSServer(t)
	defer srv.Shutdown()
	defer nc.Close()

	assert.NoError(t, events.EnsureStream(js))
}
