// Package todoapi binds the remote /todos collection: one method per remote
// operation, request shaping (JSON or multipart), envelope decoding, and
// invalidation of the "Todo" cache category after every successful mutation.
package todoapi

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/todoflow-labs/web-client/internal/cache"
	"github.com/todoflow-labs/web-client/internal/dto"
)

// TagTodo is the cache category every todo query lives under.
const TagTodo = "Todo"

const maxResponseBytes = 4 << 20

type Op string

const (
	OpList        Op = "list"
	OpGet         Op = "get"
	OpCreate      Op = "create"
	OpUpdate      Op = "update"
	OpDelete      Op = "delete"
	OpToggle      Op = "toggle"
	OpUploadImage Op = "upload_image"
)

// Mutation describes a finished write; Err is nil on success.
type Mutation struct {
	Op     Op
	TodoID int64
	Err    error
}

// Observer is told about every finished mutation.
type Observer interface {
	ObserveMutation(ctx context.Context, m Mutation)
}

type Client struct {
	baseURL   string
	http      *http.Client
	store     *cache.Store
	logger    *zerolog.Logger
	observers []Observer
}

type Option func(*Client)

func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.http = hc }
}

func WithLogger(logger *zerolog.Logger) Option {
	return func(c *Client) {
		l := logger.With().Str("component", "todoapi").Logger()
		c.logger = &l
	}
}

func WithObserver(o Observer) Option {
	return func(c *Client) {
		if o != nil {
			c.observers = append(c.observers, o)
		}
	}
}

func New(baseURL string, store *cache.Store, opts ...Option) (*Client, error) {
	baseURL = strings.TrimRight(strings.TrimSpace(baseURL), "/")
	if baseURL == "" {
		return nil, ErrNoBaseURL
	}
	if store == nil {
		return nil, ErrNilStore
	}
	nop := zerolog.Nop()
	c := &Client{
		baseURL: baseURL,
		http:    &http.Client{Timeout: 15 * time.Second},
		store:   store,
		logger:  &nop,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

// Store returns the cache the client invalidates.
func (c *Client) Store() *cache.Store {
	return c.store
}

func (c *Client) rootURL() string {
	return c.baseURL + "/"
}

func (c *Client) itemURL(id int64) string {
	return c.baseURL + "/" + strconv.FormatInt(id, 10)
}

type payload struct {
	body        io.Reader
	contentType string
}

func jsonPayload(v any) (payload, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return payload{}, err
	}
	return payload{body: bytes.NewReader(data), contentType: "application/json"}, nil
}

// call performs one request and unwraps the envelope into T.
func call[T any](ctx context.Context, c *Client, op Op, method, url string, p *payload) (T, error) {
	var zero T

	var body io.Reader
	if p != nil {
		body = p.body
	}
	req, err := http.NewRequestWithContext(ctx, method, url, body)
	if err != nil {
		return zero, fmt.Errorf("%s: build request: %w", op, err)
	}
	req.Header.Set("Accept", "application/json")
	if p != nil {
		req.Header.Set("Content-Type", p.contentType)
	}

	c.logger.Debug().Str("op", string(op)).Str("method", method).Str("url", url).Msg("sending request")
	resp, err := c.http.Do(req)
	if err != nil {
		return zero, fmt.Errorf("%s: %w", op, err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return zero, fmt.Errorf("%s: read response: %w", op, err)
	}

	var env dto.Envelope[T]
	var decodeErr error
	if len(bytes.TrimSpace(raw)) > 0 {
		decodeErr = json.Unmarshal(raw, &env)
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		apiErr := &Error{Op: op, Status: resp.StatusCode}
		if decodeErr == nil {
			apiErr.Message = env.Message
		}
		return zero, apiErr
	}
	if decodeErr != nil {
		return zero, fmt.Errorf("%s: %w: %v", op, ErrBadPayload, decodeErr)
	}
	if len(bytes.TrimSpace(raw)) == 0 {
		return zero, nil
	}
	if !env.Success {
		return zero, &Error{Op: op, Status: resp.StatusCode, Message: env.Message}
	}
	return env.Data, nil
}

// mutated runs the success or failure path shared by every mutation. The
// refetch outlives a cancelled caller so the cache never misses a write.
func (c *Client) mutated(ctx context.Context, op Op, id int64, err error) {
	if err != nil {
		c.logger.Error().Err(err).Str("op", string(op)).Int64("todo_id", id).Msg("mutation failed")
	} else {
		c.logger.Debug().Str("op", string(op)).Int64("todo_id", id).Msg("mutation succeeded")
		if invErr := c.store.Invalidate(context.WithoutCancel(ctx), cache.Category(TagTodo)); invErr != nil {
			c.logger.Warn().Err(invErr).Str("op", string(op)).Msg("refetch after mutation failed")
		}
	}
	for _, o := range c.observers {
		o.ObserveMutation(ctx, Mutation{Op: op, TodoID: id, Err: err})
	}
}

func validID(id int64) error {
	if id <= 0 {
		return fmt.Errorf("%w: %d", ErrInvalidID, id)
	}
	return nil
}

// IsNotFound reports whether err is a backend 404.
func IsNotFound(err error) bool {
	var apiErr *Error
	return errors.As(err, &apiErr) && apiErr.Status == http.StatusNotFound
}
