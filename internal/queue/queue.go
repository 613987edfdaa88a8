// Package queue delivers routed messages on Redis Streams, one stream per
// destination. Each entry carries the body and its typed attributes as
// separate fields so consumers can filter without decoding the body.
package queue

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/linnemanlabs/sift/internal/triage"
)

const (
	defaultConnectionTimeout = 2 * time.Second

	fieldBody       = "body"
	fieldAttrPrefix = "attr:"
	fieldTypePrefix = "type:"
)

// Config holds Redis connection settings.
type Config struct {
	Addr     string
	Password string `json:"-"`
	DB       int
	// MaxLen caps each stream; 0 leaves streams unbounded.
	MaxLen int64
}

// Message is one stream entry.
type Message struct {
	ID         string
	Body       string
	Attributes triage.Attributes
}

// Queue is a triage.Queue backed by Redis Streams.
type Queue struct {
	client *redis.Client
	maxLen int64
}

var _ triage.Queue = (*Queue)(nil)

// NewClient creates a Redis client and verifies connectivity.
func NewClient(ctx context.Context, cfg Config) (*redis.Client, error) {
	if cfg.Addr == "" {
		return nil, errors.New("redis address is required")
	}
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	pingCtx, cancel := context.WithTimeout(ctx, defaultConnectionTimeout)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}
	return client, nil
}

// New wraps an existing client.
func New(client *redis.Client, maxLen int64) *Queue {
	return &Queue{client: client, maxLen: maxLen}
}

// Send appends body and attrs to the destination stream.
func (q *Queue) Send(ctx context.Context, destination, body string, attrs triage.Attributes) error {
	if destination == "" {
		return errors.New("destination is required")
	}
	values := make(map[string]any, 1+2*len(attrs))
	values[fieldBody] = body
	for name, a := range attrs {
		values[fieldAttrPrefix+name] = a.Value
		values[fieldTypePrefix+name] = a.Type
	}

	args := &redis.XAddArgs{Stream: destination, Values: values}
	if q.maxLen > 0 {
		args.MaxLen = q.maxLen
	}
	if err := q.client.XAdd(ctx, args).Err(); err != nil {
		return fmt.Errorf("xadd %s: %w", destination, err)
	}
	return nil
}

// Peek returns up to n of the oldest entries without consuming them.
func (q *Queue) Peek(ctx context.Context, destination string, n int) ([]Message, error) {
	entries, err := q.client.XRangeN(ctx, destination, "-", "+", int64(n)).Result()
	if err != nil {
		return nil, fmt.Errorf("xrange %s: %w", destination, err)
	}
	msgs := make([]Message, 0, len(entries))
	for _, e := range entries {
		msgs = append(msgs, decode(e))
	}
	return msgs, nil
}

// Len returns the number of entries in the destination stream.
func (q *Queue) Len(ctx context.Context, destination string) (int64, error) {
	n, err := q.client.XLen(ctx, destination).Result()
	if err != nil {
		return 0, fmt.Errorf("xlen %s: %w", destination, err)
	}
	return n, nil
}

// Ping checks if Redis is reachable.
func (q *Queue) Ping(ctx context.Context) error {
	return q.client.Ping(ctx).Err()
}

// Close closes the underlying client.
func (q *Queue) Close() error {
	return q.client.Close()
}

func decode(e redis.XMessage) Message {
	m := Message{ID: e.ID, Attributes: triage.Attributes{}}
	for k, v := range e.Values {
		s := fmt.Sprint(v)
		switch {
		case k == fieldBody:
			m.Body = s
		case strings.HasPrefix(k, fieldAttrPrefix):
			name := strings.TrimPrefix(k, fieldAttrPrefix)
			a := m.Attributes[name]
			a.Value = s
			m.Attributes[name] = a
		case strings.HasPrefix(k, fieldTypePrefix):
			name := strings.TrimPrefix(k, fieldTypePrefix)
			a := m.Attributes[name]
			a.Type = s
			m.Attributes[name] = a
		}
	}
	return m
}
