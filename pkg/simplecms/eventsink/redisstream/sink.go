// Package redisstream publishes service events to a Redis stream.
package redisstream

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"

	"github.com/tendant/simple-cms/pkg/simplecms"
)

// DefaultStream is the stream events are appended to
const DefaultStream = "simplecms:events"

// Event types written to the "type" field of a stream entry.
const (
	EventPageContentInserted = "page_content.inserted"
	EventContentPublished    = "content.published"
)

// Sink is a simplecms.EventSink writing one XADD entry per event. Each entry
// carries the event type, the JSON encoded entity and a unix timestamp.
type Sink struct {
	client redis.UniversalClient
	stream string
	maxLen int64
	now    func() time.Time
}

// Option configures a Sink
type Option func(*Sink)

// WithStream sets the stream name
func WithStream(stream string) Option {
	return func(s *Sink) { s.stream = stream }
}

// WithMaxLen caps the stream length approximately. Zero leaves it unbounded.
func WithMaxLen(n int64) Option {
	return func(s *Sink) { s.maxLen = n }
}

// New creates a stream sink
func New(client redis.UniversalClient, opts ...Option) *Sink {
	s := &Sink{
		client: client,
		stream: DefaultStream,
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

var _ simplecms.EventSink = (*Sink)(nil)

func (s *Sink) PageContentInserted(ctx context.Context, pageContent *simplecms.PageContent) error {
	_, err := s.publish(ctx, EventPageContentInserted, pageContent.ID.String(), pageContent)
	return err
}

func (s *Sink) ContentPublished(ctx context.Context, content *simplecms.Content) error {
	_, err := s.publish(ctx, EventContentPublished, content.ID.String(), content)
	return err
}

func (s *Sink) publish(ctx context.Context, eventType, entityID string, data interface{}) (string, error) {
	payload, err := json.Marshal(data)
	if err != nil {
		return "", fmt.Errorf("failed to encode %s event: %w", eventType, err)
	}

	args := &redis.XAddArgs{
		Stream: s.stream,
		Values: map[string]interface{}{
			"type":      eventType,
			"id":        entityID,
			"data":      string(payload),
			"timestamp": s.now().Unix(),
		},
	}
	if s.maxLen > 0 {
		args.MaxLen = s.maxLen
		args.Approx = true
	}

	id, err := s.client.XAdd(ctx, args).Result()
	if err != nil {
		return "", fmt.Errorf("failed to publish %s event: %w", eventType, err)
	}
	return id, nil
}
