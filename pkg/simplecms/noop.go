package simplecms

import (
	"context"
	"fmt"

	"go.uber.org/zap"
)

// NoopEventSink is a no-operation implementation of EventSink
// Useful for production when you don't need event handling or for testing
type NoopEventSink struct{}

// NewNoopEventSink creates a new no-operation event sink
func NewNoopEventSink() EventSink {
	return &NoopEventSink{}
}

// PageContentInserted does nothing and returns nil
func (n *NoopEventSink) PageContentInserted(ctx context.Context, pageContent *PageContent) error {
	return nil
}

// ContentPublished does nothing and returns nil
func (n *NoopEventSink) ContentPublished(ctx context.Context, content *Content) error {
	return nil
}

// LoggingEventSink writes every event to a zap logger.
type LoggingEventSink struct {
	logger *zap.Logger
}

// NewLoggingEventSink creates an event sink that logs events at info level.
func NewLoggingEventSink(logger *zap.Logger) EventSink {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &LoggingEventSink{logger: logger}
}

func (l *LoggingEventSink) PageContentInserted(ctx context.Context, pageContent *PageContent) error {
	fields := []zap.Field{
		zap.String("page_content_id", pageContent.ID.String()),
		zap.String("page_id", pageContent.PageID.String()),
		zap.String("region_id", pageContent.RegionID.String()),
		zap.String("content_id", pageContent.ContentID.String()),
		zap.Int("order", pageContent.Order),
	}
	if pageContent.ParentID != nil {
		fields = append(fields, zap.String("parent_id", pageContent.ParentID.String()))
	}
	l.logger.Info("page content inserted", fields...)
	return nil
}

func (l *LoggingEventSink) ContentPublished(ctx context.Context, content *Content) error {
	l.logger.Info("content published",
		zap.String("content_id", content.ID.String()),
		zap.Int("version", content.Version),
		zap.String("published_by", content.PublishedByUser))
	return nil
}

// EventBus fans events out to several sinks. A failing or panicking sink does
// not prevent delivery to the others; the first error is returned.
type EventBus struct {
	sinks []EventSink
}

// NewEventBus creates an event bus over sinks. Nil sinks are skipped.
func NewEventBus(sinks ...EventSink) *EventBus {
	b := &EventBus{}
	for _, s := range sinks {
		if s != nil {
			b.sinks = append(b.sinks, s)
		}
	}
	return b
}

func (b *EventBus) PageContentInserted(ctx context.Context, pageContent *PageContent) error {
	return b.each(func(s EventSink) error { return s.PageContentInserted(ctx, pageContent) })
}

func (b *EventBus) ContentPublished(ctx context.Context, content *Content) error {
	return b.each(func(s EventSink) error { return s.ContentPublished(ctx, content) })
}

func (b *EventBus) each(fn func(EventSink) error) error {
	var first error
	for _, s := range b.sinks {
		if err := deliver(s, fn); err != nil && first == nil {
			first = err
		}
	}
	return first
}

func deliver(s EventSink, fn func(EventSink) error) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("event sink panic: %v", r)
		}
	}()
	return fn(s)
}
