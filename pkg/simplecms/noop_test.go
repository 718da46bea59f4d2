package simplecms_test

import (
	"context"
	"errors"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"

	"github.com/tendant/simple-cms/pkg/simplecms"
)

func TestNoopEventSink(t *testing.T) {
	sink := simplecms.NewNoopEventSink()
	assert.NoError(t, sink.PageContentInserted(context.Background(), &simplecms.PageContent{}))
	assert.NoError(t, sink.ContentPublished(context.Background(), &simplecms.Content{}))
}

func TestLoggingEventSink(t *testing.T) {
	core, logs := observer.New(zap.InfoLevel)
	sink := simplecms.NewLoggingEventSink(zap.New(core))

	parentID := uuid.New()
	pc := &simplecms.PageContent{ID: uuid.New(), PageID: uuid.New(), ParentID: &parentID, Order: 2}
	require.NoError(t, sink.PageContentInserted(context.Background(), pc))
	require.NoError(t, sink.ContentPublished(context.Background(), &simplecms.Content{ID: uuid.New(), Version: 3}))

	entries := logs.All()
	require.Len(t, entries, 2)
	assert.Equal(t, "page content inserted", entries[0].Message)
	fields := entries[0].ContextMap()
	assert.Equal(t, pc.ID.String(), fields["page_content_id"])
	assert.Equal(t, parentID.String(), fields["parent_id"])
	assert.Equal(t, int64(2), fields["order"])
	assert.Equal(t, "content published", entries[1].Message)
}

func TestEventBus(t *testing.T) {
	ctx := context.Background()
	pc := &simplecms.PageContent{ID: uuid.New()}

	t.Run("FansOut", func(t *testing.T) {
		a, b := &recordingSink{}, &recordingSink{}
		bus := simplecms.NewEventBus(a, nil, b)

		require.NoError(t, bus.PageContentInserted(ctx, pc))
		assert.Equal(t, 1, a.insertedCount())
		assert.Equal(t, 1, b.insertedCount())
	})

	t.Run("FailureDoesNotStopDelivery", func(t *testing.T) {
		failing := &recordingSink{err: errors.New("boom")}
		panicking := &recordingSink{panics: true}
		healthy := &recordingSink{}
		bus := simplecms.NewEventBus(failing, panicking, healthy)

		err := bus.ContentPublished(ctx, &simplecms.Content{ID: uuid.New()})
		require.Error(t, err)
		assert.Contains(t, err.Error(), "boom")
		assert.Len(t, healthy.published, 1)

		err = simplecms.NewEventBus(panicking, healthy).PageContentInserted(ctx, pc)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "panic")
		assert.Equal(t, 1, healthy.insertedCount())
	})
}
