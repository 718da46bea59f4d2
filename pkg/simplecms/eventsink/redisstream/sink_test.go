package redisstream_test

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/go-redis/redis/v8"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tendant/simple-cms/pkg/simplecms"
	"github.com/tendant/simple-cms/pkg/simplecms/eventsink/redisstream"
)

func setupSink(t *testing.T, opts ...redisstream.Option) (*redisstream.Sink, *redis.Client, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return redisstream.New(client, opts...), client, mr
}

func TestSink_PageContentInserted(t *testing.T) {
	sink, client, _ := setupSink(t)
	ctx := context.Background()

	parentID := uuid.New()
	pc := &simplecms.PageContent{
		ID:        uuid.New(),
		PageID:    uuid.New(),
		RegionID:  uuid.New(),
		ContentID: uuid.New(),
		ParentID:  &parentID,
		Order:     3,
		Version:   1,
		CreatedAt: time.Now().UTC(),
	}
	require.NoError(t, sink.PageContentInserted(ctx, pc))

	entries, err := client.XRange(ctx, redisstream.DefaultStream, "-", "+").Result()
	require.NoError(t, err)
	require.Len(t, entries, 1)

	values := entries[0].Values
	assert.Equal(t, redisstream.EventPageContentInserted, values["type"])
	assert.Equal(t, pc.ID.String(), values["id"])

	var decoded simplecms.PageContent
	require.NoError(t, json.Unmarshal([]byte(values["data"].(string)), &decoded))
	assert.Equal(t, pc.ID, decoded.ID)
	assert.Equal(t, 3, decoded.Order)
	require.NotNil(t, decoded.ParentID)
	assert.Equal(t, parentID, *decoded.ParentID)
}

func TestSink_ContentPublishedToCustomStream(t *testing.T) {
	sink, client, _ := setupSink(t, redisstream.WithStream("cms"), redisstream.WithMaxLen(100))
	ctx := context.Background()

	content := &simplecms.Content{ID: uuid.New(), Name: "Home", Status: simplecms.ContentStatusPublished}
	require.NoError(t, sink.ContentPublished(ctx, content))

	n, err := client.XLen(ctx, "cms").Result()
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)

	entries, err := client.XRange(ctx, "cms", "-", "+").Result()
	require.NoError(t, err)
	assert.Equal(t, redisstream.EventContentPublished, entries[0].Values["type"])
}

func TestSink_ConnectionFailure(t *testing.T) {
	sink, _, mr := setupSink(t)
	mr.Close()

	err := sink.PageContentInserted(context.Background(), &simplecms.PageContent{ID: uuid.New()})
	assert.Error(t, err)
}
