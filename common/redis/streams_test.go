package redis

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/go-redis/redis/v8"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setupRedis(t *testing.T) *redis.Client {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })
	return client
}

func TestStreams_PublishReadAck(t *testing.T) {
	ctx := context.Background()
	client := setupRedis(t)

	require.NoError(t, CreateConsumerGroup(ctx, client, "test:stream", "g1"))
	// 重复创建不报错
	require.NoError(t, CreateConsumerGroup(ctx, client, "test:stream", "g1"))

	_, err := PublishJSONToStream(ctx, client, "test:stream", map[string]int{"heart_rate": 72}, 0)
	require.NoError(t, err)

	msgs, err := ReadFromStream(ctx, client, "test:stream", "g1", "c1", 10, 10*time.Millisecond)
	require.NoError(t, err)
	require.Len(t, msgs, 1)

	data, ok := msgs[0].Data()
	require.True(t, ok)
	assert.JSONEq(t, `{"heart_rate":72}`, string(data))

	require.NoError(t, AckMessages(ctx, client, "test:stream", "g1", msgs[0].ID))
	pending, err := client.XPending(ctx, "test:stream", "g1").Result()
	require.NoError(t, err)
	assert.Equal(t, int64(0), pending.Count)
}

func TestStreamMessage_DataMissing(t *testing.T) {
	_, ok := StreamMessage{Values: map[string]interface{}{"init": "true"}}.Data()
	assert.False(t, ok)
}
