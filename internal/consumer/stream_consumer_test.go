package consumer

import (
	"context"
	"testing"
	"time"

	commonredis "github.com/Danish-Qaunain/Paralysis-Health-Tracker-IoT-Based-Detection-System/common/redis"
	"github.com/Danish-Qaunain/Paralysis-Health-Tracker-IoT-Based-Detection-System/internal/models"
	"github.com/Danish-Qaunain/Paralysis-Health-Tracker-IoT-Based-Detection-System/internal/repository"

	"github.com/alicebob/miniredis/v2"
	"github.com/go-redis/redis/v8"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestStreamConsumer_PushesAndAcks(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	defer client.Close()

	ctx := context.Background()
	pusher := &recordingPusher{}
	c := NewStreamConsumer(StreamConfig{Block: 10 * time.Millisecond}, client, pusher, zap.NewNop())
	require.NoError(t, commonredis.CreateConsumerGroup(ctx, client, repository.DefaultReadingsStream, c.config.ConsumerGroup))

	sink := repository.NewStreamSink(client, "", 0)
	reading := models.VitalReading{
		ID:              "r-1",
		PatientID:       "p-3",
		Timestamp:       time.Date(2024, 3, 1, 8, 0, 0, 0, time.UTC),
		HeartRate:       101,
		BodyTemperature: 36.8,
		FallSeverity:    models.FallNone,
		Tier:            models.TierNormal,
	}
	require.NoError(t, sink.InsertReading(ctx, reading))
	// 坏消息也要被确认
	require.NoError(t, client.XAdd(ctx, &redis.XAddArgs{
		Stream: repository.DefaultReadingsStream,
		Values: map[string]interface{}{"data": "{not json"},
	}).Err())

	require.NoError(t, c.consumeStream(ctx))

	pushed := pusher.all()
	require.Len(t, pushed, 1)
	assert.Equal(t, reading, pushed[0])

	pending, err := client.XPending(ctx, repository.DefaultReadingsStream, c.config.ConsumerGroup).Result()
	require.NoError(t, err)
	assert.Equal(t, int64(0), pending.Count)
}

func TestStreamConsumer_StartStops(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	defer client.Close()

	c := NewStreamConsumer(StreamConfig{Block: 10 * time.Millisecond}, client, &recordingPusher{}, zap.NewNop())

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- c.Start(ctx) }()

	time.Sleep(30 * time.Millisecond)
	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("stream consumer did not stop")
	}
}
