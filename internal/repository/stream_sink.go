package repository

import (
	"context"
	"fmt"

	commonredis "github.com/Danish-Qaunain/Paralysis-Health-Tracker-IoT-Based-Detection-System/common/redis"
	"github.com/Danish-Qaunain/Paralysis-Health-Tracker-IoT-Based-Detection-System/internal/models"

	"github.com/go-redis/redis/v8"
)

// DefaultReadingsStream 读数 Stream 名称
const DefaultReadingsStream = "neurohealth:readings:stream"

// StreamSink 把读数发布到 Redis Stream（供 monitor 服务实时消费）
type StreamSink struct {
	client *redis.Client
	stream string
	maxLen int64
}

// NewStreamSink 创建 Stream 写入器
func NewStreamSink(client *redis.Client, stream string, maxLen int64) *StreamSink {
	if stream == "" {
		stream = DefaultReadingsStream
	}
	return &StreamSink{client: client, stream: stream, maxLen: maxLen}
}

// InsertReading 发布一条读数
func (s *StreamSink) InsertReading(ctx context.Context, reading models.VitalReading) error {
	row, err := toRow(reading)
	if err != nil {
		return err
	}
	if _, err := commonredis.PublishJSONToStream(ctx, s.client, s.stream, row, s.maxLen); err != nil {
		return fmt.Errorf("failed to publish reading to stream: %w", err)
	}
	return nil
}
