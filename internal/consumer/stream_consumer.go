package consumer

import (
	"context"
	"fmt"
	"time"

	commonredis "github.com/Danish-Qaunain/Paralysis-Health-Tracker-IoT-Based-Detection-System/common/redis"
	"github.com/Danish-Qaunain/Paralysis-Health-Tracker-IoT-Based-Detection-System/internal/repository"

	"github.com/go-redis/redis/v8"
	"go.uber.org/zap"
)

// StreamConfig Stream 消费配置
type StreamConfig struct {
	Stream        string
	ConsumerGroup string
	ConsumerName  string
	BatchSize     int64
	Block         time.Duration
}

// StreamConsumer 从 Redis Stream 读取已入库读数并推给实时监护
type StreamConsumer struct {
	config      StreamConfig
	redisClient *redis.Client
	pusher      Pusher
	logger      *zap.Logger
}

// NewStreamConsumer 创建 Streams 消费者
func NewStreamConsumer(cfg StreamConfig, redisClient *redis.Client, pusher Pusher, logger *zap.Logger) *StreamConsumer {
	if cfg.Stream == "" {
		cfg.Stream = repository.DefaultReadingsStream
	}
	if cfg.ConsumerGroup == "" {
		cfg.ConsumerGroup = "neurohealth-monitor"
	}
	if cfg.ConsumerName == "" {
		cfg.ConsumerName = "monitor-1"
	}
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = 10
	}
	if cfg.Block <= 0 {
		cfg.Block = time.Second
	}
	return &StreamConsumer{
		config:      cfg,
		redisClient: redisClient,
		pusher:      pusher,
		logger:      logger,
	}
}

// Start 启动消费者
func (c *StreamConsumer) Start(ctx context.Context) error {
	if err := commonredis.CreateConsumerGroup(ctx, c.redisClient, c.config.Stream, c.config.ConsumerGroup); err != nil {
		return fmt.Errorf("failed to create consumer group for %s: %w", c.config.Stream, err)
	}

	c.logger.Info("Stream consumer started",
		zap.String("consumer_group", c.config.ConsumerGroup),
		zap.String("consumer_name", c.config.ConsumerName),
		zap.String("stream", c.config.Stream),
	)

	backoffDuration := time.Second
	maxBackoff := 30 * time.Second

	for {
		select {
		case <-ctx.Done():
			c.logger.Info("Stream consumer stopped")
			return nil
		default:
			if err := c.consumeStream(ctx); err != nil {
				if ctx.Err() != nil {
					continue
				}
				c.logger.Error("Failed to consume stream",
					zap.Error(err),
					zap.Duration("backoff", backoffDuration),
				)

				select {
				case <-ctx.Done():
				case <-time.After(backoffDuration):
					backoffDuration *= 2
					if backoffDuration > maxBackoff {
						backoffDuration = maxBackoff
					}
				}
			} else {
				backoffDuration = time.Second
			}
		}
	}
}

// consumeStream 读取一批消息
func (c *StreamConsumer) consumeStream(ctx context.Context) error {
	messages, err := commonredis.ReadFromStream(
		ctx,
		c.redisClient,
		c.config.Stream,
		c.config.ConsumerGroup,
		c.config.ConsumerName,
		c.config.BatchSize,
		c.config.Block,
	)
	if err != nil {
		return fmt.Errorf("failed to read from stream: %w", err)
	}

	ids := make([]string, 0, len(messages))
	for _, msg := range messages {
		if err := c.processMessage(ctx, msg); err != nil {
			c.logger.Error("Failed to process message",
				zap.String("stream_id", msg.ID),
				zap.Error(err),
			)
		}
		// 坏消息同样确认，避免反复投递
		ids = append(ids, msg.ID)
	}

	if err := commonredis.AckMessages(ctx, c.redisClient, c.config.Stream, c.config.ConsumerGroup, ids...); err != nil {
		return fmt.Errorf("failed to ack messages: %w", err)
	}
	return nil
}

// processMessage 处理单条消息
func (c *StreamConsumer) processMessage(ctx context.Context, msg commonredis.StreamMessage) error {
	data, ok := msg.Data()
	if !ok {
		return fmt.Errorf("missing data field in message")
	}

	reading, err := repository.DecodeReading(data)
	if err != nil {
		return err
	}

	return c.pusher.Push(ctx, reading)
}
