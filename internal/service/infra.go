package service

import (
	"context"
	"database/sql"
	"fmt"

	commonconfig "github.com/Danish-Qaunain/Paralysis-Health-Tracker-IoT-Based-Detection-System/common/config"
	"github.com/Danish-Qaunain/Paralysis-Health-Tracker-IoT-Based-Detection-System/common/database"
	mqttcommon "github.com/Danish-Qaunain/Paralysis-Health-Tracker-IoT-Based-Detection-System/common/mqtt"
	rediscommon "github.com/Danish-Qaunain/Paralysis-Health-Tracker-IoT-Based-Detection-System/common/redis"
	"github.com/Danish-Qaunain/Paralysis-Health-Tracker-IoT-Based-Detection-System/internal/consumer"
	"github.com/Danish-Qaunain/Paralysis-Health-Tracker-IoT-Based-Detection-System/internal/models"
	"github.com/Danish-Qaunain/Paralysis-Health-Tracker-IoT-Based-Detection-System/internal/repository"

	"github.com/go-redis/redis/v8"
	"go.uber.org/zap"
)

// MQTTClient MQTT 连接（common/mqtt.Client）
type MQTTClient interface {
	Subscribe(topic string, qos byte, handler mqttcommon.MessageHandler) error
	Unsubscribe(topics ...string) error
	Publish(topic string, qos byte, retained bool, payload []byte) error
	Disconnect()
}

// Infra 外部连接；为 nil 的连接在需要时按配置创建
type Infra struct {
	DB       *sql.DB
	Redis    *redis.Client
	MQTT     MQTTClient
	Listener consumer.InsertListener // 为 nil 时用 DB 配置创建 NotifyListener
	Serial   consumer.PortOpener
}

// closers 需要在 Stop 时释放的连接（只包含本服务创建的）
type closers struct {
	db       *sql.DB
	redis    *redis.Client
	mqtt     MQTTClient
	listener *repository.NotifyListener
}

func (c *closers) close(logger *zap.Logger) {
	if c.listener != nil {
		if err := c.listener.Close(); err != nil {
			logger.Warn("Failed to close listener", zap.Error(err))
		}
	}
	if c.mqtt != nil {
		c.mqtt.Disconnect()
	}
	if c.redis != nil {
		if err := c.redis.Close(); err != nil {
			logger.Warn("Failed to close redis", zap.Error(err))
		}
	}
	if c.db != nil {
		if err := c.db.Close(); err != nil {
			logger.Warn("Failed to close database", zap.Error(err))
		}
	}
}

func (s *Infra) postgres(ctx context.Context, cfg *commonconfig.DatabaseConfig, own *closers) (*sql.DB, error) {
	if s.DB != nil {
		return s.DB, nil
	}
	db, err := database.NewPostgresDB(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}
	s.DB, own.db = db, db
	return db, nil
}

func (s *Infra) redisClient(ctx context.Context, cfg *commonconfig.RedisConfig, own *closers) (*redis.Client, error) {
	if s.Redis != nil {
		return s.Redis, nil
	}
	client, err := rediscommon.Connect(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to redis: %w", err)
	}
	s.Redis, own.redis = client, client
	return client, nil
}

func (s *Infra) mqttClient(cfg *commonconfig.MQTTConfig, logger *zap.Logger, own *closers) (MQTTClient, error) {
	if s.MQTT != nil {
		return s.MQTT, nil
	}
	client, err := mqttcommon.NewClient(cfg, logger)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to MQTT: %w", err)
	}
	s.MQTT, own.mqtt = client, client
	return client, nil
}

// discardSink 不持久化（MONITOR_SINK=none）
type discardSink struct{}

func (discardSink) InsertReading(ctx context.Context, r models.VitalReading) error { return nil }
