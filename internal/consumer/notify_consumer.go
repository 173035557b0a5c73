package consumer

import (
	"context"

	"github.com/Danish-Qaunain/Paralysis-Health-Tracker-IoT-Based-Detection-System/internal/repository"

	"go.uber.org/zap"
)

// InsertListener 数据库插入通知（repository.NotifyListener）
type InsertListener interface {
	Listen(ctx context.Context, patientID string, handler repository.InsertHandler) error
}

// NotifyConsumer 把 health_data 插入通知推给实时监护
type NotifyConsumer struct {
	listener InsertListener
	pusher   Pusher
	logger   *zap.Logger
}

// NewNotifyConsumer 创建通知消费者
func NewNotifyConsumer(listener InsertListener, pusher Pusher, logger *zap.Logger) *NotifyConsumer {
	return &NotifyConsumer{listener: listener, pusher: pusher, logger: logger}
}

// Start 阻塞直到 ctx 取消
func (c *NotifyConsumer) Start(ctx context.Context) error {
	c.logger.Info("Notify consumer started")
	return c.listener.Listen(ctx, "", c.pusher.Push)
}
