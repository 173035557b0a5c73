package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/Danish-Qaunain/Paralysis-Health-Tracker-IoT-Based-Detection-System/internal/models"

	"github.com/lib/pq"
	"go.uber.org/zap"
)

// InsertHandler 新读数回调
type InsertHandler func(ctx context.Context, reading models.VitalReading) error

// NotifyListener 订阅 health_data 插入通知（LISTEN health_data_inserted）
type NotifyListener struct {
	listener *pq.Listener
	logger   *zap.Logger
}

// NewNotifyListener 创建监听器并开始 LISTEN
func NewNotifyListener(dsn string, logger *zap.Logger) (*NotifyListener, error) {
	listener := pq.NewListener(dsn, 1*time.Second, 30*time.Second, func(ev pq.ListenerEventType, err error) {
		switch ev {
		case pq.ListenerEventConnectionAttemptFailed, pq.ListenerEventDisconnected:
			logger.Warn("Health data listener connection problem", zap.Error(err))
		case pq.ListenerEventReconnected:
			logger.Info("Health data listener reconnected")
		}
	})
	if err := listener.Listen(NotifyChannel); err != nil {
		listener.Close()
		return nil, fmt.Errorf("failed to listen on %s: %w", NotifyChannel, err)
	}
	return &NotifyListener{listener: listener, logger: logger}, nil
}

// Listen 阻塞分发通知直到 ctx 取消；patientID 为空时接收全部病人
// 单条通知处理失败只记录日志
func (l *NotifyListener) Listen(ctx context.Context, patientID string, handler InsertHandler) error {
	l.logger.Info("Health data listener started",
		zap.String("channel", NotifyChannel),
		zap.String("patient_id", patientID),
	)

	for {
		select {
		case <-ctx.Done():
			l.logger.Info("Health data listener stopped")
			return nil
		case n := <-l.listener.Notify:
			if n == nil {
				// 重连后可能漏掉通知
				l.logger.Warn("Health data listener reconnected; notifications may have been missed")
				continue
			}
			reading, err := DecodeReading([]byte(n.Extra))
			if err != nil {
				l.logger.Error("Failed to decode health data notification", zap.Error(err))
				continue
			}
			if patientID != "" && reading.PatientID != patientID {
				continue
			}
			if err := handler(ctx, reading); err != nil {
				l.logger.Error("Failed to handle health data notification",
					zap.String("patient_id", reading.PatientID),
					zap.Error(err),
				)
			}
		case <-time.After(90 * time.Second):
			go func() {
				if err := l.listener.Ping(); err != nil {
					l.logger.Warn("Health data listener ping failed", zap.Error(err))
				}
			}()
		}
	}
}

// Close 关闭监听
func (l *NotifyListener) Close() error {
	return l.listener.Close()
}
