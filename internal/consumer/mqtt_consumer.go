package consumer

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/Danish-Qaunain/Paralysis-Health-Tracker-IoT-Based-Detection-System/common/mqtt"
	"github.com/Danish-Qaunain/Paralysis-Health-Tracker-IoT-Based-Detection-System/internal/ingest"
	"github.com/Danish-Qaunain/Paralysis-Health-Tracker-IoT-Based-Detection-System/internal/metrics"
	"github.com/Danish-Qaunain/Paralysis-Health-Tracker-IoT-Based-Detection-System/internal/models"

	"go.uber.org/zap"
)

// DefaultVitalsTopic 设备读数主题，格式 neurohealth/{patient_id}/vitals
const DefaultVitalsTopic = "neurohealth/+/vitals"

// Subscriber MQTT 订阅接口（common/mqtt.Client）
type Subscriber interface {
	Subscribe(topic string, qos byte, handler mqtt.MessageHandler) error
	Unsubscribe(topics ...string) error
}

// MQTTConsumer MQTT 设备读数消费者
type MQTTConsumer struct {
	client   Subscriber
	topic    string
	qos      byte
	ingester RawIngester
	pusher   Pusher // 可选：同进程内直接推送给监护
	logger   *zap.Logger
	ctx      context.Context
}

// NewMQTTConsumer 创建 MQTT 消费者
func NewMQTTConsumer(client Subscriber, topic string, qos byte, ingester RawIngester, pusher Pusher, logger *zap.Logger) *MQTTConsumer {
	if topic == "" {
		topic = DefaultVitalsTopic
	}
	return &MQTTConsumer{
		client:   client,
		topic:    topic,
		qos:      qos,
		ingester: ingester,
		pusher:   pusher,
		logger:   logger,
		ctx:      context.Background(),
	}
}

// Start 订阅并阻塞直到 ctx 取消
func (c *MQTTConsumer) Start(ctx context.Context) error {
	c.ctx = ctx
	if err := c.client.Subscribe(c.topic, c.qos, c.handleMessage); err != nil {
		return fmt.Errorf("failed to subscribe to vitals topic: %w", err)
	}

	c.logger.Info("MQTT consumer started", zap.String("topic", c.topic))

	<-ctx.Done()
	return nil
}

// Stop 取消订阅
func (c *MQTTConsumer) Stop() {
	if err := c.client.Unsubscribe(c.topic); err != nil {
		c.logger.Error("Failed to unsubscribe", zap.Error(err))
	}
	c.logger.Info("MQTT consumer stopped")
}

// handleMessage 处理一条设备消息
func (c *MQTTConsumer) handleMessage(topic string, payload []byte) error {
	// 主题格式: neurohealth/{patient_id}/vitals
	parts := strings.Split(topic, "/")
	if len(parts) < 3 || parts[1] == "" {
		metrics.MalformedLines.WithLabelValues("mqtt").Inc()
		return fmt.Errorf("invalid topic format: %s", topic)
	}
	patientID := parts[1]

	dec := json.NewDecoder(bytes.NewReader(payload))
	dec.UseNumber()
	var raw map[string]any
	if err := dec.Decode(&raw); err != nil {
		metrics.MalformedLines.WithLabelValues("mqtt").Inc()
		return fmt.Errorf("failed to unmarshal message: %w", err)
	}
	if _, ok := raw[ingest.FieldPatientID]; !ok {
		raw[ingest.FieldPatientID] = patientID
	}

	reading, err := c.ingester.Ingest(c.ctx, raw)
	if err != nil {
		var verr *models.ValidationError
		if errors.As(err, &verr) {
			metrics.MalformedLines.WithLabelValues("mqtt").Inc()
		}
		return err
	}

	if c.pusher != nil {
		if err := c.pusher.Push(c.ctx, *reading); err != nil {
			return fmt.Errorf("failed to push reading: %w", err)
		}
	}
	return nil
}
