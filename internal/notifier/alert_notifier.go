package notifier

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/Danish-Qaunain/Paralysis-Health-Tracker-IoT-Based-Detection-System/internal/metrics"
	"github.com/Danish-Qaunain/Paralysis-Health-Tracker-IoT-Based-Detection-System/internal/models"
	"github.com/Danish-Qaunain/Paralysis-Health-Tracker-IoT-Based-Detection-System/internal/scheduler"

	"go.uber.org/zap"
)

// DefaultTopicPrefix 告警主题前缀，完整主题为 neurohealth/{patient_id}/alerts
const DefaultTopicPrefix = "neurohealth"

// Publisher MQTT 发布接口（common/mqtt.Client）
type Publisher interface {
	Publish(topic string, qos byte, retained bool, payload []byte) error
}

// Feed 全量更新订阅（scheduler.Hub）
type Feed interface {
	SubscribeAll() *scheduler.Subscription
	Unsubscribe(sub *scheduler.Subscription)
}

// AlertMessage 告警通知负载
type AlertMessage struct {
	PatientID    string              `json:"patient_id"`
	Tier         models.SeverityTier `json:"tier"`
	PreviousTier models.SeverityTier `json:"previous_tier"`
	Alert        string              `json:"alert,omitempty"`
	ReadingID    string              `json:"reading_id"`
	RecordedAt   time.Time           `json:"recorded_at"`
	HeartRate    float64             `json:"heart_rate"`
	Temperature  float64             `json:"temperature"`
	FallDetected bool                `json:"fall_status"`
}

// AlertNotifier 病人严重级别变化时发布告警（边沿触发，同一级别不重复发送）
// 回到 normal 也发布一次，作为告警解除
type AlertNotifier struct {
	feed        Feed
	publisher   Publisher
	topicPrefix string
	qos         byte
	logger      *zap.Logger

	mu        sync.Mutex
	lastTiers map[string]models.SeverityTier
}

// NewAlertNotifier 创建告警通知器
func NewAlertNotifier(feed Feed, publisher Publisher, topicPrefix string, qos byte, logger *zap.Logger) *AlertNotifier {
	if topicPrefix == "" {
		topicPrefix = DefaultTopicPrefix
	}
	return &AlertNotifier{
		feed:        feed,
		publisher:   publisher,
		topicPrefix: topicPrefix,
		qos:         qos,
		logger:      logger,
		lastTiers:   make(map[string]models.SeverityTier),
	}
}

// Topic 病人告警主题
func (n *AlertNotifier) Topic(patientID string) string {
	return fmt.Sprintf("%s/%s/alerts", n.topicPrefix, patientID)
}

// Start 阻塞消费更新直到 ctx 取消或订阅被关闭
func (n *AlertNotifier) Start(ctx context.Context) error {
	sub := n.feed.SubscribeAll()
	defer n.feed.Unsubscribe(sub)

	n.logger.Info("Alert notifier started", zap.String("topic_prefix", n.topicPrefix))

	for {
		select {
		case <-ctx.Done():
			n.logger.Info("Alert notifier stopped")
			return nil
		case update, ok := <-sub.C:
			if !ok {
				return nil
			}
			if err := n.handle(update); err != nil {
				n.logger.Error("Failed to publish alert",
					zap.String("patient_id", update.PatientID),
					zap.Error(err),
				)
			}
		}
	}
}

// handle 处理一次更新；stale 更新不带读数，不改变告警状态
func (n *AlertNotifier) handle(update models.StreamUpdate) error {
	if update.Status == models.StatusEnded {
		n.Forget(update.PatientID)
		return nil
	}
	if update.Reading == nil {
		return nil
	}

	n.mu.Lock()
	prev, seen := n.lastTiers[update.PatientID]
	if seen && prev == update.Tier {
		n.mu.Unlock()
		return nil
	}
	n.lastTiers[update.PatientID] = update.Tier
	n.mu.Unlock()

	// 首次看到且为 normal：没有需要解除的告警
	if !seen && update.Tier == models.TierNormal {
		return nil
	}

	msg := AlertMessage{
		PatientID:    update.PatientID,
		Tier:         update.Tier,
		PreviousTier: prev,
		Alert:        update.Alert,
		ReadingID:    update.Reading.ID,
		RecordedAt:   update.Reading.Timestamp,
		HeartRate:    update.Reading.HeartRate,
		Temperature:  update.Reading.BodyTemperature,
		FallDetected: update.Reading.FallDetected,
	}
	payload, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("failed to marshal alert: %w", err)
	}

	if err := n.publisher.Publish(n.Topic(update.PatientID), n.qos, false, payload); err != nil {
		// 回滚状态，下一次更新重新发送
		n.mu.Lock()
		if seen {
			n.lastTiers[update.PatientID] = prev
		} else {
			delete(n.lastTiers, update.PatientID)
		}
		n.mu.Unlock()
		return fmt.Errorf("failed to publish alert: %w", err)
	}

	metrics.AlertsNotified.WithLabelValues(update.Tier.String()).Inc()
	n.logger.Info("Alert published",
		zap.String("patient_id", update.PatientID),
		zap.String("tier", update.Tier.String()),
		zap.String("previous_tier", prev.String()),
		zap.String("alert", update.Alert),
	)
	return nil
}

// Forget 清除病人的告警状态（收到 ended 更新时调用）
func (n *AlertNotifier) Forget(patientID string) {
	n.mu.Lock()
	defer n.mu.Unlock()
	delete(n.lastTiers, patientID)
}
