package scheduler

import (
	"sync"

	"github.com/Danish-Qaunain/Paralysis-Health-Tracker-IoT-Based-Detection-System/internal/metrics"
	"github.com/Danish-Qaunain/Paralysis-Health-Tracker-IoT-Based-Detection-System/internal/models"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// DefaultSubscriberBuffer 每个订阅的缓冲长度
const DefaultSubscriberBuffer = 16

// Subscription 一个订阅；C 在取消订阅或病人停止监测时关闭
type Subscription struct {
	ID        string
	PatientID string // 为空表示订阅全部病人
	C         <-chan models.StreamUpdate

	ch chan models.StreamUpdate
}

// Hub 按病人分发更新，一写多读，发送不阻塞
type Hub struct {
	mu     sync.RWMutex
	subs   map[string]map[*Subscription]struct{}
	all    map[*Subscription]struct{}
	buffer int
	onIdle func(patientID string)
	logger *zap.Logger
}

// NewHub 创建分发中心
func NewHub(buffer int, logger *zap.Logger) *Hub {
	if buffer <= 0 {
		buffer = DefaultSubscriberBuffer
	}
	return &Hub{
		subs:   make(map[string]map[*Subscription]struct{}),
		all:    make(map[*Subscription]struct{}),
		buffer: buffer,
		logger: logger,
	}
}

// OnIdle 设置回调：某病人最后一个订阅取消时异步调用
func (h *Hub) OnIdle(fn func(patientID string)) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.onIdle = fn
}

func (h *Hub) newSubscription(patientID string) *Subscription {
	ch := make(chan models.StreamUpdate, h.buffer)
	return &Subscription{
		ID:        uuid.New().String(),
		PatientID: patientID,
		C:         ch,
		ch:        ch,
	}
}

// Subscribe 订阅指定病人
func (h *Hub) Subscribe(patientID string) *Subscription {
	sub := h.newSubscription(patientID)

	h.mu.Lock()
	clients, ok := h.subs[patientID]
	if !ok {
		clients = make(map[*Subscription]struct{})
		h.subs[patientID] = clients
	}
	clients[sub] = struct{}{}
	h.mu.Unlock()

	metrics.Subscribers.Inc()
	h.logger.Debug("Subscriber added",
		zap.String("subscription_id", sub.ID),
		zap.String("patient_id", patientID),
	)
	return sub
}

// SubscribeAll 订阅全部病人（告警通知等）
func (h *Hub) SubscribeAll() *Subscription {
	sub := h.newSubscription("")

	h.mu.Lock()
	h.all[sub] = struct{}{}
	h.mu.Unlock()

	metrics.Subscribers.Inc()
	return sub
}

// Unsubscribe 取消订阅并关闭其通道，可重复调用
func (h *Hub) Unsubscribe(sub *Subscription) {
	h.mu.Lock()
	removed, idle := h.removeLocked(sub)
	onIdle := h.onIdle
	h.mu.Unlock()

	if !removed {
		return
	}
	metrics.Subscribers.Dec()
	h.logger.Debug("Subscriber removed",
		zap.String("subscription_id", sub.ID),
		zap.String("patient_id", sub.PatientID),
	)
	if idle && onIdle != nil {
		go onIdle(sub.PatientID)
	}
}

func (h *Hub) removeLocked(sub *Subscription) (removed, idle bool) {
	if sub.PatientID == "" {
		if _, ok := h.all[sub]; !ok {
			return false, false
		}
		delete(h.all, sub)
		close(sub.ch)
		return true, false
	}

	clients, ok := h.subs[sub.PatientID]
	if !ok {
		return false, false
	}
	if _, ok := clients[sub]; !ok {
		return false, false
	}
	delete(clients, sub)
	close(sub.ch)
	if len(clients) == 0 {
		delete(h.subs, sub.PatientID)
		return true, true
	}
	return true, false
}

// Publish 分发一条更新；订阅者缓冲区满时丢弃并记录
func (h *Hub) Publish(update models.StreamUpdate) {
	h.mu.RLock()
	defer h.mu.RUnlock()

	for sub := range h.subs[update.PatientID] {
		h.sendLocked(sub, update)
	}
	for sub := range h.all {
		h.sendLocked(sub, update)
	}
}

// PublishAll 只发给全量订阅（病人级订阅不接收）
func (h *Hub) PublishAll(update models.StreamUpdate) {
	h.mu.RLock()
	defer h.mu.RUnlock()

	for sub := range h.all {
		h.sendLocked(sub, update)
	}
}

func (h *Hub) sendLocked(sub *Subscription, update models.StreamUpdate) {
	select {
	case sub.ch <- update:
	default:
		metrics.UpdatesDropped.Inc()
		h.logger.Warn("Dropping update; subscriber buffer full",
			zap.String("subscription_id", sub.ID),
			zap.String("patient_id", update.PatientID),
			zap.Uint64("seq", update.Seq),
		)
	}
}

// CloseSubject 关闭某病人的全部订阅（不触发 OnIdle）
func (h *Hub) CloseSubject(patientID string) int {
	h.mu.Lock()
	clients := h.subs[patientID]
	delete(h.subs, patientID)
	for sub := range clients {
		close(sub.ch)
	}
	h.mu.Unlock()

	metrics.Subscribers.Sub(float64(len(clients)))
	return len(clients)
}

// Count 返回某病人的订阅数
func (h *Hub) Count(patientID string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.subs[patientID])
}

// Close 关闭全部订阅
func (h *Hub) Close() {
	h.mu.Lock()
	defer h.mu.Unlock()

	n := 0
	for id, clients := range h.subs {
		for sub := range clients {
			close(sub.ch)
			n++
		}
		delete(h.subs, id)
	}
	for sub := range h.all {
		close(sub.ch)
		delete(h.all, sub)
		n++
	}
	metrics.Subscribers.Sub(float64(n))
}
