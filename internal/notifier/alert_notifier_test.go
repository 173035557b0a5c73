package notifier

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/Danish-Qaunain/Paralysis-Health-Tracker-IoT-Based-Detection-System/internal/models"
	"github.com/Danish-Qaunain/Paralysis-Health-Tracker-IoT-Based-Detection-System/internal/scheduler"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type published struct {
	topic   string
	payload []byte
}

type fakePublisher struct {
	mu   sync.Mutex
	err  error
	msgs []published
}

func (f *fakePublisher) Publish(topic string, qos byte, retained bool, payload []byte) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return f.err
	}
	f.msgs = append(f.msgs, published{topic: topic, payload: payload})
	return nil
}

func (f *fakePublisher) all() []published {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]published(nil), f.msgs...)
}

func update(patientID string, tier models.SeverityTier, alert string) models.StreamUpdate {
	return models.StreamUpdate{
		PatientID: patientID,
		Reading: &models.VitalReading{
			ID:              "r-" + tier.String(),
			PatientID:       patientID,
			Timestamp:       time.Date(2024, 3, 1, 8, 0, 0, 0, time.UTC),
			HeartRate:       130,
			BodyTemperature: 36.9,
			Tier:            tier,
		},
		Tier:   tier,
		Alert:  alert,
		Status: models.StatusLive,
	}
}

func TestAlertNotifier_EdgeTriggered(t *testing.T) {
	pub := &fakePublisher{}
	n := NewAlertNotifier(nil, pub, "", 1, zap.NewNop())

	require.NoError(t, n.handle(update("p-1", models.TierNormal, "")))
	assert.Empty(t, pub.all(), "first normal reading is not an alert")

	require.NoError(t, n.handle(update("p-1", models.TierWarning, "High heart rate")))
	require.NoError(t, n.handle(update("p-1", models.TierWarning, "High heart rate")))
	require.NoError(t, n.handle(models.StreamUpdate{PatientID: "p-1", Status: models.StatusStale}))
	require.NoError(t, n.handle(update("p-1", models.TierCritical, "Fall detected")))
	require.NoError(t, n.handle(update("p-1", models.TierNormal, "")))

	msgs := pub.all()
	require.Len(t, msgs, 3)
	assert.Equal(t, "neurohealth/p-1/alerts", msgs[0].topic)

	var first, last AlertMessage
	require.NoError(t, json.Unmarshal(msgs[0].payload, &first))
	require.NoError(t, json.Unmarshal(msgs[2].payload, &last))
	assert.Equal(t, models.TierWarning, first.Tier)
	assert.Equal(t, models.TierNormal, first.PreviousTier)
	assert.Equal(t, "High heart rate", first.Alert)
	assert.Equal(t, models.TierNormal, last.Tier)
	assert.Equal(t, models.TierCritical, last.PreviousTier)
}

func TestAlertNotifier_PublishFailureRetriesNextTick(t *testing.T) {
	pub := &fakePublisher{err: errors.New("broker down")}
	n := NewAlertNotifier(nil, pub, "ward", 0, zap.NewNop())

	assert.Error(t, n.handle(update("p-2", models.TierCritical, "Fall detected")))

	pub.mu.Lock()
	pub.err = nil
	pub.mu.Unlock()
	require.NoError(t, n.handle(update("p-2", models.TierCritical, "Fall detected")))
	require.Len(t, pub.all(), 1)
	assert.Equal(t, "ward/p-2/alerts", pub.all()[0].topic)
}

func TestAlertNotifier_Forget(t *testing.T) {
	pub := &fakePublisher{}
	n := NewAlertNotifier(nil, pub, "", 1, zap.NewNop())

	require.NoError(t, n.handle(update("p-4", models.TierWarning, "Low heart rate")))
	n.Forget("p-4")
	require.NoError(t, n.handle(update("p-4", models.TierWarning, "Low heart rate")))
	assert.Len(t, pub.all(), 2)
}

func TestAlertNotifier_StartConsumesHub(t *testing.T) {
	hub := scheduler.NewHub(4, zap.NewNop())
	pub := &fakePublisher{}
	n := NewAlertNotifier(hub, pub, "", 1, zap.NewNop())

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- n.Start(ctx) }()

	// 等待 SubscribeAll 生效
	require.Eventually(t, func() bool {
		hub.Publish(update("p-3", models.TierCritical, "Fall detected"))
		return len(pub.all()) > 0
	}, time.Second, 5*time.Millisecond)

	cancel()
	require.NoError(t, <-done)
	assert.Len(t, pub.all(), 1)
}

func TestAlertNotifier_EndedResetsState(t *testing.T) {
	pub := &fakePublisher{}
	n := NewAlertNotifier(nil, pub, "", 1, zap.NewNop())

	require.NoError(t, n.handle(update("p-1", models.TierCritical, "Fall detected")))
	require.NoError(t, n.handle(models.StreamUpdate{PatientID: "p-1", Status: models.StatusEnded}))
	require.NoError(t, n.handle(update("p-1", models.TierCritical, "Fall detected")))

	assert.Len(t, pub.all(), 2)
	n.mu.Lock()
	_, tracked := n.lastTiers["p-1"]
	n.mu.Unlock()
	assert.True(t, tracked)

	require.NoError(t, n.handle(models.StreamUpdate{PatientID: "p-1", Status: models.StatusEnded}))
	n.mu.Lock()
	assert.Empty(t, n.lastTiers)
	n.mu.Unlock()
}
