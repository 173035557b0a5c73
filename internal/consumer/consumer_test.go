package consumer

import (
	"context"
	"errors"
	"io"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/Danish-Qaunain/Paralysis-Health-Tracker-IoT-Based-Detection-System/common/config"
	"github.com/Danish-Qaunain/Paralysis-Health-Tracker-IoT-Based-Detection-System/common/mqtt"
	"github.com/Danish-Qaunain/Paralysis-Health-Tracker-IoT-Based-Detection-System/internal/evaluator"
	"github.com/Danish-Qaunain/Paralysis-Health-Tracker-IoT-Based-Detection-System/internal/ingest"
	"github.com/Danish-Qaunain/Paralysis-Health-Tracker-IoT-Based-Detection-System/internal/models"
	"github.com/Danish-Qaunain/Paralysis-Health-Tracker-IoT-Based-Detection-System/internal/repository"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type memorySink struct {
	mu      sync.Mutex
	err     error
	written []models.VitalReading
}

func (m *memorySink) InsertReading(ctx context.Context, r models.VitalReading) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return m.err
	}
	m.written = append(m.written, r)
	return nil
}

func (m *memorySink) all() []models.VitalReading {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]models.VitalReading(nil), m.written...)
}

type recordingPusher struct {
	mu     sync.Mutex
	err    error
	pushed []models.VitalReading
}

func (p *recordingPusher) Push(ctx context.Context, r models.VitalReading) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.err != nil {
		return p.err
	}
	p.pushed = append(p.pushed, r)
	return nil
}

func (p *recordingPusher) all() []models.VitalReading {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]models.VitalReading(nil), p.pushed...)
}

func newTestBridge(sink *memorySink, defaultPatient string) *ingest.Bridge {
	return ingest.NewBridge(
		ingest.Options{DefaultPatientID: defaultPatient},
		evaluator.NewClassifier(evaluator.DefaultThresholds),
		sink,
		zap.NewNop(),
	)
}

func TestReadLines(t *testing.T) {
	sink := &memorySink{}
	bridge := newTestBridge(sink, "bed-4")

	input := strings.Join([]string{
		"Sensor init OK",
		`{"heart_rate": 72, "temperature": 36.6, "muscle_activity": 3.2}`,
		"",
		`{"heart_rate": 72`,
		`{"temperature": 36.6}`,
		`{"heart_rate": 150, "temperature": 37.0, "flex_request": "food"}`,
	}, "\n")

	err := ReadLines(context.Background(), strings.NewReader(input), "serial", bridge, zap.NewNop())
	require.NoError(t, err)

	written := sink.all()
	require.Len(t, written, 2)
	assert.Equal(t, "bed-4", written[0].PatientID)
	assert.Equal(t, models.TierNormal, written[0].Tier)
	assert.Equal(t, models.TierCritical, written[1].Tier)
	assert.True(t, written[1].FlexRequests[models.FlexFood])
}

func TestReadLines_SinkFailureContinues(t *testing.T) {
	sink := &memorySink{err: errors.New("db down")}
	bridge := newTestBridge(sink, "bed-4")

	input := `{"heart_rate": 72, "temperature": 36.6}` + "\n" + `{"heart_rate": 73, "temperature": 36.6}` + "\n"
	err := ReadLines(context.Background(), strings.NewReader(input), "serial", bridge, zap.NewNop())
	assert.NoError(t, err)
}

func TestReadLines_OversizedLineSkipped(t *testing.T) {
	sink := &memorySink{}
	bridge := newTestBridge(sink, "bed-4")

	huge := `{"note": "` + strings.Repeat("x", 70*1024) + `"}`
	input := huge + "\n" +
		`{"heart_rate": 75, "temperature": 36.7}` + "\n" +
		strings.Repeat("y", maxLineSize+10)

	err := ReadLines(context.Background(), strings.NewReader(input), "serial", bridge, zap.NewNop())
	require.NoError(t, err)

	written := sink.all()
	require.Len(t, written, 1)
	assert.Equal(t, 75.0, written[0].HeartRate)
}

type fakePort struct {
	io.Reader
	mu     sync.Mutex
	closed bool
}

func (p *fakePort) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.closed = true
	return nil
}

func TestSerialConsumer_ReadsAndReopens(t *testing.T) {
	sink := &memorySink{}
	bridge := newTestBridge(sink, "bed-1")

	var (
		mu     sync.Mutex
		opened int
	)
	open := func(name string, baud int) (io.ReadCloser, error) {
		mu.Lock()
		defer mu.Unlock()
		opened++
		assert.Equal(t, "/dev/ttyUSB0", name)
		assert.Equal(t, 115200, baud)
		if opened > 1 {
			return nil, errors.New("device unplugged")
		}
		return &fakePort{Reader: strings.NewReader(`{"heart_rate": 88, "temperature": 36.9}` + "\n")}, nil
	}

	c := NewSerialConsumer(&config.SerialConfig{Port: "/dev/ttyUSB0", BaudRate: 115200}, bridge, open, zap.NewNop())

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- c.Start(ctx) }()

	require.Eventually(t, func() bool { return len(sink.all()) == 1 }, time.Second, 5*time.Millisecond)
	cancel()

	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("serial consumer did not stop")
	}
	assert.Equal(t, 88.0, sink.all()[0].HeartRate)
}

type fakeSubscriber struct {
	mu           sync.Mutex
	handlers     map[string]mqtt.MessageHandler
	unsubscribed []string
}

func (f *fakeSubscriber) Subscribe(topic string, qos byte, handler mqtt.MessageHandler) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.handlers[topic] = handler
	return nil
}

func (f *fakeSubscriber) Unsubscribe(topics ...string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.unsubscribed = append(f.unsubscribed, topics...)
	return nil
}

func (f *fakeSubscriber) handler(topic string) mqtt.MessageHandler {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.handlers[topic]
}

func TestMQTTConsumer(t *testing.T) {
	sub := &fakeSubscriber{handlers: make(map[string]mqtt.MessageHandler)}
	sink := &memorySink{}
	pusher := &recordingPusher{}
	c := NewMQTTConsumer(sub, "", 1, newTestBridge(sink, ""), pusher, zap.NewNop())

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- c.Start(ctx) }()

	require.Eventually(t, func() bool { return sub.handler(DefaultVitalsTopic) != nil }, time.Second, 5*time.Millisecond)
	h := sub.handler(DefaultVitalsTopic)

	t.Run("subject taken from topic", func(t *testing.T) {
		err := h("neurohealth/p-7/vitals", []byte(`{"heart_rate": 55, "temperature": 36.2, "fall_status": true}`))
		require.NoError(t, err)
		pushed := pusher.all()
		require.Len(t, pushed, 1)
		assert.Equal(t, "p-7", pushed[0].PatientID)
		assert.Equal(t, models.TierCritical, pushed[0].Tier)
		assert.Equal(t, models.FallHigh, pushed[0].FallSeverity)
	})

	t.Run("payload patient wins", func(t *testing.T) {
		err := h("neurohealth/p-7/vitals", []byte(`{"patient_id": "p-8", "heart_rate": 70, "temperature": 36.6}`))
		require.NoError(t, err)
		assert.Equal(t, "p-8", pusher.all()[1].PatientID)
	})

	t.Run("bad topic", func(t *testing.T) {
		assert.Error(t, h("vitals", []byte(`{}`)))
	})

	t.Run("malformed payload", func(t *testing.T) {
		assert.Error(t, h("neurohealth/p-7/vitals", []byte(`not json`)))
	})

	t.Run("validation failure", func(t *testing.T) {
		err := h("neurohealth/p-7/vitals", []byte(`{"heart_rate": "fast", "temperature": 36.6}`))
		var verr *models.ValidationError
		require.ErrorAs(t, err, &verr)
		assert.True(t, verr.Has("heart_rate"))
	})

	assert.Len(t, sink.all(), 2)

	cancel()
	require.NoError(t, <-done)
	c.Stop()
	assert.Equal(t, []string{DefaultVitalsTopic}, sub.unsubscribed)
}

type fakeListener struct {
	notifications []models.VitalReading
}

func (f *fakeListener) Listen(ctx context.Context, patientID string, handler repository.InsertHandler) error {
	for _, n := range f.notifications {
		if err := handler(ctx, n); err != nil {
			return err
		}
	}
	<-ctx.Done()
	return nil
}

func TestNotifyConsumer(t *testing.T) {
	listener := &fakeListener{notifications: []models.VitalReading{
		{ID: "a", PatientID: "p-1"},
		{ID: "b", PatientID: "p-2"},
	}}
	pusher := &recordingPusher{}
	c := NewNotifyConsumer(listener, pusher, zap.NewNop())

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- c.Start(ctx) }()

	require.Eventually(t, func() bool { return len(pusher.all()) == 2 }, time.Second, 5*time.Millisecond)
	cancel()
	assert.NoError(t, <-done)
}
