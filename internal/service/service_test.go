package service

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	mqttcommon "github.com/Danish-Qaunain/Paralysis-Health-Tracker-IoT-Based-Detection-System/common/mqtt"
	"github.com/Danish-Qaunain/Paralysis-Health-Tracker-IoT-Based-Detection-System/internal/config"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/alicebob/miniredis/v2"
	"github.com/go-redis/redis/v8"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func newTestConfig() *config.Config {
	cfg := &config.Config{}
	cfg.Monitor.TickInterval = time.Hour
	cfg.Monitor.WindowCapacity = 30
	cfg.Monitor.SubscriberBuffer = 16
	cfg.Monitor.Sink = config.SinkNone
	cfg.Monitor.Feed = "none"
	cfg.Monitor.Mirror.KeyPrefix = "neurohealth:patient:"
	cfg.Monitor.Mirror.TTL = time.Minute
	cfg.Stream.Name = "neurohealth:readings:stream"
	cfg.Stream.MaxLen = 100
	cfg.Stream.ConsumerGroup = "neurohealth-monitor"
	cfg.Stream.ConsumerName = "test"
	cfg.Alerts.ThresholdProfile = "default"
	cfg.Alerts.TopicPrefix = "neurohealth"
	cfg.Simulation.Sensor = "emg"
	cfg.Simulation.Seed = 1
	cfg.Simulation.WalkClamp = true
	cfg.Simulation.WalkMaxStep = 3
	cfg.Bridge.Transport = config.TransportSerial
	cfg.Bridge.Sink = config.SinkStream
	cfg.Serial.Port = "/dev/ttyTEST"
	cfg.Serial.BaudRate = 9600
	cfg.HTTP.Addr = "127.0.0.1:0"
	return cfg
}

func setupRedis(t *testing.T) (*miniredis.Miniredis, *redis.Client) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })
	return mr, client
}

func postReading(t *testing.T, h http.Handler, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodPost, "/api/v1/sensor-data", strings.NewReader(body))
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func TestMonitorService_StreamFeed(t *testing.T) {
	mr, client := setupRedis(t)

	cfg := newTestConfig()
	cfg.Monitor.Feed = "stream"
	cfg.Monitor.Mirror.Enabled = true

	svc, err := NewMonitorService(context.Background(), cfg, Infra{Redis: client}, zap.NewNop())
	require.NoError(t, err)
	defer svc.Stop()

	ctx, cancel := context.WithCancel(context.Background())
	errCh := make(chan error, 1)
	go func() { errCh <- svc.Start(ctx) }()

	rec := postReading(t, svc.Handler(), `{"patient_id": "p-1", "heart_rate": 72, "temperature": 36.8, "muscle_activity": 3}`)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	// 读数经 Redis Stream 回到调度器
	assert.Eventually(t, func() bool {
		return len(svc.Scheduler().Window("p-1")) == 1
	}, 5*time.Second, 20*time.Millisecond)

	mode, ok := svc.Scheduler().IsMonitoring("p-1")
	assert.True(t, ok)
	assert.Equal(t, "device", string(mode))

	assert.Eventually(t, func() bool {
		return mr.Exists("neurohealth:patient:p-1:window")
	}, 2*time.Second, 20*time.Millisecond)

	cancel()
	select {
	case err := <-errCh:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("monitor service did not stop")
	}
}

func TestMonitorService_PostgresSinkPushesIngested(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	mock.ExpectExec(`CREATE TABLE IF NOT EXISTS health_data`).WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectExec(`INSERT INTO health_data`).WillReturnResult(sqlmock.NewResult(0, 1))

	cfg := newTestConfig()
	cfg.Monitor.Sink = config.SinkPostgres

	svc, err := NewMonitorService(context.Background(), cfg, Infra{DB: db}, zap.NewNop())
	require.NoError(t, err)
	defer svc.Stop()

	rec := postReading(t, svc.Handler(), `{"patient_id": "p-2", "heart_rate": 125, "temperature": 37.0, "muscle_activity": 4}`)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	// 没有读数回路时直接推送给调度器
	assert.Eventually(t, func() bool {
		return len(svc.Scheduler().Window("p-2")) == 1
	}, 2*time.Second, 10*time.Millisecond)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestMonitorService_SchemaError(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	mock.ExpectExec(`CREATE TABLE IF NOT EXISTS health_data`).WillReturnError(errors.New("permission denied"))

	cfg := newTestConfig()
	cfg.Monitor.Sink = config.SinkPostgres

	_, err = NewMonitorService(context.Background(), cfg, Infra{DB: db}, zap.NewNop())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "permission denied")
}

func TestMonitorService_UnknownThresholdProfile(t *testing.T) {
	cfg := newTestConfig()
	cfg.Alerts.ThresholdProfile = "bogus"

	_, err := NewMonitorService(context.Background(), cfg, Infra{}, zap.NewNop())
	assert.Error(t, err)
}

type fakeMQTT struct {
	mu        sync.Mutex
	published map[string][]byte
	count     map[string]int
}

func (f *fakeMQTT) Subscribe(topic string, qos byte, handler mqttcommon.MessageHandler) error {
	return nil
}

func (f *fakeMQTT) Unsubscribe(topics ...string) error { return nil }

func (f *fakeMQTT) Publish(topic string, qos byte, retained bool, payload []byte) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.published == nil {
		f.published = make(map[string][]byte)
		f.count = make(map[string]int)
	}
	f.published[topic] = payload
	f.count[topic]++
	return nil
}

func (f *fakeMQTT) Disconnect() {}

func (f *fakeMQTT) get(topic string) []byte {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.published[topic]
}

func (f *fakeMQTT) publishedCount(topic string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.count[topic]
}

func TestMonitorService_NotifiesAlerts(t *testing.T) {
	cfg := newTestConfig()
	cfg.Alerts.Notify = true
	broker := &fakeMQTT{}

	svc, err := NewMonitorService(context.Background(), cfg, Infra{MQTT: broker}, zap.NewNop())
	require.NoError(t, err)
	defer svc.Stop()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() { _ = svc.Start(ctx) }()

	// 等待通知组件订阅
	time.Sleep(50 * time.Millisecond)

	rec := postReading(t, svc.Handler(), `{"patient_id": "p-3", "heart_rate": 150, "temperature": 37.0, "muscle_activity": 4}`)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	assert.Eventually(t, func() bool {
		return strings.Contains(string(broker.get("neurohealth/p-3/alerts")), `"tier":"critical"`)
	}, 2*time.Second, 10*time.Millisecond)
}

func TestMonitorService_RestartedSubjectAlertsAgain(t *testing.T) {
	cfg := newTestConfig()
	cfg.Alerts.Notify = true
	broker := &fakeMQTT{}

	svc, err := NewMonitorService(context.Background(), cfg, Infra{MQTT: broker}, zap.NewNop())
	require.NoError(t, err)
	defer svc.Stop()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() { _ = svc.Start(ctx) }()
	time.Sleep(50 * time.Millisecond)

	const topic = "neurohealth/p-4/alerts"
	critical := `{"patient_id": "p-4", "heart_rate": 150, "temperature": 37.0, "muscle_activity": 4}`

	rec := postReading(t, svc.Handler(), critical)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	assert.Eventually(t, func() bool { return broker.publishedCount(topic) == 1 }, 2*time.Second, 10*time.Millisecond)

	stop := httptest.NewRecorder()
	svc.Handler().ServeHTTP(stop, httptest.NewRequest(http.MethodDelete, "/api/v1/patients/p-4/monitor", nil))
	require.Equal(t, http.StatusOK, stop.Code, stop.Body.String())

	// 停止后重新开始，同样的 critical 读数需要再次告警
	rec = postReading(t, svc.Handler(), critical)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	assert.Eventually(t, func() bool { return broker.publishedCount(topic) == 2 }, 2*time.Second, 10*time.Millisecond)
}

type scriptedPort struct {
	io.Reader
}

func (scriptedPort) Close() error { return nil }

func TestBridgeService_SerialToStream(t *testing.T) {
	mr, client := setupRedis(t)

	cfg := newTestConfig()
	cfg.Bridge.PatientID = "p-9"

	var once sync.Once
	opener := func(name string, baud int) (io.ReadCloser, error) {
		var port io.ReadCloser
		once.Do(func() {
			port = scriptedPort{strings.NewReader(
				"booting...\n" +
					`{"heart_rate": 80, "temperature": 36.9, "muscle_activity": 2}` + "\n" +
					`{"heart_rate": "fast", "temperature": 36.9}` + "\n" +
					`{"heart_rate": 131, "temperature": 37.1, "muscle_activity": 5, "fall_status": true}` + "\n",
			)}
		})
		if port == nil {
			return nil, errors.New("device unplugged")
		}
		return port, nil
	}

	svc, err := NewBridgeService(context.Background(), cfg, Infra{Redis: client, Serial: opener}, zap.NewNop())
	require.NoError(t, err)
	defer svc.Stop()

	ctx, cancel := context.WithCancel(context.Background())
	errCh := make(chan error, 1)
	go func() { errCh <- svc.Start(ctx) }()

	assert.Eventually(t, func() bool {
		entries, err := client.XRange(context.Background(), cfg.Stream.Name, "-", "+").Result()
		return err == nil && len(entries) == 2
	}, 2*time.Second, 20*time.Millisecond)
	assert.True(t, mr.Exists(cfg.Stream.Name))

	cancel()
	select {
	case err := <-errCh:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("bridge service did not stop")
	}
}

func TestBridgeService_Health(t *testing.T) {
	_, client := setupRedis(t)

	cfg := newTestConfig()
	svc, err := NewBridgeService(context.Background(), cfg, Infra{Redis: client}, zap.NewNop())
	require.NoError(t, err)
	defer svc.Stop()

	rec := httptest.NewRecorder()
	svc.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"transport":"serial"`)

	rec = httptest.NewRecorder()
	svc.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestBridgeService_SerialRequiresPort(t *testing.T) {
	_, client := setupRedis(t)

	cfg := newTestConfig()
	cfg.Serial.Port = ""

	_, err := NewBridgeService(context.Background(), cfg, Infra{Redis: client}, zap.NewNop())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "SERIAL_PORT")
}
