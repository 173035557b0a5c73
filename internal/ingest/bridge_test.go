package ingest

import (
	"context"
	"encoding/json"
	"errors"
	"math"
	"sync"
	"testing"
	"time"

	"github.com/Danish-Qaunain/Paralysis-Health-Tracker-IoT-Based-Detection-System/internal/evaluator"
	"github.com/Danish-Qaunain/Paralysis-Health-Tracker-IoT-Based-Detection-System/internal/generator"
	"github.com/Danish-Qaunain/Paralysis-Health-Tracker-IoT-Based-Detection-System/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type recordingSink struct {
	mu      sync.Mutex
	err     error
	written []models.VitalReading
}

func (s *recordingSink) InsertReading(ctx context.Context, r models.VitalReading) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return s.err
	}
	s.written = append(s.written, r)
	return nil
}

func newTestBridge(opts Options, sink Sink) *Bridge {
	return NewBridge(opts, evaluator.NewClassifier(evaluator.DefaultThresholds), sink, zap.NewNop())
}

func TestIngest_MissingTemperature(t *testing.T) {
	sink := &recordingSink{}
	b := newTestBridge(Options{DefaultPatientID: "p1"}, sink)

	r, err := b.Ingest(context.Background(), map[string]any{"heart_rate": 72.0})
	assert.Nil(t, r)

	var verr *models.ValidationError
	require.True(t, errors.As(err, &verr))
	assert.True(t, verr.Has("temperature"))
	assert.Equal(t, []string{"temperature"}, verr.Fields)
	assert.Empty(t, sink.written)
}

func TestIngest_ReportsEveryInvalidField(t *testing.T) {
	b := newTestBridge(Options{RequireActivity: true}, &recordingSink{})

	_, err := b.Ingest(context.Background(), map[string]any{
		"heart_rate":  "fast",
		"temperature": math.NaN(),
		"fall_status": "maybe",
	})
	var verr *models.ValidationError
	require.True(t, errors.As(err, &verr))
	assert.Equal(t, []string{"fall_status", "heart_rate", "muscle_activity", "patient_id", "temperature"}, verr.Fields)
	assert.Equal(t, "must be a number", verr.Reasons["heart_rate"])
	assert.Equal(t, "must be a finite number", verr.Reasons["temperature"])
}

func TestIngest_ClassifiesAndWritesOnce(t *testing.T) {
	sink := &recordingSink{}
	b := newTestBridge(Options{}, sink)
	fixed := time.Date(2024, 3, 1, 8, 0, 0, 0, time.UTC)
	b.now = func() time.Time { return fixed }

	r, err := b.Ingest(context.Background(), map[string]any{
		"patient_id":       "p1",
		"heart_rate":       145,
		"body_temperature": 37.0,
		"muscle_activity":  4.5,
		"flex_request":     "water",
	})
	require.NoError(t, err)
	assert.Equal(t, models.TierCritical, r.Tier)
	assert.Equal(t, 37.0, r.BodyTemperature)
	assert.Equal(t, models.FallNone, r.FallSeverity)
	assert.True(t, r.FlexRequests[models.FlexWater])
	assert.Equal(t, fixed, r.Timestamp)
	assert.NotEmpty(t, r.ID)

	require.Len(t, sink.written, 1)
	assert.Equal(t, *r, sink.written[0])
}

func TestIngest_KeepsSuppliedSeverity(t *testing.T) {
	b := newTestBridge(Options{DefaultPatientID: "p1"}, &recordingSink{})

	r, err := b.Ingest(context.Background(), map[string]any{
		"heart_rate":   72,
		"temperature":  36.8,
		"alert_status": "warning",
	})
	require.NoError(t, err)
	assert.Equal(t, models.TierWarning, r.Tier)
	assert.Equal(t, "p1", r.PatientID)
}

func TestIngest_FallWithoutSeverityIsHigh(t *testing.T) {
	b := newTestBridge(Options{DefaultPatientID: "p1"}, &recordingSink{})

	r, err := b.Ingest(context.Background(), map[string]any{
		"heart_rate":  72,
		"temperature": 36.8,
		"fall_status": true,
	})
	require.NoError(t, err)
	assert.True(t, r.FallDetected)
	assert.Equal(t, models.FallHigh, r.FallSeverity)
	assert.Equal(t, models.TierCritical, r.Tier)
}

func TestIngest_SinkFailureIsTransportError(t *testing.T) {
	cause := errors.New("backend unavailable")
	b := newTestBridge(Options{DefaultPatientID: "p1"}, &recordingSink{err: cause})

	r, err := b.Ingest(context.Background(), map[string]any{"heart_rate": 72, "temperature": 36.8})
	assert.Nil(t, r)
	var terr *models.TransportError
	require.True(t, errors.As(err, &terr))
	assert.ErrorIs(t, err, cause)
}

func TestIngestLine(t *testing.T) {
	sink := &recordingSink{}
	b := newTestBridge(Options{DefaultPatientID: "bed-7"}, sink)

	r, err := b.IngestLine(context.Background(), []byte(`{"heart_rate": 88, "temperature": 36.9, "flex_request": "food", "fall_status": false}`))
	require.NoError(t, err)
	assert.Equal(t, "bed-7", r.PatientID)
	assert.Equal(t, 88.0, r.HeartRate)

	_, err = b.IngestLine(context.Background(), []byte(`{"heart_rate": 88,`))
	var verr *models.ValidationError
	require.True(t, errors.As(err, &verr))
	assert.True(t, verr.Has("payload"))
	assert.Len(t, sink.written, 1)
}

func TestParseFlex(t *testing.T) {
	f, reason := parseFlex("Food, restroom")
	assert.Empty(t, reason)
	assert.Equal(t, models.FlexRequests{"food": true, "restroom": true}, f)

	f, reason = parseFlex([]any{"water"})
	assert.Empty(t, reason)
	assert.Equal(t, models.FlexRequests{"water": true}, f)

	f, reason = parseFlex(map[string]any{"food": false, "water": true})
	assert.Empty(t, reason)
	assert.Equal(t, models.FlexRequests{"food": false, "water": true}, f)

	_, reason = parseFlex(map[string]any{"food": "yes"})
	assert.NotEmpty(t, reason)
	_, reason = parseFlex(3.0)
	assert.NotEmpty(t, reason)
}

func assertSameReading(t *testing.T, want, got models.VitalReading) {
	t.Helper()
	assert.True(t, want.Timestamp.Equal(got.Timestamp))
	got.Timestamp = want.Timestamp
	assert.Equal(t, want, got)
}

func TestRoundTrip_Direct(t *testing.T) {
	gen := generator.NewSeededGenerator(generator.DefaultOptions(), 21)
	classifier := evaluator.NewClassifier(evaluator.DefaultThresholds)
	b := newTestBridge(Options{RequireActivity: true}, &recordingSink{})

	for i := 0; i < 200; i++ {
		want := gen.Generate("p1")
		want.Tier = classifier.Classify(want)

		got, err := b.Ingest(context.Background(), Encode(want))
		require.NoError(t, err)
		assertSameReading(t, want, *got)
	}
}

func TestRoundTrip_ZeroFallSeverity(t *testing.T) {
	b := newTestBridge(Options{}, &recordingSink{})

	want := models.VitalReading{
		ID:              "r-zero",
		PatientID:       "p1",
		Timestamp:       time.Date(2024, 5, 1, 9, 30, 0, 0, time.UTC),
		HeartRate:       72,
		BodyTemperature: 36.8,
	}
	encoded := Encode(want)
	assert.NotContains(t, encoded, FieldFallSeverity)

	got, err := b.Ingest(context.Background(), encoded)
	require.NoError(t, err)

	want.FallSeverity = models.FallNone
	assertSameReading(t, want, *got)
}

func TestRoundTrip_ThroughJSON(t *testing.T) {
	opts := generator.DefaultOptions()
	opts.Sensor = generator.SensorECG
	opts.FallProbability = 0.5
	gen := generator.NewSeededGenerator(opts, 8)
	walker := generator.NewWalker(gen, generator.DefaultWalkOptions())
	classifier := evaluator.NewClassifier(evaluator.DefaultThresholds)
	b := newTestBridge(Options{RequireActivity: true}, &recordingSink{})

	series := []models.VitalReading{gen.Generate("p2")}
	for i := 0; i < 200; i++ {
		next, err := walker.Next(series)
		require.NoError(t, err)
		next.Tier = classifier.Classify(next)
		series = append(series, next)

		line, err := json.Marshal(Encode(next))
		require.NoError(t, err)
		got, err := b.IngestLine(context.Background(), line)
		require.NoError(t, err)
		assertSameReading(t, next, *got)
	}
}
