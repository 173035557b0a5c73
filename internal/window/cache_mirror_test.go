package window

import (
	"context"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/Danish-Qaunain/Paralysis-Health-Tracker-IoT-Based-Detection-System/internal/models"

	"github.com/alicebob/miniredis/v2"
	"github.com/go-redis/redis/v8"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

// memorySnapshots 内存快照存储（不处理 TTL）
type memorySnapshots struct {
	mu   sync.Mutex
	data map[string][]byte
}

func newMemorySnapshots() *memorySnapshots {
	return &memorySnapshots{data: make(map[string][]byte)}
}

func (f *memorySnapshots) Put(ctx context.Context, patientID string, data []byte, ttl time.Duration) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.data[patientID] = data
	return nil
}

func (f *memorySnapshots) Fetch(ctx context.Context, patientID string) ([]byte, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	v, ok := f.data[patientID]
	if !ok {
		return nil, ErrCacheMiss
	}
	return v, nil
}

func (f *memorySnapshots) Drop(ctx context.Context, patientID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.data, patientID)
	return nil
}

func (f *memorySnapshots) Patients(ctx context.Context) ([]string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	ids := make([]string, 0, len(f.data))
	for id := range f.data {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids, nil
}

func TestCacheMirror_SaveLoadDelete(t *testing.T) {
	ctx := context.Background()
	store := newMemorySnapshots()
	m := NewCacheMirror(store, time.Minute, zap.NewNop())

	readings := []models.VitalReading{newReading("R1", 72), newReading("R2", 125)}
	require.NoError(t, m.Save(ctx, "p1", models.TierWarning, readings))
	assert.Contains(t, store.data, "p1")

	snap, err := m.Load(ctx, "p1")
	require.NoError(t, err)
	assert.Equal(t, "p1", snap.PatientID)
	assert.Equal(t, models.TierWarning, snap.Tier)
	require.Len(t, snap.Window, 2)
	assert.Equal(t, 125.0, snap.Window[1].HeartRate)

	ids, err := m.Mirrored(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"p1"}, ids)

	require.NoError(t, m.Delete(ctx, "p1"))
	_, err = m.Load(ctx, "p1")
	assert.ErrorIs(t, err, ErrCacheMiss)
}

func TestRedisSnapshots_WithMiniredis(t *testing.T) {
	ctx := context.Background()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	defer client.Close()

	store := NewRedisSnapshots(client, "neurohealth:patient:")
	_, err := store.Fetch(ctx, "missing")
	assert.ErrorIs(t, err, ErrCacheMiss)

	m := NewCacheMirror(store, 30*time.Second, zap.NewNop())
	require.NoError(t, m.Save(ctx, "p9", models.TierCritical, []models.VitalReading{newReading("R1", 150)}))

	assert.Equal(t, "neurohealth:patient:p9:window", store.Key("p9"))
	ttl := mr.TTL("neurohealth:patient:p9:window")
	assert.Equal(t, 30*time.Second, ttl)
	ok, err := mr.SIsMember("neurohealth:patient:mirrored", "p9")
	require.NoError(t, err)
	assert.True(t, ok)

	snap, err := m.Load(ctx, "p9")
	require.NoError(t, err)
	assert.Equal(t, models.TierCritical, snap.Tier)

	require.NoError(t, m.Delete(ctx, "p9"))
	assert.False(t, mr.Exists("neurohealth:patient:p9:window"))
	ok, err = mr.SIsMember("neurohealth:patient:mirrored", "p9")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestRedisSnapshots_PatientsPrunesExpired(t *testing.T) {
	ctx := context.Background()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	defer client.Close()

	m := NewCacheMirror(NewRedisSnapshots(client, "nh:"), time.Minute, zap.NewNop())
	require.NoError(t, m.Save(ctx, "p2", models.TierNormal, []models.VitalReading{newReading("R1", 70)}))
	require.NoError(t, m.Save(ctx, "p1", models.TierNormal, []models.VitalReading{newReading("R2", 71)}))

	ids, err := m.Mirrored(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"p1", "p2"}, ids)

	// p2 的快照过期后，索引中的成员应被清掉
	mr.Del("nh:p2:window")
	ids, err = m.Mirrored(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"p1"}, ids)
	ok, err := mr.SIsMember("nh:mirrored", "p2")
	require.NoError(t, err)
	assert.False(t, ok)
}
