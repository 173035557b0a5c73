package window

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/Danish-Qaunain/Paralysis-Health-Tracker-IoT-Based-Detection-System/internal/models"

	"github.com/go-redis/redis/v8"
	"go.uber.org/zap"
)

// ErrCacheMiss 快照不存在或已过期
var ErrCacheMiss = errors.New("window snapshot not found")

// Snapshot 镜像到缓存中的窗口
type Snapshot struct {
	PatientID string                `json:"patient_id"`
	Tier      models.SeverityTier   `json:"tier"`
	Window    []models.VitalReading `json:"window"`
	UpdatedAt int64                 `json:"updated_at"`
}

// SnapshotStore 按病人存放快照原文
type SnapshotStore interface {
	Put(ctx context.Context, patientID string, data []byte, ttl time.Duration) error
	Fetch(ctx context.Context, patientID string) ([]byte, error)
	Drop(ctx context.Context, patientID string) error
	// Patients 返回当前仍有快照的病人
	Patients(ctx context.Context) ([]string, error)
}

// RedisSnapshots Redis 快照存储
// 快照 key：{prefix}{patient_id}:window，索引集合：{prefix}mirrored
type RedisSnapshots struct {
	client *redis.Client
	prefix string
}

// NewRedisSnapshots 创建 Redis 快照存储
func NewRedisSnapshots(client *redis.Client, prefix string) *RedisSnapshots {
	return &RedisSnapshots{client: client, prefix: prefix}
}

// Key 返回病人的快照 key
func (r *RedisSnapshots) Key(patientID string) string {
	return r.prefix + patientID + ":window"
}

func (r *RedisSnapshots) indexKey() string {
	return r.prefix + "mirrored"
}

// Put 写快照并登记索引（同一事务）
func (r *RedisSnapshots) Put(ctx context.Context, patientID string, data []byte, ttl time.Duration) error {
	_, err := r.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Set(ctx, r.Key(patientID), data, ttl)
		pipe.SAdd(ctx, r.indexKey(), patientID)
		return nil
	})
	return err
}

func (r *RedisSnapshots) Fetch(ctx context.Context, patientID string) ([]byte, error) {
	data, err := r.client.Get(ctx, r.Key(patientID)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, ErrCacheMiss
	}
	return data, err
}

func (r *RedisSnapshots) Drop(ctx context.Context, patientID string) error {
	_, err := r.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Del(ctx, r.Key(patientID))
		pipe.SRem(ctx, r.indexKey(), patientID)
		return nil
	})
	return err
}

// Patients 读索引，顺手清理快照已过期的成员
func (r *RedisSnapshots) Patients(ctx context.Context) ([]string, error) {
	members, err := r.client.SMembers(ctx, r.indexKey()).Result()
	if err != nil {
		return nil, err
	}
	if len(members) == 0 {
		return nil, nil
	}

	pipe := r.client.Pipeline()
	exists := make([]*redis.IntCmd, len(members))
	for i, pid := range members {
		exists[i] = pipe.Exists(ctx, r.Key(pid))
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return nil, err
	}

	live := make([]string, 0, len(members))
	var stale []interface{}
	for i, pid := range members {
		if exists[i].Val() > 0 {
			live = append(live, pid)
		} else {
			stale = append(stale, pid)
		}
	}
	if len(stale) > 0 {
		if err := r.client.SRem(ctx, r.indexKey(), stale...).Err(); err != nil {
			return nil, err
		}
	}
	sort.Strings(live)
	return live, nil
}

// CacheMirror 把窗口写入 Redis，供其它进程（看板、告警）读取
type CacheMirror struct {
	store  SnapshotStore
	ttl    time.Duration
	logger *zap.Logger
}

// NewCacheMirror 创建窗口镜像
func NewCacheMirror(store SnapshotStore, ttl time.Duration, logger *zap.Logger) *CacheMirror {
	return &CacheMirror{
		store:  store,
		ttl:    ttl,
		logger: logger,
	}
}

// Save 写入窗口快照
func (m *CacheMirror) Save(ctx context.Context, patientID string, tier models.SeverityTier, readings []models.VitalReading) error {
	data, err := json.Marshal(Snapshot{
		PatientID: patientID,
		Tier:      tier,
		Window:    readings,
		UpdatedAt: time.Now().Unix(),
	})
	if err != nil {
		return fmt.Errorf("failed to marshal window snapshot: %w", err)
	}

	if err := m.store.Put(ctx, patientID, data, m.ttl); err != nil {
		return fmt.Errorf("failed to write window snapshot: %w", err)
	}

	m.logger.Debug("Window mirrored",
		zap.String("patient_id", patientID),
		zap.Int("length", len(readings)),
	)
	return nil
}

// Load 读取窗口快照，不存在时返回 ErrCacheMiss
func (m *CacheMirror) Load(ctx context.Context, patientID string) (*Snapshot, error) {
	data, err := m.store.Fetch(ctx, patientID)
	if err != nil {
		if errors.Is(err, ErrCacheMiss) {
			return nil, err
		}
		return nil, fmt.Errorf("failed to read window snapshot: %w", err)
	}
	var snap Snapshot
	if err := json.Unmarshal(data, &snap); err != nil {
		return nil, fmt.Errorf("failed to unmarshal window snapshot: %w", err)
	}
	return &snap, nil
}

// Delete 删除窗口快照
func (m *CacheMirror) Delete(ctx context.Context, patientID string) error {
	if err := m.store.Drop(ctx, patientID); err != nil {
		return fmt.Errorf("failed to delete window snapshot: %w", err)
	}
	return nil
}

// Mirrored 列出当前有快照的病人
func (m *CacheMirror) Mirrored(ctx context.Context) ([]string, error) {
	ids, err := m.store.Patients(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list mirrored patients: %w", err)
	}
	return ids, nil
}
