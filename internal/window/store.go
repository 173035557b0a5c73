package window

import (
	"sort"
	"sync"

	"github.com/Danish-Qaunain/Paralysis-Health-Tracker-IoT-Based-Detection-System/internal/models"

	"github.com/eapache/queue"
)

// DefaultCapacity 默认窗口长度
const DefaultCapacity = 30

// Store 每个病人一个固定容量的 FIFO 窗口
// 同一病人的写操作串行，读操作可并发
type Store struct {
	mu       sync.RWMutex
	capacity int // 创建后不变
	windows  map[string]*subjectWindow
}

type subjectWindow struct {
	mu sync.RWMutex
	q  *queue.Queue
}

// NewStore 创建窗口存储，capacity <= 0 时使用 DefaultCapacity
func NewStore(capacity int) *Store {
	if capacity <= 0 {
		capacity = DefaultCapacity
	}
	return &Store{
		capacity: capacity,
		windows:  make(map[string]*subjectWindow),
	}
}

// Capacity 返回窗口容量
func (s *Store) Capacity() int {
	return s.capacity
}

func (s *Store) window(patientID string, create bool) *subjectWindow {
	s.mu.RLock()
	w, ok := s.windows[patientID]
	s.mu.RUnlock()
	if ok || !create {
		return w
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if w, ok = s.windows[patientID]; ok {
		return w
	}
	w = &subjectWindow{q: queue.New()}
	s.windows[patientID] = w
	return w
}

// Append 追加一条读数并淘汰超出容量的最早读数，返回追加后的快照
func (s *Store) Append(patientID string, r models.VitalReading) []models.VitalReading {
	w := s.window(patientID, true)
	capacity := s.Capacity()

	w.mu.Lock()
	defer w.mu.Unlock()
	w.q.Add(r.Clone())
	evictLocked(w, capacity)
	return snapshotLocked(w)
}

// Seed 用给定序列（最早在前）替换窗口内容，只保留最后 capacity 条
func (s *Store) Seed(patientID string, readings []models.VitalReading) {
	w := s.window(patientID, true)
	capacity := s.Capacity()

	w.mu.Lock()
	defer w.mu.Unlock()
	w.q = queue.New()
	for _, r := range readings {
		w.q.Add(r.Clone())
	}
	evictLocked(w, capacity)
}

// Get 返回窗口快照（最早在前），病人不存在时返回 nil
func (s *Store) Get(patientID string) []models.VitalReading {
	w := s.window(patientID, false)
	if w == nil {
		return nil
	}
	w.mu.RLock()
	defer w.mu.RUnlock()
	return snapshotLocked(w)
}

// Latest 返回最新一条读数
func (s *Store) Latest(patientID string) (models.VitalReading, bool) {
	w := s.window(patientID, false)
	if w == nil {
		return models.VitalReading{}, false
	}
	w.mu.RLock()
	defer w.mu.RUnlock()
	if w.q.Length() == 0 {
		return models.VitalReading{}, false
	}
	return w.q.Get(-1).(models.VitalReading).Clone(), true
}

// EvictOldestIfOverCapacity 淘汰超出容量的最早读数，返回淘汰条数
func (s *Store) EvictOldestIfOverCapacity(patientID string) int {
	w := s.window(patientID, false)
	if w == nil {
		return 0
	}
	capacity := s.Capacity()
	w.mu.Lock()
	defer w.mu.Unlock()
	return evictLocked(w, capacity)
}

// Len 返回窗口长度
func (s *Store) Len(patientID string) int {
	w := s.window(patientID, false)
	if w == nil {
		return 0
	}
	w.mu.RLock()
	defer w.mu.RUnlock()
	return w.q.Length()
}

// Remove 释放病人窗口
func (s *Store) Remove(patientID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.windows, patientID)
}

// Subjects 返回当前持有窗口的病人（排序）
func (s *Store) Subjects() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	ids := make([]string, 0, len(s.windows))
	for id := range s.windows {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

func evictLocked(w *subjectWindow, capacity int) int {
	n := 0
	for w.q.Length() > capacity {
		w.q.Remove()
		n++
	}
	return n
}

func snapshotLocked(w *subjectWindow) []models.VitalReading {
	out := make([]models.VitalReading, 0, w.q.Length())
	for i := 0; i < w.q.Length(); i++ {
		out = append(out, w.q.Get(i).(models.VitalReading).Clone())
	}
	return out
}
