package scheduler

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/Danish-Qaunain/Paralysis-Health-Tracker-IoT-Based-Detection-System/internal/evaluator"
	"github.com/Danish-Qaunain/Paralysis-Health-Tracker-IoT-Based-Detection-System/internal/generator"
	"github.com/Danish-Qaunain/Paralysis-Health-Tracker-IoT-Based-Detection-System/internal/metrics"
	"github.com/Danish-Qaunain/Paralysis-Health-Tracker-IoT-Based-Detection-System/internal/models"
	"github.com/Danish-Qaunain/Paralysis-Health-Tracker-IoT-Based-Detection-System/internal/window"

	"go.uber.org/zap"
)

// Mode 病人数据来源
type Mode string

const (
	ModeSimulated Mode = "simulated" // 定时生成模拟数据
	ModeDevice    Mode = "device"    // 由设备推送
)

// ParseMode 解析数据来源
func ParseMode(s string) (Mode, error) {
	switch Mode(s) {
	case ModeSimulated, "":
		return ModeSimulated, nil
	case ModeDevice:
		return ModeDevice, nil
	default:
		return "", fmt.Errorf("unknown monitoring mode %q", s)
	}
}

var (
	// ErrClosed 调度器已关闭
	ErrClosed = errors.New("scheduler closed")
	// ErrSubjectStopped 推送时病人已停止监测
	ErrSubjectStopped = errors.New("subject monitoring stopped")
)

// Sink 读数存储（模拟数据可选持久化）
type Sink interface {
	InsertReading(ctx context.Context, r models.VitalReading) error
}

// Source 历史读数查询，按时间倒序返回最近 n 条
type Source interface {
	RecentReadings(ctx context.Context, patientID string, n int) ([]models.VitalReading, error)
}

// Mirror 窗口镜像（Redis）
type Mirror interface {
	Save(ctx context.Context, patientID string, tier models.SeverityTier, readings []models.VitalReading) error
	Delete(ctx context.Context, patientID string) error
}

// Options 调度配置
type Options struct {
	TickInterval     time.Duration // 模拟数据周期，默认 3s
	StaleAfter       time.Duration // 设备模式下超过该时长无数据则推送 stale，0 表示不检测
	PersistSimulated bool          // 模拟数据是否写入 Sink
	StopWhenIdle     bool          // 最后一个订阅取消后停止监测
	PushBuffer       int
}

// Deps 调度依赖，Sink/Source/Mirror 可为 nil
type Deps struct {
	Store      *window.Store
	Generator  *generator.Generator
	Walker     *generator.Walker
	Classifier *evaluator.Classifier
	Hub        *Hub
	Sink       Sink
	Source     Source
	Mirror     Mirror
}

// SubjectInfo 正在监测的病人
type SubjectInfo struct {
	PatientID string    `json:"patient_id"`
	Mode      Mode      `json:"mode"`
	Since     time.Time `json:"since"`
	WindowLen int       `json:"window_len"`
}

type runner struct {
	patientID string
	mode      Mode
	since     time.Time
	ctx       context.Context
	cancel    context.CancelFunc
	done      chan struct{}
	push      chan models.VitalReading
	seq       uint64
}

// Scheduler 每个病人一个 goroutine，负责该病人窗口的全部写入
type Scheduler struct {
	opts   Options
	deps   Deps
	logger *zap.Logger

	mu       sync.Mutex
	runners  map[string]*runner
	stopping map[string]*runner // 已移出 runners、尚未清理完的 goroutine
	closed   bool
}

// NewScheduler 创建调度器
func NewScheduler(opts Options, deps Deps, logger *zap.Logger) *Scheduler {
	if opts.TickInterval <= 0 {
		opts.TickInterval = 3 * time.Second
	}
	if opts.PushBuffer <= 0 {
		opts.PushBuffer = 32
	}
	s := &Scheduler{
		opts:    opts,
		deps:    deps,
		logger:  logger,
		runners:  make(map[string]*runner),
		stopping: make(map[string]*runner),
	}
	if opts.StopWhenIdle {
		deps.Hub.OnIdle(func(patientID string) {
			if s.stopIfIdle(patientID) {
				s.logger.Info("Stopped idle subject", zap.String("patient_id", patientID))
			}
		})
	}
	return s
}

// Hub 返回订阅分发中心
func (s *Scheduler) Hub() *Hub {
	return s.deps.Hub
}

// Start 开始监测病人；同模式重复调用无副作用，切换模式会替换原 goroutine（窗口保留）
func (s *Scheduler) Start(patientID string, mode Mode) error {
	if patientID == "" {
		return errors.New("patient id is required")
	}

	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return ErrClosed
	}
	prev := s.runners[patientID]
	if prev != nil && prev.mode == mode {
		s.mu.Unlock()
		return nil
	}
	// 新 goroutine 等上一个退出后再开始，保证同一病人只有一个写者
	wait := prev
	if wait == nil {
		wait = s.stopping[patientID]
	}

	ctx, cancel := context.WithCancel(context.Background())
	r := &runner{
		patientID: patientID,
		mode:      mode,
		since:     time.Now().UTC(),
		ctx:       ctx,
		cancel:    cancel,
		done:      make(chan struct{}),
		push:      make(chan models.VitalReading, s.opts.PushBuffer),
	}
	if prev != nil {
		prev.cancel()
		metrics.ActiveSubjects.WithLabelValues(string(prev.mode)).Dec()
	}
	s.runners[patientID] = r
	s.mu.Unlock()

	metrics.ActiveSubjects.WithLabelValues(string(mode)).Inc()
	s.logger.Info("Monitoring started",
		zap.String("patient_id", patientID),
		zap.String("mode", string(mode)),
	)

	go s.run(r, wait)
	return nil
}

// Stop 停止监测：取消 goroutine 并等待其退出，释放窗口，关闭该病人的订阅
// 返回 false 表示该病人未在监测
func (s *Scheduler) Stop(patientID string) bool {
	s.mu.Lock()
	r := s.runners[patientID]
	if r != nil {
		delete(s.runners, patientID)
		s.stopping[patientID] = r
	}
	s.mu.Unlock()

	if r == nil {
		return false
	}
	s.stopRunner(r, true)
	s.logger.Info("Monitoring stopped", zap.String("patient_id", patientID))
	return true
}

// stopIfIdle 最后一个订阅取消后调用；检查订阅数和移除 runner 在同一把锁内完成，
// 期间重新订阅的客户端会让本次停止放弃
func (s *Scheduler) stopIfIdle(patientID string) bool {
	s.mu.Lock()
	r := s.runners[patientID]
	if r == nil || s.deps.Hub.Count(patientID) > 0 {
		s.mu.Unlock()
		return false
	}
	delete(s.runners, patientID)
	s.stopping[patientID] = r
	s.mu.Unlock()

	s.stopRunner(r, false)
	return true
}

// stopRunner 等待 goroutine 退出后清理；期间已有新 runner 接手时保留窗口和订阅
func (s *Scheduler) stopRunner(r *runner, closeSubscribers bool) {
	r.cancel()
	<-r.done

	s.mu.Lock()
	if s.stopping[r.patientID] == r {
		delete(s.stopping, r.patientID)
	}
	replaced := s.runners[r.patientID] != nil
	if !replaced {
		s.deps.Store.Remove(r.patientID)
		if closeSubscribers {
			s.deps.Hub.CloseSubject(r.patientID)
		}
	}
	s.mu.Unlock()
	metrics.ActiveSubjects.WithLabelValues(string(r.mode)).Dec()

	if replaced {
		return
	}
	if s.deps.Mirror != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		if err := s.deps.Mirror.Delete(ctx, r.patientID); err != nil {
			s.logger.Warn("Failed to delete window mirror",
				zap.String("patient_id", r.patientID),
				zap.Error(err),
			)
		}
		cancel()
	}
	s.deps.Hub.PublishAll(models.StreamUpdate{
		PatientID: r.patientID,
		Seq:       r.seq + 1,
		Status:    models.StatusEnded,
	})
}

// Push 推送一条设备读数（已校验、已分级）
// 病人未在监测时自动以设备模式开始；模拟模式的病人切换为设备模式
func (s *Scheduler) Push(ctx context.Context, reading models.VitalReading) error {
	if reading.PatientID == "" {
		return errors.New("reading has no patient id")
	}

	s.mu.Lock()
	r := s.runners[reading.PatientID]
	s.mu.Unlock()

	if r == nil || r.mode != ModeDevice {
		if err := s.Start(reading.PatientID, ModeDevice); err != nil {
			return err
		}
		s.mu.Lock()
		r = s.runners[reading.PatientID]
		s.mu.Unlock()
		if r == nil {
			return ErrSubjectStopped
		}
	}

	select {
	case r.push <- reading:
		return nil
	case <-r.ctx.Done():
		return ErrSubjectStopped
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Subjects 返回正在监测的病人
func (s *Scheduler) Subjects() []SubjectInfo {
	s.mu.Lock()
	out := make([]SubjectInfo, 0, len(s.runners))
	for id, r := range s.runners {
		out = append(out, SubjectInfo{PatientID: id, Mode: r.mode, Since: r.since})
	}
	s.mu.Unlock()

	for i := range out {
		out[i].WindowLen = s.deps.Store.Len(out[i].PatientID)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].PatientID < out[j].PatientID })
	return out
}

// IsMonitoring 病人是否在监测
func (s *Scheduler) IsMonitoring(patientID string) (Mode, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	r, ok := s.runners[patientID]
	if !ok {
		return "", false
	}
	return r.mode, true
}

// Window 返回病人窗口快照
func (s *Scheduler) Window(patientID string) []models.VitalReading {
	return s.deps.Store.Get(patientID)
}

// Close 停止全部病人并关闭所有订阅
func (s *Scheduler) Close() {
	s.mu.Lock()
	s.closed = true
	runners := make([]*runner, 0, len(s.runners))
	for id, r := range s.runners {
		runners = append(runners, r)
		delete(s.runners, id)
		s.stopping[id] = r
	}
	s.mu.Unlock()

	for _, r := range runners {
		s.stopRunner(r, true)
	}
	s.deps.Hub.Close()
}

func (s *Scheduler) run(r *runner, prev *runner) {
	defer close(r.done)
	if prev != nil {
		<-prev.done
		r.seq = prev.seq
	}
	if r.ctx.Err() != nil {
		return
	}

	s.seed(r)

	var tick <-chan time.Time
	if r.mode == ModeSimulated {
		ticker := time.NewTicker(s.opts.TickInterval)
		defer ticker.Stop()
		tick = ticker.C
	}

	var stale <-chan time.Time
	var staleTimer *time.Timer
	if r.mode == ModeDevice && s.opts.StaleAfter > 0 {
		staleTimer = time.NewTimer(s.opts.StaleAfter)
		defer staleTimer.Stop()
		stale = staleTimer.C
	}

	for {
		select {
		case <-r.ctx.Done():
			return
		case <-tick:
			s.tick(r)
		case reading := <-r.push:
			s.apply(r, reading, false)
			if staleTimer != nil {
				if !staleTimer.Stop() {
					select {
					case <-staleTimer.C:
					default:
					}
				}
				staleTimer.Reset(s.opts.StaleAfter)
			}
		case <-stale:
			s.publishStale(r, fmt.Sprintf("no device reading for %s", s.opts.StaleAfter))
			staleTimer.Reset(s.opts.StaleAfter)
		}
	}
}

// seed 窗口为空时初始化：模拟模式生成历史，设备模式从存储加载最近读数
func (s *Scheduler) seed(r *runner) {
	if s.deps.Store.Len(r.patientID) > 0 {
		return
	}
	capacity := s.deps.Store.Capacity()

	switch r.mode {
	case ModeSimulated:
		history := s.deps.Generator.History(r.patientID, capacity, s.opts.TickInterval, time.Now())
		for i := range history {
			history[i].Tier = s.deps.Classifier.Classify(history[i])
		}
		s.deps.Store.Seed(r.patientID, history)
	case ModeDevice:
		if s.deps.Source == nil {
			return
		}
		ctx, cancel := context.WithTimeout(r.ctx, 5*time.Second)
		defer cancel()
		recent, err := s.deps.Source.RecentReadings(ctx, r.patientID, capacity)
		if err != nil {
			s.logger.Warn("Failed to load recent readings",
				zap.String("patient_id", r.patientID),
				zap.Error(err),
			)
			s.publishStale(r, err.Error())
			return
		}
		// 存储按时间倒序返回，窗口最早在前
		history := make([]models.VitalReading, 0, len(recent))
		for i := len(recent) - 1; i >= 0; i-- {
			history = append(history, recent[i])
		}
		s.deps.Store.Seed(r.patientID, history)
	}
}

func (s *Scheduler) tick(r *runner) {
	if r.ctx.Err() != nil {
		return
	}
	metrics.TicksTotal.Inc()

	series := s.deps.Store.Get(r.patientID)
	if len(series) == 0 {
		s.seed(r)
		series = s.deps.Store.Get(r.patientID)
	}

	next, err := s.deps.Walker.Next(series)
	if err != nil {
		s.logger.Error("Failed to step series",
			zap.String("patient_id", r.patientID),
			zap.Error(err),
		)
		return
	}
	next.Tier = s.deps.Classifier.Classify(next)
	s.apply(r, next, s.opts.PersistSimulated)
}

// apply 写入窗口、可选持久化、镜像并发布
func (s *Scheduler) apply(r *runner, reading models.VitalReading, persist bool) {
	status := models.StatusLive
	var errMsg string

	if persist && s.deps.Sink != nil {
		ctx, cancel := context.WithTimeout(r.ctx, 5*time.Second)
		err := s.deps.Sink.InsertReading(ctx, reading)
		cancel()
		if err != nil {
			metrics.SinkErrors.WithLabelValues("scheduler").Inc()
			s.logger.Error("Failed to persist simulated reading",
				zap.String("patient_id", r.patientID),
				zap.Error(err),
			)
			status = models.StatusStale
			errMsg = err.Error()
		}
	}

	var snapshot []models.VitalReading
	if latest, ok := s.deps.Store.Latest(r.patientID); ok && reading.ID != "" && latest.ID == reading.ID {
		// 设备模式首条读数可能已随历史一起加载
		snapshot = s.deps.Store.Get(r.patientID)
	} else {
		snapshot = s.deps.Store.Append(r.patientID, reading)
	}

	if s.deps.Mirror != nil {
		ctx, cancel := context.WithTimeout(r.ctx, 2*time.Second)
		if err := s.deps.Mirror.Save(ctx, r.patientID, reading.Tier, snapshot); err != nil {
			s.logger.Warn("Failed to mirror window",
				zap.String("patient_id", r.patientID),
				zap.Error(err),
			)
		}
		cancel()
	}

	r.seq++
	latest := reading.Clone()
	s.deps.Hub.Publish(models.StreamUpdate{
		PatientID: r.patientID,
		Seq:       r.seq,
		Reading:   &latest,
		Tier:      reading.Tier,
		Alert:     s.deps.Classifier.Describe(reading),
		Window:    snapshot,
		Status:    status,
		Error:     errMsg,
	})
	metrics.UpdatesPublished.WithLabelValues(reading.Tier.String(), string(status)).Inc()
}

func (s *Scheduler) publishStale(r *runner, reason string) {
	tier := models.TierNormal
	if latest, ok := s.deps.Store.Latest(r.patientID); ok {
		tier = latest.Tier
	}
	r.seq++
	s.deps.Hub.Publish(models.StreamUpdate{
		PatientID: r.patientID,
		Seq:       r.seq,
		Tier:      tier,
		Status:    models.StatusStale,
		Error:     reason,
	})
	metrics.UpdatesPublished.WithLabelValues(tier.String(), string(models.StatusStale)).Inc()
}
