package httpapi

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/Danish-Qaunain/Paralysis-Health-Tracker-IoT-Based-Detection-System/internal/evaluator"
	"github.com/Danish-Qaunain/Paralysis-Health-Tracker-IoT-Based-Detection-System/internal/models"
	"github.com/Danish-Qaunain/Paralysis-Health-Tracker-IoT-Based-Detection-System/internal/scheduler"

	"github.com/gorilla/mux"
	"go.uber.org/zap"
)

const (
	defaultHistoryLimit = 30
	maxHistoryLimit     = 1000
)

// Ingester 读数校验 + 入库（ingest.Bridge）
type Ingester interface {
	Ingest(ctx context.Context, raw map[string]any) (*models.VitalReading, error)
	Parse(raw map[string]any) (*models.VitalReading, *models.ValidationError)
}

// Monitor 实时监护（scheduler.Scheduler）
type Monitor interface {
	Start(patientID string, mode scheduler.Mode) error
	Stop(patientID string) bool
	Push(ctx context.Context, reading models.VitalReading) error
	Subjects() []scheduler.SubjectInfo
	IsMonitoring(patientID string) (scheduler.Mode, bool)
	Window(patientID string) []models.VitalReading
	Hub() *scheduler.Hub
}

// History 历史读数查询（repository），按时间倒序
type History interface {
	RecentReadings(ctx context.Context, patientID string, n int) ([]models.VitalReading, error)
	ReadingsBetween(ctx context.Context, patientID string, from, to time.Time) ([]models.VitalReading, error)
}

// Options Handler 行为配置
type Options struct {
	// PushIngested 入库成功后同时推给本进程的监护（没有 Stream/NOTIFY 回路时开启）
	PushIngested bool
	// AutoStartStream 订阅未监测的病人时自动以模拟模式开始
	AutoStartStream bool
	Heartbeat       time.Duration
}

// Handler HTTP 处理器
type Handler struct {
	opts       Options
	ingester   Ingester
	monitor    Monitor
	history    History // 可为 nil
	classifier *evaluator.Classifier
	logger     *zap.Logger
	now        func() time.Time
}

// NewHandler 创建 HTTP 处理器
func NewHandler(opts Options, ingester Ingester, monitor Monitor, history History, classifier *evaluator.Classifier, logger *zap.Logger) *Handler {
	if opts.Heartbeat <= 0 {
		opts.Heartbeat = 15 * time.Second
	}
	return &Handler{
		opts:       opts,
		ingester:   ingester,
		monitor:    monitor,
		history:    history,
		classifier: classifier,
		logger:     logger,
		now:        time.Now,
	}
}

// IngestSensorData POST /api/v1/sensor-data
func (h *Handler) IngestSensorData(w http.ResponseWriter, r *http.Request) {
	raw, err := readRawReading(r)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, Fail(err.Error()))
		return
	}

	reading, err := h.ingester.Ingest(r.Context(), raw)
	if err != nil {
		var verr *models.ValidationError
		if errors.As(err, &verr) {
			writeJSON(w, http.StatusBadRequest, FailWith(verr.Error(), verr.Reasons))
			return
		}
		h.logger.Error("Failed to store sensor data", zap.Error(err))
		writeJSON(w, http.StatusServiceUnavailable, Fail(err.Error()))
		return
	}

	if h.opts.PushIngested {
		if err := h.monitor.Push(r.Context(), *reading); err != nil {
			h.logger.Warn("Failed to push ingested reading",
				zap.String("patient_id", reading.PatientID),
				zap.Error(err),
			)
		}
	}

	writeJSON(w, http.StatusCreated, Ok(reading))
}

// ClassifyResult 分级结果
type ClassifyResult struct {
	Tier         models.SeverityTier `json:"tier"`
	Alert        string              `json:"alert,omitempty"`
	FallSeverity models.FallSeverity `json:"fall_severity"`
}

// Classify POST /api/v1/classify 只分级不入库
func (h *Handler) Classify(w http.ResponseWriter, r *http.Request) {
	raw, err := readRawReading(r)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, Fail(err.Error()))
		return
	}
	// 分级不需要病人
	if _, ok := raw["patient_id"]; !ok {
		raw["patient_id"] = "-"
	}

	reading, verr := h.ingester.Parse(raw)
	if verr != nil {
		writeJSON(w, http.StatusBadRequest, FailWith(verr.Error(), verr.Reasons))
		return
	}

	writeJSON(w, http.StatusOK, Ok(ClassifyResult{
		Tier:         h.classifier.Classify(*reading),
		Alert:        h.classifier.Describe(*reading),
		FallSeverity: reading.FallSeverity,
	}))
}

// ListPatients GET /api/v1/patients
func (h *Handler) ListPatients(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, Ok(h.monitor.Subjects()))
}

// StartMonitoring POST /api/v1/patients/{id}/monitor?mode=simulated|device
func (h *Handler) StartMonitoring(w http.ResponseWriter, r *http.Request) {
	patientID := mux.Vars(r)["id"]
	mode, err := scheduler.ParseMode(r.URL.Query().Get("mode"))
	if err != nil {
		writeJSON(w, http.StatusBadRequest, Fail(err.Error()))
		return
	}

	if err := h.monitor.Start(patientID, mode); err != nil {
		status := http.StatusBadRequest
		if errors.Is(err, scheduler.ErrClosed) {
			status = http.StatusServiceUnavailable
		}
		writeJSON(w, status, Fail(err.Error()))
		return
	}

	writeJSON(w, http.StatusOK, Ok(map[string]any{
		"patient_id": patientID,
		"mode":       mode,
	}))
}

// StopMonitoring DELETE /api/v1/patients/{id}/monitor
func (h *Handler) StopMonitoring(w http.ResponseWriter, r *http.Request) {
	patientID := mux.Vars(r)["id"]
	if !h.monitor.Stop(patientID) {
		writeJSON(w, http.StatusNotFound, Fail("patient is not being monitored"))
		return
	}
	writeJSON(w, http.StatusOK, Ok(map[string]any{"patient_id": patientID}))
}

// WindowResult 窗口快照
type WindowResult struct {
	PatientID string                `json:"patient_id"`
	Mode      scheduler.Mode        `json:"mode"`
	Tier      models.SeverityTier   `json:"tier"`
	Alert     string                `json:"alert,omitempty"`
	Window    []models.VitalReading `json:"window"`
}

// GetWindow GET /api/v1/patients/{id}/window
func (h *Handler) GetWindow(w http.ResponseWriter, r *http.Request) {
	patientID := mux.Vars(r)["id"]
	mode, ok := h.monitor.IsMonitoring(patientID)
	if !ok {
		writeJSON(w, http.StatusNotFound, Fail("patient is not being monitored"))
		return
	}
	writeJSON(w, http.StatusOK, Ok(h.windowResult(patientID, mode)))
}

func (h *Handler) windowResult(patientID string, mode scheduler.Mode) WindowResult {
	win := h.monitor.Window(patientID)
	res := WindowResult{PatientID: patientID, Mode: mode, Window: win}
	if len(win) > 0 {
		latest := win[len(win)-1]
		res.Tier = latest.Tier
		res.Alert = h.classifier.Describe(latest)
	}
	if res.Window == nil {
		res.Window = []models.VitalReading{}
	}
	return res
}

// GetHistory GET /api/v1/patients/{id}/history?limit=N（最新在前）
func (h *Handler) GetHistory(w http.ResponseWriter, r *http.Request) {
	patientID := mux.Vars(r)["id"]
	limit := parseInt(r.URL.Query().Get("limit"), defaultHistoryLimit)
	if limit <= 0 || limit > maxHistoryLimit {
		writeJSON(w, http.StatusBadRequest, Fail("limit must be between 1 and 1000"))
		return
	}

	if h.history == nil {
		// 无持久化时退回内存窗口
		win := h.monitor.Window(patientID)
		out := make([]models.VitalReading, 0, len(win))
		for i := len(win) - 1; i >= 0 && len(out) < limit; i-- {
			out = append(out, win[i])
		}
		writeJSON(w, http.StatusOK, Ok(out))
		return
	}

	readings, err := h.history.RecentReadings(r.Context(), patientID, limit)
	if err != nil {
		h.logger.Error("Failed to query history", zap.String("patient_id", patientID), zap.Error(err))
		writeJSON(w, http.StatusServiceUnavailable, Fail("history unavailable"))
		return
	}
	if readings == nil {
		readings = []models.VitalReading{}
	}
	writeJSON(w, http.StatusOK, Ok(readings))
}

// Health GET /health
func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, Ok(map[string]any{
		"status":   "ok",
		"subjects": len(h.monitor.Subjects()),
		"time":     h.now().UTC(),
	}))
}
