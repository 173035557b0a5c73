package ingest

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/Danish-Qaunain/Paralysis-Health-Tracker-IoT-Based-Detection-System/internal/evaluator"
	"github.com/Danish-Qaunain/Paralysis-Health-Tracker-IoT-Based-Detection-System/internal/metrics"
	"github.com/Danish-Qaunain/Paralysis-Health-Tracker-IoT-Based-Detection-System/internal/models"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// 合理性范围（超出视为设备故障）
const (
	minHeartRate   = 0
	maxHeartRate   = 300
	minTemperature = 20
	maxTemperature = 50
	minActivity    = 0
	maxActivity    = 1000
)

// Sink 读数存储，每次成功入库恰好写一次
type Sink interface {
	InsertReading(ctx context.Context, r models.VitalReading) error
}

// Options Bridge 配置
type Options struct {
	DefaultPatientID string // 报文不带 patient_id 时使用（串口设备固定绑定一个病人）
	RequireActivity  bool   // 是否要求 muscle_activity 或 ecg_value
}

// Bridge 设备读数入库：校验、补全严重级别、写入存储
// 存储失败直接返回 *models.TransportError，不做重试
type Bridge struct {
	opts       Options
	classifier *evaluator.Classifier
	sink       Sink
	logger     *zap.Logger
	now        func() time.Time
}

// NewBridge 创建 Bridge
func NewBridge(opts Options, classifier *evaluator.Classifier, sink Sink, logger *zap.Logger) *Bridge {
	return &Bridge{
		opts:       opts,
		classifier: classifier,
		sink:       sink,
		logger:     logger,
		now:        time.Now,
	}
}

// IngestLine 解析一行 JSON 后入库
func (b *Bridge) IngestLine(ctx context.Context, line []byte) (*models.VitalReading, error) {
	dec := json.NewDecoder(bytes.NewReader(line))
	dec.UseNumber()
	var raw map[string]any
	if err := dec.Decode(&raw); err != nil {
		metrics.ReadingsIngested.WithLabelValues("invalid").Inc()
		return nil, models.NewValidationError(map[string]string{
			"payload": fmt.Sprintf("malformed JSON: %v", err),
		})
	}
	return b.Ingest(ctx, raw)
}

// Ingest 校验并入库一条原始读数
func (b *Bridge) Ingest(ctx context.Context, raw map[string]any) (*models.VitalReading, error) {
	reading, verr := b.Parse(raw)
	if verr != nil {
		metrics.ReadingsIngested.WithLabelValues("invalid").Inc()
		b.logger.Warn("Rejected device reading",
			zap.Strings("fields", verr.Fields),
			zap.Error(verr),
		)
		return nil, verr
	}

	if err := b.sink.InsertReading(ctx, *reading); err != nil {
		metrics.ReadingsIngested.WithLabelValues("sink_error").Inc()
		metrics.SinkErrors.WithLabelValues("bridge").Inc()
		return nil, &models.TransportError{Op: "insert reading", Err: err}
	}

	metrics.ReadingsIngested.WithLabelValues("ok").Inc()
	b.logger.Debug("Reading ingested",
		zap.String("patient_id", reading.PatientID),
		zap.String("reading_id", reading.ID),
		zap.String("tier", reading.Tier.String()),
	)
	return reading, nil
}

// Parse 只做校验和补全，不入库
func (b *Bridge) Parse(raw map[string]any) (*models.VitalReading, *models.ValidationError) {
	reasons := make(map[string]string)
	r := models.VitalReading{}

	// patient
	if v, ok := raw[FieldPatientID]; ok && v != nil {
		s, isStr := v.(string)
		switch {
		case !isStr:
			reasons[FieldPatientID] = "must be a string"
		case strings.TrimSpace(s) == "":
			reasons[FieldPatientID] = "must not be empty"
		default:
			r.PatientID = strings.TrimSpace(s)
		}
	} else if b.opts.DefaultPatientID != "" {
		r.PatientID = b.opts.DefaultPatientID
	} else {
		reasons[FieldPatientID] = "required"
	}

	// vitals
	if v, reason := requiredNumber(raw, FieldHeartRate); reason != "" {
		reasons[FieldHeartRate] = reason
	} else if v < minHeartRate || v > maxHeartRate {
		reasons[FieldHeartRate] = fmt.Sprintf("out of range [%d, %d]", minHeartRate, maxHeartRate)
	} else {
		r.HeartRate = v
	}

	tempKey := FieldTemperature
	if _, ok := raw[FieldTemperature]; !ok {
		if _, ok := raw[FieldBodyTemperature]; ok {
			tempKey = FieldBodyTemperature
		}
	}
	if v, reason := requiredNumber(raw, tempKey); reason != "" {
		reasons[FieldTemperature] = reason
	} else if v < minTemperature || v > maxTemperature {
		reasons[FieldTemperature] = fmt.Sprintf("out of range [%d, %d]", minTemperature, maxTemperature)
	} else {
		r.BodyTemperature = v
	}

	// 第三通道
	if v, present, reason := optionalNumber(raw, FieldMuscleActivity); reason != "" {
		reasons[FieldMuscleActivity] = reason
	} else if present {
		if v < minActivity || v > maxActivity {
			reasons[FieldMuscleActivity] = fmt.Sprintf("out of range [%d, %d]", minActivity, maxActivity)
		} else {
			r.MuscleActivity = models.Float64Ptr(v)
		}
	}
	if v, present, reason := optionalNumber(raw, FieldECGValue); reason != "" {
		reasons[FieldECGValue] = reason
	} else if present {
		leadOff, _, lreason := optionalBool(raw, FieldLeadOff)
		if lreason != "" {
			reasons[FieldLeadOff] = lreason
		}
		r.ECG = &models.ECG{Value: v, LeadOff: leadOff}
	}
	if b.opts.RequireActivity && r.MuscleActivity == nil && r.ECG == nil {
		if _, bad := reasons[FieldMuscleActivity]; !bad {
			if _, bad := reasons[FieldECGValue]; !bad {
				reasons[FieldMuscleActivity] = "required (or ecg_value)"
			}
		}
	}

	// 离散事件
	flex, reason := parseFlex(raw[FieldFlexRequest])
	if reason != "" {
		reasons[FieldFlexRequest] = reason
	}
	r.FlexRequests = flex

	if fall, present, reason := optionalBool(raw, FieldFallStatus); reason != "" {
		reasons[FieldFallStatus] = reason
	} else if present {
		r.FallDetected = fall
	}
	if s, present, reason := optionalString(raw, FieldFallSeverity); reason != "" {
		reasons[FieldFallSeverity] = reason
	} else if present {
		sev, err := models.ParseFallSeverity(s)
		if err != nil {
			reasons[FieldFallSeverity] = err.Error()
		} else {
			r.FallSeverity = sev
		}
	}

	var suppliedTier *models.SeverityTier
	if s, present, reason := optionalString(raw, FieldAlertStatus); reason != "" {
		reasons[FieldAlertStatus] = reason
	} else if present {
		tier, err := models.ParseSeverityTier(s)
		if err != nil {
			reasons[FieldAlertStatus] = err.Error()
		} else {
			suppliedTier = &tier
		}
	}

	if s, present, reason := optionalString(raw, FieldRecordedAt); reason != "" {
		reasons[FieldRecordedAt] = reason
	} else if present {
		ts, err := time.Parse(time.RFC3339Nano, s)
		if err != nil {
			reasons[FieldRecordedAt] = "must be an RFC3339 timestamp"
		} else {
			r.Timestamp = ts.UTC()
		}
	}
	if s, present, reason := optionalString(raw, FieldID); reason != "" {
		reasons[FieldID] = reason
	} else if present {
		r.ID = s
	}

	if verr := models.NewValidationError(reasons); verr != nil {
		return nil, verr
	}

	// 补全
	r.FallSeverity = evaluator.FallSeverityFor(r)
	computed := b.classifier.Classify(r)
	if suppliedTier != nil {
		r.Tier = *suppliedTier
		if r.Tier != computed {
			b.logger.Warn("Device severity differs from computed severity",
				zap.String("patient_id", r.PatientID),
				zap.String("supplied", r.Tier.String()),
				zap.String("computed", computed.String()),
			)
		}
	} else {
		r.Tier = computed
	}
	if r.ID == "" {
		r.ID = uuid.New().String()
	}
	if r.Timestamp.IsZero() {
		r.Timestamp = b.now().UTC()
	}

	return &r, nil
}

func toNumber(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int32:
		return float64(n), true
	case int64:
		return float64(n), true
	case json.Number:
		f, err := n.Float64()
		if err != nil {
			return 0, false
		}
		return f, true
	default:
		return 0, false
	}
}

func requiredNumber(raw map[string]any, key string) (float64, string) {
	v, present, reason := optionalNumber(raw, key)
	if reason != "" {
		return 0, reason
	}
	if !present {
		return 0, "required"
	}
	return v, ""
}

func optionalNumber(raw map[string]any, key string) (float64, bool, string) {
	v, ok := raw[key]
	if !ok || v == nil {
		return 0, false, ""
	}
	f, ok := toNumber(v)
	if !ok {
		return 0, true, "must be a number"
	}
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return 0, true, "must be a finite number"
	}
	return f, true, ""
}

func optionalString(raw map[string]any, key string) (string, bool, string) {
	v, ok := raw[key]
	if !ok || v == nil {
		return "", false, ""
	}
	s, ok := v.(string)
	if !ok {
		return "", true, "must be a string"
	}
	return s, true, ""
}

// optionalBool 接受 bool、0/1，以及 "true"/"false"/"fall"/"none" 等字符串
func optionalBool(raw map[string]any, key string) (bool, bool, string) {
	v, ok := raw[key]
	if !ok || v == nil {
		return false, false, ""
	}
	switch b := v.(type) {
	case bool:
		return b, true, ""
	case string:
		switch strings.ToLower(strings.TrimSpace(b)) {
		case "true", "1", "yes", "fall", "fallen", "detected":
			return true, true, ""
		case "false", "0", "no", "none", "normal", "":
			return false, true, ""
		}
		return false, true, "must be a boolean"
	}
	if f, ok := toNumber(v); ok {
		switch f {
		case 0:
			return false, true, ""
		case 1:
			return true, true, ""
		}
	}
	return false, true, "must be a boolean"
}

// parseFlex 接受请求名称字符串（可逗号分隔）、名称数组或 {name: bool} 对象
func parseFlex(v any) (models.FlexRequests, string) {
	switch f := v.(type) {
	case nil:
		return nil, ""
	case string:
		out := models.FlexRequests{}
		for _, name := range strings.Split(f, ",") {
			name = strings.ToLower(strings.TrimSpace(name))
			if name == "" || name == "none" {
				continue
			}
			out[name] = true
		}
		return out, ""
	case []any:
		out := models.FlexRequests{}
		for _, item := range f {
			name, ok := item.(string)
			if !ok {
				return nil, "must contain request names"
			}
			out[strings.ToLower(strings.TrimSpace(name))] = true
		}
		return out, ""
	case map[string]any:
		out := make(models.FlexRequests, len(f))
		for name, flag := range f {
			on, ok := flag.(bool)
			if !ok {
				return nil, fmt.Sprintf("flag %q must be a boolean", name)
			}
			out[name] = on
		}
		return out, ""
	default:
		return nil, "must be a request name, a list of names or an object of flags"
	}
}
