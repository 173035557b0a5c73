package ingest

import (
	"time"

	"github.com/Danish-Qaunain/Paralysis-Health-Tracker-IoT-Based-Detection-System/internal/models"
)

// 设备 / HTTP / 存储共用的字段名
const (
	FieldID              = "id"
	FieldPatientID       = "patient_id"
	FieldRecordedAt      = "recorded_at"
	FieldHeartRate       = "heart_rate"
	FieldTemperature     = "temperature"
	FieldBodyTemperature = "body_temperature"
	FieldMuscleActivity  = "muscle_activity"
	FieldECGValue        = "ecg_value"
	FieldLeadOff         = "lead_off"
	FieldFlexRequest     = "flex_request"
	FieldFallStatus      = "fall_status"
	FieldFallSeverity    = "fall_severity"
	FieldAlertStatus     = "alert_status"
)

// Encode 把读数编码为线上格式，Ingest(Encode(r)) 还原全部字段
func Encode(r models.VitalReading) map[string]any {
	out := map[string]any{
		FieldPatientID:   r.PatientID,
		FieldHeartRate:   r.HeartRate,
		FieldTemperature: r.BodyTemperature,
		FieldFallStatus:  r.FallDetected,
		FieldAlertStatus: r.Tier.String(),
	}
	// 未设置的跌倒等级由入库端补全
	if r.FallSeverity != "" {
		out[FieldFallSeverity] = string(r.FallSeverity)
	}
	if r.ID != "" {
		out[FieldID] = r.ID
	}
	if !r.Timestamp.IsZero() {
		out[FieldRecordedAt] = r.Timestamp.UTC().Format(time.RFC3339Nano)
	}
	if r.MuscleActivity != nil {
		out[FieldMuscleActivity] = *r.MuscleActivity
	}
	if r.ECG != nil {
		out[FieldECGValue] = r.ECG.Value
		out[FieldLeadOff] = r.ECG.LeadOff
	}
	if r.FlexRequests != nil {
		flags := make(map[string]any, len(r.FlexRequests))
		for name, on := range r.FlexRequests {
			flags[name] = on
		}
		out[FieldFlexRequest] = flags
	}
	return out
}
