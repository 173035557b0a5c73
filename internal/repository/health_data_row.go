package repository

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/Danish-Qaunain/Paralysis-Health-Tracker-IoT-Based-Detection-System/internal/models"
)

// healthDataRow health_data 表的一行（也是 PostgREST / NOTIFY / Stream 的 JSON 形态）
type healthDataRow struct {
	ID             string          `json:"id"`
	PatientID      string          `json:"patient_id"`
	RecordedAt     time.Time       `json:"recorded_at"`
	HeartRate      float64         `json:"heart_rate"`
	Temperature    float64         `json:"temperature"`
	MuscleActivity *float64        `json:"muscle_activity"`
	ECGValue       *float64        `json:"ecg_value"`
	LeadOff        *bool           `json:"lead_off"`
	FlexRequest    json.RawMessage `json:"flex_request"`
	FallStatus     bool            `json:"fall_status"`
	FallSeverity   string          `json:"fall_severity"`
	AlertStatus    string          `json:"alert_status"`
}

func toRow(r models.VitalReading) (healthDataRow, error) {
	row := healthDataRow{
		ID:             r.ID,
		PatientID:      r.PatientID,
		RecordedAt:     r.Timestamp.UTC(),
		HeartRate:      r.HeartRate,
		Temperature:    r.BodyTemperature,
		MuscleActivity: r.MuscleActivity,
		FallStatus:     r.FallDetected,
		FallSeverity:   string(r.FallSeverity),
		AlertStatus:    r.Tier.String(),
	}
	if r.ECG != nil {
		v, lo := r.ECG.Value, r.ECG.LeadOff
		row.ECGValue = &v
		row.LeadOff = &lo
	}
	if r.FlexRequests != nil {
		b, err := json.Marshal(r.FlexRequests)
		if err != nil {
			return row, fmt.Errorf("failed to marshal flex requests: %w", err)
		}
		row.FlexRequest = b
	} else {
		row.FlexRequest = json.RawMessage("null")
	}
	return row, nil
}

func (row healthDataRow) toReading() (models.VitalReading, error) {
	r := models.VitalReading{
		ID:              row.ID,
		PatientID:       row.PatientID,
		Timestamp:       row.RecordedAt.UTC(),
		HeartRate:       row.HeartRate,
		BodyTemperature: row.Temperature,
		MuscleActivity:  row.MuscleActivity,
		FallDetected:    row.FallStatus,
		FallSeverity:    models.FallNone,
	}
	if row.ECGValue != nil {
		r.ECG = &models.ECG{Value: *row.ECGValue}
		if row.LeadOff != nil {
			r.ECG.LeadOff = *row.LeadOff
		}
	}
	if len(row.FlexRequest) > 0 && string(row.FlexRequest) != "null" {
		var flex models.FlexRequests
		if err := json.Unmarshal(row.FlexRequest, &flex); err != nil {
			return r, fmt.Errorf("failed to unmarshal flex_request: %w", err)
		}
		r.FlexRequests = flex
	}
	if row.FallSeverity != "" {
		sev, err := models.ParseFallSeverity(row.FallSeverity)
		if err != nil {
			return r, err
		}
		r.FallSeverity = sev
	}
	if row.AlertStatus != "" {
		tier, err := models.ParseSeverityTier(row.AlertStatus)
		if err != nil {
			return r, err
		}
		r.Tier = tier
	}
	return r, nil
}

// EncodeReading 编码为 health_data 行 JSON
func EncodeReading(r models.VitalReading) ([]byte, error) {
	row, err := toRow(r)
	if err != nil {
		return nil, err
	}
	return json.Marshal(row)
}

// DecodeReading 解析 health_data 行 JSON（NOTIFY 负载、Stream 消息、PostgREST 响应）
func DecodeReading(data []byte) (models.VitalReading, error) {
	var row healthDataRow
	if err := json.Unmarshal(data, &row); err != nil {
		return models.VitalReading{}, fmt.Errorf("failed to unmarshal health data row: %w", err)
	}
	return row.toReading()
}
