package models

import (
	"fmt"
	"sort"
	"strings"
	"time"
)

// FallSeverity 跌倒严重程度，与生命体征级别相互独立
type FallSeverity string

const (
	FallNone   FallSeverity = "none"
	FallLow    FallSeverity = "low"
	FallMedium FallSeverity = "medium"
	FallHigh   FallSeverity = "high"
)

// ParseFallSeverity 解析跌倒严重程度
func ParseFallSeverity(s string) (FallSeverity, error) {
	switch FallSeverity(strings.ToLower(strings.TrimSpace(s))) {
	case FallNone:
		return FallNone, nil
	case FallLow:
		return FallLow, nil
	case FallMedium:
		return FallMedium, nil
	case FallHigh:
		return FallHigh, nil
	default:
		return "", fmt.Errorf("unknown fall severity %q", s)
	}
}

// Flex 请求名称（手套弯曲传感器触发的病人请求）
const (
	FlexFood     = "food"
	FlexWater    = "water"
	FlexRestroom = "restroom"
)

// FlexRequests 病人请求标志集合，key 为请求名称
type FlexRequests map[string]bool

// Active 返回处于激活状态的请求名称（按名称排序）
func (f FlexRequests) Active() []string {
	var names []string
	for name, on := range f {
		if on {
			names = append(names, name)
		}
	}
	sort.Strings(names)
	return names
}

// Any 是否存在激活的请求
func (f FlexRequests) Any() bool {
	for _, on := range f {
		if on {
			return true
		}
	}
	return false
}

// Clone 复制请求集合
func (f FlexRequests) Clone() FlexRequests {
	if f == nil {
		return nil
	}
	out := make(FlexRequests, len(f))
	for k, v := range f {
		out[k] = v
	}
	return out
}

// ECG 心电读数
type ECG struct {
	Value   float64 `json:"value"`
	LeadOff bool    `json:"lead_off"`
}

// VitalReading 单次生命体征观测（对应 health_data 表的一行）
type VitalReading struct {
	ID              string       `json:"id"`
	PatientID       string       `json:"patient_id"`
	Timestamp       time.Time    `json:"recorded_at"`
	HeartRate       float64      `json:"heart_rate"`                // bpm
	BodyTemperature float64      `json:"temperature"`               // °C
	MuscleActivity  *float64     `json:"muscle_activity,omitempty"` // 1-10
	ECG             *ECG         `json:"ecg,omitempty"`
	FlexRequests    FlexRequests `json:"flex_requests,omitempty"`
	FallDetected    bool         `json:"fall_detected"`
	FallSeverity    FallSeverity `json:"fall_severity"`
	Tier            SeverityTier `json:"alert_status"`
}

// Clone 深拷贝，快照不与原值共享指针或 map
func (r VitalReading) Clone() VitalReading {
	out := r
	if r.MuscleActivity != nil {
		v := *r.MuscleActivity
		out.MuscleActivity = &v
	}
	if r.ECG != nil {
		e := *r.ECG
		out.ECG = &e
	}
	out.FlexRequests = r.FlexRequests.Clone()
	return out
}

// Float64Ptr 返回 float64 指针
func Float64Ptr(v float64) *float64 {
	return &v
}
