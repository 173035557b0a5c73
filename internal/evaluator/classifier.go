package evaluator

import (
	"strings"

	"github.com/Danish-Qaunain/Paralysis-Health-Tracker-IoT-Based-Detection-System/internal/models"
)

// Classifier 严重级别分类器（纯函数，无状态，可并发使用）
type Classifier struct {
	thresholds Thresholds
}

// NewClassifier 创建分类器
func NewClassifier(thresholds Thresholds) *Classifier {
	return &Classifier{thresholds: thresholds}
}

// Thresholds 返回当前使用的阈值表
func (c *Classifier) Thresholds() Thresholds {
	return c.thresholds
}

// Classify 计算读数的严重级别
// 先判断 critical 再判断 warning，首个命中即返回
func (c *Classifier) Classify(r models.VitalReading) models.SeverityTier {
	if r.FallDetected {
		return models.TierCritical
	}
	if c.thresholds.Critical.Exceeded(r.HeartRate, r.BodyTemperature) {
		return models.TierCritical
	}
	if c.thresholds.Warning.Exceeded(r.HeartRate, r.BodyTemperature) {
		return models.TierWarning
	}
	return models.TierNormal
}

// Describe 返回读数的告警文案，没有值得提示的内容时返回空串
func (c *Classifier) Describe(r models.VitalReading) string {
	w := c.thresholds.Warning
	switch {
	case r.FallDetected:
		return "Fall detected"
	case r.BodyTemperature > w.TempHigh:
		return "High temperature"
	case r.BodyTemperature < w.TempLow:
		return "Low temperature"
	case r.HeartRate > w.HeartRateHigh:
		return "High heart rate"
	case r.HeartRate < w.HeartRateLow:
		return "Low heart rate"
	case r.FlexRequests.Any():
		return "Request: " + strings.Join(r.FlexRequests.Active(), ", ")
	case r.ECG != nil && r.ECG.LeadOff:
		return "ECG lead off"
	}
	return ""
}

// Classify 使用默认阈值表计算严重级别
func Classify(r models.VitalReading) models.SeverityTier {
	return defaultClassifier.Classify(r)
}

var defaultClassifier = NewClassifier(DefaultThresholds)

// FallSeverityFor 补全跌倒严重程度：未跌倒为 none，设备未上报程度的跌倒按 high 处理
func FallSeverityFor(r models.VitalReading) models.FallSeverity {
	if !r.FallDetected {
		return models.FallNone
	}
	if r.FallSeverity == "" || r.FallSeverity == models.FallNone {
		return models.FallHigh
	}
	return r.FallSeverity
}
