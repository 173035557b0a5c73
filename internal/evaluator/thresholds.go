package evaluator

import (
	"fmt"
	"strings"
)

// Bounds 一组上下限，超出任一边界（严格大于/小于）即命中
type Bounds struct {
	HeartRateLow  float64 `json:"heart_rate_low"`
	HeartRateHigh float64 `json:"heart_rate_high"`
	TempLow       float64 `json:"temperature_low"`
	TempHigh      float64 `json:"temperature_high"`
}

// Thresholds 分级阈值表
type Thresholds struct {
	Name     string `json:"name"`
	Critical Bounds `json:"critical"`
	Warning  Bounds `json:"warning"`
}

// DefaultThresholds 标准阈值表（看板告警使用的一组，唯一默认值）
var DefaultThresholds = Thresholds{
	Name: "default",
	Critical: Bounds{
		HeartRateLow:  40,
		HeartRateHigh: 140,
		TempLow:       35.0,
		TempHigh:      39.0,
	},
	Warning: Bounds{
		HeartRateLow:  50,
		HeartRateHigh: 120,
		TempLow:       35.5,
		TempHigh:      38.5,
	},
}

// StrictThresholds 更窄的阈值表（设备入库端使用的一组），需显式配置启用
var StrictThresholds = Thresholds{
	Name: "strict",
	Critical: Bounds{
		HeartRateLow:  50,
		HeartRateHigh: 120,
		TempLow:       35.0,
		TempHigh:      39.0,
	},
	Warning: Bounds{
		HeartRateLow:  60,
		HeartRateHigh: 100,
		TempLow:       36.0,
		TempHigh:      38.0,
	},
}

// ThresholdsByName 按名称选择阈值表
func ThresholdsByName(name string) (Thresholds, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "", "default":
		return DefaultThresholds, nil
	case "strict":
		return StrictThresholds, nil
	default:
		return Thresholds{}, fmt.Errorf("unknown threshold profile %q", name)
	}
}

// HeartRateOut 心率是否超出边界
func (b Bounds) HeartRateOut(hr float64) bool {
	return hr > b.HeartRateHigh || hr < b.HeartRateLow
}

// TemperatureOut 体温是否超出边界
func (b Bounds) TemperatureOut(temp float64) bool {
	return temp > b.TempHigh || temp < b.TempLow
}

// Exceeded 心率或体温是否超出边界
func (b Bounds) Exceeded(hr, temp float64) bool {
	return b.HeartRateOut(hr) || b.TemperatureOut(temp)
}
