package export

import (
	"fmt"
	"strings"
	"time"

	"github.com/Danish-Qaunain/Paralysis-Health-Tracker-IoT-Based-Detection-System/internal/evaluator"
	"github.com/Danish-Qaunain/Paralysis-Health-Tracker-IoT-Based-Detection-System/internal/models"
)

// Range 历史查询时间范围
type Range string

const (
	Range24h Range = "24h"
	Range7d  Range = "7d"
	Range30d Range = "30d"
	Range90d Range = "90d"
)

// ParseRange 解析时间范围，空串为 7d
func ParseRange(s string) (Range, error) {
	switch Range(strings.ToLower(strings.TrimSpace(s))) {
	case "", Range7d:
		return Range7d, nil
	case Range24h:
		return Range24h, nil
	case Range30d:
		return Range30d, nil
	case Range90d:
		return Range90d, nil
	default:
		return "", fmt.Errorf("unknown range %q (want 24h, 7d, 30d or 90d)", s)
	}
}

// Duration 范围长度
func (r Range) Duration() time.Duration {
	switch r {
	case Range24h:
		return 24 * time.Hour
	case Range30d:
		return 30 * 24 * time.Hour
	case Range90d:
		return 90 * 24 * time.Hour
	default:
		return 7 * 24 * time.Hour
	}
}

// Kind 历史数据类型过滤
type Kind string

const (
	KindAll         Kind = "all"
	KindTemperature Kind = "temperature"
	KindHeart       Kind = "heart"
	KindRequests    Kind = "requests"
	KindFalls       Kind = "falls"
)

// ParseKind 解析类型过滤，空串为 all
func ParseKind(s string) (Kind, error) {
	switch Kind(strings.ToLower(strings.TrimSpace(s))) {
	case "", KindAll:
		return KindAll, nil
	case KindTemperature:
		return KindTemperature, nil
	case KindHeart:
		return KindHeart, nil
	case KindRequests:
		return KindRequests, nil
	case KindFalls:
		return KindFalls, nil
	default:
		return "", fmt.Errorf("unknown filter %q (want all, temperature, heart, requests or falls)", s)
	}
}

// Filter 历史过滤条件
// temperature / heart 过滤使用告警阈值的 warning 边界
type Filter struct {
	Range  Range
	Kind   Kind
	Bounds evaluator.Bounds
}

// NewFilter 使用给定阈值的 warning 边界创建过滤器
func NewFilter(r Range, k Kind, th evaluator.Thresholds) Filter {
	return Filter{Range: r, Kind: k, Bounds: th.Warning}
}

// Window 返回 [from, to) 查询区间
func (f Filter) Window(now time.Time) (time.Time, time.Time) {
	return now.Add(-f.Range.Duration()), now
}

// Apply 按时间范围和类型过滤，保持输入顺序
func (f Filter) Apply(readings []models.VitalReading, now time.Time) []models.VitalReading {
	from, _ := f.Window(now)
	out := make([]models.VitalReading, 0, len(readings))
	for _, r := range readings {
		if !r.Timestamp.After(from) {
			continue
		}
		if f.match(r) {
			out = append(out, r)
		}
	}
	return out
}

func (f Filter) match(r models.VitalReading) bool {
	switch f.Kind {
	case KindTemperature:
		return f.Bounds.TemperatureOut(r.BodyTemperature)
	case KindHeart:
		return f.Bounds.HeartRateOut(r.HeartRate)
	case KindRequests:
		return r.FlexRequests.Any()
	case KindFalls:
		return r.FallDetected
	default:
		return true
	}
}
