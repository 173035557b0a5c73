package generator

import (
	"github.com/Danish-Qaunain/Paralysis-Health-Tracker-IoT-Based-Detection-System/internal/models"
)

// Limits 随机游走的生理范围
type Limits struct {
	HeartRateMin, HeartRateMax float64
	TempMin, TempMax           float64
	MuscleMin, MuscleMax       float64
	ECGMin, ECGMax             float64
}

// PhysiologicalLimits 默认生理范围
var PhysiologicalLimits = Limits{
	HeartRateMin: 30, HeartRateMax: 220,
	TempMin: 32, TempMax: 43,
	MuscleMin: 1, MuscleMax: 10,
	ECGMin: 30, ECGMax: 220,
}

// WalkOptions 随机游走配置
type WalkOptions struct {
	MaxStep float64 // 单步最大幅度（不含），默认 3
	Clamp   bool
	Limits  Limits
}

// DefaultWalkOptions 默认开启限幅
func DefaultWalkOptions() WalkOptions {
	return WalkOptions{MaxStep: 3, Clamp: true, Limits: PhysiologicalLimits}
}

// Walker 随机游走更新器：连续量在上一点基础上扰动，离散事件（请求、跌倒）重新抽取
type Walker struct {
	gen  *Generator
	opts WalkOptions
}

// NewWalker 创建随机游走更新器
func NewWalker(gen *Generator, opts WalkOptions) *Walker {
	if opts.MaxStep <= 0 {
		opts.MaxStep = 3
	}
	return &Walker{gen: gen, opts: opts}
}

// Next 基于序列最后一点生成下一点，series 为空时返回 models.ErrEmptySeries
func (w *Walker) Next(series []models.VitalReading) (models.VitalReading, error) {
	if len(series) == 0 {
		return models.VitalReading{}, models.ErrEmptySeries
	}
	last := series[len(series)-1]

	w.gen.mu.Lock()
	defer w.gen.mu.Unlock()

	next := w.gen.generateLocked(last.PatientID, w.gen.now().UTC())
	lim := w.opts.Limits

	next.HeartRate = w.perturbLocked(last.HeartRate, lim.HeartRateMin, lim.HeartRateMax)
	next.BodyTemperature = w.perturbLocked(last.BodyTemperature, lim.TempMin, lim.TempMax)

	// 第三通道沿用上一点的传感器类型
	next.MuscleActivity = nil
	if last.MuscleActivity != nil {
		next.MuscleActivity = models.Float64Ptr(w.perturbLocked(*last.MuscleActivity, lim.MuscleMin, lim.MuscleMax))
	}
	leadOff := next.ECG != nil && next.ECG.LeadOff
	next.ECG = nil
	if last.ECG != nil {
		next.ECG = &models.ECG{
			Value:   w.perturbLocked(last.ECG.Value, lim.ECGMin, lim.ECGMax),
			LeadOff: leadOff,
		}
	}

	return next, nil
}

// Step 追加一点，超出 capacity 时淘汰最早的点；不修改入参
// capacity <= 0 表示不限长度
func (w *Walker) Step(series []models.VitalReading, capacity int) ([]models.VitalReading, error) {
	next, err := w.Next(series)
	if err != nil {
		return nil, err
	}

	out := make([]models.VitalReading, 0, len(series)+1)
	out = append(out, series...)
	out = append(out, next)
	if capacity > 0 && len(out) > capacity {
		out = out[len(out)-capacity:]
	}
	return out, nil
}

// value ± U[0, MaxStep)
func (w *Walker) perturbLocked(v, min, max float64) float64 {
	sign := 1.0
	if w.gen.rand.Float64() < 0.5 {
		sign = -1.0
	}
	v += sign * w.gen.rand.Float64() * w.opts.MaxStep
	if w.opts.Clamp {
		if v < min {
			v = min
		}
		if v > max {
			v = max
		}
	}
	return v
}
