package generator

import (
	"math/rand"
	"sync"
	"time"

	"github.com/Danish-Qaunain/Paralysis-Health-Tracker-IoT-Based-Detection-System/internal/models"

	"github.com/google/uuid"
)

// SensorKind 第三路通道的传感器类型
type SensorKind string

const (
	SensorEMG SensorKind = "emg" // 肌电（muscle activity 1-10）
	SensorECG SensorKind = "ecg" // 心电（value + lead off）
)

// Options 模拟数据概率配置
type Options struct {
	Sensor               SensorKind
	ExcursionProbability float64 // 心率取值切换到 [60,130) 的概率，用于触发告警边界
	FoodProbability      float64
	WaterProbability     float64
	RestroomProbability  float64
	FallProbability      float64
	LeadOffProbability   float64
}

// DefaultOptions 默认概率
func DefaultOptions() Options {
	return Options{
		Sensor:               SensorEMG,
		ExcursionProbability: 0.10,
		FoodProbability:      0.30,
		WaterProbability:     0.20,
		RestroomProbability:  0.15,
		FallProbability:      0.05,
		LeadOffProbability:   0.10,
	}
}

// Source 随机数来源，*rand.Rand 即满足
type Source interface {
	Float64() float64
	Intn(n int) int
}

var fallSeverities = []models.FallSeverity{models.FallLow, models.FallMedium, models.FallHigh}

// Generator 模拟生命体征生成器（每次调用独立取值，不依赖历史）
type Generator struct {
	mu   sync.Mutex
	rand Source
	opts Options
	now  func() time.Time
}

// NewGenerator 创建生成器，src 为 nil 时使用基于当前时间的种子
func NewGenerator(opts Options, src Source) *Generator {
	if src == nil {
		src = rand.New(rand.NewSource(time.Now().UnixNano()))
	}
	if opts.Sensor == "" {
		opts.Sensor = SensorEMG
	}
	return &Generator{
		rand: src,
		opts: opts,
		now:  time.Now,
	}
}

// NewSeededGenerator 使用固定种子创建生成器（结果可复现）
func NewSeededGenerator(opts Options, seed int64) *Generator {
	return NewGenerator(opts, rand.New(rand.NewSource(seed)))
}

// SetClock 替换时间来源
func (g *Generator) SetClock(now func() time.Time) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.now = now
}

// Generate 生成一条读数（未分级，Tier 由分类器填写）
func (g *Generator) Generate(patientID string) models.VitalReading {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.generateLocked(patientID, g.now().UTC())
}

// History 生成 n 条间隔 interval、以 end 结尾的读数，最早的在前
func (g *Generator) History(patientID string, n int, interval time.Duration, end time.Time) []models.VitalReading {
	if n <= 0 {
		return nil
	}
	g.mu.Lock()
	defer g.mu.Unlock()

	out := make([]models.VitalReading, 0, n)
	for i := n - 1; i >= 0; i-- {
		out = append(out, g.generateLocked(patientID, end.Add(-time.Duration(i)*interval).UTC()))
	}
	return out
}

// 取值顺序固定：心率、体温、第三通道、food/water/restroom、跌倒
func (g *Generator) generateLocked(patientID string, ts time.Time) models.VitalReading {
	r := models.VitalReading{
		ID:        uuid.New().String(),
		PatientID: patientID,
		Timestamp: ts,
	}

	if g.rand.Float64() < g.opts.ExcursionProbability {
		r.HeartRate = float64(60 + g.rand.Intn(70))
	} else {
		r.HeartRate = float64(70 + g.rand.Intn(30))
	}
	r.BodyTemperature = 36.0 + g.rand.Float64()*2.0

	switch g.opts.Sensor {
	case SensorECG:
		r.ECG = &models.ECG{
			Value:   float64(70 + g.rand.Intn(30)),
			LeadOff: g.rand.Float64() < g.opts.LeadOffProbability,
		}
	default:
		r.MuscleActivity = models.Float64Ptr(1 + g.rand.Float64()*9)
	}

	r.FlexRequests = models.FlexRequests{
		models.FlexFood:     g.rand.Float64() < g.opts.FoodProbability,
		models.FlexWater:    g.rand.Float64() < g.opts.WaterProbability,
		models.FlexRestroom: g.rand.Float64() < g.opts.RestroomProbability,
	}

	r.FallSeverity = models.FallNone
	if g.rand.Float64() < g.opts.FallProbability {
		r.FallDetected = true
		r.FallSeverity = fallSeverities[g.rand.Intn(len(fallSeverities))]
	}

	return r
}
