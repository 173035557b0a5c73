package repository

import (
	"context"

	"github.com/Danish-Qaunain/Paralysis-Health-Tracker-IoT-Based-Detection-System/internal/models"

	"go.uber.org/zap"
)

// Sink 读数写入接口
type Sink interface {
	InsertReading(ctx context.Context, reading models.VitalReading) error
}

// FanoutSink 先写主存储（失败即返回），再通知次要存储（失败只记录）
type FanoutSink struct {
	primary     Sink
	secondaries []Sink
	logger      *zap.Logger
}

// NewFanoutSink 创建组合写入器
func NewFanoutSink(primary Sink, logger *zap.Logger, secondaries ...Sink) *FanoutSink {
	return &FanoutSink{primary: primary, secondaries: secondaries, logger: logger}
}

// InsertReading 写入一条读数
func (f *FanoutSink) InsertReading(ctx context.Context, reading models.VitalReading) error {
	if err := f.primary.InsertReading(ctx, reading); err != nil {
		return err
	}
	for _, s := range f.secondaries {
		if err := s.InsertReading(ctx, reading); err != nil {
			f.logger.Warn("Secondary sink failed",
				zap.String("patient_id", reading.PatientID),
				zap.String("reading_id", reading.ID),
				zap.Error(err),
			)
		}
	}
	return nil
}
