package consumer

import (
	"context"

	"github.com/Danish-Qaunain/Paralysis-Health-Tracker-IoT-Based-Detection-System/internal/models"
)

// LineIngester 设备一行 JSON 的入库入口（ingest.Bridge）
type LineIngester interface {
	IngestLine(ctx context.Context, line []byte) (*models.VitalReading, error)
}

// RawIngester 已解码报文的入库入口（ingest.Bridge）
type RawIngester interface {
	Ingest(ctx context.Context, raw map[string]any) (*models.VitalReading, error)
}

// Pusher 把已入库读数推给实时监护（scheduler.Scheduler）
type Pusher interface {
	Push(ctx context.Context, reading models.VitalReading) error
}
