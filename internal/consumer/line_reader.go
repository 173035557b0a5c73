package consumer

import (
	"bufio"
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/Danish-Qaunain/Paralysis-Health-Tracker-IoT-Based-Detection-System/internal/metrics"
	"github.com/Danish-Qaunain/Paralysis-Health-Tracker-IoT-Based-Detection-System/internal/models"

	"go.uber.org/zap"
)

// maxLineSize 单行上限，超出的行整行丢弃
const maxLineSize = 64 * 1024

// ReadLines 按行读取设备输出并逐行入库，直到 r 返回 EOF 或 ctx 取消
// 坏行、超长行和入库失败只记录日志，不中断读取
func ReadLines(ctx context.Context, r io.Reader, transport string, ingester LineIngester, logger *zap.Logger) error {
	br := bufio.NewReaderSize(r, maxLineSize)

	for {
		if ctx.Err() != nil {
			return nil
		}

		line, err := br.ReadSlice('\n')
		if errors.Is(err, bufio.ErrBufferFull) {
			dropped := len(line)
			for errors.Is(err, bufio.ErrBufferFull) {
				line, err = br.ReadSlice('\n')
				dropped += len(line)
			}
			metrics.MalformedLines.WithLabelValues(transport).Inc()
			logger.Warn("Dropping oversized line",
				zap.String("transport", transport),
				zap.Int("bytes", dropped),
			)
		} else if len(line) > 0 {
			// line 只在下次读取前有效，ingestLine 同步处理完再继续
			ingestLine(ctx, bytes.TrimSpace(line), transport, ingester, logger)
		}

		if err != nil {
			if errors.Is(err, io.EOF) || ctx.Err() != nil {
				return nil
			}
			return fmt.Errorf("failed to read %s lines: %w", transport, err)
		}
	}
}

func ingestLine(ctx context.Context, line []byte, transport string, ingester LineIngester, logger *zap.Logger) {
	if len(line) == 0 {
		return
	}
	// 串口启动时常有调试输出
	if line[0] != '{' {
		metrics.MalformedLines.WithLabelValues(transport).Inc()
		logger.Debug("Skipping non-JSON line",
			zap.String("transport", transport),
			zap.ByteString("line", line),
		)
		return
	}

	reading, err := ingester.IngestLine(ctx, line)
	if err != nil {
		var verr *models.ValidationError
		if errors.As(err, &verr) {
			metrics.MalformedLines.WithLabelValues(transport).Inc()
			logger.Warn("Dropping malformed line",
				zap.String("transport", transport),
				zap.Strings("fields", verr.Fields),
				zap.Error(err),
			)
			return
		}
		logger.Error("Failed to ingest line",
			zap.String("transport", transport),
			zap.Error(err),
		)
		return
	}
	logger.Info("Reading forwarded",
		zap.String("transport", transport),
		zap.String("patient_id", reading.PatientID),
		zap.String("tier", reading.Tier.String()),
	)
}
