package consumer

import (
	"context"
	"fmt"
	"io"
	"time"

	"github.com/Danish-Qaunain/Paralysis-Health-Tracker-IoT-Based-Detection-System/common/config"

	"go.bug.st/serial"
	"go.uber.org/zap"
)

// PortOpener 打开串口
type PortOpener func(name string, baudRate int) (io.ReadCloser, error)

// OpenSerialPort 以 8N1 打开真实串口
func OpenSerialPort(name string, baudRate int) (io.ReadCloser, error) {
	port, err := serial.Open(name, &serial.Mode{
		BaudRate: baudRate,
		DataBits: 8,
		Parity:   serial.NoParity,
		StopBits: serial.OneStopBit,
	})
	if err != nil {
		return nil, err
	}
	return port, nil
}

// SerialConsumer 串口设备消费者（Arduino 每行输出一条 JSON 读数）
type SerialConsumer struct {
	config   *config.SerialConfig
	ingester LineIngester
	open     PortOpener
	logger   *zap.Logger
}

// NewSerialConsumer 创建串口消费者
func NewSerialConsumer(cfg *config.SerialConfig, ingester LineIngester, open PortOpener, logger *zap.Logger) *SerialConsumer {
	if open == nil {
		open = OpenSerialPort
	}
	return &SerialConsumer{
		config:   cfg,
		ingester: ingester,
		open:     open,
		logger:   logger,
	}
}

// Start 读取串口直到 ctx 取消；端口断开后按指数退避重新打开
func (c *SerialConsumer) Start(ctx context.Context) error {
	c.logger.Info("Serial consumer started",
		zap.String("port", c.config.Port),
		zap.Int("baud_rate", c.config.BaudRate),
	)

	backoffDuration := time.Second
	maxBackoff := 30 * time.Second

	for {
		err := c.readPort(ctx)
		if ctx.Err() != nil {
			c.logger.Info("Serial consumer stopped")
			return nil
		}
		if err != nil {
			c.logger.Error("Serial port failed",
				zap.String("port", c.config.Port),
				zap.Duration("backoff", backoffDuration),
				zap.Error(err),
			)
		} else {
			c.logger.Warn("Serial port closed", zap.String("port", c.config.Port))
		}

		select {
		case <-ctx.Done():
			c.logger.Info("Serial consumer stopped")
			return nil
		case <-time.After(backoffDuration):
			backoffDuration *= 2
			if backoffDuration > maxBackoff {
				backoffDuration = maxBackoff
			}
		}
	}
}

func (c *SerialConsumer) readPort(ctx context.Context) error {
	port, err := c.open(c.config.Port, c.config.BaudRate)
	if err != nil {
		return fmt.Errorf("failed to open serial port %s: %w", c.config.Port, err)
	}

	// Read 不支持 ctx，取消时关闭端口让 Read 返回
	done := make(chan struct{})
	defer close(done)
	go func() {
		select {
		case <-ctx.Done():
		case <-done:
		}
		port.Close()
	}()

	return ReadLines(ctx, port, "serial", c.ingester, c.logger)
}
