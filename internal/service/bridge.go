package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/Danish-Qaunain/Paralysis-Health-Tracker-IoT-Based-Detection-System/internal/config"
	"github.com/Danish-Qaunain/Paralysis-Health-Tracker-IoT-Based-Detection-System/internal/consumer"
	"github.com/Danish-Qaunain/Paralysis-Health-Tracker-IoT-Based-Detection-System/internal/evaluator"
	"github.com/Danish-Qaunain/Paralysis-Health-Tracker-IoT-Based-Detection-System/internal/ingest"
	"github.com/Danish-Qaunain/Paralysis-Health-Tracker-IoT-Based-Detection-System/internal/repository"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// BridgeService 设备采集桥：串口/MQTT 读数校验后写入存储
type BridgeService struct {
	config   *config.Config
	logger   *zap.Logger
	bridge   *ingest.Bridge
	consumer component
	mqtt     *consumer.MQTTConsumer
	server   *http.Server
	own      closers
}

// NewBridgeService 创建采集桥服务
func NewBridgeService(ctx context.Context, cfg *config.Config, infra Infra, logger *zap.Logger) (*BridgeService, error) {
	s := &BridgeService{config: cfg, logger: logger}
	if err := s.build(ctx, &infra); err != nil {
		s.own.close(logger)
		return nil, err
	}
	return s, nil
}

func (s *BridgeService) build(ctx context.Context, infra *Infra) error {
	cfg := s.config

	thresholds, err := evaluator.ThresholdsByName(cfg.Alerts.ThresholdProfile)
	if err != nil {
		return err
	}

	var sink ingest.Sink
	switch cfg.Bridge.Sink {
	case config.SinkPostgres:
		db, err := infra.postgres(ctx, &cfg.Database, &s.own)
		if err != nil {
			return err
		}
		repo := repository.NewHealthDataRepository(db, s.logger)
		if err := repo.EnsureSchema(ctx); err != nil {
			return err
		}
		sink = repo
	case config.SinkSupabase:
		sink = repository.NewSupabaseRepository(&cfg.Supabase, s.logger)
	}

	if cfg.Bridge.Sink == config.SinkStream || cfg.Bridge.PublishStream {
		client, err := infra.redisClient(ctx, &cfg.Redis, &s.own)
		if err != nil {
			return err
		}
		streamSink := repository.NewStreamSink(client, cfg.Stream.Name, cfg.Stream.MaxLen)
		if sink == nil {
			sink = streamSink
		} else {
			sink = repository.NewFanoutSink(sink, s.logger, streamSink)
		}
	}

	s.bridge = ingest.NewBridge(ingest.Options{
		DefaultPatientID: cfg.Bridge.PatientID,
		RequireActivity:  cfg.Bridge.RequireActivity,
	}, evaluator.NewClassifier(thresholds), sink, s.logger)

	switch cfg.Bridge.Transport {
	case config.TransportSerial:
		if cfg.Serial.Port == "" {
			return errors.New("SERIAL_PORT is required for serial transport")
		}
		s.consumer = consumer.NewSerialConsumer(&cfg.Serial, s.bridge, infra.Serial, s.logger)
	case config.TransportMQTT:
		client, err := infra.mqttClient(&cfg.MQTT, s.logger, &s.own)
		if err != nil {
			return err
		}
		s.mqtt = consumer.NewMQTTConsumer(client, cfg.Bridge.VitalsTopic, cfg.MQTT.QoS, s.bridge, nil, s.logger)
		s.consumer = s.mqtt
	default:
		return fmt.Errorf("unsupported transport %q", cfg.Bridge.Transport)
	}

	router := mux.NewRouter()
	router.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]string{
			"status":    "ok",
			"transport": cfg.Bridge.Transport,
			"sink":      cfg.Bridge.Sink,
		})
	}).Methods(http.MethodGet)
	router.Handle("/metrics", promhttp.Handler())

	s.server = &http.Server{
		Addr:              cfg.HTTP.Addr,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}
	return nil
}

// Bridge 返回入库桥
func (s *BridgeService) Bridge() *ingest.Bridge {
	return s.bridge
}

// Handler 返回健康检查与指标路由
func (s *BridgeService) Handler() http.Handler {
	return s.server.Handler
}

// Start 启动设备消费者和指标服务，阻塞直到 ctx 取消
func (s *BridgeService) Start(ctx context.Context) error {
	s.logger.Info("Starting bridge service",
		zap.String("transport", s.config.Bridge.Transport),
		zap.String("sink", s.config.Bridge.Sink),
		zap.Bool("publish_stream", s.config.Bridge.PublishStream),
	)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return s.consumer.Start(gctx) })
	g.Go(func() error {
		if err := s.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http server failed: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return s.server.Shutdown(shutdownCtx)
	})
	return g.Wait()
}

// Stop 停止服务
func (s *BridgeService) Stop() {
	s.logger.Info("Stopping bridge service")
	if s.mqtt != nil {
		s.mqtt.Stop()
	}
	s.own.close(s.logger)
	s.logger.Info("Bridge service stopped")
}
