package service

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/Danish-Qaunain/Paralysis-Health-Tracker-IoT-Based-Detection-System/internal/config"
	"github.com/Danish-Qaunain/Paralysis-Health-Tracker-IoT-Based-Detection-System/internal/consumer"
	"github.com/Danish-Qaunain/Paralysis-Health-Tracker-IoT-Based-Detection-System/internal/evaluator"
	"github.com/Danish-Qaunain/Paralysis-Health-Tracker-IoT-Based-Detection-System/internal/generator"
	httpapi "github.com/Danish-Qaunain/Paralysis-Health-Tracker-IoT-Based-Detection-System/internal/http"
	"github.com/Danish-Qaunain/Paralysis-Health-Tracker-IoT-Based-Detection-System/internal/ingest"
	"github.com/Danish-Qaunain/Paralysis-Health-Tracker-IoT-Based-Detection-System/internal/notifier"
	"github.com/Danish-Qaunain/Paralysis-Health-Tracker-IoT-Based-Detection-System/internal/repository"
	"github.com/Danish-Qaunain/Paralysis-Health-Tracker-IoT-Based-Detection-System/internal/scheduler"
	"github.com/Danish-Qaunain/Paralysis-Health-Tracker-IoT-Based-Detection-System/internal/window"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// component 随服务启动的后台组件
type component interface {
	Start(ctx context.Context) error
}

// MonitorService 实时监护服务：调度器 + 读数回路 + 告警通知 + HTTP API
type MonitorService struct {
	config     *config.Config
	logger     *zap.Logger
	scheduler  *scheduler.Scheduler
	handler    http.Handler
	server     *http.Server
	components []component
	own        closers
}

// NewMonitorService 创建监护服务，按配置建立外部连接
func NewMonitorService(ctx context.Context, cfg *config.Config, infra Infra, logger *zap.Logger) (*MonitorService, error) {
	s := &MonitorService{config: cfg, logger: logger}
	if err := s.build(ctx, &infra); err != nil {
		s.own.close(logger)
		return nil, err
	}
	return s, nil
}

func (s *MonitorService) build(ctx context.Context, infra *Infra) error {
	cfg := s.config

	thresholds, err := evaluator.ThresholdsByName(cfg.Alerts.ThresholdProfile)
	if err != nil {
		return err
	}
	classifier := evaluator.NewClassifier(thresholds)

	gen := newGenerator(cfg)
	walker := generator.NewWalker(gen, generator.WalkOptions{
		MaxStep: cfg.Simulation.WalkMaxStep,
		Clamp:   cfg.Simulation.WalkClamp,
		Limits:  generator.PhysiologicalLimits,
	})

	// 存储：模拟读数持久化 + 历史查询 + 设备模式初始窗口
	var (
		sink    ingest.Sink = discardSink{}
		history httpapi.History
		source  scheduler.Source
	)
	switch cfg.Monitor.Sink {
	case config.SinkPostgres:
		db, err := infra.postgres(ctx, &cfg.Database, &s.own)
		if err != nil {
			return err
		}
		repo := repository.NewHealthDataRepository(db, s.logger)
		if err := repo.EnsureSchema(ctx); err != nil {
			return err
		}
		sink, history, source = repo, repo, repo
	case config.SinkSupabase:
		repo := repository.NewSupabaseRepository(&cfg.Supabase, s.logger)
		sink, history, source = repo, repo, repo
	}

	deps := scheduler.Deps{
		Store:      window.NewStore(cfg.Monitor.WindowCapacity),
		Generator:  gen,
		Walker:     walker,
		Classifier: classifier,
		Hub:        scheduler.NewHub(cfg.Monitor.SubscriberBuffer, s.logger),
		Source:     source,
	}
	if cfg.Monitor.Sink != config.SinkNone {
		deps.Sink = sink
	}

	if cfg.Monitor.Mirror.Enabled || cfg.Monitor.Feed == "stream" {
		client, err := infra.redisClient(ctx, &cfg.Redis, &s.own)
		if err != nil {
			return err
		}
		if cfg.Monitor.Mirror.Enabled {
			deps.Mirror = window.NewCacheMirror(window.NewRedisSnapshots(client, cfg.Monitor.Mirror.KeyPrefix), cfg.Monitor.Mirror.TTL, s.logger)
		}
	}

	s.scheduler = scheduler.NewScheduler(scheduler.Options{
		TickInterval:     cfg.Monitor.TickInterval,
		StaleAfter:       cfg.Monitor.StaleAfter,
		PersistSimulated: cfg.Monitor.PersistSimulated,
		StopWhenIdle:     cfg.Monitor.StopWhenIdle,
	}, deps, s.logger)

	// 设备读数回路
	pushIngested := false
	ingestSink := sink
	switch cfg.Monitor.Feed {
	case "stream":
		streamSink := repository.NewStreamSink(infra.Redis, cfg.Stream.Name, cfg.Stream.MaxLen)
		if cfg.Monitor.Sink == config.SinkNone {
			ingestSink = streamSink
		} else {
			ingestSink = repository.NewFanoutSink(sink, s.logger, streamSink)
		}
		s.components = append(s.components, consumer.NewStreamConsumer(consumer.StreamConfig{
			Stream:        cfg.Stream.Name,
			ConsumerGroup: cfg.Stream.ConsumerGroup,
			ConsumerName:  cfg.Stream.ConsumerName,
		}, infra.Redis, s.scheduler, s.logger))
	case "postgres":
		listener := infra.Listener
		if listener == nil {
			l, err := repository.NewNotifyListener(cfg.Database.GetDSN(), s.logger)
			if err != nil {
				return err
			}
			s.own.listener = l
			listener = l
		}
		s.components = append(s.components, consumer.NewNotifyConsumer(listener, s.scheduler, s.logger))
		// 只有写入 Postgres 的读数才会经 NOTIFY 回来
		pushIngested = cfg.Monitor.Sink != config.SinkPostgres
	default:
		pushIngested = true
	}

	if cfg.Alerts.Notify {
		client, err := infra.mqttClient(&cfg.MQTT, s.logger, &s.own)
		if err != nil {
			return err
		}
		s.components = append(s.components, notifier.NewAlertNotifier(s.scheduler.Hub(), client, cfg.Alerts.TopicPrefix, cfg.MQTT.QoS, s.logger))
	}

	bridge := ingest.NewBridge(ingest.Options{RequireActivity: cfg.Bridge.RequireActivity}, classifier, ingestSink, s.logger)
	handler := httpapi.NewHandler(httpapi.Options{
		PushIngested:    pushIngested,
		AutoStartStream: true,
	}, bridge, s.scheduler, history, classifier, s.logger)
	s.handler = httpapi.NewRouter(handler, s.logger)

	s.server = &http.Server{
		Addr:              cfg.HTTP.Addr,
		Handler:           s.handler,
		ReadHeaderTimeout: 10 * time.Second,
	}
	return nil
}

// Handler 返回 HTTP 路由
func (s *MonitorService) Handler() http.Handler {
	return s.handler
}

// Scheduler 返回调度器
func (s *MonitorService) Scheduler() *scheduler.Scheduler {
	return s.scheduler
}

// Start 启动全部组件和 HTTP 服务，阻塞直到 ctx 取消或任一组件失败
func (s *MonitorService) Start(ctx context.Context) error {
	s.logger.Info("Starting monitor service components",
		zap.String("http_addr", s.config.HTTP.Addr),
		zap.String("sink", s.config.Monitor.Sink),
		zap.String("feed", s.config.Monitor.Feed),
		zap.Int("components", len(s.components)),
	)

	g, gctx := errgroup.WithContext(ctx)
	for _, c := range s.components {
		c := c
		g.Go(func() error { return c.Start(gctx) })
	}

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

// Stop 停止监测并释放连接
func (s *MonitorService) Stop() {
	s.logger.Info("Stopping monitor service")
	if s.scheduler != nil {
		s.scheduler.Close()
	}
	s.own.close(s.logger)
	s.logger.Info("Monitor service stopped")
}

func newGenerator(cfg *config.Config) *generator.Generator {
	opts := generator.Options{
		Sensor:               generator.SensorKind(cfg.Simulation.Sensor),
		ExcursionProbability: cfg.Simulation.ExcursionProbability,
		FoodProbability:      cfg.Simulation.FoodProbability,
		WaterProbability:     cfg.Simulation.WaterProbability,
		RestroomProbability:  cfg.Simulation.RestroomProbability,
		FallProbability:      cfg.Simulation.FallProbability,
		LeadOffProbability:   cfg.Simulation.LeadOffProbability,
	}
	if cfg.Simulation.Seed != 0 {
		return generator.NewSeededGenerator(opts, cfg.Simulation.Seed)
	}
	return generator.NewGenerator(opts, nil)
}
