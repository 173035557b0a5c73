package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/Danish-Qaunain/Paralysis-Health-Tracker-IoT-Based-Detection-System/common/logger"
	"github.com/Danish-Qaunain/Paralysis-Health-Tracker-IoT-Based-Detection-System/internal/config"
	"github.com/Danish-Qaunain/Paralysis-Health-Tracker-IoT-Based-Detection-System/internal/service"

	"go.uber.org/zap"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		panic(fmt.Sprintf("Failed to load config: %v", err))
	}

	log, err := logger.NewLogger(cfg.Log.Level, cfg.Log.Format, "neurohealth-bridge")
	if err != nil {
		panic(fmt.Sprintf("Failed to init logger: %v", err))
	}
	defer log.Sync()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	bridgeService, err := service.NewBridgeService(ctx, cfg, service.Infra{}, log)
	if err != nil {
		log.Fatal("Failed to create bridge service", zap.Error(err))
	}
	defer bridgeService.Stop()

	serviceErrChan := make(chan error, 1)
	go func() {
		if err := bridgeService.Start(ctx); err != nil {
			serviceErrChan <- err
		}
	}()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-sigChan:
		log.Info("Received signal, shutting down", zap.String("signal", sig.String()))
		cancel()
	case err := <-serviceErrChan:
		log.Error("Service error", zap.Error(err))
		cancel()
	}
}
