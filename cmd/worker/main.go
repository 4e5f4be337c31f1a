package main

import (
	"context"
	"log"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"faceattend/internal/config"
	"faceattend/internal/enrollment"
	"faceattend/internal/logger"
	"faceattend/internal/queue"
	"faceattend/internal/recognition"
	"faceattend/internal/store"
)

// Worker consumes retrain jobs from Redis and runs the trainer, one run per
// burst of enrollments.
func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}
	logr, err := logger.New(cfg)
	if err != nil {
		log.Fatalf("failed to init logger: %v", err)
	}
	defer logr.Sync() //nolint:errcheck

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	rdb := store.NewRedis(cfg.RedisAddr)
	defer rdb.Close()
	if !rdb.Healthy(ctx) {
		logr.Warn("redis not reachable at startup, consumer will keep retrying", zap.String("addr", cfg.RedisAddr))
	}

	gateway := recognition.NewGateway(
		recognition.Candidates(cfg.Gateway),
		recognition.NewSampleStore(cfg.Gateway.FaceDataDir),
		recognition.Options{Timeout: cfg.Gateway.Timeout, Logger: logr.Named("gateway")},
	)

	jobs := queue.NewRedisQueue(rdb.Client, enrollment.RetrainQueueKey, logr.Named("queue"))
	worker := enrollment.NewWorker(gateway, logr.Named("retrain"), 2*time.Second)
	if err := worker.Run(ctx, jobs); err != nil {
		logr.Fatal("worker failed", zap.Error(err))
	}
}
