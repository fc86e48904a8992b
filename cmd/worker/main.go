// Package main runs the background job worker (attendance writes, transcript export).
package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/aura-webinar/live/config"
	"github.com/aura-webinar/live/internal/chat"
	"github.com/aura-webinar/live/internal/sessionlog"
	"github.com/aura-webinar/live/internal/worker"
	"github.com/aura-webinar/live/pkg/database"
	"github.com/aura-webinar/live/pkg/queue"
	"github.com/aura-webinar/live/pkg/redis"
	"github.com/aura-webinar/live/pkg/storage"
)

func main() {
	logger := newLogger()
	defer logger.Sync()

	cfg, err := config.Load()
	if err != nil {
		logger.Fatal("load config", zap.Error(err))
	}

	ctx := context.Background()
	pool, err := database.NewPostgresPool(ctx, database.PoolOptions{
		DSN:             cfg.Database.DSN(),
		MaxConns:        int32(cfg.Database.MaxConns),
		ApplicationName: "live-worker/" + cfg.Server.InstanceID,
	}, logger)
	if err != nil {
		logger.Fatal("database", zap.Error(err))
	}
	defer pool.Close()

	rdb, err := redis.NewClient(ctx, redis.Options{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
		PoolSize: cfg.Redis.PoolSize,
		Name:     "live-worker/" + cfg.Server.InstanceID,
	}, logger)
	if err != nil {
		logger.Fatal("redis", zap.Error(err))
	}
	defer rdb.Close()

	// a nil interface, not a nil *storage.S3, disables transcript export
	var uploader worker.Uploader
	s3Cfg := storage.S3Config{
		Region:               cfg.AWS.Region,
		AccessKeyID:          cfg.AWS.AccessKeyID,
		SecretAccessKey:      cfg.AWS.SecretAccessKey,
		TranscriptsBucket:    cfg.AWS.TranscriptsBucket,
		PresignExpireMinutes: cfg.AWS.PresignExpireMinutes,
	}
	if s3Cfg.Enabled() {
		s3Client, err := storage.NewS3(ctx, s3Cfg, logger)
		if err != nil {
			logger.Fatal("s3", zap.Error(err))
		}
		uploader = s3Client
	} else {
		logger.Warn("AWS_S3_TRANSCRIPTS_BUCKET not set, transcript export disabled")
	}

	// only History and Expire are used here
	chatLog := chat.NewChannel(rdb.Client, nil, nil, nil, chat.Config{Retention: cfg.Room.ChatRetention}, logger)
	jobQueue := queue.NewQueue(rdb.Client, logger)
	processor := worker.NewProcessor(sessionlog.NewRepository(pool), chatLog, uploader, jobQueue,
		cfg.Room.ChatRetention, cfg.Room.ChatTTLAfterEnd, logger)

	workerCtx, cancel := context.WithCancel(context.Background())
	defer cancel()

	done := make(chan struct{})
	go func() {
		processor.Run(workerCtx)
		close(done)
	}()
	logger.Info("worker started")

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	cancel()
	select {
	case <-done:
	case <-time.After(queue.PollTimeout + 2*time.Second):
		logger.Warn("worker did not stop in time")
	}
	logger.Info("worker stopped")
}

func newLogger() *zap.Logger {
	config := zap.NewProductionConfig()
	config.EncoderConfig.TimeKey = "timestamp"
	config.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	logger, _ := config.Build()
	return logger
}
