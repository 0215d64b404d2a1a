// Package main runs the standalone pipeline worker (transcription + analysis jobs).
package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/pulsecheck-hq/backend/config"
	"github.com/pulsecheck-hq/backend/internal/analyze"
	"github.com/pulsecheck-hq/backend/internal/meetings"
	"github.com/pulsecheck-hq/backend/internal/notify"
	"github.com/pulsecheck-hq/backend/internal/recordings"
	"github.com/pulsecheck-hq/backend/internal/transcribe"
	"github.com/pulsecheck-hq/backend/internal/worker"
	"github.com/pulsecheck-hq/backend/pkg/database"
	"github.com/pulsecheck-hq/backend/pkg/queue"
	"github.com/pulsecheck-hq/backend/pkg/redis"
	"github.com/pulsecheck-hq/backend/pkg/storage"
)

func main() {
	logger := newLogger()
	defer logger.Sync()

	cfg, err := config.Load()
	if err != nil {
		logger.Fatal("load config", zap.Error(err))
	}

	ctx := context.Background()
	pool, err := database.NewPostgresPool(ctx, cfg.Database.DSN(), logger)
	if err != nil {
		logger.Fatal("database", zap.Error(err))
	}
	defer pool.Close()

	rdb, err := redis.NewClient(ctx, cfg.Redis.Addr, cfg.Redis.Password, cfg.Redis.DB, logger)
	if err != nil {
		logger.Fatal("redis", zap.Error(err))
	}
	defer rdb.Close()

	var blobStore storage.BlobStore
	if cfg.Storage.Backend == "s3" && cfg.AWS.RecordingsBucket != "" {
		blobStore, err = storage.NewS3Store(ctx, storage.S3Config{
			Region:          cfg.AWS.Region,
			AccessKeyID:     cfg.AWS.AccessKeyID,
			SecretAccessKey: cfg.AWS.SecretAccessKey,
			Bucket:          cfg.AWS.RecordingsBucket,
		}, logger)
		if err != nil {
			logger.Fatal("s3 store", zap.Error(err))
		}
	} else {
		local, err := storage.NewLocalStore(cfg.Storage.DataDir, logger)
		if err != nil {
			logger.Fatal("local store", zap.Error(err))
		}
		defer local.Close()
		blobStore = local
	}

	jobQueue := queue.NewQueue(rdb.Client, logger)
	sttClient := transcribe.NewClient(transcribe.Config{
		APIKey:  cfg.Speech.APIKey,
		BaseURL: cfg.Speech.BaseURL,
		Model:   cfg.Speech.TranscriptionModel,
	}, logger)
	llmClient := analyze.NewClient(analyze.Config{
		APIKey:  cfg.Speech.APIKey,
		BaseURL: cfg.Speech.BaseURL,
		Model:   cfg.Speech.AnalysisModel,
	}, logger)
	notifier := notify.NewQueueNotifier(jobQueue, logger)

	processor := worker.NewPipelineProcessor(
		recordings.NewRepository(pool),
		meetings.NewRepository(pool),
		blobStore, sttClient, llmClient, notifier, jobQueue,
		time.Duration(cfg.Pipeline.JobTimeoutMin)*time.Minute, logger)

	runCtx, cancel := context.WithCancel(context.Background())
	go processor.Run(runCtx)
	logger.Info("pipeline worker running")

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	cancel()
	logger.Info("worker stopped")
}

func newLogger() *zap.Logger {
	config := zap.NewProductionConfig()
	config.EncoderConfig.TimeKey = "timestamp"
	config.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	logger, _ := config.Build()
	return logger
}
