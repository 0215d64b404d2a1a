// Package main runs the recording pipeline HTTP server with graceful shutdown.
package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/pulsecheck-hq/backend/config"
	"github.com/pulsecheck-hq/backend/internal/analyze"
	"github.com/pulsecheck-hq/backend/internal/auth"
	"github.com/pulsecheck-hq/backend/internal/meetings"
	"github.com/pulsecheck-hq/backend/internal/middleware"
	"github.com/pulsecheck-hq/backend/internal/notify"
	"github.com/pulsecheck-hq/backend/internal/recordings"
	"github.com/pulsecheck-hq/backend/internal/transcribe"
	"github.com/pulsecheck-hq/backend/internal/worker"
	"github.com/pulsecheck-hq/backend/pkg/database"
	"github.com/pulsecheck-hq/backend/pkg/queue"
	"github.com/pulsecheck-hq/backend/pkg/redis"
	"github.com/pulsecheck-hq/backend/pkg/response"
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

	if err := database.Migrate(ctx, pool); err != nil {
		logger.Fatal("migrate", zap.Error(err))
	}

	rdb, err := redis.NewClient(ctx, cfg.Redis.Addr, cfg.Redis.Password, cfg.Redis.DB, logger)
	if err != nil {
		logger.Fatal("redis", zap.Error(err))
	}
	defer rdb.Close()

	blobStore, closeStore, err := newBlobStore(ctx, cfg, logger)
	if err != nil {
		logger.Fatal("blob store", zap.Error(err))
	}
	defer closeStore()

	jwtService := auth.NewJWTService(cfg.JWT.Secret, cfg.JWT.ExpireHours)
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

	meetingRepo := meetings.NewRepository(pool)
	recordingRepo := recordings.NewRepository(pool)
	combiner := recordings.NewCombiner(blobStore, recordingRepo, jobQueue, cfg.Pipeline.MinArtifactBytes, logger)
	speechConfigured := sttClient.IsConfigured() && llmClient.IsConfigured()
	recordingHandler := recordings.NewHandler(recordingRepo, meetingRepo, blobStore, combiner, cfg.Pipeline.MaxChunkBytes, speechConfigured, logger)

	processor := worker.NewPipelineProcessor(recordingRepo, meetingRepo, blobStore, sttClient, llmClient, notifier, jobQueue,
		time.Duration(cfg.Pipeline.JobTimeoutMin)*time.Minute, logger)

	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(middleware.CORS(cfg.Server.CORSAllowedOrigins))
	router.Use(middleware.Logger(logger))

	router.GET("/health", func(c *gin.Context) { response.OK(c, gin.H{"status": "ok"}) })

	api := router.Group("")
	api.Use(middleware.JWT(jwtService))
	{
		api.POST("/meetings/:id/recording/session", recordingHandler.StartSession)
		api.POST("/meetings/:id/recording/chunk", recordingHandler.UploadChunk)
		api.POST("/meetings/:id/recording/finalize", recordingHandler.Finalize)
		api.GET("/meetings/:id/recording", recordingHandler.Get)
		api.DELETE("/meetings/:id/recording", middleware.RequireRole("admin"), recordingHandler.Delete)
	}

	srv := &http.Server{
		Addr:         ":" + cfg.Server.Port,
		Handler:      router,
		ReadTimeout:  time.Duration(cfg.Server.ReadTimeout) * time.Second,
		WriteTimeout: time.Duration(cfg.Server.WriteTimeout) * time.Second,
	}

	// In-process pipeline worker; cmd/worker runs the same processor standalone.
	workerCtx, workerCancel := context.WithCancel(context.Background())
	defer workerCancel()
	go processor.Run(workerCtx)
	logger.Info("pipeline worker started")

	go func() {
		logger.Info("server listening", zap.String("port", cfg.Server.Port))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("server", zap.Error(err))
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	workerCancel()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("server shutdown", zap.Error(err))
	}
	logger.Info("server stopped")
}

// newBlobStore selects the blob store backend once per process.
func newBlobStore(ctx context.Context, cfg *config.Config, logger *zap.Logger) (storage.BlobStore, func(), error) {
	if cfg.Storage.Backend == "s3" && cfg.AWS.RecordingsBucket != "" {
		s3Store, err := storage.NewS3Store(ctx, storage.S3Config{
			Region:          cfg.AWS.Region,
			AccessKeyID:     cfg.AWS.AccessKeyID,
			SecretAccessKey: cfg.AWS.SecretAccessKey,
			Bucket:          cfg.AWS.RecordingsBucket,
		}, logger)
		if err != nil {
			return nil, nil, err
		}
		return s3Store, func() {}, nil
	}
	logger.Warn("S3 not configured, using local blob store", zap.String("dir", cfg.Storage.DataDir))
	local, err := storage.NewLocalStore(cfg.Storage.DataDir, logger)
	if err != nil {
		return nil, nil, err
	}
	return local, func() { _ = local.Close() }, nil
}

func newLogger() *zap.Logger {
	config := zap.NewProductionConfig()
	config.EncoderConfig.TimeKey = "timestamp"
	config.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	logger, _ := config.Build()
	return logger
}
