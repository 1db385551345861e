package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/amillerrr/courtside/internal/api"
	"github.com/amillerrr/courtside/internal/auth"
	"github.com/amillerrr/courtside/internal/config"
	"github.com/amillerrr/courtside/internal/events"
	"github.com/amillerrr/courtside/internal/health"
	"github.com/amillerrr/courtside/internal/logger"
	"github.com/amillerrr/courtside/internal/media"
	"github.com/amillerrr/courtside/internal/observability"
	"github.com/amillerrr/courtside/internal/storage"
	"github.com/amillerrr/courtside/internal/upload"
)

const (
	ServiceName           = "courtside-api"
	ShutdownTimeout       = 30 * time.Second
	TracerShutdownTimeout = 5 * time.Second
	AWSConfigTimeout      = 10 * time.Second
	ProgressRetention     = 10 * time.Minute
)

func main() {
	// Initialize logger
	log := logger.New()
	slog.SetDefault(log)

	// Load .env file if present
	if err := godotenv.Load(); err != nil {
		log.Info("No .env file found, using system environment variables")
	}

	// Load configuration
	cfg, err := config.LoadAPI()
	if err != nil {
		log.Error("Failed to load configuration", "error", err)
		os.Exit(1)
	}

	// Initialize tracer
	shutdownTracer, err := observability.InitTracer(context.Background(), ServiceName, cfg)
	if err != nil {
		log.Error("Failed to initialize tracer", "error", err)
		os.Exit(1)
	}
	defer func() {
		ctx, cancel := context.WithTimeout(context.Background(), TracerShutdownTimeout)
		defer cancel()
		if err := shutdownTracer(ctx); err != nil {
			log.Error("Failed to shutdown tracer", "error", err)
		}
	}()

	// Initialize AWS clients
	ctx, cancel := context.WithTimeout(context.Background(), AWSConfigTimeout)
	defer cancel()

	awsCfg, err := storage.LoadAWSConfig(ctx, cfg)
	if err != nil {
		log.Error("Failed to load AWS config", "error", err)
		os.Exit(1)
	}

	dynamoClient := storage.NewDynamoDBClientFromAWSConfig(awsCfg, cfg)
	repo, err := storage.NewRepository(dynamoClient, cfg.AWS.DynamoDBTable)
	if err != nil {
		log.Error("Failed to initialize repository", "error", err)
		os.Exit(1)
	}
	log.Info("DynamoDB repository initialized", "table", cfg.AWS.DynamoDBTable)

	objects, err := storage.NewObjectStore(awsCfg, cfg)
	if err != nil {
		log.Error("Failed to initialize object storage", "error", err)
		os.Exit(1)
	}
	log.Info("Object storage initialized", "backend", cfg.Storage.Backend, "bucket", cfg.AWS.VideoBucket)

	// Events are optional
	var notifier upload.Notifier
	sqsClient := events.NewSQSClient(awsCfg, cfg.AWS.Endpoint)
	if cfg.AWS.EventsQueueURL != "" {
		publisher, err := events.NewPublisher(sqsClient, cfg.AWS.EventsQueueURL, log)
		if err != nil {
			log.Error("Failed to create event publisher", "error", err)
			os.Exit(1)
		}
		notifier = publisher
	}

	// Upload pipeline
	validator := upload.NewValidator(cfg.Upload.MaxFileSizeBytes)
	registry := upload.NewRegistry(ProgressRetention)
	extractor := media.NewExtractor(media.Config{
		FFmpegPath:       cfg.Upload.FFmpegPath,
		FFprobePath:      cfg.Upload.FFprobePath,
		ThumbnailQuality: cfg.Upload.ThumbnailQuality,
		Logger:           log,
	})
	coordinator, err := upload.NewCoordinator(upload.CoordinatorConfig{
		Store:     repo,
		Objects:   objects,
		Extractor: extractor,
		Validator: validator,
		Notifier:  notifier,
		Registry:  registry,
		Timeout:   cfg.Upload.PipelineTimeout,
		Logger:    log,
	})
	if err != nil {
		log.Error("Failed to create upload coordinator", "error", err)
		os.Exit(1)
	}

	// Initialize JWT service
	jwtSecret, err := cfg.GetJWTSecret()
	if err != nil {
		log.Error("Failed to get JWT secret", "error", err)
		os.Exit(1)
	}
	jwtService, err := auth.NewJWTService(jwtSecret)
	if err != nil {
		log.Error("Failed to create JWT service", "error", err)
		os.Exit(1)
	}

	// Initialize rate limiter
	rateLimiter := auth.NewRateLimiter(auth.DefaultRateLimiterConfig())

	// Initialize health checker
	healthConfig := health.DefaultConfig(ServiceName, log)
	healthConfig.Storage = objects
	healthConfig.DynamoDBClient = dynamoClient
	healthConfig.DynamoDBTable = cfg.AWS.DynamoDBTable
	healthConfig.SQSClient = sqsClient
	healthConfig.SQSQueueURL = cfg.AWS.EventsQueueURL
	healthChecker := health.NewChecker(healthConfig)

	// Create and start server
	server, err := api.NewServer(&api.ServerConfig{
		Config:        cfg,
		Logger:        log,
		Store:         repo,
		Uploader:      coordinator,
		Progress:      registry,
		Playback:      objects,
		Validator:     validator,
		Spooler:       upload.NewSpooler(cfg.Upload.SpoolDir, log),
		JWTService:    jwtService,
		RateLimiter:   rateLimiter,
		HealthChecker: healthChecker,
	})
	if err != nil {
		log.Error("Failed to create server", "error", err)
		os.Exit(1)
	}

	// Start server in goroutine
	go func() {
		if err := server.Start(); err != nil {
			log.Error("Server error", "error", err)
		}
	}()

	// Wait for shutdown signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, os.Interrupt, syscall.SIGTERM)
	<-quit

	// Graceful shutdown
	ctx, cancel = context.WithTimeout(context.Background(), ShutdownTimeout)
	defer cancel()

	if err := server.Shutdown(ctx); err != nil {
		log.Error("Server forced to shutdown", "error", err)
	}

	log.Info("Server shutdown complete")
}
