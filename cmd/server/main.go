package main

import (
	"context"
	"log"
	"math/rand"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/contrib/websocket"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/hibiken/asynq"
	"github.com/joho/godotenv"
	"github.com/redis/go-redis/v9"

	"github.com/stemsplit/api/internal/config"
	"github.com/stemsplit/api/internal/engine"
	execpkg "github.com/stemsplit/api/internal/exec"
	"github.com/stemsplit/api/internal/handler"
	"github.com/stemsplit/api/internal/model"
	"github.com/stemsplit/api/internal/repository"
	"github.com/stemsplit/api/internal/service"
	"github.com/stemsplit/api/internal/storage"
	"github.com/stemsplit/api/internal/worker"
	ws "github.com/stemsplit/api/internal/websocket"
)

func main() {
	// Load .env if present
	_ = godotenv.Load()

	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	// Initialize Redis client
	redisClient := redis.NewClient(&redis.Options{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})

	// Test Redis connection
	ctx := context.Background()
	if err := redisClient.Ping(ctx).Err(); err != nil {
		log.Printf("Warning: Redis not available: %v", err)
	}

	// Initialize Asynq client
	asynqClient := asynq.NewClient(asynq.RedisClientOpt{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})
	defer asynqClient.Close()

	// Initialize validator
	validate := validator.New()

	// Initialize storage backend
	store, err := newStore(cfg)
	if err != nil {
		log.Fatalf("Failed to initialize storage: %v", err)
	}

	// Initialize processing strategies
	runner := execpkg.NewRunner(cfg.Engine.PythonPath, cfg.Engine.ScriptsDir)
	registry := engine.NewRegistry()
	registry.Register(model.JobTypeStemSeparation, engine.NewStemSeparator(runner, cfg.Engine.StemFormat))
	registry.Register(model.JobTypeMidiConversion, engine.NewMidiTranscriber(runner))

	// Initialize WebSocket hub
	hub := ws.NewHub()
	go hub.Run()

	// Initialize repositories
	jobRepo := repository.NewRedisJobRepository(redisClient)
	audioRepo := repository.NewRedisAudioRepository(redisClient)

	// Initialize services
	jobService := service.NewJobService(jobRepo, audioRepo, asynqClient, cfg.Worker)
	audioService := service.NewAudioService(audioRepo, store)

	// Initialize handlers
	jobHandler := handler.NewJobHandler(jobService, validate)
	audioHandler := handler.NewAudioHandler(audioService, validate, cfg.Upload.MaxSizeMB)
	healthHandler := handler.NewHealthHandler(redisClient)

	// Initialize Fiber app
	app := fiber.New(fiber.Config{
		ErrorHandler: customErrorHandler,
		BodyLimit:    (cfg.Upload.MaxSizeMB + 1) * 1024 * 1024,
	})

	// Global middleware
	app.Use(recover.New())
	app.Use(logger.New(logger.Config{
		Format: "[${time}] ${status} - ${latency} ${method} ${path}\n",
	}))
	app.Use(cors.New(cors.Config{
		AllowOrigins: "*",
		AllowMethods: "GET,POST,PUT,DELETE,OPTIONS",
		AllowHeaders: "Origin,Content-Type,Accept,Authorization",
	}))

	// Health check
	app.Get("/health", healthHandler.Check)

	// API routes
	api := app.Group("/api")

	api.Post("/audio", audioHandler.Upload)
	api.Post("/jobs", jobHandler.Create)
	api.Get("/jobs/:jobId", jobHandler.Get)

	// WebSocket routes
	app.Use("/ws", func(c *fiber.Ctx) error {
		if websocket.IsWebSocketUpgrade(c) {
			return c.Next()
		}
		return fiber.ErrUpgradeRequired
	})

	app.Get("/ws/jobs/:jobId", websocket.New(func(c *websocket.Conn) {
		jobID := c.Params("jobId")
		hub.HandleConnection(c, jobID)
	}))

	// Start Asynq worker server
	jobRunner := worker.NewJobRunner(jobRepo, audioRepo, store, registry, hub)
	audioWorker := worker.NewAudioWorker(jobRunner, jobRepo, hub, cfg.Worker.SoftTimeout)
	go startWorkerServer(cfg, audioWorker)

	// Graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		<-quit
		log.Println("Shutting down server...")
		if err := app.ShutdownWithTimeout(10 * time.Second); err != nil {
			log.Printf("Server shutdown error: %v", err)
		}
	}()

	// Start server
	addr := ":" + cfg.Server.Port
	log.Printf("Server starting on %s", addr)
	if err := app.Listen(addr); err != nil {
		log.Fatalf("Server error: %v", err)
	}
}

func newStore(cfg *config.Config) (storage.Store, error) {
	if cfg.Storage.Backend == "s3" {
		return storage.NewS3Store(&cfg.Storage.S3)
	}
	return storage.NewLocalStore(cfg.Storage.Root)
}

func startWorkerServer(cfg *config.Config, audioWorker *worker.AudioWorker) {
	srv := asynq.NewServer(
		asynq.RedisClientOpt{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		},
		asynq.Config{
			Concurrency: cfg.Worker.Concurrency,
			Queues: map[string]int{
				cfg.Worker.Queue: 10,
			},
			RetryDelayFunc: backoffDelay(cfg.Worker.BackoffBase, cfg.Worker.BackoffMax),
			ErrorHandler: asynq.ErrorHandlerFunc(func(ctx context.Context, task *asynq.Task, err error) {
				log.Printf("Task %s failed: %v", task.Type(), err)
			}),
		},
	)

	if err := srv.Run(audioWorker.Mux()); err != nil {
		log.Printf("Asynq worker error: %v", err)
	}
}

// backoffDelay grows exponentially from base, capped at max, with jitter
func backoffDelay(base, max time.Duration) asynq.RetryDelayFunc {
	return func(n int, err error, task *asynq.Task) time.Duration {
		delay := base << uint(n)
		if delay > max || delay <= 0 {
			delay = max
		}
		jitter := time.Duration(rand.Int63n(int64(base)))
		return delay + jitter
	}
}

func customErrorHandler(c *fiber.Ctx, err error) error {
	code := fiber.StatusInternalServerError
	message := "Internal Server Error"

	if e, ok := err.(*fiber.Error); ok {
		code = e.Code
		message = e.Message
	}

	return c.Status(code).JSON(fiber.Map{
		"error": fiber.Map{
			"code":    "SERVICE_ERROR",
			"message": message,
		},
	})
}
