package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"

	_ "github.com/sercop/facilitador-api/docs" // Swagger docs (generated)
	"github.com/sercop/facilitador-api/internal/auth"
	"github.com/sercop/facilitador-api/internal/config"
	"github.com/sercop/facilitador-api/internal/database"
	"github.com/sercop/facilitador-api/internal/email"
	httpServer "github.com/sercop/facilitador-api/internal/http"
	"github.com/sercop/facilitador-api/internal/logging"
	"github.com/sercop/facilitador-api/internal/ratelimit"
	"github.com/sercop/facilitador-api/internal/user"
)

// @title           SERCOP Facilitador API
// @version         1.0
// @description     Authentication and session core of the SERCOP facilitator portal.

// @contact.name   API Support
// @contact.email  soporte@sercop.gob.ec

// @host      localhost:8080
// @BasePath  /

// @securityDefinitions.apikey BearerAuth
// @in header
// @name Authorization
// @description Type "Bearer" followed by a space and the session token.

func main() {
	if err := run(); err != nil {
		log.Fatalf("Application error: %v", err)
	}
}

func run() error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	logger := logging.NewLogger(cfg.Server.IsDevelopment())
	logger.Info("starting application",
		"env", cfg.Server.Env,
		"port", cfg.Server.Port,
	)

	startupCtx, cancelStartup := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancelStartup()

	db, err := database.Open(startupCtx, cfg.Database)
	if err != nil {
		return fmt.Errorf("failed to initialize database: %w", err)
	}
	defer db.Close()

	if err := database.Migrate(startupCtx, db.DB); err != nil {
		return fmt.Errorf("failed to migrate database: %w", err)
	}

	redisClient, err := initRedis(startupCtx, cfg.Redis)
	if err != nil {
		return fmt.Errorf("failed to initialize Redis: %w", err)
	}
	defer redisClient.Close()

	userRepo := user.NewRepository(db)
	rateLimiter := ratelimit.NewLimiter(redisClient, cfg.RateLimit)
	emailService := email.NewService(cfg.Email, logger)

	authService := auth.NewService(
		userRepo,
		auth.NewBcryptHasher(auth.DefaultBcryptCost),
		emailService,
		rateLimiter,
		logger,
		auth.ServiceConfig{
			QueryTimeout:    cfg.Database.QueryTimeout,
			MailTimeout:     cfg.Email.Timeout,
			CodeTTL:         cfg.Verification.CodeTTL,
			MaxCodeAttempts: cfg.Verification.MaxAttempts,
		},
	)

	authHandler := auth.NewHandler(authService, rateLimiter)
	authMiddleware := auth.NewMiddleware(authService)

	router := httpServer.NewRouter(cfg, authHandler, authMiddleware, logger)

	server := httpServer.NewServer(
		":"+cfg.Server.Port,
		router,
		cfg.Server.ReadTimeout,
		cfg.Server.WriteTimeout,
		logger,
	)

	serverErrors := make(chan error, 1)
	go func() {
		serverErrors <- server.Start()
	}()

	shutdown := make(chan os.Signal, 1)
	signal.Notify(shutdown, os.Interrupt, syscall.SIGTERM)

	select {
	case err := <-serverErrors:
		return fmt.Errorf("server error: %w", err)
	case sig := <-shutdown:
		logger.Info("received signal", "signal", sig.String())

		ctx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
		defer cancel()

		if err := server.Shutdown(ctx); err != nil {
			return fmt.Errorf("graceful shutdown failed: %w", err)
		}
	}

	return nil
}

// initRedis initializes the Redis connection and returns a Redis client
func initRedis(ctx context.Context, cfg config.RedisConfig) (*redis.Client, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Address(),
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("failed to ping Redis: %w", err)
	}

	return client, nil
}
