package main

import (
	"fmt"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	fiberlogger "github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/redis/go-redis/v9"

	"github.com/nimbusdash/aegis/internal/api/handlers"
	"github.com/nimbusdash/aegis/internal/api/router"
	"github.com/nimbusdash/aegis/internal/config"
	"github.com/nimbusdash/aegis/internal/middleware"
	"github.com/nimbusdash/aegis/internal/rbac"
	"github.com/nimbusdash/aegis/internal/storage"
	"github.com/nimbusdash/aegis/internal/token"
	"github.com/nimbusdash/aegis/pkg/logger"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		panic(fmt.Sprintf("failed to load configuration: %v", err))
	}

	log := logger.Init(logger.Options{
		Level:  cfg.Log.Level,
		Pretty: cfg.Log.Pretty,
	})

	// Initialize storage
	dsn := storage.BuildDSN(cfg.Database)
	store, err := storage.NewPostgresStorage(dsn)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to initialize storage")
	}

	// Rate limit counters live in Redis when available, in memory otherwise.
	var rateStore middleware.RateLimitStore = middleware.NewMemoryStore()
	if cfg.Redis.Host != "" {
		client := redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Host + ":" + cfg.Redis.Port,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		rateStore = middleware.NewRedisStore(client)
	}

	app := fiber.New(fiber.Config{
		AppName: "Aegis",
	})

	app.Use(cors.New())
	app.Use(fiberlogger.New())

	tokens := token.NewService(cfg.JWT.Secret, cfg.JWT.AccessExpiration)
	evaluator := rbac.NewEvaluator(cfg.Access.PermissionFailOpen, log)

	authHandler := handlers.NewAuthHandler(store, tokens, evaluator, log)
	tenantHandler := handlers.NewTenantHandler(store)
	userHandler := handlers.NewUserHandler(store, log)
	authMiddleware := middleware.NewAuthMiddleware(tokens, store, evaluator, log)
	rateLimiter := middleware.NewRateLimiter(rateStore, cfg.Server.RateLimit.Enabled)

	apiRouter := router.NewRouter(
		app,
		authHandler,
		tenantHandler,
		userHandler,
		authMiddleware,
		rateLimiter,
		middleware.RateLimitConfig{
			Enabled: cfg.Server.RateLimit.Enabled,
			Limit:   cfg.Server.RateLimit.Limit,
			Window:  cfg.Server.RateLimit.Window,
		},
	)

	apiRouter.SetupRoutes()

	log.Info().Str("port", cfg.Server.Port).Msg("server starting")
	if err := app.Listen(":" + cfg.Server.Port); err != nil {
		log.Fatal().Err(err).Msg("failed to start server")
	}
}
