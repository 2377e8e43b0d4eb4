package main

import (
	"context"
	"errors"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/labstack/echo/v4"
	echomiddleware "github.com/labstack/echo/v4/middleware"
	"github.com/leephanna/sign-in-and-billing/internal/billing"
	"github.com/leephanna/sign-in-and-billing/internal/credentials"
	"github.com/leephanna/sign-in-and-billing/internal/directory"
	"github.com/leephanna/sign-in-and-billing/internal/handler"
	"github.com/leephanna/sign-in-and-billing/internal/identity"
	"github.com/leephanna/sign-in-and-billing/internal/middleware"
	"github.com/leephanna/sign-in-and-billing/internal/provider"
	"github.com/leephanna/sign-in-and-billing/internal/vault"
	"github.com/leephanna/sign-in-and-billing/pkg/config"
	"github.com/leephanna/sign-in-and-billing/pkg/database"
	"github.com/leephanna/sign-in-and-billing/pkg/jwtutil"
	"github.com/leephanna/sign-in-and-billing/pkg/logger"
	"github.com/leephanna/sign-in-and-billing/prometheus"
	"go.uber.org/zap"
)

var version = "dev"

func main() {
	// Load configuration from .env file and environment variables
	cfg, err := config.Load()
	if err != nil {
		panic("Failed to load configuration: " + err.Error())
	}

	// Initialize logger with config
	logger.InitLogger(cfg)
	log := logger.GetLogger()
	log.Info("Starting Harmonia core service...", cfg.LogConfig()...)

	if err := cfg.Validate(); err != nil {
		log.Fatal("Invalid configuration", zap.Error(err))
	}

	// Initialize database
	db, err := database.InitDB(&cfg.DB, log)
	if err != nil {
		log.Fatal("Failed to initialize database", zap.Error(err))
	}
	defer database.Close(db)

	v, err := vault.New(cfg.Security.MasterKey)
	if err != nil {
		log.Fatal("Failed to initialize secrets vault", zap.Error(err))
	}

	codec, err := jwtutil.NewSessionCodec(&cfg.JWT)
	if err != nil {
		log.Fatal("Failed to initialize session codec", zap.Error(err))
	}

	dir := directory.New(db, v, cfg, log.Named("directory"))
	resolver := credentials.NewResolver(dir, v, cfg, provider.NewStripe, log.Named("credentials"))
	ids, err := identity.New(db, dir, codec, cfg.Security.BcryptCost, log.Named("identity"))
	if err != nil {
		log.Fatal("Failed to initialize identity service", zap.Error(err))
	}
	rec := billing.New(db, resolver, cfg, log.Named("billing"))

	prometheus.SetInfo(version, cfg.Billing.Mode)

	// Rate limits are shared across instances when Redis is configured
	var redisClient *redis.Client
	if cfg.Redis.URL != "" {
		opts, err := redis.ParseURL(cfg.Redis.URL)
		if err != nil {
			log.Fatal("Invalid REDIS_URL", zap.Error(err))
		}
		redisClient = redis.NewClient(opts)
		defer redisClient.Close()

		pingCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		if err := redisClient.Ping(pingCtx).Err(); err != nil {
			log.Warn("Redis unreachable, rate limiting fails open until it recovers", zap.Error(err))
		}
		cancel()
	}

	// Initialize Echo framework
	e := echo.New()
	e.HideBanner = true
	e.HTTPErrorHandler = handler.HTTPErrorHandler

	// Apply global middleware - order matters
	e.Use(echomiddleware.Recover())
	e.Use(echomiddleware.CORSWithConfig(echomiddleware.CORSConfig{
		AllowOriginFunc: func(origin string) (bool, error) {
			return true, nil
		},
		AllowHeaders: []string{
			echo.HeaderOrigin,
			echo.HeaderContentType,
			echo.HeaderAuthorization,
			middleware.AdminKeyHeader,
			handler.StripeSignatureHeader,
		},
		AllowCredentials: true,
	}))
	e.Use(middleware.RequestIDMiddleware())
	e.Use(logger.Middleware(log))
	e.Use(prometheus.MetricsMiddleware())
	e.Use(echomiddleware.BodyLimit("1M"))
	e.Use(middleware.RateLimit(middleware.LogStoreErrors(middleware.NewRateLimitStore(cfg.RateLimit, redisClient))))

	e.GET(cfg.Metrics.Path, echo.WrapHandler(prometheus.GetPrometheusHandler()))
	handler.RegisterRoutes(e, handler.New(cfg, db, dir, ids, rec), codec)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Start server
	go func() {
		log.Info("Starting server", zap.String("port", cfg.Server.Port))
		if err := e.Start(":" + cfg.Server.Port); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal("Failed to start server", zap.Error(err))
		}
	}()

	<-ctx.Done()
	log.Info("Shutting down server")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := e.Shutdown(shutdownCtx); err != nil {
		log.Error("Graceful shutdown failed", zap.Error(err))
	}
}
