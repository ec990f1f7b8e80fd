package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/nekogravitycat/space-reservation-backend/internal/app"
	"github.com/nekogravitycat/space-reservation-backend/internal/config"
	"github.com/nekogravitycat/space-reservation-backend/internal/db"
	"github.com/nekogravitycat/space-reservation-backend/internal/events"
	"github.com/nekogravitycat/space-reservation-backend/internal/logging"
	"github.com/nekogravitycat/space-reservation-backend/internal/metrics"
	"github.com/nekogravitycat/space-reservation-backend/internal/payment"
	"github.com/nekogravitycat/space-reservation-backend/internal/ratelimit"
)

func main() {
	// For receiving Ctrl+C / SIGTERM
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// Load config
	cfg, err := config.Load()
	if err != nil {
		log.Fatal().Err(err).Msg("failed to load config")
	}

	env := "dev"
	if cfg.IsProduction {
		env = config.PROD_STRING
	}
	logger := logging.New(cfg.LogLevel, cfg.LogFormat, env)
	zerolog.DefaultContextLogger = &logger

	// Connect DB
	pool, err := db.NewPool(ctx, cfg.DBDSN)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to connect to db")
	}
	defer pool.Close()

	if cfg.DBAutoMigrate {
		if err := db.Migrate(ctx, pool); err != nil {
			logger.Fatal().Err(err).Msg("failed to migrate schema")
		}
	}

	metrics.Register()

	// Optional infrastructure
	var limiter ratelimit.Limiter
	if cfg.RedisAddr != "" {
		rdb := ratelimit.NewRedisClient(cfg.RedisAddr, cfg.RedisPassword, cfg.RedisDB)
		defer rdb.Close()
		if err := rdb.Ping(ctx).Err(); err != nil {
			logger.Warn().Err(err).Msg("redis unreachable, booking rate limit will fail open")
		}
		limiter = ratelimit.NewRedisLimiter(rdb, "booking", cfg.BookingRateLimit, cfg.BookingRateWindow)
	}

	var publisher events.Publisher = events.NopPublisher{}
	if cfg.AMQPURL != "" {
		amqpPublisher, err := events.NewAMQPPublisher(cfg.AMQPURL, cfg.EventsQueue)
		if err != nil {
			logger.Fatal().Err(err).Msg("failed to connect to message broker")
		}
		defer amqpPublisher.Close()
		publisher = amqpPublisher
	}

	gateway := payment.NewHTTPGateway(cfg.PaymentBaseURL, cfg.PaymentSecretKey, cfg.PaymentTimeout, cfg.PaymentMinorUnitDigits)

	container := app.NewContainer(app.Config{
		IsProduction:   cfg.IsProduction,
		ProdOrigins:    cfg.ProdOrigins,
		DBPool:         pool,
		JWTSecret:      cfg.JWTSecret,
		JWTTTL:         cfg.JWTAccessTokenTTL,
		BcryptCost:     cfg.BcryptCost,
		Logger:         logger,
		Gateway:        gateway,
		Publisher:      publisher,
		Limiter:        limiter,
		Location:       cfg.Timezone,
		PaymentTimeout: cfg.PaymentTimeout,
		PendingTTL:     cfg.PendingTTL,
	})

	if err := container.Sweeper.Start(cfg.SweepSchedule); err != nil {
		logger.Fatal().Err(err).Msg("failed to start pending sweeper")
	}

	// Use http.Server for graceful shutdown
	server := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           container.Router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	// Run server in separate goroutine
	go func() {
		logger.Info().Str("addr", cfg.HTTPAddr).Msg("server running")
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal().Err(err).Msg("server error")
		}
	}()

	// Wait for Ctrl+C
	<-ctx.Done()
	logger.Info().Msg("shutdown signal received")

	// Create a shutdown context with timeout
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	// Shutdown HTTP server
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error().Err(err).Msg("server forced to shutdown")
	}
	container.Sweeper.Stop(shutdownCtx)

	logger.Info().Msg("server exited gracefully")
}
