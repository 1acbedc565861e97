package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/ieraasyl/PingService/internal/database"
	"github.com/ieraasyl/PingService/internal/events"
	"github.com/ieraasyl/PingService/internal/handlers"
	"github.com/ieraasyl/PingService/internal/logger"
	"github.com/ieraasyl/PingService/internal/middleware"
	"github.com/ieraasyl/PingService/internal/services"
	"github.com/ieraasyl/PingService/pkg/cache"
	"github.com/ieraasyl/PingService/pkg/config"
	"github.com/ieraasyl/PingService/pkg/utils"
	"github.com/rs/zerolog/log"
)

func main() {
	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to load configuration")
	}
	logger.Setup(cfg.Log)

	log.Info().
		Str("env", cfg.Server.Environment).
		Str("port", cfg.Server.Port).
		Msg("Starting ping service")

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// Initialize PostgreSQL
	postgresDB, err := database.NewPostgresDB(&cfg.Database)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to connect to PostgreSQL")
	}
	defer postgresDB.Close()
	postgresDB.SetQueryObserver(middleware.PostgresQueryObserver)

	if err := postgresDB.RunMigrations(ctx, database.Schema); err != nil {
		log.Fatal().Err(err).Msg("Failed to run migrations")
	}

	// Initialize Redis
	redisDB, err := database.NewRedisDB(&cfg.Redis)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to connect to Redis")
	}
	defer redisDB.Close()

	publisher, err := events.NewPublisher(ctx, &cfg.AMQP)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to connect to the message broker")
	}
	defer publisher.Close()

	// Caches are optional; nil disables them in the services.
	var pingCache *cache.Cache
	var profiles services.ProfileReader
	if cfg.Cache.Enabled {
		pingCache = cache.NewCache(redisDB.Client())
		profiles = cache.NewUserCache(pingCache, postgresDB, cfg.Cache.UserTTL)
	}

	// Initialize services
	userService, err := services.NewUserService(postgresDB, profiles,
		services.NewPasswordPolicy(cfg.Password.MinLength, cfg.Password.BcryptCost))
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to initialize user service")
	}
	jwtService := services.NewJWTService(&cfg.JWT, redisDB, postgresDB)
	sessionService := services.NewSessionService(redisDB)
	pingService := services.NewPingService(postgresDB, pingCache, publisher)

	router := handlers.NewRouter(handlers.Routes{
		Auth: handlers.NewAuthHandler(userService, jwtService, sessionService, utils.CookieOptions{
			Secure: cfg.Cookie.Secure,
			Domain: cfg.Cookie.Domain,
		}),
		Pings:  handlers.NewPingHandler(pingService),
		Health: handlers.NewHealthHandler(postgresDB, redisDB),
		Tokens: jwtService,

		Limiter:           middleware.NewRateLimiter(redisDB, cfg.RateLimit.RequestsPerMinute, cfg.RateLimit.WindowDuration),
		AllowedOrigins:    cfg.CORS.AllowedOrigins,
		RequestTimeout:    cfg.Server.RequestTimeout,
		TrustProxyHeaders: cfg.Server.TrustProxyHeaders,
	})

	server := &http.Server{
		Addr:         ":" + cfg.Server.Port,
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: cfg.Server.RequestTimeout + 5*time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		log.Info().Str("addr", server.Addr).Msg("Server started")
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal().Err(err).Msg("Server failed")
		}
	}()

	<-ctx.Done()
	log.Info().Msg("Shutting down server...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("Server forced to shutdown")
	}

	log.Info().Msg("Server stopped gracefully")
}
