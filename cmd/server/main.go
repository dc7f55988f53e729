package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/consultrelay/consult-relay-go/internal/config"
	"github.com/consultrelay/consult-relay-go/internal/database"
	"github.com/consultrelay/consult-relay-go/internal/handler"
	"github.com/consultrelay/consult-relay-go/internal/jobs"
	"github.com/consultrelay/consult-relay-go/internal/middleware"
	"github.com/consultrelay/consult-relay-go/internal/redis"
	"github.com/consultrelay/consult-relay-go/internal/repository"
	"github.com/consultrelay/consult-relay-go/internal/service"
	"github.com/consultrelay/consult-relay-go/internal/sse"
	"github.com/consultrelay/consult-relay-go/internal/video"
)

func main() {
	zerolog.TimeFieldFormat = zerolog.TimeFormatUnix
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})

	cfg, err := config.Load()
	if err != nil {
		log.Fatal().Err(err).Msg("failed to load config")
	}

	setLogLevel(cfg.LogLevel)

	isProduction := os.Getenv("FLY_APP_NAME") != ""
	if err := cfg.Validate(isProduction); err != nil {
		log.Fatal().Err(err).Msg("invalid config")
	}

	db, err := database.Connect(cfg.DatabaseURL)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to connect to database")
	}
	defer db.Close()

	ctx, cancel := context.WithTimeout(context.Background(), config.DBPingTimeout)
	if err := db.Ping(ctx); err != nil {
		log.Fatal().Err(err).Msg("failed to ping database")
	}
	if err := db.EnsureSchema(ctx); err != nil {
		log.Fatal().Err(err).Msg("failed to apply schema")
	}
	cancel()
	log.Info().Msg("database connected")

	redisClient, err := redis.NewClient(cfg.RedisURL)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to connect to redis")
	}
	defer redisClient.Close()
	log.Info().Msg("redis connected")

	videoClient, err := video.NewClient(cfg.VideoAPIKey, video.Options{
		BaseURL:     cfg.VideoAPIURL,
		MaxAttempts: cfg.ProviderMaxAttempts,
		Backoff:     cfg.ProviderBackoff(),
		Timeout:     cfg.ProviderTimeout(),
	})
	if err != nil {
		log.Fatal().Err(err).Msg("failed to create video provider client")
	}

	userRepo := repository.NewUserRepository(db.DB)
	consultationRepo := repository.NewConsultationRepository(db.DB)
	meetingRepo := repository.NewMeetingRepository(db.DB)

	broker := sse.NewBroker(redisClient)

	locker := redis.NewLocker(redisClient.Client, config.ProvisionLockTTL)
	roomService := service.NewRoomService(videoClient, consultationRepo, locker)
	tokenService := service.NewTokenService(videoClient, cfg.TokenTTL())
	webhookService := service.NewWebhookService(meetingRepo)
	registry := service.NewSessionRegistry(
		broker, roomService, tokenService, service.NewConsultationStore(consultationRepo),
		service.RegistryConfig{
			CommandTimeout:   cfg.CommandTimeout(),
			RequirePreflight: cfg.RequirePreflight,
			IdleTTL:          cfg.SessionIdleTTL(),
		},
	)

	authMiddleware := middleware.NewAuthMiddleware(userRepo)
	rateLimitMiddleware := middleware.NewRateLimitMiddleware(
		middleware.NewRedisRateLimiter(redisClient.Client), cfg.RateLimitPerMin,
	)
	ipLimiter := middleware.NewMemoryRateLimiter()
	probeLimitMiddleware := middleware.NewIPRateLimitMiddleware(ipLimiter, config.ProbeRateLimitPerMin, "probe")
	webhookLimitMiddleware := middleware.NewIPRateLimitMiddleware(ipLimiter, config.WebhookRateLimitPerMin, "webhook")
	webhookSignatureMiddleware := middleware.NewWebhookSignatureMiddleware(cfg.WebhookSecret)
	bodyLimitMiddleware := middleware.NewBodyLimitMiddleware(0)
	securityHeadersMiddleware := middleware.NewSecurityHeadersMiddleware(isProduction)

	healthHandler := handler.NewHealthHandler(
		handler.DependencyCheck{Name: "database", Ping: db.Ping},
		handler.DependencyCheck{Name: "redis", Ping: func(ctx context.Context) error {
			return redisClient.Ping(ctx).Err()
		}},
	)
	roomHandler := handler.NewRoomHandler(roomService, tokenService)
	sessionHandler := handler.NewSessionHandler(registry, handler.NewEventsHandler(broker), rateLimitMiddleware.Handler)
	webhookHandler := handler.NewWebhookHandler(webhookService)
	probeHandler := handler.NewProbeHandler()
	clientHandler := handler.NewClientHandler(cfg.ClientDir)

	r := chi.NewRouter()

	r.Use(chimiddleware.RequestID)
	r.Use(chimiddleware.RealIP)
	r.Use(middleware.RequestLogger)
	r.Use(chimiddleware.Recoverer)

	r.Get("/health", healthHandler.Liveness)
	r.Get("/ready", healthHandler.Readiness)

	r.Group(func(r chi.Router) {
		r.Use(securityHeadersMiddleware.Handler)
		r.Use(bodyLimitMiddleware.Handler)
		r.Use(authMiddleware.Handler)

		r.Group(func(r chi.Router) {
			r.Use(rateLimitMiddleware.Handler)
			r.Use(chimiddleware.Timeout(config.ServerRequestTimeout))
			r.Post("/room-endpoint", roomHandler.CreateRoom)
			r.Get("/room-endpoint", roomHandler.GetRoom)
			r.Post("/token-endpoint", roomHandler.IssueToken)
		})

		// Rate limited per route; bridge acks must not be throttled.
		r.Mount("/v1/sessions", sessionHandler.Routes())
	})

	r.Route("/webhooks/video", func(r chi.Router) {
		r.Use(webhookLimitMiddleware.Handler)
		r.Use(bodyLimitMiddleware.Handler)
		r.Use(webhookSignatureMiddleware.Handler)
		r.Use(chimiddleware.Timeout(config.ServerRequestTimeout))
		r.Post("/", webhookHandler.ServeHTTP)
	})

	// Probe payloads exceed the default body limit.
	r.Route("/diagnostics", func(r chi.Router) {
		r.Use(probeLimitMiddleware.Handler)
		r.Use(chimiddleware.NoCache)
		r.Get("/ping", probeHandler.Ping)
		r.Get("/download", probeHandler.Download)
		r.Post("/upload", probeHandler.Upload)
	})

	r.Get("/", func(w http.ResponseWriter, r *http.Request) {
		http.Redirect(w, r, "/app/", http.StatusFound)
	})
	r.Handle("/app/*", clientHandler)

	reaper := jobs.NewReaperJob(registry, config.SessionReaperInterval)
	reaper.Start()

	server := &http.Server{
		Addr:         cfg.Addr(),
		Handler:      r,
		ReadTimeout:  config.ServerReadTimeout,
		WriteTimeout: 0,
		IdleTimeout:  config.ServerIdleTimeout,
	}

	go func() {
		log.Info().Str("addr", cfg.Addr()).Msg("starting server")
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal().Err(err).Msg("server error")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	log.Info().Msg("shutting down server")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), config.ServerShutdownTimeout)
	defer shutdownCancel()

	reaper.Stop()
	registry.Shutdown(shutdownCtx)
	// Ends open event streams so Shutdown does not wait on them.
	broker.Close()

	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("server forced to shutdown")
	}

	log.Info().Msg("server stopped")
}

func setLogLevel(level string) {
	switch level {
	case "debug":
		zerolog.SetGlobalLevel(zerolog.DebugLevel)
	case "info":
		zerolog.SetGlobalLevel(zerolog.InfoLevel)
	case "warn":
		zerolog.SetGlobalLevel(zerolog.WarnLevel)
	case "error":
		zerolog.SetGlobalLevel(zerolog.ErrorLevel)
	default:
		zerolog.SetGlobalLevel(zerolog.InfoLevel)
	}
}
