package main

import (
	"context"
	"encoding/json"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/chatterdesk/presence-engine/internal/config"
	"github.com/chatterdesk/presence-engine/internal/database"
	"github.com/chatterdesk/presence-engine/internal/handler"
	"github.com/chatterdesk/presence-engine/internal/jobs"
	"github.com/chatterdesk/presence-engine/internal/middleware"
	"github.com/chatterdesk/presence-engine/internal/redis"
	"github.com/chatterdesk/presence-engine/internal/repository"
	"github.com/chatterdesk/presence-engine/internal/service"
	"github.com/chatterdesk/presence-engine/internal/telemetry"
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
	cancel()
	log.Info().Msg("database connected")

	redisClient, err := redis.NewClient(cfg.RedisURL)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to connect to redis")
	}
	defer redisClient.Close()
	log.Info().Msg("redis connected")

	shiftRepo := repository.NewShiftRepository(db.DB)
	attendanceRepo := repository.NewAttendanceRepository(db.DB)
	memberRepo := repository.NewTelemetryMemberRepository(db.DB)
	credRepo := repository.NewTelemetryCredentialRepository(db.DB)

	settings := telemetry.Settings{
		BaseURL:               cfg.TelemetryBaseURL,
		TokenURL:              cfg.TelemetryTokenURL,
		OrgID:                 cfg.TelemetryOrgID,
		BootstrapRefreshToken: cfg.TelemetryRefreshToken,
	}
	telemetryClient := telemetry.NewClient(settings, credRepo)
	aggregator := telemetry.NewAggregator(telemetryClient, settings)

	recorder := service.NewRedisRunRecorder(redisClient)

	scheduleSync := service.NewScheduleSyncService(shiftRepo, attendanceRepo, recorder, cfg.RunBudget())
	telemetrySync := service.NewTelemetrySyncService(
		aggregator, credRepo, memberRepo, shiftRepo, attendanceRepo, recorder,
		cfg.TelemetryOrgID, cfg.TelemetryWindow(), cfg.RunBudget(),
		config.TelemetryLookupBatchSize,
	)
	telemetrySync.Realtime = cfg.TelemetryRealtime
	autoMatch := service.NewAutoMatchService(aggregator, memberRepo, shiftRepo)

	cronAuth := middleware.NewCronAuthMiddleware(cfg.CronSecret, isProduction)
	triggerRateLimit := middleware.NewTriggerRateLimitMiddleware(redisClient.Client)

	jobsHandler := handler.NewJobsHandler(scheduleSync, telemetrySync, autoMatch, recorder)
	sessionsHandler := handler.NewSessionsHandler(attendanceRepo)

	r := chi.NewRouter()

	r.Use(chimiddleware.RequestID)
	r.Use(chimiddleware.RealIP)
	r.Use(middleware.RequestLogger)
	r.Use(chimiddleware.Recoverer)
	r.Use(chimiddleware.Timeout(config.ServerRequestTimeout))

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		json.NewEncoder(w).Encode(map[string]any{
			"status":    "ok",
			"timestamp": time.Now().UnixMilli(),
		})
	})

	r.Route("/jobs", func(r chi.Router) {
		r.Use(cronAuth.Handler)
		r.Use(triggerRateLimit.Handler)
		r.Mount("/", jobsHandler.Routes())
	})

	r.Route("/v1/sessions", func(r chi.Router) {
		r.Use(cronAuth.Handler)
		r.Mount("/", sessionsHandler.Routes())
	})

	if cfg.InternalScheduler {
		reconcileJob := jobs.NewReconcileJob(scheduleSync, telemetrySync, cfg.SyncInterval(), cfg.RunBudget())
		reconcileJob.Start()
		defer reconcileJob.Stop()
	}

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
