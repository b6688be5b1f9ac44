package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"law_flow_notify/config"
	"law_flow_notify/db"
	"law_flow_notify/handlers"
	"law_flow_notify/logger"
	"law_flow_notify/metrics"
	"law_flow_notify/middleware"
	"law_flow_notify/models"
	"law_flow_notify/services"
	"law_flow_notify/services/jobs"

	"github.com/labstack/echo/v4"
	echomiddleware "github.com/labstack/echo/v4/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/rs/zerolog"
	"golang.org/x/time/rate"
)

func main() {
	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		// logger depends on config; fall back to defaults to report the problem
		l := logger.New("info", "development")
		l.Fatal().Err(err).Msg("invalid configuration")
	}
	log := logger.New(cfg.LogLevel, cfg.Environment)

	// Initialize database
	if err := db.Initialize(db.Options{
		Path:        cfg.DBPath,
		TursoURL:    cfg.TursoDatabaseURL,
		TursoToken:  cfg.TursoAuthToken,
		Environment: cfg.Environment,
	}); err != nil {
		log.Fatal().Err(err).Msg("failed to initialize database")
	}
	defer db.Close()

	if err := db.AutoMigrate(models.All()...); err != nil {
		log.Fatal().Err(err).Msg("failed to run migrations")
	}

	// Metrics
	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	m := metrics.New(registry)

	// Notification pipeline
	delivery := services.NewDeliveryEngine(
		buildTransport(cfg, log),
		services.RetryPolicy{
			MaxRetries: cfg.RetryMaxRetries,
			BaseDelay:  cfg.RetryBaseDelay(),
			MaxDelay:   cfg.RetryMaxDelay(),
			MaxJitter:  time.Second,
		},
		services.WithRateLimiter(rate.NewLimiter(rate.Limit(cfg.EmailRatePerSecond), 1)),
		services.WithEmailLog(&services.GormEmailLogStore{DB: db.DB}),
		services.WithDeliveryMetrics(m),
		services.WithDeliveryLogger(logger.Component(log, "delivery")),
	)

	directory := services.NewUserDirectory(db.DB)
	templates := services.NewTemplateStore(db.DB)
	notifications := services.NewNotificationService(db.DB)
	dispatcher := services.NewDispatcher(
		services.NewRecipientRouter(directory),
		notifications,
		delivery,
		templates,
		services.DispatcherConfig{
			Workers:     cfg.DispatchWorkers,
			QueueSize:   cfg.DispatchQueueSize,
			FrontendURL: cfg.FrontendURL,
		},
		m,
		logger.Component(log, "dispatcher"),
	)
	dispatcher.Start()

	events := services.NewEventLog(db.DB)
	cases := services.NewCaseService(db.DB, events, directory, dispatcher, logger.Component(log, "cases"))
	activity := services.NewCaseActivityService(db.DB, events, directory, dispatcher, logger.Component(log, "activity"))

	// Scheduled jobs
	jobLog := logger.Component(log, "jobs")
	scheduler := jobs.NewScheduler(cfg.SchedulerLocation(), jobs.NewJobGuard(), m, jobLog)
	scanner := jobs.NewInactivityScanner(db.DB, events, dispatcher, cfg.InactivityDaysThreshold, cfg.NotificationThrottleDays, m, jobLog)
	digest := jobs.NewDigestBuilder(db.DB, templates, delivery, cfg.FrontendURL, m, jobLog)

	if err := scheduler.Add(jobs.JobInactivityScan, cfg.InactivityScanSchedule, func(ctx context.Context) error {
		_, err := scanner.Run(ctx)
		return err
	}); err != nil {
		log.Fatal().Err(err).Msg("failed to schedule inactivity scan")
	}
	if err := scheduler.Add(jobs.JobWeeklyDigest, cfg.WeeklyDigestSchedule, func(ctx context.Context) error {
		_, err := digest.Run(ctx)
		return err
	}); err != nil {
		log.Fatal().Err(err).Msg("failed to schedule weekly digest")
	}
	scheduler.Start()

	// Create Echo instance
	e := echo.New()
	e.HideBanner = true

	// Middleware
	e.Use(requestLogger(logger.Component(log, "http")))
	e.Use(echomiddleware.Recover())
	e.Use(echomiddleware.CORS())

	limiter := middleware.NewRateLimiter(middleware.RateLimitConfig{
		Rate:    10,
		Burst:   20,
		KeyFunc: middleware.UserKey,
	})
	stopCleanup := make(chan struct{})
	limiter.StartCleanup(time.Minute, stopCleanup)

	api := &handlers.API{
		DB:            db.DB,
		Cases:         cases,
		Activity:      activity,
		Notifications: notifications,
		Templates:     templates,
		Scheduler:     scheduler,
		Scanner:       scanner,
		Digest:        digest,
	}
	api.Register(e, limiter, registry)

	// Start server
	go func() {
		log.Info().Str("port", cfg.ServerPort).Msg("server starting")
		if err := e.Start(":" + cfg.ServerPort); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal().Err(err).Msg("failed to start server")
		}
	}()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	<-ctx.Done()

	log.Info().Msg("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := e.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("http shutdown failed")
	}
	scheduler.Stop(shutdownCtx)
	if err := dispatcher.Close(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("notification queue not fully drained")
	}
	close(stopCleanup)
	log.Info().Msg("shutdown complete")
}

// buildTransport picks the mail transport. Test mode logs emails instead of
// sending them.
func buildTransport(cfg *config.Config, log zerolog.Logger) services.MailTransport {
	if cfg.EmailTestMode {
		return &services.ConsoleTransport{Log: logger.Component(log, "email")}
	}
	if cfg.EmailProvider == config.EmailProviderSMTP {
		return services.NewSMTPTransport(cfg.SMTPHost, cfg.SMTPPort, cfg.SMTPUsername, cfg.SMTPPassword, cfg.EmailFromName, cfg.EmailFrom)
	}
	return services.NewResendTransport(cfg.ResendAPIKey, cfg.EmailFromName, cfg.EmailFrom)
}

func requestLogger(log zerolog.Logger) echo.MiddlewareFunc {
	return echomiddleware.RequestLoggerWithConfig(echomiddleware.RequestLoggerConfig{
		LogMethod:   true,
		LogURI:      true,
		LogStatus:   true,
		LogLatency:  true,
		LogError:    true,
		HandleError: true,
		LogValuesFunc: func(c echo.Context, v echomiddleware.RequestLoggerValues) error {
			event := log.Info()
			if v.Error != nil {
				event = log.Error().Err(v.Error)
			}
			event.
				Str("method", v.Method).
				Str("uri", v.URI).
				Int("status", v.Status).
				Dur("latency", v.Latency).
				Msg("request")
			return nil
		},
	})
}
