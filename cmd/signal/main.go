package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"skycast/internal/core/ports"
	"skycast/internal/core/services"
	httphandlers "skycast/internal/handlers/http"
	"skycast/internal/infrastructure/ledger"
	"skycast/internal/infrastructure/middleware"
	"skycast/internal/infrastructure/monitoring"
	"skycast/internal/infrastructure/reliability"
	repositories "skycast/internal/infrastructure/repositories"
	signalinfra "skycast/internal/infrastructure/signal"
	webrtcinfra "skycast/internal/infrastructure/webrtc"
	"skycast/pkg/circuitbreaker"
	"skycast/pkg/config"
	"skycast/pkg/logger"
	"skycast/pkg/retry"
	"skycast/pkg/tracing"
	"skycast/pkg/utils"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
)

func main() {
	startTime := time.Now()

	configPaths := []string{
		os.Getenv("SKYCAST_CONFIG"),
		"configs/config.yaml",
		"/etc/skycast/config.yaml",
		"config.yaml",
	}

	var cfg *config.Config
	var err error
	for _, path := range configPaths {
		if path == "" {
			continue
		}
		cfg, err = config.Load(path)
		if err == nil {
			break
		}
	}
	if cfg == nil {
		cfg = config.DefaultConfig()
	}

	zapLogger := logger.NewWithFormat(cfg.Logging.Level, cfg.Logging.Format)
	defer zapLogger.Sync()
	log := zapLogger.Sugar()
	if err != nil {
		log.Warnw("config not loaded, using defaults", "error", err)
	}

	traceCfg := tracing.DefaultConfig()
	traceCfg.Enabled = cfg.Tracing.Enabled
	if cfg.Tracing.JaegerEndpoint != "" {
		traceCfg.JaegerURL = cfg.Tracing.JaegerEndpoint
	}
	if env := os.Getenv("SKYCAST_ENV"); env != "" {
		traceCfg.Environment = env
	}
	traceCfg.SampleRate = cfg.Tracing.SampleRate
	tp, err := tracing.Init(traceCfg)
	if err != nil {
		log.Fatalw("failed to initialize tracing", "error", err)
	}

	instanceID := utils.GenerateID("instance")

	repoFactory, err := repositories.NewRepositoryFactory(cfg, instanceID, log)
	if err != nil {
		log.Fatalw("failed to create repository factory", "error", err)
	}

	startupCtx, cancelStartup := context.WithTimeout(context.Background(), 10*time.Second)
	friends, err := repoFactory.CreateFriendDirectory(startupCtx)
	cancelStartup()
	if err != nil {
		log.Fatalw("failed to create friend directory", "error", err)
	}
	lease := repoFactory.CreateOwnerLease()

	collector := monitoring.NewPrometheusCollector(prometheus.DefaultRegisterer)

	costLedger := newLedger(cfg, log)

	hub := signalinfra.NewHub(log)
	notifier, runEventBus := repoFactory.CreateNotifier(hub)

	broadcasts := services.NewBroadcastRegistry(
		costLedger,
		lease,
		notifier,
		services.NewCostMeter(
			cfg.Billing.EstimateMinutes,
			cfg.Billing.BroadcastRatePerMinute,
			cfg.Billing.ViewerRatePerMinute,
		),
		services.RegistryConfig{
			NegotiationTimeout: cfg.Session.NegotiationTimeout,
			OwnerGracePeriod:   cfg.Session.OwnerGracePeriod,
			FinalizeTimeout:    cfg.Session.FinalizeTimeout,
		},
		collector,
		log,
	)

	var validator services.PayloadValidator
	if cfg.Signal.ValidatePayloads {
		validator = webrtcinfra.NewPayloadValidator()
	}
	relay := services.NewSignalingRelay(broadcasts, notifier, validator, collector, log)
	broadcasts.OnLinkOpened(relay.Admit)

	var authService services.AuthService
	if cfg.Auth.Required || cfg.Auth.DevIssuer {
		authService = services.NewAuthService(cfg.Auth.JWTSecret, cfg.Auth.TokenTTL, cfg.Auth.Issuer)
	}

	coordinator := signalinfra.NewCoordinator(
		signalinfra.ConfigFrom(cfg),
		hub,
		broadcasts,
		relay,
		friends,
		authService,
		collector,
		log,
	)

	health := monitoring.NewHealthChecker()
	if repoFactory.UsingRedis() {
		health.AddRedisCheck(repoFactory.RedisClient(), 2*time.Second)
	}
	if w, ok := costLedger.(*reliability.LedgerWrapper); ok {
		health.AddLedgerCheck(w.State)
	}

	if cfg.Logging.Level != "debug" {
		gin.SetMode(gin.ReleaseMode)
	}
	router := gin.New()
	router.Use(
		middleware.RecoveryMiddleware(log),
		middleware.RequestLogMiddleware(logger.NewContextLogger(zapLogger)),
		middleware.TracingMiddleware(),
		middleware.ErrorHandlerMiddleware(log),
	)

	router.GET(cfg.Signal.Path, gin.WrapF(coordinator.HandleWebSocket))

	api := router.Group("/")
	api.Use(middleware.NewHTTPRateLimitMiddleware(cfg))
	if authService != nil && cfg.Auth.Required {
		api.Use(middleware.AuthMiddleware(authService))
	}
	httphandlers.NewBroadcastHandler(broadcasts).SetupRoutes(api)

	if cfg.Auth.DevIssuer {
		httphandlers.NewAuthHandler(authService, cfg.Auth.TokenTTL).SetupRoutes(router)
		log.Warn("development token issuer enabled")
	}

	router.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"status":      "healthy",
			"timestamp":   time.Now(),
			"uptime":      time.Since(startTime).String(),
			"instance":    instanceID,
			"connections": hub.Count(),
		})
	})

	router.GET("/ready", func(c *gin.Context) {
		status := health.CheckAll(c.Request.Context())
		code := http.StatusOK
		if status.Status != "healthy" {
			code = http.StatusServiceUnavailable
		}
		c.JSON(code, status)
	})

	if cfg.Monitoring.PrometheusEnabled {
		router.GET("/metrics", gin.WrapH(promhttp.Handler()))
		log.Info("Prometheus metrics enabled")
	}

	srv := &http.Server{
		Addr:         cfg.Server.Address,
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	runCtx, stopRun := context.WithCancel(context.Background())
	defer stopRun()
	if runEventBus != nil {
		go func() {
			if err := runEventBus(runCtx); err != nil && !errors.Is(err, context.Canceled) {
				log.Errorw("event bus stopped", "error", err)
			}
		}()
	}

	serverErr := make(chan error, 1)
	go func() {
		log.Infow("Starting skycast signaling server",
			"address", cfg.Server.Address,
			"ws_path", cfg.Signal.Path,
			"instance", instanceID,
			"redis", repoFactory.UsingRedis(),
			"ledger", cfg.Ledger.Mode,
		)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			serverErr <- err
		}
	}()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	select {
	case err := <-serverErr:
		log.Fatalw("Server failed", "error", err)
	case sig := <-sigChan:
		log.Infow("Received shutdown signal", "signal", sig)
	}

	log.Info("Shutting down skycast signaling server...")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Errorw("Error during server shutdown", "error", err)
		if closeErr := srv.Close(); closeErr != nil {
			log.Errorw("Error force closing server", "error", closeErr)
		}
	}

	hub.CloseAll()
	broadcasts.Close(shutdownCtx)
	stopRun()

	if err := repoFactory.Close(); err != nil {
		log.Errorw("Error closing repository factory", "error", err)
	}
	if err := tp.Shutdown(shutdownCtx); err != nil {
		log.Errorw("Error shutting down tracer", "error", err)
	}

	log.Info("skycast signaling server stopped")
}

// newLedger builds the configured ledger adapter. The remote ledger is
// wrapped with retry and a circuit breaker.
func newLedger(cfg *config.Config, log *zap.SugaredLogger) ports.CostLedger {
	if cfg.Ledger.Mode != "http" {
		log.Infow("using in-memory ledger", "default_balance", cfg.Ledger.DefaultBalance)
		return ledger.NewMemoryLedger(cfg.Ledger.DefaultBalance, log)
	}

	retryCfg := retry.DefaultConfig()
	retryCfg.MaxAttempts = cfg.Ledger.Retry.MaxAttempts
	retryCfg.InitialDelay = cfg.Ledger.Retry.InitialDelay
	retryCfg.MaxDelay = cfg.Ledger.Retry.MaxDelay

	cbCfg := circuitbreaker.DefaultConfig()
	cbCfg.FailureThreshold = cfg.Ledger.CircuitBreaker.MaxFailures
	cbCfg.Timeout = cfg.Ledger.CircuitBreaker.ResetTimeout

	return reliability.NewLedgerWrapper(
		ledger.NewHTTPLedger(cfg.Ledger.URL, cfg.Ledger.APIKey, cfg.Ledger.Timeout, log),
		retryCfg,
		cbCfg,
		log,
	)
}
