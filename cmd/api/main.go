package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/BradenHooton/quizgate/internal/auth"
	"github.com/BradenHooton/quizgate/internal/background"
	"github.com/BradenHooton/quizgate/internal/config"
	"github.com/BradenHooton/quizgate/internal/handlers"
	"github.com/BradenHooton/quizgate/internal/metrics"
	middlewareCustom "github.com/BradenHooton/quizgate/internal/middleware"
	"github.com/BradenHooton/quizgate/internal/routes"
	"github.com/BradenHooton/quizgate/internal/services"
	pkgauth "github.com/BradenHooton/quizgate/pkg/auth"
	pkghttp "github.com/BradenHooton/quizgate/pkg/http"
	pkglogger "github.com/BradenHooton/quizgate/pkg/logger"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"gopkg.in/natefinch/lumberjack.v2"
)

func main() {
	if len(os.Args) > 1 {
		os.Exit(runCommand(os.Args[1:]))
	}

	bootLogger := slog.New(slog.NewJSONHandler(os.Stdout, nil))

	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		bootLogger.Error("failed to load configuration", slog.Any("error", err))
		os.Exit(1)
	}

	logger, logCloser := newLogger(cfg.Log)
	defer logCloser.Close()
	slog.SetDefault(logger)

	logger.Info("configuration loaded",
		slog.String("env", cfg.Server.Env),
		slog.String("store", cfg.Store.Backend))

	ipConfig, err := pkghttp.NewIPConfig(cfg.Server.TrustedProxies)
	if err != nil {
		logger.Error("invalid TRUSTED_PROXIES", slog.Any("error", err))
		os.Exit(1)
	}

	// Code store
	startCtx, startCancel := context.WithTimeout(context.Background(), 30*time.Second)
	store, closeStore, err := openStore(startCtx, cfg, logger)
	startCancel()
	if err != nil {
		logger.Error("failed to open code store", slog.String("store", cfg.Store.Backend), slog.Any("error", err))
		os.Exit(1)
	}
	defer closeStore()

	// Metrics
	registry := prometheus.NewRegistry()
	registry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	appMetrics := metrics.New(registry)

	// Alert delivery: always logged, plus e-mail and chat when configured
	notifiers := services.MultiAlertNotifier{services.NewLogAlertNotifier(logger)}
	if len(cfg.Alert.EmailTo) > 0 {
		sesCtx, sesCancel := context.WithTimeout(context.Background(), 10*time.Second)
		sesNotifier, err := services.NewSESAlertNotifier(sesCtx, cfg.Alert.AWSRegion, cfg.Alert.EmailFrom, cfg.Alert.EmailTo, logger)
		sesCancel()
		if err != nil {
			logger.Error("failed to initialize SES alert notifier", slog.Any("error", err))
			os.Exit(1)
		}
		notifiers = append(notifiers, sesNotifier)
	}
	if len(cfg.Alert.ShoutrrrURLs) > 0 {
		notifiers = append(notifiers, services.NewShoutrrrAlertNotifier(cfg.Alert.ShoutrrrURLs, logger))
	}

	// Abuse mitigation
	ledger := services.NewClientLedger(services.LedgerConfig{
		MaxConsecutiveFailures: cfg.Security.MaxConsecutiveFailures,
		BlockDuration:          cfg.Security.BlockDuration,
		MinAttemptInterval:     cfg.Security.MinAttemptInterval,
		Retention:              cfg.Security.ClientRetention,
		Shards:                 services.DefaultLedgerConfig().Shards,
		RecentWindow:           services.DefaultLedgerConfig().RecentWindow,
	}, logger)
	monitor := services.NewAttackMonitor(services.MonitorConfig{
		AlertThreshold:    int64(cfg.Security.AttackAlertThreshold),
		AlertCooldown:     cfg.Security.AttackAlertCooldown,
		CooldownTolerance: services.DefaultMonitorConfig().CooldownTolerance,
	}, notifiers, logger)

	// Services
	admissionService := services.NewAdmissionService(store, ledger, monitor, services.AdmissionConfig{
		CountMalformedAsFailure: cfg.Security.CountMalformedAsFailure,
	}, appMetrics, logger)
	rankingService := services.NewRankingService(cfg.Ranking.MissingPolicy)
	adminService := services.NewAdminService(store, ledger, monitor, cfg.Server.QuizBaseURL, logger)

	if cfg.Store.StaticCodesFile != "" {
		seedCtx, seedCancel := context.WithTimeout(context.Background(), 10*time.Second)
		err := seedStaticCodes(seedCtx, cfg.Store.StaticCodesFile, adminService, logger)
		seedCancel()
		if err != nil {
			logger.Error("failed to seed static codes", slog.Any("error", err))
			os.Exit(1)
		}
	}

	// Admin gate
	verifier, err := auth.NewAdminKeyVerifier(cfg.Security.AdminKey, cfg.Security.AdminKeyHash)
	if err != nil {
		logger.Error("failed to configure admin key", slog.Any("error", err))
		os.Exit(1)
	}
	timingDelay := auth.NewTimingDelay(auth.TimingConfig{
		BaseDelayMs:   cfg.Security.AdminFailureDelayMs,
		RandomDelayMs: cfg.Security.AdminFailureRandomMs,
	})
	adminGate := auth.NewAdminKeyMiddleware(verifier, timingDelay, pkglogger.NewAuditLogger(logger), ipConfig)

	// Periodic maintenance
	maintenance := background.NewSecurityMaintenance(ledger, monitor, appMetrics, logger)
	scheduler := background.NewScheduler(logger)
	if err := scheduler.Every("ledger-sweep", cfg.Security.SweepInterval, maintenance.RunSweep); err != nil {
		logger.Error("failed to schedule ledger sweep", slog.Any("error", err))
		os.Exit(1)
	}
	if err := scheduler.Every("attack-tick", cfg.Security.AttackTickInterval, maintenance.RunTick); err != nil {
		logger.Error("failed to schedule attack monitor", slog.Any("error", err))
		os.Exit(1)
	}

	// Setup router
	router := chi.NewRouter()
	router.Use(middleware.RequestID)
	router.Use(middlewareCustom.SecurityHeaders(middlewareCustom.SecurityHeadersConfig{Env: cfg.Server.Env}))
	router.Use(middlewareCustom.CORS(middlewareCustom.DefaultCORSConfig(cfg.Server.AllowedOrigins)))
	router.Use(middlewareCustom.SecureLogger(logger, ipConfig))
	router.Use(middlewareCustom.Metrics(appMetrics))
	router.Use(middleware.Recoverer)
	router.Use(middleware.Timeout(30 * time.Second))

	routes.RegisterRoutes(router, routes.Handlers{
		AccessCode: handlers.NewAccessCodeHandler(admissionService, ipConfig, logger),
		Ranking:    handlers.NewRankingHandler(rankingService),
		Admin:      handlers.NewAdminHandler(adminService, logger),
		Health:     handlers.NewHealthHandler(store, cfg.Store.Backend, logger),
		Metrics:    promhttp.HandlerFor(registry, promhttp.HandlerOpts{}),
	}, adminGate, middlewareCustom.RateLimitConfig{
		RequestsPerMinute: cfg.Server.PublicRequestsPerMinute,
	}, ipConfig)

	// Create server
	server := &http.Server{
		Addr:         ":" + cfg.Server.Port,
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	scheduler.Start()

	// Start server
	go func() {
		logger.Info("starting server", slog.String("addr", server.Addr))
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("server error", slog.Any("error", err))
			os.Exit(1)
		}
	}()

	// Graceful shutdown
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	<-sigChan

	logger.Info("shutdown signal received")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("server shutdown error", slog.Any("error", err))
	}
	scheduler.Stop(shutdownCtx)

	logger.Info("server stopped gracefully")
}

// newLogger builds the JSON logger, tee'd to a rotating file when LOG_FILE is set
func newLogger(cfg config.LogConfig) (*slog.Logger, io.Closer) {
	var level slog.Level
	if err := level.UnmarshalText([]byte(cfg.Level)); err != nil {
		level = slog.LevelInfo
	}

	var out io.Writer = os.Stdout
	var closer io.Closer = io.NopCloser(nil)
	if cfg.File != "" {
		rotating := &lumberjack.Logger{
			Filename:   cfg.File,
			MaxSize:    cfg.MaxSizeMB,
			MaxBackups: cfg.MaxBackups,
			MaxAge:     cfg.MaxAgeDays,
			Compress:   true,
		}
		out = io.MultiWriter(os.Stdout, rotating)
		closer = rotating
	}

	return slog.New(slog.NewJSONHandler(out, &slog.HandlerOptions{Level: level})), closer
}

// runCommand handles the operator subcommands used to provision the admin secret
func runCommand(args []string) int {
	switch args[0] {
	case "generate-admin-key":
		key, err := pkgauth.GenerateSecret()
		if err != nil {
			fmt.Fprintln(os.Stderr, err)
			return 1
		}
		fmt.Println(key)
		return 0

	case "hash-admin-key":
		if len(args) < 2 || strings.TrimSpace(args[1]) == "" {
			fmt.Fprintln(os.Stderr, "usage: quizgate hash-admin-key <key>")
			return 2
		}
		hash, err := pkgauth.HashSecret(strings.TrimSpace(args[1]))
		if err != nil {
			fmt.Fprintln(os.Stderr, err)
			return 1
		}
		fmt.Println(hash)
		return 0

	default:
		fmt.Fprintf(os.Stderr, "unknown command %q (expected generate-admin-key or hash-admin-key)\n", args[0])
		return 2
	}
}
