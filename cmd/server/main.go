package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"docsync/internal/api"
	"docsync/internal/config"
	"docsync/internal/db"
	"docsync/internal/logging"
	"docsync/internal/metrics"
	"docsync/internal/repository"
	"docsync/internal/services"
	"docsync/internal/services/collaboration"
	"docsync/internal/telemetry"

	"github.com/spf13/cobra"
)

var envFile string

func main() {
	if err := buildRootCmd().Execute(); err != nil {
		logging.DefaultLogger().Errorf("❌ %v", err)
		os.Exit(1)
	}
}

func buildRootCmd() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "docsync",
		Short: "Real-time collaborative document sessions over websockets",
		// Running the bare binary serves.
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(cmd.Context())
		},
		SilenceUsage: true,
	}
	rootCmd.PersistentFlags().StringVar(&envFile, "env-file", ".env", "Path to a dotenv file loaded before the environment")

	rootCmd.AddCommand(
		buildServeCmd(),
		buildMigrateCmd(),
	)

	return rootCmd
}

func buildServeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Start the collaboration server",
		Long: `Start the HTTP server hosting the collaboration websocket at /ws/collaborate.

Graceful shutdown is handled on SIGINT/SIGTERM signals.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(cmd.Context())
		},
	}
}

func buildMigrateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Create the document tables and the share change trigger",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runMigrate()
		},
	}
}

func loadConfig() (*config.Config, error) {
	cfg, err := config.Load(envFile)
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}
	if err := logging.SetLogLevel(cfg.LogLevel); err != nil {
		return nil, err
	}
	return cfg, nil
}

func runMigrate() error {
	logger := logging.New("migrate")

	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	database, err := db.NewGorm(cfg)
	if err != nil {
		return fmt.Errorf("failed to connect to database: %w", err)
	}
	defer database.Close()

	if err := database.Migrate(cfg.ShareNotifyChannel); err != nil {
		return err
	}

	logger.Info("✓ Migrations applied")
	return nil
}

func runServe(ctx context.Context) error {
	if ctx == nil {
		ctx = context.Background()
	}
	logger := logging.New("server")
	logger.Info("🚀 Starting docsync collaboration server...")

	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	// Tracing first so everything after it is traced
	jaegerShutdown, err := telemetry.InitJaeger("docsync", cfg.JaegerEndpoint, cfg.TracingEnabled)
	if err != nil {
		logger.Warnf("⚠️  Failed to initialize Jaeger: %v (continuing without tracing)", err)
		jaegerShutdown = func(context.Context) error { return nil }
	}
	defer func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := jaegerShutdown(ctx); err != nil {
			logger.Warnf("⚠️  Failed to shutdown Jaeger: %v", err)
		}
	}()

	database, err := db.NewGorm(cfg)
	if err != nil {
		return fmt.Errorf("failed to connect to database: %w", err)
	}
	defer database.Close()

	docRepo := repository.NewDocumentRepository(database.DB)

	var shares services.ShareReader = docRepo
	listenCtx, stopListener := context.WithCancel(ctx)
	defer stopListener()

	if cfg.RedisURL != "" {
		redisClient, err := repository.NewRedisClient(ctx, cfg.RedisURL)
		if err != nil {
			return err
		}
		defer redisClient.Close()

		cache := repository.NewCachedShareRepository(docRepo, redisClient, cfg.ShareCacheTTL)
		shares = cache

		listener, err := repository.NewShareChangeListener(cfg.DatabaseURL(), cfg.ShareNotifyChannel, cache)
		if err != nil {
			return err
		}
		defer listener.Close()
		go listener.Run(listenCtx)

		logger.Infof("✓ Share cache enabled (ttl %s, channel %s)", cfg.ShareCacheTTL, cfg.ShareNotifyChannel)
	}

	resolver := services.NewAccessResolver(docRepo, shares)

	m, err := metrics.NewMetrics()
	if err != nil {
		return fmt.Errorf("failed to register metrics: %w", err)
	}

	sessionManager := collaboration.NewSessionManager(resolver, collaboration.Options{
		ReaperInterval:    cfg.ReaperInterval,
		InactivityTimeout: cfg.InactivityTimeout,
		Metrics:           m,
		Logger:            logging.New("collaboration"),
	})
	sessionManager.Start()

	wsHandler := collaboration.NewWebSocketHandler(sessionManager, collaboration.HandlerOptions{
		AllowedOrigins:  cfg.AllowedOrigins,
		SendBufferSize:  cfg.SendBufferSize,
		MaxMessageBytes: cfg.MaxMessageBytes,
	})

	handler := api.NewHandler(sessionManager, wsHandler, m.Handler())
	router := api.SetupRoutes(handler)

	// No write timeout: websocket handlers live as long as the connection.
	server := &http.Server{
		Addr:              cfg.Addr(),
		Handler:           router,
		ReadHeaderTimeout: 15 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	serverErr := make(chan error, 1)
	go func() {
		logger.Infof("🌐 Server listening on http://%s", cfg.Addr())
		logger.Info("📚 Endpoints:")
		logger.Info("   GET /ws/collaborate                 - Collaboration websocket")
		logger.Info("   GET /api/collaboration/sessions     - Live sessions")
		logger.Info("   GET /api/documents/:id/presence     - Session roster")
		logger.Info("   GET /api/health                     - Health check")
		logger.Info("   GET /metrics                        - Prometheus metrics")

		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErr <- err
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(quit)

	select {
	case <-quit:
	case err := <-serverErr:
		sessionManager.Shutdown()
		return fmt.Errorf("server error: %w", err)
	}

	logger.Info("🛑 Shutting down server...")

	// Hijacked websocket connections are not tracked by Shutdown; close them
	// first so their handlers return.
	sessionManager.Shutdown()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Warnf("⚠️  Server forced to shutdown: %v", err)
	}

	logger.Info("✓ Server shutdown complete")
	return nil
}
