package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/openCoreEMR/oce-module-sinch-conversations/internal/config"
	"github.com/openCoreEMR/oce-module-sinch-conversations/internal/constants"
	"github.com/openCoreEMR/oce-module-sinch-conversations/internal/database"
	"github.com/openCoreEMR/oce-module-sinch-conversations/internal/models"
	"github.com/openCoreEMR/oce-module-sinch-conversations/internal/retry"
	"github.com/openCoreEMR/oce-module-sinch-conversations/internal/service"
	"github.com/openCoreEMR/oce-module-sinch-conversations/internal/sinch"
	"github.com/openCoreEMR/oce-module-sinch-conversations/internal/tracing"

	"github.com/joho/godotenv"
	"github.com/sirupsen/logrus"
)

var (
	// Version information (set at build time)
	Version   = "dev"
	BuildTime = "unknown"
	GitCommit = "unknown"

	// CLI flags
	verbose    = flag.Bool("verbose", false, "Enable verbose logging (includes sensitive information)")
	configPath = flag.String("config", "config.json", "Path to configuration file")
	version    = flag.Bool("version", false, "Show version information")
)

func main() {
	flag.Parse()

	if *version {
		fmt.Printf("sinch-conversations %s\nBuild Time: %s\nGit Commit: %s\n", Version, BuildTime, GitCommit)
		os.Exit(0)
	}

	_ = godotenv.Load()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx); err != nil {
		logrus.Fatalf("Application error: %v", err)
	}
}

func run(ctx context.Context) error {
	logger := logrus.New()
	logger.SetFormatter(&logrus.JSONFormatter{})

	logger.WithFields(logrus.Fields{
		"version": Version,
		"build":   BuildTime,
		"commit":  GitCommit,
	}).Info("Starting sinch-conversations")

	cfg, err := config.Load(*configPath)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	configureLogLevel(logger, cfg)

	tracingManager := tracing.NewManager(cfg.Tracing, Version, logger)
	if err := tracingManager.Initialize(ctx); err != nil {
		logger.Warnf("Failed to initialize tracing: %v", err)
	}
	defer func() {
		if err := tracingManager.Shutdown(context.Background()); err != nil {
			logger.Warnf("Failed to shutdown tracing: %v", err)
		}
	}()

	retryCfg := retry.Config{
		MaxRetries:   cfg.Retry.MaxRetries,
		InitialDelay: time.Duration(cfg.Retry.InitialBackoffMs) * time.Millisecond,
		MaxDelay:     time.Duration(cfg.Retry.MaxBackoffMs) * time.Millisecond,
	}

	// SQLite open can hit a transient lock when another process holds the
	// file, so the open itself goes through the backoff executor.
	var db *database.Database
	executor := retry.NewExecutor(retryCfg)
	err = executor.Do(ctx, func(context.Context) (int, error) {
		var initErr error
		db, initErr = database.New(cfg.Database.Path)
		if initErr != nil {
			logger.Warnf("Failed to initialize database: %v", initErr)
		}
		return 0, initErr
	})
	if err != nil || db == nil {
		return fmt.Errorf("failed to initialize database after retries: %w", err)
	}
	defer db.Close()

	client := sinch.NewClient(cfg.Sinch, retryCfg, logger)

	if err := client.TestConnection(ctx); err != nil {
		logger.Warnf("Sinch connectivity check failed: %v", err)
	} else {
		logger.Info("Sinch connectivity check passed")
	}

	consentService := service.NewConsentService(db, logger)
	templateService := service.NewTemplateService(db, client, logger)
	messageService := service.NewMessageService(db, db, db, consentService, templateService, client, db, logger)
	consentService.SetConfirmationSender(messageService)

	keywordRouter := service.NewKeywordRouter(db, consentService, messageService, logger)

	poller := service.NewConversationPoller(db, client, keywordRouter, cfg.Polling, logger)
	if err := poller.Start(ctx); err != nil {
		logger.Warnf("Failed to start conversation poller: %v", err)
	}
	defer poller.Stop()

	// Log level and retention follow config file edits without a restart.
	watcher := config.NewWatcher(*configPath, logger)
	watcher.OnConfigChange(func(updated *models.Config) {
		configureLogLevel(logger, updated)
	})
	go func() {
		if err := watcher.Start(ctx); err != nil {
			logger.WithError(err).Warn("Configuration watcher failed to start")
		}
	}()

	go runRetentionCleanup(ctx, db, cfg.RetentionDays, logger)

	server := NewServer(cfg, messageService, consentService, keywordRouter, templateService, logger)
	serverErrCh := make(chan error, 1)
	go func() {
		if err := server.Start(); err != nil {
			serverErrCh <- fmt.Errorf("server error: %w", err)
		}
	}()

	select {
	case <-ctx.Done():
		logger.Info("Received shutdown signal")
	case err := <-serverErrCh:
		logger.Error(err)
		return err
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), constants.DefaultGracefulShutdownSec*time.Second)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("failed to shutdown server gracefully: %w", err)
	}

	logger.Info("Server shutdown completed")
	return nil
}

func configureLogLevel(logger *logrus.Logger, cfg *models.Config) {
	if *verbose {
		logger.SetLevel(logrus.DebugLevel)
		logger.Info("Verbose logging enabled - sensitive information will be logged")
		return
	}

	level, err := logrus.ParseLevel(cfg.LogLevel)
	if err != nil {
		logger.Warnf("Invalid log level %q, defaulting to info", cfg.LogLevel)
		logger.SetLevel(logrus.InfoLevel)
		return
	}
	if level > logrus.InfoLevel {
		level = logrus.InfoLevel
	}
	logger.SetLevel(level)
}

// runRetentionCleanup purges old message rows once a day until the context
// is cancelled.
func runRetentionCleanup(ctx context.Context, db *database.Database, retentionDays int, logger *logrus.Logger) {
	ticker := time.NewTicker(24 * time.Hour)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := db.CleanupOldMessages(retentionDays); err != nil {
				logger.WithError(err).Error("Retention cleanup failed")
			} else {
				logger.WithField("retention_days", retentionDays).Info("Retention cleanup completed")
			}
		}
	}
}
