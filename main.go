package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"

	"go.uber.org/zap"

	"github.com/mdmkit/reconcile-engine/pkg/config"
	"github.com/mdmkit/reconcile-engine/pkg/database"
	"github.com/mdmkit/reconcile-engine/pkg/logging"
	"github.com/mdmkit/reconcile-engine/pkg/repositories"
	"github.com/mdmkit/reconcile-engine/pkg/scheduler"
	"github.com/mdmkit/reconcile-engine/pkg/services"
)

// Version is set at build time via ldflags
var Version = "dev"

func main() {
	cfg, err := config.Load(Version)
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	var logger *zap.Logger
	if cfg.Env == "local" {
		logger, err = zap.NewDevelopment()
	} else {
		logger, err = zap.NewProduction()
	}
	if err != nil {
		log.Fatalf("Failed to create logger: %v", err)
	}
	defer logger.Sync()

	logger.Info("Starting reconcile-engine",
		zap.String("version", cfg.Version),
		zap.String("env", cfg.Env),
		zap.String("database", cfg.Database.Database),
		zap.String("database_host", cfg.Database.Host))

	ctx := context.Background()

	db, err := database.NewConnection(ctx, &cfg.Database)
	if err != nil {
		logger.Fatal("Failed to connect to database",
			zap.String("error", logging.SanitizeError(err)))
	}
	defer db.Close()

	if err := database.RunMigrations(cfg.Database.URL(), cfg.MigrationsPath, logger); err != nil {
		logger.Fatal("Failed to run migrations", zap.Error(err))
	}

	redisClient, err := database.NewRedisClient(&cfg.Redis)
	if err != nil {
		logger.Warn("Redis unavailable, settings cache disabled", zap.Error(err))
	}
	if redisClient != nil {
		defer redisClient.Close()
	}

	// Repositories
	recordRepo := repositories.NewMasterRecordRepository()
	versionRepo := repositories.NewRecordVersionRepository()
	conflictRepo := repositories.NewConflictRepository()
	changeLogRepo := repositories.NewChangeLogRepository()
	settingsRepo := repositories.NewOrgSettingsRepository()

	// Services
	orgConfig := services.NewOrgConfigService(settingsRepo, redisClient, cfg.Redis.SettingsTTL, logger)
	tracker := services.NewChangeTracker(changeLogRepo, logger)
	recordService := services.NewMasterRecordService(recordRepo, versionRepo, orgConfig, tracker, logger)
	conflictService := services.NewConflictService(conflictRepo, logger)
	resolutionService := services.NewResolutionService(recordService, conflictService, logger)
	autoResolver := services.NewAutoResolutionService(conflictRepo, orgConfig, resolutionService, logger)

	scopes := database.NewOrgScopeProvider(db)

	if cfg.Scheduler.Enabled {
		sched := scheduler.New(scopes, settingsRepo, autoResolver, cfg.Scheduler.Schedule, logger)
		if err := sched.Start(); err != nil {
			logger.Fatal("Failed to start scheduler", zap.Error(err))
		}
		defer sched.Stop()
	} else {
		logger.Info("Auto-resolution scheduler disabled")
	}

	logger.Info("reconcile-engine ready")

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("Shutting down")
}
