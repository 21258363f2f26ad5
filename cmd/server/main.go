package main

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/renewly/reminder-service/internal/adapters/postgres"
	"github.com/renewly/reminder-service/internal/adapters/secrets"
	smtpadapter "github.com/renewly/reminder-service/internal/adapters/smtp"
	templateadapter "github.com/renewly/reminder-service/internal/adapters/template"
	"github.com/renewly/reminder-service/internal/adapters/zaplog"
	"github.com/renewly/reminder-service/internal/config"
	"github.com/renewly/reminder-service/internal/domain/ports"
	"github.com/renewly/reminder-service/internal/scheduler"
	"github.com/renewly/reminder-service/internal/services/mailqueue"
	"github.com/renewly/reminder-service/internal/services/reminder"
	"github.com/renewly/reminder-service/internal/services/renewal"
	"github.com/renewly/reminder-service/pkg/observability"
	"github.com/renewly/reminder-service/pkg/shutdown"
	"github.com/renewly/reminder-service/pkg/timeutil"
)

func main() {
	cfg, err := config.Load(".")
	if err != nil {
		panic(fmt.Sprintf("load config: %v", err))
	}

	logger := initLogger(cfg.Logger)
	defer logger.Sync()

	logger.Info("starting reminder service",
		zap.String("version", "0.1.0"),
	)

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	secretManager, err := initSecretManager(ctx, cfg.Secrets, logger)
	if err != nil {
		logger.Fatal("failed to initialize secret manager", zap.Error(err))
	}

	dbPassword, err := secretManager.GetSecret(ctx, cfg.Database.PasswordSecretName)
	if err != nil {
		logger.Fatal("failed to resolve database password", zap.Error(err))
	}

	pool, err := postgres.NewPool(ctx, cfg.Database.ConnectionString(dbPassword), cfg.Database.MaxConns, cfg.Database.MinConns)
	if err != nil {
		logger.Fatal("failed to initialize database", zap.Error(err))
	}
	defer pool.Close()

	logger.Info("database connection established",
		zap.String("database", cfg.Database.Database),
	)

	smtpPassword := ""
	if cfg.SMTP.Username != "" {
		smtpPassword, err = secretManager.GetSecret(ctx, cfg.SMTP.PasswordSecretName)
		if err != nil {
			logger.Fatal("failed to resolve smtp password", zap.Error(err))
		}
	}

	mailer, err := smtpadapter.NewMailer(smtpadapter.Config{
		Host:     cfg.SMTP.Host,
		Port:     cfg.SMTP.Port,
		Username: cfg.SMTP.Username,
		Password: smtpPassword,
		From:     cfg.SMTP.From,
		Timeout:  cfg.SMTP.Timeout,
	}, logger)
	if err != nil {
		logger.Fatal("failed to initialize mailer", zap.Error(err))
	}

	renderer, err := templateadapter.NewRenderer()
	if err != nil {
		logger.Fatal("failed to parse email templates", zap.Error(err))
	}

	appLogger := zaplog.New(logger)
	clock := timeutil.SystemClock{}

	db := postgres.NewDBExecutor(pool)
	subRepo := postgres.NewSubscriptionRepository(db)
	occRepo := postgres.NewOccurrenceRepository(db, subRepo)
	pendingRepo := postgres.NewPendingEmailRepository(db)
	jobLock := postgres.NewAdvisoryJobLock(pool)

	regenerator := reminder.NewRegenerator(appLogger)

	dispatcher := reminder.NewDispatcher(db, occRepo, subRepo, pendingRepo, mailer, renderer, clock, appLogger, cfg.Scheduler.DispatcherBatchSize)
	retryQueue := mailqueue.NewService(db, pendingRepo, mailer, clock, appLogger, cfg.Scheduler.RetryBatchSize)
	sweeper := renewal.NewSweeper(db, subRepo, regenerator, clock, appLogger, cfg.Scheduler.SweeperBatchSize)

	cronScheduler := scheduler.New(jobLock, appLogger, cfg.Scheduler,
		func(ctx context.Context) error { _, err := dispatcher.Run(ctx); return err },
		func(ctx context.Context) error { _, err := sweeper.Run(ctx); return err },
		func(ctx context.Context) error { _, err := retryQueue.Run(ctx); return err },
	)
	if err := cronScheduler.Start(); err != nil {
		logger.Fatal("failed to start scheduler", zap.Error(err))
	}
	logger.Info("scheduler started",
		zap.String("dispatcher", cfg.Scheduler.DispatcherCron),
		zap.String("sweeper", cfg.Scheduler.SweeperCron),
		zap.String("retry_queue", cfg.Scheduler.RetryCron),
	)

	healthChecker := observability.NewHealthChecker(pool)
	metricsServer := observability.StartMetricsServer(strconv.Itoa(cfg.Metrics.Port), healthChecker, logger)
	logger.Info("metrics server started", zap.Int("port", cfg.Metrics.Port))

	shutdownManager := shutdown.NewManager(logger, 30*time.Second)
	shutdownManager.Register("scheduler", func(ctx context.Context) error {
		stopped := cronScheduler.Stop()
		select {
		case <-stopped.Done():
			return nil
		case <-ctx.Done():
			return ctx.Err()
		}
	})
	shutdownManager.RegisterHTTPServer("metrics_server", metricsServer)
	shutdownManager.RegisterNoErr("database_pool", pool.Close)

	shutdownManager.WaitForShutdown()
}

func initLogger(cfg config.LoggerConfig) *zap.Logger {
	if cfg.Development {
		logger, _ := zap.NewDevelopment()
		return logger
	}

	zapCfg := zap.NewProductionConfig()
	level, err := zapcore.ParseLevel(cfg.Level)
	if err != nil {
		level = zapcore.InfoLevel
	}
	zapCfg.Level = zap.NewAtomicLevelAt(level)
	logger, _ := zapCfg.Build()
	return logger
}

func initSecretManager(ctx context.Context, cfg config.SecretsConfig, logger *zap.Logger) (ports.SecretManager, error) {
	switch cfg.Backend {
	case "aws":
		awsCfg := secrets.DefaultAWSSecretsManagerConfig(cfg.AWSRegion)
		awsCfg.Profile = cfg.AWSProfile
		awsCfg.Endpoint = cfg.AWSEndpoint
		return secrets.NewAWSSecretsManager(ctx, awsCfg, logger)
	case "vault":
		vaultCfg := secrets.DefaultVaultConfig(cfg.VaultAddress)
		vaultCfg.Token = cfg.VaultToken
		if cfg.VaultMountPath != "" {
			vaultCfg.MountPath = cfg.VaultMountPath
		}
		return secrets.NewVaultSecretManager(ctx, vaultCfg, logger)
	default:
		return secrets.NewEnvSecretManager(cfg.EnvPrefix, logger), nil
	}
}
