package main

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/getsentry/sentry-go"
	_ "github.com/lib/pq"
	goredis "github.com/redis/go-redis/v9"
	"github.com/spf13/viper"

	"github.com/Proton-105/frostbank/internal/bot"
	"github.com/Proton-105/frostbank/internal/database"
	apperrors "github.com/Proton-105/frostbank/internal/errors"
	"github.com/Proton-105/frostbank/internal/events"
	"github.com/Proton-105/frostbank/internal/health"
	"github.com/Proton-105/frostbank/internal/i18n"
	"github.com/Proton-105/frostbank/internal/idempotency"
	"github.com/Proton-105/frostbank/internal/jobs"
	jobhandlers "github.com/Proton-105/frostbank/internal/jobs/handlers"
	"github.com/Proton-105/frostbank/internal/ledger"
	"github.com/Proton-105/frostbank/internal/lifecycle"
	"github.com/Proton-105/frostbank/internal/middleware"
	"github.com/Proton-105/frostbank/internal/permission"
	"github.com/Proton-105/frostbank/internal/platform/discord"
	"github.com/Proton-105/frostbank/internal/platform/telegram"
	"github.com/Proton-105/frostbank/internal/ratelimit"
	"github.com/Proton-105/frostbank/internal/repository"
	"github.com/Proton-105/frostbank/internal/settings"
	"github.com/Proton-105/frostbank/internal/settingscache"
	"github.com/Proton-105/frostbank/migrations"
	"github.com/Proton-105/frostbank/pkg/config"
	"github.com/Proton-105/frostbank/pkg/graceful"
	"github.com/Proton-105/frostbank/pkg/logger"
	"github.com/Proton-105/frostbank/pkg/metrics"
	appredis "github.com/Proton-105/frostbank/pkg/redis"
)

const (
	rateLimitMaxAge   = time.Hour
	idempotencySweep  = time.Hour
	sentryFlushPeriod = 2 * time.Second
)

// platformAdapter is a running chat platform connection.
type platformAdapter interface {
	Start(ctx context.Context) error
	Stop(ctx context.Context) error
	HealthCheck(ctx context.Context) error
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx); err != nil {
		slog.Error("frostbank stopped with error", slog.Any("error", err))
		os.Exit(1)
	}
}

func run(ctx context.Context) error {
	cfg, v, err := config.Load()
	if err != nil {
		return err
	}

	if cfg.Sentry.Enabled {
		if err := sentry.Init(sentry.ClientOptions{
			Dsn:         cfg.Sentry.DSN,
			Environment: cfg.Sentry.Environment,
			SampleRate:  cfg.Sentry.SampleRate,
		}); err != nil {
			return fmt.Errorf("init sentry: %w", err)
		}
		defer sentry.Flush(sentryFlushPeriod)
	}

	log, logCloser := logger.New(cfg.Logger, cfg.Sentry.Enabled)
	defer func() { _ = logCloser.Close() }()
	slog.SetDefault(log)

	log.Info("starting frostbank",
		slog.String("env", cfg.AppEnv),
		slog.String("platform", cfg.Bot.Platform),
		slog.String("ops_port", cfg.Server.Port),
		slog.String("log_level", cfg.Logger.Level),
	)

	watchLogLevel(v, log)

	shutdown := lifecycle.NewShutdown(log)
	checker := health.NewChecker(log)

	db, err := openDatabase(ctx, cfg, log)
	if err != nil {
		return err
	}
	shutdown.Register(lifecycle.StageStorage, "database", func(context.Context) error { return db.Close() })
	checker.AddCheck("database", health.NewDBChecker(db))

	if err := database.NewMigrator(db, log).ApplyFS(ctx, migrations.FS, "."); err != nil {
		return fmt.Errorf("apply migrations: %w", err)
	}

	var rdb *appredis.Client
	if cfg.Redis.Enabled {
		rdb, err = appredis.New(ctx, cfg.Redis)
		if err != nil {
			return err
		}
		shutdown.Register(lifecycle.StageStorage, "redis", func(context.Context) error { return rdb.Close() })
		checker.AddCheck("redis", health.NewRedisChecker(rdb))
	}

	translations, err := i18n.Load(cfg.Bot.Language)
	if err != nil {
		return fmt.Errorf("load translations: %w", err)
	}

	var cache *settingscache.Cache
	if rdb != nil {
		cache = settingscache.NewCache(rdb.Client, cfg.Redis.SettingsTTL)
	}
	accounts := repository.NewAccountRepository(db, log)
	settingsStore := settingscache.NewStore(repository.NewSettingsRepository(db, log), cache, log)
	gate := permission.NewGate(settingsStore, cfg.Bot.SuperAdminID, log)

	publisher, err := events.NewPublisher(cfg.Events, log)
	if err != nil {
		return fmt.Errorf("create event publisher: %w", err)
	}

	ledgerSvc := ledger.NewService(accounts, gate, nil, publisher, ledger.SettingsFromConfig(cfg.Bank), log)
	shutdown.Register(lifecycle.StageOutbound, "events", func(context.Context) error {
		ledgerSvc.Wait()
		return publisher.Close()
	})
	settingsSvc := settings.NewService(settingsStore, gate, log)

	workersCtx, stopWorkers := context.WithCancel(context.Background())
	shutdown.Register(lifecycle.StageWorkers, "background", func(context.Context) error {
		stopWorkers()
		return nil
	})

	rateLimitMw, idempotencyManager := buildGuards(workersCtx, cfg, rdb, log)

	b := bot.New(*cfg, log, ledgerSvc, settingsSvc, translations, idempotencyManager, rateLimitMw)

	adapter, err := newAdapter(cfg, b, ledgerSvc, log)
	if err != nil {
		return err
	}
	checker.AddCheck(cfg.Bot.Platform, adapter)

	if err := adapter.Start(ctx); err != nil {
		return err
	}
	shutdown.Register(lifecycle.StageIngress, cfg.Bot.Platform, adapter.Stop)

	if presence, ok := adapter.(jobhandlers.VoicePresence); ok {
		scheduler := jobs.NewScheduler(log, jobs.Task{
			Interval: cfg.Bank.VoiceRewardInterval,
			Job:      jobhandlers.NewVoiceRewardHandler(presence, ledgerSvc, log),
		})
		if err := scheduler.RegisterTasks(); err != nil {
			return fmt.Errorf("register jobs: %w", err)
		}
		scheduler.Run()
		shutdown.Register(lifecycle.StageWorkers, "scheduler", scheduler.Shutdown)
	}

	go metrics.NewLedgerCollector(accounts, cfg.Bank.StatsInterval, log).Run(workersCtx)

	opsCtx, stopOps := context.WithCancel(context.Background())
	opsDone := make(chan error, 1)
	srv := graceful.NewServer(log, &http.Server{
		Addr:              ":" + cfg.Server.Port,
		Handler:           lifecycle.NewOpsHandler(lifecycle.NewProbes(checker, log), log),
		ReadHeaderTimeout: 5 * time.Second,
	}, cfg.Server.ShutdownTimeout)
	go func() { opsDone <- srv.ListenAndServe(opsCtx) }()
	shutdown.Register(lifecycle.StageIngress, "ops_server", func(context.Context) error {
		stopOps()
		return <-opsDone
	})

	log.Info("frostbank is running")
	<-ctx.Done()
	log.Info("frostbank shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()

	return shutdown.Execute(shutdownCtx)
}

func openDatabase(ctx context.Context, cfg *config.Config, log *slog.Logger) (*sql.DB, error) {
	db, err := sql.Open("postgres", cfg.GetDBConnectionString())
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	db.SetMaxOpenConns(cfg.Database.MaxOpenConns)
	db.SetMaxIdleConns(cfg.Database.MaxIdleConns)
	db.SetConnMaxLifetime(cfg.Database.ConnMaxLifetime)

	err = apperrors.WithRetry(ctx, func() error {
		if pingErr := db.PingContext(ctx); pingErr != nil {
			log.Warn("database not reachable yet", slog.Any("error", pingErr))
			return apperrors.NewDatabaseError(pingErr)
		}
		return nil
	})
	if err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	return db, nil
}

// buildGuards assembles the rate limit middleware and, with Redis, the idempotency manager.
// Either may be nil.
func buildGuards(ctx context.Context, cfg *config.Config, rdb *appredis.Client, log *slog.Logger) (*middleware.RateLimitMiddleware, idempotency.Manager) {
	var (
		rateLimitMw        *middleware.RateLimitMiddleware
		idempotencyManager idempotency.Manager
	)

	if cfg.RateLimit.Enabled {
		memory := ratelimit.NewMemoryLimiter(log)
		var (
			limiter ratelimit.Limiter = memory
			client  *goredis.Client
		)
		if rdb != nil {
			limiter = ratelimit.NewAdaptiveLimiter(ratelimit.NewRedisLimiter(rdb.Client, log), memory, log)
			client = rdb.Client
		}
		rateLimitMw = middleware.NewRateLimitMiddleware(limiter, ratelimit.NewRules(cfg.RateLimit), log)
		go ratelimit.NewCleaner(client, memory, cfg.RateLimit.CleanupInterval, rateLimitMaxAge, log).Run(ctx)
	}

	if rdb != nil {
		idempotencyManager = idempotency.NewManager(idempotency.NewRedisStore(rdb.Client, log), log)
		go idempotency.NewCleaner(rdb.Client, idempotencySweep, cfg.Redis.IdempotencyTTL, log).Run(ctx)
	}

	return rateLimitMw, idempotencyManager
}

func newAdapter(cfg *config.Config, b *bot.Bot, ledgerSvc *ledger.Service, log *slog.Logger) (platformAdapter, error) {
	switch cfg.Bot.Platform {
	case config.PlatformDiscord:
		adapter, err := discord.New(cfg.Bot, b, log)
		if err != nil {
			return nil, err
		}
		ledgerSvc.SetMemberDirectory(adapter)
		return adapter, nil
	case config.PlatformTelegram:
		return telegram.New(cfg.Bot, b, log)
	default:
		return nil, fmt.Errorf("unknown platform %q", cfg.Bot.Platform)
	}
}

func watchLogLevel(v *viper.Viper, log *slog.Logger) {
	if v == nil || v.ConfigFileUsed() == "" {
		return
	}
	if _, err := os.Stat(v.ConfigFileUsed()); errors.Is(err, os.ErrNotExist) {
		return
	}

	v.OnConfigChange(func(e fsnotify.Event) {
		level := v.GetString("logger.level")
		logger.SetLevel(level)
		log.Info("config reloaded", slog.String("file", e.Name), slog.String("log_level", level))
	})
	v.WatchConfig()
}
