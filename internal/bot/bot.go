package bot

import (
	"context"
	"log/slog"
	"time"

	"github.com/Proton-105/frostbank/internal/bot/handlers"
	errors "github.com/Proton-105/frostbank/internal/errors"
	"github.com/Proton-105/frostbank/internal/i18n"
	"github.com/Proton-105/frostbank/internal/idempotency"
	"github.com/Proton-105/frostbank/internal/ledger"
	"github.com/Proton-105/frostbank/internal/middleware"
	"github.com/Proton-105/frostbank/pkg/config"
)

// Ledger is the ledger engine as seen by the bot.
type Ledger interface {
	handlers.Ledger
	PassiveMessageReward(ctx context.Context, activity ledger.MessageActivity) bool
}

// Bot is the platform-neutral command core. Platform adapters translate their events into
// requests and hand them to HandleCommand and HandleMessage.
type Bot struct {
	ledger             Ledger
	settings           handlers.SettingsService
	i18n               *i18n.Manager
	cfg                config.Config
	router             *Router
	errHandler         *errors.Handler
	rateLimitMw        *middleware.RateLimitMiddleware
	idempotencyManager idempotency.Manager
	log                *slog.Logger
}

// New assembles the command router and its middleware chain.
func New(
	cfg config.Config,
	log *slog.Logger,
	l Ledger,
	settings handlers.SettingsService,
	translations *i18n.Manager,
	idempotencyManager idempotency.Manager,
	rateLimitMw *middleware.RateLimitMiddleware,
) *Bot {
	if log == nil {
		log = slog.Default()
	}

	b := &Bot{
		ledger:             l,
		settings:           settings,
		i18n:               translations,
		cfg:                cfg,
		router:             NewRouter(log),
		errHandler:         errors.NewHandler(log, cfg.Sentry.Enabled),
		rateLimitMw:        rateLimitMw,
		idempotencyManager: idempotencyManager,
		log:                log.With(slog.String("component", "bot")),
	}

	b.setupRouter(log)

	return b
}

func (b *Bot) setupRouter(log *slog.Logger) {
	b.router.Use(RecoveryMiddleware(log, b.errHandler, b.i18n))
	b.router.Use(LoggingMiddleware(log))
	b.router.Use(ErrorHandlingMiddleware(b.errHandler, b.i18n, log))
	b.router.Use(middleware.Metrics)
	if b.rateLimitMw != nil {
		b.router.Use(b.rateLimitMw.Handle)
	}
	b.router.Use(middleware.Idempotency(b.idempotencyManager, b.idempotencyTTL(), log))

	bank := handlers.NewBank(b.ledger, b.i18n, log)
	b.router.RegisterCommand(CommandBalance, bank.Balance)
	b.router.RegisterCommand(CommandTransfer, bank.Transfer)
	b.router.RegisterCommand(CommandGrant, bank.Grant)
	b.router.RegisterCommand(CommandWithdraw, bank.Withdraw)
	b.router.RegisterCommand(CommandSnowfall, bank.Snowfall)
	b.router.RegisterCommand(CommandLeaderboard, bank.Leaderboard)
	b.router.RegisterCommand(CommandExport, bank.Export)

	if b.settings == nil {
		return
	}

	settings := handlers.NewSettings(b.settings, b.i18n, log)
	b.router.RegisterCommand(CommandChannelAdd, settings.ChannelAdd)
	b.router.RegisterCommand(CommandChannelRemove, settings.ChannelRemove)
	b.router.RegisterCommand(CommandChannelList, settings.ChannelList)
	b.router.RegisterCommand(CommandManagerRoleAdd, settings.ManagerRoleAdd)
	b.router.RegisterCommand(CommandManagerRoleRemove, settings.ManagerRoleRemove)
	b.router.RegisterCommand(CommandManagerRoleList, settings.ManagerRoleList)
}

func (b *Bot) idempotencyTTL() time.Duration {
	if b.cfg.Redis.IdempotencyTTL > 0 {
		return b.cfg.Redis.IdempotencyTTL
	}
	return 24 * time.Hour
}

// HandleCommand routes one command invocation. Handler failures are answered to the caller
// and never returned; only unknown commands produce an error.
func (b *Bot) HandleCommand(ctx context.Context, req *handlers.Request, res handlers.Responder) error {
	if req.Lang == "" {
		req.Lang = b.cfg.Bot.Language
	}
	return b.router.Route(ctx, req, res)
}

// Reject answers a request the platform adapter could not parse. err runs through the same
// middleware chain as a failed command.
func (b *Bot) Reject(ctx context.Context, req *handlers.Request, res handlers.Responder, err error) error {
	if req.Lang == "" {
		req.Lang = b.cfg.Bot.Language
	}
	return b.router.applyMiddlewares(func(context.Context, *handlers.Request, handlers.Responder) error {
		return err
	})(ctx, req, res)
}

// HandleMessage credits the passive message reward. It reports whether a reward was paid.
func (b *Bot) HandleMessage(ctx context.Context, activity ledger.MessageActivity) bool {
	return b.ledger.PassiveMessageReward(ctx, activity)
}

// Commands lists the registered command names.
func (b *Bot) Commands() []string {
	return b.router.Commands()
}

// Translations exposes the localisation bundle for platform command registration.
func (b *Bot) Translations() *i18n.Manager {
	return b.i18n
}
