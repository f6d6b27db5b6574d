// Package telegram connects the bot to the Telegram Bot API. Roles and voice presence do
// not exist there, so role targets and the voice reward are unavailable.
package telegram

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	telebot "gopkg.in/telebot.v3"

	"github.com/Proton-105/frostbank/internal/bot"
	"github.com/Proton-105/frostbank/internal/ledger"
	"github.com/Proton-105/frostbank/pkg/config"
)

const commandTimeout = 30 * time.Second

// Adapter runs the Telegram long poller and feeds the bot.
type Adapter struct {
	tb  *telebot.Bot
	bot *bot.Bot
	log *slog.Logger

	ctx    context.Context
	cancel context.CancelFunc
}

// New creates the Telegram client. telebot validates the token with getMe here.
func New(cfg config.BotConfig, b *bot.Bot, log *slog.Logger) (*Adapter, error) {
	if log == nil {
		log = slog.Default()
	}

	a := &Adapter{
		bot: b,
		log: log.With(slog.String("component", "telegram")),
	}
	a.ctx, a.cancel = context.WithCancel(context.Background())

	timeout := cfg.TelegramTimeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}

	tb, err := telebot.NewBot(telebot.Settings{
		Token:   cfg.Token,
		Poller:  &telebot.LongPoller{Timeout: timeout},
		OnError: a.onError,
	})
	if err != nil {
		return nil, fmt.Errorf("initialize telebot: %w", err)
	}
	a.tb = tb

	return a, nil
}

// Start registers the handlers and the command menu, then polls in the background.
func (a *Adapter) Start(context.Context) error {
	a.tb.Handle("/start", a.onStart)
	for _, command := range commands {
		a.tb.Handle(endpoint(command), a.command(command))
	}
	a.tb.Handle(telebot.OnText, a.onText)

	if err := a.setCommands(); err != nil {
		a.log.Warn("failed to publish command menu", slog.Any("error", err))
	}

	go a.tb.Start()
	a.log.Info("telegram poller started", slog.String("username", a.tb.Me.Username))
	return nil
}

// Stop halts polling and cancels in-flight commands.
func (a *Adapter) Stop(context.Context) error {
	a.cancel()
	a.tb.Stop()
	a.log.Info("telegram poller stopped")
	return nil
}

// HealthCheck ensures the underlying bot is initialized.
func (a *Adapter) HealthCheck(context.Context) error {
	if a.tb == nil || a.tb.Me == nil {
		return errors.New("telegram bot is not initialized or disconnected")
	}
	return nil
}

func (a *Adapter) setCommands() error {
	translations := a.bot.Translations()
	for _, lang := range translations.Languages() {
		t := translations.Translator(lang)

		list := make([]telebot.Command, 0, len(commands))
		for _, command := range commands {
			list = append(list, telebot.Command{
				Text:        endpoint(command)[1:],
				Description: t.T("command." + command + ".description"),
			})
		}

		opts := []interface{}{list}
		if lang != translations.DefaultLang() {
			opts = append(opts, lang)
		}
		if err := a.tb.SetCommands(opts...); err != nil {
			return fmt.Errorf("set %s commands: %w", lang, err)
		}
	}
	return nil
}

func (a *Adapter) command(name string) telebot.HandlerFunc {
	return func(c telebot.Context) error {
		msg := c.Message()
		if msg == nil || msg.Sender == nil {
			return nil
		}

		ctx, cancel := context.WithTimeout(a.ctx, commandTimeout)
		defer cancel()

		req := baseRequest(name, msg)
		res := newResponder(a.tb, msg)

		if adminCommands[name] && msg.Chat.Type != telebot.ChatPrivate {
			member, err := a.tb.ChatMemberOf(msg.Chat, msg.Sender)
			if err != nil {
				a.log.Warn("failed to resolve chat member", slog.Int64("user_id", msg.Sender.ID), slog.Any("error", err))
			}
			req.Caller.IsPlatformAdmin = isChatAdmin(member)
		}

		opts, err := parseOptions(name, msg, c.Args())
		if err != nil {
			return a.bot.Reject(ctx, req, res, err)
		}
		req.Options = opts

		if err := a.bot.HandleCommand(ctx, req, res); err != nil {
			a.log.Warn("command not handled", slog.String("command", name), slog.Any("error", err))
		}
		return nil
	}
}

func (a *Adapter) onStart(c telebot.Context) error {
	lang := ""
	if sender := c.Sender(); sender != nil {
		lang = sender.LanguageCode
	}
	t := a.bot.Translations().Translator(lang)
	return c.Send(t.T("start.welcome"), mainMenu())
}

func (a *Adapter) onText(c telebot.Context) error {
	msg := c.Message()
	if msg == nil || msg.Sender == nil {
		return nil
	}

	ctx, cancel := context.WithTimeout(a.ctx, commandTimeout)
	defer cancel()

	a.bot.HandleMessage(ctx, ledger.MessageActivity{
		UserID:  msg.Sender.ID,
		IsBot:   msg.Sender.IsBot,
		InGuild: msg.Chat.Type != telebot.ChatPrivate,
	})
	return nil
}

func (a *Adapter) onError(err error, c telebot.Context) {
	attrs := []any{slog.Any("error", err)}
	if c != nil && c.Sender() != nil {
		attrs = append(attrs, slog.Int64("user_id", c.Sender().ID))
	}
	a.log.Error("telegram handler failed", attrs...)
}
