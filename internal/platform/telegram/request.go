package telegram

import (
	"fmt"
	"strconv"
	"strings"

	telebot "gopkg.in/telebot.v3"

	"github.com/Proton-105/frostbank/internal/bot"
	"github.com/Proton-105/frostbank/internal/bot/handlers"
	apperrors "github.com/Proton-105/frostbank/internal/errors"
	"github.com/Proton-105/frostbank/internal/ledger"
	"github.com/Proton-105/frostbank/internal/permission"
)

// Platform is the request platform name used for de-duplication keys.
const Platform = "telegram"

// commands lists the bot commands reachable from Telegram. Role based commands have no
// Telegram counterpart.
var commands = []string{
	bot.CommandBalance,
	bot.CommandTransfer,
	bot.CommandGrant,
	bot.CommandWithdraw,
	bot.CommandSnowfall,
	bot.CommandLeaderboard,
	bot.CommandExport,
	bot.CommandChannelAdd,
	bot.CommandChannelRemove,
	bot.CommandChannelList,
}

// adminCommands need the caller's chat administrator status.
var adminCommands = map[string]bool{
	bot.CommandGrant:         true,
	bot.CommandWithdraw:      true,
	bot.CommandExport:        true,
	bot.CommandChannelAdd:    true,
	bot.CommandChannelRemove: true,
	bot.CommandChannelList:   true,
}

// endpoint turns a command name into its Telegram form, e.g. channel-add -> /channel_add.
func endpoint(command string) string {
	return "/" + strings.ReplaceAll(command, "-", "_")
}

// baseRequest fills everything but the options. The message id doubles as interaction id.
func baseRequest(command string, msg *telebot.Message) *handlers.Request {
	req := &handlers.Request{
		Command:       command,
		Platform:      Platform,
		InteractionID: fmt.Sprintf("%d:%d", msg.Chat.ID, msg.ID),
		ChannelID:     msg.Chat.ID,
	}
	if msg.Chat.Type != telebot.ChatPrivate {
		req.GuildID = msg.Chat.ID
	}
	if msg.Sender != nil {
		req.Caller = permission.Caller{UserID: msg.Sender.ID}
		req.Lang = msg.Sender.LanguageCode
	}
	return req
}

// parseOptions reads command arguments. Targets are given by replying to their message.
func parseOptions(command string, msg *telebot.Message, args []string) (handlers.Options, error) {
	var opts handlers.Options

	switch command {
	case bot.CommandBalance:
		opts.User = replyTarget(msg)
	case bot.CommandTransfer, bot.CommandGrant, bot.CommandWithdraw:
		amount, err := parseAmount(args)
		if err != nil {
			return opts, err
		}
		opts.Amount = amount

		opts.User = replyTarget(msg)
		if opts.User == nil {
			return opts, apperrors.NewValidationError(apperrors.MsgReplyRequired, command+" needs a reply target")
		}

		if command != bot.CommandTransfer && len(args) > 1 {
			opts.Reason = strings.Join(args[1:], " ")
		}
	}

	return opts, nil
}

func parseAmount(args []string) (int64, error) {
	if len(args) == 0 {
		return 0, apperrors.NewValidationError(apperrors.MsgInvalidAmount, "amount is missing")
	}
	amount, err := strconv.ParseInt(args[0], 10, 64)
	if err != nil {
		return 0, apperrors.NewValidationError(apperrors.MsgInvalidAmount, fmt.Sprintf("amount %q is not a number", args[0]))
	}
	return amount, nil
}

func replyTarget(msg *telebot.Message) *ledger.Member {
	if msg.ReplyTo == nil || msg.ReplyTo.Sender == nil {
		return nil
	}
	return &ledger.Member{ID: msg.ReplyTo.Sender.ID, IsBot: msg.ReplyTo.Sender.IsBot}
}

func isChatAdmin(member *telebot.ChatMember) bool {
	return member != nil && (member.Role == telebot.Administrator || member.Role == telebot.Creator)
}
