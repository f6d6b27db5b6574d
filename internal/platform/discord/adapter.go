// Package discord connects the bot to the Discord gateway.
package discord

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"strconv"
	"time"

	"github.com/bwmarrin/discordgo"

	"github.com/Proton-105/frostbank/internal/bot"
	"github.com/Proton-105/frostbank/internal/ledger"
	"github.com/Proton-105/frostbank/pkg/config"
)

const (
	commandTimeout   = 30 * time.Second
	memberPageSize   = 1000
	intentsRequested = discordgo.IntentsGuilds |
		discordgo.IntentsGuildMessages |
		discordgo.IntentsGuildVoiceStates |
		discordgo.IntentsGuildMembers
)

// deferredCommands may outlast Discord's response deadline, so they are acknowledged before
// running. The value is whether the successful reply is private.
var deferredCommands = map[string]bool{
	bot.CommandGrant:    false,
	bot.CommandWithdraw: false,
	bot.CommandExport:   true,
}

// ErrNotReady is reported by HealthCheck until the gateway session is ready.
var ErrNotReady = errors.New("discord session is not ready")

// Adapter runs the Discord gateway session and feeds the bot.
type Adapter struct {
	session *discordgo.Session
	bot     *bot.Bot
	guildID string
	log     *slog.Logger

	ctx    context.Context
	cancel context.CancelFunc
}

// New creates a session for the configured bot token. Nothing connects until Start.
func New(cfg config.BotConfig, b *bot.Bot, log *slog.Logger) (*Adapter, error) {
	if log == nil {
		log = slog.Default()
	}

	session, err := discordgo.New("Bot " + cfg.Token)
	if err != nil {
		return nil, fmt.Errorf("create discord session: %w", err)
	}
	session.Identify.Intents = intentsRequested
	session.State.TrackVoice = true
	session.State.TrackMembers = true

	ctx, cancel := context.WithCancel(context.Background())

	return &Adapter{
		session: session,
		bot:     b,
		guildID: cfg.GuildID,
		log:     log.With(slog.String("component", "discord")),
		ctx:     ctx,
		cancel:  cancel,
	}, nil
}

// Start opens the gateway and registers the slash commands.
func (a *Adapter) Start(ctx context.Context) error {
	a.session.AddHandler(a.onReady)
	a.session.AddHandler(a.onInteraction)
	a.session.AddHandler(a.onMessage)

	if err := a.session.Open(); err != nil {
		return fmt.Errorf("open discord gateway: %w", err)
	}

	defs := Definitions(a.bot.Translations(), a.bot.Commands())
	registered, err := a.session.ApplicationCommandBulkOverwrite(a.session.State.User.ID, a.guildID, defs, discordgo.WithContext(ctx))
	if err != nil {
		return fmt.Errorf("register slash commands: %w", err)
	}

	a.log.Info("slash commands registered", slog.Int("count", len(registered)), slog.String("guild_id", a.guildID))
	return nil
}

// Stop closes the gateway session and cancels in-flight commands.
func (a *Adapter) Stop(context.Context) error {
	a.cancel()
	if err := a.session.Close(); err != nil {
		return fmt.Errorf("close discord gateway: %w", err)
	}
	a.log.Info("discord session closed")
	return nil
}

// HealthCheck reports whether the gateway session is connected and ready.
func (a *Adapter) HealthCheck(context.Context) error {
	if !a.session.DataReady {
		return ErrNotReady
	}
	return nil
}

func (a *Adapter) onReady(_ *discordgo.Session, r *discordgo.Ready) {
	a.log.Info("discord session ready", slog.String("user", r.User.Username), slog.Int("guilds", len(r.Guilds)))
}

func (a *Adapter) onInteraction(s *discordgo.Session, i *discordgo.InteractionCreate) {
	if i.Type != discordgo.InteractionApplicationCommand {
		return
	}

	ctx, cancel := context.WithTimeout(a.ctx, commandTimeout)
	defer cancel()

	res := newResponder(s, s.State, i.Interaction)

	req, err := newRequest(i.Interaction)
	if err != nil {
		a.log.Error("failed to parse interaction", slog.String("interaction_id", i.ID), slog.Any("error", err))
		return
	}

	if private, slow := deferredCommands[req.Command]; slow {
		if err := res.Defer(ctx, private); err != nil {
			a.log.Warn("failed to defer interaction", slog.String("command", req.Command), slog.Any("error", err))
		}
	}

	if err := a.bot.HandleCommand(ctx, req, res); err != nil {
		a.log.Warn("command not handled", slog.String("command", req.Command), slog.Any("error", err))
	}
}

func (a *Adapter) onMessage(_ *discordgo.Session, m *discordgo.MessageCreate) {
	if m.Author == nil {
		return
	}

	userID, err := strconv.ParseInt(m.Author.ID, 10, 64)
	if err != nil {
		return
	}

	ctx, cancel := context.WithTimeout(a.ctx, commandTimeout)
	defer cancel()

	a.bot.HandleMessage(ctx, ledger.MessageActivity{
		UserID:  userID,
		IsBot:   m.Author.Bot,
		InGuild: m.GuildID != "",
	})
}

// VoiceUsers returns the non-bot users connected to a voice channel in any guild the bot
// sees, or only the configured guild when one is set.
func (a *Adapter) VoiceUsers(context.Context) ([]int64, error) {
	return voiceUsers(a.session.State, a.guildID)
}

func voiceUsers(state *discordgo.State, guildID string) ([]int64, error) {
	state.RLock()
	defer state.RUnlock()

	var ids []int64
	for _, guild := range state.Guilds {
		if guildID != "" && guild.ID != guildID {
			continue
		}
		for _, vs := range guild.VoiceStates {
			if vs.ChannelID == "" || isBot(state, guild, vs) {
				continue
			}
			id, err := strconv.ParseInt(vs.UserID, 10, 64)
			if err != nil {
				return nil, fmt.Errorf("parse voice user id: %w", err)
			}
			ids = append(ids, id)
		}
	}
	return ids, nil
}

// isBot expects the state read lock to be held.
func isBot(state *discordgo.State, guild *discordgo.Guild, vs *discordgo.VoiceState) bool {
	if vs.Member != nil && vs.Member.User != nil {
		return vs.Member.User.Bot
	}
	for _, member := range guild.Members {
		if member.User != nil && member.User.ID == vs.UserID {
			return member.User.Bot
		}
	}
	return state.User != nil && state.User.ID == vs.UserID
}

// RoleMembers pages through the guild member list and returns the non-bot holders of
// roleID. The @everyone role shares the guild id and is held by every member.
func (a *Adapter) RoleMembers(ctx context.Context, guildID, roleID int64) ([]int64, error) {
	after := ""

	var ids []int64
	for {
		page, err := a.session.GuildMembers(formatID(guildID), after, memberPageSize, discordgo.WithContext(ctx))
		if err != nil {
			return nil, fmt.Errorf("list guild members: %w", err)
		}

		holders, err := roleHolders(page, guildID, roleID)
		if err != nil {
			return nil, err
		}
		ids = append(ids, holders...)

		if len(page) < memberPageSize {
			return ids, nil
		}
		after = page[len(page)-1].User.ID
	}
}

func roleHolders(members []*discordgo.Member, guildID, roleID int64) ([]int64, error) {
	role := formatID(roleID)
	everyone := roleID == guildID

	var ids []int64
	for _, member := range members {
		if member.User == nil || member.User.Bot {
			continue
		}
		if !everyone && !slices.Contains(member.Roles, role) {
			continue
		}
		id, err := strconv.ParseInt(member.User.ID, 10, 64)
		if err != nil {
			return nil, fmt.Errorf("parse member id: %w", err)
		}
		ids = append(ids, id)
	}
	return ids, nil
}
