package discord

import (
	"bytes"
	"context"
	"fmt"
	"sync"

	"github.com/bwmarrin/discordgo"

	"github.com/Proton-105/frostbank/internal/bot/handlers"
)

// interactionAPI is the part of discordgo.Session used to answer interactions.
type interactionAPI interface {
	InteractionRespond(interaction *discordgo.Interaction, resp *discordgo.InteractionResponse, options ...discordgo.RequestOption) error
	FollowupMessageCreate(interaction *discordgo.Interaction, wait bool, data *discordgo.WebhookParams, options ...discordgo.RequestOption) (*discordgo.Message, error)
	InteractionResponseEdit(interaction *discordgo.Interaction, newresp *discordgo.WebhookEdit, options ...discordgo.RequestOption) (*discordgo.Message, error)
	InteractionResponseDelete(interaction *discordgo.Interaction, options ...discordgo.RequestOption) error
}

// guildState resolves roles and channels from the gateway cache.
type guildState interface {
	Role(guildID, roleID string) (*discordgo.Role, error)
	Channel(channelID string) (*discordgo.Channel, error)
}

// responder answers one interaction. The first Send is the interaction response, later
// ones are follow-ups. After Defer the first Send fills in the deferred response instead.
type responder struct {
	api         interactionAPI
	state       guildState
	interaction *discordgo.Interaction

	mu              sync.Mutex
	responded       bool
	deferred        bool
	deferredPrivate bool
}

var _ handlers.Responder = (*responder)(nil)

func newResponder(api interactionAPI, state guildState, interaction *discordgo.Interaction) *responder {
	return &responder{api: api, state: state, interaction: interaction}
}

// Defer acknowledges the interaction with a loading state so slow commands are not cut off
// by Discord's response deadline. private decides whether the pending reply is ephemeral.
func (r *responder) Defer(ctx context.Context, private bool) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.responded || r.deferred {
		return nil
	}

	resp := &discordgo.InteractionResponse{Type: discordgo.InteractionResponseDeferredChannelMessageWithSource}
	if private {
		resp.Data = &discordgo.InteractionResponseData{Flags: discordgo.MessageFlagsEphemeral}
	}
	if err := r.api.InteractionRespond(r.interaction, resp, discordgo.WithContext(ctx)); err != nil {
		return fmt.Errorf("defer interaction: %w", err)
	}

	r.deferred = true
	r.deferredPrivate = private
	return nil
}

func (r *responder) Send(ctx context.Context, reply handlers.Reply) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	msg := render(reply)

	switch {
	case r.responded:
		return r.followup(ctx, msg)
	case r.deferred && reply.Private == r.deferredPrivate:
		_, err := r.api.InteractionResponseEdit(r.interaction, &discordgo.WebhookEdit{
			Content: &msg.Content,
			Embeds:  &msg.Embeds,
			Files:   msg.Files,
		}, discordgo.WithContext(ctx))
		if err != nil {
			return fmt.Errorf("edit deferred response: %w", err)
		}
	case r.deferred:
		// The deferred message keeps the visibility it was created with, so a reply of the
		// other visibility replaces it with a follow-up.
		if err := r.api.InteractionResponseDelete(r.interaction, discordgo.WithContext(ctx)); err != nil {
			return fmt.Errorf("delete deferred response: %w", err)
		}
		if err := r.followup(ctx, msg); err != nil {
			return err
		}
	default:
		err := r.api.InteractionRespond(r.interaction, &discordgo.InteractionResponse{
			Type: discordgo.InteractionResponseChannelMessageWithSource,
			Data: &discordgo.InteractionResponseData{
				Content: msg.Content,
				Embeds:  msg.Embeds,
				Flags:   msg.Flags,
				Files:   msg.Files,
			},
		}, discordgo.WithContext(ctx))
		if err != nil {
			return fmt.Errorf("respond to interaction: %w", err)
		}
	}

	r.responded = true
	return nil
}

func (r *responder) followup(ctx context.Context, msg message) error {
	_, err := r.api.FollowupMessageCreate(r.interaction, true, &discordgo.WebhookParams{
		Content: msg.Content,
		Embeds:  msg.Embeds,
		Flags:   msg.Flags,
		Files:   msg.Files,
	}, discordgo.WithContext(ctx))
	if err != nil {
		return fmt.Errorf("send followup: %w", err)
	}
	return nil
}

type message struct {
	Content string
	Embeds  []*discordgo.MessageEmbed
	Flags   discordgo.MessageFlags
	Files   []*discordgo.File
}

func render(reply handlers.Reply) message {
	msg := message{Content: reply.Body, Embeds: []*discordgo.MessageEmbed{}}
	if reply.Title != "" {
		msg.Embeds = []*discordgo.MessageEmbed{{
			Title:       reply.Title,
			Description: reply.Body,
			Color:       reply.Color,
		}}
		msg.Content = ""
	}
	if reply.Private {
		msg.Flags = discordgo.MessageFlagsEphemeral
	}
	if reply.File != nil {
		msg.Files = []*discordgo.File{{
			Name:        reply.File.Name,
			ContentType: reply.File.ContentType,
			Reader:      bytes.NewReader(reply.File.Data),
		}}
	}
	return msg
}

func (r *responder) MentionUser(id int64) string {
	return fmt.Sprintf("<@%d>", id)
}

func (r *responder) MentionRole(id int64) (string, bool) {
	mention := fmt.Sprintf("<@&%d>", id)
	if r.state == nil {
		return mention, true
	}
	_, err := r.state.Role(r.interaction.GuildID, formatID(id))
	return mention, err == nil
}

func (r *responder) MentionChannel(id int64) (string, bool) {
	mention := fmt.Sprintf("<#%d>", id)
	if r.state == nil {
		return mention, true
	}
	_, err := r.state.Channel(formatID(id))
	return mention, err == nil
}
