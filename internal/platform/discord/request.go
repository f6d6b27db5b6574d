package discord

import (
	"fmt"
	"strconv"

	"github.com/bwmarrin/discordgo"

	"github.com/Proton-105/frostbank/internal/bot/handlers"
	"github.com/Proton-105/frostbank/internal/ledger"
	"github.com/Proton-105/frostbank/internal/permission"
)

// Platform is the request platform name used for de-duplication keys.
const Platform = "discord"

// newRequest converts a slash command interaction into a bot request.
func newRequest(i *discordgo.Interaction) (*handlers.Request, error) {
	data := i.ApplicationCommandData()

	caller, err := callerOf(i)
	if err != nil {
		return nil, err
	}

	req := &handlers.Request{
		Command:       data.Name,
		Platform:      Platform,
		InteractionID: i.ID,
		Caller:        caller,
		Lang:          languageOf(i.Locale),
	}
	if req.GuildID, err = parseOptionalID(i.GuildID); err != nil {
		return nil, fmt.Errorf("parse guild id: %w", err)
	}
	if req.ChannelID, err = parseOptionalID(i.ChannelID); err != nil {
		return nil, fmt.Errorf("parse channel id: %w", err)
	}

	for _, opt := range data.Options {
		switch opt.Name {
		case optionUser, optionTarget:
			member, err := memberOption(opt, data.Resolved)
			if err != nil {
				return nil, err
			}
			req.Options.User = member
		case optionAmount:
			req.Options.Amount = opt.IntValue()
		case optionReason:
			req.Options.Reason = opt.StringValue()
		case optionRole:
			id, err := strconv.ParseInt(opt.RoleValue(nil, "").ID, 10, 64)
			if err != nil {
				return nil, fmt.Errorf("parse role option: %w", err)
			}
			req.Options.RoleID = id
		}
	}

	return req, nil
}

func callerOf(i *discordgo.Interaction) (permission.Caller, error) {
	var caller permission.Caller

	user := i.User
	if i.Member != nil {
		user = i.Member.User
		caller.IsPlatformAdmin = i.Member.Permissions&discordgo.PermissionAdministrator != 0
		caller.RoleIDs = make([]int64, 0, len(i.Member.Roles))
		for _, role := range i.Member.Roles {
			id, err := strconv.ParseInt(role, 10, 64)
			if err != nil {
				return caller, fmt.Errorf("parse member role: %w", err)
			}
			caller.RoleIDs = append(caller.RoleIDs, id)
		}
	}
	if user == nil {
		return caller, fmt.Errorf("interaction %s has no user", i.ID)
	}

	id, err := strconv.ParseInt(user.ID, 10, 64)
	if err != nil {
		return caller, fmt.Errorf("parse user id: %w", err)
	}
	caller.UserID = id
	return caller, nil
}

func memberOption(opt *discordgo.ApplicationCommandInteractionDataOption, resolved *discordgo.ApplicationCommandInteractionDataResolved) (*ledger.Member, error) {
	userID := opt.UserValue(nil).ID
	id, err := strconv.ParseInt(userID, 10, 64)
	if err != nil {
		return nil, fmt.Errorf("parse user option: %w", err)
	}

	member := &ledger.Member{ID: id}
	if resolved != nil {
		if user, ok := resolved.Users[userID]; ok && user != nil {
			member.IsBot = user.Bot
		}
	}
	return member, nil
}

func parseOptionalID(id string) (int64, error) {
	if id == "" {
		return 0, nil
	}
	return strconv.ParseInt(id, 10, 64)
}

func formatID(id int64) string {
	return strconv.FormatInt(id, 10)
}
