package discord

import (
	"github.com/bwmarrin/discordgo"

	"github.com/Proton-105/frostbank/internal/bot"
	"github.com/Proton-105/frostbank/internal/i18n"
	"github.com/Proton-105/frostbank/internal/ledger"
)

// Option names as sent by Discord.
const (
	optionUser   = "user"
	optionTarget = "target"
	optionAmount = "amount"
	optionReason = "reason"
	optionRole   = "role"
)

var locales = map[string]discordgo.Locale{
	"ko": discordgo.Korean,
	"ja": discordgo.Japanese,
	"ru": discordgo.Russian,
	"de": discordgo.German,
	"fr": discordgo.French,
}

// Definitions builds the slash command set for the given command names. English texts are
// the base, other bundled languages become localizations.
func Definitions(translations *i18n.Manager, names []string) []*discordgo.ApplicationCommand {
	base := translations.Translator("en")

	defs := make([]*discordgo.ApplicationCommand, 0, len(names))
	for _, name := range names {
		key := "command." + name
		defs = append(defs, &discordgo.ApplicationCommand{
			Type:                     discordgo.ChatApplicationCommand,
			Name:                     name,
			NameLocalizations:        localized(translations, key+".name"),
			Description:              base.T(key + ".description"),
			DescriptionLocalizations: localized(translations, key+".description"),
			Options:                  commandOptions(translations, name),
		})
	}
	return defs
}

func commandOptions(translations *i18n.Manager, name string) []*discordgo.ApplicationCommandOption {
	switch name {
	case bot.CommandBalance:
		return []*discordgo.ApplicationCommandOption{
			option(translations, discordgo.ApplicationCommandOptionUser, optionUser, false),
		}
	case bot.CommandTransfer:
		return []*discordgo.ApplicationCommandOption{
			option(translations, discordgo.ApplicationCommandOptionUser, optionTarget, true),
			amountOption(translations),
		}
	case bot.CommandGrant, bot.CommandWithdraw:
		reason := option(translations, discordgo.ApplicationCommandOptionString, optionReason, true)
		reason.MaxLength = ledger.DefaultSettings().MaxReasonLength
		return []*discordgo.ApplicationCommandOption{
			amountOption(translations),
			reason,
			option(translations, discordgo.ApplicationCommandOptionUser, optionUser, false),
			option(translations, discordgo.ApplicationCommandOptionRole, optionRole, false),
		}
	case bot.CommandManagerRoleAdd, bot.CommandManagerRoleRemove:
		return []*discordgo.ApplicationCommandOption{
			option(translations, discordgo.ApplicationCommandOptionRole, optionRole, true),
		}
	default:
		return nil
	}
}

func amountOption(translations *i18n.Manager) *discordgo.ApplicationCommandOption {
	minValue := 1.0
	opt := option(translations, discordgo.ApplicationCommandOptionInteger, optionAmount, true)
	opt.MinValue = &minValue
	return opt
}

func option(translations *i18n.Manager, typ discordgo.ApplicationCommandOptionType, name string, required bool) *discordgo.ApplicationCommandOption {
	key := "option." + name
	var names, descriptions map[discordgo.Locale]string
	if m := localized(translations, key+".name"); m != nil {
		names = *m
	}
	if m := localized(translations, key+".description"); m != nil {
		descriptions = *m
	}

	return &discordgo.ApplicationCommandOption{
		Type:                     typ,
		Name:                     name,
		NameLocalizations:        names,
		Description:              translations.Translator("en").T(key + ".description"),
		DescriptionLocalizations: descriptions,
		Required:                 required,
	}
}

func localized(translations *i18n.Manager, key string) *map[discordgo.Locale]string {
	out := make(map[discordgo.Locale]string)
	for _, lang := range translations.Languages() {
		locale, ok := locales[lang]
		if !ok {
			continue
		}
		if text := translations.Translator(lang).T(key); text != key {
			out[locale] = text
		}
	}
	if len(out) == 0 {
		return nil
	}
	return &out
}

// languageOf maps a Discord locale onto a bundle language. Unknown locales yield "" so the
// bot falls back to its configured language.
func languageOf(locale discordgo.Locale) string {
	for lang, l := range locales {
		if l == locale {
			return lang
		}
	}
	if locale == discordgo.EnglishUS || locale == discordgo.EnglishGB {
		return "en"
	}
	return ""
}
