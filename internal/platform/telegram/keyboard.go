package telegram

import (
	telebot "gopkg.in/telebot.v3"

	"github.com/Proton-105/frostbank/internal/bot"
)

// mainMenu builds the reply keyboard shown by /start with the everyday commands.
func mainMenu() *telebot.ReplyMarkup {
	markup := &telebot.ReplyMarkup{
		ResizeKeyboard:  true,
		OneTimeKeyboard: false,
	}

	balanceBtn := markup.Text(endpoint(bot.CommandBalance))
	snowfallBtn := markup.Text(endpoint(bot.CommandSnowfall))
	leaderboardBtn := markup.Text(endpoint(bot.CommandLeaderboard))

	markup.Reply(
		markup.Row(balanceBtn, snowfallBtn),
		markup.Row(leaderboardBtn),
	)

	return markup
}
