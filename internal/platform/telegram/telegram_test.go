package telegram

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	telebot "gopkg.in/telebot.v3"

	"github.com/Proton-105/frostbank/internal/bot"
	"github.com/Proton-105/frostbank/internal/bot/handlers"
	apperrors "github.com/Proton-105/frostbank/internal/errors"
)

func groupMessage() *telebot.Message {
	return &telebot.Message{
		ID:     42,
		Chat:   &telebot.Chat{ID: -1001, Type: telebot.ChatSuperGroup, Title: "Frost <Hall>"},
		Sender: &telebot.User{ID: 100, FirstName: "Yuki", LanguageCode: "ko"},
	}
}

func TestEndpoint(t *testing.T) {
	assert.Equal(t, "/balance", endpoint(bot.CommandBalance))
	assert.Equal(t, "/channel_add", endpoint(bot.CommandChannelAdd))
}

func TestBaseRequest(t *testing.T) {
	req := baseRequest(bot.CommandBalance, groupMessage())

	assert.Equal(t, Platform, req.Platform)
	assert.Equal(t, "-1001:42", req.InteractionID)
	assert.Equal(t, int64(-1001), req.GuildID)
	assert.Equal(t, int64(-1001), req.ChannelID)
	assert.Equal(t, int64(100), req.Caller.UserID)
	assert.Equal(t, "ko", req.Lang)

	private := groupMessage()
	private.Chat = &telebot.Chat{ID: 100, Type: telebot.ChatPrivate}
	assert.Zero(t, baseRequest(bot.CommandBalance, private).GuildID)
}

func TestParseOptions(t *testing.T) {
	withReply := groupMessage()
	withReply.ReplyTo = &telebot.Message{Sender: &telebot.User{ID: 200, IsBot: true}}

	tests := []struct {
		name    string
		command string
		msg     *telebot.Message
		args    []string
		want    handlers.Options
		errKey  string
	}{
		{name: "balance of self", command: bot.CommandBalance, msg: groupMessage()},
		{
			name:    "balance of reply target",
			command: bot.CommandBalance,
			msg:     withReply,
			want:    handlers.Options{User: replyTarget(withReply)},
		},
		{
			name:    "transfer",
			command: bot.CommandTransfer,
			msg:     withReply,
			args:    []string{"20", "ignored"},
			want:    handlers.Options{User: replyTarget(withReply), Amount: 20},
		},
		{
			name:    "grant with reason",
			command: bot.CommandGrant,
			msg:     withReply,
			args:    []string{"50", "winter", "event"},
			want:    handlers.Options{User: replyTarget(withReply), Amount: 50, Reason: "winter event"},
		},
		{name: "transfer without reply", command: bot.CommandTransfer, msg: groupMessage(), args: []string{"20"}, errKey: apperrors.MsgReplyRequired},
		{name: "missing amount", command: bot.CommandWithdraw, msg: withReply, errKey: apperrors.MsgInvalidAmount},
		{name: "non numeric amount", command: bot.CommandGrant, msg: withReply, args: []string{"lots"}, errKey: apperrors.MsgInvalidAmount},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			opts, err := parseOptions(tt.command, tt.msg, tt.args)
			if tt.errKey != "" {
				var appErr *apperrors.AppError
				require.ErrorAs(t, err, &appErr)
				assert.Equal(t, tt.errKey, appErr.UserMessage)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, opts)
		})
	}
}

func TestIsChatAdmin(t *testing.T) {
	assert.True(t, isChatAdmin(&telebot.ChatMember{Role: telebot.Creator}))
	assert.True(t, isChatAdmin(&telebot.ChatMember{Role: telebot.Administrator}))
	assert.False(t, isChatAdmin(&telebot.ChatMember{Role: telebot.Member}))
	assert.False(t, isChatAdmin(nil))
}

func TestBold(t *testing.T) {
	assert.Equal(t, "a <b>b</b> c", bold("a **b** c"))
	assert.Equal(t, "only **one", bold("only **one"))
	assert.Equal(t, "<b>x</b> and **y", bold("**x** and **y"))
}

type sent struct {
	to   telebot.Recipient
	what interface{}
	opts *telebot.SendOptions
}

type fakeSender struct {
	sent    []sent
	dmError error
}

func (f *fakeSender) Send(to telebot.Recipient, what interface{}, opts ...interface{}) (*telebot.Message, error) {
	if _, ok := to.(*telebot.User); ok && f.dmError != nil {
		return nil, f.dmError
	}
	var options *telebot.SendOptions
	if len(opts) > 0 {
		options, _ = opts[0].(*telebot.SendOptions)
	}
	f.sent = append(f.sent, sent{to: to, what: what, opts: options})
	return &telebot.Message{}, nil
}

func TestResponder_RendersHTML(t *testing.T) {
	msg := groupMessage()
	msg.ReplyTo = &telebot.Message{Sender: &telebot.User{ID: 200, Username: "snow"}}

	api := &fakeSender{}
	res := newResponder(api, msg)

	body := res.MentionUser(100) + " ➝ " + res.MentionUser(200) + " ➝ " + res.MentionUser(300) + " **5 < 6**"
	require.NoError(t, res.Send(context.Background(), handlers.Reply{Title: "송금", Body: body}))

	require.Len(t, api.sent, 1)
	assert.Equal(t, msg.Chat, api.sent[0].to)
	assert.Equal(t,
		`<b>송금</b>`+"\n"+
			`<a href="tg://user?id=100">Yuki</a> ➝ <a href="tg://user?id=200">@snow</a> ➝ <a href="tg://user?id=300">300</a> <b>5 &lt; 6</b>`,
		api.sent[0].what)
	assert.Equal(t, telebot.ModeHTML, api.sent[0].opts.ParseMode)
	assert.Equal(t, msg, api.sent[0].opts.ReplyTo)
}

func TestResponder_PrivateGoesToDirectChat(t *testing.T) {
	msg := groupMessage()
	api := &fakeSender{}
	res := newResponder(api, msg)

	require.NoError(t, res.Send(context.Background(), handlers.Reply{
		Body:    "done",
		Private: true,
		File:    &handlers.File{Name: "balances.xlsx", ContentType: "application/octet-stream", Data: []byte("x")},
	}))

	require.Len(t, api.sent, 1)
	assert.Equal(t, msg.Sender, api.sent[0].to)
	doc, ok := api.sent[0].what.(*telebot.Document)
	require.True(t, ok)
	assert.Equal(t, "balances.xlsx", doc.FileName)
	assert.Equal(t, "done", doc.Caption)
}

func TestResponder_PrivateFallsBackToReply(t *testing.T) {
	msg := groupMessage()
	api := &fakeSender{dmError: errors.New("bot can't initiate conversation")}
	res := newResponder(api, msg)

	require.NoError(t, res.Send(context.Background(), handlers.Reply{Body: "denied", Private: true}))
	require.Len(t, api.sent, 1)
	assert.Equal(t, msg.Chat, api.sent[0].to)
}

func TestResponder_Mentions(t *testing.T) {
	res := newResponder(&fakeSender{}, groupMessage())

	title, ok := res.MentionChannel(-1001)
	assert.True(t, ok)
	assert.Equal(t, "Frost <Hall>", title)

	_, ok = res.MentionChannel(-2002)
	assert.False(t, ok)

	_, ok = res.MentionRole(5)
	assert.False(t, ok)
}

func TestMainMenu(t *testing.T) {
	markup := mainMenu()
	require.Len(t, markup.ReplyKeyboard, 2)
	assert.Equal(t, "/balance", markup.ReplyKeyboard[0][0].Text)
	assert.Equal(t, "/leaderboard", markup.ReplyKeyboard[1][0].Text)
}
