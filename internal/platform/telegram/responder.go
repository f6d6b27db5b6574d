package telegram

import (
	"bytes"
	"context"
	"fmt"
	"html"
	"regexp"
	"strconv"
	"strings"

	telebot "gopkg.in/telebot.v3"

	"github.com/Proton-105/frostbank/internal/bot/handlers"
)

// sender is the part of telebot.Bot used to deliver replies.
type sender interface {
	Send(to telebot.Recipient, what interface{}, opts ...interface{}) (*telebot.Message, error)
}

// Mentions are emitted as placeholders and expanded after the body is escaped.
var mentionPattern = regexp.MustCompile("\x00(\\d+)\x00")

// responder answers one command message. Private replies go to the caller's direct chat,
// falling back to a reply in the group when the bot cannot message the user.
type responder struct {
	api   sender
	msg   *telebot.Message
	names map[int64]string
}

var _ handlers.Responder = (*responder)(nil)

func newResponder(api sender, msg *telebot.Message) *responder {
	names := make(map[int64]string)
	for _, user := range []*telebot.User{msg.Sender, replySender(msg)} {
		if user != nil {
			names[user.ID] = displayName(user)
		}
	}
	return &responder{api: api, msg: msg, names: names}
}

func (r *responder) Send(_ context.Context, reply handlers.Reply) error {
	text := r.render(reply)

	var what interface{} = text
	if reply.File != nil {
		what = &telebot.Document{
			File:     telebot.FromReader(bytes.NewReader(reply.File.Data)),
			FileName: reply.File.Name,
			MIME:     reply.File.ContentType,
			Caption:  text,
		}
	}

	if reply.Private && r.msg.Sender != nil && r.msg.Chat.Type != telebot.ChatPrivate {
		if _, err := r.api.Send(r.msg.Sender, what, &telebot.SendOptions{ParseMode: telebot.ModeHTML}); err == nil {
			return nil
		}
	}

	_, err := r.api.Send(r.msg.Chat, what, &telebot.SendOptions{ParseMode: telebot.ModeHTML, ReplyTo: r.msg})
	if err != nil {
		return fmt.Errorf("send telegram reply: %w", err)
	}
	return nil
}

func (r *responder) MentionUser(id int64) string {
	return "\x00" + strconv.FormatInt(id, 10) + "\x00"
}

func (r *responder) MentionRole(id int64) (string, bool) {
	return fmt.Sprintf("#%d", id), false
}

func (r *responder) MentionChannel(id int64) (string, bool) {
	if id != r.msg.Chat.ID {
		return fmt.Sprintf("#%d", id), false
	}
	if r.msg.Chat.Title != "" {
		return r.msg.Chat.Title, true
	}
	return fmt.Sprintf("#%d", id), true
}

// render converts a reply into Telegram HTML.
func (r *responder) render(reply handlers.Reply) string {
	body := bold(html.EscapeString(reply.Body))
	if reply.Title != "" {
		body = "<b>" + html.EscapeString(reply.Title) + "</b>\n" + body
	}

	return mentionPattern.ReplaceAllStringFunc(body, func(token string) string {
		raw := strings.Trim(token, "\x00")
		id, _ := strconv.ParseInt(raw, 10, 64)
		name, ok := r.names[id]
		if !ok {
			name = raw
		}
		return `<a href="tg://user?id=` + raw + `">` + html.EscapeString(name) + `</a>`
	})
}

// bold turns **text** pairs into <b>text</b>. An unpaired marker is kept verbatim.
func bold(s string) string {
	parts := strings.Split(s, "**")
	if len(parts) < 3 {
		return s
	}

	var b strings.Builder
	for i, part := range parts {
		switch {
		case i == 0:
		case i%2 == 1 && i == len(parts)-1:
			b.WriteString("**")
		case i%2 == 1:
			b.WriteString("<b>")
		default:
			b.WriteString("</b>")
		}
		b.WriteString(part)
	}
	return b.String()
}

func replySender(msg *telebot.Message) *telebot.User {
	if msg.ReplyTo == nil {
		return nil
	}
	return msg.ReplyTo.Sender
}

func displayName(user *telebot.User) string {
	name := strings.TrimSpace(user.FirstName + " " + user.LastName)
	if name != "" {
		return name
	}
	if user.Username != "" {
		return "@" + user.Username
	}
	return strconv.FormatInt(user.ID, 10)
}
