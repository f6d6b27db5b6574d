package handlers

import (
	"context"

	"github.com/Proton-105/frostbank/internal/ledger"
	"github.com/Proton-105/frostbank/internal/permission"
)

// Embed colours.
const (
	ColorBlue     = 0x3498DB
	ColorTeal     = 0x1ABC9C
	ColorDarkBlue = 0x206694
)

// Request is a platform-neutral command invocation.
type Request struct {
	Command string
	// Platform and InteractionID together identify the delivery for de-duplication.
	Platform      string
	InteractionID string
	Caller        permission.Caller
	GuildID       int64
	ChannelID     int64
	Lang          string
	Options       Options
}

// Invocation returns the ledger view of the request.
func (r *Request) Invocation() ledger.Invocation {
	return ledger.Invocation{Caller: r.Caller, GuildID: r.GuildID, ChannelID: r.ChannelID}
}

// Options carries parsed command arguments. Zero values mean "not given".
type Options struct {
	User   *ledger.Member
	RoleID int64
	Amount int64
	Reason string
}

// File is a reply attachment.
type File struct {
	Name        string
	ContentType string
	Data        []byte
}

// Reply is rendered by the platform. Private replies are only visible to the caller; an
// empty Title means plain text.
type Reply struct {
	Title   string
	Body    string
	Color   int
	Private bool
	File    *File
}

// Responder delivers replies and renders platform mentions.
type Responder interface {
	Send(ctx context.Context, reply Reply) error
	MentionUser(id int64) string
	// MentionRole reports false when the role no longer exists.
	MentionRole(id int64) (string, bool)
	// MentionChannel reports false when the channel no longer exists.
	MentionChannel(id int64) (string, bool)
}

// Handler processes one command.
type Handler func(ctx context.Context, req *Request, res Responder) error

// Middleware wraps handlers with additional behavior.
type Middleware func(Handler) Handler
