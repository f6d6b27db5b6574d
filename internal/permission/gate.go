// Package permission decides who may run which command and in which channel.
package permission

import (
	"context"
	"log/slog"
	"slices"
)

// Caller identifies who issued a command.
type Caller struct {
	UserID          int64
	IsPlatformAdmin bool
	RoleIDs         []int64
}

// SettingsReader exposes the allow-list and the manager role set.
type SettingsReader interface {
	AllowedChannels(ctx context.Context) ([]int64, error)
	ManagerRoles(ctx context.Context) ([]int64, error)
}

// Gate answers permission and channel questions. Denial is a false result, never an error.
type Gate struct {
	settings     SettingsReader
	superAdminID int64
	log          *slog.Logger
}

// NewGate creates a Gate. superAdminID 0 disables the super admin.
func NewGate(settings SettingsReader, superAdminID int64, log *slog.Logger) *Gate {
	if log == nil {
		log = slog.Default()
	}

	return &Gate{
		settings:     settings,
		superAdminID: superAdminID,
		log:          log.With(slog.String("component", "permission_gate")),
	}
}

// IsChannelAllowed reports whether commands may run in channelID. An empty allow-list allows
// every channel; an unreadable allow-list allows none.
func (g *Gate) IsChannelAllowed(ctx context.Context, channelID int64) bool {
	channels, err := g.settings.AllowedChannels(ctx)
	if err != nil {
		g.log.Error("failed to read allowed channels", slog.Int64("channel_id", channelID), slog.Any("error", err))
		return false
	}

	return len(channels) == 0 || slices.Contains(channels, channelID)
}

// IsAdmin reports whether the caller may run admin commands.
func (g *Gate) IsAdmin(ctx context.Context, caller Caller) bool {
	if g.IsGuildManager(caller) {
		return true
	}
	if len(caller.RoleIDs) == 0 {
		return false
	}

	roles, err := g.settings.ManagerRoles(ctx)
	if err != nil {
		g.log.Warn("failed to read manager roles", slog.Int64("user_id", caller.UserID), slog.Any("error", err))
		return false
	}

	for _, roleID := range caller.RoleIDs {
		if slices.Contains(roles, roleID) {
			return true
		}
	}

	return false
}

// IsGuildManager reports whether the caller is the super admin or a platform administrator.
func (g *Gate) IsGuildManager(caller Caller) bool {
	if g.superAdminID != 0 && caller.UserID == g.superAdminID {
		return true
	}
	return caller.IsPlatformAdmin
}
