package handlers

import (
	"context"
	"log/slog"
	"strings"

	apperrors "github.com/Proton-105/frostbank/internal/errors"
	"github.com/Proton-105/frostbank/internal/i18n"
	"github.com/Proton-105/frostbank/internal/permission"
)

// SettingsService administers the allow-list and manager roles.
type SettingsService interface {
	AddChannel(ctx context.Context, caller permission.Caller, channelID int64) (bool, error)
	RemoveChannel(ctx context.Context, caller permission.Caller, channelID int64) (bool, error)
	Channels(ctx context.Context, caller permission.Caller) ([]int64, error)
	AddManagerRole(ctx context.Context, caller permission.Caller, roleID int64) (bool, error)
	RemoveManagerRole(ctx context.Context, caller permission.Caller, roleID int64) (bool, error)
	ManagerRoles(ctx context.Context, caller permission.Caller) ([]int64, error)
}

// Settings renders the settings commands. Channel commands answer privately, manager role
// commands publicly.
type Settings struct {
	settings SettingsService
	i18n     *i18n.Manager
	log      *slog.Logger
}

func NewSettings(settings SettingsService, translations *i18n.Manager, log *slog.Logger) *Settings {
	if log == nil {
		log = slog.Default()
	}

	return &Settings{
		settings: settings,
		i18n:     translations,
		log:      log.With(slog.String("component", "settings_handlers")),
	}
}

func (s *Settings) ChannelAdd(ctx context.Context, req *Request, res Responder) error {
	if _, err := s.settings.AddChannel(ctx, req.Caller, req.ChannelID); err != nil {
		return err
	}
	return s.channelNotice(ctx, req, res, "channel.added")
}

func (s *Settings) ChannelRemove(ctx context.Context, req *Request, res Responder) error {
	if _, err := s.settings.RemoveChannel(ctx, req.Caller, req.ChannelID); err != nil {
		return err
	}
	return s.channelNotice(ctx, req, res, "channel.removed")
}

func (s *Settings) ChannelList(ctx context.Context, req *Request, res Responder) error {
	ids, err := s.settings.Channels(ctx, req.Caller)
	if err != nil {
		return err
	}

	t := s.i18n.Translator(req.Lang)
	if len(ids) == 0 {
		return res.Send(ctx, Reply{Body: t.T("channel.list_empty"), Private: true})
	}

	lines := make([]string, 0, len(ids))
	for _, id := range ids {
		if mention, ok := res.MentionChannel(id); ok {
			lines = append(lines, "· "+mention)
			continue
		}
		lines = append(lines, "· "+t.Tf("channel.missing", map[string]any{"ID": id}))
	}

	return res.Send(ctx, Reply{
		Title:   t.T("channel.list_title"),
		Body:    strings.Join(lines, "\n"),
		Color:   ColorBlue,
		Private: true,
	})
}

func (s *Settings) ManagerRoleAdd(ctx context.Context, req *Request, res Responder) error {
	if req.Options.RoleID == 0 {
		return apperrors.NewValidationError(apperrors.MsgInvalidTarget, "role is required")
	}
	if _, err := s.settings.AddManagerRole(ctx, req.Caller, req.Options.RoleID); err != nil {
		return err
	}
	return s.roleNotice(ctx, req, res, "role.added_title", "role.added", ColorTeal)
}

func (s *Settings) ManagerRoleRemove(ctx context.Context, req *Request, res Responder) error {
	if req.Options.RoleID == 0 {
		return apperrors.NewValidationError(apperrors.MsgInvalidTarget, "role is required")
	}
	if _, err := s.settings.RemoveManagerRole(ctx, req.Caller, req.Options.RoleID); err != nil {
		return err
	}
	return s.roleNotice(ctx, req, res, "role.removed_title", "role.removed", ColorDarkBlue)
}

func (s *Settings) ManagerRoleList(ctx context.Context, req *Request, res Responder) error {
	ids, err := s.settings.ManagerRoles(ctx, req.Caller)
	if err != nil {
		return err
	}

	t := s.i18n.Translator(req.Lang)
	body := t.T("role.list_empty")
	if len(ids) > 0 {
		lines := make([]string, 0, len(ids))
		for _, id := range ids {
			if mention, ok := res.MentionRole(id); ok {
				lines = append(lines, t.Tf("role.line", map[string]any{"Role": mention, "ID": id}))
				continue
			}
			lines = append(lines, t.Tf("role.missing", map[string]any{"ID": id}))
		}
		body = strings.Join(lines, "\n")
	}

	return res.Send(ctx, Reply{Title: t.T("role.list_title"), Body: body, Color: ColorBlue})
}

func (s *Settings) channelNotice(ctx context.Context, req *Request, res Responder, key string) error {
	t := s.i18n.Translator(req.Lang)
	mention, _ := res.MentionChannel(req.ChannelID)
	return res.Send(ctx, Reply{
		Body:    t.Tf(key, map[string]any{"Channel": mention}),
		Private: true,
	})
}

func (s *Settings) roleNotice(ctx context.Context, req *Request, res Responder, titleKey, bodyKey string, color int) error {
	t := s.i18n.Translator(req.Lang)
	mention, _ := res.MentionRole(req.Options.RoleID)
	return res.Send(ctx, Reply{
		Title: t.T(titleKey),
		Body:  t.Tf(bodyKey, map[string]any{"Role": mention}),
		Color: color,
	})
}
