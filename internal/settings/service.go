// Package settings administers the channel allow-list and the manager role set.
package settings

import (
	"context"
	"log/slog"

	apperrors "github.com/Proton-105/frostbank/internal/errors"
	"github.com/Proton-105/frostbank/internal/permission"
)

// Store persists both settings sets.
type Store interface {
	AllowedChannels(ctx context.Context) ([]int64, error)
	AddAllowedChannel(ctx context.Context, channelID int64) (bool, error)
	RemoveAllowedChannel(ctx context.Context, channelID int64) (bool, error)
	ManagerRoles(ctx context.Context) ([]int64, error)
	AddManagerRole(ctx context.Context, roleID int64) (bool, error)
	RemoveManagerRole(ctx context.Context, roleID int64) (bool, error)
}

// Gate decides who may change settings.
type Gate interface {
	IsGuildManager(caller permission.Caller) bool
}

// Service runs the settings commands. Only guild managers may use it.
type Service struct {
	store Store
	gate  Gate
	log   *slog.Logger
}

func NewService(store Store, gate Gate, log *slog.Logger) *Service {
	if log == nil {
		log = slog.Default()
	}

	return &Service{
		store: store,
		gate:  gate,
		log:   log.With(slog.String("component", "settings")),
	}
}

// AddChannel allow-lists channelID. The result reports whether the set changed.
func (s *Service) AddChannel(ctx context.Context, caller permission.Caller, channelID int64) (bool, error) {
	return s.mutate(ctx, caller, "add_channel", channelID, s.store.AddAllowedChannel)
}

// RemoveChannel drops channelID from the allow-list.
func (s *Service) RemoveChannel(ctx context.Context, caller permission.Caller, channelID int64) (bool, error) {
	return s.mutate(ctx, caller, "remove_channel", channelID, s.store.RemoveAllowedChannel)
}

// Channels lists the allow-list. An empty result means every channel is allowed.
func (s *Service) Channels(ctx context.Context, caller permission.Caller) ([]int64, error) {
	return s.list(ctx, caller, s.store.AllowedChannels)
}

// AddManagerRole lets holders of roleID run admin commands.
func (s *Service) AddManagerRole(ctx context.Context, caller permission.Caller, roleID int64) (bool, error) {
	return s.mutate(ctx, caller, "add_manager_role", roleID, s.store.AddManagerRole)
}

// RemoveManagerRole revokes roleID.
func (s *Service) RemoveManagerRole(ctx context.Context, caller permission.Caller, roleID int64) (bool, error) {
	return s.mutate(ctx, caller, "remove_manager_role", roleID, s.store.RemoveManagerRole)
}

// ManagerRoles lists the registered manager roles.
func (s *Service) ManagerRoles(ctx context.Context, caller permission.Caller) ([]int64, error) {
	return s.list(ctx, caller, s.store.ManagerRoles)
}

func (s *Service) mutate(ctx context.Context, caller permission.Caller, action string, id int64, apply func(context.Context, int64) (bool, error)) (bool, error) {
	if !s.gate.IsGuildManager(caller) {
		return false, apperrors.NewManagerOnlyError(caller.UserID)
	}

	changed, err := apply(ctx, id)
	if err != nil {
		return false, apperrors.NewDatabaseError(err)
	}

	s.log.Info("settings changed",
		slog.String("action", action),
		slog.Int64("id", id),
		slog.Int64("user_id", caller.UserID),
		slog.Bool("changed", changed),
	)
	return changed, nil
}

func (s *Service) list(ctx context.Context, caller permission.Caller, load func(context.Context) ([]int64, error)) ([]int64, error) {
	if !s.gate.IsGuildManager(caller) {
		return nil, apperrors.NewManagerOnlyError(caller.UserID)
	}

	ids, err := load(ctx)
	if err != nil {
		return nil, apperrors.NewDatabaseError(err)
	}
	return ids, nil
}
