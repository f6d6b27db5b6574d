package repository

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
)

const (
	selectChannelsQuery = `SELECT channel_id FROM allowed_channels ORDER BY channel_id`
	insertChannelQuery  = `INSERT INTO allowed_channels (channel_id) VALUES ($1) ON CONFLICT (channel_id) DO NOTHING`
	deleteChannelQuery  = `DELETE FROM allowed_channels WHERE channel_id = $1`

	selectRolesQuery = `SELECT role_id FROM manager_roles ORDER BY role_id`
	insertRoleQuery  = `INSERT INTO manager_roles (role_id) VALUES ($1) ON CONFLICT (role_id) DO NOTHING`
	deleteRoleQuery  = `DELETE FROM manager_roles WHERE role_id = $1`
)

// SettingsRepository persists the channel allow-list and the manager role set.
type SettingsRepository struct {
	db  *sql.DB
	log *slog.Logger
}

// NewSettingsRepository creates a new SQL-backed settings repository.
func NewSettingsRepository(db *sql.DB, log *slog.Logger) *SettingsRepository {
	if log == nil {
		log = slog.Default()
	}

	return &SettingsRepository{
		db:  db,
		log: log.With(slog.String("component", "settings_repository")),
	}
}

// AllowedChannels lists the allow-listed channel ids. Empty means every channel is allowed.
func (r *SettingsRepository) AllowedChannels(ctx context.Context) ([]int64, error) {
	return r.selectIDs(ctx, selectChannelsQuery, "allowed channels")
}

// AddAllowedChannel registers a channel. It reports false when the channel was already present.
func (r *SettingsRepository) AddAllowedChannel(ctx context.Context, channelID int64) (bool, error) {
	return r.exec(ctx, insertChannelQuery, channelID, "insert allowed channel")
}

// RemoveAllowedChannel unregisters a channel. It reports false when the channel was absent.
func (r *SettingsRepository) RemoveAllowedChannel(ctx context.Context, channelID int64) (bool, error) {
	return r.exec(ctx, deleteChannelQuery, channelID, "delete allowed channel")
}

// ManagerRoles lists the role ids whose holders may run admin commands.
func (r *SettingsRepository) ManagerRoles(ctx context.Context) ([]int64, error) {
	return r.selectIDs(ctx, selectRolesQuery, "manager roles")
}

// AddManagerRole registers a manager role. It reports false when the role was already present.
func (r *SettingsRepository) AddManagerRole(ctx context.Context, roleID int64) (bool, error) {
	return r.exec(ctx, insertRoleQuery, roleID, "insert manager role")
}

// RemoveManagerRole unregisters a manager role. It reports false when the role was absent.
func (r *SettingsRepository) RemoveManagerRole(ctx context.Context, roleID int64) (bool, error) {
	return r.exec(ctx, deleteRoleQuery, roleID, "delete manager role")
}

func (r *SettingsRepository) selectIDs(ctx context.Context, query, what string) ([]int64, error) {
	rows, err := r.db.QueryContext(ctx, query)
	if err != nil {
		r.log.Error("failed to select "+what, slog.Any("error", err))
		return nil, fmt.Errorf("select %s: %w", what, err)
	}
	defer rows.Close()

	ids := []int64{}
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scan %s: %w", what, err)
		}
		ids = append(ids, id)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate %s: %w", what, err)
	}

	return ids, nil
}

func (r *SettingsRepository) exec(ctx context.Context, query string, id int64, what string) (bool, error) {
	res, err := r.db.ExecContext(ctx, query, id)
	if err != nil {
		r.log.Error("failed to "+what, slog.Int64("id", id), slog.Any("error", err))
		return false, fmt.Errorf("%s: %w", what, err)
	}

	affected, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("%s rows affected: %w", what, err)
	}

	return affected > 0, nil
}
