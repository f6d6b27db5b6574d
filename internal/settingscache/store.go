package settingscache

import (
	"context"
	"log/slog"
)

// Repository is the persistent settings source.
type Repository interface {
	AllowedChannels(ctx context.Context) ([]int64, error)
	AddAllowedChannel(ctx context.Context, channelID int64) (bool, error)
	RemoveAllowedChannel(ctx context.Context, channelID int64) (bool, error)
	ManagerRoles(ctx context.Context) ([]int64, error)
	AddManagerRole(ctx context.Context, roleID int64) (bool, error)
	RemoveManagerRole(ctx context.Context, roleID int64) (bool, error)
}

// Store reads settings through the cache and invalidates it on every write. Cache failures
// fall back to the repository.
type Store struct {
	repo  Repository
	cache *Cache
	log   *slog.Logger
}

// NewStore wraps repo with cache. cache may be nil.
func NewStore(repo Repository, cache *Cache, log *slog.Logger) *Store {
	if log == nil {
		log = slog.Default()
	}

	return &Store{
		repo:  repo,
		cache: cache,
		log:   log.With(slog.String("component", "settings_store")),
	}
}

func (s *Store) AllowedChannels(ctx context.Context) ([]int64, error) {
	return s.read(ctx, KindAllowedChannels, s.repo.AllowedChannels)
}

func (s *Store) ManagerRoles(ctx context.Context) ([]int64, error) {
	return s.read(ctx, KindManagerRoles, s.repo.ManagerRoles)
}

func (s *Store) AddAllowedChannel(ctx context.Context, channelID int64) (bool, error) {
	return s.write(ctx, KindAllowedChannels, channelID, s.repo.AddAllowedChannel)
}

func (s *Store) RemoveAllowedChannel(ctx context.Context, channelID int64) (bool, error) {
	return s.write(ctx, KindAllowedChannels, channelID, s.repo.RemoveAllowedChannel)
}

func (s *Store) AddManagerRole(ctx context.Context, roleID int64) (bool, error) {
	return s.write(ctx, KindManagerRoles, roleID, s.repo.AddManagerRole)
}

func (s *Store) RemoveManagerRole(ctx context.Context, roleID int64) (bool, error) {
	return s.write(ctx, KindManagerRoles, roleID, s.repo.RemoveManagerRole)
}

func (s *Store) read(ctx context.Context, kind Kind, load func(context.Context) ([]int64, error)) ([]int64, error) {
	ids, ok, err := s.cache.Get(ctx, kind)
	if err != nil {
		s.log.Warn("settings cache read failed", slog.String("kind", string(kind)), slog.Any("error", err))
	}
	if ok {
		return ids, nil
	}

	// The generation is read before loading so a write that commits meanwhile keeps the
	// loaded set out of the cache.
	gen, genErr := s.cache.Generation(ctx, kind)

	ids, err = load(ctx)
	if err != nil {
		return nil, err
	}

	if genErr != nil {
		return ids, nil
	}
	if _, err := s.cache.SetIfGeneration(ctx, kind, ids, gen); err != nil {
		s.log.Warn("settings cache write failed", slog.String("kind", string(kind)), slog.Any("error", err))
	}

	return ids, nil
}

func (s *Store) write(ctx context.Context, kind Kind, id int64, apply func(context.Context, int64) (bool, error)) (bool, error) {
	changed, err := apply(ctx, id)
	if err != nil {
		return false, err
	}

	if err := s.cache.Invalidate(ctx, kind); err != nil {
		s.log.Warn("settings cache invalidation failed", slog.String("kind", string(kind)), slog.Any("error", err))
	}

	return changed, nil
}
