package settingscache

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	miniredis "github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

type mockRepository struct {
	mock.Mock
}

func (m *mockRepository) AllowedChannels(ctx context.Context) ([]int64, error) {
	args := m.Called(ctx)
	ids, _ := args.Get(0).([]int64)
	return ids, args.Error(1)
}

func (m *mockRepository) AddAllowedChannel(ctx context.Context, id int64) (bool, error) {
	args := m.Called(ctx, id)
	return args.Bool(0), args.Error(1)
}

func (m *mockRepository) RemoveAllowedChannel(ctx context.Context, id int64) (bool, error) {
	args := m.Called(ctx, id)
	return args.Bool(0), args.Error(1)
}

func (m *mockRepository) ManagerRoles(ctx context.Context) ([]int64, error) {
	args := m.Called(ctx)
	ids, _ := args.Get(0).([]int64)
	return ids, args.Error(1)
}

func (m *mockRepository) AddManagerRole(ctx context.Context, id int64) (bool, error) {
	args := m.Called(ctx, id)
	return args.Bool(0), args.Error(1)
}

func (m *mockRepository) RemoveManagerRole(ctx context.Context, id int64) (bool, error) {
	args := m.Called(ctx, id)
	return args.Bool(0), args.Error(1)
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func setupTestRedis(t *testing.T) (*redis.Client, *miniredis.Miniredis) {
	t.Helper()

	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	return client, mr
}

func TestStore_ReadsThroughCache(t *testing.T) {
	client, _ := setupTestRedis(t)
	repo := &mockRepository{}
	repo.On("AllowedChannels", mock.Anything).Return([]int64{10, 20}, nil).Once()

	store := NewStore(repo, NewCache(client, time.Minute), testLogger())
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		ids, err := store.AllowedChannels(ctx)
		require.NoError(t, err)
		assert.Equal(t, []int64{10, 20}, ids)
	}

	repo.AssertExpectations(t)
}

func TestStore_CachesEmptySet(t *testing.T) {
	client, _ := setupTestRedis(t)
	repo := &mockRepository{}
	repo.On("ManagerRoles", mock.Anything).Return([]int64{}, nil).Once()

	store := NewStore(repo, NewCache(client, time.Minute), testLogger())

	for i := 0; i < 2; i++ {
		ids, err := store.ManagerRoles(context.Background())
		require.NoError(t, err)
		assert.Empty(t, ids)
	}

	repo.AssertExpectations(t)
}

func TestStore_WriteInvalidates(t *testing.T) {
	client, _ := setupTestRedis(t)
	repo := &mockRepository{}
	repo.On("ManagerRoles", mock.Anything).Return([]int64{1}, nil).Once()
	repo.On("AddManagerRole", mock.Anything, int64(2)).Return(true, nil).Once()
	repo.On("ManagerRoles", mock.Anything).Return([]int64{1, 2}, nil).Once()

	store := NewStore(repo, NewCache(client, time.Minute), testLogger())
	ctx := context.Background()

	ids, err := store.ManagerRoles(ctx)
	require.NoError(t, err)
	assert.Equal(t, []int64{1}, ids)

	added, err := store.AddManagerRole(ctx, 2)
	require.NoError(t, err)
	assert.True(t, added)

	ids, err = store.ManagerRoles(ctx)
	require.NoError(t, err)
	assert.Equal(t, []int64{1, 2}, ids)

	repo.AssertExpectations(t)
}

func TestStore_FallsBackWhenRedisDown(t *testing.T) {
	client, mr := setupTestRedis(t)
	mr.Close()

	repo := &mockRepository{}
	repo.On("AllowedChannels", mock.Anything).Return([]int64{5}, nil).Twice()
	repo.On("RemoveAllowedChannel", mock.Anything, int64(5)).Return(true, nil).Once()

	store := NewStore(repo, NewCache(client, time.Minute), testLogger())
	ctx := context.Background()

	for i := 0; i < 2; i++ {
		ids, err := store.AllowedChannels(ctx)
		require.NoError(t, err)
		assert.Equal(t, []int64{5}, ids)
	}

	removed, err := store.RemoveAllowedChannel(ctx, 5)
	require.NoError(t, err)
	assert.True(t, removed)

	repo.AssertExpectations(t)
}

func TestStore_PropagatesRepositoryErrors(t *testing.T) {
	repo := &mockRepository{}
	repo.On("AllowedChannels", mock.Anything).Return(nil, errors.New("db down")).Once()

	store := NewStore(repo, nil, testLogger())

	_, err := store.AllowedChannels(context.Background())
	assert.Error(t, err)
}

func TestStore_ConcurrentWriteKeepsStaleSetOutOfCache(t *testing.T) {
	client, _ := setupTestRedis(t)
	cache := NewCache(client, time.Minute)
	ctx := context.Background()

	repo := &mockRepository{}
	repo.On("ManagerRoles", mock.Anything).Return([]int64{1, 2}, nil).Once().Run(func(mock.Arguments) {
		// role 2 is removed and the cache invalidated while this load is in flight
		require.NoError(t, cache.Invalidate(ctx, KindManagerRoles))
	})
	repo.On("ManagerRoles", mock.Anything).Return([]int64{1}, nil).Once()

	store := NewStore(repo, cache, testLogger())

	ids, err := store.ManagerRoles(ctx)
	require.NoError(t, err)
	assert.Equal(t, []int64{1, 2}, ids)

	_, cached, err := cache.Get(ctx, KindManagerRoles)
	require.NoError(t, err)
	assert.False(t, cached)

	ids, err = store.ManagerRoles(ctx)
	require.NoError(t, err)
	assert.Equal(t, []int64{1}, ids)

	cachedIDs, cached, err := cache.Get(ctx, KindManagerRoles)
	require.NoError(t, err)
	assert.True(t, cached)
	assert.Equal(t, []int64{1}, cachedIDs)

	repo.AssertExpectations(t)
}

func TestCache_SetIfGeneration(t *testing.T) {
	client, _ := setupTestRedis(t)
	cache := NewCache(client, time.Minute)
	ctx := context.Background()

	gen, err := cache.Generation(ctx, KindAllowedChannels)
	require.NoError(t, err)
	assert.Zero(t, gen)

	require.NoError(t, cache.Invalidate(ctx, KindAllowedChannels))

	stored, err := cache.SetIfGeneration(ctx, KindAllowedChannels, []int64{9}, gen)
	require.NoError(t, err)
	assert.False(t, stored)

	gen, err = cache.Generation(ctx, KindAllowedChannels)
	require.NoError(t, err)
	assert.Equal(t, int64(1), gen)

	stored, err = cache.SetIfGeneration(ctx, KindAllowedChannels, []int64{9}, gen)
	require.NoError(t, err)
	assert.True(t, stored)
}
