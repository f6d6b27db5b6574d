package handlers

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

type mockPresence struct {
	mock.Mock
}

func (m *mockPresence) VoiceUsers(ctx context.Context) ([]int64, error) {
	args := m.Called(ctx)
	ids, _ := args.Get(0).([]int64)
	return ids, args.Error(1)
}

type mockRewarder struct {
	mock.Mock
}

func (m *mockRewarder) PassiveVoiceReward(ctx context.Context, userIDs []int64) (int64, error) {
	args := m.Called(ctx, userIDs)
	return args.Get(0).(int64), args.Error(1)
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestVoiceRewardHandler_Run(t *testing.T) {
	ctx := context.Background()

	t.Run("credits connected users", func(t *testing.T) {
		presence := new(mockPresence)
		rewarder := new(mockRewarder)
		presence.On("VoiceUsers", ctx).Return([]int64{1, 2}, nil)
		rewarder.On("PassiveVoiceReward", ctx, []int64{1, 2}).Return(int64(2), nil)

		h := NewVoiceRewardHandler(presence, rewarder, testLogger())
		require.NoError(t, h.Run(ctx))
		rewarder.AssertExpectations(t)
	})

	t.Run("empty voice skips the ledger", func(t *testing.T) {
		presence := new(mockPresence)
		rewarder := new(mockRewarder)
		presence.On("VoiceUsers", ctx).Return([]int64(nil), nil)

		h := NewVoiceRewardHandler(presence, rewarder, testLogger())
		require.NoError(t, h.Run(ctx))
		rewarder.AssertNotCalled(t, "PassiveVoiceReward", mock.Anything, mock.Anything)
	})

	t.Run("presence failure", func(t *testing.T) {
		presence := new(mockPresence)
		rewarder := new(mockRewarder)
		presence.On("VoiceUsers", ctx).Return([]int64(nil), errors.New("gateway closed"))

		h := NewVoiceRewardHandler(presence, rewarder, testLogger())
		assert.Error(t, h.Run(ctx))
		rewarder.AssertNotCalled(t, "PassiveVoiceReward", mock.Anything, mock.Anything)
	})

	t.Run("ledger failure", func(t *testing.T) {
		presence := new(mockPresence)
		rewarder := new(mockRewarder)
		presence.On("VoiceUsers", ctx).Return([]int64{1}, nil)
		rewarder.On("PassiveVoiceReward", ctx, []int64{1}).Return(int64(0), errors.New("db down"))

		h := NewVoiceRewardHandler(presence, rewarder, testLogger())
		assert.Error(t, h.Run(ctx))
	})
}
