// Package handlers holds the scheduler's job implementations.
package handlers

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/Proton-105/frostbank/pkg/metrics"
)

// VoicePresence lists the non-bot users currently connected to a voice channel.
type VoicePresence interface {
	VoiceUsers(ctx context.Context) ([]int64, error)
}

// VoiceRewarder credits connected users.
type VoiceRewarder interface {
	PassiveVoiceReward(ctx context.Context, userIDs []int64) (int64, error)
}

// VoiceRewardHandler pays the voice reward to everyone in voice once per tick.
type VoiceRewardHandler struct {
	presence VoicePresence
	rewarder VoiceRewarder
	log      *slog.Logger
}

func NewVoiceRewardHandler(presence VoicePresence, rewarder VoiceRewarder, log *slog.Logger) *VoiceRewardHandler {
	if log == nil {
		log = slog.Default()
	}

	return &VoiceRewardHandler{
		presence: presence,
		rewarder: rewarder,
		log:      log.With(slog.String("component", "voice_reward")),
	}
}

func (h *VoiceRewardHandler) Name() string {
	return "voice_reward"
}

// Run performs one tick. A failed tick is not retried; the next tick starts fresh.
func (h *VoiceRewardHandler) Run(ctx context.Context) error {
	userIDs, err := h.presence.VoiceUsers(ctx)
	if err != nil {
		metrics.RecordVoiceTick("error")
		return fmt.Errorf("list voice users: %w", err)
	}

	if len(userIDs) == 0 {
		metrics.RecordVoiceTick("empty")
		return nil
	}

	credited, err := h.rewarder.PassiveVoiceReward(ctx, userIDs)
	if err != nil {
		metrics.RecordVoiceTick("error")
		return fmt.Errorf("credit voice reward: %w", err)
	}

	metrics.RecordVoiceTick("ok")
	h.log.Debug("voice reward paid", slog.Int64("users", credited))
	return nil
}
