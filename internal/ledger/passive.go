package ledger

import (
	"context"
	"errors"
	"log/slog"
	"slices"

	apperrors "github.com/Proton-105/frostbank/internal/errors"
	"github.com/Proton-105/frostbank/pkg/metrics"
)

// MessageActivity is an ordinary chat message seen by the bot.
type MessageActivity struct {
	UserID  int64
	IsBot   bool
	InGuild bool
}

// PassiveMessageReward credits the fixed message reward once per cooldown. It never reports
// failure to the author; the result only says whether a credit happened.
func (s *Service) PassiveMessageReward(ctx context.Context, activity MessageActivity) bool {
	if activity.IsBot || !activity.InGuild || s.settings.MessageReward <= 0 {
		return false
	}

	var granted bool
	err := s.breaker.Call(func() error {
		claim, err := s.store.ClaimMessageReward(ctx, activity.UserID, s.settings.MessageReward, s.now(), s.settings.MessageRewardCooldown)
		if err != nil {
			return err
		}
		granted = claim.Granted
		return nil
	})
	if err != nil {
		s.logPassiveFailure("message reward failed", err, slog.Int64("user_id", activity.UserID))
		metrics.RecordLedgerOperation("message_reward", "error")
		return false
	}

	if granted {
		metrics.RecordIssued("message_reward", s.settings.MessageReward)
		metrics.RecordLedgerOperation("message_reward", "ok")
	}
	return granted
}

// PassiveVoiceReward credits the voice reward to every listed user in one transaction. The
// caller decides what to do with the error; nothing is retried here.
func (s *Service) PassiveVoiceReward(ctx context.Context, userIDs []int64) (int64, error) {
	ids := slices.Clone(userIDs)
	slices.Sort(ids)
	ids = slices.Compact(ids)

	if len(ids) == 0 || s.settings.VoiceReward <= 0 {
		return 0, nil
	}

	var credited int64
	err := s.breaker.Call(func() error {
		var err error
		credited, err = s.store.CreditSaturating(ctx, ids, s.settings.VoiceReward)
		return err
	})
	if err != nil {
		s.logPassiveFailure("voice reward failed", err, slog.Int("users", len(ids)))
		metrics.RecordLedgerOperation("voice_reward", "error")
		return 0, err
	}

	metrics.RecordIssued("voice_reward", credited*s.settings.VoiceReward)
	metrics.RecordLedgerOperation("voice_reward", "ok")
	return credited, nil
}

func (s *Service) logPassiveFailure(msg string, err error, attrs ...any) {
	if errors.Is(err, apperrors.ErrCircuitOpen) || errors.Is(err, apperrors.ErrHalfOpenTooManyRequests) {
		s.log.Debug(msg, append(attrs, slog.Any("error", err))...)
		return
	}
	s.log.Warn(msg, append(attrs, slog.Any("error", err))...)
}
