package ledger

import (
	"context"
	"slices"
	"unicode/utf8"

	"github.com/Proton-105/frostbank/internal/domain"
	apperrors "github.com/Proton-105/frostbank/internal/errors"
	"github.com/Proton-105/frostbank/internal/events"
	"github.com/Proton-105/frostbank/pkg/metrics"
)

// GetBalance returns userID's balance, creating the account if needed.
func (s *Service) GetBalance(ctx context.Context, inv Invocation, userID int64) (balance int64, err error) {
	defer func() { metrics.RecordLedgerOperation("balance", outcome(err)) }()

	if err := s.checkChannel(ctx, inv); err != nil {
		return 0, err
	}

	balance, err = s.store.Balance(ctx, userID)
	if err != nil {
		return 0, apperrors.NewDatabaseError(err)
	}

	return balance, nil
}

// Transfer moves amount from the caller to toID. Self-transfers are allowed and net to zero.
func (s *Service) Transfer(ctx context.Context, inv Invocation, toID, amount int64) (receipt domain.TransferReceipt, err error) {
	defer func() { metrics.RecordLedgerOperation("transfer", outcome(err)) }()

	if err := s.checkChannel(ctx, inv); err != nil {
		return domain.TransferReceipt{}, err
	}
	if err := validateAmount(amount); err != nil {
		return domain.TransferReceipt{}, err
	}

	receipt, err = s.store.Transfer(ctx, inv.Caller.UserID, toID, amount)
	if err != nil {
		return domain.TransferReceipt{}, storeError(err, amount)
	}

	s.publish(ctx, events.New(events.TypeTransfer, inv.Caller.UserID, []int64{toID}, amount, "", s.now()))
	return receipt, nil
}

// Grant credits amount to the target user or every non-bot holder of the target role.
func (s *Service) Grant(ctx context.Context, inv Invocation, target Target, amount int64, reason string) (result domain.BulkResult, err error) {
	defer func() { metrics.RecordLedgerOperation("grant", outcome(err)) }()

	ids, err := s.prepareBulk(ctx, inv, target, amount, reason)
	if err != nil {
		return domain.BulkResult{}, err
	}

	result, err = s.store.Grant(ctx, ids, amount)
	if err != nil {
		return domain.BulkResult{}, storeError(err, amount)
	}

	metrics.RecordIssued("grant", result.ActualTotal())
	s.publish(ctx, events.New(events.TypeGrant, inv.Caller.UserID, result.UserIDs(), amount, reason, s.now()))
	return result, nil
}

// Withdraw debits amount from the target user or every non-bot holder of the target role.
// Each balance is clamped at zero rather than rejected.
func (s *Service) Withdraw(ctx context.Context, inv Invocation, target Target, amount int64, reason string) (result domain.BulkResult, err error) {
	defer func() { metrics.RecordLedgerOperation("withdraw", outcome(err)) }()

	ids, err := s.prepareBulk(ctx, inv, target, amount, reason)
	if err != nil {
		return domain.BulkResult{}, err
	}

	result, err = s.store.Withdraw(ctx, ids, amount)
	if err != nil {
		return domain.BulkResult{}, storeError(err, amount)
	}

	metrics.RecordWithdrawn(result.ActualTotal())
	s.publish(ctx, events.New(events.TypeWithdraw, inv.Caller.UserID, result.UserIDs(), amount, reason, s.now()))
	return result, nil
}

// prepareBulk runs the shared checks of Grant and Withdraw and resolves the target accounts.
func (s *Service) prepareBulk(ctx context.Context, inv Invocation, target Target, amount int64, reason string) ([]int64, error) {
	if err := s.checkChannel(ctx, inv); err != nil {
		return nil, err
	}
	if err := s.checkAdmin(ctx, inv); err != nil {
		return nil, err
	}
	if err := validateAmount(amount); err != nil {
		return nil, err
	}
	if limit := s.settings.MaxReasonLength; limit > 0 && utf8.RuneCountInString(reason) > limit {
		return nil, apperrors.NewReasonTooLongError(limit)
	}

	hasUser := target.User != nil
	hasRole := target.RoleID != 0
	if hasUser == hasRole {
		return nil, apperrors.NewValidationError(apperrors.MsgInvalidTarget, "exactly one of user or role is required")
	}

	if hasUser {
		if target.User.IsBot {
			return nil, apperrors.NewValidationError(apperrors.MsgBotTarget, "target is a bot")
		}
		return []int64{target.User.ID}, nil
	}

	if s.members == nil {
		return nil, apperrors.NewNoEligibleMembersError(target.RoleID)
	}

	ids, err := s.members.RoleMembers(ctx, inv.GuildID, target.RoleID)
	if err != nil {
		return nil, apperrors.NewExternalAPIError("member directory", err)
	}

	slices.Sort(ids)
	ids = slices.Compact(ids)
	if len(ids) == 0 {
		return nil, apperrors.NewNoEligibleMembersError(target.RoleID)
	}

	return ids, nil
}

// RandomReward grants the caller a uniform random amount once per cooldown.
func (s *Service) RandomReward(ctx context.Context, inv Invocation) (reward domain.RewardOutcome, err error) {
	defer func() { metrics.RecordLedgerOperation("random_reward", outcome(err)) }()

	if err := s.checkChannel(ctx, inv); err != nil {
		return domain.RewardOutcome{}, err
	}

	span := s.settings.RandomRewardMax - s.settings.RandomRewardMin + 1
	amount := s.settings.RandomRewardMin + s.rng.Int64N(span)
	now := s.now()

	claim, err := s.store.ClaimRandomReward(ctx, inv.Caller.UserID, amount, now, s.settings.RandomRewardCooldown)
	if err != nil {
		return domain.RewardOutcome{}, storeError(err, amount)
	}

	if !claim.Granted {
		elapsed := now.Sub(claim.LastClaimAt)
		return domain.RewardOutcome{}, apperrors.NewCooldownError(s.settings.RandomRewardCooldown - elapsed)
	}

	metrics.RecordIssued("random_reward", amount)
	s.publish(ctx, events.New(events.TypeRandomReward, inv.Caller.UserID, []int64{inv.Caller.UserID}, amount, "", now))

	return domain.RewardOutcome{Amount: amount, Balance: claim.Balance}, nil
}

// Leaderboard returns the top accounts and the caller's own rank when outside them.
func (s *Service) Leaderboard(ctx context.Context, inv Invocation) (board domain.Leaderboard, err error) {
	defer func() { metrics.RecordLedgerOperation("leaderboard", outcome(err)) }()

	if err := s.checkChannel(ctx, inv); err != nil {
		return domain.Leaderboard{}, err
	}

	board, err = s.store.Leaderboard(ctx, inv.Caller.UserID, s.settings.LeaderboardSize)
	if err != nil {
		return domain.Leaderboard{}, apperrors.NewDatabaseError(err)
	}

	return board, nil
}

// Export lists every account for an admin.
func (s *Service) Export(ctx context.Context, inv Invocation) (accounts []domain.Account, err error) {
	defer func() { metrics.RecordLedgerOperation("export", outcome(err)) }()

	if err := s.checkChannel(ctx, inv); err != nil {
		return nil, err
	}
	if err := s.checkAdmin(ctx, inv); err != nil {
		return nil, err
	}

	accounts, err = s.store.Accounts(ctx)
	if err != nil {
		return nil, apperrors.NewDatabaseError(err)
	}

	return accounts, nil
}
