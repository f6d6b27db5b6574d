package ledger

import (
	"context"
	"math"
	"slices"
	"sync"
	"time"

	"github.com/Proton-105/frostbank/internal/domain"
)

// memStore is an in-memory Store with the same all-or-nothing semantics as the SQL store.
type memStore struct {
	mu       sync.Mutex
	accounts map[int64]*domain.Account
	calls    int
	err      error
}

func newMemStore() *memStore {
	return &memStore{accounts: map[int64]*domain.Account{}}
}

func (m *memStore) ensure(id int64) *domain.Account {
	acc, ok := m.accounts[id]
	if !ok {
		acc = &domain.Account{UserID: id}
		m.accounts[id] = acc
	}
	return acc
}

func (m *memStore) set(id, balance int64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.ensure(id).Balance = balance
}

func (m *memStore) balance(id int64) int64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	if acc, ok := m.accounts[id]; ok {
		return acc.Balance
	}
	return 0
}

func (m *memStore) begin() error {
	m.calls++
	return m.err
}

func (m *memStore) Balance(_ context.Context, userID int64) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.begin(); err != nil {
		return 0, err
	}
	return m.ensure(userID).Balance, nil
}

func (m *memStore) Transfer(_ context.Context, fromID, toID, amount int64) (domain.TransferReceipt, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.begin(); err != nil {
		return domain.TransferReceipt{}, err
	}

	from, to := m.ensure(fromID), m.ensure(toID)
	if from.Balance < amount {
		return domain.TransferReceipt{}, domain.ErrInsufficientFunds
	}
	if fromID != toID && to.Balance > math.MaxInt64-amount {
		return domain.TransferReceipt{}, domain.ErrBalanceOverflow
	}

	from.Balance -= amount
	to.Balance += amount
	return domain.TransferReceipt{FromID: fromID, ToID: toID, Amount: amount, FromBalance: from.Balance, ToBalance: to.Balance}, nil
}

func (m *memStore) Grant(_ context.Context, userIDs []int64, amount int64) (domain.BulkResult, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.begin(); err != nil {
		return domain.BulkResult{}, err
	}

	for _, id := range userIDs {
		if m.ensure(id).Balance > math.MaxInt64-amount {
			return domain.BulkResult{}, domain.ErrBalanceOverflow
		}
	}

	result := domain.BulkResult{Amount: amount}
	for _, id := range userIDs {
		acc := m.accounts[id]
		result.Changes = append(result.Changes, domain.BalanceChange{UserID: id, Before: acc.Balance, After: acc.Balance + amount})
		acc.Balance += amount
	}
	return result, nil
}

func (m *memStore) Withdraw(_ context.Context, userIDs []int64, amount int64) (domain.BulkResult, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.begin(); err != nil {
		return domain.BulkResult{}, err
	}

	result := domain.BulkResult{Amount: amount}
	for _, id := range userIDs {
		acc := m.ensure(id)
		after := max(acc.Balance-amount, 0)
		result.Changes = append(result.Changes, domain.BalanceChange{UserID: id, Before: acc.Balance, After: after})
		acc.Balance = after
	}
	return result, nil
}

func (m *memStore) ClaimRandomReward(_ context.Context, userID, amount int64, now time.Time, cooldown time.Duration) (domain.RewardClaim, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.begin(); err != nil {
		return domain.RewardClaim{}, err
	}

	acc := m.ensure(userID)
	if acc.LastRandomRewardAt != nil && acc.LastRandomRewardAt.After(now.Add(-cooldown)) {
		return domain.RewardClaim{Balance: acc.Balance, LastClaimAt: *acc.LastRandomRewardAt}, nil
	}

	acc.Balance += amount
	at := now
	acc.LastRandomRewardAt = &at
	return domain.RewardClaim{Granted: true, Balance: acc.Balance}, nil
}

func (m *memStore) ClaimMessageReward(_ context.Context, userID, amount int64, now time.Time, cooldown time.Duration) (domain.RewardClaim, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.begin(); err != nil {
		return domain.RewardClaim{}, err
	}

	acc := m.ensure(userID)
	if acc.LastMessageRewardAt != nil && acc.LastMessageRewardAt.After(now.Add(-cooldown)) {
		return domain.RewardClaim{Balance: acc.Balance}, nil
	}

	acc.Balance = min(acc.Balance, math.MaxInt64-amount) + amount
	at := now
	acc.LastMessageRewardAt = &at
	return domain.RewardClaim{Granted: true, Balance: acc.Balance}, nil
}

func (m *memStore) CreditSaturating(_ context.Context, userIDs []int64, amount int64) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.begin(); err != nil {
		return 0, err
	}

	for _, id := range userIDs {
		acc := m.ensure(id)
		acc.Balance = min(acc.Balance, math.MaxInt64-amount) + amount
	}
	return int64(len(userIDs)), nil
}

func (m *memStore) Leaderboard(_ context.Context, requesterID int64, limit int) (domain.Leaderboard, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.begin(); err != nil {
		return domain.Leaderboard{}, err
	}
	m.ensure(requesterID)

	all := make([]domain.LeaderboardEntry, 0, len(m.accounts))
	for _, acc := range m.accounts {
		all = append(all, domain.LeaderboardEntry{UserID: acc.UserID, Balance: acc.Balance})
	}
	slices.SortFunc(all, func(a, b domain.LeaderboardEntry) int {
		if a.Balance != b.Balance {
			if a.Balance > b.Balance {
				return -1
			}
			return 1
		}
		if a.UserID < b.UserID {
			return -1
		}
		return 1
	})
	for i := range all {
		rank := int64(1)
		for _, other := range all {
			if other.Balance > all[i].Balance {
				rank++
			}
		}
		all[i].Rank = rank
	}

	board := domain.Leaderboard{Entries: all[:min(limit, len(all))]}
	if !board.Contains(requesterID) {
		for i := range all {
			if all[i].UserID == requesterID {
				own := all[i]
				board.Requester = &own
			}
		}
	}
	return board, nil
}

func (m *memStore) Accounts(context.Context) ([]domain.Account, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.begin(); err != nil {
		return nil, err
	}

	out := make([]domain.Account, 0, len(m.accounts))
	for _, acc := range m.accounts {
		out = append(out, *acc)
	}
	return out, nil
}
