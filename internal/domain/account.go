// Package domain holds the ledger's core types.
package domain

import "time"

// Account is a single user's ledger row.
type Account struct {
	UserID              int64
	Balance             int64
	LastRandomRewardAt  *time.Time
	LastMessageRewardAt *time.Time
	CreatedAt           time.Time
}

// BalanceChange records one account's balance before and after a mutation.
type BalanceChange struct {
	UserID int64
	Before int64
	After  int64
}

// Delta is the signed change applied to the account.
func (c BalanceChange) Delta() int64 {
	return c.After - c.Before
}

// TransferReceipt describes a committed transfer.
type TransferReceipt struct {
	FromID      int64
	ToID        int64
	Amount      int64
	FromBalance int64
	ToBalance   int64
}

// BulkResult describes a committed grant or withdrawal across one or more accounts.
type BulkResult struct {
	Amount  int64
	Changes []BalanceChange
}

// NominalTotal is amount times the number of targets.
func (r BulkResult) NominalTotal() int64 {
	return r.Amount * int64(len(r.Changes))
}

// ActualTotal is the absolute amount actually moved, which is below NominalTotal when a
// withdrawal was clamped at zero.
func (r BulkResult) ActualTotal() int64 {
	var total int64
	for _, change := range r.Changes {
		delta := change.Delta()
		if delta < 0 {
			delta = -delta
		}
		total += delta
	}
	return total
}

// UserIDs lists the affected accounts in result order.
func (r BulkResult) UserIDs() []int64 {
	ids := make([]int64, len(r.Changes))
	for i, change := range r.Changes {
		ids[i] = change.UserID
	}
	return ids
}

// RewardClaim is the store's answer to a cooldown-gated reward attempt.
type RewardClaim struct {
	Granted bool
	Balance int64
	// LastClaimAt is the previous claim time when the claim was refused.
	LastClaimAt time.Time
}

// RewardOutcome is what a random reward command reports back to the caller.
type RewardOutcome struct {
	Amount    int64
	Balance   int64
	Remaining time.Duration
}

// LedgerStats summarises the whole ledger.
type LedgerStats struct {
	Accounts int64
	Supply   int64
}
