package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"slices"
	"time"

	"github.com/lib/pq"

	"github.com/Proton-105/frostbank/internal/domain"
)

const maxBalance int64 = math.MaxInt64

const (
	ensureAccountsQuery = `
		INSERT INTO accounts (user_id)
		SELECT unnest($1::bigint[])
		ON CONFLICT (user_id) DO NOTHING
	`

	selectBalanceQuery = `SELECT balance FROM accounts WHERE user_id = $1`

	debitQuery = `
		UPDATE accounts SET balance = balance - $2
		WHERE user_id = $1 AND balance >= $2
		RETURNING balance
	`

	creditQuery = `
		UPDATE accounts SET balance = balance + $2
		WHERE user_id = $1 AND balance <= $3::bigint - $2
		RETURNING balance
	`

	grantQuery = `
		UPDATE accounts SET balance = balance + $2
		WHERE user_id = ANY($1) AND balance <= $3::bigint - $2
		RETURNING user_id, balance - $2, balance
	`

	withdrawQuery = `
		WITH prev AS (
			SELECT user_id, balance FROM accounts
			WHERE user_id = ANY($1)
			FOR UPDATE
		)
		UPDATE accounts a SET balance = GREATEST(a.balance - $2, 0)
		FROM prev
		WHERE a.user_id = prev.user_id
		RETURNING a.user_id, prev.balance, a.balance
	`

	claimRandomRewardQuery = `
		UPDATE accounts SET balance = balance + $2, last_random_reward_at = $3
		WHERE user_id = $1
			AND (last_random_reward_at IS NULL OR last_random_reward_at <= $4)
			AND balance <= $5::bigint - $2
		RETURNING balance
	`

	selectRandomRewardQuery = `SELECT balance, last_random_reward_at FROM accounts WHERE user_id = $1`

	claimMessageRewardQuery = `
		UPDATE accounts SET balance = LEAST(balance, $5::bigint - $2) + $2, last_message_reward_at = $3
		WHERE user_id = $1
			AND (last_message_reward_at IS NULL OR last_message_reward_at <= $4)
		RETURNING balance
	`

	creditSaturatingQuery = `
		UPDATE accounts SET balance = LEAST(balance, $3::bigint - $2) + $2
		WHERE user_id = ANY($1)
	`

	leaderboardQuery = `
		SELECT rank, user_id, balance FROM (
			SELECT user_id, balance, RANK() OVER (ORDER BY balance DESC) AS rank
			FROM accounts
		) ranked
		ORDER BY balance DESC, user_id ASC
		LIMIT $1
	`

	leaderboardRankQuery = `
		SELECT rank, user_id, balance FROM (
			SELECT user_id, balance, RANK() OVER (ORDER BY balance DESC) AS rank
			FROM accounts
		) ranked
		WHERE user_id = $1
	`

	statsQuery = `
		SELECT COUNT(*), LEAST(COALESCE(SUM(balance), 0), $1::bigint)::bigint
		FROM accounts
	`

	listAccountsQuery = `
		SELECT user_id, balance, last_random_reward_at, last_message_reward_at, created_at
		FROM accounts
		ORDER BY balance DESC, user_id ASC
	`
)

// AccountRepository persists ledger accounts in PostgreSQL.
type AccountRepository struct {
	db  *sql.DB
	log *slog.Logger
}

// NewAccountRepository creates a new SQL-backed account repository.
func NewAccountRepository(db *sql.DB, log *slog.Logger) *AccountRepository {
	if log == nil {
		log = slog.Default()
	}

	return &AccountRepository{
		db:  db,
		log: log.With(slog.String("component", "account_repository")),
	}
}

type execer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

func ensureAccounts(ctx context.Context, exec execer, ids []int64) error {
	if _, err := exec.ExecContext(ctx, ensureAccountsQuery, pq.Array(ids)); err != nil {
		return fmt.Errorf("ensure accounts: %w", err)
	}
	return nil
}

// Balance returns the user's balance, creating a zero account when absent.
func (r *AccountRepository) Balance(ctx context.Context, userID int64) (int64, error) {
	if err := ensureAccounts(ctx, r.db, []int64{userID}); err != nil {
		return 0, err
	}

	var balance int64
	if err := r.db.QueryRowContext(ctx, selectBalanceQuery, userID).Scan(&balance); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return 0, domain.ErrAccountNotFound
		}
		r.log.Error("failed to fetch balance", slog.Int64("user_id", userID), slog.Any("error", err))
		return 0, fmt.Errorf("select balance: %w", err)
	}

	return balance, nil
}

// Transfer moves amount from one account to another in a single transaction.
func (r *AccountRepository) Transfer(ctx context.Context, fromID, toID, amount int64) (domain.TransferReceipt, error) {
	receipt := domain.TransferReceipt{FromID: fromID, ToID: toID, Amount: amount}

	err := withTx(ctx, r.db, nil, r.log, func(tx *sql.Tx) error {
		if err := ensureAccounts(ctx, tx, uniqueIDs([]int64{fromID, toID})); err != nil {
			return err
		}

		if err := tx.QueryRowContext(ctx, debitQuery, fromID, amount).Scan(&receipt.FromBalance); err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				return domain.ErrInsufficientFunds
			}
			return fmt.Errorf("debit sender: %w", err)
		}

		if err := tx.QueryRowContext(ctx, creditQuery, toID, amount, maxBalance).Scan(&receipt.ToBalance); err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				return domain.ErrBalanceOverflow
			}
			return fmt.Errorf("credit receiver: %w", err)
		}

		if fromID == toID {
			receipt.FromBalance = receipt.ToBalance
		}

		return nil
	})
	if err != nil {
		r.logFailure("transfer failed", err, slog.Int64("from_id", fromID), slog.Int64("to_id", toID))
		return domain.TransferReceipt{}, err
	}

	return receipt, nil
}

// Grant adds amount to every listed account, all or nothing.
func (r *AccountRepository) Grant(ctx context.Context, userIDs []int64, amount int64) (domain.BulkResult, error) {
	ids := uniqueIDs(userIDs)
	result := domain.BulkResult{Amount: amount}

	err := withTx(ctx, r.db, nil, r.log, func(tx *sql.Tx) error {
		if err := ensureAccounts(ctx, tx, ids); err != nil {
			return err
		}

		changes, err := queryChanges(ctx, tx, grantQuery, pq.Array(ids), amount, maxBalance)
		if err != nil {
			return fmt.Errorf("grant: %w", err)
		}
		if len(changes) != len(ids) {
			return domain.ErrBalanceOverflow
		}

		result.Changes = changes
		return nil
	})
	if err != nil {
		r.logFailure("grant failed", err, slog.Int("targets", len(ids)))
		return domain.BulkResult{}, err
	}

	return result, nil
}

// Withdraw subtracts amount from every listed account, clamping each balance at zero.
func (r *AccountRepository) Withdraw(ctx context.Context, userIDs []int64, amount int64) (domain.BulkResult, error) {
	ids := uniqueIDs(userIDs)
	result := domain.BulkResult{Amount: amount}

	err := withTx(ctx, r.db, nil, r.log, func(tx *sql.Tx) error {
		if err := ensureAccounts(ctx, tx, ids); err != nil {
			return err
		}

		changes, err := queryChanges(ctx, tx, withdrawQuery, pq.Array(ids), amount)
		if err != nil {
			return fmt.Errorf("withdraw: %w", err)
		}

		result.Changes = changes
		return nil
	})
	if err != nil {
		r.logFailure("withdraw failed", err, slog.Int("targets", len(ids)))
		return domain.BulkResult{}, err
	}

	return result, nil
}

func queryChanges(ctx context.Context, tx *sql.Tx, query string, args ...any) ([]domain.BalanceChange, error) {
	rows, err := tx.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var changes []domain.BalanceChange
	for rows.Next() {
		var change domain.BalanceChange
		if err := rows.Scan(&change.UserID, &change.Before, &change.After); err != nil {
			return nil, fmt.Errorf("scan balance change: %w", err)
		}
		changes = append(changes, change)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	slices.SortFunc(changes, func(a, b domain.BalanceChange) int {
		switch {
		case a.UserID < b.UserID:
			return -1
		case a.UserID > b.UserID:
			return 1
		default:
			return 0
		}
	})

	return changes, nil
}

// ClaimRandomReward credits amount when the last random reward is at least cooldown old.
// A refused claim carries the previous claim time and leaves the row untouched.
func (r *AccountRepository) ClaimRandomReward(ctx context.Context, userID, amount int64, now time.Time, cooldown time.Duration) (domain.RewardClaim, error) {
	if err := ensureAccounts(ctx, r.db, []int64{userID}); err != nil {
		return domain.RewardClaim{}, err
	}

	cutoff := now.Add(-cooldown)

	var balance int64
	err := r.db.QueryRowContext(ctx, claimRandomRewardQuery, userID, amount, now, cutoff, maxBalance).Scan(&balance)
	if err == nil {
		return domain.RewardClaim{Granted: true, Balance: balance}, nil
	}
	if !errors.Is(err, sql.ErrNoRows) {
		r.log.Error("failed to claim random reward", slog.Int64("user_id", userID), slog.Any("error", err))
		return domain.RewardClaim{}, fmt.Errorf("claim random reward: %w", err)
	}

	var last sql.NullTime
	if err := r.db.QueryRowContext(ctx, selectRandomRewardQuery, userID).Scan(&balance, &last); err != nil {
		return domain.RewardClaim{}, fmt.Errorf("select random reward state: %w", err)
	}

	if !last.Valid || !last.Time.After(cutoff) {
		return domain.RewardClaim{}, domain.ErrBalanceOverflow
	}

	return domain.RewardClaim{Balance: balance, LastClaimAt: last.Time}, nil
}

// ClaimMessageReward credits amount, saturating at the maximum balance, when the last message
// reward is at least cooldown old.
func (r *AccountRepository) ClaimMessageReward(ctx context.Context, userID, amount int64, now time.Time, cooldown time.Duration) (domain.RewardClaim, error) {
	if err := ensureAccounts(ctx, r.db, []int64{userID}); err != nil {
		return domain.RewardClaim{}, err
	}

	var balance int64
	err := r.db.QueryRowContext(ctx, claimMessageRewardQuery, userID, amount, now, now.Add(-cooldown), maxBalance).Scan(&balance)
	switch {
	case err == nil:
		return domain.RewardClaim{Granted: true, Balance: balance}, nil
	case errors.Is(err, sql.ErrNoRows):
		return domain.RewardClaim{}, nil
	default:
		return domain.RewardClaim{}, fmt.Errorf("claim message reward: %w", err)
	}
}

// CreditSaturating adds amount to every listed account in one transaction, creating accounts as
// needed. Balances saturate at the maximum instead of failing.
func (r *AccountRepository) CreditSaturating(ctx context.Context, userIDs []int64, amount int64) (int64, error) {
	ids := uniqueIDs(userIDs)
	var credited int64

	err := withTx(ctx, r.db, nil, r.log, func(tx *sql.Tx) error {
		if err := ensureAccounts(ctx, tx, ids); err != nil {
			return err
		}

		res, err := tx.ExecContext(ctx, creditSaturatingQuery, pq.Array(ids), amount, maxBalance)
		if err != nil {
			return fmt.Errorf("credit accounts: %w", err)
		}

		credited, err = res.RowsAffected()
		if err != nil {
			return fmt.Errorf("credit accounts rows affected: %w", err)
		}
		return nil
	})
	if err != nil {
		return 0, err
	}

	return credited, nil
}

// Leaderboard returns the top limit accounts plus the requester's own rank when outside them.
func (r *AccountRepository) Leaderboard(ctx context.Context, requesterID int64, limit int) (domain.Leaderboard, error) {
	if err := ensureAccounts(ctx, r.db, []int64{requesterID}); err != nil {
		return domain.Leaderboard{}, err
	}

	var board domain.Leaderboard
	opts := &sql.TxOptions{Isolation: sql.LevelRepeatableRead, ReadOnly: true}

	err := withTx(ctx, r.db, opts, r.log, func(tx *sql.Tx) error {
		rows, err := tx.QueryContext(ctx, leaderboardQuery, limit)
		if err != nil {
			return fmt.Errorf("select leaderboard: %w", err)
		}
		defer rows.Close()

		for rows.Next() {
			var entry domain.LeaderboardEntry
			if err := rows.Scan(&entry.Rank, &entry.UserID, &entry.Balance); err != nil {
				return fmt.Errorf("scan leaderboard entry: %w", err)
			}
			board.Entries = append(board.Entries, entry)
		}
		if err := rows.Err(); err != nil {
			return fmt.Errorf("iterate leaderboard: %w", err)
		}

		if board.Contains(requesterID) {
			return nil
		}

		var own domain.LeaderboardEntry
		if err := tx.QueryRowContext(ctx, leaderboardRankQuery, requesterID).Scan(&own.Rank, &own.UserID, &own.Balance); err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				return domain.ErrAccountNotFound
			}
			return fmt.Errorf("select requester rank: %w", err)
		}
		board.Requester = &own
		return nil
	})
	if err != nil {
		r.logFailure("leaderboard failed", err, slog.Int64("user_id", requesterID))
		return domain.Leaderboard{}, err
	}

	return board, nil
}

// Stats returns the number of accounts and the total supply.
func (r *AccountRepository) Stats(ctx context.Context) (domain.LedgerStats, error) {
	var stats domain.LedgerStats
	if err := r.db.QueryRowContext(ctx, statsQuery, maxBalance).Scan(&stats.Accounts, &stats.Supply); err != nil {
		return domain.LedgerStats{}, fmt.Errorf("select ledger stats: %w", err)
	}
	return stats, nil
}

// Accounts lists every account ordered like the leaderboard.
func (r *AccountRepository) Accounts(ctx context.Context) ([]domain.Account, error) {
	rows, err := r.db.QueryContext(ctx, listAccountsQuery)
	if err != nil {
		return nil, fmt.Errorf("select accounts: %w", err)
	}
	defer rows.Close()

	var accounts []domain.Account
	for rows.Next() {
		var (
			account         domain.Account
			random, message sql.NullTime
		)
		if err := rows.Scan(&account.UserID, &account.Balance, &random, &message, &account.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan account: %w", err)
		}
		account.LastRandomRewardAt = nullTimePtr(random)
		account.LastMessageRewardAt = nullTimePtr(message)
		accounts = append(accounts, account)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate accounts: %w", err)
	}

	return accounts, nil
}

func nullTimePtr(t sql.NullTime) *time.Time {
	if !t.Valid {
		return nil
	}
	v := t.Time
	return &v
}

func (r *AccountRepository) logFailure(msg string, err error, attrs ...any) {
	if errors.Is(err, domain.ErrInsufficientFunds) || errors.Is(err, domain.ErrBalanceOverflow) {
		return
	}
	r.log.Error(msg, append(attrs, slog.Any("error", err))...)
}
