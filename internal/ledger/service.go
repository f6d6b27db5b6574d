// Package ledger implements the bank: balances, transfers, admin grants and withdrawals,
// timed and passive rewards, and the leaderboard.
package ledger

import (
	"context"
	"errors"
	"log/slog"
	"math/rand/v2"
	"sync"
	"time"

	"github.com/Proton-105/frostbank/internal/domain"
	apperrors "github.com/Proton-105/frostbank/internal/errors"
	"github.com/Proton-105/frostbank/internal/events"
	"github.com/Proton-105/frostbank/internal/permission"
	"github.com/Proton-105/frostbank/pkg/config"
	"github.com/Proton-105/frostbank/pkg/metrics"
)

const publishTimeout = 5 * time.Second

// Store persists accounts. Multi-account mutations must be all-or-nothing.
type Store interface {
	Balance(ctx context.Context, userID int64) (int64, error)
	Transfer(ctx context.Context, fromID, toID, amount int64) (domain.TransferReceipt, error)
	Grant(ctx context.Context, userIDs []int64, amount int64) (domain.BulkResult, error)
	Withdraw(ctx context.Context, userIDs []int64, amount int64) (domain.BulkResult, error)
	ClaimRandomReward(ctx context.Context, userID, amount int64, now time.Time, cooldown time.Duration) (domain.RewardClaim, error)
	ClaimMessageReward(ctx context.Context, userID, amount int64, now time.Time, cooldown time.Duration) (domain.RewardClaim, error)
	CreditSaturating(ctx context.Context, userIDs []int64, amount int64) (int64, error)
	Leaderboard(ctx context.Context, requesterID int64, limit int) (domain.Leaderboard, error)
	Accounts(ctx context.Context) ([]domain.Account, error)
}

// Gate answers channel and admin questions.
type Gate interface {
	IsChannelAllowed(ctx context.Context, channelID int64) bool
	IsAdmin(ctx context.Context, caller permission.Caller) bool
}

// MemberDirectory resolves role holders on the chat platform.
type MemberDirectory interface {
	// RoleMembers returns the non-bot members of guildID holding roleID.
	RoleMembers(ctx context.Context, guildID, roleID int64) ([]int64, error)
}

// RandSource draws uniform integers in [0, n).
type RandSource interface {
	Int64N(n int64) int64
}

type globalRand struct{}

func (globalRand) Int64N(n int64) int64 { return rand.Int64N(n) }

// Settings tunes rewards and the leaderboard.
type Settings struct {
	RandomRewardMin       int64
	RandomRewardMax       int64
	RandomRewardCooldown  time.Duration
	MessageReward         int64
	MessageRewardCooldown time.Duration
	VoiceReward           int64
	LeaderboardSize       int
	MaxReasonLength       int
}

// SettingsFromConfig maps the bank config section.
func SettingsFromConfig(cfg config.BankConfig) Settings {
	return Settings{
		RandomRewardMin:       cfg.RandomRewardMin,
		RandomRewardMax:       cfg.RandomRewardMax,
		RandomRewardCooldown:  cfg.RandomRewardCooldown,
		MessageReward:         cfg.MessageReward,
		MessageRewardCooldown: cfg.MessageRewardCooldown,
		VoiceReward:           cfg.VoiceReward,
		LeaderboardSize:       cfg.LeaderboardSize,
		MaxReasonLength:       200,
	}
}

// DefaultSettings returns the stock reward values.
func DefaultSettings() Settings {
	return Settings{
		RandomRewardMin:       1,
		RandomRewardMax:       100,
		RandomRewardCooldown:  30 * time.Minute,
		MessageReward:         2,
		MessageRewardCooldown: time.Minute,
		VoiceReward:           3,
		LeaderboardSize:       10,
		MaxReasonLength:       200,
	}
}

// Invocation describes where and by whom a command was issued.
type Invocation struct {
	Caller    permission.Caller
	GuildID   int64
	ChannelID int64
}

// Member is a platform user as resolved by the adapter.
type Member struct {
	ID    int64
	IsBot bool
}

// Target selects the accounts of a grant or withdrawal: exactly one of User or RoleID.
type Target struct {
	User   *Member
	RoleID int64
}

// Service is the ledger engine.
type Service struct {
	store     Store
	gate      Gate
	members   MemberDirectory
	publisher events.Publisher
	breaker   *apperrors.CircuitBreaker
	settings  Settings
	now       func() time.Time
	rng       RandSource
	log       *slog.Logger

	publishing sync.WaitGroup
}

// Option customises a Service.
type Option func(*Service)

// WithClock replaces time.Now.
func WithClock(now func() time.Time) Option {
	return func(s *Service) { s.now = now }
}

// WithRand replaces the random source used for the random reward.
func WithRand(rng RandSource) Option {
	return func(s *Service) { s.rng = rng }
}

// WithBreaker replaces the circuit breaker guarding passive rewards.
func WithBreaker(cb *apperrors.CircuitBreaker) Option {
	return func(s *Service) { s.breaker = cb }
}

// NewService wires the ledger engine. members and publisher may be nil.
func NewService(store Store, gate Gate, members MemberDirectory, publisher events.Publisher, settings Settings, log *slog.Logger, opts ...Option) *Service {
	if log == nil {
		log = slog.Default()
	}
	if publisher == nil {
		publisher = events.NoopPublisher{}
	}

	s := &Service{
		store:     store,
		gate:      gate,
		members:   members,
		publisher: publisher,
		settings:  settings,
		now:       time.Now,
		rng:       globalRand{},
		log:       log.With(slog.String("component", "ledger")),
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.breaker == nil {
		s.breaker = apperrors.NewCircuitBreaker("passive_rewards", apperrors.BreakerSettings{
			OnStateChange: func(name string, _, to apperrors.State) {
				metrics.SetCircuitBreakerState(name, int(to))
			},
		})
	}

	return s
}

// Settings returns the active reward settings.
func (s *Service) Settings() Settings {
	return s.settings
}

// SetMemberDirectory installs the role resolver. It must be called before the service
// handles any command.
func (s *Service) SetMemberDirectory(members MemberDirectory) {
	s.members = members
}

// Wait blocks until in-flight event publications finish.
func (s *Service) Wait() {
	s.publishing.Wait()
}

func (s *Service) checkChannel(ctx context.Context, inv Invocation) error {
	if !s.gate.IsChannelAllowed(ctx, inv.ChannelID) {
		return apperrors.NewChannelNotAllowedError(inv.ChannelID)
	}
	return nil
}

func (s *Service) checkAdmin(ctx context.Context, inv Invocation) error {
	if !s.gate.IsAdmin(ctx, inv.Caller) {
		return apperrors.NewPermissionDeniedError(inv.Caller.UserID)
	}
	return nil
}

func validateAmount(amount int64) error {
	if amount < 1 {
		return apperrors.NewValidationError(apperrors.MsgInvalidAmount, "amount must be at least 1")
	}
	return nil
}

// storeError maps persistence failures into the error taxonomy.
func storeError(err error, amount int64) error {
	switch {
	case errors.Is(err, domain.ErrInsufficientFunds):
		return apperrors.NewInsufficientFundsError(amount, err)
	case errors.Is(err, domain.ErrBalanceOverflow):
		return apperrors.NewBalanceOverflowError(err)
	default:
		return apperrors.NewDatabaseError(err)
	}
}

func outcome(err error) string {
	if err == nil {
		return "ok"
	}
	var appErr *apperrors.AppError
	if errors.As(err, &appErr) && appErr.Severity == apperrors.SeverityLow {
		return "denied"
	}
	return "error"
}

// publish hands event to the publisher in the background. Failures are logged only.
func (s *Service) publish(ctx context.Context, event events.Event) {
	s.publishing.Add(1)
	go func() {
		defer s.publishing.Done()

		pubCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), publishTimeout)
		defer cancel()

		if err := s.publisher.Publish(pubCtx, event); err != nil {
			metrics.RecordEventPublished("error")
			s.log.Warn("failed to publish ledger event",
				slog.String("event_id", event.ID),
				slog.String("type", string(event.Type)),
				slog.Any("error", err),
			)
			return
		}
		metrics.RecordEventPublished("ok")
	}()
}
