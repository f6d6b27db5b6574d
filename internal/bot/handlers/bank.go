package handlers

import (
	"context"
	"log/slog"
	"strings"
	"time"

	"github.com/Proton-105/frostbank/internal/domain"
	apperrors "github.com/Proton-105/frostbank/internal/errors"
	"github.com/Proton-105/frostbank/internal/export"
	"github.com/Proton-105/frostbank/internal/i18n"
	"github.com/Proton-105/frostbank/internal/ledger"
)

// Ledger is the part of the ledger engine the bank commands use.
type Ledger interface {
	GetBalance(ctx context.Context, inv ledger.Invocation, userID int64) (int64, error)
	Transfer(ctx context.Context, inv ledger.Invocation, toID, amount int64) (domain.TransferReceipt, error)
	Grant(ctx context.Context, inv ledger.Invocation, target ledger.Target, amount int64, reason string) (domain.BulkResult, error)
	Withdraw(ctx context.Context, inv ledger.Invocation, target ledger.Target, amount int64, reason string) (domain.BulkResult, error)
	RandomReward(ctx context.Context, inv ledger.Invocation) (domain.RewardOutcome, error)
	Leaderboard(ctx context.Context, inv ledger.Invocation) (domain.Leaderboard, error)
	Export(ctx context.Context, inv ledger.Invocation) ([]domain.Account, error)
}

// Bank renders the ledger commands.
type Bank struct {
	ledger Ledger
	i18n   *i18n.Manager
	now    func() time.Time
	log    *slog.Logger
}

func NewBank(l Ledger, translations *i18n.Manager, log *slog.Logger) *Bank {
	if log == nil {
		log = slog.Default()
	}

	return &Bank{
		ledger: l,
		i18n:   translations,
		now:    time.Now,
		log:    log.With(slog.String("component", "bank_handlers")),
	}
}

// Balance shows the caller's wallet, or the wallet of the user option.
func (b *Bank) Balance(ctx context.Context, req *Request, res Responder) error {
	t := b.i18n.Translator(req.Lang)

	userID := req.Caller.UserID
	if req.Options.User != nil {
		userID = req.Options.User.ID
	}

	balance, err := b.ledger.GetBalance(ctx, req.Invocation(), userID)
	if err != nil {
		return err
	}

	body := t.Tf("balance.body", map[string]any{"Balance": balance})
	if userID != req.Caller.UserID {
		body = t.Tf("balance.other", map[string]any{"User": res.MentionUser(userID), "Balance": balance})
	}

	return res.Send(ctx, Reply{Title: t.T("balance.title"), Body: body, Color: ColorBlue})
}

func (b *Bank) Transfer(ctx context.Context, req *Request, res Responder) error {
	if req.Options.User == nil {
		return apperrors.NewValidationError(apperrors.MsgInvalidTarget, "transfer needs a receiver")
	}

	receipt, err := b.ledger.Transfer(ctx, req.Invocation(), req.Options.User.ID, req.Options.Amount)
	if err != nil {
		return err
	}

	t := b.i18n.Translator(req.Lang)
	return res.Send(ctx, Reply{
		Title: t.T("transfer.title"),
		Body: t.Tf("transfer.body", map[string]any{
			"Amount": receipt.Amount,
			"From":   res.MentionUser(receipt.FromID),
			"To":     res.MentionUser(receipt.ToID),
		}),
		Color: ColorTeal,
	})
}

func (b *Bank) Grant(ctx context.Context, req *Request, res Responder) error {
	target := b.target(req)
	result, err := b.ledger.Grant(ctx, req.Invocation(), target, req.Options.Amount, req.Options.Reason)
	if err != nil {
		return err
	}

	t := b.i18n.Translator(req.Lang)
	var body string
	if target.User != nil {
		body = t.Tf("grant.user", map[string]any{
			"Target":  res.MentionUser(target.User.ID),
			"Amount":  result.Amount,
			"Balance": lastBalance(result),
		})
	} else {
		role, _ := res.MentionRole(target.RoleID)
		body = t.Tf("grant.role", map[string]any{
			"Target": role,
			"Count":  len(result.Changes),
			"Amount": result.Amount,
			"Total":  result.ActualTotal(),
		})
	}

	return res.Send(ctx, Reply{
		Title: t.T("grant.title"),
		Body:  withReason(t, body, req.Options.Reason),
		Color: ColorTeal,
	})
}

// Withdraw reports the amount actually removed, which is lower than requested when a
// balance was clamped at zero.
func (b *Bank) Withdraw(ctx context.Context, req *Request, res Responder) error {
	target := b.target(req)
	result, err := b.ledger.Withdraw(ctx, req.Invocation(), target, req.Options.Amount, req.Options.Reason)
	if err != nil {
		return err
	}

	t := b.i18n.Translator(req.Lang)
	var body string
	if target.User != nil {
		body = t.Tf("withdraw.user", map[string]any{
			"Target":  res.MentionUser(target.User.ID),
			"Amount":  result.ActualTotal(),
			"Balance": lastBalance(result),
		})
	} else {
		role, _ := res.MentionRole(target.RoleID)
		body = t.Tf("withdraw.role", map[string]any{
			"Target":  role,
			"Count":   len(result.Changes),
			"Actual":  result.ActualTotal(),
			"Nominal": result.NominalTotal(),
		})
	}

	return res.Send(ctx, Reply{
		Title: t.T("withdraw.title"),
		Body:  withReason(t, body, req.Options.Reason),
		Color: ColorDarkBlue,
	})
}

// Snowfall claims the random reward.
func (b *Bank) Snowfall(ctx context.Context, req *Request, res Responder) error {
	reward, err := b.ledger.RandomReward(ctx, req.Invocation())
	if err != nil {
		return err
	}

	t := b.i18n.Translator(req.Lang)
	return res.Send(ctx, Reply{
		Title: t.T("snowfall.title"),
		Body:  t.Tf("snowfall.body", map[string]any{"User": res.MentionUser(req.Caller.UserID), "Amount": reward.Amount}),
		Color: ColorBlue,
	})
}

func (b *Bank) Leaderboard(ctx context.Context, req *Request, res Responder) error {
	board, err := b.ledger.Leaderboard(ctx, req.Invocation())
	if err != nil {
		return err
	}

	t := b.i18n.Translator(req.Lang)
	lines := make([]string, 0, len(board.Entries)+2)
	for _, entry := range board.Entries {
		lines = append(lines, t.Tf("leaderboard.line", entryData(res, entry)))
	}
	if len(lines) == 0 {
		lines = append(lines, t.T("leaderboard.empty"))
	}
	if board.Requester != nil {
		lines = append(lines, "", t.Tf("leaderboard.self", entryData(res, *board.Requester)))
	}

	return res.Send(ctx, Reply{
		Title: t.T("leaderboard.title"),
		Body:  strings.Join(lines, "\n"),
		Color: ColorBlue,
	})
}

// Export sends every balance to the caller as a spreadsheet.
func (b *Bank) Export(ctx context.Context, req *Request, res Responder) error {
	accounts, err := b.ledger.Export(ctx, req.Invocation())
	if err != nil {
		return err
	}

	t := b.i18n.Translator(req.Lang)
	data, err := export.Balances(t.T("export.sheet"), accounts)
	if err != nil {
		return apperrors.NewUnknownError(err)
	}

	b.log.Info("balances exported", slog.Int64("user_id", req.Caller.UserID), slog.Int("accounts", len(accounts)))

	return res.Send(ctx, Reply{
		Body:    t.Tf("export.done", map[string]any{"Count": len(accounts)}),
		Private: true,
		File: &File{
			Name:        export.FileName(b.now()),
			ContentType: export.ContentType,
			Data:        data,
		},
	})
}

func (b *Bank) target(req *Request) ledger.Target {
	return ledger.Target{User: req.Options.User, RoleID: req.Options.RoleID}
}

func lastBalance(result domain.BulkResult) int64 {
	if len(result.Changes) == 0 {
		return 0
	}
	return result.Changes[len(result.Changes)-1].After
}

func withReason(t i18n.Translator, body, reason string) string {
	if reason == "" {
		return body
	}
	return body + "\n" + t.Tf("reason", map[string]any{"Reason": reason})
}

func entryData(res Responder, entry domain.LeaderboardEntry) map[string]any {
	return map[string]any{
		"Rank":    entry.Rank,
		"User":    res.MentionUser(entry.UserID),
		"Balance": entry.Balance,
	}
}
