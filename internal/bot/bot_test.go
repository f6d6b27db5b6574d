package bot

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Proton-105/frostbank/internal/bot/handlers"
	"github.com/Proton-105/frostbank/internal/domain"
	apperrors "github.com/Proton-105/frostbank/internal/errors"
	"github.com/Proton-105/frostbank/internal/i18n"
	"github.com/Proton-105/frostbank/internal/ledger"
	"github.com/Proton-105/frostbank/internal/middleware"
	"github.com/Proton-105/frostbank/internal/permission"
	"github.com/Proton-105/frostbank/internal/ratelimit"
	"github.com/Proton-105/frostbank/pkg/config"
)

type recorder struct {
	replies []handlers.Reply
}

func (r *recorder) Send(_ context.Context, reply handlers.Reply) error {
	r.replies = append(r.replies, reply)
	return nil
}

func (r *recorder) MentionUser(id int64) string            { return fmt.Sprintf("<@%d>", id) }
func (r *recorder) MentionRole(id int64) (string, bool)    { return fmt.Sprintf("<@&%d>", id), true }
func (r *recorder) MentionChannel(id int64) (string, bool) { return fmt.Sprintf("<#%d>", id), true }

type stubLedger struct {
	balance  int64
	grantErr error
	panicOn  string
	messages []ledger.MessageActivity
}

func (s *stubLedger) GetBalance(context.Context, ledger.Invocation, int64) (int64, error) {
	if s.panicOn == "balance" {
		panic("ledger exploded")
	}
	return s.balance, nil
}

func (s *stubLedger) Transfer(_ context.Context, inv ledger.Invocation, toID, amount int64) (domain.TransferReceipt, error) {
	return domain.TransferReceipt{FromID: inv.Caller.UserID, ToID: toID, Amount: amount}, nil
}

func (s *stubLedger) Grant(context.Context, ledger.Invocation, ledger.Target, int64, string) (domain.BulkResult, error) {
	return domain.BulkResult{}, s.grantErr
}

func (s *stubLedger) Withdraw(context.Context, ledger.Invocation, ledger.Target, int64, string) (domain.BulkResult, error) {
	return domain.BulkResult{}, nil
}

func (s *stubLedger) RandomReward(context.Context, ledger.Invocation) (domain.RewardOutcome, error) {
	return domain.RewardOutcome{Amount: 7}, nil
}

func (s *stubLedger) Leaderboard(context.Context, ledger.Invocation) (domain.Leaderboard, error) {
	return domain.Leaderboard{}, nil
}

func (s *stubLedger) Export(context.Context, ledger.Invocation) ([]domain.Account, error) {
	return nil, nil
}

func (s *stubLedger) PassiveMessageReward(_ context.Context, activity ledger.MessageActivity) bool {
	s.messages = append(s.messages, activity)
	return true
}

type stubSettings struct{}

func (stubSettings) AddChannel(context.Context, permission.Caller, int64) (bool, error) {
	return true, nil
}

func (stubSettings) RemoveChannel(context.Context, permission.Caller, int64) (bool, error) {
	return true, nil
}

func (stubSettings) Channels(context.Context, permission.Caller) ([]int64, error) { return nil, nil }

func (stubSettings) AddManagerRole(context.Context, permission.Caller, int64) (bool, error) {
	return true, nil
}

func (stubSettings) RemoveManagerRole(context.Context, permission.Caller, int64) (bool, error) {
	return true, nil
}

func (stubSettings) ManagerRoles(context.Context, permission.Caller) ([]int64, error) {
	return nil, nil
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newTestBot(t *testing.T, l *stubLedger, rl *middleware.RateLimitMiddleware) *Bot {
	t.Helper()

	translations, err := i18n.Load("ko")
	require.NoError(t, err)

	cfg := config.Config{Bot: config.BotConfig{Language: "ko"}}
	return New(cfg, testLogger(), l, stubSettings{}, translations, nil, rl)
}

func command(name string) *handlers.Request {
	return &handlers.Request{
		Command:   name,
		Platform:  "discord",
		Caller:    permission.Caller{UserID: 100},
		GuildID:   1,
		ChannelID: 2,
	}
}

func TestBot_RegistersAllCommands(t *testing.T) {
	b := newTestBot(t, &stubLedger{}, nil)

	assert.ElementsMatch(t, []string{
		CommandBalance, CommandTransfer, CommandGrant, CommandWithdraw, CommandSnowfall,
		CommandLeaderboard, CommandExport, CommandChannelAdd, CommandChannelRemove,
		CommandChannelList, CommandManagerRoleAdd, CommandManagerRoleRemove, CommandManagerRoleList,
	}, b.Commands())
}

func TestBot_HandleCommandDefaultsLanguage(t *testing.T) {
	b := newTestBot(t, &stubLedger{balance: 42}, nil)
	res := &recorder{}
	req := command(CommandBalance)

	require.NoError(t, b.HandleCommand(context.Background(), req, res))

	assert.Equal(t, "ko", req.Lang)
	require.Len(t, res.replies, 1)
	assert.Equal(t, "⛄ 지갑", res.replies[0].Title)
	assert.False(t, res.replies[0].Private)
}

func TestBot_ErrorsBecomePrivateNotices(t *testing.T) {
	l := &stubLedger{grantErr: apperrors.NewPermissionDeniedError(100)}
	b := newTestBot(t, l, nil)
	res := &recorder{}

	req := command(CommandGrant)
	req.Options.User = &ledger.Member{ID: 200}
	req.Options.Amount = 10

	require.NoError(t, b.HandleCommand(context.Background(), req, res))
	require.Len(t, res.replies, 1)
	assert.True(t, res.replies[0].Private)
	assert.Equal(t, "⚠️ 이 명령어는 **관리 권한**이 필요해요.", res.replies[0].Body)
}

func TestBot_RecoversFromPanics(t *testing.T) {
	b := newTestBot(t, &stubLedger{panicOn: "balance"}, nil)
	res := &recorder{}

	require.NoError(t, b.HandleCommand(context.Background(), command(CommandBalance), res))
	require.Len(t, res.replies, 1)
	assert.True(t, res.replies[0].Private)
	assert.Equal(t, "⚠️ 알 수 없는 문제가 발생했어요.", res.replies[0].Body)
}

func TestBot_UnknownCommand(t *testing.T) {
	b := newTestBot(t, &stubLedger{}, nil)

	err := b.HandleCommand(context.Background(), command("daily"), &recorder{})
	assert.ErrorIs(t, err, ErrUnknownCommand)
}

func TestBot_RateLimitedCommand(t *testing.T) {
	rules := ratelimit.NewRules(config.RateLimitConfig{
		Commands: config.RateLimitCommands{Transfer: config.RateLimitRule{Limit: 1, Window: "1m"}},
	})
	rl := middleware.NewRateLimitMiddleware(ratelimit.NewMemoryLimiter(testLogger()), rules, testLogger())
	b := newTestBot(t, &stubLedger{}, rl)
	res := &recorder{}

	req := command(CommandTransfer)
	req.Options.User = &ledger.Member{ID: 200}
	req.Options.Amount = 5

	require.NoError(t, b.HandleCommand(context.Background(), req, res))
	require.NoError(t, b.HandleCommand(context.Background(), req, res))

	require.Len(t, res.replies, 2)
	assert.False(t, res.replies[0].Private)
	assert.True(t, res.replies[1].Private)
	assert.Contains(t, res.replies[1].Body, "요청이 너무 많아요")
}

func TestBot_RejectTranslatesParseErrors(t *testing.T) {
	b := newTestBot(t, &stubLedger{}, nil)
	res := &recorder{}

	err := apperrors.NewValidationError(apperrors.MsgReplyRequired, "transfer needs a reply")
	require.NoError(t, b.Reject(context.Background(), command(CommandTransfer), res, err))

	require.Len(t, res.replies, 1)
	assert.True(t, res.replies[0].Private)
	assert.NotEqual(t, apperrors.MsgReplyRequired, res.replies[0].Body)
}

func TestBot_HandleMessage(t *testing.T) {
	l := &stubLedger{}
	b := newTestBot(t, l, nil)

	activity := ledger.MessageActivity{UserID: 100, InGuild: true}
	assert.True(t, b.HandleMessage(context.Background(), activity))
	assert.Equal(t, []ledger.MessageActivity{activity}, l.messages)
}

func TestRouter_MiddlewareOrder(t *testing.T) {
	router := NewRouter(testLogger())

	var trace []string
	mark := func(name string) handlers.Middleware {
		return func(next handlers.Handler) handlers.Handler {
			return func(ctx context.Context, req *handlers.Request, res handlers.Responder) error {
				trace = append(trace, name)
				return next(ctx, req, res)
			}
		}
	}

	router.Use(mark("outer"))
	router.Use(mark("inner"))
	router.RegisterCommand("ping", func(context.Context, *handlers.Request, handlers.Responder) error {
		trace = append(trace, "handler")
		return nil
	})

	require.NoError(t, router.Route(context.Background(), &handlers.Request{Command: "ping"}, &recorder{}))
	assert.Equal(t, []string{"outer", "inner", "handler"}, trace)
	assert.Equal(t, []string{"ping"}, router.Commands())
}

func TestRouter_NilRequestIsIgnored(t *testing.T) {
	router := NewRouter(testLogger())
	assert.NoError(t, router.Route(context.Background(), nil, &recorder{}))
}
