package admission

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/xela07ax/lendgate/internal/audit"
	"github.com/xela07ax/lendgate/internal/domain"
	"github.com/xela07ax/lendgate/internal/identity"
	"github.com/xela07ax/lendgate/internal/ledger"
	"github.com/xela07ax/lendgate/internal/policy"
	"github.com/xela07ax/lendgate/internal/repository/memory"
	"github.com/xela07ax/lendgate/internal/velocity"
)

type stubScorer struct {
	score int
	err   error
}

func (s stubScorer) BorrowerScore(context.Context, int64) (int, error) {
	return s.score, s.err
}

type stubKillSwitch struct {
	global  bool
	blocked map[int64]bool
}

func (s stubKillSwitch) IsBlocked(fid int64) bool { return s.blocked[fid] }
func (s stubKillSwitch) GlobalActive() bool       { return s.global }

type captureAuditor struct {
	mu     sync.Mutex
	events []audit.DecisionEvent
}

func (c *captureAuditor) Log(ev audit.DecisionEvent) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.events = append(c.events, ev)
}

type fixture struct {
	svc      *Service
	store    *memory.Store
	sessions *identity.SessionManager
	auditor  *captureAuditor
}

func newFixture(t *testing.T, scorer Scorer, ks KillSwitch) *fixture {
	t.Helper()
	store := memory.NewStore()
	sessions := identity.NewSessionManager(store, []byte("secret"), time.Hour, zap.NewNop())
	auditor := &captureAuditor{}
	svc := NewService(
		sessions, store, store, store, scorer,
		velocity.NewTracker(store, zap.NewNop()),
		ks, auditor, nil, 15*time.Minute, zap.NewNop())
	return &fixture{svc: svc, store: store, sessions: sessions, auditor: auditor}
}

func seedAgent(t *testing.T, store *memory.Store, fid int64) {
	t.Helper()
	require.NoError(t, store.UpsertAgent(context.Background(), &domain.Agent{
		FID:             fid,
		Active:          true,
		AutofundEnabled: true,
		Strategy: domain.Strategy{
			MinAmount: 1_000_000,
			MaxAmount: 1_000_000_000,
			MinScore:  400,
		},
		Limits: domain.Limits{MaxLoansPerDay: 10},
	}))
}

func seedSeekingLoan(t *testing.T, store *memory.Store, id string, createdAt time.Time) {
	t.Helper()
	require.NoError(t, store.CreateLoan(context.Background(), &domain.Loan{
		ID:           id,
		BorrowerFID:  42,
		BorrowerKind: domain.ActorHuman,
		Principal:    ledger.Micro(100_000_000),
		DurationDays: 30,
		Status:       domain.LoanSeeking,
		CreatedAt:    createdAt,
	}))
}

func TestDecideAcceptRecordsIntent(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, stubScorer{score: 700}, stubKillSwitch{})
	seedAgent(t, f.store, 9001)
	seedSeekingLoan(t, f.store, "loan-1", time.Now().Add(-time.Hour))

	token, _, err := f.sessions.Issue(ctx, 9001)
	require.NoError(t, err)

	res, err := f.svc.Decide(ctx, token, "loan-1")
	require.NoError(t, err)
	assert.True(t, res.Decision.Accepted)
	assert.NotEmpty(t, res.IntentID)

	// Интент зафиксирован со статусом RECORDED
	intents, err := f.store.ListIntents(ctx, domain.IntentRecorded)
	require.NoError(t, err)
	require.Len(t, intents, 1)
	assert.Equal(t, "loan-1", intents[0].LoanID)
	assert.Equal(t, int64(9001), intents[0].AgentFID)

	// Решение попало в журнал
	require.Len(t, f.auditor.events, 1)
	assert.Equal(t, audit.KindAdmission, f.auditor.events[0].Kind)
	assert.True(t, f.auditor.events[0].Accepted)
}

func TestDecideRejectsBadToken(t *testing.T) {
	f := newFixture(t, stubScorer{score: 700}, stubKillSwitch{})

	_, err := f.svc.Decide(context.Background(), "bogus", "loan-1")
	assert.ErrorIs(t, err, domain.ErrUnauthenticated)
}

func TestDecideRejectionCarriesAllReasons(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, stubScorer{score: 100}, stubKillSwitch{global: true})
	seedAgent(t, f.store, 9001)
	// Займ только что создан: окно удержания активно
	seedSeekingLoan(t, f.store, "loan-1", time.Now())

	res, err := f.svc.DecideForAgent(ctx, 9001, "loan-1")
	require.NoError(t, err, "rejection is a decision, not an error")
	assert.False(t, res.Decision.Accepted)
	assert.Empty(t, res.IntentID)

	assert.Contains(t, res.Decision.Reasons, policy.ReasonKillSwitch)
	assert.Contains(t, res.Decision.Reasons, policy.ReasonScoreBelowMinimum)
	assert.Contains(t, res.Decision.Reasons, policy.ReasonHoldbackActive)

	// Отрицательное решение интент не создает
	intents, err := f.store.ListIntents(ctx, "")
	require.NoError(t, err)
	assert.Empty(t, intents)
}

func TestDecideScoreFailOpen(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, stubScorer{err: errors.New("scoring down")}, stubKillSwitch{})
	seedAgent(t, f.store, 9001)
	seedSeekingLoan(t, f.store, "loan-1", time.Now().Add(-time.Hour))

	// Скоринг недоступен: решение принимается с худшим скором 0,
	// а не падает ошибкой
	res, err := f.svc.DecideForAgent(ctx, 9001, "loan-1")
	require.NoError(t, err)
	assert.False(t, res.Decision.Accepted)
	assert.Contains(t, res.Decision.Reasons, policy.ReasonScoreBelowMinimum)
}

func TestDecideBlockedAgent(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, stubScorer{score: 700}, stubKillSwitch{blocked: map[int64]bool{9001: true}})
	seedAgent(t, f.store, 9001)
	seedSeekingLoan(t, f.store, "loan-1", time.Now().Add(-time.Hour))

	res, err := f.svc.DecideForAgent(ctx, 9001, "loan-1")
	require.NoError(t, err)
	assert.False(t, res.Decision.Accepted)
	assert.Contains(t, res.Decision.Reasons, policy.ReasonKillSwitch)
}

func TestDecideNonSeekingLoan(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, stubScorer{score: 700}, stubKillSwitch{})
	seedAgent(t, f.store, 9001)
	seedSeekingLoan(t, f.store, "loan-1", time.Now().Add(-time.Hour))
	require.NoError(t, f.store.ConditionalFund(ctx, "loan-1", 500, domain.ActorHuman))

	_, err := f.svc.DecideForAgent(ctx, 9001, "loan-1")
	var serr *domain.StateError
	assert.ErrorAs(t, err, &serr)
}

func TestDecideRepeatIsIdempotent(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, stubScorer{score: 700}, stubKillSwitch{})
	seedAgent(t, f.store, 9001)
	seedSeekingLoan(t, f.store, "loan-1", time.Now().Add(-time.Hour))

	_, err := f.svc.DecideForAgent(ctx, 9001, "loan-1")
	require.NoError(t, err)
	_, err = f.svc.DecideForAgent(ctx, 9001, "loan-1")
	require.NoError(t, err)

	// Повторное положительное решение не плодит интенты
	intents, err := f.store.ListIntents(ctx, "")
	require.NoError(t, err)
	assert.Len(t, intents, 1)
}
