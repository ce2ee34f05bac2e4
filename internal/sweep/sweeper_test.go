package sweep

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/xela07ax/lendgate/internal/auction"
	"github.com/xela07ax/lendgate/internal/domain"
	"github.com/xela07ax/lendgate/internal/ledger"
	"github.com/xela07ax/lendgate/internal/repository/memory"
)

func newTestSweeper(t *testing.T) (*Sweeper, *memory.Store) {
	t.Helper()
	store := memory.NewStore()
	settler := auction.NewEngine(store, store, store, nil, nil, 0, zap.NewNop())
	s := NewSweeper(store, settler, Config{
		OverdueAfter: 24 * time.Hour,
		DefaultAfter: 7 * 24 * time.Hour,
	}, nil, zap.NewNop())
	return s, store
}

func seed(t *testing.T, store *memory.Store, loan domain.Loan) {
	t.Helper()
	if loan.Principal == 0 {
		loan.Principal = ledger.Micro(100_000_000)
	}
	require.NoError(t, store.CreateLoan(context.Background(), &loan))
}

func TestRunSettlesExpiredAuctions(t *testing.T) {
	ctx := context.Background()
	s, store := newTestSweeper(t)
	now := time.Now()

	seed(t, store, domain.Loan{
		ID:            "expired-with-bid",
		BorrowerFID:   42,
		Status:        domain.LoanSeeking,
		CreatedAt:     now.Add(-25 * time.Hour),
		AuctionEndsAt: now.Add(-time.Hour),
		DueAt:         now.Add(30 * 24 * time.Hour),
	})
	require.NoError(t, store.PlaceBid(ctx, &domain.Bid{
		ID: "b1", LoanID: "expired-with-bid", BidderFID: 9001,
		BidderKind: domain.ActorAgent, Amount: 1_000_000, Status: domain.BidWinning,
	}))
	require.NoError(t, store.RecordIntent(ctx, &domain.FundingIntent{
		ID: "i1", LoanID: "expired-with-bid", AgentFID: 9001, Status: domain.IntentRecorded,
	}))
	require.NoError(t, store.RecordIntent(ctx, &domain.FundingIntent{
		ID: "i2", LoanID: "expired-with-bid", AgentFID: 9002, Status: domain.IntentRecorded,
	}))

	rep, err := s.Run(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, rep.Settled)
	assert.Zero(t, rep.Errors)

	loan, err := store.GetLoan(ctx, "expired-with-bid")
	require.NoError(t, err)
	assert.Equal(t, domain.LoanFunded, loan.Status)
	assert.Equal(t, int64(9001), loan.FunderFID)

	// Интент победителя SETTLED, проигравшего — EXPIRED
	settled, err := store.ListIntents(ctx, domain.IntentSettled)
	require.NoError(t, err)
	require.Len(t, settled, 1)
	assert.Equal(t, int64(9001), settled[0].AgentFID)

	expired, err := store.ListIntents(ctx, domain.IntentExpired)
	require.NoError(t, err)
	require.Len(t, expired, 1)
	assert.Equal(t, int64(9002), expired[0].AgentFID)
}

func TestRunLeavesExpiredAuctionWithoutBids(t *testing.T) {
	ctx := context.Background()
	s, store := newTestSweeper(t)
	now := time.Now()

	seed(t, store, domain.Loan{
		ID:            "expired-no-bids",
		Status:        domain.LoanSeeking,
		CreatedAt:     now.Add(-25 * time.Hour),
		AuctionEndsAt: now.Add(-time.Hour),
	})

	rep, err := s.Run(ctx)
	require.NoError(t, err)
	assert.Zero(t, rep.Settled)
	assert.Zero(t, rep.Errors, "auction without bids is not an error")

	loan, err := store.GetLoan(ctx, "expired-no-bids")
	require.NoError(t, err)
	assert.Equal(t, domain.LoanSeeking, loan.Status)
}

func TestRunAdvancesLifecycle(t *testing.T) {
	ctx := context.Background()
	s, store := newTestSweeper(t)
	now := time.Now()

	// Срок наступил: funded -> due
	seed(t, store, domain.Loan{
		ID: "just-due", Status: domain.LoanFunded, DueAt: now.Add(-time.Hour),
	})
	// Грейс-период вышел: due -> overdue
	seed(t, store, domain.Loan{
		ID: "past-grace", Status: domain.LoanDue, DueAt: now.Add(-25 * time.Hour),
	})
	// Период дефолта вышел: overdue -> default
	seed(t, store, domain.Loan{
		ID: "gone-bad", Status: domain.LoanOverdue, DueAt: now.Add(-8 * 24 * time.Hour),
	})
	// Срок не наступил: остается funded
	seed(t, store, domain.Loan{
		ID: "not-yet", Status: domain.LoanFunded, DueAt: now.Add(time.Hour),
	})

	rep, err := s.Run(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, rep.Due)
	assert.Equal(t, 1, rep.Overdue)
	assert.Equal(t, 1, rep.Defaulted)
	assert.Zero(t, rep.Errors)

	expect := map[string]domain.LoanStatus{
		"just-due":   domain.LoanDue,
		"past-grace": domain.LoanOverdue,
		"gone-bad":   domain.LoanDefault,
		"not-yet":    domain.LoanFunded,
	}
	for id, want := range expect {
		loan, err := store.GetLoan(ctx, id)
		require.NoError(t, err)
		assert.Equal(t, want, loan.Status, "loan %s", id)
	}
}

func TestRunIsIdempotent(t *testing.T) {
	ctx := context.Background()
	s, store := newTestSweeper(t)
	now := time.Now()

	seed(t, store, domain.Loan{
		ID: "just-due", Status: domain.LoanFunded, DueAt: now.Add(-time.Hour),
	})

	rep, err := s.Run(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, rep.Due)

	// Повторный прогон над тем же состоянием ничего не двигает:
	// due -> overdue требует выхода грейс-периода
	rep, err = s.Run(ctx)
	require.NoError(t, err)
	assert.Zero(t, rep.Due)
	assert.Zero(t, rep.Overdue)
	assert.Zero(t, rep.Errors)
}
