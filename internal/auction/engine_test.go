package auction

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/xela07ax/lendgate/internal/domain"
	"github.com/xela07ax/lendgate/internal/engine"
	"github.com/xela07ax/lendgate/internal/ledger"
	"github.com/xela07ax/lendgate/internal/repository/memory"
)

func newTestEngine(t *testing.T, holdback time.Duration) (*Engine, *memory.Store) {
	t.Helper()
	store := memory.NewStore()
	return NewEngine(store, store, store, nil, nil, holdback, zap.NewNop()), store
}

func seedLoan(t *testing.T, store *memory.Store, id string, createdAt time.Time) {
	t.Helper()
	require.NoError(t, store.CreateLoan(context.Background(), &domain.Loan{
		ID:           id,
		BorrowerFID:  42,
		BorrowerKind: domain.ActorHuman,
		Principal:    ledger.Micro(100_000_000),
		RateBps:      200,
		Status:       domain.LoanSeeking,
		CreatedAt:    createdAt,
	}))
}

func TestPlaceBidAscending(t *testing.T) {
	ctx := context.Background()
	eng, store := newTestEngine(t, 0)
	seedLoan(t, store, "loan-1", time.Now().Add(-time.Hour))

	b1, err := eng.PlaceBid(ctx, "loan-1", 101, domain.ActorHuman, 1_000_000)
	require.NoError(t, err)
	assert.Equal(t, int64(1), b1.Sequence)
	assert.Equal(t, domain.BidWinning, b1.Status)

	b2, err := eng.PlaceBid(ctx, "loan-1", 102, domain.ActorHuman, 2_000_000)
	require.NoError(t, err)
	assert.Equal(t, int64(2), b2.Sequence)

	b3, err := eng.PlaceBid(ctx, "loan-1", 103, domain.ActorAgent, 3_000_000)
	require.NoError(t, err)
	assert.Equal(t, int64(3), b3.Sequence)

	// Ровно одна winning-ставка, и это последняя
	bids, err := store.ListBids(ctx, "loan-1")
	require.NoError(t, err)
	require.Len(t, bids, 3)
	var winners int
	for _, b := range bids {
		if b.Status == domain.BidWinning {
			winners++
			assert.Equal(t, int64(103), b.BidderFID)
		}
	}
	assert.Equal(t, 1, winners)
}

func TestPlaceBidMustStrictlyExceed(t *testing.T) {
	ctx := context.Background()
	eng, store := newTestEngine(t, 0)
	seedLoan(t, store, "loan-1", time.Now().Add(-time.Hour))

	_, err := eng.PlaceBid(ctx, "loan-1", 101, domain.ActorHuman, 5_000_000)
	require.NoError(t, err)

	// Равная сумма отклоняется
	_, err = eng.PlaceBid(ctx, "loan-1", 102, domain.ActorHuman, 5_000_000)
	assert.ErrorIs(t, err, domain.ErrBidTooLow)

	// Меньшая тем более
	_, err = eng.PlaceBid(ctx, "loan-1", 103, domain.ActorHuman, 4_000_000)
	assert.ErrorIs(t, err, domain.ErrBidTooLow)
}

func TestPlaceBidRejectsNonSeeking(t *testing.T) {
	ctx := context.Background()
	eng, store := newTestEngine(t, 0)
	seedLoan(t, store, "loan-1", time.Now().Add(-time.Hour))
	require.NoError(t, store.ConditionalFund(ctx, "loan-1", 500, domain.ActorHuman))

	_, err := eng.PlaceBid(ctx, "loan-1", 101, domain.ActorHuman, 1_000_000)
	var serr *domain.StateError
	assert.ErrorAs(t, err, &serr)
}

func TestSettleWinnerBecomesFunder(t *testing.T) {
	ctx := context.Background()
	eng, store := newTestEngine(t, 0)
	seedLoan(t, store, "loan-1", time.Now().Add(-time.Hour))

	_, err := eng.PlaceBid(ctx, "loan-1", 101, domain.ActorHuman, 1_000_000)
	require.NoError(t, err)
	_, err = eng.PlaceBid(ctx, "loan-1", 102, domain.ActorHuman, 2_000_000)
	require.NoError(t, err)

	funded, err := eng.Settle(ctx, "loan-1")
	require.NoError(t, err)
	assert.Equal(t, domain.LoanFunded, funded.Status)
	assert.Equal(t, int64(102), funded.FunderFID)

	// Событие финансирования записано на полную сумму займа
	count, volume, err := store.AggregateFunding(ctx, 102, time.Now().Add(-time.Minute))
	require.NoError(t, err)
	assert.Equal(t, 1, count)
	assert.Equal(t, ledger.Micro(100_000_000), volume)

	// Повторный расчет проигрывает CAS
	_, err = eng.Settle(ctx, "loan-1")
	assert.ErrorIs(t, err, domain.ErrLoanContended)
}

func TestSettleNoBids(t *testing.T) {
	ctx := context.Background()
	eng, store := newTestEngine(t, 0)
	seedLoan(t, store, "loan-1", time.Now().Add(-time.Hour))

	_, err := eng.Settle(ctx, "loan-1")
	assert.ErrorIs(t, err, domain.ErrNoBids)
}

func TestSettleAgentBlockedInHoldback(t *testing.T) {
	ctx := context.Background()
	eng, store := newTestEngine(t, 15*time.Minute)
	seedLoan(t, store, "loan-1", time.Now()) // только что создан

	_, err := eng.PlaceBid(ctx, "loan-1", 101, domain.ActorAgent, 1_000_000)
	require.NoError(t, err)

	// Агент-победитель внутри окна удержания не рассчитывается
	_, err = eng.Settle(ctx, "loan-1")
	assert.ErrorIs(t, err, ErrHoldbackActive)

	// Человек в том же окне проходит
	_, err = eng.PlaceBid(ctx, "loan-1", 102, domain.ActorHuman, 2_000_000)
	require.NoError(t, err)
	funded, err := eng.Settle(ctx, "loan-1")
	require.NoError(t, err)
	assert.Equal(t, int64(102), funded.FunderFID)
}

func TestSettleConcurrentExactlyOneWinner(t *testing.T) {
	ctx := context.Background()
	eng, store := newTestEngine(t, 0)
	seedLoan(t, store, "loan-1", time.Now().Add(-time.Hour))

	_, err := eng.PlaceBid(ctx, "loan-1", 101, domain.ActorHuman, 1_000_000)
	require.NoError(t, err)

	const racers = 8
	var wg sync.WaitGroup
	results := make(chan error, racers)
	for i := 0; i < racers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := eng.Settle(ctx, "loan-1")
			results <- err
		}()
	}
	wg.Wait()
	close(results)

	var wins, losses int
	for err := range results {
		switch {
		case err == nil:
			wins++
		case err == domain.ErrLoanContended:
			losses++
		default:
			t.Fatalf("unexpected settle error: %v", err)
		}
	}
	assert.Equal(t, 1, wins, "exactly one settlement must win the race")
	assert.Equal(t, racers-1, losses)
}

func TestListBidsUnknownLoan(t *testing.T) {
	eng, _ := newTestEngine(t, 0)
	_, err := eng.ListBids(context.Background(), "missing")
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestEngineCountsBidsAndSettlements(t *testing.T) {
	ctx := context.Background()
	store := memory.NewStore()
	m := engine.NewMetrics(prometheus.NewRegistry())
	eng := NewEngine(store, store, store, nil, m, 0, zap.NewNop())

	seedLoan(t, store, "loan-1", time.Now().Add(-time.Hour))
	seedLoan(t, store, "loan-2", time.Now().Add(-time.Hour))

	_, err := eng.PlaceBid(ctx, "loan-1", 101, domain.ActorHuman, 1_000_000)
	require.NoError(t, err)
	_, err = eng.PlaceBid(ctx, "loan-1", 102, domain.ActorHuman, 2_000_000)
	require.NoError(t, err)
	assert.Equal(t, 2.0, testutil.ToFloat64(m.BidsTotal))

	// Отклоненная ставка счетчик не двигает
	_, err = eng.PlaceBid(ctx, "loan-1", 103, domain.ActorHuman, 2_000_000)
	require.ErrorIs(t, err, domain.ErrBidTooLow)
	assert.Equal(t, 2.0, testutil.ToFloat64(m.BidsTotal))

	_, err = eng.Settle(ctx, "loan-1")
	require.NoError(t, err)
	assert.Equal(t, 1.0, testutil.ToFloat64(m.SettlementsTotal.WithLabelValues("funded")))

	_, err = eng.Settle(ctx, "loan-1")
	require.ErrorIs(t, err, domain.ErrLoanContended)
	assert.Equal(t, 1.0, testutil.ToFloat64(m.SettlementsTotal.WithLabelValues("contended")))

	_, err = eng.Settle(ctx, "loan-2")
	require.ErrorIs(t, err, domain.ErrNoBids)
	assert.Equal(t, 1.0, testutil.ToFloat64(m.SettlementsTotal.WithLabelValues("no_bids")))

	// Агент в окне удержания — отдельный исход
	held := NewEngine(store, store, store, nil, m, 15*time.Minute, zap.NewNop())
	seedLoan(t, store, "loan-3", time.Now())
	_, err = held.PlaceBid(ctx, "loan-3", 104, domain.ActorAgent, 1_000_000)
	require.NoError(t, err)
	_, err = held.Settle(ctx, "loan-3")
	require.ErrorIs(t, err, ErrHoldbackActive)
	assert.Equal(t, 1.0, testutil.ToFloat64(m.SettlementsTotal.WithLabelValues("holdback")))
}
