package velocity

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/xela07ax/lendgate/internal/domain"
	"github.com/xela07ax/lendgate/internal/ledger"
	"github.com/xela07ax/lendgate/internal/repository/memory"
)

func TestSnapshotAggregatesWindow(t *testing.T) {
	ctx := context.Background()
	store := memory.NewStore()
	tracker := NewTracker(store, zap.NewNop())

	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	record := func(agentFID, borrowerFID int64, amount int64, at time.Time) {
		require.NoError(t, store.RecordFunding(ctx, &domain.FundingEvent{
			ID:          at.String(),
			LoanID:      "loan-" + at.String(),
			AgentFID:    agentFID,
			BorrowerFID: borrowerFID,
			Amount:      ledger.Micro(amount),
			CreatedAt:   at,
		}))
	}

	record(9001, 42, 100_000_000, now.Add(-time.Hour))    // в окне
	record(9001, 42, 50_000_000, now.Add(-23*time.Hour))  // в окне
	record(9001, 43, 30_000_000, now.Add(-2*time.Hour))   // в окне, другой контрагент
	record(9001, 42, 999_000_000, now.Add(-25*time.Hour)) // вне окна
	record(9002, 42, 77_000_000, now.Add(-time.Hour))     // чужой агент

	snap, err := tracker.Snapshot(ctx, 9001, 42, now)
	require.NoError(t, err)
	assert.Equal(t, 3, snap.LoansFunded24h)
	assert.Equal(t, ledger.Micro(180_000_000), snap.Volume24h)
	assert.Equal(t, ledger.Micro(150_000_000), snap.CounterpartyVol24h)
}

func TestSnapshotEmptyHistory(t *testing.T) {
	tracker := NewTracker(memory.NewStore(), zap.NewNop())

	snap, err := tracker.Snapshot(context.Background(), 9001, 42, time.Now())
	require.NoError(t, err)
	assert.Zero(t, snap.LoansFunded24h)
	assert.Zero(t, snap.Volume24h)
	assert.Zero(t, snap.CounterpartyVol24h)
}
