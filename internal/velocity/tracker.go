package velocity

/*
Файл tracker.go считает скользящие 24-часовые агрегаты потребления агента:
число профинансированных займов, общий объем и объем на конкретного
контрагента. Агрегаты ПРОИЗВОДНЫЕ — считаются из истории funding-событий
в момент решения, а не поддерживаются как живые счетчики. Это осознанный
размен корректности на простоту: два конкурентных решения могут оба увидеть
еще не обновленный агрегат, поэтому лимиты носят рекомендательный характер
под гонкой (см. DESIGN.md).
*/

import (
	"context"
	"fmt"
	"time"

	"github.com/xela07ax/lendgate/internal/ledger"
	"github.com/xela07ax/lendgate/internal/policy"
	"go.uber.org/zap"
)

// Window — ширина скользящего окна.
const Window = 24 * time.Hour

// EventStore — требования трекера к истории funding-событий.
type EventStore interface {
	// AggregateFunding возвращает (count, volume) по агенту с момента since.
	AggregateFunding(ctx context.Context, agentFID int64, since time.Time) (int, ledger.Micro, error)
	// AggregateCounterparty возвращает объем агента на конкретного заемщика с момента since.
	AggregateCounterparty(ctx context.Context, agentFID, borrowerFID int64, since time.Time) (ledger.Micro, error)
}

type Tracker struct {
	events EventStore
	logger *zap.Logger
}

func NewTracker(events EventStore, logger *zap.Logger) *Tracker {
	return &Tracker{
		events: events,
		logger: logger.Named("velocity"),
	}
}

// Snapshot собирает velocity-срез для политики. Ошибка хранилища
// пробрасывается наверх: это наша БД, безопасного дефолта здесь нет.
func (t *Tracker) Snapshot(ctx context.Context, agentFID, borrowerFID int64, now time.Time) (policy.Snapshot, error) {
	since := now.Add(-Window)

	count, volume, err := t.events.AggregateFunding(ctx, agentFID, since)
	if err != nil {
		return policy.Snapshot{}, fmt.Errorf("velocity: aggregate funding: %w", err)
	}

	cpVolume, err := t.events.AggregateCounterparty(ctx, agentFID, borrowerFID, since)
	if err != nil {
		return policy.Snapshot{}, fmt.Errorf("velocity: aggregate counterparty: %w", err)
	}

	t.logger.Debug("velocity snapshot computed",
		zap.Int64("agent_fid", agentFID),
		zap.Int("loans_24h", count),
		zap.Int64("volume_24h", int64(volume)),
		zap.Int64("counterparty_24h", int64(cpVolume)))

	return policy.Snapshot{
		LoansFunded24h:     count,
		Volume24h:          volume,
		CounterpartyVol24h: cpVolume,
	}, nil
}
