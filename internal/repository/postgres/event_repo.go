package postgres

/*
Файл event_repo.go — история funding-событий, источник velocity-агрегатов.
Агрегаты считаются запросом в момент решения (производное состояние),
живых счетчиков нет.
*/

import (
	"context"
	"fmt"
	"time"

	"github.com/xela07ax/lendgate/internal/domain"
	"github.com/xela07ax/lendgate/internal/ledger"
)

func (s *Store) RecordFunding(ctx context.Context, ev *domain.FundingEvent) error {
	query := `
		INSERT INTO funding_events (id, loan_id, agent_fid, borrower_fid, amount_micro, tx_ref, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)`

	_, err := s.pool.Exec(ctx, query,
		ev.ID, ev.LoanID, ev.AgentFID, ev.BorrowerFID, ev.Amount, ev.TxRef, ev.CreatedAt)
	if err != nil {
		return fmt.Errorf("postgres: failed to record funding event: %w", err)
	}
	return nil
}

// AggregateFunding — (count, volume) по агенту начиная с since.
func (s *Store) AggregateFunding(ctx context.Context, agentFID int64, since time.Time) (int, ledger.Micro, error) {
	query := `
		SELECT COUNT(*), COALESCE(SUM(amount_micro), 0)
		FROM funding_events
		WHERE agent_fid = $1 AND created_at >= $2`

	var count int
	var volume int64
	if err := s.pool.QueryRow(ctx, query, agentFID, since).Scan(&count, &volume); err != nil {
		return 0, 0, fmt.Errorf("postgres: failed to aggregate funding: %w", err)
	}
	return count, ledger.Micro(volume), nil
}

// AggregateCounterparty — объем агента на конкретного заемщика начиная с since.
func (s *Store) AggregateCounterparty(ctx context.Context, agentFID, borrowerFID int64, since time.Time) (ledger.Micro, error) {
	query := `
		SELECT COALESCE(SUM(amount_micro), 0)
		FROM funding_events
		WHERE agent_fid = $1 AND borrower_fid = $2 AND created_at >= $3`

	var volume int64
	if err := s.pool.QueryRow(ctx, query, agentFID, borrowerFID, since).Scan(&volume); err != nil {
		return 0, fmt.Errorf("postgres: failed to aggregate counterparty volume: %w", err)
	}
	return ledger.Micro(volume), nil
}

// AttachTxRef дописывает ссылку транзакции к событию после подтверждения
// вебхуком (Transfer мог упасть до получения ссылки).
func (s *Store) AttachTxRef(ctx context.Context, loanID, txRef string) error {
	query := `UPDATE funding_events SET tx_ref = $1 WHERE loan_id = $2 AND tx_ref = ''`

	_, err := s.pool.Exec(ctx, query, txRef, loanID)
	if err != nil {
		return fmt.Errorf("postgres: failed to attach tx ref: %w", err)
	}
	return nil
}
