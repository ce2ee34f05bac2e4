package postgres

/*
Файл bid_repo.go — append-only хранилище ставок. PlaceBid атомарен:
под транзакцией с FOR UPDATE повторно проверяется строгое превышение,
прежний победитель понижается до losing, новая ставка получает следующий
sequence и статус winning. Инвариант «ровно один winning на займ»
держится именно здесь.
*/

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/xela07ax/lendgate/internal/domain"
)

const bidColumns = `id, loan_id, bidder_fid, bidder_kind, amount_micro, sequence, status, created_at`

func scanBid(row pgx.Row) (*domain.Bid, error) {
	var b domain.Bid
	err := row.Scan(&b.ID, &b.LoanID, &b.BidderFID, &b.BidderKind, &b.Amount, &b.Sequence, &b.Status, &b.CreatedAt)
	if err != nil {
		return nil, err
	}
	return &b, nil
}

func (s *Store) ListBids(ctx context.Context, loanID string) ([]domain.Bid, error) {
	query := `SELECT ` + bidColumns + ` FROM bids WHERE loan_id = $1 ORDER BY sequence ASC`

	rows, err := s.pool.Query(ctx, query, loanID)
	if err != nil {
		return nil, fmt.Errorf("postgres: failed to query bids: %w", err)
	}
	defer rows.Close()

	results := make([]domain.Bid, 0)
	for rows.Next() {
		bid, err := scanBid(rows)
		if err != nil {
			return nil, fmt.Errorf("postgres: failed to scan bid: %w", err)
		}
		results = append(results, *bid)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("postgres: rows iteration error: %w", err)
	}
	return results, nil
}

// TopBid — текущая выигрывающая ставка. Nil без ошибки, если ставок нет.
func (s *Store) TopBid(ctx context.Context, loanID string) (*domain.Bid, error) {
	query := `SELECT ` + bidColumns + ` FROM bids WHERE loan_id = $1 AND status = 'winning'`

	bid, err := scanBid(s.pool.QueryRow(ctx, query, loanID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("postgres: failed to get top bid: %w", err)
	}
	return bid, nil
}

func (s *Store) PlaceBid(ctx context.Context, bid *domain.Bid) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("postgres: begin bid tx: %w", err)
	}
	defer tx.Rollback(ctx)

	// Блокируем текущего победителя до конца транзакции
	var topAmount, topSeq int64
	err = tx.QueryRow(ctx,
		`SELECT amount_micro, sequence FROM bids WHERE loan_id = $1 AND status = 'winning' FOR UPDATE`,
		bid.LoanID,
	).Scan(&topAmount, &topSeq)

	switch {
	case errors.Is(err, pgx.ErrNoRows):
		// Первая ставка
	case err != nil:
		return fmt.Errorf("postgres: lock winning bid: %w", err)
	default:
		if int64(bid.Amount) <= topAmount {
			return domain.ErrBidTooLow
		}
		if _, err := tx.Exec(ctx,
			`UPDATE bids SET status = 'losing' WHERE loan_id = $1 AND status = 'winning'`,
			bid.LoanID,
		); err != nil {
			return fmt.Errorf("postgres: demote winning bid: %w", err)
		}
	}

	// Следующий sequence в рамках займа
	if err := tx.QueryRow(ctx,
		`SELECT COALESCE(MAX(sequence), 0) + 1 FROM bids WHERE loan_id = $1`,
		bid.LoanID,
	).Scan(&bid.Sequence); err != nil {
		return fmt.Errorf("postgres: next bid sequence: %w", err)
	}

	bid.Status = domain.BidWinning
	if _, err := tx.Exec(ctx,
		`INSERT INTO bids (`+bidColumns+`) VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
		bid.ID, bid.LoanID, bid.BidderFID, bid.BidderKind, bid.Amount, bid.Sequence, bid.Status, bid.CreatedAt,
	); err != nil {
		return fmt.Errorf("postgres: insert bid: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("postgres: commit bid tx: %w", err)
	}
	return nil
}
