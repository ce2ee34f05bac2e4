package postgres

/*
Файл loan_repo.go — хранилище займов. Единственная жесткая точка
согласованности ядра — ConditionalFund: переход seeking -> funded выполняется
условным UPDATE, при конкурентных фандерах строку меняет ровно один.
Остальные переходы тоже защищены условием WHERE status = $from.
*/

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/xela07ax/lendgate/internal/domain"
)

const loanColumns = `id, borrower_fid, borrower_kind, principal_micro, rate_bps, duration_days,
	status, funder_fid, funder_kind, created_at, auction_ends_at, due_at, updated_at`

func scanLoan(row pgx.Row) (*domain.Loan, error) {
	var l domain.Loan
	err := row.Scan(
		&l.ID, &l.BorrowerFID, &l.BorrowerKind, &l.Principal, &l.RateBps, &l.DurationDays,
		&l.Status, &l.FunderFID, &l.FunderKind, &l.CreatedAt, &l.AuctionEndsAt, &l.DueAt, &l.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &l, nil
}

func (s *Store) CreateLoan(ctx context.Context, loan *domain.Loan) error {
	query := `
		INSERT INTO loans (` + loanColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)`

	_, err := s.pool.Exec(ctx, query,
		loan.ID, loan.BorrowerFID, loan.BorrowerKind, loan.Principal, loan.RateBps, loan.DurationDays,
		loan.Status, loan.FunderFID, loan.FunderKind, loan.CreatedAt, loan.AuctionEndsAt, loan.DueAt, loan.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("postgres: failed to create loan: %w", err)
	}
	return nil
}

func (s *Store) GetLoan(ctx context.Context, id string) (*domain.Loan, error) {
	query := `SELECT ` + loanColumns + ` FROM loans WHERE id = $1`

	loan, err := scanLoan(s.pool.QueryRow(ctx, query, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrNotFound
		}
		return nil, fmt.Errorf("postgres: failed to get loan: %w", err)
	}
	return loan, nil
}

// UpdateLoanStatus — защищенный переход: строка меняется только если ее
// текущий статус равен from. Ноль строк — проигранная гонка.
func (s *Store) UpdateLoanStatus(ctx context.Context, id string, from, to domain.LoanStatus) error {
	query := `UPDATE loans SET status = $1, updated_at = NOW() WHERE id = $2 AND status = $3`

	tag, err := s.pool.Exec(ctx, query, to, id, from)
	if err != nil {
		return fmt.Errorf("postgres: failed to update loan status: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrLoanContended
	}
	return nil
}

// ConditionalFund — CAS seeking -> funded. RETURNING исключает
// предварительный SELECT и гонку между чтением и записью.
func (s *Store) ConditionalFund(ctx context.Context, loanID string, funderFID int64, funderKind domain.ActorKind) error {
	query := `
		UPDATE loans
		SET status = 'funded',
		    funder_fid = $1,
		    funder_kind = $2,
		    updated_at = NOW()
		WHERE id = $3 AND status = 'seeking'
		RETURNING id`

	var id string
	err := s.pool.QueryRow(ctx, query, funderFID, funderKind, loanID).Scan(&id)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			// Либо ID неверный, либо (что чаще) займ уже ушел другому фандеру
			return domain.ErrLoanContended
		}
		return fmt.Errorf("postgres: failed to fund loan: %w", err)
	}
	return nil
}

// ListAvailable — витрина: займы в статусе seeking, свежие первыми.
func (s *Store) ListAvailable(ctx context.Context, limit int) ([]domain.Loan, error) {
	query := `SELECT ` + loanColumns + ` FROM loans WHERE status = 'seeking' ORDER BY created_at DESC LIMIT $1`

	rows, err := s.pool.Query(ctx, query, limit)
	if err != nil {
		return nil, fmt.Errorf("postgres: failed to query available loans: %w", err)
	}
	defer rows.Close()
	return collectLoans(rows)
}

// ListExpiredAuctions — seeking-займы с истекшим дедлайном аукциона.
func (s *Store) ListExpiredAuctions(ctx context.Context, asOf time.Time) ([]domain.Loan, error) {
	query := `SELECT ` + loanColumns + ` FROM loans WHERE status = 'seeking' AND auction_ends_at <= $1 LIMIT 500`

	rows, err := s.pool.Query(ctx, query, asOf)
	if err != nil {
		return nil, fmt.Errorf("postgres: failed to query expired auctions: %w", err)
	}
	defer rows.Close()
	return collectLoans(rows)
}

// ListByStatusDueBefore — выборка для переходов жизненного цикла.
func (s *Store) ListByStatusDueBefore(ctx context.Context, status domain.LoanStatus, cutoff time.Time) ([]domain.Loan, error) {
	query := `SELECT ` + loanColumns + ` FROM loans WHERE status = $1 AND due_at <= $2 LIMIT 500`

	rows, err := s.pool.Query(ctx, query, status, cutoff)
	if err != nil {
		return nil, fmt.Errorf("postgres: failed to query loans by status: %w", err)
	}
	defer rows.Close()
	return collectLoans(rows)
}

func collectLoans(rows pgx.Rows) ([]domain.Loan, error) {
	// Инициализируем пустой слайс, чтобы в JSON был [] вместо null
	results := make([]domain.Loan, 0)
	for rows.Next() {
		loan, err := scanLoan(rows)
		if err != nil {
			return nil, fmt.Errorf("postgres: failed to scan loan: %w", err)
		}
		results = append(results, *loan)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("postgres: rows iteration error: %w", err)
	}
	return results, nil
}
