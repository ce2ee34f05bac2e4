package postgres

/*
Файл intent_repo.go — funding-интенты. Идемпотентность решений лежит на
уникальном индексе (loan_id, agent_fid): повторная фиксация — no-op на уровне
БД, без предварительного SELECT в коде.
*/

import (
	"context"
	"fmt"

	"github.com/xela07ax/lendgate/internal/domain"
)

func (s *Store) RecordIntent(ctx context.Context, intent *domain.FundingIntent) error {
	query := `
		INSERT INTO funding_intents (id, loan_id, agent_fid, amount_micro, status, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (loan_id, agent_fid) DO NOTHING`

	_, err := s.pool.Exec(ctx, query,
		intent.ID, intent.LoanID, intent.AgentFID, intent.Amount, intent.Status,
		intent.CreatedAt, intent.UpdatedAt)
	if err != nil {
		return fmt.Errorf("postgres: failed to record intent: %w", err)
	}
	return nil
}

// ReconcileIntents — после расчета аукциона интент победителя становится
// SETTLED, остальные по этому займу — EXPIRED.
func (s *Store) ReconcileIntents(ctx context.Context, loanID string, funderFID int64) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("postgres: begin intent tx: %w", err)
	}
	defer tx.Rollback(ctx)

	if _, err := tx.Exec(ctx,
		`UPDATE funding_intents SET status = 'SETTLED', updated_at = NOW()
		 WHERE loan_id = $1 AND agent_fid = $2 AND status = 'RECORDED'`,
		loanID, funderFID,
	); err != nil {
		return fmt.Errorf("postgres: settle intent: %w", err)
	}

	if _, err := tx.Exec(ctx,
		`UPDATE funding_intents SET status = 'EXPIRED', updated_at = NOW()
		 WHERE loan_id = $1 AND agent_fid != $2 AND status = 'RECORDED'`,
		loanID, funderFID,
	); err != nil {
		return fmt.Errorf("postgres: expire intents: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("postgres: commit intent tx: %w", err)
	}
	return nil
}

// ListIntents — очередь интентов для консоли (фильтр по статусу опционален).
func (s *Store) ListIntents(ctx context.Context, status domain.IntentStatus) ([]*domain.FundingIntent, error) {
	query := `
		SELECT id, loan_id, agent_fid, amount_micro, status, created_at, updated_at
		FROM funding_intents`

	var args []interface{}
	if status != "" {
		query += " WHERE status = $1"
		args = append(args, status)
	}
	query += " ORDER BY created_at DESC LIMIT 100"

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("postgres: failed to query intents: %w", err)
	}
	defer rows.Close()

	// Инициализируем пустой слайс, чтобы в JSON был [] вместо null
	results := make([]*domain.FundingIntent, 0)
	for rows.Next() {
		var in domain.FundingIntent
		if err := rows.Scan(&in.ID, &in.LoanID, &in.AgentFID, &in.Amount, &in.Status, &in.CreatedAt, &in.UpdatedAt); err != nil {
			return nil, fmt.Errorf("postgres: failed to scan intent: %w", err)
		}
		results = append(results, &in)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("postgres: rows iteration error: %w", err)
	}
	return results, nil
}
