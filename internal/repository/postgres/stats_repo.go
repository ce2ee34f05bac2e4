package postgres

import (
	"context"

	"github.com/xela07ax/lendgate/internal/domain"
)

// GetGlobalStats собирает сводку для дашборда консоли.
func (s *Store) GetGlobalStats(ctx context.Context) (*domain.GlobalStats, error) {
	stats := &domain.GlobalStats{LoansByStatus: make(map[string]int64)}

	// 1. Разбивка займов по статусам
	rows, err := s.pool.Query(ctx, `SELECT status, COUNT(*) FROM loans GROUP BY status`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	for rows.Next() {
		var status string
		var count int64
		if err := rows.Scan(&status, &count); err != nil {
			return nil, err
		}
		stats.LoansByStatus[status] = count
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	// 2. Активность агентов
	err = s.pool.QueryRow(ctx, `
		SELECT
			COUNT(*) FILTER (WHERE active),
			COUNT(*) FILTER (WHERE NOT active)
		FROM agents`).Scan(&stats.ActiveAgents, &stats.BlockedAgents)
	if err != nil {
		return nil, err
	}

	// 3. Решения за последний час
	err = s.pool.QueryRow(ctx, `
		SELECT
			COUNT(*),
			COUNT(*) FILTER (WHERE accepted)
		FROM audit_events
		WHERE kind = 'ADMISSION' AND timestamp > NOW() - INTERVAL '60 minutes'`).
		Scan(&stats.DecisionsLastHr, &stats.AcceptedLastHr)
	if err != nil {
		return nil, err
	}

	// 4. Расчеты за сутки
	err = s.pool.QueryRow(ctx, `
		SELECT COUNT(*) FROM funding_events WHERE created_at > NOW() - INTERVAL '24 hours'`).
		Scan(&stats.SettlementsToday)

	return stats, err
}
