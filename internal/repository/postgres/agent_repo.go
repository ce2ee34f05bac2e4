package postgres

/*
Файл agent_repo.go — профили агентов. Стратегия и лимиты лежат в JSONB:
их схема эволюционирует чаще, чем колонки. Регистрация — upsert по fid,
деактивация — мягкий флаг, записи не удаляются.
*/

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/xela07ax/lendgate/internal/domain"
)

const agentColumns = `fid, controller_fid, wallet, strategy, limits, active, autofund_enabled, manifest_sig, created_at, updated_at`

func scanAgent(row pgx.Row) (*domain.Agent, error) {
	var a domain.Agent
	err := row.Scan(
		&a.FID, &a.ControllerFID, &a.Wallet, &a.Strategy, &a.Limits,
		&a.Active, &a.AutofundEnabled, &a.ManifestSig, &a.CreatedAt, &a.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &a, nil
}

// UpsertAgent — регистрация или обновление стратегии по подписанному манифесту.
func (s *Store) UpsertAgent(ctx context.Context, agent *domain.Agent) error {
	query := `
		INSERT INTO agents (` + agentColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		ON CONFLICT (fid) DO UPDATE SET
			controller_fid = EXCLUDED.controller_fid,
			wallet = EXCLUDED.wallet,
			strategy = EXCLUDED.strategy,
			limits = EXCLUDED.limits,
			manifest_sig = EXCLUDED.manifest_sig,
			updated_at = NOW()`

	_, err := s.pool.Exec(ctx, query,
		agent.FID, agent.ControllerFID, agent.Wallet, agent.Strategy, agent.Limits,
		agent.Active, agent.AutofundEnabled, agent.ManifestSig, agent.CreatedAt, agent.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("postgres: failed to upsert agent: %w", err)
	}
	return nil
}

func (s *Store) GetAgent(ctx context.Context, fid int64) (*domain.Agent, error) {
	query := `SELECT ` + agentColumns + ` FROM agents WHERE fid = $1`

	agent, err := scanAgent(s.pool.QueryRow(ctx, query, fid))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrNotFound
		}
		return nil, fmt.Errorf("postgres: failed to get agent: %w", err)
	}
	return agent, nil
}

func (s *Store) ListAgents(ctx context.Context) ([]domain.Agent, error) {
	query := `SELECT ` + agentColumns + ` FROM agents ORDER BY created_at DESC LIMIT 200`

	rows, err := s.pool.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("postgres: failed to query agents: %w", err)
	}
	defer rows.Close()

	results := make([]domain.Agent, 0)
	for rows.Next() {
		agent, err := scanAgent(rows)
		if err != nil {
			return nil, fmt.Errorf("postgres: failed to scan agent: %w", err)
		}
		results = append(results, *agent)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("postgres: rows iteration error: %w", err)
	}
	return results, nil
}

// SetAgentActive — kill-switch уровня БД (источник правды для warmup).
func (s *Store) SetAgentActive(ctx context.Context, fid int64, active bool) error {
	query := `UPDATE agents SET active = $1, updated_at = NOW() WHERE fid = $2`

	tag, err := s.pool.Exec(ctx, query, active, fid)
	if err != nil {
		return fmt.Errorf("postgres: failed to update agent active flag: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrNotFound
	}
	return nil
}

// SetAutofund переключает автофинансирование агента.
func (s *Store) SetAutofund(ctx context.Context, fid int64, enabled bool) error {
	query := `UPDATE agents SET autofund_enabled = $1, updated_at = NOW() WHERE fid = $2`

	tag, err := s.pool.Exec(ctx, query, enabled, fid)
	if err != nil {
		return fmt.Errorf("postgres: failed to update autofund flag: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrNotFound
	}
	return nil
}

// GetBlockedAgents возвращает FID всех деактивированных агентов.
// Используется для инициализации L1 (RAM) кэша KillSwitchManager при старте.
func (s *Store) GetBlockedAgents(ctx context.Context) ([]int64, error) {
	// Выбираем только FID, чтобы минимизировать трафик между БД и приложением
	query := `SELECT fid FROM agents WHERE active = false`

	rows, err := s.pool.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("postgres: failed to fetch blocked agents: %w", err)
	}
	defer rows.Close()

	ids := make([]int64, 0)
	for rows.Next() {
		var fid int64
		if err := rows.Scan(&fid); err != nil {
			return nil, fmt.Errorf("postgres: scan agent fid error: %w", err)
		}
		ids = append(ids, fid)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("postgres: rows iteration error: %w", err)
	}
	return ids, nil
}
