package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/xela07ax/lendgate/internal/domain"
)

// Таблица sessions хранит только соленые хеши токенов. Сырой токен
// в базу не попадает никогда.

func (s *Store) CreateSession(ctx context.Context, sess *domain.Session) error {
	query := `
		INSERT INTO sessions (token_hash, agent_fid, expires_at, last_used_at, created_at)
		VALUES ($1, $2, $3, $4, $5)`

	_, err := s.pool.Exec(ctx, query,
		sess.TokenHash, sess.AgentFID, sess.ExpiresAt, sess.LastUsedAt, sess.CreatedAt)
	if err != nil {
		return fmt.Errorf("postgres: failed to create session: %w", err)
	}
	return nil
}

func (s *Store) GetSessionByHash(ctx context.Context, hash string) (*domain.Session, error) {
	query := `
		SELECT token_hash, agent_fid, expires_at, last_used_at, created_at
		FROM sessions WHERE token_hash = $1`

	var sess domain.Session
	err := s.pool.QueryRow(ctx, query, hash).Scan(
		&sess.TokenHash, &sess.AgentFID, &sess.ExpiresAt, &sess.LastUsedAt, &sess.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrNotFound
		}
		return nil, fmt.Errorf("postgres: failed to get session: %w", err)
	}
	return &sess, nil
}

// TouchSession обновляет ТОЛЬКО last_used_at. Срок действия неизменяем.
func (s *Store) TouchSession(ctx context.Context, hash string, usedAt time.Time) error {
	query := `UPDATE sessions SET last_used_at = $1 WHERE token_hash = $2`

	_, err := s.pool.Exec(ctx, query, usedAt, hash)
	if err != nil {
		return fmt.Errorf("postgres: failed to touch session: %w", err)
	}
	return nil
}
