package domain

import "time"

// Session — сессия агента. Хранится только соленый хеш бейрер-токена,
// сырой токен показывается один раз при регистрации. TTL фиксируется
// при создании и никогда не продлевается.
type Session struct {
	TokenHash  string    `json:"-"`
	AgentFID   int64     `json:"agent_fid"`
	ExpiresAt  time.Time `json:"expires_at"`
	LastUsedAt time.Time `json:"last_used_at"`
	CreatedAt  time.Time `json:"created_at"`
}

// Expired проверяет срок действия на момент now.
func (s *Session) Expired(now time.Time) bool {
	return !now.Before(s.ExpiresAt)
}
