package domain

import (
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// CustomClaims — полезная нагрузка операторского JWT (Console API).
type CustomClaims struct {
	UserID string          `json:"user_id"`
	Scopes map[string]bool `json:"scopes"` // например "admin": true или "agents.block": true
	jwt.RegisteredClaims
}

// LoginRequest — вход оператора консоли.
type LoginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

type TokenResponse struct {
	AccessToken string `json:"access_token"`
	TokenType   string `json:"token_type"` // всегда "Bearer"
	ExpiresIn   int64  `json:"expires_in"`
}

// User — оператор консоли. Не путать с Agent: операторы — люди,
// управляющие kill-switch и разбором инцидентов.
type User struct {
	ID           string          `json:"id"`
	Email        string          `json:"email"`
	Username     string          `json:"username"`
	PasswordHash string          `json:"-"` // никогда не отдаем наружу
	Role         string          `json:"role"`
	Scopes       map[string]bool `json:"scopes"`
	CreatedAt    time.Time       `json:"created_at"`
	UpdatedAt    time.Time       `json:"updated_at"`
}

// GlobalStats — сводка для дашборда консоли.
type GlobalStats struct {
	LoansByStatus    map[string]int64 `json:"loans_by_status"`
	ActiveAgents     int64            `json:"active_agents"`
	BlockedAgents    int64            `json:"blocked_agents"`
	DecisionsLastHr  int64            `json:"decisions_last_hour"`
	AcceptedLastHr   int64            `json:"accepted_last_hour"`
	SettlementsToday int64            `json:"settlements_today"`
}
