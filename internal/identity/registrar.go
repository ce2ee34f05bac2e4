package identity

/*
Файл registrar.go — регистрация агента: проверка подписи манифеста,
upsert профиля и выдача первой сессии. Повторная регистрация того же FID
обновляет стратегию/лимиты (хранилище делает upsert по fid).
*/

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/xela07ax/lendgate/internal/domain"
)

// AgentStore — контракт хранилища агентов.
type AgentStore interface {
	UpsertAgent(ctx context.Context, agent *domain.Agent) error
}

// RegisterRequest — полная заявка на регистрацию.
type RegisterRequest struct {
	Manifest  Manifest        `json:"manifest"`
	Signature string          `json:"signature"`
	Strategy  domain.Strategy `json:"strategy"`
	Limits    domain.Limits   `json:"limits"`
}

// RegisterResponse — профиль плюс сырой токен сессии (показывается один раз).
type RegisterResponse struct {
	Agent        *domain.Agent `json:"agent"`
	SessionToken string        `json:"session_token"`
	ExpiresAt    time.Time     `json:"expires_at"`
}

type Registrar struct {
	agents   AgentStore
	sessions *SessionManager
	logger   *zap.Logger
	now      func() time.Time
}

func NewRegistrar(agents AgentStore, sessions *SessionManager, logger *zap.Logger) *Registrar {
	return &Registrar{
		agents:   agents,
		sessions: sessions,
		logger:   logger.Named("registrar"),
		now:      time.Now,
	}
}

// Register проверяет манифест и создает/обновляет агента.
func (r *Registrar) Register(ctx context.Context, req RegisterRequest) (*RegisterResponse, error) {
	if err := Verify(req.Manifest, req.Signature); err != nil {
		return nil, err
	}

	// Стратегия в заявке обязана совпадать с хешем из подписанного манифеста
	declared, err := json.Marshal(req.Strategy)
	if err != nil {
		return nil, fmt.Errorf("identity: marshal strategy: %w", err)
	}
	if req.Manifest.StrategyHash != HashHex(declared) {
		return nil, &domain.AuthError{Reason: "strategy does not match signed manifest"}
	}

	now := r.now()
	agent := &domain.Agent{
		FID:             req.Manifest.AgentFID,
		ControllerFID:   req.Manifest.ControllerFID,
		Wallet:          req.Manifest.Wallet,
		Strategy:        req.Strategy,
		Limits:          req.Limits,
		Active:          true,
		AutofundEnabled: true,
		ManifestSig:     req.Signature,
		CreatedAt:       now,
		UpdatedAt:       now,
	}
	if err := r.agents.UpsertAgent(ctx, agent); err != nil {
		return nil, err
	}

	token, session, err := r.sessions.Issue(ctx, agent.FID)
	if err != nil {
		return nil, err
	}

	r.logger.Info("agent registered",
		zap.Int64("agent_fid", agent.FID),
		zap.Int64("controller_fid", agent.ControllerFID),
		zap.String("wallet", agent.Wallet))

	return &RegisterResponse{
		Agent:        agent,
		SessionToken: token,
		ExpiresAt:    session.ExpiresAt,
	}, nil
}
