package service

import (
	"context"
	"fmt"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/xela07ax/lendgate/internal/domain"
	"github.com/xela07ax/lendgate/internal/infra"
	"github.com/xela07ax/lendgate/internal/infra/auth"
)

// AgentRepository описывает требования консоли к хранилищу
type AgentRepository interface {
	GetAgent(ctx context.Context, fid int64) (*domain.Agent, error)
	ListAgents(ctx context.Context) ([]domain.Agent, error)
	SetAgentActive(ctx context.Context, fid int64, active bool) error
	SetAutofund(ctx context.Context, fid int64, enabled bool) error
	GetGlobalStats(ctx context.Context) (*domain.GlobalStats, error)
	ListIntents(ctx context.Context, status domain.IntentStatus) ([]*domain.FundingIntent, error)
}

type AgentService struct {
	*auth.BaseValidator
	repo   AgentRepository
	rdb    *redis.Client
	logger *zap.Logger
}

func NewAgentService(rdb *redis.Client, repo AgentRepository, validator *auth.BaseValidator, logger *zap.Logger) *AgentService {
	return &AgentService{
		BaseValidator: validator,
		repo:          repo,
		rdb:           rdb,
		logger:        logger.Named("agent-service"),
	}
}

// setAgentState — унифицированный механизм переключения блокировки.
// Обновляет БД и транслирует сигнал в Redis: шлюзы перечитают L1 кэш
// мгновенно, не дожидаясь рестарта.
func (s *AgentService) setAgentState(ctx context.Context, fid int64, active bool, actionName string) error {
	// 1. Persistence Layer
	if err := s.repo.SetAgentActive(ctx, fid, active); err != nil {
		s.logger.Error("failed to update agent state in DB",
			zap.Int64("agent_fid", fid),
			zap.String("action", actionName),
			zap.Error(err))
		return fmt.Errorf("%s database error: %w", actionName, err)
	}

	// 2. Real-time Signaling. "on" = заблокирован
	signal := "off"
	if !active {
		signal = "on"
	}
	payload := fmt.Sprintf("%d:%s", fid, signal)
	if err := s.rdb.Publish(ctx, infra.RedisChanKillSwitch, payload).Err(); err != nil {
		s.logger.Warn("runtime signal delivery failed",
			zap.String("action", actionName),
			zap.String("channel", infra.RedisChanKillSwitch),
			zap.Error(err))
	} else {
		s.logger.Info("agent state updated successfully",
			zap.Int64("agent_fid", fid),
			zap.String("action", actionName),
			zap.Bool("active", active))
	}

	return nil
}

func (s *AgentService) BlockAgent(ctx context.Context, fid int64) error {
	return s.setAgentState(ctx, fid, false, "kill-switch-block")
}

func (s *AgentService) UnblockAgent(ctx context.Context, fid int64) error {
	return s.setAgentState(ctx, fid, true, "kill-switch-unblock")
}

// SetAutofund переключает автофинансирование без деактивации агента.
// Fanout здесь не нужен: ядро перечитывает AutofundEnabled из БД на каждом
// admission-решении, мгновенная инвалидация кэшей нужна только блокировкам.
func (s *AgentService) SetAutofund(ctx context.Context, fid int64, enabled bool) error {
	if err := s.repo.SetAutofund(ctx, fid, enabled); err != nil {
		s.logger.Error("failed to update autofund in DB", zap.Error(err))
		return err
	}

	s.logger.Info("autofund toggled",
		zap.Int64("agent_fid", fid),
		zap.Bool("enabled", enabled))
	return nil
}

// SetGlobalKillSwitch — рубильник всей платформы. Состояние живет в Redis,
// сигнал "global:on|off" мгновенно разносится по шлюзам.
func (s *AgentService) SetGlobalKillSwitch(ctx context.Context, active bool) error {
	signal := "off"
	if active {
		signal = "on"
	}

	if err := s.rdb.Set(ctx, infra.RedisKeyGlobalKillSwitch, signal, 0).Err(); err != nil {
		return fmt.Errorf("global kill-switch persistence error: %w", err)
	}
	if err := s.rdb.Publish(ctx, infra.RedisChanKillSwitch, "global:"+signal).Err(); err != nil {
		s.logger.Error("critical: global kill-switch saved but signal not delivered", zap.Error(err))
		return fmt.Errorf("redis signal failure: %w", err)
	}

	s.logger.Warn("global kill-switch toggled", zap.Bool("active", active))
	return nil
}

func (s *AgentService) GetAgent(ctx context.Context, fid int64) (*domain.Agent, error) {
	agent, err := s.repo.GetAgent(ctx, fid)
	if err != nil {
		s.logger.Error("failed to fetch agent details", zap.Int64("fid", fid), zap.Error(err))
		return nil, err
	}
	return agent, nil
}

// ListAgents возвращает список всех зарегистрированных агентов.
func (s *AgentService) ListAgents(ctx context.Context) ([]domain.Agent, error) {
	agents, err := s.repo.ListAgents(ctx)
	if err != nil {
		s.logger.Error("failed to list agents from repository", zap.Error(err))
		return nil, fmt.Errorf("service: could not fetch agents: %w", err)
	}

	// Гарантируем, что фронтенд получит пустой массив [], а не null
	if agents == nil {
		return []domain.Agent{}, nil
	}
	return agents, nil
}

func (s *AgentService) GetGlobalStats(ctx context.Context) (*domain.GlobalStats, error) {
	// здесь можно добавить кэширование в Redis на 1 минуту,
	// чтобы не нагружать Postgres тяжелыми аналитическими запросами.
	return s.repo.GetGlobalStats(ctx)
}

// ListIntents — очередь funding-интентов для разбора инцидентов.
func (s *AgentService) ListIntents(ctx context.Context, status string) ([]*domain.FundingIntent, error) {
	return s.repo.ListIntents(ctx, domain.IntentStatus(status))
}
