package engine

/*
Файл killswitch_manager.go — рубильники admission control. Два уровня:
глобальный флаг (вся автофандинг-фича выключена) и точечные блокировки
агентов. Горячий путь читает только локальную RAM-мапу; консистентность
между инстансами обеспечивают Redis Set (состояние) и Pub/Sub (сигналы).
*/

import (
	"context"
	"fmt"
	"strconv"
	"sync"

	"github.com/redis/go-redis/v9"
	"github.com/xela07ax/lendgate/internal/infra"
	"go.uber.org/zap"
)

// BlockedProvider — источник правды (Postgres) для прогрева кэша.
type BlockedProvider interface {
	GetBlockedAgents(ctx context.Context) ([]int64, error)
}

type KillSwitchManager struct {
	mu            sync.RWMutex
	blockedAgents map[int64]struct{}
	globalOff     bool

	repo   BlockedProvider
	rdb    *redis.Client
	logger *zap.Logger
}

func NewKillSwitchManager(rdb *redis.Client, repo BlockedProvider, logger *zap.Logger) *KillSwitchManager {
	return &KillSwitchManager{
		blockedAgents: make(map[int64]struct{}),
		repo:          repo,
		rdb:           rdb,
		logger:        logger.With(zap.String("mod", "killswitch")),
	}
}

// Init прогревает L1 (RAM) из БД и L2 (Redis) при старте сервиса.
func (m *KillSwitchManager) Init(ctx context.Context) error {
	fids, err := m.repo.GetBlockedAgents(ctx)
	if err != nil {
		return fmt.Errorf("killswitch: fetch blocked agents: %w", err)
	}

	ids := make([]string, 0, len(fids))
	for _, fid := range fids {
		ids = append(ids, strconv.FormatInt(fid, 10))
	}

	if err := WarmupState(ctx, m.rdb, m.logger, ids, infra.RedisKeyBlockedAgents, infra.RedisKeyLockWarmupBlocked, func(items []string) {
		m.mu.Lock()
		defer m.mu.Unlock()
		for _, id := range items {
			if fid, perr := strconv.ParseInt(id, 10, 64); perr == nil {
				m.blockedAgents[fid] = struct{}{}
			}
		}
	}); err != nil {
		return err
	}

	// Глобальный флаг живет отдельным ключом
	val, err := m.rdb.Get(ctx, infra.RedisKeyGlobalKillSwitch).Result()
	if err != nil && err != redis.Nil {
		m.logger.Warn("could not read global kill-switch state", zap.Error(err))
		return nil
	}
	m.mu.Lock()
	m.globalOff = val == "on"
	m.mu.Unlock()
	return nil
}

// IsBlocked — самый дешевый вызов горячего пути (RLock по мапе).
func (m *KillSwitchManager) IsBlocked(agentFID int64) bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	_, ok := m.blockedAgents[agentFID]
	return ok
}

// GlobalActive сообщает, опущен ли глобальный рубильник автофандинга.
func (m *KillSwitchManager) GlobalActive() bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.globalOff
}

func (m *KillSwitchManager) setBlocked(fid int64, blocked bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if blocked {
		m.blockedAgents[fid] = struct{}{}
	} else {
		delete(m.blockedAgents, fid)
	}
}

func (m *KillSwitchManager) setGlobal(off bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.globalOff = off
}
