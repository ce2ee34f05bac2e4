package engine

import (
	"context"
	"strconv"

	"go.uber.org/zap"

	"github.com/xela07ax/lendgate/internal/infra"
)

// globalSignalID — зарезервированный идентификатор глобального рубильника
// в канале kill-switch (обычные сигналы несут FID агента).
const globalSignalID = "global"

// StartListener подписывается на сигналы консоли и обновляет локальный кэш.
// Живучесть (переподключение + ресинк) обеспечивает ListenStateResilient.
func (m *KillSwitchManager) StartListener(ctx context.Context) {
	m.logger.Info("kill-switch listener started", zap.String("chan", infra.RedisChanKillSwitch))

	ListenStateResilient(ctx, m.rdb, m.logger, infra.RedisChanKillSwitch,
		func() error { return m.Init(ctx) }, // ресинк при каждом переподключении
		func(id string, active bool) {
			if id == globalSignalID {
				m.setGlobal(active)
				m.logger.Warn("global kill-switch toggled", zap.Bool("off", active))
				return
			}
			fid, err := strconv.ParseInt(id, 10, 64)
			if err != nil {
				m.logger.Error("invalid kill-switch signal id", zap.String("id", id))
				return
			}
			m.setBlocked(fid, active)
			m.logger.Info("agent block state updated",
				zap.Int64("agent_fid", fid), zap.Bool("blocked", active))
		},
	)
}
