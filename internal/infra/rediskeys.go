package infra

import "fmt"

const (
	// RedisNamespace Базовый префикс для изоляции данных проекта в Redis
	RedisNamespace = "lendgate"
)

// Ключи для состояния (Sets / String)
const (
	RedisKeyBlockedAgents     = RedisNamespace + ":agents:blocked_set"
	RedisKeyLockWarmupBlocked = RedisNamespace + ":lock:warmup:blocked"

	// RedisKeyGlobalKillSwitch — строковый флаг ("on" = автофинансирование
	// выключено для всех агентов платформы).
	RedisKeyGlobalKillSwitch = RedisNamespace + ":killswitch:global"
)

// Каналы Pub/Sub (события)
const (
	// RedisChanKillSwitch — сигналы блокировки: "<fid>:on|off" либо "global:on|off".
	RedisChanKillSwitch = RedisNamespace + ":agents:kill-switch-signal"
)

// GetWarmupLockKey Генератор ключей для блокировок (если нужны динамические)
func GetWarmupLockKey(resource string) string {
	return fmt.Sprintf("%s:lock:warmup:%s", RedisNamespace, resource)
}
