package service

import (
	"context"
	"fmt"
	"time"

	"github.com/xela07ax/lendgate/internal/audit"
)

// AuditLogProvider описывает контракт для чтения журнала решений.
// Используем структуру DecisionEvent из пакета audit, чтобы сохранить
// единую модель данных.
type AuditLogProvider interface {
	QueryEvents(ctx context.Context, agentFID int64, kind string, since time.Time, limit int) ([]audit.DecisionEvent, error)
}

type AuditService struct {
	repo AuditLogProvider
}

func NewAuditService(repo AuditLogProvider) *AuditService {
	return &AuditService{repo: repo}
}

// FetchLogs запрашивает журнал с фильтрацией по агенту и виду события.
// Нулевой since означает "за последние сутки".
func (s *AuditService) FetchLogs(ctx context.Context, agentFID int64, kind string, since time.Time, limit int) ([]audit.DecisionEvent, error) {
	if since.IsZero() {
		since = time.Now().Add(-24 * time.Hour)
	}
	logs, err := s.repo.QueryEvents(ctx, agentFID, kind, since, limit)
	if err != nil {
		return nil, fmt.Errorf("audit_service: failed to fetch logs: %w", err)
	}
	return logs, nil
}
