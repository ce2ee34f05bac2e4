package postgres

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/xela07ax/lendgate/internal/audit"
)

// WriteBatch — пакетная вставка журнала аудита (вызывается воркером Trail).
func (s *Store) WriteBatch(ctx context.Context, events []audit.DecisionEvent) error {
	if len(events) == 0 {
		return nil
	}

	// Количество колонок в таблице audit_events
	numFields := 11
	placeholderStr := ""
	vals := make([]interface{}, 0, len(events)*numFields)

	// Динамически строим запрос для пакетной вставки
	for i, e := range events {
		p := i * numFields
		placeholderStr += fmt.Sprintf("($%d, $%d, $%d, $%d, $%d, $%d, $%d, $%d, $%d, $%d, $%d),",
			p+1, p+2, p+3, p+4, p+5, p+6, p+7, p+8, p+9, p+10, p+11)

		vals = append(vals,
			e.ID, e.TraceID, e.Kind, e.AgentFID, e.LoanID,
			e.Accepted, strings.Join(e.Reasons, ","), e.AmountMicro, e.Status, e.DurationMs, e.Timestamp,
		)
	}

	// Убираем лишнюю запятую в конце
	query := fmt.Sprintf(
		"INSERT INTO audit_events (id, trace_id, kind, agent_fid, loan_id, accepted, reasons, amount_micro, status, duration_ms, timestamp) VALUES %s",
		strings.TrimSuffix(placeholderStr, ","),
	)

	_, err := s.pool.Exec(ctx, query, vals...)
	return err
}

// QueryEvents — выборка журнала для консоли с опциональными фильтрами.
func (s *Store) QueryEvents(ctx context.Context, agentFID int64, kind string, since time.Time, limit int) ([]audit.DecisionEvent, error) {
	query := `
		SELECT id, trace_id, kind, agent_fid, loan_id, accepted, reasons, amount_micro, status, duration_ms, timestamp
		FROM audit_events WHERE timestamp >= $1`

	args := []interface{}{since}
	if agentFID > 0 {
		args = append(args, agentFID)
		query += fmt.Sprintf(" AND agent_fid = $%d", len(args))
	}
	if kind != "" {
		args = append(args, kind)
		query += fmt.Sprintf(" AND kind = $%d", len(args))
	}

	if limit <= 0 || limit > 500 {
		limit = 100
	}
	args = append(args, limit)
	query += fmt.Sprintf(" ORDER BY timestamp DESC LIMIT $%d", len(args))

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("postgres: failed to query audit events: %w", err)
	}
	defer rows.Close()

	results := make([]audit.DecisionEvent, 0)
	for rows.Next() {
		var e audit.DecisionEvent
		var reasons string
		if err := rows.Scan(&e.ID, &e.TraceID, &e.Kind, &e.AgentFID, &e.LoanID,
			&e.Accepted, &reasons, &e.AmountMicro, &e.Status, &e.DurationMs, &e.Timestamp); err != nil {
			return nil, fmt.Errorf("postgres: failed to scan audit event: %w", err)
		}
		if reasons != "" {
			e.Reasons = strings.Split(reasons, ",")
		}
		results = append(results, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("postgres: rows iteration error: %w", err)
	}
	return results, nil
}
