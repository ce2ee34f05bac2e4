package audit

import "time"

// Виды событий аудита.
const (
	KindAdmission  = "ADMISSION"  // решение о допуске агента к займу
	KindSettlement = "SETTLEMENT" // расчет аукциона
	KindWebhook    = "WEBHOOK"    // входящее подтверждение исполнителя
	KindSweep      = "SWEEP"      // плановый обход жизненного цикла
	KindConsole    = "CONSOLE"    // действие оператора (block/unblock/autofund)
)

// DecisionEvent — единица журнала аудита. Каждое решение ядра оставляет след,
// по которому разбираются инциденты и споры по займам.
type DecisionEvent struct {
	ID      string `json:"id"`       // UUID события
	TraceID string `json:"trace_id"` // Сквозной ID запроса
	Kind    string `json:"kind"`     // Что происходило (KindAdmission и т.д.)

	AgentFID int64  `json:"agent_fid"` // Кто делал (0 — системное событие)
	LoanID   string `json:"loan_id"`   // Над каким займом

	// Результат допуска
	Accepted bool     `json:"accepted"`
	Reasons  []string `json:"reasons,omitempty"` // коды отказов политики

	// Контекст
	AmountMicro int64  `json:"amount_micro,omitempty"`
	Status      string `json:"status,omitempty"` // итоговый статус займа/интента
	Error       string `json:"error,omitempty"`

	Timestamp  time.Time `json:"timestamp"`
	DurationMs int64     `json:"duration_ms"`
}
