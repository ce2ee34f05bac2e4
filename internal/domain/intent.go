package domain

import (
	"time"

	"github.com/xela07ax/lendgate/internal/ledger"
)

// IntentStatus — состояние намерения финансирования.
type IntentStatus string

const (
	IntentRecorded IntentStatus = "RECORDED" // решение принято, деньги не двигались
	IntentSettled  IntentStatus = "SETTLED"  // заем профинансирован этим агентом
	IntentExpired  IntentStatus = "EXPIRED"  // заем ушел другому фандеру
)

// FundingIntent фиксирует положительное решение admission control.
// Запись идемпотентна: уникальный ключ (loan_id, agent_fid), повторная
// фиксация — no-op на уровне хранилища, а не проверка существования в коде.
type FundingIntent struct {
	ID        string       `json:"id"`
	LoanID    string       `json:"loan_id"`
	AgentFID  int64        `json:"agent_fid"`
	Amount    ledger.Micro `json:"amount"`
	Status    IntentStatus `json:"status"`
	CreatedAt time.Time    `json:"created_at"`
	UpdatedAt time.Time    `json:"updated_at"`
}

// FundingEvent — событие фактического коммита капитала. История этих событий
// является источником для velocity-агрегатов (см. internal/velocity).
type FundingEvent struct {
	ID          string       `json:"id"`
	LoanID      string       `json:"loan_id"`
	AgentFID    int64        `json:"agent_fid"`
	BorrowerFID int64        `json:"borrower_fid"`
	Amount      ledger.Micro `json:"amount"`
	TxRef       string       `json:"tx_ref,omitempty"` // ссылка от исполнителя платежа
	CreatedAt   time.Time    `json:"created_at"`
}
