package domain

import (
	"time"

	"github.com/xela07ax/lendgate/internal/ledger"
)

// LoanStatus — состояние займа в конечном автомате жизненного цикла.
type LoanStatus string

const (
	LoanSeeking   LoanStatus = "seeking"
	LoanFunded    LoanStatus = "funded"
	LoanDue       LoanStatus = "due"
	LoanOverdue   LoanStatus = "overdue"
	LoanDefault   LoanStatus = "default"
	LoanRepaid    LoanStatus = "repaid"
	LoanCancelled LoanStatus = "cancelled"
	LoanDeleted   LoanStatus = "deleted"
)

// ActorKind — тип участника: человек или автономный агент.
type ActorKind string

const (
	ActorHuman ActorKind = "human"
	ActorAgent ActorKind = "agent"
)

// transitions — единственный источник правды о допустимых переходах.
// Любая пара вне таблицы (включая переход в самого себя) запрещена.
var transitions = map[LoanStatus]map[LoanStatus]struct{}{
	LoanSeeking: {LoanFunded: {}, LoanCancelled: {}, LoanDeleted: {}},
	LoanFunded:  {LoanDue: {}, LoanRepaid: {}, LoanOverdue: {}},
	LoanDue:     {LoanRepaid: {}, LoanOverdue: {}},
	LoanOverdue: {LoanRepaid: {}, LoanDefault: {}},
	// default, repaid, cancelled, deleted — терминальные
}

// CanTransition — чистая проверка по таблице переходов.
func CanTransition(from, to LoanStatus) bool {
	allowed, ok := transitions[from]
	if !ok {
		return false
	}
	_, ok = allowed[to]
	return ok
}

// Loan — кандидат на финансирование. Principal неизменен после создания,
// funder не более одного; переход seeking->funded выполняется только
// условным обновлением на уровне хранилища (CAS).
type Loan struct {
	ID           string       `json:"id"`
	BorrowerFID  int64        `json:"borrower_fid"`
	BorrowerKind ActorKind    `json:"borrower_kind"`
	Principal    ledger.Micro `json:"principal"`
	RateBps      int64        `json:"rate_bps"`
	DurationDays int          `json:"duration_days"`
	Status       LoanStatus   `json:"status"`

	FunderFID  int64     `json:"funder_fid,omitempty"`
	FunderKind ActorKind `json:"funder_kind,omitempty"`

	CreatedAt     time.Time `json:"created_at"`
	AuctionEndsAt time.Time `json:"auction_ends_at"`
	DueAt         time.Time `json:"due_at"`
	UpdatedAt     time.Time `json:"updated_at"`
}

// InHoldback сообщает, действует ли еще окно удержания для агентов-фандеров.
func (l *Loan) InHoldback(now time.Time, window time.Duration) bool {
	return now.Before(l.CreatedAt.Add(window))
}
