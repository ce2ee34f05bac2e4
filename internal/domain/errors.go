package domain

import (
	"errors"
	"fmt"
)

/*
Таксономия ошибок ядра:
  - AuthError: плохая подпись, неаутентифицированный вызов, истекшая сессия.
    Всегда отдается вызывающему, не ретраится.
  - StateError: попытка нелегального перехода статуса. Фатальна для операции,
    указывает на баг вызывающего или проигранную гонку.
  - ValidationError (internal/ledger): некорректная сумма/срок, отклоняется
    до любого изменения состояния.
  - PolicyRejection — НЕ ошибка: policy.Decision с кодами причин.
  - ExternalDependencyError: сбой внешнего lookup'а; гасится политикой
    fail-open/fail-closed там, где существует безопасный дефолт.
*/

// AuthError — отказ аутентификации. Не раскрывает деталей наружу.
type AuthError struct {
	Reason string
}

func (e *AuthError) Error() string {
	return fmt.Sprintf("auth: %s", e.Reason)
}

// ErrUnauthenticated — универсальный fail-closed отказ сессионного слоя.
var ErrUnauthenticated = &AuthError{Reason: "unauthenticated"}

// StateError — нелегальный переход статуса займа.
type StateError struct {
	LoanID string
	From   LoanStatus
	To     LoanStatus
}

func (e *StateError) Error() string {
	return fmt.Sprintf("state: illegal transition %s -> %s (loan %s)", e.From, e.To, e.LoanID)
}

// ErrLoanContended возвращается проигравшим гонку за seeking->funded:
// условное обновление не нашло строку в статусе seeking.
var ErrLoanContended = errors.New("loan already funded or no longer seeking")

// ErrNotFound — единый маркер отсутствия записи для всех хранилищ.
var ErrNotFound = errors.New("not found")

// ErrBidTooLow — ставка не превышает строго текущую выигрывающую сумму.
// Проверяется и в движке аукциона, и повторно в хранилище под блокировкой.
var ErrBidTooLow = errors.New("bid must strictly exceed current winning amount")

// ErrNoBids — попытка расчета аукциона без единой активной ставки.
var ErrNoBids = errors.New("auction has no bids")

// ExternalDependencyError — ошибка внешней зависимости (скоринг, identity).
type ExternalDependencyError struct {
	Service string
	Err     error
}

func (e *ExternalDependencyError) Error() string {
	return fmt.Sprintf("external: %s: %v", e.Service, e.Err)
}

func (e *ExternalDependencyError) Unwrap() error { return e.Err }
