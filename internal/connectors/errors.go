package connectors

import (
	"context"
	"fmt"
	"time"
)

// Caller — единый контракт внешних адаптеров (скоринг, исполнитель платежей).
// op идентифицирует операцию ("borrower.score", "payment.transfer"),
// payload и ответ — JSON-байты.
type Caller interface {
	Call(ctx context.Context, op string, payload []byte) ([]byte, error)
}

// ThrottleError возвращается адаптером, когда внешняя система попросила
// сбавить темп (считан Retry-After). ReliabilityWrapper использует его
// для точного расчета паузы вместо стандартного бэкоффа.
type ThrottleError struct {
	RetryAfter time.Duration
	Cause      error
}

func (e *ThrottleError) Error() string {
	return fmt.Sprintf("throttled: retry after %v (cause: %v)", e.RetryAfter, e.Cause)
}

func (e *ThrottleError) Unwrap() error { return e.Cause }
