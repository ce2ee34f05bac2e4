package connectors

import (
	"context"
	"fmt"
	"math/rand/v2"
	"time"
)

// MockConnector — заглушка внешних систем для локального запуска и тестов.
// Имитирует сетевую задержку 20-120мс и отвечает на обе операции ядра.
type MockConnector struct {
	// Score отдается всем заемщикам; 0 эмулирует отсутствующий скор
	Score int
	// Fail заставляет все вызовы падать (для проверки fail-open/fail-closed)
	Fail bool
}

func (c *MockConnector) Call(ctx context.Context, op string, payload []byte) ([]byte, error) {
	latency := time.Duration(20+rand.IntN(100)) * time.Millisecond
	select {
	case <-time.After(latency):
	case <-ctx.Done():
		return nil, ctx.Err()
	}

	if c.Fail {
		return nil, fmt.Errorf("mock: simulated outage for %s", op)
	}

	switch op {
	case opBorrowerScore:
		return []byte(fmt.Sprintf(`{"score": %d}`, c.Score)), nil
	case opPaymentTransfer:
		return []byte(fmt.Sprintf(`{"tx_ref": "0xmock%012d"}`, rand.IntN(1_000_000))), nil
	default:
		return nil, fmt.Errorf("mock: operation %s not supported", op)
	}
}
