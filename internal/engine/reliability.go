package engine

/*
Файл reliability.go — обертка надежности вокруг внешних адаптеров
(скоринг, исполнитель платежей): rate limiter -> circuit breaker ->
retries с учетом ThrottleError. Каждому коннектору — свой экземпляр
со своим предохранителем.
*/

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/avast/retry-go/v5"
	"github.com/sony/gobreaker"
	"golang.org/x/time/rate"

	"github.com/xela07ax/lendgate/internal/connectors"
)

// ReliabilitySettings — вынесенные в конфиг пороги (infra.EngineConfig).
type ReliabilitySettings struct {
	Name          string
	CBMaxRequests uint32
	CBInterval    time.Duration
	CBTimeout     time.Duration
	RateLimit     rate.Limit
	RateBurst     int
	Attempts      uint
	CallTimeout   time.Duration
}

func DefaultReliabilitySettings(name string) ReliabilitySettings {
	return ReliabilitySettings{
		Name:          name,
		CBMaxRequests: 3,
		CBInterval:    5 * time.Second,
		CBTimeout:     30 * time.Second,
		RateLimit:     rate.Limit(100),
		RateBurst:     20,
		Attempts:      3,
		CallTimeout:   10 * time.Second,
	}
}

type ReliabilityWrapper struct {
	next    connectors.Caller
	cb      *gobreaker.CircuitBreaker
	limiter *rate.Limiter
	cfg     ReliabilitySettings
	metrics *Metrics
}

func NewReliabilityWrapper(next connectors.Caller, cfg ReliabilitySettings, metrics *Metrics) *ReliabilityWrapper {
	w := &ReliabilityWrapper{
		next:    next,
		limiter: rate.NewLimiter(cfg.RateLimit, cfg.RateBurst),
		cfg:     cfg,
		metrics: metrics,
	}

	w.cb = gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        cfg.Name,
		MaxRequests: cfg.CBMaxRequests,
		Interval:    cfg.CBInterval,
		Timeout:     cfg.CBTimeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures > 5
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			if metrics == nil {
				return
			}
			state := 0.0
			if to == gobreaker.StateOpen {
				state = 1.0
			}
			metrics.CircuitBreakerState.WithLabelValues(name).Set(state)
		},
	})

	return w
}

// Call реализует connectors.Caller поверх полного пайплайна надежности.
func (w *ReliabilityWrapper) Call(ctx context.Context, op string, payload []byte) ([]byte, error) {
	// 1. Rate Limiter
	if err := w.limiter.Wait(ctx); err != nil {
		return nil, fmt.Errorf("rate limit exceeded: %w", err)
	}

	var finalData []byte

	// 2. Circuit Breaker
	cbResult, err := w.cb.Execute(func() (interface{}, error) {
		r := retry.New(
			retry.Context(ctx),
			retry.Attempts(w.cfg.Attempts),
			retry.DelayType(func(n uint, err error, config retry.DelayContext) time.Duration {
				// Если внешняя система назвала точную паузу — уважаем ее
				var tErr *connectors.ThrottleError
				if errors.As(err, &tErr) {
					return tErr.RetryAfter
				}
				return retry.BackOffDelay(n, err, config)
			}),
		)

		retryErr := r.Do(func() error {
			tCtx, cancel := context.WithTimeout(ctx, w.cfg.CallTimeout)
			defer cancel()

			var callErr error
			finalData, callErr = w.next.Call(tCtx, op, payload)
			return callErr
		})

		return finalData, retryErr
	})

	if err != nil {
		return nil, err
	}
	return cbResult.([]byte), nil
}
