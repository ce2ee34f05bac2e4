package connectors

/*
Файл score.go — адаптер внешнего провайдера скоринга заемщиков.
Сырой транспорт — HTTP JSON; поверх него ходит ReliabilityWrapper
(rate limit + circuit breaker + retries), а типизированный фасад
ScoreFacade переводит байты в int. Политика fail-open (недоступный
скоринг = худший скор 0) живет НЕ здесь, а в admission-сервисе:
адаптер честно возвращает ошибку.
*/

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"time"
)

const opBorrowerScore = "borrower.score"

// HTTPScoreClient — низкоуровневый транспорт к провайдеру скоринга.
type HTTPScoreClient struct {
	baseURL string
	http    *http.Client
}

func NewHTTPScoreClient(baseURL string) *HTTPScoreClient {
	return &HTTPScoreClient{
		baseURL: baseURL,
		http:    &http.Client{Timeout: 5 * time.Second},
	}
}

// Call реализует Caller. Поддерживается единственная операция borrower.score.
func (c *HTTPScoreClient) Call(ctx context.Context, op string, payload []byte) ([]byte, error) {
	if op != opBorrowerScore {
		return nil, fmt.Errorf("score: unsupported operation %q", op)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/v1/score", bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("score: build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("score: request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusTooManyRequests {
		// Провайдер просит подождать — отдаем ThrottleError для умного бэкоффа
		retryAfter := 2 * time.Second
		if s := resp.Header.Get("Retry-After"); s != "" {
			if secs, perr := strconv.Atoi(s); perr == nil {
				retryAfter = time.Duration(secs) * time.Second
			}
		}
		return nil, &ThrottleError{RetryAfter: retryAfter, Cause: fmt.Errorf("score provider throttled")}
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("score: provider returned status %d", resp.StatusCode)
	}

	var out bytes.Buffer
	if _, err := out.ReadFrom(resp.Body); err != nil {
		return nil, fmt.Errorf("score: read response: %w", err)
	}
	return out.Bytes(), nil
}

// ScoreFacade — типизированная обертка поверх Caller (обычно уже
// завернутого в ReliabilityWrapper).
type ScoreFacade struct {
	caller Caller
}

func NewScoreFacade(caller Caller) *ScoreFacade {
	return &ScoreFacade{caller: caller}
}

// BorrowerScore возвращает скор заемщика по FID.
func (f *ScoreFacade) BorrowerScore(ctx context.Context, fid int64) (int, error) {
	payload, _ := json.Marshal(map[string]int64{"fid": fid})

	raw, err := f.caller.Call(ctx, opBorrowerScore, payload)
	if err != nil {
		return 0, err
	}

	var resp struct {
		Score int `json:"score"`
	}
	if err := json.Unmarshal(raw, &resp); err != nil {
		return 0, fmt.Errorf("score: malformed provider response: %w", err)
	}
	return resp.Score, nil
}
