package server

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/xela07ax/lendgate/internal/admission"
	"github.com/xela07ax/lendgate/internal/auction"
	"github.com/xela07ax/lendgate/internal/domain"
	"github.com/xela07ax/lendgate/internal/engine"
	"github.com/xela07ax/lendgate/internal/identity"
	"github.com/xela07ax/lendgate/internal/ledger"
	"github.com/xela07ax/lendgate/internal/lending"
	"github.com/xela07ax/lendgate/internal/repository/memory"
	"github.com/xela07ax/lendgate/internal/sweep"
	"github.com/xela07ax/lendgate/internal/velocity"
	"github.com/xela07ax/lendgate/internal/webhook"
)

type fixedScorer int

func (s fixedScorer) BorrowerScore(context.Context, int64) (int, error) { return int(s), nil }

// newTestServer поднимает полный HTTP-периметр поверх in-memory хранилища.
// Redis-клиент указывает в никуда: kill-switch менеджер не инициализируется,
// его Middleware работает по пустому локальному кэшу.
func newTestServer(t *testing.T) (*Server, *memory.Store, *identity.SessionManager) {
	t.Helper()
	logger := zap.NewNop()
	store := memory.NewStore()

	sessions := identity.NewSessionManager(store, []byte("secret"), time.Hour, logger)
	registrar := identity.NewRegistrar(store, sessions, logger)

	bounds := ledger.Bounds{Min: 1_000_000, Max: 10_000_000_000_000}
	lendingSvc := lending.NewService(store, fixedScorer(700), bounds, logger)

	auctionEng := auction.NewEngine(store, store, store, nil, nil, 0, logger)
	feed := auction.NewFeed(store, auction.FeedConfig{
		PollInterval:      5 * time.Millisecond,
		HeartbeatInterval: time.Minute,
	}, logger)
	hub := auction.NewHub(feed, logger)

	ksm := engine.NewKillSwitchManager(redis.NewClient(&redis.Options{Addr: "127.0.0.1:0"}), store, logger)

	admissionSvc := admission.NewService(
		sessions, store, store, store, fixedScorer(700),
		velocity.NewTracker(store, logger),
		ksm, nil, nil, 0, logger)

	sweeper := sweep.NewSweeper(store, auctionEng, sweep.Config{
		OverdueAfter: 24 * time.Hour,
		DefaultAfter: 7 * 24 * time.Hour,
	}, nil, logger)

	srv := NewServer(logger, registrar, lendingSvc, auctionEng, hub,
		admissionSvc, sweeper, webhook.NewVerifier("hook-secret"), store, nil,
		ksm, "sweep-secret")
	return srv, store, sessions
}

func doJSON(t *testing.T, srv http.Handler, method, path string, body interface{}) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	rec := httptest.NewRecorder()
	srv.ServeHTTP(rec, req)
	return rec
}

func createLoan(t *testing.T, srv http.Handler) domain.Loan {
	t.Helper()
	rec := doJSON(t, srv, http.MethodPost, "/v1/loans", map[string]interface{}{
		"borrower_fid":  42,
		"amount":        "100.00",
		"rate_bps":      200,
		"duration_days": 30,
	})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	var loan domain.Loan
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &loan))
	return loan
}

func TestHealth(t *testing.T) {
	srv, _, _ := newTestServer(t)
	rec := doJSON(t, srv, http.MethodGet, "/health", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestLoanLifecycleOverHTTP(t *testing.T) {
	srv, _, _ := newTestServer(t)
	loan := createLoan(t, srv)
	assert.Equal(t, domain.LoanSeeking, loan.Status)

	// Займ виден на витрине с аннотированным скором заемщика
	rec := doJSON(t, srv, http.MethodGet, "/v1/loans/available?min_score=600", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var listed []lending.Candidate
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &listed))
	require.Len(t, listed, 1)
	assert.Equal(t, 700, listed[0].BorrowerScore)

	// Ставки и принятие
	rec = doJSON(t, srv, http.MethodPost, "/v1/loans/"+loan.ID+"/bids", map[string]interface{}{
		"bidder_fid": 9001, "amount_micro": 1_000_000,
	})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	rec = doJSON(t, srv, http.MethodPost, "/v1/loans/"+loan.ID+"/accept", map[string]interface{}{
		"borrower_fid": 42,
	})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var funded domain.Loan
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &funded))
	assert.Equal(t, domain.LoanFunded, funded.Status)
	assert.Equal(t, int64(9001), funded.FunderFID)

	// Погашение
	rec = doJSON(t, srv, http.MethodPost, "/v1/loans/"+loan.ID+"/repay", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var repay map[string]string
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &repay))
	assert.Equal(t, "102.00", repay["total"])
}

func TestPlaceBidTooLowReturns400(t *testing.T) {
	srv, _, _ := newTestServer(t)
	loan := createLoan(t, srv)

	rec := doJSON(t, srv, http.MethodPost, "/v1/loans/"+loan.ID+"/bids", map[string]interface{}{
		"bidder_fid": 9001, "amount_micro": 2_000_000,
	})
	require.Equal(t, http.StatusCreated, rec.Code)

	rec = doJSON(t, srv, http.MethodPost, "/v1/loans/"+loan.ID+"/bids", map[string]interface{}{
		"bidder_fid": 9002, "amount_micro": 2_000_000,
	})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestCancelByStrangerReturns401(t *testing.T) {
	srv, _, _ := newTestServer(t)
	loan := createLoan(t, srv)

	rec := doJSON(t, srv, http.MethodPost, "/v1/loans/"+loan.ID+"/cancel", map[string]interface{}{
		"borrower_fid": 999,
	})
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestAcceptWithoutBidsReturns409(t *testing.T) {
	srv, _, _ := newTestServer(t)
	loan := createLoan(t, srv)

	rec := doJSON(t, srv, http.MethodPost, "/v1/loans/"+loan.ID+"/accept", map[string]interface{}{
		"borrower_fid": 42,
	})
	assert.Equal(t, http.StatusConflict, rec.Code)
}

func TestAcceptByStrangerReturns401(t *testing.T) {
	srv, _, _ := newTestServer(t)
	loan := createLoan(t, srv)

	rec := doJSON(t, srv, http.MethodPost, "/v1/loans/"+loan.ID+"/bids", map[string]interface{}{
		"bidder_fid": 9001, "amount_micro": 1_000_000,
	})
	require.Equal(t, http.StatusCreated, rec.Code)

	// Принятие, как и отмена, доступно только заемщику
	rec = doJSON(t, srv, http.MethodPost, "/v1/loans/"+loan.ID+"/accept", map[string]interface{}{
		"borrower_fid": 999,
	})
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestAdmissionEndpoint(t *testing.T) {
	srv, store, sessions := newTestServer(t)
	loan := createLoan(t, srv)

	require.NoError(t, store.UpsertAgent(context.Background(), &domain.Agent{
		FID:             9001,
		Active:          true,
		AutofundEnabled: true,
		Strategy:        domain.Strategy{MaxAmount: 1_000_000_000},
	}))
	token, _, err := sessions.Issue(context.Background(), 9001)
	require.NoError(t, err)

	req := httptest.NewRequest(http.MethodPost, "/v1/admission/"+loan.ID, nil)
	req.Header.Set("Authorization", "Bearer "+token)
	rec := httptest.NewRecorder()
	srv.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var result admission.Result
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &result))
	assert.True(t, result.Decision.Accepted)
	assert.NotEmpty(t, result.IntentID)

	// Без токена — 401
	rec = doJSON(t, srv, http.MethodPost, "/v1/admission/"+loan.ID, nil)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestExecutorWebhook(t *testing.T) {
	srv, _, _ := newTestServer(t)
	loan := createLoan(t, srv)

	// Финансируем, чтобы появилось funding-событие без tx_ref
	rec := doJSON(t, srv, http.MethodPost, "/v1/loans/"+loan.ID+"/bids", map[string]interface{}{
		"bidder_fid": 9001, "bidder_kind": "agent", "amount_micro": 1_000_000,
	})
	require.Equal(t, http.StatusCreated, rec.Code)
	rec = doJSON(t, srv, http.MethodPost, "/v1/loans/"+loan.ID+"/accept", map[string]interface{}{
		"borrower_fid": 42,
	})
	require.Equal(t, http.StatusOK, rec.Code)

	verifier := webhook.NewVerifier("hook-secret")
	body := []byte(fmt.Sprintf(`{"loan_id":%q,"tx_ref":"0xabc","status":"confirmed"}`, loan.ID))

	// Неподписанный вебхук отклоняется
	req := httptest.NewRequest(http.MethodPost, "/v1/webhooks/executor", bytes.NewReader(body))
	w := httptest.NewRecorder()
	srv.ServeHTTP(w, req)
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	// Подписанный проходит
	req = httptest.NewRequest(http.MethodPost, "/v1/webhooks/executor", bytes.NewReader(body))
	req.Header.Set(webhook.SignatureHeader, verifier.Sign(body))
	w = httptest.NewRecorder()
	srv.ServeHTTP(w, req)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
}

func TestExecutorWebhookAmountReconciliation(t *testing.T) {
	srv, _, _ := newTestServer(t)
	loan := createLoan(t, srv) // principal $100.00 = 100_000_000 micro
	verifier := webhook.NewVerifier("hook-secret")

	send := func(body []byte) *httptest.ResponseRecorder {
		req := httptest.NewRequest(http.MethodPost, "/v1/webhooks/executor", bytes.NewReader(body))
		req.Header.Set(webhook.SignatureHeader, verifier.Sign(body))
		w := httptest.NewRecorder()
		srv.ServeHTTP(w, req)
		return w
	}

	// Сумма сходится с principal
	body := []byte(fmt.Sprintf(`{"loan_id":%q,"status":"confirmed","amount_micro":100000000}`, loan.ID))
	assert.Equal(t, http.StatusOK, send(body).Code)

	// Расхождение отклоняется
	body = []byte(fmt.Sprintf(`{"loan_id":%q,"status":"confirmed","amount_micro":99000000}`, loan.ID))
	assert.Equal(t, http.StatusConflict, send(body).Code)

	// Для погашения ожидается principal+проценты: $102.00
	body = []byte(fmt.Sprintf(`{"loan_id":%q,"status":"repaid","amount_micro":102000000}`, loan.ID))
	assert.Equal(t, http.StatusOK, send(body).Code)

	body = []byte(fmt.Sprintf(`{"loan_id":%q,"status":"repaid","amount_micro":100000000}`, loan.ID))
	assert.Equal(t, http.StatusConflict, send(body).Code)
}

func TestSweepRequiresSecret(t *testing.T) {
	srv, _, _ := newTestServer(t)

	rec := doJSON(t, srv, http.MethodPost, "/v1/sweep", nil)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	req := httptest.NewRequest(http.MethodPost, "/v1/sweep", nil)
	req.Header.Set("Authorization", "Bearer sweep-secret")
	w := httptest.NewRecorder()
	srv.ServeHTTP(w, req)
	require.Equal(t, http.StatusOK, w.Code)

	var report sweep.Report
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &report))
	assert.Zero(t, report.Errors)
}

func TestBlockedAgentHeaderFastPath(t *testing.T) {
	srv, _, _ := newTestServer(t)

	// Пустой кэш блокировок: заголовок с любым FID проходит
	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	req.Header.Set("X-Agent-FID", "9001")
	rec := httptest.NewRecorder()
	srv.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusOK, rec.Code)
}
