package server

/*
Пакет server — внешний HTTP-периметр ядра: регистрация агентов, жизненный
цикл займов, аукцион с живой лентой, admission-решения, вебхуки исполнителя
и плановый обход. Операторская консоль живет отдельно (internal/console).
*/

import (
	"context"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"

	"github.com/xela07ax/lendgate/internal/admission"
	"github.com/xela07ax/lendgate/internal/auction"
	"github.com/xela07ax/lendgate/internal/audit"
	"github.com/xela07ax/lendgate/internal/domain"
	"github.com/xela07ax/lendgate/internal/engine"
	"github.com/xela07ax/lendgate/internal/identity"
	"github.com/xela07ax/lendgate/internal/lending"
	"github.com/xela07ax/lendgate/internal/sweep"
	"github.com/xela07ax/lendgate/internal/webhook"
)

// SettlementStore — побочные записи вокруг расчета: сверка интентов после
// принятия ставки, дозапись ссылки транзакции и чтение займа для сверки
// суммы из вебхука.
type SettlementStore interface {
	GetLoan(ctx context.Context, id string) (*domain.Loan, error)
	AttachTxRef(ctx context.Context, loanID, txRef string) error
	ReconcileIntents(ctx context.Context, loanID string, funderFID int64) error
}

type Server struct {
	router *chi.Mux
	logger *zap.Logger

	registrar *identity.Registrar
	lending   *lending.Service
	auction   *auction.Engine
	hub       *auction.Hub
	admission *admission.Service
	sweeper   *sweep.Sweeper
	verifier  *webhook.Verifier
	txRefs    SettlementStore
	auditor   audit.Auditor

	ksm         *engine.KillSwitchManager
	sweepSecret string
}

func NewServer(
	logger *zap.Logger,
	registrar *identity.Registrar,
	lendingSvc *lending.Service,
	auctionEng *auction.Engine,
	hub *auction.Hub,
	admissionSvc *admission.Service,
	sweeper *sweep.Sweeper,
	verifier *webhook.Verifier,
	txRefs SettlementStore,
	auditor audit.Auditor,
	ksm *engine.KillSwitchManager,
	sweepSecret string,
) *Server {
	s := &Server{
		router:      chi.NewRouter(),
		logger:      logger.Named("core-api"),
		registrar:   registrar,
		lending:     lendingSvc,
		auction:     auctionEng,
		hub:         hub,
		admission:   admissionSvc,
		sweeper:     sweeper,
		verifier:    verifier,
		txRefs:      txRefs,
		auditor:     auditor,
		ksm:         ksm,
		sweepSecret: sweepSecret,
	}
	s.routes()
	return s
}

func (s *Server) routes() {
	r := s.router

	// --- Глобальные инфраструктурные Middleware ---
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(engine.TracingMiddleware)
	// Быстрый отказ заблокированным агентам по декларированному FID.
	// Авторитетная проверка все равно выполняется политикой допуска.
	r.Use(s.ksm.Middleware)

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})

	// Регистрация агентов: подпись манифеста вместо сессии
	r.Post("/v1/agents/register", s.handleRegisterAgent)

	// Жизненный цикл займов
	r.Route("/v1/loans", func(r chi.Router) {
		r.Get("/available", s.handleListAvailable)
		r.Post("/", s.handleCreateLoan)
		r.Route("/{id}", func(r chi.Router) {
			r.Post("/cancel", s.handleCancelLoan)
			r.Post("/repay", s.handleRepayLoan)
			r.Get("/bids", s.handleListBids)
			r.Post("/bids", s.handlePlaceBid)
			r.Get("/bids/stream", s.handleBidStream)
			r.Post("/accept", s.handleAcceptBid)
		})
	})

	// Admission: решения для агентов. Kill-switch режет заблокированных
	// до входа в сервис (заголовок выставляет сам обработчик после auth).
	r.Post("/v1/admission/{id}", s.handleAdmission)

	// Подтверждения исполнителя платежей (HMAC)
	r.Post("/v1/webhooks/executor", s.handleExecutorWebhook)

	// Плановый обход (статический bearer-секрет)
	r.Post("/v1/sweep", s.handleSweep)
}

// ServeHTTP позволяет использовать Server как стандартный http.Handler
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}
