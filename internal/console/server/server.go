package server

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"

	"github.com/xela07ax/lendgate/internal/console/handler"
	"github.com/xela07ax/lendgate/internal/console/service"
	"github.com/xela07ax/lendgate/internal/infra"
	"github.com/xela07ax/lendgate/internal/infra/auth"
)

type ConsoleServer struct {
	router *chi.Mux
	logger *zap.Logger
	cfg    *infra.Config

	// Интерфейс для проверки токенов (RS256)
	// Реализуется через embedding BaseValidator в AgentService
	authService auth.TokenValidator

	// Обработчики бизнес-доменов
	authHandler  *handler.AuthHandler      // /auth/token
	agentHandler *handler.AgentHandler     // /v1/agents, /v1/killswitch, /v1/intents
	dashHandler  *handler.DashboardHandler // /api/v1/dashboard
	auditHandler *handler.AuditHandler     // /v1/audit (Logs)
}

// NewConsoleServer инициализирует сервер админки со всеми зависимостями
func NewConsoleServer(
	cfg *infra.Config,
	logger *zap.Logger,
	agentService *service.AgentService,
	authH *handler.AuthHandler,
	agentH *handler.AgentHandler,
	dashH *handler.DashboardHandler,
	auditH *handler.AuditHandler,
) *ConsoleServer {
	s := &ConsoleServer{
		router:       chi.NewRouter(),
		logger:       logger.Named("console-api"),
		cfg:          cfg,
		authService:  agentService,
		authHandler:  authH,
		agentHandler: agentH,
		dashHandler:  dashH,
		auditHandler: auditH,
	}

	s.routes()
	return s
}

func (s *ConsoleServer) routes() {
	r := s.router

	// --- 1. Глобальные инфраструктурные Middleware (для всех) ---
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)

	// --- 2. ПУБЛИЧНЫЕ РОУТЫ (Открыты для всех) ---
	r.Group(func(r chi.Router) {
		// Логин должен быть доступен без токена
		r.Post("/auth/token", s.authHandler.Login)

		// Healthcheck для мониторинга
		r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusOK)
		})
	})

	// --- 3. ЗАЩИЩЕННЫЙ ПЕРИМЕТР (Требуют RS256 токен) ---
	r.Group(func(r chi.Router) {
		// Подключаем универсальный Middleware только для этой группы
		r.Use(auth.NewMiddleware(s.authService, s.logger))

		// Dashboard & Stats
		r.Get("/api/v1/dashboard/stats", s.dashHandler.GetStats)

		// Управление Агентами (Kill-Switch, Autofund)
		r.Route("/v1/agents", func(r chi.Router) {
			r.Get("/", s.agentHandler.List) // Список всех агентов
			r.Route("/{fid}", func(r chi.Router) {
				r.Get("/", s.agentHandler.Get)                  // Информация об агенте
				r.Post("/block", s.agentHandler.Block)          // Мгновенная блокировка (Kill-switch)
				r.Post("/unblock", s.agentHandler.Unblock)      // Разблокировка
				r.Post("/autofund", s.agentHandler.SetAutofund) // Переключение автофинансирования
			})
		})

		// Глобальный рубильник платформы
		r.Post("/v1/killswitch", s.agentHandler.SetGlobalKillSwitch)

		// Очередь funding-интентов
		r.Get("/v1/intents", s.agentHandler.ListIntents)

		// Аудит и Логи (Observability)
		r.Get("/v1/audit", s.auditHandler.GetLogs)
	})
}

// ServeHTTP позволяет использовать ConsoleServer как стандартный http.Handler
func (s *ConsoleServer) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}
