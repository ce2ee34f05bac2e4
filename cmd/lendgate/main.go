package main

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
	"golang.org/x/time/rate"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"

	"github.com/xela07ax/lendgate/internal/admission"
	"github.com/xela07ax/lendgate/internal/auction"
	"github.com/xela07ax/lendgate/internal/audit"
	"github.com/xela07ax/lendgate/internal/connectors"
	"github.com/xela07ax/lendgate/internal/engine"
	"github.com/xela07ax/lendgate/internal/identity"
	"github.com/xela07ax/lendgate/internal/infra"
	"github.com/xela07ax/lendgate/internal/ledger"
	"github.com/xela07ax/lendgate/internal/lending"
	"github.com/xela07ax/lendgate/internal/repository/postgres"
	"github.com/xela07ax/lendgate/internal/server"
	"github.com/xela07ax/lendgate/internal/sweep"
	"github.com/xela07ax/lendgate/internal/velocity"
	"github.com/xela07ax/lendgate/internal/webhook"
)

func main() {
	// 1. Конфигурация и логгер
	cfg, err := infra.LoadConfig()
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}
	logger, err := infra.NewLogger(cfg.Logger)
	if err != nil {
		log.Fatalf("failed to init logger: %v", err)
	}
	defer logger.Sync()

	// Контекст жизненного цикла фоновых горутин
	appCtx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// 2. Инфраструктура: Postgres + Redis
	store, err := postgres.NewStore(appCtx, cfg.Database.URL, cfg.Database.MaxConns, cfg.Database.MinConns)
	if err != nil {
		logger.Fatal("database unreachable", zap.Error(err))
	}
	defer store.Close()

	rdb := redis.NewClient(&redis.Options{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})

	// 3. Метрики
	reg := prometheus.NewRegistry()
	metrics := engine.NewMetrics(reg)

	go func() {
		mux := http.NewServeMux()
		mux.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))
		addr := fmt.Sprintf(":%d", cfg.Server.MetricsPort)
		logger.Info("metrics endpoint started", zap.String("addr", addr))
		if err := http.ListenAndServe(addr, mux); err != nil {
			logger.Error("metrics server stopped", zap.Error(err))
		}
	}()

	// 4. Control Plane: kill-switch с Redis-кэшем и Pub/Sub сигналами
	ksm := engine.NewKillSwitchManager(rdb, store, logger)
	if err := ksm.Init(appCtx); err != nil {
		logger.Fatal("failed to init kill-switch manager", zap.Error(err))
	}
	go ksm.StartListener(appCtx)

	// 5. Аудит: асинхронный batched-журнал
	trail := audit.NewTrail(store, logger,
		audit.WithBufferGauge(metrics.AuditBufferFill),
		audit.WithBatching(cfg.Engine.AuditBufferSize/10, cfg.Engine.AuditFlushInterval))
	trail.Start()
	defer trail.Stop()

	// 6. Внешние адаптеры за периметром надежности
	relCfg := func(name string) engine.ReliabilitySettings {
		s := engine.DefaultReliabilitySettings(name)
		s.CBMaxRequests = cfg.Engine.CBMaxRequests
		s.CBInterval = cfg.Engine.CBInterval
		s.CBTimeout = cfg.Engine.CBTimeout
		s.RateLimit = rate.Limit(cfg.Engine.RateLimit)
		s.RateBurst = cfg.Engine.RateBurst
		s.Attempts = cfg.Engine.RetryAttempts
		s.CallTimeout = cfg.Engine.CallTimeout
		return s
	}

	var scoreCaller connectors.Caller
	var paymentCaller connectors.Caller
	if cfg.Connectors.UseMock {
		mock := &connectors.MockConnector{Score: 600}
		scoreCaller, paymentCaller = mock, mock
	} else {
		scoreCaller = connectors.NewHTTPScoreClient(cfg.Connectors.ScoreURL)

		conn, err := grpc.NewClient(cfg.Connectors.ExecutorAddr,
			grpc.WithTransportCredentials(insecure.NewCredentials()))
		if err != nil {
			logger.Fatal("failed to connect to payment executor", zap.Error(err))
		}
		defer conn.Close()
		paymentCaller = connectors.NewGRPCExecutor(conn)
	}

	scorer := connectors.NewScoreFacade(engine.NewReliabilityWrapper(scoreCaller, relCfg("score"), metrics))
	payments := connectors.NewPaymentFacade(engine.NewReliabilityWrapper(paymentCaller, relCfg("executor"), metrics))

	// 7. Identity: сессии и регистрация по манифесту
	sessions := identity.NewSessionManager(store, []byte(cfg.Auth.SessionSecret), cfg.Auth.SessionTTL, logger)
	registrar := identity.NewRegistrar(store, sessions, logger)

	// 8. Доменные сервисы
	bounds := ledger.Bounds{
		Min: ledger.Micro(cfg.Lending.MinPrincipalMicro),
		Max: ledger.Micro(cfg.Lending.MaxPrincipalMicro),
	}
	lendingSvc := lending.NewService(store, scorer, bounds, logger)

	auctionEng := auction.NewEngine(store, store, store, payments, metrics, cfg.Lending.HoldbackWindow, logger)
	feed := auction.NewFeed(store, auction.FeedConfig{
		PollInterval:      cfg.Lending.FeedPollInterval,
		HeartbeatInterval: cfg.Lending.FeedHeartbeatInterval,
	}, logger)
	hub := auction.NewHub(feed, logger)

	tracker := velocity.NewTracker(store, logger)
	admissionSvc := admission.NewService(
		sessions, store, store, store, scorer, tracker, ksm, trail, metrics,
		cfg.Lending.HoldbackWindow, logger)

	sweeper := sweep.NewSweeper(store, auctionEng, sweep.Config{
		OverdueAfter: cfg.Lending.OverdueAfter,
		DefaultAfter: cfg.Lending.DefaultAfter,
	}, trail, logger)

	verifier := webhook.NewVerifier(cfg.Auth.WebhookSecret)

	// 9. HTTP-периметр
	api := server.NewServer(logger, registrar, lendingSvc, auctionEng, hub,
		admissionSvc, sweeper, verifier, store, trail, ksm, cfg.Auth.SweepSecret)

	srv := &http.Server{
		Addr:         fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port),
		Handler:      api,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	// 10. Graceful Shutdown
	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		logger.Info("lendgate core started", zap.String("addr", srv.Addr))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("listen failed", zap.Error(err))
		}
	}()

	<-stop
	logger.Info("lendgate core stopping...")

	// Даем 5 секунд на завершение запросов
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("server shutdown failed", zap.Error(err))
	}
	cancel() // останавливаем слушателей и ленты
	logger.Info("lendgate core exited properly")
}
