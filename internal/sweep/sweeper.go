package sweep

/*
Файл sweeper.go — плановый обход жизненного цикла. Один прогон:
 1. расчет аукционов с истекшим дедлайном (seeking -> funded);
 2. funded -> due при наступлении срока;
 3. due -> overdue после грейс-периода;
 4. overdue -> default после периода дефолта;
 5. сверка funding-интентов по рассчитанным займам.
Прогон идемпотентен: повторный запуск над тем же состоянием ничего не меняет.
Каждый займ обрабатывается независимо, ошибка одного не роняет обход.
*/

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/xela07ax/lendgate/internal/audit"
	"github.com/xela07ax/lendgate/internal/auction"
	"github.com/xela07ax/lendgate/internal/domain"
)

// Store — выборки и переходы, нужные обходу.
type Store interface {
	// ListExpiredAuctions — seeking-займы с истекшим auction_ends_at.
	ListExpiredAuctions(ctx context.Context, asOf time.Time) ([]domain.Loan, error)
	// ListByStatusDueBefore — займы в статусе status с due_at раньше cutoff.
	ListByStatusDueBefore(ctx context.Context, status domain.LoanStatus, cutoff time.Time) ([]domain.Loan, error)
	UpdateLoanStatus(ctx context.Context, id string, from, to domain.LoanStatus) error
	// ReconcileIntents помечает интент победителя SETTLED, остальные — EXPIRED.
	ReconcileIntents(ctx context.Context, loanID string, funderFID int64) error
}

// Settler — движок аукциона (auction.Engine).
type Settler interface {
	Settle(ctx context.Context, loanID string) (*domain.Loan, error)
}

// Config — грейс-периоды жизненного цикла.
type Config struct {
	OverdueAfter time.Duration // due -> overdue
	DefaultAfter time.Duration // overdue -> default
}

// Report — итог одного прогона.
type Report struct {
	Settled   int `json:"settled"`
	Due       int `json:"due"`
	Overdue   int `json:"overdue"`
	Defaulted int `json:"defaulted"`
	Errors    int `json:"errors"`
}

type Sweeper struct {
	store   Store
	settler Settler
	cfg     Config
	auditor audit.Auditor
	logger  *zap.Logger
	now     func() time.Time
}

func NewSweeper(store Store, settler Settler, cfg Config, auditor audit.Auditor, logger *zap.Logger) *Sweeper {
	return &Sweeper{
		store:   store,
		settler: settler,
		cfg:     cfg,
		auditor: auditor,
		logger:  logger.Named("sweep"),
		now:     time.Now,
	}
}

// Run выполняет один полный прогон и возвращает отчет.
func (s *Sweeper) Run(ctx context.Context) (Report, error) {
	var rep Report
	now := s.now()

	s.settleExpired(ctx, now, &rep)
	s.advance(ctx, domain.LoanFunded, domain.LoanDue, now, &rep.Due, &rep)
	s.advance(ctx, domain.LoanDue, domain.LoanOverdue, now.Add(-s.cfg.OverdueAfter), &rep.Overdue, &rep)
	s.advance(ctx, domain.LoanOverdue, domain.LoanDefault, now.Add(-s.cfg.DefaultAfter), &rep.Defaulted, &rep)

	if s.auditor != nil {
		s.auditor.Log(audit.DecisionEvent{
			ID:        uuid.New().String(),
			Kind:      audit.KindSweep,
			Accepted:  true,
			Status:    "completed",
			Timestamp: now,
		})
	}

	s.logger.Info("sweep completed",
		zap.Int("settled", rep.Settled),
		zap.Int("due", rep.Due),
		zap.Int("overdue", rep.Overdue),
		zap.Int("defaulted", rep.Defaulted),
		zap.Int("errors", rep.Errors))
	return rep, nil
}

func (s *Sweeper) settleExpired(ctx context.Context, now time.Time, rep *Report) {
	expired, err := s.store.ListExpiredAuctions(ctx, now)
	if err != nil {
		s.logger.Error("failed to list expired auctions", zap.Error(err))
		rep.Errors++
		return
	}

	for _, loan := range expired {
		funded, serr := s.settler.Settle(ctx, loan.ID)
		switch {
		case serr == nil:
			rep.Settled++
			if rerr := s.store.ReconcileIntents(ctx, loan.ID, funded.FunderFID); rerr != nil {
				s.logger.Error("intent reconciliation failed",
					zap.String("loan_id", loan.ID), zap.Error(rerr))
			}
		case errors.Is(serr, domain.ErrNoBids):
			// Аукцион истек без ставок — займ остается seeking, решает заемщик
			s.logger.Debug("expired auction has no bids", zap.String("loan_id", loan.ID))
		case errors.Is(serr, auction.ErrHoldbackActive), errors.Is(serr, domain.ErrLoanContended):
			// Перехвачено параллельным расчетом либо победитель еще в окне
			s.logger.Debug("settlement skipped", zap.String("loan_id", loan.ID), zap.Error(serr))
		default:
			s.logger.Error("settlement failed", zap.String("loan_id", loan.ID), zap.Error(serr))
			rep.Errors++
		}
	}
}

func (s *Sweeper) advance(ctx context.Context, from, to domain.LoanStatus, cutoff time.Time, counter *int, rep *Report) {
	loans, err := s.store.ListByStatusDueBefore(ctx, from, cutoff)
	if err != nil {
		s.logger.Error("failed to list loans for transition",
			zap.String("from", string(from)), zap.String("to", string(to)), zap.Error(err))
		rep.Errors++
		return
	}

	for _, loan := range loans {
		if !domain.CanTransition(from, to) {
			continue
		}
		if err := s.store.UpdateLoanStatus(ctx, loan.ID, from, to); err != nil {
			// Гонка с repay — займ уже ушел из from, это не сбой обхода
			if errors.Is(err, domain.ErrLoanContended) || errors.Is(err, domain.ErrNotFound) {
				continue
			}
			s.logger.Error("status transition failed",
				zap.String("loan_id", loan.ID), zap.Error(err))
			rep.Errors++
			continue
		}
		*counter++
	}
}
