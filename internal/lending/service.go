package lending

/*
Файл service.go — жизненный цикл займа вне аукциона: создание, отмена,
погашение и выдача списка кандидатов. Переходы статусов идут только через
таблицу domain.CanTransition; суммы валидируются ledger-слоем до любого
изменения состояния.
*/

import (
	"context"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/xela07ax/lendgate/internal/domain"
	"github.com/xela07ax/lendgate/internal/ledger"
)

// Store — требования сервиса к хранилищу займов.
type Store interface {
	CreateLoan(ctx context.Context, loan *domain.Loan) error
	GetLoan(ctx context.Context, id string) (*domain.Loan, error)
	// UpdateLoanStatus — защищенное обновление: строка меняется только если
	// текущий статус равен from (WHERE status=$from).
	UpdateLoanStatus(ctx context.Context, id string, from, to domain.LoanStatus) error
	ListAvailable(ctx context.Context, limit int) ([]domain.Loan, error)
}

// Scorer — поставщик скоринга заемщика для аннотирования витрины.
type Scorer interface {
	BorrowerScore(ctx context.Context, fid int64) (int, error)
}

// CreateRequest — заявка заемщика.
type CreateRequest struct {
	BorrowerFID  int64            `json:"borrower_fid"`
	BorrowerKind domain.ActorKind `json:"borrower_kind"`
	Amount       string           `json:"amount"` // десятичная строка USDC
	RateBps      int64            `json:"rate_bps"`
	DurationDays int              `json:"duration_days"`
	AuctionHours int              `json:"auction_hours"`
}

type Service struct {
	store  Store
	scorer Scorer
	bounds ledger.Bounds
	logger *zap.Logger
	now    func() time.Time
}

func NewService(store Store, scorer Scorer, bounds ledger.Bounds, logger *zap.Logger) *Service {
	return &Service{
		store:  store,
		scorer: scorer,
		bounds: bounds,
		logger: logger.Named("lending"),
		now:    time.Now,
	}
}

// Create валидирует заявку и создает займ в статусе seeking.
func (s *Service) Create(ctx context.Context, req CreateRequest) (*domain.Loan, error) {
	principal, err := ledger.Parse(req.Amount, s.bounds)
	if err != nil {
		return nil, err
	}
	if req.RateBps < 0 {
		return nil, &ledger.ValidationError{Field: "rate_bps", Msg: "must be non-negative"}
	}
	if req.DurationDays <= 0 {
		return nil, &ledger.ValidationError{Field: "duration_days", Msg: "must be positive"}
	}
	if req.BorrowerKind == "" {
		req.BorrowerKind = domain.ActorHuman
	}
	auctionHours := req.AuctionHours
	if auctionHours <= 0 {
		auctionHours = 24
	}

	now := s.now()
	loan := &domain.Loan{
		ID:            uuid.New().String(),
		BorrowerFID:   req.BorrowerFID,
		BorrowerKind:  req.BorrowerKind,
		Principal:     principal,
		RateBps:       req.RateBps,
		DurationDays:  req.DurationDays,
		Status:        domain.LoanSeeking,
		CreatedAt:     now,
		AuctionEndsAt: now.Add(time.Duration(auctionHours) * time.Hour),
		DueAt:         now.AddDate(0, 0, req.DurationDays),
		UpdatedAt:     now,
	}
	if err := s.store.CreateLoan(ctx, loan); err != nil {
		return nil, err
	}

	s.logger.Info("loan created",
		zap.String("loan_id", loan.ID),
		zap.Int64("borrower_fid", loan.BorrowerFID),
		zap.String("principal", principal.Format()),
		zap.Int64("rate_bps", loan.RateBps))
	return loan, nil
}

// Cancel — заемщик снимает займ с аукциона. Разрешено только из seeking;
// отмена уже профинансированного займа — StateError.
func (s *Service) Cancel(ctx context.Context, loanID string, byFID int64) error {
	loan, err := s.store.GetLoan(ctx, loanID)
	if err != nil {
		return err
	}
	if loan == nil {
		return domain.ErrNotFound
	}
	if loan.BorrowerFID != byFID {
		return &domain.AuthError{Reason: "only the borrower can cancel a loan"}
	}
	return s.transition(ctx, loan, domain.LoanCancelled)
}

// Repay отмечает займ погашенным и возвращает сумму к выплате
// (principal + проценты, floor-округление в пользу заемщика).
func (s *Service) Repay(ctx context.Context, loanID string) (ledger.Micro, error) {
	loan, err := s.store.GetLoan(ctx, loanID)
	if err != nil {
		return 0, err
	}
	if loan == nil {
		return 0, domain.ErrNotFound
	}

	total, err := ledger.Repay(loan.Principal, loan.RateBps)
	if err != nil {
		return 0, err
	}
	if err := s.transition(ctx, loan, domain.LoanRepaid); err != nil {
		return 0, err
	}

	s.logger.Info("loan repaid",
		zap.String("loan_id", loan.ID),
		zap.String("total", total.Format()))
	return total, nil
}

// ListQuery — параметры витрины: лимит и необязательные фильтры, которыми
// агенты сужают выборку под свою стратегию еще до admission-запроса.
type ListQuery struct {
	Limit           int
	MaxAmount       string // десятичная строка USDC, пусто = без фильтра
	MaxDurationDays int
	MinScore        int // минимальный скор заемщика
}

// Candidate — займ на витрине вместе со скорингом его заемщика.
type Candidate struct {
	domain.Loan
	BorrowerScore int `json:"borrower_score"`
}

// ListAvailable — займы в статусе seeking для витрины фандеров, каждый
// аннотирован скором заемщика. Недоступный провайдер скоринга дает 0:
// такие кандидаты отсекаются любым положительным min_score.
func (s *Service) ListAvailable(ctx context.Context, q ListQuery) ([]Candidate, error) {
	if q.Limit <= 0 || q.Limit > 200 {
		q.Limit = 50
	}
	var maxAmount ledger.Micro
	if q.MaxAmount != "" {
		var err error
		maxAmount, err = ledger.Parse(q.MaxAmount, s.bounds)
		if err != nil {
			return nil, err
		}
	}

	loans, err := s.store.ListAvailable(ctx, q.Limit)
	if err != nil {
		return nil, err
	}

	// Один заемщик может держать несколько займов на витрине
	scores := make(map[int64]int)
	candidates := make([]Candidate, 0, len(loans))
	for _, l := range loans {
		if maxAmount > 0 && l.Principal > maxAmount {
			continue
		}
		if q.MaxDurationDays > 0 && l.DurationDays > q.MaxDurationDays {
			continue
		}

		score, seen := scores[l.BorrowerFID]
		if !seen {
			score = s.borrowerScore(ctx, l.BorrowerFID)
			scores[l.BorrowerFID] = score
		}
		if q.MinScore > 0 && score < q.MinScore {
			continue
		}
		candidates = append(candidates, Candidate{Loan: l, BorrowerScore: score})
	}
	return candidates, nil
}

// borrowerScore — скоринг заемщика с деградацией в 0 при недоступном
// провайдере: худший скор смещает выбор к отказу, а не к тихому одобрению.
func (s *Service) borrowerScore(ctx context.Context, fid int64) int {
	if s.scorer == nil {
		return 0
	}
	score, err := s.scorer.BorrowerScore(ctx, fid)
	if err != nil {
		s.logger.Warn("score provider unavailable, defaulting to 0",
			zap.Int64("borrower_fid", fid), zap.Error(err))
		return 0
	}
	return score
}

func (s *Service) transition(ctx context.Context, loan *domain.Loan, to domain.LoanStatus) error {
	if !domain.CanTransition(loan.Status, to) {
		return &domain.StateError{LoanID: loan.ID, From: loan.Status, To: to}
	}
	return s.store.UpdateLoanStatus(ctx, loan.ID, loan.Status, to)
}
