package auction

/*
Файл engine.go — движок восходящего аукциона первой цены в рамках одного
займа. Прием ставки append-only: новая ставка обязана строго превышать
текущую выигрывающую, получает следующий sequence и статус winning,
предыдущий победитель понижается до losing. Расчет (settlement) переводит
займ seeking->funded условным обновлением хранилища: при конкурентных
фандерах побеждает ровно один, проигравший получает ErrLoanContended
без побочных эффектов.
*/

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/xela07ax/lendgate/internal/domain"
	"github.com/xela07ax/lendgate/internal/engine"
	"github.com/xela07ax/lendgate/internal/ledger"
	"go.uber.org/zap"
)

// ErrHoldbackActive — попытка агента выиграть аукцион внутри окна удержания.
// Окно резервирует ранние права финансирования за людьми.
var ErrHoldbackActive = fmt.Errorf("holdback window reserves funding for human bidders")

// BidStore — контракт хранилища ставок. PlaceBid атомарен: проверка
// строгого превышения, назначение sequence и понижение прежнего победителя
// происходят под одной блокировкой/транзакцией.
type BidStore interface {
	ListBids(ctx context.Context, loanID string) ([]domain.Bid, error)
	TopBid(ctx context.Context, loanID string) (*domain.Bid, error)
	PlaceBid(ctx context.Context, bid *domain.Bid) error
}

// LoanStore — займы. ConditionalFund — то самое CAS-обновление:
// успешно только если строка все еще в статусе seeking в момент записи.
type LoanStore interface {
	GetLoan(ctx context.Context, id string) (*domain.Loan, error)
	ConditionalFund(ctx context.Context, loanID string, funderFID int64, funderKind domain.ActorKind) error
}

// EventRecorder пишет funding-событие — источник velocity-агрегатов.
type EventRecorder interface {
	RecordFunding(ctx context.Context, ev *domain.FundingEvent) error
}

// Transferer — внешний исполнитель платежа. Сам перевод вне ядра;
// исполнитель возвращает ссылку на транзакцию и позже подтверждает
// результат вебхуком.
type Transferer interface {
	Transfer(ctx context.Context, loanID string, agentFID int64, amount int64) (txRef string, err error)
}

type Engine struct {
	loans    LoanStore
	bids     BidStore
	events   EventRecorder
	payments Transferer // может быть nil (dry-run/тесты)
	metrics  *engine.Metrics
	holdback time.Duration
	logger   *zap.Logger
	now      func() time.Time
}

func NewEngine(loans LoanStore, bids BidStore, events EventRecorder, payments Transferer, metrics *engine.Metrics, holdback time.Duration, logger *zap.Logger) *Engine {
	return &Engine{
		loans:    loans,
		bids:     bids,
		events:   events,
		payments: payments,
		metrics:  metrics,
		holdback: holdback,
		logger:   logger.Named("auction"),
		now:      time.Now,
	}
}

func (e *Engine) countSettlement(result string) {
	if e.metrics != nil {
		e.metrics.SettlementsTotal.WithLabelValues(result).Inc()
	}
}

// PlaceBid принимает ставку. Предварительная проверка здесь, финальная —
// в хранилище под блокировкой (между чтением и записью возможна гонка).
func (e *Engine) PlaceBid(ctx context.Context, loanID string, bidderFID int64, kind domain.ActorKind, amount int64) (*domain.Bid, error) {
	loan, err := e.loans.GetLoan(ctx, loanID)
	if err != nil {
		return nil, err
	}
	if loan.Status != domain.LoanSeeking {
		return nil, &domain.StateError{LoanID: loanID, From: loan.Status, To: domain.LoanFunded}
	}

	top, err := e.bids.TopBid(ctx, loanID)
	if err != nil {
		return nil, err
	}
	if top != nil && amount <= int64(top.Amount) {
		return nil, domain.ErrBidTooLow
	}

	bid := &domain.Bid{
		ID:         uuid.New().String(),
		LoanID:     loanID,
		BidderFID:  bidderFID,
		BidderKind: kind,
		Amount:     ledger.Micro(amount),
		Status:     domain.BidWinning,
		CreatedAt:  e.now(),
	}
	if err := e.bids.PlaceBid(ctx, bid); err != nil {
		return nil, err
	}
	if e.metrics != nil {
		e.metrics.BidsTotal.Inc()
	}

	e.logger.Info("bid accepted",
		zap.String("loan_id", loanID),
		zap.Int64("bidder_fid", bidderFID),
		zap.Int64("amount", amount),
		zap.Int64("sequence", bid.Sequence))
	return bid, nil
}

// ListBids отдает историю ставок займа в порядке sequence.
func (e *Engine) ListBids(ctx context.Context, loanID string) ([]domain.Bid, error) {
	if _, err := e.loans.GetLoan(ctx, loanID); err != nil {
		return nil, err
	}
	return e.bids.ListBids(ctx, loanID)
}

// Settle завершает аукцион: текущий победитель становится фандером займа.
// Вызывается либо внешним триггером по дедлайну, либо явным принятием
// выигрывающей ставки. Возвращает профинансированный займ.
func (e *Engine) Settle(ctx context.Context, loanID string) (*domain.Loan, error) {
	loan, err := e.loans.GetLoan(ctx, loanID)
	if err != nil {
		return nil, err
	}
	if loan.Status != domain.LoanSeeking {
		e.countSettlement("contended")
		return nil, domain.ErrLoanContended
	}

	top, err := e.bids.TopBid(ctx, loanID)
	if err != nil {
		return nil, err
	}
	if top == nil {
		e.countSettlement("no_bids")
		return nil, domain.ErrNoBids
	}

	// Агент не может выиграть внутри окна удержания, размер ставки не важен
	if top.BidderKind == domain.ActorAgent && loan.InHoldback(e.now(), e.holdback) {
		e.countSettlement("holdback")
		return nil, ErrHoldbackActive
	}

	// Единственная жесткая точка согласованности всего ядра
	if err := e.loans.ConditionalFund(ctx, loanID, top.BidderFID, top.BidderKind); err != nil {
		if errors.Is(err, domain.ErrLoanContended) {
			e.countSettlement("contended")
		}
		return nil, err
	}

	ev := &domain.FundingEvent{
		ID:          uuid.New().String(),
		LoanID:      loanID,
		AgentFID:    top.BidderFID,
		BorrowerFID: loan.BorrowerFID,
		Amount:      loan.Principal,
		CreatedAt:   e.now(),
	}

	// Перевод исполняется внешней системой; ссылку фиксируем сразу,
	// подтверждение придет вебхуком
	if e.payments != nil && top.BidderKind == domain.ActorAgent {
		txRef, terr := e.payments.Transfer(ctx, loanID, top.BidderFID, int64(loan.Principal))
		if terr != nil {
			e.logger.Error("payment executor transfer failed, awaiting webhook retry",
				zap.String("loan_id", loanID), zap.Error(terr))
		} else {
			ev.TxRef = txRef
		}
	}

	if err := e.events.RecordFunding(ctx, ev); err != nil {
		e.logger.Error("failed to record funding event", zap.String("loan_id", loanID), zap.Error(err))
	}

	loan.Status = domain.LoanFunded
	loan.FunderFID = top.BidderFID
	loan.FunderKind = top.BidderKind
	e.countSettlement("funded")

	e.logger.Info("auction settled",
		zap.String("loan_id", loanID),
		zap.Int64("funder_fid", top.BidderFID),
		zap.String("funder_kind", string(top.BidderKind)))
	return loan, nil
}
