package admission

/*
Файл service.go — оркестратор admission control. Собирает все входы решения
(агент, займ, скор заемщика, velocity-срез, kill-switch) и прогоняет их через
чистый policy.Evaluate. Политики деградации внешних зависимостей живут здесь:
скоринг fail-open (недоступен = худший скор 0), сессии fail-closed,
velocity-хранилище fail-closed (это наша БД, безопасного дефолта нет).
Положительное решение фиксируется идемпотентным funding-интентом.
*/

import (
	"context"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/xela07ax/lendgate/internal/audit"
	"github.com/xela07ax/lendgate/internal/domain"
	"github.com/xela07ax/lendgate/internal/engine"
	"github.com/xela07ax/lendgate/internal/policy"
	"github.com/xela07ax/lendgate/internal/velocity"
)

// Authenticator — сессионный слой агентов (identity.SessionManager).
type Authenticator interface {
	Authenticate(ctx context.Context, token string) (int64, error)
}

// AgentStore отдает профиль агента со стратегией и лимитами.
type AgentStore interface {
	GetAgent(ctx context.Context, fid int64) (*domain.Agent, error)
}

// LoanStore отдает займ-кандидат.
type LoanStore interface {
	GetLoan(ctx context.Context, id string) (*domain.Loan, error)
}

// IntentStore фиксирует положительные решения. RecordIntent идемпотентен
// по паре (loan_id, agent_fid): повтор — no-op.
type IntentStore interface {
	RecordIntent(ctx context.Context, intent *domain.FundingIntent) error
}

// Scorer — внешний провайдер скоринга заемщиков.
type Scorer interface {
	BorrowerScore(ctx context.Context, fid int64) (int, error)
}

// KillSwitch — локальный кэш блокировок (engine.KillSwitchManager).
type KillSwitch interface {
	IsBlocked(fid int64) bool
	GlobalActive() bool
}

type Service struct {
	sessions Authenticator
	agents   AgentStore
	loans    LoanStore
	intents  IntentStore
	scorer   Scorer
	velocity *velocity.Tracker
	ks       KillSwitch
	auditor  audit.Auditor
	metrics  *engine.Metrics
	holdback time.Duration
	logger   *zap.Logger
	now      func() time.Time
}

func NewService(
	sessions Authenticator,
	agents AgentStore,
	loans LoanStore,
	intents IntentStore,
	scorer Scorer,
	tracker *velocity.Tracker,
	ks KillSwitch,
	auditor audit.Auditor,
	metrics *engine.Metrics,
	holdback time.Duration,
	logger *zap.Logger,
) *Service {
	return &Service{
		sessions: sessions,
		agents:   agents,
		loans:    loans,
		intents:  intents,
		scorer:   scorer,
		velocity: tracker,
		ks:       ks,
		auditor:  auditor,
		metrics:  metrics,
		holdback: holdback,
		logger:   logger.Named("admission"),
		now:      time.Now,
	}
}

// Result — ответ admission-запроса, отдается агенту как есть.
type Result struct {
	Decision policy.Decision `json:"decision"`
	IntentID string          `json:"intent_id,omitempty"`
}

// Decide — полный цикл решения о допуске агента к финансированию займа.
// Токен сессии обязателен; все отказы аутентификации схлопнуты в AuthError.
func (s *Service) Decide(ctx context.Context, token, loanID string) (*Result, error) {
	started := s.now()

	agentFID, err := s.sessions.Authenticate(ctx, token)
	if err != nil {
		return nil, err
	}

	res, err := s.DecideForAgent(ctx, agentFID, loanID)

	if s.metrics != nil {
		outcome := "error"
		if err == nil {
			outcome = "rejected"
			if res.Decision.Accepted {
				outcome = "accepted"
			}
		}
		s.metrics.DecisionDuration.WithLabelValues(outcome).Observe(s.now().Sub(started).Seconds())
		s.metrics.DecisionsTotal.WithLabelValues(outcome).Inc()
	}
	return res, err
}

// DecideForAgent — решение для уже аутентифицированного агента.
// Используется и HTTP-путем, и внутренним autofund-обходом.
func (s *Service) DecideForAgent(ctx context.Context, agentFID int64, loanID string) (*Result, error) {
	started := s.now()

	agent, err := s.agents.GetAgent(ctx, agentFID)
	if err != nil {
		return nil, err
	}
	if agent == nil {
		return nil, domain.ErrNotFound
	}

	loan, err := s.loans.GetLoan(ctx, loanID)
	if err != nil {
		return nil, err
	}
	if loan == nil {
		return nil, domain.ErrNotFound
	}
	if loan.Status != domain.LoanSeeking {
		return nil, &domain.StateError{LoanID: loanID, From: loan.Status, To: domain.LoanFunded}
	}

	// Скоринг fail-open: недоступный провайдер = худший скор 0.
	// Консервативно для агента, но не блокирует платформу целиком.
	score := 0
	if s.scorer != nil {
		got, serr := s.scorer.BorrowerScore(ctx, loan.BorrowerFID)
		if serr != nil {
			s.logger.Warn("score provider unavailable, assuming worst score",
				zap.Int64("borrower_fid", loan.BorrowerFID), zap.Error(serr))
		} else {
			score = got
		}
	}

	snap, err := s.velocity.Snapshot(ctx, agentFID, loan.BorrowerFID, s.now())
	if err != nil {
		return nil, err
	}

	candidate := policy.Candidate{
		LoanID:        loan.ID,
		Amount:        loan.Principal,
		DurationDays:  loan.DurationDays,
		BorrowerFID:   loan.BorrowerFID,
		BorrowerKind:  loan.BorrowerKind,
		BorrowerScore: score,
		CreatedAt:     loan.CreatedAt,
	}
	env := policy.Env{
		KillSwitch: s.ks.GlobalActive() || s.ks.IsBlocked(agentFID),
		Holdback:   s.holdback,
		Now:        s.now(),
	}

	decision := policy.Evaluate(candidate, agent, snap, env)

	result := &Result{Decision: decision}

	if decision.Accepted {
		intent := &domain.FundingIntent{
			ID:        uuid.New().String(),
			LoanID:    loan.ID,
			AgentFID:  agentFID,
			Amount:    loan.Principal,
			Status:    domain.IntentRecorded,
			CreatedAt: s.now(),
			UpdatedAt: s.now(),
		}
		if err := s.intents.RecordIntent(ctx, intent); err != nil {
			return nil, err
		}
		result.IntentID = intent.ID
	} else if s.metrics != nil {
		for _, r := range decision.Reasons {
			s.metrics.RejectReasons.WithLabelValues(string(r)).Inc()
		}
	}

	s.audit(ctx, agentFID, loan, decision, started)

	s.logger.Info("admission decision",
		zap.Int64("agent_fid", agentFID),
		zap.String("loan_id", loanID),
		zap.Bool("accepted", decision.Accepted),
		zap.Int("reasons", len(decision.Reasons)))
	return result, nil
}

func (s *Service) audit(ctx context.Context, agentFID int64, loan *domain.Loan, d policy.Decision, started time.Time) {
	if s.auditor == nil {
		return
	}

	reasons := make([]string, 0, len(d.Reasons))
	for _, r := range d.Reasons {
		reasons = append(reasons, string(r))
	}

	s.auditor.Log(audit.DecisionEvent{
		ID:          uuid.New().String(),
		TraceID:     engine.ExtractTraceID(ctx),
		Kind:        audit.KindAdmission,
		AgentFID:    agentFID,
		LoanID:      loan.ID,
		Accepted:    d.Accepted,
		Reasons:     reasons,
		AmountMicro: int64(loan.Principal),
		Status:      string(loan.Status),
		Timestamp:   started,
		DurationMs:  s.now().Sub(started).Milliseconds(),
	})
}
