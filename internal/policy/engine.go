package policy

/*
Файл engine.go — ядро admission control: чистая функция без побочных
эффектов. Все входы (агент, займ, скор заемщика, velocity-срезы) вызывающий
собирает заранее; здесь только предикаты. Проверка НЕ fail-fast: каждый
упавший предикат добавляет свой код причины, чтобы клиент получил полное
объяснение отказа.
*/

import (
	"time"

	"github.com/xela07ax/lendgate/internal/domain"
	"github.com/xela07ax/lendgate/internal/ledger"
)

// Candidate — займ-кандидат глазами политики.
type Candidate struct {
	LoanID        string
	Amount        ledger.Micro
	DurationDays  int
	BorrowerFID   int64
	BorrowerKind  domain.ActorKind
	BorrowerScore int // 0 при недоступном скоринге (fail-open к худшему значению)
	CreatedAt     time.Time
}

// Snapshot — velocity-срез потребления агента на момент решения.
// Производное состояние: считается из истории событий, не из счетчиков.
type Snapshot struct {
	LoansFunded24h     int
	Volume24h          ledger.Micro
	CounterpartyVol24h ledger.Micro
}

// Env — окружение решения: глобальный kill-switch и часы.
type Env struct {
	KillSwitch bool // true = фича выключена, все решения отрицательные
	Holdback   time.Duration
	Now        time.Time
}

// Decision — эфемерный результат. Никогда не персистится, всегда
// пересчитывается заново.
type Decision struct {
	Accepted bool     `json:"accepted"`
	Reasons  []Reason `json:"reasons"`
}

// Evaluate прогоняет кандидата через все предикаты стратегии и лимитов.
// Accepted == true тогда и только тогда, когда список причин пуст.
func Evaluate(c Candidate, agent *domain.Agent, v Snapshot, env Env) Decision {
	var reasons []Reason

	if env.KillSwitch {
		reasons = append(reasons, ReasonKillSwitch)
	}
	if agent == nil || !agent.Active {
		reasons = append(reasons, ReasonAgentInactive)
	}
	if agent != nil && !agent.AutofundEnabled {
		reasons = append(reasons, ReasonAutofundDisabled)
	}

	if agent != nil {
		st := agent.Strategy
		if c.Amount < st.MinAmount || (st.MaxAmount > 0 && c.Amount > st.MaxAmount) {
			reasons = append(reasons, ReasonAmountOutOfBounds)
		}
		if !st.AllowsDuration(c.DurationDays) {
			reasons = append(reasons, ReasonDurationNotAllowed)
		}
		if c.BorrowerScore < st.MinScore {
			reasons = append(reasons, ReasonScoreBelowMinimum)
		}
		if st.Blacklisted(c.BorrowerFID) {
			reasons = append(reasons, ReasonBorrowerBlacklisted)
		}
		if !st.Whitelisted(c.BorrowerFID) {
			reasons = append(reasons, ReasonNotWhitelisted)
		}
	}

	// Окно удержания: ранние права финансирования зарезервированы за людьми.
	// На этом пути фандер всегда агент, поэтому проверка безусловна.
	if env.Now.Before(c.CreatedAt.Add(env.Holdback)) {
		reasons = append(reasons, ReasonHoldbackActive)
	}

	if agent != nil {
		lim := agent.Limits
		if lim.MaxLoansPerDay > 0 && v.LoansFunded24h >= lim.MaxLoansPerDay {
			reasons = append(reasons, ReasonDailyLoanLimit)
		}
		if lim.MaxUSDCPerDay > 0 && v.Volume24h+c.Amount > lim.MaxUSDCPerDay {
			reasons = append(reasons, ReasonDailyVolumeLimit)
		}
		if lim.MaxUSDCPerTx > 0 && c.Amount > lim.MaxUSDCPerTx {
			reasons = append(reasons, ReasonPerTxLimit)
		}
		if lim.PerCounterpartyDay > 0 && v.CounterpartyVol24h+c.Amount > lim.PerCounterpartyDay {
			reasons = append(reasons, ReasonCounterpartyLimit)
		}
	}

	return Decision{
		Accepted: len(reasons) == 0,
		Reasons:  reasons,
	}
}
