package domain

import (
	"time"

	"github.com/xela07ax/lendgate/internal/ledger"
)

// Agent — автономный фандер, привязанный к кошельку через подпись манифеста.
// Стратегия и лимиты меняются только управляющей identity; деактивация —
// мягкий флаг, запись никогда не удаляется.
type Agent struct {
	FID           int64  `json:"fid"`
	ControllerFID int64  `json:"controller_fid"`
	Wallet        string `json:"wallet"`

	Strategy Strategy `json:"strategy"`
	Limits   Limits   `json:"limits"`

	Active          bool   `json:"active"`
	AutofundEnabled bool   `json:"autofund_enabled"`
	ManifestSig     string `json:"-"` // доказательство владения кошельком

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Strategy — декларированная риск-стратегия агента. Валидируется один раз
// при регистрации, на пути принятия решения считается доверенной.
type Strategy struct {
	RiskTier     string       `json:"risk_tier"` // conservative | moderate | aggressive
	MinAmount    ledger.Micro `json:"min_amount"`
	MaxAmount    ledger.Micro `json:"max_amount"`
	DurationDays []int        `json:"duration_days"` // допустимые сроки
	MinScore     int          `json:"min_score"`     // минимальный скор заемщика
	Blacklist    []int64      `json:"blacklist,omitempty"`
	Whitelist    []int64      `json:"whitelist,omitempty"` // пустой = не применяется
}

// Limits — конфигурация потребления: дневные и разовые потолки.
type Limits struct {
	MaxLoansPerDay     int          `json:"max_loans_per_day"`
	MaxUSDCPerDay      ledger.Micro `json:"max_usdc_per_day"`
	MaxUSDCPerTx       ledger.Micro `json:"max_usdc_per_tx"`
	PerCounterpartyDay ledger.Micro `json:"per_counterparty_day"`
}

// AllowsDuration проверяет срок займа против предпочтений стратегии.
func (s Strategy) AllowsDuration(days int) bool {
	if len(s.DurationDays) == 0 {
		return true
	}
	for _, d := range s.DurationDays {
		if d == days {
			return true
		}
	}
	return false
}

// Blacklisted сообщает, занесен ли заемщик в черный список.
func (s Strategy) Blacklisted(fid int64) bool {
	for _, b := range s.Blacklist {
		if b == fid {
			return true
		}
	}
	return false
}

// Whitelisted: при непустом белом списке заемщик обязан в нем присутствовать.
func (s Strategy) Whitelisted(fid int64) bool {
	if len(s.Whitelist) == 0 {
		return true
	}
	for _, w := range s.Whitelist {
		if w == fid {
			return true
		}
	}
	return false
}
