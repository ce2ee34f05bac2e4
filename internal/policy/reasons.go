package policy

// Reason — машиночитаемый код причины отказа admission control.
// Вызывающий получает ПОЛНЫЙ список сработавших причин, не первую попавшуюся.
type Reason string

const (
	ReasonKillSwitch          Reason = "kill_switch_active"
	ReasonAgentInactive       Reason = "agent_inactive"
	ReasonAutofundDisabled    Reason = "autofund_disabled"
	ReasonAmountOutOfBounds   Reason = "amount_out_of_bounds"
	ReasonDurationNotAllowed  Reason = "duration_not_allowed"
	ReasonScoreBelowMinimum   Reason = "score_below_minimum"
	ReasonBorrowerBlacklisted Reason = "borrower_blacklisted"
	ReasonNotWhitelisted      Reason = "borrower_not_whitelisted"
	ReasonHoldbackActive      Reason = "holdback_active"
	ReasonDailyLoanLimit      Reason = "daily_loan_limit"
	ReasonDailyVolumeLimit    Reason = "daily_volume_limit"
	ReasonPerTxLimit          Reason = "per_tx_limit"
	ReasonCounterpartyLimit   Reason = "counterparty_limit"
)

// capacityReasons — подмножество причин, означающих исчерпание лимитов
// (структурный аналог CapacityError из таксономии ошибок).
var capacityReasons = map[Reason]struct{}{
	ReasonDailyLoanLimit:    {},
	ReasonDailyVolumeLimit:  {},
	ReasonPerTxLimit:        {},
	ReasonCounterpartyLimit: {},
}

// IsCapacity сообщает, относится ли причина к лимитам потребления.
func (r Reason) IsCapacity() bool {
	_, ok := capacityReasons[r]
	return ok
}
