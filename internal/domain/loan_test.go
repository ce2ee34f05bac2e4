package domain

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestCanTransition(t *testing.T) {
	allowed := []struct{ from, to LoanStatus }{
		{LoanSeeking, LoanFunded},
		{LoanSeeking, LoanCancelled},
		{LoanSeeking, LoanDeleted},
		{LoanFunded, LoanDue},
		{LoanFunded, LoanRepaid},
		{LoanFunded, LoanOverdue},
		{LoanDue, LoanRepaid},
		{LoanDue, LoanOverdue},
		{LoanOverdue, LoanRepaid},
		{LoanOverdue, LoanDefault},
	}
	for _, tr := range allowed {
		assert.True(t, CanTransition(tr.from, tr.to), "%s -> %s must be allowed", tr.from, tr.to)
	}

	forbidden := []struct{ from, to LoanStatus }{
		{LoanSeeking, LoanRepaid}, // нельзя погасить непрофинансированный займ
		{LoanSeeking, LoanDue},
		{LoanFunded, LoanCancelled}, // после финансирования отмены нет
		{LoanFunded, LoanSeeking},
		{LoanDue, LoanDefault}, // в default только через overdue
		{LoanRepaid, LoanFunded},
		{LoanDefault, LoanRepaid},
		{LoanCancelled, LoanSeeking},
		{LoanDeleted, LoanSeeking},
	}
	for _, tr := range forbidden {
		assert.False(t, CanTransition(tr.from, tr.to), "%s -> %s must be forbidden", tr.from, tr.to)
	}
}

func TestCanTransitionRejectsSelfLoops(t *testing.T) {
	all := []LoanStatus{
		LoanSeeking, LoanFunded, LoanDue, LoanOverdue,
		LoanDefault, LoanRepaid, LoanCancelled, LoanDeleted,
	}
	for _, st := range all {
		assert.False(t, CanTransition(st, st), "%s -> %s self loop must be forbidden", st, st)
	}
}

func TestTerminalStatesHaveNoExits(t *testing.T) {
	all := []LoanStatus{
		LoanSeeking, LoanFunded, LoanDue, LoanOverdue,
		LoanDefault, LoanRepaid, LoanCancelled, LoanDeleted,
	}
	for _, terminal := range []LoanStatus{LoanDefault, LoanRepaid, LoanCancelled, LoanDeleted} {
		for _, to := range all {
			assert.False(t, CanTransition(terminal, to), "%s is terminal, exit to %s must be forbidden", terminal, to)
		}
	}
}

func TestInHoldback(t *testing.T) {
	created := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	loan := &Loan{CreatedAt: created}
	window := 15 * time.Minute

	assert.True(t, loan.InHoldback(created.Add(10*time.Minute), window))
	assert.False(t, loan.InHoldback(created.Add(16*time.Minute), window))
	// Граница окна не включается
	assert.False(t, loan.InHoldback(created.Add(window), window))
}

func TestStrategyPredicates(t *testing.T) {
	st := Strategy{
		DurationDays: []int{7, 30},
		Blacklist:    []int64{666},
		Whitelist:    nil,
	}
	assert.True(t, st.AllowsDuration(7))
	assert.False(t, st.AllowsDuration(14))
	assert.True(t, Strategy{}.AllowsDuration(14), "empty list allows any duration")

	assert.True(t, st.Blacklisted(666))
	assert.False(t, st.Blacklisted(777))

	assert.True(t, st.Whitelisted(777), "empty whitelist is not enforced")
	st.Whitelist = []int64{100}
	assert.True(t, st.Whitelisted(100))
	assert.False(t, st.Whitelisted(777))
}

func TestSessionExpired(t *testing.T) {
	now := time.Now()
	s := &Session{ExpiresAt: now.Add(time.Hour)}
	assert.False(t, s.Expired(now))
	assert.True(t, s.Expired(now.Add(time.Hour)), "boundary counts as expired")
	assert.True(t, s.Expired(now.Add(2*time.Hour)))
}
