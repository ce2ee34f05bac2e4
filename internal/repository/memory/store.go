package memory

/*
Пакет memory — потокобезопасное хранилище в памяти. Реализует те же
контракты, что и postgres.Store: используется тестами и dev-режимом без
инфраструктуры. Семантика условных обновлений (CAS seeking -> funded,
защищенные переходы статусов) повторена под мьютексом один в один.
*/

import (
	"context"
	"sort"
	"strconv"
	"sync"
	"time"

	"github.com/xela07ax/lendgate/internal/audit"
	"github.com/xela07ax/lendgate/internal/domain"
	"github.com/xela07ax/lendgate/internal/ledger"
)

type Store struct {
	mu sync.Mutex

	loans    map[string]*domain.Loan
	bids     map[string][]*domain.Bid // по loan_id, в порядке sequence
	agents   map[int64]*domain.Agent
	sessions map[string]*domain.Session
	events   []*domain.FundingEvent
	intents  map[string]*domain.FundingIntent // ключ loan_id+"/"+agent_fid
	trail    []audit.DecisionEvent
}

func NewStore() *Store {
	return &Store{
		loans:    make(map[string]*domain.Loan),
		bids:     make(map[string][]*domain.Bid),
		agents:   make(map[int64]*domain.Agent),
		sessions: make(map[string]*domain.Session),
		intents:  make(map[string]*domain.FundingIntent),
	}
}

// --- Loans ---

func (s *Store) CreateLoan(_ context.Context, loan *domain.Loan) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := *loan
	s.loans[loan.ID] = &cp
	return nil
}

func (s *Store) GetLoan(_ context.Context, id string) (*domain.Loan, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	loan, ok := s.loans[id]
	if !ok {
		return nil, domain.ErrNotFound
	}
	cp := *loan
	return &cp, nil
}

func (s *Store) UpdateLoanStatus(_ context.Context, id string, from, to domain.LoanStatus) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	loan, ok := s.loans[id]
	if !ok {
		return domain.ErrNotFound
	}
	if loan.Status != from {
		return domain.ErrLoanContended
	}
	loan.Status = to
	loan.UpdatedAt = time.Now()
	return nil
}

func (s *Store) ConditionalFund(_ context.Context, loanID string, funderFID int64, funderKind domain.ActorKind) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	loan, ok := s.loans[loanID]
	if !ok {
		return domain.ErrLoanContended
	}
	if loan.Status != domain.LoanSeeking {
		return domain.ErrLoanContended
	}
	loan.Status = domain.LoanFunded
	loan.FunderFID = funderFID
	loan.FunderKind = funderKind
	loan.UpdatedAt = time.Now()
	return nil
}

func (s *Store) ListAvailable(_ context.Context, limit int) ([]domain.Loan, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	results := make([]domain.Loan, 0)
	for _, loan := range s.loans {
		if loan.Status == domain.LoanSeeking {
			results = append(results, *loan)
		}
	}
	sort.Slice(results, func(i, j int) bool {
		return results[i].CreatedAt.After(results[j].CreatedAt)
	})
	if len(results) > limit {
		results = results[:limit]
	}
	return results, nil
}

func (s *Store) ListExpiredAuctions(_ context.Context, asOf time.Time) ([]domain.Loan, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	results := make([]domain.Loan, 0)
	for _, loan := range s.loans {
		if loan.Status == domain.LoanSeeking && !loan.AuctionEndsAt.After(asOf) {
			results = append(results, *loan)
		}
	}
	return results, nil
}

func (s *Store) ListByStatusDueBefore(_ context.Context, status domain.LoanStatus, cutoff time.Time) ([]domain.Loan, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	results := make([]domain.Loan, 0)
	for _, loan := range s.loans {
		if loan.Status == status && !loan.DueAt.After(cutoff) {
			results = append(results, *loan)
		}
	}
	return results, nil
}

// --- Bids ---

func (s *Store) ListBids(_ context.Context, loanID string) ([]domain.Bid, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	results := make([]domain.Bid, 0, len(s.bids[loanID]))
	for _, b := range s.bids[loanID] {
		results = append(results, *b)
	}
	return results, nil
}

func (s *Store) TopBid(_ context.Context, loanID string) (*domain.Bid, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.topLocked(loanID), nil
}

func (s *Store) topLocked(loanID string) *domain.Bid {
	for _, b := range s.bids[loanID] {
		if b.Status == domain.BidWinning {
			cp := *b
			return &cp
		}
	}
	return nil
}

func (s *Store) PlaceBid(_ context.Context, bid *domain.Bid) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	// Финальная проверка строгого превышения под блокировкой
	var maxSeq int64
	for _, b := range s.bids[bid.LoanID] {
		if b.Sequence > maxSeq {
			maxSeq = b.Sequence
		}
		if b.Status == domain.BidWinning {
			if bid.Amount <= b.Amount {
				return domain.ErrBidTooLow
			}
			b.Status = domain.BidLosing
		}
	}

	cp := *bid
	cp.Sequence = maxSeq + 1
	cp.Status = domain.BidWinning
	s.bids[bid.LoanID] = append(s.bids[bid.LoanID], &cp)
	bid.Sequence = cp.Sequence
	bid.Status = cp.Status
	return nil
}

// --- Agents ---

func (s *Store) UpsertAgent(_ context.Context, agent *domain.Agent) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := *agent
	s.agents[agent.FID] = &cp
	return nil
}

func (s *Store) GetAgent(_ context.Context, fid int64) (*domain.Agent, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	agent, ok := s.agents[fid]
	if !ok {
		return nil, domain.ErrNotFound
	}
	cp := *agent
	return &cp, nil
}

func (s *Store) ListAgents(_ context.Context) ([]domain.Agent, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	results := make([]domain.Agent, 0, len(s.agents))
	for _, a := range s.agents {
		results = append(results, *a)
	}
	sort.Slice(results, func(i, j int) bool { return results[i].FID < results[j].FID })
	return results, nil
}

func (s *Store) SetAgentActive(_ context.Context, fid int64, active bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	agent, ok := s.agents[fid]
	if !ok {
		return domain.ErrNotFound
	}
	agent.Active = active
	agent.UpdatedAt = time.Now()
	return nil
}

func (s *Store) SetAutofund(_ context.Context, fid int64, enabled bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	agent, ok := s.agents[fid]
	if !ok {
		return domain.ErrNotFound
	}
	agent.AutofundEnabled = enabled
	agent.UpdatedAt = time.Now()
	return nil
}

func (s *Store) GetBlockedAgents(_ context.Context) ([]int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	ids := make([]int64, 0)
	for fid, a := range s.agents {
		if !a.Active {
			ids = append(ids, fid)
		}
	}
	return ids, nil
}

// --- Sessions ---

func (s *Store) CreateSession(_ context.Context, sess *domain.Session) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := *sess
	s.sessions[sess.TokenHash] = &cp
	return nil
}

func (s *Store) GetSessionByHash(_ context.Context, hash string) (*domain.Session, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	sess, ok := s.sessions[hash]
	if !ok {
		return nil, domain.ErrNotFound
	}
	cp := *sess
	return &cp, nil
}

func (s *Store) TouchSession(_ context.Context, hash string, usedAt time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if sess, ok := s.sessions[hash]; ok {
		sess.LastUsedAt = usedAt
	}
	return nil
}

// --- Funding events / velocity ---

func (s *Store) RecordFunding(_ context.Context, ev *domain.FundingEvent) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := *ev
	s.events = append(s.events, &cp)
	return nil
}

func (s *Store) AggregateFunding(_ context.Context, agentFID int64, since time.Time) (int, ledger.Micro, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var count int
	var volume ledger.Micro
	for _, ev := range s.events {
		if ev.AgentFID == agentFID && !ev.CreatedAt.Before(since) {
			count++
			volume += ev.Amount
		}
	}
	return count, volume, nil
}

func (s *Store) AggregateCounterparty(_ context.Context, agentFID, borrowerFID int64, since time.Time) (ledger.Micro, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var volume ledger.Micro
	for _, ev := range s.events {
		if ev.AgentFID == agentFID && ev.BorrowerFID == borrowerFID && !ev.CreatedAt.Before(since) {
			volume += ev.Amount
		}
	}
	return volume, nil
}

func (s *Store) AttachTxRef(_ context.Context, loanID, txRef string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, ev := range s.events {
		if ev.LoanID == loanID && ev.TxRef == "" {
			ev.TxRef = txRef
		}
	}
	return nil
}

// --- Intents ---

func formatFID(fid int64) string {
	return strconv.FormatInt(fid, 10)
}

func (s *Store) RecordIntent(_ context.Context, intent *domain.FundingIntent) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	key := intent.LoanID + "/" + formatFID(intent.AgentFID)
	if _, exists := s.intents[key]; exists {
		return nil // идемпотентность: повтор — no-op
	}
	cp := *intent
	s.intents[key] = &cp
	return nil
}

func (s *Store) ReconcileIntents(_ context.Context, loanID string, funderFID int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, in := range s.intents {
		if in.LoanID != loanID || in.Status != domain.IntentRecorded {
			continue
		}
		if in.AgentFID == funderFID {
			in.Status = domain.IntentSettled
		} else {
			in.Status = domain.IntentExpired
		}
		in.UpdatedAt = time.Now()
	}
	return nil
}

func (s *Store) ListIntents(_ context.Context, status domain.IntentStatus) ([]*domain.FundingIntent, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	results := make([]*domain.FundingIntent, 0)
	for _, in := range s.intents {
		if status == "" || in.Status == status {
			cp := *in
			results = append(results, &cp)
		}
	}
	sort.Slice(results, func(i, j int) bool { return results[i].CreatedAt.After(results[j].CreatedAt) })
	return results, nil
}

// --- Audit ---

func (s *Store) WriteBatch(_ context.Context, events []audit.DecisionEvent) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.trail = append(s.trail, events...)
	return nil
}

// AuditEvents — снимок журнала (для тестов).
func (s *Store) AuditEvents() []audit.DecisionEvent {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := make([]audit.DecisionEvent, len(s.trail))
	copy(cp, s.trail)
	return cp
}
