package server

import (
	"crypto/subtle"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/xela07ax/lendgate/internal/auction"
	"github.com/xela07ax/lendgate/internal/audit"
	"github.com/xela07ax/lendgate/internal/domain"
	"github.com/xela07ax/lendgate/internal/identity"
	"github.com/xela07ax/lendgate/internal/ledger"
	"github.com/xela07ax/lendgate/internal/lending"
	"github.com/xela07ax/lendgate/internal/webhook"
)

func (s *Server) respondJSON(w http.ResponseWriter, status int, payload interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if payload != nil {
		_ = json.NewEncoder(w).Encode(payload)
	}
}

func (s *Server) respondError(w http.ResponseWriter, status int, msg string) {
	s.respondJSON(w, status, map[string]string{"error": msg})
}

// writeDomainError — единая карта доменных ошибок на HTTP-статусы.
func (s *Server) writeDomainError(w http.ResponseWriter, err error) {
	var authErr *domain.AuthError
	var stateErr *domain.StateError
	var valErr *ledger.ValidationError

	switch {
	case errors.As(err, &authErr):
		s.respondError(w, http.StatusUnauthorized, authErr.Error())
	case errors.As(err, &valErr):
		s.respondError(w, http.StatusBadRequest, valErr.Error())
	case errors.Is(err, domain.ErrBidTooLow):
		s.respondError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, domain.ErrNotFound):
		s.respondError(w, http.StatusNotFound, "not found")
	case errors.As(err, &stateErr), errors.Is(err, domain.ErrLoanContended), errors.Is(err, domain.ErrNoBids):
		s.respondError(w, http.StatusConflict, err.Error())
	case errors.Is(err, auction.ErrHoldbackActive):
		s.respondError(w, http.StatusForbidden, err.Error())
	default:
		s.logger.Error("internal error", zap.Error(err))
		s.respondError(w, http.StatusInternalServerError, "internal error")
	}
}

func bearerToken(r *http.Request) string {
	h := r.Header.Get("Authorization")
	return strings.TrimSpace(strings.TrimPrefix(h, "Bearer "))
}

// --- Agents ---

func (s *Server) handleRegisterAgent(w http.ResponseWriter, r *http.Request) {
	var req identity.RegisterRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.respondError(w, http.StatusBadRequest, "malformed request body")
		return
	}

	resp, err := s.registrar.Register(r.Context(), req)
	if err != nil {
		s.writeDomainError(w, err)
		return
	}
	s.respondJSON(w, http.StatusCreated, resp)
}

// --- Loans ---

func (s *Server) handleCreateLoan(w http.ResponseWriter, r *http.Request) {
	var req lending.CreateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.respondError(w, http.StatusBadRequest, "malformed request body")
		return
	}

	loan, err := s.lending.Create(r.Context(), req)
	if err != nil {
		s.writeDomainError(w, err)
		return
	}
	s.respondJSON(w, http.StatusCreated, loan)
}

func (s *Server) handleListAvailable(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	limit, _ := strconv.Atoi(q.Get("limit"))
	duration, _ := strconv.Atoi(q.Get("duration"))
	minScore, _ := strconv.Atoi(q.Get("min_score"))
	loans, err := s.lending.ListAvailable(r.Context(), lending.ListQuery{
		Limit:           limit,
		MaxAmount:       q.Get("max_amount"),
		MaxDurationDays: duration,
		MinScore:        minScore,
	})
	if err != nil {
		s.writeDomainError(w, err)
		return
	}
	s.respondJSON(w, http.StatusOK, loans)
}

func (s *Server) handleCancelLoan(w http.ResponseWriter, r *http.Request) {
	loanID := chi.URLParam(r, "id")

	var req struct {
		BorrowerFID int64 `json:"borrower_fid"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.respondError(w, http.StatusBadRequest, "malformed request body")
		return
	}

	if err := s.lending.Cancel(r.Context(), loanID, req.BorrowerFID); err != nil {
		s.writeDomainError(w, err)
		return
	}
	s.respondJSON(w, http.StatusOK, map[string]string{"status": string(domain.LoanCancelled)})
}

func (s *Server) handleRepayLoan(w http.ResponseWriter, r *http.Request) {
	loanID := chi.URLParam(r, "id")

	total, err := s.lending.Repay(r.Context(), loanID)
	if err != nil {
		s.writeDomainError(w, err)
		return
	}
	s.respondJSON(w, http.StatusOK, map[string]string{
		"status": string(domain.LoanRepaid),
		"total":  total.Format(),
	})
}

// --- Auction ---

func (s *Server) handleListBids(w http.ResponseWriter, r *http.Request) {
	loanID := chi.URLParam(r, "id")
	bids, err := s.auction.ListBids(r.Context(), loanID)
	if err != nil {
		s.writeDomainError(w, err)
		return
	}
	s.respondJSON(w, http.StatusOK, bids)
}

func (s *Server) handlePlaceBid(w http.ResponseWriter, r *http.Request) {
	loanID := chi.URLParam(r, "id")

	var req struct {
		BidderFID   int64            `json:"bidder_fid"`
		BidderKind  domain.ActorKind `json:"bidder_kind"`
		AmountMicro int64            `json:"amount_micro"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.respondError(w, http.StatusBadRequest, "malformed request body")
		return
	}
	if req.BidderKind == "" {
		req.BidderKind = domain.ActorHuman
	}

	bid, err := s.auction.PlaceBid(r.Context(), loanID, req.BidderFID, req.BidderKind, req.AmountMicro)
	if err != nil {
		s.writeDomainError(w, err)
		return
	}
	s.respondJSON(w, http.StatusCreated, bid)
}

func (s *Server) handleBidStream(w http.ResponseWriter, r *http.Request) {
	s.hub.ServeLoanFeed(w, r, chi.URLParam(r, "id"))
}

// handleAcceptBid — заемщик досрочно принимает выигрывающую ставку,
// не дожидаясь дедлайна аукциона. Принятие доступно только заемщику,
// как и отмена.
func (s *Server) handleAcceptBid(w http.ResponseWriter, r *http.Request) {
	loanID := chi.URLParam(r, "id")

	var req struct {
		BorrowerFID int64 `json:"borrower_fid"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.respondError(w, http.StatusBadRequest, "malformed request body")
		return
	}

	current, err := s.txRefs.GetLoan(r.Context(), loanID)
	if err != nil {
		s.writeDomainError(w, err)
		return
	}
	if current == nil {
		s.respondError(w, http.StatusNotFound, "not found")
		return
	}
	if current.BorrowerFID != req.BorrowerFID {
		s.writeDomainError(w, &domain.AuthError{Reason: "only the borrower can accept a bid"})
		return
	}

	loan, err := s.auction.Settle(r.Context(), loanID)
	if err != nil {
		s.writeDomainError(w, err)
		return
	}
	if err := s.txRefs.ReconcileIntents(r.Context(), loanID, loan.FunderFID); err != nil {
		s.logger.Error("intent reconciliation failed", zap.String("loan_id", loanID), zap.Error(err))
	}
	s.respondJSON(w, http.StatusOK, loan)
}

// --- Admission ---

func (s *Server) handleAdmission(w http.ResponseWriter, r *http.Request) {
	token := bearerToken(r)
	loanID := chi.URLParam(r, "id")

	result, err := s.admission.Decide(r.Context(), token, loanID)
	if err != nil {
		s.writeDomainError(w, err)
		return
	}
	s.respondJSON(w, http.StatusOK, result)
}

// --- Webhooks ---

func (s *Server) handleExecutorWebhook(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, 1<<20))
	if err != nil {
		s.respondError(w, http.StatusBadRequest, "cannot read body")
		return
	}

	if err := s.verifier.Verify(body, r.Header.Get(webhook.SignatureHeader)); err != nil {
		s.logger.Warn("webhook signature rejected", zap.Error(err))
		s.respondError(w, http.StatusUnauthorized, "invalid signature")
		return
	}

	var payload struct {
		LoanID      string `json:"loan_id"`
		TxRef       string `json:"tx_ref"`
		Status      string `json:"status"`
		AmountMicro int64  `json:"amount_micro"`
	}
	if err := json.Unmarshal(body, &payload); err != nil || payload.LoanID == "" {
		s.respondError(w, http.StatusBadRequest, "malformed payload")
		return
	}

	// Сверка заявленной суммы с ожидаемой: principal для подтверждения
	// финансирования, principal+проценты для погашения. Допуск — 1 микро.
	if payload.AmountMicro > 0 {
		loan, err := s.txRefs.GetLoan(r.Context(), payload.LoanID)
		if err != nil {
			s.writeDomainError(w, err)
			return
		}
		if loan == nil {
			s.respondError(w, http.StatusNotFound, "not found")
			return
		}
		expected := loan.Principal
		if payload.Status == "repaid" {
			if expected, err = ledger.Repay(loan.Principal, loan.RateBps); err != nil {
				s.writeDomainError(w, err)
				return
			}
		}
		if !ledger.EqualWithin(ledger.Micro(payload.AmountMicro), expected, 1) {
			s.logger.Warn("webhook amount mismatch",
				zap.String("loan_id", payload.LoanID),
				zap.Int64("reported", payload.AmountMicro),
				zap.Int64("expected", int64(expected)))
			if s.auditor != nil {
				s.auditor.Log(audit.DecisionEvent{
					ID:          uuid.New().String(),
					Kind:        audit.KindWebhook,
					LoanID:      payload.LoanID,
					Status:      payload.Status,
					Accepted:    false,
					Reasons:     []string{"amount_mismatch"},
					AmountMicro: payload.AmountMicro,
				})
			}
			s.respondError(w, http.StatusConflict, "amount mismatch")
			return
		}
	}

	if payload.TxRef != "" {
		if err := s.txRefs.AttachTxRef(r.Context(), payload.LoanID, payload.TxRef); err != nil {
			s.writeDomainError(w, err)
			return
		}
	}

	if s.auditor != nil {
		s.auditor.Log(audit.DecisionEvent{
			ID:       uuid.New().String(),
			Kind:     audit.KindWebhook,
			LoanID:   payload.LoanID,
			Status:   payload.Status,
			Accepted: true,
		})
	}
	s.respondJSON(w, http.StatusOK, map[string]string{"status": "accepted"})
}

// --- Sweep ---

func (s *Server) handleSweep(w http.ResponseWriter, r *http.Request) {
	token := bearerToken(r)
	if subtle.ConstantTimeCompare([]byte(token), []byte(s.sweepSecret)) != 1 {
		s.respondError(w, http.StatusUnauthorized, "invalid sweep credential")
		return
	}

	report, err := s.sweeper.Run(r.Context())
	if err != nil {
		s.writeDomainError(w, err)
		return
	}
	s.respondJSON(w, http.StatusOK, report)
}
