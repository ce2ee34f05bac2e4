package handler

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/xela07ax/lendgate/internal/console/service"
	"github.com/xela07ax/lendgate/internal/domain"
)

type AgentHandler struct {
	service *service.AgentService
}

func NewAgentHandler(s *service.AgentService) *AgentHandler {
	return &AgentHandler{service: s}
}

func agentFID(r *http.Request) (int64, error) {
	return strconv.ParseInt(chi.URLParam(r, "fid"), 10, 64)
}

func writeJSON(w http.ResponseWriter, status int, payload interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(payload)
}

func (h *AgentHandler) List(w http.ResponseWriter, r *http.Request) {
	agents, err := h.service.ListAgents(r.Context())
	if err != nil {
		http.Error(w, "Failed to fetch agents", http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, agents)
}

func (h *AgentHandler) Get(w http.ResponseWriter, r *http.Request) {
	fid, err := agentFID(r)
	if err != nil {
		http.Error(w, "invalid agent fid", http.StatusBadRequest)
		return
	}

	agent, err := h.service.GetAgent(r.Context(), fid)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			http.Error(w, "agent not found", http.StatusNotFound)
			return
		}
		http.Error(w, "Failed to fetch agent", http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, agent)
}

// Block — мгновенная блокировка агента (kill-switch).
// Мы ждем завершения и БД, и Redis-сигнала, чтобы гарантировать безопасность.
func (h *AgentHandler) Block(w http.ResponseWriter, r *http.Request) {
	h.toggle(w, r, h.service.BlockAgent)
}

func (h *AgentHandler) Unblock(w http.ResponseWriter, r *http.Request) {
	h.toggle(w, r, h.service.UnblockAgent)
}

func (h *AgentHandler) toggle(w http.ResponseWriter, r *http.Request, action func(context.Context, int64) error) {
	fid, err := agentFID(r)
	if err != nil {
		http.Error(w, "invalid agent fid", http.StatusBadRequest)
		return
	}

	if err := action(r.Context(), fid); err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			http.Error(w, "agent not found", http.StatusNotFound)
			return
		}
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// SetAutofund переключает автофинансирование агента.
// POST /v1/agents/{fid}/autofund {"enabled": false}
func (h *AgentHandler) SetAutofund(w http.ResponseWriter, r *http.Request) {
	fid, err := agentFID(r)
	if err != nil {
		http.Error(w, "invalid agent fid", http.StatusBadRequest)
		return
	}

	var req struct {
		Enabled bool `json:"enabled"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "bad request", http.StatusBadRequest)
		return
	}

	if err := h.service.SetAutofund(r.Context(), fid, req.Enabled); err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			http.Error(w, "agent not found", http.StatusNotFound)
			return
		}
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// SetGlobalKillSwitch — рубильник всей платформы.
// POST /v1/killswitch {"active": true}
func (h *AgentHandler) SetGlobalKillSwitch(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Active bool `json:"active"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "bad request", http.StatusBadRequest)
		return
	}

	if err := h.service.SetGlobalKillSwitch(r.Context(), req.Active); err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// ListIntents — очередь funding-интентов.
// GET /v1/intents?status=RECORDED
func (h *AgentHandler) ListIntents(w http.ResponseWriter, r *http.Request) {
	intents, err := h.service.ListIntents(r.Context(), r.URL.Query().Get("status"))
	if err != nil {
		http.Error(w, "Failed to fetch intents", http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, intents)
}
