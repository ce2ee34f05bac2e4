package handler

import (
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"github.com/xela07ax/lendgate/internal/console/service"
)

type AuditHandler struct {
	service *service.AuditService
}

func NewAuditHandler(s *service.AuditService) *AuditHandler {
	return &AuditHandler{service: s}
}

// GetLogs возвращает журнал решений с поддержкой фильтрации
// GET /v1/audit?agent_fid=...&kind=ADMISSION&since=RFC3339&limit=100
func (h *AuditHandler) GetLogs(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()

	agentFID, _ := strconv.ParseInt(q.Get("agent_fid"), 10, 64)
	limit, _ := strconv.Atoi(q.Get("limit"))

	var since time.Time
	if raw := q.Get("since"); raw != "" {
		if parsed, err := time.Parse(time.RFC3339, raw); err == nil {
			since = parsed
		}
	}

	logs, err := h.service.FetchLogs(r.Context(), agentFID, q.Get("kind"), since, limit)
	if err != nil {
		http.Error(w, "Failed to fetch audit logs", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(logs)
}
