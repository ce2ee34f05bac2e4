package handler

import (
	"encoding/json"
	"net/http"

	"github.com/xela07ax/lendgate/internal/console/service"
	"github.com/xela07ax/lendgate/internal/domain"
)

// AuthHandler — единственная публичная точка консоли: обмен логина
// и пароля оператора на RS256-токен.
type AuthHandler struct {
	auth *service.AuthService
}

func NewAuthHandler(s *service.AuthService) *AuthHandler {
	return &AuthHandler{auth: s}
}

func (h *AuthHandler) Login(w http.ResponseWriter, r *http.Request) {
	var req domain.LoginRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "malformed request body", http.StatusBadRequest)
		return
	}

	resp, err := h.auth.GenerateToken(r.Context(), req.Username, req.Password)
	if err != nil {
		// единый ответ на неверный логин и неверный пароль
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(resp)
}
