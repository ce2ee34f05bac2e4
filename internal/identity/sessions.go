package identity

/*
Файл sessions.go — непрозрачные бейрер-токены агентов. Сырой токен выдается
один раз; в хранилище живет только H(token || server_secret). Lookup
fail-closed: любая ошибка хранилища или несовпадение трактуется как
неаутентифицированный вызов. Успешный lookup обновляет ТОЛЬКО last_used_at,
expires_at не трогается — тихих продлений нет.
*/

import (
	"context"
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"time"

	"github.com/xela07ax/lendgate/internal/domain"
	"go.uber.org/zap"
)

// DefaultTTL — срок жизни сессии, фиксируется при создании.
const DefaultTTL = 24 * time.Hour

// SessionStore — контракт хранилища сессий.
type SessionStore interface {
	CreateSession(ctx context.Context, s *domain.Session) error
	GetSessionByHash(ctx context.Context, hash string) (*domain.Session, error)
	TouchSession(ctx context.Context, hash string, usedAt time.Time) error
}

type SessionManager struct {
	store  SessionStore
	secret []byte // server_secret для соления хеша
	ttl    time.Duration
	logger *zap.Logger
	now    func() time.Time
}

func NewSessionManager(store SessionStore, secret []byte, ttl time.Duration, logger *zap.Logger) *SessionManager {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &SessionManager{
		store:  store,
		secret: secret,
		ttl:    ttl,
		logger: logger.Named("sessions"),
		now:    time.Now,
	}
}

// hashToken — H(token || server_secret). Одностороннее: по хешу токен
// восстановить нельзя, утечка таблицы сессий не дает доступа.
func (m *SessionManager) hashToken(token string) string {
	h := sha256.New()
	h.Write([]byte(token))
	h.Write(m.secret)
	return hex.EncodeToString(h.Sum(nil))
}

// Issue создает сессию агента и возвращает сырой токен (показывается один раз).
func (m *SessionManager) Issue(ctx context.Context, agentFID int64) (string, *domain.Session, error) {
	raw := make([]byte, 32)
	if _, err := rand.Read(raw); err != nil {
		return "", nil, &domain.ExternalDependencyError{Service: "entropy", Err: err}
	}
	token := hex.EncodeToString(raw)

	now := m.now()
	s := &domain.Session{
		TokenHash:  m.hashToken(token),
		AgentFID:   agentFID,
		ExpiresAt:  now.Add(m.ttl),
		LastUsedAt: now,
		CreatedAt:  now,
	}
	if err := m.store.CreateSession(ctx, s); err != nil {
		return "", nil, err
	}
	return token, s, nil
}

// Authenticate проверяет предъявленный токен. Возвращает FID агента или
// AuthError. Ошибки хранилища схлопываются в отказ (fail-closed).
func (m *SessionManager) Authenticate(ctx context.Context, token string) (int64, error) {
	if token == "" {
		return 0, domain.ErrUnauthenticated
	}

	hash := m.hashToken(token)
	s, err := m.store.GetSessionByHash(ctx, hash)
	if err != nil {
		if !errors.Is(err, domain.ErrNotFound) {
			// Деградацию identity-слоя логируем, но наружу — единый отказ
			m.logger.Warn("session lookup failed, treating as unauthenticated", zap.Error(err))
		}
		return 0, domain.ErrUnauthenticated
	}

	now := m.now()
	if s.Expired(now) {
		return 0, &domain.AuthError{Reason: "session expired"}
	}

	// Только отметка использования; срок действия неизменен
	if err := m.store.TouchSession(ctx, hash, now); err != nil {
		m.logger.Warn("failed to touch session", zap.Error(err))
	}
	return s.AgentFID, nil
}
