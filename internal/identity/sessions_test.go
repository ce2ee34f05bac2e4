package identity

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/xela07ax/lendgate/internal/domain"
	"github.com/xela07ax/lendgate/internal/repository/memory"
)

func TestSessionIssueAndAuthenticate(t *testing.T) {
	ctx := context.Background()
	store := memory.NewStore()
	m := NewSessionManager(store, []byte("server-secret"), time.Hour, zap.NewNop())

	token, session, err := m.Issue(ctx, 9001)
	require.NoError(t, err)
	assert.NotEmpty(t, token)
	assert.NotEqual(t, token, session.TokenHash, "raw token must never be stored")

	fid, err := m.Authenticate(ctx, token)
	require.NoError(t, err)
	assert.Equal(t, int64(9001), fid)
}

func TestSessionAuthenticateRejectsUnknownToken(t *testing.T) {
	ctx := context.Background()
	m := NewSessionManager(memory.NewStore(), []byte("server-secret"), time.Hour, zap.NewNop())

	_, err := m.Authenticate(ctx, "deadbeef")
	assert.ErrorIs(t, err, domain.ErrUnauthenticated)

	_, err = m.Authenticate(ctx, "")
	assert.ErrorIs(t, err, domain.ErrUnauthenticated)
}

func TestSessionExpiryIsNotExtended(t *testing.T) {
	ctx := context.Background()
	store := memory.NewStore()
	m := NewSessionManager(store, []byte("server-secret"), time.Hour, zap.NewNop())

	base := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	m.now = func() time.Time { return base }

	token, session, err := m.Issue(ctx, 9001)
	require.NoError(t, err)

	// Использование внутри срока проходит и трогает только last_used_at
	m.now = func() time.Time { return base.Add(30 * time.Minute) }
	_, err = m.Authenticate(ctx, token)
	require.NoError(t, err)

	stored, err := store.GetSessionByHash(ctx, session.TokenHash)
	require.NoError(t, err)
	assert.Equal(t, base.Add(30*time.Minute), stored.LastUsedAt)
	assert.Equal(t, session.ExpiresAt, stored.ExpiresAt, "expires_at must never move")

	// После истечения — отказ, недавняя активность не продлевает сессию
	m.now = func() time.Time { return base.Add(61 * time.Minute) }
	_, err = m.Authenticate(ctx, token)
	var aerr *domain.AuthError
	require.ErrorAs(t, err, &aerr)
}

// failingSessionStore эмулирует деградацию identity-хранилища.
type failingSessionStore struct{}

func (failingSessionStore) CreateSession(context.Context, *domain.Session) error {
	return errors.New("storage down")
}

func (failingSessionStore) GetSessionByHash(context.Context, string) (*domain.Session, error) {
	return nil, errors.New("storage down")
}

func (failingSessionStore) TouchSession(context.Context, string, time.Time) error {
	return errors.New("storage down")
}

func TestSessionLookupFailsClosed(t *testing.T) {
	m := NewSessionManager(failingSessionStore{}, []byte("server-secret"), time.Hour, zap.NewNop())

	_, err := m.Authenticate(context.Background(), "sometoken")
	assert.ErrorIs(t, err, domain.ErrUnauthenticated)
}
