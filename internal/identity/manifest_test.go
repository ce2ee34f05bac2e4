package identity

import (
	"context"
	"encoding/hex"
	"encoding/json"
	"testing"

	ethcrypto "github.com/ethereum/go-ethereum/crypto"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/xela07ax/lendgate/internal/domain"
	"github.com/xela07ax/lendgate/internal/repository/memory"
)

// signManifest подписывает манифест свежим ключом и возвращает его вместе
// с подписью; кошелек манифеста выставляется в адрес подписанта.
func signManifest(t *testing.T, m Manifest) (Manifest, string) {
	t.Helper()
	key, err := ethcrypto.GenerateKey()
	require.NoError(t, err)

	m.Wallet = ethcrypto.PubkeyToAddress(key.PublicKey).Hex()

	hash, err := m.Hash()
	require.NoError(t, err)

	sig, err := ethcrypto.Sign(hash, key)
	require.NoError(t, err)
	return m, "0x" + hex.EncodeToString(sig)
}

func TestVerifyValidSignature(t *testing.T) {
	m, sig := signManifest(t, Manifest{
		AgentFID:      9001,
		ControllerFID: 1,
		StrategyHash:  "0xdead",
		Policy:        json.RawMessage(`{}`),
	})
	assert.NoError(t, Verify(m, sig))
}

func TestVerifyRejectsForeignWallet(t *testing.T) {
	m, sig := signManifest(t, Manifest{AgentFID: 9001, ControllerFID: 1})
	m.Wallet = "0x0000000000000000000000000000000000000001"

	err := Verify(m, sig)
	var aerr *domain.AuthError
	require.ErrorAs(t, err, &aerr)
}

func TestVerifyRejectsTamperedManifest(t *testing.T) {
	m, sig := signManifest(t, Manifest{AgentFID: 9001, ControllerFID: 1})
	m.AgentFID = 9002 // подпись сделана над другим содержимым

	err := Verify(m, sig)
	var aerr *domain.AuthError
	require.ErrorAs(t, err, &aerr)
}

func TestVerifyRejectsMalformedSignature(t *testing.T) {
	m, _ := signManifest(t, Manifest{AgentFID: 9001, ControllerFID: 1})

	var aerr *domain.AuthError
	assert.ErrorAs(t, Verify(m, "0xzz"), &aerr)
	assert.ErrorAs(t, Verify(m, "0x1234"), &aerr) // короче 65 байт
}

func TestHashRequiresIdentityFields(t *testing.T) {
	_, err := Manifest{Wallet: "0xabc"}.Hash()
	assert.Error(t, err, "agent_fid required")

	_, err = Manifest{AgentFID: 1}.Hash()
	assert.Error(t, err, "wallet required")
}

func TestRegistrarRegister(t *testing.T) {
	ctx := context.Background()
	store := memory.NewStore()
	sessions := NewSessionManager(store, []byte("secret"), 0, zap.NewNop())
	reg := NewRegistrar(store, sessions, zap.NewNop())

	strategy := domain.Strategy{RiskTier: "moderate", MinScore: 500}
	declared, err := json.Marshal(strategy)
	require.NoError(t, err)

	m, sig := signManifest(t, Manifest{
		AgentFID:      9001,
		ControllerFID: 7,
		StrategyHash:  HashHex(declared),
		Policy:        json.RawMessage(`{}`),
	})

	resp, err := reg.Register(ctx, RegisterRequest{
		Manifest:  m,
		Signature: sig,
		Strategy:  strategy,
		Limits:    domain.Limits{MaxLoansPerDay: 5},
	})
	require.NoError(t, err)
	assert.NotEmpty(t, resp.SessionToken)
	assert.True(t, resp.Agent.Active)
	assert.True(t, resp.Agent.AutofundEnabled)

	// Выданный токен сразу аутентифицирует агента
	fid, err := sessions.Authenticate(ctx, resp.SessionToken)
	require.NoError(t, err)
	assert.Equal(t, int64(9001), fid)

	// Профиль сохранен со стратегией из заявки
	agent, err := store.GetAgent(ctx, 9001)
	require.NoError(t, err)
	assert.Equal(t, "moderate", agent.Strategy.RiskTier)
	assert.Equal(t, int64(7), agent.ControllerFID)
}

func TestRegistrarRejectsStrategyMismatch(t *testing.T) {
	ctx := context.Background()
	store := memory.NewStore()
	sessions := NewSessionManager(store, []byte("secret"), 0, zap.NewNop())
	reg := NewRegistrar(store, sessions, zap.NewNop())

	// Хеш в манифесте посчитан от ДРУГОЙ стратегии
	declared, _ := json.Marshal(domain.Strategy{RiskTier: "conservative"})
	m, sig := signManifest(t, Manifest{
		AgentFID:      9001,
		ControllerFID: 7,
		StrategyHash:  HashHex(declared),
	})

	_, err := reg.Register(ctx, RegisterRequest{
		Manifest:  m,
		Signature: sig,
		Strategy:  domain.Strategy{RiskTier: "aggressive"},
	})
	var aerr *domain.AuthError
	require.ErrorAs(t, err, &aerr)

	// Ничего не сохранено
	_, err = store.GetAgent(ctx, 9001)
	assert.ErrorIs(t, err, domain.ErrNotFound)
}
