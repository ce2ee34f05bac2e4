package identity

/*
Файл manifest.go связывает декларированную политику автономного агента
с криптографически доказуемой identity. Манифест подписывается приватным
ключом, управляющим кошельком агента; подпись восстанавливается (secp256k1
recovery) и сверяется с адресом кошелька до создания/обновления записи.
*/

import (
	"encoding/hex"
	"encoding/json"
	"fmt"
	"strings"

	ethcrypto "github.com/ethereum/go-ethereum/crypto"
	"github.com/xela07ax/lendgate/internal/domain"
)

// Manifest — канонический JSON, который подписывает контроллер агента.
// Порядок полей фиксирован структурой: encoding/json сериализует поля
// в порядке объявления, что и дает каноническую байтовую форму.
type Manifest struct {
	AgentFID      int64           `json:"agent_fid"`
	ControllerFID int64           `json:"controller_fid"`
	Wallet        string          `json:"wallet"`
	StrategyHash  string          `json:"strategy_hash"`
	Policy        json.RawMessage `json:"policy"`
}

// Hash возвращает Keccak256 от канонической байтовой формы манифеста.
func (m Manifest) Hash() ([]byte, error) {
	if m.AgentFID <= 0 {
		return nil, fmt.Errorf("identity: manifest agent_fid required")
	}
	if m.Wallet == "" {
		return nil, fmt.Errorf("identity: manifest wallet required")
	}
	payload, err := json.Marshal(m)
	if err != nil {
		return nil, fmt.Errorf("identity: marshal manifest: %w", err)
	}
	return ethcrypto.Keccak256(payload), nil
}

// HashHex — Keccak256 произвольных байт в hex с префиксом 0x.
// Используется для strategy_hash внутри манифеста.
func HashHex(data []byte) string {
	return "0x" + hex.EncodeToString(ethcrypto.Keccak256(data))
}

// Verify восстанавливает подписанта из sig (65 байт hex, формат [R||S||V])
// и сверяет его адрес с кошельком манифеста. Любое расхождение — AuthError.
func Verify(m Manifest, sigHex string) error {
	hash, err := m.Hash()
	if err != nil {
		return err
	}

	sig, err := hex.DecodeString(strings.TrimPrefix(sigHex, "0x"))
	if err != nil || len(sig) != 65 {
		return &domain.AuthError{Reason: "malformed manifest signature"}
	}
	// go-ethereum ожидает V в диапазоне 0..1
	if sig[64] >= 27 {
		sig[64] -= 27
	}

	pub, err := ethcrypto.SigToPub(hash, sig)
	if err != nil {
		return &domain.AuthError{Reason: "signature recovery failed"}
	}

	recovered := ethcrypto.PubkeyToAddress(*pub).Hex()
	if !strings.EqualFold(recovered, m.Wallet) {
		return &domain.AuthError{Reason: "signer does not control declared wallet"}
	}
	return nil
}
