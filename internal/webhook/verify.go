package webhook

/*
Пакет webhook проверяет подлинность входящих подтверждений от внешнего
исполнителя платежей. Подпись — HMAC-SHA256 от сырого тела запроса,
передается в заголовке в формате "sha256=<hex>".
*/

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"strings"
)

// SignatureHeader — имя заголовка с подписью.
const SignatureHeader = "X-Signature"

const sigPrefix = "sha256="

var (
	ErrMissingSignature = errors.New("webhook: missing signature header")
	ErrBadSignature     = errors.New("webhook: signature mismatch")
)

// Verifier хранит общий секрет и проверяет подписи тел вебхуков.
type Verifier struct {
	secret []byte
}

func NewVerifier(secret string) *Verifier {
	return &Verifier{secret: []byte(secret)}
}

// Verify сверяет подпись с телом. Сравнение — константное по времени.
func (v *Verifier) Verify(body []byte, header string) error {
	if header == "" {
		return ErrMissingSignature
	}

	raw := strings.TrimPrefix(header, sigPrefix)
	if raw == header {
		return ErrBadSignature // префикс обязателен
	}

	got, err := hex.DecodeString(raw)
	if err != nil {
		return ErrBadSignature
	}

	mac := hmac.New(sha256.New, v.secret)
	mac.Write(body)
	want := mac.Sum(nil)

	if !hmac.Equal(got, want) {
		return ErrBadSignature
	}
	return nil
}

// Sign возвращает готовое значение заголовка для исходящего тела.
// Используется тестами и mock-исполнителем.
func (v *Verifier) Sign(body []byte) string {
	mac := hmac.New(sha256.New, v.secret)
	mac.Write(body)
	return sigPrefix + hex.EncodeToString(mac.Sum(nil))
}
