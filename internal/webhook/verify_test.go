package webhook

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestVerifySignedBody(t *testing.T) {
	v := NewVerifier("shared-secret")
	body := []byte(`{"loan_id":"loan-1","tx_ref":"0xabc","status":"confirmed"}`)

	header := v.Sign(body)
	require.NoError(t, v.Verify(body, header))
}

func TestVerifyRejectsTamperedBody(t *testing.T) {
	v := NewVerifier("shared-secret")
	body := []byte(`{"loan_id":"loan-1"}`)
	header := v.Sign(body)

	tampered := []byte(`{"loan_id":"loan-2"}`)
	assert.ErrorIs(t, v.Verify(tampered, header), ErrBadSignature)
}

func TestVerifyRejectsWrongSecret(t *testing.T) {
	body := []byte(`{"loan_id":"loan-1"}`)
	header := NewVerifier("secret-a").Sign(body)

	assert.ErrorIs(t, NewVerifier("secret-b").Verify(body, header), ErrBadSignature)
}

func TestVerifyRejectsMissingOrMalformedHeader(t *testing.T) {
	v := NewVerifier("shared-secret")
	body := []byte(`{}`)

	assert.ErrorIs(t, v.Verify(body, ""), ErrMissingSignature)
	assert.ErrorIs(t, v.Verify(body, "deadbeef"), ErrBadSignature, "prefix is mandatory")
	assert.ErrorIs(t, v.Verify(body, "sha256=not-hex"), ErrBadSignature)
}
