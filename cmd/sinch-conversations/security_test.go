package main

import (
	"bytes"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestVerifySignature_NoSecret(t *testing.T) {
	body := []byte(`{"hello": "world"}`)
	req := httptest.NewRequest("POST", "/webhook/sinch", bytes.NewReader(body))

	got, err := verifySignature(req, "")
	require.NoError(t, err)
	assert.Equal(t, body, got)
}

func TestVerifySignature_NoSecretInProduction(t *testing.T) {
	t.Setenv("OCE_SINCH_ENV", "production")

	req := httptest.NewRequest("POST", "/webhook/sinch", bytes.NewReader([]byte(`{}`)))
	_, err := verifySignature(req, "")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "required in production")
}

func TestVerifySignature_Valid(t *testing.T) {
	body := []byte(`{"hello": "world"}`)
	req := httptest.NewRequest("POST", "/webhook/sinch", bytes.NewReader(body))
	req.Header.Set(signatureHeader, signBody("secret", body))

	got, err := verifySignature(req, "secret")
	require.NoError(t, err)
	assert.Equal(t, body, got)

	// Body must be readable again after verification
	buf := make([]byte, len(body))
	n, _ := req.Body.Read(buf)
	assert.Equal(t, body, buf[:n])
}

func TestVerifySignature_Tampered(t *testing.T) {
	body := []byte(`{"hello": "world"}`)
	req := httptest.NewRequest("POST", "/webhook/sinch", bytes.NewReader([]byte(`{"hello": "tampered"}`)))
	req.Header.Set(signatureHeader, signBody("secret", body))

	_, err := verifySignature(req, "secret")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "signature mismatch")
}
